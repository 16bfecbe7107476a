package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/odoorpc/internal/odoo"
	"github.com/roach88/odoorpc/internal/value"
)

// ReadOptions holds flags for the read command.
type ReadOptions struct {
	*RootOptions
	Fields    []string
	AllFields bool
	Domain    string
	Limit     int
	Offset    int
	Order     string
}

// NewReadCommand creates the read command.
func NewReadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "read <model> [id]",
		Short: "Read whitelisted fields of one record or a search",
		Long: `Read whitelisted fields of one record, or of every record matching a domain.

The field list comes from --fields, or from the model's whitelist in the
config file. Fields the server returns outside that list are dropped.
--all-fields lifts the restriction for exploration and is logged.

Example:
  odoorpc read stock.picking 108080 --fields id,name,state
  odoorpc read stock.move --domain '[["picking_id","=",108080]]' --limit 10`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(opts, cmd, args)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Fields, "fields", nil, "fields to read (default: config whitelist)")
	cmd.Flags().BoolVar(&opts.AllFields, "all-fields", false, "read every field (exploration only)")
	cmd.Flags().StringVar(&opts.Domain, "domain", "[]", "search domain as JSON")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum records to return")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "records to skip")
	cmd.Flags().StringVar(&opts.Order, "order", "", "sort order, e.g. \"id desc\"")

	return cmd
}

func runRead(opts *ReadOptions, cmd *cobra.Command, args []string) error {
	a, err := setup(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	if err := a.connect(); err != nil {
		return err
	}
	ctx := cmd.Context()
	defer a.close(ctx)

	model := args[0]
	fields := odoo.Fields(opts.Fields...)
	if len(fields) == 0 {
		fields = a.cfg.Whitelist(model)
	}
	if len(fields) == 0 && !opts.AllFields {
		return NewExitError(ExitCommandError, fmt.Sprintf("no fields given and no whitelist configured for %s", model))
	}

	if len(args) == 2 {
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		var rec value.Object
		if opts.AllFields {
			rec, err = a.client.ReadRecordAllFields(ctx, model, id)
		} else {
			rec, err = a.client.ReadRecord(ctx, model, id, fields)
		}
		if err != nil {
			return remoteError(fmt.Sprintf("read %s %d", model, id), err)
		}
		return a.out.Success(rec)
	}

	terms, err := parseJSONArray("domain", opts.Domain)
	if err != nil {
		return err
	}
	search := odoo.SearchOptions{Limit: opts.Limit, Offset: opts.Offset, Order: opts.Order}
	var records []value.Object
	if opts.AllFields {
		records, err = a.client.SearchReadAllFields(ctx, model, odoo.Domain(terms), search)
	} else {
		records, err = a.client.SearchRead(ctx, model, odoo.Domain(terms), fields, search)
	}
	if err != nil {
		return remoteError(fmt.Sprintf("search %s", model), err)
	}
	out := make(value.Array, len(records))
	for i, r := range records {
		out[i] = r
	}
	return a.out.Success(out)
}
