package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/odoorpc/internal/picking"
	"github.com/roach88/odoorpc/internal/value"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	SkipSMS         bool
	CancelBackorder bool
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <picking-id>",
		Short: "Validate (mark done) a stock picking",
		Long: `Validate a stock picking by calling button_validate.

If Odoo answers with the backorder confirmation wizard, the wizard is
created and processed: the backorder is cancelled by default, or kept with
--cancel-backorder=false. Any other wizard needs a human and is reported
as an error.

Example:
  odoorpc validate 108080
  odoorpc validate 108080 --cancel-backorder=false`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.SkipSMS, "skip-sms", true, "suppress the delivery SMS")
	cmd.Flags().BoolVar(&opts.CancelBackorder, "cancel-backorder", true, "cancel the remaining quantities instead of creating a backorder")

	return cmd
}

type validateView struct {
	picking.ValidateResult
}

func (v validateView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "picking %d validated", v.PickingID)
	if v.Wizard != "" {
		action := "cancelled"
		if v.Backorder {
			action = "kept"
		}
		fmt.Fprintf(&b, " via %s %d (backorder %s, pickings %v)", v.Wizard, v.WizardID, action, v.PickIDs)
	}
	if v.Result != nil {
		if out, err := value.MarshalCanonical(v.Result); err == nil {
			fmt.Fprintf(&b, "\nresult: %s", out)
		}
	}
	return b.String()
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command, raw string) error {
	id, err := parseID(raw)
	if err != nil {
		return err
	}
	a, err := setup(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	if err := a.connect(); err != nil {
		return err
	}
	ctx := cmd.Context()
	defer a.close(ctx)

	svc := picking.New(a.client, a.batcher(false, true), picking.WithLogger(a.logger))
	res, err := svc.Validate(ctx, id, picking.ValidateOptions{SkipSMS: opts.SkipSMS, CancelBackorder: opts.CancelBackorder})
	if err != nil {
		var wiz *picking.WizardRequiredError
		if errors.As(err, &wiz) {
			return WrapExitError(ExitFailure, "picking needs manual validation", err)
		}
		return remoteError(fmt.Sprintf("validate picking %d", id), err)
	}
	return a.out.Success(validateView{*res})
}
