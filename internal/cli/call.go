package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// CallOptions holds flags for the call command.
type CallOptions struct {
	*RootOptions
	Args   string
	Kwargs string
}

// NewCallCommand creates the call command.
func NewCallCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CallOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "call <model> <method>",
		Short: "Call any model method",
		Long: `Call any model method and print its result.

No whitelist applies; the result is printed as the server returns it.

Example:
  odoorpc call stock.picking update_salla --args '[108080]'
  odoorpc call res.partner search_count --args '[[["is_company","=",true]]]'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(opts, cmd, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&opts.Args, "args", "[]", "positional arguments as a JSON array")
	cmd.Flags().StringVar(&opts.Kwargs, "kwargs", "{}", "keyword arguments as a JSON object")

	return cmd
}

func runCall(opts *CallOptions, cmd *cobra.Command, model, method string) error {
	args, err := parseJSONArray("args", opts.Args)
	if err != nil {
		return err
	}
	kwargs, err := parseJSONObject("kwargs", opts.Kwargs)
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

	res, err := a.client.CallMethod(ctx, model, method, args, kwargs)
	if err != nil {
		return remoteError(fmt.Sprintf("call %s.%s", model, method), err)
	}
	return a.out.Success(res)
}
