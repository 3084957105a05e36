package cli

import (
	"github.com/spf13/cobra"
)

// NewIDCommand creates the id command.
func NewIDCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "id",
		Short: "Print your identity",
		Long: `Print your identity.

Share the printed id with a vault administrator to be granted access.
The id holds only public key material.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showID(rootOpts, cmd)
		},
	}
}

func showID(opts *RootOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	api, err := opts.openAPI()
	if err != nil {
		out.Error(err)
		return err
	}
	defer api.Close()
	return out.Success(api.Identity.Id.String())
}
