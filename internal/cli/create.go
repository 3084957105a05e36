package cli

import (
	"github.com/spf13/cobra"

	"github.com/stregato/owndata/internal/vault"
)

// CreateOptions holds flags for the create command.
type CreateOptions struct {
	*RootOptions
	Quota       int64
	Description string
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create <url>",
		Short: "Initialize a vault at a storage location",
		Long: `Initialize a vault at a storage location.

The location must not already contain a vault. The caller becomes the
vault creator and the first administrator.

Example:
  owndata create file:///tmp/myvault --quota 1000000`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return createVault(opts, args[0], cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.Quota, "quota", 0, "size limit in bytes, 0 for unbounded")
	cmd.Flags().StringVar(&opts.Description, "description", "", "free-text description")

	return cmd
}

func createVault(opts *CreateOptions, url string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	api, err := opts.openAPI()
	if err != nil {
		return err
	}
	defer api.Close()

	quota := opts.Quota
	if quota == 0 {
		quota = opts.settings.Quota
	}
	res := api.CreateVault(opts.resolveURL(url), vault.Config{Quota: quota, Description: opts.Description})
	if err := res.Check(); err != nil {
		out.Error(err)
		return WrapExitError(ExitFailure, "create failed", err)
	}
	defer api.CloseVault(res.Handle)

	var id string
	if err := res.Unmarshal(&id); err != nil {
		return err
	}
	return out.Success(id)
}
