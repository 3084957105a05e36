package cli

import (
	"github.com/spf13/cobra"
)

// NewRmCommand creates the rm command.
func NewRmCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "rm <url> <path>",
		Short:         "Remove a vault entry",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return removeFile(rootOpts, args[0], args[1], cmd)
		},
	}
}

func removeFile(opts *RootOptions, url, path string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	api, h, cleanup, err := opts.session(url)
	if err != nil {
		out.Error(err)
		return WrapExitError(ExitFailure, "cannot open vault", err)
	}
	defer cleanup()

	res := api.OpenFS(h)
	if err := res.Check(); err != nil {
		out.Error(err)
		return WrapExitError(ExitFailure, "cannot open object store", err)
	}
	defer api.CloseFS(res.Handle)

	if err := api.DeleteFile(res.Handle, path).Check(); err != nil {
		out.Error(err)
		return WrapExitError(ExitFailure, "rm failed", err)
	}
	return out.Success("ok")
}
