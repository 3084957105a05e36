package cli

import (
	"github.com/spf13/cobra"

	"github.com/stregato/owndata/internal/fs"
)

// GetOptions holds flags for the get command.
type GetOptions struct {
	*RootOptions
	Async bool
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "get <url> <src> <dest>",
		Short:         "Fetch and decrypt a vault entry into a local file",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return getFile(opts, args[0], args[1], args[2], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Async, "async", false, "download in background")

	return cmd
}

func getFile(opts *GetOptions, url, src, dest string, cmd *cobra.Command) error {
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

	got := api.GetFile(res.Handle, src, dest, fs.GetOptions{Async: opts.Async})
	if err := got.Check(); err != nil {
		out.Error(err)
		return WrapExitError(ExitFailure, "get failed", err)
	}
	return out.Success(dest)
}
