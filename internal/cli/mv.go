package cli

import (
	"github.com/spf13/cobra"

	"github.com/stregato/owndata/internal/fs"
)

// NewMvCommand creates the mv command.
func NewMvCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "mv <url> <old> <new>",
		Short:         "Rename a vault entry",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return moveFile(rootOpts, args[0], args[1], args[2], cmd)
		},
	}
}

func moveFile(opts *RootOptions, url, old, new string, cmd *cobra.Command) error {
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

	mv := api.RenameFile(res.Handle, old, new)
	if err := mv.Check(); err != nil {
		out.Error(err)
		return WrapExitError(ExitFailure, "mv failed", err)
	}
	var f fs.File
	if err := mv.Unmarshal(&f); err != nil {
		return err
	}
	return out.Success(f.Path())
}
