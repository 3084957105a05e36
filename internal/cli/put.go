package cli

import (
	"github.com/spf13/cobra"

	"github.com/stregato/owndata/internal/core"
	"github.com/stregato/owndata/internal/fs"
)

// PutOptions holds flags for the put command.
type PutOptions struct {
	*RootOptions
	Group string
	Tags  []string
	Async bool
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PutOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "put <url> <src> <dest>",
		Short: "Encrypt and store a local file in a vault",
		Long: `Encrypt and store a local file in a vault.

The file is sealed under the active key of the target group; only
current and later members of that group can read it.

Example:
  owndata put file:///tmp/myvault notes.txt notes/today --group usr`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return putFile(opts, args[0], args[1], args[2], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Group, "group", "usr", "target group")
	cmd.Flags().StringSliceVar(&opts.Tags, "tag", nil, "searchable tags")
	cmd.Flags().BoolVar(&opts.Async, "async", false, "upload in background")

	return cmd
}

func putFile(opts *PutOptions, url, src, dest string, cmd *cobra.Command) error {
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

	put := api.PutFile(res.Handle, dest, src, opts.Group, fs.PutOptions{
		Tags:  core.NewSet(opts.Tags...),
		Async: opts.Async,
	})
	if err := put.Check(); err != nil {
		out.Error(err)
		return WrapExitError(ExitFailure, "put failed", err)
	}
	var f fs.File
	if err := put.Unmarshal(&f); err != nil {
		return err
	}
	out.VerboseLog("stored %s as %s", src, f.ID)
	return out.Success(f.Path())
}
