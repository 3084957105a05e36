package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stregato/owndata/internal/fs"
)

// LsOptions holds flags for the ls command.
type LsOptions struct {
	*RootOptions
	OrderBy string
	Reverse bool
	Limit   int
	Offset  int
	Prefix  string
	Suffix  string
	Tag     string
	Dirs    bool
}

// NewLsCommand creates the ls command.
func NewLsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "ls <url> [dir]",
		Short:         "List the entries of a vault directory",
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) > 1 {
				dir = args[1]
			}
			return listFiles(opts, args[0], dir, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.OrderBy, "order", "", "order column: name, modTime, size or id")
	cmd.Flags().BoolVar(&opts.Reverse, "reverse", false, "descending order")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "page size, 0 for all")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "rows to skip")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "name prefix filter")
	cmd.Flags().StringVar(&opts.Suffix, "suffix", "", "name suffix filter")
	cmd.Flags().StringVar(&opts.Tag, "tag", "", "tag filter")
	cmd.Flags().BoolVar(&opts.Dirs, "dirs", false, "list subdirectories instead of entries")

	return cmd
}

func listFiles(opts *LsOptions, url, dir string, cmd *cobra.Command) error {
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

	ls := api.ListDir(res.Handle, dir, fs.ListOptions{
		OrderBy:    opts.OrderBy,
		Reverse:    opts.Reverse,
		Limit:      opts.Limit,
		Offset:     opts.Offset,
		Prefix:     opts.Prefix,
		Suffix:     opts.Suffix,
		Tag:        opts.Tag,
		OnlyFolder: opts.Dirs,
	})
	if err := ls.Check(); err != nil {
		out.Error(err)
		return WrapExitError(ExitFailure, "list failed", err)
	}

	var files []fs.File
	if err := ls.Unmarshal(&files); err != nil {
		return err
	}
	if opts.Format == "json" {
		return out.Success(files)
	}

	var lines []string
	for _, f := range files {
		if f.IsDir {
			lines = append(lines, f.Name+"/")
			continue
		}
		lines = append(lines, fmt.Sprintf("%10d  %s  %s", f.Size, f.ModTime.Format("2006-01-02 15:04"), f.Name))
	}
	return out.Success(strings.Join(lines, "\n"))
}
