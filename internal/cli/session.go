package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/stregato/owndata/internal/config"
	"github.com/stregato/owndata/internal/envelope"
)

// formatter builds the output formatter for one command invocation.
func (opts *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}
}

// openAPI opens the local catalog and the stored identity.
func (opts *RootOptions) openAPI() (*envelope.API, error) {
	dbPath := opts.settings.DB
	if dbPath == "" {
		var err error
		if dbPath, err = config.DefaultDBPath(); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, err
		}
	}
	api, err := envelope.New(dbPath, opts.settings.Nick)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "cannot open catalog", err)
	}
	return api, nil
}

// resolveURL expands a settings alias into a full store URL.
func (opts *RootOptions) resolveURL(url string) string {
	if full, ok := opts.settings.Aliases[url]; ok {
		return full
	}
	return url
}

// session opens the API and a vault in one step; cleanup closes both.
func (opts *RootOptions) session(url string) (*envelope.API, envelope.Handle, func(), error) {
	api, err := opts.openAPI()
	if err != nil {
		return nil, 0, nil, err
	}
	res := api.OpenVault(opts.resolveURL(url))
	if err := res.Check(); err != nil {
		api.Close()
		return nil, 0, nil, err
	}
	h := res.Handle
	cleanup := func() {
		api.CloseVault(h)
		api.Close()
	}
	return api, h, cleanup, nil
}
