package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stregato/owndata/internal/db"
	"github.com/stregato/owndata/internal/envelope"
	"github.com/stregato/owndata/internal/vault"
)

// SQLOptions holds flags for the sql command.
type SQLOptions struct {
	*RootOptions
	Group string
	Args  string
	DDL   string
}

// NewSQLCommand creates the sql command.
func NewSQLCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SQLOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sql <url> <statement>",
		Short: "Run a statement on the vault's structured store",
		Long: `Run a statement on the vault's structured store.

SELECT statements read the local replica after pulling remote
transactions. Anything else executes as a replicated transaction
visible to every member of the group.

Example:
  owndata sql file:///tmp/myvault "SELECT * FROM todos" --group usr`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSQL(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Group, "group", string(vault.UserGroup), "target group")
	cmd.Flags().StringVar(&opts.Args, "args", "{}", "statement arguments as JSON")
	cmd.Flags().StringVar(&opts.DDL, "ddl", "", "schema file applied before the statement")

	return cmd
}

func runSQL(opts *SQLOptions, url, statement string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	var args map[string]any
	if err := json.Unmarshal([]byte(opts.Args), &args); err != nil {
		out.Error(err)
		return WrapExitError(ExitCommandError, "invalid --args JSON", err)
	}
	ddls, err := loadDDL(opts.DDL)
	if err != nil {
		out.Error(err)
		return WrapExitError(ExitCommandError, "invalid --ddl file", err)
	}

	api, h, cleanup, err := opts.session(url)
	if err != nil {
		out.Error(err)
		return WrapExitError(ExitFailure, "cannot open vault", err)
	}
	defer cleanup()

	res := api.OpenDB(h, opts.Group, ddls)
	if err := res.Check(); err != nil {
		out.Error(err)
		return WrapExitError(ExitFailure, "cannot open structured store", err)
	}
	defer api.CloseDB(res.Handle)

	if isSelect(statement) {
		return querySQL(opts, api, res.Handle, statement, args, cmd)
	}

	exec := api.Exec(res.Handle, statement, args)
	if err := exec.Check(); err != nil {
		out.Error(err)
		return WrapExitError(ExitFailure, "exec failed", err)
	}
	var affected int64
	if err := exec.Unmarshal(&affected); err != nil {
		return err
	}
	return out.Success(fmt.Sprintf("%d rows affected", affected))
}

func querySQL(opts *SQLOptions, api *envelope.API, dbh envelope.Handle, statement string, args map[string]any, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	res := api.Query(dbh, statement, args)
	if err := res.Check(); err != nil {
		out.Error(err)
		return WrapExitError(ExitFailure, "query failed", err)
	}
	defer api.CloseRows(res.Handle)

	var rows []map[string]any
	for {
		next := api.NextRow(res.Handle)
		if err := next.Check(); err != nil {
			out.Error(err)
			return WrapExitError(ExitFailure, "query failed", err)
		}
		if next.Payload == nil {
			break
		}
		var row map[string]any
		if err := next.Unmarshal(&row); err != nil {
			return err
		}
		rows = append(rows, row)
	}
	if opts.Format == "json" {
		return out.Success(rows)
	}

	var lines []string
	for _, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		lines = append(lines, string(data))
	}
	return out.Success(strings.Join(lines, "\n"))
}

// loadDDL reads a sectioned schema file into a single-version DDL set.
func loadDDL(path string) (db.DDL, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return db.DDL{1.0: string(data)}, nil
}

func isSelect(statement string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(statement)), "SELECT")
}
