package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stregato/owndata/internal/config"
	"github.com/stregato/owndata/internal/core"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Settings string // settings file path, default per-user location

	settings config.Settings
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the owndata CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "owndata",
		Short: "owndata - identity-keyed encrypted vaults",
		Long:  "Store, query and exchange encrypted data in group-access-controlled vaults.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			path := opts.Settings
			if path == "" {
				var err error
				if path, err = config.DefaultSettingsPath(); err != nil {
					return err
				}
			}
			settings, err := config.LoadSettings(path)
			if err != nil {
				return err
			}
			opts.settings = settings

			level := settings.Log
			if opts.Verbose {
				level = "debug"
			}
			if level != "" {
				core.SetLogLevel(level)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Settings, "settings", "", "settings file (default per-user location)")

	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewGroupsCommand(opts))
	cmd.AddCommand(NewPutCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewLsCommand(opts))
	cmd.AddCommand(NewRmCommand(opts))
	cmd.AddCommand(NewMvCommand(opts))
	cmd.AddCommand(NewSayCommand(opts))
	cmd.AddCommand(NewListenCommand(opts))
	cmd.AddCommand(NewSQLCommand(opts))
	cmd.AddCommand(NewIDCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
