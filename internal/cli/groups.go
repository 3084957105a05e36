package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stregato/owndata/internal/core"
	"github.com/stregato/owndata/internal/security"
	"github.com/stregato/owndata/internal/vault"
)

// GroupsOptions holds flags for the groups command.
type GroupsOptions struct {
	*RootOptions
	Group string
}

// NewGroupsCommand creates the groups command with its subcommands.
func NewGroupsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GroupsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "groups",
		Short: "Inspect and change vault group membership",
	}

	list := &cobra.Command{
		Use:           "list <url>",
		Short:         "List groups and their members",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listGroups(opts, args[0], cmd)
		},
	}

	grant := &cobra.Command{
		Use:           "grant <url> <user>...",
		Short:         "Add users to a group",
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return changeGroup(opts, args[0], vault.Grant, args[1:], cmd)
		},
	}
	grant.Flags().StringVar(&opts.Group, "group", string(vault.UserGroup), "target group")

	revoke := &cobra.Command{
		Use:   "revoke <url> <user>...",
		Short: "Remove users from a group",
		Long: `Remove users from a group.

Removal cuts a new key epoch: content written afterwards is unreadable
to the removed users. The last administrator cannot be removed.`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return changeGroup(opts, args[0], vault.Revoke, args[1:], cmd)
		},
	}
	revoke.Flags().StringVar(&opts.Group, "group", string(vault.UserGroup), "target group")

	cmd.AddCommand(list, grant, revoke)
	return cmd
}

func listGroups(opts *GroupsOptions, url string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	api, h, cleanup, err := opts.session(url)
	if err != nil {
		out.Error(err)
		return WrapExitError(ExitFailure, "cannot open vault", err)
	}
	defer cleanup()

	res := api.GetGroups(h)
	if err := res.Check(); err != nil {
		out.Error(err)
		return WrapExitError(ExitFailure, "cannot read groups", err)
	}

	if opts.Format == "json" {
		var groups map[string]map[string]bool
		if err := res.Unmarshal(&groups); err != nil {
			return err
		}
		return out.Success(groups)
	}

	var groups map[string]core.Set[string]
	if err := res.Unmarshal(&groups); err != nil {
		return err
	}
	var lines []string
	for _, name := range core.SortedStrings(core.NewSet(core.Keys(groups)...)) {
		members := make([]string, 0, len(groups[name]))
		for _, m := range core.SortedStrings(groups[name]) {
			members = append(members, security.ID(m).Nick())
		}
		lines = append(lines, fmt.Sprintf("%s: %s", name, strings.Join(members, ", ")))
	}
	return out.Success(strings.Join(lines, "\n"))
}

func changeGroup(opts *GroupsOptions, url string, change vault.Change, users []string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	api, h, cleanup, err := opts.session(url)
	if err != nil {
		out.Error(err)
		return WrapExitError(ExitFailure, "cannot open vault", err)
	}
	defer cleanup()

	res := api.UpdateGroup(h, opts.Group, change, users)
	if err := res.Check(); err != nil {
		out.Error(err)
		return WrapExitError(ExitFailure, "group update failed", err)
	}
	return out.Success("ok")
}
