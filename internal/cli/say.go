package cli

import (
	"github.com/spf13/cobra"

	"github.com/stregato/owndata/internal/comm"
	"github.com/stregato/owndata/internal/core"
	"github.com/stregato/owndata/internal/envelope"
)

// SayOptions holds flags for the say command.
type SayOptions struct {
	*RootOptions
	To    string
	Group string
	File  string
}

// NewSayCommand creates the say command.
func NewSayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "say <url> <text>",
		Short: "Send a message on a vault channel",
		Long: `Send a message on a vault channel.

With --to the message goes to a single member, sealed under a key only
the two of you can derive. With --group it goes to every member of the
group.

Example:
  owndata say file:///tmp/myvault "release is out" --group usr`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return sayMessage(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.To, "to", "", "recipient identity for a direct message")
	cmd.Flags().StringVar(&opts.Group, "group", "", "recipient group for a broadcast")
	cmd.Flags().StringVar(&opts.File, "file", "", "attach a local file")

	return cmd
}

func sayMessage(opts *SayOptions, url, text string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	if (opts.To == "") == (opts.Group == "") {
		err := core.Errf(core.CodeQuery, "exactly one of --to and --group is required")
		out.Error(err)
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}

	api, h, cleanup, err := opts.session(url)
	if err != nil {
		out.Error(err)
		return WrapExitError(ExitFailure, "cannot open vault", err)
	}
	defer cleanup()

	res := api.OpenComm(h)
	if err := res.Check(); err != nil {
		out.Error(err)
		return WrapExitError(ExitFailure, "cannot open channel", err)
	}
	defer api.CloseComm(res.Handle)

	m := comm.Message{Text: text, File: opts.File}
	var sent envelope.Result
	if opts.To != "" {
		sent = api.Send(res.Handle, opts.To, m)
	} else {
		sent = api.Broadcast(res.Handle, opts.Group, m)
	}
	if err := sent.Check(); err != nil {
		out.Error(err)
		return WrapExitError(ExitFailure, "send failed", err)
	}
	var delivered comm.Message
	if err := sent.Unmarshal(&delivered); err != nil {
		return err
	}
	return out.Success(core.FormatID(delivered.ID))
}
