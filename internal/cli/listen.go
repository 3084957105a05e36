package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stregato/owndata/internal/comm"
	"github.com/stregato/owndata/internal/core"
)

// ListenOptions holds flags for the listen command.
type ListenOptions struct {
	*RootOptions
	Limit  int
	Rewind string
}

// NewListenCommand creates the listen command.
func NewListenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "listen <url> <dest>",
		Short: "Receive pending messages on a vault channel",
		Long: `Receive pending messages on a vault channel.

The destination is either a group name or your own identity for direct
messages. Each call returns only what you have not consumed yet; use
--rewind to re-deliver from an earlier message id.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listenMessages(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "messages per call, 0 for all pending")
	cmd.Flags().StringVar(&opts.Rewind, "rewind", "", "re-deliver messages above this cursor id")

	return cmd
}

func listenMessages(opts *ListenOptions, url, dest string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
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

	if dest == "me" {
		dest = api.Identity.Id.String()
	}

	if opts.Rewind != "" {
		id, err := core.ParseID(opts.Rewind)
		if err != nil {
			out.Error(err)
			return WrapExitError(ExitCommandError, "invalid message id", err)
		}
		if err := api.Rewind(res.Handle, dest, id).Check(); err != nil {
			out.Error(err)
			return WrapExitError(ExitFailure, "rewind failed", err)
		}
	}

	rcv := api.Receive(res.Handle, dest, comm.ReceiveOptions{Limit: opts.Limit})
	if err := rcv.Check(); err != nil {
		out.Error(err)
		return WrapExitError(ExitFailure, "receive failed", err)
	}
	var msgs []comm.Message
	if err := rcv.Unmarshal(&msgs); err != nil {
		return err
	}
	if opts.Format == "json" {
		return out.Success(msgs)
	}

	var lines []string
	for _, m := range msgs {
		line := fmt.Sprintf("%s %s: %s", m.SentAt.Format("15:04:05"), m.Sender.Nick(), m.Text)
		if m.File != "" {
			line += fmt.Sprintf(" [%s]", m.File)
		}
		lines = append(lines, line)
	}
	return out.Success(strings.Join(lines, "\n"))
}
