// Package commands is the nexus command line: each command attaches one tab
// to the configured origin, performs a single operation and detaches.
package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

// NewRoot builds the nexus command tree.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "nexus",
		Short:         "Local-first messaging client",
		Long:          "nexus keeps every account's conversations in one local store and delivers messages by writing into the recipient's mailbox.",
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(
		signupCmd(),
		loginCmd(),
		logoutCmd(),
		whoamiCmd(),
		usersCmd(),
		profileCmd(),
		changeIDCmd(),
		contactCmd(),
		startCmd(),
		sendCmd(),
		chatsCmd(),
		showCmd(),
		readCmd(),
		reactCmd(),
		deleteCmd(),
		exportCmd(),
		adminCmd(),
		serveCmd(),
	)
	return root
}

// Execute runs the command tree with args, printing results to out.
func Execute(ctx context.Context, args []string, out io.Writer) error {
	root := NewRoot()
	root.SetArgs(args)
	root.SetOut(out)
	return root.ExecuteContext(ctx)
}

// withApp wraps a command body with opening and closing the app.
func withApp(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, a, args)
	}
}
