package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"nexus/internal/directory"
	"nexus/internal/models"
)

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Moderate accounts",
	}

	var duration string
	ban := &cobra.Command{
		Use:   "ban <id> <reason...>",
		Short: "Ban an account",
		Args:  cobra.MinimumNArgs(2),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := a.directory.Ban(args[0], strings.Join(args[1:], " "), duration); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s banned (%s)\n", args[0], duration)
			return nil
		}),
	}
	ban.Flags().StringVar(&duration, "duration", "24h", "1h, 24h, 7d or permanent")

	cmd.AddCommand(
		ban,
		&cobra.Command{
			Use:   "unban <id>",
			Short: "Lift a ban",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
				return a.directory.Unban(args[0])
			}),
		},
		&cobra.Command{
			Use:   "role <id> <role>",
			Short: "Set an account's role",
			Args:  cobra.ExactArgs(2),
			RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
				return a.directory.SetRole(args[0], models.Role(args[1]))
			}),
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Remove an account from the directory",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
				return a.directory.Delete(args[0])
			}),
		},
		&cobra.Command{
			Use:   "accounts",
			Short: "List every account in the directory",
			Args:  cobra.NoArgs,
			RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
				me, err := a.store.RequireCurrentUser()
				if err != nil {
					return err
				}
				if !me.Role.AtLeast(models.RoleAdmin) {
					return directory.ErrForbidden
				}
				stored := make(map[string]bool)
				for _, id := range a.store.Partitions() {
					stored[id] = true
				}
				for _, u := range a.directory.Accounts() {
					status := u.Status
					if status == "" {
						status = "-"
					}
					chats := "no chats"
					if stored[u.ID] {
						chats = "has chats"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%-16s %-24s %-12s %-12s %-8s %s\n", u.ID, u.Name, u.Role, u.Visibility, status, chats)
				}
				return nil
			}),
		},
	)
	return cmd
}
