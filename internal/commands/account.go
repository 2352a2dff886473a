package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"nexus/internal/directory"
	"nexus/internal/models"
)

func printAccount(cmd *cobra.Command, a models.Account) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:    %s\n", a.ID)
	fmt.Fprintf(out, "Name:  %s\n", a.Name)
	if a.Email != "" {
		fmt.Fprintf(out, "Email: %s\n", a.Email)
	}
	fmt.Fprintf(out, "Role:  %s\n", a.Role)
	if a.Bio != "" {
		fmt.Fprintf(out, "Bio:   %s\n", a.Bio)
	}
	if a.Banned() && a.BanDetails != nil {
		fmt.Fprintf(out, "Banned: %s (%s)\n", a.BanDetails.Reason, a.BanDetails.Duration)
	}
}

func signupCmd() *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			acc, err := a.directory.Signup(name, email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed up as %s (%s)\n", acc.Name, acc.ID)
			return nil
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	return cmd
}

func loginCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <email-or-id>",
		Short: "Sign in by email or account id",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			acc, err := a.directory.Login(args[0], password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", acc.Name, acc.ID)
			return nil
		}),
	}
	cmd.Flags().StringVar(&password, "password", "", "password")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := a.directory.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		}),
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in account",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			me, err := a.store.RequireCurrentUser()
			if err != nil {
				return err
			}
			printAccount(cmd, me)
			return nil
		}),
	}
}

func usersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users [query]",
		Short: "Search the directory by name or id",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			me, err := a.store.RequireCurrentUser()
			if err != nil {
				return err
			}
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			for _, u := range a.directory.Search(me, query) {
				label := string(u.Role)
				if u.IsAI {
					label = "ai"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %-24s %s\n", u.ID, u.Name, label)
			}
			return nil
		}),
	}
}

func profileCmd() *cobra.Command {
	var (
		name, bio, avatar, theme, color string
		receipts, notifications, sound  bool
	)
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Update the signed in account's profile and settings",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			me, err := a.store.RequireCurrentUser()
			if err != nil {
				return err
			}
			var u directory.ProfileUpdate
			flags := cmd.Flags()
			if flags.Changed("name") {
				u.Name = &name
			}
			if flags.Changed("bio") {
				u.Bio = &bio
			}
			if flags.Changed("avatar") {
				u.Avatar = &avatar
			}
			if flags.Changed("theme") {
				t := models.Theme(theme)
				u.Theme = &t
			}
			if flags.Changed("color") {
				u.CustomColor = &color
			}
			if flags.Changed("read-receipts") || flags.Changed("notifications") || flags.Changed("sound") {
				s := me.Settings
				if flags.Changed("read-receipts") {
					s.ReadReceipts = receipts
				}
				if flags.Changed("notifications") {
					s.Notifications = notifications
				}
				if flags.Changed("sound") {
					s.Sound = sound
				}
				u.Settings = &s
			}

			acc, err := a.directory.UpdateProfile(u)
			if err != nil {
				return err
			}
			printAccount(cmd, acc)
			return nil
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&bio, "bio", "", "short biography")
	cmd.Flags().StringVar(&avatar, "avatar", "", "avatar URL")
	cmd.Flags().StringVar(&theme, "theme", "", "cosmic, ocean, sunset or custom")
	cmd.Flags().StringVar(&color, "color", "", "custom theme color")
	cmd.Flags().BoolVar(&receipts, "read-receipts", true, "send read receipts")
	cmd.Flags().BoolVar(&notifications, "notifications", true, "enable notifications")
	cmd.Flags().BoolVar(&sound, "sound", true, "enable sounds")
	return cmd
}

func changeIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "change-id <new-id>",
		Short: "Change the signed in account's id",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			acc, err := a.directory.ChangeID(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Your id is now %s\n", acc.ID)
			return nil
		}),
	}
}

func contactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contact",
		Short: "Manage saved contacts",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <id> [display name]",
			Short: "Save an account as a contact",
			Args:  cobra.MinimumNArgs(1),
			RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
				_, err := a.directory.AddContact(args[0], strings.Join(args[1:], " "))
				return err
			}),
		},
		&cobra.Command{
			Use:   "rename <id> <display name>",
			Short: "Rename a saved contact",
			Args:  cobra.MinimumNArgs(2),
			RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
				_, err := a.directory.RenameContact(args[0], strings.Join(args[1:], " "))
				return err
			}),
		},
		&cobra.Command{
			Use:   "remove <id>",
			Short: "Forget a saved contact",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
				_, err := a.directory.RemoveContact(args[0])
				return err
			}),
		},
		&cobra.Command{
			Use:   "list",
			Short: "List saved contacts",
			Args:  cobra.NoArgs,
			RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
				me, err := a.store.RequireCurrentUser()
				if err != nil {
					return err
				}
				for _, c := range me.SavedContacts {
					fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", c.UserID, c.DisplayName)
				}
				return nil
			}),
		},
	)
	return cmd
}
