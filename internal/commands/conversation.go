package commands

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/h2non/filetype"
	"github.com/spf13/cobra"

	"nexus/internal/chat"
	"nexus/internal/content"
	"nexus/internal/models"
)

func when(ms int64) string {
	if ms == 0 {
		return "never"
	}
	return humanize.Time(time.UnixMilli(ms))
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <id>",
		Short: "Open a conversation with an account",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			id := args[0]
			if _, ok := a.store.Lookup(id); !ok {
				id = content.NormalizeAccountID(id)
			}
			c, created, err := a.engine.StartByID(cmd.Context(), id)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "Conversation with %s started\n", c.Name)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Conversation with %s is already open\n", c.Name)
			}
			return nil
		}),
	}
}

// imageDataURI reads an image file and encodes it as a data URI.
func imageDataURI(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	kind, err := filetype.Match(b)
	if err != nil || !filetype.IsImage(b) {
		return "", fmt.Errorf("%s: %w", path, chat.ErrNotImage)
	}
	return "data:" + kind.MIME.Value + ";base64," + base64.StdEncoding.EncodeToString(b), nil
}

func sendCmd() *cobra.Command {
	var image, replyTo string
	cmd := &cobra.Command{
		Use:   "send <id> [text...]",
		Short: "Send a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			s := chat.Send{
				ChatID: args[0],
				Text:   strings.Join(args[1:], " "),
			}
			if image != "" {
				uri, err := imageDataURI(image)
				if err != nil {
					return err
				}
				s.Text, s.Type = uri, models.MessageTypeImage
			}
			if replyTo != "" {
				c, err := a.engine.Conversation(s.ChatID)
				if err != nil {
					return err
				}
				i := c.MessageIndex(replyTo)
				if i < 0 {
					return fmt.Errorf("message %s: %w", replyTo, models.ErrNotFound)
				}
				s.ReplyTo = &c.Messages[i]
			}

			m, err := a.engine.Send(cmd.Context(), s)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %s\n", m.ID)

			// Replies from an assistant arrive in the background.
			a.engine.Wait()
			c, err := a.engine.Conversation(s.ChatID)
			if err != nil {
				return err
			}
			if c.IsAI && len(c.Messages) > 0 {
				if last := c.Messages[len(c.Messages)-1]; last.Sender == models.SenderThem {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", c.Name, last.Text)
				}
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&image, "image", "", "send the image at this path instead of text")
	cmd.Flags().StringVar(&replyTo, "reply", "", "id of the message to reply to")
	return cmd
}

func chatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chats",
		Short: "List conversations, most recent first",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			chats, err := a.engine.Conversations()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, c := range models.SortByRecent(chats) {
				unread := ""
				if c.UnreadCount > 0 {
					unread = fmt.Sprintf(" (%d unread)", c.UnreadCount)
				}
				fmt.Fprintf(out, "%-16s %-20s %-14s %s%s\n", c.ID, c.Name, when(c.LastMessageTime), c.LastMessage, unread)
			}
			return nil
		}),
	}
}

func showCmd() *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print the messages of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			me, err := a.store.RequireCurrentUser()
			if err != nil {
				return err
			}
			c, err := a.engine.Conversation(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", c.Name, c.ID)
			for _, m := range c.Search(search) {
				if m.Type == models.MessageTypeSystem {
					fmt.Fprintf(out, "  -- %s --\n", m.Text)
					continue
				}
				author := c.Name
				if m.Sender == models.SenderMe {
					author = me.Name
				}
				line := fmt.Sprintf("  [%s] %s %s: %s", m.ID, when(m.Timestamp), author, models.PreviewText(m))
				if m.ReplyToText != "" {
					line += fmt.Sprintf(" (re: %q)", m.ReplyToText)
				}
				if m.Reaction != "" {
					line += " " + m.Reaction
				}
				if m.Sender == models.SenderMe {
					line += " · " + string(m.Status)
				}
				fmt.Fprintln(out, line)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&search, "search", "", "only show messages containing this text")
	return cmd
}

func readCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <id>",
		Short: "Mark a conversation as read",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			return a.engine.Apply(cmd.Context(), chat.MarkRead{ChatID: args[0]})
		}),
	}
}

func reactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "react <id> <message-id> [emoji]",
		Short: "React to a message; without an emoji the reaction is cleared",
		Args:  cobra.RangeArgs(2, 3),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			r := chat.React{ChatID: args[0], MessageID: args[1]}
			if len(args) == 3 {
				r.Emoji = args[2]
			}
			return a.engine.Apply(cmd.Context(), r)
		}),
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id> <message-id>",
		Short: "Delete a message from your copy of a conversation",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			return a.engine.Apply(cmd.Context(), chat.Delete{ChatID: args[0], MessageID: args[1]})
		}),
	}
}

func exportCmd() *cobra.Command {
	var (
		output string
		md     bool
	)
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a conversation as HTML or markdown",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			me, err := a.store.RequireCurrentUser()
			if err != nil {
				return err
			}
			c, err := a.engine.Conversation(args[0])
			if err != nil {
				return err
			}

			var doc string
			if md {
				doc = content.TranscriptMarkdown(c, me.Name)
			} else if doc, err = content.RenderTranscript(c, me.Name); err != nil {
				return err
			}

			if output == "" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), doc)
				return err
			}
			return os.WriteFile(output, []byte(doc), 0o644)
		}),
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	cmd.Flags().BoolVar(&md, "markdown", false, "export markdown instead of HTML")
	return cmd
}
