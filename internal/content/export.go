package content

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"nexus/internal/models"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// TranscriptMarkdown renders a conversation as markdown. ownerName labels
// the owning account's own messages.
func TranscriptMarkdown(chat models.Chat, ownerName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", chat.Name)
	for _, m := range chat.Messages {
		if m.Type == models.MessageTypeSystem {
			fmt.Fprintf(&b, "*%s*\n\n", m.Text)
			continue
		}
		author := chat.Name
		if m.Sender == models.SenderMe {
			author = ownerName
		}
		fmt.Fprintf(&b, "**%s** · %s\n", author, time.UnixMilli(m.Timestamp).UTC().Format("2006-01-02 15:04"))
		if m.ReplyToText != "" {
			fmt.Fprintf(&b, "> %s\n\n", m.ReplyToText)
		}
		switch m.Type {
		case models.MessageTypeImage:
			b.WriteString("[Image]")
		case models.MessageTypeAudio:
			b.WriteString(models.PreviewAudio)
		default:
			b.WriteString(m.Text)
		}
		if m.Reaction != "" {
			fmt.Fprintf(&b, " (%s)", m.Reaction)
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

// RenderTranscript renders a conversation to sanitized HTML.
func RenderTranscript(chat models.Chat, ownerName string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(TranscriptMarkdown(chat, ownerName)), &buf); err != nil {
		return "", fmt.Errorf("render transcript: %w", err)
	}
	return policy.Sanitize(buf.String()), nil
}
