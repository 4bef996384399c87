package export

import (
	"fmt"
	"io"
	"strings"
)

// MarkdownExporter writes a readable Markdown transcript.
type MarkdownExporter struct{}

func (e *MarkdownExporter) Export(t *Transcript, w io.Writer) error {
	title := t.Name
	if title == "" {
		title = "Conversation " + t.ConversationID
	}
	_, _ = fmt.Fprintf(w, "# %s\n\n", title)
	if t.Kind != "" {
		_, _ = fmt.Fprintf(w, "**Kind:** %s  \n", t.Kind)
	}
	_, _ = fmt.Fprintf(w, "**Messages:** %d  \n", len(t.Messages))
	_, _ = fmt.Fprintf(w, "**Exported:** %s\n\n", t.ExportedAt.Format("2006-01-02 15:04 MST"))
	_, _ = fmt.Fprintf(w, "---\n\n")

	for _, m := range t.Messages {
		sender := m.SenderName
		if sender == "" {
			sender = "unknown"
		}
		stamp := ""
		if m.Timestamp != "" {
			stamp = fmt.Sprintf(" (%s)", m.Timestamp)
		}
		if m.IsOwn && m.Status != "" {
			stamp += fmt.Sprintf(" _%s_", m.Status)
		}
		_, err := fmt.Fprintf(w, "**%s:**%s\n\n%s\n\n", escapeMarkdown(sender), stamp, escapeMarkdown(m.Body))
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *MarkdownExporter) Extension() string {
	return "md"
}

func escapeMarkdown(text string) string {
	text = strings.ReplaceAll(text, "**", "\\*\\*")
	return strings.ReplaceAll(text, "__", "\\_\\_")
}
