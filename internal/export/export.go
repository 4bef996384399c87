// Package export writes conversation transcripts to files.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/sirbrams/campuschat"
)

// Transcript is a conversation and its messages, oldest first.
type Transcript struct {
	ConversationID string               `json:"conversation_id" yaml:"conversation_id"`
	Name           string               `json:"name" yaml:"name"`
	Kind           string               `json:"kind" yaml:"kind"`
	ExportedAt     time.Time            `json:"exported_at" yaml:"exported_at"`
	Messages       []campuschat.Message `json:"messages" yaml:"messages"`
}

// NewTranscript builds a transcript of conv from msgs.
func NewTranscript(conv campuschat.Conversation, msgs []campuschat.Message) *Transcript {
	if msgs == nil {
		msgs = []campuschat.Message{}
	}
	return &Transcript{
		ConversationID: string(conv.ID),
		Name:           conv.Name,
		Kind:           string(conv.Kind),
		ExportedAt:     time.Now().UTC(),
		Messages:       msgs,
	}
}

// Exporter defines the interface for all export formats.
type Exporter interface {
	Export(t *Transcript, w io.Writer) error
	Extension() string
}

// NewExporter creates a new exporter based on format.
func NewExporter(format string) (Exporter, error) {
	switch format {
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: json, yaml, md)", format)
	}
}
