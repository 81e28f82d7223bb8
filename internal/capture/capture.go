package capture

import (
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind identifies what was captured.
type Kind string

const (
	KindPage         Kind = "page"          // whole page text
	KindSelectedText Kind = "selected_text" // highlighted selection
)

// Kinds lists every valid Kind.
var Kinds = []Kind{KindPage, KindSelectedText}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseKind converts a user-supplied string into a Kind.
// "selection" and "text" are accepted as aliases for selected_text.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindPage:
		return KindPage, nil
	case KindSelectedText, "selection", "text":
		return KindSelectedText, nil
	}
	return "", fmt.Errorf("unknown capture kind %q (want page or selected_text)", s)
}

// Record is a single captured piece of content.
// A record is immutable once created except for Synced.
type Record struct {
	// ID is a ULID; lexical order equals creation order.
	ID string `json:"id"`

	Kind    Kind   `json:"kind"`
	Content string `json:"content"`

	// URL is the source page; may be empty.
	URL string `json:"url"`

	// Title comes from the page <title> or the caller.
	Title string `json:"title"`

	Metadata Metadata `json:"metadata,omitempty"`

	// CreatedAt is stamped once at creation (UTC).
	CreatedAt time.Time `json:"created_at"`

	// Synced is set only after the remote API confirmed persistence.
	Synced bool `json:"synced"`
}

// Input holds the caller-supplied fields of a new capture.
type Input struct {
	Kind     Kind
	Content  string
	URL      string
	Title    string
	Metadata Metadata
}

// New builds a Record from input, stamping ID and CreatedAt from now.
// Title falls back to metadata["title"] when not supplied.
func New(in Input, now time.Time) (*Record, error) {
	if !in.Kind.Valid() {
		return nil, fmt.Errorf("unknown capture kind %q", in.Kind)
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, fmt.Errorf("content is required")
	}

	now = now.UTC()
	id, err := ulid.New(ulid.Timestamp(now), ulid.DefaultEntropy())
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = in.Metadata.GetString(MetaTitle)
	}

	return &Record{
		ID:        id.String(),
		Kind:      in.Kind,
		Content:   normalizeNewlines(in.Content),
		URL:       strings.TrimSpace(in.URL),
		Title:     normalizeNewlines(title),
		Metadata:  in.Metadata.Clone(),
		CreatedAt: now,
	}, nil
}

var newlines = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// normalizeNewlines stores line breaks as "\n" so a CSV export reads back
// byte for byte; CSV readers fold CRLF inside quoted fields.
func normalizeNewlines(s string) string {
	if !strings.ContainsRune(s, '\r') {
		return s
	}
	return newlines.Replace(s)
}

// DisplayTitle returns the best human-readable label for the record.
func (r *Record) DisplayTitle() string {
	switch {
	case r.Title != "":
		return r.Title
	case r.URL != "":
		return r.URL
	default:
		return "Untitled"
	}
}
