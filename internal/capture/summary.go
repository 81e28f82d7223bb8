package capture

// Summary is a record without its full content.
// Used for browse operations (list, queue status) to keep responses small.
type Summary struct {
	ID    string `json:"id"`
	Kind  Kind   `json:"kind"`
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`

	// Preview is the first runes of the content.
	Preview string `json:"preview"`

	// Chars is the content length in runes.
	Chars int `json:"chars"`

	CreatedAt int64 `json:"created_at"`
	Synced    bool  `json:"synced"`
}

// ToSummary strips the content down to a preview of at most previewChars runes.
func (r *Record) ToSummary(previewChars int) Summary {
	return Summary{
		ID:        r.ID,
		Kind:      r.Kind,
		Title:     r.DisplayTitle(),
		URL:       r.URL,
		Preview:   preview(r.Content, previewChars),
		Chars:     CountChars(r.Content),
		CreatedAt: r.CreatedAt.Unix(),
		Synced:    r.Synced,
	}
}

func preview(s string, n int) string {
	if n <= 0 || CountChars(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "…"
}
