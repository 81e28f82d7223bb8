package capture

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Remote memory types.
const (
	MemoryTypeArticle = "article"
	MemoryTypeNote    = "note"
)

// MaxTags caps the number of extracted tags.
const MaxTags = 5

// RemotePayload is the body of a save-memory request.
type RemotePayload struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Type     string   `json:"type"`
	URL      string   `json:"url"`
	Metadata Metadata `json:"metadata"`
	UserID   string   `json:"userId"`
}

// NewRemotePayload maps a record onto the remote API schema.
// Pages become articles, selections become notes. Tags are extracted
// into metadata when the caller did not supply any.
func NewRemotePayload(r *Record, userID string) RemotePayload {
	title := r.Metadata.GetString(MetaTitle)
	if title == "" {
		title = r.DisplayTitle()
	}

	typ := MemoryTypeNote
	if r.Kind == KindPage {
		typ = MemoryTypeArticle
	}

	meta := r.Metadata.Clone()
	if meta == nil {
		meta = Metadata{}
	}
	if !meta.Has(MetaTags) {
		if tags := ExtractTags(r.Content, r.URL); len(tags) > 0 {
			meta[MetaTags] = List(tags...)
		}
	}

	return RemotePayload{
		Title:    title,
		Content:  r.Content,
		Type:     typ,
		URL:      r.URL,
		Metadata: meta,
		UserID:   userID,
	}
}

// tagKeywords are topic words promoted to tags when they appear in content.
var tagKeywords = []string{"react", "javascript", "python", "ai", "machine learning", "web", "design", "tutorial"}

var keywordPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(tagKeywords))
	for i, kw := range tagKeywords {
		out[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`)
	}
	return out
}()

// ExtractTags derives up to MaxTags tags: the first label of the source
// domain, then any topic keywords found in the content.
func ExtractTags(content, rawURL string) []string {
	tags := make([]string, 0, MaxTags)
	seen := make(map[string]bool)
	add := func(tag string) {
		if tag != "" && !seen[tag] && len(tags) < MaxTags {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}

	if rawURL != "" {
		if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
			host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
			add(strings.SplitN(host, ".", 2)[0])
		}
	}

	lower := strings.ToLower(content)
	for i, re := range keywordPatterns {
		if re.MatchString(lower) {
			add(tagKeywords[i])
		}
	}

	return tags
}

// CountChars returns the character count as runes (not bytes).
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}

// CountWords returns the number of whitespace-separated words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}
