package snapshot

import (
	"strings"

	"github.com/hpungsan/synapse/internal/capture"
)

// csvHeader is the fixed column set of a flat export.
var csvHeader = []string{"Timestamp", "URL", "Selected Text", "Page Content", "Type", "Title"}

// TimestampLayout formats CreatedAt in the Timestamp column (UTC, millisecond precision).
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// escapeField quotes s when it contains a comma, double quote, or line break,
// doubling any inner quotes. Other values pass through unchanged.
func escapeField(s string) string {
	if !strings.ContainsAny(s, ",\"\n\r") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// csvRow flattens r into the export columns.
// Content lands in Selected Text or Page Content depending on kind.
func csvRow(r *capture.Record) []string {
	var selected, page string
	switch r.Kind {
	case capture.KindSelectedText:
		selected = r.Content
	case capture.KindPage:
		page = r.Content
	}
	return []string{
		r.CreatedAt.UTC().Format(TimestampLayout),
		r.URL,
		selected,
		page,
		string(r.Kind),
		r.Title,
	}
}

// encodeCSV renders the header plus one line per record, joined by "\n".
func encodeCSV(records []capture.Record) []byte {
	var b strings.Builder
	writeLine(&b, csvHeader)
	for i := range records {
		b.WriteByte('\n')
		writeLine(&b, csvRow(&records[i]))
	}
	return []byte(b.String())
}

func writeLine(b *strings.Builder, fields []string) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(escapeField(f))
	}
}
