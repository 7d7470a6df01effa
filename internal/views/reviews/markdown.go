package reviews

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aiden-platform/aiden-watch/internal/client"
	"github.com/charmbracelet/glamour"
)

// summaryKey holds agent-authored markdown and is rendered verbatim.
const summaryKey = "summary"

// Markdown renders a review and its content snapshot as a markdown
// document.
func Markdown(r client.Review) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s review\n\n", strings.ReplaceAll(r.ReviewType, "_", " "))
	fmt.Fprintf(&b, "*%s* · created %s", r.Status, r.CreatedAt.Local().Format("2006-01-02 15:04"))
	if r.DeadlineAt != nil {
		fmt.Fprintf(&b, " · due %s", r.DeadlineAt.Local().Format("2006-01-02 15:04"))
	}
	b.WriteString("\n\n")

	if s, ok := r.ContentSnapshot[summaryKey].(string); ok && s != "" {
		b.WriteString(strings.TrimSpace(s))
		b.WriteString("\n\n")
	}

	keys := make([]string, 0, len(r.ContentSnapshot))
	for k := range r.ContentSnapshot {
		if k != summaryKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch v := r.ContentSnapshot[k].(type) {
		case string, float64, bool, nil:
			fmt.Fprintf(&b, "**%s**: %v\n\n", k, v)
		case []any:
			fmt.Fprintf(&b, "**%s**\n\n", k)
			for _, item := range v {
				fmt.Fprintf(&b, "- %s\n", inline(item))
			}
			b.WriteString("\n")
		default:
			fmt.Fprintf(&b, "**%s**\n\n```json\n%s\n```\n\n", k, indent(v))
		}
	}
	return b.String()
}

func inline(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return "`" + string(data) + "`"
	default:
		return fmt.Sprint(v)
	}
}

func indent(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// Render formats markdown for a terminal of the given width. It falls back
// to the raw text when the renderer fails.
func Render(md string, width int) string {
	if width < 20 {
		width = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}
