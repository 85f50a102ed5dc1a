package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/DaanHessen/storyloom/internal/engine"
	"gopkg.in/yaml.v3"
)

// Export formats.
const (
	FormatMarkdown = "md"
	FormatYAML     = "yaml"
)

// Export renders a story as Markdown or YAML.
func Export(st engine.Story, format string) ([]byte, error) {
	switch format {
	case FormatMarkdown, "markdown", "":
		return []byte(exportMarkdown(st)), nil
	case FormatYAML, "yml":
		b, err := yaml.Marshal(st)
		if err != nil {
			return nil, wrap(err, "encode yaml")
		}
		return b, nil
	}
	return nil, fmt.Errorf("unknown export format %q", format)
}

func exportMarkdown(st engine.Story) string {
	var b strings.Builder
	title := st.Title
	if title == "" {
		title = "Untitled story"
	}
	b.WriteString("# " + title + "\n\n")
	b.WriteString("> " + st.Premise + "\n\n")
	fmt.Fprintf(&b, "Tone: %s · Audience: %s · Status: %s · Chapter %d\n\n", st.Tone, st.AgeRating, st.Status, st.Chapter)
	for _, p := range st.Pages {
		b.WriteString("## " + p.Label + "\n\n")
		b.WriteString(p.Text + "\n\n")
		if p.Choice != "" {
			b.WriteString("*Chosen: " + p.Choice + "*\n\n")
		}
	}
	if t := strings.TrimSpace(st.FullText); t != "" {
		fmt.Fprintf(&b, "## Chapter %d · Current page\n\n%s\n\n", st.Chapter, t)
		for i, c := range st.PendingChoices {
			fmt.Fprintf(&b, "%d. %s\n", i+1, c)
		}
	}
	return b.String()
}

// WriteExport writes st under dir and returns the file path.
func WriteExport(dir string, st engine.Story, format string) (string, error) {
	body, err := Export(st, format)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", wrap(err, "create export dir")
	}
	ext := FormatMarkdown
	if format == FormatYAML || format == "yml" {
		ext = FormatYAML
	}
	path := filepath.Join(dir, fmt.Sprintf("story_%s.%s", st.ID, ext))
	if err := os.WriteFile(path, body, 0o600); err != nil {
		return "", wrap(err, "write export")
	}
	return path, nil
}
