package ui

import (
	"sort"

	"github.com/charmbracelet/lipgloss"
)

type palette struct {
	Text      lipgloss.Color
	Muted     lipgloss.Color
	Accent    lipgloss.Color
	AccentAlt lipgloss.Color
	Border    lipgloss.Color
	Success   lipgloss.Color
	Warning   lipgloss.Color
	Error     lipgloss.Color
}

var palettes = map[string]palette{
	"catppuccin": {
		Text:      lipgloss.Color("#cdd6f4"),
		Muted:     lipgloss.Color("#a6adc8"),
		Accent:    lipgloss.Color("#cba6f7"),
		AccentAlt: lipgloss.Color("#89b4fa"),
		Border:    lipgloss.Color("#585b70"),
		Success:   lipgloss.Color("#94e2d5"),
		Warning:   lipgloss.Color("#f9e2af"),
		Error:     lipgloss.Color("#f38ba8"),
	},
	"dracula": {
		Text:      lipgloss.Color("#f8f8f2"),
		Muted:     lipgloss.Color("#6272a4"),
		Accent:    lipgloss.Color("#ff79c6"),
		AccentAlt: lipgloss.Color("#bd93f9"),
		Border:    lipgloss.Color("#44475a"),
		Success:   lipgloss.Color("#50fa7b"),
		Warning:   lipgloss.Color("#f1fa8c"),
		Error:     lipgloss.Color("#ff5555"),
	},
	"gruvbox": {
		Text:      lipgloss.Color("#ebdbb2"),
		Muted:     lipgloss.Color("#a89984"),
		Accent:    lipgloss.Color("#fabd2f"),
		AccentAlt: lipgloss.Color("#83a598"),
		Border:    lipgloss.Color("#665c54"),
		Success:   lipgloss.Color("#b8bb26"),
		Warning:   lipgloss.Color("#fe8019"),
		Error:     lipgloss.Color("#fb4934"),
	},
	"solarized_dark": {
		Text:      lipgloss.Color("#fdf6e3"),
		Muted:     lipgloss.Color("#93a1a1"),
		Accent:    lipgloss.Color("#b58900"),
		AccentAlt: lipgloss.Color("#268bd2"),
		Border:    lipgloss.Color("#586e75"),
		Success:   lipgloss.Color("#859900"),
		Warning:   lipgloss.Color("#cb4b16"),
		Error:     lipgloss.Color("#dc322f"),
	},
}

func paletteFor(name string) palette {
	if p, ok := palettes[name]; ok {
		return p
	}
	return palettes["catppuccin"]
}

func themeNames() []string {
	names := make([]string, 0, len(palettes))
	for k := range palettes {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func nextThemeName(current string, step int) string {
	names := themeNames()
	idx := 0
	for i, name := range names {
		if name == current {
			idx = i
			break
		}
	}
	idx = (idx + step) % len(names)
	if idx < 0 {
		idx += len(names)
	}
	return names[idx]
}

// styles are the lipgloss styles derived from one palette.
type styles struct {
	title    lipgloss.Style
	subtitle lipgloss.Style
	muted    lipgloss.Style
	accent   lipgloss.Style
	selected lipgloss.Style
	success  lipgloss.Style
	warning  lipgloss.Style
	errText  lipgloss.Style
	panel    lipgloss.Style
	bar      lipgloss.Style
}

func newStyles(theme string) styles {
	p := paletteFor(theme)
	return styles{
		title:    lipgloss.NewStyle().Bold(true).Foreground(p.Accent),
		subtitle: lipgloss.NewStyle().Foreground(p.AccentAlt),
		muted:    lipgloss.NewStyle().Foreground(p.Muted),
		accent:   lipgloss.NewStyle().Foreground(p.Accent),
		selected: lipgloss.NewStyle().Bold(true).Foreground(p.Text).Background(p.Border),
		success:  lipgloss.NewStyle().Foreground(p.Success),
		warning:  lipgloss.NewStyle().Foreground(p.Warning),
		errText:  lipgloss.NewStyle().Foreground(p.Error),
		panel:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(p.Border).Padding(1, 2),
		bar:      lipgloss.NewStyle().Foreground(p.Muted),
	}
}
