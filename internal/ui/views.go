package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/DaanHessen/storyloom/internal/engine"
)

const timeLayout = "2006-01-02 15:04"

func (m model) View() string {
	var body string
	switch m.view {
	case viewNew:
		body = m.renderForm()
	case viewStory:
		body = m.renderStory()
	case viewDetails:
		body = m.renderDetails()
	case viewSettings:
		body = m.renderSettings()
	case viewHelp:
		body = m.renderHelp()
	default:
		body = m.renderList()
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.renderTopBar(), body, m.renderBottomBar())
}

func (m model) contentWidth() int {
	if m.width <= 0 {
		return 100
	}
	return m.width
}

func (m model) renderTopBar() string {
	left := "STORYLOOM"
	if m.open != nil && m.view == viewStory {
		left += " • " + displayTitle(m.open.snap)
	}
	right := m.modelName
	if m.deps.Backend != nil {
		right = m.deps.Backend.Name() + " • " + right
	}
	if !m.licensed.Load() {
		right += " • no license"
	}
	gap := m.contentWidth() - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return m.styles.title.Render(left + strings.Repeat(" ", gap) + right)
}

func (m model) renderBottomBar() string {
	var keys string
	switch m.view {
	case viewList:
		keys = "[n] new  [enter] open  [r] refresh  [d] details  [s] settings  [?] help  [q] quit"
	case viewNew:
		keys = "[tab] next field  [←/→] change  [enter] next/submit  [esc] cancel"
	case viewStory:
		keys = "[1-3] choose  [n] next chapter  [r] refresh  [←/→] pages  [end] live  [i] details  [e/y] export  [esc] back"
	case viewDetails:
		keys = "[x] delete  [esc] back"
	case viewSettings:
		keys = "[l] license  [c] clear license  [m] model  [t] theme  [esc] back"
	default:
		keys = "[esc] back"
	}
	line := ""
	switch {
	case m.err != nil:
		line = m.styles.errText.Render(errorLine(m.err))
	case m.busy:
		line = m.styles.warning.Render(m.status)
	case m.status != "":
		line = m.styles.success.Render(m.status)
	}
	return m.styles.bar.Render(keys) + "\n" + line
}

func (m model) renderList() string {
	var b strings.Builder
	b.WriteString(m.styles.subtitle.Render("Your stories") + "\n\n")
	if len(m.stories) == 0 {
		b.WriteString(m.styles.muted.Render("(no stories yet, press n to start one)") + "\n")
		return b.String()
	}
	for i, st := range m.stories {
		line := fmt.Sprintf("%-40s  CH %-2d  %-4s  %-9s  %s", truncate(displayTitle(st), 40), st.Chapter, st.Stage, st.Status, st.UpdatedAt.Local().Format(timeLayout))
		if _, stuck := engine.RepairNeeded(st); stuck {
			line += "  needs repair"
		}
		if i == m.cursor {
			b.WriteString(m.styles.selected.Render("> "+line) + "\n")
		} else {
			b.WriteString("  " + line + "\n")
		}
	}
	return b.String()
}

func (m model) renderForm() string {
	var b strings.Builder
	b.WriteString(m.styles.subtitle.Render("New story") + "\n\n")
	for i := 0; i < fieldCount; i++ {
		label := fieldLabels[i]
		if i == fieldSubmit {
			if m.form.focus == i {
				b.WriteString("\n" + m.styles.selected.Render("[ "+label+" ]") + "\n")
			} else {
				b.WriteString("\n[ " + label + " ]\n")
			}
			continue
		}
		value := m.form.valueOf(i)
		if m.form.focus == i {
			if m.form.text() != nil {
				value += "_"
			}
			b.WriteString(m.styles.accent.Render(fmt.Sprintf("> %-26s", label)) + value + "\n")
		} else {
			b.WriteString(fmt.Sprintf("  %-26s%s\n", label, value))
		}
	}
	return b.String()
}

func (m model) renderStory() string {
	o := m.open
	st := o.snap
	w := m.contentWidth()
	var b strings.Builder

	idx := o.pager.Index()
	if o.pager.AtLive() {
		b.WriteString(m.styles.subtitle.Render(fmt.Sprintf("Current page (CH %d)", st.Chapter)))
		b.WriteString(m.styles.muted.Render(fmt.Sprintf("  %s • %s", st.Stage, st.Status)) + "\n\n")
		body := strings.TrimSpace(st.FullText)
		if body == "" {
			body = "_Waiting for the story to begin..._"
		}
		b.WriteString(renderMarkdown(body, w-4) + "\n\n")
		b.WriteString(m.renderLiveFooter(st))
	} else {
		page := st.Pages[idx]
		b.WriteString(m.styles.subtitle.Render(page.Label))
		b.WriteString(m.styles.muted.Render(fmt.Sprintf("  page %d/%d • %s", idx+1, len(st.Pages), page.At.Local().Format(timeLayout))) + "\n\n")
		b.WriteString(renderMarkdown(page.Text, w-4) + "\n")
		if page.Choice != "" {
			b.WriteString("\n" + m.styles.muted.Render("Chosen: "+page.Choice) + "\n")
		}
	}
	return m.clip(b.String(), o.scroll)
}

func (m model) renderLiveFooter(st engine.Story) string {
	var b strings.Builder
	switch {
	case st.HasPendingChoices():
		b.WriteString(m.styles.accent.Render(fmt.Sprintf("Pause %d — choose one option (irreversible)", st.Stage.PauseIndex())) + "\n")
		for i, c := range st.PendingChoices {
			b.WriteString(fmt.Sprintf("  [%d] %s\n", i+1, c))
		}
	case st.Status == engine.StatusCompleted:
		b.WriteString(m.styles.success.Render("The story is complete.") + "\n")
	case engine.CanAdvanceChapter(st):
		b.WriteString(m.styles.accent.Render("Chapter concluded. Press n to continue.") + "\n")
	}
	if reason, stuck := engine.RepairNeeded(st); stuck {
		msg := fmt.Sprintf("Repair pending (%s)", reason)
		if m.open.healGaveUp {
			msg += ", automatic retries stopped. Press r to retry."
		} else if n := m.open.healer.Attempts(); n > 0 {
			msg += fmt.Sprintf(", attempt %d", n)
		}
		b.WriteString(m.styles.warning.Render(msg) + "\n")
	}
	return b.String()
}

// clip drops the first scroll lines and anything past the screen height.
func (m model) clip(s string, scroll int) string {
	lines := strings.Split(s, "\n")
	avail := m.height - 4
	if avail <= 5 || len(lines) <= avail {
		return s
	}
	if scroll > len(lines)-avail {
		scroll = len(lines) - avail
	}
	return strings.Join(lines[scroll:scroll+avail], "\n")
}

func (m model) renderDetails() string {
	st, ok := m.detailsStory()
	if !ok {
		return m.styles.muted.Render("(nothing selected)")
	}
	var b strings.Builder
	b.WriteString(m.styles.subtitle.Render(displayTitle(st)) + "\n\n")
	row := func(k, v string) { b.WriteString(fmt.Sprintf("%-14s %s\n", k+":", v)) }
	row("Premise", st.Premise)
	if nuclei := st.NucleiList(); len(nuclei) > 0 {
		row("Nuclei", strings.Join(nuclei, "; "))
	}
	row("Tone", string(st.Tone))
	row("Age rating", string(st.AgeRating))
	pov := "third person"
	if st.FirstPerson {
		pov = "first person"
	}
	row("Perspective", pov)
	row("Status", string(st.Status))
	row("Chapter", fmt.Sprintf("%d of %d", st.Chapter, m.deps.Service.ChapterCap()))
	row("Stage", st.Stage.String())
	row("Pages", fmt.Sprintf("%d", len(st.Pages)))
	row("Choices made", fmt.Sprintf("%d", len(st.ChoiceHistory)))
	row("Created", st.CreatedAt.Local().Format(timeLayout))
	row("Updated", st.UpdatedAt.Local().Format(timeLayout))
	row("ID", st.ID)
	if m.confirmDelete {
		b.WriteString("\n" + m.styles.errText.Render("Delete this story permanently? [y] yes  [n] no") + "\n")
	}
	return m.styles.panel.Render(b.String())
}

func (m model) renderSettings() string {
	var b strings.Builder
	b.WriteString(m.styles.subtitle.Render("Settings") + "\n\n")
	license := "(not set)"
	if m.license != "" {
		license = maskLicense(m.license)
	}
	if m.editingLicense {
		license = strings.Repeat("*", len([]rune(m.licenseInput))) + "_"
	}
	b.WriteString(fmt.Sprintf("%-10s %s\n", "License:", license))
	b.WriteString(fmt.Sprintf("%-10s %s\n", "Model:", m.modelName))
	b.WriteString(fmt.Sprintf("%-10s %s\n", "Theme:", m.theme))
	b.WriteString(fmt.Sprintf("%-10s %s\n", "Exports:", m.deps.Config.ExportDir))
	if m.deps.Version != "" {
		b.WriteString(fmt.Sprintf("%-10s %s\n", "Version:", m.deps.Version))
	}
	return m.styles.panel.Render(b.String())
}

func (m model) renderHelp() string {
	help := `# Storyloom

Every chapter is written in three segments. The story pauses twice per
chapter and offers three options; a choice is final. After the conclusion
press **n** to open the next chapter.

- **r** asks again when a segment came back incomplete
- **←/→** browse archived pages; new text only appears on the live page
- **e** / **y** export as Markdown or YAML
- **i** story details, **x** then **y** deletes
`
	return renderMarkdown(help, m.contentWidth()-4)
}

func displayTitle(st engine.Story) string {
	if st.Title != "" {
		return st.Title
	}
	return truncate(st.Premise, 40)
}

func truncate(s string, n int) string {
	r := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-3]) + "..."
}

func maskLicense(s string) string {
	r := []rune(s)
	if len(r) <= 4 {
		return strings.Repeat("*", len(r))
	}
	return strings.Repeat("*", len(r)-4) + string(r[len(r)-4:])
}
