package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/DaanHessen/storyloom/internal/engine"
	"github.com/DaanHessen/storyloom/internal/store"
)

type storiesLoadedMsg struct {
	stories []engine.Story
	err     error
}

type sessionOpenedMsg struct {
	session *engine.Session
	created bool
	err     error
}

// transitionMsg reports a finished user-triggered generation.
type transitionMsg struct {
	id  string
	op  string
	out engine.Outcome
	err error
}

type listRefreshedMsg struct {
	id  string
	err error
}

type deletedMsg struct {
	id  string
	err error
}

type exportedMsg struct {
	path string
	err  error
}

type settingSavedMsg struct {
	key string
	err error
}

// Sent by the healer from its timer goroutine.
type healChangedMsg struct{ id string }

type healGaveUpMsg struct {
	id  string
	err error
}

func waitForEvent(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg { return <-ch }
}

// post delivers msg without blocking the sender.
func post(ch chan<- tea.Msg, msg tea.Msg) {
	select {
	case ch <- msg:
	default:
	}
}

func loadStoriesCmd(ctx context.Context, svc *engine.Service) tea.Cmd {
	return func() tea.Msg {
		stories, err := svc.List(ctx)
		return storiesLoadedMsg{stories: stories, err: err}
	}
}

func createStoryCmd(ctx context.Context, svc *engine.Service, p engine.Params) tea.Cmd {
	return func() tea.Msg {
		sess, created, err := svc.Create(ctx, p)
		return sessionOpenedMsg{session: sess, created: created, err: err}
	}
}

func openStoryCmd(ctx context.Context, svc *engine.Service, id string) tea.Cmd {
	return func() tea.Msg {
		st, err := svc.Get(ctx, id)
		if err != nil {
			return sessionOpenedMsg{err: err}
		}
		return sessionOpenedMsg{session: svc.Open(st)}
	}
}

func transitionCmd(ctx context.Context, sess *engine.Session, op string, fn func(context.Context) (engine.Outcome, error)) tea.Cmd {
	return func() tea.Msg {
		out, err := fn(ctx)
		return transitionMsg{id: sess.ID(), op: op, out: out, err: err}
	}
}

// refreshFromListCmd only acts on stories whose opening was never written.
func refreshFromListCmd(ctx context.Context, svc *engine.Service, st engine.Story) tea.Cmd {
	return func() tea.Msg {
		_, err := svc.Open(st).Refresh(ctx)
		return listRefreshedMsg{id: st.ID, err: err}
	}
}

func deleteStoryCmd(ctx context.Context, svc *engine.Service, id string) tea.Cmd {
	return func() tea.Msg {
		return deletedMsg{id: id, err: svc.Delete(ctx, id)}
	}
}

func exportCmd(dir string, st engine.Story, format string) tea.Cmd {
	return func() tea.Msg {
		path, err := store.WriteExport(dir, st, format)
		return exportedMsg{path: path, err: err}
	}
}

func saveSettingCmd(ctx context.Context, settings Settings, key, value string) tea.Cmd {
	return func() tea.Msg {
		var err error
		if value == "" {
			err = settings.Delete(ctx, key)
		} else {
			err = settings.Set(ctx, key, value)
		}
		return settingSavedMsg{key: key, err: err}
	}
}
