package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"
)

var (
	testChoices = []string{"Open the door", "Run for the stairs", "Wait in the dark"}
	errOffline  = errors.New("service unavailable")
	testClock   = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
)

// prose returns text longer than the truncation threshold. Complete text
// ends in a period.
func prose(seed string, complete bool) string {
	body := strings.Repeat(seed+" walked along the corridor while the lamps flickered ", 6)
	body = strings.TrimSpace(body)
	if complete {
		return body + "."
	}
	return body + " and then the"
}

type memStore struct {
	mu      sync.Mutex
	stories map[string]Story
	seq     int
	saves   int
	saveErr error
}

func newMemStore(stories ...Story) *memStore {
	m := &memStore{stories: map[string]Story{}}
	for _, s := range stories {
		m.stories[s.ID] = s.Clone()
	}
	return m
}

func (m *memStore) CreateStory(_ context.Context, p Params) (Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.stories {
		if DuplicateKey(s.Params) == DuplicateKey(p) {
			return Story{}, ErrDuplicate
		}
	}
	m.seq++
	st := NewStory(fmt.Sprintf("story-%d", m.seq), p, testClock())
	m.stories[st.ID] = st.Clone()
	return st, nil
}

func (m *memStore) FindDuplicate(_ context.Context, p Params) (Story, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.stories {
		if DuplicateKey(s.Params) == DuplicateKey(p) {
			return s.Clone(), true, nil
		}
	}
	return Story{}, false, nil
}

func (m *memStore) ListStories(context.Context) ([]Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Story, 0, len(m.stories))
	for _, s := range m.stories {
		out = append(out, s.Clone())
	}
	return out, nil
}

func (m *memStore) GetStory(_ context.Context, id string) (Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stories[id]
	if !ok {
		return Story{}, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *memStore) SaveStory(_ context.Context, s *Story) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.stories[s.ID] = s.Clone()
	return nil
}

func (m *memStore) DeleteStory(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stories[id]; !ok {
		return ErrNotFound
	}
	delete(m.stories, id)
	return nil
}

func (m *memStore) get(id string) Story {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stories[id].Clone()
}

type mockGenerator struct{ mock.Mock }

func (m *mockGenerator) GenerateSegment(ctx context.Context, s Story, from Stage) (Segment, error) {
	args := m.Called(ctx, s, from)
	return args.Get(0).(Segment), args.Error(1)
}

func (m *mockGenerator) ContinueGeneration(ctx context.Context, s Story, reason RepairReason) (Segment, error) {
	args := m.Called(ctx, s, reason)
	return args.Get(0).(Segment), args.Error(1)
}

// funcGen counts calls and delegates to plain functions, for tests where
// the generator runs on the healer's timer goroutine.
type funcGen struct {
	generate  func(Story, Stage) (Segment, error)
	cont      func(Story, RepairReason) (Segment, error)
	genCalls  atomic.Int32
	contCalls atomic.Int32
}

func (f *funcGen) GenerateSegment(_ context.Context, s Story, from Stage) (Segment, error) {
	f.genCalls.Add(1)
	return f.generate(s, from)
}

func (f *funcGen) ContinueGeneration(_ context.Context, s Story, reason RepairReason) (Segment, error) {
	f.contCalls.Add(1)
	return f.cont(s, reason)
}

func storyAt(stage Stage, chapter int) Story {
	st := NewStory("story-1", Params{Title: "The Tower", Premise: "A keeper wakes alone.", Tone: ToneMystery, AgeRating: Age16}, testClock())
	st.Stage = stage
	st.Chapter = chapter
	if stage != StageRequested {
		st.FullText = prose("Mara", true)
	}
	if stage.IsPause() {
		st.installChoices(testChoices)
	}
	return st
}

func malformed(reason string, partial Segment) error {
	return &MalformedResponseError{Reason: reason, Partial: partial}
}
