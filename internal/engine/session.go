package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

type timeFunc func() time.Time

// Store persists story records.
type Store interface {
	// CreateStory returns ErrDuplicate when the duplicate key is taken.
	CreateStory(ctx context.Context, p Params) (Story, error)
	FindDuplicate(ctx context.Context, p Params) (Story, bool, error)
	ListStories(ctx context.Context) ([]Story, error)
	GetStory(ctx context.Context, id string) (Story, error)
	// SaveStory upserts s and stamps its UpdatedAt.
	SaveStory(ctx context.Context, s *Story) error
	DeleteStory(ctx context.Context, id string) error
}

// Outcome describes what a transition did to the story.
type Outcome struct {
	Stage Stage
	// Stuck is set when the story was left needing repair.
	Stuck bool
	// Malformed carries the decoder's reason when the reply was salvaged.
	Malformed string
	// Noop is set when nothing was changed.
	Noop bool
}

// Session owns the in-memory copy of one story while it is open. Writers
// take the busy token, so at most one generation call is in flight.
type Session struct {
	id    string
	mu    sync.RWMutex
	story Story

	busy       *semaphore.Weighted
	gen        Generator
	store      Store
	chapterCap int
	now        timeFunc
	log        *zap.Logger
}

type SessionOption func(*Session)

func WithChapterCap(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.chapterCap = n
		}
	}
}

func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

func WithLogger(l *zap.Logger) SessionOption {
	return func(s *Session) { s.log = l }
}

func NewSession(st Story, gen Generator, store Store, opts ...SessionOption) *Session {
	s := &Session{
		id:         st.ID,
		story:      st.Clone(),
		busy:       semaphore.NewWeighted(1),
		gen:        gen,
		store:      store,
		chapterCap: DefaultChapterCap,
		now:        func() time.Time { return time.Now().UTC() },
		log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With(zap.String("story_id", st.ID))
	return s
}

// Snapshot returns a deep copy of the current record.
func (s *Session) Snapshot() Story {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.story.Clone()
}

func (s *Session) ID() string { return s.id }

// Busy reports whether a generation call is in flight.
func (s *Session) Busy() bool {
	if !s.busy.TryAcquire(1) {
		return true
	}
	s.busy.Release(1)
	return false
}

// RequestSegment generates the segment following stage from, which must be
// the story's current stage.
func (s *Session) RequestSegment(ctx context.Context, from Stage) (Outcome, error) {
	if !s.busy.TryAcquire(1) {
		return Outcome{}, ErrBusy
	}
	defer s.busy.Release(1)
	if cur := s.Snapshot().Stage; cur != from {
		return Outcome{Stage: cur}, ErrInvalidTransition
	}
	return s.requestSegment(ctx, from, nil)
}

// ResolveChoice records the reader's pick at the current pause and requests
// the next segment. Pending choices are cleared and the page archived before
// the call starts; a failed call restores them. Calls with no pending
// choices, or while another request runs, change nothing.
func (s *Session) ResolveChoice(ctx context.Context, idx int) (Outcome, error) {
	if idx < 0 || idx >= ChoicesPerPause {
		return Outcome{}, ErrInvalidChoice
	}
	if !s.busy.TryAcquire(1) {
		return Outcome{Noop: true}, nil
	}
	defer s.busy.Release(1)

	s.mu.Lock()
	if !s.story.HasPendingChoices() || idx >= len(s.story.PendingChoices) {
		stage := s.story.Stage
		s.mu.Unlock()
		return Outcome{Stage: stage, Noop: true}, nil
	}
	prev := s.story.Clone()
	closed := s.story.Stage
	chosen := s.story.PendingChoices[idx]
	s.story.ChoiceHistory = append(s.story.ChoiceHistory, idx)
	s.story.clearPending()
	ArchiveCurrentAsPage(&s.story, PageLabel(s.story.Chapter, closed), chosen, s.now())
	s.mu.Unlock()

	s.log.Debug("choice resolved", zap.Int("choice", idx), zap.Stringer("stage", closed))
	return s.requestSegment(ctx, closed, &prev)
}

// AdvanceChapter archives the conclusion and generates the next chapter's
// opening.
func (s *Session) AdvanceChapter(ctx context.Context) (Outcome, error) {
	if !s.busy.TryAcquire(1) {
		return Outcome{}, ErrBusy
	}
	defer s.busy.Release(1)

	s.mu.Lock()
	if !CanAdvanceChapter(s.story) {
		s.mu.Unlock()
		return Outcome{}, ErrCannotAdvance
	}
	prev := s.story.Clone()
	openChapter(&s.story, s.now)
	chapter := s.story.Chapter
	s.mu.Unlock()

	s.log.Info("advancing chapter", zap.Int("chapter", chapter))
	return s.requestSegment(ctx, StageRequested, &prev)
}

// Refresh performs whatever generation the current state calls for, without
// backoff or attempt limits.
func (s *Session) Refresh(ctx context.Context) (Outcome, error) {
	if !s.busy.TryAcquire(1) {
		return Outcome{}, ErrBusy
	}
	defer s.busy.Release(1)

	snap := s.Snapshot()
	if snap.Stage == StageRequested && snap.Status == StatusActive {
		return s.requestSegment(ctx, StageRequested, nil)
	}
	if reason, ok := RepairNeeded(snap); ok {
		return s.repair(ctx, reason, nil)
	}
	return Outcome{Stage: snap.Stage, Noop: true}, nil
}

// requestSegment runs with the busy token held. rollback, when set, is the
// record to restore if the call fails.
func (s *Session) requestSegment(ctx context.Context, from Stage, rollback *Story) (Outcome, error) {
	snap := s.Snapshot()
	seg, err := s.gen.GenerateSegment(ctx, snap, from)
	var malformed *MalformedResponseError
	switch {
	case err == nil:
	case errors.As(err, &malformed):
		seg = malformed.Partial
		s.log.Warn("malformed segment", zap.Stringer("stage", from), zap.String("reason", malformed.Reason))
	default:
		s.restore(rollback)
		s.log.Error("segment generation failed", zap.Stringer("stage", from), zap.Error(err))
		return Outcome{Stage: s.Snapshot().Stage}, asGenerationError("generate segment", err)
	}

	working := snap
	stuck := applySegment(&working, from, seg, s.chapterCap)
	if err := s.commit(ctx, &working); err != nil {
		s.restore(rollback)
		return Outcome{Stage: s.Snapshot().Stage}, err
	}
	out := Outcome{Stage: working.Stage, Stuck: stuck}
	if malformed != nil {
		out.Malformed = malformed.Reason
	}
	return out, nil
}

// repair runs with the busy token held. keep, when set, must still hold for
// the result to be applied.
func (s *Session) repair(ctx context.Context, reason RepairReason, keep func() bool) (Outcome, error) {
	snap := s.Snapshot()
	seg, err := s.gen.ContinueGeneration(ctx, snap, reason)
	var malformed *MalformedResponseError
	switch {
	case err == nil:
	case errors.As(err, &malformed):
		seg = malformed.Partial
	default:
		return Outcome{Stage: snap.Stage, Stuck: true}, asGenerationError("continue generation", err)
	}

	cur := s.Snapshot()
	if (keep != nil && !keep()) || cur.Stage != snap.Stage || len(cur.Pages) != len(snap.Pages) {
		s.log.Debug("discarding stale repair", zap.String("reason", string(reason)))
		return Outcome{Stage: cur.Stage, Noop: true}, nil
	}
	working := cur
	applyRepair(&working, reason, seg)
	if err := s.commit(ctx, &working); err != nil {
		return Outcome{Stage: cur.Stage, Stuck: true}, err
	}
	_, stuck := RepairNeeded(working)
	out := Outcome{Stage: working.Stage, Stuck: stuck}
	if malformed != nil {
		out.Malformed = malformed.Reason
	}
	return out, nil
}

// commit saves working and, only if the store accepted it, makes it current.
func (s *Session) commit(ctx context.Context, working *Story) error {
	working.UpdatedAt = s.now()
	if err := s.store.SaveStory(ctx, working); err != nil {
		s.log.Error("saving story failed", zap.Error(err))
		return &PersistenceError{Op: "save story", Err: err}
	}
	s.mu.Lock()
	s.story = working.Clone()
	s.mu.Unlock()
	return nil
}

func (s *Session) restore(prev *Story) {
	if prev == nil {
		return
	}
	s.mu.Lock()
	s.story = prev.Clone()
	s.mu.Unlock()
}
