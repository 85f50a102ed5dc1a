package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealDelay(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{-1, 600 * time.Millisecond},
		{0, 600 * time.Millisecond},
		{1, 900 * time.Millisecond},
		{2, 1350 * time.Millisecond},
		{3, 2025 * time.Millisecond},
		{4, 3038 * time.Millisecond},
		{5, 4500 * time.Millisecond},
		{6, 4500 * time.Millisecond},
		{40, 4500 * time.Millisecond},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HealDelay(tc.attempt), "attempt %d", tc.attempt)
	}
}

func fastDelay(int) time.Duration { return time.Millisecond }

type healFixture struct {
	session *Session
	healer  *Healer
	gen     *funcGen
	gate    atomic.Bool
	giveUps atomic.Int32
	changes atomic.Int32
}

func newHealFixture(t *testing.T, st Story, cont func(Story, RepairReason) (Segment, error), opts ...HealerOption) *healFixture {
	t.Helper()
	f := &healFixture{gen: &funcGen{cont: cont}}
	f.gate.Store(true)
	f.session = newTestSession(st, f.gen, newMemStore(st))
	opts = append([]HealerOption{
		WithHealDelay(fastDelay),
		OnGiveUp(func(error) { f.giveUps.Add(1) }),
		OnChange(func(Story) { f.changes.Add(1) }),
	}, opts...)
	f.healer = NewHealer(context.Background(), f.session, f.gate.Load, opts...)
	t.Cleanup(f.healer.Stop)
	return f
}

func stuckAtPause2() Story {
	st := storyAt(StagePause2, 1)
	st.clearPending()
	return st
}

func TestHealerInstallsChoicesOnSecondAttempt(t *testing.T) {
	var n atomic.Int32
	f := newHealFixture(t, stuckAtPause2(), func(_ Story, reason RepairReason) (Segment, error) {
		assert.Equal(t, ReasonNeedChoices, reason)
		if n.Add(1) == 1 {
			return Segment{}, malformed("no choices", Segment{Text: "A draft swept in."})
		}
		return Segment{Text: "Footsteps above.", Choices: testChoices}, nil
	})
	before := f.session.Snapshot().FullText

	f.healer.Start()
	require.Eventually(t, func() bool { return f.session.Snapshot().HasPendingChoices() }, time.Second, time.Millisecond)

	got := f.session.Snapshot()
	assert.Equal(t, 2, got.PendingChoiceAt)
	assert.Equal(t, testChoices, got.PendingChoices)
	assert.Equal(t, before+"\n\nA draft swept in.\n\nFootsteps above.", got.FullText)
	assert.Equal(t, StagePause2, got.Stage)
	assert.Empty(t, got.Pages)
	require.Eventually(t, func() bool { return f.healer.Attempts() == 0 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(2), f.gen.contCalls.Load())
	assert.False(t, f.healer.GaveUp())
	assert.Zero(t, f.giveUps.Load())
}

func TestHealerGivesUpAfterFiveAttempts(t *testing.T) {
	f := newHealFixture(t, stuckAtPause2(), func(Story, RepairReason) (Segment, error) {
		return Segment{}, errOffline
	})

	f.healer.Start()
	require.Eventually(t, f.healer.GaveUp, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, int32(DefaultHealAttempts), f.gen.contCalls.Load())
	assert.Equal(t, int32(1), f.giveUps.Load())
	assert.Equal(t, DefaultHealAttempts, f.healer.Attempts())

	f.healer.Start()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(DefaultHealAttempts), f.gen.contCalls.Load(), "start after giving up is a no-op")
	assert.True(t, NeedsChoices(f.session.Snapshot()))
}

func TestHealerFinishesTruncatedConclusion(t *testing.T) {
	st := storyAt(StageConcluded, 2)
	st.FullText = prose("Mara", false)
	f := newHealFixture(t, st, func(_ Story, reason RepairReason) (Segment, error) {
		assert.Equal(t, ReasonNeedFinish, reason)
		return Segment{Text: "last door swung shut."}, nil
	})

	f.healer.Start()
	require.Eventually(t, func() bool { return !NeedsFinish(f.session.Snapshot()) }, time.Second, time.Millisecond)
	got := f.session.Snapshot()
	assert.True(t, CanAdvanceChapter(got))
	assert.Contains(t, got.FullText, "\n\nlast door swung shut.")
	assert.Equal(t, int32(1), f.gen.contCalls.Load())
}

func TestHealerStandsDownWhenGateClosed(t *testing.T) {
	f := newHealFixture(t, stuckAtPause2(), func(Story, RepairReason) (Segment, error) {
		return Segment{Choices: testChoices}, nil
	})
	f.gate.Store(false)

	f.healer.Start()
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, f.gen.contCalls.Load())
	assert.True(t, NeedsChoices(f.session.Snapshot()))
}

func TestHealerDoesNothingForHealthyStory(t *testing.T) {
	f := newHealFixture(t, storyAt(StagePause1, 1), func(Story, RepairReason) (Segment, error) {
		return Segment{}, nil
	})
	f.healer.Start()
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, f.gen.contCalls.Load())
}

func TestHealerStopCancelsPendingTick(t *testing.T) {
	f := newHealFixture(t, stuckAtPause2(), func(Story, RepairReason) (Segment, error) {
		return Segment{Choices: testChoices}, nil
	}, WithHealDelay(func(int) time.Duration { return 30 * time.Millisecond }))

	f.healer.Start()
	f.healer.Stop()
	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, f.gen.contCalls.Load())
	assert.Zero(t, f.healer.Attempts())
}

func TestHealerTickWhileBusyIsNoop(t *testing.T) {
	f := newHealFixture(t, stuckAtPause2(), func(Story, RepairReason) (Segment, error) {
		return Segment{Choices: testChoices}, nil
	})
	require.True(t, f.session.busy.TryAcquire(1))

	f.healer.Start()
	time.Sleep(20 * time.Millisecond)
	f.session.busy.Release(1)
	time.Sleep(20 * time.Millisecond)

	assert.Zero(t, f.gen.contCalls.Load(), "a skipped tick does not reschedule")
	assert.Zero(t, f.healer.Attempts())

	f.healer.Start()
	require.Eventually(t, func() bool { return f.session.Snapshot().HasPendingChoices() }, time.Second, time.Millisecond)
}

func TestHealerDiscardsResultWhenViewLeavesLivePage(t *testing.T) {
	called := make(chan struct{})
	release := make(chan struct{})
	f := newHealFixture(t, stuckAtPause2(), func(Story, RepairReason) (Segment, error) {
		close(called)
		<-release
		return Segment{Text: "Too late.", Choices: testChoices}, nil
	})
	before := f.session.Snapshot()

	f.healer.Start()
	<-called
	f.gate.Store(false)
	f.healer.Stop()
	close(release)

	require.Eventually(t, func() bool { return !f.session.Busy() }, time.Second, time.Millisecond)
	assert.Equal(t, before, f.session.Snapshot())
	assert.Zero(t, f.changes.Load())
}

func TestHealerRestartFromChangeCallbackKeepsOneChain(t *testing.T) {
	const gap = 25 * time.Millisecond
	var (
		mu    sync.Mutex
		calls []time.Time
		f     *healFixture
	)
	f = newHealFixture(t, stuckAtPause2(), func(Story, RepairReason) (Segment, error) {
		mu.Lock()
		calls = append(calls, time.Now())
		mu.Unlock()
		return Segment{}, malformed("no choices", Segment{Text: "Still nothing."})
	},
		WithHealDelay(func(int) time.Duration { return gap }),
		OnChange(func(Story) { f.healer.Start() }),
	)

	f.healer.Start()
	require.Eventually(t, f.healer.GaveUp, 2*time.Second, time.Millisecond)
	time.Sleep(3 * gap)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, DefaultHealAttempts)
	for i := 1; i < len(calls); i++ {
		assert.GreaterOrEqual(t, calls[i].Sub(calls[i-1]), gap-5*time.Millisecond, "call %d came early", i)
	}
}

func TestHealerFirstAttemptUsesBackoffSchedule(t *testing.T) {
	st := storyAt(StageRequested, 1)
	gen := &funcGen{
		generate: func(Story, Stage) (Segment, error) {
			return Segment{}, malformed("expected 3 choices, got 0", Segment{Text: "The gate creaked open."})
		},
	}
	firstCall := make(chan time.Time, 1)
	gen.cont = func(_ Story, reason RepairReason) (Segment, error) {
		assert.Equal(t, ReasonNeedChoices, reason)
		select {
		case firstCall <- time.Now():
		default:
		}
		return Segment{Choices: testChoices}, nil
	}
	s := newTestSession(st, gen, newMemStore(st))
	out, err := s.RequestSegment(context.Background(), StageRequested)
	require.NoError(t, err)
	require.True(t, out.Stuck)

	h := NewHealer(context.Background(), s, func() bool { return true })
	t.Cleanup(h.Stop)
	started := time.Now()
	h.Start()

	select {
	case at := <-firstCall:
		elapsed := at.Sub(started)
		assert.GreaterOrEqual(t, elapsed, 500*time.Millisecond)
		assert.Less(t, elapsed, 900*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("no repair attempt")
	}
	require.Eventually(t, func() bool { return s.Snapshot().HasPendingChoices() }, time.Second, 5*time.Millisecond)
}
