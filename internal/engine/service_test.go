package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func validParams() Params {
	return Params{Title: "The Tower", Premise: "A lighthouse keeper wakes to find the sea gone."}
}

func TestCreateGeneratesOpening(t *testing.T) {
	store := newMemStore()
	gen := &mockGenerator{}
	gen.On("GenerateSegment", mock.Anything, mock.Anything, StageRequested).
		Return(Segment{Text: "The sea was gone.", Choices: testChoices}, nil).Once()
	svc := NewService(store, gen, 0, zap.NewNop())

	sess, created, err := svc.Create(context.Background(), validParams())
	require.NoError(t, err)
	assert.True(t, created)

	got := sess.Snapshot()
	assert.Equal(t, StagePause1, got.Stage)
	assert.Equal(t, 1, got.Chapter)
	assert.Equal(t, StatusActive, got.Status)
	assert.Equal(t, ToneAdventure, got.Tone)
	assert.Equal(t, Age16, got.AgeRating)
	assert.Equal(t, got, store.get(got.ID))
}

func TestCreateReturnsDuplicate(t *testing.T) {
	existing := storyAt(StagePause2, 4)
	existing.Params = validParams().WithDefaults()
	store := newMemStore(existing)
	gen := &mockGenerator{}
	svc := NewService(store, gen, 0, nil)

	p := validParams()
	p.Title = "  the TOWER"
	sess, created, err := svc.Create(context.Background(), p)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, existing.ID, sess.ID())
	assert.Equal(t, StagePause2, sess.Snapshot().Stage)

	all, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
	gen.AssertNotCalled(t, "GenerateSegment", mock.Anything, mock.Anything, mock.Anything)
}

// lateStore misses the first duplicate lookup, as if another creator
// inserted the story between lookup and insert.
type lateStore struct {
	*memStore
	missed bool
}

func (l *lateStore) FindDuplicate(ctx context.Context, p Params) (Story, bool, error) {
	if !l.missed {
		l.missed = true
		return Story{}, false, nil
	}
	return l.memStore.FindDuplicate(ctx, p)
}

func TestCreateRacingDuplicateOpensExisting(t *testing.T) {
	existing := storyAt(StagePause1, 1)
	existing.Params = validParams().WithDefaults()
	store := &lateStore{memStore: newMemStore(existing)}
	gen := &mockGenerator{}
	svc := NewService(store, gen, 0, nil)

	sess, created, err := svc.Create(context.Background(), validParams())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, existing.ID, sess.ID())
	assert.True(t, store.missed)
	gen.AssertNotCalled(t, "GenerateSegment", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateKeepsStoryWhenOpeningFails(t *testing.T) {
	store := newMemStore()
	gen := &mockGenerator{}
	gen.On("GenerateSegment", mock.Anything, mock.Anything, StageRequested).Return(Segment{}, errOffline).Once()
	svc := NewService(store, gen, 0, nil)

	sess, created, err := svc.Create(context.Background(), validParams())
	var ge *GenerationError
	require.ErrorAs(t, err, &ge)
	require.NotNil(t, sess)
	assert.True(t, created)

	saved, err := svc.Get(context.Background(), sess.ID())
	require.NoError(t, err)
	assert.Equal(t, StageRequested, saved.Stage)
}

func TestCreateValidatesParams(t *testing.T) {
	svc := NewService(newMemStore(), &mockGenerator{}, 0, nil)
	cases := map[string]Params{
		"missing premise": {Title: "x", Premise: "   "},
		"unknown tone":    {Premise: "p", Tone: "Comedy"},
		"unknown age":     {Premise: "p", AgeRating: "21+"},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := svc.Create(context.Background(), p)
			assert.ErrorIs(t, err, ErrInvalidPremise)
		})
	}
}

func TestDeleteAndGet(t *testing.T) {
	st := storyAt(StagePause1, 1)
	svc := NewService(newMemStore(st), &mockGenerator{}, 0, nil)

	require.NoError(t, svc.Delete(context.Background(), st.ID))
	_, err := svc.Get(context.Background(), st.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.Delete(context.Background(), st.ID), ErrNotFound)
}
