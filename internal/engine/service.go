package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Service creates, lists and opens stories.
type Service struct {
	store      Store
	gen        Generator
	chapterCap int
	log        *zap.Logger
	validate   *validator.Validate
}

func NewService(store Store, gen Generator, chapterCap int, log *zap.Logger) *Service {
	if chapterCap <= 0 {
		chapterCap = DefaultChapterCap
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:      store,
		gen:        gen,
		chapterCap: chapterCap,
		log:        log,
		validate:   validator.New(),
	}
}

// ChapterCap is the chapter after which stories complete.
func (svc *Service) ChapterCap() int { return svc.chapterCap }

// Open wraps a loaded story in a session.
func (svc *Service) Open(st Story) *Session {
	return NewSession(st, svc.gen, svc.store, WithChapterCap(svc.chapterCap), WithLogger(svc.log))
}

// Create validates p and returns a session for its story. When a story with
// the same title and premise exists it is returned instead and created is
// false. A new story is saved at stage 0 before its opening is requested, so
// a generation failure leaves it in place for a later refresh.
func (svc *Service) Create(ctx context.Context, p Params) (sess *Session, created bool, err error) {
	p = p.WithDefaults()
	if err := svc.validate.Struct(p); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidPremise, err)
	}
	dup, found, err := svc.store.FindDuplicate(ctx, p)
	if err != nil {
		return nil, false, &PersistenceError{Op: "find duplicate", Err: err}
	}
	if found {
		svc.log.Info("duplicate story, opening existing", zap.String("story_id", dup.ID))
		return svc.Open(dup), false, nil
	}
	st, err := svc.store.CreateStory(ctx, p)
	if errors.Is(err, ErrDuplicate) {
		// created by someone else since the lookup
		if dup, found, ferr := svc.store.FindDuplicate(ctx, p); ferr == nil && found {
			return svc.Open(dup), false, nil
		}
	}
	if err != nil {
		return nil, false, &PersistenceError{Op: "create story", Err: err}
	}
	svc.log.Info("story created", zap.String("story_id", st.ID), zap.String("title", st.Title))
	sess = svc.Open(st)
	_, err = sess.RequestSegment(ctx, StageRequested)
	return sess, true, err
}

func (svc *Service) List(ctx context.Context) ([]Story, error) {
	out, err := svc.store.ListStories(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "list stories", Err: err}
	}
	return out, nil
}

func (svc *Service) Get(ctx context.Context, id string) (Story, error) {
	st, err := svc.store.GetStory(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Story{}, err
	}
	if err != nil {
		return Story{}, &PersistenceError{Op: "get story", Err: err}
	}
	return st, nil
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	err := svc.store.DeleteStory(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return err
	}
	if err != nil {
		return &PersistenceError{Op: "delete story", Err: err}
	}
	svc.log.Info("story deleted", zap.String("story_id", id))
	return nil
}
