package store

import (
	"context"
	"database/sql"
	"encoding/json"
	errs "errors"
	"fmt"
	"time"

	"github.com/DaanHessen/storyloom/internal/engine"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrNoChange = errs.New("no change")

// DB wraps gorm.DB for repositories and exposes Close.
type DB struct {
	gorm *gorm.DB
	sql  *sql.DB
}

func (d *DB) Close() error   { return d.sql.Close() }
func (d *DB) Gorm() *gorm.DB { return d.gorm }

// Open connects to Postgres at dsn and pings it.
func Open(ctx context.Context, dsn string) (*DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("missing DSN")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, wrap(err, "open database")
	}
	sdb, err := gdb.DB()
	if err != nil {
		return nil, wrap(err, "database handle")
	}
	sdb.SetConnMaxLifetime(30 * time.Minute)
	sdb.SetMaxOpenConns(10)
	sdb.SetMaxIdleConns(5)
	if err := sdb.PingContext(ctx); err != nil {
		return nil, wrap(err, "ping database")
	}
	return &DB{gorm: gdb, sql: sdb}, nil
}

// WithTx executes fn within a database transaction.
func (d *DB) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return d.gorm.WithContext(ctx).Transaction(fn)
}

// storyRow mirrors the stories table.
type storyRow struct {
	ID              string
	Title           string
	Premise         string
	Nuclei          string
	Tone            string
	AgeRating       string
	FirstPerson     bool
	DupKey          string
	Status          string
	Chapter         int
	Stage           int
	FullText        string
	PendingChoices  []byte
	PendingChoiceAt int
	ChoiceHistory   []byte
	Pages           []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const storyColumns = `id, title, premise, nuclei, tone, age_rating, first_person, dup_key, status, chapter, stage,
	full_text, pending_choices, pending_choice_at, choice_history, pages, created_at, updated_at`

func (r storyRow) story() (engine.Story, error) {
	st := engine.Story{
		ID: r.ID,
		Params: engine.Params{
			Title:       r.Title,
			Premise:     r.Premise,
			Nuclei:      r.Nuclei,
			Tone:        engine.Tone(r.Tone),
			AgeRating:   engine.AgeRating(r.AgeRating),
			FirstPerson: r.FirstPerson,
		},
		Status:          engine.Status(r.Status),
		Chapter:         r.Chapter,
		Stage:           engine.Stage(r.Stage),
		FullText:        r.FullText,
		PendingChoiceAt: r.PendingChoiceAt,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
	if err := unmarshalColumn(r.PendingChoices, &st.PendingChoices); err != nil {
		return engine.Story{}, wrap(err, "decode pending_choices")
	}
	if err := unmarshalColumn(r.ChoiceHistory, &st.ChoiceHistory); err != nil {
		return engine.Story{}, wrap(err, "decode choice_history")
	}
	if err := unmarshalColumn(r.Pages, &st.Pages); err != nil {
		return engine.Story{}, wrap(err, "decode pages")
	}
	if !st.Stage.Validate() || !st.Status.Validate() {
		return engine.Story{}, fmt.Errorf("story %s: invalid stage %d or status %q", r.ID, r.Stage, r.Status)
	}
	if !st.Tone.Validate() || !st.AgeRating.Validate() {
		return engine.Story{}, fmt.Errorf("story %s: invalid tone %q or age rating %q", r.ID, r.Tone, r.AgeRating)
	}
	return st, nil
}

func unmarshalColumn(b []byte, v any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}

// StoryRepo stores story records. It implements engine.Store.
type StoryRepo struct {
	db  *DB
	now func() time.Time
}

func NewStoryRepo(db *DB) *StoryRepo {
	return &StoryRepo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

var _ engine.Store = (*StoryRepo)(nil)

// CreateStory inserts a new record at stage 0. The duplicate check and the
// insert share a transaction holding an advisory lock on the duplicate key,
// so concurrent creators of the same story get engine.ErrDuplicate.
func (s *StoryRepo) CreateStory(ctx context.Context, p engine.Params) (engine.Story, error) {
	st := engine.NewStory(uuid.NewString(), p, s.now())
	key := engine.DuplicateKey(p)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Exec(`SELECT pg_advisory_xact_lock(hashtext(?))`, key).Error; err != nil {
			return wrap(err, "lock duplicate key")
		}
		existing, err := queryStories(tx, `WHERE dup_key = ? LIMIT 1`, key)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return engine.ErrDuplicate
		}
		return insertStory(tx, &st)
	})
	if err != nil {
		return engine.Story{}, err
	}
	return st, nil
}

func insertStory(tx *gorm.DB, st *engine.Story) error {
	pending, history, pages, err := marshalLists(st)
	if err != nil {
		return err
	}
	err = tx.Exec(`INSERT INTO stories(`+storyColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		st.ID, st.Title, st.Premise, st.Nuclei, string(st.Tone), string(st.AgeRating), st.FirstPerson, engine.DuplicateKey(st.Params),
		string(st.Status), st.Chapter, int(st.Stage), st.FullText, pending, st.PendingChoiceAt, history, pages, st.CreatedAt, st.UpdatedAt,
	).Error
	return wrap(err, "insert story")
}

func (s *StoryRepo) FindDuplicate(ctx context.Context, p engine.Params) (engine.Story, bool, error) {
	rows, err := s.query(ctx, `WHERE dup_key = ? ORDER BY created_at LIMIT 1`, engine.DuplicateKey(p))
	if err != nil || len(rows) == 0 {
		return engine.Story{}, false, err
	}
	return rows[0], true, nil
}

func (s *StoryRepo) ListStories(ctx context.Context) ([]engine.Story, error) {
	return s.query(ctx, `ORDER BY updated_at DESC`)
}

func (s *StoryRepo) GetStory(ctx context.Context, id string) (engine.Story, error) {
	if _, err := uuid.Parse(id); err != nil {
		return engine.Story{}, engine.ErrNotFound
	}
	rows, err := s.query(ctx, `WHERE id = ?`, id)
	if err != nil {
		return engine.Story{}, err
	}
	if len(rows) == 0 {
		return engine.Story{}, engine.ErrNotFound
	}
	return rows[0], nil
}

// SaveStory upserts the mutable columns of st and stamps UpdatedAt.
func (s *StoryRepo) SaveStory(ctx context.Context, st *engine.Story) error {
	pending, history, pages, err := marshalLists(st)
	if err != nil {
		return err
	}
	updated := s.now()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = updated
	}
	err = s.db.gorm.WithContext(ctx).Exec(`INSERT INTO stories(`+storyColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (id) DO UPDATE SET status=EXCLUDED.status, chapter=EXCLUDED.chapter, stage=EXCLUDED.stage,
			full_text=EXCLUDED.full_text, pending_choices=EXCLUDED.pending_choices, pending_choice_at=EXCLUDED.pending_choice_at,
			choice_history=EXCLUDED.choice_history, pages=EXCLUDED.pages, updated_at=EXCLUDED.updated_at`,
		st.ID, st.Title, st.Premise, st.Nuclei, string(st.Tone), string(st.AgeRating), st.FirstPerson, engine.DuplicateKey(st.Params),
		string(st.Status), st.Chapter, int(st.Stage), st.FullText, pending, st.PendingChoiceAt, history, pages, st.CreatedAt, updated,
	).Error
	if err != nil {
		return wrap(err, "save story")
	}
	st.UpdatedAt = updated
	return nil
}

func (s *StoryRepo) DeleteStory(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return engine.ErrNotFound
	}
	res := s.db.gorm.WithContext(ctx).Exec(`DELETE FROM stories WHERE id = ?`, id)
	if res.Error != nil {
		return wrap(res.Error, "delete story")
	}
	if res.RowsAffected == 0 {
		return engine.ErrNotFound
	}
	return nil
}

func (s *StoryRepo) query(ctx context.Context, tail string, args ...any) ([]engine.Story, error) {
	return queryStories(s.db.gorm.WithContext(ctx), tail, args...)
}

func queryStories(db *gorm.DB, tail string, args ...any) ([]engine.Story, error) {
	var rows []storyRow
	if err := db.Raw(`SELECT `+storyColumns+` FROM stories `+tail, args...).Scan(&rows).Error; err != nil {
		return nil, wrap(err, "query stories")
	}
	out := make([]engine.Story, 0, len(rows))
	for _, r := range rows {
		st, err := r.story()
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// marshalLists encodes the JSON columns. Absent pending choices are stored
// as JSON null.
func marshalLists(st *engine.Story) (pending, history, pages string, err error) {
	p, err := json.Marshal(st.PendingChoices)
	if err != nil {
		return "", "", "", wrap(err, "encode pending_choices")
	}
	h := st.ChoiceHistory
	if h == nil {
		h = []int{}
	}
	hb, err := json.Marshal(h)
	if err != nil {
		return "", "", "", wrap(err, "encode choice_history")
	}
	pg := st.Pages
	if pg == nil {
		pg = []engine.Page{}
	}
	pb, err := json.Marshal(pg)
	if err != nil {
		return "", "", "", wrap(err, "encode pages")
	}
	return string(p), string(hb), string(pb), nil
}

// Setting keys.
const (
	SettingLicense = "license"
	SettingModel   = "model"
	SettingTheme   = "theme"
)

// SettingsRepo is a small key/value table for app preferences.
type SettingsRepo struct{ db *DB }

func NewSettingsRepo(db *DB) *SettingsRepo { return &SettingsRepo{db: db} }

// Get returns the value for key, or "" when unset.
func (sr *SettingsRepo) Get(ctx context.Context, key string) (string, error) {
	var vals []string
	if err := sr.db.gorm.WithContext(ctx).Raw(`SELECT value FROM settings WHERE key = ?`, key).Scan(&vals).Error; err != nil {
		return "", wrap(err, "get setting "+key)
	}
	if len(vals) == 0 {
		return "", nil
	}
	return vals[0], nil
}

func (sr *SettingsRepo) Set(ctx context.Context, key, value string) error {
	return wrap(sr.db.gorm.WithContext(ctx).Exec(`INSERT INTO settings(key, value, updated_at) VALUES (?,?,?)
	ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=EXCLUDED.updated_at`, key, value, time.Now().UTC()).Error, "set setting "+key)
}

func (sr *SettingsRepo) Delete(ctx context.Context, key string) error {
	return wrap(sr.db.gorm.WithContext(ctx).Exec(`DELETE FROM settings WHERE key = ?`, key).Error, "delete setting "+key)
}

func (sr *SettingsRepo) All(ctx context.Context) (map[string]string, error) {
	var rows []struct {
		Key   string
		Value string
	}
	if err := sr.db.gorm.WithContext(ctx).Raw(`SELECT key, value FROM settings`).Scan(&rows).Error; err != nil {
		return nil, wrap(err, "list settings")
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

// Helper error wrap
func wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}
