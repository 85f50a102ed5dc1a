package store

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrator handles DB schema migrations using golang-migrate.
type Migrator struct {
	dsn string
}

func NewMigrator(dsn string) (*Migrator, error) {
	if dsn == "" {
		return nil, fmt.Errorf("missing DSN")
	}
	return &Migrator{dsn: dsn}, nil
}

func (m *Migrator) Up(ctx context.Context) error {
	return m.run(ctx, func(mig *migrate.Migrate) error { return mig.Up() })
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) error {
	return m.run(ctx, func(mig *migrate.Migrate) error { return mig.Steps(-1) })
}

// Version reports the applied schema version.
func (m *Migrator) Version(ctx context.Context) (uint, bool, error) {
	var (
		version uint
		dirty   bool
	)
	err := m.run(ctx, func(mig *migrate.Migrate) error {
		var err error
		version, dirty, err = mig.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		return err
	})
	return version, dirty, err
}

func (m *Migrator) run(ctx context.Context, fn func(*migrate.Migrate) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return wrap(err, "open migrations")
	}
	mig, err := migrate.NewWithSourceInstance("iofs", src, m.dsn)
	if err != nil {
		return wrap(err, "init migrate")
	}
	defer mig.Close()
	if err := fn(mig); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return ErrNoChange
		}
		return err
	}
	return nil
}
