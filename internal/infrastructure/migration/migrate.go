package migration

import (
	"errors"
	"fmt"
	"strings"

	"eventsync/internal/config"
	"eventsync/migrations"

	"github.com/golang-migrate/migrate/v4"
	// Blank imports register database and source drivers for migrations
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// embeddedScheme источник миграций, вшитых в бинарник
const embeddedScheme = "embed://"

// Migrator интерфейс для самой библиотеки migrate.Migrate
type Migrator interface {
	Up() error
	Migrate(version uint) error
	Version() (version uint, dirty bool, err error)
	Close() (error, error)
}

// MigrationEngine фабрика для создания мигратора (чтобы не лезть в ФС и БД в тестах)
type MigrationEngine func(sourceURL, databaseURL string) (Migrator, error)

type Migration struct {
	cfg    *config.Config
	engine MigrationEngine
}

func NewMigration(conf *config.Config, engine MigrationEngine) *Migration {
	if engine == nil {
		engine = DefaultEngine
	}
	return &Migration{
		cfg:    conf,
		engine: engine,
	}
}

// DefaultEngine реальная реализация; embed://<dialect> читает вшитые миграции
func DefaultEngine(sourceURL, databaseURL string) (Migrator, error) {
	if dir, ok := strings.CutPrefix(sourceURL, embeddedScheme); ok {
		src, err := iofs.New(migrations.FS, dir)
		if err != nil {
			return nil, fmt.Errorf("open embedded migrations: %w", err)
		}
		return migrate.NewWithSourceInstance("iofs", src, databaseURL)
	}
	return migrate.New(sourceURL, databaseURL)
}

// SourceURL каталог из MIGRATIONS_PATH или вшитые миграции для драйвера
func (mg *Migration) SourceURL() string {
	if mg.cfg.DB.Migrations != "" {
		return "file://" + mg.cfg.DB.Migrations
	}
	return embeddedScheme + mg.cfg.DB.Driver
}

func (mg *Migration) Up() error {
	return mg.run(func(m Migrator) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("%w; migration up error", err)
		}
		return nil
	})
}

// To migrates up or down to the given version.
func (mg *Migration) To(version uint) error {
	return mg.run(func(m Migrator) error {
		if err := m.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("%w; migration to version %d error", err, version)
		}
		return nil
	})
}

// Version returns the current schema version; 0 when nothing was applied.
func (mg *Migration) Version() (uint, bool, error) {
	var (
		version uint
		dirty   bool
	)
	err := mg.run(func(m Migrator) error {
		var err error
		version, dirty, err = m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		return err
	})
	return version, dirty, err
}

func (mg *Migration) run(fn func(m Migrator) error) (err error) {
	m, err := mg.engine(mg.SourceURL(), mg.cfg.MigrationDatabaseURL())
	if err != nil {
		return err
	}
	defer func() {
		serr, dberr := m.Close()
		if serr != nil {
			if err != nil {
				err = fmt.Errorf("%w; migration source error: %v", err, serr)
			} else {
				err = serr
			}
		}
		if dberr != nil {
			if err != nil {
				err = fmt.Errorf("%w; migration database error: %v", err, dberr)
			} else {
				err = dberr
			}
		}
	}()
	return fn(m)
}
