package node

import (
	"context"
	"fmt"

	"eventsync/internal/config"
	"eventsync/internal/domain/apilog"
	"eventsync/internal/domain/sync"
	"eventsync/internal/infrastructure/migration"
	"eventsync/internal/infrastructure/storage"
	"eventsync/internal/infrastructure/storage/postgres"
	"eventsync/internal/infrastructure/storage/sqlite"

	"golang.org/x/exp/slog"
)

// Node хранилище узла и сервисы поверх него
type Node struct {
	Name    string
	DB      storage.DB
	Store   *storage.SyncRepository
	History *storage.HistoryRepository
	APILog  *apilog.Service
}

// Open подключается к хранилищу из конфигурации и применяет миграции
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Node, error) {
	if err := migration.NewMigration(cfg, migration.DefaultEngine).Up(); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	db, err := OpenDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	log.Info("Node storage opened",
		slog.String("node", cfg.Node.Name),
		slog.String("driver", db.Driver()))

	return New(cfg.Node.Name, db, log), nil
}

// OpenDB открывает соединение без миграций
func OpenDB(ctx context.Context, cfg *config.Config) (storage.DB, error) {
	switch cfg.DB.Driver {
	case config.DriverPostgres:
		return postgres.New(ctx, cfg.DB.DatabaseURI)
	case config.DriverSQLite:
		return sqlite.New(ctx, cfg.DB.DatabaseURI)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.DB.Driver)
	}
}

func New(name string, db storage.DB, log *slog.Logger) *Node {
	return &Node{
		Name:    name,
		DB:      db,
		Store:   storage.NewSyncRepository(db, log),
		History: storage.NewHistoryRepository(db, log),
		APILog:  apilog.NewService(storage.NewAPILogRepository(db, log), log),
	}
}

// SyncService собирает сервис синхронизации; peer может быть nil для чисто отвечающего узла
func (n *Node) SyncService(peer sync.Peer, log *slog.Logger, cfg *sync.ServiceConfig) *sync.Service {
	return sync.NewService(n.Store, peer, n.History, log, cfg)
}

func (n *Node) Close() error {
	return n.DB.Close()
}
