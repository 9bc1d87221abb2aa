package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/tilawah-live-api/internal/handler"
	"github.com/noah-isme/tilawah-live-api/internal/models"
	"github.com/noah-isme/tilawah-live-api/internal/repository"
	"github.com/noah-isme/tilawah-live-api/internal/repository/memory"
	"github.com/noah-isme/tilawah-live-api/internal/service"
	"github.com/noah-isme/tilawah-live-api/pkg/cache"
	"github.com/noah-isme/tilawah-live-api/pkg/config"
	"github.com/noah-isme/tilawah-live-api/pkg/database"
)

type batchStore interface {
	service.BatchReader
	service.ScholarBatchLister
}

type storage struct {
	access   service.AccessRequestStore
	batches  batchStore
	sessions service.LiveSessionStore
	presence service.PresenceStore
	audit    service.AuditLogger
	checks   map[string]handler.ReadinessCheck
	closers  []func() error
}

func (s *storage) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

func openStorage(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*storage, error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		return openMemoryStorage(cfg, logr)
	}
	return openPostgresStorage(ctx, cfg, logr)
}

func openPostgresStorage(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*storage, error) {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		if version, err := database.Version(ctx, db); err == nil {
			logr.Info("database migrated", zap.Int64("version", version))
		}
	}

	rdb, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return &storage{
		access:   repository.NewAccessRequestRepository(db),
		batches:  repository.NewBatchRepository(db),
		sessions: repository.NewLiveSessionRepository(db),
		presence: repository.NewPresenceRepository(rdb, cfg.Redis.KeyPrefix, cfg.Live.PresenceTTL, logr),
		audit:    repository.NewAuditRepository(db),
		checks: map[string]handler.ReadinessCheck{
			"postgres": func(ctx context.Context) error { return pingDB(ctx, db) },
			"redis":    func(ctx context.Context) error { return pingRedis(ctx, rdb) },
		},
		closers: []func() error{db.Close, rdb.Close},
	}, nil
}

func openMemoryStorage(cfg *config.Config, logr *zap.Logger) (*storage, error) {
	mem := memory.NewDB()
	batches := memory.NewBatchRepository(mem)
	for _, entry := range cfg.MemoryBatches {
		batch, err := parseBatchSeed(entry)
		if err != nil {
			return nil, err
		}
		batches.Put(batch)
	}
	logr.Warn("using in-memory storage; data is lost on restart", zap.Int("seeded_batches", len(cfg.MemoryBatches)))

	return &storage{
		access:   memory.NewAccessRequestRepository(mem),
		batches:  batches,
		sessions: memory.NewLiveSessionRepository(mem),
		presence: memory.NewPresenceRepository(mem),
		audit:    memory.NewAuditRepository(mem),
		checks:   map[string]handler.ReadinessCheck{},
	}, nil
}

// parseBatchSeed reads "batchId:scholarId[:name]".
func parseBatchSeed(entry string) (models.Batch, error) {
	parts := strings.SplitN(entry, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return models.Batch{}, fmt.Errorf("invalid MEMORY_BATCHES entry %q", entry)
	}
	batch := models.Batch{ID: parts[0], ScholarID: parts[1], Name: parts[0], Status: models.BatchStatusActive}
	if len(parts) == 3 && parts[2] != "" {
		batch.Name = parts[2]
	}
	return batch, nil
}

func pingDB(ctx context.Context, db *sqlx.DB) error {
	return db.PingContext(ctx)
}

func pingRedis(ctx context.Context, rdb *redis.Client) error {
	return rdb.Ping(ctx).Err()
}
