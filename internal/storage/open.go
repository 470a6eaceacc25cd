package storage

import (
	"context"
	"errors"
	"strings"

	logx "announceq/pkg/logx"
)

// Store is the minimal persistence API used by the app.
type Store interface {
	AppendDelivery(ctx context.Context, e DeliveryEntry) error
	RecentDeliveries(ctx context.Context, limit int) ([]DeliveryEntry, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
