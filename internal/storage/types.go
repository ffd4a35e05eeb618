package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Store is a minimal key/value persistence API.
type Store interface {
	Get(ctx context.Context, key string) (val []byte, ok bool, err error)
	// Put overwrites the value stored under key.
	Put(ctx context.Context, key string, val []byte) error
	Delete(ctx context.Context, key string) error
	// Compact folds any write-ahead state into its compact form. Drivers
	// without such state return nil.
	Compact(ctx context.Context) error
	Close() error
}

// Config configures storage.
//
// If Driver is empty or "none", Open returns (nil, nil).
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
