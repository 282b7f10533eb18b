package tokens

import (
	"context"
	"fmt"
	"io"
)

// Store persists the single token set.
//
// Load returns (nil, nil) when no company has been authorized yet. Save
// replaces the stored record as a whole.
type Store interface {
	Load(ctx context.Context) (*TokenSet, error)
	Save(ctx context.Context, ts *TokenSet) error
}

// Store kinds accepted by Open.
const (
	KindFile     = "file"
	KindMemory   = "memory"
	KindPostgres = "postgres"
	KindS3       = "s3"
)

// StoreConfig selects and configures a Store backend.
type StoreConfig struct {
	Kind string

	// file
	Path string

	// postgres
	DatabaseDSN string

	// s3
	S3 S3Config
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

var nopCloser = closerFunc(func() error { return nil })

// Open builds the configured store. The returned closer releases whatever
// the backend holds open and is never nil on success.
func Open(ctx context.Context, cfg StoreConfig) (Store, io.Closer, error) {
	switch cfg.Kind {
	case "", KindFile:
		if cfg.Path == "" {
			return nil, nil, fmt.Errorf("file token store: path is empty")
		}
		return NewFileStore(cfg.Path), nopCloser, nil

	case KindMemory:
		return NewMemoryStore(), nopCloser, nil

	case KindPostgres:
		store, db, err := OpenPostgres(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, err
		}
		return store, db, nil

	case KindS3:
		client, err := NewS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, nil, err
		}
		return NewS3Store(client, cfg.S3.Bucket, cfg.S3.Key), nopCloser, nil

	default:
		return nil, nil, fmt.Errorf("unknown token store kind %q", cfg.Kind)
	}
}
