package tokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/go-authgate/qbo-bridge/tokens/migrations"
)

// DBTX is the subset of *sql.DB and *sql.Tx the Postgres store uses.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore keeps the token set in a one-row table.
type PostgresStore struct {
	db DBTX
}

// NewPostgresStore wraps an already migrated connection.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects through the pgx driver and applies pending migrations.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, *sql.DB, error) {
	if dsn == "" {
		return nil, nil, errors.New("postgres token store: DATABASE_DSN is empty")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}

	return NewPostgresStore(db), db, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

const (
	selectTokenSet = `
		SELECT access_token, refresh_token, realm_id, scope, token_type,
		       expires_at, issued_at, version
		FROM oauth_token_sets
		WHERE id = 1`

	upsertTokenSet = `
		INSERT INTO oauth_token_sets
			(id, access_token, refresh_token, realm_id, scope, token_type,
			 expires_at, issued_at, version, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (id) DO UPDATE SET
			access_token  = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			realm_id      = EXCLUDED.realm_id,
			scope         = EXCLUDED.scope,
			token_type    = EXCLUDED.token_type,
			expires_at    = EXCLUDED.expires_at,
			issued_at     = EXCLUDED.issued_at,
			version       = EXCLUDED.version,
			updated_at    = now()`
)

func (s *PostgresStore) Load(ctx context.Context) (*TokenSet, error) {
	var (
		ts        TokenSet
		expiresAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, selectTokenSet).Scan(
		&ts.AccessToken,
		&ts.RefreshToken,
		&ts.RealmID,
		&ts.Scope,
		&ts.TokenType,
		&expiresAt,
		&ts.IssuedAt,
		&ts.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load token set: %w", err)
	}
	if expiresAt.Valid {
		ts.ExpiresAt = expiresAt.Time
	}
	return &ts, nil
}

func (s *PostgresStore) Save(ctx context.Context, ts *TokenSet) error {
	if ts == nil {
		return errors.New("token set is nil")
	}

	expiresAt := sql.NullTime{Time: ts.ExpiresAt, Valid: !ts.ExpiresAt.IsZero()}
	issuedAt := ts.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, upsertTokenSet,
		ts.AccessToken,
		ts.RefreshToken,
		ts.RealmID,
		ts.Scope,
		ts.TokenType,
		expiresAt,
		issuedAt,
		ts.Version,
	)
	if err != nil {
		return fmt.Errorf("save token set: %w", err)
	}
	return nil
}
