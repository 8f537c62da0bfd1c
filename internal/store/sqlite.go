package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	apperrors "github.com/mcrsoft/keyserve/internal/errors"
	"github.com/mcrsoft/keyserve/pkg/contracts/domain"
)

// SQLiteStore is the durable Store backend. It holds dual reader/writer
// connections with WAL mode enabled: the writer is limited to a single
// connection to avoid "database is locked" errors, the reader pool allows
// up to 4 concurrent readers.
type SQLiteStore struct {
	writer *sql.DB
	reader *sql.DB
	path   string
}

var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS license_keys (
	token         TEXT PRIMARY KEY,
	grant_days    INTEGER NOT NULL,
	state         TEXT NOT NULL,
	bound_device  TEXT NOT NULL DEFAULT '',
	activation_id TEXT NOT NULL DEFAULT '',
	issued_at     TEXT NOT NULL,
	activated_at  TEXT,
	expires_at    TEXT
);

CREATE TABLE IF NOT EXISTS accounts (
	id           TEXT PRIMARY KEY,
	bound_device TEXT NOT NULL DEFAULT '',
	perpetual    INTEGER NOT NULL DEFAULT 0,
	expires_at   TEXT,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);
`

// NewSQLiteStore opens (creating if necessary) the database at dbPath with
// WAL mode, busy timeout, synchronous NORMAL and foreign keys enabled, and
// applies the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath,
	)

	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)

	if err := writer.Ping(); err != nil {
		writer.Close()
		return nil, fmt.Errorf("ping writer: %w", err)
	}

	if _, err := writer.Exec(schema); err != nil {
		writer.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}
	reader.SetMaxOpenConns(4)

	if err := reader.Ping(); err != nil {
		reader.Close()
		writer.Close()
		return nil, fmt.Errorf("ping reader: %w", err)
	}

	return &SQLiteStore{writer: writer, reader: reader, path: dbPath}, nil
}

func (s *SQLiteStore) InsertKey(ctx context.Context, cred domain.Credential) error {
	const query = `INSERT INTO license_keys
		(token, grant_days, state, bound_device, activation_id, issued_at, activated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.writer.ExecContext(ctx, query,
		cred.Token, cred.GrantDays, string(cred.State), cred.BoundDevice,
		cred.ActivationID, formatTime(cred.IssuedAt),
		formatTimePtr(cred.ActivatedAt), formatTimePtr(cred.ExpiresAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrDuplicateToken
		}
		return apperrors.StorageFailure("insert key", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateKey(ctx context.Context, cred domain.Credential) error {
	const query = `UPDATE license_keys
		SET grant_days = ?, state = ?, bound_device = ?, activation_id = ?,
		    issued_at = ?, activated_at = ?, expires_at = ?
		WHERE token = ?`

	res, err := s.writer.ExecContext(ctx, query,
		cred.GrantDays, string(cred.State), cred.BoundDevice, cred.ActivationID,
		formatTime(cred.IssuedAt), formatTimePtr(cred.ActivatedAt),
		formatTimePtr(cred.ExpiresAt), cred.Token)
	if err != nil {
		return apperrors.StorageFailure("update key", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperrors.StorageFailure("update key", err)
	}
	if affected == 0 {
		return ErrKeyNotFound
	}
	return nil
}

func (s *SQLiteStore) GetKey(ctx context.Context, token string) (domain.Credential, error) {
	const query = `SELECT token, grant_days, state, bound_device, activation_id,
		issued_at, activated_at, expires_at
		FROM license_keys WHERE token = ?`

	var (
		cred        domain.Credential
		state       string
		issuedAt    string
		activatedAt sql.NullString
		expiresAt   sql.NullString
	)
	err := s.reader.QueryRowContext(ctx, query, token).Scan(
		&cred.Token, &cred.GrantDays, &state, &cred.BoundDevice,
		&cred.ActivationID, &issuedAt, &activatedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Credential{}, ErrKeyNotFound
	}
	if err != nil {
		return domain.Credential{}, apperrors.StorageFailure("get key", err)
	}

	cred.State = domain.KeyState(state)
	if cred.IssuedAt, err = parseTime(issuedAt); err != nil {
		return domain.Credential{}, apperrors.StorageFailure("parse issued_at", err)
	}
	if cred.ActivatedAt, err = parseTimePtr(activatedAt); err != nil {
		return domain.Credential{}, apperrors.StorageFailure("parse activated_at", err)
	}
	if cred.ExpiresAt, err = parseTimePtr(expiresAt); err != nil {
		return domain.Credential{}, apperrors.StorageFailure("parse expires_at", err)
	}
	return cred, nil
}

func (s *SQLiteStore) DeleteKey(ctx context.Context, token string) error {
	res, err := s.writer.ExecContext(ctx, `DELETE FROM license_keys WHERE token = ?`, token)
	if err != nil {
		return apperrors.StorageFailure("delete key", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperrors.StorageFailure("delete key", err)
	}
	if affected == 0 {
		return ErrKeyNotFound
	}
	return nil
}

func (s *SQLiteStore) ListKeys(ctx context.Context) ([]domain.Credential, error) {
	const query = `SELECT token, grant_days, state, bound_device, activation_id,
		issued_at, activated_at, expires_at
		FROM license_keys ORDER BY issued_at, token`

	rows, err := s.reader.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.StorageFailure("list keys", err)
	}
	defer rows.Close()

	var keys []domain.Credential
	for rows.Next() {
		var (
			cred        domain.Credential
			state       string
			issuedAt    string
			activatedAt sql.NullString
			expiresAt   sql.NullString
		)
		if err := rows.Scan(&cred.Token, &cred.GrantDays, &state, &cred.BoundDevice,
			&cred.ActivationID, &issuedAt, &activatedAt, &expiresAt); err != nil {
			return nil, apperrors.StorageFailure("scan key", err)
		}
		cred.State = domain.KeyState(state)
		if cred.IssuedAt, err = parseTime(issuedAt); err != nil {
			return nil, apperrors.StorageFailure("parse issued_at", err)
		}
		if cred.ActivatedAt, err = parseTimePtr(activatedAt); err != nil {
			return nil, apperrors.StorageFailure("parse activated_at", err)
		}
		if cred.ExpiresAt, err = parseTimePtr(expiresAt); err != nil {
			return nil, apperrors.StorageFailure("parse expires_at", err)
		}
		keys = append(keys, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.StorageFailure("iterate keys", err)
	}
	return keys, nil
}

func (s *SQLiteStore) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	const query = `SELECT id, bound_device, perpetual, expires_at, created_at, updated_at
		FROM accounts WHERE id = ?`

	var (
		acct      domain.Account
		expiresAt sql.NullString
		createdAt string
		updatedAt string
	)
	err := s.reader.QueryRowContext(ctx, query, id).Scan(
		&acct.ID, &acct.BoundDevice, &acct.Perpetual, &expiresAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, ErrAccountNotFound
	}
	if err != nil {
		return domain.Account{}, apperrors.StorageFailure("get account", err)
	}

	if acct.ExpiresAt, err = parseTimePtr(expiresAt); err != nil {
		return domain.Account{}, apperrors.StorageFailure("parse expires_at", err)
	}
	if acct.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Account{}, apperrors.StorageFailure("parse created_at", err)
	}
	if acct.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.Account{}, apperrors.StorageFailure("parse updated_at", err)
	}
	return acct, nil
}

func (s *SQLiteStore) UpsertAccount(ctx context.Context, acct domain.Account) error {
	const query = `INSERT INTO accounts (id, bound_device, perpetual, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			bound_device = excluded.bound_device,
			perpetual = excluded.perpetual,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`

	_, err := s.writer.ExecContext(ctx, query,
		acct.ID, acct.BoundDevice, acct.Perpetual, formatTimePtr(acct.ExpiresAt),
		formatTime(acct.CreatedAt), formatTime(acct.UpdatedAt))
	if err != nil {
		return apperrors.StorageFailure("upsert account", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.reader.PingContext(ctx); err != nil {
		return apperrors.StorageFailure("ping", err)
	}
	return nil
}

// Close closes both reader and writer connections. Returns the first error
// encountered.
func (s *SQLiteStore) Close() error {
	var firstErr error
	if err := s.reader.Close(); err != nil {
		firstErr = fmt.Errorf("close reader: %w", err)
	}
	if err := s.writer.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close writer: %w", err)
	}
	return firstErr
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
