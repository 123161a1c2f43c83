package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"synthbot/internal/types"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements Store using SQLite. Durability comes from the
// database's own journaling (WAL), so no temp-file dance is needed here.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and migrates it.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS system_positions (
			system_id TEXT PRIMARY KEY,
			underlying TEXT NOT NULL,
			expiry DATETIME NOT NULL,
			strike TEXT NOT NULL,
			call_security_id TEXT NOT NULL,
			put_security_id TEXT NOT NULL DEFAULT '',
			quantity INTEGER NOT NULL,
			status TEXT NOT NULL,
			entered_at DATETIME NOT NULL,
			warning TEXT NOT NULL DEFAULT '',
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_system_positions_expiry ON system_positions(expiry)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}
	return nil
}

// Get returns the position for a system id.
func (s *SQLiteStore) Get(ctx context.Context, systemID string) (*types.SystemPosition, error) {
	query := `SELECT system_id, underlying, expiry, strike, call_security_id, put_security_id, quantity, status, entered_at, warning
		FROM system_positions WHERE system_id = ?`

	pos, err := scanPosition(s.db.QueryRowContext(ctx, query, systemID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query position: %w", err)
	}
	return pos, nil
}

// Put stores or replaces the position for a system id.
func (s *SQLiteStore) Put(ctx context.Context, pos types.SystemPosition) error {
	query := `INSERT OR REPLACE INTO system_positions
		(system_id, underlying, expiry, strike, call_security_id, put_security_id, quantity, status, entered_at, warning, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`

	if _, err := s.db.ExecContext(ctx, query, positionArgs(pos)...); err != nil {
		return fmt.Errorf("%w: %v", types.ErrStatePersistence, err)
	}
	return nil
}

// PutIfAbsent stores the position only when its system id is unoccupied.
func (s *SQLiteStore) PutIfAbsent(ctx context.Context, pos types.SystemPosition) (bool, error) {
	query := `INSERT OR IGNORE INTO system_positions
		(system_id, underlying, expiry, strike, call_security_id, put_security_id, quantity, status, entered_at, warning)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := s.db.ExecContext(ctx, query, positionArgs(pos)...)
	if err != nil {
		return false, fmt.Errorf("%w: %v", types.ErrStatePersistence, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: rows affected: %v", types.ErrStatePersistence, err)
	}
	return n > 0, nil
}

// Delete removes the position for a system id.
func (s *SQLiteStore) Delete(ctx context.Context, systemID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM system_positions WHERE system_id = ?`, systemID); err != nil {
		return fmt.Errorf("%w: %v", types.ErrStatePersistence, err)
	}
	return nil
}

// All returns every stored position keyed by system id.
func (s *SQLiteStore) All(ctx context.Context) (map[string]types.SystemPosition, error) {
	query := `SELECT system_id, underlying, expiry, strike, call_security_id, put_security_id, quantity, status, entered_at, warning
		FROM system_positions`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]types.SystemPosition)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out[pos.SystemID] = *pos
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func positionArgs(pos types.SystemPosition) []any {
	return []any{
		pos.SystemID,
		pos.Underlying,
		pos.Contract.Expiry.UTC(),
		pos.Contract.Strike.String(),
		pos.Contract.CallSecurityID,
		pos.Contract.PutSecurityID,
		pos.Quantity,
		string(pos.Status),
		pos.EnteredAt.UTC(),
		pos.Warning,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (*types.SystemPosition, error) {
	var pos types.SystemPosition
	var strike, status string
	var expiry, enteredAt time.Time

	err := row.Scan(
		&pos.SystemID,
		&pos.Underlying,
		&expiry,
		&strike,
		&pos.Contract.CallSecurityID,
		&pos.Contract.PutSecurityID,
		&pos.Quantity,
		&status,
		&enteredAt,
		&pos.Warning,
	)
	if err != nil {
		return nil, err
	}

	pos.Contract.Underlying = pos.Underlying
	pos.Contract.Expiry = expiry
	pos.Contract.Strike, _ = decimal.NewFromString(strike)
	pos.Status = types.PositionStatus(status)
	pos.EnteredAt = enteredAt
	return &pos, nil
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
