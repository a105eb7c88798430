package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// --------- Data models ---------

// Delivery is one received webhook as seen by the router. It carries routing
// metadata only; the moves and outcome of a round are not recorded.
type Delivery struct {
	ID          uuid.UUID `json:"id"`
	ReceivedAt  time.Time `json:"received_at"`
	RequestID   string    `json:"request_id,omitempty"`
	MessageType string    `json:"message_type"`
	TenantID    string    `json:"tenant_id,omitempty"`
	AppID       string    `json:"app_id,omitempty"`
	FeatureID   string    `json:"feature_id,omitempty"`
	CanvasID    string    `json:"canvas_id,omitempty"`
	ButtonID    string    `json:"button_id,omitempty"`
	Action      string    `json:"action"`
	Error       string    `json:"error,omitempty"`
	DurationMs  int64     `json:"duration_ms"`
}

// Query selects a page of deliveries.
type Query struct {
	Limit  int
	Offset int
	// Action filters by action when non-empty.
	Action string
}

// --------- Store ---------

// Store persists deliveries in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens/creates a SQLite database at path and runs migrations.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite is not concurrent for writes
	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return s, nil
}

// Close closes the DB.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// --------- Migrations ---------

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS deliveries (
			id TEXT PRIMARY KEY,
			received_at TIMESTAMP NOT NULL,
			request_id TEXT NOT NULL DEFAULT '',
			message_type TEXT NOT NULL,
			tenant_id TEXT NOT NULL DEFAULT '',
			app_id TEXT NOT NULL DEFAULT '',
			feature_id TEXT NOT NULL DEFAULT '',
			canvas_id TEXT NOT NULL DEFAULT '',
			button_id TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_received ON deliveries(received_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_action ON deliveries(action, received_at DESC);`,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// --------- Deliveries ---------

// Record stores a delivery. A zero ID is replaced with a new UUID and a zero
// ReceivedAt with the current time.
func (s *Store) Record(ctx context.Context, d Delivery) (uuid.UUID, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.ReceivedAt.IsZero() {
		d.ReceivedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deliveries(id, received_at, request_id, message_type, tenant_id, app_id,
			feature_id, canvas_id, button_id, action, error, duration_ms)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID.String(), d.ReceivedAt.UTC(), d.RequestID, d.MessageType, d.TenantID, d.AppID,
		d.FeatureID, d.CanvasID, d.ButtonID, d.Action, d.Error, d.DurationMs,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("journal: record delivery: %w", err)
	}
	return d.ID, nil
}

// List returns deliveries newest first.
func (s *Store) List(ctx context.Context, q Query) ([]Delivery, error) {
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, received_at, request_id, message_type, tenant_id, app_id,
			feature_id, canvas_id, button_id, action, error, duration_ms
		FROM deliveries`
	args := []any{}
	if q.Action != "" {
		query += ` WHERE action=?`
		args = append(args, q.Action)
	}
	query += ` ORDER BY received_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: list deliveries: %w", err)
	}
	defer rows.Close()

	out := make([]Delivery, 0, limit)
	for rows.Next() {
		var (
			d     Delivery
			idStr string
		)
		if err := rows.Scan(&idStr, &d.ReceivedAt, &d.RequestID, &d.MessageType, &d.TenantID, &d.AppID,
			&d.FeatureID, &d.CanvasID, &d.ButtonID, &d.Action, &d.Error, &d.DurationMs); err != nil {
			return nil, fmt.Errorf("journal: scan delivery: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("journal: bad delivery id %q: %w", idStr, err)
		}
		d.ID = id
		out = append(out, d)
	}
	return out, rows.Err()
}

// Counts returns the number of deliveries per action.
func (s *Store) Counts(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT action, COUNT(*) FROM deliveries GROUP BY action`)
	if err != nil {
		return nil, fmt.Errorf("journal: count deliveries: %w", err)
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var (
			action string
			n      int64
		)
		if err := rows.Scan(&action, &n); err != nil {
			return nil, fmt.Errorf("journal: scan count: %w", err)
		}
		out[action] = n
	}
	return out, rows.Err()
}
