package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/lib/pq"

	errorskg "github.com/sehgal-vip/travel-agent/errors"
	"github.com/sehgal-vip/travel-agent/session"
)

// PostgresStore keeps each conversation as one JSONB row. Saves merge with
// the JSONB concatenation operator so keys absent from the update survive.
type PostgresStore struct {
	db    *sql.DB
	table string
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Table    string
}

// DefaultPostgresConfig returns default PostgreSQL configuration
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		DBName:   "travel_agent",
		SSLMode:  "disable",
		Table:    "conversations",
	}
}

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// DSN renders the lib/pq connection string.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// NewPostgresStore connects, pings and creates the table if needed.
func NewPostgresStore(ctx context.Context, config *PostgresConfig) (*PostgresStore, error) {
	if config == nil {
		config = DefaultPostgresConfig()
	}
	table := config.Table
	if table == "" {
		table = "conversations"
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("table name %q: %w", table, errorskg.ErrInvalidInput)
	}

	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	store := &PostgresStore{db: db, table: table}
	if err := store.createTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return store, nil
}

// createTable creates the conversations table if it doesn't exist
func (s *PostgresStore) createTable(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		id VARCHAR(255) PRIMARY KEY,
		data JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_updated_at ON %[1]s(updated_at);
	`, s.table)

	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Save upserts doc, merging it over the stored JSONB and dropping the keys
// doc marks null.
func (s *PostgresStore) Save(ctx context.Context, id string, doc session.Document) error {
	if id == "" {
		return fmt.Errorf("conversation id cannot be empty: %w", errorskg.ErrInvalidInput)
	}
	set, removed := doc.Split()
	raw, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	if removed == nil {
		removed = []string{}
	}

	now := time.Now().UTC()
	query := fmt.Sprintf(`
	INSERT INTO %[1]s (id, data, created_at, updated_at)
	VALUES ($1, $2::jsonb, $3, $3)
	ON CONFLICT (id) DO UPDATE SET
		data = (%[1]s.data || EXCLUDED.data) - $4::text[],
		updated_at = EXCLUDED.updated_at
	`, s.table)

	if _, err := s.db.ExecContext(ctx, query, id, string(raw), now, pq.Array(removed)); err != nil {
		return fmt.Errorf("failed to save conversation to PostgreSQL: %w", err)
	}
	return nil
}

// Load returns the stored document.
func (s *PostgresStore) Load(ctx context.Context, id string) (session.Document, error) {
	var raw []byte
	query := fmt.Sprintf(`SELECT data FROM %s WHERE id = $1`, s.table)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("conversation %s: %w", id, errorskg.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	doc := session.Document{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode conversation: %w", err)
	}
	return doc, nil
}

// Delete removes a conversation row.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table)
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// List returns conversation ids, most recently updated first.
func (s *PostgresStore) List(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT id FROM %s ORDER BY updated_at DESC`, s.table)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan conversation id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}
	return ids, nil
}

// Exists reports whether a row exists for id.
func (s *PostgresStore) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)`, s.table)
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check conversation existence: %w", err)
	}
	return exists, nil
}

// Clear removes all conversations.
func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", s.table)); err != nil {
		return fmt.Errorf("failed to clear conversations: %w", err)
	}
	return nil
}

// Close closes the PostgreSQL connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping checks if PostgreSQL connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
