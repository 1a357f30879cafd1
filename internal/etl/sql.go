package etl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// DefaultSQLTable is the SQL Server table SQLStore uses.
const DefaultSQLTable = "tap_state"

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLStore keeps checkpoints in a SQL Server table keyed by tap name.
type SQLStore struct {
	DB    *sql.DB
	Table string
	Tap   string
}

func NewSQLStore(db *sql.DB, table, tap string) (*SQLStore, error) {
	if table == "" {
		table = DefaultSQLTable
	}
	if !identifierPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &SQLStore{DB: db, Table: table, Tap: tap}, nil
}

// EnsureSchema creates the checkpoint table if it does not exist.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
IF OBJECT_ID(N'dbo.%[1]s', N'U') IS NULL
CREATE TABLE dbo.%[1]s (
	tap_name   NVARCHAR(200) NOT NULL PRIMARY KEY,
	value      NVARCHAR(MAX) NOT NULL,
	run_id     NVARCHAR(64)  NULL,
	updated_at DATETIME2     NOT NULL
)`, s.Table)
	if _, err := s.DB.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.Table, err)
	}
	return nil
}

func (s *SQLStore) Load(ctx context.Context) (Checkpoint, bool, error) {
	query := fmt.Sprintf("SELECT value, run_id, updated_at FROM dbo.%s WHERE tap_name = @p1", s.Table)

	var (
		value     string
		runID     sql.NullString
		updatedAt time.Time
	)
	err := s.DB.QueryRowContext(ctx, query, s.Tap).Scan(&value, &runID, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("load checkpoint for %s: %w", s.Tap, err)
	}
	return Checkpoint{Value: []byte(value), RunID: runID.String, UpdatedAt: updatedAt}, true, nil
}

// Save updates the tap's row, inserting it when missing, in one transaction.
func (s *SQLStore) Save(ctx context.Context, cp Checkpoint) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save checkpoint for %s: %w", s.Tap, err)
	}
	defer tx.Rollback()

	runID := sql.NullString{String: cp.RunID, Valid: cp.RunID != ""}
	update := fmt.Sprintf("UPDATE dbo.%s SET value = @p1, run_id = @p2, updated_at = @p3 WHERE tap_name = @p4", s.Table)
	res, err := tx.ExecContext(ctx, update, string(cp.Value), runID, cp.UpdatedAt, s.Tap)
	if err != nil {
		return fmt.Errorf("error updating checkpoint: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error updating checkpoint: %w", err)
	}
	if n == 0 {
		insert := fmt.Sprintf("INSERT INTO dbo.%s (tap_name, value, run_id, updated_at) VALUES (@p1, @p2, @p3, @p4)", s.Table)
		if _, err := tx.ExecContext(ctx, insert, s.Tap, string(cp.Value), runID, cp.UpdatedAt); err != nil {
			return fmt.Errorf("error inserting checkpoint: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) Describe() string {
	return fmt.Sprintf("sqlserver:%s/%s", s.Table, s.Tap)
}
