// Package records persists scan records in SQLite and publishes the live
// record set to subscribers.
package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raysh454/zapdash/internal/logging"
	"github.com/raysh454/zapdash/internal/model"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrTerminalStatus = errors.New("record already has a terminal status")
	ErrInvalidStatus  = errors.New("invalid status")
	ErrMissingField   = errors.New("missing required field")
)

// NewRecord holds the fields supplied when a test is submitted.
type NewRecord struct {
	TestName  string
	TargetURL string
	TestDate  string
	Type      string
	ScanID    string
	// Status defaults to initiated.
	Status model.ScanStatus
}

// Store is the SQLite-backed record store.
type Store struct {
	db     *sql.DB
	logger logging.Logger
	now    func() time.Time

	pubMu   sync.Mutex
	mu      sync.Mutex
	subs    map[int]chan []model.ScanRecord
	nextSub int
}

// NewStore applies the schema to db and returns a Store.
func NewStore(db *sql.DB, logger logging.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if err := applySchema(db); err != nil {
		return nil, err
	}
	return &Store{
		db:     db,
		logger: logger.With(logging.Field{Key: "component", Value: "records"}),
		now:    func() time.Time { return time.Now().UTC() },
		subs:   make(map[int]chan []model.ScanRecord),
	}, nil
}

const selectColumns = `id, test_name, target_url, test_date, type, scan_id, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.ScanRecord, error) {
	var (
		rec                  model.ScanRecord
		status               string
		createdAt, updatedAt string
	)
	if err := row.Scan(&rec.ID, &rec.TestName, &rec.TargetURL, &rec.TestDate, &rec.Type,
		&rec.ScanID, &status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rec.Status = model.ScanStatus(status)
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &rec, nil
}

// Create inserts a record and returns it with its generated id.
func (s *Store) Create(ctx context.Context, in NewRecord) (*model.ScanRecord, error) {
	if strings.TrimSpace(in.TargetURL) == "" {
		return nil, fmt.Errorf("%w: targetURL", ErrMissingField)
	}
	if strings.TrimSpace(in.ScanID) == "" {
		return nil, fmt.Errorf("%w: scanId", ErrMissingField)
	}
	status := in.Status
	if status == "" {
		status = model.StatusInitiated
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	now := s.now()
	rec := &model.ScanRecord{
		ID:        uuid.New().String(),
		TestName:  in.TestName,
		TargetURL: in.TargetURL,
		TestDate:  in.TestDate,
		Type:      in.Type,
		ScanID:    in.ScanID,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if rec.TestDate == "" {
		rec.TestDate = now.Format(time.RFC3339)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_records (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TestName, rec.TargetURL, rec.TestDate, rec.Type, rec.ScanID,
		string(rec.Status), now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert record: %w", err)
	}

	s.logger.Info("record created",
		logging.Field{Key: "id", Value: rec.ID},
		logging.Field{Key: "scan_id", Value: rec.ScanID})
	s.publish(ctx)
	return rec, nil
}

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id string) (*model.ScanRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM scan_records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// List returns every record, newest first.
func (s *Store) List(ctx context.Context) ([]model.ScanRecord, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM scan_records ORDER BY created_at DESC, id`)
}

// ListPending returns records whose status is not terminal, oldest first.
func (s *Store) ListPending(ctx context.Context) ([]model.ScanRecord, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM scan_records
		WHERE status IN (?, ?, ?) ORDER BY created_at, id`,
		string(model.StatusInitiated), string(model.StatusRunning), string(model.StatusProcessing))
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]model.ScanRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	out := []model.ScanRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// UpdateStatus sets the status of a record. Setting the current status is a
// no-op. Moving a record out of a terminal status returns ErrTerminalStatus.
func (s *Store) UpdateStatus(ctx context.Context, id string, status model.ScanStatus) (*model.ScanRecord, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rec, err := scanRecord(tx.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM scan_records WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	if rec.Status == status {
		return rec, nil
	}
	if rec.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrTerminalStatus, id, rec.Status)
	}

	now := s.now()
	if _, err := tx.ExecContext(ctx, `UPDATE scan_records SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), now.Format(time.RFC3339Nano), id); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("record status changed",
		logging.Field{Key: "id", Value: id},
		logging.Field{Key: "from", Value: string(rec.Status)},
		logging.Field{Key: "to", Value: string(status)})

	rec.Status = status
	rec.UpdatedAt = now
	s.publish(ctx)
	return rec, nil
}

// Delete removes a record.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scan_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	s.logger.Info("record deleted", logging.Field{Key: "id", Value: id})
	s.publish(ctx)
	return nil
}
