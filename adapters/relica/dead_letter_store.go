package relica

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/coregx/relica"

	"github.com/coregx/msgrelay"
	"github.com/coregx/msgrelay/model"
)

// dlqRow is the flat database representation of a dead-lettered message.
type dlqRow struct {
	ID            string    `db:"id"`
	Type          string    `db:"type"`
	Payload       []byte    `db:"payload"`
	Sender        string    `db:"sender"`
	Recipient     string    `db:"recipient"`
	CreatedAt     time.Time `db:"created_at"`
	Priority      string    `db:"priority"`
	RetryCount    int       `db:"retry_count"`
	MaxRetries    int       `db:"max_retries"`
	EnqueuedAt    time.Time `db:"enqueued_at"`
	FailedAt      time.Time `db:"failed_at"`
	LastError     string    `db:"last_error"`
	FailureReason string    `db:"failure_reason"`
}

func toDLQRow(d model.DeadLetter) dlqRow {
	return dlqRow{
		ID:            d.ID,
		Type:          d.Type,
		Payload:       d.Payload,
		Sender:        d.Sender,
		Recipient:     d.Recipient,
		CreatedAt:     d.CreatedAt,
		Priority:      d.Priority.String(),
		RetryCount:    d.RetryCount,
		MaxRetries:    d.MaxRetries,
		EnqueuedAt:    d.EnqueuedAt,
		FailedAt:      d.FailedAt,
		LastError:     d.LastError,
		FailureReason: d.FailureReason,
	}
}

func (r dlqRow) toModel() model.DeadLetter {
	return model.DeadLetter{
		Message: model.Message{
			ID:        r.ID,
			Type:      r.Type,
			Payload:   r.Payload,
			Sender:    r.Sender,
			Recipient: r.Recipient,
			CreatedAt: r.CreatedAt,
		},
		Priority:      model.Priority(r.Priority),
		RetryCount:    r.RetryCount,
		MaxRetries:    r.MaxRetries,
		EnqueuedAt:    r.EnqueuedAt,
		FailedAt:      r.FailedAt,
		LastError:     r.LastError,
		FailureReason: r.FailureReason,
	}
}

// DeadLetterStore implements msgrelay.DeadLetterStore using Relica.
type DeadLetterStore struct {
	db          *relica.DB
	sqlDB       *sql.DB
	tablePrefix string
}

// NewDeadLetterStore creates a new DeadLetterStore with the default table prefix.
func NewDeadLetterStore(sqlDB *sql.DB, driverName string) *DeadLetterStore {
	return NewDeadLetterStoreWithPrefix(sqlDB, driverName, "relay_")
}

// NewDeadLetterStoreWithPrefix creates a new DeadLetterStore with a custom table prefix.
func NewDeadLetterStoreWithPrefix(sqlDB *sql.DB, driverName, prefix string) *DeadLetterStore {
	return &DeadLetterStore{
		db:          relica.WrapDB(sqlDB, driverName),
		sqlDB:       sqlDB,
		tablePrefix: prefix,
	}
}

func (s *DeadLetterStore) tableName() string {
	return s.tablePrefix + "dlq"
}

// Save creates or replaces the entry keyed by d.ID.
func (s *DeadLetterStore) Save(ctx context.Context, d model.DeadLetter) error {
	row := toDLQRow(d)

	var existing dlqRow
	err := s.db.WithContext(ctx).Select("id").
		From(s.tableName()).
		Where("id = ?", row.ID).
		One(&existing)

	if errors.Is(err, sql.ErrNoRows) {
		if err := s.db.WithContext(ctx).Model(&row).Table(s.tableName()).Insert(); err != nil {
			return msgrelay.NewErrorWithCause(msgrelay.ErrCodeStorage, "failed to insert dead-letter entry", err)
		}
		return nil
	}
	if err != nil {
		return msgrelay.NewErrorWithCause(msgrelay.ErrCodeStorage, "failed to look up dead-letter entry", err)
	}

	if err := s.db.WithContext(ctx).Model(&row).Table(s.tableName()).Update(); err != nil {
		return msgrelay.NewErrorWithCause(msgrelay.ErrCodeStorage, "failed to update dead-letter entry", err)
	}
	return nil
}

// Load returns all dead-lettered entries ordered by failure time.
func (s *DeadLetterStore) Load(ctx context.Context) ([]model.DeadLetter, error) {
	var rows []dlqRow

	err := s.db.WithContext(ctx).Select("*").
		From(s.tableName()).
		OrderBy("failed_at ASC").
		All(&rows)
	if err != nil {
		return nil, msgrelay.NewErrorWithCause(msgrelay.ErrCodeStorage, "failed to load dead-letter entries", err)
	}

	out := make([]model.DeadLetter, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// Remove deletes the entry keyed by id.
func (s *DeadLetterStore) Remove(ctx context.Context, id string) error {
	row := dlqRow{ID: id}
	if err := s.db.WithContext(ctx).Model(&row).Table(s.tableName()).Delete(); err != nil {
		return msgrelay.NewErrorWithCause(msgrelay.ErrCodeStorage, "failed to delete dead-letter entry", err)
	}
	return nil
}

// Clear deletes all entries.
func (s *DeadLetterStore) Clear(ctx context.Context) error {
	if _, err := s.sqlDB.ExecContext(ctx, "DELETE FROM "+s.tableName()); err != nil {
		return msgrelay.NewErrorWithCause(msgrelay.ErrCodeStorage, "failed to clear dead-letter entries", err)
	}
	return nil
}
