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

// queueRow is the flat database representation of a queued message.
type queueRow struct {
	ID             string         `db:"id"`
	Type           string         `db:"type"`
	Payload        []byte         `db:"payload"`
	Sender         string         `db:"sender"`
	Recipient      string         `db:"recipient"`
	CreatedAt      time.Time      `db:"created_at"`
	Priority       string         `db:"priority"`
	EnqueuedAt     time.Time      `db:"enqueued_at"`
	RetryCount     int            `db:"retry_count"`
	MaxRetries     int            `db:"max_retries"`
	NextAttemptAt  time.Time      `db:"next_attempt_at"`
	LastError      sql.NullString `db:"last_error"`
	SequenceNumber int64          `db:"sequence_number"`
}

func toQueueRow(m model.QueuedMessage) queueRow {
	return queueRow{
		ID:             m.ID,
		Type:           m.Type,
		Payload:        m.Payload,
		Sender:         m.Sender,
		Recipient:      m.Recipient,
		CreatedAt:      m.CreatedAt,
		Priority:       m.Priority.String(),
		EnqueuedAt:     m.EnqueuedAt,
		RetryCount:     m.RetryCount,
		MaxRetries:     m.MaxRetries,
		NextAttemptAt:  m.NextAttemptAt,
		LastError:      m.LastError,
		SequenceNumber: m.SequenceNumber,
	}
}

func (r queueRow) toModel() model.QueuedMessage {
	return model.QueuedMessage{
		Message: model.Message{
			ID:        r.ID,
			Type:      r.Type,
			Payload:   r.Payload,
			Sender:    r.Sender,
			Recipient: r.Recipient,
			CreatedAt: r.CreatedAt,
		},
		Priority:       model.Priority(r.Priority),
		EnqueuedAt:     r.EnqueuedAt,
		RetryCount:     r.RetryCount,
		MaxRetries:     r.MaxRetries,
		NextAttemptAt:  r.NextAttemptAt,
		LastError:      r.LastError,
		SequenceNumber: r.SequenceNumber,
	}
}

// MessageStore implements msgrelay.MessageStore using Relica.
type MessageStore struct {
	db          *relica.DB
	sqlDB       *sql.DB
	tablePrefix string
}

// NewMessageStore creates a new MessageStore with the default table prefix.
func NewMessageStore(sqlDB *sql.DB, driverName string) *MessageStore {
	return NewMessageStoreWithPrefix(sqlDB, driverName, "relay_")
}

// NewMessageStoreWithPrefix creates a new MessageStore with a custom table prefix.
func NewMessageStoreWithPrefix(sqlDB *sql.DB, driverName, prefix string) *MessageStore {
	return &MessageStore{
		db:          relica.WrapDB(sqlDB, driverName),
		sqlDB:       sqlDB,
		tablePrefix: prefix,
	}
}

func (s *MessageStore) tableName() string {
	return s.tablePrefix + "queue"
}

// Save creates or replaces the record keyed by m.ID.
func (s *MessageStore) Save(ctx context.Context, m model.QueuedMessage) error {
	row := toQueueRow(m)

	var existing queueRow
	err := s.db.WithContext(ctx).Select("id").
		From(s.tableName()).
		Where("id = ?", row.ID).
		One(&existing)

	if errors.Is(err, sql.ErrNoRows) {
		if err := s.db.WithContext(ctx).Model(&row).Table(s.tableName()).Insert(); err != nil {
			return msgrelay.NewErrorWithCause(msgrelay.ErrCodeStorage, "failed to insert queue record", err)
		}
		return nil
	}
	if err != nil {
		return msgrelay.NewErrorWithCause(msgrelay.ErrCodeStorage, "failed to look up queue record", err)
	}

	if err := s.db.WithContext(ctx).Model(&row).Table(s.tableName()).Update(); err != nil {
		return msgrelay.NewErrorWithCause(msgrelay.ErrCodeStorage, "failed to update queue record", err)
	}
	return nil
}

// Load returns all persisted records ordered by sequence number.
func (s *MessageStore) Load(ctx context.Context) ([]model.QueuedMessage, error) {
	var rows []queueRow

	err := s.db.WithContext(ctx).Select("*").
		From(s.tableName()).
		OrderBy("sequence_number ASC").
		All(&rows)
	if err != nil {
		return nil, msgrelay.NewErrorWithCause(msgrelay.ErrCodeStorage, "failed to load queue records", err)
	}

	out := make([]model.QueuedMessage, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// Remove deletes the record keyed by id. Absent ids are not an error.
func (s *MessageStore) Remove(ctx context.Context, id string) error {
	row := queueRow{ID: id}
	if err := s.db.WithContext(ctx).Model(&row).Table(s.tableName()).Delete(); err != nil {
		return msgrelay.NewErrorWithCause(msgrelay.ErrCodeStorage, "failed to delete queue record", err)
	}
	return nil
}

// Clear deletes all records.
func (s *MessageStore) Clear(ctx context.Context) error {
	if _, err := s.sqlDB.ExecContext(ctx, "DELETE FROM "+s.tableName()); err != nil {
		return msgrelay.NewErrorWithCause(msgrelay.ErrCodeStorage, "failed to clear queue records", err)
	}
	return nil
}
