// Package queue implements the durable claim-and-delete work queue that feeds
// the background worker.
//
// A message is visible to claimers only while unclaimed. Claiming happens in
// an immediate-mode transaction so two processes can never claim the same
// row. Deleting a message is the acknowledgement; a claim that is never
// deleted or released becomes claimable again after CleanupStaleClaims.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/purpose168/mnemo/internal/db"
	"github.com/purpose168/mnemo/internal/pubsub"
)

// ErrSessionNotFound is returned when enqueueing for a session that does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Message is a queued unit of work.
type Message struct {
	ID        int64       `json:"id"`
	SessionID string      `json:"session_id"`
	Type      MessageType `json:"message_type"`
	Payload   string      `json:"payload"`
	CreatedAt time.Time   `json:"created_at"`
	// ClaimedAt is zero while the message is unclaimed.
	ClaimedAt time.Time `json:"claimed_at,omitzero"`
}

// Claimed reports whether the message is currently claimed.
func (m Message) Claimed() bool {
	return !m.ClaimedAt.IsZero()
}

// Decode parses the payload according to the message type.
func (m Message) Decode() (Payload, error) {
	return DecodePayload(m.Type, m.Payload)
}

// Service is the pending message queue.
type Service interface {
	pubsub.Subscriber[Message]

	Enqueue(ctx context.Context, sessionID string, payload Payload) (Message, error)
	// Claim atomically claims up to limit unclaimed messages in creation order.
	Claim(ctx context.Context, sessionID string, limit int) ([]Message, error)
	// ClaimAll atomically claims every unclaimed message of the session.
	ClaimAll(ctx context.Context, sessionID string) ([]Message, error)
	// Delete acknowledges processed messages.
	Delete(ctx context.Context, ids []int64) error
	// Release returns claimed messages to the unclaimed state.
	Release(ctx context.Context, ids []int64) error
	// CleanupStaleClaims releases claims older than timeout and returns how many.
	CleanupStaleClaims(ctx context.Context, timeout time.Duration) (int64, error)

	HasPending(ctx context.Context, sessionID string) (bool, error)
	PendingCount(ctx context.Context, sessionID string) (int64, error)
	// Pending lists unclaimed messages in creation order without claiming them.
	Pending(ctx context.Context, sessionID string) ([]Message, error)
}

type service struct {
	*pubsub.Broker[Message]
	db     *sql.DB
	q      *db.Queries
	logger *slog.Logger
	now    func() time.Time
}

// NewService returns a queue backed by conn.
func NewService(q *db.Queries, conn *sql.DB, logger *slog.Logger) Service {
	return newService(q, conn, logger)
}

func newService(q *db.Queries, conn *sql.DB, logger *slog.Logger) *service {
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		Broker: pubsub.NewBroker[Message](),
		db:     conn,
		q:      q,
		logger: logger.With("component", "queue"),
		now:    time.Now,
	}
}

func (s *service) Enqueue(ctx context.Context, sessionID string, payload Payload) (Message, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return Message{}, err
	}
	now := s.now()
	row, err := db.RetryResult(ctx, func(ctx context.Context) (db.PendingMessage, error) {
		return s.q.CreatePendingMessage(ctx, db.CreatePendingMessageParams{
			SessionID:      sessionID,
			MessageType:    string(payload.Type()),
			Payload:        raw,
			CreatedAt:      formatTime(now),
			CreatedAtEpoch: now.UnixMilli(),
		})
	})
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return Message{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return Message{}, fmt.Errorf("enqueue %s: %w", payload.Type(), err)
	}
	msg := fromDB(row)
	s.Publish(pubsub.CreatedEvent, msg)
	return msg, nil
}

func (s *service) Claim(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		return []Message{}, nil
	}
	return s.claim(ctx, sessionID, int64(limit))
}

func (s *service) ClaimAll(ctx context.Context, sessionID string) ([]Message, error) {
	// LIMIT -1 means no limit in SQLite.
	return s.claim(ctx, sessionID, -1)
}

func (s *service) claim(ctx context.Context, sessionID string, limit int64) ([]Message, error) {
	var claimed []Message
	err := db.Retry(ctx, func(ctx context.Context) error {
		msgs, err := s.claimOnce(ctx, sessionID, limit)
		if err != nil {
			return err
		}
		claimed = msgs
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim messages for %s: %w", sessionID, err)
	}
	if len(claimed) > 0 {
		s.logger.Debug("Claimed messages", "session_id", sessionID, "count", len(claimed))
	}
	return claimed, nil
}

// claimOnce takes the write lock up front with BEGIN IMMEDIATE on a dedicated
// connection, so the select and the update see the same snapshot.
func (s *service) claimOnce(ctx context.Context, sessionID string, limit int64) (_ []Message, err error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			// Use a fresh context: the caller's may already be cancelled.
			if _, rbErr := conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK"); rbErr != nil {
				s.logger.Warn("Rollback failed", "error", rbErr)
			}
		}
	}()

	q := db.New(conn)
	rows, err := q.ListUnclaimedMessages(ctx, db.ListUnclaimedMessagesParams{
		SessionID: sessionID,
		Limit:     limit,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	claimedAt := sql.NullString{String: formatTime(now), Valid: true}
	claimedAtEpoch := sql.NullInt64{Int64: now.UnixMilli(), Valid: true}

	out := make([]Message, 0, len(rows))
	for _, row := range rows {
		n, err := q.ClaimPendingMessage(ctx, db.ClaimPendingMessageParams{
			ClaimedAt:      claimedAt,
			ClaimedAtEpoch: claimedAtEpoch,
			ID:             row.ID,
		})
		if err != nil {
			return nil, err
		}
		if n != 1 {
			// Cannot happen while we hold the write lock.
			return nil, fmt.Errorf("message %d was claimed concurrently", row.ID)
		}
		row.ClaimedAt = claimedAt
		row.ClaimedAtEpoch = claimedAtEpoch
		out = append(out, fromDB(row))
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) Delete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.inTx(ctx, func(q *db.Queries) error {
		for _, id := range ids {
			if _, err := q.DeletePendingMessage(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	for _, id := range ids {
		s.Publish(pubsub.DeletedEvent, Message{ID: id})
	}
	return nil
}

func (s *service) Release(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.inTx(ctx, func(q *db.Queries) error {
		for _, id := range ids {
			if _, err := q.ReleasePendingMessage(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("release messages: %w", err)
	}
	return nil
}

func (s *service) CleanupStaleClaims(ctx context.Context, timeout time.Duration) (int64, error) {
	cutoff := s.now().Add(-timeout).UnixMilli()
	n, err := db.RetryResult(ctx, func(ctx context.Context) (int64, error) {
		return s.q.ReleaseStaleClaims(ctx, cutoff)
	})
	if err != nil {
		return 0, fmt.Errorf("release stale claims: %w", err)
	}
	if n > 0 {
		s.logger.Info("Released stale claims", "count", n, "timeout", timeout)
	}
	return n, nil
}

func (s *service) HasPending(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.PendingCount(ctx, sessionID)
	return n > 0, err
}

func (s *service) PendingCount(ctx context.Context, sessionID string) (int64, error) {
	return db.RetryResult(ctx, func(ctx context.Context) (int64, error) {
		return s.q.CountPendingMessages(ctx, sessionID)
	})
}

func (s *service) Pending(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := db.RetryResult(ctx, func(ctx context.Context) ([]db.PendingMessage, error) {
		return s.q.ListUnclaimedMessages(ctx, db.ListUnclaimedMessagesParams{
			SessionID: sessionID,
			Limit:     -1,
		})
	})
	if err != nil {
		return nil, err
	}
	out := make([]Message, len(rows))
	for i, row := range rows {
		out[i] = fromDB(row)
	}
	return out, nil
}

// inTx runs fn in a transaction, retrying the whole transaction on contention.
func (s *service) inTx(ctx context.Context, fn func(q *db.Queries) error) error {
	return db.Retry(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck
		if err := fn(s.q.WithTx(tx)); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func fromDB(row db.PendingMessage) Message {
	msg := Message{
		ID:        row.ID,
		SessionID: row.SessionID,
		Type:      MessageType(row.MessageType),
		Payload:   row.Payload,
		CreatedAt: time.UnixMilli(row.CreatedAtEpoch),
	}
	if row.ClaimedAtEpoch.Valid {
		msg.ClaimedAt = time.UnixMilli(row.ClaimedAtEpoch.Int64)
	}
	return msg
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
