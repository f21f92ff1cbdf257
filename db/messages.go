package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/leolive/onebody/consts"
	"github.com/leolive/onebody/mailroom"
)

// MessageStore implements mailroom.MessageStore.
type MessageStore struct {
	db *Database
}

func NewMessageStore(db *Database) *MessageStore {
	return &MessageStore{db: db}
}

// CreateMessage persists an accepted delivery and its attachments in a
// single transaction. The (site_id, dedup_hash) unique constraint is
// the atomic insert that serializes concurrent duplicate processing: a
// conflicting insert returns consts.ErrMessageExists and nothing is
// written, so there is never a partial fan-out without its Message.
func (s *MessageStore) CreateMessage(ctx context.Context, m *mailroom.NewMessage) (*mailroom.Message, error) {
	tx, err := s.db.WritePool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", consts.ErrDBBeginTransactionFailed, err)
	}
	defer tx.Rollback(ctx)

	var msg mailroom.Message
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (site_id, person_id, sender_email, to_person_id, group_id,
		                      subject, body, html_body, code, dedup_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (site_id, dedup_hash) DO NOTHING
		RETURNING id, created_at
	`, m.SiteID, m.PersonID, m.SenderEmail, m.ToPersonID, m.GroupID,
		m.Subject, m.Body, m.HTMLBody, m.Code, m.DedupHash).
		Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, consts.ErrMessageExists
		}
		return nil, fmt.Errorf("%w: %v", consts.ErrDBInsertFailed, err)
	}

	for _, a := range m.Attachments {
		_, err := tx.Exec(ctx, `
			INSERT INTO attachments (message_id, name, content_type, content)
			VALUES ($1, $2, $3, $4)
		`, msg.ID, a.Name, a.ContentType, a.Content)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", consts.ErrDBInsertFailed, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", consts.ErrDBCommitTransactionFailed, err)
	}

	msg.SiteID = m.SiteID
	msg.PersonID = m.PersonID
	msg.SenderEmail = m.SenderEmail
	msg.ToPersonID = m.ToPersonID
	msg.GroupID = m.GroupID
	msg.Subject = m.Subject
	msg.Body = m.Body
	msg.HTMLBody = m.HTMLBody
	msg.Code = m.Code
	return &msg, nil
}

// FindMessageByToken resolves a correlation token to its Message. The
// token's id and code must both match; the code is the per-message
// secret that keeps ids unguessable.
func (s *MessageStore) FindMessageByToken(ctx context.Context, token mailroom.Token) (*mailroom.Message, error) {
	var msg mailroom.Message
	err := s.db.ReadPool.QueryRow(ctx, `
		SELECT id, site_id, person_id, sender_email, to_person_id, group_id,
		       subject, body, html_body, code, created_at
		FROM messages
		WHERE id = $1 AND code = $2
	`, token.MessageID, token.Code).
		Scan(&msg.ID, &msg.SiteID, &msg.PersonID, &msg.SenderEmail, &msg.ToPersonID,
			&msg.GroupID, &msg.Subject, &msg.Body, &msg.HTMLBody, &msg.Code, &msg.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, consts.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to look up message by token: %w", err)
	}
	return &msg, nil
}
