package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"

	"webchat-backend/internal/chat"
)

// CreateMessage appends a message to the conversation and returns its id.
// The sender must be a member of the conversation.
func (s *Store) CreateMessage(ctx context.Context, conversationID, senderID int64, content string) (int64, error) {
	s.logger.Debugf("Creating message from user (id: %d) in conversation (id: %d)", senderID, conversationID)

	if err := s.requireMember(ctx, senderID, conversationID); err != nil {
		return 0, err
	}

	var id int64
	sql := "insert into messages (conversation_id, sender_id, content) values ($1, $2, $3) returning id"
	err := s.db.QueryRow(ctx, sql, conversationID, senderID, content).Scan(&id)
	if err != nil {
		return 0, err
	}

	return id, nil
}

// MessagesByConversation returns all messages of a conversation with their
// reactions, sorted by creation time (from earliest to latest). Soft-deleted
// messages keep their row but surface the tombstone text instead of the
// original content.
func (s *Store) MessagesByConversation(ctx context.Context, callerID, conversationID int64) ([]Message, error) {
	s.logger.Debugf("Retrieving messages for conversation (id: %d)", conversationID)

	if err := s.requireMember(ctx, callerID, conversationID); err != nil {
		return nil, err
	}

	sql := `select m.id,
				   m.conversation_id,
				   m.sender_id,
				   m.content,
				   m.is_deleted,
				   m.created_at,
				   coalesce(r.reactions, '[]'::jsonb)
			  from messages m
			  left join (
				   select message_id,
						  jsonb_agg(jsonb_build_object('userId', user_id, 'emoji', emoji) order by id) as reactions
					 from message_reactions
					group by message_id
			  ) r on r.message_id = m.id
			 where m.conversation_id = $1
			 order by m.created_at asc, m.id asc`

	rows, err := s.db.Query(ctx, sql, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var (
			m             Message
			reactionsJSON pgtype.JSONB
		)
		err = rows.Scan(&m.ID, &m.Conversation, &m.Sender, &m.Content, &m.IsDeleted, &m.CreatedAt, &reactionsJSON)
		if err != nil {
			return nil, err
		}

		err = json.Unmarshal(reactionsJSON.Bytes, &m.Reactions)
		if err != nil {
			return nil, err
		}

		m.Content = chat.Redact(m.Content, m.IsDeleted)
		messages = append(messages, m)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	s.logger.Debugf("Retrieved %d messages", len(messages))

	return messages, nil
}

// SoftDeleteMessage tombstones a message. Only the original sender may
// delete it; the row itself is retained.
func (s *Store) SoftDeleteMessage(ctx context.Context, messageID, callerID int64) error {
	s.logger.Debugf("Soft-deleting message (id: %d) by user (id: %d)", messageID, callerID)

	var senderID int64
	err := s.db.QueryRow(ctx, "select sender_id from messages where id = $1", messageID).Scan(&senderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrMessageNotExist
		}
		return err
	}

	if senderID != callerID {
		return ErrNotSender
	}

	_, err = s.db.Exec(ctx, "update messages set is_deleted = true where id = $1", messageID)
	return err
}

// ToggleReaction flips the (caller, emoji) reaction on a message: an
// existing entry is removed, otherwise one is appended. Returns whether the
// reaction is present after the call.
func (s *Store) ToggleReaction(ctx context.Context, callerID, messageID int64, emoji string) (bool, error) {
	s.logger.Debugf("Toggling reaction (%s) on message (id: %d) by user (id: %d)", emoji, messageID, callerID)

	var conversationID int64
	err := s.db.QueryRow(ctx, "select conversation_id from messages where id = $1", messageID).Scan(&conversationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrMessageNotExist
		}
		return false, err
	}

	if err := s.requireMember(ctx, callerID, conversationID); err != nil {
		return false, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(context.Background())

	deleteSQL := "delete from message_reactions where message_id = $1 and user_id = $2 and emoji = $3"
	tag, err := tx.Exec(ctx, deleteSQL, messageID, callerID, emoji)
	if err != nil {
		return false, err
	}

	added := false
	if tag.RowsAffected() == 0 {
		// on conflict guard keeps rapid repeated toggles an idempotent flip
		insertSQL := `insert into message_reactions (message_id, user_id, emoji)
					  values ($1, $2, $3)
					  on conflict (message_id, user_id, emoji) do nothing`
		_, err = tx.Exec(ctx, insertSQL, messageID, callerID, emoji)
		if err != nil {
			return false, err
		}
		added = true
	}

	err = tx.Commit(ctx)
	if err != nil {
		return false, err
	}

	return added, nil
}
