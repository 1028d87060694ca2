package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"

	"webchat-backend/internal/chat"
)

// SetTyping stamps the caller's typing expiry on their membership. The
// expiry is an absolute instant; readers compare it against wall-clock time.
func (s *Store) SetTyping(ctx context.Context, callerID, conversationID, untilMS int64) error {
	sql := "update conversation_members set typing_until_ms = $3 where user_id = $1 and conversation_id = $2"
	tag, err := s.db.Exec(ctx, sql, callerID, conversationID, untilMS)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// distinguish missing conversation from missing membership
		return s.requireMember(ctx, callerID, conversationID)
	}
	return nil
}

// TypingStates returns the typing expiries of every member except the
// caller, for lazy evaluation against the current time.
func (s *Store) TypingStates(ctx context.Context, callerID, conversationID int64) ([]chat.MemberTyping, error) {
	if err := s.requireMember(ctx, callerID, conversationID); err != nil {
		return nil, err
	}

	sql := `select user_id, typing_until_ms
			  from conversation_members
			 where conversation_id = $1 and user_id <> $2
			 order by id`
	rows, err := s.db.Query(ctx, sql, conversationID, callerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	states := make([]chat.MemberTyping, 0)
	for rows.Next() {
		var mt chat.MemberTyping
		if err := rows.Scan(&mt.UserID, &mt.UntilMS); err != nil {
			return nil, err
		}
		states = append(states, mt)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return states, nil
}

// MarkRead moves the caller's read position in a conversation to the given
// message
func (s *Store) MarkRead(ctx context.Context, callerID, conversationID, messageID int64) error {
	s.logger.Debugf("Marking message %d read by user %d in conversation %d", messageID, callerID, conversationID)

	var msgConversation int64
	err := s.db.QueryRow(ctx, "select conversation_id from messages where id = $1", messageID).Scan(&msgConversation)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrMessageNotExist
		}
		return err
	}
	if msgConversation != conversationID {
		return ErrMessageNotExist
	}

	sql := "update conversation_members set last_read_message_id = $3 where user_id = $1 and conversation_id = $2"
	tag, err := s.db.Exec(ctx, sql, callerID, conversationID, messageID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.requireMember(ctx, callerID, conversationID)
	}
	return nil
}

// UnreadCounts computes, for every conversation of the caller, how many
// live messages from other members arrived after the caller's read
// position. Soft-deleted messages do not count. For direct conversations
// the counterpart's id is attached so 1:1 clients can key by user.
func (s *Store) UnreadCounts(ctx context.Context, callerID int64) ([]UnreadCount, error) {
	s.logger.Debugf("Computing unread counts for user (id: %d)", callerID)

	type membershipRow struct {
		conversationID int64
		lastReadAt     *time.Time
		otherID        *int64
	}

	sql := `select cm.conversation_id,
				   lr.created_at,
				   case when c.is_group then null
						else (select om.user_id
								from conversation_members om
							   where om.conversation_id = cm.conversation_id
								 and om.user_id <> $1
							   order by om.id
							   limit 1)
				   end as other_id
			  from conversation_members cm
			  join conversations c on c.id = cm.conversation_id
			  left join messages lr on lr.id = cm.last_read_message_id
			 where cm.user_id = $1`

	rows, err := s.db.Query(ctx, sql, callerID)
	if err != nil {
		return nil, err
	}

	memberships := make([]membershipRow, 0)
	for rows.Next() {
		var mr membershipRow
		if err := rows.Scan(&mr.conversationID, &mr.lastReadAt, &mr.otherID); err != nil {
			rows.Close()
			return nil, err
		}
		memberships = append(memberships, mr)
	}
	if rows.Err() != nil {
		rows.Close()
		return nil, rows.Err()
	}
	rows.Close()

	countSQL := `select count(*)
				   from messages
				  where conversation_id = $1
					and sender_id <> $2
					and not is_deleted
					and ($3::timestamptz is null or created_at > $3)`

	counts := make([]UnreadCount, 0, len(memberships))
	for _, m := range memberships {
		var count int64
		err := s.db.QueryRow(ctx, countSQL, m.conversationID, callerID, m.lastReadAt).Scan(&count)
		if err != nil {
			return nil, err
		}
		counts = append(counts, UnreadCount{
			Conversation: m.conversationID,
			OtherUser:    m.otherID,
			Count:        count,
		})
	}

	return counts, nil
}
