package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"

	"webchat-backend/internal/chat"
)

// CreateOrGetDirect returns the direct conversation between the two users,
// creating it when none exists. The boolean return reports whether the call
// inserted a new conversation. The unique index on direct_key makes
// concurrent calls for the same pair converge on a single row: the loser of
// the race hits a unique violation and rereads the winner's conversation.
func (s *Store) CreateOrGetDirect(ctx context.Context, callerID, otherID int64) (int64, bool, error) {
	s.logger.Debugf("Resolving direct conversation between users %d and %d", callerID, otherID)

	key := chat.DirectKey(callerID, otherID)

	var id int64
	selectSQL := "select id from conversations where direct_key = $1"
	err := s.db.QueryRow(ctx, selectSQL, key).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, false, err
	}
	// error handling can be omitted for rollback according docs
	// see https://pkg.go.dev/github.com/jackc/pgx/v4?tab=doc#hdr-Transactions or any source comment on Rollback
	defer tx.Rollback(context.Background())

	insertSQL := "insert into conversations (is_group, direct_key) values (false, $1) returning id"
	err = tx.QueryRow(ctx, insertSQL, key).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			// lost the race, the other caller created it
			err = s.db.QueryRow(ctx, selectSQL, key).Scan(&id)
			if err != nil {
				return 0, false, err
			}
			return id, false, nil
		}
		return 0, false, err
	}

	rows := []memberRow{
		{conversationID: id, userID: callerID},
		{conversationID: id, userID: otherID},
	}
	_, err = tx.CopyFrom(ctx, pgx.Identifier{"conversation_members"}, []string{"conversation_id", "user_id"}, copyFromMembers(rows))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return 0, false, ErrUserNotExist
		}
		return 0, false, err
	}

	err = tx.Commit(ctx)
	if err != nil {
		return 0, false, err
	}

	s.logger.Debugf("Created direct conversation %d for users %d and %d", id, callerID, otherID)

	return id, true, nil
}

// CreateGroup performs two-step transaction to create a group conversation
// (1. insert conversation record; 2. bulk insert memberships for the creator
// and every listed member) and returns its id. The member list is expected
// to be normalized already (no creator, no duplicates).
func (s *Store) CreateGroup(ctx context.Context, callerID int64, name string, memberIDs []int64) (int64, error) {
	s.logger.Debugf("Creating group (%s) by user %d with members %v", name, callerID, memberIDs)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(context.Background())

	var id int64
	sql := "insert into conversations (is_group, group_name, admin_id) values (true, $1, $2) returning id"
	err = tx.QueryRow(ctx, sql, name, callerID).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return 0, ErrUserNotExist
		}
		return 0, err
	}

	rows := make([]memberRow, 0, len(memberIDs)+1)
	rows = append(rows, memberRow{conversationID: id, userID: callerID})
	for _, member := range memberIDs {
		rows = append(rows, memberRow{conversationID: id, userID: member})
	}

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"conversation_members"}, []string{"conversation_id", "user_id"}, copyFromMembers(rows))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return 0, ErrBadMembers
		}
		return 0, err
	}

	err = tx.Commit(ctx)
	if err != nil {
		return 0, err
	}

	s.logger.Debugf("Created group (%s) with id %d", name, id)

	return id, nil
}

// summary rows: conversation fields, member count and the first other
// member (counterpart for direct conversations), newest activity first
const summarySQL = `
		with my as (
			select conversation_id
			  from conversation_members
			 where user_id = $1
		)
		select c.id,
			   c.is_group,
			   coalesce(c.group_name, ''),
			   (select count(*)::int
			      from conversation_members cm
			     where cm.conversation_id = c.id) as member_count,
			   o.id, o.display_name, o.avatar_url
		  from conversations c
		  join my on my.conversation_id = c.id
		  left join lateral (
			   select u.id, u.display_name, u.avatar_url
			     from conversation_members om
			     join users u on u.id = om.user_id
			    where om.conversation_id = c.id
			      and om.user_id <> $1
			    order by om.id
			    limit 1
		  ) o on true`

func scanConversationInfo(rows pgx.Row) (chat.ConversationInfo, error) {
	var (
		info        chat.ConversationInfo
		otherID     *int64
		otherName   *string
		otherAvatar *string
	)

	err := rows.Scan(&info.ID, &info.IsGroup, &info.GroupName, &info.MemberCount, &otherID, &otherName, &otherAvatar)
	if err != nil {
		return chat.ConversationInfo{}, err
	}

	if otherID != nil {
		name := ""
		if otherName != nil {
			name = *otherName
		}
		info.Other = &chat.Counterpart{
			ID:        *otherID,
			Name:      name,
			AvatarURL: otherAvatar,
		}
	}

	return info, nil
}

// ConversationInfos returns the raw summary rows for all of the user's
// conversations, ordered by latest message activity (newest first)
func (s *Store) ConversationInfos(ctx context.Context, userID int64) ([]chat.ConversationInfo, error) {
	s.logger.Debugf("Retrieving conversations for user (id: %d)", userID)

	sql := summarySQL + `
		 order by coalesce((select max(m.created_at)
		                      from messages m
		                     where m.conversation_id = c.id), c.created_at) desc`

	rows, err := s.db.Query(ctx, sql, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	infos := make([]chat.ConversationInfo, 0)
	for rows.Next() {
		info, err := scanConversationInfo(rows)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	s.logger.Debugf("Retrieved %d conversations", len(infos))

	return infos, nil
}

// ConversationInfo returns the raw summary row for one conversation the
// user participates in
func (s *Store) ConversationInfo(ctx context.Context, userID, conversationID int64) (chat.ConversationInfo, error) {
	sql := summarySQL + " where c.id = $2"

	info, err := scanConversationInfo(s.db.QueryRow(ctx, sql, userID, conversationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return chat.ConversationInfo{}, ErrConversationNotExist
		}
		return chat.ConversationInfo{}, err
	}

	return info, nil
}
