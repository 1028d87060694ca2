package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"

	"webchat-backend/internal/storage/zapadapter"
)

var (
	ErrUserNotExist         = errors.New("user does not exist")
	ErrConversationNotExist = errors.New("conversation does not exist")
	ErrMessageNotExist      = errors.New("message does not exist")
	ErrNotMember            = errors.New("user is not a conversation member")
	ErrNotSender            = errors.New("user is not the message sender")
	ErrBadMembers           = errors.New("bad members list")
)

// Store defines fields used in db interaction processes
type Store struct {
	logger *zap.SugaredLogger
	db     *pgxpool.Pool
}

// New sets provided zap.Logger via zapadapter to pgxpool.Pool and returns instance of Store struct
func New(ctx context.Context, logger *zap.SugaredLogger, cfg Config, opts ...Option) (*Store, error) {
	config, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, err
	}
	config.ConnConfig.Logger = zapadapter.NewLogger(logger.Desugar())

	for _, opt := range opts {
		opt.apply(config)
	}

	pool, err := pgxpool.ConnectConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	return &Store{
		logger: logger,
		db:     pool,
	}, nil
}

// Close releases the underlying connection pool
func (s *Store) Close() {
	s.db.Close()
}

const userColumns = "id, subject, display_name, email, avatar_url, created_at"

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Subject, &u.Name, &u.Email, &u.AvatarURL, &u.CreatedAt)
	return u, err
}

// UpsertUser resolves a verified identity to a user record, creating it on
// first sight and overwriting display name/avatar on drift. Email is only
// captured at creation.
func (s *Store) UpsertUser(ctx context.Context, ident Identity) (User, error) {
	s.logger.Debugf("Resolving identity (subject: %s)", ident.Subject)

	name := ident.Name
	if name == "" {
		name = "User"
	}

	sql := `insert into users (subject, display_name, email, avatar_url)
			values ($1, $2, $3, $4)
			on conflict (subject) do update
			   set display_name = excluded.display_name,
			       avatar_url = excluded.avatar_url
			returning ` + userColumns

	u, err := scanUser(s.db.QueryRow(ctx, sql, ident.Subject, name, ident.Email, ident.AvatarURL))
	if err != nil {
		return User{}, err
	}

	s.logger.Debugf("Resolved identity (subject: %s) to user %d", ident.Subject, u.ID)

	return u, nil
}

// UserBySubject returns the user linked to the given external subject
func (s *Store) UserBySubject(ctx context.Context, subject string) (User, error) {
	sql := "select " + userColumns + " from users where subject = $1"
	u, err := scanUser(s.db.QueryRow(ctx, sql, subject))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotExist
		}
		return User{}, err
	}
	return u, nil
}

// UserByID returns the user with the given id
func (s *Store) UserByID(ctx context.Context, id int64) (User, error) {
	sql := "select " + userColumns + " from users where id = $1"
	u, err := scanUser(s.db.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotExist
		}
		return User{}, err
	}
	return u, nil
}

// UsersExcept returns the user directory without the caller, for starting
// new conversations
func (s *Store) UsersExcept(ctx context.Context, callerID int64) ([]User, error) {
	s.logger.Debugf("Listing users for user (id: %d)", callerID)

	sql := "select " + userColumns + " from users where id <> $1 order by id"
	rows, err := s.db.Query(ctx, sql, callerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return users, nil
}

// requireMember verifies the conversation exists and the user participates
// in it. Every message, typing and read-receipt operation goes through this
// guard.
func (s *Store) requireMember(ctx context.Context, userID, conversationID int64) error {
	var one int8
	err := s.db.QueryRow(ctx, "select 1 from conversations where id = $1", conversationID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrConversationNotExist
		}
		return err
	}

	sql := "select 1 from conversation_members where user_id = $1 and conversation_id = $2"
	err = s.db.QueryRow(ctx, sql, userID, conversationID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotMember
		}
		return err
	}

	return nil
}
