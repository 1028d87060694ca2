package storage

import (
	"context"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"webchat-backend/internal/chat"
	mytesting "webchat-backend/internal/testing"
)

// Integration tests run against a real Postgres with migrations/schema.sql
// applied. They are skipped unless TEST_DB_HOST is set.

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func bootstrap(t *testing.T) *Store {
	t.Helper()

	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("set TEST_DB_HOST to run storage integration tests")
	}

	port, err := strconv.ParseUint(envOr("TEST_DB_PORT", "5432"), 10, 16)
	require.NoError(t, err)

	cfg := Config{
		User:     envOr("TEST_DB_USER", "postgres"),
		Password: envOr("TEST_DB_PASSWORD", "postgres"),
		Host:     host,
		Port:     uint16(port),
		DBName:   envOr("TEST_DB_NAME", "webchat_test"),
	}

	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	s, err := New(context.Background(), logger.Sugar(), cfg, ConnectionTimeout(10*time.Second))
	require.NoError(t, err)
	t.Cleanup(s.Close)

	return s
}

func createUser(t *testing.T, s *Store) User {
	t.Helper()

	u, err := s.UpsertUser(context.Background(), Identity{
		Subject: mytesting.RandSubject(),
		Name:    mytesting.RandString(),
		Email:   mytesting.RandString() + "@example.com",
	})
	require.NoError(t, err)

	return u
}

func TestUpsertUserCreatesAndPatchesOnDrift(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	ident := Identity{
		Subject: mytesting.RandSubject(),
		Name:    "Alice",
		Email:   "alice@example.com",
	}

	created, err := s.UpsertUser(ctx, ident)
	require.NoError(t, err)
	require.Equal(t, "Alice", created.Name)

	// same subject, same profile: id is stable
	again, err := s.UpsertUser(ctx, ident)
	require.NoError(t, err)
	require.Equal(t, created.ID, again.ID)

	// drifted profile fields are overwritten in place
	avatar := "https://example.com/alice.png"
	ident.Name = "Alice B"
	ident.AvatarURL = &avatar
	patched, err := s.UpsertUser(ctx, ident)
	require.NoError(t, err)
	require.Equal(t, created.ID, patched.ID)
	require.Equal(t, "Alice B", patched.Name)
	require.NotNil(t, patched.AvatarURL)
	require.Equal(t, avatar, *patched.AvatarURL)
}

func TestUpsertUserBlankNameFallback(t *testing.T) {
	s := bootstrap(t)

	u, err := s.UpsertUser(context.Background(), Identity{Subject: mytesting.RandSubject()})
	require.NoError(t, err)
	require.Equal(t, "User", u.Name)
}

func TestUserBySubjectNotExist(t *testing.T) {
	s := bootstrap(t)

	_, err := s.UserBySubject(context.Background(), mytesting.RandSubject())
	require.ErrorIs(t, err, ErrUserNotExist)
}

func TestCreateOrGetDirectIdempotent(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	a := createUser(t, s)
	b := createUser(t, s)

	first, created, err := s.CreateOrGetDirect(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := s.CreateOrGetDirect(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first, second)

	// order of the pair does not matter
	third, created, err := s.CreateOrGetDirect(ctx, b.ID, a.ID)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first, third)
}

func TestCreateOrGetDirectConcurrent(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	a := createUser(t, s)
	b := createUser(t, s)

	const callers = 8
	ids := make([]int64, callers)
	created := make([]bool, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			caller, other := a.ID, b.ID
			if i%2 == 1 {
				caller, other = b.ID, a.ID
			}
			ids[i], created[i], errs[i] = s.CreateOrGetDirect(ctx, caller, other)
		}(i)
	}
	wg.Wait()

	inserts := 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, ids[0], ids[i])
		if created[i] {
			inserts++
		}
	}

	// exactly one caller wins the insert, the rest read its row
	require.Equal(t, 1, inserts)
}

func TestCreateOrGetDirectUnknownUser(t *testing.T) {
	s := bootstrap(t)

	a := createUser(t, s)
	_, _, err := s.CreateOrGetDirect(context.Background(), a.ID, a.ID+1000000)
	require.ErrorIs(t, err, ErrUserNotExist)
}

func TestCreateGroupAndSummary(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	admin := createUser(t, s)
	m1 := createUser(t, s)
	m2 := createUser(t, s)

	id, err := s.CreateGroup(ctx, admin.ID, "Trip", []int64{m1.ID, m2.ID})
	require.NoError(t, err)

	info, err := s.ConversationInfo(ctx, admin.ID, id)
	require.NoError(t, err)

	summary, ok := chat.Summarize(info)
	require.True(t, ok)
	require.True(t, summary.IsGroup)
	require.Equal(t, "Trip", summary.Name)
	require.NotNil(t, summary.MemberCount)
	require.Equal(t, 3, *summary.MemberCount)
}

func TestCreateGroupBadMembers(t *testing.T) {
	s := bootstrap(t)

	admin := createUser(t, s)
	_, err := s.CreateGroup(context.Background(), admin.ID, "Trip", []int64{admin.ID + 1000000})
	require.ErrorIs(t, err, ErrBadMembers)
}

func TestDirectMessageScenario(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	a := createUser(t, s)
	b := createUser(t, s)

	conv, _, err := s.CreateOrGetDirect(ctx, a.ID, b.ID)
	require.NoError(t, err)

	info, err := s.ConversationInfo(ctx, a.ID, conv)
	require.NoError(t, err)
	require.Equal(t, 2, info.MemberCount)
	require.NotNil(t, info.Other)
	require.Equal(t, b.ID, info.Other.ID)

	_, err = s.CreateMessage(ctx, conv, a.ID, "hi")
	require.NoError(t, err)

	messages, err := s.MessagesByConversation(ctx, b.ID, conv)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, a.ID, messages[0].Sender)
	require.Equal(t, "hi", messages[0].Content)
	require.False(t, messages[0].IsDeleted)
	require.Empty(t, messages[0].Reactions)

	counts, err := s.UnreadCounts(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	require.Equal(t, conv, counts[0].Conversation)
	require.NotNil(t, counts[0].OtherUser)
	require.Equal(t, a.ID, *counts[0].OtherUser)
	require.Equal(t, int64(1), counts[0].Count)
}

func TestMessageContentStoredVerbatim(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	a := createUser(t, s)
	b := createUser(t, s)

	conv, _, err := s.CreateOrGetDirect(ctx, a.ID, b.ID)
	require.NoError(t, err)

	content := "say \"hi\" and\nbye\tnow \\ done"
	_, err = s.CreateMessage(ctx, conv, a.ID, content)
	require.NoError(t, err)

	messages, err := s.MessagesByConversation(ctx, b.ID, conv)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, content, messages[0].Content)
}

func TestSendRequiresMembership(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	a := createUser(t, s)
	b := createUser(t, s)
	outsider := createUser(t, s)

	conv, _, err := s.CreateOrGetDirect(ctx, a.ID, b.ID)
	require.NoError(t, err)

	_, err = s.CreateMessage(ctx, conv, outsider.ID, "let me in")
	require.ErrorIs(t, err, ErrNotMember)

	_, err = s.MessagesByConversation(ctx, outsider.ID, conv)
	require.ErrorIs(t, err, ErrNotMember)

	_, err = s.CreateMessage(ctx, conv+1000000, a.ID, "void")
	require.ErrorIs(t, err, ErrConversationNotExist)
}

func TestSoftDelete(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	a := createUser(t, s)
	b := createUser(t, s)

	conv, _, err := s.CreateOrGetDirect(ctx, a.ID, b.ID)
	require.NoError(t, err)

	msg, err := s.CreateMessage(ctx, conv, a.ID, "secret")
	require.NoError(t, err)

	// only the sender may delete
	err = s.SoftDeleteMessage(ctx, msg, b.ID)
	require.ErrorIs(t, err, ErrNotSender)

	err = s.SoftDeleteMessage(ctx, msg+1000000, a.ID)
	require.ErrorIs(t, err, ErrMessageNotExist)

	err = s.SoftDeleteMessage(ctx, msg, a.ID)
	require.NoError(t, err)

	// the row survives but readers never see the original content
	messages, err := s.MessagesByConversation(ctx, b.ID, conv)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.True(t, messages[0].IsDeleted)
	require.Equal(t, chat.DeletedContent, messages[0].Content)
}

func TestToggleReactionRoundTrip(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	a := createUser(t, s)
	b := createUser(t, s)

	conv, _, err := s.CreateOrGetDirect(ctx, a.ID, b.ID)
	require.NoError(t, err)

	msg, err := s.CreateMessage(ctx, conv, a.ID, "react to me")
	require.NoError(t, err)

	added, err := s.ToggleReaction(ctx, b.ID, msg, "👍")
	require.NoError(t, err)
	require.True(t, added)

	messages, err := s.MessagesByConversation(ctx, a.ID, conv)
	require.NoError(t, err)
	require.Equal(t, []chat.Reaction{{UserID: b.ID, Emoji: "👍"}}, messages[0].Reactions)

	// second toggle restores the original reaction set
	added, err = s.ToggleReaction(ctx, b.ID, msg, "👍")
	require.NoError(t, err)
	require.False(t, added)

	messages, err = s.MessagesByConversation(ctx, a.ID, conv)
	require.NoError(t, err)
	require.Empty(t, messages[0].Reactions)
}

func TestToggleReactionMissingMessage(t *testing.T) {
	s := bootstrap(t)

	a := createUser(t, s)
	_, err := s.ToggleReaction(context.Background(), a.ID, 1000000000, "👍")
	require.ErrorIs(t, err, ErrMessageNotExist)
}

func TestUnreadCountsAfterMarkRead(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	a := createUser(t, s)
	b := createUser(t, s)

	conv, _, err := s.CreateOrGetDirect(ctx, a.ID, b.ID)
	require.NoError(t, err)

	unreadFor := func(userID int64) int64 {
		t.Helper()
		counts, err := s.UnreadCounts(ctx, userID)
		require.NoError(t, err)
		for _, c := range counts {
			if c.Conversation == conv {
				return c.Count
			}
		}
		return -1
	}

	first, err := s.CreateMessage(ctx, conv, a.ID, "one")
	require.NoError(t, err)
	require.Equal(t, int64(1), unreadFor(b.ID))

	// own messages never count as unread
	require.Equal(t, int64(0), unreadFor(a.ID))

	require.NoError(t, s.MarkRead(ctx, b.ID, conv, first))
	require.Equal(t, int64(0), unreadFor(b.ID))

	// N newer counterpart messages count exactly N
	for i := 0; i < 3; i++ {
		_, err = s.CreateMessage(ctx, conv, a.ID, "more")
		require.NoError(t, err)
	}
	require.Equal(t, int64(3), unreadFor(b.ID))
}

func TestUnreadCountsExcludeDeleted(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	a := createUser(t, s)
	b := createUser(t, s)

	conv, _, err := s.CreateOrGetDirect(ctx, a.ID, b.ID)
	require.NoError(t, err)

	msg, err := s.CreateMessage(ctx, conv, a.ID, "oops")
	require.NoError(t, err)
	require.NoError(t, s.SoftDeleteMessage(ctx, msg, a.ID))

	counts, err := s.UnreadCounts(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	require.Equal(t, int64(0), counts[0].Count)
}

func TestMarkReadRejectsForeignMessage(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	a := createUser(t, s)
	b := createUser(t, s)
	c := createUser(t, s)

	conv1, _, err := s.CreateOrGetDirect(ctx, a.ID, b.ID)
	require.NoError(t, err)
	conv2, _, err := s.CreateOrGetDirect(ctx, a.ID, c.ID)
	require.NoError(t, err)

	msg, err := s.CreateMessage(ctx, conv2, a.ID, "elsewhere")
	require.NoError(t, err)

	err = s.MarkRead(ctx, b.ID, conv1, msg)
	require.ErrorIs(t, err, ErrMessageNotExist)
}

func TestTypingStates(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	a := createUser(t, s)
	b := createUser(t, s)

	conv, _, err := s.CreateOrGetDirect(ctx, a.ID, b.ID)
	require.NoError(t, err)

	until := time.Now().Add(chat.TypingWindow).UnixMilli()
	require.NoError(t, s.SetTyping(ctx, b.ID, conv, until))

	states, err := s.TypingStates(ctx, a.ID, conv)
	require.NoError(t, err)
	require.Equal(t, []chat.MemberTyping{{UserID: b.ID, UntilMS: until}}, states)

	// the caller's own expiry is never reported back
	states, err = s.TypingStates(ctx, b.ID, conv)
	require.NoError(t, err)
	require.Equal(t, []chat.MemberTyping{{UserID: a.ID, UntilMS: 0}}, states)
}

func TestSetTypingRequiresMembership(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	a := createUser(t, s)
	b := createUser(t, s)
	outsider := createUser(t, s)

	conv, _, err := s.CreateOrGetDirect(ctx, a.ID, b.ID)
	require.NoError(t, err)

	err = s.SetTyping(ctx, outsider.ID, conv, time.Now().UnixMilli())
	require.ErrorIs(t, err, ErrNotMember)

	err = s.SetTyping(ctx, a.ID, conv+1000000, time.Now().UnixMilli())
	require.ErrorIs(t, err, ErrConversationNotExist)
}

func TestConversationInfosOrderedByActivity(t *testing.T) {
	s := bootstrap(t)
	ctx := context.Background()

	a := createUser(t, s)
	b := createUser(t, s)
	c := createUser(t, s)

	convB, _, err := s.CreateOrGetDirect(ctx, a.ID, b.ID)
	require.NoError(t, err)
	convC, _, err := s.CreateOrGetDirect(ctx, a.ID, c.ID)
	require.NoError(t, err)

	_, err = s.CreateMessage(ctx, convB, b.ID, "new activity")
	require.NoError(t, err)

	infos, err := s.ConversationInfos(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	require.Equal(t, convB, infos[0].ID)
	require.Equal(t, convC, infos[1].ID)
}
