// Package chat holds the derived-state logic of the conversation domain:
// typing windows, reaction shapes, member-list hygiene and the summary
// projection consumed by the sidebar. Everything here is pure; persistence
// lives in internal/storage.
package chat

import (
	"strconv"
	"time"
)

// TypingWindow is the grace period a single typing signal stays valid for.
// Clients refresh it while the user keeps typing; readers compare the stored
// expiry against wall-clock time instead of waiting for a clear call.
const TypingWindow = 2 * time.Second

// DeletedContent replaces the body of a soft-deleted message in every view.
const DeletedContent = "This message was deleted"

const (
	FallbackGroupName = "Unnamed Group"
	FallbackUserName  = "Unknown User"
)

// DirectKey builds the storage key of the unordered user pair backing a
// direct conversation. The unique index on this key is what makes
// concurrent createOrGet calls converge to a single conversation.
// Callers reject self-pairs before reaching here.
func DirectKey(a, b int64) string {
	if b < a {
		a, b = b, a
	}
	return strconv.FormatInt(a, 10) + ":" + strconv.FormatInt(b, 10)
}

// Reaction is a single (user, emoji) entry on a message. At most one entry
// per pair exists; toggling removes the second occurrence.
type Reaction struct {
	UserID int64  `json:"userId"`
	Emoji  string `json:"emoji"`
}

// NormalizeMembers cleans a requested group member list: the creator and
// non-positive ids are dropped, duplicates collapse to the first occurrence,
// order is otherwise preserved.
func NormalizeMembers(creatorID int64, ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id < 1 || id == creatorID {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// MemberTyping is one member's typing expiry as stored on the membership.
type MemberTyping struct {
	UserID  int64
	UntilMS int64
}

// TypingState is the typing projection for one conversation: the latest
// still-live expiry across the queried members (0 when nobody is typing)
// plus the ids of members whose window is still open.
type TypingState struct {
	Until   int64   `json:"until"`
	Typists []int64 `json:"typists"`
}

// AggregateTyping reduces the other members' typing expiries at time nowMS.
// Expired windows contribute nothing, so a stale row reads as "not typing"
// without any explicit clear.
func AggregateTyping(members []MemberTyping, nowMS int64) TypingState {
	st := TypingState{Typists: []int64{}}
	for _, m := range members {
		if m.UntilMS <= nowMS {
			continue
		}
		st.Typists = append(st.Typists, m.UserID)
		if m.UntilMS > st.Until {
			st.Until = m.UntilMS
		}
	}
	return st
}

// Redact returns the content a reader may see for a message.
func Redact(content string, deleted bool) string {
	if deleted {
		return DeletedContent
	}
	return content
}

// Counterpart is the other member of a direct conversation as needed for
// the summary projection.
type Counterpart struct {
	ID        int64
	Name      string
	AvatarURL *string
}

// ConversationInfo is the raw material for one summary: conversation row
// plus member count and, for direct conversations, the counterpart.
// Other is nil when no counterpart membership could be resolved.
type ConversationInfo struct {
	ID          int64
	IsGroup     bool
	GroupName   string
	MemberCount int
	Other       *Counterpart
}

// Summary is the sidebar/header projection of one conversation.
type Summary struct {
	ID          int64   `json:"id"`
	IsGroup     bool    `json:"isGroup"`
	Name        string  `json:"name"`
	ImageURL    *string `json:"imageUrl"`
	IsOnline    *bool   `json:"isOnline,omitempty"`
	MemberCount *int    `json:"memberCount,omitempty"`
	OtherUserID *int64  `json:"otherUserId,omitempty"`
}

// Summarize projects one conversation. The second return is false when the
// conversation cannot be presented at all (a direct conversation with no
// counterpart membership) and the row should be dropped from listings.
// A counterpart whose profile lost its name still renders, as "Unknown User".
func Summarize(info ConversationInfo) (Summary, bool) {
	if info.IsGroup {
		name := info.GroupName
		if name == "" {
			name = FallbackGroupName
		}
		count := info.MemberCount
		return Summary{
			ID:          info.ID,
			IsGroup:     true,
			Name:        name,
			MemberCount: &count,
		}, true
	}

	if info.Other == nil {
		return Summary{}, false
	}

	name := info.Other.Name
	if name == "" {
		name = FallbackUserName
	}
	otherID := info.Other.ID
	return Summary{
		ID:          info.ID,
		IsGroup:     false,
		Name:        name,
		ImageURL:    info.Other.AvatarURL,
		OtherUserID: &otherID,
	}, true
}
