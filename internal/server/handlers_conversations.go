package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"webchat-backend/internal/chat"
	"webchat-backend/internal/metrics"
	"webchat-backend/internal/storage"
)

// createOrGetDirect handles HTTP requests on "/conversations/direct" endpoint
func (h *handler) createOrGetDirect(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.directPool.Get()
	defer h.parsers.directPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	if !v.Exists("other_user") {
		http.Error(w, "Missing Field \"other_user\"", http.StatusBadRequest)
		return
	}

	otherID, err := v.Get("other_user").Int64()
	if err != nil {
		http.Error(w, "Field \"other_user\" must be a 64-bit integer value", http.StatusBadRequest)
		return
	}

	if otherID < 1 {
		http.Error(w, "Field \"other_user\" must be a valid user id greater than zero", http.StatusBadRequest)
		return
	}

	caller, ok, err := h.caller(r)
	if err != nil {
		h.internalError(w, err)
		return
	}
	if !ok {
		unauthenticated(w)
		return
	}

	if otherID == caller.ID {
		http.Error(w, "Can not start a direct conversation with yourself", http.StatusBadRequest)
		return
	}

	id, created, err := h.store.CreateOrGetDirect(r.Context(), caller.ID, otherID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotExist) {
			http.Error(w, "User with provided id does not exist", http.StatusBadRequest)
			return
		}
		h.internalError(w, err)
		return
	}

	if !created {
		h.writeID(w, http.StatusOK, id)
		return
	}

	metrics.DirectConversations.Inc()

	h.writeID(w, http.StatusCreated, id)
}

// createGroup handles HTTP requests on "/conversations/group" endpoint
func (h *handler) createGroup(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.groupPool.Get()
	defer h.parsers.groupPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	// retrieving group name
	if !v.Exists("name") {
		http.Error(w, "Missing Field \"name\"", http.StatusBadRequest)
		return
	}

	name, ok := stringField(v.Get("name"))
	if !ok {
		http.Error(w, "Field \"name\" must be a string", http.StatusBadRequest)
		return
	}

	if len(name) == 0 {
		http.Error(w, "Field \"name\" must have non-zero length", http.StatusBadRequest)
		return
	}

	// retrieving members array
	if !v.Exists("members") {
		http.Error(w, "Missing Field \"members\"", http.StatusBadRequest)
		return
	}

	memberValues, err := v.Get("members").Array()
	if err != nil {
		http.Error(w, "Field \"members\" must be an array", http.StatusBadRequest)
		return
	}

	memberIDs := make([]int64, 0, len(memberValues))
	for _, mv := range memberValues {
		memberID, err := mv.Int64()
		if err != nil {
			http.Error(w, "Each item in \"members\" array field must be a 64-bit integer value", http.StatusBadRequest)
			return
		}
		memberIDs = append(memberIDs, memberID)
	}

	caller, ok, err := h.caller(r)
	if err != nil {
		h.internalError(w, err)
		return
	}
	if !ok {
		unauthenticated(w)
		return
	}

	members := chat.NormalizeMembers(caller.ID, memberIDs)
	if len(members) == 0 {
		http.Error(w, "Group needs at least one member besides the creator", http.StatusBadRequest)
		return
	}

	id, err := h.store.CreateGroup(r.Context(), caller.ID, name, members)
	if err != nil {
		if errors.Is(err, storage.ErrBadMembers) {
			http.Error(w, "Bad members list", http.StatusBadRequest)
			return
		}
		h.internalError(w, err)
		return
	}

	metrics.GroupConversations.Inc()

	h.writeID(w, http.StatusCreated, id)
}

// fillPresence resolves the online flag for direct-conversation summaries
// from the presence store
func (h *handler) fillPresence(ctx context.Context, summaries []chat.Summary) error {
	ids := make([]int64, 0, len(summaries))
	for _, s := range summaries {
		if !s.IsGroup && s.OtherUserID != nil {
			ids = append(ids, *s.OtherUserID)
		}
	}

	online, err := h.presence.Online(ctx, ids)
	if err != nil {
		return err
	}

	for i := range summaries {
		if summaries[i].IsGroup || summaries[i].OtherUserID == nil {
			continue
		}
		isOnline := online[*summaries[i].OtherUserID]
		summaries[i].IsOnline = &isOnline
	}

	return nil
}

// listConversations handles HTTP requests on "/conversations/list" endpoint
func (h *handler) listConversations(w http.ResponseWriter, r *http.Request) {
	caller, ok, err := h.caller(r)
	if err != nil {
		h.internalError(w, err)
		return
	}
	if !ok {
		h.writeJSON(w, http.StatusOK, []chat.Summary{})
		return
	}

	infos, err := h.store.ConversationInfos(r.Context(), caller.ID)
	if err != nil {
		h.internalError(w, err)
		return
	}

	summaries := make([]chat.Summary, 0, len(infos))
	for _, info := range infos {
		summary, ok := chat.Summarize(info)
		if !ok {
			continue
		}
		summaries = append(summaries, summary)
	}

	if err := h.fillPresence(r.Context(), summaries); err != nil {
		h.internalError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, summaries)
}

// conversationDetails handles HTTP requests on "/conversations/details"
// endpoint; it returns a single summary for header display or null when the
// conversation can not be presented to the caller
func (h *handler) conversationDetails(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.detailsPool.Get()
	defer h.parsers.detailsPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	if !v.Exists("conversation") {
		http.Error(w, "Missing Field \"conversation\"", http.StatusBadRequest)
		return
	}

	conversationID, err := v.Get("conversation").Int64()
	if err != nil {
		http.Error(w, "Field \"conversation\" must be a 64-bit integer value", http.StatusBadRequest)
		return
	}

	if conversationID < 1 {
		http.Error(w, "Field \"conversation\" must be a valid conversation id greater than zero", http.StatusBadRequest)
		return
	}

	caller, ok, err := h.caller(r)
	if err != nil {
		h.internalError(w, err)
		return
	}
	if !ok {
		h.writeNull(w)
		return
	}

	info, err := h.store.ConversationInfo(r.Context(), caller.ID, conversationID)
	if err != nil {
		if errors.Is(err, storage.ErrConversationNotExist) {
			h.writeNull(w)
			return
		}
		h.internalError(w, err)
		return
	}

	summary, ok := chat.Summarize(info)
	if !ok {
		h.writeNull(w)
		return
	}

	summaries := []chat.Summary{summary}
	if err := h.fillPresence(r.Context(), summaries); err != nil {
		h.internalError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, summaries[0])
}
