package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"webchat-backend/internal/chat"
	"webchat-backend/internal/storage"
)

// setTyping handles HTTP requests on "/typing/set" endpoint; it refreshes
// the caller's typing window. Best-effort: missing identity is a no-op.
func (h *handler) setTyping(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.typingSetPool.Get()
	defer h.parsers.typingSetPool.Put(parser)
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
		h.writeEmptyObject(w)
		return
	}

	until := time.Now().Add(chat.TypingWindow).UnixMilli()
	err = h.store.SetTyping(r.Context(), caller.ID, conversationID, until)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrConversationNotExist):
			http.Error(w, "Conversation with provided id does not exist", http.StatusNotFound)
		case errors.Is(err, storage.ErrNotMember):
			http.Error(w, "Caller is not a conversation member", http.StatusForbidden)
		default:
			h.internalError(w, err)
		}
		return
	}

	h.writeEmptyObject(w)
}

// getTyping handles HTTP requests on "/typing/get" endpoint; it reduces the
// other members' typing expiries against the current time
func (h *handler) getTyping(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.typingGetPool.Get()
	defer h.parsers.typingGetPool.Put(parser)
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
		h.writeJSON(w, http.StatusOK, chat.TypingState{Typists: []int64{}})
		return
	}

	states, err := h.store.TypingStates(r.Context(), caller.ID, conversationID)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrConversationNotExist):
			http.Error(w, "Conversation with provided id does not exist", http.StatusNotFound)
		case errors.Is(err, storage.ErrNotMember):
			http.Error(w, "Caller is not a conversation member", http.StatusForbidden)
		default:
			h.internalError(w, err)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, chat.AggregateTyping(states, time.Now().UnixMilli()))
}

// markRead handles HTTP requests on "/read/mark" endpoint
func (h *handler) markRead(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.markReadPool.Get()
	defer h.parsers.markReadPool.Put(parser)
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

	if !v.Exists("message") {
		http.Error(w, "Missing Field \"message\"", http.StatusBadRequest)
		return
	}

	messageID, err := v.Get("message").Int64()
	if err != nil {
		http.Error(w, "Field \"message\" must be a 64-bit integer value", http.StatusBadRequest)
		return
	}

	if messageID < 1 {
		http.Error(w, "Field \"message\" must be a valid message id greater than zero", http.StatusBadRequest)
		return
	}

	caller, ok, err := h.caller(r)
	if err != nil {
		h.internalError(w, err)
		return
	}
	if !ok {
		h.writeEmptyObject(w)
		return
	}

	err = h.store.MarkRead(r.Context(), caller.ID, conversationID, messageID)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrMessageNotExist):
			http.Error(w, "Message with provided id does not exist in the conversation", http.StatusNotFound)
		case errors.Is(err, storage.ErrConversationNotExist):
			http.Error(w, "Conversation with provided id does not exist", http.StatusNotFound)
		case errors.Is(err, storage.ErrNotMember):
			http.Error(w, "Caller is not a conversation member", http.StatusForbidden)
		default:
			h.internalError(w, err)
		}
		return
	}

	h.writeEmptyObject(w)
}

// unreadCounts handles HTTP requests on "/unread/counts" endpoint
func (h *handler) unreadCounts(w http.ResponseWriter, r *http.Request) {
	caller, ok, err := h.caller(r)
	if err != nil {
		h.internalError(w, err)
		return
	}
	if !ok {
		h.writeJSON(w, http.StatusOK, []storage.UnreadCount{})
		return
	}

	counts, err := h.store.UnreadCounts(r.Context(), caller.ID)
	if err != nil {
		h.internalError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, counts)
}

// markOnline handles HTTP requests on "/presence/online" endpoint
func (h *handler) markOnline(w http.ResponseWriter, r *http.Request) {
	caller, ok, err := h.caller(r)
	if err != nil {
		h.internalError(w, err)
		return
	}
	if !ok {
		h.writeEmptyObject(w)
		return
	}

	if err := h.presence.MarkOnline(r.Context(), caller.ID); err != nil {
		h.internalError(w, err)
		return
	}

	h.writeEmptyObject(w)
}

// markOffline handles HTTP requests on "/presence/offline" endpoint
func (h *handler) markOffline(w http.ResponseWriter, r *http.Request) {
	caller, ok, err := h.caller(r)
	if err != nil {
		h.internalError(w, err)
		return
	}
	if !ok {
		h.writeEmptyObject(w)
		return
	}

	if err := h.presence.MarkOffline(r.Context(), caller.ID); err != nil {
		h.internalError(w, err)
		return
	}

	h.writeEmptyObject(w)
}
