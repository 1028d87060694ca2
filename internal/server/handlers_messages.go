package server

import (
	"errors"
	"io"
	"net/http"

	"webchat-backend/internal/metrics"
	"webchat-backend/internal/storage"
)

// sendMessage handles HTTP requests on "/messages/send" endpoint
func (h *handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.sendPool.Get()
	defer h.parsers.sendPool.Put(parser)
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

	if !v.Exists("content") {
		http.Error(w, "Missing Field \"content\"", http.StatusBadRequest)
		return
	}

	content, ok := stringField(v.Get("content"))
	if !ok {
		http.Error(w, "Field \"content\" must be a string", http.StatusBadRequest)
		return
	}

	if len(content) == 0 {
		http.Error(w, "Field \"content\" must have non-zero length", http.StatusBadRequest)
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

	id, err := h.store.CreateMessage(r.Context(), conversationID, caller.ID, content)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrConversationNotExist):
			http.Error(w, "Conversation with provided id does not exist", http.StatusNotFound)
		case errors.Is(err, storage.ErrNotMember):
			http.Error(w, "Sender is not a conversation member", http.StatusForbidden)
		default:
			h.internalError(w, err)
		}
		return
	}

	metrics.MessagesSent.Inc()

	h.writeID(w, http.StatusCreated, id)
}

// listMessages handles HTTP requests on "/messages/list" endpoint
func (h *handler) listMessages(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.listPool.Get()
	defer h.parsers.listPool.Put(parser)
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
		h.writeJSON(w, http.StatusOK, []storage.Message{})
		return
	}

	messages, err := h.store.MessagesByConversation(r.Context(), caller.ID, conversationID)
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

	h.writeJSON(w, http.StatusOK, messages)
}

// deleteMessage handles HTTP requests on "/messages/delete" endpoint; it
// tombstones the message, never erases it
func (h *handler) deleteMessage(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.deletePool.Get()
	defer h.parsers.deletePool.Put(parser)
	v, _ := parser.ParseBytes(body)

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
		unauthenticated(w)
		return
	}

	err = h.store.SoftDeleteMessage(r.Context(), messageID, caller.ID)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrMessageNotExist):
			http.Error(w, "Message with provided id does not exist", http.StatusNotFound)
		case errors.Is(err, storage.ErrNotSender):
			http.Error(w, "Only the sender can delete a message", http.StatusForbidden)
		default:
			h.internalError(w, err)
		}
		return
	}

	metrics.MessagesDeleted.Inc()

	h.writeEmptyObject(w)
}

// toggleReaction handles HTTP requests on "/messages/react" endpoint.
// Missing identity or message are silent no-ops.
func (h *handler) toggleReaction(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.reactPool.Get()
	defer h.parsers.reactPool.Put(parser)
	v, _ := parser.ParseBytes(body)

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

	if !v.Exists("emoji") {
		http.Error(w, "Missing Field \"emoji\"", http.StatusBadRequest)
		return
	}

	emoji, ok := stringField(v.Get("emoji"))
	if !ok {
		http.Error(w, "Field \"emoji\" must be a string", http.StatusBadRequest)
		return
	}

	if len(emoji) == 0 {
		http.Error(w, "Field \"emoji\" must have non-zero length", http.StatusBadRequest)
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

	_, err = h.store.ToggleReaction(r.Context(), caller.ID, messageID, emoji)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrMessageNotExist):
			h.writeEmptyObject(w)
		case errors.Is(err, storage.ErrNotMember):
			http.Error(w, "Caller is not a conversation member", http.StatusForbidden)
		default:
			h.internalError(w, err)
		}
		return
	}

	metrics.ReactionsToggled.Inc()

	h.writeEmptyObject(w)
}
