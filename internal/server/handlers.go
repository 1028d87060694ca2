package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"webchat-backend/internal/presence"
	"webchat-backend/internal/storage"
)

// TODO limit reading from body

// headers the auth layer injects after verifying the caller's identity;
// X-Subject absent means the request is unauthenticated
const (
	headerSubject = "X-Subject"
	headerName    = "X-Subject-Name"
	headerEmail   = "X-Subject-Email"
	headerAvatar  = "X-Subject-Avatar"
)

type parsers struct {
	directPool    fastjson.ParserPool
	groupPool     fastjson.ParserPool
	detailsPool   fastjson.ParserPool
	sendPool      fastjson.ParserPool
	listPool      fastjson.ParserPool
	deletePool    fastjson.ParserPool
	reactPool     fastjson.ParserPool
	typingSetPool fastjson.ParserPool
	typingGetPool fastjson.ParserPool
	markReadPool  fastjson.ParserPool
}

type handler struct {
	logger   *zap.SugaredLogger
	store    *storage.Store
	presence *presence.Store
	parsers  parsers
}

// identityFrom extracts the verified identity headers. The second return is
// false when no verified subject is present — the sole authorization
// failure mode.
func identityFrom(r *http.Request) (storage.Identity, bool) {
	subject := r.Header.Get(headerSubject)
	if subject == "" {
		return storage.Identity{}, false
	}

	ident := storage.Identity{
		Subject: subject,
		Name:    r.Header.Get(headerName),
		Email:   r.Header.Get(headerEmail),
	}
	if avatar := r.Header.Get(headerAvatar); avatar != "" {
		ident.AvatarURL = &avatar
	}

	return ident, true
}

// caller resolves the request's identity to a stored user. The second
// return is false when no identity is present or the subject was never
// synced; read paths then degrade to empty results, write paths reject.
func (h *handler) caller(r *http.Request) (storage.User, bool, error) {
	ident, ok := identityFrom(r)
	if !ok {
		return storage.User{}, false, nil
	}

	user, err := h.store.UserBySubject(r.Context(), ident.Subject)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotExist) {
			return storage.User{}, false, nil
		}
		return storage.User{}, false, err
	}

	return user, true, nil
}

// stringField decodes a JSON string value into the exact text the client
// sent, unescaping quotes, backslashes and control sequences. The second
// return is false when the value is absent or not a string.
func stringField(v *fastjson.Value) (string, bool) {
	if v == nil || v.Type() != fastjson.TypeString {
		return "", false
	}

	return string(v.GetStringBytes()), true
}

func unauthenticated(w http.ResponseWriter) {
	http.Error(w, "Unauthenticated", http.StatusUnauthorized)
}

func (h *handler) internalError(w http.ResponseWriter, err error) {
	h.logger.Error(err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		h.internalError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(encoded); err != nil {
		h.logger.Errorf("writing marshaled data to ResponseWriter: %v", err)
	}
}

func (h *handler) writeID(w http.ResponseWriter, status int, id int64) {
	payload := []byte(`{"id":` + strconv.FormatInt(id, 10) + `}`)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(payload); err != nil {
		h.logger.Errorf("writing marshaled data to ResponseWriter: %v", err)
	}
}

func (h *handler) writeEmptyObject(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(`{}`)); err != nil {
		h.logger.Errorf("writing marshaled data to ResponseWriter: %v", err)
	}
}

func (h *handler) writeNull(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(`null`)); err != nil {
		h.logger.Errorf("writing marshaled data to ResponseWriter: %v", err)
	}
}

// syncUser handles HTTP requests on "/users/sync" endpoint. It is the
// initial identity-resolution call: find by subject, create on first sight,
// patch profile fields on drift.
func (h *handler) syncUser(w http.ResponseWriter, r *http.Request) {
	ident, ok := identityFrom(r)
	if !ok {
		unauthenticated(w)
		return
	}

	user, err := h.store.UpsertUser(r.Context(), ident)
	if err != nil {
		h.internalError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, user)
}

// listUsers handles HTTP requests on "/users/list" endpoint and returns the
// directory without the caller
func (h *handler) listUsers(w http.ResponseWriter, r *http.Request) {
	caller, ok, err := h.caller(r)
	if err != nil {
		h.internalError(w, err)
		return
	}
	if !ok {
		h.writeJSON(w, http.StatusOK, []storage.User{})
		return
	}

	users, err := h.store.UsersExcept(r.Context(), caller.ID)
	if err != nil {
		h.internalError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, users)
}

// me handles HTTP requests on "/users/me" endpoint
func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	caller, ok, err := h.caller(r)
	if err != nil {
		h.internalError(w, err)
		return
	}
	if !ok {
		h.writeNull(w)
		return
	}

	h.writeJSON(w, http.StatusOK, caller)
}
