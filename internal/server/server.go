package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"webchat-backend/internal/presence"
	"webchat-backend/internal/storage"
)

// Server defines fields used in HTTP processing
type Server struct {
	logger     *zap.SugaredLogger
	httpServer *http.Server
	h          handler
}

// NewServer returns new Server struct wiring the domain handlers, the
// middleware chain and the metrics endpoint
func NewServer(logger *zap.SugaredLogger, config EnvConfig, store *storage.Store, pres *presence.Store) (*Server, error) {
	srv := &Server{
		logger: logger,
		h: handler{
			logger:   logger,
			store:    store,
			presence: pres,
		},
	}

	handlers := map[string]http.HandlerFunc{
		"/users/sync":            srv.h.syncUser,
		"/users/list":            srv.h.listUsers,
		"/users/me":              srv.h.me,
		"/conversations/direct":  srv.h.createOrGetDirect,
		"/conversations/group":   srv.h.createGroup,
		"/conversations/list":    srv.h.listConversations,
		"/conversations/details": srv.h.conversationDetails,
		"/messages/send":         srv.h.sendMessage,
		"/messages/list":         srv.h.listMessages,
		"/messages/delete":       srv.h.deleteMessage,
		"/messages/react":        srv.h.toggleReaction,
		"/typing/set":            srv.h.setTyping,
		"/typing/get":            srv.h.getTyping,
		"/read/mark":             srv.h.markRead,
		"/unread/counts":         srv.h.unreadCounts,
		"/presence/online":       srv.h.markOnline,
		"/presence/offline":      srv.h.markOffline,
	}

	mux := http.NewServeMux()
	for pattern, hf := range handlers {
		mux.Handle(pattern, logRequests(enforcePOSTJSON(hf), logger.Desugar()))
	}
	mux.Handle("/metrics", promhttp.Handler())

	srv.httpServer = &http.Server{
		Addr:    config.Host + ":" + strconv.FormatUint(uint64(config.Port), 10),
		Handler: mux,
	}

	return srv, nil
}

// Start calls ListenAndServe on http.Server instance inside Server struct
// and implements graceful shutdown via goroutine waiting for signals
func (s *Server) Start() error {
	idleConnsClosed := make(chan struct{})

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		s.logger.Info("Shutting down HTTP server")

		if err := s.httpServer.Shutdown(context.Background()); err != nil {
			s.logger.Errorf("srv.Shutdown: %v", err)
		}
		s.logger.Info("HTTP server is stopped")

		close(idleConnsClosed)
	}()

	s.logger.Infof("Starting HTTP server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("s.httpServer.ListenAndServe: %v", err)
	}

	<-idleConnsClosed

	s.logger.Info("Closing store")
	s.h.store.Close()
	s.logger.Info("Store is closed")

	s.logger.Info("Closing presence store")
	if err := s.h.presence.Close(); err != nil {
		s.logger.Errorf("presence.Close: %v", err)
	}

	return nil
}
