// Package api exposes the REST surface of the chat: users, chats and messages.
package api

import (
	"chat-live/auth"
	"chat-live/errors"
	"chat-live/observability"
	"chat-live/services"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	log            *slog.Logger
	auth           services.IAuthService
	chats          services.IChatService
	messages       services.IMessageService
	maxUploadBytes int64
	fail           func(w http.ResponseWriter, r *http.Request, err error)
}

func NewServer(
	log *slog.Logger,
	authService services.IAuthService,
	chats services.IChatService,
	messages services.IMessageService,
	maxUploadBytes int64,
) *Server {
	return &Server{
		log:            log,
		auth:           authService,
		chats:          chats,
		messages:       messages,
		maxUploadBytes: maxUploadBytes,
		fail:           errorResponder(log),
	}
}

// Options carries the collaborators mounted next to the REST routes.
type Options struct {
	Tokens         *auth.TokenManager
	Metrics        *observability.Metrics
	Gatherer       prometheus.Gatherer
	Monitoring     *observability.MonitoringManager
	Events         http.Handler
	UploadDir      string
	RateLimit      *RateLimiter
	AllowedOrigins []string
}

// Routes builds the complete HTTP handler of the server.
func (s *Server) Routes(opts Options) http.Handler {
	r := mux.NewRouter()
	r.Use(observe(s.log, opts.Metrics))

	r.HandleFunc("/user", s.register).Methods(http.MethodPost)
	r.HandleFunc("/user/login", s.login).Methods(http.MethodPost)

	protected := r.NewRoute().Subrouter()
	protected.Use(auth.Middleware(opts.Tokens, s.fail))

	protected.HandleFunc("/user", s.searchUsers).Methods(http.MethodGet)

	protected.HandleFunc("/chats", s.accessChat).Methods(http.MethodPost)
	protected.HandleFunc("/chats", s.fetchChats).Methods(http.MethodGet)
	protected.HandleFunc("/chats/group", s.createGroup).Methods(http.MethodPost)
	protected.HandleFunc("/chats/rename", s.renameGroup).Methods(http.MethodPut)
	protected.HandleFunc("/chats/group/add", s.addToGroup).Methods(http.MethodPut)
	protected.HandleFunc("/chats/group/remove", s.removeFromGroup).Methods(http.MethodPut)

	// Static paths first so they never match {chatId}
	protected.HandleFunc("/messages", s.sendMessage).Methods(http.MethodPost)
	protected.HandleFunc("/messages/search", s.searchMessages).Methods(http.MethodGet)
	protected.HandleFunc("/messages/upload", s.uploadFile).Methods(http.MethodPost)
	protected.HandleFunc("/messages/{chatId}", s.allMessages).Methods(http.MethodGet)
	protected.HandleFunc("/messages/{id}", s.deleteMessage).Methods(http.MethodDelete)
	protected.HandleFunc("/messages/{id}/reaction", s.toggleReaction).Methods(http.MethodPost)
	protected.HandleFunc("/messages/{id}/edit", s.editMessage).Methods(http.MethodPut)
	protected.HandleFunc("/messages/{id}/forward", s.forwardMessage).Methods(http.MethodPost)
	protected.HandleFunc("/messages/{id}/pin", s.togglePin).Methods(http.MethodPut)
	protected.HandleFunc("/messages/{id}/read", s.markAsRead).Methods(http.MethodPost)

	if opts.UploadDir != "" {
		r.PathPrefix("/uploads/").Handler(http.StripPrefix("/uploads/", http.FileServer(http.Dir(opts.UploadDir)))).
			Methods(http.MethodGet)
	}
	if opts.Events != nil {
		r.Handle("/ws", opts.Events).Methods(http.MethodGet)
	}
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	if opts.Monitoring != nil {
		r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, opts.Monitoring.GetLatest())
		}).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.fail(w, r, errors.ErrNotFound)
	})

	var h http.Handler = r
	if opts.RateLimit != nil {
		h = opts.RateLimit.Middleware(s.fail)(h)
	}
	return cors(opts.AllowedOrigins)(h)
}

// caller returns the authenticated user; the auth middleware guarantees it on protected routes.
func caller(r *http.Request) string {
	userID, _ := auth.UserIDFrom(r.Context())
	return userID
}
