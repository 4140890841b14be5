// Package api exposes the relay over HTTP: the room websocket plus the board
// load, save and list endpoints.
package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/felixge/httpsnoop"
	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"collabboard/internal/auth"
	"collabboard/internal/board"
	"collabboard/internal/hub"
	"collabboard/internal/metrics"
	"collabboard/internal/store"
)

// maxBoardBytes bounds a save request. Images are inline data URIs.
const maxBoardBytes = 32 << 20

type Server struct {
	store    store.Store
	gate     auth.Gate
	hub      *hub.Hub
	metrics  *metrics.Metrics
	origins  []string
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

type Option func(*Server)

func WithMetrics(m *metrics.Metrics) Option { return func(s *Server) { s.metrics = m } }

func WithLogger(l zerolog.Logger) Option { return func(s *Server) { s.log = l } }

// WithAllowedOrigins restricts websocket upgrades to the listed origins. An
// empty list accepts any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

func New(st store.Store, gate auth.Gate, h *hub.Hub, opts ...Option) *Server {
	s := &Server{store: st, gate: gate, hub: h, log: zerolog.Nop()}
	for _, o := range opts {
		o(s)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	authed := auth.Middleware(s.gate)
	r.Methods(http.MethodGet).Path("/ws").HandlerFunc(s.serveWS)
	r.Methods(http.MethodGet).Path("/api/hello").HandlerFunc(hello)
	r.Methods(http.MethodGet).Path("/api/whiteboard/{roomId}").HandlerFunc(s.loadBoard)
	r.Methods(http.MethodPost).Path("/api/whiteboard/{roomId}").Handler(authed(http.HandlerFunc(s.saveBoard)))
	r.Methods(http.MethodGet).Path("/api/whiteboards").Handler(authed(http.HandlerFunc(s.listBoards)))
	r.Methods(http.MethodGet).Path("/metrics").Handler(s.metrics.Handler())
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", m.Code).
			Dur("duration", m.Duration).
			Int64("bytes", m.Written).
			Msg("handled")
	})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.origins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.origins {
		if strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// serveWS upgrades the connection and hands it to the hub. A token is
// optional; when one is given it must be valid.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = auth.BearerToken(r)
	}
	var identity string
	if token != "" {
		id, err := s.gate.Authenticate(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": auth.ErrInvalidToken.Error()})
			return
		}
		identity = id.ID
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the client.
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	hub.NewClient(s.hub, conn, identity).Serve(r.Context())
}

func hello(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("API is running!"))
}

func (s *Server) loadBoard(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["roomId"]
	snap, ok, err := s.store.Load(r.Context(), room)
	if err != nil {
		s.storeFailure(w, "load", room, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"data": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": snap})
}

func (s *Server) saveBoard(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["roomId"]
	id, _ := auth.FromContext(r.Context())

	var snap board.Snapshot
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBoardBytes)).Decode(&snap); err != nil {
		status := http.StatusBadRequest
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, map[string]string{"error": "invalid board data"})
		return
	}
	if err := s.store.Save(r.Context(), room, id.ID, snap); err != nil {
		s.storeFailure(w, "save", room, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) listBoards(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	boards, err := s.store.List(r.Context(), id.ID)
	if err != nil {
		s.storeFailure(w, "list", "", err)
		return
	}
	if boards == nil {
		boards = []store.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"boards": boards})
}

// storeFailure reports a storage fault to this request only.
func (s *Server) storeFailure(w http.ResponseWriter, op, room string, err error) {
	s.metrics.IncStoreFailure(op)
	s.log.Error().Err(err).Str("op", op).Str("room", room).Msg("board store failed")
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to " + op + " board"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
