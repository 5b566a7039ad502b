package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ava-labs/event-publisher/pkg/dispatch"
	"github.com/ava-labs/event-publisher/pkg/event"
)

const DefaultMaxBodyBytes = 1 << 20

var ErrInvalidLogger = errors.New("invalid logger: must not be nil")

// Dispatcher routes events to publishers. *manager.Manager implements it.
type Dispatcher interface {
	Dispatch(e event.Event) int
	DispatchAs(ctx context.Context, identity string, e event.Event) (int, error)
}

// Response is the body of a 202 answer.
type Response struct {
	Type     string `json:"type"`
	Accepted int    `json:"accepted"`
}

type Server struct {
	dispatcher   Dispatcher
	log          *zap.SugaredLogger
	maxBodyBytes int64
	httpServer   *http.Server
}

func NewServer(addr string, d Dispatcher, log *zap.SugaredLogger) (*Server, error) {
	if log == nil {
		return nil, ErrInvalidLogger
	}
	if d == nil {
		return nil, errors.New("invalid dispatcher: must not be nil")
	}
	s := &Server{
		dispatcher:   d,
		log:          log,
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "not found")
	})

	r.Post("/events", s.handleEvent)
	r.Post("/users/{user}/events", s.handleUserEvent)
	return r
}

// Start serves in the background. The returned channel receives the error
// if the server fails and is closed when it stops.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("ingest server: %w", err)
		}
		close(errCh)
	}()
	return errCh
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// handleEvent fans an event out to every unscoped publisher.
//
// POST /events
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	e, ok := s.readEvent(w, r)
	if !ok {
		return
	}
	n := s.dispatcher.Dispatch(e)
	writeJSON(w, http.StatusAccepted, Response{Type: e.EventType(), Accepted: n})
}

// handleUserEvent hands an event to the publishers listening as {user}.
//
// POST /users/{user}/events
func (s *Server) handleUserEvent(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	e, ok := s.readEvent(w, r)
	if !ok {
		return
	}

	n, err := s.dispatcher.DispatchAs(r.Context(), user, e)
	switch {
	case errors.Is(err, dispatch.ErrUnknownIdentity):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "unknown user")
		return
	case err != nil:
		s.log.Errorw("failed to dispatch user event", "user", user, "error", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to dispatch event")
		return
	}
	writeJSON(w, http.StatusAccepted, Response{Type: e.EventType(), Accepted: n})
}

func (s *Server) readEvent(w http.ResponseWriter, r *http.Request) (event.Event, bool) {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			writeError(w, http.StatusUnsupportedMediaType, ErrCodeUnsupportedType, "content type must be application/json")
			return nil, false
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "request body too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "failed to read request body")
		return nil, false
	}

	e, err := event.NewRaw(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return nil, false
	}
	return e, true
}
