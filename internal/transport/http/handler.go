// Package http is the session gateway: it resolves caller identity, maps
// requests onto session operations, and streams snapshots over websockets.
// It holds no session state of its own.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
	"livequiz-service/pkg/auth"
)

type Handler struct {
	service  *app.SessionService
	verifier *auth.TokenVerifier
	upgrader websocket.Upgrader
}

func NewHandler(service *app.SessionService, verifier *auth.TokenVerifier) *Handler {
	return &Handler{
		service:  service,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Register wires the live-session routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /live/create", h.withCaller(h.createSession))
	mux.HandleFunc("POST /live/join/{sessionID}", h.withCaller(h.joinSession))
	mux.HandleFunc("POST /live/start/{sessionID}", h.withCaller(h.startSession))
	mux.HandleFunc("POST /live/advance/{sessionID}", h.withCaller(h.advanceSession))
	mux.HandleFunc("POST /live/answer/{sessionID}", h.withCaller(h.submitAnswer))
	mux.HandleFunc("GET /live/status/{sessionID}", h.withCaller(h.sessionStatus))
	mux.HandleFunc("GET /live/ws", h.serveWS)
}

type createRequest struct {
	QuizID          string `json:"quizId"`
	TimePerQuestion int    `json:"timePerQuestion"`
}

type joinRequest struct {
	ConnectionID string `json:"connectionId"`
}

type answerRequest struct {
	QuestionIndex int                `json:"questionIndex"`
	Answer        domain.AnswerValue `json:"answer"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request, userID string) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuizID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "quizId is required", Kind: "bad_request"})
		return
	}
	snap, err := h.service.Create(r.Context(), req.QuizID, userID, req.TimePerQuestion)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *Handler) joinSession(w http.ResponseWriter, r *http.Request, userID string) {
	var req joinRequest
	// Body is optional; plain HTTP clients join without a connection handle.
	_ = json.NewDecoder(r.Body).Decode(&req)

	snap, err := h.service.Join(r.Context(), r.PathValue("sessionID"), userID, req.ConnectionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, userID string) {
	snap, err := h.service.Start(r.Context(), r.PathValue("sessionID"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) advanceSession(w http.ResponseWriter, r *http.Request, userID string) {
	snap, err := h.service.Advance(r.Context(), r.PathValue("sessionID"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) submitAnswer(w http.ResponseWriter, r *http.Request, userID string) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid answer payload", Kind: "bad_request"})
		return
	}
	_, err := h.service.SubmitAnswer(r.Context(), r.PathValue("sessionID"), userID, domain.AnswerSubmission{
		QuestionIndex: req.QuestionIndex,
		Value:         req.Answer,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) sessionStatus(w http.ResponseWriter, r *http.Request, _ string) {
	snap, err := h.service.Snapshot(r.Context(), r.PathValue("sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type outboundMessage struct {
	Type    string                 `json:"type"`
	Payload domain.SessionSnapshot `json:"payload"`
}

// serveWS upgrades the connection and streams full session snapshots until
// the client goes away. If the caller is a joined participant, the session's
// connection handle is rebound to this socket.
func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request) {
	userID, err := h.resolveCaller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing sessionId", Kind: "bad_request"})
		return
	}

	updates, cancel, err := h.service.Subscribe(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	if _, err := h.service.Rebind(r.Context(), sessionID, userID, connID); err != nil && !errors.Is(err, domain.ErrForbidden) {
		// Hosts and spectators are not participants; only real failures matter.
		log.Warn().Err(err).Str("session", sessionID).Str("user", userID).Msg("connection rebind failed")
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for snap := range updates {
			if err := conn.WriteJSON(outboundMessage{Type: "sessionUpdate", Payload: snap}); err != nil {
				log.Warn().Err(err).Str("session", sessionID).Str("user", userID).Msg("ws write failed, dropping subscriber")
				return
			}
		}
	}()

	// The stream is read-only; the read loop only detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	cancel()
	<-writerDone
}

// withCaller resolves the bearer credential before delegating.
func (h *Handler) withCaller(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := h.resolveCaller(r)
		if err != nil {
			writeError(w, err)
			return
		}
		next(w, r, userID)
	}
}

func (h *Handler) resolveCaller(r *http.Request) (string, error) {
	token := r.URL.Query().Get("token")
	if header := r.Header.Get("Authorization"); header != "" {
		token = strings.TrimPrefix(header, "Bearer ")
	}
	return h.verifier.ResolveCaller(token)
}

func writeError(w http.ResponseWriter, err error) {
	status, kind := classify(err)
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

// classify maps domain errors onto stable error kinds and HTTP statuses.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, domain.ErrQuizNotFound):
		return http.StatusNotFound, "quiz_not_found"
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusBadRequest, "invalid_state"
	case errors.Is(err, domain.ErrAlreadyJoined):
		return http.StatusBadRequest, "already_joined"
	case errors.Is(err, domain.ErrDuplicateAnswer):
		return http.StatusBadRequest, "duplicate_answer"
	case errors.Is(err, domain.ErrStaleQuestion):
		return http.StatusBadRequest, "stale_question"
	case errors.Is(err, domain.ErrDeadlineExceeded):
		return http.StatusBadRequest, "deadline_exceeded"
	case errors.Is(err, domain.ErrInvalidAnswer):
		return http.StatusBadRequest, "invalid_answer"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("response encode failed")
	}
}
