package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/fraudshield/internal/domain"
	"github.com/opensource-finance/fraudshield/internal/live"
	"github.com/opensource-finance/fraudshield/internal/logging"
	"github.com/opensource-finance/fraudshield/internal/repository"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Submitter forwards a transaction to the scorer.
type Submitter interface {
	Submit(ctx context.Context, sub *domain.TransactionSubmission) (*domain.RawModelResponse, error)
}

// SubmitterFor returns the submitter bound to a session's credentials.
type SubmitterFor func(sessionID string) Submitter

// Analyzer runs a submission through the analysis pipeline.
type Analyzer interface {
	Run(ctx context.Context, msg *domain.SubmissionMessage) (*domain.RiskAssessment, error)
}

// Sessions manages authentication sessions.
type Sessions interface {
	Register(ctx context.Context, creds domain.Credentials) (string, error)
	Login(ctx context.Context, creds domain.Credentials) (*domain.Session, error)
	Logout(ctx context.Context, sessionID string) error
}

// Dependencies holds everything the handlers need. Nil members disable
// the routes that depend on them.
type Dependencies struct {
	Repo       domain.Repository
	Cache      domain.Cache
	Bus        domain.EventBus
	Views      *live.Manager
	Submitters SubmitterFor
	Analyzer   Analyzer
	Sessions   Sessions
	Version    string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	deps Dependencies
}

// NewHandler creates a new API handler.
func NewHandler(deps Dependencies) *Handler {
	return &Handler{deps: deps}
}

// SubmitResponse is the response for POST /transactions.
type SubmitResponse struct {
	TxID    string                   `json:"txId"`
	Receipt *domain.RawModelResponse `json:"receipt"`
}

// RegisterResponse is the response for POST /auth/register.
type RegisterResponse struct {
	ID string `json:"id"`
}

// LoginResponse is the response for POST /auth/login. The session id is
// sent back in the X-Session-ID header on later requests.
type LoginResponse struct {
	SessionID string    `json:"sessionId"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.deps.Repo != nil {
		if err := h.deps.Repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.deps.Cache != nil {
		if err := h.deps.Cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.deps.Bus != nil {
		if err := h.deps.Bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.deps.Version,
	})
}

// Ready handles GET /ready. The service is ready once every view has
// applied at least one snapshot.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ready := true
	var statuses []live.Status
	if h.deps.Views != nil {
		statuses = h.deps.Views.Status()
		for _, s := range statuses {
			if s.LastSuccess.IsZero() {
				ready = false
			}
		}
	}

	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"ready": ready,
		"views": statuses,
	})
}

// GetFeed handles GET /feed/{view}.
func (h *Handler) GetFeed(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshot(r.Context(), chi.URLParam(r, "view"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, *snap)
}

// GetStats handles GET /stats.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	view := r.URL.Query().Get("view")
	if view == "" {
		view = domain.ViewDashboard
	}

	snap, err := h.snapshot(r.Context(), view)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, snap.Stats)
}

// snapshot returns the view's current snapshot, falling back to the
// shared cache before the local synchronizer has applied one.
func (h *Handler) snapshot(ctx context.Context, view string) (*domain.FeedSnapshot, error) {
	if h.deps.Views == nil {
		return nil, live.ErrUnknownView
	}

	snap, err := h.deps.Views.Snapshot(view)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, live.ErrNoSnapshot) || h.deps.Cache == nil {
		return nil, err
	}

	cached, cerr := h.deps.Cache.GetSnapshot(ctx, view)
	if cerr != nil {
		logging.L(ctx).Warn("failed to read cached snapshot", "view", view, "error", cerr)
		return nil, err
	}
	if cached == nil {
		return nil, err
	}
	return cached, nil
}

// ListViews handles GET /views.
func (h *Handler) ListViews(w http.ResponseWriter, r *http.Request) {
	if h.deps.Views == nil {
		writeResult(w, http.StatusOK, []live.Status{})
		return
	}
	writeResult(w, http.StatusOK, h.deps.Views.Status())
}

// PauseView handles POST /views/{view}/pause.
func (h *Handler) PauseView(w http.ResponseWriter, r *http.Request) {
	h.controlView(w, r, (*live.Manager).Pause)
}

// ResumeView handles POST /views/{view}/resume.
func (h *Handler) ResumeView(w http.ResponseWriter, r *http.Request) {
	h.controlView(w, r, (*live.Manager).Resume)
}

func (h *Handler) controlView(w http.ResponseWriter, r *http.Request, op func(*live.Manager, string) error) {
	if h.deps.Views == nil {
		writeError(w, r, live.ErrUnknownView)
		return
	}

	name := chi.URLParam(r, "view")
	if err := op(h.deps.Views, name); err != nil {
		writeError(w, r, err)
		return
	}

	s, err := h.deps.Views.View(name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, s.Status())
}

// SubmitTransaction handles POST /transactions.
func (h *Handler) SubmitTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var sub domain.TransactionSubmission
	if !decodeBody(w, r, &sub) {
		return
	}
	if err := sub.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	sessionID := GetSessionID(ctx)
	receipt, err := h.deps.Submitters(sessionID).Submit(ctx, &sub)
	if err != nil {
		writeError(w, r, err)
		return
	}

	txID := uuid.New().String()
	if h.deps.Bus != nil {
		payload, _ := json.Marshal(domain.SubmissionMessage{
			TxID:       txID,
			TraceID:    GetTraceID(ctx),
			SessionID:  sessionID,
			Submission: sub,
			Receipt:    receipt,
		})
		if err := h.deps.Bus.Publish(ctx, domain.TopicTransactionSubmitted, payload); err != nil {
			logging.L(ctx).Error("failed to publish submission", "tx_id", txID, "error", err)
		}
	}

	writeResult(w, http.StatusAccepted, SubmitResponse{
		TxID:    txID,
		Receipt: receipt,
	})
}

// Analyze handles POST /analyze.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var sub domain.TransactionSubmission
	if !decodeBody(w, r, &sub) {
		return
	}

	txID := r.URL.Query().Get("txId")
	if txID == "" {
		txID = uuid.New().String()
	}

	assessment, err := h.deps.Analyzer.Run(ctx, &domain.SubmissionMessage{
		TxID:       txID,
		TraceID:    GetTraceID(ctx),
		SessionID:  GetSessionID(ctx),
		Submission: sub,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, *assessment)
}

// ListAssessments handles GET /assessments.
func (h *Handler) ListAssessments(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Repo.ListAssessments(r.Context(), queryLimit(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*domain.RiskAssessment{}
	}
	writeResult(w, http.StatusOK, list)
}

// GetAssessment handles GET /assessments/{txId}.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	a, err := h.deps.Repo.GetAssessmentByTransaction(r.Context(), chi.URLParam(r, "txId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, *a)
}

// ListNotifications handles GET /notifications.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Repo.ListNotifications(r.Context(), queryLimit(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*domain.Notification{}
	}
	writeResult(w, http.StatusOK, list)
}

// MarkNotificationRead handles POST /notifications/{id}/read.
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.deps.Repo.MarkNotificationRead(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, map[string]string{"id": id})
}

// Register handles POST /auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var creds domain.Credentials
	if !decodeBody(w, r, &creds) {
		return
	}

	id, err := h.deps.Sessions.Register(r.Context(), creds)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, http.StatusCreated, RegisterResponse{ID: id})
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var creds domain.Credentials
	if !decodeBody(w, r, &creds) {
		return
	}

	s, err := h.deps.Sessions.Login(r.Context(), creds)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set(SessionIDHeader, s.ID)
	writeResult(w, http.StatusOK, LoginResponse{
		SessionID: s.ID,
		Email:     s.Email,
		CreatedAt: s.CreatedAt,
	})
}

// Logout handles POST /auth/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := GetSessionID(r.Context())
	if sessionID == "" {
		writeError(w, r, &domain.ValidationError{Field: SessionIDHeader, Message: "header is required"})
		return
	}

	if err := h.deps.Sessions.Logout(r.Context(), sessionID); err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, map[string]string{"sessionId": sessionID})
}

// decodeBody decodes a JSON body, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, domain.Result[any]{
			Error: "invalid JSON request body",
		})
		return false
	}
	return true
}

// queryLimit reads the optional ?limit= parameter. The repository clamps it.
func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return limit
}

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	var verr *domain.ValidationError
	var rerr *domain.RequestError

	switch {
	case errors.As(err, &verr), errors.Is(err, repository.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.As(err, &rerr):
		if rerr.StatusCode >= 400 && rerr.StatusCode <= 599 {
			return rerr.StatusCode
		}
		return http.StatusBadGateway
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, live.ErrUnknownView):
		return http.StatusNotFound
	case errors.Is(err, live.ErrNoSnapshot):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	result := domain.Fail[any](err)

	if status == http.StatusInternalServerError {
		logging.L(r.Context()).Error("request failed",
			"path", r.URL.Path,
			"error", err,
		)
		result.Error = "internal server error"
	}
	writeJSON(w, status, result)
}

func writeResult[T any](w http.ResponseWriter, status int, data T) {
	writeJSON(w, status, domain.OK(data))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
