package http

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"cbt-companion/internal/core"
	"cbt-companion/internal/db"
	"cbt-companion/internal/logger"
	"cbt-companion/pkg"
)

// SessionMode selects which engine drives a session's conversation.
type SessionMode string

const (
	ModeAdaptive   SessionMode = "adaptive"
	ModeStructured SessionMode = "structured"
)

// sessionEntry is the in-memory live state of one session. Turns within a
// session are serialized by mu; different sessions proceed concurrently.
type sessionEntry struct {
	mu    sync.Mutex
	mode  SessionMode
	state *pkg.ConversationState
	flow  *core.FlowState
	brief *pkg.TherapistBrief
}

// Store is the persistence surface the handlers depend on. *db.Repository
// implements it; tests substitute an in-memory fake.
type Store interface {
	CreateSession(ctx context.Context, patientID, countryCode, sessionGoal string) (*pkg.Session, error)
	GetSession(ctx context.Context, sessionID string) (*pkg.Session, error)
	ListSessions(ctx context.Context, limit int) ([]pkg.Session, error)
	UpdateSessionStatus(ctx context.Context, sessionID string, status pkg.SessionStatus) error
	UpdateSessionRisk(ctx context.Context, sessionID string, level pkg.RiskLevel) error
	CreateMessage(ctx context.Context, sessionID string, role pkg.Role, content string, riskLevel pkg.RiskLevel) (*pkg.Message, error)
	GetTranscript(ctx context.Context, sessionID string) ([]pkg.Message, error)
	CountSessionMessages(ctx context.Context, sessionID string) (int, error)
	CreateRiskEvent(ctx context.Context, e *pkg.RiskEvent) error
	ListRiskEvents(ctx context.Context, unreviewedOnly bool, limit int) ([]pkg.RiskEvent, error)
	ListSessionRiskEvents(ctx context.Context, sessionID string) ([]pkg.RiskEvent, error)
	MarkRiskEventReviewed(ctx context.Context, eventID string) error
	CreateSkillCompletion(ctx context.Context, c *pkg.SkillCompletion) error
	ListSkillCompletions(ctx context.Context, sessionID string, limit int) ([]pkg.SkillCompletion, error)
	UpsertTherapistBrief(ctx context.Context, patientID string, brief *pkg.TherapistBrief) error
	GetTherapistBrief(ctx context.Context, patientID string) (*pkg.TherapistBrief, error)
}

// AlertBus publishes risk alerts to therapist subscribers. *db.Notifier
// implements it over Postgres NOTIFY.
type AlertBus interface {
	Notify(ctx context.Context, alert db.RiskAlert) error
	Listen(ctx context.Context) (<-chan db.RiskAlert, error)
}

// Server bundles the dependencies required by the HTTP handlers. It
// implements http.Handler so it can be passed to http.ListenAndServe.
type Server struct {
	Repo           Store
	Pipeline       *core.Pipeline
	Flow           *core.StructuredFlow
	Notifier       AlertBus
	Log            *logger.Logger
	MessageCap     int
	DefaultCountry string

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

func NewServer(repo Store, pipeline *core.Pipeline, flow *core.StructuredFlow, notifier AlertBus, messageCap int, defaultCountry string, log *logger.Logger) *Server {
	return &Server{
		Repo:           repo,
		Pipeline:       pipeline,
		Flow:           flow,
		Notifier:       notifier,
		Log:            log,
		MessageCap:     messageCap,
		DefaultCountry: defaultCountry,
		sessions:       make(map[string]*sessionEntry),
	}
}

// ServeHTTP dispatches incoming requests based on the URL path. Minimal
// routing logic is implemented here to keep dependencies light.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/healthz" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	case path == "/api/sessions" && r.Method == http.MethodPost:
		s.handleCreateSession(w, r)

	case strings.HasPrefix(path, "/api/sessions/") && strings.HasSuffix(path, "/messages") && r.Method == http.MethodPost:
		if id := pathSegment(path, 3); id != "" {
			s.handlePostMessage(w, r, id)
			return
		}
		http.NotFound(w, r)

	case strings.HasPrefix(path, "/api/sessions/") && r.Method == http.MethodGet:
		if id := pathSegment(path, 3); id != "" && pathSegment(path, 4) == "" {
			s.handleGetSession(w, r, id)
			return
		}
		http.NotFound(w, r)

	case path == "/api/therapist/sessions" && r.Method == http.MethodGet:
		s.handleTherapistSessions(w, r)

	case strings.HasPrefix(path, "/api/therapist/sessions/") && r.Method == http.MethodGet:
		id := pathSegment(path, 4)
		switch pathSegment(path, 5) {
		case "":
			s.handleTherapistSessionDetail(w, r, id)
		case "export":
			s.handleExport(w, r, id)
		default:
			http.NotFound(w, r)
		}

	case path == "/api/therapist/alerts" && r.Method == http.MethodGet:
		s.handleListAlerts(w, r)

	case path == "/api/therapist/alerts/stream" && r.Method == http.MethodGet:
		s.handleAlertStream(w, r)

	case strings.HasPrefix(path, "/api/therapist/alerts/") && strings.HasSuffix(path, "/review") && r.Method == http.MethodPost:
		if id := pathSegment(path, 4); id != "" {
			s.handleReviewAlert(w, r, id)
			return
		}
		http.NotFound(w, r)

	case strings.HasPrefix(path, "/api/therapist/patients/") && strings.HasSuffix(path, "/brief") && r.Method == http.MethodPut:
		if id := pathSegment(path, 4); id != "" {
			s.handleUpsertBrief(w, r, id)
			return
		}
		http.NotFound(w, r)

	default:
		http.NotFound(w, r)
	}
}

type createSessionRequest struct {
	PatientID   string      `json:"patient_id"`
	CountryCode string      `json:"country_code"`
	SessionGoal string      `json:"session_goal"`
	PatientName string      `json:"patient_name"`
	Mode        SessionMode `json:"mode"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PatientID == "" {
		writeError(w, http.StatusBadRequest, "patient_id is required")
		return
	}
	if req.Mode == "" {
		req.Mode = ModeAdaptive
	}
	if req.Mode != ModeAdaptive && req.Mode != ModeStructured {
		writeError(w, http.StatusBadRequest, "mode must be adaptive or structured")
		return
	}
	if req.CountryCode == "" {
		req.CountryCode = s.DefaultCountry
	}

	sess, err := s.Repo.CreateSession(ctx, req.PatientID, req.CountryCode, req.SessionGoal)
	if err != nil {
		s.Log.Error("create session", "error", err)
		writeError(w, http.StatusInternalServerError, "could not create session")
		return
	}

	brief, err := s.Repo.GetTherapistBrief(ctx, req.PatientID)
	if err != nil {
		s.Log.Warn("load therapist brief", "patient_id", req.PatientID, "error", err)
	}

	entry := &sessionEntry{mode: req.Mode, brief: brief}
	resp := map[string]any{"session_id": sess.ID, "mode": req.Mode}

	if req.Mode == ModeStructured {
		entry.flow = core.NewFlowState()
		opening := s.Flow.Start(req.CountryCode)
		if _, err := s.Repo.CreateMessage(ctx, sess.ID, pkg.RoleAssistant, opening, ""); err != nil {
			s.Log.Warn("persist opening message", "session_id", sess.ID, "error", err)
		}
		resp["opening_message"] = opening
	} else {
		state := pkg.NewConversationState(sess.ID, req.CountryCode)
		state.PatientName = req.PatientName
		state.SessionGoal = req.SessionGoal
		entry.state = state
	}

	s.mu.Lock()
	s.sessions[sess.ID] = entry
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, resp)
}

type postMessageRequest struct {
	Message string `json:"message"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request, sessionID string) {
	ctx := r.Context()

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	s.mu.Lock()
	entry, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "session not found or no longer active")
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	count, err := s.Repo.CountSessionMessages(ctx, sessionID)
	if err != nil {
		s.Log.Error("count session messages", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not process message")
		return
	}
	if count >= s.MessageCap {
		writeError(w, http.StatusTooManyRequests, "session message limit reached")
		return
	}

	if entry.mode == ModeStructured {
		s.handleStructuredTurn(w, r, sessionID, entry, req.Message)
		return
	}
	s.handleAdaptiveTurn(w, r, sessionID, entry, req.Message)
}

func (s *Server) handleAdaptiveTurn(w http.ResponseWriter, r *http.Request, sessionID string, entry *sessionEntry, message string) {
	ctx := r.Context()

	result, err := s.Pipeline.HandleMessage(ctx, message, entry.state, entry.brief)
	if err != nil {
		s.Log.Error("pipeline turn failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusBadGateway, "could not generate a response, please retry")
		return
	}

	if _, err := s.Repo.CreateMessage(ctx, sessionID, pkg.RolePatient, message, result.Risk.Level); err != nil {
		s.Log.Warn("persist patient message", "session_id", sessionID, "error", err)
	}
	if _, err := s.Repo.CreateMessage(ctx, sessionID, pkg.RoleAssistant, result.Response, ""); err != nil {
		s.Log.Warn("persist assistant message", "session_id", sessionID, "error", err)
	}

	if result.Risk.ShouldEscalate {
		s.recordRiskEvent(r, sessionID, result.Risk)
	}

	if result.ShouldEndSession {
		if err := s.Repo.UpdateSessionStatus(ctx, sessionID, pkg.SessionTerminated); err != nil {
			s.Log.Error("terminate session", "session_id", sessionID, "error", err)
		}
		s.mu.Lock()
		delete(s.sessions, sessionID)
		s.mu.Unlock()
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStructuredTurn(w http.ResponseWriter, r *http.Request, sessionID string, entry *sessionEntry, message string) {
	ctx := r.Context()

	recent, err := s.Repo.ListSkillCompletions(ctx, sessionID, 5)
	if err != nil {
		s.Log.Warn("list skill completions", "session_id", sessionID, "error", err)
	}

	result := s.Flow.Advance(entry.flow, sessionID, message, recent)

	if _, err := s.Repo.CreateMessage(ctx, sessionID, pkg.RolePatient, message, ""); err != nil {
		s.Log.Warn("persist patient message", "session_id", sessionID, "error", err)
	}
	if _, err := s.Repo.CreateMessage(ctx, sessionID, pkg.RoleAssistant, result.Response, ""); err != nil {
		s.Log.Warn("persist assistant message", "session_id", sessionID, "error", err)
	}

	if result.Completion != nil {
		if err := s.Repo.CreateSkillCompletion(ctx, result.Completion); err != nil {
			s.Log.Error("persist skill completion", "session_id", sessionID, "error", err)
		}
	}

	if result.Ended {
		if err := s.Repo.UpdateSessionStatus(ctx, sessionID, pkg.SessionCompleted); err != nil {
			s.Log.Error("complete session", "session_id", sessionID, "error", err)
		}
		s.mu.Lock()
		delete(s.sessions, sessionID)
		s.mu.Unlock()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"response": result.Response,
		"step":     entry.flow.Step,
		"ended":    result.Ended,
	})
}

// recordRiskEvent persists an escalated assessment and publishes it on the
// alert channel. Failures are logged, not surfaced: the patient-facing
// response must not depend on the audit path.
func (s *Server) recordRiskEvent(r *http.Request, sessionID string, risk pkg.RiskAssessment) {
	ctx := r.Context()

	event := &pkg.RiskEvent{
		SessionID:  sessionID,
		Level:      risk.Level,
		Triggers:   risk.Triggers,
		Reasoning:  risk.Reasoning,
		Confidence: risk.Confidence,
	}
	if err := s.Repo.CreateRiskEvent(ctx, event); err != nil {
		s.Log.Error("persist risk event", "session_id", sessionID, "error", err)
	}
	if err := s.Repo.UpdateSessionRisk(ctx, sessionID, risk.Level); err != nil {
		s.Log.Error("update session risk", "session_id", sessionID, "error", err)
	}
	// High-risk turns are terminated by the caller; everything else that
	// escalates marks the session for therapist review without ending it.
	if !risk.ShouldEndSession {
		if err := s.Repo.UpdateSessionStatus(ctx, sessionID, pkg.SessionFlagged); err != nil {
			s.Log.Error("flag session", "session_id", sessionID, "error", err)
		}
	}
	if err := s.Notifier.Notify(ctx, db.RiskAlert{SessionID: sessionID, Level: risk.Level, Triggers: risk.Triggers}); err != nil {
		s.Log.Warn("publish risk alert", "session_id", sessionID, "error", err)
	}
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	ctx := r.Context()

	sess, err := s.Repo.GetSession(ctx, sessionID)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.Log.Error("get session", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not load session")
		return
	}
	transcript, err := s.Repo.GetTranscript(ctx, sessionID)
	if err != nil {
		s.Log.Error("get transcript", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not load transcript")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sess, "transcript": transcript})
}

func (s *Server) handleTherapistSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.Repo.ListSessions(r.Context(), 100)
	if err != nil {
		s.Log.Error("list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "could not list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleTherapistSessionDetail(w http.ResponseWriter, r *http.Request, sessionID string) {
	ctx := r.Context()

	sess, err := s.Repo.GetSession(ctx, sessionID)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.Log.Error("get session", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not load session")
		return
	}
	transcript, err := s.Repo.GetTranscript(ctx, sessionID)
	if err != nil {
		s.Log.Error("get transcript", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not load transcript")
		return
	}
	events, err := s.Repo.ListSessionRiskEvents(ctx, sessionID)
	if err != nil {
		s.Log.Warn("list session risk events", "session_id", sessionID, "error", err)
	}
	completions, err := s.Repo.ListSkillCompletions(ctx, sessionID, 20)
	if err != nil {
		s.Log.Warn("list skill completions", "session_id", sessionID, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":           sess,
		"transcript":        transcript,
		"risk_events":       events,
		"skill_completions": completions,
	})
}

// handleExport writes a session transcript as CSV or JSON for clinical
// record-keeping.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, sessionID string) {
	ctx := r.Context()

	// The transcript query cannot distinguish an unknown session from an
	// empty one, so resolve the session first.
	if _, err := s.Repo.GetSession(ctx, sessionID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.Log.Error("export session lookup", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not export transcript")
		return
	}

	transcript, err := s.Repo.GetTranscript(ctx, sessionID)
	if err != nil {
		s.Log.Error("export transcript", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not export transcript")
		return
	}

	format := r.URL.Query().Get("format")
	switch format {
	case "", "json":
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.json", sessionID))
		writeJSON(w, http.StatusOK, transcript)

	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", sessionID))
		cw := csv.NewWriter(w)
		_ = cw.Write([]string{"created_at", "role", "risk_level", "content"})
		for _, m := range transcript {
			_ = cw.Write([]string{
				m.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
				string(m.Role),
				string(m.RiskLevel),
				m.Content,
			})
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			s.Log.Error("write csv export", "session_id", sessionID, "error", err)
		}

	default:
		writeError(w, http.StatusBadRequest, "format must be csv or json")
	}
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	unreviewedOnly := r.URL.Query().Get("all") == ""
	events, err := s.Repo.ListRiskEvents(r.Context(), unreviewedOnly, 100)
	if err != nil {
		s.Log.Error("list risk events", "error", err)
		writeError(w, http.StatusInternalServerError, "could not list alerts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": events})
}

func (s *Server) handleReviewAlert(w http.ResponseWriter, r *http.Request, eventID string) {
	err := s.Repo.MarkRiskEventReviewed(r.Context(), eventID)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	if err != nil {
		s.Log.Error("mark alert reviewed", "event_id", eventID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not update alert")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reviewed"})
}

// handleAlertStream pushes risk alerts to the therapist dashboard over SSE.
func (s *Server) handleAlertStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	alerts, err := s.Notifier.Listen(r.Context())
	if err != nil {
		s.Log.Error("subscribe to risk alerts", "error", err)
		writeError(w, http.StatusInternalServerError, "could not subscribe to alerts")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case alert, ok := <-alerts:
			if !ok {
				return
			}
			payload, err := json.Marshal(alert)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: risk_alert\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func (s *Server) handleUpsertBrief(w http.ResponseWriter, r *http.Request, patientID string) {
	var brief pkg.TherapistBrief
	if err := json.NewDecoder(r.Body).Decode(&brief); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.Repo.UpsertTherapistBrief(r.Context(), patientID, &brief); err != nil {
		s.Log.Error("upsert therapist brief", "patient_id", patientID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not save brief")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// pathSegment returns the n-th slash-separated segment of a path, counting
// from 1, or "" when absent.
func pathSegment(path string, n int) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if n-1 < len(parts) {
		return parts[n-1]
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
