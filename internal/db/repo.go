package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"cbt-companion/pkg"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Repository wraps database operations for sessions, messages, risk events,
// skill completions and therapist briefs. A single postgres database backs
// all of them. The caller manages the sql.DB lifecycle.
type Repository struct {
	DB *sql.DB
}

func NewRepository(db *sql.DB) *Repository { return &Repository{DB: db} }

// CreateSession starts a new active session for a patient.
func (r *Repository) CreateSession(ctx context.Context, patientID, countryCode, sessionGoal string) (*pkg.Session, error) {
	s := pkg.Session{
		ID:          uuid.NewString(),
		PatientID:   patientID,
		CountryCode: countryCode,
		SessionGoal: sessionGoal,
		Status:      pkg.SessionActive,
		RiskLevel:   pkg.RiskNone,
	}
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO sessions (id, patient_id, country_code, session_goal)
         VALUES ($1, $2, $3, $4)
         RETURNING started_at`,
		s.ID, s.PatientID, s.CountryCode, s.SessionGoal,
	).Scan(&s.StartedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSession retrieves a session by id.
func (r *Repository) GetSession(ctx context.Context, sessionID string) (*pkg.Session, error) {
	var s pkg.Session
	var goal sql.NullString
	var endedAt sql.NullTime
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, patient_id, country_code, session_goal, status, risk_level, started_at, ended_at
         FROM sessions WHERE id = $1`, sessionID,
	).Scan(&s.ID, &s.PatientID, &s.CountryCode, &goal, &s.Status, &s.RiskLevel, &s.StartedAt, &endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.SessionGoal = goal.String
	if endedAt.Valid {
		t := endedAt.Time
		s.EndedAt = &t
	}
	return &s, nil
}

// ListSessions returns recent sessions, newest first, for the therapist
// dashboard.
func (r *Repository) ListSessions(ctx context.Context, limit int) ([]pkg.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, patient_id, country_code, session_goal, status, risk_level, started_at, ended_at
         FROM sessions ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pkg.Session
	for rows.Next() {
		var s pkg.Session
		var goal sql.NullString
		var endedAt sql.NullTime
		if err := rows.Scan(&s.ID, &s.PatientID, &s.CountryCode, &goal, &s.Status, &s.RiskLevel, &s.StartedAt, &endedAt); err != nil {
			return nil, err
		}
		s.SessionGoal = goal.String
		if endedAt.Valid {
			t := endedAt.Time
			s.EndedAt = &t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpdateSessionStatus marks a session's lifecycle state. Terminal states also
// record the end time; flagged keeps the session open for the patient while
// surfacing it to therapists.
func (r *Repository) UpdateSessionStatus(ctx context.Context, sessionID string, status pkg.SessionStatus) error {
	var endedAt any
	if status == pkg.SessionCompleted || status == pkg.SessionTerminated {
		endedAt = time.Now()
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE sessions SET status = $1, ended_at = COALESCE($2, ended_at) WHERE id = $3`,
		status, endedAt, sessionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSessionRisk raises the stored session risk level. The caller decides
// ordering; this just writes the value.
func (r *Repository) UpdateSessionRisk(ctx context.Context, sessionID string, level pkg.RiskLevel) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE sessions SET risk_level = $1 WHERE id = $2`, level, sessionID)
	return err
}

// CreateMessage stores one chat message for a session.
func (r *Repository) CreateMessage(ctx context.Context, sessionID string, role pkg.Role, content string, riskLevel pkg.RiskLevel) (*pkg.Message, error) {
	m := pkg.Message{SessionID: sessionID, Role: role, Content: content, RiskLevel: riskLevel}
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO messages (session_id, role, content, risk_level)
         VALUES ($1, $2, $3, $4)
         RETURNING id, created_at`,
		sessionID, role, content, riskLevel,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetTranscript returns all messages of a session ordered by creation time.
func (r *Repository) GetTranscript(ctx context.Context, sessionID string) ([]pkg.Message, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, session_id, role, content, COALESCE(risk_level, ''), created_at
         FROM messages WHERE session_id = $1 ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pkg.Message
	for rows.Next() {
		var m pkg.Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.RiskLevel, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountSessionMessages counts patient messages in a session for cap
// enforcement.
func (r *Repository) CountSessionMessages(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id = $1 AND role = 'patient'`,
		sessionID).Scan(&count)
	return count, err
}

// CreateRiskEvent records an escalated risk assessment for therapist review.
func (r *Repository) CreateRiskEvent(ctx context.Context, e *pkg.RiskEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return r.DB.QueryRowContext(ctx,
		`INSERT INTO risk_events (id, session_id, level, triggers, reasoning, confidence)
         VALUES ($1, $2, $3, $4, $5, $6)
         RETURNING created_at`,
		e.ID, e.SessionID, e.Level, pq.Array(e.Triggers), e.Reasoning, e.Confidence,
	).Scan(&e.CreatedAt)
}

// ListRiskEvents returns risk events, optionally only unreviewed ones,
// newest first.
func (r *Repository) ListRiskEvents(ctx context.Context, unreviewedOnly bool, limit int) ([]pkg.RiskEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, session_id, level, triggers, reasoning, confidence, therapist_reviewed, created_at
              FROM risk_events`
	if unreviewedOnly {
		query += ` WHERE NOT therapist_reviewed`
	}
	query += ` ORDER BY created_at DESC LIMIT $1`

	rows, err := r.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pkg.RiskEvent
	for rows.Next() {
		var e pkg.RiskEvent
		var reasoning sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Level, pq.Array(&e.Triggers), &reasoning, &e.Confidence, &e.TherapistReviewed, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Reasoning = reasoning.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListSessionRiskEvents returns all risk events recorded for one session in
// chronological order.
func (r *Repository) ListSessionRiskEvents(ctx context.Context, sessionID string) ([]pkg.RiskEvent, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, session_id, level, triggers, reasoning, confidence, therapist_reviewed, created_at
         FROM risk_events WHERE session_id = $1 ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pkg.RiskEvent
	for rows.Next() {
		var e pkg.RiskEvent
		var reasoning sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Level, pq.Array(&e.Triggers), &reasoning, &e.Confidence, &e.TherapistReviewed, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Reasoning = reasoning.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkRiskEventReviewed flags a risk event as seen by a therapist.
func (r *Repository) MarkRiskEventReviewed(ctx context.Context, eventID string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE risk_events SET therapist_reviewed = TRUE WHERE id = $1`, eventID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateSkillCompletion records a finished structured-flow skill.
func (r *Repository) CreateSkillCompletion(ctx context.Context, c *pkg.SkillCompletion) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	data, err := json.Marshal(c.Data)
	if err != nil {
		return fmt.Errorf("encode skill data: %w", err)
	}
	return r.DB.QueryRowContext(ctx,
		`INSERT INTO skill_completions (id, session_id, skill, data)
         VALUES ($1, $2, $3, $4)
         RETURNING completed_at`,
		c.ID, c.SessionID, c.Skill, data,
	).Scan(&c.CompletedAt)
}

// ListSkillCompletions returns a session's completed skills, newest first.
func (r *Repository) ListSkillCompletions(ctx context.Context, sessionID string, limit int) ([]pkg.SkillCompletion, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, session_id, skill, data, completed_at
         FROM skill_completions WHERE session_id = $1
         ORDER BY completed_at DESC LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pkg.SkillCompletion
	for rows.Next() {
		var c pkg.SkillCompletion
		var data []byte
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Skill, &data, &c.CompletedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &c.Data); err != nil {
			return nil, fmt.Errorf("decode skill data: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertTherapistBrief stores the per-patient treatment brief as JSONB.
func (r *Repository) UpsertTherapistBrief(ctx context.Context, patientID string, brief *pkg.TherapistBrief) error {
	data, err := json.Marshal(brief)
	if err != nil {
		return fmt.Errorf("encode brief: %w", err)
	}
	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO therapist_briefs (patient_id, brief, updated_at)
         VALUES ($1, $2, NOW())
         ON CONFLICT (patient_id) DO UPDATE SET brief = EXCLUDED.brief, updated_at = NOW()`,
		patientID, data)
	return err
}

// GetTherapistBrief loads a patient's brief. Missing briefs are not an error;
// the pipeline runs fine without one.
func (r *Repository) GetTherapistBrief(ctx context.Context, patientID string) (*pkg.TherapistBrief, error) {
	var data []byte
	err := r.DB.QueryRowContext(ctx,
		`SELECT brief FROM therapist_briefs WHERE patient_id = $1`, patientID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var brief pkg.TherapistBrief
	if err := json.Unmarshal(data, &brief); err != nil {
		return nil, fmt.Errorf("decode brief: %w", err)
	}
	return &brief, nil
}
