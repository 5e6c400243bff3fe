package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/page.turner/internal/report"
)

// ErrSessionNotFound is returned for an unknown session id.
var ErrSessionNotFound = errors.New("db: session not found")

// Session statuses.
const (
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusStopped  = "stopped"
)

// Session is one run of the follower against one score.
type Session struct {
	ID             string     `json:"id"`
	ScoreName      string     `json:"score_name"`
	ScoreLen       int        `json:"score_len"`
	Boundaries     []int      `json:"boundaries"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Status         string     `json:"status"`
	FinalPosition  int        `json:"final_position"`
	Frames         int64      `json:"frames"`
	LostFrames     int64      `json:"lost_frames"`
	Recoveries     int64      `json:"recoveries"`
	PageTurns      int64      `json:"page_turns"`
	DeadlineMisses int64      `json:"deadline_misses"`
}

// SessionResult is written when a session ends.
type SessionResult struct {
	Status         string
	FinishedAt     time.Time
	FinalPosition  int
	Frames         int64
	LostFrames     int64
	Recoveries     int64
	PageTurns      int64
	DeadlineMisses int64
}

// FrameRow is the per-frame alignment trace.
type FrameRow struct {
	Frame    int     `json:"frame"`
	Elapsed  float64 `json:"elapsed_s"`
	Position int     `json:"position"`
	Cost     float64 `json:"cost"`
	Loudness float64 `json:"loudness"`
	Lost     bool    `json:"lost"`
	State    string  `json:"state"`
}

// PageTurnRow records one page turn and whether the relay accepted it.
type PageTurnRow struct {
	Index     int     `json:"index"`
	Boundary  int     `json:"boundary"`
	Position  int     `json:"position"`
	Page      int     `json:"page"`
	Frame     int     `json:"frame"`
	Elapsed   float64 `json:"elapsed_s"`
	Sent      bool    `json:"sent"`
	SendError string  `json:"send_error,omitempty"`
}

// StartSession creates a running session for a score.
func (db *DB) StartSession(scoreName string, scoreLen int, boundaries []int, at time.Time) (*Session, error) {
	if boundaries == nil {
		boundaries = []int{}
	}
	b, err := json.Marshal(boundaries)
	if err != nil {
		return nil, err
	}
	s := &Session{
		ID:         uuid.NewString(),
		ScoreName:  scoreName,
		ScoreLen:   scoreLen,
		Boundaries: boundaries,
		StartedAt:  at,
		Status:     StatusRunning,
	}
	_, err = db.Exec(
		`INSERT INTO sessions (session_id, score_name, score_len, boundaries_json, started_unix, status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, scoreName, scoreLen, string(b), unixSeconds(at), StatusRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	return s, nil
}

// RecordFrames inserts a batch of frames in one transaction.
func (db *DB) RecordFrames(sessionID string, rows []FrameRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO frames (session_id, frame, elapsed_s, position, cost, loudness, lost, state)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.Exec(sessionID, r.Frame, r.Elapsed, r.Position, r.Cost, r.Loudness, r.Lost, r.State); err != nil {
			return fmt.Errorf("failed to record frame %d: %w", r.Frame, err)
		}
	}
	return tx.Commit()
}

// RecordPageTurn inserts one page turn.
func (db *DB) RecordPageTurn(sessionID string, t PageTurnRow) error {
	_, err := db.Exec(
		`INSERT INTO page_turns (session_id, turn_index, boundary, position, page, frame, elapsed_s, sent, send_error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, t.Index, t.Boundary, t.Position, t.Page, t.Frame, t.Elapsed, t.Sent, t.SendError,
	)
	if err != nil {
		return fmt.Errorf("failed to record page turn %d: %w", t.Index, err)
	}
	return nil
}

// FinishSession stores the outcome of a session.
func (db *DB) FinishSession(sessionID string, r SessionResult) error {
	res, err := db.Exec(
		`UPDATE sessions SET finished_unix = ?, status = ?, final_position = ?, frames = ?,
		 lost_frames = ?, recoveries = ?, page_turns = ?, deadline_misses = ?
		 WHERE session_id = ?`,
		unixSeconds(r.FinishedAt), r.Status, r.FinalPosition, r.Frames,
		r.LostFrames, r.Recoveries, r.PageTurns, r.DeadlineMisses, sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

const sessionColumns = `session_id, score_name, score_len, boundaries_json, started_unix, finished_unix,
	status, final_position, frames, lost_frames, recoveries, page_turns, deadline_misses`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		s          Session
		boundaries string
		started    float64
		finished   sql.NullFloat64
	)
	if err := row.Scan(&s.ID, &s.ScoreName, &s.ScoreLen, &boundaries, &started, &finished,
		&s.Status, &s.FinalPosition, &s.Frames, &s.LostFrames, &s.Recoveries, &s.PageTurns, &s.DeadlineMisses); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(boundaries), &s.Boundaries); err != nil {
		return nil, fmt.Errorf("session %s: bad boundaries: %w", s.ID, err)
	}
	s.StartedAt = fromUnixSeconds(started)
	if finished.Valid {
		t := fromUnixSeconds(finished.Float64)
		s.FinishedAt = &t
	}
	return &s, nil
}

// Session returns one session by id.
func (db *DB) Session(id string) (*Session, error) {
	s, err := scanSession(db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return s, err
}

// Sessions returns the most recent sessions, newest first.
func (db *DB) Sessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT `+sessionColumns+` FROM sessions ORDER BY started_unix DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// PageTurns returns the turns of a session in firing order.
func (db *DB) PageTurns(sessionID string) ([]PageTurnRow, error) {
	rows, err := db.Query(
		`SELECT turn_index, boundary, position, page, frame, elapsed_s, sent, send_error
		 FROM page_turns WHERE session_id = ? ORDER BY turn_index`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PageTurnRow
	for rows.Next() {
		var t PageTurnRow
		if err := rows.Scan(&t.Index, &t.Boundary, &t.Position, &t.Page, &t.Frame, &t.Elapsed, &t.Sent, &t.SendError); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// FramePath assembles the alignment path of a stored session.
func (db *DB) FramePath(sessionID string) (report.Path, error) {
	s, err := db.Session(sessionID)
	if err != nil {
		return report.Path{}, err
	}
	p := report.Path{
		Title:      fmt.Sprintf("%s (%s)", s.ScoreName, s.StartedAt.Format(time.RFC3339)),
		ScoreLen:   s.ScoreLen,
		Boundaries: s.Boundaries,
	}

	rows, err := db.Query(`SELECT frame, position, cost, lost FROM frames WHERE session_id = ? ORDER BY frame`, sessionID)
	if err != nil {
		return report.Path{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var pt report.Point
		if err := rows.Scan(&pt.Frame, &pt.Position, &pt.Cost, &pt.Lost); err != nil {
			return report.Path{}, err
		}
		p.Points = append(p.Points, pt)
	}
	if err := rows.Err(); err != nil {
		return report.Path{}, err
	}

	turns, err := db.PageTurns(sessionID)
	if err != nil {
		return report.Path{}, err
	}
	for _, t := range turns {
		p.Turns = append(p.Turns, report.Turn{Frame: t.Frame, Position: t.Position, Page: t.Page})
	}
	return p, nil
}

// SessionPath adapts a stored session to report.PathSource. Errors yield an
// empty path.
type SessionPath struct {
	DB *DB
	ID string
}

func (sp SessionPath) Path() report.Path {
	p, err := sp.DB.FramePath(sp.ID)
	if err != nil {
		return report.Path{}
	}
	return p
}

func (db *DB) handleSessions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sessions, err := db.Sessions(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []Session{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(sessions)
}
