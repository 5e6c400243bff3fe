package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/banshee-data/page.turner/internal/db"
	"github.com/banshee-data/page.turner/internal/monitoring"
	"github.com/banshee-data/page.turner/internal/tracker"
)

// SessionStore is the part of the session log the DBSink writes to.
type SessionStore interface {
	RecordFrames(sessionID string, rows []db.FrameRow) error
	RecordPageTurn(sessionID string, t db.PageTurnRow) error
}

// turnReserve is the queue room kept free of frames so that a page turn
// can be queued without blocking the frame loop.
const turnReserve = 16

type dbOp struct {
	frame *db.FrameRow
	turn  *db.PageTurnRow
}

// DBSink writes frames and page turns to the session log from its own
// goroutine. Frames are batched and dropped when the writer falls behind.
// Page turns use a reserved part of the queue and are only dropped once
// that is full too. No method blocks the caller.
type DBSink struct {
	store     SessionStore
	sessionID string
	batch     int
	frameCap  int
	// turns numbers the stored page turns. The tracker's boundary index
	// repeats after a restart, so it cannot key the row.
	turns int

	ops       chan dbOp
	done      chan struct{}
	closeOnce sync.Once

	dropped      atomic.Uint64
	droppedTurns atomic.Uint64
	errors       atomic.Uint64
}

// NewDBSink starts a sink for sessionID, writing frames in batches of
// batch rows.
func NewDBSink(store SessionStore, sessionID string, batch int) *DBSink {
	if batch < 1 {
		batch = 1
	}
	s := &DBSink{
		store:     store,
		sessionID: sessionID,
		batch:     batch,
		frameCap:  4 * batch,
		ops:       make(chan dbOp, 4*batch+turnReserve),
		done:      make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *DBSink) Frame(rec *FrameRecord) {
	if rec.Result.State == tracker.Idle {
		return
	}
	row := &db.FrameRow{
		Frame:    rec.Frame,
		Elapsed:  rec.Elapsed.Seconds(),
		Position: rec.Result.Position,
		Cost:     rec.Result.Cost,
		Loudness: rec.Loudness,
		Lost:     rec.Result.Lost,
		State:    rec.Result.State.String(),
	}
	if len(s.ops) >= s.frameCap {
		s.dropped.Add(1)
		return
	}
	select {
	case s.ops <- dbOp{frame: row}:
	default:
		s.dropped.Add(1)
	}
}

func (s *DBSink) PageTurn(rec *FrameRecord, ev *TurnEvent) {
	row := &db.PageTurnRow{
		Index:    s.turns,
		Boundary: ev.Boundary,
		Position: ev.Position,
		Page:     ev.Page,
		Frame:    rec.Frame,
		Elapsed:  rec.Elapsed.Seconds(),
		Sent:     ev.Sent,
	}
	if ev.Err != nil {
		row.SendError = ev.Err.Error()
	}
	s.turns++
	select {
	case s.ops <- dbOp{turn: row}:
	default:
		s.droppedTurns.Add(1)
		monitoring.Logf("session log: writer behind, page turn to page %d not stored", ev.Page)
	}
}

func (s *DBSink) Finished(*FrameRecord) {}

func (s *DBSink) run() {
	defer close(s.done)
	pending := make([]db.FrameRow, 0, s.batch)
	flush := func() {
		if len(pending) == 0 {
			return
		}
		if err := s.store.RecordFrames(s.sessionID, pending); err != nil {
			s.errors.Add(1)
			monitoring.Logf("session log: failed to record %d frames: %v", len(pending), err)
		}
		pending = pending[:0]
	}

	for op := range s.ops {
		switch {
		case op.frame != nil:
			pending = append(pending, *op.frame)
			if len(pending) >= s.batch {
				flush()
			}
		case op.turn != nil:
			flush()
			if err := s.store.RecordPageTurn(s.sessionID, *op.turn); err != nil {
				s.errors.Add(1)
				monitoring.Logf("session log: failed to record page turn: %v", err)
			}
		}
	}
	flush()
}

// Close flushes pending rows and stops the writer. The sink must not be
// used afterwards.
func (s *DBSink) Close() {
	s.closeOnce.Do(func() { close(s.ops) })
	<-s.done
}

// Dropped returns the number of frames discarded because the writer was
// behind.
func (s *DBSink) Dropped() uint64 { return s.dropped.Load() }

// DroppedTurns returns the number of page turns discarded because the
// whole queue was full.
func (s *DBSink) DroppedTurns() uint64 { return s.droppedTurns.Load() }

// Errors returns the number of failed writes.
func (s *DBSink) Errors() uint64 { return s.errors.Load() }
