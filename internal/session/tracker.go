// Package session groups inbound requests into per-source sessions and
// drives re-scoring after every event.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sundew-sh/sundew/internal/classify"
	"github.com/sundew-sh/sundew/internal/fingerprint"
	"github.com/sundew-sh/sundew/internal/models"
	"github.com/sundew-sh/sundew/internal/storage"
)

// DefaultIdleTimeout is the idle window after which a source IP gets a
// fresh session.
const DefaultIdleTimeout = 3600 * time.Second

// maxTimingSamples caps how many inter-request intervals feed the timing
// signal.
const maxTimingSamples = 16

// sessionState is the rolling per-session scorer input, rebuilt lazily
// from storage when the process restarts mid-session.
type sessionState struct {
	timestamps []time.Time
	paths      []string
	mcpMethods []string
	usedMCP    bool
}

// Tracker owns the source-IP to session mapping. Events from the same
// source are serialized under a per-source mutex; different sources run in
// parallel.
type Tracker struct {
	store       *storage.Manager
	idleTimeout time.Duration
	logger      *zap.SugaredLogger

	mu         sync.Mutex
	ipLocks    map[string]*sync.Mutex
	activeByIP map[string]*models.Session
	states     map[string]*sessionState
}

// NewTracker creates a tracker persisting through store. idleTimeout <= 0
// selects DefaultIdleTimeout.
func NewTracker(store *storage.Manager, idleTimeout time.Duration, logger *zap.SugaredLogger) *Tracker {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Tracker{
		store:       store,
		idleTimeout: idleTimeout,
		logger:      logger,
		ipLocks:     make(map[string]*sync.Mutex),
		activeByIP:  make(map[string]*models.Session),
		states:      make(map[string]*sessionState),
	}
}

func (t *Tracker) lockFor(ip string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.ipLocks[ip]
	if !ok {
		l = &sync.Mutex{}
		t.ipLocks[ip] = l
	}
	return l
}

// Process links the event to its source's session, re-scores the session
// with the event appended to its history, and persists both records. The
// caller must not emit the response until Process returns.
func (t *Tracker) Process(event *models.RequestEvent) (*models.Session, error) {
	l := t.lockFor(event.SourceIP)
	l.Lock()
	defer l.Unlock()

	sess := t.getOrCreateSession(event)
	event.SessionID = sess.ID

	sess.RequestIDs = append(sess.RequestIDs, event.ID)
	sess.RequestCount++
	if !containsString(sess.EndpointsHit, event.Path) {
		sess.EndpointsHit = append(sess.EndpointsHit, event.Path)
	}
	if !sess.HasTrapType(event.TrapType) {
		sess.TrapTypesTriggered = append(sess.TrapTypesTriggered, event.TrapType)
	}
	if event.Timestamp.After(sess.LastSeen) {
		sess.LastSeen = event.Timestamp
	}

	state := t.stateFor(sess)
	state.timestamps = append(state.timestamps, event.Timestamp)
	state.paths = append(state.paths, event.Path)
	if event.TrapType == models.TrapMCP {
		state.usedMCP = true
		if method := mcpMethod(event); method != "" {
			state.mcpMethods = append(state.mcpMethods, method)
		}
	}

	scores := fingerprint.Score(fingerprint.Input{
		Headers:     event.Headers,
		Body:        event.Body,
		Paths:       state.paths,
		IntervalsMS: intervalsMS(state.timestamps),
		UsedMCP:     state.usedMCP,
		MCPMethods:  state.mcpMethods,
	})
	event.Scores = scores
	sess.Scores = scores

	class, err := classify.Classify(scores.Composite)
	if err != nil {
		// The composite is clamped by construction; treat a violation as
		// a bug but keep the event record flowing.
		t.logger.Errorw("Classification failed", "composite", scores.Composite, "error", err)
		class = models.ClassUnknown
	}
	event.Classification = class
	sess.Classification = class

	if err := t.store.SaveEvent(event); err != nil {
		return nil, fmt.Errorf("failed to persist event: %w", err)
	}
	if err := t.store.SaveSession(sess); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	return sess, nil
}

// getOrCreateSession reuses the source's active session when its last
// activity is within the idle window, otherwise starts a fresh one.
func (t *Tracker) getOrCreateSession(event *models.RequestEvent) *models.Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	if sess, ok := t.activeByIP[event.SourceIP]; ok {
		if event.Timestamp.Sub(sess.LastSeen) < t.idleTimeout {
			return sess
		}
		delete(t.states, sess.ID)
	} else if sess := t.recoverSession(event); sess != nil {
		return sess
	}

	sess := &models.Session{
		ID:             uuid.NewString(),
		SourceIP:       event.SourceIP,
		FirstSeen:      event.Timestamp,
		LastSeen:       event.Timestamp,
		Classification: models.ClassUnknown,
	}
	t.activeByIP[event.SourceIP] = sess
	t.logger.Debugw("Started new session", "session_id", sess.ID, "source_ip", sess.SourceIP)
	return sess
}

// recoverSession looks up the source's most recent stored session so the
// idle-window reuse rule survives a process restart. Returns nil when the
// source has no stored session inside the window.
func (t *Tracker) recoverSession(event *models.RequestEvent) *models.Session {
	sess, err := t.store.GetLatestSessionForIP(event.SourceIP)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			t.logger.Warnw("Failed to look up stored session", "source_ip", event.SourceIP, "error", err)
		}
		return nil
	}
	if event.Timestamp.Sub(sess.LastSeen) >= t.idleTimeout {
		return nil
	}
	t.activeByIP[event.SourceIP] = sess
	t.logger.Debugw("Recovered stored session", "session_id", sess.ID, "source_ip", sess.SourceIP)
	return sess
}

// stateFor returns the rolling state for a session, rebuilding it from
// stored events when the tracker has none (process restart).
func (t *Tracker) stateFor(sess *models.Session) *sessionState {
	t.mu.Lock()
	state, ok := t.states[sess.ID]
	if !ok {
		state = &sessionState{}
		t.states[sess.ID] = state
	}
	t.mu.Unlock()
	if ok || sess.RequestCount == 0 {
		return state
	}

	events, err := t.store.GetSessionEvents(sess.ID)
	if err != nil {
		t.logger.Warnw("Failed to rebuild session state", "session_id", sess.ID, "error", err)
		return state
	}
	for _, e := range events {
		state.timestamps = append(state.timestamps, e.Timestamp)
		state.paths = append(state.paths, e.Path)
		if e.TrapType == models.TrapMCP {
			state.usedMCP = true
			if method := mcpMethod(e); method != "" {
				state.mcpMethods = append(state.mcpMethods, method)
			}
		}
	}
	return state
}

// intervalsMS derives up to maxTimingSamples inter-request intervals from
// the most recent timestamps.
func intervalsMS(timestamps []time.Time) []float64 {
	if len(timestamps) < 2 {
		return nil
	}
	if len(timestamps) > maxTimingSamples+1 {
		timestamps = timestamps[len(timestamps)-maxTimingSamples-1:]
	}
	intervals := make([]float64, 0, len(timestamps)-1)
	for i := 1; i < len(timestamps); i++ {
		intervals = append(intervals, float64(timestamps[i].Sub(timestamps[i-1]).Microseconds())/1000.0)
	}
	return intervals
}

func mcpMethod(e *models.RequestEvent) string {
	if len(e.BodyJSON) == 0 {
		return ""
	}
	var envelope struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(e.BodyJSON, &envelope); err != nil {
		return ""
	}
	return envelope.Method
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
