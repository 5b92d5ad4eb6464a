// Package storage persists captured events and sessions in a bbolt
// database and mirrors event writes into an optional append-only JSONL log
// for streaming consumers.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/sundew-sh/sundew/internal/models"
)

// Manager is the storage facade the rest of the service talks to. Writes
// go through the single bolt writer; the JSONL mirror is best-effort.
type Manager struct {
	db      *BoltDB
	logPath string
	logger  *zap.SugaredLogger

	logMu sync.Mutex
}

// NewManager opens the database at dbPath. logPath may be empty to disable
// the JSONL event log.
func NewManager(dbPath, logPath string, logger *zap.SugaredLogger) (*Manager, error) {
	db, err := NewBoltDB(dbPath, logger)
	if err != nil {
		return nil, err
	}

	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create event log directory: %w", err)
		}
	}

	return &Manager{db: db, logPath: logPath, logger: logger}, nil
}

// Close closes the underlying database.
func (m *Manager) Close() error {
	return m.db.Close()
}

// SaveEvent persists the event and appends it to the JSONL log. A log
// append failure is warned and swallowed; the database write decides the
// outcome.
func (m *Manager) SaveEvent(e *models.RequestEvent) error {
	if err := m.db.SaveEvent(e); err != nil {
		return err
	}
	if m.logPath != "" {
		if err := m.appendEventLog(e); err != nil {
			m.logger.Warnw("Failed to append event log", "path", m.logPath, "error", err)
		}
	}
	return nil
}

// appendEventLog writes one JSON object per line. The file is opened in
// append mode per write and closed immediately.
func (m *Manager) appendEventLog(e *models.RequestEvent) error {
	m.logMu.Lock()
	defer m.logMu.Unlock()

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event for log: %w", err)
	}

	f, err := os.OpenFile(m.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event log line: %w", err)
	}
	return nil
}

// SaveSession persists the session.
func (m *Manager) SaveSession(s *models.Session) error {
	return m.db.SaveSession(s)
}

// GetEvent returns the event with the given ID, or ErrNotFound.
func (m *Manager) GetEvent(id string) (*models.RequestEvent, error) {
	return m.db.GetEvent(id)
}

// GetSession returns the session with the given ID, or ErrNotFound.
func (m *Manager) GetSession(id string) (*models.Session, error) {
	return m.db.GetSession(id)
}

// GetRecentEvents returns up to limit events, newest first.
func (m *Manager) GetRecentEvents(limit int) ([]*models.RequestEvent, error) {
	return m.db.GetRecentEvents(limit)
}

// GetRecentSessions returns up to limit sessions, newest first.
func (m *Manager) GetRecentSessions(limit int) ([]*models.Session, error) {
	return m.db.GetRecentSessions(limit)
}

// GetLatestSessionForIP returns the source's most recent session, or
// ErrNotFound.
func (m *Manager) GetLatestSessionForIP(sourceIP string) (*models.Session, error) {
	return m.db.GetLatestSessionForIP(sourceIP)
}

// GetSessionEvents returns the session's events, oldest first.
func (m *Manager) GetSessionEvents(sessionID string) ([]*models.RequestEvent, error) {
	return m.db.GetSessionEvents(sessionID)
}

// GetEventsByClassification returns up to limit events with the given
// classification, newest first.
func (m *Manager) GetEventsByClassification(c models.Classification, limit int) ([]*models.RequestEvent, error) {
	return m.db.GetEventsByClassification(c, limit)
}

// QueryEvents returns up to limit events passing the filter, newest first.
func (m *Manager) QueryEvents(filter *EventFilter, limit int) ([]*models.RequestEvent, error) {
	return m.db.QueryEvents(filter, limit)
}

// CountEvents returns the total number of stored events.
func (m *Manager) CountEvents() (int, error) {
	return m.db.CountEvents()
}

// CountSessions returns the total number of stored sessions.
func (m *Manager) CountSessions() (int, error) {
	return m.db.CountSessions()
}
