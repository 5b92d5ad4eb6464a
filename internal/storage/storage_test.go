package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sundew-sh/sundew/internal/models"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	m, err := NewManager(filepath.Join(dir, "sundew.db"), "", zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func makeEvent(id string, ts time.Time) *models.RequestEvent {
	return &models.RequestEvent{
		ID:             id,
		Timestamp:      ts,
		SourceIP:       "203.0.113.5",
		SourcePort:     44123,
		Method:         "GET",
		Path:           "/api/v1/users",
		Headers:        map[string]string{"user-agent": "python-httpx/0.27.0"},
		UserAgent:      "python-httpx/0.27.0",
		Classification: models.ClassAutomated,
		TrapType:       models.TrapRESTAPI,
		ResponseStatus: 200,
	}
}

func TestEventRoundTrip(t *testing.T) {
	m := newTestManager(t)

	event := makeEvent("evt-1", time.Now().UTC())
	event.QueryParams = map[string]string{"page": "2"}
	event.Body = `{"jsonrpc":"2.0"}`
	event.BodyJSON = json.RawMessage(event.Body)
	event.Scores = models.FingerprintScores{HeaderAnomaly: 0.6, Composite: 0.12}
	event.MatchedEndpoint = "/api/v1/{resource}"
	event.Notes = "body_truncated"

	require.NoError(t, m.SaveEvent(event))

	got, err := m.GetEvent("evt-1")
	require.NoError(t, err)
	assert.Equal(t, event.ID, got.ID)
	assert.True(t, event.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, event.SourceIP, got.SourceIP)
	assert.Equal(t, event.QueryParams, got.QueryParams)
	assert.Equal(t, event.Headers, got.Headers)
	assert.Equal(t, event.Body, got.Body)
	assert.JSONEq(t, string(event.BodyJSON), string(got.BodyJSON))
	assert.Equal(t, event.Scores, got.Scores)
	assert.Equal(t, event.Classification, got.Classification)
	assert.Equal(t, event.MatchedEndpoint, got.MatchedEndpoint)
	assert.Equal(t, event.Notes, got.Notes)
}

func TestEventSaveIsReplace(t *testing.T) {
	m := newTestManager(t)

	event := makeEvent("evt-1", time.Now().UTC())
	require.NoError(t, m.SaveEvent(event))

	event.Classification = models.ClassAIAgent
	require.NoError(t, m.SaveEvent(event))

	got, err := m.GetEvent("evt-1")
	require.NoError(t, err)
	assert.Equal(t, models.ClassAIAgent, got.Classification)

	count, err := m.CountEvents()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGetEventNotFound(t *testing.T) {
	m := newTestManager(t)
	_, err := m.GetEvent("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetRecentEventsNewestFirst(t *testing.T) {
	m := newTestManager(t)

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		require.NoError(t, m.SaveEvent(makeEvent(fmt.Sprintf("evt-%d", i), base.Add(time.Duration(i)*time.Second))))
	}

	events, err := m.GetRecentEvents(3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "evt-4", events[0].ID)
	assert.Equal(t, "evt-3", events[1].ID)
	assert.Equal(t, "evt-2", events[2].ID)
}

func TestGetSessionEventsOldestFirst(t *testing.T) {
	m := newTestManager(t)

	base := time.Now().UTC()
	for i := 0; i < 4; i++ {
		e := makeEvent(fmt.Sprintf("evt-%d", i), base.Add(time.Duration(i)*time.Second))
		if i%2 == 0 {
			e.SessionID = "sess-a"
		} else {
			e.SessionID = "sess-b"
		}
		require.NoError(t, m.SaveEvent(e))
	}

	events, err := m.GetSessionEvents("sess-a")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "evt-0", events[0].ID)
	assert.Equal(t, "evt-2", events[1].ID)
}

func TestGetEventsByClassification(t *testing.T) {
	m := newTestManager(t)

	base := time.Now().UTC()
	for i, class := range []models.Classification{
		models.ClassHuman, models.ClassAIAgent, models.ClassAIAgent, models.ClassAutomated,
	} {
		e := makeEvent(fmt.Sprintf("evt-%d", i), base.Add(time.Duration(i)*time.Second))
		e.Classification = class
		require.NoError(t, m.SaveEvent(e))
	}

	agents, err := m.GetEventsByClassification(models.ClassAIAgent, 10)
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "evt-2", agents[0].ID)
	assert.Equal(t, "evt-1", agents[1].ID)

	_, err = m.GetEventsByClassification("martian", 10)
	assert.Error(t, err)
}

func TestQueryEventsFilter(t *testing.T) {
	m := newTestManager(t)

	base := time.Now().UTC()
	for i := 0; i < 6; i++ {
		e := makeEvent(fmt.Sprintf("evt-%d", i), base.Add(time.Duration(i)*time.Minute))
		if i >= 3 {
			e.SourceIP = "198.51.100.7"
			e.TrapType = models.TrapMCP
		}
		require.NoError(t, m.SaveEvent(e))
	}

	t.Run("by source ip", func(t *testing.T) {
		events, err := m.QueryEvents(&EventFilter{SourceIP: "198.51.100.7"}, 0)
		require.NoError(t, err)
		assert.Len(t, events, 3)
	})

	t.Run("by trap type", func(t *testing.T) {
		events, err := m.QueryEvents(&EventFilter{TrapType: models.TrapRESTAPI}, 0)
		require.NoError(t, err)
		assert.Len(t, events, 3)
	})

	t.Run("by time window", func(t *testing.T) {
		events, err := m.QueryEvents(&EventFilter{
			Since: base.Add(1 * time.Minute),
			Until: base.Add(3 * time.Minute),
		}, 0)
		require.NoError(t, err)
		assert.Len(t, events, 3)
	})

	t.Run("inverted window rejected", func(t *testing.T) {
		_, err := m.QueryEvents(&EventFilter{
			Since: base.Add(3 * time.Minute),
			Until: base.Add(1 * time.Minute),
		}, 0)
		assert.Error(t, err)
	})
}

func TestSessionRoundTrip(t *testing.T) {
	m := newTestManager(t)

	now := time.Now().UTC()
	sess := &models.Session{
		ID:                 "sess-1",
		SourceIP:           "203.0.113.5",
		FirstSeen:          now,
		LastSeen:           now.Add(30 * time.Second),
		RequestCount:       3,
		RequestIDs:         []string{"evt-0", "evt-1", "evt-2"},
		Classification:     models.ClassAIAssisted,
		Scores:             models.FingerprintScores{PathEnumeration: 0.8, Composite: 0.61},
		EndpointsHit:       []string{"/robots.txt", "/openapi.json"},
		TrapTypesTriggered: []models.TrapType{models.TrapDiscovery},
	}
	require.NoError(t, m.SaveSession(sess))

	got, err := m.GetSession("sess-1")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, sess.RequestIDs, got.RequestIDs)
	assert.Equal(t, sess.Scores, got.Scores)
	assert.Equal(t, sess.EndpointsHit, got.EndpointsHit)
	assert.Equal(t, sess.TrapTypesTriggered, got.TrapTypesTriggered)

	_, err = m.GetSession("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetRecentSessionsNewestFirst(t *testing.T) {
	m := newTestManager(t)

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		require.NoError(t, m.SaveSession(&models.Session{
			ID:        fmt.Sprintf("sess-%d", i),
			SourceIP:  "203.0.113.5",
			FirstSeen: base.Add(time.Duration(i) * time.Second),
			LastSeen:  base.Add(time.Duration(i) * time.Second),
		}))
	}

	sessions, err := m.GetRecentSessions(2)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "sess-2", sessions[0].ID)
	assert.Equal(t, "sess-1", sessions[1].ID)

	count, err := m.CountSessions()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestGetLatestSessionForIP(t *testing.T) {
	m := newTestManager(t)

	base := time.Now().UTC()
	for i, ip := range []string{"203.0.113.5", "198.51.100.7", "203.0.113.5"} {
		require.NoError(t, m.SaveSession(&models.Session{
			ID:        fmt.Sprintf("sess-%d", i),
			SourceIP:  ip,
			FirstSeen: base.Add(time.Duration(i) * time.Second),
			LastSeen:  base.Add(time.Duration(i) * time.Second),
		}))
	}

	got, err := m.GetLatestSessionForIP("203.0.113.5")
	require.NoError(t, err)
	assert.Equal(t, "sess-2", got.ID)

	got, err = m.GetLatestSessionForIP("198.51.100.7")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", got.ID)

	_, err = m.GetLatestSessionForIP("192.0.2.1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEventLogMirror(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "events.jsonl")
	m, err := NewManager(filepath.Join(dir, "sundew.db"), logPath, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer m.Close()

	base := time.Now().UTC()
	require.NoError(t, m.SaveEvent(makeEvent("evt-0", base)))
	require.NoError(t, m.SaveEvent(makeEvent("evt-1", base.Add(time.Second))))

	f, err := os.Open(logPath)
	require.NoError(t, err)
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e models.RequestEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		ids = append(ids, e.ID)
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{"evt-0", "evt-1"}, ids)
}

func TestSchemaVersion(t *testing.T) {
	m := newTestManager(t)
	version, err := m.db.GetSchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}
