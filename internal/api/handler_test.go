package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parking-booking-backend/config"
	"parking-booking-backend/internal/booking"
	"parking-booking-backend/internal/intake"
	"parking-booking-backend/internal/model"
	"parking-booking-backend/internal/pipeline"
	"parking-booking-backend/internal/report"
	"parking-booking-backend/internal/scheduler"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSession struct {
	replies map[string]intake.Reply
	errs    map[string]error
	lines   []string
	pending booking.Batch
	invalid int
	last    []scheduler.Result
}

func (s *fakeSession) Execute(_ context.Context, line string) (intake.Reply, error) {
	s.lines = append(s.lines, line)
	return s.replies[line], s.errs[line]
}

func (s *fakeSession) Pending() booking.Batch { return s.pending }
func (s *fakeSession) InvalidCount() int      { return s.invalid }

func (s *fakeSession) LastResults() ([]scheduler.Result, bool) {
	return s.last, s.last != nil
}

type fakeStore struct {
	members   []model.Member
	runs      []model.RunRecord
	err       error
	runLimits []int
	listCalls int
}

func (s *fakeStore) SyncMembers(context.Context, []string) error { return nil }

func (s *fakeStore) ListMembers(context.Context) ([]model.Member, error) {
	s.listCalls++
	return s.members, s.err
}

func (s *fakeStore) IsMember(context.Context, string) (bool, error) { return true, nil }

func (s *fakeStore) RecordRun(context.Context, []model.RunRecord) error { return nil }

func (s *fakeStore) ListRuns(_ context.Context, limit int) ([]model.RunRecord, error) {
	s.runLimits = append(s.runLimits, limit)
	return s.runs, s.err
}

func setupRouter(session Session, st *fakeStore, sink report.Sink, onExit func()) *gin.Engine {
	cfg := config.Default()
	cfg.Server.RateLimitPerSec = 1000
	cfg.Server.RateLimitBurst = 1000
	return NewRouter(NewHandler(session, st, sink, zerolog.Nop(), onExit), cfg.Server)
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	return w
}

func TestPostCommand(t *testing.T) {
	session := &fakeSession{
		replies: map[string]intake.Reply{
			"addParking -member_A 2025-05-10 09:00 2;": {Message: "-> [Pending]"},
			"addParking -member_Z 2025-05-10 09:00 2;": {Message: "Error: invalid member name", Invalid: true},
		},
		errs: map[string]error{
			"printBookings -fcfs;": &pipeline.ProtocolError{Stage: "reporting", Step: "index", Want: "ACK_INDX", Got: "NACK (disk full)"},
			"printBookings -prio;": intake.ErrSessionClosed,
			"printBookings -ALL;":  errors.New("database is locked"),
		},
	}
	router := setupRouter(session, &fakeStore{}, &report.Buffer{}, nil)

	testCases := []struct {
		name     string
		body     string
		expected int
	}{
		{name: "Accepted booking", body: `{"line":"addParking -member_A 2025-05-10 09:00 2;"}`, expected: http.StatusOK},
		{name: "Invalid command", body: `{"line":"addParking -member_Z 2025-05-10 09:00 2;"}`, expected: http.StatusUnprocessableEntity},
		{name: "Aborted run", body: `{"line":"printBookings -fcfs;"}`, expected: http.StatusBadGateway},
		{name: "Closed session", body: `{"line":"printBookings -prio;"}`, expected: http.StatusConflict},
		{name: "Internal failure", body: `{"line":"printBookings -ALL;"}`, expected: http.StatusInternalServerError},
		{name: "Missing line", body: `{}`, expected: http.StatusBadRequest},
		{name: "Not JSON", body: `addParking`, expected: http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(router, http.MethodPost, "/api/commands", tc.body)
			assert.Equal(t, tc.expected, w.Code)
		})
	}

	w := do(router, http.MethodPost, "/api/commands", `{"line":"addParking -member_A 2025-05-10 09:00 2;"}`)
	assert.JSONEq(t, `{"message":"-> [Pending]","invalid":false,"exit":false}`, w.Body.String())
}

func TestPostCommand_Exit(t *testing.T) {
	session := &fakeSession{replies: map[string]intake.Reply{
		"endProgram;": {Message: "-> Bye!", Exit: true},
	}}
	exited := 0
	router := setupRouter(session, &fakeStore{}, &report.Buffer{}, func() { exited++ })

	w := do(router, http.MethodPost, "/api/commands", `{"line":"endProgram;"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, exited)
}

func TestGetBookings(t *testing.T) {
	b, err := booking.New("member_A", "2025-05-10", "09:00", 2, booking.TypeParking, []string{"battery"})
	require.NoError(t, err)
	session := &fakeSession{pending: booking.Batch{b}, invalid: 3}
	router := setupRouter(session, &fakeStore{}, &report.Buffer{}, nil)

	w := do(router, http.MethodGet, "/api/bookings", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"invalid_count":3`)
	assert.Contains(t, w.Body.String(), `"member":"member_A"`)
	assert.Contains(t, w.Body.String(), `"essentials":["battery"]`)

	empty := setupRouter(&fakeSession{}, &fakeStore{}, &report.Buffer{}, nil)
	w = do(empty, http.MethodGet, "/api/bookings", "")
	assert.JSONEq(t, `{"pending":[],"invalid_count":0}`, w.Body.String())
}

func TestGetBookings_LastRun(t *testing.T) {
	session := &fakeSession{last: []scheduler.Result{
		scheduler.Complete(scheduler.Priority, 3, []int{2, 0}, []int{0, 1}),
	}}
	router := setupRouter(session, &fakeStore{}, &report.Buffer{}, nil)

	w := do(router, http.MethodGet, "/api/bookings", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"pending": [],
		"invalid_count": 0,
		"last_run": [{
			"algorithm": "prio",
			"bookings": [
				{"index": 0, "accepted": true, "slot": 1},
				{"index": 1, "accepted": false, "slot": -1},
				{"index": 2, "accepted": true, "slot": 0}
			]
		}]
	}`, w.Body.String())
}

func TestGetMembers_CachedUntilCommand(t *testing.T) {
	st := &fakeStore{members: []model.Member{{ID: 1, Name: "member_A"}, {ID: 2, Name: "member_B"}}}
	session := &fakeSession{replies: map[string]intake.Reply{"x": {Message: "ok"}}}
	router := setupRouter(session, st, &report.Buffer{}, nil)

	w := do(router, http.MethodGet, "/api/members", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"members":["member_A","member_B"]}`, w.Body.String())

	do(router, http.MethodGet, "/api/members", "")
	assert.Equal(t, 1, st.listCalls)

	do(router, http.MethodPost, "/api/commands", `{"line":"x"}`)
	do(router, http.MethodGet, "/api/members", "")
	assert.Equal(t, 2, st.listCalls)
}

func TestGetMembers_StoreError(t *testing.T) {
	st := &fakeStore{err: errors.New("connection reset")}
	router := setupRouter(&fakeSession{}, st, &report.Buffer{}, nil)

	w := do(router, http.MethodGet, "/api/members", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Failed to retrieve members"}`, w.Body.String())
}

func TestGetRuns(t *testing.T) {
	testCases := []struct {
		name          string
		path          string
		expectedCode  int
		expectedLimit []int
	}{
		{name: "Default limit", path: "/api/runs", expectedCode: http.StatusOK, expectedLimit: []int{50}},
		{name: "Explicit limit", path: "/api/runs?limit=2", expectedCode: http.StatusOK, expectedLimit: []int{2}},
		{name: "Bad limit", path: "/api/runs?limit=abc", expectedCode: http.StatusBadRequest},
		{name: "Negative limit", path: "/api/runs?limit=-1", expectedCode: http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			st := &fakeStore{runs: []model.RunRecord{{ID: 1, RunID: "run-1", Algorithm: "fcfs", AcceptedIndices: []int{0}}}}
			router := setupRouter(&fakeSession{}, st, &report.Buffer{}, nil)

			w := do(router, http.MethodGet, tc.path, "")
			assert.Equal(t, tc.expectedCode, w.Code)
			assert.Equal(t, tc.expectedLimit, st.runLimits)
			if tc.expectedCode == http.StatusOK {
				assert.Contains(t, w.Body.String(), `"run_id":"run-1"`)
			}
		})
	}
}

func TestGetReport(t *testing.T) {
	sink := &report.Buffer{}
	require.NoError(t, sink.Append([]byte("\n*** ACCEPTED Bookings - fcfs ***\n")))
	router := setupRouter(&fakeSession{}, &fakeStore{}, sink, nil)

	w := do(router, http.MethodGet, "/api/report", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "\n*** ACCEPTED Bookings - fcfs ***\n", w.Body.String())
}

func TestRouter_RequestIPHeader(t *testing.T) {
	get := func(r *gin.Engine, clientIP string) int {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/api/bookings", nil)
		req.RemoteAddr = "10.0.0.1:40000"
		req.Header.Set("X-Client-IP", clientIP)
		r.ServeHTTP(w, req)
		return w.Code
	}

	testCases := []struct {
		name     string
		header   string
		expected []int
	}{
		{
			name:     "Clients behind the proxy are limited separately",
			header:   "X-Client-IP",
			expected: []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests},
		},
		{
			name:     "Without the header every client shares the proxy address",
			expected: []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Server.RateLimitPerSec = 0.001
			cfg.Server.RateLimitBurst = 1
			cfg.Server.RequestIPHeader = tc.header
			router := NewRouter(NewHandler(&fakeSession{}, &fakeStore{}, &report.Buffer{}, zerolog.Nop(), nil), cfg.Server)

			got := []int{
				get(router, "203.0.113.7"),
				get(router, "198.51.100.4"),
				get(router, "203.0.113.7"),
			}
			assert.Equal(t, tc.expected, got)
		})
	}
}
