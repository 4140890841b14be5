package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabboard/internal/auth"
	"collabboard/internal/board"
	"collabboard/internal/hub"
	"collabboard/internal/metrics"
	"collabboard/internal/store"
)

const secret = "test-secret"

type fixture struct {
	srv  *httptest.Server
	hub  *hub.Hub
	gate *auth.JWTGate
	m    *metrics.Metrics
}

func newFixture(t *testing.T, st store.Store) *fixture {
	t.Helper()
	h := hub.New()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	gate := auth.NewJWTGate(secret)
	m := metrics.New(prometheus.NewRegistry())
	srv := httptest.NewServer(New(st, gate, h, WithMetrics(m)).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &fixture{srv: srv, hub: h, gate: gate, m: m}
}

func openStore(t *testing.T) store.Store {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	st, err := store.OpenBolt(t.TempDir()+"/boards.db", store.WithClock(func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Minute)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func (f *fixture) token(t *testing.T, user string) string {
	t.Helper()
	tok, err := f.gate.Issue(auth.Identity{ID: user, Username: user}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(t *testing.T, method, path, token, body string) (int, string) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(raw)
}

func TestHello(t *testing.T) {
	f := newFixture(t, openStore(t))
	code, body := f.do(t, http.MethodGet, "/api/hello", "", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "API is running!", body)
}

func TestBoardRoundTrip(t *testing.T) {
	f := newFixture(t, openStore(t))
	alice := f.token(t, "alice")

	code, body := f.do(t, http.MethodGet, "/api/whiteboard/abc", "", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"data":null}`, body)

	data := `{"strokes":[{"id":"line1","tool":"pen","points":[0,0,5,5],"color":"#000","width":4}],"shapes":[],"texts":[],"images":[]}`
	code, body = f.do(t, http.MethodPost, "/api/whiteboard/abc", alice, data)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"success":true}`, body)

	// loading is open to anyone with the room id
	code, body = f.do(t, http.MethodGet, "/api/whiteboard/abc", "", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"data":`+data+`}`, body)
}

func TestSaveAndListRequireToken(t *testing.T) {
	f := newFixture(t, openStore(t))
	st := `{"strokes":[]}`

	code, body := f.do(t, http.MethodPost, "/api/whiteboard/abc", "", st)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.JSONEq(t, `{"message":"missing auth token"}`, body)

	code, body = f.do(t, http.MethodPost, "/api/whiteboard/abc", "garbage", st)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.JSONEq(t, `{"message":"invalid or expired token"}`, body)

	code, _ = f.do(t, http.MethodGet, "/api/whiteboards", "", "")
	assert.Equal(t, http.StatusUnauthorized, code)

	// nothing was written
	_, body = f.do(t, http.MethodGet, "/api/whiteboard/abc", "", "")
	assert.JSONEq(t, `{"data":null}`, body)
}

func TestSaveRejectsBadBody(t *testing.T) {
	f := newFixture(t, openStore(t))
	code, _ := f.do(t, http.MethodPost, "/api/whiteboard/abc", f.token(t, "alice"), `{"strokes":`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestListNewestFirstPerOwner(t *testing.T) {
	f := newFixture(t, openStore(t))
	alice, bob := f.token(t, "alice"), f.token(t, "bob")

	for _, room := range []string{"r1", "r2", "r3"} {
		code, _ := f.do(t, http.MethodPost, "/api/whiteboard/"+room, alice, `{}`)
		require.Equal(t, http.StatusOK, code)
	}
	f.do(t, http.MethodPost, "/api/whiteboard/b1", bob, `{}`)
	// r1 touched again, by a different user; ownership stays with alice
	f.do(t, http.MethodPost, "/api/whiteboard/r1", bob, `{}`)

	code, body := f.do(t, http.MethodGet, "/api/whiteboards", alice, "")
	require.Equal(t, http.StatusOK, code)
	var resp struct {
		Boards []store.Summary `json:"boards"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	var rooms []string
	for _, b := range resp.Boards {
		rooms = append(rooms, b.RoomID)
	}
	assert.Equal(t, []string{"r1", "r3", "r2"}, rooms)

	_, body = f.do(t, http.MethodGet, "/api/whiteboards", f.token(t, "carol"), "")
	assert.JSONEq(t, `{"boards":[]}`, body)
}

type brokenStore struct{}

func (brokenStore) Load(context.Context, string) (board.Snapshot, bool, error) {
	return board.Snapshot{}, false, errors.New("disk on fire")
}
func (brokenStore) Save(context.Context, string, string, board.Snapshot) error {
	return errors.New("disk on fire")
}
func (brokenStore) List(context.Context, string) ([]store.Summary, error) {
	return nil, errors.New("disk on fire")
}
func (brokenStore) Close() error { return nil }

func TestStoreFaultsFailOnlyTheRequest(t *testing.T) {
	f := newFixture(t, brokenStore{})
	tok := f.token(t, "alice")

	code, body := f.do(t, http.MethodGet, "/api/whiteboard/abc", "", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.JSONEq(t, `{"error":"failed to load board"}`, body)

	code, _ = f.do(t, http.MethodPost, "/api/whiteboard/abc", tok, `{}`)
	assert.Equal(t, http.StatusInternalServerError, code)
	code, _ = f.do(t, http.MethodGet, "/api/whiteboards", tok, "")
	assert.Equal(t, http.StatusInternalServerError, code)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.StoreFailures.WithLabelValues("save")))

	code, _ = f.do(t, http.MethodGet, "/api/hello", "", "")
	assert.Equal(t, http.StatusOK, code)
}

func (f *fixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (f *fixture) join(t *testing.T, conn *websocket.Conn, room string) {
	t.Helper()
	before := f.hub.RoomSize(room)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"join","roomId":"`+room+`"}`)))
	require.Eventually(t, func() bool { return f.hub.RoomSize(room) == before+1 }, time.Second, 5*time.Millisecond)
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestWebsocketRelay(t *testing.T) {
	f := newFixture(t, openStore(t))
	a := f.dial(t, "")
	b := f.dial(t, "?token="+f.token(t, "bob"))
	c := f.dial(t, "")
	f.join(t, a, "abc")
	f.join(t, b, "abc")
	f.join(t, c, "xyz")

	msg := `{"type":"draw","roomId":"abc","shape":{"id":"rect1","type":"rect","x":1,"y":2},"cursor":[3,4]}`
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(msg)))

	_ = b.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, got, err := b.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"draw","shape":{"id":"rect1","type":"rect","x":1,"y":2},"cursor":[3,4]}`, string(got))

	expectSilence(t, a)
	expectSilence(t, c)
}

func TestWebsocketRejectsBadToken(t *testing.T) {
	f := newFixture(t, openStore(t))
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws?token=nope"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebsocketOriginCheck(t *testing.T) {
	h := hub.New()
	s := New(nil, auth.NewJWTGate(secret), h, WithAllowedOrigins([]string{"https://board.example"}))

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, s.checkOrigin(r))
	r.Header.Set("Origin", "https://board.example")
	assert.True(t, s.checkOrigin(r))
	r.Header.Set("Origin", "https://evil.example")
	assert.False(t, s.checkOrigin(r))
}
