package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHub struct {
	mu        sync.Mutex
	delivered []int64
	deleted   []int64
}

func (s *stubHub) DeliverDirect(_ json.RawMessage, targetUserID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, targetUserID)
}

func (s *stubHub) DeliverDirectDeletion(_ json.RawMessage, targetUserID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, targetUserID)
}

func (s *stubHub) deliveries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delivered) + len(s.deleted)
}

type stubLocator struct {
	nodes map[int64]string
	err   error
}

func (s *stubLocator) NodeFor(_ context.Context, userID int64) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.nodes[userID], nil
}

const validBody = `{"id":7,"channelId":3,"authorUserId":9,"content":"hello"}`

func newTestRouter(key string, hub *stubHub) http.Handler {
	r := chi.NewRouter()
	h := NewHandler(key, hub, nil)
	r.Route("/api/relay", h.Mount)
	return r
}

func TestHandlerRejectsWrongKey(t *testing.T) {
	hub := &stubHub{}
	router := newTestRouter("node-secret", hub)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/relay/relay?auth=wrong&targetId=42", strings.NewReader(validBody))
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, hub.deliveries(), "mismatched key must not fan anything out")
}

func TestHandlerRejectsEmptyKeyMismatch(t *testing.T) {
	hub := &stubHub{}
	router := newTestRouter("node-secret", hub)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/relay/relay?targetId=42", strings.NewReader(validBody))
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, hub.deliveries())
}

func TestHandlerDeliversWithCorrectKey(t *testing.T) {
	hub := &stubHub{}
	router := newTestRouter("node-secret", hub)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/relay/relay?auth=node-secret&targetId=42", strings.NewReader(validBody))
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, hub.delivered, 1)
	assert.Equal(t, int64(42), hub.delivered[0])
}

func TestHandlerDeletionRoute(t *testing.T) {
	hub := &stubHub{}
	router := newTestRouter("node-secret", hub)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/relay/relaydelete?auth=node-secret&targetId=8", strings.NewReader(validBody))
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, hub.deleted, 1)
	assert.Equal(t, int64(8), hub.deleted[0])
}

func TestHandlerRejectsBadTarget(t *testing.T) {
	hub := &stubHub{}
	router := newTestRouter("node-secret", hub)

	for _, target := range []string{"", "abc", "-5", "0"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/relay/relay?auth=node-secret&targetId="+target, strings.NewReader(validBody))
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "targetId=%q", target)
	}
	assert.Zero(t, hub.deliveries())
}

func TestHandlerRejectsMalformedPayload(t *testing.T) {
	hub := &stubHub{}
	router := newTestRouter("node-secret", hub)

	for _, body := range []string{"", "not json", `{"content":"missing ids"}`} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/relay/relay?auth=node-secret&targetId=42", strings.NewReader(body))
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body=%q", body)
	}
	assert.Zero(t, hub.deliveries())
}

func TestServiceDeliversLocallyWhenTargetOnThisNode(t *testing.T) {
	hub := &stubHub{}
	locator := &stubLocator{nodes: map[int64]string{42: "nova-1"}}
	svc := NewService(Config{Node: "nova-1", Key: "k"}, locator, hub, nil)

	svc.RelayDirect(context.Background(), json.RawMessage(validBody), 42)

	require.Len(t, hub.delivered, 1)
	assert.Equal(t, int64(42), hub.delivered[0])
}

func TestServiceDeliversLocallyWhenTargetOffline(t *testing.T) {
	hub := &stubHub{}
	locator := &stubLocator{nodes: map[int64]string{}}
	svc := NewService(Config{Node: "nova-1", Key: "k"}, locator, hub, nil)

	svc.RelayDirect(context.Background(), json.RawMessage(validBody), 42)

	// Offline users have no primary node; local fan-out to an empty group
	// is a no-op and the client catches up from storage.
	assert.Len(t, hub.delivered, 1)
}

func TestServiceForwardsToPeerNode(t *testing.T) {
	var (
		mu       sync.Mutex
		gotAuth  string
		gotID    string
		gotPath  string
		gotBody  []byte
		received bool
	)
	peer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		received = true
		gotAuth = r.URL.Query().Get("auth")
		gotID = r.URL.Query().Get("targetId")
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer peer.Close()

	hub := &stubHub{}
	locator := &stubLocator{nodes: map[int64]string{42: "nova-2"}}
	svc := NewService(Config{
		Node:    "nova-1",
		Key:     "node-secret",
		Peers:   map[string]string{"nova-2": peer.URL},
		Timeout: 2 * time.Second,
	}, locator, hub, nil)

	svc.RelayDirect(context.Background(), json.RawMessage(validBody), 42)

	mu.Lock()
	defer mu.Unlock()
	require.True(t, received)
	assert.Equal(t, "node-secret", gotAuth)
	assert.Equal(t, "42", gotID)
	assert.Equal(t, "/api/relay/relay", gotPath)
	assert.JSONEq(t, validBody, string(gotBody))
	assert.Zero(t, hub.deliveries(), "remote targets are never delivered locally")
}

func TestServiceDeletionUsesDeleteRoute(t *testing.T) {
	var gotPath string
	peer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer peer.Close()

	hub := &stubHub{}
	locator := &stubLocator{nodes: map[int64]string{8: "nova-2"}}
	svc := NewService(Config{
		Node:  "nova-1",
		Key:   "k",
		Peers: map[string]string{"nova-2": peer.URL},
	}, locator, hub, nil)

	svc.RelayDirectDeletion(context.Background(), json.RawMessage(validBody), 8)
	assert.Equal(t, "/api/relay/relaydelete", gotPath)
}

func TestServiceSwallowsPeerFailure(t *testing.T) {
	hub := &stubHub{}
	locator := &stubLocator{nodes: map[int64]string{42: "nova-2"}}
	svc := NewService(Config{
		Node:    "nova-1",
		Key:     "k",
		Peers:   map[string]string{"nova-2": "http://127.0.0.1:1"},
		Timeout: 200 * time.Millisecond,
	}, locator, hub, nil)

	// Must not panic, retry, or fall back to local delivery.
	svc.RelayDirect(context.Background(), json.RawMessage(validBody), 42)
	assert.Zero(t, hub.deliveries())
}

func TestServiceFallsBackLocalOnLocatorError(t *testing.T) {
	hub := &stubHub{}
	locator := &stubLocator{err: assert.AnError}
	svc := NewService(Config{Node: "nova-1", Key: "k"}, locator, hub, nil)

	svc.RelayDirect(context.Background(), json.RawMessage(validBody), 42)
	assert.Len(t, hub.delivered, 1)
}

func TestRoundTripThroughHandler(t *testing.T) {
	remoteHub := &stubHub{}
	remote := httptest.NewServer(newTestRouter("shared-secret", remoteHub))
	defer remote.Close()

	localHub := &stubHub{}
	locator := &stubLocator{nodes: map[int64]string{42: "nova-2"}}
	svc := NewService(Config{
		Node:  "nova-1",
		Key:   "shared-secret",
		Peers: map[string]string{"nova-2": remote.URL},
	}, locator, localHub, nil)

	svc.RelayDirect(context.Background(), json.RawMessage(validBody), 42)

	require.Len(t, remoteHub.delivered, 1)
	assert.Equal(t, int64(42), remoteHub.delivered[0])
	assert.Zero(t, localHub.deliveries())
}
