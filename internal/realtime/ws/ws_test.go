package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novachat/nova/internal/channel"
	"github.com/novachat/nova/internal/channelstate"
	"github.com/novachat/nova/internal/identity"
	"github.com/novachat/nova/internal/member"
	"github.com/novachat/nova/internal/perms"
	"github.com/novachat/nova/internal/realtime"
	"github.com/novachat/nova/internal/shared"
)

type stubAuthorizer struct{ tokens map[string]*identity.Token }

func (s *stubAuthorizer) Authorize(_ context.Context, token string) (*identity.Token, error) {
	t, ok := s.tokens[token]
	if !ok {
		return nil, shared.ErrAuthFailure
	}
	return t, nil
}

type stubMembers struct{ members map[int64]*member.Member }

func (s *stubMembers) FindByUser(_ context.Context, userID, _ int64) (*member.Member, error) {
	m, ok := s.members[userID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return m, nil
}

func (s *stubMembers) HasChannelPermission(_ context.Context, _ *member.Member, _ *channel.Channel, _ perms.Permission) (bool, error) {
	return true, nil
}

type stubChannels struct{ channels map[int64]*channel.Channel }

func (s *stubChannels) FindChannel(_ context.Context, id int64) (*channel.Channel, error) {
	ch, ok := s.channels[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return ch, nil
}

type stubCursors struct{}

func (s *stubCursors) RefreshOnJoin(_ context.Context, userID, channelID int64) (*channelstate.Cursor, error) {
	return &channelstate.Cursor{UserID: userID, ChannelID: channelID}, nil
}

type stubPresence struct{}

func (s *stubPresence) SetOnline(context.Context, int64, string) error  { return nil }
func (s *stubPresence) SetOffline(context.Context, int64, string) error { return nil }
func (s *stubPresence) NodeFor(context.Context, int64) (string, error)  { return "", nil }

func newTestHandler() *Handler {
	registry := realtime.NewRegistry("nova-test", &stubPresence{}, nil)
	deps := realtime.SessionDeps{
		Registry:  registry,
		Broadcast: realtime.NewBroadcaster(registry, nil, nil),
		Identity: &stubAuthorizer{tokens: map[string]*identity.Token{
			"tok-9": {ID: "tok-9", UserID: 9, Scope: perms.UserFullControl.Value},
		}},
		Members:  &stubMembers{members: map[int64]*member.Member{9: {ID: 90, PlanetID: 1, UserID: 9}}},
		Channels: &stubChannels{channels: map[int64]*channel.Channel{3: {ID: 3, PlanetID: 1}}},
		Cursors:  &stubCursors{},
	}
	return NewHandler(deps, nil)
}

func dial(t *testing.T) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(newTestHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return client, func() {
		_ = client.Close()
		srv.Close()
	}
}

func request(t *testing.T, client *websocket.Conn, frame clientFrame) resultFrame {
	t.Helper()
	require.NoError(t, client.WriteJSON(frame))
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var result resultFrame
	require.NoError(t, client.ReadJSON(&result))
	return result
}

func TestPingPong(t *testing.T) {
	client, cleanup := dial(t)
	defer cleanup()

	result := request(t, client, clientFrame{Method: MethodPing})
	assert.Equal(t, MethodPing, result.Method)
	assert.True(t, result.Result.Success)
	assert.Equal(t, "Pong", result.Result.Message)
}

func TestJoinRequiresAuthorize(t *testing.T) {
	client, cleanup := dial(t)
	defer cleanup()

	result := request(t, client, clientFrame{Method: MethodJoinUser})
	assert.False(t, result.Result.Success)

	result = request(t, client, clientFrame{Method: MethodAuthorize, Token: "bad"})
	assert.False(t, result.Result.Success)

	result = request(t, client, clientFrame{Method: MethodAuthorize, Token: "tok-9"})
	assert.True(t, result.Result.Success)

	result = request(t, client, clientFrame{Method: MethodJoinUser})
	assert.True(t, result.Result.Success)
}

func TestJoinChannelPushesCursorUpdate(t *testing.T) {
	client, cleanup := dial(t)
	defer cleanup()

	require.True(t, request(t, client, clientFrame{Method: MethodAuthorize, Token: "tok-9"}).Result.Success)
	require.True(t, request(t, client, clientFrame{Method: MethodJoinUser}).Result.Success)

	require.NoError(t, client.WriteJSON(clientFrame{Method: MethodJoinChannel, ChannelID: 3}))

	// The join produces two frames: the cursor push to the user group and
	// the request result. Collect both without assuming interleaving.
	var sawResult, sawCursor bool
	for range 2 {
		_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, raw, err := client.ReadMessage()
		require.NoError(t, err)
		s := string(raw)
		switch {
		case strings.Contains(s, realtime.EventChannelStateUpdate):
			sawCursor = true
		case strings.Contains(s, MethodJoinChannel):
			sawResult = true
			assert.Contains(t, s, "Connected to channel 3")
		}
	}
	assert.True(t, sawResult)
	assert.True(t, sawCursor)
}

func TestUnknownMethod(t *testing.T) {
	client, cleanup := dial(t)
	defer cleanup()

	result := request(t, client, clientFrame{Method: "Teleport"})
	assert.False(t, result.Result.Success)
}
