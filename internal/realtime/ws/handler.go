package ws

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/novachat/nova/internal/realtime"
	"github.com/novachat/nova/internal/shared"
)

// Client request methods.
const (
	MethodAuthorize        = "Authorize"
	MethodJoinUser         = "JoinUser"
	MethodLeaveUser        = "LeaveUser"
	MethodJoinPlanet       = "JoinPlanet"
	MethodLeavePlanet      = "LeavePlanet"
	MethodJoinChannel      = "JoinChannel"
	MethodLeaveChannel     = "LeaveChannel"
	MethodJoinInteraction  = "JoinInteractionGroup"
	MethodLeaveInteraction = "LeaveInteractionGroup"
	MethodPing             = "Ping"
)

// clientFrame is one request from the client. Only the fields relevant to
// the method are read.
type clientFrame struct {
	Method    string `json:"method"`
	Token     string `json:"token,omitempty"`
	PlanetID  int64  `json:"planetId,omitempty"`
	ChannelID int64  `json:"channelId,omitempty"`
}

// resultFrame answers a client request.
type resultFrame struct {
	Method string        `json:"method"`
	Result shared.Result `json:"result"`
}

// Handler upgrades HTTP requests to realtime sessions.
type Handler struct {
	deps     realtime.SessionDeps
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHandler(deps realtime.SessionDeps, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
}

// ServeHTTP upgrades the request and runs the session until the client
// disconnects or the socket errors.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade", slog.Any("error", err))
		return
	}

	conn := newConn(sock)
	session := realtime.NewSession(conn, h.deps)
	go conn.writePump()

	defer func() {
		session.Disconnect(r.Context())
		_ = conn.Close()
	}()

	sock.SetReadLimit(maxFrameSize)
	_ = sock.SetReadDeadline(time.Now().Add(pongWait))
	sock.SetPongHandler(func(string) error {
		return sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame clientFrame
		if err := sock.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read", slog.String("conn_id", conn.ID()), slog.Any("error", err))
			}
			return
		}
		h.dispatch(r, conn, session, frame)
	}
}

// dispatch runs one request. Requests from a single connection are handled
// sequentially, which gives session operations their ordering guarantee.
func (h *Handler) dispatch(r *http.Request, conn *Conn, session *realtime.Session, frame clientFrame) {
	ctx := r.Context()

	respond := func(result shared.Result) {
		if err := conn.enqueue(resultFrame{Method: frame.Method, Result: result}); err != nil {
			h.logger.Debug("websocket respond", slog.String("conn_id", conn.ID()), slog.Any("error", err))
		}
	}

	switch frame.Method {
	case MethodAuthorize:
		respond(session.Authorize(ctx, frame.Token))
	case MethodJoinUser:
		respond(session.JoinUser(ctx))
	case MethodLeaveUser:
		session.LeaveUser(ctx)
		respond(shared.OK("Disconnected from user"))
	case MethodJoinPlanet:
		respond(session.JoinPlanet(ctx, frame.PlanetID))
	case MethodLeavePlanet:
		session.LeavePlanet(frame.PlanetID)
		respond(shared.OK("Disconnected from planet"))
	case MethodJoinChannel:
		respond(session.JoinChannel(ctx, frame.ChannelID))
	case MethodLeaveChannel:
		session.LeaveChannel(frame.ChannelID)
		respond(shared.OK("Disconnected from channel"))
	case MethodJoinInteraction:
		respond(session.JoinInteractionGroup(ctx, frame.PlanetID))
	case MethodLeaveInteraction:
		session.LeaveInteractionGroup(frame.PlanetID)
		respond(shared.OK("Disconnected from interaction group"))
	case MethodPing:
		respond(shared.OK(session.Ping()))
	default:
		respond(shared.Fail("Unknown method: " + frame.Method))
	}
}
