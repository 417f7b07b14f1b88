package relay

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/novachat/nova/internal/platform/httpx"
	"github.com/novachat/nova/internal/shared"
)

// directMessagePayload mirrors the fields every relayed direct message must
// carry. The full body is forwarded verbatim after validation.
type directMessagePayload struct {
	ID           int64  `json:"id" validate:"required"`
	ChannelID    int64  `json:"channelId" validate:"required"`
	AuthorUserID int64  `json:"authorUserId" validate:"required"`
	Content      string `json:"content"`
}

// Handler receives relayed events from peer nodes. The auth query parameter
// must equal this node's key exactly; anything else is rejected before any
// fan-out happens.
type Handler struct {
	key      string
	hub      LocalHub
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(key string, hub LocalHub, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{key: key, hub: hub, validate: validator.New(), logger: logger}
}

func (h *Handler) Mount(r chi.Router) {
	r.Post("/relay", h.relayMessage)
	r.Post("/relaydelete", h.relayDeletion)
}

func (h *Handler) relayMessage(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, h.hub.DeliverDirect)
}

func (h *Handler) relayDeletion(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, h.hub.DeliverDirectDeletion)
}

func (h *Handler) handle(w http.ResponseWriter, r *http.Request, deliver func(json.RawMessage, int64)) {
	if r.URL.Query().Get("auth") != h.key {
		h.logger.Warn("relay auth mismatch", slog.String("remote", r.RemoteAddr))
		httpx.RespondError(w, shared.ErrInterNodeAuth)
		return
	}

	targetID, err := strconv.ParseInt(r.URL.Query().Get("targetId"), 10, 64)
	if err != nil || targetID <= 0 {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	var msg directMessagePayload
	if err := json.Unmarshal(body, &msg); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validate.Struct(msg); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}

	deliver(json.RawMessage(body), targetID)
	httpx.JSON(w, http.StatusOK, shared.OK("relayed"))
}
