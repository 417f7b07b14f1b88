package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// Config identifies the local node and its peers. Key is the pre-shared
// inter-node secret compared by exact match on the receiving side.
type Config struct {
	Node    string
	Key     string
	Peers   map[string]string // node name -> base URL
	Timeout time.Duration
}

// Locator finds the node currently hosting a user's primary connections.
type Locator interface {
	NodeFor(ctx context.Context, userID int64) (string, error)
}

// LocalHub completes fan-out on this node.
type LocalHub interface {
	DeliverDirect(payload json.RawMessage, targetUserID int64)
	DeliverDirectDeletion(payload json.RawMessage, targetUserID int64)
}

// Observer counts relay call outcomes for metrics. May be nil.
type Observer interface {
	RelayOutcome(outcome string)
}

// Service forwards events whose target user lives on another node. Delivery
// is best-effort: failures are logged and never retried, the database stays
// authoritative.
type Service struct {
	cfg      Config
	locator  Locator
	hub      LocalHub
	client   *resty.Client
	observer Observer
	logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(cfg Config, locator Locator, hub LocalHub, logger *slog.Logger) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	return &Service{cfg: cfg, locator: locator, hub: hub, client: client, logger: logger}
}

// SetObserver installs the metrics observer.
func (s *Service) SetObserver(observer Observer) {
	s.observer = observer
}

// RelayDirect routes a direct message to the target user's node.
func (s *Service) RelayDirect(ctx context.Context, payload json.RawMessage, targetUserID int64) {
	if s.isLocal(ctx, targetUserID) {
		s.hub.DeliverDirect(payload, targetUserID)
		return
	}
	s.forward(ctx, "relay", payload, targetUserID)
}

// RelayDirectDeletion routes a direct-message removal to the target user's
// node.
func (s *Service) RelayDirectDeletion(ctx context.Context, payload json.RawMessage, targetUserID int64) {
	if s.isLocal(ctx, targetUserID) {
		s.hub.DeliverDirectDeletion(payload, targetUserID)
		return
	}
	s.forward(ctx, "relaydelete", payload, targetUserID)
}

// isLocal treats lookup failures and offline users as local: publishing to
// an empty local group is a harmless no-op, and the client will catch up
// from the database.
func (s *Service) isLocal(ctx context.Context, targetUserID int64) bool {
	if s.locator == nil {
		return true
	}
	node, err := s.locator.NodeFor(ctx, targetUserID)
	if err != nil {
		s.logger.Warn("locate relay target", slog.Int64("user_id", targetUserID), slog.Any("error", err))
		return true
	}
	return node == "" || node == s.cfg.Node
}

func (s *Service) forward(ctx context.Context, op string, payload json.RawMessage, targetUserID int64) {
	node, err := s.locator.NodeFor(ctx, targetUserID)
	if err != nil || node == "" {
		return
	}
	base, ok := s.cfg.Peers[node]
	if !ok {
		s.logger.Warn("relay peer not configured", slog.String("node", node))
		return
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("auth", s.cfg.Key).
		SetQueryParam("targetId", strconv.FormatInt(targetUserID, 10)).
		SetBody([]byte(payload)).
		Post(base + "/api/relay/" + op)
	if err != nil {
		s.logger.Warn("relay call failed",
			slog.String("node", node), slog.String("op", op), slog.Any("error", err))
		s.outcome("unreachable")
		return
	}
	if resp.IsError() {
		s.logger.Warn("relay call rejected",
			slog.String("node", node), slog.String("op", op), slog.Int("status", resp.StatusCode()))
		s.outcome("rejected")
		return
	}
	s.outcome("ok")
}

func (s *Service) outcome(label string) {
	if s.observer != nil {
		s.observer.RelayOutcome(label)
	}
}
