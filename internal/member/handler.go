package member

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/novachat/nova/internal/platform/httpx"
	"github.com/novachat/nova/internal/shared"
)

// Handler manages member administration endpoints. All routes require an
// authenticated identity in the request context.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers member routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/planets/{planetID}/members/self", h.showSelf)
	r.Delete("/planets/{planetID}/members/{memberID}", h.kick)
	r.Put("/planets/{planetID}/members/{memberID}/roles/{roleID}", h.addRole)
	r.Delete("/planets/{planetID}/members/{memberID}/roles/{roleID}", h.removeRole)
}

func (h *Handler) showSelf(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrAuthFailure)
		return
	}
	planetID, err := pathID(r, "planetID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	m, err := h.service.FindByUser(r.Context(), userID, planetID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) kick(w http.ResponseWriter, r *http.Request) {
	actor, target, err := h.actorAndTarget(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	if err := h.service.Kick(r.Context(), actor, target); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, shared.OK("member removed"))
}

func (h *Handler) addRole(w http.ResponseWriter, r *http.Request) {
	actor, target, err := h.actorAndTarget(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	roleID, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	if err := h.service.AddRole(r.Context(), actor, target, roleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, shared.OK("role granted"))
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	actor, target, err := h.actorAndTarget(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	roleID, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	if err := h.service.RemoveRole(r.Context(), actor, target, roleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, shared.OK("role revoked"))
}

// actorAndTarget resolves the caller's membership in the planet and the
// member the route addresses. The target must belong to the same planet.
func (h *Handler) actorAndTarget(r *http.Request) (*Member, *Member, error) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		return nil, nil, shared.ErrAuthFailure
	}
	planetID, err := pathID(r, "planetID")
	if err != nil {
		return nil, nil, err
	}
	memberID, err := pathID(r, "memberID")
	if err != nil {
		return nil, nil, err
	}

	actor, err := h.service.FindByUser(r.Context(), userID, planetID)
	if err != nil {
		return nil, nil, err
	}
	target, err := h.service.Find(r.Context(), memberID)
	if err != nil {
		return nil, nil, err
	}
	if target.PlanetID != planetID {
		return nil, nil, shared.ErrNotFound
	}
	return actor, target, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.ErrValidation
	}
	return id, nil
}
