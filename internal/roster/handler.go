package roster

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"churnwatch_backend/platform/httpkit"
	"churnwatch_backend/platform/validator"
)

// UpsertMemberRequest creates or replaces one roster entry.
type UpsertMemberRequest struct {
	KAM      string `json:"kam" validate:"required,max=120"`
	TeamLead string `json:"teamLead" validate:"max=120"`
	Role     string `json:"role" validate:"required,oneof=admin team_lead agent"`
}

// MemberResponse is one roster entry.
type MemberResponse struct {
	KAM       string    `json:"kam"`
	TeamLead  string    `json:"teamLead,omitempty"`
	Role      string    `json:"role"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Handler struct {
	svc *Service
	val *validator.Validator
}

func NewHandler(svc *Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes mounts the roster CRUD on the admin group.
func (h *Handler) RegisterRoutes(admin *gin.RouterGroup) {
	rg := admin.Group("/roster")
	rg.GET("", h.List)
	rg.GET("/:kam", h.Get)
	rg.PUT("", h.Upsert)
	rg.DELETE("/:kam", h.Delete)
}

func (h *Handler) List(c *gin.Context) {
	members, err := h.svc.List(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}

	items := make([]MemberResponse, 0, len(members))
	for _, m := range members {
		items = append(items, toMemberResponse(m))
	}
	httpkit.OK(c, gin.H{"items": items})
}

func (h *Handler) Get(c *gin.Context) {
	member, err := h.svc.Get(c.Request.Context(), c.Param("kam"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toMemberResponse(member))
}

func (h *Handler) Upsert(c *gin.Context) {
	var req UpsertMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	member, err := h.svc.Upsert(c.Request.Context(), Member{
		KAM:      req.KAM,
		TeamLead: req.TeamLead,
		Role:     req.Role,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toMemberResponse(member))
}

func (h *Handler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("kam")); httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

func toMemberResponse(m Member) MemberResponse {
	return MemberResponse{
		KAM:       m.KAM,
		TeamLead:  m.TeamLead,
		Role:      m.Role,
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}
