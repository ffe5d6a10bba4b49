// Package handler exposes the churn workflow over HTTP.
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"churnwatch_backend/internal/churn/domain"
	"churnwatch_backend/internal/churn/service"
	"churnwatch_backend/internal/churn/transport"
	"churnwatch_backend/platform/httpkit"
	"churnwatch_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

type Handler struct {
	svc *service.Service
	val *validator.Validator
}

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes adds the churn routes to the authenticated group and the
// import/heal routes to the admin group.
func (h *Handler) RegisterRoutes(protected, admin *gin.RouterGroup) {
	churn := protected.Group("/churn")
	churn.GET("", h.List)
	churn.GET("/followups/active", h.ListActive)
	churn.GET("/followups/overdue", h.ListOverdue)
	churn.GET("/:rid", h.GetStatus)
	churn.PUT("/:rid/reason", h.SetReason)
	churn.POST("/:rid/attempts", h.RecordAttempt)

	adminChurn := admin.Group("/churn")
	adminChurn.POST("/import", h.Import)
	adminChurn.POST("/heal", h.Heal)
}

// callerFrom derives the workflow caller from the authenticated identity.
// The strongest role wins when a user carries several.
func callerFrom(identity httpkit.Identity) domain.Caller {
	caller := domain.Caller{KAM: identity.KAM()}
	switch {
	case identity.HasRole(string(domain.RoleAdmin)):
		caller.Role = domain.RoleAdmin
	case identity.HasRole(string(domain.RoleTeamLead)):
		caller.Role = domain.RoleTeamLead
	case identity.HasRole(string(domain.RoleAgent)):
		caller.Role = domain.RoleAgent
	}
	return caller
}

func (h *Handler) List(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	query := service.ListQuery{
		Filter:   c.Query("filter"),
		Search:   c.Query("search"),
		Page:     intQuery(c, "page"),
		PageSize: intQuery(c, "pageSize"),
	}

	resp, err := h.svc.List(c.Request.Context(), callerFrom(identity), query)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

func (h *Handler) GetStatus(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	resp, err := h.svc.GetStatus(c.Request.Context(), callerFrom(identity), c.Param("rid"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

func (h *Handler) SetReason(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.SetReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	resp, err := h.svc.SetReason(c.Request.Context(), callerFrom(identity), c.Param("rid"), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

func (h *Handler) RecordAttempt(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.RecordAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	resp, err := h.svc.RecordAttempt(c.Request.Context(), callerFrom(identity), c.Param("rid"), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

func (h *Handler) ListActive(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	items, err := h.svc.ListActive(c.Request.Context(), callerFrom(identity))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": items})
}

func (h *Handler) ListOverdue(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	items, err := h.svc.ListOverdue(c.Request.Context(), callerFrom(identity))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": items})
}

func (h *Handler) Import(c *gin.Context) {
	var req transport.ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	resp, err := h.svc.Import(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, resp)
}

func (h *Handler) Heal(c *gin.Context) {
	resp, err := h.svc.HealAll(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

func intQuery(c *gin.Context, key string) int {
	value, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return value
}
