package handler

import (
	"net/http"

	"fleetops/internal/middleware"
	"fleetops/internal/service"
	"fleetops/pkg/response"

	"github.com/gin-gonic/gin"
)

type SuperadminHandler struct {
	superadmin service.SuperadminService
	auth       *middleware.Auth
}

func NewSuperadminHandler(superadmin service.SuperadminService, auth *middleware.Auth) *SuperadminHandler {
	return &SuperadminHandler{superadmin: superadmin, auth: auth}
}

func (h *SuperadminHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/superadmin")
	{
		group.GET("/status", h.auth.RequirePermission("superadmin.view"), h.Status)
		group.POST("/repair", h.auth.RequirePermission("superadmin.repair"), h.Repair)
	}
}

// Status reports whether the superadmin role holds every permission
// @Summary      Superadmin consistency status
// @Tags         superadmin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=service.SuperadminStatus}
// @Router       /api/superadmin/status [get]
func (h *SuperadminHandler) Status(c *gin.Context) {
	status, err := h.superadmin.Status(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, status))
}

// Repair grants every missing permission to the superadmin role
// @Summary      Repair superadmin grants
// @Tags         superadmin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=service.RepairResult}
// @Router       /api/superadmin/repair [post]
func (h *SuperadminHandler) Repair(c *gin.Context) {
	result, err := h.superadmin.Repair(requestContext(c), service.TriggerManual)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
