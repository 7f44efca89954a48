package handler

import (
	"net/http"

	"adcert/internal/middleware"
	"adcert/internal/model"
	"adcert/internal/service"
	"adcert/pkg/pagination"
	"adcert/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
}

func NewAuditHandler(auditService service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/audit-logs")
	group.Use(middleware.RequireRole(model.RoleAdmin))
	{
		group.GET("", h.GetAuditLogs)
		group.GET("/:entityID", h.GetEntityHistory)
	}
}

// GetAuditLogs retrieves paginated workflow history, newest first
// @Summary      Get audit logs
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Number of items per page (default 20, max 100)"
// @Success      200    {object}  response.Response{data=pagination.Page[service.AuditLogResponse]}
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	p := pagination.Parse(c)

	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), p.Page, p.Limit)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, pagination.NewPage(logs, total, p)))
}

// GetEntityHistory returns the trail of one submission or certificate
// @Summary      Get entity history
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        entityID  path      string  true  "Submission ID or certificate number"
// @Success      200       {object}  response.Response{data=[]service.AuditLogResponse}
// @Router       /api/audit-logs/{entityID} [get]
func (h *AuditHandler) GetEntityHistory(c *gin.Context) {
	logs, err := h.auditService.GetEntityHistory(c.Request.Context(), c.Param("entityID"))
	if err != nil {
		respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, logs))
}
