package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/nono-backend/internal/http/response"
	"github.com/yungbote/nono-backend/internal/services"
)

type HealthHandler struct {
	status services.StatusService
}

func NewHealthHandler(status services.StatusService) *HealthHandler {
	return &HealthHandler{status: status}
}

// GET /health
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	response.RespondOK(c, h.status.Health(c.Request.Context()))
}

// GET /api/models
func (h *HealthHandler) Models(c *gin.Context) {
	m, err := h.status.Models(c.Request.Context())
	if err != nil {
		response.RespondServiceError(c, err, "models_failed")
		return
	}
	response.RespondOK(c, m)
}

type modelReq struct {
	Model string `json:"model" binding:"required"`
}

// POST /api/models/pull
func (h *HealthHandler) PullModel(c *gin.Context) {
	var req modelReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, services.CodeInvalidRequest, err)
		return
	}
	res, err := h.status.PullModel(c.Request.Context(), req.Model)
	if err != nil {
		response.RespondServiceError(c, err, services.CodeModelFailed)
		return
	}
	response.RespondOK(c, res)
}

// POST /api/models/use
func (h *HealthHandler) UseModel(c *gin.Context) {
	var req modelReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, services.CodeInvalidRequest, err)
		return
	}
	res, err := h.status.UseModel(c.Request.Context(), req.Model)
	if err != nil {
		response.RespondServiceError(c, err, services.CodeModelFailed)
		return
	}
	response.RespondOK(c, res)
}

// GET /personas
func (h *HealthHandler) Personas(c *gin.Context) {
	infos, err := h.status.ListPersonas()
	if err != nil {
		response.RespondServiceError(c, err, "personas_failed")
		return
	}
	response.RespondOK(c, gin.H{"personas": infos})
}
