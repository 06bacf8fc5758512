package handler

import (
	"net/http"

	"procurement/internal/middleware"
	"procurement/internal/model"
	"procurement/internal/service"
	"procurement/pkg/response"

	"github.com/gin-gonic/gin"
)

type SettingsHandler struct {
	settingsService service.SettingsService
}

func NewSettingsHandler(settingsService service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settingsService: settingsService}
}

func (h *SettingsHandler) RegisterRoutes(router *gin.RouterGroup, guard middleware.Guard) {
	settings := router.Group("/api/purchase-settings")
	{
		settings.GET("", guard.Require(model.PermRequestsRead), h.ListSettings)
		settings.PUT("/:key", guard.Require(model.PermSettingsManage), h.UpdateSetting)
	}
}

// ListSettings returns the effective procurement settings
// @Summary      List procurement settings
// @Tags         settings
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]service.SettingView}
// @Router       /api/purchase-settings [get]
func (h *SettingsHandler) ListSettings(c *gin.Context) {
	settings, err := h.settingsService.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, settings))
}

// UpdateSetting overrides one setting
// @Summary      Update procurement setting
// @Tags         settings
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        key      path      string                      true  "Setting key"
// @Param        request  body      service.UpdateSettingInput  true  "New value"
// @Success      200      {object}  response.Response{data=service.SettingView}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/purchase-settings/{key} [put]
func (h *SettingsHandler) UpdateSetting(c *gin.Context) {
	var req service.UpdateSettingInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	view, err := h.settingsService.Update(c.Request.Context(), c.Param("key"), currentUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, view))
}
