package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gesukichi/DeepAMARIS/config"
)

// FrontendController serves the static settings and health endpoints.
type FrontendController struct {
	frontend config.FrontendConfig
}

func NewFrontendController(frontend config.FrontendConfig) *FrontendController {
	return &FrontendController{frontend: frontend}
}

// Settings handles GET /frontend_settings
func (c *FrontendController) Settings(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, c.frontend)
}

// Health handles GET /healthz
func (c *FrontendController) Health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
