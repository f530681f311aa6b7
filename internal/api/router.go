// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// KeyframeManager - 视频关键帧提取工具

package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig controls optional routes
type RouterConfig struct {
	// OutputDir is served under OutputURL when keyframes are stored on disk
	OutputDir string
	OutputURL string
}

// NewRouter registers every route on a fresh gin engine
func NewRouter(h *Handler, config RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), cors.Default())

	r.GET("/", h.Home)
	r.POST("/extract_keyframes/", h.ExtractKeyframes)
	r.GET("/preview", h.Preview)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if config.OutputDir != "" && config.OutputURL != "" {
		r.Static(config.OutputURL, config.OutputDir)
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/skills", h.Skills)
		v1.POST("/skills/reload", h.ReloadSkills)

		v1.GET("/jobs", h.ListJobs)
		v1.POST("/jobs", h.AddJob)
		v1.GET("/jobs/:id", h.GetJob)
		v1.DELETE("/jobs/:id", h.DeleteJob)
		v1.GET("/jobs/:id/report", h.GetReport)
		v1.PUT("/jobs/:id/command", h.Command)
	}

	return r
}
