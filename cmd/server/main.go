// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// KeyframeManager - 视频关键帧提取工具

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZSC714725/keyframemanager/internal/api"
	"github.com/ZSC714725/keyframemanager/internal/config"
	"github.com/ZSC714725/keyframemanager/internal/ffmpeg"
	"github.com/ZSC714725/keyframemanager/internal/job"
	"github.com/ZSC714725/keyframemanager/internal/keyframe"
	"github.com/ZSC714725/keyframemanager/internal/logger"
	"github.com/ZSC714725/keyframemanager/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	bind := flag.String("bind", "", "Bind address (overrides config)")
	ffmpegBin := flag.String("ffmpeg", "", "FFmpeg binary path (overrides config)")
	threshold := flag.Int("threshold", -1, "Scene change threshold (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}
	if *bind != "" {
		cfg.Server.Bind = *bind
	}
	if *ffmpegBin != "" {
		cfg.FFmpeg.Path = *ffmpegBin
	}
	if *threshold >= 0 {
		cfg.Scan.Threshold = *threshold
	}

	logger := logger.New("keyframemanager", cfg.Log.Level)
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	inputs, err := ffmpeg.NewUploadFilter(cfg.FFmpeg.Allow, cfg.FFmpeg.Block)
	if err != nil {
		log.Fatalf("Upload filter: %v", err)
	}

	ff, err := ffmpeg.New(ffmpeg.Config{
		Binary:         cfg.FFmpeg.Path,
		ProbeBinary:    cfg.FFmpeg.ProbePath,
		MaxLogLines:    cfg.FFmpeg.MaxLogLines,
		Inputs:         inputs,
		SampleProcess:  cfg.FFmpeg.Sample,
		Logger:         logger,
	})
	if err != nil {
		log.Fatalf("FFmpeg init: %v", err)
	}

	var (
		output storage.Store
		router api.RouterConfig
	)
	switch cfg.Storage.Driver {
	case "minio":
		m, err := storage.NewMinio(storage.MinioConfig{
			Endpoint:  cfg.Storage.Minio.Endpoint,
			AccessKey: cfg.Storage.Minio.AccessKey,
			SecretKey: cfg.Storage.Minio.SecretKey,
			UseSSL:    cfg.Storage.Minio.UseSSL,
			Bucket:    cfg.Storage.Minio.Bucket,
			Prefix:    cfg.Storage.Minio.Prefix,
			BaseURL:   cfg.Storage.BaseURL,
			Quality:   cfg.Storage.Quality,
		})
		if err != nil {
			log.Fatalf("Storage: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = m.EnsureBucket(ctx)
		cancel()
		if err != nil {
			log.Fatalf("Storage: %v", err)
		}
		output = m
	default:
		d, err := storage.NewDir(cfg.Storage.Dir, cfg.Storage.BaseURL, cfg.Storage.Quality)
		if err != nil {
			log.Fatalf("Storage: %v", err)
		}
		output = d
		router = api.RouterConfig{OutputDir: d.Root, OutputURL: cfg.Storage.BaseURL}
	}

	store := job.NewStore(job.StoreConfig{
		Opener: ff,
		Output: output,
		Scan: keyframe.Options{
			Threshold: cfg.Scan.Threshold,
			Scale:     cfg.Scan.Scale,
			Policy:    keyframe.PersistPolicy(cfg.Scan.PersistPolicy),
			Reference: keyframe.ReferencePolicy(cfg.Scan.Reference),
			Ext:       cfg.Scan.Ext,
		},
		Logger: logger,
		OnDone: func(j *job.Job) {
			if cfg.Server.KeepUploads {
				return
			}
			if err := os.Remove(j.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
				logger.Error("job %s: remove upload: %v", j.ID, err)
			}
		},
	})

	handler, err := api.NewHandler(store, ff, api.Config{
		UploadDir:      cfg.Server.UploadDir,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})
	if err != nil {
		log.Fatalf("API: %v", err)
	}

	srv := &http.Server{
		Addr:    cfg.Server.Bind,
		Handler: api.NewRouter(handler, router),
	}

	go func() {
		logger.Info("KeyframeManager listening on %s (ffmpeg %s, threshold %d)", cfg.Server.Bind, ff.Skills().Version, cfg.Scan.Threshold)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown: %v", err)
	}
}
