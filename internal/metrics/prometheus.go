// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// KeyframeManager - 视频关键帧提取工具

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyframemanager_jobs_total",
		Help: "Extraction jobs by final state",
	}, []string{"state"})

	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "keyframemanager_job_duration_seconds",
		Help:    "Wall time of one extraction job",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	})

	FramesScannedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keyframemanager_frames_scanned_total",
		Help: "Decoded frames compared across all jobs",
	})

	KeyframesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keyframemanager_keyframes_total",
		Help: "Keyframes persisted across all jobs",
	})

	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "keyframemanager_active_jobs",
		Help: "Jobs currently scanning",
	})

	UploadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keyframemanager_upload_bytes_total",
		Help: "Bytes of video accepted by the upload endpoints",
	})
)
