// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// KeyframeManager - 视频关键帧提取工具

package job

import "errors"

var (
	ErrNotFound     = errors.New("job not found")
	ErrJobExists    = errors.New("job already exists")
	ErrInvalidInput = errors.New("invalid input: need a video path")
	ErrNotRunning   = errors.New("job is not running")
)
