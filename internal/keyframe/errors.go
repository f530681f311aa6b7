// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// KeyframeManager - 视频关键帧提取工具

package keyframe

import (
	"errors"
	"fmt"
)

var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrEmptyStream       = errors.New("no decodable frame in stream")
	ErrInvalidFrameRate  = errors.New("invalid frame rate")
	ErrPersistFailure    = errors.New("persist keyframe failed")
	ErrFrameSize         = errors.New("frame size changed mid-stream")
	ErrInvalidThreshold  = errors.New("threshold must not be negative")
)

// Stage names where a scan failed
const (
	StageOpen    = "open"
	StageProbe   = "probe"
	StageDecode  = "decode"
	StageCompare = "compare"
	StagePersist = "persist"
)

// Error carries the path and stage of a failed scan.
type Error struct {
	Path  string
	Stage string
	Err   error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(path, stage string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		if e.Path == "" {
			e.Path = path
		}
		return e
	}
	return &Error{Path: path, Stage: stage, Err: err}
}
