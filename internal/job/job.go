// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// KeyframeManager - 视频关键帧提取工具

package job

import (
	"context"
	"sync"
	"time"

	"github.com/ZSC714725/keyframemanager/internal/ffmpeg/parse"
	"github.com/ZSC714725/keyframemanager/internal/keyframe"
	"github.com/ZSC714725/keyframemanager/internal/process"
)

// State of a job
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateFinished  State = "finished"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// IsDone reports whether the job reached a final state
func (s State) IsDone() bool {
	return s == StateFinished || s == StateFailed || s == StateCancelled
}

// Config describes one extraction
type Config struct {
	ID        string
	Reference string
	Video     string // name the client uploaded
	Path      string // local file to decode
	Threshold *int
}

// decoder is implemented by sources that run an external process
type decoder interface {
	Status() process.Status
	Progress() parse.Progress
	Log() []process.Line
}

// Job is one extraction of keyframes from a video
type Job struct {
	ID        string
	Reference string
	Video     string
	Path      string
	Threshold int
	CreatedAt int64

	mu        sync.RWMutex
	state     State
	updatedAt int64
	result    *keyframe.Result
	err       error
	source    keyframe.Source

	cancel context.CancelFunc
	done   chan struct{}
}

func (j *Job) setState(s State) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = s
	j.updatedAt = time.Now().Unix()
}

func (j *Job) setSource(src keyframe.Source) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.source = src
}

func (j *Job) finish(state State, res *keyframe.Result, err error) {
	j.mu.Lock()
	j.state = state
	j.updatedAt = time.Now().Unix()
	j.result = res
	j.err = err
	j.mu.Unlock()
}

// State returns the current state
func (j *Job) State() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// UpdatedAt returns the unix time of the last state change
func (j *Job) UpdatedAt() int64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.updatedAt
}

// Result returns the keyframes found so far; nil until the scan ends.
// A cancelled or failed job keeps what it emitted before stopping.
func (j *Job) Result() *keyframe.Result {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.result
}

// Err returns why the job failed or was cancelled
func (j *Job) Err() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.err
}

// Done is closed when the job reaches a final state
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job is done or ctx ends
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Decoder returns the decoder process status, progress and log when the
// source runs one.
func (j *Job) Decoder() (process.Status, parse.Progress, []process.Line, bool) {
	j.mu.RLock()
	src := j.source
	j.mu.RUnlock()

	d, ok := src.(decoder)
	if !ok {
		return process.Status{}, parse.Progress{}, nil, false
	}
	return d.Status(), d.Progress(), d.Log(), true
}
