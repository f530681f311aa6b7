// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// KeyframeManager - 视频关键帧提取工具

package job

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/ZSC714725/keyframemanager/internal/keyframe"
	"github.com/ZSC714725/keyframemanager/internal/logger"
	"github.com/ZSC714725/keyframemanager/internal/metrics"
	"github.com/ZSC714725/keyframemanager/internal/storage"
)

// Store manages extraction jobs in memory
type Store interface {
	Add(config *Config) (*Job, error)
	Get(id string) (*Job, error)
	List(ids []string, reference string) []*Job
	Cancel(id string) error
	Delete(id string) error
	Output() storage.Store
}

// StoreConfig wires a store to its collaborators
type StoreConfig struct {
	Opener keyframe.Opener
	Output storage.Store
	Scan   keyframe.Options
	Logger logger.Logger
	OnDone func(j *Job)
}

type store struct {
	opener keyframe.Opener
	output storage.Store
	scan   keyframe.Options
	logger logger.Logger
	onDone func(j *Job)
	jobs   map[string]*Job
	mu     sync.RWMutex
}

// NewStore creates a job store
func NewStore(config StoreConfig) Store {
	s := &store{
		opener: config.Opener,
		output: config.Output,
		scan:   config.Scan,
		logger: config.Logger,
		onDone: config.OnDone,
		jobs:   make(map[string]*Job),
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	s.scan.Logger = s.logger
	return s
}

func (s *store) Output() storage.Store {
	return s.output
}

// Add registers a job and starts scanning in the background
func (s *store) Add(config *Config) (*Job, error) {
	if config.Path == "" {
		return nil, ErrInvalidInput
	}
	threshold := s.scan.Threshold
	if config.Threshold != nil {
		if *config.Threshold < 0 {
			return nil, keyframe.ErrInvalidThreshold
		}
		threshold = *config.Threshold
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(config.ID) == 0 {
		config.ID = shortuuid.New()
	}
	if _, exists := s.jobs[config.ID]; exists {
		return nil, ErrJobExists
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now().Unix()
	j := &Job{
		ID:        config.ID,
		Reference: config.Reference,
		Video:     config.Video,
		Path:      config.Path,
		Threshold: threshold,
		CreatedAt: now,
		state:     StateQueued,
		updatedAt: now,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.jobs[j.ID] = j

	go s.run(ctx, j)
	return j, nil
}

// recordingOpener keeps the opened source on the job so its decoder can be inspected
type recordingOpener struct {
	keyframe.Opener
	job *Job
}

func (o recordingOpener) Open(ctx context.Context, path string) (keyframe.Source, error) {
	src, err := o.Opener.Open(ctx, path)
	if err == nil {
		o.job.setSource(src)
	}
	return src, err
}

func (s *store) run(ctx context.Context, j *Job) {
	defer j.cancel()

	metrics.ActiveJobs.Inc()
	defer metrics.ActiveJobs.Dec()
	start := time.Now()

	j.setState(StateRunning)
	s.logger.Info("job %s: scanning %s (threshold %d)", j.ID, j.Video, j.Threshold)

	opts := s.scan
	opts.Threshold = j.Threshold
	res, err := keyframe.ScanPath(ctx, recordingOpener{Opener: s.opener, job: j}, j.Path, s.output.Sink(j.ID), opts)

	state := StateFinished
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		state = StateCancelled
	default:
		state = StateFailed
	}

	metrics.JobsTotal.WithLabelValues(string(state)).Inc()
	metrics.JobDuration.Observe(time.Since(start).Seconds())
	if res != nil {
		metrics.FramesScannedTotal.Add(float64(res.FramesScanned))
		metrics.KeyframesTotal.Add(float64(res.Count()))
	}

	if err != nil {
		s.logger.Error("job %s %s after %d keyframes: %v", j.ID, state, res.Count(), err)
	} else {
		s.logger.Info("job %s finished: %d keyframes in %s", j.ID, res.Count(), time.Since(start))
	}

	j.finish(state, res, err)
	if s.onDone != nil {
		s.onDone(j)
	}
	close(j.done)
}

func (s *store) Get(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j, nil
}

func (s *store) List(ids []string, reference string) []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Job
	for _, j := range s.jobs {
		if len(reference) > 0 && j.Reference != reference {
			continue
		}
		if len(ids) > 0 {
			found := false
			for _, id := range ids {
				if j.ID == id {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		out = append(out, j)
	}
	sortJobs(out)
	return out
}

// Cancel stops a running job; keyframes already emitted are kept
func (s *store) Cancel(id string) error {
	j, err := s.Get(id)
	if err != nil {
		return err
	}
	if j.State().IsDone() {
		return ErrNotRunning
	}
	j.cancel()
	return nil
}

// Delete cancels the job, waits for it and removes its persisted keyframes
func (s *store) Delete(id string) error {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.jobs, id)
	s.mu.Unlock()

	j.cancel()
	<-j.done
	return s.output.Remove(context.Background(), id)
}

// oldest first, ID breaks ties
func sortJobs(jobs []*Job) {
	sort.Slice(jobs, func(a, b int) bool {
		if jobs[a].CreatedAt != jobs[b].CreatedAt {
			return jobs[a].CreatedAt < jobs[b].CreatedAt
		}
		return jobs[a].ID < jobs[b].ID
	})
}
