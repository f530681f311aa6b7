// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// KeyframeManager - 视频关键帧提取工具

package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"github.com/ZSC714725/keyframemanager/internal/ffmpeg/parse"
	"github.com/ZSC714725/keyframemanager/internal/ffmpeg/skills"
	"github.com/ZSC714725/keyframemanager/internal/keyframe"
	"github.com/ZSC714725/keyframemanager/internal/logger"
	"github.com/ZSC714725/keyframemanager/internal/process"
)

var ErrNoVideoStream = errors.New("no video stream")

// FFmpeg opens video files as keyframe sources and reports what the binary supports
type FFmpeg interface {
	keyframe.Opener
	Probe(ctx context.Context, path string) (Info, error)
	NewParser() parse.Parser
	CheckInput(name string) error
	Skills() skills.Skills
	ReloadSkills() error
}

// Config for FFmpeg
type Config struct {
	Binary         string
	ProbeBinary    string
	MaxLogLines    int
	Inputs         *UploadFilter
	SampleProcess  bool
	Logger         logger.Logger
}

type ffmpeg struct {
	binary      string
	probe       string
	inputs      *UploadFilter
	skills      skills.Skills
	logLines    int
	sample      bool
	logger      logger.Logger
	skillsLock  sync.RWMutex
}

// New creates FFmpeg
func New(config Config) (FFmpeg, error) {
	binary, err := exec.LookPath(config.Binary)
	if err != nil {
		return nil, fmt.Errorf("invalid ffmpeg binary: %w", err)
	}
	probe, err := exec.LookPath(config.ProbeBinary)
	if err != nil {
		return nil, fmt.Errorf("invalid ffprobe binary: %w", err)
	}

	f := &ffmpeg{
		binary:   binary,
		probe:    probe,
		logLines: config.MaxLogLines,
		sample:   config.SampleProcess,
		logger:   config.Logger,
	}

	if f.logLines <= 0 {
		f.logLines = 100
	}
	if f.logger == nil {
		f.logger = logger.Nop()
	}

	if config.Inputs != nil {
		f.inputs = config.Inputs
	} else {
		f.inputs, _ = NewUploadFilter(nil, nil)
	}

	s, err := skills.New(f.binary)
	if err != nil {
		return nil, fmt.Errorf("invalid ffmpeg: %w", err)
	}
	f.skills = s

	return f, nil
}

func (f *ffmpeg) NewParser() parse.Parser {
	return parse.New(parse.Config{LogLines: f.logLines})
}

func (f *ffmpeg) newSampler() process.Sampler {
	if f.sample {
		return process.NewSysSampler()
	}
	return process.NewNullSampler()
}

func (f *ffmpeg) CheckInput(name string) error {
	return f.inputs.Check(name)
}

func (f *ffmpeg) Skills() skills.Skills {
	f.skillsLock.RLock()
	defer f.skillsLock.RUnlock()
	return f.skills
}

func (f *ffmpeg) ReloadSkills() error {
	s, err := skills.New(f.binary)
	if err != nil {
		return fmt.Errorf("reload skills: %w", err)
	}
	f.skillsLock.Lock()
	f.skills = s
	f.skillsLock.Unlock()
	return nil
}
