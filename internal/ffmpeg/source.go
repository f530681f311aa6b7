// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// KeyframeManager - 视频关键帧提取工具

package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/ZSC714725/keyframemanager/internal/ffmpeg/parse"
	"github.com/ZSC714725/keyframemanager/internal/keyframe"
	"github.com/ZSC714725/keyframemanager/internal/process"
)

// Source decodes one file to raw RGBA frames through an ffmpeg child process.
// The process is started lazily by the first Next.
type Source struct {
	path   string
	info   Info
	proc   process.Process
	parser parse.Parser

	mu      sync.Mutex
	stdout  io.ReadCloser
	started bool
	done    bool
}

func (f *ffmpeg) Open(ctx context.Context, path string) (keyframe.Source, error) {
	info, err := f.Probe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", keyframe.ErrSourceUnavailable, err)
	}

	parser := f.NewParser()
	proc, err := process.New(process.Config{
		Binary:  f.binary,
		Args:    decodeArgs(path),
		Parser:  parser,
		Sampler: f.newSampler(),
		Logger:  f.logger,
		OnStateChange: func(from, to string) {
			f.logger.Debug("decoder %s state %s -> %s", path, from, to)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", keyframe.ErrSourceUnavailable, err)
	}

	return &Source{path: path, info: info, proc: proc, parser: parser}, nil
}

// decodeArgs keeps the coded orientation: frames must match the probed
// width and height, which ignore rotation side data.
func decodeArgs(path string) []string {
	return []string{
		"-nostdin", "-hide_banner",
		"-v", "error",
		"-nostats", "-progress", "pipe:2",
		"-noautorotate",
		"-i", path,
		"-map", "0:v:0",
		"-an", "-sn",
		"-fps_mode", "passthrough",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	}
}

// Info returns the probed stream description
func (s *Source) Info() Info { return s.info }

// FrameRate returns the probed rate or keyframe.ErrInvalidFrameRate
func (s *Source) FrameRate() (float64, error) {
	if err := keyframe.ValidateFrameRate(s.info.FPS); err != nil {
		if s.info.RateRaw != "" {
			return 0, fmt.Errorf("%w: %q", keyframe.ErrInvalidFrameRate, s.info.RateRaw)
		}
		return 0, err
	}
	return s.info.FPS, nil
}

// Next reads one frame. A short trailing frame counts as end of stream.
func (s *Source) Next(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.started {
		stdout, err := s.proc.Start(ctx)
		if err != nil {
			s.done = true
			return nil, fmt.Errorf("start decoder: %w", err)
		}
		s.stdout = stdout
		s.started = true
	}

	img := image.NewRGBA(image.Rect(0, 0, s.info.Width, s.info.Height))
	_, err := io.ReadFull(s.stdout, img.Pix)
	if err == nil {
		return img, nil
	}

	s.done = true
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		if werr := s.proc.Wait(); werr != nil {
			return nil, werr
		}
		return nil, io.EOF
	}
	s.proc.Kill()
	s.proc.Wait()
	return nil, err
}

// Status reports the decoder process state
func (s *Source) Status() process.Status {
	return s.proc.Status()
}

// Progress reports what ffmpeg printed about its progress
func (s *Source) Progress() parse.Progress {
	return s.parser.Progress()
}

// Log returns the decoder's recent stderr lines
func (s *Source) Log() []process.Line {
	return s.parser.Log()
}

// Close stops the decoder if the stream was not read to the end.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.done = true
		return nil
	}
	if !s.done {
		s.done = true
		if err := s.proc.Kill(); err != nil {
			return err
		}
	}
	err := s.proc.Wait()
	if err == process.ErrNotStarted {
		return nil
	}
	return err
}
