// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// KeyframeManager - 视频关键帧提取工具
//
// Package keyframe detects scene changes in a decoded frame stream and
// persists the frames where the picture changed.

package keyframe

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"time"

	"github.com/ZSC714725/keyframemanager/internal/logger"
)

// DefaultScale turns a threshold into a pixel count: a threshold of 30
// requires more than 30000 changed pixels for a cut.
const DefaultScale = 1000

// DefaultThreshold is the sensitivity used when none is configured
const DefaultThreshold = 30

// Source yields decoded frames in presentation order.
// Next returns io.EOF once the stream is exhausted.
type Source interface {
	Next(ctx context.Context) (image.Image, error)
	FrameRate() (float64, error)
	Close() error
}

// Opener opens a Source for a path
type Opener interface {
	Open(ctx context.Context, path string) (Source, error)
}

// Sink stores the image data of an emitted keyframe under name.
type Sink interface {
	Persist(ctx context.Context, frame image.Image, name string) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, frame image.Image, name string) error

func (f SinkFunc) Persist(ctx context.Context, frame image.Image, name string) error {
	return f(ctx, frame, name)
}

// PersistPolicy decides what a failed Persist does to the scan
type PersistPolicy string

const (
	AbortOnPersistFailure PersistPolicy = "abort"
	SkipOnPersistFailure  PersistPolicy = "skip"
)

// ReferencePolicy selects the frame every new frame is compared with.
// ComparePrevious misses slow drift below the threshold; CompareLastKeyframe
// accumulates it until it crosses.
type ReferencePolicy string

const (
	ComparePrevious     ReferencePolicy = "previous"
	CompareLastKeyframe ReferencePolicy = "keyframe"
)

// Options for a scan
type Options struct {
	Threshold int
	Scale     int
	Policy    PersistPolicy
	Reference ReferencePolicy
	Ext       string
	Path      string
	Logger    logger.Logger
}

func (o Options) cutoff() int {
	scale := o.Scale
	if scale <= 0 {
		scale = DefaultScale
	}
	// saturate instead of wrapping
	if o.Threshold > math.MaxInt/scale {
		return math.MaxInt
	}
	return o.Threshold * scale
}

// Keyframe is one detected scene change. FrameNumber is the frame counter
// at emission, which trails the decode position of the stored frame by one;
// Timestamp is FrameNumber/fps.
type Keyframe struct {
	Index       int
	FileName    string
	FrameNumber int
	Timestamp   time.Duration
}

// Result is the ordered output of a scan
type Result struct {
	Keyframes     []Keyframe
	FramesScanned int
	FPS           float64
}

// Count returns the number of emitted keyframes
func (r *Result) Count() int {
	if r == nil {
		return 0
	}
	return len(r.Keyframes)
}

// ValidateFrameRate rejects zero, negative and non-finite rates.
func ValidateFrameRate(fps float64) error {
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidFrameRate, fps)
	}
	return nil
}

// Scan reads src to the end and persists every frame whose difference score
// against its reference exceeds the cutoff. On cancellation or a mid-stream
// failure the keyframes emitted so far are returned along with the error.
func Scan(ctx context.Context, src Source, sink Sink, opts Options) (*Result, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	if opts.Threshold < 0 {
		return nil, wrap(opts.Path, StageProbe, ErrInvalidThreshold)
	}
	if opts.Policy == "" {
		opts.Policy = AbortOnPersistFailure
	}

	fps, err := src.FrameRate()
	if err != nil {
		if !errors.Is(err, ErrInvalidFrameRate) {
			err = fmt.Errorf("%w: %v", ErrInvalidFrameRate, err)
		}
		return nil, wrap(opts.Path, StageProbe, err)
	}
	if err := ValidateFrameRate(fps); err != nil {
		return nil, wrap(opts.Path, StageProbe, err)
	}

	first, err := src.Next(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, wrap(opts.Path, StageDecode, fmt.Errorf("%w: %v", ErrEmptyStream, err))
	}

	res := &Result{FPS: fps, FramesScanned: 1, Keyframes: []Keyframe{}}
	cutoff := opts.cutoff()
	prev := ToGray(first, nil)
	var cur *Gray

	// counter starts at 0 with frame 0 and advances after each comparison,
	// so the frame decoded at position k is stamped (k-1)/fps
	for counter := 0; ; counter++ {
		if err := ctx.Err(); err != nil {
			log.Info("scan %s cancelled after %d frames, %d keyframes", opts.Path, res.FramesScanned, res.Count())
			return res, err
		}

		img, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			return res, wrap(opts.Path, StageDecode, err)
		}
		res.FramesScanned++

		cur = ToGray(img, cur)
		score, err := Score(prev, cur)
		if err != nil {
			return res, wrap(opts.Path, StageCompare,
				fmt.Errorf("%w: %dx%d -> %dx%d", err, prev.Width, prev.Height, cur.Width, cur.Height))
		}

		emitted := false
		if score > cutoff {
			kf := Keyframe{
				Index:       res.Count() + 1,
				FrameNumber: counter,
				Timestamp:   Timestamp(counter, fps),
			}
			kf.FileName = FileName(kf.Index, opts.Ext)

			if err := sink.Persist(ctx, img, kf.FileName); err != nil {
				if opts.Policy == AbortOnPersistFailure {
					return res, wrap(opts.Path, StagePersist, fmt.Errorf("%w: %s: %v", ErrPersistFailure, kf.FileName, err))
				}
				log.Error("skip keyframe %s of %s at frame %d: %v", kf.FileName, opts.Path, counter, err)
			} else {
				res.Keyframes = append(res.Keyframes, kf)
				emitted = true
				log.Debug("keyframe %s at %s (score %d)", kf.FileName, FormatTimestamp(kf.Timestamp), score)
			}
		}

		if opts.Reference != CompareLastKeyframe || emitted {
			prev, cur = cur, prev
		}
	}

	log.Info("scan %s done: %d frames, %d keyframes", opts.Path, res.FramesScanned, res.Count())
	return res, nil
}

// ScanPath opens path with opener, scans it and closes the source.
func ScanPath(ctx context.Context, opener Opener, path string, sink Sink, opts Options) (*Result, error) {
	src, err := opener.Open(ctx, path)
	if err != nil {
		if errors.Is(err, ErrInvalidFrameRate) {
			return nil, wrap(path, StageProbe, err)
		}
		if !errors.Is(err, ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		return nil, wrap(path, StageOpen, err)
	}
	defer src.Close()

	opts.Path = path
	return Scan(ctx, src, sink, opts)
}
