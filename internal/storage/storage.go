// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// KeyframeManager - 视频关键帧提取工具
//
// Package storage persists keyframe images to a directory or an object store.

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"path"
	"sort"
	"strings"

	"github.com/ZSC714725/keyframemanager/internal/keyframe"
)

// DefaultQuality is the JPEG quality used when none is configured
const DefaultQuality = 90

var ErrInvalidName = errors.New("invalid keyframe name")

// Store hands out one keyframe.Sink per job and resolves URLs of what it stored.
// Prefixes lists every job that has keyframes stored, including those of
// earlier runs of the service.
type Store interface {
	Sink(prefix string) keyframe.Sink
	URL(prefix, name string) string
	Prefixes(ctx context.Context) ([]string, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Remove(ctx context.Context, prefix string) error
}

// Encode renders img in the format implied by name's extension.
func Encode(img image.Image, name string, quality int) ([]byte, string, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	var buf bytes.Buffer
	switch strings.ToLower(path.Ext(name)) {
	case ".png":
		if err := png.Encode(&buf, img); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "image/png", nil
	default:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "image/jpeg", nil
	}
}

func checkName(name string) error {
	if name == "" || name != path.Base(name) || strings.HasPrefix(name, ".") {
		return ErrInvalidName
	}
	return nil
}

// checkPrefix guards Remove against wiping the whole store or leaving it
func checkPrefix(prefix string) error {
	if prefix == "" || strings.HasPrefix(prefix, ".") || prefix != path.Base(prefix) {
		return fmt.Errorf("%w: prefix %q", ErrInvalidName, prefix)
	}
	return nil
}

// SortNames orders keyframe_<n> names by n, so keyframe_2 precedes keyframe_10.
func SortNames(names []string) {
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) < len(names[j])
		}
		return names[i] < names[j]
	})
}
