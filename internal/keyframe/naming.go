// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// KeyframeManager - 视频关键帧提取工具

package keyframe

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DefaultExt is the image extension of persisted keyframes
const DefaultExt = "jpg"

// FileName returns keyframe_<index>.<ext>. Other tools rely on this pattern.
func FileName(index int, ext string) string {
	if ext == "" {
		ext = DefaultExt
	}
	return fmt.Sprintf("keyframe_%d.%s", index, strings.TrimPrefix(ext, "."))
}

// Timestamp converts a decode position to the time since stream start,
// rounded to the microsecond.
func Timestamp(frame int, fps float64) time.Duration {
	us := math.Round(float64(frame) / fps * 1e6)
	return time.Duration(us) * time.Microsecond
}

// FormatTimestamp renders d as H:MM:SS, with a six digit fraction when d is
// not a whole second, e.g. 0:00:05 or 0:01:02.500000.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	us := d.Microseconds()
	sec := us / 1e6
	frac := us % 1e6

	s := fmt.Sprintf("%d:%02d:%02d", sec/3600, sec/60%60, sec%60)
	if frac != 0 {
		s += fmt.Sprintf(".%06d", frac)
	}
	return s
}
