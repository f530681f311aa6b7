// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// KeyframeManager - 视频关键帧提取工具

package process

import "time"

// Parser consumes the decoder's stderr line by line
type Parser interface {
	Parse(line string) uint64
	ResetStats()
	ResetLog()
	Log() []Line
}

// Line is a timestamped log line
type Line struct {
	Timestamp time.Time
	Data      string
}

// LastLine returns the most recent line, or "" for an empty log
func LastLine(p Parser) string {
	lines := p.Log()
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1].Data
}
