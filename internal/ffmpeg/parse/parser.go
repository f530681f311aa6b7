// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// KeyframeManager - 视频关键帧提取工具

package parse

import (
	"container/ring"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ZSC714725/keyframemanager/internal/process"
)

// Progress holds decoder progress parsed from `-progress pipe:2` output
type Progress struct {
	Frame uint64  `json:"frame"`
	Time  float64 `json:"time_seconds"`
	Speed float64 `json:"speed"`
	Drop  uint64  `json:"drop"`
	Dup   uint64  `json:"dup"`
	Done  bool    `json:"done"`
}

// Parser implements process.Parser for ffmpeg stderr
type Parser interface {
	process.Parser
	Progress() Progress
}

type parser struct {
	reKeyValue *regexp.Regexp
	reLegacy   *regexp.Regexp

	log      *ring.Ring
	logLines int

	progress Progress
	lock     sync.RWMutex
}

// Config for the parser
type Config struct {
	LogLines int
}

// New creates a Parser
func New(config Config) Parser {
	p := &parser{
		logLines: config.LogLines,
	}
	if p.logLines <= 0 {
		p.logLines = 100
	}
	p.reKeyValue = regexp.MustCompile(`^([a-z_]+)=\s*(\S*)$`)
	p.reLegacy = regexp.MustCompile(`frame=\s*([0-9]+)`) // -stats 输出
	p.log = ring.New(p.logLines)
	return p
}

// Parse records one stderr line and returns the current frame count.
// Progress key=value lines update the counters and are not kept in the log.
func (p *parser) Parse(line string) uint64 {
	p.lock.Lock()
	defer p.lock.Unlock()

	m := p.reKeyValue.FindStringSubmatch(line)
	if m == nil {
		p.log.Value = process.Line{Timestamp: time.Now(), Data: line}
		p.log = p.log.Next()
		if m := p.reLegacy.FindStringSubmatch(line); m != nil {
			if x, err := strconv.ParseUint(m[1], 10, 64); err == nil {
				p.progress.Frame = x
			}
		}
		return p.progress.Frame
	}

	key, value := m[1], m[2]
	switch key {
	case "frame":
		if x, err := strconv.ParseUint(value, 10, 64); err == nil {
			p.progress.Frame = x
		}
	case "out_time_us", "out_time_ms":
		// out_time_ms 实为微秒
		if x, err := strconv.ParseInt(value, 10, 64); err == nil && x >= 0 {
			p.progress.Time = float64(x) / 1e6
		}
	case "speed":
		if x, err := strconv.ParseFloat(strings.TrimSuffix(value, "x"), 64); err == nil {
			p.progress.Speed = x
		}
	case "drop_frames":
		if x, err := strconv.ParseUint(value, 10, 64); err == nil {
			p.progress.Drop = x
		}
	case "dup_frames":
		if x, err := strconv.ParseUint(value, 10, 64); err == nil {
			p.progress.Dup = x
		}
	case "progress":
		p.progress.Done = value == "end"
	}
	return p.progress.Frame
}

func (p *parser) ResetStats() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.progress = Progress{}
}

func (p *parser) ResetLog() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.log = ring.New(p.logLines)
}

func (p *parser) Log() []process.Line {
	var out []process.Line
	p.lock.RLock()
	p.log.Do(func(v interface{}) {
		if v != nil {
			out = append(out, v.(process.Line))
		}
	})
	p.lock.RUnlock()
	return out
}

func (p *parser) Progress() Progress {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.progress
}
