// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// KeyframeManager - 视频关键帧提取工具

package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ZSC714725/keyframemanager/internal/keyframe"
)

// Info describes the first video stream of a file
type Info struct {
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	FPS       float64 `json:"fps"`
	RateRaw   string  `json:"rate"`
	Codec     string  `json:"codec"`
	NumFrames int64   `json:"nb_frames"`
}

type probeOutput struct {
	Streams []struct {
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbFrames     string `json:"nb_frames"`
	} `json:"streams"`
}

func (f *ffmpeg) Probe(ctx context.Context, path string) (Info, error) {
	cmd := exec.CommandContext(ctx, f.probe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name,width,height,r_frame_rate,avg_frame_rate,nb_frames",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
			return Info{}, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return Info{}, fmt.Errorf("ffprobe: %w", err)
	}
	return parseProbe(out)
}

func parseProbe(data []byte) (Info, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Info{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return Info{}, ErrNoVideoStream
	}

	s := out.Streams[0]
	info := Info{
		Width:   s.Width,
		Height:  s.Height,
		Codec:   s.CodecName,
		RateRaw: s.RFrameRate,
	}
	if info.Width <= 0 || info.Height <= 0 {
		return info, fmt.Errorf("%w: %dx%d", ErrNoVideoStream, info.Width, info.Height)
	}
	if n, err := strconv.ParseInt(s.NbFrames, 10, 64); err == nil {
		info.NumFrames = n
	}

	fps, err := ParseRate(s.RFrameRate)
	if err != nil {
		fps, err = ParseRate(s.AvgFrameRate)
		info.RateRaw = s.AvgFrameRate
	}
	if err == nil {
		info.FPS = fps
	}
	return info, nil
}

// ParseRate parses an ffprobe rational such as 30000/1001 or a plain number.
func ParseRate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", keyframe.ErrInvalidFrameRate, s)
	}
	d := 1.0
	if found {
		d, err = strconv.ParseFloat(den, 64)
		if err != nil || d == 0 {
			return 0, fmt.Errorf("%w: %q", keyframe.ErrInvalidFrameRate, s)
		}
	}
	fps := n / d
	if err := keyframe.ValidateFrameRate(fps); err != nil {
		return 0, err
	}
	return fps, nil
}
