// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// KeyframeManager - 视频关键帧提取工具

package skills

import (
	"bufio"
	"bytes"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// Codec is a video codec the binary can decode
type Codec struct {
	ID       string
	Name     string
	Decoders []string
}

// Format is a container the binary can demux
type Format struct {
	ID   string
	Name string
}

// Library is a linked av library
type Library struct {
	Name     string
	Compiled string
	Linked   string
}

// Skills are the decoding capabilities of an ffmpeg binary
type Skills struct {
	Version   string
	Libraries []Library
	Decoders  []Codec
	Demuxers  []Format
}

// CanDemux reports whether one of the demuxers handles the named format.
func (s Skills) CanDemux(id string) bool {
	for _, f := range s.Demuxers {
		if f.ID == id {
			return true
		}
	}
	return false
}

var (
	reVersion = regexp.MustCompile(`^ffmpeg version n?([0-9]+\.[0-9]+(\.[0-9]+)?)`)
	reLibrary = regexp.MustCompile(`(?m)^\s*(lib(?:[a-z]+))\s+([0-9]+\.\s*[0-9]+\.\s*[0-9]+) /\s+([0-9]+\.\s*[0-9]+\.\s*[0-9]+)`)
	reCodec   = regexp.MustCompile(`^\s([D.])([E.])([VAS]).{3} ([0-9A-Za-z_]+)\s+(.*?)(?:\(decoders:([^\)]+)\))?\s?(?:\(encoders:([^\)]+)\))?$`)
	reFormat  = regexp.MustCompile(`^\s([D ])([E ]) ([0-9A-Za-z_,]+)\s+(.*?)$`)
)

// New probes binary for its version, video decoders and demuxers
func New(binary string) (Skills, error) {
	out, err := run(binary, "-version")
	if err != nil {
		return Skills{}, fmt.Errorf("can't run ffmpeg: %w", err)
	}

	s := parseVersion(out)
	if s.Version == "" {
		return Skills{}, fmt.Errorf("can't parse ffmpeg version")
	}

	if out, err := run(binary, "-codecs"); err == nil {
		s.Decoders = parseDecoders(out)
	}
	if out, err := run(binary, "-formats"); err == nil {
		s.Demuxers = parseDemuxers(out)
	}
	return s, nil
}

func run(binary string, args ...string) ([]byte, error) {
	cmd := exec.Command(binary, args...)
	cmd.Env = []string{}
	return cmd.Output()
}

func parseVersion(data []byte) Skills {
	s := Skills{}
	if m := reVersion.FindSubmatch(data); m != nil {
		s.Version = string(m[1])
		if len(m[2]) == 0 {
			s.Version += ".0"
		}
	}
	for _, m := range reLibrary.FindAllSubmatch(data, -1) {
		s.Libraries = append(s.Libraries, Library{
			Name:     string(m[1]),
			Compiled: string(m[2]),
			Linked:   string(m[3]),
		})
	}
	return s
}

func parseDecoders(data []byte) []Codec {
	var codecs []Codec
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		m := reCodec.FindStringSubmatch(scanner.Text())
		if m == nil || m[1] != "D" || m[3] != "V" {
			continue
		}
		c := Codec{ID: m[4], Name: strings.TrimSpace(m[5])}
		if len(m[6]) == 0 {
			c.Decoders = []string{m[4]}
		} else {
			c.Decoders = strings.Fields(m[6])
		}
		codecs = append(codecs, c)
	}
	return codecs
}

func parseDemuxers(data []byte) []Format {
	var formats []Format
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		m := reFormat.FindStringSubmatch(scanner.Text())
		if m == nil || m[1] != "D" {
			continue
		}
		for _, id := range strings.Split(m[3], ",") {
			formats = append(formats, Format{ID: id, Name: m[4]})
		}
	}
	return formats
}
