// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// KeyframeManager - 视频关键帧提取工具

package ffmpeg

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
)

var (
	ErrInputName       = errors.New("invalid upload name")
	ErrInputBlocked    = errors.New("upload name is blocked")
	ErrInputNotAllowed = errors.New("unsupported video type, upload an MP4 or MOV file")
)

// DefaultInputAllow accepts the containers the upload endpoint takes
var DefaultInputAllow = []string{`(?i)\.(mp4|mov)$`}

// UploadFilter decides which uploaded file names are handed to the decoder.
// Names are reduced to their base name before matching; block wins over allow.
type UploadFilter struct {
	allow []*regexp.Regexp
	block []*regexp.Regexp
}

// NewUploadFilter compiles the allow and block expressions. An empty allow
// list falls back to DefaultInputAllow.
func NewUploadFilter(allow, block []string) (*UploadFilter, error) {
	if len(allow) == 0 {
		allow = DefaultInputAllow
	}
	a, err := compileAll(allow)
	if err != nil {
		return nil, fmt.Errorf("allow: %w", err)
	}
	b, err := compileAll(block)
	if err != nil {
		return nil, fmt.Errorf("block: %w", err)
	}
	return &UploadFilter{allow: a, block: b}, nil
}

func compileAll(exps []string) ([]*regexp.Regexp, error) {
	var out []*regexp.Regexp
	for _, exp := range exps {
		if exp = strings.TrimSpace(exp); exp == "" {
			continue
		}
		re, err := regexp.Compile(exp)
		if err != nil {
			return nil, fmt.Errorf("expression %q: %w", exp, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Check returns nil when name may be decoded, or the reason it may not.
func (f *UploadFilter) Check(name string) error {
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "" || base == "." || base == "/" || strings.HasPrefix(base, ".") {
		return fmt.Errorf("%w: %q", ErrInputName, name)
	}

	for _, re := range f.block {
		if re.MatchString(base) {
			return fmt.Errorf("%w: %s matches %s", ErrInputBlocked, base, re)
		}
	}
	for _, re := range f.allow {
		if re.MatchString(base) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrInputNotAllowed, base)
}
