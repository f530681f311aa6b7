// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// KeyframeManager - 视频关键帧提取工具

package storage

import (
	"context"
	"fmt"
	"image"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ZSC714725/keyframemanager/internal/keyframe"
)

// Dir stores keyframes as files under Root/<prefix>/ and serves them from BaseURL.
type Dir struct {
	Root    string
	BaseURL string
	Quality int
}

// NewDir creates root if needed
func NewDir(root, baseURL string, quality int) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Dir{Root: root, BaseURL: strings.TrimSuffix(baseURL, "/"), Quality: quality}, nil
}

func (d *Dir) Sink(prefix string) keyframe.Sink {
	return keyframe.SinkFunc(func(ctx context.Context, frame image.Image, name string) error {
		return d.persist(ctx, prefix, frame, name)
	})
}

func (d *Dir) persist(ctx context.Context, prefix string, frame image.Image, name string) error {
	if err := checkName(name); err != nil {
		return fmt.Errorf("%w: %q", err, name)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Join(d.Root, prefix)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, _, err := Encode(frame, name, d.Quality)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	// 先写临时文件再改名，避免读到半截图片
	tmp := filepath.Join(dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, name))
}

func (d *Dir) URL(prefix, name string) string {
	return d.BaseURL + "/" + path.Join(prefix, name)
}

func (d *Dir) Prefixes(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var prefixes []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			prefixes = append(prefixes, e.Name())
		}
	}
	sort.Strings(prefixes)
	return prefixes, nil
}

func (d *Dir) List(ctx context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(d.Root, prefix))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	SortNames(names)
	return names, nil
}

func (d *Dir) Remove(ctx context.Context, prefix string) error {
	if err := checkPrefix(prefix); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(d.Root, prefix))
}
