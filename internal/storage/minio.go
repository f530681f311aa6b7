// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// KeyframeManager - 视频关键帧提取工具

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"path"
	"sort"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ZSC714725/keyframemanager/internal/keyframe"
)

// MinioConfig for the object store sink
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Prefix    string
	BaseURL   string
	Quality   int
}

// Minio stores keyframes as objects <Prefix>/<prefix>/<name> in one bucket.
type Minio struct {
	client *miniogo.Client
	cfg    MinioConfig
}

func NewMinio(cfg MinioConfig) (*Minio, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	if cfg.BaseURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		cfg.BaseURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &Minio{client: client, cfg: cfg}, nil
}

// EnsureBucket creates the bucket when it does not exist yet
func (m *Minio) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.cfg.Bucket, err)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, m.cfg.Bucket, miniogo.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", m.cfg.Bucket, err)
		}
	}
	return nil
}

func (m *Minio) key(prefix, name string) string {
	return path.Join(m.cfg.Prefix, prefix, name)
}

func (m *Minio) Sink(prefix string) keyframe.Sink {
	return keyframe.SinkFunc(func(ctx context.Context, frame image.Image, name string) error {
		if err := checkName(name); err != nil {
			return fmt.Errorf("%w: %q", err, name)
		}
		data, contentType, err := Encode(frame, name, m.cfg.Quality)
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		_, err = m.client.PutObject(ctx, m.cfg.Bucket, m.key(prefix, name), bytes.NewReader(data), int64(len(data)), miniogo.PutObjectOptions{
			ContentType: contentType,
		})
		if err != nil {
			return fmt.Errorf("upload %s: %w", name, err)
		}
		return nil
	})
}

func (m *Minio) URL(prefix, name string) string {
	return m.cfg.BaseURL + "/" + m.key(prefix, name)
}

func (m *Minio) root() string {
	if m.cfg.Prefix == "" {
		return ""
	}
	return strings.TrimSuffix(m.cfg.Prefix, "/") + "/"
}

func (m *Minio) Prefixes(ctx context.Context) ([]string, error) {
	var prefixes []string
	// non recursive listing returns one entry per common prefix
	for obj := range m.client.ListObjects(ctx, m.cfg.Bucket, miniogo.ListObjectsOptions{
		Prefix: m.root(),
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if !strings.HasSuffix(obj.Key, "/") {
			continue
		}
		prefixes = append(prefixes, path.Base(obj.Key))
	}
	sort.Strings(prefixes)
	return prefixes, nil
}

func (m *Minio) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	for obj := range m.client.ListObjects(ctx, m.cfg.Bucket, miniogo.ListObjectsOptions{
		Prefix:    m.key(prefix, "") + "/",
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		names = append(names, path.Base(obj.Key))
	}
	SortNames(names)
	return names, nil
}

func (m *Minio) Remove(ctx context.Context, prefix string) error {
	if err := checkPrefix(prefix); err != nil {
		return err
	}
	objects := m.client.ListObjects(ctx, m.cfg.Bucket, miniogo.ListObjectsOptions{
		Prefix:    m.key(prefix, "") + "/",
		Recursive: true,
	})
	// RemoveObjects stops its producer only once the result channel is drained
	var errs []error
	for rerr := range m.client.RemoveObjects(ctx, m.cfg.Bucket, objects, miniogo.RemoveObjectsOptions{}) {
		if rerr.Err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", rerr.ObjectName, rerr.Err))
		}
	}
	return errors.Join(errs...)
}
