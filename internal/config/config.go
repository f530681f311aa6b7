// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// KeyframeManager - 视频关键帧提取工具

package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	FFmpeg  FFmpegConfig  `yaml:"ffmpeg"`
	Scan    ScanConfig    `yaml:"scan"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	Bind           string `yaml:"bind" env:"KFM_BIND"`
	UploadDir      string `yaml:"upload_dir" env:"KFM_UPLOAD_DIR"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes" env:"KFM_MAX_UPLOAD_BYTES"`
	KeepUploads    bool   `yaml:"keep_uploads" env:"KFM_KEEP_UPLOADS"`
}

// FFmpegConfig FFmpeg 配置
type FFmpegConfig struct {
	Path        string   `yaml:"path" env:"KFM_FFMPEG"`
	ProbePath   string   `yaml:"probe_path" env:"KFM_FFPROBE"`
	MaxLogLines int      `yaml:"max_log_lines" env:"KFM_FFMPEG_LOG_LINES"`
	Allow       []string `yaml:"allow" env:"KFM_ALLOW" envSeparator:","`
	Block       []string `yaml:"block" env:"KFM_BLOCK" envSeparator:","`
	Sample      bool     `yaml:"sample_process" env:"KFM_SAMPLE_PROCESS"`
}

// ScanConfig 场景检测配置
type ScanConfig struct {
	Threshold     int    `yaml:"threshold" env:"KFM_THRESHOLD"`
	Scale         int    `yaml:"scale" env:"KFM_SCALE"`
	PersistPolicy string `yaml:"persist_policy" env:"KFM_PERSIST_POLICY"`
	Reference     string `yaml:"reference" env:"KFM_REFERENCE"`
	Ext           string `yaml:"ext" env:"KFM_EXT"`
}

// StorageConfig 关键帧存储配置
type StorageConfig struct {
	Driver  string      `yaml:"driver" env:"KFM_STORAGE"`
	Dir     string      `yaml:"dir" env:"KFM_OUTPUT_DIR"`
	BaseURL string      `yaml:"base_url" env:"KFM_BASE_URL"`
	Quality int         `yaml:"quality" env:"KFM_JPEG_QUALITY"`
	Minio   MinioConfig `yaml:"minio"`
}

// MinioConfig 对象存储配置
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint" env:"MINIO_ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"MINIO_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"MINIO_SECRET_KEY"`
	UseSSL    bool   `yaml:"use_ssl" env:"MINIO_USE_SSL"`
	Bucket    string `yaml:"bucket" env:"MINIO_BUCKET"`
	Prefix    string `yaml:"prefix" env:"MINIO_PREFIX"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `yaml:"level" env:"KFM_LOG_LEVEL"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Bind:           ":8080",
			UploadDir:      "sample_videos",
			MaxUploadBytes: 2 << 30,
		},
		FFmpeg: FFmpegConfig{Path: "ffmpeg", ProbePath: "ffprobe", MaxLogLines: 100},
		Scan: ScanConfig{
			Threshold:     30,
			Scale:         1000,
			PersistPolicy: "abort",
			Reference:     "previous",
			Ext:           "jpg",
		},
		Storage: StorageConfig{
			Driver:  "dir",
			Dir:     "outputs",
			BaseURL: "/outputs",
			Quality: 90,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load 从 YAML 文件加载配置，再用环境变量覆盖
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.fill()
	return cfg, cfg.Validate()
}

// 填充空值
func (c *Config) fill() {
	def := Default()
	if c.Server.Bind == "" {
		c.Server.Bind = def.Server.Bind
	}
	if c.Server.UploadDir == "" {
		c.Server.UploadDir = def.Server.UploadDir
	}
	if c.FFmpeg.Path == "" {
		c.FFmpeg.Path = def.FFmpeg.Path
	}
	if c.FFmpeg.ProbePath == "" {
		c.FFmpeg.ProbePath = def.FFmpeg.ProbePath
	}
	if c.Scan.Scale <= 0 {
		c.Scan.Scale = def.Scan.Scale
	}
	if c.Scan.PersistPolicy == "" {
		c.Scan.PersistPolicy = def.Scan.PersistPolicy
	}
	if c.Scan.Reference == "" {
		c.Scan.Reference = def.Scan.Reference
	}
	if c.Scan.Ext == "" {
		c.Scan.Ext = def.Scan.Ext
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = def.Storage.Driver
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = def.Storage.Dir
	}
	if c.Storage.BaseURL == "" && c.Storage.Driver == "dir" {
		c.Storage.BaseURL = def.Storage.BaseURL
	}
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	if c.Scan.Threshold < 0 {
		return fmt.Errorf("scan.threshold must not be negative")
	}
	switch c.Scan.PersistPolicy {
	case "abort", "skip":
	default:
		return fmt.Errorf("scan.persist_policy must be abort or skip, got %q", c.Scan.PersistPolicy)
	}
	switch c.Scan.Reference {
	case "previous", "keyframe":
	default:
		return fmt.Errorf("scan.reference must be previous or keyframe, got %q", c.Scan.Reference)
	}
	switch c.Storage.Driver {
	case "dir":
	case "minio":
		if c.Storage.Minio.Endpoint == "" || c.Storage.Minio.Bucket == "" {
			return fmt.Errorf("storage.minio needs endpoint and bucket")
		}
	default:
		return fmt.Errorf("storage.driver must be dir or minio, got %q", c.Storage.Driver)
	}
	return nil
}
