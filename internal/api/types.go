// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// KeyframeManager - 视频关键帧提取工具

package api

// Frame is one keyframe in API responses
type Frame struct {
	Index     int     `json:"index"`
	File      string  `json:"file"`
	Timestamp string  `json:"timestamp"`
	Seconds   float64 `json:"seconds"`
	Frame     int     `json:"frame"`
	URL       string  `json:"url"`
}

// ExtractResponse is returned by the synchronous upload endpoint
type ExtractResponse struct {
	Video              string  `json:"video"`
	JobID              string  `json:"job_id"`
	KeyframesExtracted int     `json:"keyframes_extracted"`
	Frames             []Frame `json:"frames"`
}

// Job represents an extraction job in API responses
type Job struct {
	ID                 string        `json:"id"`
	Reference          string        `json:"reference"`
	Video              string        `json:"video"`
	State              string        `json:"state"`
	Threshold          int           `json:"threshold"`
	CreatedAt          int64         `json:"created_at"`
	UpdatedAt          int64         `json:"updated_at"`
	Error              string        `json:"error,omitempty"`
	FPS                float64       `json:"fps,omitempty"`
	FramesScanned      int           `json:"frames_scanned"`
	KeyframesExtracted int           `json:"keyframes_extracted"`
	Frames             []Frame       `json:"frames"`
	Decoder            *DecoderState `json:"decoder,omitempty"`
}

// DecoderState describes the ffmpeg process behind a job
type DecoderState struct {
	State      string    `json:"exec"`
	Runtime    int64     `json:"runtime_seconds"`
	CPU        float64   `json:"cpu_usage"`
	Memory     uint64    `json:"memory_bytes"`
	PeakMemory uint64    `json:"peak_memory_bytes"`
	Progress   *Progress `json:"progress"`
}

// Progress from the ffmpeg parser
type Progress struct {
	Frame uint64  `json:"frame"`
	Time  float64 `json:"time_seconds"`
	Speed float64 `json:"speed"`
	Drop  uint64  `json:"drop"`
	Dup   uint64  `json:"dup"`
}

// JobReport carries the decoder log
type JobReport struct {
	Log [][2]string `json:"log"`
}

// CommandRequest for cancel
type CommandRequest struct {
	Command string `json:"command" binding:"required"`
}

// SkillsResponse for API
type SkillsResponse struct {
	Version   string        `json:"version"`
	Libraries []SkillsLib   `json:"libraries"`
	Decoders  []SkillsCodec `json:"decoders"`
	Demuxers  []SkillsID    `json:"demuxers"`
}

type SkillsLib struct {
	Name     string `json:"name"`
	Compiled string `json:"compiled"`
	Linked   string `json:"linked"`
}

type SkillsCodec struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Decoders []string `json:"decoders"`
}

type SkillsID struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ErrorResponse for API errors
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}
