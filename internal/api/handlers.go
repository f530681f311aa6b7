// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// KeyframeManager - 视频关键帧提取工具

package api

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lithammer/shortuuid/v4"

	"github.com/ZSC714725/keyframemanager/internal/ffmpeg/skills"
	"github.com/ZSC714725/keyframemanager/internal/job"
	"github.com/ZSC714725/keyframemanager/internal/keyframe"
	"github.com/ZSC714725/keyframemanager/internal/metrics"
)

// Decoder is what the handlers need from the ffmpeg layer
type Decoder interface {
	CheckInput(name string) error
	Skills() skills.Skills
	ReloadSkills() error
}

// Config for the handler
type Config struct {
	UploadDir      string
	MaxUploadBytes int64
}

// Handler holds dependencies
type Handler struct {
	store   job.Store
	decoder Decoder
	config  Config
}

// NewHandler creates API handler
func NewHandler(store job.Store, decoder Decoder, config Config) (*Handler, error) {
	if config.UploadDir == "" {
		config.UploadDir = "sample_videos"
	}
	if err := os.MkdirAll(config.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Handler{store: store, decoder: decoder, config: config}, nil
}

func errResp(c *gin.Context, code int, msg, detail string) {
	c.JSON(code, ErrorResponse{Code: code, Message: msg, Detail: detail})
}

// Home GET /
func (h *Handler) Home(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Welcome to the Video Keyframe Extraction API. " +
			"POST a video to /extract_keyframes/ or /api/v1/jobs and open /preview to see the results.",
	})
}

// upload stores the multipart "file" field and registers a job for it.
// It writes the error response itself and returns nil on failure.
func (h *Handler) upload(c *gin.Context) *job.Job {
	fh, err := c.FormFile("file")
	if err != nil {
		errResp(c, http.StatusBadRequest, "Missing file", err.Error())
		return nil
	}

	name := filepath.Base(fh.Filename)
	if err := h.decoder.CheckInput(name); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid file type. Please upload an MP4 or MOV video.", err.Error())
		return nil
	}
	if h.config.MaxUploadBytes > 0 && fh.Size > h.config.MaxUploadBytes {
		errResp(c, http.StatusRequestEntityTooLarge, "File too large",
			fmt.Sprintf("%d bytes exceeds the limit of %d", fh.Size, h.config.MaxUploadBytes))
		return nil
	}

	cfg := &job.Config{
		ID:        shortuuid.New(),
		Reference: c.PostForm("reference"),
		Video:     name,
	}
	if v := strings.TrimSpace(c.PostForm("threshold")); v != "" {
		th, err := strconv.Atoi(v)
		if err != nil || th < 0 {
			errResp(c, http.StatusBadRequest, "Invalid threshold", "threshold must be a non-negative integer")
			return nil
		}
		cfg.Threshold = &th
	}

	cfg.Path = filepath.Join(h.config.UploadDir, cfg.ID+"_"+name)
	if err := c.SaveUploadedFile(fh, cfg.Path); err != nil {
		errResp(c, http.StatusInternalServerError, "Saving upload failed", err.Error())
		return nil
	}
	metrics.UploadBytes.Add(float64(fh.Size))

	j, err := h.store.Add(cfg)
	if err != nil {
		os.Remove(cfg.Path)
		if errors.Is(err, job.ErrJobExists) || errors.Is(err, job.ErrInvalidInput) || errors.Is(err, keyframe.ErrInvalidThreshold) {
			errResp(c, http.StatusBadRequest, "Invalid job", err.Error())
			return nil
		}
		errResp(c, http.StatusInternalServerError, "Starting job failed", err.Error())
		return nil
	}
	return j
}

// ExtractKeyframes POST /extract_keyframes/
func (h *Handler) ExtractKeyframes(c *gin.Context) {
	j := h.upload(c)
	if j == nil {
		return
	}

	if err := j.Wait(c.Request.Context()); err != nil {
		// client went away
		h.store.Cancel(j.ID)
		return
	}

	if err := j.Err(); err != nil {
		errResp(c, http.StatusInternalServerError, "Error processing video", err.Error())
		return
	}

	frames := h.frames(j)
	c.JSON(http.StatusOK, ExtractResponse{
		Video:              j.Video,
		JobID:              j.ID,
		KeyframesExtracted: len(frames),
		Frames:             frames,
	})
}

// AddJob POST /api/v1/jobs
func (h *Handler) AddJob(c *gin.Context) {
	j := h.upload(c)
	if j == nil {
		return
	}
	c.JSON(http.StatusAccepted, h.jobToAPI(j))
}

// ListJobs GET /api/v1/jobs
func (h *Handler) ListJobs(c *gin.Context) {
	reference := c.DefaultQuery("reference", "")
	idStr := c.DefaultQuery("id", "")

	var ids []string
	if idStr != "" {
		ids = strings.FieldsFunc(idStr, func(r rune) bool { return r == ',' })
		for i := range ids {
			ids[i] = strings.TrimSpace(ids[i])
		}
	}

	jobs := h.store.List(ids, reference)
	out := make([]Job, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, h.jobToAPI(j))
	}
	c.JSON(http.StatusOK, out)
}

// GetJob GET /api/v1/jobs/:id
func (h *Handler) GetJob(c *gin.Context) {
	j, err := h.store.Get(c.Param("id"))
	if err != nil {
		errResp(c, http.StatusNotFound, "Unknown job ID", err.Error())
		return
	}
	c.JSON(http.StatusOK, h.jobToAPI(j))
}

// GetReport GET /api/v1/jobs/:id/report
func (h *Handler) GetReport(c *gin.Context) {
	j, err := h.store.Get(c.Param("id"))
	if err != nil {
		errResp(c, http.StatusNotFound, "Unknown job ID", err.Error())
		return
	}

	report := JobReport{Log: [][2]string{}}
	if _, _, lines, ok := j.Decoder(); ok {
		for _, line := range lines {
			report.Log = append(report.Log, [2]string{
				line.Timestamp.Format("2006-01-02 15:04:05.000"),
				line.Data,
			})
		}
	}
	c.JSON(http.StatusOK, report)
}

// DeleteJob DELETE /api/v1/jobs/:id
func (h *Handler) DeleteJob(c *gin.Context) {
	id := c.Param("id")
	j, err := h.store.Get(id)
	if err != nil {
		errResp(c, http.StatusNotFound, "Unknown job ID", err.Error())
		return
	}

	if err := h.store.Delete(id); err != nil {
		errResp(c, http.StatusInternalServerError, "Delete failed", err.Error())
		return
	}
	os.Remove(j.Path)
	c.JSON(http.StatusOK, "OK")
}

// Command PUT /api/v1/jobs/:id/command
func (h *Handler) Command(c *gin.Context) {
	id := c.Param("id")

	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}

	switch req.Command {
	case "cancel":
	default:
		errResp(c, http.StatusBadRequest, "Unknown command", "Known: cancel")
		return
	}

	if err := h.store.Cancel(id); err != nil {
		if errors.Is(err, job.ErrNotFound) {
			errResp(c, http.StatusNotFound, "Unknown job ID", err.Error())
			return
		}
		errResp(c, http.StatusBadRequest, "Command failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, "OK")
}

// Skills GET /api/v1/skills
func (h *Handler) Skills(c *gin.Context) {
	c.JSON(http.StatusOK, skillsToAPI(h.decoder.Skills()))
}

// ReloadSkills POST /api/v1/skills/reload
func (h *Handler) ReloadSkills(c *gin.Context) {
	if err := h.decoder.ReloadSkills(); err != nil {
		errResp(c, http.StatusInternalServerError, "Reload failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, skillsToAPI(h.decoder.Skills()))
}

func (h *Handler) frames(j *job.Job) []Frame {
	res := j.Result()
	frames := make([]Frame, 0, res.Count())
	if res == nil {
		return frames
	}
	out := h.store.Output()
	for _, kf := range res.Keyframes {
		frames = append(frames, Frame{
			Index:     kf.Index,
			File:      kf.FileName,
			Timestamp: keyframe.FormatTimestamp(kf.Timestamp),
			Seconds:   kf.Timestamp.Seconds(),
			Frame:     kf.FrameNumber,
			URL:       out.URL(j.ID, kf.FileName),
		})
	}
	return frames
}

func (h *Handler) jobToAPI(j *job.Job) Job {
	out := Job{
		ID:        j.ID,
		Reference: j.Reference,
		Video:     j.Video,
		State:     string(j.State()),
		Threshold: j.Threshold,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt(),
		Frames:    h.frames(j),
	}
	out.KeyframesExtracted = len(out.Frames)
	if err := j.Err(); err != nil {
		out.Error = err.Error()
	}
	if res := j.Result(); res != nil {
		out.FPS = res.FPS
		out.FramesScanned = res.FramesScanned
	}

	if status, prog, _, ok := j.Decoder(); ok {
		out.Decoder = &DecoderState{
			State:      status.State,
			Runtime:    int64(status.Duration.Seconds()),
			CPU:        status.CPU,
			Memory:     status.Memory,
			PeakMemory: status.Peak,
			Progress: &Progress{
				Frame: prog.Frame, Time: prog.Time, Speed: prog.Speed,
				Drop: prog.Drop, Dup: prog.Dup,
			},
		}
	}
	return out
}

func skillsToAPI(s skills.Skills) SkillsResponse {
	resp := SkillsResponse{
		Version:   s.Version,
		Libraries: make([]SkillsLib, len(s.Libraries)),
		Decoders:  make([]SkillsCodec, len(s.Decoders)),
		Demuxers:  make([]SkillsID, len(s.Demuxers)),
	}
	for i, lib := range s.Libraries {
		resp.Libraries[i] = SkillsLib{Name: lib.Name, Compiled: lib.Compiled, Linked: lib.Linked}
	}
	for i, c := range s.Decoders {
		resp.Decoders[i] = SkillsCodec{ID: c.ID, Name: c.Name, Decoders: c.Decoders}
	}
	for i, f := range s.Demuxers {
		resp.Demuxers[i] = SkillsID{ID: f.ID, Name: f.Name}
	}
	return resp
}
