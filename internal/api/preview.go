// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// KeyframeManager - 视频关键帧提取工具

package api

import (
	"bytes"
	"context"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
)

var previewTmpl = template.Must(template.New("preview").Parse(`<html>
<head>
    <title>Keyframe Preview</title>
</head>
<body style="text-align:center; font-family:Arial">
    <h2>Extracted Keyframes Preview</h2>
{{- range .}}
    <h3>{{.Video}} <small>({{.ID}}{{with .State}}, {{.}}{{end}})</small></h3>
    <div style="display:flex; flex-wrap:wrap; justify-content:center;">
    {{- range .Frames}}
        <div style="margin:10px;">
            <img src="{{.URL}}" width="220" style="border-radius:8px; box-shadow:0 0 5px gray;">
            <p>{{.File}}{{with .Timestamp}} &middot; {{.}}{{end}}</p>
        </div>
    {{- end}}
    </div>
{{- end}}
</body>
</html>
`))

// Preview GET /preview
// Jobs known to this process come first, then keyframes left in the output
// store by earlier runs.
func (h *Handler) Preview(c *gin.Context) {
	reference := c.Query("reference")

	var jobs []Job
	known := map[string]bool{}
	for _, j := range h.store.List(nil, reference) {
		known[j.ID] = true
		if aj := h.jobToAPI(j); len(aj.Frames) > 0 {
			jobs = append(jobs, aj)
		}
	}

	if reference == "" {
		stored, err := h.storedJobs(c.Request.Context(), known)
		if err != nil {
			errResp(c, http.StatusInternalServerError, "Listing keyframes failed", err.Error())
			return
		}
		jobs = append(jobs, stored...)
	}

	if len(jobs) == 0 {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte("<h3>No keyframes found. Please run extraction first.</h3>"))
		return
	}

	var buf bytes.Buffer
	if err := previewTmpl.Execute(&buf, jobs); err != nil {
		errResp(c, http.StatusInternalServerError, "Rendering preview failed", err.Error())
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// storedJobs builds gallery entries from the output store for prefixes that
// no job in memory owns. Only names and URLs survive a restart.
func (h *Handler) storedJobs(ctx context.Context, known map[string]bool) ([]Job, error) {
	out := h.store.Output()
	prefixes, err := out.Prefixes(ctx)
	if err != nil {
		return nil, err
	}

	var jobs []Job
	for _, prefix := range prefixes {
		if known[prefix] {
			continue
		}
		names, err := out.List(ctx, prefix)
		if err != nil {
			return nil, err
		}
		if len(names) == 0 {
			continue
		}
		j := Job{ID: prefix, Video: prefix, Frames: make([]Frame, 0, len(names))}
		for i, name := range names {
			j.Frames = append(j.Frames, Frame{Index: i + 1, File: name, URL: out.URL(prefix, name)})
		}
		j.KeyframesExtracted = len(j.Frames)
		jobs = append(jobs, j)
	}
	return jobs, nil
}
