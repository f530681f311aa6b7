package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZSC714725/keyframemanager/internal/ffmpeg"
	"github.com/ZSC714725/keyframemanager/internal/ffmpeg/skills"
	"github.com/ZSC714725/keyframemanager/internal/job"
	"github.com/ZSC714725/keyframemanager/internal/keyframe"
	"github.com/ZSC714725/keyframemanager/internal/storage"
)

type fakeDecoder struct {
	inputs *ffmpeg.UploadFilter
}

func (d *fakeDecoder) Skills() skills.Skills {
	return skills.Skills{Version: "6.1.1", Demuxers: []skills.Format{{ID: "mov", Name: "QuickTime / MOV"}}}
}
func (d *fakeDecoder) ReloadSkills() error { return nil }
func (d *fakeDecoder) CheckInput(name string) error {
	return d.inputs.Check(name)
}

type stripSource struct {
	frames []image.Image
	pos    int
}

func (s *stripSource) Next(ctx context.Context) (image.Image, error) {
	if s.pos >= len(s.frames) {
		return nil, io.EOF
	}
	s.pos++
	return s.frames[s.pos-1], nil
}
func (s *stripSource) FrameRate() (float64, error) { return 10, nil }
func (s *stripSource) Close() error { return nil }

type stripOpener struct{}

func plain(v uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := 0; i < 64; i++ {
		img.SetRGBA(i%8, i/8, color.RGBA{R: v, G: v, B: v, A: 255})
	}
	return img
}

func (stripOpener) Open(ctx context.Context, path string) (keyframe.Source, error) {
	if strings.Contains(path, "broken") {
		return nil, keyframe.ErrSourceUnavailable
	}
	return &stripSource{frames: []image.Image{plain(0), plain(0), plain(200), plain(200), plain(10)}}, nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	out, err := storage.NewDir(filepath.Join(t.TempDir(), "outputs"), "/outputs", 0)
	require.NoError(t, err)
	return routerFor(t, out)
}

func routerFor(t *testing.T, out *storage.Dir) *gin.Engine {
	gin.SetMode(gin.TestMode)
	root := t.TempDir()

	store := job.NewStore(job.StoreConfig{Opener: stripOpener{}, Output: out})

	inputs, err := ffmpeg.NewUploadFilter(nil, nil)
	require.NoError(t, err)
	h, err := NewHandler(store, &fakeDecoder{inputs: inputs}, Config{UploadDir: filepath.Join(root, "uploads"), MaxUploadBytes: 1024})
	require.NoError(t, err)

	return NewRouter(h, RouterConfig{OutputDir: out.Root, OutputURL: "/outputs"})
}

func uploadRequest(t *testing.T, target, name string, fields map[string]string) *http.Request {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if name != "" {
		fw, err := w.CreateFormFile("file", name)
		require.NoError(t, err)
		fw.Write([]byte("not really a video"))
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHome(t *testing.T) {
	rec := serve(newTestRouter(t), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Keyframe Extraction API")
}

func TestExtractKeyframes(t *testing.T) {
	r := newTestRouter(t)
	rec := serve(r, uploadRequest(t, "/extract_keyframes/", "clip.MP4", map[string]string{"threshold": "0"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ExtractResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "clip.MP4", resp.Video)
	require.Equal(t, 2, resp.KeyframesExtracted)
	assert.Equal(t, "keyframe_1.jpg", resp.Frames[0].File)
	assert.Equal(t, "0:00:00.100000", resp.Frames[0].Timestamp)
	assert.Equal(t, "keyframe_2.jpg", resp.Frames[1].File)
	assert.Equal(t, "0:00:00.300000", resp.Frames[1].Timestamp)

	img := serve(r, httptest.NewRequest(http.MethodGet, resp.Frames[0].URL, nil))
	assert.Equal(t, http.StatusOK, img.Code)

	page := serve(r, httptest.NewRequest(http.MethodGet, "/preview", nil))
	assert.Contains(t, page.Body.String(), resp.Frames[1].URL)
}

func TestExtractRejectsUploads(t *testing.T) {
	r := newTestRouter(t)

	rec := serve(r, uploadRequest(t, "/extract_keyframes/", "clip.avi", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid file type")

	rec = serve(r, uploadRequest(t, "/extract_keyframes/", "", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(r, uploadRequest(t, "/extract_keyframes/", "clip.mov", map[string]string{"threshold": "-3"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExtractReportsFailure(t *testing.T) {
	rec := serve(newTestRouter(t), uploadRequest(t, "/extract_keyframes/", "broken.mp4", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Error processing video", resp.Message)
	assert.Contains(t, resp.Detail, "source unavailable")
}

func TestJobLifecycle(t *testing.T) {
	r := newTestRouter(t)

	rec := serve(r, uploadRequest(t, "/api/v1/jobs", "clip.mov", map[string]string{"reference": "demo", "threshold": "0"}))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var created Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	var got Job
	require.Eventually(t, func() bool {
		rec := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+created.ID, nil))
		if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &got) != nil {
			return false
		}
		return got.State == string(job.StateFinished)
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, got.KeyframesExtracted)
	assert.Equal(t, 5, got.FramesScanned)
	assert.Equal(t, "demo", got.Reference)

	rec = serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/jobs?reference=demo", nil))
	var list []Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+created.ID+"/report", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	cmd := httptest.NewRequest(http.MethodPut, "/api/v1/jobs/"+created.ID+"/command", strings.NewReader(`{"command":"cancel"}`))
	cmd.Header.Set("Content-Type", "application/json")
	rec = serve(r, cmd)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(r, httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/"+created.ID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+created.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCommandValidation(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/jobs/nope/command", strings.NewReader(`{"command":"restart"}`))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusBadRequest, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodPut, "/api/v1/jobs/nope/command", strings.NewReader(`{"command":"cancel"}`))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusNotFound, serve(r, req).Code)
}

func TestPreviewEmpty(t *testing.T) {
	rec := serve(newTestRouter(t), httptest.NewRequest(http.MethodGet, "/preview", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No keyframes found")
}

func TestSkills(t *testing.T) {
	rec := serve(newTestRouter(t), httptest.NewRequest(http.MethodGet, "/api/v1/skills", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp SkillsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "6.1.1", resp.Version)
	assert.Equal(t, "mov", resp.Demuxers[0].ID)
}

func TestMetrics(t *testing.T) {
	rec := serve(newTestRouter(t), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "keyframemanager_active_jobs")
}

func TestPreviewShowsStoredKeyframes(t *testing.T) {
	out, err := storage.NewDir(filepath.Join(t.TempDir(), "outputs"), "/outputs", 0)
	require.NoError(t, err)
	// left behind by an earlier run
	sink := out.Sink("oldjob")
	for _, name := range []string{"keyframe_1.jpg", "keyframe_2.jpg"} {
		require.NoError(t, sink.Persist(context.Background(), plain(90), name))
	}

	r := routerFor(t, out)
	page := serve(r, httptest.NewRequest(http.MethodGet, "/preview", nil))
	require.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), "/outputs/oldjob/keyframe_1.jpg")
	assert.Contains(t, page.Body.String(), "/outputs/oldjob/keyframe_2.jpg")
	assert.NotContains(t, page.Body.String(), "No keyframes found")

	img := serve(r, httptest.NewRequest(http.MethodGet, "/outputs/oldjob/keyframe_2.jpg", nil))
	assert.Equal(t, http.StatusOK, img.Code)

	// filtered views only cover jobs of this process
	page = serve(r, httptest.NewRequest(http.MethodGet, "/preview?reference=demo", nil))
	assert.Contains(t, page.Body.String(), "No keyframes found")
}

func TestExtractHugeThresholdFindsNothing(t *testing.T) {
	rec := serve(newTestRouter(t), uploadRequest(t, "/extract_keyframes/", "clip.mp4", map[string]string{"threshold": "9223372036854776"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ExtractResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.KeyframesExtracted)
	assert.Empty(t, resp.Frames)
}
