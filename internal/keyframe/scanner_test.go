package keyframe

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	frames  []image.Image
	fps     float64
	fpsErr  error
	failAt  int
	failErr error
	pos     int
	closed  bool
}

func (s *fakeSource) Next(ctx context.Context) (image.Image, error) {
	if s.failErr != nil && s.pos == s.failAt {
		return nil, s.failErr
	}
	if s.pos >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

func (s *fakeSource) FrameRate() (float64, error) { return s.fps, s.fpsErr }
func (s *fakeSource) Close() error { s.closed = true; return nil }

type memSink struct {
	names []string
	fail  map[string]error
}

func (m *memSink) Persist(ctx context.Context, frame image.Image, name string) error {
	if err, ok := m.fail[name]; ok {
		return err
	}
	m.names = append(m.names, name)
	return nil
}

// solid returns a w*h frame with the first n pixels set to v and the rest black.
func solid(w, h, n int, v uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		c := color.RGBA{A: 255}
		if i < n {
			c = color.RGBA{R: v, G: v, B: v, A: 255}
		}
		img.SetRGBA(i%w, i/w, c)
	}
	return img
}

func sceneCutSource() *fakeSource {
	black := solid(400, 250, 0, 0)
	cut := solid(400, 250, 50000, 200)
	frames := make([]image.Image, 10)
	for i := range frames {
		if i < 5 {
			frames[i] = black
		} else {
			frames[i] = cut
		}
	}
	return &fakeSource{frames: frames, fps: 10}
}

func TestScanSingleCut(t *testing.T) {
	sink := &memSink{}
	res, err := Scan(context.Background(), sceneCutSource(), sink, Options{Threshold: 30})
	require.NoError(t, err)

	require.Equal(t, 1, res.Count())
	kf := res.Keyframes[0]
	assert.Equal(t, 1, kf.Index)
	assert.Equal(t, "keyframe_1.jpg", kf.FileName)
	// frame 5 is compared while the counter is still 4
	assert.Equal(t, 4, kf.FrameNumber)
	assert.Equal(t, 400*time.Millisecond, kf.Timestamp)
	assert.Equal(t, "0:00:00.400000", FormatTimestamp(kf.Timestamp))
	assert.Equal(t, 10, res.FramesScanned)
	assert.Equal(t, []string{"keyframe_1.jpg"}, sink.names)
}

func TestScanNoChange(t *testing.T) {
	f := solid(20, 20, 0, 0)
	src := &fakeSource{frames: []image.Image{f, f, f, f}, fps: 25}
	res, err := Scan(context.Background(), src, &memSink{}, Options{Threshold: 0})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count())
	assert.NotNil(t, res.Keyframes)
}

func TestScanSingleFrame(t *testing.T) {
	src := &fakeSource{frames: []image.Image{solid(4, 4, 0, 0)}, fps: 30}
	res, err := Scan(context.Background(), src, &memSink{}, Options{Threshold: 0})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count())
	assert.Equal(t, 1, res.FramesScanned)
}

func TestScanEmptyStream(t *testing.T) {
	src := &fakeSource{fps: 30}
	_, err := Scan(context.Background(), src, &memSink{}, Options{Path: "empty.mp4"})
	assert.ErrorIs(t, err, ErrEmptyStream)

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, StageDecode, e.Stage)
	assert.Equal(t, "empty.mp4", e.Path)
}

func TestScanInvalidFrameRate(t *testing.T) {
	for _, fps := range []float64{0, -1} {
		src := sceneCutSource()
		src.fps = fps
		sink := &memSink{}
		_, err := Scan(context.Background(), src, sink, Options{Threshold: 0})
		assert.ErrorIs(t, err, ErrInvalidFrameRate, "fps %v", fps)
		assert.Equal(t, 0, src.pos, "no frame may be decoded before the rate check")
		assert.Empty(t, sink.names)
	}

	src := sceneCutSource()
	src.fpsErr = errors.New("no rate")
	_, err := Scan(context.Background(), src, &memSink{}, Options{})
	assert.ErrorIs(t, err, ErrInvalidFrameRate)
}

func TestScanNegativeThreshold(t *testing.T) {
	_, err := Scan(context.Background(), sceneCutSource(), &memSink{}, Options{Threshold: -1})
	assert.ErrorIs(t, err, ErrInvalidThreshold)
}

func TestScanHugeThresholdSaturates(t *testing.T) {
	f := solid(10, 10, 0, 0)
	for _, th := range []int{math.MaxInt/1000 + 1, 1 << 62, math.MaxInt} {
		src := &fakeSource{frames: []image.Image{f, f, f, f}, fps: 25}
		opts := Options{Threshold: th}
		assert.Equal(t, math.MaxInt, opts.cutoff(), "threshold %d", th)
		res, err := Scan(context.Background(), src, &memSink{}, opts)
		require.NoError(t, err)
		assert.Equal(t, 0, res.Count(), "threshold %d", th)
	}

	// a cut is never emitted above the largest representable cutoff
	src := sceneCutSource()
	res, err := Scan(context.Background(), src, &memSink{}, Options{Threshold: math.MaxInt})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count())
}

func TestScanZeroThresholdEveryTransition(t *testing.T) {
	a := solid(10, 10, 1, 255)
	b := solid(10, 10, 0, 0)
	src := &fakeSource{frames: []image.Image{a, b, b, a, b}, fps: 1}
	res, err := Scan(context.Background(), src, &memSink{}, Options{Threshold: 0})
	require.NoError(t, err)

	require.Equal(t, 3, res.Count())
	var frames []int
	for i, kf := range res.Keyframes {
		assert.Equal(t, i+1, kf.Index)
		frames = append(frames, kf.FrameNumber)
	}
	assert.Equal(t, []int{0, 2, 3}, frames)
}

func drift(n int) []image.Image {
	frames := make([]image.Image, n)
	for i := range frames {
		frames[i] = solid(100, 100, i*10, 255)
	}
	return frames
}

func TestScanMonotonicInThreshold(t *testing.T) {
	frames := []image.Image{
		solid(100, 100, 0, 0),
		solid(100, 100, 5000, 255),
		solid(100, 100, 1000, 255),
		solid(100, 100, 9000, 255),
		solid(100, 100, 8500, 255),
	}
	last := -1
	for _, th := range []int{0, 1, 4, 7, 9, 10} {
		src := &fakeSource{frames: frames, fps: 24}
		res, err := Scan(context.Background(), src, &memSink{}, Options{Threshold: th})
		require.NoError(t, err)
		if last >= 0 {
			assert.LessOrEqual(t, res.Count(), last, "threshold %d", th)
		}
		last = res.Count()
	}
	assert.Equal(t, 0, last)
}

func TestScanDeterministic(t *testing.T) {
	run := func() []Keyframe {
		src := &fakeSource{frames: drift(12), fps: 29.97}
		res, err := Scan(context.Background(), src, &memSink{}, Options{Threshold: 0})
		require.NoError(t, err)
		return res.Keyframes
	}
	first := run()
	assert.Equal(t, first, run())

	for i := 1; i < len(first); i++ {
		assert.GreaterOrEqual(t, first[i].Timestamp, first[i-1].Timestamp)
		assert.Equal(t, i+1, first[i].Index)
	}
}

func TestScanReferencePolicy(t *testing.T) {
	// each step changes 10 pixels, the cutoff is 25
	frames := drift(8)
	opts := Options{Threshold: 1, Scale: 25}

	res, err := Scan(context.Background(), &fakeSource{frames: frames, fps: 1}, &memSink{}, opts)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count())

	opts.Reference = CompareLastKeyframe
	res, err = Scan(context.Background(), &fakeSource{frames: frames, fps: 1}, &memSink{}, opts)
	require.NoError(t, err)
	require.Equal(t, 2, res.Count())
	assert.Equal(t, 2, res.Keyframes[0].FrameNumber)
	assert.Equal(t, 5, res.Keyframes[1].FrameNumber)
}

func TestScanPersistPolicy(t *testing.T) {
	a := solid(10, 10, 0, 0)
	b := solid(10, 10, 100, 255)
	frames := []image.Image{a, b, a, b}
	boom := errors.New("disk full")

	sink := &memSink{fail: map[string]error{"keyframe_2.jpg": boom}}
	res, err := Scan(context.Background(), &fakeSource{frames: frames, fps: 1}, sink, Options{})
	assert.ErrorIs(t, err, ErrPersistFailure)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Count())

	// skipping keeps indices dense: keyframe_2 fails once, then succeeds
	calls := 0
	skip := SinkFunc(func(ctx context.Context, frame image.Image, name string) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	res, err = Scan(context.Background(), &fakeSource{frames: frames, fps: 1}, skip, Options{Policy: SkipOnPersistFailure})
	require.NoError(t, err)
	require.Equal(t, 2, res.Count())
	assert.Equal(t, "keyframe_1.jpg", res.Keyframes[0].FileName)
	assert.Equal(t, "keyframe_2.jpg", res.Keyframes[1].FileName)
	assert.Equal(t, 2, res.Keyframes[1].FrameNumber)
}

func TestScanCancelKeepsEmitted(t *testing.T) {
	a := solid(10, 10, 0, 0)
	b := solid(10, 10, 100, 255)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := SinkFunc(func(context.Context, image.Image, string) error {
		cancel()
		return nil
	})
	src := &fakeSource{frames: []image.Image{a, b, a, b}, fps: 1}
	res, err := Scan(ctx, src, sink, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Count())
	assert.Equal(t, 2, src.pos)
}

func TestScanDecodeFailureMidStream(t *testing.T) {
	src := sceneCutSource()
	src.failAt = 7
	src.failErr = errors.New("corrupt packet")
	res, err := Scan(context.Background(), src, &memSink{}, Options{Threshold: 30})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt packet")
	assert.Equal(t, 1, res.Count())
}

func TestScanFrameSizeChange(t *testing.T) {
	src := &fakeSource{frames: []image.Image{solid(4, 4, 0, 0), solid(8, 8, 0, 0)}, fps: 1}
	_, err := Scan(context.Background(), src, &memSink{}, Options{})
	assert.ErrorIs(t, err, ErrFrameSize)
}

type fakeOpener struct {
	src *fakeSource
	err error
}

func (o *fakeOpener) Open(ctx context.Context, path string) (Source, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.src, nil
}

func TestScanPath(t *testing.T) {
	src := sceneCutSource()
	res, err := ScanPath(context.Background(), &fakeOpener{src: src}, "a.mp4", &memSink{}, Options{Threshold: 30})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count())
	assert.True(t, src.closed)

	_, err = ScanPath(context.Background(), &fakeOpener{err: errors.New("no such file")}, "missing.mp4", &memSink{}, Options{})
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Contains(t, err.Error(), "missing.mp4")
}
