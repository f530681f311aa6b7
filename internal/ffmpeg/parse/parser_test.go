package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProgress(t *testing.T) {
	p := New(Config{LogLines: 10})
	for _, line := range []string{
		"frame=120",
		"fps=240.00",
		"out_time_us=4000000",
		"dup_frames=1",
		"drop_frames=2",
		"speed=8.01x",
		"progress=continue",
	} {
		p.Parse(line)
	}

	prog := p.Progress()
	assert.Equal(t, uint64(120), prog.Frame)
	assert.Equal(t, 4.0, prog.Time)
	assert.Equal(t, 8.01, prog.Speed)
	assert.Equal(t, uint64(2), prog.Drop)
	assert.Equal(t, uint64(1), prog.Dup)
	assert.False(t, prog.Done)
	assert.Empty(t, p.Log())

	p.Parse("progress=end")
	assert.True(t, p.Progress().Done)

	p.ResetStats()
	assert.Equal(t, Progress{}, p.Progress())
}

func TestParseLogRing(t *testing.T) {
	p := New(Config{LogLines: 2})
	p.Parse("[mov,mp4] moov atom not found")
	p.Parse("first.mp4: Invalid data found when processing input")
	p.Parse("frame=  42 fps=0.0 q=-0.0 size=N/A time=00:00:01.40")

	lines := p.Log()
	require.Len(t, lines, 2)
	assert.Equal(t, "first.mp4: Invalid data found when processing input", lines[0].Data)
	assert.Equal(t, uint64(42), p.Progress().Frame)

	p.ResetLog()
	assert.Empty(t, p.Log())
}
