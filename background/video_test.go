package background

import (
	"errors"
	"image"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-black-eagle/Thermalright-usblcd/log"
)

func testLogger() *log.ChildLogger {
	parent := &logrus.Logger{
		Out:       io.Discard,
		Level:     logrus.PanicLevel,
		Formatter: &logrus.TextFormatter{},
	}
	return log.NewChildLogger(parent, "bg", false)
}

func solidNRGBA(w, h int, r, g, b, a byte) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = r
		img.Pix[i+1] = g
		img.Pix[i+2] = b
		img.Pix[i+3] = a
	}
	return img
}

type fakeCapture struct {
	fps      float64
	duration float64
	frames   []*image.NRGBA

	pos       int
	rewinds   int
	closed    bool
	rewindErr error
}

func (f *fakeCapture) FPS() float64      { return f.fps }
func (f *fakeCapture) Duration() float64 { return f.duration }

func (f *fakeCapture) Read() bool {
	if f.pos >= len(f.frames) {
		return false
	}
	f.pos++
	return true
}

func (f *fakeCapture) Frame() *image.NRGBA { return f.frames[f.pos-1] }

func (f *fakeCapture) Rewind() error {
	if f.rewindErr != nil {
		return f.rewindErr
	}
	f.pos = 0
	f.rewinds++
	return nil
}

func (f *fakeCapture) Close() { f.closed = true }

func grayFrames(n int) []*image.NRGBA {
	frames := make([]*image.NRGBA, n)
	for i := range frames {
		frames[i] = solidNRGBA(frameWidth, frameHeight, byte(i), byte(i), byte(i), 0xFF)
	}
	return frames
}

func withCapture(t *testing.T, c capture) {
	t.Helper()
	orig := newCapture
	newCapture = func(string) (capture, error) { return c, nil }
	t.Cleanup(func() { newCapture = orig })
}

func TestPreloadBoundary(t *testing.T) {
	withCapture(t, &fakeCapture{fps: 24, duration: 10.0, frames: grayFrames(4)})

	vb, err := NewVideoBackground("clip.mp4", ModeLoop, 24, testLogger())
	require.NoError(t, err)
	assert.False(t, vb.streaming)
	assert.Equal(t, 4, vb.FrameCount())
}

func TestStreamBoundary(t *testing.T) {
	withCapture(t, &fakeCapture{fps: 24, duration: 10.001, frames: grayFrames(4)})

	vb, err := NewVideoBackground("clip.mp4", ModeLoop, 24, testLogger())
	require.NoError(t, err)
	assert.True(t, vb.streaming)
	assert.Equal(t, 0, vb.FrameCount())
}

func TestCaptureError(t *testing.T) {
	orig := newCapture
	newCapture = func(string) (capture, error) { return nil, errors.New("no decoder") }
	t.Cleanup(func() { newCapture = orig })

	_, err := NewVideoBackground("clip.mp4", ModeLoop, 24, testLogger())
	require.Error(t, err)
}

func TestLoopAdvance(t *testing.T) {
	withCapture(t, &fakeCapture{fps: 24, duration: 2, frames: grayFrames(4)})

	vb, err := NewVideoBackground("clip.mp4", ModeLoop, 24, testLogger())
	require.NoError(t, err)

	got := []int{vb.index}
	for i := 0; i < 7; i++ {
		vb.advance()
		got = append(got, vb.index)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 0, 1, 2, 3}, got)
}

func TestBounceAdvance(t *testing.T) {
	withCapture(t, &fakeCapture{fps: 24, duration: 2, frames: grayFrames(4)})

	vb, err := NewVideoBackground("clip.mp4", ModeBounce, 24, testLogger())
	require.NoError(t, err)

	got := []int{vb.index}
	for i := 0; i < 9; i++ {
		vb.advance()
		got = append(got, vb.index)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 2, 1, 0, 1, 2, 3}, got)
}

func TestStreamingWorkerLoops(t *testing.T) {
	fc := &fakeCapture{fps: 500, duration: 60, frames: grayFrames(3)}
	withCapture(t, fc)

	vb, err := NewVideoBackground("long.mp4", ModeLoop, 24, testLogger())
	require.NoError(t, err)

	vb.Start()
	require.Eventually(t, func() bool {
		return vb.CurrentFrame() != nil
	}, time.Second, 5*time.Millisecond)

	// Let the worker hit end-of-stream at least once.
	time.Sleep(50 * time.Millisecond)
	vb.Stop()

	assert.Greater(t, fc.rewinds, 0, "worker should rewind at end of stream")
	assert.True(t, fc.closed)
}

func TestCurrentFrameIsACopy(t *testing.T) {
	withCapture(t, &fakeCapture{fps: 24, duration: 2, frames: grayFrames(2)})

	vb, err := NewVideoBackground("clip.mp4", ModeLoop, 24, testLogger())
	require.NoError(t, err)

	frame := vb.CurrentFrame()
	require.NotNil(t, frame)
	frame.Pix[0] = 0xAB
	assert.NotEqual(t, byte(0xAB), vb.frames[0].Pix[0])
}

func TestStopIdempotent(t *testing.T) {
	withCapture(t, &fakeCapture{fps: 24, duration: 2, frames: grayFrames(2)})

	vb, err := NewVideoBackground("clip.mp4", ModeLoop, 24, testLogger())
	require.NoError(t, err)

	vb.Start()
	vb.Stop()
	vb.Stop()
}
