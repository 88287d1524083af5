package background

import (
	"image"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/the-black-eagle/Thermalright-usblcd/log"
)

// PlayMode selects how a preloaded clip walks its frames.
type PlayMode string

const (
	ModeLoop   PlayMode = "loop"
	ModeBounce PlayMode = "bounce"
)

// preloadMaxSeconds is the cut-off between holding every frame in
// memory and streaming from the decoder.
const preloadMaxSeconds = 10.0

// VideoBackground plays one video source and exposes its current
// frame. Clips up to ten seconds are fully decoded at construction so
// the playback worker only moves an index; longer sources keep the
// capture open and decode on the worker.
type VideoBackground struct {
	path string
	mode PlayMode
	fps  int

	streaming bool
	cap       capture
	frames    []*image.NRGBA

	mu      sync.Mutex
	index   int
	forward bool
	current *image.NRGBA

	playing *atomic.Bool
	wg      sync.WaitGroup
	lg      *log.ChildLogger
}

// NewVideoBackground opens path and either preloads it or arms it for
// streaming. The worker is not started yet.
func NewVideoBackground(path string, mode PlayMode, fps int, lg *log.ChildLogger) (*VideoBackground, error) {
	c, err := newCapture(path)
	if err != nil {
		return nil, err
	}

	if fps < 1 {
		fps = 24
	}
	vb := &VideoBackground{
		path:    path,
		mode:    mode,
		fps:     fps,
		forward: true,
		playing: atomic.NewBool(false),
		lg:      lg,
	}

	if c.Duration() > preloadMaxSeconds {
		vb.streaming = true
		vb.cap = c
		if f := c.FPS(); f > 0 {
			vb.fps = int(f)
		}
		lg.Debugf("video %s: streaming at %d fps", path, vb.fps)
	} else {
		for c.Read() {
			vb.frames = append(vb.frames, resizeNRGBA(c.Frame()))
		}
		c.Close()
		lg.Debugf("video %s: preloaded %d frames", path, len(vb.frames))
	}

	return vb, nil
}

func (v *VideoBackground) Path() string { return v.path }

// FrameCount reports the number of preloaded frames; zero while
// streaming.
func (v *VideoBackground) FrameCount() int { return len(v.frames) }

// Start launches the playback worker. No-op if already playing or the
// source yielded nothing to play.
func (v *VideoBackground) Start() {
	if v.streaming && v.cap == nil {
		return
	}
	if !v.streaming && len(v.frames) == 0 {
		return
	}
	if v.playing.Swap(true) {
		return
	}

	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		if v.streaming {
			v.streamLoop()
		} else {
			v.preloadedLoop()
		}
	}()
}

// Stop asks the worker to exit at its next tick and joins it. Safe to
// call repeatedly.
func (v *VideoBackground) Stop() {
	v.playing.Store(false)
	v.wg.Wait()
	if v.streaming && v.cap != nil {
		v.cap.Close()
		v.cap = nil
	}
}

// CurrentFrame returns a copy of the frame playback is currently on,
// or nil when streaming has not produced one yet.
func (v *VideoBackground) CurrentFrame() *image.NRGBA {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.streaming {
		if v.current == nil {
			return nil
		}
		return cloneNRGBA(v.current)
	}
	if len(v.frames) == 0 {
		return nil
	}
	return cloneNRGBA(v.frames[v.index])
}

// advance moves the preloaded index one step.
func (v *VideoBackground) advance() {
	v.mu.Lock()
	defer v.mu.Unlock()

	n := len(v.frames)
	switch v.mode {
	case ModeBounce:
		if v.forward {
			v.index++
			if v.index >= n-1 {
				v.forward = false
			}
		} else {
			if v.index > 0 {
				v.index--
			}
			if v.index <= 0 {
				v.forward = true
			}
		}
	default:
		v.index = (v.index + 1) % n
	}
}

func (v *VideoBackground) tickDelay() time.Duration {
	ms := 1000 / v.fps
	if ms < 1 {
		ms = 1
	}
	return time.Duration(ms) * time.Millisecond
}

func (v *VideoBackground) preloadedLoop() {
	delay := v.tickDelay()
	for v.playing.Load() {
		v.advance()
		time.Sleep(delay)
	}
}

func (v *VideoBackground) streamLoop() {
	delay := v.tickDelay()

	for v.playing.Load() {
		if !v.cap.Read() {
			// End of stream: rewind and keep going.
			if err := v.cap.Rewind(); err != nil {
				v.lg.Warningf("video %s: rewind failed: %v", v.path, err)
				return
			}
			continue
		}

		frame := resizeNRGBA(v.cap.Frame())
		v.mu.Lock()
		v.current = frame
		v.mu.Unlock()

		time.Sleep(delay)
	}
}
