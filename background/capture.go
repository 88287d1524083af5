package background

import (
	"image"

	vidio "github.com/AlexEidt/Vidio"
)

// capture abstracts a video decode source. The production
// implementation wraps an ffmpeg-backed vidio.Video; tests use a
// synthetic source.
type capture interface {
	FPS() float64
	// Duration of the source in seconds.
	Duration() float64
	// Read decodes the next frame, reporting false at end of stream.
	Read() bool
	// Frame returns the most recently decoded frame.
	Frame() *image.NRGBA
	// Rewind seeks back to the first frame.
	Rewind() error
	Close()
}

// newCapture is swapped out by tests.
var newCapture = openCapture

func openCapture(path string) (capture, error) {
	v, err := vidio.NewVideo(path)
	if err != nil {
		return nil, err
	}
	return &videoCapture{path: path, v: v}, nil
}

type videoCapture struct {
	path string
	v    *vidio.Video
}

func (c *videoCapture) FPS() float64 { return c.v.FPS() }

func (c *videoCapture) Duration() float64 { return c.v.Duration() }

func (c *videoCapture) Read() bool { return c.v.Read() }

func (c *videoCapture) Frame() *image.NRGBA {
	w, h := c.v.Width(), c.v.Height()
	pix := make([]byte, len(c.v.FrameBuffer()))
	copy(pix, c.v.FrameBuffer())
	return &image.NRGBA{Pix: pix, Stride: w * 4, Rect: image.Rect(0, 0, w, h)}
}

// Rewind reopens the source; the decoder has no cheap seek.
func (c *videoCapture) Rewind() error {
	c.v.Close()
	v, err := vidio.NewVideo(c.path)
	if err != nil {
		return err
	}
	c.v = v
	return nil
}

func (c *videoCapture) Close() { c.v.Close() }
