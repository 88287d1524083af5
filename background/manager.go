package background

import (
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/the-black-eagle/Thermalright-usblcd/log"
)

// Manager produces the panel's background frames from a configured
// static image and/or video. It is called from a single goroutine
// (the frame pump); only the video worker runs concurrently.
type Manager struct {
	lg *log.ChildLogger

	staticImg   *image.NRGBA
	staticAlpha bool
	staticPath  string
	staticMtime time.Time

	video *VideoBackground

	gradient *image.NRGBA
}

func NewManager(lg *log.ChildLogger) *Manager {
	return &Manager{lg: lg}
}

// GetBackgroundBytes resolves the configured sources into one
// 320x240 RGB buffer. It never fails: decode problems fall back to
// the other source or to a synthetic gradient.
//
// With both sources present, an alpha-bearing image is blended over
// the video; an opaque image simply wins.
func (m *Manager) GetBackgroundBytes(videoPath, imagePath string) []byte {
	var img *image.NRGBA
	var hasAlpha bool
	if imagePath != "" {
		img, hasAlpha = m.loadStatic(imagePath)
	}

	var vid *image.NRGBA
	if videoPath != "" && isVideoPath(videoPath) {
		if m.video == nil || m.video.Path() != videoPath {
			if m.video != nil {
				m.video.Stop()
				m.video = nil
			}
			vb, err := NewVideoBackground(videoPath, ModeLoop, 24, m.lg)
			if err != nil {
				m.lg.Warningf("video %s: %v", videoPath, err)
			} else {
				m.video = vb
				vb.Start()
			}
		}
		if m.video != nil {
			vid = m.video.CurrentFrame()
		}
	}

	switch {
	case img != nil && vid != nil && hasAlpha:
		return toRGB(composeOver(img, vid))
	case img != nil && vid != nil:
		return toRGB(img)
	case vid != nil:
		return toRGB(vid)
	case img != nil:
		return toRGB(img)
	}
	return toRGB(m.defaultBackground())
}

// Stop shuts down the video worker, if any.
func (m *Manager) Stop() {
	if m.video != nil {
		m.video.Stop()
		m.video = nil
	}
}

// loadStatic returns the panel-sized static image, reloading when the
// path or the file's mtime changed since it was cached.
func (m *Manager) loadStatic(path string) (*image.NRGBA, bool) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	mtime := fi.ModTime()

	if m.staticImg != nil && m.staticPath == path && m.staticMtime.Equal(mtime) {
		return m.staticImg, m.staticAlpha
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	decoded, _, err := image.Decode(f)
	if err != nil {
		m.lg.Warningf("image %s: %v", path, err)
		return nil, false
	}

	hasAlpha := false
	if op, ok := decoded.(interface{ Opaque() bool }); ok {
		hasAlpha = !op.Opaque()
	}

	m.staticImg = resizeNRGBA(decoded)
	m.staticAlpha = hasAlpha
	m.staticPath = path
	m.staticMtime = mtime
	return m.staticImg, m.staticAlpha
}

var videoExtensions = map[string]bool{
	".mp4": true,
	".avi": true,
	".mov": true,
	".mkv": true,
}

func isVideoPath(path string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}

// defaultBackground lazily builds the synthetic gradient shown when no
// source is configured or everything failed to decode. A little
// per-row dither breaks up the banding.
func (m *Manager) defaultBackground() *image.NRGBA {
	if m.gradient != nil {
		return m.gradient
	}

	img := image.NewNRGBA(image.Rect(0, 0, frameWidth, frameHeight))
	for y := 0; y < frameHeight; y++ {
		ratio := float64(y) / float64(frameHeight)
		val := int(20 + ratio*40)
		noise := (y % 3) - 1
		val += noise
		if val < 0 {
			val = 0
		} else if val > 255 {
			val = 255
		}

		off := img.PixOffset(0, y)
		for x := 0; x < frameWidth; x++ {
			img.Pix[off] = byte(val)
			img.Pix[off+1] = byte(val / 2)
			img.Pix[off+2] = byte(val)
			img.Pix[off+3] = 0xFF
			off += 4
		}
	}
	m.gradient = img
	return img
}
