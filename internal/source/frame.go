package source

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"time"
)

// Frame is one JPEG image pulled from the source.
type Frame struct {
	Seq        uint64
	CapturedAt time.Time
	JPEG       []byte

	once sync.Once
	img  image.Image
	err  error
}

// NewFrame wraps encoded JPEG bytes.
func NewFrame(seq uint64, capturedAt time.Time, data []byte) *Frame {
	return &Frame{Seq: seq, CapturedAt: capturedAt.UTC(), JPEG: data}
}

// Image decodes the frame once and caches the result.
func (f *Frame) Image() (image.Image, error) {
	f.once.Do(func() {
		img, err := jpeg.Decode(bytes.NewReader(f.JPEG))
		if err != nil {
			f.err = fmt.Errorf("decode frame %d: %w", f.Seq, err)
			return
		}
		f.img = img
	})
	return f.img, f.err
}

// looksLikeJPEG checks the SOI marker.
func looksLikeJPEG(data []byte) bool {
	return len(data) > 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF
}
