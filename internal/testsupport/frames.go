package testsupport

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
)

// SolidJPEG encodes a 64x48 grayscale frame filled with luma.
func SolidJPEG(t testing.TB, luma uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 48))
	for i := range img.Pix {
		img.Pix[i] = luma
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

// AlternatingFrames returns n frames that switch between dark and bright, so
// every frame after the first differs from its predecessor.
func AlternatingFrames(t testing.TB, n int) [][]byte {
	t.Helper()
	dark, bright := SolidJPEG(t, 20), SolidJPEG(t, 230)
	frames := make([][]byte, n)
	for i := range frames {
		if i%2 == 0 {
			frames[i] = dark
		} else {
			frames[i] = bright
		}
	}
	return frames
}

// WriteFrames stores frames as frame-0000.jpg, frame-0001.jpg, ... in dir.
func WriteFrames(t testing.TB, dir string, frames ...[]byte) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	for i, frame := range frames {
		path := filepath.Join(dir, fmt.Sprintf("frame-%04d.jpg", i))
		if err := os.WriteFile(path, frame, 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
}
