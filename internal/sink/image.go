package sink

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"path/filepath"

	"vigil/internal/event"
	"vigil/internal/fileutil"
)

var boxColor = color.RGBA{R: 255, G: 64, B: 32, A: 255}

// ImageWriter stores the frame of each accepted event, optionally with the
// detection boxes drawn on it.
type ImageWriter struct {
	root     string
	annotate bool
	quality  int
}

// NewImageWriter writes under dataDir.
func NewImageWriter(dataDir string, annotate bool, quality int) *ImageWriter {
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	return &ImageWriter{root: dataDir, annotate: annotate, quality: quality}
}

// Name identifies the writer in persistence failure counts.
func (w *ImageWriter) Name() string { return "image" }

// Path returns where the image of event id in shard is stored.
func (w *ImageWriter) Path(shard, id string) string {
	return filepath.Join(w.root, shard, "images", id+".jpg")
}

// Write stores the frame and returns its path. img may be nil when only the
// encoded frame is at hand; annotation then decodes it.
func (w *ImageWriter) Write(shard, id string, frame []byte, img image.Image, dets []event.Detection) (string, error) {
	data := frame
	if w.annotate && len(dets) > 0 {
		if img == nil {
			decoded, err := jpeg.Decode(bytes.NewReader(frame))
			if err != nil {
				return "", fmt.Errorf("decode frame for event %s: %w", id, err)
			}
			img = decoded
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, Annotate(img, dets), &jpeg.Options{Quality: w.quality}); err != nil {
			return "", fmt.Errorf("encode annotated frame for event %s: %w", id, err)
		}
		data = buf.Bytes()
	}
	path := w.Path(shard, id)
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write image for event %s: %w", id, err)
	}
	return path, nil
}

// Annotate returns a copy of img with a two pixel outline around every
// detection box, clipped to the image.
func Annotate(img image.Image, dets []event.Detection) *image.RGBA {
	bounds := img.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, img, bounds.Min, draw.Src)
	src := image.NewUniform(boxColor)
	const thickness = 2
	for _, d := range dets {
		r := image.Rect(d.Box.X, d.Box.Y, d.Box.X+d.Box.W, d.Box.Y+d.Box.H).Add(bounds.Min).Intersect(bounds)
		if r.Empty() {
			continue
		}
		edges := []image.Rectangle{
			image.Rect(r.Min.X, r.Min.Y, r.Max.X, min(r.Min.Y+thickness, r.Max.Y)),
			image.Rect(r.Min.X, max(r.Max.Y-thickness, r.Min.Y), r.Max.X, r.Max.Y),
			image.Rect(r.Min.X, r.Min.Y, min(r.Min.X+thickness, r.Max.X), r.Max.Y),
			image.Rect(max(r.Max.X-thickness, r.Min.X), r.Min.Y, r.Max.X, r.Max.Y),
		}
		for _, edge := range edges {
			draw.Draw(out, edge, src, image.Point{}, draw.Src)
		}
	}
	return out
}
