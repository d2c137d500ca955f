package admission

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"vigil/internal/config"
	"vigil/internal/source"
)

// DiffDetector compares each frame with the previous one on a downscaled
// grayscale grid. A sampled pixel counts as changed when its luma moves by
// more than the pixel threshold; the frame counts as changed when the share of
// changed pixels reaches the area ratio.
type DiffDetector struct {
	pixelThreshold int
	areaRatio      float64
	sampleWidth    int

	mu   sync.Mutex
	prev *lumaGrid
}

// NewDiffDetector builds a detector from the admission configuration.
func NewDiffDetector(cfg config.Admission) *DiffDetector {
	d := &DiffDetector{
		pixelThreshold: cfg.PixelThreshold,
		areaRatio:      cfg.AreaRatio,
		sampleWidth:    cfg.SampleWidth,
	}
	if d.pixelThreshold <= 0 {
		d.pixelThreshold = 25
	}
	if d.areaRatio <= 0 {
		d.areaRatio = 0.01
	}
	if d.sampleWidth <= 0 {
		d.sampleWidth = 160
	}
	return d
}

// Evaluate implements MotionDetector. The first frame, and any frame whose
// dimensions differ from the previous one, becomes the new reference and is
// reported as unchanged.
func (d *DiffDetector) Evaluate(frame *source.Frame) (bool, float64, error) {
	img, err := frame.Image()
	if err != nil {
		return false, 0, err
	}
	grid := sampleLuma(img, d.sampleWidth)
	if grid.w == 0 || grid.h == 0 {
		return false, 0, fmt.Errorf("frame %d has no pixels", frame.Seq)
	}

	d.mu.Lock()
	prev := d.prev
	d.prev = grid
	d.mu.Unlock()

	if prev == nil || !prev.bounds.Eq(grid.bounds) {
		return false, 0, nil
	}
	ratio := changedRatio(prev, grid, d.pixelThreshold)
	score := min(ratio*3, 1)
	return ratio >= d.areaRatio, score, nil
}

// Reset drops the reference frame.
func (d *DiffDetector) Reset() {
	d.mu.Lock()
	d.prev = nil
	d.mu.Unlock()
}

// lumaGrid is a sampled frame. bounds are the source image bounds, so two
// resolutions that sample to the same grid still compare unequal.
type lumaGrid struct {
	bounds image.Rectangle
	w, h   int
	pix    []uint8
}

// sampleLuma reads luma on a grid at most width samples wide, keeping the
// aspect ratio.
func sampleLuma(img image.Image, width int) *lumaGrid {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return &lumaGrid{bounds: b}
	}
	step := max(b.Dx()/width, 1)
	grid := &lumaGrid{
		bounds: b,
		w:      (b.Dx() + step - 1) / step,
		h:      (b.Dy() + step - 1) / step,
	}
	grid.pix = make([]uint8, 0, grid.w*grid.h)

	switch src := img.(type) {
	case *image.YCbCr:
		for y := b.Min.Y; y < b.Max.Y; y += step {
			for x := b.Min.X; x < b.Max.X; x += step {
				grid.pix = append(grid.pix, src.Y[src.YOffset(x, y)])
			}
		}
	case *image.Gray:
		for y := b.Min.Y; y < b.Max.Y; y += step {
			for x := b.Min.X; x < b.Max.X; x += step {
				grid.pix = append(grid.pix, src.Pix[src.PixOffset(x, y)])
			}
		}
	default:
		for y := b.Min.Y; y < b.Max.Y; y += step {
			for x := b.Min.X; x < b.Max.X; x += step {
				grid.pix = append(grid.pix, color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y)
			}
		}
	}
	return grid
}

func changedRatio(a, b *lumaGrid, threshold int) float64 {
	changed := 0
	for i := range a.pix {
		diff := int(a.pix[i]) - int(b.pix[i])
		if diff < 0 {
			diff = -diff
		}
		if diff > threshold {
			changed++
		}
	}
	return float64(changed) / float64(len(a.pix))
}
