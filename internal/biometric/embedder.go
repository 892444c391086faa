package biometric

import "math"

// PixelStatEmbedder is the reference FaceEmbedder. It grids the detected
// face region, takes mean intensity per cell and L2-normalizes the result.
// It is a placeholder: deterministic and correctly shaped, but not a real
// face embedding. Production deployments substitute a model-backed
// implementation behind the same interface and recalibrate the matcher
// thresholds.
type PixelStatEmbedder struct {
	detector FaceDetector
	dim      int
}

func NewPixelStatEmbedder(detector FaceDetector, dim int) *PixelStatEmbedder {
	if dim <= 0 {
		dim = 128
	}
	return &PixelStatEmbedder{detector: detector, dim: dim}
}

func (e *PixelStatEmbedder) Dimension() int { return e.dim }

func (e *PixelStatEmbedder) ExtractDescriptor(f Frame) ([]float64, error) {
	if len(f.Pix) != f.Width*f.Height || f.Width == 0 || f.Height == 0 {
		return nil, ErrLowImageQuality
	}
	region, ok := e.detector.Detect(f)
	if !ok {
		return nil, ErrNoFaceDetected
	}

	desc := make([]float64, e.dim)
	// grid the region into dim cells, roughly square layout
	cols := int(math.Ceil(math.Sqrt(float64(e.dim))))
	rows := (e.dim + cols - 1) / cols
	cellW := float64(region.W) / float64(cols)
	cellH := float64(region.H) / float64(rows)
	if cellW < 1 || cellH < 1 {
		return nil, ErrLowImageQuality
	}

	for i := 0; i < e.dim; i++ {
		cx := i % cols
		cy := i / cols
		x0 := region.X + int(float64(cx)*cellW)
		y0 := region.Y + int(float64(cy)*cellH)
		x1 := region.X + int(float64(cx+1)*cellW)
		y1 := region.Y + int(float64(cy+1)*cellH)
		desc[i] = meanIntensity(f, x0, y0, x1, y1)
	}

	normalize(desc)
	return desc, nil
}

func meanIntensity(f Frame, x0, y0, x1, y1 int) float64 {
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > f.Width {
		x1 = f.Width
	}
	if y1 > f.Height {
		y1 = f.Height
	}
	if x1 <= x0 || y1 <= y0 {
		return 0
	}
	var sum float64
	for y := y0; y < y1; y++ {
		row := y * f.Width
		for x := x0; x < x1; x++ {
			sum += float64(f.Pix[row+x])
		}
	}
	return sum / float64((x1-x0)*(y1-y0)) / 255.0
}

func normalize(v []float64) {
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] /= norm
	}
}

// CenterVarianceDetector is the reference FaceDetector: it declares a face
// present when the center two-thirds of the frame has enough intensity
// variance to not be a flat wall or a covered lens.
type CenterVarianceDetector struct {
	MinVariance float64
}

func NewCenterVarianceDetector() *CenterVarianceDetector {
	return &CenterVarianceDetector{MinVariance: 100}
}

func (d *CenterVarianceDetector) Detect(f Frame) (Region, bool) {
	if len(f.Pix) != f.Width*f.Height || f.Width < 6 || f.Height < 6 {
		return Region{}, false
	}
	r := Region{
		X: f.Width / 6,
		Y: f.Height / 6,
		W: f.Width * 2 / 3,
		H: f.Height * 2 / 3,
	}

	var sum, sumSq float64
	n := 0
	for y := r.Y; y < r.Y+r.H; y++ {
		row := y * f.Width
		for x := r.X; x < r.X+r.W; x++ {
			v := float64(f.Pix[row+x])
			sum += v
			sumSq += v * v
			n++
		}
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance < d.MinVariance {
		return Region{}, false
	}
	return r, true
}
