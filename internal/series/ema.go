package series

// DefaultEMAWeight matches the dashboard's default smoothing strength.
const DefaultEMAWeight = 0.99

// DefaultViewportScale is the point count a series is visually normalized
// against when rescaling the smoothing window.
const DefaultViewportScale = 1000

// EffectiveWeight rescales the configured EMA weight so that smoothing looks
// comparable regardless of how many points a series holds. The EMA window
// 1/(1-w) grows with n/scale once the series is longer than the viewport
// scale; shorter series and scale <= 0 use the configured weight unchanged.
func EffectiveWeight(weight float64, n, viewportScale int) float64 {
	if weight < 0 {
		weight = 0
	}
	if weight >= 1 {
		weight = 0.999
	}
	if viewportScale <= 0 || n <= viewportScale {
		return weight
	}
	return 1 - (1-weight)*float64(viewportScale)/float64(n)
}

// Smooth applies a bias-corrected exponential moving average to the series.
// The running numerator and denominator are both decayed by the weight, so
// early samples are not biased toward zero. Steps pass through unchanged and
// the output has the same length as the input. An empty input yields an
// empty output.
func Smooth(points []Point, weight float64, viewportScale int) []Point {
	if len(points) == 0 {
		return nil
	}
	w := EffectiveWeight(weight, len(points), viewportScale)

	out := make([]Point, len(points))
	var weightedSum, weightTotal float64
	for i, p := range points {
		weightedSum = w*weightedSum + p.Value
		weightTotal = w*weightTotal + 1
		out[i] = Point{Step: p.Step, Value: weightedSum / weightTotal}
	}
	return out
}
