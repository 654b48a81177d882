// internal/model/core/sample.go
package core

// Sample is the physical displacement between two temporally adjacent
// markers of a family
type Sample struct {
	Start  int     `json:"start"`
	End    int     `json:"end"`
	Length float64 `json:"length"`
}

// Frames returns the number of frames spanned by the sample
func (s Sample) Frames() int {
	return s.End - s.Start
}

// Duration returns the elapsed video time in seconds
func (s Sample) Duration(frameRate float64) float64 {
	return float64(s.End-s.Start) / frameRate
}

// Velocity returns length per second for the given frame rate.
// A zero-length span yields 0.
func (s Sample) Velocity(frameRate float64) float64 {
	d := s.Duration(frameRate)
	if d == 0 {
		return 0
	}
	return s.Length / d
}
