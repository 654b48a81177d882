// internal/model/core/types.go
package core

import "math"

// Point2D is a position in region-local pixel coordinates
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// IsFinite reports whether both coordinates are finite numbers
func (p Point2D) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) &&
		!math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Rect is an axis-aligned rectangle in video-frame pixel coordinates
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Valid reports whether the rectangle has positive extents
func (r Rect) Valid() bool {
	return r.Width > 0 && r.Height > 0
}

// Right returns the exclusive right edge
func (r Rect) Right() int {
	return r.X + r.Width
}

// Bottom returns the exclusive bottom edge
func (r Rect) Bottom() int {
	return r.Y + r.Height
}

// Region is a user-selected rectangle of the video frame in which markers are tracked
type Region struct {
	ID   int  `json:"id"`
	Rect Rect `json:"rect"`
}

// Scale carries the video frame rate and pixel resolution used to convert
// pixel displacements into physical units
type Scale struct {
	FrameRate  float64 `json:"frameRate"`  // frames per second
	Resolution float64 `json:"resolution"` // physical length of one pixel edge
	Units      string  `json:"units"`
}

// DefaultScale matches the values a new project starts with
var DefaultScale = Scale{FrameRate: 8, Resolution: 10, Units: "microns"}

// Scale lets a static Scale act as its own provider
func (s Scale) Scale() Scale {
	return s
}

// Valid reports whether frame rate and resolution are positive and finite
func (s Scale) Valid() bool {
	return s.FrameRate > 0 && s.Resolution > 0 &&
		!math.IsInf(s.FrameRate, 0) && !math.IsInf(s.Resolution, 0)
}
