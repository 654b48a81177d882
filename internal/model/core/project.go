// internal/model/core/project.go
package core

import "time"

// ProjectMeta is the bookkeeping stored next to a project's annotations
type ProjectMeta struct {
	SessionID       string    `json:"sessionId"`
	Program         string    `json:"prog"`
	Description     string    `json:"description"`
	Name            string    `json:"projName"`
	StartTime       time.Time `json:"startDatetime"`
	Host            string    `json:"host"`
	OperatingSystem string    `json:"operatingSystem"`
	User            string    `json:"startUser"`
	Source          string    `json:"source"`
	Processed       string    `json:"processed,omitempty"`
	Notes           string    `json:"notes,omitempty"`

	// FrameRate is the codec-native rate; FrameRateOverride, when positive,
	// is the user's correction and wins
	FrameRate         float64 `json:"frameRate"`
	FrameRateOverride float64 `json:"frameRateOverride,omitempty"`
	Resolution        float64 `json:"resolution"`
	ResolutionUnits   string  `json:"resolutionUnits"`

	// Video frame size in pixels, 0 when unknown
	FrameWidth  int `json:"frameWidth,omitempty"`
	FrameHeight int `json:"frameHeight,omitempty"`
}

// Scale derives the scale used for measurements
func (m ProjectMeta) Scale() Scale {
	fps := m.FrameRate
	if m.FrameRateOverride > 0 {
		fps = m.FrameRateOverride
	}
	return Scale{FrameRate: fps, Resolution: m.Resolution, Units: m.ResolutionUnits}
}
