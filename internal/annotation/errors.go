package annotation

import "errors"

var (
	// ErrInvalidGeometry is returned for zero or negative region extents,
	// regions outside the video frame, and unusable marker geometry
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrUnknownRegion is returned when a region id does not exist
	ErrUnknownRegion = errors.New("unknown region")

	// ErrDuplicateRegion is returned when restoring a region whose id is taken
	ErrDuplicateRegion = errors.New("duplicate region")

	// ErrDuplicateFrame is returned when a family already has a marker at the frame
	ErrDuplicateFrame = errors.New("duplicate frame")

	// ErrKindMismatch is returned when a marker kind differs from its family's kind
	ErrKindMismatch = errors.New("marker kind mismatch")
)
