package types

// EyeSample holds the eyelid-closure scores reported for one frame.
// Scores are nominally in [0,1] but are not validated.
type EyeSample struct {
	Left  float64 `json:"left"`  // eyeBlinkLeft score
	Right float64 `json:"right"` // eyeBlinkRight score
}

// NosePosition is the nose-tip landmark in normalized frame coordinates.
type NosePosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FaceSample is everything the detector consumes for one tracked face.
type FaceSample struct {
	Eyes EyeSample     `json:"eyes"`
	Nose *NosePosition `json:"nose,omitempty"` // nil when landmarks are unavailable
}

// Frame is one tick's output of a frame sample source.
type Frame struct {
	Sequence    uint64      // Sequential frame number assigned by the source
	TimestampMs float64     // Monotonic capture time in milliseconds
	Face        *FaceSample // nil when no face was found
}

// HasFace reports whether the frame carries a face sample.
func (f *Frame) HasFace() bool {
	return f != nil && f.Face != nil
}
