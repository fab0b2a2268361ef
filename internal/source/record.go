package source

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/yuyu-tech02/Blink-counter/pkg/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Record is the JSON form of one frame, shared by score traces and the
// ingest endpoints:
//
//	{"t": 1033.4, "left": 0.12, "right": 0.10, "nose": {"x": 0.5, "y": 0.4}}
//	{"t": 1066.7, "face": false}
type Record struct {
	T     float64             `json:"t"`
	Face  *bool               `json:"face,omitempty"`
	Left  *float64            `json:"left,omitempty"`
	Right *float64            `json:"right,omitempty"`
	Nose  *types.NosePosition `json:"nose,omitempty"`
}

var errIncomplete = errors.New("sample needs both left and right scores")

// DecodeRecord parses one JSON record into a frame.
func DecodeRecord(data []byte) (types.Frame, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return types.Frame{}, fmt.Errorf("decode sample: %w", err)
	}
	return rec.Frame()
}

// Frame converts the record. A record with "face": false, or with neither
// score, is a no-face frame.
func (r Record) Frame() (types.Frame, error) {
	frame := types.Frame{TimestampMs: r.T}

	if r.Face != nil && !*r.Face {
		return frame, nil
	}
	if r.Left == nil && r.Right == nil {
		return frame, nil
	}
	if r.Left == nil || r.Right == nil {
		return types.Frame{}, errIncomplete
	}

	frame.Face = &types.FaceSample{
		Eyes: types.EyeSample{Left: *r.Left, Right: *r.Right},
	}
	if r.Nose != nil {
		n := *r.Nose
		frame.Face.Nose = &n
	}
	return frame, nil
}

// EncodeRecord renders a frame in record form.
func EncodeRecord(f types.Frame) ([]byte, error) {
	rec := Record{T: f.TimestampMs}
	if f.Face == nil {
		noFace := false
		rec.Face = &noFace
	} else {
		left, right := f.Face.Eyes.Left, f.Face.Eyes.Right
		rec.Left = &left
		rec.Right = &right
		rec.Nose = f.Face.Nose
	}
	return json.Marshal(rec)
}
