// Package camera provides frame sources and the face detector capability.
package camera

import (
	"context"
	"encoding/base64"
	"errors"
)

var (
	// ErrCameraUnavailable means no frames can be acquired this session.
	ErrCameraUnavailable = errors.New("camera unavailable")
	// ErrModelUnavailable means no face-embedding source could be loaded.
	ErrModelUnavailable = errors.New("face recognition model unavailable")
)

// ReadyState mirrors the media readiness levels of a video element.
type ReadyState int

const (
	HaveNothing ReadyState = iota
	HaveMetadata
	HaveCurrentData
	HaveFutureData
	HaveEnoughData
)

// Frame is one snapshot of the camera feed.
type Frame struct {
	Data   []byte // encoded image (JPEG or PNG)
	Width  int
	Height int
	Ready  ReadyState
}

// Usable reports whether the frame has valid dimensions and enough data to analyze.
func (f Frame) Usable() bool {
	return f.Width > 0 && f.Height > 0 && f.Ready >= HaveCurrentData
}

// Source yields camera frames.
type Source interface {
	Frame(ctx context.Context) (Frame, error)
}

// Face is one detected face.
type Face struct {
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2] in pixels
	Embedding []float32 `json:"embedding"`
	Score     float64   `json:"det_score"`
}

// FaceDetector finds faces in an encoded image.
type FaceDetector interface {
	Detect(ctx context.Context, image []byte) ([]Face, error)
}

// BestFace returns the face with the highest detection score. Ties keep the
// earlier face.
func BestFace(faces []Face) (Face, bool) {
	if len(faces) == 0 {
		return Face{}, false
	}
	best := faces[0]
	for _, f := range faces[1:] {
		if f.Score > best.Score {
			best = f
		}
	}
	return best, true
}

// DataURL encodes an image inline so it can be stored with a person record.
func DataURL(image []byte) string {
	if len(image) == 0 {
		return ""
	}
	return "data:" + DetectMIMEType(image) + ";base64," + base64.StdEncoding.EncodeToString(image)
}
