// Package facematch identifies a face embedding against the known-people registry.
package facematch

// Result is the outcome of matching one probe embedding.
type Result struct {
	IsKnown    bool    `json:"is_known"`
	PersonID   string  `json:"person_id,omitempty"`
	Name       string  `json:"name,omitempty"`
	Confidence int     `json:"confidence,omitempty"` // 0-100
	Distance   float64 `json:"distance,omitempty"`
}
