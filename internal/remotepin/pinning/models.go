package pinning

import (
	"fmt"
	"time"
)

type Status string

const (
	Queued  Status = "queued"
	Pinning Status = "pinning"
	Pinned  Status = "pinned"
	Failed  Status = "failed"
)

// Terminal reports whether no further transition is expected without a new request.
func (s Status) Terminal() bool {
	return s == Pinned || s == Failed
}

type Pin struct {
	Cid     string            `json:"cid"`
	Name    string            `json:"name,omitempty"`
	Origins []string          `json:"origins,omitempty"`
	Meta    map[string]string `json:"meta,omitempty"`
}

type PinStatus struct {
	RequestID string            `json:"requestid"`
	Status    Status            `json:"status"`
	Created   time.Time         `json:"created"`
	Pin       Pin               `json:"pin"`
	Delegates []string          `json:"delegates"`
	Info      map[string]string `json:"info,omitempty"`
}

type PinResults struct {
	Count   int          `json:"count"`
	Results []*PinStatus `json:"results"`
}

// Error is the failure body returned by the pinning service.
type Error struct {
	StatusCode int    `json:"-"`
	Reason     string `json:"reason"`
	Details    string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("pinning service: %d %s: %s", e.StatusCode, e.Reason, e.Details)
	}
	return fmt.Sprintf("pinning service: %d %s", e.StatusCode, e.Reason)
}

type failure struct {
	Error *Error `json:"error"`
}

// TextMatch is the name matching strategy used by List.
type TextMatch string

const (
	Exact    TextMatch = "exact"
	IExact   TextMatch = "iexact"
	Partial  TextMatch = "partial"
	IPartial TextMatch = "ipartial"
)

type ListOptions struct {
	Cids   []string
	Name   string
	Match  TextMatch
	Status []Status
	Before time.Time
	After  time.Time
	Limit  int
	Meta   map[string]string
}
