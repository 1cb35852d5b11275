package model

import "time"

// Envelope statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Page sizes accepted by list endpoints.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Response wraps every API payload.
type Response struct {
	Status     string      `json:"status"`
	RequestID  string      `json:"request_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Data       any         `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Error      *APIError   `json:"error"`
}

// Pagination describes the page of runs a list response carries.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// ListOptions selects a page of stored runs, optionally in one state.
type ListOptions struct {
	Limit  int
	Offset int
	State  RunState // empty matches every state
}

func DefaultListOptions() ListOptions {
	return ListOptions{Limit: DefaultPageSize}
}

// Clamp brings Limit into [1, MaxPageSize] and Offset to at least zero.
// A non-positive Limit falls back to DefaultPageSize.
func (o *ListOptions) Clamp() {
	switch {
	case o.Limit <= 0:
		o.Limit = DefaultPageSize
	case o.Limit > MaxPageSize:
		o.Limit = MaxPageSize
	}
	o.Offset = max(o.Offset, 0)
}

// Page reports where a page cut from total matching runs sits.
func (o ListOptions) Page(total int) *Pagination {
	o.Clamp()
	return &Pagination{
		Total:   total,
		Limit:   o.Limit,
		Offset:  o.Offset,
		HasMore: o.Offset+o.Limit < total,
	}
}
