package progress

import "regexp"

// Status of a single transfer. A token with no record at all is reported
// as idle.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusStarting    Status = "starting"
	StatusDownloading Status = "downloading"
	StatusDone        Status = "done"
	StatusError       Status = "error"
)

// Terminal reports whether no further updates follow this status.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Record is the JSON snapshot of one transfer's current state. Percent is
// nil while the total size is unknown (chunked responses without a
// Content-Length).
type Record struct {
	Status     Status   `json:"status"`
	Downloaded int64    `json:"downloaded"`
	Total      int64    `json:"total"`
	Percent    *float64 `json:"percent"`
	Speed      int64    `json:"speed"`
	Filename   string   `json:"filename"`
	Relative   string   `json:"relative,omitempty"`
	Message    string   `json:"message,omitempty"`
}

var tokenRe = regexp.MustCompile(`^[a-f0-9]{16}$`)

// ValidToken reports whether s is a well-formed transfer token:
// 16 lowercase hex characters.
func ValidToken(s string) bool {
	return tokenRe.MatchString(s)
}
