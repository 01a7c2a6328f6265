package task

import (
	"time"
)

// Record is one download attempt in the history table.
type Record struct {
	ID           int64      `json:"id"`
	Token        string     `json:"token"`
	URL          string     `json:"url"`
	Filename     string     `json:"filename"`
	Size         int64      `json:"size"`
	Status       string     `json:"status"` // "downloading", "done", "error"
	Message      string     `json:"message,omitempty"`
	CreatedTime  time.Time  `json:"created_time"`
	FinishedTime *time.Time `json:"finished_time,omitempty"`
}
