package model

// Severity classifies a user-facing notice.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// QueueStats aggregates job states for the progress line.
type QueueStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Uploading int `json:"uploading"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Terminal counts jobs that reached completed or failed.
func (s QueueStats) Terminal() int {
	return s.Completed + s.Failed
}

// Summary is the submit control state: how many files are queued and
// whether submitting is allowed.
type Summary struct {
	FileCount     int  `json:"fileCount"`
	SubmitEnabled bool `json:"submitEnabled"`
}

// ComputeStats counts statuses across jobs.
func ComputeStats(jobs []UploadJob) QueueStats {
	stats := QueueStats{Total: len(jobs)}
	for _, job := range jobs {
		switch job.Status {
		case StatusPending:
			stats.Pending++
		case StatusUploading:
			stats.Uploading++
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats
}
