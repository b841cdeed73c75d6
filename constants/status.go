package constants

// JobStatus is the canonical status for rows in extract_job.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusRunning JobStatus = "RUNNING" // in progress
	JobStatusOK      JobStatus = "OK"      // text decoded and events extracted
	JobStatusFailed  JobStatus = "FAILED"  // terminal failure
)

// JobStatuses holds the allowed values for the status field in ExtractJob.
var JobStatuses = []string{string(JobStatusRunning), string(JobStatusOK), string(JobStatusFailed)}
