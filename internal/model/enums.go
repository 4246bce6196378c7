package model

// JobStatus is the lifecycle state of a music job. It is derived from the
// record's timestamps and failure flag, never stored.
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusStarted   JobStatus = "STARTED"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}
