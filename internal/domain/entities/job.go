package entities

// JobNameProcessTransaction is the job name used for confirmation jobs
const JobNameProcessTransaction = "process-transaction"

// ConfirmationJob is the payload enqueued after a successful broadcast
type ConfirmationJob struct {
	TransactionID   string `json:"transactionId"`
	TransactionHash string `json:"transactionHash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Amount          string `json:"amount"`
}

// JobState is where a queued job currently lives
type JobState string

const (
	JobStateWaiting   JobState = "waiting"
	JobStateActive    JobState = "active"
	JobStateDelayed   JobState = "delayed"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateNotFound  JobState = "not_found"
)

// QueueStats counts jobs per state
type QueueStats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
}

// JobStatus is the inspection view of a single job
type JobStatus struct {
	ID           string   `json:"id"`
	Name         string   `json:"name,omitempty"`
	State        JobState `json:"state"`
	AttemptsMade int      `json:"attemptsMade"`
	FailedReason string   `json:"failedReason,omitempty"`
	Data         any      `json:"data,omitempty"`
}
