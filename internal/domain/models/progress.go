package models

// ProgressMessage is pushed to stream observers. Either field may be absent.
type ProgressMessage struct {
	JobID       string       `json:"job_id,omitempty"`
	Status      string       `json:"status,omitempty"`
	Transaction *Transaction `json:"transaction,omitempty"`
}
