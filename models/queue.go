package models

import (
	"time"

	"gorm.io/datatypes"
)

// JobStatus is the durable state of a queued job.
type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobInFlight JobStatus = "in_flight"
	JobDead     JobStatus = "dead"
)

// QueueJob is one unit of work in the durable queue. Pending jobs become
// eligible at run_at; in-flight jobs whose locked_at is older than the
// visibility timeout are reclaimed (at-least-once delivery); dead jobs are
// kept for inspection and manual requeue.
type QueueJob struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	JobID     string         `json:"job_id" gorm:"size:36;uniqueIndex"`
	Queue     string         `json:"queue" gorm:"size:64;not null;index:idx_queue_jobs_claim,priority:1"`
	Status    JobStatus      `json:"status" gorm:"size:16;not null;index:idx_queue_jobs_claim,priority:2"`
	RunAt     time.Time      `json:"run_at" gorm:"index:idx_queue_jobs_claim,priority:3"`
	Payload   datatypes.JSON `json:"payload" gorm:"type:jsonb"`
	Attempts  int            `json:"attempts"`
	LastError string         `json:"last_error" gorm:"size:512"`
	LockedAt  *time.Time     `json:"locked_at"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
