// Package buildqueue implements the Build Queue & Worker: a
// FIFO job queue in the shared store, a worker that drives the Code
// Generator and external toolchain, and a janitor that requeues jobs whose
// lease has expired without reaching a terminal state — the fix for a
// worker that crashes mid-build.
package buildqueue

import (
	"time"

	"github.com/google/uuid"

	"zkgate/internal/dsl"
)

// Status is one of a build job's monotone states.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusBuilding  Status = "building"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// statusRank gives each status a position in the monotone sequence, so
// IsForwardTransition can tell whether a status change moves backward.
// Queue.Requeue, the janitor's recovery path, is the one place that moves a
// job backward (building to queued).
var statusRank = map[Status]int{
	StatusQueued:    0,
	StatusBuilding:  1,
	StatusCompleted: 2,
	StatusFailed:    2,
}

// IsForwardTransition reports whether moving from `from` to `to` respects
// the monotone state machine.
func IsForwardTransition(from, to Status) bool {
	return statusRank[to] >= statusRank[from]
}

// Job is a build job record.
type Job struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	DSL        dsl.Document `json:"dsl"`
	Status     Status    `json:"status"`
	WebhookURL string    `json:"webhook_url,omitempty"`

	QueuedAt    time.Time  `json:"queued_at"`
	BuildingAt  *time.Time `json:"building_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`

	ImageID          string `json:"image_id,omitempty"`
	GuestProgramPath string `json:"guest_program_path,omitempty"`
	Error            string `json:"error,omitempty"`

	// Lease fields implement the open-question resolution: a worker
	// claims a job by writing its own id and an expiry; the janitor
	// requeues anything whose lease has elapsed without reaching a terminal
	// state.
	WorkerID       string     `json:"worker_id,omitempty"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`
}

// NewJob constructs a freshly queued job with a new UUID.
func NewJob(customerID string, doc dsl.Document, webhookURL string) Job {
	return Job{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		DSL:        doc,
		Status:     StatusQueued,
		WebhookURL: webhookURL,
		QueuedAt:   time.Now(),
	}
}

// MarkBuilding transitions a job to building and claims a lease for
// workerID.
func (j *Job) MarkBuilding(workerID string, leaseTTL time.Duration) {
	now := time.Now()
	j.Status = StatusBuilding
	j.BuildingAt = &now
	j.WorkerID = workerID
	expiry := now.Add(leaseTTL)
	j.LeaseExpiresAt = &expiry
}

// MarkCompleted transitions a job to completed.
func (j *Job) MarkCompleted(imageID, guestProgramPath string) {
	now := time.Now()
	j.Status = StatusCompleted
	j.CompletedAt = &now
	j.ImageID = imageID
	j.GuestProgramPath = guestProgramPath
	j.LeaseExpiresAt = nil
}

// MarkFailed transitions a job to failed, capturing the error verbatim so
// tenants can fix their DSL.
func (j *Job) MarkFailed(errText string) {
	now := time.Now()
	j.Status = StatusFailed
	j.FailedAt = &now
	j.Error = errText
	j.LeaseExpiresAt = nil
}

// QueueWaitDuration is how long the job sat queued before a worker claimed
// it, or the time elapsed so far if it hasn't been claimed yet. Computed
// from the persisted QueuedAt/BuildingAt timestamps rather than stored
// separately.
func (j Job) QueueWaitDuration() time.Duration {
	if j.BuildingAt != nil {
		return j.BuildingAt.Sub(j.QueuedAt)
	}
	if j.Status == StatusQueued {
		return time.Since(j.QueuedAt)
	}
	return 0
}

// BuildDuration is how long the build ran once a worker claimed it, through
// whichever terminal timestamp the job reached. Zero until the job leaves
// StatusBuilding.
func (j Job) BuildDuration() time.Duration {
	if j.BuildingAt == nil {
		return 0
	}
	switch {
	case j.CompletedAt != nil:
		return j.CompletedAt.Sub(*j.BuildingAt)
	case j.FailedAt != nil:
		return j.FailedAt.Sub(*j.BuildingAt)
	default:
		return 0
	}
}

// WebhookPayload is posted to Job.WebhookURL on completion.
type WebhookPayload struct {
	JobID      string `json:"job_id"`
	CustomerID string `json:"customer_id"`
	Status     Status `json:"status"`
	ImageID    string `json:"image_id,omitempty"`
	Error      string `json:"error,omitempty"`
}
