package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// JobState is the render job state machine. Done, Failed, and Cancelled
// are terminal.
type JobState string

const (
	JobStateQueued     JobState = "queued"
	JobStateValidating JobState = "validating"
	JobStateResolving  JobState = "resolving"
	JobStateBuilding   JobState = "building"
	JobStateRendering  JobState = "rendering"
	JobStatePublishing JobState = "publishing"
	JobStateDone       JobState = "done"
	JobStateFailed     JobState = "failed"
	JobStateCancelled  JobState = "cancelled"
)

// JobErrorKind classifies a terminal failure per the pipeline error taxonomy.
type JobErrorKind string

const (
	ErrorKindValidation JobErrorKind = "validation"
	ErrorKindResolution JobErrorKind = "resolution"
	ErrorKindBuild      JobErrorKind = "build"
	ErrorKindRender     JobErrorKind = "render"
	ErrorKindPublish    JobErrorKind = "publish"
	ErrorKindSystem     JobErrorKind = "system"
)

// StructuredJobError carries classification alongside the message so the
// worker can persist error kind/code/details on the job row.
type StructuredJobError struct {
	Kind     JobErrorKind
	Code     string
	Message  string
	Details  string
	Original error
}

func (e *StructuredJobError) Error() string {
	return e.Message
}

func (e *StructuredJobError) Unwrap() error {
	return e.Original
}

// NewJobError creates a structured job error of the given kind.
func NewJobError(kind JobErrorKind, code, message, details string, original error) *StructuredJobError {
	return &StructuredJobError{
		Kind:     kind,
		Code:     code,
		Message:  message,
		Details:  details,
		Original: original,
	}
}

// RenderJob drives one editing plan through the pipeline. Exactly one job
// owns a plan; newer plans for the same asset supersede older in-flight jobs.
type RenderJob struct {
	gorm.Model
	PlanID   string   `json:"plan_id" gorm:"not null;uniqueIndex"`
	AssetID  string   `json:"asset_id" gorm:"not null;index:idx_render_jobs_asset_state"`
	PlanPath string   `json:"plan_path"`
	State    JobState `json:"state" gorm:"default:'queued';index:idx_render_jobs_asset_state"`

	// Seq orders plans per asset by arrival so the publish gate can tell
	// whether this job's plan is still the newest.
	Seq int64 `json:"seq" gorm:"not null;index"`

	// Checkpoint holds the output of the last completed stage so a crashed
	// job resumes mid-pipeline instead of restarting from validation.
	Checkpoint JobCheckpoint `json:"checkpoint,omitempty" gorm:"type:json"`

	MaxRetries   int        `json:"max_retries" gorm:"default:3"`
	RetryCount   int        `json:"retry_count" gorm:"default:0"`
	StartedAt    *time.Time `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	LastFailedAt *time.Time `json:"last_failed_at"`
	WorkerID     string     `json:"worker_id,omitempty"`

	Error        string `json:"error,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorDetails string `json:"error_details,omitempty"`

	// Violations holds the full rule list for validation failures so a
	// caller can fix the plan in one round trip.
	Violations JobCheckpoint `json:"violations,omitempty" gorm:"type:json"`

	Result JobCheckpoint `json:"result,omitempty" gorm:"type:json"`
}

// JobCheckpoint is a JSON column holding stage output or result data.
type JobCheckpoint map[string]interface{}

// Value implements driver.Valuer for JobCheckpoint.
func (c JobCheckpoint) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

// Scan implements sql.Scanner for JobCheckpoint.
func (c *JobCheckpoint) Scan(value interface{}) error {
	if value == nil {
		*c = make(JobCheckpoint)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(bytes, c)
}

// IsTerminal reports whether the job has reached a final state.
func (j *RenderJob) IsTerminal() bool {
	return j.State == JobStateDone || j.State == JobStateFailed || j.State == JobStateCancelled
}

// InFlight reports whether the job is claimed and actively progressing.
func (j *RenderJob) InFlight() bool {
	return !j.IsTerminal() && j.State != JobStateQueued
}

// IsRetryable reports whether a failed attempt may be claimed again.
func (j *RenderJob) IsRetryable() bool {
	return !j.IsTerminal() && j.RetryCount < j.MaxRetries
}

// CanRetryNow applies exponential backoff: minDelay * 2^retryCount since
// the last failure.
func (j *RenderJob) CanRetryNow(minDelay time.Duration) bool {
	if !j.IsRetryable() {
		return false
	}
	if j.LastFailedAt == nil {
		return true
	}
	backoff := minDelay * time.Duration(1<<uint(j.RetryCount))
	return time.Since(*j.LastFailedAt) >= backoff
}

// ResumeState returns the stage the job should (re)enter when claimed,
// based on the last persisted state.
func (j *RenderJob) ResumeState() JobState {
	switch j.State {
	case JobStateResolving, JobStateBuilding, JobStateRendering, JobStatePublishing:
		return j.State
	default:
		return JobStateValidating
	}
}

// SetErrorDetails records error classification on the job row.
func (j *RenderJob) SetErrorDetails(kind JobErrorKind, code, message, details string) {
	j.ErrorKind = string(kind)
	j.ErrorCode = code
	j.Error = message
	j.ErrorDetails = details
}

// TableName specifies the table name for GORM.
func (RenderJob) TableName() string {
	return "render_jobs"
}
