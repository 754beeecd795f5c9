package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ExportKind distinguishes single-student and whole-class exports.
type ExportKind string

const (
	ExportKindSingle ExportKind = "single"
	ExportKindClass  ExportKind = "class"
)

// ExportJobStatus captures background job lifecycle states.
type ExportJobStatus string

const (
	ExportJobQueued     ExportJobStatus = "QUEUED"
	ExportJobProcessing ExportJobStatus = "PROCESSING"
	ExportJobFinished   ExportJobStatus = "FINISHED"
	ExportJobFailed     ExportJobStatus = "FAILED"
)

// ExportFailure identifies one student whose document could not be produced.
type ExportFailure struct {
	SchoolID string `json:"school_id"`
	Name     string `json:"name"`
	Error    string `json:"error"`
}

// ExportJob is a persisted asynchronous export request.
type ExportJob struct {
	ID           string          `db:"id" json:"id"`
	Kind         ExportKind      `db:"kind" json:"kind"`
	Params       ExportJobParams `db:"params" json:"params"`
	Status       ExportJobStatus `db:"status" json:"status"`
	ResultURL    *string         `db:"result_url" json:"result_url,omitempty"`
	Failures     ExportFailures  `db:"failures" json:"failures,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
}

// ExportJobParams stores the export request persisted as JSONB.
type ExportJobParams struct {
	SchoolID string     `json:"schoolId,omitempty"`
	ClassID  string     `json:"classId,omitempty"`
	Scope    ClassScope `json:"scope,omitempty"`
}

// Value marshals params to JSON for persistence.
func (p ExportJobParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal export job params: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the params struct.
func (p *ExportJobParams) Scan(value interface{}) error {
	data, err := jsonBytes(value, "ExportJobParams")
	if err != nil || data == nil {
		*p = ExportJobParams{}
		return err
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal export job params: %w", err)
	}
	return nil
}

// ExportFailures is the JSONB list of per-student failures of a job.
type ExportFailures []ExportFailure

// Value marshals failures to JSON for persistence.
func (f ExportFailures) Value() (driver.Value, error) {
	if f == nil {
		f = ExportFailures{}
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal export failures: %w", err)
	}
	return data, nil
}

// Scan unmarshals the failure list.
func (f *ExportFailures) Scan(value interface{}) error {
	data, err := jsonBytes(value, "ExportFailures")
	if err != nil || data == nil {
		*f = nil
		return err
	}
	var failures []ExportFailure
	if err := json.Unmarshal(data, &failures); err != nil {
		return fmt.Errorf("unmarshal export failures: %w", err)
	}
	*f = failures
	return nil
}

func jsonBytes(value interface{}, target string) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		if len(v) == 0 {
			return nil, nil
		}
		return v, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported type %T for %s", value, target)
	}
}

// ExportOutcome summarises how an export ended.
type ExportOutcome string

const (
	ExportOutcomeSuccess ExportOutcome = "success"
	ExportOutcomePartial ExportOutcome = "partial"
	ExportOutcomeFailed  ExportOutcome = "failed"
)

// ExportEvent is published to the notification sink after each export.
type ExportEvent struct {
	Kind       ExportKind    `json:"kind"`
	SchoolID   string        `json:"school_id,omitempty"`
	ClassID    string        `json:"class_id,omitempty"`
	Outcome    ExportOutcome `json:"outcome"`
	Filename   string        `json:"filename,omitempty"`
	Total      int           `json:"total"`
	Failed     int           `json:"failed"`
	Error      string        `json:"error,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}
