package models

import "time"

// PlanStatus captures the supervisor review state of a plan.
type PlanStatus string

const (
	PlanStatusUnreviewed PlanStatus = "unreviewed"
	PlanStatusApproved   PlanStatus = "approved"
	PlanStatusRejected   PlanStatus = "rejected"
)

// Plan is a student's personal plan entry for one class.
type Plan struct {
	ID        int64      `db:"id" json:"id"`
	SchoolID  string     `db:"school_id" json:"school_id"`
	ClassID   string     `db:"class_id" json:"class_id"`
	Start     time.Time  `db:"start_date" json:"start"`
	Deadline  time.Time  `db:"deadline" json:"deadline"`
	Content   string     `db:"content" json:"content"`
	Status    PlanStatus `db:"status" json:"status"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// Meeting is a classroom record for one student and class.
type Meeting struct {
	ID        int64     `db:"id" json:"id"`
	SchoolID  string    `db:"school_id" json:"school_id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	Date      time.Time `db:"date" json:"date"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Final is the end-of-term evaluation. Rating and remark stay nil until the
// supervisor fills them in.
type Final struct {
	ID        int64     `db:"id" json:"id"`
	SchoolID  string    `db:"school_id" json:"school_id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	Rating    *string   `db:"rate" json:"rate,omitempty"`
	Remark    *string   `db:"remark" json:"remark,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
