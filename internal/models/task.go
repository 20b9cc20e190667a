package models

import (
	"strings"
	"time"
)

// TaskStatus is the progress of a back-office task.
type TaskStatus string

// Possible values for TaskStatus
const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in-progress"
	TaskCompleted  TaskStatus = "completed"
)

// ParseTaskStatus accepts the stored spellings, case-insensitively.
func ParseTaskStatus(s string) (TaskStatus, bool) {
	st := TaskStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case TaskPending, TaskInProgress, TaskCompleted:
		return st, true
	}
	return "", false
}

// Task is an item on the staff task board.
type Task struct {
	ID          string     `json:"id" dynamodbav:"task_id"`
	Title       string     `json:"title" dynamodbav:"title"`
	Description string     `json:"description" dynamodbav:"description"`
	Status      TaskStatus `json:"status" dynamodbav:"status"`
	CreatedAt   time.Time  `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt" dynamodbav:"updated_at"`
}
