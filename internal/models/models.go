package models

import "time"

// Task status values. Anything else is rejected at the boundary.
const (
	StatusPending    = "pending"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
)

func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	default:
		return false
	}
}

// User is the public shape of a user record. The password hash and the
// stored refresh token never leave the repository layer.
type User struct {
	ID        int       `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UserSummary is the subset of user fields joined onto a task.
type UserSummary struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type Task struct {
	ID             int          `json:"id"`
	Title          string       `json:"title"`
	Description    string       `json:"description,omitempty"`
	DueDate        *time.Time   `json:"dueDate,omitempty"`
	Status         string       `json:"status"`
	AssignedUserID int          `json:"assignedUserId"`
	AssignedUser   *UserSummary `json:"assignedUser,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// TaskPage is one page of a task listing.
type TaskPage struct {
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	TotalTasks int    `json:"totalTasks"`
	TotalPages int    `json:"totalPages"`
	Tasks      []Task `json:"tasks"`
}
