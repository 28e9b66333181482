package types

import "time"

// Todo represents a single to-do item belonging to a user.
type Todo struct {
	// ID is the unique identifier of the item.
	ID int `json:"id" db:"id"`

	// UserID is the identifier of the owning user. It is set at creation
	// and never changes afterwards.
	UserID int `json:"user_id" db:"user_id"`

	// Title is a short, non-empty summary of the item.
	Title string `json:"title" db:"title"`

	// Description holds the longer free-form body of the item.
	Description string `json:"description" db:"description"`

	// Deadline is the instant the item is due.
	Deadline time.Time `json:"deadline" db:"deadline"`

	// CompletedAt is set when the item is marked as completed.
	// It transitions from nil to a value exactly once and is never reset.
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	// Tags is an ordered list of labels attached to the item.
	Tags []string `json:"tags" db:"tags"`

	// CreatedAt is the timestamp when the item was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the item.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Completed reports whether the item has been marked as completed.
func (t Todo) Completed() bool {
	return t.CompletedAt != nil
}
