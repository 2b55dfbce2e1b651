package models

import "time"

// TaskStatus represents the state of a task.
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in-progress"
	TaskStatusDone       TaskStatus = "done"
)

// TaskPriority represents the urgency of a task.
type TaskPriority string

const (
	TaskPriorityHigh   TaskPriority = "high"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityLow    TaskPriority = "low"
)

// Phase is a top-level grouping of tasks within a project. A phase may hold
// tasks directly and/or group them one level further via nested projects.
type Phase struct {
	Name     string           `json:"name"`
	Tasks    []*Task          `json:"tasks,omitempty"`
	Projects []*NestedProject `json:"projects,omitempty"`
}

// NestedProject is an optional second-level grouping inside a phase.
type NestedProject struct {
	Name  string  `json:"name"`
	Notes string  `json:"notes,omitempty"`
	Tasks []*Task `json:"tasks,omitempty"`
}

// Task is the atomic unit of work. Subtasks nest to arbitrary depth.
// Dependencies are plain id references into the same project's id space;
// a reference to a task that no longer exists is tolerated, not an error.
type Task struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Status       TaskStatus   `json:"status"`
	Priority     TaskPriority `json:"priority,omitempty"`
	Details      string       `json:"details,omitempty"`
	Start        *time.Time   `json:"start,omitempty"`
	Due          *time.Time   `json:"due,omitempty"`
	Assignees    []string     `json:"assignees,omitempty"`
	Notes        string       `json:"notes,omitempty"`
	Completed    bool         `json:"completed"`
	Subtasks     []*Task      `json:"subtasks,omitempty"`
	Comments     []Comment    `json:"comments,omitempty"`
	Dependencies []string     `json:"dependencies,omitempty"`
}

// SetStatus updates the status and keeps the derived completed flag in sync.
// Every mutation path that touches status must go through this.
func (t *Task) SetStatus(s TaskStatus) {
	t.Status = s
	t.Completed = s == TaskStatusDone
}

// Comment is a user remark attached to a task.
type Comment struct {
	ID          string       `json:"id"`
	AuthorID    string       `json:"authorId"`
	Text        string       `json:"text"`
	CreatedAt   time.Time    `json:"createdAt"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is a file reference on a comment.
type Attachment struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	MimeType string `json:"mimeType,omitempty"`
}
