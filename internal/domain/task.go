package domain

const TaskStatusPending = "pending"

// Task is a unit of work created by the agent service on behalf of a user.
type Task struct {
	ID            string `json:"task_id"`
	UserID        string `json:"user_id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Status        string `json:"status"`
	RequestedRole string `json:"requested_role"`
	CreatedAt     string `json:"created_at"`
}
