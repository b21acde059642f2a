package server

import (
	"tasktree/internal/domain"
)

// Request payloads

type CreateProjectRequest struct {
	ID          string `json:"id,omitempty" doc:"Generated when empty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	DisplayName string `json:"display_name,omitempty" doc:"Display name recorded for the creating owner"`
}

type AddMemberRequest struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role" enum:"owner,admin,member"`
}

type CreateTaskRequest struct {
	ID           string `json:"id,omitempty"`
	ParentTaskID string `json:"parent_task_id,omitempty"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Status       string `json:"status,omitempty" enum:"todo,in_progress,review,done,blocked"`
	Priority     string `json:"priority,omitempty" enum:"low,medium,high,critical"`
	AssigneeID   string `json:"assignee_id,omitempty"`
	DueDate      string `json:"due_date,omitempty" doc:"YYYY-MM-DD"`
}

// UpdateTaskRequest is a partial update. An explicit null clears
// assignee_id, due_date and parent_task_id.
type UpdateTaskRequest struct {
	Title        *string `json:"title,omitempty"`
	Description  *string `json:"description,omitempty"`
	Status       *string `json:"status,omitempty" enum:"todo,in_progress,review,done,blocked"`
	Priority     *string `json:"priority,omitempty" enum:"low,medium,high,critical"`
	AssigneeID   *string `json:"assignee_id,omitempty" nullable:"true"`
	DueDate      *string `json:"due_date,omitempty" nullable:"true"`
	ParentTaskID *string `json:"parent_task_id,omitempty" nullable:"true"`
}

type MoveTaskRequest struct {
	Position int `json:"position" doc:"1-based target position; clamped to the sibling range"`
}

type AddDependencyRequest struct {
	DependsOnTaskID string `json:"depends_on_task_id"`
	Type            string `json:"dependency_type,omitempty" enum:"blocks,finish_to_start,start_to_start,finish_to_finish"`
}

type CreateCommentRequest struct {
	Body string `json:"body"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
}

// Responses

type projectList struct {
	Items []domain.Project `json:"items"`
}

type memberList struct {
	Items []domain.Member `json:"items"`
}

type taskList struct {
	Items []domain.Task `json:"items"`
}

type treeResponse struct {
	Items []*domain.TreeNode `json:"items"`
}

type eventList struct {
	Items []domain.Event `json:"items"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	// Key is only returned when the key is created.
	Key string `json:"key,omitempty"`
}

type apiKeyList struct {
	Items []APIKeyResponse `json:"items"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, Name: k.Name, CreatedAt: k.CreatedAt}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
