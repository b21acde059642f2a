package domain

const (
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusReview     = "review"
	StatusDone       = "done"
	StatusBlocked    = "blocked"
)

const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

const (
	DepBlocks         = "blocks"
	DepFinishToStart  = "finish_to_start"
	DepStartToStart   = "start_to_start"
	DepFinishToFinish = "finish_to_finish"
)

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Subtask policies accepted by task deletion.
const (
	SubtasksPromote = "promote"
	SubtasksDelete  = "delete"
)

var (
	Statuses        = []string{StatusTodo, StatusInProgress, StatusReview, StatusDone, StatusBlocked}
	Priorities      = []string{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}
	DependencyTypes = []string{DepBlocks, DepFinishToStart, DepStartToStart, DepFinishToFinish}
	Roles           = []string{RoleOwner, RoleAdmin, RoleMember}
)

func ValidStatus(s string) bool         { return contains(Statuses, s) }
func ValidPriority(p string) bool       { return contains(Priorities, p) }
func ValidDependencyType(t string) bool { return contains(DependencyTypes, t) }
func ValidRole(r string) bool           { return contains(Roles, r) }

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Member struct {
	ProjectID   string `json:"project_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role" enum:"owner,admin,member"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// UserRef is a resolved actor reference.
type UserRef struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
}

type Task struct {
	ID           string  `json:"id"`
	ProjectID    string  `json:"project_id"`
	ParentTaskID *string `json:"parent_task_id,omitempty"`
	Title        string  `json:"title"`
	Description  string  `json:"description,omitempty"`
	Status       string  `json:"status" enum:"todo,in_progress,review,done,blocked"`
	Priority     string  `json:"priority" enum:"low,medium,high,critical"`
	Position     int     `json:"position"`
	AssigneeID   *string `json:"assignee_id,omitempty"`
	CreatedBy    string  `json:"created_by"`
	DueDate      *string `json:"due_date,omitempty"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	UpdatedAt    string  `json:"updated_at" format:"date-time"`
	CompletedAt  *string `json:"completed_at,omitempty" format:"date-time"`
}

// TaskSummary is the compact form used for parents and subtasks.
type TaskSummary struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Position int    `json:"position"`
}

// TaskDetail is a task with its resolved relations.
type TaskDetail struct {
	Task
	Assignee     *UserRef      `json:"assignee,omitempty"`
	Creator      *UserRef      `json:"creator,omitempty"`
	Parent       *TaskSummary  `json:"parent,omitempty"`
	Subtasks     []TaskSummary `json:"subtasks"`
	Dependencies []Dependency  `json:"dependencies"`
	Dependents   []Dependency  `json:"dependents"`
	Comments     []Comment     `json:"comments"`
}

type Dependency struct {
	ID              string `json:"id"`
	ProjectID       string `json:"project_id"`
	TaskID          string `json:"task_id"`
	DependsOnTaskID string `json:"depends_on_task_id"`
	Type            string `json:"dependency_type" enum:"blocks,finish_to_start,start_to_start,finish_to_finish"`
	CreatedBy       string `json:"created_by"`
	CreatedAt       string `json:"created_at" format:"date-time"`
}

type Comment struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	AuthorID  string `json:"author_id"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// TreeNode is one materialized node of a task hierarchy.
type TreeNode struct {
	Task     Task        `json:"task"`
	Children []*TreeNode `json:"children"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
