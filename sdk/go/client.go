package tasktreesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal tasktree HTTP API client scoped to one project.
type Client struct {
	BaseURL     string
	ProjectID   string
	APIKey      string
	BearerToken string
	// ActorID is sent as X-Actor-Id when no other credential is set. Servers
	// only honor it in local development.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Timeout:   10 * time.Second,
	}
}

type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type Member struct {
	ProjectID   string `json:"project_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role"`
}

type Task struct {
	ID           string  `json:"id"`
	ProjectID    string  `json:"project_id"`
	ParentTaskID *string `json:"parent_task_id,omitempty"`
	Title        string  `json:"title"`
	Description  string  `json:"description,omitempty"`
	Status       string  `json:"status"`
	Priority     string  `json:"priority"`
	Position     int     `json:"position"`
	AssigneeID   *string `json:"assignee_id,omitempty"`
	CreatedBy    string  `json:"created_by"`
	DueDate      *string `json:"due_date,omitempty"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
	CompletedAt  *string `json:"completed_at,omitempty"`
}

type TaskSummary struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Position int    `json:"position"`
}

// TaskDetail is a task with parent, subtasks, edges and comments.
type TaskDetail struct {
	Task
	Parent       *TaskSummary  `json:"parent,omitempty"`
	Subtasks     []TaskSummary `json:"subtasks"`
	Dependencies []Dependency  `json:"dependencies"`
	Dependents   []Dependency  `json:"dependents"`
	Comments     []Comment     `json:"comments"`
}

type Dependency struct {
	ID              string `json:"id"`
	TaskID          string `json:"task_id"`
	DependsOnTaskID string `json:"depends_on_task_id"`
	Type            string `json:"dependency_type"`
}

type Comment struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	AuthorID  string `json:"author_id"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
}

type TreeNode struct {
	Task     Task        `json:"task"`
	Children []*TreeNode `json:"children"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id"`
	EntityID   string `json:"entity_id"`
	EntityKind string `json:"entity_kind"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// NewTask holds the fields accepted on creation. Empty fields take server
// defaults.
type NewTask struct {
	ParentTaskID string `json:"parent_task_id,omitempty"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Status       string `json:"status,omitempty"`
	Priority     string `json:"priority,omitempty"`
	AssigneeID   string `json:"assignee_id,omitempty"`
	DueDate      string `json:"due_date,omitempty"`
}

// TaskUpdate is a partial update. Nil fields are left unchanged; the Clear
// flags send an explicit null.
type TaskUpdate struct {
	Title         *string
	Description   *string
	Status        *string
	Priority      *string
	AssigneeID    *string
	ClearAssignee bool
	DueDate       *string
	ClearDueDate  bool
	ParentTaskID  *string
	ClearParent   bool
}

func (u TaskUpdate) body() map[string]any {
	body := map[string]any{}
	set := func(key string, v *string, clear bool) {
		switch {
		case clear:
			body[key] = nil
		case v != nil:
			body[key] = *v
		}
	}
	set("title", u.Title, false)
	set("description", u.Description, false)
	set("status", u.Status, false)
	set("priority", u.Priority, false)
	set("assignee_id", u.AssigneeID, u.ClearAssignee)
	set("due_date", u.DueDate, u.ClearDueDate)
	set("parent_task_id", u.ParentTaskID, u.ClearParent)
	return body
}

// ListOptions filters ListTasks.
type ListOptions struct {
	Status     string
	Priority   string
	AssigneeID string
	ParentID   string
	RootsOnly  bool
	Search     string
	Limit      int
}

func (o ListOptions) query() string {
	q := url.Values{}
	for k, v := range map[string]string{
		"status":         o.Status,
		"priority":       o.Priority,
		"assignee_id":    o.AssigneeID,
		"parent_task_id": o.ParentID,
		"q":              o.Search,
	} {
		if v != "" {
			q.Set(k, v)
		}
	}
	if o.RootsOnly {
		q.Set("roots", "true")
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ErrorCode returns the API error code carried by err, or "".
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

type items[T any] struct {
	Items []T `json:"items"`
}

func (c *Client) CreateProject(ctx context.Context, id, name, description string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects", map[string]any{"id": id, "name": name, "description": description}, &resp)
	return resp, err
}

func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var resp items[Project]
	err := c.do(ctx, http.MethodGet, "v0/projects", nil, &resp)
	return resp.Items, err
}

// AddMember adds userID to the project or changes their role.
func (c *Client) AddMember(ctx context.Context, userID, role string) (Member, error) {
	var resp Member
	err := c.do(ctx, http.MethodPost, c.projectPath("members"), map[string]any{"user_id": userID, "role": role}, &resp)
	return resp, err
}

func (c *Client) RemoveMember(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodDelete, c.projectPath("members/"+url.PathEscape(userID)), nil, nil)
}

func (c *Client) ListMembers(ctx context.Context) ([]Member, error) {
	var resp items[Member]
	err := c.do(ctx, http.MethodGet, c.projectPath("members"), nil, &resp)
	return resp.Items, err
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, in NewTask) (TaskDetail, error) {
	var resp TaskDetail
	err := c.do(ctx, http.MethodPost, c.projectPath("tasks"), in, &resp)
	return resp, err
}

func (c *Client) GetTask(ctx context.Context, id string) (TaskDetail, error) {
	var resp TaskDetail
	err := c.do(ctx, http.MethodGet, c.taskPath(id, ""), nil, &resp)
	return resp, err
}

func (c *Client) ListTasks(ctx context.Context, opts ListOptions) ([]Task, error) {
	var resp items[Task]
	err := c.do(ctx, http.MethodGet, c.projectPath("tasks")+opts.query(), nil, &resp)
	return resp.Items, err
}

func (c *Client) UpdateTask(ctx context.Context, id string, u TaskUpdate) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, c.taskPath(id, ""), u.body(), &resp)
	return resp, err
}

// DeleteTask deletes a task. subtasks is "", "promote" or "delete".
func (c *Client) DeleteTask(ctx context.Context, id, subtasks string) error {
	endpoint := c.taskPath(id, "")
	if subtasks != "" {
		endpoint += "?subtasks=" + url.QueryEscape(subtasks)
	}
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// MoveTask places a task at a 1-based position among its siblings.
func (c *Client) MoveTask(ctx context.Context, id string, position int) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, c.taskPath(id, "move"), map[string]any{"position": position}, &resp)
	return resp, err
}

func (c *Client) AddDependency(ctx context.Context, taskID, dependsOnID, depType string) (Dependency, error) {
	body := map[string]any{"depends_on_task_id": dependsOnID}
	if depType != "" {
		body["dependency_type"] = depType
	}
	var resp Dependency
	err := c.do(ctx, http.MethodPost, c.taskPath(taskID, "dependencies"), body, &resp)
	return resp, err
}

func (c *Client) RemoveDependency(ctx context.Context, taskID, dependsOnID string) error {
	return c.do(ctx, http.MethodDelete, c.taskPath(taskID, "dependencies/"+url.PathEscape(dependsOnID)), nil, nil)
}

func (c *Client) AddComment(ctx context.Context, taskID, body string) (Comment, error) {
	var resp Comment
	err := c.do(ctx, http.MethodPost, c.taskPath(taskID, "comments"), map[string]any{"body": body}, &resp)
	return resp, err
}

// Tree returns the project hierarchy, or the subtree under rootID.
func (c *Client) Tree(ctx context.Context, rootID string) ([]*TreeNode, error) {
	endpoint := c.projectPath("tree")
	if rootID != "" {
		endpoint += "?root=" + url.QueryEscape(rootID)
	}
	var resp items[*TreeNode]
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Events returns recent events, newest first.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := c.projectPath("events")
	if limit > 0 {
		endpoint += "?limit=" + strconv.Itoa(limit)
	}
	var resp items[Event]
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	return fmt.Sprintf("v0/projects/%s/%s", project, strings.TrimLeft(p, "/"))
}

func (c *Client) taskPath(id, sub string) string {
	p := "tasks/" + url.PathEscape(id)
	if sub != "" {
		p += "/" + sub
	}
	return c.projectPath(p)
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
