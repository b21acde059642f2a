package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"tasktree/internal/domain"
	"tasktree/internal/engine"
	"tasktree/internal/repo"
)

var mutationErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
}

type projectPath struct {
	ProjectID string `path:"project_id"`
}

type taskPath struct {
	ProjectID string `path:"project_id"`
	TaskID    string `path:"task_id"`
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProject(ctx, engine.ProjectCreateOptions{
			ID:          input.Body.ID,
			Name:        input.Body.Name,
			Description: input.Body.Description,
			ActorID:     actorID,
			ActorName:   input.Body.DisplayName,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects the caller belongs to",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body projectList `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListProjects(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body projectList `json:"body"`
		}{Body: projectList{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.GetProject(ctx, input.ProjectID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})
}

func registerMembers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/members",
		Summary:     "List project members",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body memberList `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListMembers(ctx, input.ProjectID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body memberList `json:"body"`
		}{Body: memberList{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-member",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/members",
		Summary:     "Add a member or change a member's role",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string           `path:"project_id"`
		Body      AddMemberRequest `json:"body"`
	}) (*struct {
		Body domain.Member `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.AddMember(ctx, engine.MemberOptions{
			ProjectID:   input.ProjectID,
			UserID:      input.Body.UserID,
			DisplayName: input.Body.DisplayName,
			Role:        input.Body.Role,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Member `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-member",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}/members/{user_id}",
		Summary:       "Remove a member",
		DefaultStatus: http.StatusNoContent,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		UserID    string `path:"user_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveMember(ctx, input.ProjectID, input.UserID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		Body      CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.TaskDetail `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
			ID:          input.Body.ID,
			ProjectID:   input.ProjectID,
			ParentID:    input.Body.ParentTaskID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Status:      input.Body.Status,
			Priority:    input.Body.Priority,
			AssigneeID:  input.Body.AssigneeID,
			DueDate:     input.Body.DueDate,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TaskDetail `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tasks",
		Summary:     "List tasks",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ProjectID  string `path:"project_id"`
		Status     string `query:"status"`
		Priority   string `query:"priority"`
		AssigneeID string `query:"assignee_id"`
		ParentID   string `query:"parent_task_id"`
		Roots      bool   `query:"roots" doc:"Only top-level tasks"`
		Search     string `query:"q" doc:"Case-insensitive match on title and description"`
		Limit      int    `query:"limit" default:"50"`
	}) (*struct {
		Body taskList `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListTasks(ctx, input.ProjectID, actorID, engine.TaskListFilters{
			Status:     input.Status,
			Priority:   input.Priority,
			AssigneeID: input.AssigneeID,
			ParentID:   input.ParentID,
			RootsOnly:  input.Roots,
			Search:     input.Search,
			Limit:      normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body taskList `json:"body"`
		}{Body: taskList{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tasks/{task_id}",
		Summary:     "Get task with relations",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body domain.TaskDetail `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := taskInProject(ctx, e, input.ProjectID, input.TaskID); err != nil {
			return nil, handleError(err)
		}
		t, err := e.GetTask(ctx, input.TaskID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TaskDetail `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/tasks/{task_id}",
		Summary:     "Update task",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		TaskID    string            `path:"task_id"`
		Body      UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := taskInProject(ctx, e, input.ProjectID, input.TaskID); err != nil {
			return nil, handleError(err)
		}
		raw := rawBodyMap(ctx)
		opts := engine.TaskUpdateOptions{
			ID:          input.TaskID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Status:      input.Body.Status,
			Priority:    input.Body.Priority,
			SetAssignee: input.Body.AssigneeID,
			SetDueDate:  input.Body.DueDate,
			SetParent:   input.Body.ParentTaskID,
			ActorID:     actorID,
		}
		if v, ok := raw["assignee_id"]; ok && isNullRaw(v) {
			opts.ClearAssignee = true
		}
		if v, ok := raw["due_date"]; ok && isNullRaw(v) {
			opts.ClearDueDate = true
		}
		if v, ok := raw["parent_task_id"]; ok && isNullRaw(v) {
			opts.ClearParent = true
		}
		t, err := e.UpdateTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}/tasks/{task_id}",
		Summary:       "Delete task",
		Description:   "A task with subtasks needs subtasks=promote or subtasks=delete.",
		DefaultStatus: http.StatusNoContent,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		TaskID    string `path:"task_id"`
		Subtasks  string `query:"subtasks" doc:"promote or delete"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := taskInProject(ctx, e, input.ProjectID, input.TaskID); err != nil {
			return nil, handleError(err)
		}
		err := e.DeleteTask(ctx, engine.TaskDeleteOptions{
			ID:       input.TaskID,
			Subtasks: strings.TrimSpace(input.Subtasks),
			ActorID:  actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-task",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/tasks/{task_id}/move",
		Summary:     "Move task within its sibling group",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string          `path:"project_id"`
		TaskID    string          `path:"task_id"`
		Body      MoveTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := taskInProject(ctx, e, input.ProjectID, input.TaskID); err != nil {
			return nil, handleError(err)
		}
		t, err := e.MoveTask(ctx, input.TaskID, input.Body.Position, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})
}

func registerDependencies(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-dependency",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/tasks/{task_id}/dependencies",
		Summary:       "Add dependency",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		TaskID    string               `path:"task_id"`
		Body      AddDependencyRequest `json:"body"`
	}) (*struct {
		Body domain.Dependency `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := taskInProject(ctx, e, input.ProjectID, input.TaskID); err != nil {
			return nil, handleError(err)
		}
		dep, err := e.AddDependency(ctx, engine.DependencyOptions{
			TaskID:      input.TaskID,
			DependsOnID: input.Body.DependsOnTaskID,
			Type:        input.Body.Type,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Dependency `json:"body"`
		}{Body: dep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-dependency",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}/tasks/{task_id}/dependencies/{depends_on_task_id}",
		Summary:       "Remove dependency",
		Description:   "Removing an edge that does not exist succeeds.",
		DefaultStatus: http.StatusNoContent,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID       string `path:"project_id"`
		TaskID          string `path:"task_id"`
		DependsOnTaskID string `path:"depends_on_task_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		// A missing task is a no-op; one that lives in another project is not.
		t, err := e.Repo.GetTask(ctx, nil, input.TaskID)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			return &struct{}{}, nil
		case err != nil:
			return nil, handleError(err)
		case t.ProjectID != input.ProjectID:
			return nil, handleError(fmt.Errorf("task %s in project %s: %w", input.TaskID, input.ProjectID, repo.ErrNotFound))
		}
		if err := e.RemoveDependency(ctx, input.TaskID, input.DependsOnTaskID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerComments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-comment",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/tasks/{task_id}/comments",
		Summary:       "Comment on a task",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		TaskID    string               `path:"task_id"`
		Body      CreateCommentRequest `json:"body"`
	}) (*struct {
		Body domain.Comment `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := taskInProject(ctx, e, input.ProjectID, input.TaskID); err != nil {
			return nil, handleError(err)
		}
		c, err := e.AddComment(ctx, input.TaskID, input.Body.Body, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Comment `json:"body"`
		}{Body: c}, nil
	})
}

func registerTree(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "task-tree",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tree",
		Summary:     "Task hierarchy",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Root      string `query:"root" doc:"Only the subtree under this task"`
	}) (*struct {
		Body treeResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		nodes, err := e.Tree(ctx, input.ProjectID, input.Root, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body treeResponse `json:"body"`
		}{Body: treeResponse{Items: nonNilSlice(nodes)}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/events",
		Summary:     "List recent events, newest first",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Limit     int    `query:"limit" default:"50"`
	}) (*struct {
		Body eventList `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListEvents(ctx, input.ProjectID, actorID, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body eventList `json:"body"`
		}{Body: eventList{Items: nonNilSlice(items)}}, nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body Principal `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		return &struct {
			Body Principal `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/me/api-keys",
		Summary:       "Create an API key for the caller",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		key, secret, err := e.CreateAPIKey(ctx, actorID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		resp := apiKeyResponse(key)
		resp.Key = secret
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/me/api-keys",
		Summary:     "List the caller's API keys",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body apiKeyList `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := e.Repo.ListAPIKeys(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := apiKeyList{Items: []APIKeyResponse{}}
		for _, k := range keys {
			resp.Items = append(resp.Items, apiKeyResponse(k))
		}
		return &struct {
			Body apiKeyList `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-api-key",
		Method:        http.MethodDelete,
		Path:          "/me/api-keys/{key_id}",
		Summary:       "Revoke one of the caller's API keys",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.DeleteAPIKey(ctx, actorID, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := SignToken(authCfg.JWTSecret, actor, input.Body.Name, authCfg.TokenTTL)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}
