package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasktree/internal/app"
	"tasktree/internal/config"
	"tasktree/internal/domain"
)

const testSecret = "test-secret"

type testServer struct {
	*httptest.Server
	app *app.App
}

func newTestServer(t *testing.T, metrics *Metrics) *testServer {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Workspace = t.TempDir()
	a, err := app.Open(context.Background(), cfg)
	require.NoError(t, err)
	handler, err := New(Config{
		Engine:   a.Engine,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testSecret, AllowActorHeader: true, TokenTTL: time.Hour},
		Metrics:  metrics,
	})
	require.NoError(t, err)
	srv := &testServer{Server: httptest.NewServer(handler), app: a}
	t.Cleanup(func() {
		srv.Close()
		a.Close()
	})
	return srv
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (int, []byte) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := s.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, data
}

// as sends a request authenticated with the actor header.
func (s *testServer) as(t *testing.T, actor, method, path string, body any) (int, []byte) {
	t.Helper()
	return s.do(t, method, path, body, map[string]string{"X-Actor-Id": actor})
}

func (s *testServer) seedProject(t *testing.T) {
	t.Helper()
	status, data := s.as(t, "alice", http.MethodPost, "/v0/projects", map[string]any{"id": "p1", "name": "Launch"})
	require.Equal(t, http.StatusCreated, status, string(data))
	status, data = s.as(t, "alice", http.MethodPost, "/v0/projects/p1/members", map[string]any{"user_id": "bob", "role": "member"})
	require.Equal(t, http.StatusOK, status, string(data))
}

func (s *testServer) createTask(t *testing.T, actor string, body map[string]any) domain.TaskDetail {
	t.Helper()
	status, data := s.as(t, actor, http.MethodPost, "/v0/projects/p1/tasks", body)
	require.Equal(t, http.StatusCreated, status, string(data))
	var out domain.TaskDetail
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env.Error.Code
}

func TestHealthIsPublicAndAPIRequiresAuth(t *testing.T) {
	srv := newTestServer(t, nil)

	status, _ := srv.do(t, http.MethodGet, "/v0/health", nil, nil)
	assert.Equal(t, http.StatusOK, status)

	status, data := srv.do(t, http.MethodGet, "/v0/projects", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", errorCode(t, data))

	status, data = srv.do(t, http.MethodGet, "/v0/projects", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid_credentials", errorCode(t, data))
}

func TestTaskLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.seedProject(t)

	parent := srv.createTask(t, "alice", map[string]any{"title": "Backend"})
	assert.Equal(t, domain.StatusTodo, parent.Status)
	assert.Equal(t, 1, parent.Position)
	a := srv.createTask(t, "alice", map[string]any{"title": "API", "parent_task_id": parent.ID, "assignee_id": "bob"})
	b := srv.createTask(t, "alice", map[string]any{"title": "DB", "parent_task_id": parent.ID})
	assert.Equal(t, 2, b.Position)

	status, data := srv.as(t, "alice", http.MethodPost, "/v0/projects/p1/tasks/"+b.ID+"/move", map[string]any{"position": 1})
	require.Equal(t, http.StatusOK, status, string(data))
	var moved domain.Task
	require.NoError(t, json.Unmarshal(data, &moved))
	assert.Equal(t, 1, moved.Position)

	status, data = srv.as(t, "bob", http.MethodPatch, "/v0/projects/p1/tasks/"+a.ID, map[string]any{"status": "done", "assignee_id": nil})
	require.Equal(t, http.StatusOK, status, string(data))
	var updated domain.Task
	require.NoError(t, json.Unmarshal(data, &updated))
	assert.Equal(t, domain.StatusDone, updated.Status)
	assert.NotNil(t, updated.CompletedAt)
	assert.Nil(t, updated.AssigneeID)

	status, data = srv.as(t, "alice", http.MethodGet, "/v0/projects/p1/tasks/"+parent.ID, nil)
	require.Equal(t, http.StatusOK, status, string(data))
	var detail domain.TaskDetail
	require.NoError(t, json.Unmarshal(data, &detail))
	require.Len(t, detail.Subtasks, 2)
	assert.Equal(t, b.ID, detail.Subtasks[0].ID)

	status, data = srv.as(t, "alice", http.MethodDelete, "/v0/projects/p1/tasks/"+parent.ID, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "subtasks_present", errorCode(t, data))

	status, data = srv.as(t, "alice", http.MethodDelete, "/v0/projects/p1/tasks/"+parent.ID+"?subtasks=promote", nil)
	require.Equal(t, http.StatusNoContent, status, string(data))

	status, data = srv.as(t, "alice", http.MethodGet, "/v0/projects/p1/tasks?roots=true", nil)
	require.Equal(t, http.StatusOK, status, string(data))
	var roots taskList
	require.NoError(t, json.Unmarshal(data, &roots))
	require.Len(t, roots.Items, 2)
	assert.Equal(t, b.ID, roots.Items[0].ID)
	assert.Equal(t, a.ID, roots.Items[1].ID)

	status, data = srv.as(t, "alice", http.MethodGet, "/v0/projects/p1/tree", nil)
	require.Equal(t, http.StatusOK, status, string(data))
	var tree treeResponse
	require.NoError(t, json.Unmarshal(data, &tree))
	assert.Len(t, tree.Items, 2)

	status, data = srv.as(t, "alice", http.MethodGet, "/v0/projects/p1/events?limit=1", nil)
	require.Equal(t, http.StatusOK, status, string(data))
	var evts eventList
	require.NoError(t, json.Unmarshal(data, &evts))
	require.Len(t, evts.Items, 1)
	assert.Equal(t, "task.deleted", evts.Items[0].Type)
}

func TestDependencyErrors(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.seedProject(t)
	a := srv.createTask(t, "alice", map[string]any{"title": "A"})
	b := srv.createTask(t, "alice", map[string]any{"title": "B"})

	status, data := srv.as(t, "alice", http.MethodPost, "/v0/projects/p1/tasks/"+a.ID+"/dependencies", map[string]any{"depends_on_task_id": b.ID})
	require.Equal(t, http.StatusCreated, status, string(data))
	var dep domain.Dependency
	require.NoError(t, json.Unmarshal(data, &dep))
	assert.Equal(t, domain.DepBlocks, dep.Type)

	status, data = srv.as(t, "alice", http.MethodPost, "/v0/projects/p1/tasks/"+b.ID+"/dependencies", map[string]any{"depends_on_task_id": a.ID})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "circular_dependency", errorCode(t, data))

	status, data = srv.as(t, "alice", http.MethodPatch, "/v0/projects/p1/tasks/"+a.ID, map[string]any{"parent_task_id": a.ID})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "invalid_parent", errorCode(t, data))

	status, _ = srv.as(t, "alice", http.MethodDelete, "/v0/projects/p1/tasks/"+a.ID+"/dependencies/"+b.ID, nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = srv.as(t, "alice", http.MethodDelete, "/v0/projects/p1/tasks/"+a.ID+"/dependencies/"+b.ID, nil)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestDuplicateIDsConflict(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.seedProject(t)

	status, data := srv.as(t, "alice", http.MethodPost, "/v0/projects", map[string]any{"id": "p1", "name": "Again"})
	assert.Equal(t, http.StatusConflict, status, string(data))
	assert.Equal(t, "already_exists", errorCode(t, data))

	status, data = srv.as(t, "alice", http.MethodPost, "/v0/projects", map[string]any{"id": "bad.id", "name": "Dotted"})
	assert.Equal(t, http.StatusBadRequest, status, string(data))
	assert.Equal(t, "bad_request", errorCode(t, data))

	srv.createTask(t, "alice", map[string]any{"id": "t1", "title": "First"})
	status, data = srv.as(t, "alice", http.MethodPost, "/v0/projects/p1/tasks", map[string]any{"id": "t1", "title": "Second"})
	assert.Equal(t, http.StatusConflict, status, string(data))
	assert.Equal(t, "already_exists", errorCode(t, data))

	status, data = srv.as(t, "alice", http.MethodGet, "/v0/projects/p1/tasks", nil)
	require.Equal(t, http.StatusOK, status, string(data))
	var list taskList
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, "First", list.Items[0].Title)
}

func TestRemoveDependencyChecksProjectPath(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.seedProject(t)
	a := srv.createTask(t, "alice", map[string]any{"title": "A"})
	b := srv.createTask(t, "alice", map[string]any{"title": "B"})
	status, data := srv.as(t, "alice", http.MethodPost, "/v0/projects/p1/tasks/"+a.ID+"/dependencies", map[string]any{"depends_on_task_id": b.ID})
	require.Equal(t, http.StatusCreated, status, string(data))
	status, data = srv.as(t, "alice", http.MethodPost, "/v0/projects", map[string]any{"id": "p9", "name": "Elsewhere"})
	require.Equal(t, http.StatusCreated, status, string(data))

	status, data = srv.as(t, "alice", http.MethodDelete, "/v0/projects/p9/tasks/"+a.ID+"/dependencies/"+b.ID, nil)
	assert.Equal(t, http.StatusNotFound, status, string(data))
	assert.Equal(t, "not_found", errorCode(t, data))

	status, data = srv.as(t, "alice", http.MethodGet, "/v0/projects/p1/tasks/"+a.ID, nil)
	require.Equal(t, http.StatusOK, status, string(data))
	var detail domain.TaskDetail
	require.NoError(t, json.Unmarshal(data, &detail))
	require.Len(t, detail.Dependencies, 1)
	assert.Equal(t, b.ID, detail.Dependencies[0].DependsOnTaskID)

	status, _ = srv.as(t, "alice", http.MethodDelete, "/v0/projects/p1/tasks/missing/dependencies/"+b.ID, nil)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestAuthorizationAndValidationErrors(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.seedProject(t)
	task := srv.createTask(t, "alice", map[string]any{"title": "Owned by alice"})

	status, data := srv.as(t, "mallory", http.MethodGet, "/v0/projects/p1/tasks", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", errorCode(t, data))

	status, data = srv.as(t, "bob", http.MethodPatch, "/v0/projects/p1/tasks/"+task.ID, map[string]any{"title": "mine now"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", errorCode(t, data))

	status, data = srv.as(t, "alice", http.MethodPost, "/v0/projects/p1/tasks", map[string]any{"title": "x", "status": "someday"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "bad_request", errorCode(t, data))

	status, data = srv.as(t, "alice", http.MethodPost, "/v0/projects/p1/tasks", map[string]any{"title": "x", "due_date": "tomorrow"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "bad_request", errorCode(t, data))

	status, data = srv.as(t, "alice", http.MethodGet, "/v0/projects/p1/tasks/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", errorCode(t, data))

	status, _ = srv.as(t, "alice", http.MethodPost, "/v0/projects", map[string]any{"id": "p2", "name": "Other"})
	require.Equal(t, http.StatusCreated, status)
	status, _ = srv.as(t, "alice", http.MethodGet, "/v0/projects/p2/tasks/"+task.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, data = srv.as(t, "alice", http.MethodDelete, "/v0/projects/p1/members/alice", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "last_owner", errorCode(t, data))
}

func TestCommentsAndMembers(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.seedProject(t)
	task := srv.createTask(t, "alice", map[string]any{"title": "Discuss"})

	status, data := srv.as(t, "bob", http.MethodPost, "/v0/projects/p1/tasks/"+task.ID+"/comments", map[string]any{"body": "looks good"})
	require.Equal(t, http.StatusCreated, status, string(data))

	status, data = srv.as(t, "bob", http.MethodGet, "/v0/projects/p1/members", nil)
	require.Equal(t, http.StatusOK, status, string(data))
	var members memberList
	require.NoError(t, json.Unmarshal(data, &members))
	assert.Len(t, members.Items, 2)

	status, _ = srv.as(t, "bob", http.MethodDelete, "/v0/projects/p1/members/alice", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = srv.as(t, "alice", http.MethodDelete, "/v0/projects/p1/members/bob", nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = srv.as(t, "bob", http.MethodGet, "/v0/projects/p1", nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestJWTAndAPIKeyAuth(t *testing.T) {
	srv := newTestServer(t, nil)

	status, data := srv.do(t, http.MethodPost, "/v0/auth/dev/login", map[string]any{"actor_id": "carol"}, nil)
	require.Equal(t, http.StatusOK, status, string(data))
	var login DevLoginResponse
	require.NoError(t, json.Unmarshal(data, &login))

	bearer := map[string]string{"Authorization": "Bearer " + login.Token}
	status, data = srv.do(t, http.MethodGet, "/v0/me", nil, bearer)
	require.Equal(t, http.StatusOK, status, string(data))
	var me Principal
	require.NoError(t, json.Unmarshal(data, &me))
	assert.Equal(t, "carol", me.ActorID)
	assert.Equal(t, "jwt", me.Source)

	status, data = srv.do(t, http.MethodPost, "/v0/me/api-keys", map[string]any{"name": "ci"}, bearer)
	require.Equal(t, http.StatusCreated, status, string(data))
	var key APIKeyResponse
	require.NoError(t, json.Unmarshal(data, &key))
	require.True(t, strings.HasPrefix(key.Key, "tt_"))

	status, data = srv.do(t, http.MethodGet, "/v0/me", nil, map[string]string{"X-Api-Key": key.Key})
	require.Equal(t, http.StatusOK, status, string(data))
	require.NoError(t, json.Unmarshal(data, &me))
	assert.Equal(t, "carol", me.ActorID)
	assert.Equal(t, "api_key", me.Source)

	status, _ = srv.do(t, http.MethodDelete, "/v0/me/api-keys/"+key.ID, nil, bearer)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = srv.do(t, http.MethodGet, "/v0/me", nil, map[string]string{"X-Api-Key": key.Key})
	assert.Equal(t, http.StatusUnauthorized, status)

	wrong, err := SignToken("other-secret", "carol", "", time.Hour)
	require.NoError(t, err)
	status, _ = srv.do(t, http.MethodGet, "/v0/me", nil, map[string]string{"Authorization": "Bearer " + wrong})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, NewMetrics())
	status, _ := srv.do(t, http.MethodGet, "/v0/health", nil, nil)
	require.Equal(t, http.StatusOK, status)

	status, data := srv.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(data), "tasktree_http_requests_total")
	assert.Contains(t, string(data), `route="/v0/health"`)
}

func TestOpenAPIDocument(t *testing.T) {
	srv := newTestServer(t, nil)
	status, data := srv.do(t, http.MethodGet, "/v0/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, status)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/v0/projects/{project_id}/tasks/{task_id}/move")
}
