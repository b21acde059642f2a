package engine_test

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasktree/internal/db"
	"tasktree/internal/domain"
	"tasktree/internal/engine"
	"tasktree/internal/engine/auth"
	"tasktree/internal/migrate"
	"tasktree/internal/repo"
)

const project = "p1"

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	eng := engine.New(conn)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	_, err = eng.CreateProject(ctx, engine.ProjectCreateOptions{ID: project, Name: "Project One", ActorID: "owner"})
	require.NoError(t, err)
	for user, role := range map[string]string{"admin": domain.RoleAdmin, "alice": domain.RoleMember, "bob": domain.RoleMember} {
		_, err := eng.AddMember(ctx, engine.MemberOptions{ProjectID: project, UserID: user, Role: role, ActorID: "owner"})
		require.NoError(t, err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) create(t *testing.T, title, parent, actor string) domain.TaskDetail {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: project, Title: title, ParentID: parent, ActorID: actor})
	require.NoError(t, err)
	return task
}

func (env testEnv) task(t *testing.T, id string) domain.Task {
	t.Helper()
	task, err := env.Engine.Repo.GetTask(env.Ctx, nil, id)
	require.NoError(t, err)
	return task
}

// requireDense asserts the group holds exactly positions 1..N and returns
// the ids in position order.
func (env testEnv) requireDense(t *testing.T, parent *string) []string {
	t.Helper()
	group, err := env.Engine.Repo.ListGroup(env.Ctx, nil, project, parent)
	require.NoError(t, err)
	var positions []int
	var ids []string
	for _, task := range group {
		positions = append(positions, task.Position)
		ids = append(ids, task.ID)
	}
	sort.Ints(positions)
	for i, p := range positions {
		require.Equal(t, i+1, p, "positions %v", positions)
	}
	return ids
}

func requireForbidden(t *testing.T, err error) {
	t.Helper()
	var fe auth.ForbiddenError
	require.ErrorAs(t, err, &fe)
}

func ptr(s string) *string { return &s }

func TestCreateAssignsSequentialPositions(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "A", "", "alice")
	b := env.create(t, "B", "", "alice")
	assert.Equal(t, 1, a.Position)
	assert.Equal(t, 2, b.Position)
	require.NotNil(t, a.Creator)
	assert.Equal(t, "alice", a.Creator.ID)

	child := env.create(t, "child", a.ID, "alice")
	assert.Equal(t, 1, child.Position)
	require.NotNil(t, child.Parent)
	assert.Equal(t, a.ID, child.Parent.ID)
}

func TestCreateValidatesParent(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: project, Title: "x", ParentID: "missing", ActorID: "alice"})
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, err = env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{ID: "p2", Name: "Two", ActorID: "alice"})
	require.NoError(t, err)
	other, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: "p2", Title: "other", ActorID: "alice"})
	require.NoError(t, err)
	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: project, Title: "x", ParentID: other.ID, ActorID: "alice"})
	assert.ErrorIs(t, err, engine.ErrInvalidParent)

	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: project, Title: "  ", ActorID: "alice"})
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: project, Title: "x", Status: "later", ActorID: "alice"})
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
}

func TestDeletePromoteRenumbers(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "A", "", "alice")
	b := env.create(t, "B", "", "alice")

	require.NoError(t, env.Engine.DeleteTask(env.Ctx, engine.TaskDeleteOptions{ID: a.ID, Subtasks: domain.SubtasksPromote, ActorID: "alice"}))
	assert.Equal(t, 1, env.task(t, b.ID).Position)
}

func TestDeletePromoteAppendsChildrenInOrder(t *testing.T) {
	env := newTestEnv(t)
	root := env.create(t, "root", "", "alice")
	a := env.create(t, "A", root.ID, "alice")
	env.create(t, "sibling", root.ID, "alice")
	c1 := env.create(t, "c1", a.ID, "alice")
	c2 := env.create(t, "c2", a.ID, "alice")

	require.NoError(t, env.Engine.DeleteTask(env.Ctx, engine.TaskDeleteOptions{ID: a.ID, Subtasks: domain.SubtasksPromote, ActorID: "alice"}))
	ids := env.requireDense(t, &root.ID)
	require.Len(t, ids, 3)
	assert.Equal(t, []string{c1.ID, c2.ID}, ids[1:])
	assert.Equal(t, root.ID, *env.task(t, c1.ID).ParentTaskID)
}

func TestDeleteSubtreeRemovesDescendants(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "A", "", "alice")
	b := env.create(t, "B", a.ID, "alice")
	c := env.create(t, "C", a.ID, "alice")
	d := env.create(t, "D", b.ID, "alice")
	keep := env.create(t, "keep", "", "alice")
	_, err := env.Engine.AddDependency(env.Ctx, engine.DependencyOptions{TaskID: keep.ID, DependsOnID: d.ID, ActorID: "alice"})
	require.NoError(t, err)

	require.NoError(t, env.Engine.DeleteTask(env.Ctx, engine.TaskDeleteOptions{ID: a.ID, Subtasks: domain.SubtasksDelete, ActorID: "alice"}))
	for _, id := range []string{a.ID, b.ID, c.ID, d.ID} {
		_, err := env.Engine.Repo.GetTask(env.Ctx, nil, id)
		assert.ErrorIs(t, err, repo.ErrNotFound, id)
	}
	assert.Equal(t, 1, env.task(t, keep.ID).Position)
	deps, err := env.Engine.Repo.ListDependencies(env.Ctx, nil, keep.ID)
	require.NoError(t, err)
	assert.Empty(t, deps)
}

func TestDeleteWithoutPolicyKeepsEverything(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "A", "", "alice")
	b := env.create(t, "B", a.ID, "alice")

	err := env.Engine.DeleteTask(env.Ctx, engine.TaskDeleteOptions{ID: a.ID, ActorID: "alice"})
	require.ErrorIs(t, err, engine.ErrSubtasksPresent)
	env.task(t, a.ID)
	assert.Equal(t, a.ID, *env.task(t, b.ID).ParentTaskID)

	err = env.Engine.DeleteTask(env.Ctx, engine.TaskDeleteOptions{ID: a.ID, Subtasks: "archive", ActorID: "alice"})
	assert.ErrorIs(t, err, engine.ErrInvalidInput)

	leaf := env.create(t, "leaf", "", "alice")
	require.NoError(t, env.Engine.DeleteTask(env.Ctx, engine.TaskDeleteOptions{ID: leaf.ID, ActorID: "alice"}))
}

func TestDependencyCycleRejected(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "A", "", "alice")
	b := env.create(t, "B", "", "alice")
	c := env.create(t, "C", "", "alice")

	_, err := env.Engine.AddDependency(env.Ctx, engine.DependencyOptions{TaskID: a.ID, DependsOnID: b.ID, Type: domain.DepBlocks, ActorID: "alice"})
	require.NoError(t, err)
	_, err = env.Engine.AddDependency(env.Ctx, engine.DependencyOptions{TaskID: b.ID, DependsOnID: a.ID, ActorID: "alice"})
	require.ErrorIs(t, err, engine.ErrCircularDependency)

	_, err = env.Engine.AddDependency(env.Ctx, engine.DependencyOptions{TaskID: b.ID, DependsOnID: c.ID, ActorID: "alice"})
	require.NoError(t, err)
	_, err = env.Engine.AddDependency(env.Ctx, engine.DependencyOptions{TaskID: c.ID, DependsOnID: a.ID, ActorID: "alice"})
	require.ErrorIs(t, err, engine.ErrCircularDependency)

	_, err = env.Engine.AddDependency(env.Ctx, engine.DependencyOptions{TaskID: a.ID, DependsOnID: a.ID, ActorID: "alice"})
	require.ErrorIs(t, err, engine.ErrCircularDependency)

	adj, err := env.Engine.Repo.DependencyAdjacency(env.Ctx, nil, project)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{a.ID: {b.ID}, b.ID: {c.ID}}, adj)
}

func TestDependencyIdempotentAndRemovable(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "A", "", "alice")
	b := env.create(t, "B", "", "alice")

	first, err := env.Engine.AddDependency(env.Ctx, engine.DependencyOptions{TaskID: a.ID, DependsOnID: b.ID, ActorID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, domain.DepBlocks, first.Type)
	assert.Len(t, first.ID, 26)

	again, err := env.Engine.AddDependency(env.Ctx, engine.DependencyOptions{TaskID: a.ID, DependsOnID: b.ID, ActorID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	retyped, err := env.Engine.AddDependency(env.Ctx, engine.DependencyOptions{TaskID: a.ID, DependsOnID: b.ID, Type: domain.DepStartToStart, ActorID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, retyped.ID)
	assert.Equal(t, domain.DepStartToStart, retyped.Type)

	detail, err := env.Engine.GetTask(env.Ctx, b.ID, "bob")
	require.NoError(t, err)
	require.Len(t, detail.Dependents, 1)
	assert.Equal(t, a.ID, detail.Dependents[0].TaskID)

	require.NoError(t, env.Engine.RemoveDependency(env.Ctx, a.ID, b.ID, "alice"))
	require.NoError(t, env.Engine.RemoveDependency(env.Ctx, a.ID, b.ID, "alice"))
	require.NoError(t, env.Engine.RemoveDependency(env.Ctx, "missing", b.ID, "alice"))
	_, err = env.Engine.Repo.GetDependency(env.Ctx, nil, a.ID, b.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestDependencyAcrossProjects(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "A", "", "alice")
	_, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{ID: "p2", Name: "Two", ActorID: "alice"})
	require.NoError(t, err)
	other, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: "p2", Title: "other", ActorID: "alice"})
	require.NoError(t, err)

	_, err = env.Engine.AddDependency(env.Ctx, engine.DependencyOptions{TaskID: a.ID, DependsOnID: other.ID, ActorID: "alice"})
	assert.ErrorIs(t, err, engine.ErrCrossProject)
	_, err = env.Engine.AddDependency(env.Ctx, engine.DependencyOptions{TaskID: a.ID, DependsOnID: "missing", ActorID: "alice"})
	assert.ErrorIs(t, err, repo.ErrNotFound)
	_, err = env.Engine.AddDependency(env.Ctx, engine.DependencyOptions{TaskID: a.ID, DependsOnID: other.ID, Type: "soon", ActorID: "alice"})
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
}

func TestReparentCycleRejected(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "A", "", "alice")
	b := env.create(t, "B", a.ID, "alice")
	c := env.create(t, "C", b.ID, "alice")

	_, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: a.ID, SetParent: ptr(c.ID), ActorID: "alice"})
	require.ErrorIs(t, err, engine.ErrCircularDependency)
	assert.Nil(t, env.task(t, a.ID).ParentTaskID)

	_, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: a.ID, SetParent: ptr(a.ID), ActorID: "alice"})
	require.ErrorIs(t, err, engine.ErrInvalidParent)

	_, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: a.ID, SetParent: ptr("missing"), ActorID: "alice"})
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestReparentMovesBetweenGroups(t *testing.T) {
	env := newTestEnv(t)
	x := env.create(t, "X", "", "alice")
	y := env.create(t, "Y", "", "alice")
	z := env.create(t, "Z", "", "alice")
	env.create(t, "Y1", y.ID, "alice")

	moved, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: x.ID, SetParent: ptr(y.ID), ActorID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 2, moved.Position)
	assert.Equal(t, []string{y.ID, z.ID}, env.requireDense(t, nil))
	env.requireDense(t, &y.ID)

	back, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: x.ID, ClearParent: true, ActorID: "alice"})
	require.NoError(t, err)
	assert.Nil(t, back.ParentTaskID)
	assert.Equal(t, 3, back.Position)
	assert.Equal(t, []string{y.ID, z.ID, x.ID}, env.requireDense(t, nil))
	env.requireDense(t, &y.ID)
}

func TestCompletedAtFollowsStatus(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "A", "", "alice")
	assert.Nil(t, a.CompletedAt)

	done, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: a.ID, Status: ptr(domain.StatusDone), ActorID: "alice"})
	require.NoError(t, err)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, "2024-01-01T00:00:00Z", *done.CompletedAt)

	title, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: a.ID, Title: ptr("renamed"), ActorID: "alice"})
	require.NoError(t, err)
	assert.NotNil(t, title.CompletedAt)

	reopened, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: a.ID, Status: ptr(domain.StatusReview), ActorID: "alice"})
	require.NoError(t, err)
	assert.Nil(t, reopened.CompletedAt)
	assert.Nil(t, env.task(t, a.ID).CompletedAt)

	born, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: project, Title: "done already", Status: domain.StatusDone, ActorID: "alice"})
	require.NoError(t, err)
	assert.NotNil(t, born.CompletedAt)
}

func TestMoveKeepsPositionsDense(t *testing.T) {
	env := newTestEnv(t)
	var ids []string
	for _, title := range []string{"A", "B", "C", "D"} {
		ids = append(ids, env.create(t, title, "", "alice").ID)
	}
	moved, err := env.Engine.MoveTask(env.Ctx, ids[3], 1, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, moved.Position)
	assert.Equal(t, []string{ids[3], ids[0], ids[1], ids[2]}, env.requireDense(t, nil))

	_, err = env.Engine.MoveTask(env.Ctx, ids[3], 99, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{ids[0], ids[1], ids[2], ids[3]}, env.requireDense(t, nil))

	require.NoError(t, env.Engine.DeleteTask(env.Ctx, engine.TaskDeleteOptions{ID: ids[1], ActorID: "alice"}))
	assert.Equal(t, []string{ids[0], ids[2], ids[3]}, env.requireDense(t, nil))

	_, err = env.Engine.MoveTask(env.Ctx, "missing", 1, "alice")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestAuthorizationMatrix(t *testing.T) {
	env := newTestEnv(t)
	mine := env.create(t, "alice's", "", "alice")

	// plain member without a relation to the task
	_, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: mine.ID, Title: ptr("hijack"), ActorID: "bob"})
	requireForbidden(t, err)
	_, err = env.Engine.MoveTask(env.Ctx, mine.ID, 1, "bob")
	requireForbidden(t, err)
	requireForbidden(t, env.Engine.DeleteTask(env.Ctx, engine.TaskDeleteOptions{ID: mine.ID, ActorID: "bob"}))

	// assignment grants edit rights
	_, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: mine.ID, SetAssignee: ptr("bob"), ActorID: "alice"})
	require.NoError(t, err)
	_, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: mine.ID, Priority: ptr(domain.PriorityHigh), ActorID: "bob"})
	require.NoError(t, err)

	// owners and admins may edit anything
	for _, actor := range []string{"owner", "admin"} {
		_, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: mine.ID, Description: ptr("by " + actor), ActorID: actor})
		require.NoError(t, err, actor)
	}

	// non-members can do nothing
	other := env.create(t, "other", "", "alice")
	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: project, Title: "x", ActorID: "stranger"})
	requireForbidden(t, err)
	_, err = env.Engine.GetTask(env.Ctx, mine.ID, "stranger")
	requireForbidden(t, err)
	_, err = env.Engine.ListTasks(env.Ctx, project, "stranger", engine.TaskListFilters{})
	requireForbidden(t, err)
	_, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: mine.ID, Title: ptr("x"), ActorID: "stranger"})
	requireForbidden(t, err)
	_, err = env.Engine.MoveTask(env.Ctx, mine.ID, 2, "stranger")
	requireForbidden(t, err)
	requireForbidden(t, env.Engine.DeleteTask(env.Ctx, engine.TaskDeleteOptions{ID: mine.ID, ActorID: "stranger"}))
	_, err = env.Engine.AddDependency(env.Ctx, engine.DependencyOptions{TaskID: mine.ID, DependsOnID: other.ID, ActorID: "stranger"})
	requireForbidden(t, err)
	requireForbidden(t, env.Engine.RemoveDependency(env.Ctx, mine.ID, other.ID, "stranger"))
	_, err = env.Engine.Tree(env.Ctx, project, "", "stranger")
	requireForbidden(t, err)
	_, err = env.Engine.AddComment(env.Ctx, mine.ID, "hi", "stranger")
	requireForbidden(t, err)

	assert.Equal(t, "alice's", env.task(t, mine.ID).Title)
}

func TestListTasksFiltersAndSearch(t *testing.T) {
	env := newTestEnv(t)
	root := env.create(t, "École work", "", "alice")
	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ProjectID: project, Title: "plain", Description: "Fix the ÉCOLE sign", ParentID: root.ID,
		Priority: domain.PriorityCritical, AssigneeID: "bob", ActorID: "alice",
	})
	require.NoError(t, err)
	env.create(t, "unrelated", "", "alice")

	found, err := env.Engine.ListTasks(env.Ctx, project, "bob", engine.TaskListFilters{Search: "école"})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	roots, err := env.Engine.ListTasks(env.Ctx, project, "bob", engine.TaskListFilters{RootsOnly: true})
	require.NoError(t, err)
	assert.Len(t, roots, 2)

	critical, err := env.Engine.ListTasks(env.Ctx, project, "bob", engine.TaskListFilters{Priority: domain.PriorityCritical, AssigneeID: "bob"})
	require.NoError(t, err)
	require.Len(t, critical, 1)
	assert.Equal(t, "plain", critical[0].Title)

	limited, err := env.Engine.ListTasks(env.Ctx, project, "bob", engine.TaskListFilters{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = env.Engine.ListTasks(env.Ctx, project, "bob", engine.TaskListFilters{Status: "nope"})
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
}

func TestTreeAndDetail(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "A", "", "alice")
	b := env.create(t, "B", a.ID, "alice")
	env.create(t, "C", b.ID, "alice")
	env.create(t, "D", "", "alice")

	roots, err := env.Engine.Tree(env.Ctx, project, "", "bob")
	require.NoError(t, err)
	require.Len(t, roots, 2)
	assert.Equal(t, "B", roots[0].Children[0].Task.Title)
	assert.Equal(t, "C", roots[0].Children[0].Children[0].Task.Title)

	sub, err := env.Engine.Tree(env.Ctx, project, b.ID, "bob")
	require.NoError(t, err)
	require.Len(t, sub, 1)
	assert.Len(t, sub[0].Children, 1)

	_, err = env.Engine.AddComment(env.Ctx, a.ID, "first", "bob")
	require.NoError(t, err)
	_, err = env.Engine.AddComment(env.Ctx, a.ID, "   ", "bob")
	assert.ErrorIs(t, err, engine.ErrInvalidInput)

	detail, err := env.Engine.GetTask(env.Ctx, a.ID, "bob")
	require.NoError(t, err)
	require.Len(t, detail.Subtasks, 1)
	assert.Equal(t, b.ID, detail.Subtasks[0].ID)
	require.Len(t, detail.Comments, 1)
	assert.Equal(t, "first", detail.Comments[0].Body)
}

func TestMembershipManagement(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.Engine.AddMember(env.Ctx, engine.MemberOptions{ProjectID: project, UserID: "carol", ActorID: "alice"})
	requireForbidden(t, err)
	_, err = env.Engine.AddMember(env.Ctx, engine.MemberOptions{ProjectID: project, UserID: "carol", Role: domain.RoleOwner, ActorID: "admin"})
	requireForbidden(t, err)

	m, err := env.Engine.AddMember(env.Ctx, engine.MemberOptions{ProjectID: project, UserID: "carol", DisplayName: "Carol", ActorID: "admin"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleMember, m.Role)
	assert.Equal(t, "Carol", m.DisplayName)

	require.ErrorIs(t, env.Engine.RemoveMember(env.Ctx, project, "owner", "owner"), engine.ErrLastOwner)
	_, err = env.Engine.AddMember(env.Ctx, engine.MemberOptions{ProjectID: project, UserID: "owner", Role: domain.RoleMember, ActorID: "owner"})
	require.ErrorIs(t, err, engine.ErrLastOwner)

	require.NoError(t, env.Engine.RemoveMember(env.Ctx, project, "carol", "admin"))
	require.ErrorIs(t, env.Engine.RemoveMember(env.Ctx, project, "carol", "admin"), repo.ErrNotFound)

	members, err := env.Engine.ListMembers(env.Ctx, project, "bob")
	require.NoError(t, err)
	assert.Len(t, members, 4)

	projects, err := env.Engine.ListProjects(env.Ctx, "bob")
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "Project One", projects[0].Name)

	evts, err := env.Engine.ListEvents(env.Ctx, project, "bob", 100)
	require.NoError(t, err)
	assert.NotEmpty(t, evts)
}

func TestCreateProjectIDRules(t *testing.T) {
	env := newTestEnv(t)

	for _, id := range []string{"a.b", "team *", "x>y", "-lead", "tab\tid"} {
		_, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{ID: id, Name: "Bad", ActorID: "alice"})
		require.ErrorIs(t, err, engine.ErrInvalidInput, id)
	}
	_, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{ID: project, Name: "Again", ActorID: "alice"})
	require.ErrorIs(t, err, repo.ErrConflict)

	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{Name: "Generated", ActorID: "alice"})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)

	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ID: "dup", ProjectID: project, Title: "one", ActorID: "alice"})
	require.NoError(t, err)
	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ID: "dup", ProjectID: project, Title: "two", ActorID: "alice"})
	require.ErrorIs(t, err, repo.ErrConflict)
}
