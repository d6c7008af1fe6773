package engine_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"drydock/internal/config"
	"drydock/internal/db"
	"drydock/internal/domain"
	"drydock/internal/engine"
	"drydock/internal/migrate"
	"drydock/internal/render"
	"drydock/internal/repo"
	"drydock/internal/scope"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context

	Admin scope.Identity
	PM    scope.Identity
	PM2   scope.Identity
	Eng   scope.Identity
	Tech  scope.Identity
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default(), render.NewJSONRenderer(filepath.Join(dir, "reports")))
	eng.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	env := testEnv{
		Engine: eng,
		Ctx:    ctx,
		Admin:  scope.Identity{ActorID: "root", Role: scope.RoleAdmin},
		PM:     scope.Identity{ActorID: "pm1", Role: scope.RoleProjectManager},
		PM2:    scope.Identity{ActorID: "pm2", Role: scope.RoleProjectManager},
		Eng:    scope.Identity{ActorID: "eng1", Role: scope.RoleEngineer},
		Tech:   scope.Identity{ActorID: "tech1", Role: scope.RoleTechnician},
	}
	for _, id := range []scope.Identity{env.Admin, env.PM, env.PM2, env.Eng, env.Tech} {
		a := domain.Actor{
			ID:        id.ActorID,
			Username:  id.ActorID,
			Role:      string(id.Role),
			Active:    true,
			CreatedAt: "2026-03-01T00:00:00Z",
		}
		if err := eng.Repo.InsertActor(ctx, nil, a); err != nil {
			t.Fatalf("seed actor %s: %v", id.ActorID, err)
		}
	}
	return env
}

func (env testEnv) mustCreateProject(t *testing.T, as scope.Identity, id string, members ...string) domain.Project {
	t.Helper()
	p, err := env.Engine.CreateProject(env.Ctx, as, engine.ProjectCreateOptions{
		ID:        id,
		Name:      "Retrofit " + id,
		MemberIDs: members,
	})
	if err != nil {
		t.Fatalf("create project %s: %v", id, err)
	}
	return p
}

func (env testEnv) mustCreateTask(t *testing.T, as scope.Identity, projectID, name, assignee string) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, as, engine.TaskCreateOptions{
		ProjectID:  projectID,
		Name:       name,
		AssignedTo: assignee,
	})
	if err != nil {
		t.Fatalf("create task %s: %v", name, err)
	}
	return task
}

func TestTaskStatusLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreateProject(t, env.PM, "p1", "eng1")
	task := env.mustCreateTask(t, env.PM, "p1", "replace ballast pump", "eng1")

	status := scope.TaskInProgress
	task, err := env.Engine.UpdateTask(env.Ctx, env.Eng, engine.TaskUpdateOptions{ID: task.ID, Status: &status})
	if err != nil || task.Status != scope.TaskInProgress {
		t.Fatalf("to in_progress: %v", err)
	}
	status = scope.TaskCompleted
	task, err = env.Engine.UpdateTask(env.Ctx, env.Eng, engine.TaskUpdateOptions{ID: task.ID, Status: &status})
	if err != nil || task.Status != scope.TaskCompleted {
		t.Fatalf("to completed: %v", err)
	}
	if task.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}

	// completed is terminal for every role, admin included
	status = scope.TaskPending
	_, err = env.Engine.UpdateTask(env.Ctx, env.Admin, engine.TaskUpdateOptions{ID: task.ID, Status: &status})
	var ite scope.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}

func TestSameStatusWriteIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreateProject(t, env.PM, "p1", "eng1")
	task := env.mustCreateTask(t, env.PM, "p1", "inspect hull", "eng1")

	before := task.UpdatedAt
	status := task.Status
	after, err := env.Engine.UpdateTask(env.Ctx, env.Eng, engine.TaskUpdateOptions{ID: task.ID, Status: &status})
	if err != nil {
		t.Fatalf("same-status write: %v", err)
	}
	if after.UpdatedAt != before {
		t.Fatalf("updated_at changed on no-op: %s -> %s", before, after.UpdatedAt)
	}
}

func TestAssigneeMustBeTeamMember(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreateProject(t, env.PM, "p1", "eng1")

	_, err := env.Engine.CreateTask(env.Ctx, env.PM, engine.TaskCreateOptions{
		ProjectID:  "p1",
		Name:       "weld deck plating",
		AssignedTo: "tech1", // not on the team
	})
	if err == nil {
		t.Fatal("expected assignment to non-member to fail")
	}

	task := env.mustCreateTask(t, env.PM, "p1", "weld deck plating", "")
	outsider := "tech1"
	_, err = env.Engine.UpdateTask(env.Ctx, env.PM, engine.TaskUpdateOptions{ID: task.ID, AssignedTo: &outsider})
	if err == nil {
		t.Fatal("expected reassignment to non-member to fail")
	}
}

func TestMemberRemovalUnassignsTasks(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreateProject(t, env.PM, "p1", "eng1", "tech1")
	task := env.mustCreateTask(t, env.PM, "p1", "rewire bridge console", "eng1")

	members := []string{"tech1"}
	updated, err := env.Engine.UpdateProject(env.Ctx, env.PM, engine.ProjectUpdateOptions{ID: "p1", MemberIDs: &members})
	if err != nil {
		t.Fatalf("remove member: %v", err)
	}
	// the returned project reflects the committed team, not the stale one
	if len(updated.MemberIDs) != 1 || updated.MemberIDs[0] != "tech1" {
		t.Fatalf("unexpected team on response: %v", updated.MemberIDs)
	}
	got, err := env.Engine.Repo.GetTask(env.Ctx, nil, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.AssignedTo != nil {
		t.Fatalf("expected task unassigned after member removal, got %v", *got.AssignedTo)
	}
}

func TestProjectDeleteCascadesTasks(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreateProject(t, env.PM, "p1", "eng1")
	task := env.mustCreateTask(t, env.PM, "p1", "strip old paint", "")

	if err := env.Engine.DeleteProject(env.Ctx, env.PM, "p1"); err != nil {
		t.Fatalf("delete project: %v", err)
	}
	_, err := env.Engine.Repo.GetTask(env.Ctx, nil, task.ID)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected task gone with project, got %v", err)
	}
}

func TestEngineerVisibility(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreateProject(t, env.PM, "p1", "eng1")
	env.mustCreateProject(t, env.PM2, "p2", "tech1")
	assigned := env.mustCreateTask(t, env.PM, "p1", "mine", "eng1")
	env.mustCreateTask(t, env.PM, "p1", "someone else's", "")

	projects, err := env.Engine.ListProjects(env.Ctx, env.Eng)
	if err != nil {
		t.Fatalf("list projects: %v", err)
	}
	if len(projects) != 1 || projects[0].ID != "p1" {
		t.Fatalf("engineer should see only p1, got %v", projects)
	}

	// an out-of-scope project reads exactly like a missing one
	_, err = env.Engine.GetProject(env.Ctx, env.Eng, "p2")
	var see scope.ScopeEmptyError
	if !errors.As(err, &see) {
		t.Fatalf("expected ScopeEmptyError, got %v", err)
	}

	// unassigned tasks in the engineer's own project stay invisible
	tasks, err := env.Engine.ListTasks(env.Ctx, env.Eng, "")
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != assigned.ID {
		t.Fatalf("engineer should see only assigned tasks, got %d", len(tasks))
	}
}

func TestProjectManagerCreatorScoping(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreateProject(t, env.PM, "p1")
	env.mustCreateProject(t, env.PM2, "p2")

	projects, err := env.Engine.ListProjects(env.Ctx, env.PM)
	if err != nil {
		t.Fatalf("list projects: %v", err)
	}
	if len(projects) != 1 || projects[0].ID != "p1" {
		t.Fatalf("pm1 should see only own project, got %v", projects)
	}
	_, err = env.Engine.UpdateProject(env.Ctx, env.PM, engine.ProjectUpdateOptions{ID: "p2", Description: strPtr("hijack")})
	var pde scope.PermissionDeniedError
	if !errors.As(err, &pde) {
		t.Fatalf("expected PermissionDeniedError, got %v", err)
	}
}

func TestStockNeverNegative(t *testing.T) {
	env := newTestEnv(t)
	item, err := env.Engine.CreateInventoryItem(env.Ctx, env.Admin, engine.InventoryItemOptions{
		Name:     "anode, zinc",
		Quantity: 5,
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	_, err = env.Engine.RecordStockMove(env.Ctx, env.Admin, engine.StockMoveOptions{
		ItemID: item.ID, Kind: "out", Quantity: 6,
	})
	if err == nil {
		t.Fatal("expected out move past zero to fail")
	}
	got, err := env.Engine.GetInventoryItem(env.Ctx, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if got.Quantity != 5 {
		t.Fatalf("quantity changed on rejected move: %d", got.Quantity)
	}

	// a signed adjustment obeys the same floor
	_, err = env.Engine.RecordStockMove(env.Ctx, env.Admin, engine.StockMoveOptions{
		ItemID: item.ID, Kind: "adjustment", Quantity: -10,
	})
	if err == nil {
		t.Fatal("expected adjustment past zero to fail")
	}
	got, _ = env.Engine.RecordStockMove(env.Ctx, env.Admin, engine.StockMoveOptions{
		ItemID: item.ID, Kind: "out", Quantity: 5,
	})
	if got.Quantity != 0 {
		t.Fatalf("expected zero after draining, got %d", got.Quantity)
	}
}

func TestInventoryMutationRequiresManager(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateInventoryItem(env.Ctx, env.Tech, engine.InventoryItemOptions{Name: "bilge pump"})
	var pde scope.PermissionDeniedError
	if !errors.As(err, &pde) {
		t.Fatalf("expected PermissionDeniedError, got %v", err)
	}
	// but every role may read
	if _, err := env.Engine.ListInventory(env.Ctx, false); err != nil {
		t.Fatalf("list inventory: %v", err)
	}
}

func TestDashboardStatsScoped(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreateProject(t, env.PM, "p1", "eng1")
	env.mustCreateProject(t, env.PM2, "p2", "tech1")
	env.mustCreateTask(t, env.PM, "p1", "a", "eng1")
	env.mustCreateTask(t, env.PM2, "p2", "b", "")

	admin, err := env.Engine.DashboardStats(env.Ctx, env.Admin)
	if err != nil {
		t.Fatalf("admin stats: %v", err)
	}
	if admin.TotalProjects != 2 || admin.OpenTasks != 2 {
		t.Fatalf("admin stats wrong: %+v", admin)
	}
	eng, err := env.Engine.DashboardStats(env.Ctx, env.Eng)
	if err != nil {
		t.Fatalf("engineer stats: %v", err)
	}
	if eng.TotalProjects != 1 || eng.OpenTasks != 1 {
		t.Fatalf("engineer stats wrong: %+v", eng)
	}
}

func TestEventAppendOnStateChanges(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreateProject(t, env.PM, "p1", "eng1")
	task := env.mustCreateTask(t, env.PM, "p1", "evented", "eng1")

	status := scope.TaskInProgress
	if _, err := env.Engine.UpdateTask(env.Ctx, env.Eng, engine.TaskUpdateOptions{ID: task.ID, Status: &status}); err != nil {
		t.Fatal(err)
	}
	rows, err := env.Engine.DB.QueryContext(env.Ctx, `SELECT type FROM events WHERE entity_id=?`, task.ID)
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	defer rows.Close()
	count := 0
	for rows.Next() {
		count++
	}
	if count < 2 {
		t.Fatalf("expected create and update events, got %d", count)
	}
}

func strPtr(s string) *string { return &s }
