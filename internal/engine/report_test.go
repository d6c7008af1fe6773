package engine_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"drydock/internal/domain"
	"drydock/internal/engine"
	"drydock/internal/repo"
	"drydock/internal/scope"
)

func TestGenerateReportRequiresManager(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.GenerateReport(env.Ctx, env.Eng, domain.ReportSpec{Type: "project"})
	var pde scope.PermissionDeniedError
	if !errors.As(err, &pde) {
		t.Fatalf("expected PermissionDeniedError, got %v", err)
	}
}

func TestReportTargetOutsideScope(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreateProject(t, env.PM2, "p2")

	target := "p2"
	_, err := env.Engine.GenerateReport(env.Ctx, env.PM, domain.ReportSpec{Type: "project", TargetProjectID: &target})
	var see scope.ScopeEmptyError
	if !errors.As(err, &see) {
		t.Fatalf("expected ScopeEmptyError for foreign target, got %v", err)
	}
}

func TestWideInventoryReportAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.GenerateReport(env.Ctx, env.PM, domain.ReportSpec{Type: "inventory"})
	var pde scope.PermissionDeniedError
	if !errors.As(err, &pde) {
		t.Fatalf("expected PermissionDeniedError for org-wide inventory report, got %v", err)
	}
	if _, err := env.Engine.GenerateReport(env.Ctx, env.Admin, domain.ReportSpec{Type: "inventory"}); err != nil {
		t.Fatalf("admin org-wide inventory report: %v", err)
	}
}

func TestInventoryReportLowStockBoundary(t *testing.T) {
	env := newTestEnv(t)
	reorder := 10
	for _, c := range []struct {
		name string
		qty  int
	}{
		{"at level", 10},
		{"below level", 3},
		{"above level", 11},
	} {
		_, err := env.Engine.CreateInventoryItem(env.Ctx, env.Admin, engine.InventoryItemOptions{
			Name: c.name, Quantity: c.qty, ReorderLevel: &reorder,
		})
		if err != nil {
			t.Fatalf("create %s: %v", c.name, err)
		}
	}
	model, err := env.Engine.Aggregate(env.Ctx, env.Admin, domain.ReportSpec{Type: "inventory", LowStockOnly: true})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(model.Inventory) != 2 {
		t.Fatalf("expected items at or below reorder level, got %d", len(model.Inventory))
	}
	for _, it := range model.Inventory {
		if it.Quantity > it.ReorderLevel {
			t.Fatalf("item %s above reorder level in low-stock report", it.Name)
		}
	}
}

func TestFinancialRowsNullSafety(t *testing.T) {
	env := newTestEnv(t)
	budget := 100000.0
	spending := 25000.0
	zero := 0.0

	if _, err := env.Engine.CreateProject(env.Ctx, env.Admin, engine.ProjectCreateOptions{
		ID: "funded", Name: "funded", Budget: &budget, Spending: &spending,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreateProject(env.Ctx, env.Admin, engine.ProjectCreateOptions{
		ID: "unbudgeted", Name: "unbudgeted", Spending: &spending,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreateProject(env.Ctx, env.Admin, engine.ProjectCreateOptions{
		ID: "zero-budget", Name: "zero-budget", Budget: &zero, Spending: &spending,
	}); err != nil {
		t.Fatal(err)
	}

	model, err := env.Engine.Aggregate(env.Ctx, env.Admin, domain.ReportSpec{Type: "financial"})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	rows := map[string]domain.FinancialReportRow{}
	for _, row := range model.Financials {
		rows[row.ProjectID] = row
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	funded := rows["funded"]
	if funded.Variance == nil || *funded.Variance != 75000.0 {
		t.Fatalf("funded variance wrong: %v", funded.Variance)
	}
	if funded.SpendRatio == nil || *funded.SpendRatio != 0.25 {
		t.Fatalf("funded spend ratio wrong: %v", funded.SpendRatio)
	}
	if rows["unbudgeted"].Variance != nil || rows["unbudgeted"].SpendRatio != nil {
		t.Fatal("unbudgeted project must have nil variance and ratio")
	}
	// a zero budget still yields a variance but never a ratio
	if rows["zero-budget"].Variance == nil || rows["zero-budget"].SpendRatio != nil {
		t.Fatalf("zero-budget row wrong: %+v", rows["zero-budget"])
	}
}

func TestProjectReportIncludesEmptyProjects(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreateProject(t, env.PM, "idle")

	model, err := env.Engine.Aggregate(env.Ctx, env.PM, domain.ReportSpec{Type: "project"})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(model.Projects) != 1 {
		t.Fatalf("expected 1 project row, got %d", len(model.Projects))
	}
	row := model.Projects[0]
	if row.Tasks == nil {
		t.Fatal("tasks must be an empty slice, not nil")
	}
	if len(row.TaskCounts) != 0 {
		t.Fatalf("expected empty counts, got %v", row.TaskCounts)
	}
}

func TestProjectReportCountsMatchListedTasks(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreateProject(t, env.PM, "p1", "eng1")
	env.mustCreateTask(t, env.PM, "p1", "a", "")
	done := env.mustCreateTask(t, env.PM, "p1", "b", "")
	status := scope.TaskCompleted
	if _, err := env.Engine.UpdateTask(env.Ctx, env.PM, engine.TaskUpdateOptions{ID: done.ID, Status: &status}); err != nil {
		t.Fatal(err)
	}

	model, err := env.Engine.Aggregate(env.Ctx, env.PM, domain.ReportSpec{Type: "project"})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	row := model.Projects[0]
	total := 0
	for _, n := range row.TaskCounts {
		total += n
	}
	if total != len(row.Tasks) {
		t.Fatalf("counts (%d) disagree with listed tasks (%d)", total, len(row.Tasks))
	}
	if row.TaskCounts[scope.TaskCompleted] != 1 || row.TaskCounts[scope.TaskPending] != 1 {
		t.Fatalf("unexpected counts: %v", row.TaskCounts)
	}
}

// failingRenderer always fails to render, for exercising the compile
// rollback path.
type failingRenderer struct {
	discarded []string
}

func (f *failingRenderer) Render(ctx context.Context, reportID string, model any) (string, error) {
	return "", errors.New("disk full")
}

func (f *failingRenderer) Discard(ctx context.Context, artifact string) error {
	f.discarded = append(f.discarded, artifact)
	return nil
}

func (f *failingRenderer) List(ctx context.Context, cutoff time.Time) ([]string, error) {
	return nil, nil
}

func TestRenderFailureLeavesNoRecord(t *testing.T) {
	env := newTestEnv(t)
	eng := env.Engine
	eng.Renderer = &failingRenderer{}

	_, err := eng.GenerateReport(env.Ctx, env.Admin, domain.ReportSpec{Type: "project"})
	var rfe engine.RenderFailureError
	if !errors.As(err, &rfe) {
		t.Fatalf("expected RenderFailureError, got %v", err)
	}
	recs, err := eng.Repo.ListReports(env.Ctx, "")
	if err != nil {
		t.Fatalf("list reports: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("expected no record after render failure, got %d", len(recs))
	}
}

func TestReportLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreateProject(t, env.PM, "p1")

	target := "p1"
	rec, err := env.Engine.GenerateReport(env.Ctx, env.PM, domain.ReportSpec{Type: "task", TargetProjectID: &target})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if rec.Name == "" {
		t.Fatal("expected a default report name")
	}
	if rec.SourceProjectID == nil || *rec.SourceProjectID != "p1" {
		t.Fatal("expected source project carried onto the record")
	}
	if _, err := os.Stat(rec.ArtifactPath); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}

	if err := env.Engine.DeleteReport(env.Ctx, env.PM, rec.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(rec.ArtifactPath); !os.IsNotExist(err) {
		t.Fatal("artifact should be discarded with the record")
	}
	// deleting again reads as missing
	err = env.Engine.DeleteReport(env.Ctx, env.PM, rec.ID)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestPruneArtifacts(t *testing.T) {
	env := newTestEnv(t)
	eng := env.Engine
	eng.Now = time.Now

	rec, err := eng.GenerateReport(env.Ctx, env.Admin, domain.ReportSpec{Type: "project"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	orphan := filepath.Join(filepath.Dir(rec.ArtifactPath), "orphan.json")
	if err := os.WriteFile(orphan, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	// a negative window pushes the cutoff into the future so fresh files count
	n, err := eng.PruneArtifacts(env.Ctx, env.Admin, -time.Minute)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 orphan discarded, got %d", n)
	}
	if _, err := os.Stat(rec.ArtifactPath); err != nil {
		t.Fatal("recorded artifact must survive pruning")
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Fatal("orphan should be gone")
	}

	// admin-only
	_, err = eng.PruneArtifacts(env.Ctx, env.PM, time.Hour)
	var pde scope.PermissionDeniedError
	if !errors.As(err, &pde) {
		t.Fatalf("expected PermissionDeniedError, got %v", err)
	}
}

func TestManagerSeesOnlyOwnReports(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreateProject(t, env.PM, "p1")

	target := "p1"
	rec, err := env.Engine.GenerateReport(env.Ctx, env.PM, domain.ReportSpec{Type: "project", TargetProjectID: &target})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	// another manager cannot tell this record from a missing one
	_, err = env.Engine.GetReport(env.Ctx, env.PM2, rec.ID)
	var see scope.ScopeEmptyError
	if !errors.As(err, &see) {
		t.Fatalf("expected ScopeEmptyError, got %v", err)
	}
	foreign, err := env.Engine.ListReports(env.Ctx, env.PM2)
	if err != nil {
		t.Fatalf("list as pm2: %v", err)
	}
	if len(foreign) != 0 {
		t.Fatalf("pm2 should see no reports, got %d", len(foreign))
	}

	// admin sees everything
	all, err := env.Engine.ListReports(env.Ctx, env.Admin)
	if err != nil || len(all) != 1 {
		t.Fatalf("admin list: %v (%d)", err, len(all))
	}
}
