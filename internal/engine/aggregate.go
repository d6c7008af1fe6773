package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"drydock/internal/domain"
	"drydock/internal/repo"
	"drydock/internal/scope"
)

const aggregateAttempts = 3

func validReportType(t string) bool {
	switch t {
	case "project", "task", "inventory", "financial":
		return true
	}
	return false
}

// Aggregate resolves the actor's scope and folds the report's inputs into one
// consistent in-memory model. All rows for one attempt are read inside a
// single read transaction, so task counts always match the tasks listed; on a
// busy/conflicting snapshot the whole read is retried a bounded number of
// times before giving up with ErrAggregationConflict.
func (e Engine) Aggregate(ctx context.Context, id scope.Identity, spec domain.ReportSpec) (domain.ReportModel, error) {
	if !id.Manages() {
		return domain.ReportModel{}, scope.PermissionDeniedError{Action: "report.generate"}
	}
	if !validReportType(spec.Type) {
		return domain.ReportModel{}, fmt.Errorf("invalid report type %q", spec.Type)
	}
	// Org-wide inventory/financial reports carry no source project; only an
	// admin may produce those.
	if spec.TargetProjectID == nil && (spec.Type == "inventory" || spec.Type == "financial") && id.Role != scope.RoleAdmin {
		return domain.ReportModel{}, scope.PermissionDeniedError{Action: "report.generate.org_wide"}
	}
	return aggregateWithRetry(func() (domain.ReportModel, error) {
		return e.aggregateOnce(ctx, id, spec)
	})
}

// aggregateWithRetry runs one snapshot attempt up to aggregateAttempts times,
// retrying only classification-retryable failures. Exhaustion surfaces as
// ErrAggregationConflict wrapping the last attempt's error.
func aggregateWithRetry(attempt func() (domain.ReportModel, error)) (domain.ReportModel, error) {
	var lastErr error
	for i := 0; i < aggregateAttempts; i++ {
		model, err := attempt()
		if err == nil {
			return model, nil
		}
		if !retryableAggregateError(err) {
			return domain.ReportModel{}, err
		}
		lastErr = err
	}
	return domain.ReportModel{}, fmt.Errorf("%w: %v", ErrAggregationConflict, lastErr)
}

func (e Engine) aggregateOnce(ctx context.Context, id scope.Identity, spec domain.ReportSpec) (domain.ReportModel, error) {
	tx, err := e.DB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return domain.ReportModel{}, err
	}
	defer tx.Rollback()

	visible, err := e.Scope.VisibleProjects(ctx, tx, id)
	if err != nil {
		return domain.ReportModel{}, err
	}
	if spec.TargetProjectID != nil {
		if !contains(visible, *spec.TargetProjectID) {
			// The target is either missing or not ours; the caller cannot
			// tell which.
			return domain.ReportModel{}, scope.ScopeEmptyError{Kind: "project"}
		}
		visible = []string{*spec.TargetProjectID}
	}
	if visible == nil {
		visible = []string{}
	}

	model := domain.ReportModel{
		Spec:            spec,
		GeneratedAt:     e.now().UTC().Format(time.RFC3339),
		ScopeProjectIDs: visible,
	}
	switch spec.Type {
	case "project":
		model.Projects, err = e.projectRows(ctx, tx, visible)
	case "task":
		model.Tasks, err = e.Repo.ListTasks(ctx, tx, repo.TaskFilter{ProjectIDs: visible})
	case "inventory":
		model.Inventory, err = e.Repo.ListInventory(ctx, tx, spec.LowStockOnly)
	case "financial":
		model.Financials, err = e.financialRows(ctx, tx, visible)
	}
	if err != nil {
		return domain.ReportModel{}, err
	}
	return model, tx.Commit()
}

// projectRows builds the nested per-project snapshot: row, team and tasks
// read in the same transaction, counts derived from the fetched tasks rather
// than a second query. A project with zero tasks yields a row with an empty
// task list.
func (e Engine) projectRows(ctx context.Context, tx *sql.Tx, projectIDs []string) ([]domain.ProjectReportRow, error) {
	projects, err := e.Repo.ListProjects(ctx, tx, projectIDs)
	if err != nil {
		return nil, err
	}
	var rows []domain.ProjectReportRow
	for _, p := range projects {
		team, err := e.Repo.ListMemberActors(ctx, tx, p.ID)
		if err != nil {
			return nil, err
		}
		tasks, err := e.Repo.ListTasks(ctx, tx, repo.TaskFilter{ProjectIDs: []string{p.ID}})
		if err != nil {
			return nil, err
		}
		if tasks == nil {
			tasks = []domain.Task{}
		}
		counts := map[string]int{}
		for _, t := range tasks {
			counts[t.Status]++
		}
		p.MemberIDs = actorIDs(team)
		rows = append(rows, domain.ProjectReportRow{
			Project:    p,
			Team:       team,
			Tasks:      tasks,
			TaskCounts: counts,
		})
	}
	return rows, nil
}

func (e Engine) financialRows(ctx context.Context, tx *sql.Tx, projectIDs []string) ([]domain.FinancialReportRow, error) {
	projects, err := e.Repo.ListProjects(ctx, tx, projectIDs)
	if err != nil {
		return nil, err
	}
	var rows []domain.FinancialReportRow
	for _, p := range projects {
		row := domain.FinancialReportRow{
			ProjectID:   p.ID,
			ProjectName: p.Name,
			Budget:      p.Budget,
			Spending:    p.Spending,
		}
		// Variance needs both sides; a ratio against a zero budget stays
		// null instead of dividing.
		if p.Budget != nil && p.Spending != nil {
			v := *p.Budget - *p.Spending
			row.Variance = &v
			if *p.Budget != 0 {
				ratio := *p.Spending / *p.Budget
				row.SpendRatio = &ratio
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func actorIDs(actors []domain.Actor) []string {
	out := make([]string, 0, len(actors))
	for _, a := range actors {
		out = append(out, a.ID)
	}
	return out
}

func retryableAggregateError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
}
