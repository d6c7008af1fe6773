package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"drydock/internal/domain"
	"drydock/internal/events"
	"drydock/internal/scope"
)

// Compile renders an aggregated model to its artifact and persists the
// report record. The artifact is written first; if the record cannot be
// committed afterwards the artifact is discarded, so a failed compile never
// leaves a record pointing at nothing or an orphaned file behind a missing
// record.
func (e Engine) Compile(ctx context.Context, id scope.Identity, model domain.ReportModel) (domain.ReportRecord, error) {
	if !id.Manages() {
		return domain.ReportRecord{}, scope.PermissionDeniedError{Action: "report.compile"}
	}
	rec := domain.ReportRecord{
		ID:              uuid.NewString(),
		Name:            model.Spec.Name,
		Type:            model.Spec.Type,
		GeneratedBy:     id.ActorID,
		GeneratedAt:     model.GeneratedAt,
		SourceProjectID: model.Spec.TargetProjectID,
	}
	if strings.TrimSpace(rec.Name) == "" {
		rec.Name = fmt.Sprintf("%s report %s", rec.Type, e.now().UTC().Format("2006-01-02"))
	}

	artifact, err := e.Renderer.Render(ctx, rec.ID, model)
	if err != nil {
		return domain.ReportRecord{}, RenderFailureError{Err: err}
	}
	rec.ArtifactPath = artifact

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		e.Renderer.Discard(ctx, artifact)
		return domain.ReportRecord{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertReport(ctx, tx, rec); err != nil {
		e.Renderer.Discard(ctx, artifact)
		return domain.ReportRecord{}, err
	}
	err = e.Events.Append(ctx, tx, "report.generated", strOrEmpty(rec.SourceProjectID), "report", rec.ID, id.ActorID,
		events.EventPayload{"type": rec.Type, "name": rec.Name})
	if err != nil {
		e.Renderer.Discard(ctx, artifact)
		return domain.ReportRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		e.Renderer.Discard(ctx, artifact)
		return domain.ReportRecord{}, err
	}
	return rec, nil
}

// GenerateReport is the one-shot path: aggregate, then compile.
func (e Engine) GenerateReport(ctx context.Context, id scope.Identity, spec domain.ReportSpec) (domain.ReportRecord, error) {
	model, err := e.Aggregate(ctx, id, spec)
	if err != nil {
		return domain.ReportRecord{}, err
	}
	return e.Compile(ctx, id, model)
}

func (e Engine) GetReport(ctx context.Context, id scope.Identity, reportID string) (domain.ReportRecord, error) {
	if !id.Manages() {
		return domain.ReportRecord{}, scope.PermissionDeniedError{Action: "report.get"}
	}
	rec, err := e.Repo.GetReport(ctx, nil, reportID)
	if err != nil {
		return domain.ReportRecord{}, err
	}
	// A manager only sees reports they generated; a record owned by someone
	// else reads the same as one that does not exist.
	if id.Role != scope.RoleAdmin && rec.GeneratedBy != id.ActorID {
		return domain.ReportRecord{}, scope.ScopeEmptyError{Kind: "report"}
	}
	return rec, nil
}

func (e Engine) ListReports(ctx context.Context, id scope.Identity) ([]domain.ReportRecord, error) {
	if !id.Manages() {
		return nil, scope.PermissionDeniedError{Action: "report.list"}
	}
	generatedBy := ""
	if id.Role != scope.RoleAdmin {
		generatedBy = id.ActorID
	}
	return e.Repo.ListReports(ctx, generatedBy)
}

// DeleteReport removes the record and then the artifact. The artifact goes
// last, after commit, so a failed delete never strands a record whose file is
// already gone.
func (e Engine) DeleteReport(ctx context.Context, id scope.Identity, reportID string) error {
	rec, err := e.GetReport(ctx, id, reportID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteReport(ctx, tx, rec.ID); err != nil {
		return err
	}
	err = e.Events.Append(ctx, tx, "report.deleted", strOrEmpty(rec.SourceProjectID), "report", rec.ID, id.ActorID, nil)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	// The record is gone; a stale artifact on disk is harmless.
	_ = e.Renderer.Discard(ctx, rec.ArtifactPath)
	return nil
}

// PruneArtifacts removes artifacts older than the retention window that no
// longer have a record, returning how many were discarded.
func (e Engine) PruneArtifacts(ctx context.Context, id scope.Identity, olderThan time.Duration) (int, error) {
	if id.Role != scope.RoleAdmin {
		return 0, scope.PermissionDeniedError{Action: "report.prune"}
	}
	recs, err := e.Repo.ListReports(ctx, "")
	if err != nil {
		return 0, err
	}
	keep := make(map[string]bool, len(recs))
	for _, rec := range recs {
		keep[rec.ArtifactPath] = true
	}
	cutoff := e.now().Add(-olderThan)
	orphans, err := e.Renderer.List(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, artifact := range orphans {
		if keep[artifact] {
			continue
		}
		if err := e.Renderer.Discard(ctx, artifact); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
