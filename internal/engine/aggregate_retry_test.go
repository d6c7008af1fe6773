package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"drydock/internal/domain"
)

func TestRetryableAggregateError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"locked", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"busy", errors.New("sqlite_busy: snapshot conflict"), true},
		{"wrapped locked", fmt.Errorf("list tasks: %w", errors.New("database is locked")), true},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"canceled while locked", fmt.Errorf("database is locked: %w", context.Canceled), false},
		{"constraint", errors.New("UNIQUE constraint failed: tasks.id"), false},
		{"plain", errors.New("no such table: projects"), false},
	}
	for _, c := range cases {
		if got := retryableAggregateError(c.err); got != c.retryable {
			t.Errorf("%s: retryable=%v, want %v", c.name, got, c.retryable)
		}
	}
}

func TestAggregateRetryExhaustion(t *testing.T) {
	calls := 0
	_, err := aggregateWithRetry(func() (domain.ReportModel, error) {
		calls++
		return domain.ReportModel{}, errors.New("database is locked")
	})
	if !errors.Is(err, ErrAggregationConflict) {
		t.Fatalf("expected ErrAggregationConflict, got %v", err)
	}
	if calls != aggregateAttempts {
		t.Fatalf("expected %d attempts, got %d", aggregateAttempts, calls)
	}
}

func TestAggregateRetryStopsOnPermanentFailure(t *testing.T) {
	permanent := errors.New("no such table: projects")
	calls := 0
	_, err := aggregateWithRetry(func() (domain.ReportModel, error) {
		calls++
		return domain.ReportModel{}, permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected the permanent error back, got %v", err)
	}
	if errors.Is(err, ErrAggregationConflict) {
		t.Fatal("a permanent failure must not read as a conflict")
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestAggregateRetryRecovers(t *testing.T) {
	calls := 0
	want := domain.ReportModel{GeneratedAt: "2026-03-01T12:00:00Z"}
	model, err := aggregateWithRetry(func() (domain.ReportModel, error) {
		calls++
		if calls < 2 {
			return domain.ReportModel{}, errors.New("database is locked")
		}
		return want, nil
	})
	if err != nil {
		t.Fatalf("expected recovery on second attempt: %v", err)
	}
	if calls != 2 || model.GeneratedAt != want.GeneratedAt {
		t.Fatalf("unexpected outcome: calls=%d model=%+v", calls, model)
	}
}
