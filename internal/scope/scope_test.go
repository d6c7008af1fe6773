package scope

import (
	"errors"
	"testing"

	"drydock/internal/domain"
)

func TestEnsureTaskTransition(t *testing.T) {
	cases := []struct {
		from, to string
		ok       bool
	}{
		{TaskPending, TaskInProgress, true},
		{TaskPending, TaskCompleted, true},
		{TaskInProgress, TaskBlocked, true},
		{TaskBlocked, TaskInProgress, true},
		{TaskBlocked, TaskCompleted, true},
		{TaskCompleted, TaskCompleted, true}, // same-status no-op
		{TaskCompleted, TaskPending, false},
		{TaskCompleted, TaskInProgress, false},
		{TaskCompleted, TaskBlocked, false},
		{"", TaskInProgress, true}, // empty from is treated as pending
	}
	for _, c := range cases {
		err := EnsureTaskTransition(c.from, c.to)
		if c.ok && err != nil {
			t.Errorf("%s -> %s: unexpected error %v", c.from, c.to, err)
		}
		if !c.ok {
			var ite InvalidTransitionError
			if !errors.As(err, &ite) {
				t.Errorf("%s -> %s: expected InvalidTransitionError, got %v", c.from, c.to, err)
			}
		}
	}
}

func TestEnsureTaskTransitionRejectsUnknownStatus(t *testing.T) {
	if err := EnsureTaskTransition(TaskPending, "done"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestParseRole(t *testing.T) {
	for _, s := range []string{"admin", "project_manager", "engineer", "technician"} {
		if _, err := ParseRole(s); err != nil {
			t.Errorf("ParseRole(%q): %v", s, err)
		}
	}
	if _, err := ParseRole("manager"); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestIdentityScopedManages(t *testing.T) {
	if !(Identity{Role: RoleAdmin}).Manages() || !(Identity{Role: RoleProjectManager}).Manages() {
		t.Error("admin and project_manager must manage")
	}
	if (Identity{Role: RoleEngineer}).Manages() || (Identity{Role: RoleTechnician}).Manages() {
		t.Error("engineer and technician must not manage")
	}
	if !(Identity{Role: RoleEngineer}).Scoped() || !(Identity{Role: RoleTechnician}).Scoped() {
		t.Error("engineer and technician are scoped")
	}
	if (Identity{Role: RoleAdmin}).Scoped() {
		t.Error("admin is not scoped")
	}
}

func TestCanMutateProjectOwnership(t *testing.T) {
	r := Resolver{}
	p := domain.Project{ID: "p1", CreatorID: "pm1"}

	if err := r.CanMutateProject(Identity{ActorID: "root", Role: RoleAdmin}, p); err != nil {
		t.Errorf("admin: %v", err)
	}
	if err := r.CanMutateProject(Identity{ActorID: "pm1", Role: RoleProjectManager}, p); err != nil {
		t.Errorf("creator pm: %v", err)
	}
	var pde PermissionDeniedError
	err := r.CanMutateProject(Identity{ActorID: "pm2", Role: RoleProjectManager}, p)
	if !errors.As(err, &pde) {
		t.Errorf("foreign pm: expected PermissionDeniedError, got %v", err)
	}
	err = r.CanMutateProject(Identity{ActorID: "eng1", Role: RoleEngineer}, p)
	if !errors.As(err, &pde) {
		t.Errorf("engineer: expected PermissionDeniedError, got %v", err)
	}
}

func TestCanMutateTaskRoleRules(t *testing.T) {
	r := Resolver{}
	assignee := "eng1"
	p := domain.Project{ID: "p1", CreatorID: "pm1"}
	task := domain.Task{ID: "t1", ProjectID: "p1", Status: TaskPending, AssignedTo: &assignee}
	toInProgress := TaskInProgress

	// assignee may move status
	if err := r.CanMutateTask(Identity{ActorID: "eng1", Role: RoleEngineer}, p, task, TaskChange{Status: &toInProgress}); err != nil {
		t.Errorf("assignee status change: %v", err)
	}
	// assignee may not touch other fields
	var pde PermissionDeniedError
	err := r.CanMutateTask(Identity{ActorID: "eng1", Role: RoleEngineer}, p, task, TaskChange{Status: &toInProgress, OtherFields: true})
	if !errors.As(err, &pde) {
		t.Errorf("assignee field change: expected PermissionDeniedError, got %v", err)
	}
	// non-assignee technician may not change status
	err = r.CanMutateTask(Identity{ActorID: "tech1", Role: RoleTechnician}, p, task, TaskChange{Status: &toInProgress})
	if !errors.As(err, &pde) {
		t.Errorf("non-assignee: expected PermissionDeniedError, got %v", err)
	}

	// the state machine outranks the role: admin cannot leave completed
	done := domain.Task{ID: "t2", ProjectID: "p1", Status: TaskCompleted}
	toPending := TaskPending
	err = r.CanMutateTask(Identity{ActorID: "root", Role: RoleAdmin}, p, done, TaskChange{Status: &toPending})
	var ite InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Errorf("admin on completed: expected InvalidTransitionError, got %v", err)
	}
}
