package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"drydock/internal/config"
	"drydock/internal/domain"
	"drydock/internal/events"
	"drydock/internal/render"
	"drydock/internal/repo"
	"drydock/internal/scope"
)

// Engine executes all core operations. Every mutation is gated by the scope
// resolver, runs in its own transaction and appends an audit event inside
// that transaction. The engine holds no mutable state between requests.
type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Scope    scope.Resolver
	Events   events.Writer
	Renderer render.Renderer
	Config   *config.Config
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config, renderer render.Renderer) Engine {
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Scope:    scope.Resolver{DB: db},
		Events:   events.Writer{DB: db},
		Renderer: renderer,
		Config:   cfg,
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func validProjectStatus(s string) bool {
	switch s {
	case "planning", "in_progress", "on_hold", "completed", "cancelled":
		return true
	}
	return false
}

func validTaskPriority(s string) bool {
	switch s {
	case "low", "medium", "high", "critical":
		return true
	}
	return false
}

// ResolveScope is the generic visibility entry point exposed to collaborators
// such as the HTTP layer.
func (e Engine) ResolveScope(ctx context.Context, id scope.Identity, entityKind, projectFilter string) ([]string, error) {
	switch entityKind {
	case "project":
		return e.Scope.VisibleProjects(ctx, nil, id)
	case "task":
		return e.Scope.VisibleTasks(ctx, nil, id, projectFilter)
	case "inventory":
		// Inventory is org-wide readable for every role.
		items, err := e.Repo.ListInventory(ctx, nil, false)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.ID)
		}
		return ids, nil
	default:
		return nil, fmt.Errorf("unknown entity kind %q", entityKind)
	}
}

// --- projects ---

type ProjectCreateOptions struct {
	ID          string
	Name        string
	VesselName  string
	VesselType  string
	VesselOwner string
	Status      string
	Budget      *float64
	Spending    *float64
	StartDate   *string
	EndDate     *string
	Description string
	MemberIDs   []string
}

func (e Engine) CreateProject(ctx context.Context, id scope.Identity, opts ProjectCreateOptions) (domain.Project, error) {
	if !id.Manages() {
		return domain.Project{}, scope.PermissionDeniedError{Action: "project.create"}
	}
	if strings.TrimSpace(opts.Name) == "" {
		return domain.Project{}, errors.New("name is required")
	}
	if opts.Status == "" {
		opts.Status = "planning"
	}
	if !validProjectStatus(opts.Status) {
		return domain.Project{}, fmt.Errorf("invalid project status %q", opts.Status)
	}
	now := e.now().UTC().Format(time.RFC3339)
	p := domain.Project{
		ID:          opts.ID,
		Name:        opts.Name,
		VesselName:  opts.VesselName,
		VesselType:  opts.VesselType,
		VesselOwner: opts.VesselOwner,
		Status:      opts.Status,
		Budget:      opts.Budget,
		Spending:    opts.Spending,
		StartDate:   opts.StartDate,
		EndDate:     opts.EndDate,
		Description: opts.Description,
		CreatorID:   id.ActorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.ensureActorsExist(ctx, tx, opts.MemberIDs); err != nil {
		return domain.Project{}, err
	}
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.Repo.ReplaceMembers(ctx, tx, p.ID, opts.MemberIDs, now); err != nil {
		return domain.Project{}, fmt.Errorf("assign team: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "project.created", p.ID, "project", p.ID, id.ActorID, events.EventPayload{"name": p.Name, "status": p.Status}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	p.MemberIDs = dedupe(opts.MemberIDs)
	return p, nil
}

type ProjectUpdateOptions struct {
	ID          string
	Name        *string
	VesselName  *string
	VesselType  *string
	VesselOwner *string
	Status      *string
	Budget      *float64
	Spending    *float64
	StartDate   *string
	EndDate     *string
	Description *string
	MemberIDs   *[]string
}

func (e Engine) UpdateProject(ctx context.Context, id scope.Identity, opts ProjectUpdateOptions) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, nil, opts.ID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := e.Scope.CanMutateProject(id, p); err != nil {
		return domain.Project{}, err
	}
	if opts.Name != nil {
		if strings.TrimSpace(*opts.Name) == "" {
			return domain.Project{}, errors.New("name cannot be empty")
		}
		p.Name = *opts.Name
	}
	if opts.VesselName != nil {
		p.VesselName = *opts.VesselName
	}
	if opts.VesselType != nil {
		p.VesselType = *opts.VesselType
	}
	if opts.VesselOwner != nil {
		p.VesselOwner = *opts.VesselOwner
	}
	if opts.Status != nil {
		if !validProjectStatus(*opts.Status) {
			return domain.Project{}, fmt.Errorf("invalid project status %q", *opts.Status)
		}
		p.Status = *opts.Status
	}
	if opts.Budget != nil {
		p.Budget = opts.Budget
	}
	if opts.Spending != nil {
		p.Spending = opts.Spending
	}
	if opts.StartDate != nil {
		p.StartDate = opts.StartDate
	}
	if opts.EndDate != nil {
		p.EndDate = opts.EndDate
	}
	if opts.Description != nil {
		p.Description = *opts.Description
	}
	now := e.now().UTC().Format(time.RFC3339)
	p.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if opts.MemberIDs != nil {
		if err := e.ensureActorsExist(ctx, tx, *opts.MemberIDs); err != nil {
			return domain.Project{}, err
		}
		before, err := e.Repo.ListMemberIDs(ctx, tx, p.ID)
		if err != nil {
			return domain.Project{}, err
		}
		if err := e.Repo.ReplaceMembers(ctx, tx, p.ID, *opts.MemberIDs, now); err != nil {
			return domain.Project{}, fmt.Errorf("replace team: %w", err)
		}
		// Members leaving the team lose their task assignments so the
		// assigned-to-must-be-a-member invariant keeps holding.
		for _, removed := range missingFrom(before, *opts.MemberIDs) {
			unassigned, err := e.Repo.UnassignActorTasks(ctx, tx, p.ID, removed, now)
			if err != nil {
				return domain.Project{}, err
			}
			if len(unassigned) > 0 {
				if err := e.Events.Append(ctx, tx, "project.member.removed", p.ID, "project", p.ID, id.ActorID, events.EventPayload{
					"actor_id":         removed,
					"unassigned_tasks": unassigned,
				}); err != nil {
					return domain.Project{}, err
				}
			}
		}
	}
	if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.updated", p.ID, "project", p.ID, id.ActorID, events.EventPayload{"status": p.Status}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	p.MemberIDs, err = e.Repo.ListMemberIDs(ctx, nil, p.ID)
	if err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// DeleteProject removes a project and, by ownership, all of its tasks.
func (e Engine) DeleteProject(ctx context.Context, id scope.Identity, projectID string) error {
	p, err := e.Repo.GetProject(ctx, nil, projectID)
	if err != nil {
		return err
	}
	if err := e.Scope.CanMutateProject(id, p); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, "project.deleted", p.ID, "project", p.ID, id.ActorID, events.EventPayload{"name": p.Name}); err != nil {
		return err
	}
	if err := e.Repo.DeleteProject(ctx, tx, projectID); err != nil {
		return err
	}
	return tx.Commit()
}

// GetProject returns one project if it is inside the identity's scope. An
// out-of-scope project is reported exactly like a missing one.
func (e Engine) GetProject(ctx context.Context, id scope.Identity, projectID string) (domain.Project, error) {
	visible, err := e.Scope.ProjectVisible(ctx, nil, id, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if !visible {
		return domain.Project{}, scope.ScopeEmptyError{Kind: "project"}
	}
	p, err := e.Repo.GetProject(ctx, nil, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	p.MemberIDs, err = e.Repo.ListMemberIDs(ctx, nil, projectID)
	return p, err
}

func (e Engine) ListProjects(ctx context.Context, id scope.Identity) ([]domain.Project, error) {
	ids, err := e.Scope.VisibleProjects(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	projects, err := e.Repo.ListProjects(ctx, nil, ids)
	if err != nil {
		return nil, err
	}
	for i := range projects {
		projects[i].MemberIDs, err = e.Repo.ListMemberIDs(ctx, nil, projects[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return projects, nil
}

// --- tasks ---

type TaskCreateOptions struct {
	ID            string
	ProjectID     string
	Name          string
	Description   string
	AssignedTo    string
	Priority      string
	Status        string
	IsMaintenance bool
	StartDate     *string
	DueDate       *string
}

func (e Engine) CreateTask(ctx context.Context, id scope.Identity, opts TaskCreateOptions) (domain.Task, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return domain.Task{}, errors.New("name is required")
	}
	if opts.ProjectID == "" {
		return domain.Task{}, errors.New("project is required")
	}
	p, err := e.Repo.GetProject(ctx, nil, opts.ProjectID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := e.Scope.CanMutateProject(id, p); err != nil {
		return domain.Task{}, err
	}
	if opts.Priority == "" {
		opts.Priority = "medium"
	}
	if !validTaskPriority(opts.Priority) {
		return domain.Task{}, fmt.Errorf("invalid task priority %q", opts.Priority)
	}
	if opts.Status == "" {
		opts.Status = scope.TaskPending
	}
	if err := scope.EnsureTaskTransition(scope.TaskPending, opts.Status); err != nil {
		return domain.Task{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	t := domain.Task{
		ID:            opts.ID,
		ProjectID:     opts.ProjectID,
		Name:          opts.Name,
		Description:   opts.Description,
		Priority:      opts.Priority,
		Status:        opts.Status,
		IsMaintenance: opts.IsMaintenance,
		StartDate:     opts.StartDate,
		DueDate:       opts.DueDate,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == scope.TaskCompleted {
		t.CompletedAt = &now
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if opts.AssignedTo != "" {
		if err := e.ensureAssignable(ctx, tx, opts.ProjectID, opts.AssignedTo); err != nil {
			return domain.Task{}, err
		}
		t.AssignedTo = &opts.AssignedTo
	}
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "task.created", t.ProjectID, "task", t.ID, id.ActorID, events.EventPayload{"name": t.Name, "status": t.Status}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

type TaskUpdateOptions struct {
	ID            string
	Name          *string
	Description   *string
	AssignedTo    *string // empty string unassigns
	Priority      *string
	Status        *string
	IsMaintenance *bool
	StartDate     *string
	DueDate       *string
}

func (o TaskUpdateOptions) touchesOtherFields() bool {
	return o.Name != nil || o.Description != nil || o.AssignedTo != nil ||
		o.Priority != nil || o.IsMaintenance != nil || o.StartDate != nil || o.DueDate != nil
}

func (e Engine) UpdateTask(ctx context.Context, id scope.Identity, opts TaskUpdateOptions) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, nil, opts.ID)
	if err != nil {
		return domain.Task{}, err
	}
	p, err := e.Repo.GetProject(ctx, nil, t.ProjectID)
	if err != nil {
		return domain.Task{}, err
	}
	change := scope.TaskChange{Status: opts.Status, OtherFields: opts.touchesOtherFields()}
	if err := e.Scope.CanMutateTask(id, p, t, change); err != nil {
		return domain.Task{}, err
	}
	// A same-status write with nothing else touched is a permitted no-op and
	// must not bump updated_at.
	if opts.Status != nil && *opts.Status == t.Status && !change.OtherFields {
		return t, nil
	}
	original := t.Status
	if opts.Name != nil {
		if strings.TrimSpace(*opts.Name) == "" {
			return domain.Task{}, errors.New("name cannot be empty")
		}
		t.Name = *opts.Name
	}
	if opts.Description != nil {
		t.Description = *opts.Description
	}
	if opts.Priority != nil {
		if !validTaskPriority(*opts.Priority) {
			return domain.Task{}, fmt.Errorf("invalid task priority %q", *opts.Priority)
		}
		t.Priority = *opts.Priority
	}
	if opts.IsMaintenance != nil {
		t.IsMaintenance = *opts.IsMaintenance
	}
	if opts.StartDate != nil {
		t.StartDate = opts.StartDate
	}
	if opts.DueDate != nil {
		t.DueDate = opts.DueDate
	}
	now := e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	// Re-check the terminal-state guard against the row inside the
	// transaction, so a racing completion still wins.
	if opts.Status != nil {
		current, err := e.Repo.GetTask(ctx, tx, t.ID)
		if err != nil {
			return domain.Task{}, err
		}
		if err := scope.EnsureTaskTransition(current.Status, *opts.Status); err != nil {
			return domain.Task{}, err
		}
		t.Status = *opts.Status
		if t.Status == scope.TaskCompleted {
			if current.Status != scope.TaskCompleted {
				t.CompletedAt = &now
			}
		} else {
			t.CompletedAt = nil
		}
	}
	if opts.AssignedTo != nil {
		if *opts.AssignedTo == "" {
			t.AssignedTo = nil
		} else {
			if err := e.ensureAssignable(ctx, tx, t.ProjectID, *opts.AssignedTo); err != nil {
				return domain.Task{}, err
			}
			t.AssignedTo = opts.AssignedTo
		}
	}
	t.UpdatedAt = now
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.updated", t.ProjectID, "task", t.ID, id.ActorID, events.EventPayload{
		"from_status": original,
		"to_status":   t.Status,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// AuthorizeMutation is the dry-run counterpart of UpdateTask for the task
// status path, exposed so collaborators can probe rights without mutating.
func (e Engine) AuthorizeMutation(ctx context.Context, id scope.Identity, taskID, newStatus string) error {
	t, err := e.Repo.GetTask(ctx, nil, taskID)
	if err != nil {
		return err
	}
	p, err := e.Repo.GetProject(ctx, nil, t.ProjectID)
	if err != nil {
		return err
	}
	return e.Scope.CanMutateTask(id, p, t, scope.TaskChange{Status: &newStatus})
}

func (e Engine) DeleteTask(ctx context.Context, id scope.Identity, taskID string) error {
	t, err := e.Repo.GetTask(ctx, nil, taskID)
	if err != nil {
		return err
	}
	p, err := e.Repo.GetProject(ctx, nil, t.ProjectID)
	if err != nil {
		return err
	}
	if err := e.Scope.CanMutateTask(id, p, t, scope.TaskChange{OtherFields: true}); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTask(ctx, tx, taskID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.deleted", t.ProjectID, "task", t.ID, id.ActorID, events.EventPayload{"name": t.Name}); err != nil {
		return err
	}
	return tx.Commit()
}

// GetTask returns one task if the identity may see it; out-of-scope and
// missing tasks are indistinguishable to the caller.
func (e Engine) GetTask(ctx context.Context, id scope.Identity, taskID string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, nil, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	visible, err := e.taskVisible(ctx, id, t)
	if err != nil {
		return domain.Task{}, err
	}
	if !visible {
		return domain.Task{}, scope.ScopeEmptyError{Kind: "task"}
	}
	return t, nil
}

func (e Engine) taskVisible(ctx context.Context, id scope.Identity, t domain.Task) (bool, error) {
	switch id.Role {
	case scope.RoleAdmin:
		return true, nil
	case scope.RoleProjectManager:
		return e.Scope.ProjectVisible(ctx, nil, id, t.ProjectID)
	case scope.RoleEngineer, scope.RoleTechnician:
		if t.AssignedTo == nil || *t.AssignedTo != id.ActorID {
			return false, nil
		}
		return e.Scope.IsMember(ctx, nil, t.ProjectID, id.ActorID)
	default:
		return false, nil
	}
}

// ListTasks returns the tasks inside the identity's scope, optionally limited
// to one project. Requesting a project outside the scope fails closed.
func (e Engine) ListTasks(ctx context.Context, id scope.Identity, projectFilter string) ([]domain.Task, error) {
	if projectFilter != "" {
		visible, err := e.Scope.ProjectVisible(ctx, nil, id, projectFilter)
		if err != nil {
			return nil, err
		}
		if !visible {
			return nil, scope.ScopeEmptyError{Kind: "project"}
		}
	}
	ids, err := e.Scope.VisibleTasks(ctx, nil, id, projectFilter)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	var out []domain.Task
	for _, taskID := range ids {
		t, err := e.Repo.GetTask(ctx, nil, taskID)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// --- inventory ---

type InventoryItemOptions struct {
	ID           string
	Name         string
	Category     string
	Description  string
	Quantity     int
	Unit         string
	UnitPrice    *float64
	ReorderLevel *int
	Supplier     string
	Location     string
}

func (e Engine) CreateInventoryItem(ctx context.Context, id scope.Identity, opts InventoryItemOptions) (domain.InventoryItem, error) {
	if err := e.Scope.CanMutateInventory(id); err != nil {
		return domain.InventoryItem{}, err
	}
	if strings.TrimSpace(opts.Name) == "" {
		return domain.InventoryItem{}, errors.New("name is required")
	}
	if opts.Quantity < 0 {
		return domain.InventoryItem{}, errors.New("quantity cannot be negative")
	}
	reorder := 0
	if e.Config != nil {
		reorder = e.Config.Inventory.DefaultReorderLevel
	}
	if opts.ReorderLevel != nil {
		reorder = *opts.ReorderLevel
	}
	if reorder < 0 {
		return domain.InventoryItem{}, errors.New("reorder level cannot be negative")
	}
	now := e.now().UTC().Format(time.RFC3339)
	it := domain.InventoryItem{
		ID:           opts.ID,
		Name:         opts.Name,
		Category:     opts.Category,
		Description:  opts.Description,
		Quantity:     opts.Quantity,
		Unit:         opts.Unit,
		UnitPrice:    opts.UnitPrice,
		ReorderLevel: reorder,
		Supplier:     opts.Supplier,
		Location:     opts.Location,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if it.ID == "" {
		it.ID = uuid.New().String()
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertInventoryItem(ctx, tx, it); err != nil {
		return domain.InventoryItem{}, fmt.Errorf("insert inventory item: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "inventory.created", "", "inventory", it.ID, id.ActorID, events.EventPayload{"name": it.Name, "quantity": it.Quantity}); err != nil {
		return domain.InventoryItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.InventoryItem{}, err
	}
	return it, nil
}

type InventoryUpdateOptions struct {
	ID           string
	Name         *string
	Category     *string
	Description  *string
	Unit         *string
	UnitPrice    *float64
	ReorderLevel *int
	Supplier     *string
	Location     *string
}

func (e Engine) UpdateInventoryItem(ctx context.Context, id scope.Identity, opts InventoryUpdateOptions) (domain.InventoryItem, error) {
	if err := e.Scope.CanMutateInventory(id); err != nil {
		return domain.InventoryItem{}, err
	}
	it, err := e.Repo.GetInventoryItem(ctx, nil, opts.ID)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	if opts.Name != nil {
		if strings.TrimSpace(*opts.Name) == "" {
			return domain.InventoryItem{}, errors.New("name cannot be empty")
		}
		it.Name = *opts.Name
	}
	if opts.Category != nil {
		it.Category = *opts.Category
	}
	if opts.Description != nil {
		it.Description = *opts.Description
	}
	if opts.Unit != nil {
		it.Unit = *opts.Unit
	}
	if opts.UnitPrice != nil {
		it.UnitPrice = opts.UnitPrice
	}
	if opts.ReorderLevel != nil {
		if *opts.ReorderLevel < 0 {
			return domain.InventoryItem{}, errors.New("reorder level cannot be negative")
		}
		it.ReorderLevel = *opts.ReorderLevel
	}
	if opts.Supplier != nil {
		it.Supplier = *opts.Supplier
	}
	if opts.Location != nil {
		it.Location = *opts.Location
	}
	it.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateInventoryItem(ctx, tx, it); err != nil {
		return domain.InventoryItem{}, err
	}
	if err := e.Events.Append(ctx, tx, "inventory.updated", "", "inventory", it.ID, id.ActorID, events.EventPayload{"name": it.Name}); err != nil {
		return domain.InventoryItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.InventoryItem{}, err
	}
	return it, nil
}

func (e Engine) DeleteInventoryItem(ctx context.Context, id scope.Identity, itemID string) error {
	if err := e.Scope.CanMutateInventory(id); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteInventoryItem(ctx, tx, itemID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "inventory.deleted", "", "inventory", itemID, id.ActorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

type StockMoveOptions struct {
	ItemID    string
	ProjectID string
	Kind      string // in, out, adjustment
	Quantity  int
	Notes     string
}

// RecordStockMove applies a stock movement and its transaction row in one
// transaction. "in" and "out" take positive quantities; "adjustment" takes a
// signed delta. Stock never goes below zero.
func (e Engine) RecordStockMove(ctx context.Context, id scope.Identity, opts StockMoveOptions) (domain.InventoryItem, error) {
	if err := e.Scope.CanMutateInventory(id); err != nil {
		return domain.InventoryItem{}, err
	}
	var delta int
	switch opts.Kind {
	case "in":
		if opts.Quantity <= 0 {
			return domain.InventoryItem{}, errors.New("quantity must be positive")
		}
		delta = opts.Quantity
	case "out":
		if opts.Quantity <= 0 {
			return domain.InventoryItem{}, errors.New("quantity must be positive")
		}
		delta = -opts.Quantity
	case "adjustment":
		delta = opts.Quantity
	default:
		return domain.InventoryItem{}, fmt.Errorf("invalid stock move kind %q", opts.Kind)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	defer tx.Rollback()

	it, err := e.Repo.GetInventoryItem(ctx, tx, opts.ItemID)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	if it.Quantity+delta < 0 {
		return domain.InventoryItem{}, fmt.Errorf("stock for %s cannot go below zero", it.Name)
	}
	var projectID *string
	if opts.ProjectID != "" {
		if _, err := e.Repo.GetProject(ctx, tx, opts.ProjectID); err != nil {
			return domain.InventoryItem{}, err
		}
		projectID = &opts.ProjectID
	}
	now := e.now().UTC().Format(time.RFC3339)
	it.Quantity += delta
	it.UpdatedAt = now
	if err := e.Repo.UpdateInventoryItem(ctx, tx, it); err != nil {
		return domain.InventoryItem{}, err
	}
	st := domain.StockTransaction{
		ID:          uuid.New().String(),
		ItemID:      it.ID,
		ProjectID:   projectID,
		Kind:        opts.Kind,
		Quantity:    opts.Quantity,
		PerformedBy: id.ActorID,
		Notes:       opts.Notes,
		TS:          now,
	}
	if err := e.Repo.InsertStockTransaction(ctx, tx, st); err != nil {
		return domain.InventoryItem{}, err
	}
	if err := e.Events.Append(ctx, tx, "inventory.stock", opts.ProjectID, "inventory", it.ID, id.ActorID, events.EventPayload{
		"kind":     opts.Kind,
		"quantity": opts.Quantity,
		"level":    it.Quantity,
	}); err != nil {
		return domain.InventoryItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.InventoryItem{}, err
	}
	return it, nil
}

// GetInventoryItem and ListInventory are readable by every role.
func (e Engine) GetInventoryItem(ctx context.Context, itemID string) (domain.InventoryItem, error) {
	return e.Repo.GetInventoryItem(ctx, nil, itemID)
}

func (e Engine) ListInventory(ctx context.Context, lowStockOnly bool) ([]domain.InventoryItem, error) {
	return e.Repo.ListInventory(ctx, nil, lowStockOnly)
}

// DashboardStats computes role-scoped counters in one read transaction.
func (e Engine) DashboardStats(ctx context.Context, id scope.Identity) (domain.DashboardStats, error) {
	tx, err := e.DB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return domain.DashboardStats{}, err
	}
	defer tx.Rollback()

	visible, err := e.Scope.VisibleProjects(ctx, tx, id)
	if err != nil {
		return domain.DashboardStats{}, err
	}
	var stats domain.DashboardStats
	stats.TotalProjects = len(visible)

	// A nil project filter means org-wide; only admin gets that. Everyone
	// else counts inside their (possibly empty) visible set.
	projectIDs := visible
	if projectIDs == nil {
		projectIDs = []string{}
	}
	assignedTo := ""
	switch id.Role {
	case scope.RoleAdmin:
		projectIDs = nil
	case scope.RoleEngineer, scope.RoleTechnician:
		assignedTo = id.ActorID
	}
	open, completed, err := e.Repo.CountTasks(ctx, tx, projectIDs, assignedTo)
	if err != nil {
		return domain.DashboardStats{}, err
	}
	stats.OpenTasks = open
	stats.CompletedTasks = completed
	total, low, err := e.Repo.CountInventory(ctx, tx)
	if err != nil {
		return domain.DashboardStats{}, err
	}
	stats.TotalInventory = total
	stats.LowStockItems = low
	return stats, tx.Commit()
}

// --- helpers ---

func (e Engine) ensureAssignable(ctx context.Context, tx *sql.Tx, projectID, actorID string) error {
	actor, err := e.Repo.GetActor(ctx, tx, actorID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("actor %s not found", actorID)
		}
		return err
	}
	ok, err := e.Scope.IsMember(ctx, tx, projectID, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("actor %s is not a member of the project team", actor.Username)
	}
	return nil
}

func (e Engine) ensureActorsExist(ctx context.Context, tx *sql.Tx, actorIDs []string) error {
	for _, actorID := range dedupe(actorIDs) {
		if _, err := e.Repo.GetActor(ctx, tx, actorID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("actor %s not found", actorID)
			}
			return err
		}
	}
	return nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, v := range in {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func missingFrom(before, after []string) []string {
	keep := make(map[string]bool, len(after))
	for _, v := range after {
		keep[v] = true
	}
	var gone []string
	for _, v := range before {
		if !keep[v] {
			gone = append(gone, v)
		}
	}
	return gone
}
