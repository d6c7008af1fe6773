package domain

// Actor is an authenticated user. Identity and role come from the auth layer;
// the core never sees password material.
type Actor struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FullName  string `json:"full_name,omitempty"`
	Role      string `json:"role" enum:"admin,project_manager,engineer,technician"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Project struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	VesselName  string   `json:"vessel_name,omitempty"`
	VesselType  string   `json:"vessel_type,omitempty"`
	VesselOwner string   `json:"vessel_owner,omitempty"`
	Status      string   `json:"status" enum:"planning,in_progress,on_hold,completed,cancelled"`
	Budget      *float64 `json:"budget,omitempty"`
	Spending    *float64 `json:"spending,omitempty"`
	StartDate   *string  `json:"start_date,omitempty" format:"date"`
	EndDate     *string  `json:"end_date,omitempty" format:"date"`
	Description string   `json:"description,omitempty"`
	CreatorID   string   `json:"creator_id"`
	MemberIDs   []string `json:"member_ids,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

type Task struct {
	ID            string  `json:"id"`
	ProjectID     string  `json:"project_id"`
	Name          string  `json:"name"`
	Description   string  `json:"description,omitempty"`
	AssignedTo    *string `json:"assigned_to,omitempty"`
	Priority      string  `json:"priority" enum:"low,medium,high,critical"`
	Status        string  `json:"status" enum:"pending,in_progress,completed,blocked"`
	IsMaintenance bool    `json:"is_maintenance"`
	StartDate     *string `json:"start_date,omitempty" format:"date"`
	DueDate       *string `json:"due_date,omitempty" format:"date"`
	CompletedAt   *string `json:"completed_at,omitempty" format:"date-time"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	UpdatedAt     string  `json:"updated_at" format:"date-time"`
}

type InventoryItem struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Category     string   `json:"category,omitempty"`
	Description  string   `json:"description,omitempty"`
	Quantity     int      `json:"quantity"`
	Unit         string   `json:"unit,omitempty"`
	UnitPrice    *float64 `json:"unit_price,omitempty"`
	ReorderLevel int      `json:"reorder_level"`
	Supplier     string   `json:"supplier,omitempty"`
	Location     string   `json:"location,omitempty"`
	CreatedAt    string   `json:"created_at" format:"date-time"`
	UpdatedAt    string   `json:"updated_at" format:"date-time"`
}

// LowStock reports whether the item is at or below its reorder level.
func (i InventoryItem) LowStock() bool { return i.Quantity <= i.ReorderLevel }

type StockTransaction struct {
	ID          string  `json:"id"`
	ItemID      string  `json:"item_id"`
	ProjectID   *string `json:"project_id,omitempty"`
	Kind        string  `json:"kind" enum:"in,out,adjustment"`
	Quantity    int     `json:"quantity"`
	PerformedBy string  `json:"performed_by"`
	Notes       string  `json:"notes,omitempty"`
	TS          string  `json:"ts" format:"date-time"`
}

// ReportSpec is the per-request description of a report to generate.
type ReportSpec struct {
	Name            string  `json:"name,omitempty"`
	Type            string  `json:"type" enum:"project,task,inventory,financial"`
	TargetProjectID *string `json:"target_project_id,omitempty"`
	LowStockOnly    bool    `json:"low_stock_only,omitempty"`
}

// ProjectReportRow is one project's nested snapshot: the row, its team and its
// tasks read in the same pass, so counts always match the listed tasks.
type ProjectReportRow struct {
	Project    Project        `json:"project"`
	Team       []Actor        `json:"team"`
	Tasks      []Task         `json:"tasks"`
	TaskCounts map[string]int `json:"task_counts"`
}

type FinancialReportRow struct {
	ProjectID   string   `json:"project_id"`
	ProjectName string   `json:"project_name"`
	Budget      *float64 `json:"budget,omitempty"`
	Spending    *float64 `json:"spending,omitempty"`
	Variance    *float64 `json:"variance,omitempty"`
	SpendRatio  *float64 `json:"spend_ratio,omitempty"`
}

// ReportModel is the aggregated, scope-consistent snapshot handed to the
// rendering collaborator. Exactly one row set is populated per report type.
type ReportModel struct {
	Spec            ReportSpec           `json:"spec"`
	GeneratedAt     string               `json:"generated_at" format:"date-time"`
	ScopeProjectIDs []string             `json:"scope_project_ids,omitempty"`
	Projects        []ProjectReportRow   `json:"projects,omitempty"`
	Tasks           []Task               `json:"tasks,omitempty"`
	Inventory       []InventoryItem      `json:"inventory,omitempty"`
	Financials      []FinancialReportRow `json:"financials,omitempty"`
}

// ReportRecord is the persisted metadata of a generated report. Immutable
// after creation; delete-only.
type ReportRecord struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Type            string  `json:"type" enum:"project,task,inventory,financial"`
	GeneratedBy     string  `json:"generated_by"`
	GeneratedAt     string  `json:"generated_at" format:"date-time"`
	SourceProjectID *string `json:"source_project_id,omitempty"`
	ArtifactPath    string  `json:"artifact_path"`
}

type DashboardStats struct {
	TotalProjects  int `json:"total_projects"`
	OpenTasks      int `json:"open_tasks"`
	CompletedTasks int `json:"completed_tasks"`
	TotalInventory int `json:"total_inventory"`
	LowStockItems  int `json:"low_stock_items"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
