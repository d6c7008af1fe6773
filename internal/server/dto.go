package server

import (
	"encoding/json"

	"drydock/internal/domain"
)

// Request payloads

type CreateProjectRequest struct {
	ID          *string  `json:"id,omitempty"`
	Name        string   `json:"name"`
	VesselName  *string  `json:"vessel_name,omitempty"`
	VesselType  *string  `json:"vessel_type,omitempty"`
	VesselOwner *string  `json:"vessel_owner,omitempty"`
	Status      *string  `json:"status,omitempty" enum:"planning,in_progress,on_hold,completed,cancelled"`
	Budget      *float64 `json:"budget,omitempty"`
	Spending    *float64 `json:"spending,omitempty"`
	StartDate   *string  `json:"start_date,omitempty" format:"date"`
	EndDate     *string  `json:"end_date,omitempty" format:"date"`
	Description *string  `json:"description,omitempty"`
	MemberIDs   []string `json:"member_ids,omitempty"`
}

type UpdateProjectRequest struct {
	Name        *string   `json:"name,omitempty"`
	VesselName  *string   `json:"vessel_name,omitempty"`
	VesselType  *string   `json:"vessel_type,omitempty"`
	VesselOwner *string   `json:"vessel_owner,omitempty"`
	Status      *string   `json:"status,omitempty" enum:"planning,in_progress,on_hold,completed,cancelled"`
	Budget      *float64  `json:"budget,omitempty"`
	Spending    *float64  `json:"spending,omitempty"`
	StartDate   *string   `json:"start_date,omitempty" format:"date"`
	EndDate     *string   `json:"end_date,omitempty" format:"date"`
	Description *string   `json:"description,omitempty"`
	MemberIDs   *[]string `json:"member_ids,omitempty"`
}

type SetMembersRequest struct {
	MemberIDs []string `json:"member_ids"`
}

type CreateTaskRequest struct {
	ID            *string `json:"id,omitempty"`
	Name          string  `json:"name"`
	Description   *string `json:"description,omitempty"`
	AssignedTo    *string `json:"assigned_to,omitempty"`
	Priority      *string `json:"priority,omitempty" enum:"low,medium,high,critical"`
	Status        *string `json:"status,omitempty" enum:"pending,in_progress,completed,blocked"`
	IsMaintenance *bool   `json:"is_maintenance,omitempty"`
	StartDate     *string `json:"start_date,omitempty" format:"date"`
	DueDate       *string `json:"due_date,omitempty" format:"date"`
}

type UpdateTaskRequest struct {
	Name          *string `json:"name,omitempty"`
	Description   *string `json:"description,omitempty"`
	AssignedTo    *string `json:"assigned_to,omitempty"`
	Priority      *string `json:"priority,omitempty" enum:"low,medium,high,critical"`
	Status        *string `json:"status,omitempty" enum:"pending,in_progress,completed,blocked"`
	IsMaintenance *bool   `json:"is_maintenance,omitempty"`
	StartDate     *string `json:"start_date,omitempty" format:"date"`
	DueDate       *string `json:"due_date,omitempty" format:"date"`
}

type SetTaskStatusRequest struct {
	Status string `json:"status" enum:"pending,in_progress,completed,blocked"`
}

type CreateInventoryItemRequest struct {
	ID           *string  `json:"id,omitempty"`
	Name         string   `json:"name"`
	Category     *string  `json:"category,omitempty"`
	Description  *string  `json:"description,omitempty"`
	Quantity     int      `json:"quantity"`
	Unit         *string  `json:"unit,omitempty"`
	UnitPrice    *float64 `json:"unit_price,omitempty"`
	ReorderLevel *int     `json:"reorder_level,omitempty"`
	Supplier     *string  `json:"supplier,omitempty"`
	Location     *string  `json:"location,omitempty"`
}

type UpdateInventoryItemRequest struct {
	Name         *string  `json:"name,omitempty"`
	Category     *string  `json:"category,omitempty"`
	Description  *string  `json:"description,omitempty"`
	Unit         *string  `json:"unit,omitempty"`
	UnitPrice    *float64 `json:"unit_price,omitempty"`
	ReorderLevel *int     `json:"reorder_level,omitempty"`
	Supplier     *string  `json:"supplier,omitempty"`
	Location     *string  `json:"location,omitempty"`
}

type StockMoveRequest struct {
	Kind      string  `json:"kind" enum:"in,out,adjustment"`
	Quantity  int     `json:"quantity"`
	ProjectID *string `json:"project_id,omitempty"`
	Notes     *string `json:"notes,omitempty"`
}

type GenerateReportRequest struct {
	Name            *string `json:"name,omitempty"`
	Type            string  `json:"type" enum:"project,task,inventory,financial"`
	TargetProjectID *string `json:"target_project_id,omitempty"`
	LowStockOnly    *bool   `json:"low_stock_only,omitempty"`
}

type CreateActorRequest struct {
	ID       *string `json:"id,omitempty"`
	Username string  `json:"username"`
	FullName *string `json:"full_name,omitempty"`
	Role     string  `json:"role" enum:"admin,project_manager,engineer,technician"`
}

type SetActorRoleRequest struct {
	Role string `json:"role" enum:"admin,project_manager,engineer,technician"`
}

type CreateAPIKeyRequest struct {
	ActorID string  `json:"actor_id"`
	Name    *string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

// Response payloads

type WhoAmIResponse struct {
	ActorID  string `json:"actor_id"`
	Username string `json:"username"`
	Role     string `json:"role" enum:"admin,project_manager,engineer,technician"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type InventoryItemResponse struct {
	domain.InventoryItem
	LowStock bool `json:"low_stock"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func inventoryResponse(it domain.InventoryItem) InventoryItemResponse {
	return InventoryItemResponse{InventoryItem: it, LowStock: it.LowStock()}
}

func mapInventory(items []domain.InventoryItem) []InventoryItemResponse {
	res := make([]InventoryItemResponse, 0, len(items))
	for _, it := range items {
		res = append(res, inventoryResponse(it))
	}
	return res
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:        k.ID,
		ActorID:   k.ActorID,
		Name:      k.Name,
		CreatedAt: k.CreatedAt,
	}
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
