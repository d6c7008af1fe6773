package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"drydock/internal/app"
	"drydock/internal/config"
	"drydock/internal/db"
	"drydock/internal/domain"
	"drydock/internal/engine"
	"drydock/internal/repo"
	"drydock/internal/scope"
	"drydock/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "dock",
	Short: "Drydock CLI",
	Long: `Drydock tracks vessel retrofit projects: the work, the crew, the parts
and the paperwork.
- Workspace: the .drydock directory holding the database; drydock.yml
  holds org settings and webhook targets.
- Projects: one per vessel retrofit, with a budget, a team and tasks.
- Tasks: work items moving pending -> in_progress -> completed (blocked is a
  parking state; completed is final).
- Inventory: org-wide parts stock with reorder levels and a stock ledger.
- Reports: consistent snapshots of projects, tasks, inventory or finances,
  rendered to artifacts under the workspace.
- Scope: what you see depends on your role; admins see everything, project
  managers their own projects, engineers and technicians their assignments.
- Event log: diary of changes, view with 'dock log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("DRYDOCK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", app.BootstrapAdminID, "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(actorCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(inventoryCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfgPath := config.Path(workspace)
			if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
				if err := os.WriteFile(cfgPath, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				fmt.Println("wrote", cfgPath)
			}
			env, err := app.Open(cmd.Context(), workspace)
			if err != nil {
				return err
			}
			defer env.Close()
			fmt.Println("workspace ready:", db.Path(workspace))
			return nil
		},
	}
}

func actorCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "actor", Short: "Manage actors"}
	cmd.AddCommand(actorListCmd())
	cmd.AddCommand(actorAddCmd())
	cmd.AddCommand(actorSetRoleCmd())
	return cmd
}

func actorListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List actors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env, _ scope.Identity) error {
				actors, err := env.Engine.Repo.ListActors(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(actors)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Username", "Role", "Active"})
				for _, a := range actors {
					tw.AppendRow(table.Row{a.ID, a.Username, a.Role, a.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func actorAddCmd() *cobra.Command {
	var id, username, fullName, role string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := scope.ParseRole(role); err != nil {
				return err
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env, _ scope.Identity) error {
				a := domain.Actor{
					ID:        id,
					Username:  username,
					FullName:  fullName,
					Role:      role,
					Active:    true,
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if a.ID == "" {
					a.ID = username
				}
				if err := env.Engine.Repo.InsertActor(ctx, nil, a); err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "actor id (defaults to username)")
	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().StringVar(&fullName, "full-name", "", "full name")
	cmd.Flags().StringVar(&role, "role", "technician", "role (admin, project_manager, engineer, technician)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func actorSetRoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-role <actor-id> <role>",
		Short: "Change an actor's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := scope.ParseRole(args[1]); err != nil {
				return err
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env, _ scope.Identity) error {
				return env.Engine.Repo.SetActorRole(ctx, args[0], args[1])
			})
		},
	}
	return cmd
}

func projectCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "project", Short: "Manage retrofit projects"}
	cmd.AddCommand(projectListCmd())
	cmd.AddCommand(projectCreateCmd())
	cmd.AddCommand(projectShowCmd())
	cmd.AddCommand(projectUpdateCmd())
	cmd.AddCommand(projectDeleteCmd())
	cmd.AddCommand(projectMembersCmd())
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List visible projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env, id scope.Identity) error {
				items, err := env.Engine.ListProjects(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Vessel", "Status", "Budget", "Team"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.VesselName, p.Status, floatOrDash(p.Budget), len(p.MemberIDs)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func projectCreateCmd() *cobra.Command {
	var id, name, vesselName, vesselType, vesselOwner, status, description, startDate, endDate string
	var budget, spending float64
	var members []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a retrofit project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env, ident scope.Identity) error {
				opts := engine.ProjectCreateOptions{
					ID:          id,
					Name:        name,
					VesselName:  vesselName,
					VesselType:  vesselType,
					VesselOwner: vesselOwner,
					Status:      status,
					Description: description,
					MemberIDs:   members,
				}
				if cmd.Flags().Changed("budget") {
					opts.Budget = &budget
				}
				if cmd.Flags().Changed("spending") {
					opts.Spending = &spending
				}
				if startDate != "" {
					opts.StartDate = &startDate
				}
				if endDate != "" {
					opts.EndDate = &endDate
				}
				p, err := env.Engine.CreateProject(ctx, ident, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id")
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&vesselName, "vessel", "", "vessel name")
	cmd.Flags().StringVar(&vesselType, "vessel-type", "", "vessel type")
	cmd.Flags().StringVar(&vesselOwner, "vessel-owner", "", "vessel owner")
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().Float64Var(&budget, "budget", 0, "budget")
	cmd.Flags().Float64Var(&spending, "spending", 0, "spending to date")
	cmd.Flags().StringVar(&startDate, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end", "", "end date (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&members, "members", nil, "team member actor ids")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env, id scope.Identity) error {
				p, err := env.Engine.GetProject(ctx, id, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func projectUpdateCmd() *cobra.Command {
	var name, status, description string
	var budget, spending float64
	cmd := &cobra.Command{
		Use:   "update <project-id>",
		Short: "Update a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env, ident scope.Identity) error {
				opts := engine.ProjectUpdateOptions{ID: args[0]}
				if cmd.Flags().Changed("name") {
					opts.Name = &name
				}
				if cmd.Flags().Changed("status") {
					opts.Status = &status
				}
				if cmd.Flags().Changed("description") {
					opts.Description = &description
				}
				if cmd.Flags().Changed("budget") {
					opts.Budget = &budget
				}
				if cmd.Flags().Changed("spending") {
					opts.Spending = &spending
				}
				p, err := env.Engine.UpdateProject(ctx, ident, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().Float64Var(&budget, "budget", 0, "budget")
	cmd.Flags().Float64Var(&spending, "spending", 0, "spending to date")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env, id scope.Identity) error {
				return env.Engine.DeleteProject(ctx, id, args[0])
			})
		},
	}
}

func projectMembersCmd() *cobra.Command {
	var members []string
	cmd := &cobra.Command{
		Use:   "members <project-id>",
		Short: "Replace the project team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env, ident scope.Identity) error {
				p, err := env.Engine.UpdateProject(ctx, ident, engine.ProjectUpdateOptions{
					ID:        args[0],
					MemberIDs: &members,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringSliceVar(&members, "set", nil, "team member actor ids")
	_ = cmd.MarkFlagRequired("set")
	return cmd
}

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "task", Short: "Manage tasks"}
	cmd.AddCommand(taskListCmd())
	cmd.AddCommand(taskCreateCmd())
	cmd.AddCommand(taskShowCmd())
	cmd.AddCommand(taskStatusCmd())
	cmd.AddCommand(taskAssignCmd())
	cmd.AddCommand(taskDeleteCmd())
	return cmd
}

func taskListCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List visible tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env, id scope.Identity) error {
				tasks, err := env.Engine.ListTasks(ctx, id, projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Project", "Name", "Status", "Priority", "Assigned"})
				for _, t := range tasks {
					assigned := "-"
					if t.AssignedTo != nil {
						assigned = *t.AssignedTo
					}
					tw.AppendRow(table.Row{t.ID, t.ProjectID, t.Name, t.Status, t.Priority, assigned})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "limit to one project")
	return cmd
}

func taskCreateCmd() *cobra.Command {
	var projectID, name, description, assign, priority, status, startDate, dueDate string
	var maintenance bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env, ident scope.Identity) error {
				opts := engine.TaskCreateOptions{
					ProjectID:     projectID,
					Name:          name,
					Description:   description,
					AssignedTo:    assign,
					Priority:      priority,
					Status:        status,
					IsMaintenance: maintenance,
				}
				if startDate != "" {
					opts.StartDate = &startDate
				}
				if dueDate != "" {
					opts.DueDate = &dueDate
				}
				t, err := env.Engine.CreateTask(ctx, ident, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&name, "name", "", "task name")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&assign, "assign", "", "assignee actor id (must be a team member)")
	cmd.Flags().StringVar(&priority, "priority", "", "priority (low, medium, high, critical)")
	cmd.Flags().StringVar(&status, "status", "", "initial status")
	cmd.Flags().StringVar(&startDate, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&dueDate, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&maintenance, "maintenance", false, "mark as maintenance work")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env, id scope.Identity) error {
				t, err := env.Engine.GetTask(ctx, id, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id> <status>",
		Short: "Change task status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env, ident scope.Identity) error {
				status := args[1]
				t, err := env.Engine.UpdateTask(ctx, ident, engine.TaskUpdateOptions{
					ID:     args[0],
					Status: &status,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <task-id> <actor-id>",
		Short: "Assign a task (empty actor-id unassigns)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			assignee := ""
			if len(args) == 2 {
				assignee = args[1]
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env, ident scope.Identity) error {
				t, err := env.Engine.UpdateTask(ctx, ident, engine.TaskUpdateOptions{
					ID:         args[0],
					AssignedTo: &assignee,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env, id scope.Identity) error {
				return env.Engine.DeleteTask(ctx, id, args[0])
			})
		},
	}
}

func inventoryCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "inventory", Short: "Manage parts inventory"}
	cmd.AddCommand(inventoryListCmd())
	cmd.AddCommand(inventoryAddCmd())
	cmd.AddCommand(inventoryShowCmd())
	cmd.AddCommand(inventoryStockCmd())
	cmd.AddCommand(inventoryDeleteCmd())
	return cmd
}

func inventoryListCmd() *cobra.Command {
	var lowStock bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env, _ scope.Identity) error {
				items, err := env.Engine.ListInventory(ctx, lowStock)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Category", "Qty", "Reorder", "Low"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.Name, it.Category, it.Quantity, it.ReorderLevel, it.LowStock()})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&lowStock, "low-stock", false, "only items at or below reorder level")
	return cmd
}

func inventoryAddCmd() *cobra.Command {
	var name, category, description, unit, supplier, location string
	var quantity, reorder int
	var unitPrice float64
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an inventory item",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env, ident scope.Identity) error {
				opts := engine.InventoryItemOptions{
					Name:        name,
					Category:    category,
					Description: description,
					Quantity:    quantity,
					Unit:        unit,
					Supplier:    supplier,
					Location:    location,
				}
				if cmd.Flags().Changed("reorder") {
					opts.ReorderLevel = &reorder
				}
				if cmd.Flags().Changed("price") {
					opts.UnitPrice = &unitPrice
				}
				it, err := env.Engine.CreateInventoryItem(ctx, ident, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "item name")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().IntVar(&quantity, "quantity", 0, "starting quantity")
	cmd.Flags().StringVar(&unit, "unit", "", "unit of measure")
	cmd.Flags().Float64Var(&unitPrice, "price", 0, "unit price")
	cmd.Flags().IntVar(&reorder, "reorder", 0, "reorder level")
	cmd.Flags().StringVar(&supplier, "supplier", "", "supplier")
	cmd.Flags().StringVar(&location, "location", "", "storage location")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func inventoryShowCmd() *cobra.Command {
	var transactions bool
	cmd := &cobra.Command{
		Use:   "show <item-id>",
		Short: "Show an inventory item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env, _ scope.Identity) error {
				it, err := env.Engine.GetInventoryItem(ctx, args[0])
				if err != nil {
					return err
				}
				if !transactions {
					return printJSONOrTable(it)
				}
				txs, err := env.Engine.Repo.ListStockTransactions(ctx, it.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"item": it, "transactions": txs})
			})
		},
	}
	cmd.Flags().BoolVar(&transactions, "transactions", false, "include the stock ledger")
	return cmd
}

func inventoryStockCmd() *cobra.Command {
	var kind, projectID, notes string
	var quantity int
	cmd := &cobra.Command{
		Use:   "stock <item-id>",
		Short: "Record a stock movement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env, ident scope.Identity) error {
				it, err := env.Engine.RecordStockMove(ctx, ident, engine.StockMoveOptions{
					ItemID:    args[0],
					ProjectID: projectID,
					Kind:      kind,
					Quantity:  quantity,
					Notes:     notes,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "movement kind (in, out, adjustment)")
	cmd.Flags().IntVar(&quantity, "quantity", 0, "quantity (signed for adjustment)")
	cmd.Flags().StringVar(&projectID, "project", "", "project consuming the stock")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("quantity")
	return cmd
}

func inventoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <item-id>",
		Short: "Delete an inventory item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env, id scope.Identity) error {
				return env.Engine.DeleteInventoryItem(ctx, id, args[0])
			})
		},
	}
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "report", Short: "Generate and manage reports"}
	cmd.AddCommand(reportGenerateCmd())
	cmd.AddCommand(reportListCmd())
	cmd.AddCommand(reportShowCmd())
	cmd.AddCommand(reportDeleteCmd())
	cmd.AddCommand(reportPruneCmd())
	return cmd
}

func reportGenerateCmd() *cobra.Command {
	var reportType, name, projectID string
	var lowStockOnly bool
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Aggregate and render a report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env, ident scope.Identity) error {
				spec := domain.ReportSpec{
					Name:         name,
					Type:         reportType,
					LowStockOnly: lowStockOnly,
				}
				if projectID != "" {
					spec.TargetProjectID = &projectID
				}
				rec, err := env.Engine.GenerateReport(ctx, ident, spec)
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	cmd.Flags().StringVar(&reportType, "type", "", "report type (project, task, inventory, financial)")
	cmd.Flags().StringVar(&name, "name", "", "report name")
	cmd.Flags().StringVar(&projectID, "project", "", "limit to one project")
	cmd.Flags().BoolVar(&lowStockOnly, "low-stock-only", false, "inventory reports: low-stock rows only")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func reportListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List report records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env, id scope.Identity) error {
				recs, err := env.Engine.ListReports(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(recs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Type", "Generated By", "Generated At"})
				for _, rec := range recs {
					tw.AppendRow(table.Row{rec.ID, rec.Name, rec.Type, rec.GeneratedBy, rec.GeneratedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func reportShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <report-id>",
		Short: "Show a report record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env, id scope.Identity) error {
				rec, err := env.Engine.GetReport(ctx, id, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
}

func reportDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <report-id>",
		Short: "Delete a report and its artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env, id scope.Identity) error {
				return env.Engine.DeleteReport(ctx, id, args[0])
			})
		},
	}
}

func reportPruneCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Discard orphaned artifacts older than the cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env, id scope.Identity) error {
				n, err := env.Engine.PruneArtifacts(ctx, id, olderThan)
				if err != nil {
					return err
				}
				fmt.Printf("discarded %d artifacts\n", n)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "minimum artifact age")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show role-scoped dashboard counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env, id scope.Identity) error {
				stats, err := env.Engine.DashboardStats(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stats)
				}
				fmt.Printf("Projects:   %d\n", stats.TotalProjects)
				fmt.Printf("Open tasks: %d (completed %d)\n", stats.OpenTasks, stats.CompletedTasks)
				fmt.Printf("Inventory:  %d items, %d low on stock\n", stats.TotalInventory, stats.LowStockItems)
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	cmd.AddCommand(logTailCmd())
	return cmd
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env, _ scope.Identity) error {
				events, err := env.Engine.Repo.TailEvents(ctx, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	cmd.AddCommand(apikeyCreateCmd())
	cmd.AddCommand(apikeyListCmd())
	cmd.AddCommand(apikeyDeleteCmd())
	return cmd
}

func apikeyCreateCmd() *cobra.Command {
	var actorID, name, key string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(key) == "" {
				return fmt.Errorf("--key required")
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env, _ scope.Identity) error {
				rec := domain.APIKey{
					ID:      fmt.Sprintf("key-%d", time.Now().UnixNano()),
					ActorID: actorID,
					Name:    name,
					KeyHash: repo.HashAPIKey(key),
				}
				if err := env.Engine.Repo.InsertAPIKey(ctx, nil, rec); err != nil {
					return err
				}
				fmt.Println("created", rec.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor the key authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	cmd.Flags().StringVar(&key, "key", "", "plaintext key value (stored hashed)")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env, _ scope.Identity) error {
				keys, err := env.Engine.Repo.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "filter by actor")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env, _ scope.Identity) error {
				return env.Engine.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowActorHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Open(cmd.Context(), viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer env.Close()
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("DRYDOCK_JWT_SECRET"),
				AllowLegacyActorHeader: allowActorHeader,
			}
			if authCfg.JWTSecret == "" && !allowActorHeader {
				return fmt.Errorf("DRYDOCK_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: env.Engine, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Drydock API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8787", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&allowActorHeader, "allow-actor-header", false, "accept the legacy X-Actor-Id header (dev only)")
	return cmd
}

// --- helpers ---

func withEnv(ctx context.Context, fn func(context.Context, *app.Env, scope.Identity) error) error {
	env, err := app.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer env.Close()
	id, err := app.ResolveIdentity(ctx, env.Engine.Repo, viper.GetString("actor-id"))
	if err != nil {
		return err
	}
	return fn(ctx, env, id)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func floatOrDash(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}
