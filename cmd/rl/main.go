package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"riskline/internal/anomaly"
	"riskline/internal/app"
	"riskline/internal/config"
	"riskline/internal/db"
	"riskline/internal/domain"
	"riskline/internal/pipeline"
	"riskline/internal/repo"
	"riskline/internal/risk"
	"riskline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "rl",
	Short: "Riskline CLI",
	Long: `Riskline predicts project delivery risk and screens daily progress reports.
- Workspace: the .riskline directory holding the database and model artifacts.
- Projects and tasks: the tracked work; every task feeds the risk features.
- Daily reports: per-employee progress submissions, screened for anomalies.
- Pipeline: the daily batch run that rescores every active project and
  raises deadline alerts.
- Models: JSON artifacts trained offline and dropped into .riskline/models.`,
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
	viper.SetEnvPrefix("RISKLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(employeeCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(riskCmd())
	rootCmd.AddCommand(alertCmd())
	rootCmd.AddCommand(pipelineCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default riskline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("Wrote", path)
			return nil
		},
	}
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Repo.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Progress", "Risk", "Deadline"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Status, fmt.Sprintf("%.0f%%", p.Progress), fmt.Sprintf("%.1f", p.RiskScore), p.Deadline})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func projectCreateCmd() *cobra.Command {
	var name, managerID, startDate, deadline, status string
	var members []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				now := time.Now().UTC().Format(time.RFC3339)
				p := domain.Project{
					ID:        uuid.NewString(),
					Name:      name,
					ManagerID: managerID,
					MemberIDs: members,
					StartDate: startDate,
					Deadline:  deadline,
					Status:    domain.ProjectPlanning,
					CreatedAt: now,
					UpdatedAt: now,
				}
				if status != "" {
					p.Status = status
				}
				if err := a.Repo.InsertProject(ctx, p); err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&managerID, "manager-id", "", "manager employee id")
	cmd.Flags().StringSliceVar(&members, "member", nil, "member employee id (repeatable)")
	cmd.Flags().StringVar(&startDate, "start-date", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (YYYY-MM-DD)")
	cmd.Flags().StringVar(&status, "status", "", "initial status")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Repo.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Repo.DeleteProject(ctx, args[0])
			})
		},
	}
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskCreateCmd())
	return task
}

func taskListCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks of a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" {
				return fmt.Errorf("--project required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				tasks, err := a.Repo.TasksByProject(ctx, projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Progress", "Assignee", "Deadline"})
				for _, t := range tasks {
					assignee := ""
					if t.AssigneeID != nil {
						assignee = *t.AssigneeID
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.Priority, fmt.Sprintf("%.0f%%", t.Progress), assignee, t.Deadline})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func taskCreateCmd() *cobra.Command {
	var projectID, title, description, assigneeID, priority, deadline string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" || title == "" {
				return fmt.Errorf("--project and --title required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if _, err := a.Repo.GetProject(ctx, projectID); err != nil {
					return err
				}
				now := time.Now().UTC().Format(time.RFC3339)
				t := domain.Task{
					ID:          uuid.NewString(),
					ProjectID:   projectID,
					AssigneeID:  optionalString(assigneeID),
					Title:       title,
					Description: description,
					Status:      domain.TaskPending,
					Priority:    "medium",
					Deadline:    deadline,
					CreatedAt:   now,
					UpdatedAt:   now,
				}
				if priority != "" {
					t.Priority = priority
				}
				if err := a.Repo.InsertTask(ctx, t); err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&assigneeID, "assignee-id", "", "assignee employee id")
	cmd.Flags().StringVar(&priority, "priority", "", "priority (low, medium, high, critical)")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func employeeCmd() *cobra.Command {
	emp := &cobra.Command{Use: "employee", Short: "Manage employees"}
	emp.AddCommand(employeeListCmd())
	emp.AddCommand(employeeCreateCmd())
	return emp
}

func employeeListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List employees",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				byID, err := a.Repo.AllEmployees(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(byID)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Role", "Trust"})
				for _, e := range byID {
					tw.AppendRow(table.Row{e.ID, e.Name, e.Email, e.Role, fmt.Sprintf("%.0f", e.TrustScore)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func employeeCreateCmd() *cobra.Command {
	var name, email, role string
	var trust float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create employee",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				e := domain.Employee{
					ID:         uuid.NewString(),
					Name:       name,
					Email:      email,
					Role:       "employee",
					TrustScore: trust,
				}
				if role != "" {
					e.Role = role
				}
				if err := a.Repo.InsertEmployee(ctx, e); err != nil {
					return err
				}
				return printJSONOrTable(e)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "employee name")
	cmd.Flags().StringVar(&email, "email", "", "email")
	cmd.Flags().StringVar(&role, "role", "", "role (manager, employee)")
	cmd.Flags().Float64Var(&trust, "trust-score", 100, "trust score (0-100)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func reportCmd() *cobra.Command {
	rep := &cobra.Command{Use: "report", Short: "Daily progress reports"}
	rep.AddCommand(reportSubmitCmd())
	rep.AddCommand(reportHistoryCmd())
	return rep
}

func reportSubmitCmd() *cobra.Command {
	var taskID, employeeID, issues, blocker, notes string
	var hours, percent float64
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a daily progress report",
		RunE: func(cmd *cobra.Command, args []string) error {
			if taskID == "" || employeeID == "" {
				return fmt.Errorf("--task and --employee required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				task, err := a.Repo.GetTask(ctx, taskID)
				if err != nil {
					return err
				}
				// Reports always land on today's row. Past days are immutable.
				now := time.Now()
				date := now.UTC().Format("2006-01-02")
				report := domain.ProgressReport{
					ID:                uuid.NewString(),
					TaskID:            task.ID,
					EmployeeID:        employeeID,
					ProjectID:         task.ProjectID,
					Date:              date,
					HoursWorked:       hours,
					CompletionPercent: percent,
					Issues:            issues,
					BlockerDesc:       blocker,
					Notes:             notes,
					SubmittedAt:       now.UTC().Format(time.RFC3339),
				}
				history, err := a.Repo.HistoryByTask(ctx, task.ID)
				if err != nil {
					return err
				}
				prev := 0.0
				for _, r := range history {
					if r.Date < date {
						prev = r.CompletionPercent
					}
				}
				check, err := anomaly.New(a.Models).CheckProgressReport(report, prev)
				if err != nil {
					return err
				}
				report.AnomalyFlag = check.IsAnomaly
				if err := a.Repo.UpsertReport(ctx, report); err != nil {
					return err
				}
				status := ""
				switch {
				case percent >= 100:
					status = domain.TaskCompleted
				case percent > 0:
					status = domain.TaskInProgress
				}
				if err := a.Repo.UpdateTaskProgress(ctx, task.ID, percent, status); err != nil {
					return err
				}
				if check.IsAnomaly && check.Reason != nil {
					fmt.Fprintln(os.Stderr, "anomaly:", *check.Reason)
				}
				return printJSONOrTable(report)
			})
		},
	}
	cmd.Flags().StringVar(&taskID, "task", "", "task id")
	cmd.Flags().StringVar(&employeeID, "employee", "", "employee id")
	cmd.Flags().Float64Var(&hours, "hours", 0, "hours worked")
	cmd.Flags().Float64Var(&percent, "percent", 0, "completion percent (0-100)")
	cmd.Flags().StringVar(&issues, "issues", "", "issues encountered")
	cmd.Flags().StringVar(&blocker, "blocker", "", "blocker description")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	_ = cmd.MarkFlagRequired("task")
	_ = cmd.MarkFlagRequired("employee")
	return cmd
}

func reportHistoryCmd() *cobra.Command {
	var taskID string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show report history for a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if taskID == "" {
				return fmt.Errorf("--task required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Repo.HistoryByTask(ctx, taskID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Date", "Employee", "Hours", "Completion", "Anomaly"})
				for _, r := range items {
					tw.AppendRow(table.Row{r.Date, r.EmployeeID, fmt.Sprintf("%.1f", r.HoursWorked), fmt.Sprintf("%.0f%%", r.CompletionPercent), r.AnomalyFlag})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&taskID, "task", "", "task id")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func riskCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "risk",
		Short: "Predict delivery risk for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" {
				return fmt.Errorf("--project required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Repo.GetProject(ctx, projectID)
				if err != nil {
					return err
				}
				tasks, err := a.Repo.TasksByProject(ctx, p.ID)
				if err != nil {
					return err
				}
				history := make(map[string][]domain.ProgressReport, len(tasks))
				for _, t := range tasks {
					reports, err := a.Repo.HistoryByTask(ctx, t.ID)
					if err != nil {
						return err
					}
					history[t.ID] = reports
				}
				employees, err := a.Repo.AllEmployees(ctx)
				if err != nil {
					return err
				}
				clf := risk.New(a.Models)
				clf.DefaultTrustScore = a.Config.Risk.DefaultTrustScore
				res, err := clf.PredictProjectRisk(p, tasks, history, employees)
				if err != nil {
					return err
				}
				if err := a.Repo.UpdateRiskScore(ctx, p.ID, res.RiskPercent, ""); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("%s: %s (%.1f%%, confidence %.1f%%)\n", res.ProjectName, res.OverallRisk, res.RiskPercent, res.Confidence)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Task", "Employee", "Level", "Score", "Days Left", "Reason"})
				for _, tr := range res.Tasks {
					tw.AppendRow(table.Row{tr.Name, tr.Employee, tr.RiskLevel, tr.RiskScore, tr.DaysRemaining, tr.Reason})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func alertCmd() *cobra.Command {
	al := &cobra.Command{Use: "alert", Short: "Manage alerts"}
	al.AddCommand(alertListCmd())
	al.AddCommand(alertReadCmd())
	al.AddCommand(alertReadAllCmd())
	return al
}

func alertListCmd() *cobra.Command {
	var alertType, severity string
	var unread bool
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Repo.ListAlerts(ctx, repo.AlertFilter{
					Type:       alertType,
					Severity:   severity,
					UnreadOnly: unread,
					Limit:      limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Severity", "Title", "Read", "Created"})
				for _, al := range items {
					tw.AppendRow(table.Row{al.ID, al.Type, al.Severity, al.Title, al.Read, al.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&alertType, "type", "", "alert type filter")
	cmd.Flags().StringVar(&severity, "severity", "", "severity filter")
	cmd.Flags().BoolVar(&unread, "unread", false, "unread only")
	cmd.Flags().IntVar(&limit, "n", 0, "max alerts")
	return cmd
}

func alertReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <id>",
		Short: "Mark an alert as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Repo.MarkAlertRead(ctx, args[0])
			})
		},
	}
}

func alertReadAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read-all",
		Short: "Mark all alerts as read",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				n, err := a.Repo.MarkAllAlertsRead(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Marked %d alerts read\n", n)
				return nil
			})
		},
	}
}

func pipelineCmd() *cobra.Command {
	pl := &cobra.Command{Use: "pipeline", Short: "Risk pipeline"}
	pl.AddCommand(pipelineRunCmd())
	return pl
}

func pipelineRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Score every active project now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				runner := newRunner(a, slog.Default())
				sum, err := runner.Run(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sum)
				}
				fmt.Printf("Scored %d projects (%d failed, %d alerts)\n", sum.Succeeded, sum.Failed, sum.Alerts)
				for _, f := range sum.Failures {
					fmt.Printf("  %s: %s\n", f.ProjectID, f.Reason)
				}
				return nil
			})
		},
	}
}

func apikeyCmd() *cobra.Command {
	ak := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	ak.AddCommand(apikeyCreateCmd())
	return ak
}

func apikeyCreateCmd() *cobra.Command {
	var actorID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actorID == "" {
				return fmt.Errorf("--actor required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				raw := make([]byte, 24)
				if _, err := rand.Read(raw); err != nil {
					return err
				}
				key := "rk_" + hex.EncodeToString(raw)
				k := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   actorID,
					Name:      name,
					KeyHash:   repo.HashAPIKey(key),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := a.Repo.CreateAPIKey(ctx, k); err != nil {
					return err
				}
				// The raw key is shown once and never stored.
				fmt.Println(key)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor id the key authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed demo employees and a demo project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return seedDemo(ctx, a)
			})
		},
	}
}

func seedDemo(ctx context.Context, a *app.App) error {
	employees := []domain.Employee{
		{ID: "emp-ravi", Name: "Ravi Kumar", Email: "ravi@company.com", Role: "manager", TrustScore: 100},
		{ID: "emp-priya", Name: "Priya Sharma", Email: "priya@company.com", Role: "employee", TrustScore: 100},
		{ID: "emp-anita", Name: "Anita Desai", Email: "anita@company.com", Role: "employee", TrustScore: 100},
		{ID: "emp-vikram", Name: "Vikram Singh", Email: "vikram@company.com", Role: "employee", TrustScore: 100},
		{ID: "emp-meena", Name: "Meena Patel", Email: "meena@company.com", Role: "employee", TrustScore: 100},
		{ID: "emp-arjun", Name: "Arjun Reddy", Email: "arjun@company.com", Role: "employee", TrustScore: 100},
		{ID: "emp-deepa", Name: "Deepa Nair", Email: "deepa@company.com", Role: "employee", TrustScore: 100},
	}
	created := 0
	for _, e := range employees {
		if _, err := a.Repo.GetEmployee(ctx, e.ID); err == nil {
			continue
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if err := a.Repo.InsertEmployee(ctx, e); err != nil {
			return err
		}
		created++
	}

	now := time.Now().UTC()
	projectID := "demo-launch"
	if _, err := a.Repo.GetProject(ctx, projectID); errors.Is(err, repo.ErrNotFound) {
		p := domain.Project{
			ID:        projectID,
			Name:      "Website Launch",
			ManagerID: "emp-ravi",
			MemberIDs: []string{"emp-priya", "emp-anita", "emp-vikram"},
			StartDate: now.AddDate(0, 0, -14).Format("2006-01-02"),
			Deadline:  now.AddDate(0, 0, 21).Format("2006-01-02"),
			Status:    domain.ProjectInProgress,
			CreatedAt: now.Format(time.RFC3339),
			UpdatedAt: now.Format(time.RFC3339),
		}
		if err := a.Repo.InsertProject(ctx, p); err != nil {
			return err
		}
		tasks := []struct {
			id, title, assignee string
			progress            float64
			offsetDays          int
		}{
			{"demo-design", "Design landing page", "emp-priya", 80, 7},
			{"demo-backend", "Build checkout API", "emp-anita", 35, 14},
			{"demo-qa", "Regression test pass", "emp-vikram", 0, 21},
		}
		for _, spec := range tasks {
			assignee := spec.assignee
			t := domain.Task{
				ID:         spec.id,
				ProjectID:  projectID,
				AssigneeID: &assignee,
				Title:      spec.title,
				Status:     domain.TaskInProgress,
				Priority:   "high",
				Progress:   spec.progress,
				Deadline:   now.AddDate(0, 0, spec.offsetDays).Format("2006-01-02"),
				CreatedAt:  now.Format(time.RFC3339),
				UpdatedAt:  now.Format(time.RFC3339),
			}
			if err := a.Repo.InsertTask(ctx, t); err != nil {
				return err
			}
		}
	} else if err != nil {
		return err
	}

	fmt.Printf("Seeded %d employees and the %q project\n", created, projectID)
	return nil
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowAnonymous bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server and the daily pipeline scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			a, err := app.Open(workspace)
			if err != nil {
				return err
			}
			defer a.Close()

			logger, closeLog := app.SetupLogger(filepath.Join(workspace, ".riskline", "riskline.log"), slog.LevelInfo)
			defer closeLog()

			if addr == "" {
				addr = a.Config.Server.Addr
			}
			if basePath == "" {
				basePath = a.Config.Server.BasePath
			}
			authCfg := server.AuthConfig{
				JWTSecret:      os.Getenv(a.Config.Auth.JWTSecretEnv),
				AllowAnonymous: allowAnonymous,
				Logger:         logger,
			}
			if authCfg.JWTSecret == "" && !allowAnonymous {
				return fmt.Errorf("%s is required for bearer auth (or pass --allow-anonymous for local use)", a.Config.Auth.JWTSecretEnv)
			}

			runner := newRunner(a, logger)
			handler, err := server.New(server.Config{
				Repo:       a.Repo,
				Classifier: runner.Classifier,
				Detector:   anomaly.New(a.Models),
				Runner:     runner,
				App:        a.Config,
				BasePath:   basePath,
				Auth:       authCfg,
			})
			if err != nil {
				return err
			}

			sched, err := pipeline.NewScheduler(runner, a.Config.Pipeline.Schedule, logger)
			if err != nil {
				return fmt.Errorf("invalid pipeline schedule %q: %w", a.Config.Pipeline.Schedule, err)
			}
			sched.Start()
			defer sched.Stop()

			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			logger.Info("serving riskline api", "addr", addr, "base_path", basePath, "schedule", a.Config.Pipeline.Schedule)
			fmt.Printf("Serving Riskline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from config)")
	cmd.Flags().BoolVar(&allowAnonymous, "allow-anonymous", false, "disable authentication (dev only)")
	return cmd
}

// --- helpers ---

func newRunner(a *app.App, logger *slog.Logger) *pipeline.Runner {
	clf := risk.New(a.Models)
	clf.DefaultTrustScore = a.Config.Risk.DefaultTrustScore
	return &pipeline.Runner{
		Projects:   a.Repo,
		Tasks:      a.Repo,
		Progress:   a.Repo,
		Employees:  a.Repo,
		Alerts:     a.Repo,
		Classifier: clf,
		Config:     a.Config,
		Log:        logger,
	}
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
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

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
