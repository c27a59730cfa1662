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

	"facilityfix/internal/app"
	"facilityfix/internal/config"
	"facilityfix/internal/domain"
	"facilityfix/internal/engine"
	"facilityfix/internal/server"
	"facilityfix/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "ffx",
	Short: "FacilityFix CLI",
	Long: `FacilityFix runs the maintenance request lifecycle for a building:
- Tenants file concern slips describing a problem.
- Admins evaluate slips and route approved ones into job services.
- Staff work jobs through assigned -> in_progress -> completed -> closed,
  appending timestamped work notes along the way.
- Every step fans out notifications to the people involved.
The workspace keeps its database under .facilityfix; configuration lives in
facilityfix.yml next to it.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := store.EnsureWorkspace(workspace); err != nil {
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
	viper.SetEnvPrefix("FACILITYFIX")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(concernCmd())
	rootCmd.AddCommand(jobCmd())
	rootCmd.AddCommand(notificationsCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			a, err := app.Open(workspace)
			if err != nil {
				return err
			}
			defer a.Close()
			fmt.Printf("Initialized workspace: %s, database at %s\n", path, store.Path(workspace))
			return nil
		},
	}
	return cmd
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage user profiles"}
	user.AddCommand(userCreateCmd())
	user.AddCommand(userShowCmd())
	user.AddCommand(userListCmd())
	return user
}

func userCreateCmd() *cobra.Command {
	var role, first, last, department, unit string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Directory.CreateProfile(ctx, domain.UserProfile{
					Role:         role,
					FirstName:    first,
					LastName:     last,
					Department:   department,
					BuildingUnit: unit,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role (admin, staff, tenant)")
	cmd.Flags().StringVar(&first, "first-name", "", "first name")
	cmd.Flags().StringVar(&last, "last-name", "", "last name")
	cmd.Flags().StringVar(&department, "department", "", "department (staff)")
	cmd.Flags().StringVar(&unit, "unit", "", "building unit (tenant), e.g. A-10")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("first-name")
	_ = cmd.MarkFlagRequired("last-name")
	return cmd
}

func userShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a user profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Directory.ResolveProfile(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func userListCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List user profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Directory.ListProfiles(ctx, role)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Role", "Name", "Department", "Unit"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Role, p.FirstName + " " + p.LastName, p.Department, p.BuildingUnit})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "filter by role")
	return cmd
}

func concernCmd() *cobra.Command {
	concern := &cobra.Command{Use: "concern", Short: "Manage concern slips"}
	concern.AddCommand(concernCreateCmd())
	concern.AddCommand(concernShowCmd())
	concern.AddCommand(concernListCmd())
	concern.AddCommand(concernEvaluateCmd())
	return concern
}

func concernCreateCmd() *cobra.Command {
	var title, description, location, category, priority, unitID string
	var attachments []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Submit a concern slip",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				in := engine.ConcernSlipInput{
					Title:       title,
					Description: description,
					Location:    location,
					Category:    category,
					Priority:    priority,
					Attachments: attachments,
				}
				if unitID != "" {
					in.UnitID = &unitID
				}
				slip, err := a.Engine.CreateConcernSlip(ctx, requireActor(), in)
				if err != nil {
					return err
				}
				return printJSONOrTable(slip)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "short summary")
	cmd.Flags().StringVar(&description, "description", "", "full description")
	cmd.Flags().StringVar(&location, "location", "", "where the problem is")
	cmd.Flags().StringVar(&category, "category", "", "category, e.g. plumbing")
	cmd.Flags().StringVar(&priority, "priority", "", "low, medium, high or critical")
	cmd.Flags().StringVar(&unitID, "unit", "", "building unit")
	cmd.Flags().StringSliceVar(&attachments, "attachment", nil, "attachment reference (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("location")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func concernShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a concern slip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				slip, err := a.Engine.GetConcernSlip(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(slip)
			})
		},
	}
	return cmd
}

func concernListCmd() *cobra.Command {
	var status, tenant string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List concern slips",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var (
					slips []domain.ConcernSlip
					err   error
				)
				switch {
				case tenant != "":
					slips, err = a.Engine.ListConcernSlipsByTenant(ctx, tenant)
				case status != "":
					slips, err = a.Engine.ListConcernSlipsByStatus(ctx, status)
				default:
					slips, err = a.Engine.ListAllConcernSlips(ctx)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(slips)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Reported By", "Created"})
				for _, s := range slips {
					tw.AppendRow(table.Row{s.ID, s.Title, s.Status, s.Priority, s.ReportedBy, s.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&tenant, "tenant", "", "filter by reporting tenant")
	return cmd
}

func concernEvaluateCmd() *cobra.Command {
	var status, resolutionType, urgency, notes string
	cmd := &cobra.Command{
		Use:   "evaluate <id>",
		Short: "Record an evaluation on a concern slip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				eval := engine.Evaluation{}
				if cmd.Flags().Changed("status") {
					eval.Status = &status
				}
				if cmd.Flags().Changed("resolution-type") {
					eval.ResolutionType = &resolutionType
				}
				if cmd.Flags().Changed("urgency") {
					eval.UrgencyAssessment = &urgency
				}
				if cmd.Flags().Changed("notes") {
					eval.AdminNotes = &notes
				}
				slip, err := a.Engine.EvaluateConcernSlip(ctx, args[0], requireActor(), eval)
				if err != nil {
					return err
				}
				return printJSONOrTable(slip)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "approved, rejected or other routing status")
	cmd.Flags().StringVar(&resolutionType, "resolution-type", "", "resolution type")
	cmd.Flags().StringVar(&urgency, "urgency", "", "urgency assessment")
	cmd.Flags().StringVar(&notes, "notes", "", "admin notes")
	return cmd
}

func jobCmd() *cobra.Command {
	job := &cobra.Command{Use: "job", Short: "Manage job services"}
	job.AddCommand(jobCreateCmd())
	job.AddCommand(jobShowCmd())
	job.AddCommand(jobListCmd())
	job.AddCommand(jobAssignCmd())
	job.AddCommand(jobStatusCmd())
	job.AddCommand(jobNotesCmd())
	return job
}

func jobCreateCmd() *cobra.Command {
	var concernID, title, description, location, category, priority, assignedTo, scheduled string
	var estimatedHours float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a job service from an approved concern slip",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				in := engine.JobServiceInput{
					Title:       title,
					Description: description,
					Location:    location,
					Category:    category,
					Priority:    priority,
				}
				if assignedTo != "" {
					in.AssignedTo = &assignedTo
				}
				if scheduled != "" {
					in.ScheduledDate = &scheduled
				}
				if cmd.Flags().Changed("estimated-hours") {
					in.EstimatedHours = &estimatedHours
				}
				job, err := a.Engine.CreateJobService(ctx, concernID, requireActor(), in)
				if err != nil {
					return err
				}
				return printJSONOrTable(job)
			})
		},
	}
	cmd.Flags().StringVar(&concernID, "concern", "", "concern slip id")
	cmd.Flags().StringVar(&title, "title", "", "override title")
	cmd.Flags().StringVar(&description, "description", "", "override description")
	cmd.Flags().StringVar(&location, "location", "", "override location")
	cmd.Flags().StringVar(&category, "category", "", "override category")
	cmd.Flags().StringVar(&priority, "priority", "", "override priority")
	cmd.Flags().StringVar(&assignedTo, "assign", "", "staff id to assign immediately")
	cmd.Flags().StringVar(&scheduled, "scheduled", "", "scheduled date")
	cmd.Flags().Float64Var(&estimatedHours, "estimated-hours", 0, "estimated hours")
	_ = cmd.MarkFlagRequired("concern")
	return cmd
}

func jobShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a job service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				job, err := a.Engine.GetJobService(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(job)
			})
		},
	}
	return cmd
}

func jobListCmd() *cobra.Command {
	var status, staff string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List job services",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var (
					jobs []domain.JobService
					err  error
				)
				switch {
				case staff != "":
					jobs, err = a.Engine.ListJobServicesByStaff(ctx, staff)
				case status != "":
					jobs, err = a.Engine.ListJobServicesByStatus(ctx, status)
				default:
					jobs, err = a.Engine.ListAllJobServices(ctx)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(jobs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Assigned To", "Priority", "Concern"})
				for _, j := range jobs {
					assignee := ""
					if j.AssignedTo != nil {
						assignee = *j.AssignedTo
					}
					tw.AppendRow(table.Row{j.ID, j.Title, j.Status, assignee, j.Priority, j.ConcernSlipID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&staff, "staff", "", "filter by assigned staff id")
	return cmd
}

func jobAssignCmd() *cobra.Command {
	var staff string
	cmd := &cobra.Command{
		Use:   "assign <id>",
		Short: "Assign a job service to staff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				job, err := a.Engine.AssignJobService(ctx, args[0], staff, requireActor())
				if err != nil {
					return err
				}
				return printJSONOrTable(job)
			})
		},
	}
	cmd.Flags().StringVar(&staff, "staff", "", "staff id, e.g. S-0001")
	_ = cmd.MarkFlagRequired("staff")
	return cmd
}

func jobStatusCmd() *cobra.Command {
	var status, notes string
	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Update a job service status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var notesPtr *string
				if cmd.Flags().Changed("notes") {
					notesPtr = &notes
				}
				job, err := a.Engine.UpdateJobStatus(ctx, args[0], status, requireActor(), notesPtr)
				if err != nil {
					return err
				}
				return printJSONOrTable(job)
			})
		},
	}
	cmd.Flags().StringVar(&status, "to", "", "target status (assigned, in_progress, completed, closed)")
	cmd.Flags().StringVar(&notes, "notes", "", "staff or completion notes")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func jobNotesCmd() *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "notes <id>",
		Short: "Append work notes to a job service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				job, err := a.Engine.AddWorkNotes(ctx, args[0], notes, requireActor())
				if err != nil {
					return err
				}
				return printJSONOrTable(job)
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "notes to append")
	_ = cmd.MarkFlagRequired("notes")
	return cmd
}

func notificationsCmd() *cobra.Command {
	notif := &cobra.Command{Use: "notifications", Short: "Inspect notifications"}
	notif.AddCommand(notificationsListCmd())
	notif.AddCommand(notificationsReadCmd())
	return notif
}

func notificationsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Notify.ListByRecipient(ctx, requireActor())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Title", "Read", "Created"})
				for _, n := range items {
					tw.AppendRow(table.Row{n.ID, n.NotificationType, n.Title, n.IsRead, n.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func notificationsReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <id>",
		Short: "Mark a notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Notify.MarkRead(ctx, args[0], requireActor())
			})
		},
	}
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyRevokeCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue an API key for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				plain, key, err := a.Directory.CreateAPIKey(ctx, requireActor(), name)
				if err != nil {
					return err
				}
				fmt.Printf("API key (shown once): %s\n", plain)
				return printJSONOrTable(key)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Directory.ListAPIKeys(ctx, requireActor())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Revoked", "Created"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.Name, k.Revoked, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Directory.RevokeAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			a, err := app.Open(workspace)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr == "" {
				addr = a.Config.Server.Addr
			}
			if basePath == "" {
				basePath = a.Config.Server.BasePath
			}
			authCfg := server.AuthConfig{
				JWTSecret:              a.Config.Auth.JWTSecret,
				AllowLegacyActorHeader: a.Config.Auth.AllowLegacyActorHeader,
				DevLogin:               a.Config.Auth.DevLogin,
				Logger:                 a.Logger,
			}
			if secret := os.Getenv("FACILITYFIX_JWT_SECRET"); secret != "" {
				authCfg.JWTSecret = secret
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowLegacyActorHeader {
				return fmt.Errorf("FACILITYFIX_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Engine:    a.Engine,
				Directory: a.Directory,
				Notify:    a.Notify,
				BasePath:  basePath,
				Auth:      authCfg,
			})
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
			fmt.Printf("Serving FacilityFix API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to config)")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func requireActor() string {
	return viper.GetString("actor-id")
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
