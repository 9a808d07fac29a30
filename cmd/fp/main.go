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

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"flatpack/internal/config"
	"flatpack/internal/db"
	"flatpack/internal/domain"
	"flatpack/internal/engine"
	"flatpack/internal/migrate"
	"flatpack/internal/repo"
	"flatpack/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "fp",
	Short: "Flatpack CLI",
	Long: `Flatpack coordinates a furniture-assembly marketplace.
Core concepts:
- Workspace: the .flatpack directory holding the SQLite database.
- Projects: assembly jobs posted by customers; statuses go open -> in_progress -> completed (cancelled is an exit).
- Services: listings published by assemblers with an hourly rate.
- Messages: direct messages between users; reading a conversation marks it read.
- Reviews: participants of a completed project rate each other once; a user's
  average rating is recomputed from all received reviews.
- Event log: diary of changes, view with 'fp log tail'.`,
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
	viper.SetEnvPrefix("FLATPACK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(serviceCmd())
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(messageCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(serveCmd())
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
			if err != nil {
				return err
			}
			defer conn.Close()
			return migrate.Migrate(conn)
		},
	}
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show marketplace status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				counts, err := e.Repo.CountProjectsByStatus(ctx)
				if err != nil {
					return err
				}
				out := map[string]any{"project_counts": counts}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Println("Projects:")
				for status, c := range counts {
					fmt.Printf("  %s: %d\n", status, c)
				}
				return nil
			})
		},
	}
	return cmd
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectAssignCmd())
	prj.AddCommand(projectStatusCmd())
	prj.AddCommand(projectReviewsCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var title, desc, furnitureType, location string
	var budget float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Post a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, engine.ProjectCreateOptions{
					Title:         title,
					Description:   desc,
					FurnitureType: furnitureType,
					Location:      location,
					Budget:        budget,
					ActorID:       viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "project title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&furnitureType, "furniture-type", "", "furniture type")
	cmd.Flags().StringVar(&location, "location", "", "location")
	cmd.Flags().Float64Var(&budget, "budget", 0, "budget")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("furniture-type")
	return cmd
}

func projectListCmd() *cobra.Command {
	var f repo.ProjectFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListProjects(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Type", "Status", "Assigned To", "Budget"})
				for _, p := range items {
					assignee := ""
					if p.AssignedTo != nil {
						assignee = *p.AssignedTo
					}
					tw.AppendRow(table.Row{p.ID, p.Title, p.FurnitureType, p.Status, assignee, p.Budget})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.FurnitureType, "furniture-type", "", "furniture type filter")
	cmd.Flags().StringVar(&f.CreatorID, "creator-id", "", "creator filter")
	cmd.Flags().StringVar(&f.AssignedTo, "assigned-to", "", "assignee filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max results")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Repo.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectAssignCmd() *cobra.Command {
	var assignee string
	cmd := &cobra.Command{
		Use:   "assign <project-id>",
		Short: "Assign project to an assembler",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.AssignProject(ctx, viper.GetString("actor-id"), args[0], assignee)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&assignee, "to", "", "assembler actor id")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func projectStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "set-status <project-id>",
		Short: "Transition project status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.SetProjectStatus(ctx, viper.GetString("actor-id"), args[0], status)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "target status (completed or cancelled)")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func projectReviewsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reviews <project-id>",
		Short: "List reviews left on a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListReviewsForProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func serviceCmd() *cobra.Command {
	svc := &cobra.Command{Use: "service", Short: "Manage service listings"}
	svc.AddCommand(serviceCreateCmd())
	svc.AddCommand(serviceListCmd())
	svc.AddCommand(serviceUpdateCmd())
	svc.AddCommand(serviceDeleteCmd())
	return svc
}

func serviceCreateCmd() *cobra.Command {
	var title, desc string
	var rate float64
	var years int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Publish a service listing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.CreateService(ctx, engine.ServiceCreateOptions{
					Title:           title,
					Description:     desc,
					HourlyRate:      rate,
					ExperienceYears: years,
					IsAvailable:     true,
					ActorID:         viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "listing title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().Float64Var(&rate, "hourly-rate", 0, "hourly rate")
	cmd.Flags().IntVar(&years, "experience-years", 0, "years of experience")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("hourly-rate")
	return cmd
}

func serviceListCmd() *cobra.Command {
	var f repo.ServiceFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List service listings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListServices(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Provider", "Title", "Rate", "Available"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.ProviderID, s.Title, s.HourlyRate, s.IsAvailable})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ProviderID, "provider-id", "", "provider filter")
	cmd.Flags().BoolVar(&f.AvailableOnly, "available", false, "only available listings")
	cmd.Flags().Float64Var(&f.MaxHourlyRate, "max-hourly-rate", 0, "max hourly rate")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max results")
	return cmd
}

func serviceUpdateCmd() *cobra.Command {
	var title, desc string
	var rate float64
	var years int
	var available bool
	cmd := &cobra.Command{
		Use:   "update <service-id>",
		Short: "Update a service listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.ServiceUpdateOptions{
					ID:      args[0],
					ActorID: viper.GetString("actor-id"),
				}
				if cmd.Flags().Changed("title") {
					opts.Title = &title
				}
				if cmd.Flags().Changed("description") {
					opts.Description = &desc
				}
				if cmd.Flags().Changed("hourly-rate") {
					opts.HourlyRate = &rate
				}
				if cmd.Flags().Changed("experience-years") {
					opts.ExperienceYears = &years
				}
				if cmd.Flags().Changed("available") {
					opts.IsAvailable = &available
				}
				s, err := e.UpdateService(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "listing title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().Float64Var(&rate, "hourly-rate", 0, "hourly rate")
	cmd.Flags().IntVar(&years, "experience-years", 0, "years of experience")
	cmd.Flags().BoolVar(&available, "available", true, "availability")
	return cmd
}

func serviceDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <service-id>",
		Short: "Delete a service listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteService(ctx, viper.GetString("actor-id"), args[0])
			})
		},
	}
	return cmd
}

func profileCmd() *cobra.Command {
	prof := &cobra.Command{Use: "profile", Short: "Manage user profiles"}
	prof.AddCommand(profileShowCmd())
	prof.AddCommand(profileUpdateCmd())
	prof.AddCommand(profileListCmd())
	return prof
}

func profileShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [actor-id]",
		Short: "Show a profile (defaults to the current actor)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if len(args) == 1 {
					p, err := e.GetProfile(ctx, args[0])
					if err != nil {
						return err
					}
					return printJSONOrTable(p)
				}
				p, err := e.MyProfile(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func profileUpdateCmd() *cobra.Command {
	var bio, location, phone string
	var assembler bool
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update the current actor profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.ProfileUpdateOptions{ActorID: viper.GetString("actor-id")}
				if cmd.Flags().Changed("bio") {
					opts.Bio = &bio
				}
				if cmd.Flags().Changed("location") {
					opts.Location = &location
				}
				if cmd.Flags().Changed("phone") {
					opts.Phone = &phone
				}
				if cmd.Flags().Changed("assembler") {
					opts.IsAssembler = &assembler
				}
				p, err := e.UpdateMyProfile(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&bio, "bio", "", "bio")
	cmd.Flags().StringVar(&location, "location", "", "location")
	cmd.Flags().StringVar(&phone, "phone", "", "phone")
	cmd.Flags().BoolVar(&assembler, "assembler", false, "offer assembly services")
	return cmd
}

func profileListCmd() *cobra.Command {
	var assemblersOnly bool
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f := repo.ProfileFilters{Limit: limit}
				if assemblersOnly {
					yes := true
					f.IsAssembler = &yes
				}
				items, err := e.Repo.ListProfiles(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Actor", "Assembler", "Rating", "Location"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ActorID, p.IsAssembler, p.AverageRating, p.Location})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&assemblersOnly, "assemblers", false, "only assemblers")
	cmd.Flags().IntVar(&limit, "limit", 50, "max results")
	return cmd
}

func messageCmd() *cobra.Command {
	msg := &cobra.Command{Use: "message", Short: "Direct messages"}
	msg.AddCommand(messageSendCmd())
	msg.AddCommand(messageConversationsCmd())
	msg.AddCommand(messageHistoryCmd())
	return msg
}

func messageSendCmd() *cobra.Command {
	var to, content string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.SendMessage(ctx, viper.GetString("actor-id"), to, content)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "receiver actor id")
	cmd.Flags().StringVar(&content, "content", "", "message content")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func messageConversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "List conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListConversations(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"With", "Unread", "Latest"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.CounterpartID, c.UnreadCount, c.Latest.Content})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func messageHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <actor-id>",
		Short: "Show a conversation and mark it read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.History(ctx, viper.GetString("actor-id"), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func reviewCmd() *cobra.Command {
	rev := &cobra.Command{Use: "review", Short: "Reviews"}
	rev.AddCommand(reviewCreateCmd())
	rev.AddCommand(reviewForCmd())
	return rev
}

func reviewCreateCmd() *cobra.Command {
	var projectID, revieweeID, comment string
	var rating int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Review a participant of a completed project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rv, err := e.CreateReview(ctx, engine.ReviewCreateOptions{
					ProjectID:  projectID,
					RevieweeID: revieweeID,
					Rating:     rating,
					Comment:    comment,
					ActorID:    viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(rv)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project-id", "", "project id")
	cmd.Flags().StringVar(&revieweeID, "reviewee-id", "", "reviewee actor id")
	cmd.Flags().IntVar(&rating, "rating", 0, "rating 1-5")
	cmd.Flags().StringVar(&comment, "comment", "", "comment")
	_ = cmd.MarkFlagRequired("project-id")
	_ = cmd.MarkFlagRequired("reviewee-id")
	_ = cmd.MarkFlagRequired("rating")
	return cmd
}

func reviewForCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "for <actor-id>",
		Short: "List reviews received by a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ReviewsFor(ctx, args[0], limit)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max results")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				raw := uuid.NewString() + uuid.NewString()
				key := domain.APIKey{
					ID:      uuid.NewString(),
					ActorID: viper.GetString("actor-id"),
					Name:    name,
					KeyHash: repo.HashAPIKey(raw),
				}
				if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				fmt.Printf("API key (store it now, it is not shown again): %s\n", raw)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key name")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListAPIKeys(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, 0, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Listen
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:              cfg.Auth.JWTSecret,
				AllowLegacyActorHeader: cfg.Auth.AllowLegacyActorHeader,
			}
			if authCfg.JWTSecret == "" {
				authCfg.JWTSecret = os.Getenv("FLATPACK_JWT_SECRET")
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowLegacyActorHeader {
				return fmt.Errorf("FLATPACK_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: basePath,
				Auth:     authCfg,
				DevLogin: cfg.Auth.DevLogin,
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
			fmt.Printf("Serving Flatpack API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
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

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
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
