package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"abyssclimber/internal/app"
	"abyssclimber/internal/config"
	"abyssclimber/internal/domain"
	"abyssclimber/internal/engine"
	"abyssclimber/internal/logging"
	"abyssclimber/internal/migrate"
	"abyssclimber/internal/progression"
	"abyssclimber/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "abyss",
	Short: "Abyss Climber CLI",
	Long: `Abyss Climber turns bouldering sessions into a descent through the Abyss.
- Sessions: start, pause, resume and end a climbing session; paused time is not counted.
- Problems: log each boulder with its grade, style tags and attempts to earn XP (flashes earn the most).
- Whistles: your rank, set by the hardest grade you have sent.
- Layers: depth bands unlocked by total XP plus the layer trial quest.
- Quests: daily and layer challenges that award bonus XP.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ABYSS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringP("user", "u", "", "climber username for local commands")
	rootCmd.PersistentFlags().String("log-level", "info", "debug, info, warn or error")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(problemCmd())
	rootCmd.AddCommand(questCmd())
	rootCmd.AddCommand(progressCmd())
	rootCmd.AddCommand(gradeCmd())
	rootCmd.AddCommand(xpCmd())
	rootCmd.AddCommand(coachCmd())
}

func newLogger() (*zap.Logger, error) {
	if viper.GetBool("verbose") {
		return logging.New("debug", true)
	}
	return logging.New(viper.GetString("log-level"), false)
}

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()
	rt, err := app.Open(ctx, app.Options{Workspace: viper.GetString("workspace"), Logger: logger})
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

// withClimber resolves --user, or the only registered climber.
func withClimber(ctx context.Context, fn func(context.Context, engine.Engine, domain.User) error) error {
	return withRuntime(ctx, func(ctx context.Context, rt *app.Runtime) error {
		u, err := currentUser(ctx, rt.Engine)
		if err != nil {
			return err
		}
		return fn(ctx, rt.Engine, u)
	})
}

func currentUser(ctx context.Context, e engine.Engine) (domain.User, error) {
	if name := strings.ToLower(strings.TrimSpace(viper.GetString("user"))); name != "" {
		return e.Repo.GetUserByUsername(ctx, name)
	}
	users, err := e.Repo.ListUsers(ctx)
	if err != nil {
		return domain.User{}, err
	}
	if len(users) == 1 {
		return users[0], nil
	}
	if len(users) == 0 {
		return domain.User{}, errors.New("no climbers yet; run abyss user register")
	}
	return domain.User{}, errors.New("several climbers registered; pass --user")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	return tw
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if strings.TrimSpace(rt.Config.Auth.JWTSecret) == "" {
					return fmt.Errorf("ABYSS_JWT_SECRET (or auth.jwt_secret) is required for bearer auth")
				}
				if addr == "" {
					addr = rt.Config.Server.Addr
				}
				if basePath == "" {
					basePath = rt.Config.Server.BasePath
				}
				cfg := server.Config{Engine: rt.Engine, BasePath: basePath, Logger: rt.Logger}
				if rt.Geo != nil {
					cfg.Geo = rt.Geo
				}
				handler, err := server.New(cfg)
				if err != nil {
					return err
				}
				hooks, err := server.NewWebhookDispatcher(ctx, rt.Engine, rt.Logger)
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					rt.Logger.Info("serving", zap.String("addr", addr), zap.String("base_path", basePath))
					fmt.Printf("Serving Abyss Climber API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
				if hooks.Enabled() {
					g.Go(func() error { return hooks.Run(gctx) })
				}
				g.Go(func() error { return expireQuests(gctx, rt) })
				return g.Wait()
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to server.base_path)")
	return cmd
}

// expireQuests fails overdue quests on the configured interval.
func expireQuests(ctx context.Context, rt *app.Runtime) error {
	interval := rt.Config.Quests.ExpiryCheck
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := rt.Engine.FailExpiredQuests(ctx)
		if err != nil && ctx.Err() == nil {
			rt.Logger.Warn("expire quests", zap.Error(err))
		} else if n > 0 {
			rt.Logger.Info("expired quests", zap.Int("count", n))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default abyss.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cfgCmd.AddCommand(initCmd)
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate abyss.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	})
	return cfgCmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				// app.Open already migrated; report where the schema stands.
				if _, err := migrate.Migrate(ctx, rt.DB); err != nil {
					return err
				}
				current, latest, err := migrate.Status(ctx, rt.DB)
				if err != nil {
					return err
				}
				fmt.Printf("schema version %d of %d\n", current, latest)
				return nil
			})
		},
	}
}

func userCmd() *cobra.Command {
	usr := &cobra.Command{Use: "user", Short: "Manage climbers"}
	var username, password, displayName string
	register := &cobra.Command{
		Use:   "register",
		Short: "Register a climber",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("ABYSS_PASSWORD")
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				u, err := rt.Engine.RegisterUser(ctx, engine.RegisterOptions{Username: username, Password: password, DisplayName: displayName})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(u)
				}
				fmt.Printf("registered %s (%s) at the %s\n", u.Username, u.ID, progression.LayerInfo(u.CurrentLayer).Name)
				return nil
			})
		},
	}
	register.Flags().StringVar(&username, "username", "", "username")
	register.Flags().StringVar(&password, "password", "", "password (or ABYSS_PASSWORD)")
	register.Flags().StringVar(&displayName, "display-name", "", "display name")
	_ = register.MarkFlagRequired("username")
	usr.AddCommand(register)

	usr.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List climbers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				users, err := rt.Engine.Repo.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Username", "XP", "Whistle", "Layer", "Title"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.Username, u.TotalXP, progression.WhistleInfo(u.WhistleLevel).Name, progression.LayerInfo(u.CurrentLayer).Name, u.SelectedTitle})
				}
				tw.Render()
				return nil
			})
		},
	})

	var keyName string
	apiKey := &cobra.Command{
		Use:   "api-key",
		Short: "Create an API key for the climber",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClimber(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				res, err := e.CreateAPIKey(ctx, u.ID, keyName)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Println(res.Key)
				return nil
			})
		},
	}
	apiKey.Flags().StringVar(&keyName, "name", "cli", "key label")
	usr.AddCommand(apiKey)
	return usr
}

// sessionArg returns the id argument or the open session.
func sessionArg(ctx context.Context, e engine.Engine, u domain.User, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	s, err := e.ActiveSession(ctx, u.ID)
	if err != nil {
		return "", fmt.Errorf("no open session: %w", err)
	}
	return s.ID, nil
}

func printSession(s engine.SessionView) error {
	if viper.GetBool("json") {
		return printJSON(s)
	}
	fmt.Printf("%s  %s  %s  %s  %d XP\n", s.ID, s.Status, s.Location, s.Duration, s.XPEarned)
	return nil
}

func sessionCmd() *cobra.Command {
	sess := &cobra.Command{Use: "session", Short: "Track climbing sessions"}
	var location, notes string
	start := &cobra.Command{
		Use:   "start",
		Short: "Start a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClimber(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				s, err := e.StartSession(ctx, engine.StartSessionOptions{UserID: u.ID, Location: location, Notes: notes})
				if err != nil {
					return err
				}
				return printSession(s)
			})
		},
	}
	start.Flags().StringVar(&location, "location", "", "gym or crag")
	start.Flags().StringVar(&notes, "notes", "", "notes")
	sess.AddCommand(start)

	for _, action := range []struct {
		use, short string
		fn         func(engine.Engine) func(context.Context, string, string) (engine.SessionView, error)
	}{
		{"pause [id]", "Pause the session", func(e engine.Engine) func(context.Context, string, string) (engine.SessionView, error) { return e.PauseSession }},
		{"resume [id]", "Resume the session", func(e engine.Engine) func(context.Context, string, string) (engine.SessionView, error) { return e.ResumeSession }},
		{"show [id]", "Show a session", func(e engine.Engine) func(context.Context, string, string) (engine.SessionView, error) { return e.GetSession }},
	} {
		action := action
		sess.AddCommand(&cobra.Command{
			Use:   action.use,
			Short: action.short,
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClimber(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
					id, err := sessionArg(ctx, e, u, args)
					if err != nil {
						return err
					}
					s, err := action.fn(e)(ctx, u.ID, id)
					if err != nil {
						return err
					}
					return printSession(s)
				})
			},
		})
	}

	sess.AddCommand(&cobra.Command{
		Use:   "end [id]",
		Short: "End the session and settle XP",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClimber(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				id, err := sessionArg(ctx, e, u, args)
				if err != nil {
					return err
				}
				res, err := e.EndSession(ctx, u.ID, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if err := printSession(res.Session); err != nil {
					return err
				}
				printProgression(res.Progression, res.Achievements)
				if res.Session.Feedback != "" {
					fmt.Println()
					fmt.Println(res.Session.Feedback)
				}
				return nil
			})
		},
	})

	var status string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClimber(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				items, err := e.ListSessions(ctx, u.ID, status, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Started", "Location", "Status", "Duration", "XP"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.StartTime, s.Location, s.Status, s.Duration, s.XPEarned})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&status, "status", "", "active, paused or completed")
	list.Flags().IntVar(&limit, "limit", 20, "max sessions")
	sess.AddCommand(list)
	return sess
}

func printProgression(p engine.ProgressionChange, unlocked []domain.Achievement) {
	fmt.Printf("+%d XP (total %d)\n", p.XPGained, p.TotalXP)
	if p.WhistlePromoted {
		fmt.Printf("Promoted to %s!\n", progression.WhistleInfo(p.WhistleLevel).Name)
	}
	if p.LayerAdvanced {
		fmt.Printf("Descended to layer %d: %s\n", p.CurrentLayer, progression.LayerInfo(p.CurrentLayer).Name)
	}
	for _, a := range unlocked {
		fmt.Printf("Relic unlocked: %s\n", a.Name)
	}
}

func problemCmd() *cobra.Command {
	prb := &cobra.Command{Use: "problem", Short: "Log boulder problems"}
	var opts engine.LogProblemOptions
	var failed bool
	logCmd := &cobra.Command{
		Use:   "log",
		Short: "Log a problem in the open session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClimber(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				if opts.SessionID == "" {
					id, err := sessionArg(ctx, e, u, nil)
					if err != nil {
						return err
					}
					opts.SessionID = id
				}
				opts.UserID = u.ID
				opts.Completed = !failed
				res, err := e.LogProblem(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				verb := "sent"
				if !res.Problem.Completed {
					verb = "tried"
				}
				fmt.Printf("%s %s (%s) in %d attempt(s)\n", verb, res.Problem.Grade, res.Problem.GradeSystem, res.Problem.Attempts)
				printProgression(res.Progression, res.Achievements)
				return nil
			})
		},
	}
	logCmd.Flags().StringVar(&opts.SessionID, "session", "", "session id (defaults to the open session)")
	logCmd.Flags().StringVar(&opts.Grade, "grade", "", "grade, e.g. V4 or 6B+")
	logCmd.Flags().StringVar(&opts.GradeSystem, "system", "", "V-Scale, Font or German")
	logCmd.Flags().StringSliceVar(&opts.Style, "style", nil, "style tags")
	logCmd.Flags().IntVar(&opts.Attempts, "attempts", 1, "attempts taken")
	logCmd.Flags().BoolVar(&failed, "failed", false, "not sent")
	logCmd.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	_ = logCmd.MarkFlagRequired("grade")
	prb.AddCommand(logCmd)

	prb.AddCommand(&cobra.Command{
		Use:   "list [session-id]",
		Short: "List problems of a session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClimber(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				id, err := sessionArg(ctx, e, u, args)
				if err != nil {
					return err
				}
				items, err := e.ListProblems(ctx, u.ID, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Grade", "System", "Style", "Sent", "Attempts", "XP"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.Grade, p.GradeSystem, strings.Join(p.Style, ","), p.Completed, p.Attempts, p.XP})
				}
				tw.Render()
				return nil
			})
		},
	})
	return prb
}

func printQuests(items []domain.Quest) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Kind", "Title", "Progress", "Reward", "Status"})
	for _, q := range items {
		tw.AppendRow(table.Row{q.ID, q.Kind, q.Title, fmt.Sprintf("%d/%d", q.Progress, q.MaxProgress), q.XPReward, q.Status})
	}
	tw.Render()
	return nil
}

func questCmd() *cobra.Command {
	qst := &cobra.Command{Use: "quest", Short: "Daily and layer quests"}
	qst.AddCommand(&cobra.Command{
		Use:   "generate",
		Short: "Top up daily quests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClimber(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				items, err := e.GenerateQuests(ctx, u.ID)
				if err != nil {
					return err
				}
				return printQuests(items)
			})
		},
	})

	var status, kind string
	list := &cobra.Command{
		Use:   "list",
		Short: "List quests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClimber(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				items, err := e.ListQuests(ctx, u.ID, status, kind)
				if err != nil {
					return err
				}
				return printQuests(items)
			})
		},
	}
	list.Flags().StringVar(&status, "status", "active", "active, completed, failed or discarded (empty for all)")
	list.Flags().StringVar(&kind, "kind", "", "daily, weekly, layer or custom")
	qst.AddCommand(list)

	var title, desc string
	var maxProgress, reward int
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a custom quest",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClimber(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				q, err := e.CreateQuest(ctx, engine.CreateQuestOptions{UserID: u.ID, Title: title, Description: desc, Kind: "custom", MaxProgress: maxProgress, XPReward: reward})
				if err != nil {
					return err
				}
				return printQuests([]domain.Quest{q})
			})
		},
	}
	create.Flags().StringVar(&title, "title", "", "title")
	create.Flags().StringVar(&desc, "description", "", "description")
	create.Flags().IntVar(&maxProgress, "target", 1, "steps to complete")
	create.Flags().IntVar(&reward, "reward", 25, "XP reward")
	qst.AddCommand(create)

	var delta int
	progressCmd := &cobra.Command{
		Use:   "progress <id>",
		Short: "Advance a quest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClimber(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				q, err := e.UpdateQuestProgress(ctx, u.ID, args[0], delta)
				if err != nil {
					return err
				}
				return printQuests([]domain.Quest{q})
			})
		},
	}
	progressCmd.Flags().IntVar(&delta, "by", 1, "progress increment")
	qst.AddCommand(progressCmd)

	qst.AddCommand(&cobra.Command{
		Use:   "complete <id>",
		Short: "Complete a quest and claim its XP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClimber(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				res, err := e.CompleteQuest(ctx, u.ID, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("completed %q\n", res.Quest.Title)
				printProgression(res.Progression, res.Achievements)
				return nil
			})
		},
	})

	qst.AddCommand(&cobra.Command{
		Use:   "discard <id>",
		Short: "Discard a quest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClimber(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				q, err := e.DiscardQuest(ctx, u.ID, args[0])
				if err != nil {
					return err
				}
				return printQuests([]domain.Quest{q})
			})
		},
	})

	qst.AddCommand(&cobra.Command{
		Use:   "expire",
		Short: "Fail every overdue quest",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				n, err := rt.Engine.FailExpiredQuests(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("%d quest(s) expired\n", n)
				return nil
			})
		},
	})
	return qst
}

func progressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress",
		Short: "Show layer and whistle progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClimber(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				v, err := e.Progress(ctx, u.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(v)
				}
				fmt.Printf("%s  %s  %d XP  highest %s\n", u.Username, v.Whistle.Name, v.TotalXP, v.HighestGrade)
				if v.NextWhistle != nil {
					fmt.Printf("next whistle: %s at %s\n", v.NextWhistle.Name, v.NextWhistle.MinGrade)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"", "Layer", "Name", "XP needed"})
				for _, l := range progression.Layers() {
					marker := ""
					switch {
					case l.Number == v.CurrentLayer:
						marker = fmt.Sprintf("> %d%%", v.Layer.LayerProgress)
					case l.Number < v.CurrentLayer:
						marker = "done"
					}
					tw.AppendRow(table.Row{marker, l.Number, l.Name, l.Threshold})
				}
				tw.Render()
				if v.CanAdvance {
					fmt.Println("ready to descend")
				} else if !v.LayerQuestCompleted && v.CurrentLayer < progression.FinalLayer {
					fmt.Println("complete the layer trial quest to descend")
				}
				return nil
			})
		},
	}
}

func gradeCmd() *cobra.Command {
	grd := &cobra.Command{Use: "grade", Short: "Grade conversion"}
	var from, to string
	convert := &cobra.Command{
		Use:   "convert <grade>",
		Short: "Convert a grade between systems",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := progression.ParseGradeSystem(from)
			if err != nil {
				return err
			}
			t, err := progression.ParseGradeSystem(to)
			if err != nil {
				return err
			}
			fmt.Println(progression.Convert(args[0], f, t))
			return nil
		},
	}
	convert.Flags().StringVar(&from, "from", "V-Scale", "source system")
	convert.Flags().StringVar(&to, "to", "Font", "target system")
	grd.AddCommand(convert)

	grd.AddCommand(&cobra.Command{
		Use:   "table",
		Short: "Print the conversion table",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := progression.Grades(progression.VScale)
			f := progression.Grades(progression.Font)
			g := progression.Grades(progression.German)
			tw := newTable()
			tw.AppendHeader(table.Row{"V-Scale", "Font", "German", "Base XP"})
			for i := range v {
				tw.AppendRow(table.Row{v[i], f[i], g[i], progression.BaseXP(v[i], progression.VScale)})
			}
			tw.Render()
			return nil
		},
	})
	return grd
}

func xpCmd() *cobra.Command {
	xp := &cobra.Command{Use: "xp", Short: "XP maintenance"}
	xp.AddCommand(&cobra.Command{
		Use:   "audit",
		Short: "Compare stored XP with the current scoring tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClimber(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				a, err := e.AuditXP(ctx, u.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				fmt.Printf("total %d = problems %d + quests %d (recomputed problems %d)\n", a.UserTotalXP, a.StoredProblemXP, a.QuestXP, a.RecomputedXP)
				if len(a.Drift) > 0 {
					tw := newTable()
					tw.AppendHeader(table.Row{"Problem", "Grade", "Stored", "Recomputed"})
					for _, d := range a.Drift {
						tw.AppendRow(table.Row{d.ProblemID, d.Grade, d.Stored, d.Recomputed})
					}
					tw.Render()
				}
				if a.Consistent() {
					fmt.Println("consistent")
				}
				return nil
			})
		},
	})
	return xp
}

func coachCmd() *cobra.Command {
	cch := &cobra.Command{Use: "coach", Short: "Training suggestions"}
	cch.AddCommand(&cobra.Command{
		Use:   "workout",
		Short: "Suggest a workout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClimber(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				w, err := e.SuggestWorkout(ctx, u.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(w)
				}
				fmt.Printf("%s (%s, %d min)\n", w.Title, w.Focus, w.DurationMinutes)
				tw := newTable()
				tw.AppendHeader(table.Row{"Exercise", "Sets", "Reps", "Notes"})
				for _, x := range w.Exercises {
					tw.AppendRow(table.Row{x.Name, x.Sets, x.Reps, x.Description})
				}
				tw.Render()
				return nil
			})
		},
	})
	return cch
}
