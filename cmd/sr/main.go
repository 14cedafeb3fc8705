package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"skillroutine/internal/app"
	"skillroutine/internal/config"
	"skillroutine/internal/db"
	"skillroutine/internal/domain"
	"skillroutine/internal/engine"
	"skillroutine/internal/logger"
	"skillroutine/internal/progress"
	"skillroutine/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "sr",
	Short: "SkillRoutine CLI",
	Long: `SkillRoutine turns daily habits into RPG progression.
- Skills: eight attributes (determination, intelligence, discipline, ...) each with a level and XP.
- Activities: logging one grants XP to the skills it trains, scaled by minutes and difficulty.
- Quests: three daily goals, generated on demand and tracked as activities are logged.
- Overall level: the sum of skill levels, mapped to a title from Beta up to Aura.
- Friends and ranking: compare progress with other users of the same workspace.
- Event log: every change is recorded, view it with 'sr log tail'.`,
	SilenceUsage: true,
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
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	// values already in the environment win over .env
	_ = godotenv.Load(filepath.Join(viper.GetString("workspace"), ".env"))
	viper.SetEnvPrefix("SKILLROUTINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().StringP("user", "u", "", "acting user (id, email or username)")
	rootCmd.PersistentFlags().String("log-mode", "dev", "log mode (dev, prod, off)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
	_ = viper.BindPFlag("log-mode", rootCmd.PersistentFlags().Lookup("log-mode"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(questsCmd())
	rootCmd.AddCommand(stateCmd())
	rootCmd.AddCommand(rankCmd())
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(friendsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger()
			if err != nil {
				return err
			}
			defer log.Sync()
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("SKILLROUTINE_JWT_SECRET is required for bearer auth")
			}
			e, conn, err := app.OpenEngine(cmd.Context(), app.Options{
				Workspace: viper.GetString("workspace"),
				JWTSecret: secret,
				Logger:    log,
			})
			if err != nil {
				return err
			}
			defer conn.Close()
			if !cmd.Flags().Changed("addr") && e.Config.Server.Addr != "" {
				addr = e.Config.Server.Addr
			}
			if !cmd.Flags().Changed("base-path") && e.Config.Server.BasePath != "" {
				basePath = e.Config.Server.BasePath
			}
			handler, err := server.New(server.Config{
				Engine:      e,
				BasePath:    basePath,
				CORSOrigins: e.Config.Server.CORSOrigins,
				Logger:      log,
			})
			if err != nil {
				return err
			}
			if server.StartWebhookDispatcher(cmd.Context(), e, log) {
				log.Info("webhook dispatcher started", zap.Int("webhooks", len(e.Config.Webhooks)))
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			log.Info("serving SkillRoutine API",
				zap.String("url", fmt.Sprintf("http://%s%s", addr, basePath)),
				zap.String("docs", basePath+"/docs"))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/api", "API base path")
	return cmd
}

func userCmd() *cobra.Command {
	u := &cobra.Command{Use: "user", Short: "Manage users"}
	u.AddCommand(userCreateCmd())
	u.AddCommand(userListCmd())
	u.AddCommand(userUseCmd())
	u.AddCommand(apiKeyCmd())
	return u
}

func userCreateCmd() *cobra.Command {
	var opts engine.RegisterOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.Register(ctx, opts)
				if err != nil {
					return err
				}
				return printUsers([]domain.User{u})
			})
		},
	}
	cmd.Flags().StringVar(&opts.Email, "email", "", "email")
	cmd.Flags().StringVar(&opts.Username, "username", "", "username")
	cmd.Flags().StringVar(&opts.Password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func userListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				users, err := e.ListUsers(ctx)
				if err != nil {
					return err
				}
				return printUsers(users)
			})
		},
	}
	return cmd
}

func userUseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use <user>",
		Short: "Set the acting user for this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := strings.TrimSpace(args[0])
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.ResolveUser(ctx, ref)
				if err != nil {
					return err
				}
				workspace := viper.GetString("workspace")
				if err := setEnvValue(filepath.Join(workspace, ".env"), "SKILLROUTINE_USER", u.Username); err != nil {
					return err
				}
				fmt.Printf("Set SKILLROUTINE_USER=%s in %s/.env\n", u.Username, workspace)
				return nil
			})
		},
	}
	return cmd
}

func apiKeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage personal API keys"}
	k.AddCommand(apiKeyCreateCmd())
	k.AddCommand(apiKeyListCmd())
	return k
}

func apiKeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				key, err := e.CreateAPIKey(ctx, u.ID, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(key)
				}
				fmt.Printf("API key %s created for %s. Store it now, it is not shown again:\n%s\n", key.ID, u.Username, key.Key)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key name")
	return cmd
}

func apiKeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys of the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				keys, err := e.ListAPIKeys(ctx, u.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable("ID", "Name", "Created")
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func activityCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "activity",
		Short: "Log activities",
		Long:  "Activities are what you actually did. Each one grants XP to the skills it trains and advances today's quests.",
	}
	a.AddCommand(activityLogCmd())
	a.AddCommand(activityCatalogCmd())
	return a
}

func activityLogCmd() *cobra.Command {
	var in progress.ActivityInput
	cmd := &cobra.Command{
		Use:   "log <activity>",
		Short: "Log a completed activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Activity = args[0]
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				res, err := e.LogActivity(ctx, u.ID, in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				out := res.Outcome
				fmt.Printf("+%d XP (base %d) for %s\n", out.Entry.Gained, out.BaseXP, out.Entry.Text)
				if !out.Known {
					fmt.Println("unknown activity, no XP granted")
				}
				for _, id := range sortedKeys(out.LevelUps) {
					fmt.Printf("level up: %s is now level %d\n", e.Catalog.SkillLabel(id), out.LevelUps[id])
				}
				for _, id := range out.CompletedQuests {
					fmt.Printf("quest completed: %s\n", id)
				}
				for _, id := range out.Unlocked {
					fmt.Printf("achievement unlocked: %s\n", id)
				}
				fmt.Printf("today: %d XP, overall level %d (%s)\n", out.EarnedToday, res.View.OverallLevel, res.View.Title.Name)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&in.Minutes, "minutes", 0, "minutes spent")
	cmd.Flags().StringVar(&in.Difficulty, "difficulty", "easy", "difficulty (easy, medium, hard)")
	cmd.Flags().BoolVar(&in.Focus, "no-distraction", false, "done without distractions")
	return cmd
}

func activityCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List known activities and the skills they train",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if viper.GetBool("json") {
					return printJSON(e.Catalog.Activities)
				}
				tw := newTable("ID", "Label", "Skill", "Weights")
				for _, a := range e.Catalog.Activities {
					parts := make([]string, 0, len(a.Weights))
					for _, id := range sortedKeys(a.Weights) {
						parts = append(parts, fmt.Sprintf("%s=%.1f", id, a.Weights[id]))
					}
					tw.AppendRow(table.Row{a.ID, a.Label, a.Skill, strings.Join(parts, " ")})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func questsCmd() *cobra.Command {
	q := &cobra.Command{Use: "quests", Short: "Daily quests"}
	q.AddCommand(&cobra.Command{
		Use:   "generate",
		Short: "Generate today's quests, replacing existing ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				quests, err := e.GenerateQuests(ctx, u.ID)
				if err != nil {
					return err
				}
				return printQuests(quests)
			})
		},
	})
	q.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show today's quests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				quests, err := e.TodayQuests(ctx, u.ID)
				if err != nil {
					return err
				}
				return printQuests(quests)
			})
		},
	})
	return q
}

func stateCmd() *cobra.Command {
	s := &cobra.Command{Use: "state", Short: "Inspect or reset progress"}
	s.AddCommand(stateShowCmd())
	s.AddCommand(stateResetCmd())
	s.AddCommand(stateMigrateCmd())
	return s
}

func stateShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show skills, overall level and title",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				s, err := e.LoadState(ctx, u.ID)
				if err != nil {
					return err
				}
				view := e.View(s)
				if viper.GetBool("json") {
					return printJSON(view)
				}
				fmt.Printf("%s: overall level %d, %s\n", u.Username, view.OverallLevel, view.Title.Name)
				if view.Title.HasNext {
					fmt.Printf("next title %s at level %d\n", view.Title.NextName, view.Title.NextMin)
				}
				tw := newTable("Skill", "Level", "XP", "Next")
				for _, id := range e.Catalog.SkillIDs() {
					sk := s.Skills[id]
					if sk == nil {
						continue
					}
					tw.AppendRow(table.Row{e.Catalog.SkillLabel(id), sk.Level, sk.XP, progress.XPRequiredForLevel(sk.Level)})
				}
				tw.AppendFooter(table.Row{"Today", "", view.EarnedToday, ""})
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func stateResetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Discard all progress of the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("reset discards all progress; pass --yes to confirm")
			}
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				s, err := e.ResetState(ctx, u.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(e.View(s))
				}
				fmt.Printf("progress of %s reset\n", u.Username)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm reset")
	return cmd
}

func stateMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Rewrite stored states written by older versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.MigrateStates(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"migrated": n})
				}
				fmt.Printf("%d state(s) migrated to schema %d\n", n, progress.SchemaVersion)
				return nil
			})
		},
	}
	return cmd
}

func rankCmd() *cobra.Command {
	var skill string
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Top users per skill",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ranking, err := e.SkillRanking(ctx)
				if err != nil {
					return err
				}
				if skill != "" {
					if !e.Catalog.HasSkill(skill) {
						return fmt.Errorf("unknown skill %q", skill)
					}
					ranking = map[string][]progress.RankEntry{skill: ranking[skill]}
				}
				if viper.GetBool("json") {
					return printJSON(ranking)
				}
				tw := newTable("Skill", "#", "User", "Level")
				for _, id := range e.Catalog.SkillIDs() {
					entries, ok := ranking[id]
					if !ok {
						continue
					}
					for i, r := range entries {
						tw.AppendRow(table.Row{e.Catalog.SkillLabel(id), i + 1, r.Username, r.Level})
					}
					tw.AppendSeparator()
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&skill, "skill", "", "only this skill")
	return cmd
}

func profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile <username>",
		Short: "Show a user's public profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.PublicProfile(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("%s: overall level %d, %s\n", p.Username, p.OverallLevel, p.Title.Name)
				if p.TopSkill != "" {
					fmt.Printf("top skill: %s (level %d)\n", e.Catalog.SkillLabel(p.TopSkill), p.TopSkillLevel)
				}
				tw := newTable("Skill", "Level")
				for _, id := range e.Catalog.SkillIDs() {
					tw.AppendRow(table.Row{e.Catalog.SkillLabel(id), p.Skills[id]})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func friendsCmd() *cobra.Command {
	f := &cobra.Command{Use: "friends", Short: "Friends and friend requests"}
	f.AddCommand(friendsListCmd())
	f.AddCommand(friendsRequestCmd())
	f.AddCommand(friendsRequestsCmd())
	f.AddCommand(friendsRespondCmd())
	return f
}

func friendsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List friends with their overall level",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				friends, err := e.Friends(ctx, u.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(friends)
				}
				tw := newTable("Username", "Level", "Title")
				for _, f := range friends {
					tw.AppendRow(table.Row{f.Username, f.OverallLevel, f.Title.Name})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func friendsRequestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request <username>",
		Short: "Send a friend request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				res, err := e.RequestFriend(ctx, u.ID, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("friend request to %s: %s\n", args[0], res.Status)
				return nil
			})
		},
	}
	return cmd
}

func friendsRequestsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requests",
		Short: "List pending requests sent to the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				reqs, err := e.PendingFriendRequests(ctx, u.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(reqs)
				}
				tw := newTable("ID", "From", "Sent")
				for _, r := range reqs {
					tw.AppendRow(table.Row{r.ID, r.FromUsername, r.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func friendsRespondCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "respond <request-id> <accept|reject>",
		Short: "Accept or reject a friend request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, u domain.User) error {
				fr, err := e.RespondFriendRequest(ctx, u.ID, args[0], args[1])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(fr)
				}
				fmt.Printf("request %s %s\n", fr.ID, fr.Status)
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Everything that happened: registrations, activities, level ups, quests, friendships and keys.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events (all users, or --user only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				userID := ""
				if ref := strings.TrimSpace(viper.GetString("user")); ref != "" {
					u, err := e.ResolveUser(ctx, ref)
					if err != nil {
						return err
					}
					userID = u.ID
				}
				events, err := e.Repo.LatestEvents(ctx, n, userID, evtType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable("ID", "Time", "Type", "Entity", "Payload")
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "skillroutine.yml holds the skill catalog, activities, titles, legacy skill names, achievements, server and webhook settings. Without it the built-in defaults apply.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ResolveConfig(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default skillroutine.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate skillroutine.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

// --- helpers ---

func newLogger() (*zap.Logger, error) {
	return logger.New(viper.GetString("log-mode"), viper.GetString("log-level"))
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()
	e, conn, err := app.OpenEngine(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		JWTSecret: viper.GetString("jwt-secret"),
		Logger:    log,
	})
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, e)
}

func withUser(ctx context.Context, fn func(context.Context, engine.Engine, domain.User) error) error {
	ref := strings.TrimSpace(viper.GetString("user"))
	if ref == "" {
		return fmt.Errorf("user not specified; use --user or set SKILLROUTINE_USER (sr user use <user>)")
	}
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		u, err := e.ResolveUser(ctx, ref)
		if err != nil {
			return fmt.Errorf("user %q: %w", ref, err)
		}
		return fn(ctx, e, u)
	})
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
}

func printUsers(users []domain.User) error {
	if viper.GetBool("json") {
		return printJSON(users)
	}
	tw := newTable("ID", "Username", "Email", "Created")
	for _, u := range users {
		tw.AppendRow(table.Row{u.ID, u.Username, u.Email, u.CreatedAt})
	}
	tw.Render()
	return nil
}

func printQuests(quests []progress.Quest) error {
	if viper.GetBool("json") {
		return printJSON(quests)
	}
	tw := newTable("Quest", "Progress", "Done")
	for _, q := range quests {
		done := ""
		if q.Done {
			done = "yes"
		}
		tw.AppendRow(table.Row{q.Text, fmt.Sprintf("%d/%d", q.Progress, q.Target), done})
	}
	tw.Render()
	return nil
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

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
