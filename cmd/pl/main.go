package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"planline/internal/app"
	"planline/internal/config"
	"planline/internal/db"
	"planline/internal/domain"
	"planline/internal/engine"
	"planline/internal/migrate"
	"planline/internal/repo"
)

var rootCmd = &cobra.Command{
	Use:   "pl",
	Short: "Planline CLI",
	Long: `Planline is a scheduling and dependency engine for project work.
- Workspace: your .planline directory holding the database; planline.yml carries workload config.
- Tasks: work items moving todo -> doing -> done, with blocked and cancelled as detours and exits.
- Dependencies: "blocks" edges gate when a task may run; cycles are rejected up front.
- Delays: finishing after the expected end flags the task and cascades the slip to dependents,
  with an audit row recording each shift and the task that caused it.
- Workload: claiming is refused when it would push a member's load past the impossible threshold.
- Ranking: fractional rank indexes order the backlog without renumbering on every move.`,
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
	viper.SetEnvPrefix("PLANLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("project", "", "project id (overrides config default)")
	rootCmd.PersistentFlags().Bool("verbose", false, "verbose logging")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(depCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(workloadCmd())
	rootCmd.AddCommand(logCmd())
}

// --- project ---

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectInitCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	return prj
}

func projectInitCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a project and write planline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg := config.Default(id)
			e := engine.New(conn, cfg, buildLogger())
			p, err := e.InitProject(cmd.Context(), domain.ProjectID(id), name, actorID())
			if err != nil {
				return err
			}
			cfgPath := config.Path(workspace)
			if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
				if err := os.WriteFile(cfgPath, []byte(config.GenerateDefault(id)), 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", cfgPath)
			}
			return printJSONOrTable(p)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id")
	cmd.Flags().StringVar(&name, "name", "", "project name")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Repo.GetProject(ctx, domain.ProjectID(e.Config.Project.ID))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

// --- member ---

func memberCmd() *cobra.Command {
	m := &cobra.Command{Use: "member", Short: "Manage project members"}
	m.AddCommand(memberAddCmd())
	m.AddCommand(memberListCmd())
	return m
}

func memberAddCmd() *cobra.Command {
	var user, role, level string
	var capacity int
	var manager bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a member to the active project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.AddMember(ctx, engine.MemberOptions{
					ProjectID:    domain.ProjectID(e.Config.Project.ID),
					UserID:       domain.UserID(user),
					RoleID:       domain.RoleID(role),
					Level:        domain.MemberLevel(level),
					BaseCapacity: capacity,
					IsManager:    manager,
					ActorID:      actorID(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id")
	cmd.Flags().StringVar(&role, "role", "", "role id")
	cmd.Flags().StringVar(&level, "level", "mid", "level (junior, mid, senior, specialist, lead)")
	cmd.Flags().IntVar(&capacity, "capacity", 0, "base capacity (default from config)")
	cmd.Flags().BoolVar(&manager, "manager", false, "member is a manager")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func memberListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				members, err := e.ListMembers(ctx, domain.ProjectID(e.Config.Project.ID))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(members)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"User", "Role", "Level", "Capacity", "Manager"})
				for _, m := range members {
					tw.AppendRow(table.Row{m.UserID, m.RoleID, m.Level, m.BaseCapacity, m.IsManager})
				}
				tw.Render()
				return nil
			})
		},
	}
}

// --- task ---

func taskCmd() *cobra.Command {
	t := &cobra.Command{Use: "task", Short: "Manage tasks"}
	t.AddCommand(taskCreateCmd())
	t.AddCommand(taskListCmd())
	t.AddCommand(taskShowCmd())
	t.AddCommand(taskEstimateCmd())
	t.AddCommand(taskClaimCmd())
	t.AddCommand(taskStatusCmd())
	t.AddCommand(taskBlockCmd())
	t.AddCommand(taskUnblockCmd())
	t.AddCommand(taskAbandonCmd())
	t.AddCommand(taskCancelCmd())
	t.AddCommand(taskRankCmd())
	return t
}

func taskCreateCmd() *cobra.Command {
	var title, description, role, expectedStart, expectedEnd string
	var difficulty int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.TaskCreateOptions{
					ProjectID:   domain.ProjectID(e.Config.Project.ID),
					Title:       title,
					Description: description,
					ActorID:     actorID(),
				}
				if cmd.Flags().Changed("difficulty") {
					opts.Difficulty = &difficulty
				}
				if role != "" {
					r := domain.RoleID(role)
					opts.RoleID = &r
				}
				var err error
				if opts.ExpectedStart, err = parseDate(expectedStart); err != nil {
					return err
				}
				if opts.ExpectedEnd, err = parseDate(expectedEnd); err != nil {
					return err
				}
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().IntVar(&difficulty, "difficulty", 0, "difficulty (1-10)")
	cmd.Flags().StringVar(&role, "role", "", "required role id")
	cmd.Flags().StringVar(&expectedStart, "expected-start", "", "expected start (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&expectedEnd, "expected-end", "", "expected end (YYYY-MM-DD or RFC3339)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tasks in rank order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.ListTasks(ctx, domain.ProjectID(e.Config.Project.ID))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Difficulty", "Assignee", "Expected End", "Delayed"})
				for _, t := range tasks {
					difficulty := ""
					if t.Difficulty != nil {
						difficulty = fmt.Sprint(*t.Difficulty)
					}
					assignee := ""
					if t.AssigneeID != nil {
						assignee = string(*t.AssigneeID)
					}
					end := ""
					if t.ExpectedEnd != nil {
						end = t.ExpectedEnd.Format("2006-01-02")
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, difficulty, assignee, end, t.IsDelayed})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task and its dependencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.GetTask(ctx, domain.TaskID(args[0]))
				if err != nil {
					return err
				}
				deps, err := e.ListDependencies(ctx, t.ID)
				if err != nil {
					return err
				}
				out := struct {
					Task         domain.Task             `json:"task"`
					Dependencies []domain.TaskDependency `json:"dependencies,omitempty"`
				}{t, deps}
				return printJSONOrTable(out)
			})
		},
	}
}

func taskEstimateCmd() *cobra.Command {
	var difficulty int
	cmd := &cobra.Command{
		Use:   "estimate <id>",
		Short: "Set task difficulty",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.SetDifficulty(ctx, domain.TaskID(args[0]), difficulty, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().IntVar(&difficulty, "difficulty", 0, "difficulty (1-10)")
	_ = cmd.MarkFlagRequired("difficulty")
	return cmd
}

func taskClaimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claim <id>",
		Short: "Claim a task and start work",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Claim(ctx, domain.TaskID(args[0]), actorID())
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
		Use:   "status <id> <status>",
		Short: "Transition a task (todo, doing, blocked, done, cancelled)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateStatus(ctx, domain.TaskID(args[0]), domain.TaskStatus(args[1]), actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskBlockCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "block <id>",
		Short: "Block a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Block(ctx, domain.TaskID(args[0]), reason, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the task is blocked")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func taskUnblockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unblock <id>",
		Short: "Unblock a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Unblock(ctx, domain.TaskID(args[0]), actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskAbandonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "abandon <id>",
		Short: "Release a task back to the backlog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Abandon(ctx, domain.TaskID(args[0]), actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskCancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Cancel(ctx, domain.TaskID(args[0]), reason, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the task is cancelled")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func taskRankCmd() *cobra.Command {
	var position int
	cmd := &cobra.Command{
		Use:   "rank <id>",
		Short: "Move a task to a position in the backlog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.RankTask(ctx, domain.TaskID(args[0]), position, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().IntVar(&position, "position", 0, "target position (0 = first)")
	_ = cmd.MarkFlagRequired("position")
	return cmd
}

// --- dep ---

func depCmd() *cobra.Command {
	d := &cobra.Command{Use: "dep", Short: "Manage task dependencies"}
	d.AddCommand(depAddCmd())
	d.AddCommand(depRemoveCmd())
	return d
}

func depAddCmd() *cobra.Command {
	var on, kind string
	cmd := &cobra.Command{
		Use:   "add <task-id>",
		Short: "Add a dependency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.AddDependency(ctx, domain.TaskID(args[0]), domain.TaskID(on), domain.DependencyKind(kind), actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&on, "on", "", "task this one depends on")
	cmd.Flags().StringVar(&kind, "kind", "blocks", "dependency kind (blocks, relates_to)")
	_ = cmd.MarkFlagRequired("on")
	return cmd
}

func depRemoveCmd() *cobra.Command {
	var on string
	cmd := &cobra.Command{
		Use:   "remove <task-id>",
		Short: "Remove a dependency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RemoveDependency(ctx, domain.TaskID(args[0]), domain.TaskID(on), actorID())
			})
		},
	}
	cmd.Flags().StringVar(&on, "on", "", "dependency to remove")
	_ = cmd.MarkFlagRequired("on")
	return cmd
}

// --- schedule ---

func scheduleCmd() *cobra.Command {
	s := &cobra.Command{Use: "schedule", Short: "Delay detection and rescheduling"}
	s.AddCommand(scheduleDetectCmd())
	s.AddCommand(schedulePropagateCmd())
	s.AddCommand(scheduleOverrideCmd())
	s.AddCommand(scheduleHistoryCmd())
	s.AddCommand(scheduleChainCmd())
	return s
}

func scheduleDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect <task-id>",
		Short: "Check a task for delay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.DetectDelay(ctx, domain.TaskID(args[0]), actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(report)
			})
		},
	}
}

func schedulePropagateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "propagate <task-id>",
		Short: "Cascade a task's delay to its dependents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				shifted, err := e.PropagateDelay(ctx, domain.TaskID(args[0]), actorID())
				if err != nil {
					return err
				}
				if len(shifted) == 0 {
					fmt.Println("nothing to shift")
					return nil
				}
				return printJSONOrTable(shifted)
			})
		},
	}
}

func scheduleOverrideCmd() *cobra.Command {
	var start, end, reason string
	cmd := &cobra.Command{
		Use:   "override <task-id>",
		Short: "Override a task's expected dates (manager only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.OverrideOptions{
					TaskID:  domain.TaskID(args[0]),
					Reason:  domain.ChangeReason(reason),
					ActorID: actorID(),
				}
				var err error
				if opts.ExpectedStart, err = parseDate(start); err != nil {
					return err
				}
				if opts.ExpectedEnd, err = parseDate(end); err != nil {
					return err
				}
				t, err := e.OverrideSchedule(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "new expected start")
	cmd.Flags().StringVar(&end, "end", "", "new expected end")
	cmd.Flags().StringVar(&reason, "reason", "manual_override", "change reason")
	return cmd
}

func scheduleHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <task-id>",
		Short: "Show a task's schedule audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				history, err := e.ScheduleHistory(ctx, domain.TaskID(args[0]))
				if err != nil {
					return err
				}
				return printJSONOrTable(history)
			})
		},
	}
}

func scheduleChainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chain <task-id>",
		Short: "Trace a delay back to its origin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				chain, err := e.DelayChain(ctx, domain.TaskID(args[0]))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(chain)
				}
				for i, link := range chain {
					arrow := ""
					if i > 0 {
						arrow = "  caused by "
					}
					fmt.Printf("%s%s (%s) [%s]\n", arrow, link.Title, link.TaskID, link.Reason)
				}
				return nil
			})
		},
	}
}

// --- workload ---

func workloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "workload",
		Short: "Show per-member workload",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.Workload(ctx, domain.ProjectID(e.Config.Project.ID))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"User", "Level", "Score", "Capacity", "Ratio", "Status"})
				for _, mw := range report {
					tw.AppendRow(table.Row{
						mw.Member.UserID, mw.Member.Level,
						mw.Snapshot.Score, mw.Snapshot.Capacity,
						fmt.Sprintf("%.2f", mw.Snapshot.Ratio), mw.Snapshot.Status,
					})
				}
				tw.Render()
				return nil
			})
		},
	}
}

// --- log ---

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Event log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.LatestEvents(ctx, n, domain.ProjectID(e.Config.Project.ID), evtType)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
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
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveProjectAndConfig(ctx, workspace, viper.GetString("project"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg, buildLogger())
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func buildLogger() *zap.Logger {
	if viper.GetBool("verbose") {
		logger, err := zap.NewDevelopment()
		if err == nil {
			return logger
		}
	}
	return zap.NewNop()
}

func actorID() domain.UserID {
	return domain.UserID(viper.GetString("actor-id"))
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid date %q; use YYYY-MM-DD or RFC3339", s)
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
