package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tasktree/internal/app"
	"tasktree/internal/config"
	"tasktree/internal/db"
)

var rootCmd = &cobra.Command{
	Use:   "tt",
	Short: "tasktree CLI",
	Long: `tasktree keeps project tasks in a hierarchy with ordered siblings and
typed dependencies.
- Project: owns tasks; members are owners, admins or members.
- Task: has at most one parent in the same project; siblings are numbered 1..N.
- Dependency: "A depends on B" edges; cycles are rejected.
- Event log: every change is recorded and can be relayed to NATS by 'tt serve'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TASKTREE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "local-user", "actor identifier")
	flags.StringP("project", "p", "", "project id")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	for _, name := range []string{"workspace", "json", "actor-id", "project", "log-level"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(depCmd())
	rootCmd.AddCommand(commentCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(tokenCmd())
}

func initCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config and create the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := afero.NewOsFs()
			workspace := viper.GetString("workspace")
			name := config.FileNames[0]
			if format == "toml" {
				name = "tasktree.toml"
			}
			path := filepath.Join(workspace, name)
			if ok, _ := afero.Exists(fs, config.Path(fs, workspace)); ok {
				return fmt.Errorf("config already exists at %s", config.Path(fs, workspace))
			}
			cfg := config.Default()
			cfg.Database.Workspace = workspace
			if err := config.Write(fs, path, cfg); err != nil {
				return err
			}
			a, err := app.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			fmt.Printf("Initialized tasktree workspace at %s (config %s, database %s)\n", workspace, path, db.Path(workspace))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "config format (yaml or toml)")
	return cmd
}

// loadConfig reads the workspace config file and applies flag and
// TASKTREE_* environment overrides.
func loadConfig() (*config.Config, error) {
	workspace := viper.GetString("workspace")
	cfg, err := config.Load(afero.NewOsFs(), workspace)
	if err != nil {
		return nil, err
	}
	cfg.Database.Workspace = workspace
	overrides := map[string]*string{
		"addr":           &cfg.Server.Addr,
		"base-path":      &cfg.Server.BasePath,
		"jwt-secret":     &cfg.Auth.JWTSecret,
		"nats-url":       &cfg.NATS.URL,
		"subject-prefix": &cfg.NATS.SubjectPrefix,
		"log-level":      &cfg.Log.Level,
		"log-format":     &cfg.Log.Format,
	}
	for key, dst := range overrides {
		if viper.IsSet(key) && viper.GetString(key) != "" {
			*dst = viper.GetString(key)
		}
	}
	if viper.IsSet("relay") {
		cfg.Relay.Enabled = viper.GetBool("relay")
	}
	if viper.IsSet("allow-actor-header") {
		cfg.Auth.AllowActorHeader = viper.GetBool("allow-actor-header")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(cfg.Log))
	a, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func actorID() string {
	return viper.GetString("actor-id")
}

func projectID() (string, error) {
	p := strings.TrimSpace(viper.GetString("project"))
	if p == "" {
		return "", errors.New("project required (--project or TASKTREE_PROJECT)")
	}
	return p, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// render prints v as JSON when --json is set, otherwise as a table.
func render(v any, header table.Row, rows []table.Row) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	tw.AppendRows(rows)
	tw.Render()
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
