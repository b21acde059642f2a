package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"tasktree/internal/app"
	"tasktree/internal/server"
)

func logCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent project events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := projectID()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				evts, err := a.Engine.ListEvents(ctx, project, actorID(), n)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(evts))
				for _, e := range evts {
					rows = append(rows, table.Row{e.ID, e.TS, e.Type, e.EntityID, e.ActorID})
				}
				return render(evts, table.Row{"ID", "Time", "Type", "Entity", "Actor"}, rows)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

func apikeyCmd() *cobra.Command {
	keys := &cobra.Command{Use: "apikey", Short: "Manage API keys for the current actor"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the secret is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				key, secret, err := a.Engine.CreateAPIKey(ctx, actorID(), name)
				if err != nil {
					return err
				}
				fmt.Printf("id:  %s\nkey: %s\n", key.ID, secret)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key label")
	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.Repo.ListAPIKeys(ctx, actorID())
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, k := range items {
					rows = append(rows, table.Row{k.ID, k.Name, k.CreatedAt})
				}
				return render(items, table.Row{"ID", "Name", "Created"}, rows)
			})
		},
	}
	revoke := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.Repo.DeleteAPIKey(ctx, actorID(), args[0])
			})
		},
	}
	keys.AddCommand(create, list, revoke)
	return keys
}

func tokenCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the current actor with the configured secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret (or TASKTREE_JWT_SECRET) is not set")
			}
			token, err := server.SignToken(cfg.Auth.JWTSecret, actorID(), name, cfg.TokenTTL())
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name claim")
	return cmd
}
