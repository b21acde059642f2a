package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"tasktree/internal/app"
	"tasktree/internal/domain"
	"tasktree/internal/engine"
)

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var opts engine.ProjectCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project owned by the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				opts.ActorID = actorID()
				p, err := a.Engine.CreateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printProjects([]domain.Project{p})
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "project id (generated when empty)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "project name")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.ActorName, "display-name", "", "display name recorded for the owner")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects the current actor belongs to",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListProjects(ctx, actorID())
				if err != nil {
					return err
				}
				return printProjects(items)
			})
		},
	}
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Engine.GetProject(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printProjects([]domain.Project{p})
			})
		},
	}
}

func printProjects(items []domain.Project) error {
	rows := make([]table.Row, 0, len(items))
	for _, p := range items {
		rows = append(rows, table.Row{p.ID, p.Name, p.Description, p.CreatedAt})
	}
	return render(items, table.Row{"ID", "Name", "Description", "Created"}, rows)
}

func memberCmd() *cobra.Command {
	m := &cobra.Command{Use: "member", Short: "Manage project members"}
	m.AddCommand(memberAddCmd())
	m.AddCommand(memberRemoveCmd())
	m.AddCommand(memberListCmd())
	return m
}

func memberAddCmd() *cobra.Command {
	var role, name string
	cmd := &cobra.Command{
		Use:   "add <user-id>",
		Short: "Add a member or change a member's role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := projectID()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				m, err := a.Engine.AddMember(ctx, engine.MemberOptions{
					ProjectID:   project,
					UserID:      args[0],
					DisplayName: name,
					Role:        role,
					ActorID:     actorID(),
				})
				if err != nil {
					return err
				}
				return printMembers([]domain.Member{m})
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", domain.RoleMember, "owner, admin or member")
	cmd.Flags().StringVar(&name, "display-name", "", "display name")
	return cmd
}

func memberRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <user-id>",
		Aliases: []string{"remove"},
		Short:   "Remove a member",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := projectID()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Engine.RemoveMember(ctx, project, args[0], actorID()); err != nil {
					return err
				}
				fmt.Printf("removed %s from %s\n", args[0], project)
				return nil
			})
		},
	}
}

func memberListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List members",
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := projectID()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListMembers(ctx, project, actorID())
				if err != nil {
					return err
				}
				return printMembers(items)
			})
		},
	}
}

func printMembers(items []domain.Member) error {
	rows := make([]table.Row, 0, len(items))
	for _, m := range items {
		rows = append(rows, table.Row{m.UserID, m.DisplayName, m.Role})
	}
	return render(items, table.Row{"User", "Name", "Role"}, rows)
}
