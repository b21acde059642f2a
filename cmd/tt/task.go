package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tasktree/internal/app"
	"tasktree/internal/domain"
	"tasktree/internal/engine"
)

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskGetCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskMoveCmd())
	task.AddCommand(taskTreeCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create task",
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := projectID()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				opts.ProjectID = project
				opts.ActorID = actorID()
				t, err := a.Engine.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printTasks([]domain.Task{t.Task})
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "task id (generated when empty)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "task title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.ParentID, "parent", "", "parent task id")
	cmd.Flags().StringVar(&opts.Status, "status", "", "todo, in_progress, review, done or blocked")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "low, medium, high or critical")
	cmd.Flags().StringVar(&opts.AssigneeID, "assignee", "", "assignee id")
	cmd.Flags().StringVar(&opts.DueDate, "due", "", "due date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <task-id>",
		Short: "Show a task with its relations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.GetTask(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				fmt.Printf("%s  %s\n", t.ID, t.Title)
				fmt.Printf("status=%s priority=%s position=%d assignee=%s due=%s\n",
					t.Status, t.Priority, t.Position, deref(t.AssigneeID), deref(t.DueDate))
				if t.Parent != nil {
					fmt.Printf("parent: %s %s\n", t.Parent.ID, t.Parent.Title)
				}
				for _, s := range t.Subtasks {
					fmt.Printf("  %d. %s [%s] %s\n", s.Position, s.Title, s.Status, s.ID)
				}
				for _, d := range t.Dependencies {
					fmt.Printf("depends on %s (%s)\n", d.DependsOnTaskID, d.Type)
				}
				for _, d := range t.Dependents {
					fmt.Printf("required by %s (%s)\n", d.TaskID, d.Type)
				}
				for _, c := range t.Comments {
					fmt.Printf("%s %s: %s\n", c.CreatedAt, c.AuthorID, c.Body)
				}
				return nil
			})
		},
	}
}

func taskListCmd() *cobra.Command {
	var f engine.TaskListFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := projectID()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				tasks, err := a.Engine.ListTasks(ctx, project, actorID(), f)
				if err != nil {
					return err
				}
				return printTasks(tasks)
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Priority, "priority", "", "priority filter")
	cmd.Flags().StringVar(&f.AssigneeID, "assignee", "", "assignee filter")
	cmd.Flags().StringVar(&f.ParentID, "parent", "", "only children of this task")
	cmd.Flags().BoolVar(&f.RootsOnly, "roots", false, "only top-level tasks")
	cmd.Flags().StringVar(&f.Search, "search", "", "case-insensitive text match")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "maximum tasks returned")
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var title, description, status, priority, assignee, due, parent string
	var clearAssignee, clearDue, clearParent bool
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Update task fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.TaskUpdateOptions{
				ID:            args[0],
				ClearAssignee: clearAssignee,
				ClearDueDate:  clearDue,
				ClearParent:   clearParent,
				ActorID:       actorID(),
			}
			changed := cmd.Flags().Changed
			if changed("title") {
				opts.Title = &title
			}
			if changed("description") {
				opts.Description = &description
			}
			if changed("status") {
				opts.Status = &status
			}
			if changed("priority") {
				opts.Priority = &priority
			}
			if changed("assignee") {
				opts.SetAssignee = &assignee
			}
			if changed("due") {
				opts.SetDueDate = &due
			}
			if changed("parent") {
				opts.SetParent = &parent
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.UpdateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printTasks([]domain.Task{t})
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().StringVar(&priority, "priority", "", "priority")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee id")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&parent, "parent", "", "new parent task id")
	cmd.Flags().BoolVar(&clearAssignee, "clear-assignee", false, "unassign")
	cmd.Flags().BoolVar(&clearDue, "clear-due", false, "remove due date")
	cmd.Flags().BoolVar(&clearParent, "clear-parent", false, "make top-level")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	var subtasks string
	cmd := &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task",
		Long:  "Tasks with subtasks need --subtasks promote (children move up) or --subtasks delete (whole subtree).",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				err := a.Engine.DeleteTask(ctx, engine.TaskDeleteOptions{ID: args[0], Subtasks: subtasks, ActorID: actorID()})
				if err != nil {
					return err
				}
				fmt.Printf("deleted %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&subtasks, "subtasks", "", "promote or delete")
	return cmd
}

func taskMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <task-id> <position>",
		Short: "Move a task to a 1-based position among its siblings",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("position must be a number: %w", err)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.MoveTask(ctx, args[0], pos, actorID())
				if err != nil {
					return err
				}
				return printTasks([]domain.Task{t})
			})
		},
	}
}

func taskTreeCmd() *cobra.Command {
	var root string
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Show task tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := projectID()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				nodes, err := a.Engine.Tree(ctx, project, root, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(nodes)
				}
				for i, n := range nodes {
					printTaskTree(n, "", i == len(nodes)-1)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "only the subtree under this task")
	return cmd
}

func printTasks(items []domain.Task) error {
	rows := make([]table.Row, 0, len(items))
	for _, t := range items {
		rows = append(rows, table.Row{t.ID, deref(t.ParentTaskID), t.Position, t.Title, t.Status, t.Priority, deref(t.AssigneeID)})
	}
	return render(items, table.Row{"ID", "Parent", "Pos", "Title", "Status", "Priority", "Assignee"}, rows)
}

func printTaskTree(n *domain.TreeNode, prefix string, last bool) {
	connector := "├── "
	newPrefix := prefix + "│   "
	if last {
		connector = "└── "
		newPrefix = prefix + "    "
	}
	fmt.Printf("%s%s%d. %s [%s]\n", prefix, connector, n.Task.Position, n.Task.Title, n.Task.Status)
	for i, c := range n.Children {
		printTaskTree(c, newPrefix, i == len(n.Children)-1)
	}
}

func depCmd() *cobra.Command {
	dep := &cobra.Command{Use: "dep", Short: "Manage task dependencies"}
	var depType string
	add := &cobra.Command{
		Use:   "add <task-id> <depends-on-id>",
		Short: "Record that a task depends on another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				d, err := a.Engine.AddDependency(ctx, engine.DependencyOptions{
					TaskID:      args[0],
					DependsOnID: args[1],
					Type:        depType,
					ActorID:     actorID(),
				})
				if err != nil {
					return err
				}
				return render(d, table.Row{"ID", "Task", "Depends on", "Type"}, []table.Row{{d.ID, d.TaskID, d.DependsOnTaskID, d.Type}})
			})
		},
	}
	add.Flags().StringVar(&depType, "type", "", "blocks, finish_to_start, start_to_start or finish_to_finish")
	rm := &cobra.Command{
		Use:     "rm <task-id> <depends-on-id>",
		Aliases: []string{"remove"},
		Short:   "Remove a dependency",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.RemoveDependency(ctx, args[0], args[1], actorID())
			})
		},
	}
	dep.AddCommand(add, rm)
	return dep
}

func commentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "comment <task-id> <text>",
		Short: "Comment on a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				c, err := a.Engine.AddComment(ctx, args[0], args[1], actorID())
				if err != nil {
					return err
				}
				return render(c, table.Row{"ID", "Task", "Author", "Created"}, []table.Row{{c.ID, c.TaskID, c.AuthorID, c.CreatedAt}})
			})
		},
	}
}
