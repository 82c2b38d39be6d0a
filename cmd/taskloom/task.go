package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkessler/taskloom/internal/model"
	"github.com/mkessler/taskloom/internal/repo"
	"github.com/mkessler/taskloom/internal/ui"
)

var (
	flagTaskProject  string
	flagTaskPriority int
	flagTaskStatus   string
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Create and inspect tasks in the local store",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a task (synced in the background)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg, "[task] ")
		_, repos, _, sess, cleanup, err := openEnv(cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		task, err := repos.CreateTask(context.Background(), sess, &model.Task{
			Title:     args[0],
			ProjectID: flagTaskProject,
			Priority:  flagTaskPriority,
			Status:    model.StatusOpen,
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s Created task %s\n", ui.RenderPass("✓"), task.ID)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg, "[task] ")
		_, repos, _, _, cleanup, err := openEnv(cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		tasks, err := repos.ListTasks(context.Background(), repo.TaskFilter{
			Status:    flagTaskStatus,
			ProjectID: flagTaskProject,
		})
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			fmt.Println(ui.RenderDim("no tasks"))
			return nil
		}
		for _, t := range tasks {
			marker := ui.RenderDim("○")
			switch t.Status {
			case model.StatusInProgress:
				marker = ui.RenderAccent("◐")
			case model.StatusDone:
				marker = ui.RenderPass("●")
			}
			fmt.Printf("%s %s  P%d  %s\n", marker, t.ID[:8], t.Priority, t.Title)
		}
		return nil
	},
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a task done",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg, "[task] ")
		_, repos, _, sess, cleanup, err := openEnv(cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx := context.Background()
		task, err := repos.GetTask(ctx, args[0])
		if err != nil {
			return err
		}
		task.Status = model.StatusDone
		if _, err := repos.UpdateTask(ctx, sess, task); err != nil {
			return err
		}
		fmt.Printf("%s Done: %s\n", ui.RenderPass("✓"), task.Title)
		return nil
	},
}

func init() {
	taskAddCmd.Flags().StringVar(&flagTaskProject, "project", "", "project id")
	taskAddCmd.Flags().IntVar(&flagTaskPriority, "priority", 2, "priority 0-4")
	taskListCmd.Flags().StringVar(&flagTaskStatus, "status", "", "filter by status")
	taskListCmd.Flags().StringVar(&flagTaskProject, "project", "", "filter by project id")

	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskDoneCmd)
}
