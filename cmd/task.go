package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Seasonsling/clarion/internal/models"
	"github.com/Seasonsling/clarion/internal/plantree"
)

var (
	taskPriority string
	taskDetails  string
	taskDue      string
	taskStatus   string
	taskSubtask  bool
	taskMoveTo   string
	taskMovePos  string
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Mutate tasks in a plan",
	Long: `Mutate single tasks by path address.

A path has the form <phase>[.<project>]/<i>.<j>...: the phase index, an
optional nested-project index, and the chain of child indices down to the
task (indices after the first descend into subtasks). 'clarion plan show'
prints the path of every task.`,
}

var taskAddCmd = &cobra.Command{
	Use:   "add <plan> <path> <name>",
	Short: "Insert a task at a path (or as a subtask of the task at the path)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskAddRun(args[0], args[1], args[2])
	},
}

var taskUpdateCmd = &cobra.Command{
	Use:   "update <plan> <path>",
	Short: "Update fields of the task at a path",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskUpdateRun(args[0], args[1], "")
	},
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <plan> <path>",
	Short: "Mark the task at a path done",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskUpdateRun(args[0], args[1], string(models.TaskStatusDone))
	},
}

var taskDeleteCmd = &cobra.Command{
	Use:     "delete <plan> <path>",
	Aliases: []string{"rm"},
	Short:   "Delete the task at a path",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskDeleteRun(args[0], args[1])
	},
}

var taskMoveCmd = &cobra.Command{
	Use:   "move <plan> <path>",
	Short: "Move a task before or after another task",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskMoveRun(args[0], args[1])
	},
}

func init() {
	taskAddCmd.Flags().BoolVar(&taskSubtask, "subtask", false, "Append as a subtask of the task at the path")
	taskAddCmd.Flags().StringVar(&taskPriority, "priority", "", "Priority: high, medium, low")
	taskAddCmd.Flags().StringVar(&taskDetails, "details", "", "Free-text details")
	taskAddCmd.Flags().StringVar(&taskDue, "due", "", "Due date (YYYY-MM-DD)")

	taskUpdateCmd.Flags().StringVar(&taskStatus, "status", "", "Status: todo, in-progress, done")
	taskUpdateCmd.Flags().StringVar(&taskPriority, "priority", "", "Priority: high, medium, low")
	taskUpdateCmd.Flags().StringVar(&taskDetails, "details", "", "Free-text details")
	taskUpdateCmd.Flags().StringVar(&taskDue, "due", "", "Due date (YYYY-MM-DD)")

	taskMoveCmd.Flags().StringVar(&taskMoveTo, "to", "", "Drop target path (required)")
	taskMoveCmd.Flags().StringVar(&taskMovePos, "position", "before", "before or after the drop target")
	_ = taskMoveCmd.MarkFlagRequired("to")

	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskUpdateCmd)
	taskCmd.AddCommand(taskDoneCmd)
	taskCmd.AddCommand(taskDeleteCmd)
	taskCmd.AddCommand(taskMoveCmd)
	rootCmd.AddCommand(taskCmd)
}

// parsePath parses the CLI path syntax: <phase>[.<project>]/<i>.<j>...
func parsePath(s string) (plantree.Path, error) {
	var p plantree.Path
	owner, tasks, found := strings.Cut(s, "/")

	ownerParts := strings.Split(owner, ".")
	if len(ownerParts) > 2 {
		return p, fmt.Errorf("invalid path %q", s)
	}
	phase, err := strconv.Atoi(ownerParts[0])
	if err != nil {
		return p, fmt.Errorf("invalid phase index in path %q", s)
	}
	p.Phase = phase
	if len(ownerParts) == 2 {
		proj, err := strconv.Atoi(ownerParts[1])
		if err != nil {
			return p, fmt.Errorf("invalid project index in path %q", s)
		}
		p.Project = &proj
	}

	if !found || tasks == "" {
		return p, fmt.Errorf("path %q addresses no task", s)
	}
	for _, part := range strings.Split(tasks, ".") {
		idx, err := strconv.Atoi(part)
		if err != nil {
			return p, fmt.Errorf("invalid task index %q in path %q", part, s)
		}
		p.Tasks = append(p.Tasks, idx)
	}
	return p, nil
}

func parseDue(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("invalid due date %q (want YYYY-MM-DD)", s)
	}
	return &t, nil
}

func taskAddRun(planRef, pathStr, name string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()
	p, err := resolvePlan(ctx, s, planRef)
	if err != nil {
		return err
	}
	path, err := parsePath(pathStr)
	if err != nil {
		return err
	}
	due, err := parseDue(taskDue)
	if err != nil {
		return err
	}

	t := &models.Task{
		ID:       plantree.NewID(),
		Name:     name,
		Status:   models.TaskStatusTodo,
		Priority: models.TaskPriority(taskPriority),
		Details:  taskDetails,
		Due:      due,
	}

	ok := false
	if taskSubtask {
		ok = plantree.InsertSubtask(p, path, t)
	} else {
		ok = plantree.Insert(p, path, t)
	}
	if !ok {
		return fmt.Errorf("path not found: %s", path.String())
	}
	if err := s.UpdateProject(ctx, p); err != nil {
		return err
	}
	ui.Success("Added task %q at %s", name, path.String())
	return nil
}

func taskUpdateRun(planRef, pathStr, forceStatus string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()
	p, err := resolvePlan(ctx, s, planRef)
	if err != nil {
		return err
	}
	path, err := parsePath(pathStr)
	if err != nil {
		return err
	}

	patch := plantree.TaskPatch{}
	status := taskStatus
	if forceStatus != "" {
		status = forceStatus
	}
	if status != "" {
		st := models.TaskStatus(status)
		patch.Status = &st
	}
	if taskPriority != "" {
		pr := models.TaskPriority(taskPriority)
		patch.Priority = &pr
	}
	if taskDetails != "" {
		patch.Details = &taskDetails
	}
	if taskDue != "" {
		due, err := parseDue(taskDue)
		if err != nil {
			return err
		}
		patch.Due = due
	}

	if !plantree.Update(p, path, patch) {
		return fmt.Errorf("path not found: %s", path.String())
	}
	if err := s.UpdateProject(ctx, p); err != nil {
		return err
	}
	ui.Success("Updated task at %s", path.String())
	return nil
}

func taskDeleteRun(planRef, pathStr string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()
	p, err := resolvePlan(ctx, s, planRef)
	if err != nil {
		return err
	}
	path, err := parsePath(pathStr)
	if err != nil {
		return err
	}
	removed, ok := plantree.Delete(p, path)
	if !ok {
		return fmt.Errorf("path not found: %s", path.String())
	}
	if err := s.UpdateProject(ctx, p); err != nil {
		return err
	}
	ui.Success("Deleted task %q", removed.Name)
	return nil
}

func taskMoveRun(planRef, pathStr string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()
	p, err := resolvePlan(ctx, s, planRef)
	if err != nil {
		return err
	}
	from, err := parsePath(pathStr)
	if err != nil {
		return err
	}
	to, err := parsePath(taskMoveTo)
	if err != nil {
		return err
	}

	pos := plantree.MovePosition(taskMovePos)
	if pos != plantree.MoveBefore && pos != plantree.MoveAfter {
		return fmt.Errorf("invalid position %q (use before or after)", taskMovePos)
	}
	if !plantree.Move(p, from, to, pos) {
		// Covers stale paths and drops inside the dragged subtree.
		ui.VerboseLog("move rejected: %s -> %s", from.String(), to.String())
		ui.Warning("Move not applied")
		return nil
	}
	if err := s.UpdateProject(ctx, p); err != nil {
		return err
	}
	ui.Success("Moved task %s %s %s", from.String(), taskMovePos, taskMoveTo)
	return nil
}
