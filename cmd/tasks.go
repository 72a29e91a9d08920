package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/companion/internal/database"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Manage the patient's scheduled tasks",
	Long:  `Commands for listing, adding and completing the tasks the patient is reminded about.`,
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks in scheduled order",
	Args:  cobra.NoArgs,
	RunE:  runTasksList,
}

var tasksAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Schedule a task",
	Long: `Schedule a task.

--at accepts RFC 3339 ("2026-03-01T09:30:00+01:00"), "2026-03-01 09:30"
or just "09:30" for today, all in local time unless an offset is given.

Examples:
  companion tasks add "take your pills" --at 09:30 --location "the kitchen"`,
	Args: cobra.ExactArgs(1),
	RunE: runTasksAdd,
}

var tasksCompleteCmd = &cobra.Command{
	Use:   "complete <id>",
	Short: "Mark a task as done",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksComplete,
}

func init() {
	rootCmd.AddCommand(tasksCmd)
	tasksCmd.AddCommand(tasksListCmd, tasksAddCmd, tasksCompleteCmd)

	tasksListCmd.Flags().Bool("json", false, "Output as JSON")
	tasksListCmd.Flags().Bool("pending", false, "Only show pending tasks")

	tasksAddCmd.Flags().String("at", "", "Scheduled time (required)")
	tasksAddCmd.Flags().String("location", "", "Where the task happens")
	tasksAddCmd.Flags().String("description", "", "Longer description")
	_ = tasksAddCmd.MarkFlagRequired("at")

	tasksCompleteCmd.Flags().Bool("skip", false, "Mark the task as skipped instead of completed")
}

// TaskOutput is the CLI view of a task.
type TaskOutput struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	ScheduledTime string `json:"scheduled_time"`
	Location      string `json:"location,omitempty"`
	Status        string `json:"status"`
}

// parseTaskTime reads the --at value relative to now's date and location.
func parseTaskTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", s, now.Location()); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("15:04", s, now.Location()); err == nil {
		return time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location()), nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q: use RFC 3339, \"2006-01-02 15:04\" or \"15:04\"", s)
}

func runTasksList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, _, st, done, err := openCLIStorage(ctx)
	if err != nil {
		return err
	}
	defer done()

	tasks, err := st.tasks.ListTasks(ctx, cfg.PatientID)
	if err != nil {
		return fmt.Errorf("listing tasks: %w", err)
	}

	pendingOnly := mustGetBool(cmd, "pending")
	out := make([]TaskOutput, 0, len(tasks))
	for i := range tasks {
		if pendingOnly && !tasks[i].IsPending() {
			continue
		}
		out = append(out, TaskOutput{
			ID:            tasks[i].ID,
			Name:          tasks[i].Name,
			Description:   tasks[i].Description,
			ScheduledTime: tasks[i].ScheduledTime.Local().Format("2006-01-02 15:04"),
			Location:      tasks[i].Location,
			Status:        string(tasks[i].Status),
		})
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(out)
	}
	if len(out) == 0 {
		fmt.Println("No tasks.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tWHEN\tTASK\tLOCATION\tSTATUS")
	fmt.Fprintln(w, "--\t----\t----\t--------\t------")
	for _, t := range out {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.ScheduledTime, t.Name, t.Location, t.Status)
	}
	return w.Flush()
}

func runTasksAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	name := strings.TrimSpace(args[0])
	if name == "" {
		return errors.New("name is required")
	}
	at, err := parseTaskTime(mustGetString(cmd, "at"), time.Now())
	if err != nil {
		return err
	}

	cfg, _, st, done, err := openCLIStorage(ctx)
	if err != nil {
		return err
	}
	defer done()

	task := &database.Task{
		OwnerID:       cfg.PatientID,
		Name:          name,
		Description:   strings.TrimSpace(mustGetString(cmd, "description")),
		ScheduledTime: at,
		Location:      strings.TrimSpace(mustGetString(cmd, "location")),
		Status:        database.TaskPending,
	}
	if err := st.tasks.CreateTask(ctx, task); err != nil {
		return fmt.Errorf("creating task: %w", err)
	}
	fmt.Printf("Scheduled %q for %s (%s)\n", task.Name, at.Local().Format("2006-01-02 15:04"), task.ID)
	return nil
}

func runTasksComplete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, _, st, done, err := openCLIStorage(ctx)
	if err != nil {
		return err
	}
	defer done()

	task, err := st.tasks.GetTask(ctx, args[0])
	if err != nil {
		return fmt.Errorf("getting task: %w", err)
	}
	if task == nil || task.OwnerID != cfg.PatientID {
		return fmt.Errorf("task %q not found", args[0])
	}

	task.Status = database.TaskCompleted
	if mustGetBool(cmd, "skip") {
		task.Status = database.TaskSkipped
	}
	if err := st.tasks.UpdateTask(ctx, task); err != nil {
		return fmt.Errorf("updating task: %w", err)
	}
	fmt.Printf("Marked %q as %s\n", task.Name, task.Status)
	return nil
}
