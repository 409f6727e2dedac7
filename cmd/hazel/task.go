package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect tasks",
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent tasks",
	RunE:  runTaskList,
}

var (
	taskStatus string
	taskLimit  int
)

func init() {
	taskCmd.AddCommand(taskListCmd)

	taskListCmd.Flags().StringVar(&taskStatus, "status", "", "Filter by status (pending, in_progress, completed, failed)")
	taskListCmd.Flags().IntVar(&taskLimit, "limit", 20, "Maximum tasks to list")
}

func runTaskList(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("/tasks?limit=%d", taskLimit)
	if taskStatus != "" {
		url = "/tasks?status=" + taskStatus
	}

	resp, err := apiGet(url)
	if err != nil {
		return err
	}

	var tasks []map[string]interface{}
	if err := json.Unmarshal(resp, &tasks); err != nil {
		return err
	}

	if len(tasks) == 0 {
		fmt.Println("No tasks found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tAGENT\tSTATUS\tPROMPT")
	for _, t := range tasks {
		id := truncateID(t["id"].(string))
		agent := t["agent"].(string)
		status := t["status"].(string)
		prompt := truncate(t["prompt"].(string), 50)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", id, agent, status, prompt)
	}
	w.Flush()
	return nil
}

// --- Helpers ---

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
