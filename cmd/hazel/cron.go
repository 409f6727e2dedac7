package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var cronCmd = &cobra.Command{
	Use:   "cron",
	Short: "Manage scheduled jobs",
}

var cronListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled jobs",
	RunE:  runCronList,
}

var cronRemoveCmd = &cobra.Command{
	Use:   "remove [job-id]",
	Short: "Remove a scheduled job",
	Args:  cobra.ExactArgs(1),
	RunE:  runCronRemove,
}

var remindCmd = &cobra.Command{
	Use:   "remind [message] in [N][s|m|h|d]",
	Short: "Set a one-shot reminder",
	Args:  cobra.MinimumNArgs(3),
	RunE:  runRemind,
}

func init() {
	cronCmd.AddCommand(cronListCmd, cronRemoveCmd)
}

func runCronList(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/jobs")
	if err != nil {
		return err
	}

	var jobs []map[string]interface{}
	if err := json.Unmarshal(resp, &jobs); err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs scheduled")
		return nil
	}

	for _, j := range jobs {
		id := truncateID(j["id"].(string))
		kind := j["kind"].(string)
		command := j["command"].(string)
		line := fmt.Sprintf("%s  %-10s %q", id, kind, command)
		if triggerAt, ok := j["trigger_at"].(string); ok && triggerAt != "" {
			line += "  fires " + triggerAt
		}
		if intervalMs, ok := j["interval_ms"].(float64); ok && intervalMs > 0 {
			line += fmt.Sprintf("  every %.0fms", intervalMs)
		}
		fmt.Println(line)
	}
	return nil
}

func runCronRemove(cmd *cobra.Command, args []string) error {
	reply, err := sendMessage("/cron remove " + args[0])
	if err != nil {
		return err
	}
	fmt.Println(reply)
	return nil
}

func runRemind(cmd *cobra.Command, args []string) error {
	reply, err := sendMessage("/remind " + strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Println(reply)
	return nil
}

func sendMessage(text string) (string, error) {
	resp, err := apiPost("/message", map[string]string{"text": text})
	if err != nil {
		return "", err
	}
	var result map[string]string
	if err := json.Unmarshal(resp, &result); err != nil {
		return "", err
	}
	return result["reply"], nil
}
