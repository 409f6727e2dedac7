package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon mode and recent transitions",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/status")
	if err != nil {
		return err
	}

	var status struct {
		Mode struct {
			Mode         string `json:"mode"`
			Since        string `json:"since"`
			PreviousMode string `json:"previous_mode"`
		} `json:"mode"`
		Transitions []struct {
			From   string `json:"from"`
			To     string `json:"to"`
			Reason string `json:"reason"`
			At     string `json:"at"`
		} `json:"transitions"`
		Jobs int `json:"jobs"`
	}
	if err := json.Unmarshal(resp, &status); err != nil {
		return err
	}

	fmt.Printf("Mode:  %s (since %s)\n", status.Mode.Mode, status.Mode.Since)
	if status.Mode.PreviousMode != "" {
		fmt.Printf("Prev:  %s\n", status.Mode.PreviousMode)
	}
	fmt.Printf("Jobs:  %d scheduled\n", status.Jobs)

	if len(status.Transitions) > 0 {
		fmt.Println("\nRecent transitions:")
		for _, t := range status.Transitions {
			fmt.Printf("  %s -> %s  %s\n", t.From, t.To, t.Reason)
		}
	}
	return nil
}
