package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var sayCmd = &cobra.Command{
	Use:   "say [message...]",
	Short: "Send a request to the orchestrator",
	Long:  `Sends a message to the daemon: a natural-language coding request, a clarification answer, a guard confirmation, or a slash command.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSay,
}

func runSay(cmd *cobra.Command, args []string) error {
	body := map[string]string{"text": strings.Join(args, " ")}

	resp, err := apiPost("/message", body)
	if err != nil {
		return err
	}

	var result map[string]string
	if err := json.Unmarshal(resp, &result); err != nil {
		return err
	}

	fmt.Println(result["reply"])
	return nil
}
