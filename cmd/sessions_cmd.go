package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pairgate/pairgate/pkg/protocol"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "View and manage pairing sessions on a running bot",
	}
	cmd.AddCommand(sessionsListCmd())
	cmd.AddCommand(sessionsCancelCmd())
	cmd.AddCommand(sessionsResumeCmd())
	return cmd
}

func sessionsListCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active pairing sessions",
		Run: func(cmd *cobra.Command, args []string) {
			resp, err := opsRPC(protocol.MethodSessionsList, nil)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if !resp.OK {
				fmt.Fprintf(os.Stderr, "Failed: %s\n", resp.Error.Message)
				os.Exit(1)
			}

			raw, _ := json.Marshal(resp.Payload)
			var result struct {
				Sessions []protocol.SessionSummary `json:"sessions"`
			}
			if err := json.Unmarshal(raw, &result); err != nil {
				fmt.Fprintf(os.Stderr, "Error parsing response: %v\n", err)
				os.Exit(1)
			}

			printSessionSummaries(result.Sessions, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func sessionsCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <chat>",
		Short: "Cancel the pairing session of a chat, e.g. telegram:12345",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			params, _ := json.Marshal(map[string]string{"chat": args[0]})
			resp, err := opsRPC(protocol.MethodSessionsCancel, params)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if !resp.OK {
				fmt.Fprintf(os.Stderr, "Failed: %s\n", resp.Error.Message)
				os.Exit(1)
			}
			fmt.Printf("Cancellation requested for %s\n", args[0])
		},
	}
}

func sessionsResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <chat>",
		Short: "Resume a held pairing session of a chat",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			params, _ := json.Marshal(map[string]string{"chat": args[0]})
			resp, err := opsRPC(protocol.MethodSessionsResume, params)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if !resp.OK {
				fmt.Fprintf(os.Stderr, "Failed: %s\n", resp.Error.Message)
				os.Exit(1)
			}
			fmt.Printf("Resume requested for %s\n", args[0])
		},
	}
}

func printSessionSummaries(sessions []protocol.SessionSummary, jsonOutput bool) {
	if jsonOutput {
		data, _ := json.MarshalIndent(sessions, "", "  ")
		fmt.Println(string(data))
		return
	}

	if len(sessions) == 0 {
		fmt.Println("No active sessions.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "CHAT\tMETHOD\tSTATE\tSTARTED\tID\n")
	for _, s := range sessions {
		state := s.State
		if s.Cancelling {
			state += " (cancelling)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			truncateStr(s.Chat, 40),
			s.Method,
			state,
			time.UnixMilli(s.StartedAt).Format(time.DateTime),
			s.ID,
		)
	}
	tw.Flush()
}

func truncateStr(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
