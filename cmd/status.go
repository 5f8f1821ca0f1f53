package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pairgate/pairgate/pkg/protocol"
)

func statusCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running bot",
		Run: func(cmd *cobra.Command, args []string) {
			resp, err := opsRPC(protocol.MethodStatus, nil)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if !resp.OK {
				fmt.Fprintf(os.Stderr, "Failed: %s\n", resp.Error.Message)
				os.Exit(1)
			}

			raw, _ := json.Marshal(resp.Payload)
			if jsonOutput {
				var pretty json.RawMessage = raw
				data, _ := json.MarshalIndent(pretty, "", "  ")
				fmt.Println(string(data))
				return
			}

			var status struct {
				Sessions int   `json:"sessions"`
				Clients  int   `json:"clients"`
				UptimeS  int64 `json:"uptime_s"`
				Lanes    []struct {
					Name   string `json:"name"`
					Active int    `json:"active"`
					Queued int    `json:"queued"`
				} `json:"lanes"`
			}
			if err := json.Unmarshal(raw, &status); err != nil {
				fmt.Fprintf(os.Stderr, "Error parsing response: %v\n", err)
				os.Exit(1)
			}

			fmt.Printf("Uptime:           %s\n", (time.Duration(status.UptimeS) * time.Second).String())
			fmt.Printf("Active sessions:  %d\n", status.Sessions)
			fmt.Printf("Ops clients:      %d\n", status.Clients)
			for _, lane := range status.Lanes {
				fmt.Printf("Lane %-12s %d active, %d queued\n", lane.Name+":", lane.Active, lane.Queued)
			}
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}
