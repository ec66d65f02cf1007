package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var statusAddr string

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "http://localhost:8080", "base URL of a running pagewatch instance")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print status_all() of a running pagewatch instance as a table",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(statusAddr)
	},
}

type statusAllResponse struct {
	Success   bool     `json:"success"`
	TargetIDs []string `json:"target_ids"`
}

func runStatus(addr string) error {
	client := &http.Client{Timeout: 10 * time.Second}

	resp, err := client.Get(addr + "/api/v1/targets")
	if err != nil {
		return fmt.Errorf("fetch targets: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch targets: unexpected status %d", resp.StatusCode)
	}

	var all statusAllResponse
	if err := json.NewDecoder(resp.Body).Decode(&all); err != nil {
		return fmt.Errorf("decode targets: %w", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET_ID\tRUNNING\tPAGE_URL\tSELECTOR")

	for _, id := range all.TargetIDs {
		sResp, err := client.Get(addr + "/api/v1/targets/" + id)
		if err != nil {
			fmt.Fprintf(tw, "%s\t?\t(error: %v)\t\n", id, err)
			continue
		}
		var s struct {
			IsRunning bool `json:"is_running"`
			Config    struct {
				InitialURL string `json:"initial_url"`
				Selector   string `json:"selector"`
			} `json:"config"`
		}
		err = json.NewDecoder(sResp.Body).Decode(&s)
		sResp.Body.Close()
		if err != nil {
			fmt.Fprintf(tw, "%s\t?\t(error: %v)\t\n", id, err)
			continue
		}
		fmt.Fprintf(tw, "%s\t%v\t%s\t%s\n", id, s.IsRunning, s.Config.InitialURL, s.Config.Selector)
	}

	return tw.Flush()
}
