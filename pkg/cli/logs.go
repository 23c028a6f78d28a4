package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/getmockd/snsd/pkg/cli/internal/output"
	"github.com/getmockd/snsd/pkg/requestlog"
)

// logsTimeout bounds the request made by the logs command.
const logsTimeout = 10 * time.Second

var (
	logsURL string
	logsID  string
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View the request log of a running snsd server",
	Example: `  # Show recent entries
  snsd logs

  # A single entry
  snsd logs --id 0b5d5f3e-2f0a-4c8e-9a57-7d1c9a3c1e21

  # From another host, as JSON
  snsd logs --url https://hooks.example.com/amazon-sns --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), logsTimeout)
		defer cancel()

		entries, err := fetchLogs(ctx, http.DefaultClient, logsURL)
		if err != nil {
			return err
		}
		if logsID != "" {
			entries = filterByID(entries, logsID)
			if len(entries) == 0 {
				return fmt.Errorf("no entry with id %s (it may have been evicted)", logsID)
			}
		}
		if jsonOutput {
			return output.JSON(cmd.OutOrStdout(), entries)
		}
		return printLogs(cmd.OutOrStdout(), entries)
	},
}

func init() {
	logsCmd.Flags().StringVar(&logsURL, "url", "http://localhost:3000", "Base URL of the snsd server")
	logsCmd.Flags().StringVar(&logsID, "id", "", "Show only the entry with this ID")
}

// filterByID keeps the entries whose ID equals id.
func filterByID(entries []*requestlog.Entry, id string) []*requestlog.Entry {
	var out []*requestlog.Entry
	for _, e := range entries {
		if e.ID == id {
			out = append(out, e)
		}
	}
	return out
}

// fetchLogs GETs the log from a running server.
func fetchLogs(ctx context.Context, client *http.Client, url string) ([]*requestlog.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to snsd at %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	var entries []*requestlog.Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode log: %w", err)
	}
	return entries, nil
}

// printLogs writes entries as a table, oldest first.
func printLogs(w io.Writer, entries []*requestlog.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No entries")
		return err
	}

	tw := output.Table(w)
	_, _ = fmt.Fprintln(tw, "TIME\tKIND\tMETHOD/STATUS\tURL\tLENGTH\tERROR")
	for _, e := range entries {
		what := e.Method
		if e.Kind == requestlog.KindResponse && e.Status != 0 {
			what = strconv.Itoa(e.Status)
		}
		length := "-"
		if e.Length != nil {
			length = strconv.Itoa(*e.Length)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Format(time.TimeOnly),
			e.Kind,
			dash(what),
			dash(e.URL),
			length,
			dash(e.Error),
		)
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
