package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	httpserver "github.com/fyrsmithlabs/contractd/internal/http"
)

var statusJSON bool

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the raw status response")
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(statusCmd)
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check contractd server health",
	Long: `Check the health status of the contractd HTTP server.

Examples:
  # Check health
  ctr health

  # Check health on a different server
  ctr health --server http://localhost:8080`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

// statusCmd shows backing services and store counts
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show contractd service status",
	Long: `Show the status of the services behind a contractd server and the
counts held in its local store.

Examples:
  ctr status
  ctr status --json --token $CONTRACTD_TOKEN`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

// getJSON fetches path from the server into v.
func getJSON(path string, timeout time.Duration, v any) error {
	url := strings.TrimRight(serverURL, "/") + path

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+apiToken)
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// runHealth handles the health command
func runHealth(cmd *cobra.Command, _ []string) error {
	var health httpserver.HealthResponse
	if err := getJSON("/health", 5*time.Second, &health); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Server Status: %s\n", health.Status)
	fmt.Fprintf(out, "Server URL: %s\n", serverURL)
	return nil
}

// runStatus handles the status command
func runStatus(cmd *cobra.Command, _ []string) error {
	var status httpserver.StatusResponse
	if err := getJSON("/api/v1/status", 10*time.Second, &status); err != nil {
		return err
	}
	if statusJSON {
		return printJSON(cmd.OutOrStdout(), status)
	}
	fmt.Fprintln(cmd.OutOrStdout(), formatStatus(&status))
	return nil
}

// formatStatus renders a one-line summary:
//
//	ok │ store:ok events:disabled │ 12 ingestions │ 9 analyses (1 fallback)
func formatStatus(status *httpserver.StatusResponse) string {
	parts := []string{statusLabel(status)}

	names := make([]string, 0, len(status.Services))
	for name := range status.Services {
		if name == "supabase" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	services := make([]string, 0, len(names))
	for _, name := range names {
		services = append(services, name+":"+status.Services[name])
	}
	if len(services) > 0 {
		parts = append(parts, strings.Join(services, " "))
	}

	if c := status.Counts; c != nil {
		parts = append(parts, fmt.Sprintf("%d ingestions", c.Ingestions))
		analyses := fmt.Sprintf("%d analyses", c.Analyses)
		if c.Fallbacks > 0 {
			analyses += fmt.Sprintf(" (%d fallback)", c.Fallbacks)
		}
		parts = append(parts, analyses)
	} else {
		parts = append(parts, "counts unavailable")
	}

	return strings.Join(parts, " │ ")
}

func statusLabel(status *httpserver.StatusResponse) string {
	switch status.Status {
	case "ok":
		return "\033[32mok\033[0m"
	case "degraded":
		return "\033[33mdegraded\033[0m"
	default:
		return "\033[31m" + status.Status + "\033[0m"
	}
}
