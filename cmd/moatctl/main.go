package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	clicfg "github.com/keysplatform/moat/internal/config"
)

const version = "0.1.0"

var serverURL string

func main() {
	rootCmd := &cobra.Command{
		Use:   "moatctl",
		Short: "Moat CLI - interact with your moat server",
		Long: `moatctl is a command-line interface for the moat analytics service.
All output is structured JSON (pipe through jq for human-readable formatting).`,
		Version: version,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", getDefaultServer(), "Moat server URL")

	// Add subcommands
	rootCmd.AddCommand(newLoginCommand())
	rootCmd.AddCommand(newFailureCommand())
	rootCmd.AddCommand(newSuccessCommand())
	rootCmd.AddCommand(newRulesCommand())
	rootCmd.AddCommand(newCheckCommand())
	rootCmd.AddCommand(newSafetyCommand())
	rootCmd.AddCommand(newScoreCommand())
	rootCmd.AddCommand(newLogsCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getDefaultServer() string {
	if server := os.Getenv("MOAT_SERVER"); server != "" {
		return server
	}
	return "http://localhost:8080"
}

// --- HTTP client ---

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func newClient() *Client {
	c := &Client{
		BaseURL: serverURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
	if cfg, err := clicfg.Default(); err == nil {
		c.Token = cfg.LoadToken()
	}
	return c
}

func (c *Client) do(method, path string, params url.Values, data any) ([]byte, error) {
	u := fmt.Sprintf("%s%s", c.BaseURL, path)
	if params != nil {
		u += "?" + params.Encode()
	}

	var body io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal data: %w", err)
		}
		body = strings.NewReader(string(jsonData))
	}

	req, err := http.NewRequest(method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if apiKey := os.Getenv("MOAT_API_KEY"); apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("server error (%d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

func (c *Client) get(path string, params url.Values) ([]byte, error) {
	return c.do("GET", path, params, nil)
}

func (c *Client) post(path string, data any) ([]byte, error) {
	return c.do("POST", path, nil, data)
}

func (c *Client) patch(path string) ([]byte, error) {
	return c.do("PATCH", path, nil, nil)
}

// outputJSON prints raw JSON data. All commands use this as the primary output path.
func outputJSON(data []byte) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		fmt.Println(string(data))
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// readOutputArg resolves the scanned artifact: a file path when --file is
// set, stdin with "-", otherwise the literal argument.
func readOutputArg(args []string, file string) (string, error) {
	if file == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", file, err)
		}
		return string(data), nil
	}
	if len(args) == 0 {
		return "", fmt.Errorf("output argument or --file is required")
	}
	return args[0], nil
}

// --- Login ---

func newLoginCommand() *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:     "login",
		Short:   "Authenticate and cache a token",
		Example: `  moatctl login --username=admin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := clicfg.GetPassword()
			if err != nil {
				return err
			}

			client := newClient()
			data, err := client.post("/api/v1/auth/login", map[string]string{
				"username": username,
				"password": password,
			})
			if err != nil {
				return err
			}

			var resp struct {
				Token string `json:"token"`
			}
			if err := json.Unmarshal(data, &resp); err != nil {
				return fmt.Errorf("unexpected login response: %w", err)
			}

			cfg, err := clicfg.Default()
			if err != nil {
				return err
			}
			if err := cfg.SaveToken(resp.Token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			fmt.Println(`{"status":"logged in"}`)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "admin", "Username")
	return cmd
}

// --- Failure patterns ---

func newFailureCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "failure",
		Short: "Record and resolve failure patterns",
	}
	cmd.AddCommand(newFailureRecordCommand())
	cmd.AddCommand(newFailureResolveCommand())
	return cmd
}

func newFailureRecordCommand() *cobra.Command {
	var (
		category    string
		description string
		reason      string
		output      string
		detectedIn  string
		severity    string
	)
	cmd := &cobra.Command{
		Use:     "record",
		Short:   "Record a failure pattern",
		Example: `  moatctl failure record --category=security --description="SQL concat in handler" --reason="string interpolation"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"pattern_type":        category,
				"pattern_description": description,
				"failure_reason":      reason,
			}
			if output != "" {
				body["original_output"] = output
			}
			if detectedIn != "" {
				body["detected_in"] = detectedIn
			}
			if severity != "" {
				body["severity"] = severity
			}

			data, err := newClient().post("/api/v1/patterns/failures", body)
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "Pattern category (required)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "What went wrong (required)")
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Why it was rejected (required)")
	cmd.Flags().StringVar(&output, "output", "", "The offending output")
	cmd.Flags().StringVar(&detectedIn, "detected-in", "", "Where it was detected")
	cmd.Flags().StringVar(&severity, "severity", "", "low, medium, high, or critical")
	return cmd
}

func newFailureResolveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "resolve <pattern-id>",
		Short:   "Mark a failure pattern as resolved",
		Args:    cobra.ExactArgs(1),
		Example: `  moatctl failure resolve fp-1234`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := newClient().patch("/api/v1/patterns/failures/" + args[0] + "/resolve")
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}
	return cmd
}

// --- Success patterns ---

func newSuccessCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "success",
		Short: "Record and list success patterns",
	}
	cmd.AddCommand(newSuccessRecordCommand())
	cmd.AddCommand(newSuccessListCommand())
	return cmd
}

func newSuccessRecordCommand() *cobra.Command {
	var (
		category    string
		description string
		contextDesc string
		outcome     string
		factors     []string
	)
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a success pattern",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"pattern_type":        category,
				"pattern_description": description,
				"context":             contextDesc,
				"outcome":             outcome,
				"success_factors":     factors,
			}
			data, err := newClient().post("/api/v1/patterns/successes", body)
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "Pattern category (required)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "What worked (required)")
	cmd.Flags().StringVar(&contextDesc, "context", "", "Where it was applied")
	cmd.Flags().StringVar(&outcome, "outcome", "", "What happened")
	cmd.Flags().StringSliceVar(&factors, "factor", nil, "Success factor (repeatable)")
	return cmd
}

func newSuccessListCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List top success patterns",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			if limit > 0 {
				params.Set("limit", fmt.Sprintf("%d", limit))
			}
			data, err := newClient().get("/api/v1/patterns/successes", params)
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum patterns to return")
	return cmd
}

// --- Prevention rules ---

func newRulesCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Show derived prevention rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			if limit > 0 {
				params.Set("limit", fmt.Sprintf("%d", limit))
			}
			data, err := newClient().get("/api/v1/patterns/prevention-rules", params)
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum rules to return")
	return cmd
}

// --- Pattern check ---

func newCheckCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:     "check [output]",
		Short:   "Check an output against known failure patterns",
		Example: `  moatctl check --file=handler.go
  cat handler.go | moatctl check --file=-`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output, err := readOutputArg(args, file)
			if err != nil {
				return err
			}
			data, err := newClient().post("/api/v1/patterns/check", map[string]any{"output": output})
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read output from file (- for stdin)")
	return cmd
}

// --- Safety scan ---

func newSafetyCommand() *cobra.Command {
	var (
		file       string
		outputType string
	)
	cmd := &cobra.Command{
		Use:     "safety [output]",
		Short:   "Run the safety scanner over an output",
		Example: `  moatctl safety --file=migration.sql --type=sql`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output, err := readOutputArg(args, file)
			if err != nil {
				return err
			}
			data, err := newClient().post("/api/v1/safety/check", map[string]any{
				"output":      output,
				"output_type": outputType,
			})
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read output from file (- for stdin)")
	cmd.Flags().StringVarP(&outputType, "type", "t", "", "Output type hint (e.g. sql, health_record)")
	return cmd
}

// --- Moat scores ---

func newScoreCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Show moat analytics for the authenticated owner",
	}

	for name, path := range map[string]string{
		"lock-in":        "/api/v1/moat/lock-in",
		"churn":          "/api/v1/moat/churn",
		"infrastructure": "/api/v1/moat/infrastructure",
		"memory-value":   "/api/v1/moat/memory-value",
	} {
		endpoint := path
		cmd.AddCommand(&cobra.Command{
			Use:   name,
			Short: "Show the " + name + " score",
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := newClient().get(endpoint, nil)
				if err != nil {
					return err
				}
				outputJSON(data)
				return nil
			},
		})
	}

	return cmd
}

// --- Logs ---

func newLogsCommand() *cobra.Command {
	var (
		level  string
		source string
		owner  string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Query service logs (admin only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			if level != "" {
				params.Set("level", level)
			}
			if source != "" {
				params.Set("source", source)
			}
			if owner != "" {
				params.Set("owner_id", owner)
			}
			if limit > 0 {
				params.Set("limit", fmt.Sprintf("%d", limit))
			}
			data, err := newClient().get("/api/v1/logs", params)
			if err != nil {
				return err
			}
			outputJSON(data)
			return nil
		},
	}
	cmd.Flags().StringVar(&level, "level", "", "Filter by level")
	cmd.Flags().StringVar(&source, "source", "", "Filter by source")
	cmd.Flags().StringVar(&owner, "owner", "", "Filter by owner ID")
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "Maximum entries")
	return cmd
}
