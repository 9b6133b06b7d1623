// scripts/flowise_integration_check.go
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mwiater/flowpipe/internal/appconfig"
	"github.com/mwiater/flowpipe/internal/pipe"
	"github.com/mwiater/flowpipe/internal/providers"
	"github.com/mwiater/flowpipe/internal/providers/flowise"
)

func main() {
	configPath := flag.String("config", appconfig.DefaultConfigPath, "Path to config JSON")
	baseURL := flag.String("url", "", "Override Flowise base URL")
	workflow := flag.String("workflow", "", "Workflow id for the prediction check (default: first discovered)")
	question := flag.String("question", "ping", "Question sent by the prediction check")
	timeout := flag.Duration("timeout", 30*time.Second, "HTTP timeout")
	flag.Parse()

	cfg, err := appconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if *baseURL != "" {
		cfg.FlowiseURL = *baseURL
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: *timeout}
	fmt.Printf("Target host: %s\n\n", cfg.BaseURL())

	if err := dumpChatflows(client, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "chatflows dump failed: %v\n", err)
	}

	provider := flowise.New(&cfg)
	defer provider.Close()

	id, err := checkWorkflows(provider, *workflow)
	if err != nil {
		fmt.Fprintf(os.Stderr, "workflow check failed: %s\n", pipe.ErrorMessage(err))
		os.Exit(1)
	}

	if err := checkStream(client, cfg, id, *question); err != nil {
		fmt.Fprintf(os.Stderr, "stream check failed: %v\n", err)
	}
}

func dumpChatflows(client *http.Client, cfg appconfig.Config) error {
	fmt.Println("== /api/v1/chatflows ==")
	req, err := http.NewRequest(http.MethodGet, cfg.BaseURL()+"/api/v1/chatflows", nil)
	if err != nil {
		return err
	}
	authorize(req, cfg)
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	fmt.Printf("Status: %s\n", resp.Status)
	fmt.Println("Raw:")
	fmt.Println(indentJSON(body))
	fmt.Println()
	return nil
}

func checkWorkflows(provider *flowise.Provider, want string) (string, error) {
	fmt.Println("== parsed workflows ==")
	workflows, err := provider.ListWorkflows(context.Background())
	if err != nil {
		return "", err
	}
	fmt.Printf("Parsed workflows: %d\n", len(workflows))
	for _, wf := range workflows {
		fmt.Printf("  - %s  %s (type=%s category=%s)\n", wf.ID, pipe.DisplayName(wf), wf.Type, wf.Category)
	}
	fmt.Println()

	if want != "" {
		return want, nil
	}
	if len(workflows) == 0 {
		return "", &providers.InvalidInputError{Reason: "no workflows to check"}
	}
	return workflows[0].ID, nil
}

// checkStream posts a streaming prediction and prints every decoded event.
func checkStream(client *http.Client, cfg appconfig.Config, workflowID, question string) error {
	fmt.Printf("== /api/v1/prediction/%s (streaming) ==\n", workflowID)
	payload := providers.PredictionRequest{
		Question:       question,
		OverrideConfig: providers.OverrideConfig{SessionID: pipe.SessionID("flowise-integration-check")},
		Streaming:      true,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), client.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL()+"/api/v1/prediction/"+workflowID, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	authorize(req, cfg)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	fmt.Printf("Status: %s\nContent-Type: %s\n", resp.Status, resp.Header.Get("Content-Type"))

	var answer strings.Builder
	events := flowise.Events(flowise.Lines(resp.Body), func(me *providers.MalformedEventError) {
		fmt.Printf("  malformed: %v\n", me)
	})
	for ev, err := range events {
		if err != nil {
			return err
		}
		fmt.Printf("  %-8s %q\n", ev.Kind, ev.Text)
		if ev.Kind == flowise.EventToken || ev.Kind == flowise.EventText {
			answer.WriteString(ev.Text)
		}
	}
	fmt.Printf("\nAnswer: %s\n", answer.String())
	return nil
}

func authorize(req *http.Request, cfg appconfig.Config) {
	if key := strings.TrimSpace(cfg.FlowiseAPIKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
}

func indentJSON(body []byte) string {
	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "  "); err != nil {
		return string(body)
	}
	return out.String()
}
