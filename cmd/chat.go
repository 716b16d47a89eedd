package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Davincible/assistant-bridge/internal/chat"
	"github.com/Davincible/assistant-bridge/internal/config"
	"github.com/Davincible/assistant-bridge/internal/middleware"
	"github.com/Davincible/assistant-bridge/internal/process"
)

// cliUserID identifies CLI calls when the bridge only accepts JWTs.
const cliUserID = "cli"

var chatCmd = newChatCmd()

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [flags] <message>",
		Short: "Send one chat request through the bridge",
		Long: `Start the bridge service if needed and send a single chat request.
Models starting with the vendor prefix are served by Anthropic, all others by
the OpenAI-compatible backend.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runChat,
	}

	cmd.Flags().StringP("model", "m", "", "model identifier (default from config)")
	cmd.Flags().StringP("system", "s", "", "system prompt")
	cmd.Flags().String("tools", "", "path to a JSON array of tool declarations")
	cmd.Flags().Float64("temperature", -1, "sampling temperature (default from config)")
	cmd.Flags().Int("max-tokens", 0, "maximum tokens to generate (default from config)")
	cmd.Flags().Bool("json", false, "print the raw JSON response")
	cmd.Flags().Duration("timeout", 5*time.Minute, "overall request timeout")

	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	req, err := buildChatRequest(cmd, cfg, strings.Join(args, " "))
	if err != nil {
		return err
	}

	bearer, err := bridgeCredential(cfg)
	if err != nil {
		return err
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	endpoint := endpointURL(cfg.Host, cfg.Port)
	procMgr := process.NewManager(baseDir)

	// Ensure service is running and track if we started it
	serviceStartedByUs, err := procMgr.StartServiceIfNeeded(ctx, endpoint+"/health")
	if err != nil {
		return err
	}

	procMgr.IncrementRef()
	defer func() {
		if remaining := procMgr.DecrementRef(); serviceStartedByUs && remaining == 0 {
			color.Yellow("No more active sessions, stopping auto-started service...")
			if err := procMgr.Stop(); err != nil {
				color.Red("Failed to stop service: %v", err)
			}
		}
	}()

	body, err := sendChat(ctx, http.DefaultClient, endpoint+"/chat", bearer, req)
	if err != nil {
		return err
	}

	if raw, _ := cmd.Flags().GetBool("json"); raw {
		_, err := os.Stdout.Write(append(body, '\n'))
		return err
	}

	var resp chat.Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	printResponse(os.Stdout, &resp)
	return nil
}

func buildChatRequest(cmd *cobra.Command, cfg *config.Config, prompt string) (*chat.Request, error) {
	model, _ := cmd.Flags().GetString("model")
	if model == "" {
		model = cfg.Router.Default
	}

	req := &chat.Request{Model: model}

	if system, _ := cmd.Flags().GetString("system"); system != "" {
		req.Messages = append(req.Messages, chat.Message{Role: chat.RoleSystem, Content: chat.Text(system)})
	}
	req.Messages = append(req.Messages, chat.Message{Role: chat.RoleUser, Content: chat.Text(prompt)})

	if path, _ := cmd.Flags().GetString("tools"); path != "" {
		tools, err := readTools(path)
		if err != nil {
			return nil, err
		}
		req.Tools = tools
	}

	if temperature, _ := cmd.Flags().GetFloat64("temperature"); temperature >= 0 {
		req.Temperature = &temperature
	}
	if maxTokens, _ := cmd.Flags().GetInt("max-tokens"); maxTokens > 0 {
		req.MaxTokens = &maxTokens
	}

	return req, req.Validate()
}

func readTools(path string) ([]chat.Tool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tools file: %w", err)
	}

	var tools []chat.Tool
	if err := json.Unmarshal(data, &tools); err != nil {
		return nil, fmt.Errorf("parse tools file %s: %w", path, err)
	}

	return tools, nil
}

// bridgeCredential picks the bearer the bridge accepts: the static key when
// configured, otherwise a short-lived token signed with the JWT secret.
func bridgeCredential(cfg *config.Config) (string, error) {
	switch {
	case cfg.APIKey != "":
		return cfg.APIKey, nil
	case cfg.SecretKey != "":
		return middleware.IssueUserToken(cliUserID, cfg.SecretKey, map[string]any{
			"exp": time.Now().Add(10 * time.Minute).Unix(),
		})
	default:
		return "", nil
	}
}

// sendChat posts req and returns the response body. Non-200 answers are
// turned into an error carrying the bridge's error type and message.
func sendChat(ctx context.Context, client *http.Client, url, bearer string, req *chat.Request) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errBody middleware.ErrorBody
		if jsonErr := json.Unmarshal(body, &errBody); jsonErr == nil && errBody.Error.Message != "" {
			return nil, fmt.Errorf("bridge returned %d %s: %s", resp.StatusCode, errBody.Error.Type, errBody.Error.Message)
		}
		return nil, errors.New("bridge returned " + resp.Status)
	}

	return body, nil
}

func printResponse(w io.Writer, resp *chat.Response) {
	for _, choice := range resp.Choices {
		if choice.Message.Content != nil {
			fmt.Fprintln(w, *choice.Message.Content)
		}
		for _, call := range choice.Message.ToolCalls {
			color.New(color.FgYellow).Fprintf(w, "tool call %s: %s(%s)\n", call.ID, call.Function.Name, call.Function.Arguments)
		}
		color.New(color.FgHiBlack).Fprintf(w, "[%s, finish_reason=%s, tokens=%d/%d]\n",
			resp.Model, choice.FinishReason, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
}
