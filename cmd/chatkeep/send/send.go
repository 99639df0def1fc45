package sendcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatkeep/pkg/llm"
)

const sendLongDesc string = `Send a message to a running chatkeep server.

POSTs the message to the server's /chat endpoint and prints the reply.
The server stores both turns in its own conversation.

Examples:
  chatkeep send http://localhost:8080 "Explain GenAI"
  chatkeep send --timeout 2m http://192.168.1.42:8080 "and in one sentence?"`

const sendShortDesc string = "Send a message to a chatkeep server"

type sendCommander struct {
	timeout time.Duration
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

func NewSendCmd() *cobra.Command {
	cmder := &sendCommander{}

	cmd := &cobra.Command{
		Use:   "send <server-url> <message...>",
		Short: sendShortDesc,
		Long:  sendLongDesc,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args[0], strings.Join(args[1:], " "))
		},
	}

	cmd.Flags().DurationVar(&cmder.timeout, "timeout", 5*time.Minute, "How long to wait for the reply")

	return cmd
}

func (c *sendCommander) run(ctx context.Context, cmd *cobra.Command, serverURL, message string) error {
	serverURL = strings.TrimRight(serverURL, "/")

	reply, err := c.post(ctx, serverURL, message)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), reply)
	return nil
}

func (c *sendCommander) post(ctx context.Context, serverURL, message string) (string, error) {
	body, err := json.Marshal(chatRequest{Message: message})
	if err != nil {
		return "", fmt.Errorf("could not marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		var apiErr llm.ErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return "", fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return "", fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("could not decode response: %w", err)
	}

	return result.Reply, nil
}
