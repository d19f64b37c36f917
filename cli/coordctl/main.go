// Command coordctl talks to a running coordinator over HTTP and websocket.
package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/mcpeeps/coordinator/internal/domain"
)

type app struct {
	server string
	http   *resty.Client
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "coordctl",
		Short:        "Command-line client for the coordinator",
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			a.server = strings.TrimSuffix(a.server, "/")
			a.http = resty.New().SetBaseURL(a.server).SetTimeout(30 * time.Second)
		},
	}
	root.PersistentFlags().StringVarP(&a.server, "server", "s", "http://localhost:8000", "coordinator base URL")

	root.AddCommand(
		a.triggerCmd(),
		a.cancelCmd(),
		a.statusCmd(),
		a.messagesCmd(),
		a.agentsCmd(),
		a.watchCmd(),
	)
	return root
}

func (a *app) triggerCmd() *cobra.Command {
	var contextID string
	var watch bool
	cmd := &cobra.Command{
		Use:   "trigger <message>",
		Short: "Start a conversation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out domain.TriggerResponse
			if err := a.post("/trigger", domain.TriggerRequest{
				Message:   strings.Join(args, " "),
				ContextID: contextID,
			}, &out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d agents): %s\n", out.ContextID, out.Agents, out.Message)
			if watch {
				return a.watch(cmd, out.ContextID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&contextID, "context", "", "reuse an existing context id")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "stream events until the conversation finishes")
	return cmd
}

func (a *app) cancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <context-id>",
		Short: "Cancel a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out domain.CancelResponse
			if err := a.post("/cancel", domain.CancelRequest{ContextID: args[0], Reason: reason}, &out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", out.Status, out.Message)
			for _, r := range out.TaskCancellations {
				line := fmt.Sprintf("  %s %s %s", r.TaskID, r.Agent, r.Status)
				if r.Error != "" {
					line += " (" + r.Error + ")"
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason forwarded to the agents")
	return cmd
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <context-id>",
		Short: "Show conversation status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out json.RawMessage
			if err := a.get("/conversation-status", map[string]string{"context_id": args[0]}, &out); err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
}

func (a *app) messagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "messages <context-id>",
		Short: "Print the conversation transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Messages []domain.MessageView `json:"messages"`
			}
			if err := a.get("/messages", map[string]string{"context_id": args[0]}, &out); err != nil {
				return err
			}
			for _, m := range out.Messages {
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", m.Status, m.AgentName, m.Text)
			}
			return nil
		},
	}
}

func (a *app) agentsCmd() *cobra.Command {
	var health bool
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List the agent directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out struct {
				Agents []domain.AgentView `json:"agents"`
			}
			params := map[string]string{}
			if health {
				params["health"] = "true"
			}
			if err := a.get("/agents", params, &out); err != nil {
				return err
			}
			for _, ag := range out.Agents {
				line := fmt.Sprintf("%s %s %s", ag.Emoji, ag.Name, ag.URL)
				if ag.Healthy != nil {
					line += fmt.Sprintf(" healthy=%t", *ag.Healthy)
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(line))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&health, "health", false, "probe each agent's /health endpoint")
	return cmd
}

func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <context-id>",
		Short: "Stream live events until the conversation finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.watch(cmd, args[0])
		},
	}
}

func (a *app) watch(cmd *cobra.Command, contextID string) error {
	u, err := url.Parse(a.server)
	if err != nil {
		return fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	u.RawQuery = url.Values{"context_id": {contextID}}.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)
	go func() {
		<-interrupt
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}()

	out := cmd.OutOrStdout()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var ev domain.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			fmt.Fprintf(out, "? %s\n", data)
			continue
		}
		switch ev.Type {
		case domain.EventTypeMessage:
			if ev.Message == nil {
				continue
			}
			name := ev.Message.Metadata.AgentName
			text := ev.Message.Metadata.RawText
			if text == "" {
				text = ev.Message.Text
			}
			fmt.Fprintf(out, "%s: %s\n", name, text)
		case domain.EventTypeStatus:
			fmt.Fprintf(out, "-- %s (round %d)\n", ev.Status, ev.Round)
			if ev.Status.IsFinal() {
				return nil
			}
		}
	}
}

func (a *app) post(path string, body, out interface{}) error {
	resp, err := a.http.R().SetBody(body).SetResult(out).Post(path)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	return checkResponse(resp)
}

func (a *app) get(path string, params map[string]string, out interface{}) error {
	resp, err := a.http.R().SetQueryParams(params).SetResult(out).Get(path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	return checkResponse(resp)
}

func checkResponse(resp *resty.Response) error {
	if resp.IsError() {
		return fmt.Errorf("%s: %s", resp.Status(), strings.TrimSpace(resp.String()))
	}
	return nil
}

func printJSON(cmd *cobra.Command, raw json.RawMessage) error {
	formatted, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(formatted))
	return nil
}
