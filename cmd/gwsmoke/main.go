// Command gwsmoke connects to a running gateway, identifies, and optionally
// posts a message through the REST glue and waits for its MESSAGE_CREATE.
package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/legacy-gateway/internal/proto"
)

type options struct {
	gateway string
	api     string
	token   string
	release string
	channel string
	text    string
	timeout time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:          "gwsmoke",
		Short:        "Smoke-test a legacy gateway",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			return run(ctx, cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.gateway, "gateway", "ws://localhost:8080/gateway?v=6&encoding=json", "gateway WebSocket URL")
	flags.StringVar(&opts.api, "api", "http://localhost:8080", "REST base URL")
	flags.StringVar(&opts.token, "token", "", "account token (required)")
	flags.StringVar(&opts.release, "release", "october_5_2017", "client release sent as the release_date cookie")
	flags.StringVar(&opts.channel, "channel", "", "channel to post a test message to")
	flags.StringVar(&opts.text, "text", "hello from gwsmoke", "message text to send")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Second, "total timeout for the run")
	_ = cmd.MarkFlagRequired("token")

	return cmd
}

type frame struct {
	Op proto.Op        `json:"op"`
	T  *string         `json:"t"`
	S  *int64          `json:"s"`
	D  json.RawMessage `json:"d"`
}

func run(ctx context.Context, cmd *cobra.Command, opts options) error {
	out := cmd.OutOrStdout()

	header := http.Header{}
	header.Set("Cookie", "release_date="+url.QueryEscape(opts.release))
	conn, _, err := websocket.Dial(ctx, opts.gateway, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	read := func() (frame, error) {
		var f frame
		_, data, err := conn.Read(ctx)
		if err != nil {
			return f, fmt.Errorf("read: %w", err)
		}
		if err := json.Unmarshal(data, &f); err != nil {
			return f, fmt.Errorf("decode frame: %w", err)
		}
		return f, nil
	}
	send := func(op proto.Op, d any) error {
		data, err := json.Marshal(map[string]any{"op": op, "d": d})
		if err != nil {
			return err
		}
		return conn.Write(ctx, websocket.MessageText, data)
	}

	hello, err := read()
	if err != nil {
		return err
	}
	if hello.Op != proto.OpHello {
		return fmt.Errorf("expected hello, got op %d", hello.Op)
	}
	fmt.Fprintf(out, "hello: %s\n", hello.D)

	if err := send(proto.OpIdentify, proto.IdentifyData{Token: opts.token}); err != nil {
		return fmt.Errorf("identify: %w", err)
	}
	ready, err := read()
	if err != nil {
		return err
	}
	if ready.T == nil || *ready.T != proto.EventReady {
		return fmt.Errorf("expected READY, got op %d", ready.Op)
	}
	var readyData struct {
		SessionID string `json:"session_id"`
		User      struct {
			Username string `json:"username"`
		} `json:"user"`
		Guilds []json.RawMessage `json:"guilds"`
	}
	if err := json.Unmarshal(ready.D, &readyData); err != nil {
		return fmt.Errorf("decode READY: %w", err)
	}
	fmt.Fprintf(out, "ready: session=%s user=%s guilds=%d\n", readyData.SessionID, readyData.User.Username, len(readyData.Guilds))

	if err := send(proto.OpHeartbeat, 1); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}

	if opts.channel != "" {
		if err := postMessage(ctx, opts); err != nil {
			return err
		}
	}

	for {
		f, err := read()
		if err != nil {
			return err
		}
		switch {
		case f.Op == proto.OpHeartbeatAck:
			fmt.Fprintln(out, "heartbeat acknowledged")
			if opts.channel == "" {
				return nil
			}
		case f.T != nil && *f.T == proto.EventMessageCreate:
			var msg proto.Message
			if err := json.Unmarshal(f.D, &msg); err != nil {
				return fmt.Errorf("decode message: %w", err)
			}
			fmt.Fprintf(out, "message: s=%d channel=%s author=%s content=%q\n", *f.S, msg.ChannelID, msg.Author.Username, msg.Content)
			if msg.ChannelID == opts.channel && msg.Content == opts.text {
				return nil
			}
		case f.T != nil:
			fmt.Fprintf(out, "dispatch: %s\n", *f.T)
		}
	}
}

func postMessage(ctx context.Context, opts options) error {
	body, err := json.Marshal(map[string]string{"content": opts.text})
	if err != nil {
		return err
	}
	endpoint := strings.TrimRight(opts.api, "/") + "/api/channels/" + url.PathEscape(opts.channel) + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", opts.token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("post message: unexpected status %s", resp.Status)
	}
	return nil
}
