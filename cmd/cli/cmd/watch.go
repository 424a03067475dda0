package cmd

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/openpreview/openpreview/pkg/client"
	"github.com/openpreview/openpreview/pkg/types"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <thread-id>",
	Short: "Watch a thread's live stream",
	Long: `Watch a thread's live stream: status transitions, auto-deploy countdowns,
and file changes as the agent works. Interrupt with Ctrl-C.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkAPIKey(); err != nil {
			return err
		}

		threadID := args[0]
		c := client.NewClient(baseURL, apiKey)

		header := http.Header{}
		header.Set("X-API-Key", apiKey)
		conn, _, err := websocket.DefaultDialer.Dial(c.StreamURL(threadID, ""), header)
		if err != nil {
			return fmt.Errorf("failed to connect to stream: %w", err)
		}
		defer conn.Close()

		fmt.Printf("Watching thread %s (Ctrl-C to stop)\n", threadID)

		done := make(chan error, 1)
		go func() {
			var lastState types.DeployState
			for {
				var msg types.StreamMessage
				if err := conn.ReadJSON(&msg); err != nil {
					done <- err
					return
				}
				printStreamMessage(&msg, &lastState)
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-done:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("stream closed: %w", err)
		case <-quit:
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return nil
		}
	},
}

func printStreamMessage(msg *types.StreamMessage, lastState *types.DeployState) {
	now := time.Now().Format("15:04:05")
	switch msg.Type {
	case "status":
		if msg.Status == nil {
			return
		}
		if msg.Status.State != *lastState {
			*lastState = msg.Status.State
			line := fmt.Sprintf("[%s] state=%s files=%d changes=%d",
				now, msg.Status.State, msg.Status.FileCount, msg.Status.ChangeCount)
			if msg.Status.CountdownMs > 0 {
				line += fmt.Sprintf(" deploy-in=%s",
					(time.Duration(msg.Status.CountdownMs) * time.Millisecond).Round(time.Second))
			}
			if msg.Status.Record != nil && msg.Status.State == types.DeployStateReady {
				line += " url=" + msg.Status.Record.URL
			}
			fmt.Println(line)
		}
	case "change":
		if msg.Change == nil {
			return
		}
		fmt.Printf("[%s] %s %s\n", now, msg.Change.Kind, msg.Change.Path)
	case "error":
		fmt.Printf("[%s] error: %s\n", now, msg.Error)
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
