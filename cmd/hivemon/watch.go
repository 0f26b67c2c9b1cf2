package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hivelabs/hivemon/pkg/client"
	"github.com/hivelabs/hivemon/pkg/event"
	"github.com/hivelabs/hivemon/pkg/log"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a Hivemon event stream from the terminal",
	Long: `Connect to a running Hivemon server and print node status changes as
they arrive. Reconnects automatically with the same state machine the
browser dashboard uses.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		maxRetries, _ := cmd.Flags().GetInt("max-retries")
		heartbeat, _ := cmd.Flags().GetDuration("heartbeat-interval")

		log.Init(log.Config{Level: log.WarnLevel})

		failed := make(chan struct{})
		consumer := client.New(client.Config{
			URL:               url,
			MaxRetries:        maxRetries,
			HeartbeatInterval: heartbeat,
		}, func(ev event.Event) {
			switch e := ev.(type) {
			case event.StatusChange:
				fmt.Printf("%s  node %-20s %s\n", time.Now().Format(time.RFC3339), e.Node, e.Summary.Status)
			case event.StreamError:
				fmt.Printf("%s  upstream error: %s\n", time.Now().Format(time.RFC3339), e.Message)
			case event.Heartbeat:
				// Heartbeats arrive as comments and are not dispatched;
				// nothing to print either way.
			}
		}, func(state client.State) {
			fmt.Printf("%s  [%s]\n", time.Now().Format(time.RFC3339), state)
			if state == client.StateFailed {
				close(failed)
			}
		})

		fmt.Printf("Watching %s (Ctrl-C to stop)\n", url)
		consumer.Connect()
		defer consumer.Disconnect()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-sigCh:
			return nil
		case <-failed:
			return fmt.Errorf("connection failed after %d retries", maxRetries)
		}
	},
}

func init() {
	watchCmd.Flags().String("url", "http://localhost:8090/api/events", "Event stream URL")
	watchCmd.Flags().Int("max-retries", 5, "Reconnect attempts before giving up")
	watchCmd.Flags().Duration("heartbeat-interval", 5*time.Second, "Expected server heartbeat interval")
}
