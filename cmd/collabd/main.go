// Command collabd serves a real-time collaborative text room service:
// REST bootstrap endpoints, a persistent per-session WebSocket, and the
// per-room CRDT event log and compaction protocol behind them.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "collabd",
		Short: "real-time collaborative text room server",
	}
	root.AddCommand(newServeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
