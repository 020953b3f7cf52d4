package main

import (
	"fmt"
	"time"

	"github.com/aw4Motion/CANopen4Drives/master"
	"github.com/spf13/cobra"
)

var discoverTimeout time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Boot every configured node and print when each reaches Pre-Operational",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		stack, err := loadMasterStack(log)
		if err != nil {
			return err
		}
		defer stack.bus.Close()

		seen := make(map[uint8]bool)
		start := time.Now()
		deadline := start.Add(discoverTimeout)
		for time.Now().Before(deadline) && len(seen) < len(stack.registry.All()) {
			now := time.Since(start).Milliseconds()
			stack.router.Poll(now)
			stack.registry.UpdateAll(now, master.SyncIdle)
			for _, node := range stack.registry.All() {
				if seen[node.NodeID] {
					continue
				}
				if node.Supervisor.NMTState() != master.NMTStateUnknown && node.Supervisor.NMTState() != master.NMTStateBooting {
					seen[node.NodeID] = true
					fmt.Printf("node %d: %s (live=%v)\n", node.NodeID, node.Supervisor.NMTState(), node.Supervisor.IsLive())
				}
			}
			time.Sleep(time.Millisecond)
		}
		for _, node := range stack.registry.All() {
			if !seen[node.NodeID] {
				fmt.Printf("node %d: no response within %s\n", node.NodeID, discoverTimeout)
			}
		}
		return nil
	},
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", 10*time.Second, "how long to wait for all nodes to boot")
	rootCmd.AddCommand(discoverCmd)
}
