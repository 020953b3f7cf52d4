package main

import (
	"time"

	"github.com/aw4Motion/CANopen4Drives/master"
	"github.com/spf13/cobra"
)

var tickInterval time.Duration

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the master's poll loop: boot every configured node, then cycle SYNC/PDO",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		stack, err := loadMasterStack(log)
		if err != nil {
			return err
		}
		defer stack.bus.Close()

		log.Info("master started", "interface", stack.cfg.Bus.Interface, "nodes", len(stack.registry.All()))

		pdoConfigured := make(map[uint8]bool, len(stack.registry.All()))

		// SYNC is only emitted while the sync master is operational.
		stack.sync.SetOperational(true)

		start := time.Now()
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for range ticker.C {
			now := time.Since(start).Milliseconds()
			stack.router.Poll(now)
			syncState := stack.sync.Update(now)
			stack.registry.UpdateAll(now, syncState)

			// PDO configuration is an SDO write sequence and must run
			// after a node has booted into Pre-Operational, spec
			// §4.3's "Performed after reaching PreOp" ordering — never
			// before discovery/boot, which the tick loop above drives.
			for _, node := range stack.registry.All() {
				if pdoConfigured[node.NodeID] || node.Supervisor.NMTState() == master.NMTStateUnknown || node.Supervisor.NMTState() == master.NMTStateBooting {
					continue
				}
				if state := node.PDO.ConfigurePresetPDOs(now); state.Terminal() {
					pdoConfigured[node.NodeID] = true
					if state != master.Done {
						log.Warn("PDO preconfiguration failed, continuing without it", "node", node.NodeID, "state", state)
					}
				}
			}
		}
		return nil
	},
}

func init() {
	runCmd.Flags().DurationVar(&tickInterval, "tick", 5*time.Millisecond, "poll loop tick interval")
	rootCmd.AddCommand(runCmd)
}
