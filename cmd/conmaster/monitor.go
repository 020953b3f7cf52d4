package main

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/aw4Motion/CANopen4Drives/master"
	"github.com/aw4Motion/CANopen4Drives/tui"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live dashboard of node state, liveness and EMCY history",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		stack, err := loadMasterStack(log)
		if err != nil {
			return err
		}
		defer stack.bus.Close()

		start := time.Now()
		drive := func() tui.Snapshot {
			now := time.Since(start).Milliseconds()
			stack.router.Poll(now)
			syncState := stack.sync.Update(now)
			stack.registry.UpdateAll(now, syncState)
			return snapshotOf(stack, now)
		}

		model := tui.NewModel(drive)
		program := tea.NewProgram(model)
		_, err = program.Run()
		return err
	},
}

func snapshotOf(stack *masterStack, now int64) tui.Snapshot {
	nodes := stack.registry.All()
	rows := make([]tui.NodeRow, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, tui.NodeRow{
			NodeID:        n.NodeID,
			State:         n.Supervisor.NMTState().String(),
			Live:          n.Supervisor.IsLive(),
			ErrorRegister: n.Supervisor.ErrorRegister(),
			RecentEMCY:    emcyStrings(n.Supervisor.EMCYHistory()),
		})
	}
	return tui.Snapshot{NowMs: now, Interface: stack.cfg.Bus.Interface, Nodes: rows}
}

func emcyStrings(history []master.EMCYRecord) []string {
	out := make([]string, 0, len(history))
	for _, rec := range history {
		out = append(out, tui.FormatEMCY(rec.Code, rec.ErrorRegister, rec.VendorWord, rec.ReceivedAt))
	}
	return out
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}
