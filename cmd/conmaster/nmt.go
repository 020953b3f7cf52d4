package main

import (
	"fmt"
	"time"

	"github.com/aw4Motion/CANopen4Drives/master"
	"github.com/spf13/cobra"
)

var nmtTargetNode uint8

var nmtCmd = &cobra.Command{
	Use:   "nmt <start|stop|preop|reset-node|reset-comm>",
	Short: "Send a one-shot NMT command, to one node (--node) or broadcast",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		stack, err := loadMasterStack(log)
		if err != nil {
			return err
		}
		defer stack.bus.Close()

		now := time.Now().UnixMilli()
		if nmtTargetNode == 0 {
			return broadcastNMT(stack, args[0])
		}
		node := stack.registry.Get(nmtTargetNode)
		if node == nil {
			return fmt.Errorf("conmaster: node %d is not in the config file", nmtTargetNode)
		}
		return sendNodeNMT(node, args[0], now)
	},
}

func broadcastNMT(stack *masterStack, command string) error {
	switch command {
	case "start":
		_, err := stack.sync.SendStartNodes()
		return err
	case "reset-node":
		_, err := stack.sync.SendResetNodes()
		return err
	default:
		return fmt.Errorf("conmaster: broadcast only supports start/reset-node, use --node for %q", command)
	}
}

func sendNodeNMT(node *master.RemoteNode, command string, now int64) error {
	var state master.CommState
	switch command {
	case "start":
		state = node.Supervisor.SendStartNode(now)
	case "stop":
		state = node.Supervisor.SendStopNode(now)
	case "preop":
		state = node.Supervisor.SendPreopNode(now)
	case "reset-node":
		state = node.Supervisor.SendResetNode(now)
	case "reset-comm":
		state = node.Supervisor.SendResetCommunication(now)
	default:
		return fmt.Errorf("conmaster: unknown NMT command %q", command)
	}
	if state != master.Done {
		return fmt.Errorf("conmaster: NMT command %q did not send: %v", command, state)
	}
	return nil
}

func init() {
	nmtCmd.Flags().Uint8VarP(&nmtTargetNode, "node", "n", 0, "target node-id, 0 broadcasts to all nodes")
	rootCmd.AddCommand(nmtCmd)
}
