package main

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/aw4Motion/CANopen4Drives/canbus"
	"github.com/aw4Motion/CANopen4Drives/config"
	"github.com/aw4Motion/CANopen4Drives/master"
	"github.com/aw4Motion/CANopen4Drives/od"
)

// masterStack is the set of components every subcommand needs after
// loading a config file and opening the bus: the router, the node
// registry and the sync master, wired together but not yet running.
type masterStack struct {
	cfg      *config.Config
	bus      canbus.Bus
	router   *master.Router
	registry *master.Registry
	sync     *master.Sync
}

func loadMasterStack(log *slog.Logger) (*masterStack, error) {
	if configPath == "" {
		return nil, fmt.Errorf("conmaster: no config file given, pass --config or set CONMASTER_CONFIG")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	bus, err := openBus(cfg.Bus.Interface)
	if err != nil {
		return nil, err
	}
	if err := bus.SetBitrate(cfg.Bus.Bitrate); err != nil {
		return nil, fmt.Errorf("conmaster: %w", err)
	}
	router := master.NewRouter(bus, 64, log)
	if err := bus.Open(); err != nil {
		return nil, fmt.Errorf("conmaster: opening %s: %w", cfg.Bus.Interface, err)
	}

	registry := master.NewRegistry(router)

	for _, nc := range cfg.Nodes {
		node, err := registry.Add(nc.NodeID, nc.Liveness, log)
		if err != nil {
			return nil, fmt.Errorf("conmaster: node %d: %w", nc.NodeID, err)
		}
		presetPDOs(node, nc)
	}

	syncMaster := master.NewSync(router, cfg.Bus.MasterID, cfg.Bus.SyncIntervalMs, cfg.Bus.ProducerHBTimeMs)

	return &masterStack{cfg: cfg, bus: bus, router: router, registry: registry, sync: syncMaster}, nil
}

// presetPDOs applies a node's configured RPDO/TPDO mapping and
// transmission settings ahead of a ConfigurePresetPDOs SDO pass.
// PDOEngine's Preset* slots are 1-based (spec §4.3's PDO1..PDO4).
func presetPDOs(node *master.RemoteNode, nc config.NodeConfig) {
	for i, preset := range nc.RPDO {
		if len(preset.Mapping) == 0 {
			continue
		}
		applyRxPreset(node, i+1, preset)
	}
	for i, preset := range nc.TPDO {
		if len(preset.Mapping) == 0 {
			continue
		}
		applyTxPreset(node, i+1, preset)
	}
}

func buildMappings(node *master.RemoteNode, entries []config.MappingPreset) []master.PDOMapping {
	mappings := make([]master.PDOMapping, 0, len(entries))
	for _, m := range entries {
		entry := node.OD.AddFixed(m.Index, m.SubIndex, widthFor(m.WidthBits))
		mappings = append(mappings, master.PDOMapping{Entry: entry, WidthBits: m.WidthBits})
	}
	return mappings
}

func applyRxPreset(node *master.RemoteNode, slot int, preset config.PDOPreset) {
	node.PDO.PresetRxMapping(slot, buildMappings(node, preset.Mapping))
	node.PDO.PresetRxTransmission(slot, preset.TransmissionType)
	node.PDO.PresetRxValid(slot, preset.Valid)
}

func applyTxPreset(node *master.RemoteNode, slot int, preset config.PDOPreset) {
	node.PDO.PresetTxMapping(slot, buildMappings(node, preset.Mapping))
	node.PDO.PresetTxTransmission(slot, preset.TransmissionType, preset.InhibitTime, preset.EventTimer)
	node.PDO.PresetTxValid(slot, preset.Valid)
}

func widthFor(bits uint8) od.Width {
	switch bits {
	case 8:
		return od.Width1
	case 16:
		return od.Width2
	case 32:
		return od.Width4
	default:
		return od.Width1
	}
}

// openBus selects a Bus implementation for the named interface.
// "virtual" / "sim" opens an in-process loopback bus for testing
// without hardware; anything else is treated as a SocketCAN interface
// name, which only builds on Linux.
func openBus(ifname string) (canbus.Bus, error) {
	if ifname == "virtual" || ifname == "sim" {
		broker := canbus.NewVirtualBroker()
		return broker.Open(), nil
	}
	return newPlatformBus(ifname)
}

func mustLinux() error {
	if runtime.GOOS != "linux" {
		return fmt.Errorf("conmaster: SocketCAN transport requires linux, running on %s; use --config with interface=virtual to test without hardware", runtime.GOOS)
	}
	return nil
}
