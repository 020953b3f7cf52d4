// Package config loads a master's bus and per-node configuration from
// an INI file, the same on-disk format (and library, gopkg.in/ini.v1)
// the teacher uses for its EDS importer in pkg/od/parser_v1.go — here
// turned to a much smaller schema: one [bus] section plus a [node N]
// and optional [node N rpdo/tpdo K] section per configured remote
// node, rather than a full CiA 301 object dictionary export.
package config

import (
	"fmt"
	"regexp"
	"strconv"

	"gopkg.in/ini.v1"

	"github.com/aw4Motion/CANopen4Drives/canbus"
	"github.com/aw4Motion/CANopen4Drives/master"
)

// MappingPreset is one OD reference inside a PDOPreset's mapping list,
// parsed from a "mapping" key formatted "index.subindex.widthbits",
// e.g. "6040.00.16".
type MappingPreset struct {
	Index     uint16
	SubIndex  uint8
	WidthBits uint8
}

// PDOPreset is the on-disk form of one master.PDODescriptor, applied
// to a PDOEngine once the referenced OD entries exist.
type PDOPreset struct {
	Valid            bool
	TransmissionType uint8
	InhibitTime      uint16
	EventTimer       uint16
	Mapping          []MappingPreset
}

// NodeConfig is one [node N] section: liveness mode plus up to four
// RPDO and four TPDO presets.
type NodeConfig struct {
	NodeID   uint8
	Liveness master.LivenessConfig
	RPDO     [4]PDOPreset
	TPDO     [4]PDOPreset
}

// BusConfig is the [bus] section: transport selection and the Sync
// Master's timing.
type BusConfig struct {
	Interface        string
	Bitrate          canbus.Bitrate
	MasterID         uint8
	SyncIntervalMs   int64
	ProducerHBTimeMs int64
}

// Config is a fully parsed master configuration file.
type Config struct {
	Bus   BusConfig
	Nodes []NodeConfig
}

var (
	nodeSectionRE = regexp.MustCompile(`^node\s+(\d+)$`)
	pdoSectionRE  = regexp.MustCompile(`^node\s+(\d+)\s+(rpdo|tpdo)\s+([1-4])$`)
	mappingRE     = regexp.MustCompile(`^([0-9A-Fa-f]{1,4})\.([0-9A-Fa-f]{1,2})\.(\d{1,2})$`)
)

// Load parses source (a file path, io.Reader-compatible value, or byte
// slice — anything ini.Load accepts) into a Config.
func Load(source any) (*Config, error) {
	file, err := ini.Load(source)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := &Config{}
	nodesByID := make(map[uint8]int)

	bus := file.Section("bus")
	cfg.Bus.Interface = bus.Key("interface").MustString("can0")
	cfg.Bus.Bitrate = canbus.Bitrate(bus.Key("bitrate").MustInt(500_000))
	cfg.Bus.MasterID = uint8(bus.Key("master_id").MustInt(0))
	cfg.Bus.SyncIntervalMs = int64(bus.Key("sync_interval_ms").MustInt(0))
	cfg.Bus.ProducerHBTimeMs = int64(bus.Key("producer_hb_time_ms").MustInt(0))

	for _, section := range file.Sections() {
		if m := nodeSectionRE.FindStringSubmatch(section.Name()); m != nil {
			nodeID, err := parseNodeID(m[1])
			if err != nil {
				return nil, err
			}
			i, ok := nodesByID[nodeID]
			if !ok {
				cfg.Nodes = append(cfg.Nodes, NodeConfig{NodeID: nodeID})
				i = len(cfg.Nodes) - 1
				nodesByID[nodeID] = i
			}
			nc := &cfg.Nodes[i]
			nc.Liveness.GuardTimeMs = uint16(section.Key("guard_time_ms").MustInt(0))
			nc.Liveness.LiveTimeFactor = uint8(section.Key("live_time_factor").MustInt(0))
			nc.Liveness.HBProducerTimeMs = uint16(section.Key("heartbeat_time_ms").MustInt(0))
		}
	}

	for _, section := range file.Sections() {
		m := pdoSectionRE.FindStringSubmatch(section.Name())
		if m == nil {
			continue
		}
		nodeID, err := parseNodeID(m[1])
		if err != nil {
			return nil, err
		}
		i, ok := nodesByID[nodeID]
		if !ok {
			return nil, fmt.Errorf("config: section [%s] has no matching [node %s]", section.Name(), m[1])
		}
		nc := &cfg.Nodes[i]
		slot, err := strconv.Atoi(m[3])
		if err != nil {
			return nil, err
		}
		preset, err := parsePDOPreset(section)
		if err != nil {
			return nil, fmt.Errorf("config: [%s]: %w", section.Name(), err)
		}
		if m[2] == "rpdo" {
			nc.RPDO[slot-1] = preset
		} else {
			nc.TPDO[slot-1] = preset
		}
	}

	return cfg, nil
}

func parseNodeID(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("config: illegal node-id %q: %w", s, err)
	}
	if v < 1 || v > 127 {
		return 0, fmt.Errorf("config: node-id %d out of range 1..127", v)
	}
	return uint8(v), nil
}

func parsePDOPreset(section *ini.Section) (PDOPreset, error) {
	preset := PDOPreset{
		Valid:            section.Key("valid").MustBool(true),
		TransmissionType: uint8(section.Key("transmission_type").MustInt(255)),
		InhibitTime:      uint16(section.Key("inhibit_time").MustInt(0)),
		EventTimer:       uint16(section.Key("event_timer").MustInt(0)),
	}
	for _, raw := range section.Key("mapping").Strings(",") {
		m := mappingRE.FindStringSubmatch(raw)
		if m == nil {
			return preset, fmt.Errorf("illegal mapping entry %q, expected index.subindex.widthbits", raw)
		}
		index, _ := strconv.ParseUint(m[1], 16, 16)
		subIndex, _ := strconv.ParseUint(m[2], 16, 8)
		width, _ := strconv.ParseUint(m[3], 10, 8)
		preset.Mapping = append(preset.Mapping, MappingPreset{
			Index:     uint16(index),
			SubIndex:  uint8(subIndex),
			WidthBits: uint8(width),
		})
	}
	return preset, nil
}
