package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
[bus]
interface = can0
bitrate = 500000
master_id = 0
sync_interval_ms = 10
producer_hb_time_ms = 1000

[node 3]
guard_time_ms = 50
live_time_factor = 3

[node 3 rpdo 1]
transmission_type = 1
mapping = 6040.00.16, 6060.00.08

[node 5]
heartbeat_time_ms = 500

[node 5 tpdo 1]
transmission_type = 255
event_timer = 200
mapping = 6041.00.16
`

func TestLoadParsesBusSection(t *testing.T) {
	cfg, err := Load([]byte(sampleConfig))
	require.NoError(t, err)
	require.Equal(t, "can0", cfg.Bus.Interface)
	require.EqualValues(t, 500000, cfg.Bus.Bitrate)
	require.EqualValues(t, 10, cfg.Bus.SyncIntervalMs)
	require.EqualValues(t, 1000, cfg.Bus.ProducerHBTimeMs)
}

func TestLoadParsesGuardedNode(t *testing.T) {
	cfg, err := Load([]byte(sampleConfig))
	require.NoError(t, err)
	require.Len(t, cfg.Nodes, 2)

	node3 := findNode(cfg, 3)
	require.NotNil(t, node3)
	require.EqualValues(t, 50, node3.Liveness.GuardTimeMs)
	require.EqualValues(t, 3, node3.Liveness.LiveTimeFactor)
	require.EqualValues(t, 0, node3.Liveness.HBProducerTimeMs)

	require.EqualValues(t, 1, node3.RPDO[0].TransmissionType)
	require.Len(t, node3.RPDO[0].Mapping, 2)
	require.Equal(t, MappingPreset{Index: 0x6040, SubIndex: 0, WidthBits: 16}, node3.RPDO[0].Mapping[0])
	require.Equal(t, MappingPreset{Index: 0x6060, SubIndex: 0, WidthBits: 8}, node3.RPDO[0].Mapping[1])
}

func TestLoadParsesHeartbeatNode(t *testing.T) {
	cfg, err := Load([]byte(sampleConfig))
	require.NoError(t, err)

	node5 := findNode(cfg, 5)
	require.NotNil(t, node5)
	require.EqualValues(t, 500, node5.Liveness.HBProducerTimeMs)
	require.EqualValues(t, 0, node5.Liveness.GuardTimeMs)

	require.EqualValues(t, 255, node5.TPDO[0].TransmissionType)
	require.EqualValues(t, 200, node5.TPDO[0].EventTimer)
	require.Equal(t, MappingPreset{Index: 0x6041, SubIndex: 0, WidthBits: 16}, node5.TPDO[0].Mapping[0])
}

func TestLoadRejectsPDOSectionWithoutNode(t *testing.T) {
	_, err := Load([]byte("[node 9 rpdo 1]\nmapping = 6040.00.16\n"))
	require.Error(t, err)
}

func TestLoadRejectsIllegalMapping(t *testing.T) {
	bad := "[node 1]\n[node 1 rpdo 1]\nmapping = not-a-mapping\n"
	_, err := Load([]byte(bad))
	require.Error(t, err)
}

func findNode(cfg *Config, nodeID uint8) *NodeConfig {
	for i := range cfg.Nodes {
		if cfg.Nodes[i].NodeID == nodeID {
			return &cfg.Nodes[i]
		}
	}
	return nil
}
