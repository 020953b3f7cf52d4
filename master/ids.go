package master

// Function codes: the upper 4 bits of an 11-bit COB-ID, per spec §4.4's
// mapping table. Each is already left-shifted into bits 7-10 so it can
// be OR'd directly with a 7-bit node-id.
const (
	FuncNMT    uint16 = 0x000
	FuncSync   uint16 = 0x080 // also EMCY's base when node-id != 0
	FuncEMCY   uint16 = 0x080
	FuncTPDO1  uint16 = 0x180
	FuncRPDO1  uint16 = 0x200
	FuncTPDO2  uint16 = 0x280
	FuncRPDO2  uint16 = 0x300
	FuncTPDO3  uint16 = 0x380
	FuncRPDO3  uint16 = 0x400
	FuncTPDO4  uint16 = 0x480
	FuncRPDO4  uint16 = 0x500
	FuncSDOTx  uint16 = 0x580 // SDO response, server -> master
	FuncSDORx  uint16 = 0x600 // SDO request, master -> server
	FuncNMTErr uint16 = 0x700 // bootup / guarding / heartbeat
)

// functionCodeMask isolates the function code from a COB-ID, leaving
// the low 7 bits (node-id) zeroed.
const functionCodeMask uint16 = 0x780

// FunctionCode extracts the function code from a COB-ID.
func FunctionCode(cobID uint16) uint16 { return cobID & functionCodeMask }

// NodeID extracts the 7-bit node-id from a COB-ID.
func NodeID(cobID uint16) uint8 { return uint8(cobID & 0x7F) }

// SDORequestID returns the COB-ID a master uses to send an SDO request
// to nodeID.
func SDORequestID(nodeID uint8) uint16 { return FuncSDORx | uint16(nodeID) }

// SDOResponseID returns the COB-ID a server uses to reply to nodeID.
func SDOResponseID(nodeID uint8) uint16 { return FuncSDOTx | uint16(nodeID) }

// GuardID returns the COB-ID used for both the master's RTR guarding
// poll and the slave's guard/heartbeat response on nodeID.
func GuardID(nodeID uint8) uint16 { return FuncNMTErr | uint16(nodeID) }

// rpdoCOBBase/tpdoCOBBase are the four RPDO and four TPDO base function codes, in
// descriptor order 1..4, matching spec §4.3's table.
var rpdoCOBBase = [4]uint16{FuncRPDO1, FuncRPDO2, FuncRPDO3, FuncRPDO4}
var tpdoCOBBase = [4]uint16{FuncTPDO1, FuncTPDO2, FuncTPDO3, FuncTPDO4}

// RPDOCobID returns the default (pre-configuration) COB-ID of RPDO
// number n (1..4) for nodeID.
func RPDOCobID(n int, nodeID uint8) uint16 { return rpdoCOBBase[n-1] | uint16(nodeID) }

// TPDOCobID returns the default (pre-configuration) COB-ID of TPDO
// number n (1..4) for nodeID.
func TPDOCobID(n int, nodeID uint8) uint16 { return tpdoCOBBase[n-1] | uint16(nodeID) }

// tpdoDescriptorIndex maps an observed TPDO function code back to its
// descriptor slot 0..3, or -1 if cobID's function code is not a TPDO.
func tpdoDescriptorIndex(cobID uint16) int {
	fc := FunctionCode(cobID)
	for i, base := range tpdoCOBBase {
		if fc == base {
			return i
		}
	}
	return -1
}
