package master

// AbortCode is the 32-bit SDO abort code a server places in bytes 4-7
// of an abort response (command specifier 4, byte 0 = 0x80). Per
// spec §7 the core does not interpret it beyond classifying the
// transaction as Error; AbortCode is kept on SDOClient purely as
// diagnostic context, readable through SDOClient.AbortCode, the same
// role the teacher's SDOAbortCode plays beyond its own abort-generation
// path.
type AbortCode uint32

const (
	AbortNone              AbortCode = 0x00000000
	AbortToggleBit         AbortCode = 0x05030000
	AbortTimeout           AbortCode = 0x05040000
	AbortCommandInvalid    AbortCode = 0x05040001
	AbortOutOfMemory       AbortCode = 0x05040005
	AbortUnsupportedAccess AbortCode = 0x06010000
	AbortWriteOnly         AbortCode = 0x06010001
	AbortReadOnly          AbortCode = 0x06010002
	AbortObjectNotExist    AbortCode = 0x06020000
	AbortNoMap             AbortCode = 0x06040041
	AbortMapLength         AbortCode = 0x06040042
	AbortGeneralParam      AbortCode = 0x06040043
	AbortTypeMismatch      AbortCode = 0x06070010
	AbortDataLong          AbortCode = 0x06070012
	AbortDataShort         AbortCode = 0x06070013
	AbortSubIndexUnknown   AbortCode = 0x06090011
	AbortGeneral           AbortCode = 0x08000000
)

var abortExplanation = map[AbortCode]string{
	AbortNone:              "no abort",
	AbortToggleBit:         "toggle bit not alternated",
	AbortTimeout:           "SDO protocol timed out",
	AbortCommandInvalid:    "command specifier not valid or unknown",
	AbortOutOfMemory:       "out of memory",
	AbortUnsupportedAccess: "unsupported access to an object",
	AbortWriteOnly:         "attempt to read a write-only object",
	AbortReadOnly:          "attempt to write a read-only object",
	AbortObjectNotExist:    "object does not exist in the object dictionary",
	AbortNoMap:             "object cannot be mapped to a PDO",
	AbortMapLength:         "number and length of mapped objects exceeds PDO length",
	AbortGeneralParam:      "general parameter incompatibility",
	AbortTypeMismatch:      "data type does not match",
	AbortDataLong:          "data type length too high",
	AbortDataShort:         "data type length too short",
	AbortSubIndexUnknown:   "sub-index does not exist",
	AbortGeneral:           "general error",
}

// Error implements the error interface so an AbortCode can be returned
// or logged directly.
func (a AbortCode) Error() string {
	if s, ok := abortExplanation[a]; ok {
		return s
	}
	return "unrecognized abort code"
}
