package plc

// Offsets into the ADU buffer. Ref: spec.md §2, MBAP header layout
// (Transaction ID, Protocol ID, Length, Unit ID) followed by the PDU
// (function code, payload).
const (
	offTransactionID = 0
	offProtocolID     = 2
	offLength         = 4
	offUnitID         = 6
	offFunctionCode   = 7
	offData           = 8

	mbapHeaderSize = 7 // Transaction ID + Protocol ID + Length + Unit ID
	minFrameSize   = mbapHeaderSize + 1
)

// exceptionReplyLength is the total ADU length of an exception reply:
// MBAP header (7) + function code (1) + exception code (1).
const exceptionReplyLength = mbapHeaderSize + 2

func putUint16(buf []byte, offset int, v uint16) {
	buf[offset] = byte(v >> 8)
	buf[offset+1] = byte(v)
}

func getUint16(buf []byte, offset int) uint16 {
	return uint16(buf[offset])<<8 | uint16(buf[offset+1])
}

// writeException overwrites buf in place with an exception reply for the
// given request function code, preserving the MBAP header's Transaction ID
// and Unit ID, and returns the reply length. Ref: spec.md §4.3/§7, original's
// exception-response construction (function code | 0x80, Length=3).
func writeException(buf []byte, functionCode FunctionCode, exc ExceptionCode) int {
	putUint16(buf, offLength, 3)
	buf[offFunctionCode] = byte(functionCode) | 0x80
	buf[offData] = byte(exc)
	return exceptionReplyLength
}
