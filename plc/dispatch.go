package plc

// Dispatch decodes the ADU in buf[:n], executes the request against img, and
// writes the reply back into buf starting at offset 0. It returns the
// number of reply bytes written; buf must have room for at least
// MaxFrameSize bytes regardless of n. Ref: spec.md §4.4, original's
// processModbusMessage().
//
// Unlike the original, a frame too short to carry a function code returns
// immediately instead of falling through into the unknown-function-code
// branch below it — see spec.md §9, Open Question 4.
func Dispatch(img *ProcessImage, buf []byte, n int) int {
	if n < minFrameSize {
		return writeException(buf, 0, ExcIllegalFunction)
	}

	switch FunctionCode(buf[offFunctionCode]) {
	case FuncReadCoils:
		return handleReadCoils(img, buf, n)
	case FuncReadDiscreteInputs:
		return handleReadDiscreteInputs(img, buf, n)
	case FuncReadHoldingRegisters:
		return handleReadHoldingRegisters(img, buf, n)
	case FuncReadInputRegisters:
		return handleReadInputRegisters(img, buf, n)
	case FuncWriteSingleCoil:
		return handleWriteSingleCoil(img, buf, n)
	case FuncWriteSingleRegister:
		return handleWriteSingleRegister(img, buf, n)
	case FuncWriteMultipleCoils:
		return handleWriteMultipleCoils(img, buf, n)
	case FuncWriteMultipleRegisters:
		return handleWriteMultipleRegisters(img, buf, n)
	default:
		return writeException(buf, FunctionCode(buf[offFunctionCode]), ExcIllegalFunction)
	}
}
