// Package plc implements the Modbus/TCP request processor embedded in the
// PLC runtime: it decodes an inbound ADU, executes the requested read or
// write against the process image, and encodes the reply back into the
// same buffer.
package plc

// Address is a Modbus register or coil index.
type Address = uint16

// FunctionCode identifies a Modbus function.
type FunctionCode byte

// ExceptionCode is one of the three exception codes this core emits.
// Ref: original_source/runtime/core/modbus.cpp ERR_ILLEGAL_* constants.
type ExceptionCode byte

// Supported function codes.
const (
	FuncReadCoils              FunctionCode = 0x01
	FuncReadDiscreteInputs     FunctionCode = 0x02
	FuncReadHoldingRegisters   FunctionCode = 0x03
	FuncReadInputRegisters     FunctionCode = 0x04
	FuncWriteSingleCoil        FunctionCode = 0x05
	FuncWriteSingleRegister    FunctionCode = 0x06
	FuncWriteMultipleCoils     FunctionCode = 0x0F
	FuncWriteMultipleRegisters FunctionCode = 0x10
)

// Exception codes.
const (
	ExcNone                ExceptionCode = 0x00
	ExcIllegalFunction     ExceptionCode = 0x01
	ExcIllegalDataAddress  ExceptionCode = 0x02
	ExcIllegalDataValue    ExceptionCode = 0x03
)

// Table sizes and width-zone boundaries. Ref: spec.md §3, original's
// MAX_* / MIN_*_RANGE / MAX_*_RANGE #defines.
const (
	MaxDiscreteInput = 8192
	MaxCoils         = 8192
	MaxInputRegs     = 1024
	MaxHoldingRegs   = 8192

	Min16BRange = 1024
	Max16BRange = 2047
	Min32BRange = 2048
	Max32BRange = 4095
	Min64BRange = 4096
	Max64BRange = 8191

	// MaxFrameSize is the minimum buffer capacity the caller must provide.
	// Ref: spec.md §5, "260 bytes".
	MaxFrameSize = 260
)
