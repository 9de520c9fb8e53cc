package common

import (
	"errors"
	"fmt"
)

// Client and wire-format errors the minimal TCP client (client/client.go)
// returns.
var (
	ErrNotConnected          = errors.New("client not connected")
	ErrInvalidResponseLength = errors.New("invalid response length")
	ErrInvalidResponseFormat = errors.New("invalid response format")
)

// ModbusError represents an error from a Modbus exception response.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 7 (Exception Responses).
type ModbusError struct {
	FunctionCode  FunctionCode  // Function code from the request (with exception bit set)
	ExceptionCode ExceptionCode // Exception code indicating the error reason
}

// Error implements the error interface
func (e *ModbusError) Error() string {
	return fmt.Sprintf("modbus: exception response: function: %s, exception code: %#x (%s)",
		e.FunctionCode, e.ExceptionCode, GetExceptionString(e.ExceptionCode))
}

// IsModbusError checks if an error is a ModbusError
func IsModbusError(err error) bool {
	_, ok := err.(*ModbusError)
	return ok
}

// IsExceptionError checks if an error is a specific Modbus exception
func IsExceptionError(err error, exceptionCode ExceptionCode) bool {
	if modbusErr, ok := err.(*ModbusError); ok {
		return modbusErr.ExceptionCode == exceptionCode
	}
	return false
}

// IsFunctionNotSupportedError checks if an error is due to a function not being supported
func IsFunctionNotSupportedError(err error) bool {
	return IsExceptionError(err, ExceptionFunctionCodeNotSupported)
}

// NewModbusError creates a new ModbusError
func NewModbusError(functionCode FunctionCode, exceptionCode ExceptionCode) *ModbusError {
	return &ModbusError{
		FunctionCode:  functionCode,
		ExceptionCode: exceptionCode,
	}
}

// GetExceptionString returns a human-readable description of an exception code.
// Only the three exception codes this module's server emits (plc.ExcIllegalFunction,
// plc.ExcIllegalDataAddress, plc.ExcIllegalDataValue) are reachable in practice;
// the rest of the Modbus exception space is included so a client talking to a
// different server still gets a readable message instead of "Unknown".
func GetExceptionString(exceptionCode ExceptionCode) string {
	switch exceptionCode {
	case ExceptionFunctionCodeNotSupported:
		return "function code not supported"
	case ExceptionDataAddressNotAvailable:
		return "data address not available"
	case ExceptionInvalidDataValue:
		return "invalid data value"
	case ExceptionServerDeviceFailure:
		return "server device failure"
	case ExceptionAcknowledge:
		return "acknowledge"
	case ExceptionServerDeviceBusy:
		return "server device busy"
	case ExceptionMemoryParityError:
		return "memory parity error"
	case ExceptionGatewayPathUnavailable:
		return "gateway path unavailable"
	case ExceptionGatewayTargetNoResponse:
		return "gateway target no response"
	default:
		return fmt.Sprintf("unknown exception code: %#x", exceptionCode)
	}
}
