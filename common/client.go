package common

import (
	"context"

	"github.com/scanloop/modbus-plc/logging"
)

// Client is the interface the module's Modbus/TCP client implements: the
// eight function codes the server (server/tcp_server.go, via plc.Dispatch)
// supports, nothing more.
type Client interface {
	// Connect establishes a connection to the Modbus server.
	Connect(ctx context.Context) error

	// Disconnect closes the connection to the Modbus server.
	Disconnect(ctx context.Context) error

	// IsConnected returns true if the client is connected to the server.
	IsConnected() bool

	// ReadCoils reads coils from the server.
	// The address is the starting address of the coils to read.
	// The quantity is the number of coils to read.
	ReadCoils(ctx context.Context, address Address, quantity Quantity) ([]CoilValue, error)

	// ReadDiscreteInputs reads discrete inputs from the server.
	// The address is the starting address of the discrete inputs to read.
	// The quantity is the number of discrete inputs to read.
	ReadDiscreteInputs(ctx context.Context, address Address, quantity Quantity) ([]DiscreteInputValue, error)

	// ReadHoldingRegisters reads holding registers from the server.
	// The address is the starting address of the registers to read.
	// The quantity is the number of registers to read.
	ReadHoldingRegisters(ctx context.Context, address Address, quantity Quantity) ([]RegisterValue, error)

	// ReadInputRegisters reads input registers from the server.
	// The address is the starting address of the registers to read.
	// The quantity is the number of registers to read.
	ReadInputRegisters(ctx context.Context, address Address, quantity Quantity) ([]InputRegisterValue, error)

	// WriteSingleCoil writes a single coil to the server.
	// The address is the address of the coil to write.
	// The value is the value to write.
	WriteSingleCoil(ctx context.Context, address Address, value CoilValue) error

	// WriteSingleRegister writes a single register to the server.
	// The address is the address of the register to write.
	// The value is the value to write.
	WriteSingleRegister(ctx context.Context, address Address, value RegisterValue) error

	// WriteMultipleCoils writes multiple coils to the server.
	// The address is the starting address of the coils to write.
	// The values are the values to write.
	WriteMultipleCoils(ctx context.Context, address Address, values []CoilValue) error

	// WriteMultipleRegisters writes multiple registers to the server.
	// The address is the starting address of the registers to write.
	// The values are the values to write.
	WriteMultipleRegisters(ctx context.Context, address Address, values []RegisterValue) error

	// WithLogger sets the logger for the client.
	WithLogger(logger logging.LoggerInterface) Client
}
