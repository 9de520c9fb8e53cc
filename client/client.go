// Package client provides a minimal, synchronous Modbus/TCP client: one
// request in flight at a time over a single connection, sized to drive the
// eight function codes the server (server/tcp_server.go, via plc.Dispatch)
// supports. It exists to exercise that server end to end from tests and the
// demo CLIs under cmd/client — not as a general-purpose Modbus master with
// reconnection, pipelining, or a pluggable transport/protocol layer.
package client

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"github.com/scanloop/modbus-plc/common"
	"github.com/scanloop/modbus-plc/logging"
)

const mbapHeaderSize = 7

// TCPClient talks Modbus/TCP to a single server over one net.Conn.
type TCPClient struct {
	host    string
	port    int
	timeout time.Duration
	unitID  common.UnitID
	logger  logging.LoggerInterface

	mu            sync.Mutex
	conn          net.Conn
	transactionID uint16
}

// Option configures a TCPClient.
type Option func(*TCPClient)

// WithPort sets the server TCP port. Default: common.DefaultTCPPort.
func WithPort(port int) Option {
	return func(c *TCPClient) { c.port = port }
}

// WithTimeout sets the per-request deadline applied when ctx carries none.
func WithTimeout(timeout time.Duration) Option {
	return func(c *TCPClient) { c.timeout = timeout }
}

// WithUnitID sets the unit ID placed in every request's MBAP header.
func WithUnitID(unitID common.UnitID) Option {
	return func(c *TCPClient) { c.unitID = unitID }
}

// WithLogger sets the logger used for connection and request tracing.
func WithLogger(logger logging.LoggerInterface) Option {
	return func(c *TCPClient) { c.logger = logger }
}

// NewTCPClient creates a TCPClient for the given host, unconnected until
// Connect is called.
func NewTCPClient(host string, options ...Option) *TCPClient {
	c := &TCPClient{
		host:    host,
		port:    common.DefaultTCPPort,
		timeout: 5 * time.Second,
		logger:  logging.NewLogger(),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// WithOptions applies additional options and returns the client, mirroring
// the options pattern used by server.TCPServer.
func (c *TCPClient) WithOptions(options ...Option) *TCPClient {
	for _, option := range options {
		option(c)
	}
	return c
}

// Connect dials the server.
func (c *TCPClient) Connect(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	c.logger.Info(ctx, "connecting to %s (unit %d)", addr, c.unitID)

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// Disconnect closes the connection.
func (c *TCPClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.logger.Info(ctx, "disconnecting from %s:%d", c.host, c.port)
	err := c.conn.Close()
	c.conn = nil
	return err
}

// IsConnected reports whether the client currently holds an open connection.
func (c *TCPClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// WithLogger returns a copy of the client using the given logger, satisfying
// common.Client.
func (c *TCPClient) WithLogger(logger logging.LoggerInterface) common.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &TCPClient{
		host:          c.host,
		port:          c.port,
		timeout:       c.timeout,
		unitID:        c.unitID,
		logger:        logger,
		conn:          c.conn,
		transactionID: c.transactionID,
	}
}

// send transmits one MBAP-framed PDU and returns the matching reply's PDU
// data (the bytes following the response function code), translating an
// exception reply into a *common.ModbusError.
func (c *TCPClient) send(ctx context.Context, functionCode common.FunctionCode, pdu []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, common.ErrNotConnected
	}

	c.transactionID++
	txID := c.transactionID

	frame := make([]byte, mbapHeaderSize+len(pdu))
	binary.BigEndian.PutUint16(frame[0:2], txID)
	binary.BigEndian.PutUint16(frame[2:4], uint16(common.TCPProtocolIdentifier))
	binary.BigEndian.PutUint16(frame[4:6], uint16(1+len(pdu)))
	frame[6] = byte(c.unitID)
	copy(frame[7:], pdu)

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
	} else {
		c.conn.SetDeadline(time.Now().Add(c.timeout))
	}
	defer c.conn.SetDeadline(time.Time{})

	c.logger.Debug(ctx, "sending function=%s txID=%d bytes=%d", functionCode, txID, len(frame))
	if _, err := c.conn.Write(frame); err != nil {
		return nil, err
	}

	header := make([]byte, mbapHeaderSize)
	if _, err := io.ReadFull(c.conn, header); err != nil {
		return nil, err
	}
	respTxID := binary.BigEndian.Uint16(header[0:2])
	length := binary.BigEndian.Uint16(header[4:6])
	if respTxID != txID || length < 1 {
		return nil, common.ErrInvalidResponseFormat
	}

	body := make([]byte, length-1)
	if len(body) > 0 {
		if _, err := io.ReadFull(c.conn, body); err != nil {
			return nil, err
		}
	}
	if len(body) == 0 {
		return nil, common.ErrInvalidResponseLength
	}

	respFunctionCode := common.FunctionCode(body[0])
	data := body[1:]

	if common.IsFunctionException(respFunctionCode) {
		var exc common.ExceptionCode
		if len(data) > 0 {
			exc = common.ExceptionCode(data[0])
		}
		c.logger.Warn(ctx, "received exception response: function=%s exception=%#x", respFunctionCode, exc)
		return nil, common.NewModbusError(respFunctionCode, exc)
	}
	if respFunctionCode != functionCode {
		return nil, common.ErrInvalidResponseFormat
	}

	c.logger.Debug(ctx, "received response: function=%s bytes=%d", respFunctionCode, len(data))
	return data, nil
}

func parseBitValues(data []byte, quantity common.Quantity) ([]bool, error) {
	if len(data) == 0 {
		return nil, common.ErrInvalidResponseLength
	}
	byteCount := int(data[0])
	if len(data) != byteCount+1 || byteCount != int(math.Ceil(float64(quantity)/8.0)) {
		return nil, common.ErrInvalidResponseLength
	}
	values := make([]bool, quantity)
	for i := 0; i < int(quantity); i++ {
		values[i] = (data[1+i/8]>>uint(i%8))&0x01 == 1
	}
	return values, nil
}

func parseRegisterValues(data []byte, quantity common.Quantity) ([]uint16, error) {
	if len(data) == 0 {
		return nil, common.ErrInvalidResponseLength
	}
	byteCount := int(data[0])
	if len(data) != byteCount+1 || byteCount != int(quantity)*2 {
		return nil, common.ErrInvalidResponseLength
	}
	values := make([]uint16, quantity)
	for i := 0; i < int(quantity); i++ {
		values[i] = binary.BigEndian.Uint16(data[1+i*2 : 3+i*2])
	}
	return values, nil
}

// ReadCoils reads coils starting at address.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.1
func (c *TCPClient) ReadCoils(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.CoilValue, error) {
	req := make([]byte, 4)
	binary.BigEndian.PutUint16(req[0:2], uint16(address))
	binary.BigEndian.PutUint16(req[2:4], uint16(quantity))

	data, err := c.send(ctx, common.FuncReadCoils, req)
	if err != nil {
		return nil, err
	}
	return parseBitValues(data, quantity)
}

// ReadDiscreteInputs reads discrete inputs starting at address.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.2
func (c *TCPClient) ReadDiscreteInputs(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.DiscreteInputValue, error) {
	req := make([]byte, 4)
	binary.BigEndian.PutUint16(req[0:2], uint16(address))
	binary.BigEndian.PutUint16(req[2:4], uint16(quantity))

	data, err := c.send(ctx, common.FuncReadDiscreteInputs, req)
	if err != nil {
		return nil, err
	}
	return parseBitValues(data, quantity)
}

// ReadHoldingRegisters reads holding registers starting at address.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.3
func (c *TCPClient) ReadHoldingRegisters(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.RegisterValue, error) {
	req := make([]byte, 4)
	binary.BigEndian.PutUint16(req[0:2], uint16(address))
	binary.BigEndian.PutUint16(req[2:4], uint16(quantity))

	data, err := c.send(ctx, common.FuncReadHoldingRegisters, req)
	if err != nil {
		return nil, err
	}
	return parseRegisterValues(data, quantity)
}

// ReadInputRegisters reads input registers starting at address.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.4
func (c *TCPClient) ReadInputRegisters(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.InputRegisterValue, error) {
	req := make([]byte, 4)
	binary.BigEndian.PutUint16(req[0:2], uint16(address))
	binary.BigEndian.PutUint16(req[2:4], uint16(quantity))

	data, err := c.send(ctx, common.FuncReadInputRegisters, req)
	if err != nil {
		return nil, err
	}
	return parseRegisterValues(data, quantity)
}

// WriteSingleCoil writes one coil.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.5
func (c *TCPClient) WriteSingleCoil(ctx context.Context, address common.Address, value common.CoilValue) error {
	req := make([]byte, 4)
	binary.BigEndian.PutUint16(req[0:2], uint16(address))
	if value {
		binary.BigEndian.PutUint16(req[2:4], common.CoilOnU16)
	} else {
		binary.BigEndian.PutUint16(req[2:4], common.CoilOffU16)
	}

	_, err := c.send(ctx, common.FuncWriteSingleCoil, req)
	return err
}

// WriteSingleRegister writes one holding register.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.6
func (c *TCPClient) WriteSingleRegister(ctx context.Context, address common.Address, value common.RegisterValue) error {
	req := make([]byte, 4)
	binary.BigEndian.PutUint16(req[0:2], uint16(address))
	binary.BigEndian.PutUint16(req[2:4], value)

	_, err := c.send(ctx, common.FuncWriteSingleRegister, req)
	return err
}

// WriteMultipleCoils writes a run of coils starting at address.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.11
func (c *TCPClient) WriteMultipleCoils(ctx context.Context, address common.Address, values []common.CoilValue) error {
	byteCount := int(math.Ceil(float64(len(values)) / 8.0))
	req := make([]byte, 5+byteCount)
	binary.BigEndian.PutUint16(req[0:2], uint16(address))
	binary.BigEndian.PutUint16(req[2:4], uint16(len(values)))
	req[4] = byte(byteCount)
	for i, v := range values {
		if v {
			req[5+i/8] |= 1 << uint(i%8)
		}
	}

	_, err := c.send(ctx, common.FuncWriteMultipleCoils, req)
	return err
}

// WriteMultipleRegisters writes a run of holding registers starting at address.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.12
func (c *TCPClient) WriteMultipleRegisters(ctx context.Context, address common.Address, values []common.RegisterValue) error {
	req := make([]byte, 5+len(values)*2)
	binary.BigEndian.PutUint16(req[0:2], uint16(address))
	binary.BigEndian.PutUint16(req[2:4], uint16(len(values)))
	req[4] = byte(len(values) * 2)
	for i, v := range values {
		binary.BigEndian.PutUint16(req[5+i*2:7+i*2], v)
	}

	_, err := c.send(ctx, common.FuncWriteMultipleRegisters, req)
	return err
}
