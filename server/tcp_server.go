package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/scanloop/modbus-plc/common"
	"github.com/scanloop/modbus-plc/logging"
	"github.com/scanloop/modbus-plc/plc"
)

// TCPServer accepts Modbus/TCP connections and hands each received ADU to a
// plc.ProcessImage for decoding, execution, and in-place reply encoding.
// Ref: Modbus_Messaging_Implementation_Guide_V1_0b.pdf, Section 3 (Modbus
// TCP/IP Protocol).
type TCPServer struct {
	address  string
	port     int
	listener net.Listener

	image *plc.ProcessImage

	running      bool
	clients      map[string]*clientConn
	clientsMutex sync.RWMutex
	mutex        sync.RWMutex
	logger       logging.LoggerInterface
	stopChan     chan struct{}

	onClientConnect    func(ConnectedClient)
	onClientDisconnect func(ConnectedClient)
}

// TCPServerOption is a function type for configuring a TCPServer
type TCPServerOption func(*TCPServer)

// WithServerPort sets the TCP port for the server
func WithServerPort(port int) TCPServerOption {
	return func(s *TCPServer) {
		s.port = port
	}
}

// WithServerLogger sets the logger for the TCP server
func WithServerLogger(logger logging.LoggerInterface) TCPServerOption {
	return func(s *TCPServer) {
		s.logger = logger
	}
}

// WithProcessImage sets the process image the server dispatches requests
// against, overriding the default empty one NewTCPServer creates.
func WithProcessImage(image *plc.ProcessImage) TCPServerOption {
	return func(s *TCPServer) {
		s.image = image
	}
}

// WithOnClientConnect registers a callback invoked whenever a new client
// connects. The callback receives a snapshot taken at connect time, so its
// transaction counters always read zero.
func WithOnClientConnect(fn func(ConnectedClient)) TCPServerOption {
	return func(s *TCPServer) {
		s.onClientConnect = fn
	}
}

// WithOnClientDisconnect registers a callback invoked whenever a client
// disconnects, with a final snapshot of its transaction counters.
func WithOnClientDisconnect(fn func(ConnectedClient)) TCPServerOption {
	return func(s *TCPServer) {
		s.onClientDisconnect = fn
	}
}

// NewTCPServer creates a new Modbus TCP server. If no process image is
// supplied via WithProcessImage, it runs one bound entirely to the default
// store (every in-range address reads as zero and accepts writes).
func NewTCPServer(address string, options ...TCPServerOption) *TCPServer {
	image := plc.NewProcessImage()
	image.BindDefaults()

	server := &TCPServer{
		address: address,
		port:    common.DefaultTCPPort,
		image:   image,
		logger:  logging.NewLogger(),
		clients: make(map[string]*clientConn),
	}

	for _, option := range options {
		option(server)
	}

	return server
}

// WithLogger sets the logger for the server
func (s *TCPServer) WithLogger(logger logging.LoggerInterface) *TCPServer {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.logger = logger
	return s
}

// ProcessImage returns the server's process image, so callers can register
// PLC variable bindings before the server starts. The RegisterXxx methods do
// not take the process-image mutex that Dispatch uses.
func (s *TCPServer) ProcessImage() *plc.ProcessImage {
	return s.image
}

// ConnectedClients returns a snapshot of every currently connected client.
func (s *TCPServer) ConnectedClients() []ConnectedClient {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()

	snapshots := make([]ConnectedClient, 0, len(s.clients))
	for _, c := range s.clients {
		snapshots = append(snapshots, ConnectedClient{
			RemoteAddr:        c.remoteAddr,
			ConnectedAt:       c.connectedAt,
			RxTransactions:    c.rxCount.Load(),
			TxTransactions:    c.txCount.Load(),
			FunctionCodeStats: fcSnapshot(c),
		})
	}
	return snapshots
}

// Start starts the server
func (s *TCPServer) Start(ctx context.Context) error {
	s.mutex.Lock()
	if s.running {
		s.mutex.Unlock()
		return fmt.Errorf("server already running")
	}

	addr := fmt.Sprintf("%s:%d", s.address, s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.mutex.Unlock()
		return err
	}

	s.listener = listener
	s.running = true
	s.stopChan = make(chan struct{})
	s.mutex.Unlock()

	s.logger.Info(ctx, "Modbus TCP server started on %s", addr)

	go s.acceptLoop(ctx)

	return nil
}

// Stop stops the server
func (s *TCPServer) Stop(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.running {
		return nil
	}

	close(s.stopChan)

	if s.listener != nil {
		s.listener.Close()
	}

	s.clientsMutex.Lock()
	for _, c := range s.clients {
		c.conn.Close()
	}
	s.clients = make(map[string]*clientConn)
	s.clientsMutex.Unlock()

	s.running = false
	s.logger.Info(ctx, "Modbus TCP server stopped")
	return nil
}

// IsRunning returns true if the server is running
func (s *TCPServer) IsRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.running
}

// acceptLoop accepts incoming connections
func (s *TCPServer) acceptLoop(ctx context.Context) {
	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		s.listener.(*net.TCPListener).SetDeadline(time.Now().Add(time.Second))

		conn, err := s.listener.Accept()
		if err != nil {
			if opErr, ok := err.(*net.OpError); ok && opErr.Timeout() {
				continue
			}

			select {
			case <-s.stopChan:
				return
			default:
				s.logger.Error(ctx, "Error accepting connection: %v", err)
				continue
			}
		}

		remoteAddr := conn.RemoteAddr().String()
		s.logger.Info(ctx, "New client connected: %s", remoteAddr)

		tracked := &clientConn{
			remoteAddr:  remoteAddr,
			connectedAt: time.Now(),
			conn:        conn,
		}

		s.clientsMutex.Lock()
		s.clients[remoteAddr] = tracked
		s.clientsMutex.Unlock()

		if s.onClientConnect != nil {
			s.onClientConnect(ConnectedClient{
				RemoteAddr:  tracked.remoteAddr,
				ConnectedAt: tracked.connectedAt,
			})
		}

		go s.handleConnection(tracked)
	}
}

// handleConnection reads whole ADUs off conn and runs each one through
// plc.Dispatch. Ref: Modbus_Messaging_Implementation_Guide_V1_0b.pdf,
// Section 3 (Message Processing).
func (s *TCPServer) handleConnection(tracked *clientConn) {
	ctx := context.Background()
	conn := tracked.conn
	remoteAddr := tracked.remoteAddr
	defer func() {
		s.clientsMutex.Lock()
		delete(s.clients, remoteAddr)
		s.clientsMutex.Unlock()

		conn.Close()
		s.logger.Info(ctx, "Client disconnected: %s", remoteAddr)

		if s.onClientDisconnect != nil {
			s.onClientDisconnect(ConnectedClient{
				RemoteAddr:        tracked.remoteAddr,
				ConnectedAt:       tracked.connectedAt,
				RxTransactions:    tracked.rxCount.Load(),
				TxTransactions:    tracked.txCount.Load(),
				FunctionCodeStats: fcSnapshot(tracked),
			})
		}
	}()

	buf := make([]byte, plc.MaxFrameSize)

	for {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		// MBAP header: Transaction ID (2), Protocol ID (2), Length (2),
		// Unit ID (1).
		if _, err := io.ReadFull(conn, buf[:7]); err != nil {
			if err == io.EOF || strings.Contains(err.Error(), "use of closed network connection") {
				return
			}
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			s.logger.Error(ctx, "Error reading header from %s: %v", remoteAddr, err)
			return
		}

		// Length counts the Unit ID byte plus the PDU; one byte of that is
		// already read as part of the 7-byte header above.
		length := int(buf[4])<<8 | int(buf[5])
		remaining := length - 1
		if remaining <= 0 || 7+remaining > len(buf) {
			s.logger.Error(ctx, "Invalid frame length from %s: %d", remoteAddr, length)
			continue
		}

		if _, err := io.ReadFull(conn, buf[7:7+remaining]); err != nil {
			s.logger.Error(ctx, "Error reading PDU from %s: %v", remoteAddr, err)
			return
		}

		n := 7 + remaining
		s.logger.Debug(ctx, "Received request from %s: %d bytes, function=%#x", remoteAddr, n, buf[7])

		tracked.rxCount.Add(1)
		tracked.fcCount[buf[7]].Add(1)

		replyLen := plc.Dispatch(s.image, buf, n)

		if _, err := conn.Write(buf[:replyLen]); err != nil {
			s.logger.Error(ctx, "Error sending response to %s: %v", remoteAddr, err)
			return
		}
		tracked.txCount.Add(1)
		s.logger.Debug(ctx, "Sent response to %s: %d bytes", remoteAddr, replyLen)
	}
}
