package gomodbus

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/scanloop/modbus-plc/client"
	"github.com/scanloop/modbus-plc/common"
	"github.com/scanloop/modbus-plc/logging"
	"github.com/scanloop/modbus-plc/plc"
	"github.com/scanloop/modbus-plc/server"
)

// findFreePortTCP asks the OS for an ephemeral port by briefly binding to
// one, closing the listener immediately so the server under test can bind
// to it instead.
func findFreePortTCP() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// TestClientServerIntegration drives a real TCPClient against a real
// TCPServer over a loopback TCP connection, exercising all eight supported
// function codes through a plc.ProcessImage with a mix of PLC-variable
// bindings and default-store fallback addresses.
func TestClientServerIntegration(t *testing.T) {
	logger := logging.NewLogger(logging.WithLevel(logging.LevelDebug))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	image := plc.NewProcessImage()

	coil1000 := true
	coil1001 := false
	coil1002 := true
	image.RegisterCoil(1000, &coil1000)
	image.RegisterCoil(1001, &coil1001)
	image.RegisterCoil(1002, &coil1002)

	holding2000 := uint16(0x1234)
	holding2001 := uint16(0x5678)
	image.RegisterMemoryWord(2000, &holding2000)
	image.RegisterMemoryWord(2001, &holding2001)

	inputReg300 := uint16(0xABCD)
	inputReg301 := uint16(0xEF01)
	image.RegisterInputRegister(300, &inputReg300)
	image.RegisterInputRegister(301, &inputReg301)

	discrete4000 := true
	image.RegisterDiscreteInput(4000, &discrete4000)

	image.BindDefaults()

	serverPort, err := findFreePortTCP()
	if err != nil {
		t.Fatalf("Failed to find free port: %v", err)
	}

	modbusServer := server.NewTCPServer(
		"127.0.0.1",
		server.WithServerPort(serverPort),
		server.WithServerLogger(logger),
		server.WithProcessImage(image),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- modbusServer.Start(ctx)
	}()

	time.Sleep(100 * time.Millisecond)

	modbusClient := client.NewTCPClient(
		"127.0.0.1",
		client.WithPort(serverPort),
		client.WithTimeout(5*time.Second),
		client.WithLogger(logger),
		client.WithUnitID(1),
	)

	err = modbusClient.Connect(ctx)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer modbusClient.Disconnect(context.Background())

	// FC01 - Read Coils
	coils, err := modbusClient.ReadCoils(ctx, common.Address(1000), common.Quantity(3))
	if err != nil {
		t.Fatalf("ReadCoils failed: %v", err)
	}
	expectedCoils := []common.CoilValue{true, false, true}
	if len(coils) != len(expectedCoils) {
		t.Fatalf("Expected %d coils, got %d", len(expectedCoils), len(coils))
	}
	for i, expected := range expectedCoils {
		if coils[i] != expected {
			t.Errorf("Coil %d: expected %t, got %t", i, expected, coils[i])
		}
	}

	// FC02 - Read Discrete Inputs
	discretes, err := modbusClient.ReadDiscreteInputs(ctx, common.Address(4000), common.Quantity(1))
	if err != nil {
		t.Fatalf("ReadDiscreteInputs failed: %v", err)
	}
	if len(discretes) != 1 || discretes[0] != true {
		t.Fatalf("Expected discrete input 4000 = true, got %v", discretes)
	}

	// FC03 - Read Holding Registers
	holdingRegisters, err := modbusClient.ReadHoldingRegisters(ctx, common.Address(2000), common.Quantity(2))
	if err != nil {
		t.Fatalf("ReadHoldingRegisters failed: %v", err)
	}
	expectedHoldingRegisters := []common.RegisterValue{0x1234, 0x5678}
	if len(holdingRegisters) != len(expectedHoldingRegisters) {
		t.Fatalf("Expected %d holding registers, got %d",
			len(expectedHoldingRegisters), len(holdingRegisters))
	}
	for i, expected := range expectedHoldingRegisters {
		if holdingRegisters[i] != expected {
			t.Errorf("Holding register %d: expected 0x%04X, got 0x%04X",
				i, expected, holdingRegisters[i])
		}
	}

	// FC04 - Read Input Registers
	inputRegisters, err := modbusClient.ReadInputRegisters(ctx, common.Address(300), common.Quantity(2))
	if err != nil {
		t.Fatalf("ReadInputRegisters failed: %v", err)
	}
	expectedInputRegisters := []common.InputRegisterValue{0xABCD, 0xEF01}
	if len(inputRegisters) != len(expectedInputRegisters) {
		t.Fatalf("Expected %d input registers, got %d",
			len(expectedInputRegisters), len(inputRegisters))
	}
	for i, expected := range expectedInputRegisters {
		if inputRegisters[i] != expected {
			t.Errorf("Input register %d: expected 0x%04X, got 0x%04X",
				i, expected, inputRegisters[i])
		}
	}

	// FC05 - Write Single Coil, to a default-store address with no PLC binding
	err = modbusClient.WriteSingleCoil(ctx, common.Address(1010), common.CoilValue(true))
	if err != nil {
		t.Fatalf("WriteSingleCoil failed: %v", err)
	}
	readBack, err := modbusClient.ReadCoils(ctx, common.Address(1010), common.Quantity(1))
	if err != nil {
		t.Fatalf("ReadCoils (verify) failed: %v", err)
	}
	if len(readBack) != 1 || readBack[0] != true {
		t.Fatalf("Coil at address 1010 was not written, got %v", readBack)
	}

	// FC06 - Write Single Register
	err = modbusClient.WriteSingleRegister(ctx, common.Address(2010), common.RegisterValue(0x4321))
	if err != nil {
		t.Fatalf("WriteSingleRegister failed: %v", err)
	}
	regReadBack, err := modbusClient.ReadHoldingRegisters(ctx, common.Address(2010), common.Quantity(1))
	if err != nil {
		t.Fatalf("ReadHoldingRegisters (verify) failed: %v", err)
	}
	if len(regReadBack) != 1 || regReadBack[0] != 0x4321 {
		t.Fatalf("Expected register value 0x4321, got %v", regReadBack)
	}

	// FC15 - Write Multiple Coils
	coilValues := []common.CoilValue{true, false, true, false}
	err = modbusClient.WriteMultipleCoils(ctx, common.Address(1020), coilValues)
	if err != nil {
		t.Fatalf("WriteMultipleCoils failed: %v", err)
	}
	multiCoilReadBack, err := modbusClient.ReadCoils(ctx, common.Address(1020), common.Quantity(4))
	if err != nil {
		t.Fatalf("ReadCoils (verify multi) failed: %v", err)
	}
	for i, expected := range coilValues {
		if multiCoilReadBack[i] != expected {
			t.Errorf("Coil at address %d: expected %t, got %t", 1020+i, expected, multiCoilReadBack[i])
		}
	}

	// FC16 - Write Multiple Registers
	registerValues := []common.RegisterValue{0x1111, 0x2222, 0x3333}
	err = modbusClient.WriteMultipleRegisters(ctx, common.Address(2020), registerValues)
	if err != nil {
		t.Fatalf("WriteMultipleRegisters failed: %v", err)
	}
	multiRegReadBack, err := modbusClient.ReadHoldingRegisters(ctx, common.Address(2020), common.Quantity(3))
	if err != nil {
		t.Fatalf("ReadHoldingRegisters (verify multi) failed: %v", err)
	}
	for i, expected := range registerValues {
		if multiRegReadBack[i] != expected {
			t.Errorf("Register at address %d: expected 0x%04X, got 0x%04X", 2020+i, expected, multiRegReadBack[i])
		}
	}

	err = modbusServer.Stop(ctx)
	if err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}

	select {
	case err := <-serverErrCh:
		if err != nil && err != context.Canceled {
			t.Fatalf("Server error: %v", err)
		}
	default:
	}
}
