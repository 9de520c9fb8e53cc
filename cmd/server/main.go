package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/scanloop/modbus-plc/common"
	"github.com/scanloop/modbus-plc/logging"
	"github.com/scanloop/modbus-plc/plc"
	"github.com/scanloop/modbus-plc/server"
)

func main() {
	address := flag.StringP("address", "a", "0.0.0.0", "Server address to bind to")
	port := flag.IntP("port", "p", common.DefaultTCPPort, "TCP port to listen on")
	debug := flag.BoolP("debug", "d", false, "Enable debug logging")
	preload := flag.Bool("preload", true, "Preload a few demo PLC variable bindings")
	flag.Parse()

	logLevel := logging.LevelInfo
	if *debug {
		logLevel = logging.LevelDebug
	}
	logger := logging.NewLogger(logging.WithLevel(logLevel))
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	image := plc.NewProcessImage()

	var counter uint16
	var timestamp uint16
	var toggle bool
	if *preload {
		preloadDemoBindings(image, &counter, &timestamp, &toggle)
	}
	image.BindDefaults()

	modbusServer := server.NewTCPServer(
		*address,
		server.WithServerPort(*port),
		server.WithServerLogger(logger),
		server.WithProcessImage(image),
		server.WithOnClientConnect(func(c server.ConnectedClient) {
			logger.Info(ctx, "client connected: %s", c.RemoteAddr)
		}),
		server.WithOnClientDisconnect(func(c server.ConnectedClient) {
			logger.Info(ctx, "client disconnected: %s (rx=%d tx=%d)", c.RemoteAddr, c.RxTransactions, c.TxTransactions)
		}),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info(ctx, "Received shutdown signal, stopping server...")
		if err := modbusServer.Stop(ctx); err != nil {
			logger.Error(ctx, "Error stopping server: %v", err)
		}
		cancel()
	}()

	logger.Info(ctx, "Starting Modbus TCP server on %s:%d...", *address, *port)
	if err := modbusServer.Start(ctx); err != nil {
		logger.Error(ctx, "Failed to start server: %v", err)
		os.Exit(1)
	}

	// Demo scan cycle: toggle a coil and bump a counter register once a
	// second, mirroring the runtime's periodic external PLC scan.
	if *preload {
		go func() {
			tick := time.NewTicker(time.Second)
			defer tick.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-tick.C:
					image.WithScanLock(func() {
						counter++
						timestamp = uint16(time.Now().Unix() & 0xFFFF)
						toggle = !toggle
					})
				}
			}
		}()
	}

	<-ctx.Done()
	logger.Info(ctx, "Server shutdown complete")
}

// preloadDemoBindings registers a handful of PLC variables so a client
// connecting to this demo server has something to read and write: a few
// static coils and registers, plus a counter, a Unix-timestamp register, and
// a toggling coil that the scan-cycle goroutine above updates every second.
func preloadDemoBindings(image *plc.ProcessImage, counter, timestamp *uint16, toggle *bool) {
	coils := []bool{true, false, true, true, false}
	for i, v := range coils {
		v := v
		image.RegisterCoil(plc.Address(i), &v)
	}

	discretes := []bool{false, true, false, true, true}
	for i, v := range discretes {
		v := v
		image.RegisterDiscreteInput(plc.Address(i), &v)
	}

	inputRegs := []uint16{100, 200, 300, 400, 500}
	for i, v := range inputRegs {
		v := v
		image.RegisterInputRegister(plc.Address(i), &v)
	}

	image.RegisterAnalogOutput(1000, counter)
	image.RegisterAnalogOutput(1001, timestamp)
	image.RegisterCoil(100, toggle)

	fixed := uint16(12345)
	image.RegisterAnalogOutput(1002, &fixed)
}
