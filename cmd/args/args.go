package args

import (
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/scanloop/modbus-plc/client"
	"github.com/scanloop/modbus-plc/common"
	"github.com/scanloop/modbus-plc/logging"
)

// ModbusArgs holds common command-line arguments for Modbus clients
type ModbusArgs struct {
	IP         string
	Port       int
	UnitID     int
	Timeout    time.Duration
	LogLevel   string
	LogLevelID logging.LogLevel
}

// ParseArgs parses common command-line arguments for Modbus clients
func ParseArgs() *ModbusArgs {
	args := &ModbusArgs{}

	// Define command-line flags
	flag.StringVarP(&args.IP, "ip", "i", "127.0.0.1", "Modbus server IP address")
	flag.IntVarP(&args.Port, "port", "p", 502, "Modbus server port")
	flag.IntVarP(&args.UnitID, "unit", "u", 1, "Modbus unit ID (slave ID)")
	flag.DurationVar(&args.Timeout, "timeout", 5*time.Second, "Timeout for Modbus operations")
	flag.StringVarP(&args.LogLevel, "log", "l", "info", "Log level (debug, info, warn, error)")

	// Custom usage function
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		flag.PrintDefaults()
	}

	// Parse the flags
	flag.Parse()

	// Map log level string to LogLevel
	switch args.LogLevel {
	case "debug":
		args.LogLevelID = logging.LevelDebug
	case "info":
		args.LogLevelID = logging.LevelInfo
	case "warn":
		args.LogLevelID = logging.LevelWarn
	case "error":
		args.LogLevelID = logging.LevelError
	default:
		fmt.Printf("Invalid log level: %s, using 'info'\n", args.LogLevel)
		args.LogLevelID = logging.LevelInfo
	}

	return args
}

// CreateClient creates a Modbus TCP client using the command-line arguments
func (args *ModbusArgs) CreateClient() *client.TCPClient {
	logger := logging.NewLogger(
		logging.WithLevel(args.LogLevelID),
	)

	return client.NewTCPClient(
		args.IP,
		client.WithPort(args.Port),
		client.WithTimeout(args.Timeout),
		client.WithLogger(logger),
		client.WithUnitID(common.UnitID(args.UnitID)),
	)
}
