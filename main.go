package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"lkas-service/gwm"

	"github.com/joho/godotenv"
)

var (
	version     = flag.Bool("version", false, "Print version info")
	help        = flag.Bool("help", false, "Print help")
	logLevel    = flag.Int("log", 3, "Log level (0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG)")
	redisServer = flag.String("redis_server", "127.0.0.1", "Redis server address")
	redisPort   = flag.Int("redis_port", 6379, "Redis server port")
	canDevice   = flag.String("can_device", "can0", "Powertrain CAN device name")
	camDevice   = flag.String("cam_can_device", "", "Camera CAN device name (empty disables the camera bus)")
	profilePath = flag.String("profile", "", "Platform profile TOML overlay")
	cycleRate   = flag.Int("rate", 100, "Control cycle rate in Hz")
	dryRun      = flag.Bool("dry_run", false, "Decode and validate but never transmit")
)

// Environment variables that seed flag values; command line flags win
var envFlags = []struct {
	env  string
	flag string
}{
	{"LKAS_LOG", "log"},
	{"LKAS_REDIS_SERVER", "redis_server"},
	{"LKAS_REDIS_PORT", "redis_port"},
	{"LKAS_CAN_DEVICE", "can_device"},
	{"LKAS_CAM_CAN_DEVICE", "cam_can_device"},
	{"LKAS_PROFILE", "profile"},
	{"LKAS_RATE", "rate"},
	{"LKAS_DRY_RUN", "dry_run"},
}

const (
	ProjectName    = "lkas-service"
	ProjectVersion = "1.0.0"
)

func applyEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to load .env: %v", err)
	}

	for _, ef := range envFlags {
		v := os.Getenv(ef.env)
		if v == "" {
			continue
		}
		if err := flag.Set(ef.flag, v); err != nil {
			log.Fatalf("invalid %s=%q: %v", ef.env, v, err)
		}
	}
}

func printVersion() {
	fmt.Printf("%s v%s\n", ProjectName, ProjectVersion)
}

func printHelp() {
	printVersion()
	flag.PrintDefaults()
}

func main() {
	applyEnv()
	flag.Parse()

	if *version {
		printVersion()
		os.Exit(0)
	}

	if *help {
		printHelp()
		os.Exit(0)
	}

	// Validate log level
	if *logLevel < 0 || *logLevel > 4 {
		log.Fatalf("invalid log level %d", *logLevel)
	}

	if *cycleRate < 1 || *cycleRate > 1000 {
		log.Fatalf("invalid cycle rate %d Hz", *cycleRate)
	}

	profile, err := gwm.LoadProfile(*profilePath)
	if err != nil {
		log.Fatalf("failed to load profile: %v", err)
	}

	opts := &Options{
		LogLevel:        LogLevel(*logLevel),
		RedisServerAddr: *redisServer,
		RedisServerPort: uint16(*redisPort),
		CANDevice:       *canDevice,
		CameraCANDevice: *camDevice,
		Profile:         profile,
		CycleRate:       *cycleRate,
		DryRun:          *dryRun,
	}

	app, err := NewLKASApp(opts)
	if err != nil {
		log.Fatalf("failed to create lkas app: %v", err)
	}
	defer app.Destroy()

	// Handle SIGINT and SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Run until signal received
	<-sigChan
}
