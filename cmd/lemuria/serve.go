package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/lemuria/internal/config"
	"github.com/muurk/lemuria/internal/device"
	"github.com/muurk/lemuria/internal/discovery"
	"github.com/muurk/lemuria/internal/events"
	"github.com/muurk/lemuria/internal/logging"
	"github.com/muurk/lemuria/internal/nvmstore"
	"github.com/muurk/lemuria/internal/playback"
	"github.com/muurk/lemuria/internal/server"
	"github.com/muurk/lemuria/internal/ui"
)

// Serve command flags
var (
	servePort       int
	serveHost       string
	serveLogLevel   string
	serveCaptureDir string
	serveStartTime  float64
	serveHTTPAddr   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the emulated device",
	Long: `Start the emulated Asphodel device.

The device listens for one TCP client at a time, answers UDP inquiries on the
same port, and replays capture files as stream data while the client has at
least one stream enabled. Flags override the configuration file.`,
	Example: `  # Run with the default configuration
  lemuria serve

  # Replay captures from a directory starting at a given time
  lemuria serve --capture-dir ./captures --start-time 1700000000

  # Use a custom configuration on another port with debug logging
  lemuria serve --config bench.yaml --port 6000 --log-level debug`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "TCP and UDP port (default from config, 5760)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (empty = all interfaces)")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	serveCmd.Flags().StringVar(&serveCaptureDir, "capture-dir", "", "Directory of capture files to replay")
	serveCmd.Flags().Float64Var(&serveStartTime, "start-time", 0, "Playback start time in Unix seconds (default: first capture)")
	serveCmd.Flags().StringVar(&serveHTTPAddr, "http-addr", "", "Monitor listen address (health, status, events)")

	rootCmd.AddCommand(serveCmd)
}

// applyServeFlags copies explicitly set flags over cfg and revalidates it
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port = servePort
	}
	if flags.Changed("host") {
		cfg.Server.Host = serveHost
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = serveLogLevel
	}
	if flags.Changed("capture-dir") {
		cfg.Playback.CaptureDir = serveCaptureDir
	}
	if flags.Changed("start-time") {
		cfg.Playback.StartTime = serveStartTime
	}
	if flags.Changed("http-addr") {
		cfg.Server.HTTPAddr = serveHTTPAddr
	}
	return config.Validate(cfg)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := applyServeFlags(cmd, cfg); err != nil {
		return err
	}

	level := cfg.LogLevel
	if level == "" && os.Getenv(logging.LogLevelEnvVar) == "" {
		level = "info"
	}
	if err := logging.Initialize(level); err != nil {
		return err
	}
	defer logging.Sync()

	emu, err := startEmulator(context.Background(), cfg)
	if err != nil {
		return err
	}

	printBanner(emu)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logging.Info("Shutdown signal received, stopping emulator...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	emu.Shutdown(ctx)
	return nil
}

// emulator is a running device with its server, playback and event plumbing
type emulator struct {
	cfg     *config.Config
	device  *device.Device
	server  *server.Server
	engine  *playback.Engine
	bus     *events.Bus
	monitor *server.Monitor
	mdns    *discovery.Publication
	index   playback.Index
	start   float64
}

// startEmulator assembles and starts every component described by cfg
func startEmulator(ctx context.Context, cfg *config.Config) (*emulator, error) {
	p, err := cfg.Device.Personality()
	if err != nil {
		return nil, err
	}

	var store device.NVMStore
	if cfg.State.NVMPath != "" {
		s, err := loadNVM(cfg.State.NVMPath, p)
		if err != nil {
			return nil, err
		}
		store = s
	}

	emu := &emulator{cfg: cfg, device: device.New(p, store)}

	sinks := []events.Sink{events.LogSink{}}
	if cfg.Events.NATSURL != "" {
		sink, err := events.DialNATS(cfg.Events.NATSURL)
		if err != nil {
			closeSinks(sinks)
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	if cfg.Events.RedisURL != "" {
		sink, err := events.DialRedis(ctx, cfg.Events.RedisURL, cfg.Events.SessionTTL)
		if err != nil {
			closeSinks(sinks)
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	var hub *events.Hub
	if cfg.Server.HTTPAddr != "" {
		hub = events.NewHub()
		sinks = append(sinks, hub)
	}

	emu.bus = events.NewBus(p.Identity.SerialNumber, sinks...)
	emu.device.AddStreamObserver(emu.bus)

	emu.server = server.New(server.Config{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		AdvertiseInterval: cfg.Server.AdvertiseInterval,
		AdvertiseAddress:  cfg.Server.AdvertiseAddress,
		QueueSize:         cfg.Server.QueueSize,
	}, emu.device, emu.bus)
	if err := emu.server.Start(); err != nil {
		emu.bus.Close()
		return nil, err
	}

	emu.index, err = playback.LoadIndex(cfg.Playback.CaptureDir, cfg.Playback.Pattern)
	if err != nil {
		emu.Shutdown(ctx)
		return nil, err
	}
	if len(emu.index) == 0 {
		logging.Warn("No capture files found, streams will carry no data",
			zap.String("dir", cfg.Playback.CaptureDir),
			zap.String("pattern", cfg.Playback.Pattern))
	}
	emu.start = cfg.Playback.StartTime
	if emu.start == 0 && len(emu.index) > 0 {
		emu.start = emu.index[0].Timestamp
	}
	emu.engine = playback.NewEngine(emu.index, emu.start, emu.server)
	emu.device.AddStreamObserver(emu.engine)
	emu.engine.Run()

	if hub != nil {
		emu.monitor = server.NewMonitor(cfg.Server.HTTPAddr, emu.server, hub)
		if err := emu.monitor.Start(); err != nil {
			emu.monitor = nil
			emu.Shutdown(ctx)
			return nil, err
		}
	}

	if cfg.Server.MDNS {
		port := emu.server.Addr().(*net.TCPAddr).Port
		emu.mdns, err = discovery.Publish(&discovery.Announcement{
			Serial:        p.Identity.SerialNumber,
			Board:         p.Identity.BoardName,
			BoardRevision: p.Identity.BoardRevision,
			UserTag1:      cfg.Device.UserTag1,
			UserTag2:      cfg.Device.UserTag2,
			Port:          port,
		})
		if err != nil {
			// The device is still reachable by inquiry
			logging.Warn("mDNS publication failed", zap.Error(err))
		}
	}

	return emu, nil
}

// loadNVM opens the snapshot store at path and overlays a saved image on
// the personality's initial NVM
func loadNVM(path string, p *device.Personality) (*nvmstore.Store, error) {
	store, err := nvmstore.New(path, p.Identity.SerialNumber)
	if err != nil {
		return nil, err
	}

	nvm, ok, err := store.Load()
	if err != nil {
		return nil, err
	}
	switch {
	case !ok:
		logging.Info("No NVM snapshot, starting from configured image", zap.String("path", path))
	case len(nvm) != len(p.Identity.NVM):
		logging.Warn("NVM snapshot size differs from nvm_size, ignoring it",
			zap.String("path", path),
			zap.Int("snapshot", len(nvm)),
			zap.Int("configured", len(p.Identity.NVM)))
	default:
		p.Identity.NVM = nvm
		logging.Info("Restored NVM snapshot", zap.String("path", path))
	}
	return store, nil
}

func closeSinks(sinks []events.Sink) {
	for _, s := range sinks {
		s.Close()
	}
}

// Shutdown stops every component. Stream playback stops before the server
// so that no packet is queued to a closed socket.
func (e *emulator) Shutdown(ctx context.Context) {
	if e.mdns != nil {
		e.mdns.Shutdown()
	}
	if e.monitor != nil {
		if err := e.monitor.Shutdown(ctx); err != nil {
			logging.Warn("Monitor shutdown failed", zap.Error(err))
		}
	}
	if e.engine != nil {
		e.engine.Close()
	}
	if err := e.server.Close(); err != nil {
		logging.Warn("Server shutdown failed", zap.Error(err))
	}
	e.bus.Close()
}

func printBanner(e *emulator) {
	id := e.device.Identity()

	params := []ui.Detail{
		{Key: "Serial", Value: id.SerialNumber},
		{Key: "Board", Value: fmt.Sprintf("%s rev %d", id.BoardName, id.BoardRevision)},
		{Key: "TCP", Value: e.server.Addr().String()},
		{Key: "UDP", Value: e.server.UDPAddr().String()},
		{Key: "Captures", Value: fmt.Sprintf("%d in %s", len(e.index), e.cfg.Playback.CaptureDir)},
	}
	if len(e.index) > 0 {
		params = append(params, ui.Detail{Key: "Start time", Value: formatTimestamp(e.start)})
	}
	if e.monitor != nil {
		params = append(params, ui.Detail{Key: "Monitor", Value: "http://" + e.monitor.Addr().String()})
	}

	p := ui.NewPrinter(nil)
	p.Print(ui.NewHeader("Asphodel Emulator", "lemuria serve", params...))
	p.Println("Press Ctrl+C to stop.")
}

// formatTimestamp renders Unix seconds as RFC 3339 with the raw value
func formatTimestamp(ts float64) string {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC().Format(time.RFC3339Nano) + " (" + strconv.FormatFloat(ts, 'f', -1, 64) + ")"
}
