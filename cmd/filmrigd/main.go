package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/google/uuid"

	"github.com/cineto/filmrig/internal/command"
	"github.com/cineto/filmrig/internal/config"
	"github.com/cineto/filmrig/internal/debug"
	"github.com/cineto/filmrig/internal/hw/gpio"
	"github.com/cineto/filmrig/internal/hw/sensor"
	"github.com/cineto/filmrig/internal/hw/stepper"
	"github.com/cineto/filmrig/internal/motor"
	"github.com/cineto/filmrig/internal/session"
	"github.com/cineto/filmrig/internal/stream"
	"github.com/cineto/filmrig/internal/web"
	"github.com/cineto/filmrig/internal/wire"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start status server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	imgPort := flag.Int("img-port", 0, "override image channel port")
	ctrlPort := flag.Int("ctrl-port", 0, "override control channel port")
	mock := flag.Bool("mock", false, "force mock GPIO (development on PC)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if err := applyOverrides(cfg, *imgPort, *ctrlPort, webPort.port(), *mock); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Summary("filmrig server")
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	// Initialize GPIO driver
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	// Initialize the transport motor
	debug.Step(2, "Initializing transport motor")
	transport := stepper.New(gpioDriver, stepper.Config{
		StepPin:       cfg.Stepper.StepPin,
		DirPin:        cfg.Stepper.DirPin,
		EnablePin:     cfg.Stepper.EnablePin,
		StepsPerFrame: cfg.Stepper.StepsPerFrame,
		StepDelay:     cfg.StepDelay(),
	})
	debug.PrintStruct("Transport motor config", cfg.Stepper)

	// Initialize the image sensor
	debug.Step(3, "Initializing image sensor")
	cam, err := newSensorFromConfig(cfg)
	if err != nil {
		log.Fatalf("init sensor failed: %v", err)
	}
	debug.Value("Sensor type", cfg.Sensor.Type)

	// Open the two client channels
	debug.Step(4, "Opening client channels")
	imgListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Net.ImagePort))
	if err != nil {
		log.Fatalf("listen on image port %d failed: %v", cfg.Net.ImagePort, err)
	}
	ctrlListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Net.ControlPort))
	if err != nil {
		log.Fatalf("listen on control port %d failed: %v", cfg.Net.ControlPort, err)
	}

	debug.Info("Waiting for connection with the client...")
	imgConn, err := imgListener.Accept()
	if err != nil {
		log.Fatalf("accept on image port failed: %v", err)
	}
	ctrlConn, err := ctrlListener.Accept()
	if err != nil {
		log.Fatalf("accept on control port failed: %v", err)
	}
	sessionID := uuid.NewString()
	debug.Info("Client connection established (session %s)", sessionID)

	// Wire up the concurrent machinery
	debug.Step(5, "Starting transmit pool and transport driver")
	wr := wire.NewWriter(imgConn)
	reader := command.NewReader(ctrlConn)
	pool := stream.NewPool(wr, cfg.Capture.PoolSize)
	coord := motor.New(transport, gpioDriver, cfg.Stepper.LightPin, wr)

	ctrl := session.New(session.Deps{
		Config:    cfg,
		Sensor:    cam,
		Writer:    wr,
		Pool:      pool,
		Motor:     coord,
		Reader:    reader,
		Conns:     []io.Closer{imgConn, ctrlConn},
		Listeners: []io.Closer{imgListener, ctrlListener},
	})

	// Optional web status server
	if cfg.Net.WebPort > 0 {
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

		statusFn := func() web.Status {
			return web.Status{
				SessionID:  sessionID,
				Mode:       ctrl.Mode().String(),
				FrameCount: ctrl.FrameCount(),
				ExposureUs: ctrl.ExposureUs(),
				LightOn:    ctrl.LightOn(),
				IdleSlots:  pool.IdleCount(),
			}
		}
		srv := web.NewServer(fmt.Sprintf(":%d", cfg.Net.WebPort), broadcaster, statusFn)
		go func() {
			if err := srv.Run(ctx); err != nil {
				debug.Error(err)
			}
		}()
	}

	// Operator interrupt: notify the client, then run the full shutdown.
	go func() {
		<-ctx.Done()
		debug.Info("Interrupt received")
		ctrl.Abort()
	}()

	debug.Section("Session running")
	ctrl.Run()
	ctrl.Exit()
}

// applyOverrides mutates cfg with CLI overrides. Zero values mean "use config".
func applyOverrides(cfg *config.Config, imgPort, ctrlPort, webPort int, mock bool) error {
	for _, p := range []int{imgPort, ctrlPort} {
		if p != 0 && (p < 1 || p > 65535) {
			return fmt.Errorf("port must be 1-65535, got %d", p)
		}
	}
	if imgPort > 0 {
		cfg.Net.ImagePort = imgPort
	}
	if ctrlPort > 0 {
		cfg.Net.ControlPort = ctrlPort
	}
	if cfg.Net.ImagePort == cfg.Net.ControlPort {
		return fmt.Errorf("image and control ports must differ, both are %d", cfg.Net.ImagePort)
	}
	if webPort > 0 {
		cfg.Net.WebPort = webPort
	}
	if mock {
		cfg.Defaults.MockGPIO = true
	}
	return nil
}

// newSensorFromConfig selects a sensor implementation based on configuration.
func newSensorFromConfig(cfg *config.Config) (sensor.Sensor, error) {
	switch cfg.Sensor.Type {
	case "sim":
		return sensor.NewSim(sensor.SimConfig{
			SceneExposureUs: cfg.Sensor.SceneExposureUs,
			PipelineLag:     cfg.Sensor.PipelineLag,
			WidthPx:         cfg.Sensor.WidthPx,
			HeightPx:        cfg.Sensor.HeightPx,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported sensor type: %s", cfg.Sensor.Type)
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
