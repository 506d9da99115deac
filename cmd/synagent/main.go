// Command synagent is the long-running fleet agent: it watches for
// control-plane task assignments (a fixture file until a real client is
// wired in, SPEC_FULL.md §6.x), runs one task loop per assigned task, and
// ships batched records to a telemetry sink.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/kentik/synthetics-agent/internal/agent"
	"github.com/kentik/synthetics-agent/internal/agentlog"
	"github.com/kentik/synthetics-agent/internal/control"
	"github.com/kentik/synthetics-agent/internal/export"
	"github.com/kentik/synthetics-agent/internal/export/columnar"
	"github.com/kentik/synthetics-agent/internal/export/jsonsink"
	"github.com/kentik/synthetics-agent/internal/export/lineproto"
	"github.com/kentik/synthetics-agent/internal/probe/knock"
	"github.com/kentik/synthetics-agent/internal/probe/ping"
	"github.com/kentik/synthetics-agent/internal/probe/trace"
	"github.com/kentik/synthetics-agent/internal/task"
)

var (
	tasksFile    = pflag.String("tasks", "", "Path to a JSON fixture of control-plane tasks (required).")
	devicesFile  = pflag.String("devices", "", "Path to a JSON device/column registry (optional).")
	sinkKind     = pflag.String("sink", "jsonsink", "Telemetry sink: columnar, lineproto, or jsonsink.")
	sinkURL      = pflag.String("sink-url", "", "HTTP endpoint the sink POSTs batches to (optional; logged only if empty).")
	flushPeriod  = pflag.Duration("flush-interval", 10*time.Second, "Exporter flush tick.")
	reconnectMin = pflag.Int("simulate-reconnects", 0, "Simulated failed control-plane connects before the watcher connects.")
)

func main() {
	pflag.Parse()
	logger := agentlog.New(os.Stderr, "synagent")

	if *tasksFile == "" {
		fmt.Fprintln(os.Stderr, "synagent: --tasks is required")
		os.Exit(1)
	}

	groups, err := loadGroups(*tasksFile)
	if err != nil {
		logger.Fatalf("loading tasks fixture: %v", err)
	}

	devices, err := loadDevices(*devicesFile)
	if err != nil {
		logger.Fatalf("loading devices registry: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engines, err := newEngines(ctx)
	if err != nil {
		logger.Fatalf("opening probe transports: %v", err)
	}

	sink, err := newSink(*sinkKind, *sinkURL)
	if err != nil {
		logger.Fatalf("configuring sink: %v", err)
	}

	watcher := control.NewStaticWatcher(groups, 5*time.Minute)
	watcher.FailFirst = *reconnectMin
	watcher.Log = logger

	queue := export.NewQueue()
	a := agent.New(watcher, engines, queue, sink, devices, logger)
	a.Flusher.Interval = *flushPeriod

	logger.Printf("starting: %d group(s), sink=%s", len(groups), *sinkKind)
	if err := a.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatalf("agent exited: %v", err)
	}
	logger.Printf("stopped")
}

func loadGroups(path string) ([]control.Group, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	tasks, err := control.DecodeTasks(f)
	if err != nil {
		return nil, err
	}
	return tasks.Groups, nil
}

func loadDevices(path string) (map[uint64]export.Device, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var devices []export.Device
	if err := json.NewDecoder(f).Decode(&devices); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	byID := make(map[uint64]export.Device, len(devices))
	for _, d := range devices {
		byID[d.ID] = d
	}
	return byID, nil
}

func newEngines(ctx context.Context) (*task.Engines, error) {
	pingEngine, err := ping.NewEngine(ctx)
	if err != nil {
		return nil, fmt.Errorf("ping engine: %w", err)
	}
	traceEngine, err := trace.NewEngine(ctx)
	if err != nil {
		return nil, fmt.Errorf("trace engine: %w", err)
	}
	knockEngine, err := knock.NewEngine(ctx)
	if err != nil {
		return nil, fmt.Errorf("knock engine: %w", err)
	}
	return &task.Engines{Ping: pingEngine, Trace: traceEngine, Knock: knockEngine}, nil
}

func newSink(kind, url string) (export.Sink, error) {
	var send func(ctx context.Context, payload []byte) error
	var encode func(target *export.Target, records []task.Record) ([]byte, error)
	var validate func(device export.Device) error

	switch kind {
	case "columnar":
		encode, send = columnar.NewEncoder().Encode, columnar.NewClient(url).Send
		validate = columnar.ValidateDevice
	case "lineproto":
		enc := lineproto.NewEncoder()
		encode, send = enc.Encode, lineproto.NewClient(url).Send
	case "jsonsink":
		enc := jsonsink.NewEncoder()
		encode, send = enc.Encode, jsonsink.NewClient(url).Send
	default:
		return nil, fmt.Errorf("unknown sink %q", kind)
	}

	if url == "" {
		send = func(ctx context.Context, payload []byte) error { return nil }
	}
	return combinedSink{encode: encode, send: send, validate: validate}, nil
}

// combinedSink adapts a standalone encoder/client pair to export.Sink.
type combinedSink struct {
	encode   func(target *export.Target, records []task.Record) ([]byte, error)
	send     func(ctx context.Context, payload []byte) error
	validate func(device export.Device) error
}

// ValidateDevice forwards to the columnar sink's required-column check so
// agent.New can install it; the other sinks accept every device.
func (s combinedSink) ValidateDevice(device export.Device) error {
	if s.validate == nil {
		return nil
	}
	return s.validate(device)
}

func (s combinedSink) Encode(target *export.Target, records []task.Record) ([]byte, error) {
	return s.encode(target, records)
}

func (s combinedSink) Send(ctx context.Context, payload []byte) error {
	return s.send(ctx, payload)
}
