// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command pintosfsd boots the kernel core's singletons — block device,
// buffer cache, scheduler, filesystem — and runs an initial process
// reading syscall-shaped commands from stdin until it calls halt or
// hits EOF. It is not a real kernel entrypoint (nothing is mounted into
// the host's namespace); it exists to exercise internal/sched and
// internal/filesys the way the teaching kernel's own shell would.
//
// Grounded on cmd/root.go's cobra+viper flag binding and
// cmd/legacy_main.go's signal.Notify-driven shutdown goroutine.
package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/pintosfs/pintosfs/cfg"
	"github.com/pintosfs/pintosfs/internal/blockdev"
	"github.com/pintosfs/pintosfs/internal/filesys"
	"github.com/pintosfs/pintosfs/internal/kernlog"
	"github.com/pintosfs/pintosfs/internal/kernmetrics"
	"github.com/pintosfs/pintosfs/internal/kernpanic"
	"github.com/pintosfs/pintosfs/internal/kerntrace"
	"github.com/pintosfs/pintosfs/internal/sched"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var mountConfig cfg.Config

var rootCmd = &cobra.Command{
	Use:   "pintosfsd",
	Short: "Boot the pintosfs kernel core and run its init process",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(mountConfig)
	},
}

func init() {
	if err := cfg.BindFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cobra.OnInitialize(func() {
		if err := viper.Unmarshal(&mountConfig); err != nil {
			fmt.Fprintln(os.Stderr, "pintosfsd: parsing configuration:", err)
			os.Exit(1)
		}
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c cfg.Config) (err error) {
	defer kernpanic.Recover(&err)

	if logErr := kernlog.InitLogFile(kernlog.FileConfig{
		FilePath: string(c.Logging.FilePath),
		Format:   string(c.Logging.Format),
		Severity: string(c.Logging.Severity),
		Rotate: kernlog.RotateConfig{
			MaxFileSizeMB:   c.Logging.LogRotate.MaxFileSizeMb,
			BackupFileCount: c.Logging.LogRotate.BackupFileCount,
			Compress:        c.Logging.LogRotate.Compress,
		},
	}); logErr != nil {
		return fmt.Errorf("pintosfsd: configuring logger: %w", logErr)
	}
	defer kernlog.Close()

	traceShutdown, err := setupTracing()
	if err != nil {
		return fmt.Errorf("pintosfsd: setting up tracing: %w", err)
	}
	defer traceShutdown(context.Background())

	dev, err := openDevice(c.Device)
	if err != nil {
		return fmt.Errorf("pintosfsd: opening device: %w", err)
	}
	if closer, ok := dev.(*blockdev.FileDevice); ok {
		defer closer.Close()
	}

	var fs *filesys.FileSystem
	if c.Device.Format {
		fs, err = filesys.Format(dev, c.Cache.Entries)
	} else {
		fs, err = filesys.Mount(dev, c.Cache.Entries)
	}
	if err != nil {
		return fmt.Errorf("pintosfsd: initializing filesystem: %w", err)
	}

	metrics, err := setupMetrics(c.Metrics)
	if err != nil {
		return fmt.Errorf("pintosfsd: setting up metrics: %w", err)
	}
	if metrics != nil {
		fs.SetMetrics(metrics)
	}

	mode := sched.ModePriority
	if c.Scheduler.Mode == cfg.SchedModeMLFQ {
		mode = sched.ModeMLFQ
	}
	s := sched.New(mode)
	if metrics != nil {
		s.SetMetrics(metrics)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalChan
		kernlog.Infof("pintosfsd: received interrupt, shutting down")
		cancel()
	}()

	var wg sync.WaitGroup
	var halted bool
	wg.Add(1)
	s.Create(nil, "init", sched.PriDefault, func(t *sched.Thread) {
		defer wg.Done()
		p, err := filesys.NewProcess(fs, s, t)
		if err != nil {
			kernlog.Errorf("pintosfsd: starting init process: %v", err)
			return
		}
		halted = runShell(ctx, p)
	})
	wg.Wait()

	// The "halt" command already flushed and closed fs itself; calling
	// Done a second time would double-close the root directory handle.
	if !halted {
		if err := fs.Done(); err != nil {
			return fmt.Errorf("pintosfsd: shutting down filesystem: %w", err)
		}
	}
	return nil
}

// openDevice opens the device named by cfg.Device: an in-memory device
// when Path is empty, otherwise the backing file at Path, created if it
// does not exist and sized to c.Sectors sectors. It does not format the
// filesystem; run does that when Format is set.
func openDevice(c cfg.DeviceConfig) (blockdev.Device, error) {
	if c.Path == "" {
		return blockdev.NewMemDevice(blockdev.SectorNum(c.Sectors)), nil
	}
	if _, err := os.Stat(c.Path); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		f, err := os.Create(c.Path)
		if err != nil {
			return nil, err
		}
		if err := f.Truncate(int64(c.Sectors) * int64(blockdev.SectorSize)); err != nil {
			f.Close()
			return nil, err
		}
		f.Close()
	}
	return blockdev.OpenFileDevice(c.Path, blockdev.SectorNum(c.Sectors))
}

// setupTracing registers a span exporter that writes one line per
// completed syscall span to stderr, the way the teacher's FUSE
// dispatcher produced one span per inbound op. Returns the provider's
// Shutdown, to be deferred by the caller.
func setupTracing() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	if err != nil {
		return nil, fmt.Errorf("creating stdout trace exporter: %w", err)
	}
	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}

// setupMetrics registers the kernel's OpenTelemetry counters and, if
// enabled, exposes them on a Prometheus endpoint. Grounded on
// common/otel_metrics.go's meter-provider registration shape.
func setupMetrics(c cfg.MetricsConfig) (*kernmetrics.Metrics, error) {
	if !c.Enabled {
		return kernmetrics.New()
	}

	exporter, err := otelprom.New()
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}
	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	go func() {
		addr := ":" + strconv.Itoa(c.PrometheusPort)
		kernlog.Infof("pintosfsd: serving metrics on %s/metrics", addr)
		if err := http.ListenAndServe(addr, promhttp.Handler()); err != nil {
			kernlog.Errorf("pintosfsd: metrics server stopped: %v", err)
		}
	}()

	return kernmetrics.New()
}

// runShell reads one line-oriented syscall command per line from stdin
// until EOF, ctx is canceled, or the command is "halt", logging each
// result the way a teaching kernel's init shell would. It is not a
// general-purpose scripting language — each command maps directly to
// one filesys.Process method. Reports whether "halt" was the command
// that ended the loop, since halt already shuts the filesystem down
// itself.
func runShell(ctx context.Context, p *filesys.Process) bool {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			p.Exit(0)
			return false
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		stop, halted := dispatch(p, line)
		if stop {
			return halted
		}
	}
	p.Exit(0)
	return false
}

// dispatch runs one shell command against p, returning stop=true once
// the process has exited (via "exit" or "halt"), plus halted=true
// specifically for "halt" so the caller knows the filesystem is
// already shut down.
func dispatch(p *filesys.Process, line string) (stop, halted bool) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	var err error
	_, end := kerntrace.StartSyscall(context.Background(), cmd)
	defer func() { end(err) }()

	switch cmd {
	case "halt":
		if err = p.Halt(); err != nil {
			kernlog.Errorf("halt: %v", err)
		}
		return true, true
	case "exit":
		code := 0
		if len(args) > 0 {
			code, _ = strconv.Atoi(args[0])
		}
		p.Exit(code)
		return true, false
	case "create":
		if len(args) < 1 {
			kernlog.Warnf("create: usage: create <path> [size]")
			return false, false
		}
		var size int64
		if len(args) > 1 {
			size, _ = strconv.ParseInt(args[1], 10, 64)
		}
		if _, err = p.Create(args[0], size); err != nil {
			kernlog.Errorf("create %s: %v", args[0], err)
		}
	case "mkdir":
		if len(args) < 1 {
			kernlog.Warnf("mkdir: usage: mkdir <path>")
			return false, false
		}
		if _, err = p.Mkdir(args[0]); err != nil {
			kernlog.Errorf("mkdir %s: %v", args[0], err)
		}
	case "remove":
		if len(args) < 1 {
			kernlog.Warnf("remove: usage: remove <path>")
			return false, false
		}
		if _, err = p.Remove(args[0]); err != nil {
			kernlog.Errorf("remove %s: %v", args[0], err)
		}
	case "chdir":
		if len(args) < 1 {
			kernlog.Warnf("chdir: usage: chdir <path>")
			return false, false
		}
		if err = p.Chdir(args[0]); err != nil {
			kernlog.Errorf("chdir %s: %v", args[0], err)
		}
	case "ls":
		if len(args) < 1 {
			kernlog.Warnf("ls: usage: ls <path>")
			return false, false
		}
		var fd int
		fd, err = p.Open(args[0])
		if err != nil {
			kernlog.Errorf("ls %s: %v", args[0], err)
			return false, false
		}
		defer p.Close(fd)
		for {
			var name string
			var ok bool
			name, ok, err = p.Readdir(fd)
			if err != nil {
				kernlog.Errorf("ls %s: %v", args[0], err)
				return false, false
			}
			if !ok {
				break
			}
			fmt.Println(name)
		}
	default:
		kernlog.Warnf("unrecognized command: %s", cmd)
	}
	return false, false
}
