// Command runprog runs programs in the sandbox. "run" executes one program
// and prints its result line, "judge" evaluates test cases and prints one
// verdict per case as JSON.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/judgecore/sandbox/config"
	"github.com/judgecore/sandbox/executor"
	"github.com/judgecore/sandbox/monitor"
	"github.com/judgecore/sandbox/pkg/logger"
)

var (
	configPath  string
	metricsAddr string
	logLevel    string
)

func main() {
	root := &cobra.Command{
		Use:           "runprog",
		Short:         "Run programs under resource ceilings and an operation filter",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	root.AddCommand(newRunCommand(), newJudgeCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "runprog:", err)
		var se *statusError
		if errors.As(err, &se) {
			os.Exit(se.code)
		}
		os.Exit(1)
	}
}

// statusError exits with code without further output
type statusError struct {
	code int
	err  error
}

func (e *statusError) Error() string { return e.err.Error() }

func (e *statusError) Unwrap() error { return e.err }

// env is what both commands share: configuration, logger, executor and the
// optional metrics endpoint
type env struct {
	cfg     *config.Config
	logger  *zap.Logger
	exec    *executor.Executor
	metrics *monitor.Metrics
	server  *http.Server
}

func setup() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logger.Level = logLevel
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, logger: l}

	opt := executor.Options{
		Logger:        l.Named("executor"),
		ProbeInterval: cfg.ProbeInterval,
	}
	if cfg.Cgroup.Enabled {
		opt.CgroupRoot = cfg.Cgroup.Root
	}
	if e.exec, err = executor.New(opt); err != nil {
		l.Sync()
		return nil, err
	}

	e.metrics = monitor.NewMetrics()
	if cfg.Metrics.Addr != "" {
		e.serveMetrics(cfg.Metrics.Addr)
	}
	return e, nil
}

func (e *env) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.metrics.Registry, promhttp.HandlerOpts{}))
	e.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("metrics server", zap.Error(err))
		}
	}()
	e.logger.Info("serving metrics", zap.String("addr", addr))
}

func (e *env) close() {
	if e.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		e.server.Shutdown(ctx)
		cancel()
	}
	e.logger.Sync()
}
