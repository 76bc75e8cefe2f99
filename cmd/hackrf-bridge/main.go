package main

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	kongyaml "github.com/alecthomas/kong-yaml"
	"github.com/nats-io/nats-server/v2/logger"
	nats "github.com/nats-io/nats-server/v2/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type CLI struct {
	Config      string     `help:"Configuration file (json, yaml or toml)." type:"path" env:"HACKRF_CONFIG"`
	Log         LogConfig  `embed:"" prefix:"log."`
	Radio       RadioFlags `embed:""`
	MetricsAddr string     `help:"Serve Prometheus metrics on this address." env:"HACKRF_METRICS_ADDR"`

	Info    InfoCmd    `cmd:"" help:"Print device information."`
	Capture CaptureCmd `cmd:"" help:"Record received samples to a capture file."`
	Replay  ReplayCmd  `cmd:"" help:"Transmit the samples of a capture file."`
}

type LogConfig struct {
	Level string `help:"Log level." enum:"info,debug,trace" default:"info" env:"HACKRF_LOG_LEVEL"`
	Time  bool   `help:"Prefix log lines with a timestamp." default:"true" negatable:""`
}

func main() {
	userCfg := findUserConfig(os.Args[1:])
	jsonPaths, yamlPaths, tomlPaths := configCandidatePaths(userCfg)

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("hackrf-bridge"),
		kong.Description("Stream HackRF samples to and from capture files"),
		kong.UsageOnError(),
		// Flags and environment override config file values.
		kong.Configuration(kong.JSON, jsonPaths...),
		kong.Configuration(kongyaml.Loader, yamlPaths...),
		kong.Configuration(kongtoml.Loader, tomlPaths...),
	)

	log := newLogger(cli.Log)

	reg := prometheus.NewRegistry()
	if cli.MetricsAddr != "" {
		go serveMetrics(cli.MetricsAddr, reg, log)
	}

	err := ctx.Run(&env{log: log, radio: cli.Radio, reg: reg})
	ctx.FatalIfErrorf(err)
}

func newLogger(c LogConfig) nats.Logger {
	debug := c.Level == "debug" || c.Level == "trace"
	trace := c.Level == "trace"
	return logger.NewStdLogger(c.Time, debug, trace, true, false)
}

func serveMetrics(addr string, reg *prometheus.Registry, log nats.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	log.Noticef("serving metrics on %s/metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Errorf("metrics server: %v", err)
	}
}

func findUserConfig(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "--config=") {
			return a[len("--config="):]
		}
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return os.Getenv("HACKRF_CONFIG")
}

// configCandidatePaths routes the user supplied file to the loader matching
// its extension, followed by hackrf-bridge.* in the working directory.
func configCandidatePaths(userPath string) (jsonPaths, yamlPaths, tomlPaths []string) {
	if userPath != "" {
		switch filepath.Ext(userPath) {
		case ".yaml", ".yml":
			yamlPaths = append(yamlPaths, userPath)
		case ".toml":
			tomlPaths = append(tomlPaths, userPath)
		default:
			jsonPaths = append(jsonPaths, userPath)
		}
	}
	wd, _ := os.Getwd()
	base := filepath.Join(wd, "hackrf-bridge")
	jsonPaths = append(jsonPaths, base+".json")
	yamlPaths = append(yamlPaths, base+".yaml", base+".yml")
	tomlPaths = append(tomlPaths, base+".toml")
	return jsonPaths, yamlPaths, tomlPaths
}
