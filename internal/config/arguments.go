package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/tkjaer/mping/internal/probe"
	"github.com/tkjaer/mping/internal/version"
)

type Args struct {
	Targets     []string
	Count       uint
	Concurrency uint
	NoResolve   bool

	// Probes
	PayloadSize  uint
	Unprivileged bool

	// Timing
	Timeout  time.Duration
	Interval time.Duration

	// Statistics
	Percentiles      []float64
	PercentileMethod probe.PercentileMethod

	// Output
	Json     bool   // output json to stdout
	JsonFile string // output json to file alongside text
	PromFile string // node_exporter textfile path

	// Logging
	Log      string // log file path, empty means no logging
	LogLevel string // log level: debug, info, warn, error
}

func ParseArgs() (Args, error) {
	var args Args
	var showVersion bool
	var percentiles, method string

	// Set custom usage message
	flag.Usage = func() {
		println("mping - concurrent ICMP latency and loss measurement")
		println()
		println("Sends echo requests to many hosts at once and reports mean RTT,")
		println("loss and RTT percentiles per host.")
		println()
		println("Usage:")
		println("  mping [OPTIONS] HOST [HOST...]")
		println()
		println("Examples:")
		println("  mping 127.0.0.1 8.8.8.8                  # 10 probes per host")
		println("  mping -c 1000 -P 8 -t 50ms 8.8.8.8       # 1000 probes, 8 in flight, 50ms timeout")
		println("  mping -p 0.5,0.9,0.99 -J example.com     # custom percentiles, JSON to stdout")
		println("  mping --prom-file /var/lib/node_exporter/mping.prom 192.0.2.1")
		println()
		println("Options:")
		flag.PrintDefaults()
		println()
		println("Documentation: https://github.com/tkjaer/mping")
		println("Report issues: https://github.com/tkjaer/mping/issues")
	}

	flag.BoolVarP(&showVersion, "version", "v", false, "Show version information")
	flag.UintVarP(&args.Count, "count", "c", 10, "Number of echo requests per host")
	flag.UintVarP(&args.Concurrency, "concurrency", "P", 8, "Maximum echo requests in flight across all hosts")
	flag.DurationVarP(&args.Timeout, "timeout", "t", 1*time.Second, "Reply timeout per echo request")
	flag.DurationVarP(&args.Interval, "interval", "i", 0, "Minimum delay between two sends (0 = as fast as the pool allows)")
	flag.StringVarP(&percentiles, "percentiles", "p", "0.95,0.99", "Comma separated RTT percentiles between 0 and 1")
	flag.StringVar(&method, "percentile-method", "nearest", "Percentile method: nearest or linear")
	flag.UintVarP(&args.PayloadSize, "size", "s", probe.DefaultPayloadSize, "Echo payload size in bytes")
	flag.BoolVar(&args.Unprivileged, "unprivileged", false, "Use an unprivileged datagram ICMP socket instead of a raw socket")
	flag.BoolVarP(&args.NoResolve, "no-resolve", "n", false, "Do not resolve IP addresses to hostnames")
	flag.BoolVarP(&args.Json, "json", "J", false, "Write JSON output to stdout instead of text")
	flag.StringVarP(&args.JsonFile, "json-file", "j", "", "Write JSON output to file (keeps text output)")
	flag.StringVar(&args.PromFile, "prom-file", "", "Write results as a Prometheus textfile")
	flag.StringVarP(&args.Log, "log", "l", "", "Diagnostic log file (empty = stderr)")
	flag.StringVar(&args.LogLevel, "log-level", "error", "Log level: debug, info, warn, error")
	flag.Parse()

	// Handle version flag
	if showVersion {
		fmt.Println(version.FullVersion())
		os.Exit(0)
	}

	args.Targets = flag.Args()
	if len(args.Targets) == 0 {
		return args, errors.New("at least one host is required")
	}

	switch {
	case args.Json && args.JsonFile != "":
		return args, errors.New("cannot use both --json and --json-file")
	case args.Count < 1 || args.Count > probe.MaxCount:
		return args, fmt.Errorf("count must be between 1 and %d", probe.MaxCount)
	case args.Concurrency < 1:
		return args, errors.New("concurrency must be at least 1")
	case args.Timeout <= 0:
		return args, errors.New("timeout must be positive")
	case args.Interval < 0:
		return args, errors.New("interval cannot be negative")
	case args.PayloadSize > probe.MaxPayloadSize:
		return args, fmt.Errorf("size must be at most %d", probe.MaxPayloadSize)
	}

	var err error
	if args.Percentiles, err = ParsePercentiles(percentiles); err != nil {
		return args, err
	}
	if args.PercentileMethod, err = probe.ParsePercentileMethod(method); err != nil {
		return args, errors.New("percentile method must be either 'nearest' or 'linear'")
	}

	return args, nil
}

// ParsePercentiles parses a comma separated list such as "0.95,0.99".
// Duplicates are dropped, order is kept.
func ParsePercentiles(s string) ([]float64, error) {
	var out []float64
	seen := make(map[float64]bool)
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		p, err := strconv.ParseFloat(field, 64)
		if err != nil || math.IsNaN(p) || p < 0 || p > 1 {
			return nil, fmt.Errorf("percentile %q must be a number between 0 and 1", field)
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out, nil
}

// PingerOptions translates the arguments into engine options.
func (a Args) PingerOptions() []probe.Option {
	return []probe.Option{
		probe.WithPrivileged(!a.Unprivileged),
		probe.WithPayloadSize(int(a.PayloadSize)),
		probe.WithInterval(a.Interval),
		probe.WithPercentileMethod(a.PercentileMethod),
		probe.WithPTRLookup(!a.NoResolve),
	}
}
