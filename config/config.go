package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"unravel/hasher"
	"unravel/version"
)

type Config struct {
	Inputs                []string          `json:"inputs"`
	WorkDirectory         string            `json:"work_directory"`
	UnpackDirectory       string            `json:"unpack_directory"`
	TemporaryDirectory    string            `json:"temporary_directory"`
	ResultsDirectory      string            `json:"results_directory"`
	MaxBytes              int64             `json:"max_bytes"`
	MaxFileSize           int64             `json:"max_file_size"`
	MinScanSize           int64             `json:"min_scan_size"`
	ReadSize              int               `json:"read_size"`
	SynthesizedMinimum    int64             `json:"synthesized_minimum"`
	PaddingName           string            `json:"padding_name"`
	ScanCarves            bool              `json:"scan_carves"`
	ConcurrencyLevel      int               `json:"concurrency_level"`
	NiceLevel             string            `json:"nice_level"`
	AutoTune              bool              `json:"auto_tune"`
	QueueSize             int               `json:"queue_size"`
	HashAlgorithms        []string          `json:"hash_algorithms"`
	FuzzyHash             bool              `json:"fuzzy_hash"`
	FuzzyAlgorithms       []string          `json:"fuzzy_algorithms"`
	FuzzyMinSize          int64             `json:"fuzzy_min_size"`
	FuzzyMaxSize          int64             `json:"fuzzy_max_size"`
	ResultFormat          string            `json:"result_format"`
	ResultCompression     string            `json:"result_compression"`
	MetadataMaxBytes      int64             `json:"metadata_max_bytes"`
	LogLevel              string            `json:"log_level"`
	MaxIOPerSecond        int               `json:"max_io_per_second"`
	ContentReadMode       string            `json:"content_read_mode"`
	MmapMinSize           int64             `json:"mmap_min_size"`
	KnownHashesFile       string            `json:"known_hashes_file"`
	IncludePatterns       []string          `json:"include_patterns"`
	ExcludePatterns       []string          `json:"exclude_patterns"`
	ConfigFile            string            `json:"config_file"`
	DiagSlowScanThreshold time.Duration     `json:"diag_slow_scan_threshold"`
	DiagDir               string            `json:"diag_dir"`
	DiagGoroutineLeak     bool              `json:"diag_goroutine_leak"`
	OtelEndpoint          string            `json:"otel_endpoint"`
	OtelFromEnv           bool              `json:"otel_from_env"`
	OtelHeaders           map[string]string `json:"otel_headers"`
	OtelServiceName       string            `json:"otel_service_name"`
	OtelTimeout           time.Duration     `json:"otel_timeout"`
	OtelExportPaths       bool              `json:"otel_export_paths"`
	TraceFile             string            `json:"trace_file"`
	TraceFlight           bool              `json:"trace_flight"`
	TraceFlightFile       string            `json:"trace_flight_file"`
	TraceFlightMaxBytes   uint64            `json:"trace_flight_max_bytes"`
	TraceFlightMinAge     time.Duration     `json:"trace_flight_min_age"`
	ConcurrencySet        bool              `json:"-"`
}

// Default returns the configuration used when no flags or config file are
// given. The work directory is timestamped so sessions never share output.
func Default() *Config {
	timestamp := time.Now().UTC().Format("20060102-150405")
	return &Config{
		Inputs:             []string{},
		WorkDirectory:      fmt.Sprintf("unravel-%s", timestamp),
		MaxBytes:           0,
		MaxFileSize:        4 << 30,
		MinScanSize:        0,
		ReadSize:           10240,
		SynthesizedMinimum: 10,
		PaddingName:        "padding",
		ConcurrencyLevel:   runtime.NumCPU(),
		NiceLevel:          "medium",
		AutoTune:           true,
		HashAlgorithms:     []string{"sha256"},
		FuzzyAlgorithms:    []string{},
		FuzzyMinSize:       256,
		FuzzyMaxSize:       20 * 1024 * 1024,
		ResultFormat:       "json",
		ResultCompression:  "none",
		MetadataMaxBytes:   1 * 1024 * 1024,
		LogLevel:           "info",
		ContentReadMode:    "auto",
		MmapMinSize:        128 * 1024,
		IncludePatterns:    []string{},
		ExcludePatterns:    []string{},
		DiagDir:            ".",
		OtelHeaders:        map[string]string{},
		OtelServiceName:    "unravel",
		OtelTimeout:        5 * time.Second,
		TraceFile:          "unravel-trace.out",
		TraceFlightFile:    "trace-flight.out",
	}
}

func LoadConfig() (*Config, error) {
	cfg := Default()

	inputs := flag.String("path", "", "Comma-separated list of files or directories to unpack, in addition to positional arguments.")
	workDir := flag.String("work-dir", cfg.WorkDirectory, "Session directory holding unpacked, tmp and results (default: unravel-<timestamp>).")
	unpackDir := flag.String("unpack-dir", "", "Directory for unpacked files (default: <work-dir>/unpack).")
	tmpDir := flag.String("tmp-dir", "", "Directory for temporary files (default: <work-dir>/tmp).")
	resultsDir := flag.String("results-dir", "", "Directory for result records and the scan tree (default: <work-dir>/results).")
	maxBytes := flag.Int64("max-bytes", cfg.MaxBytes, "Total bytes the session may scan, 0 for no limit (default: 0).")
	maxFileSize := flag.Int64("max-file-size", cfg.MaxFileSize, fmt.Sprintf("Largest file that is scanned in bytes (default: %d).", cfg.MaxFileSize))
	minScanSize := flag.Int64("min-scan-size", cfg.MinScanSize, "Files smaller than this are recorded without being scanned (default: 0).")
	readSize := flag.Int("read-size", cfg.ReadSize, fmt.Sprintf("Signature scan window in bytes (default: %d).", cfg.ReadSize))
	synthesizedMinimum := flag.Int64("synthesized-minimum", cfg.SynthesizedMinimum, fmt.Sprintf("Smallest unclaimed run that becomes a carved file (default: %d).", cfg.SynthesizedMinimum))
	paddingName := flag.String("padding-name", cfg.PaddingName, fmt.Sprintf("Label given to carved files (default: %s).", cfg.PaddingName))
	scanCarves := flag.Bool("scan-carves", cfg.ScanCarves, fmt.Sprintf("Scan carved files for further content (default: %t).", cfg.ScanCarves))
	concurrency := flag.Int("concurrency", cfg.ConcurrencyLevel, fmt.Sprintf("Number of workers (default: %d).", cfg.ConcurrencyLevel))
	nice := flag.String("nice", cfg.NiceLevel, fmt.Sprintf("Nice level: high, medium, or low (default: %s).", cfg.NiceLevel))
	autoTune := flag.Bool("auto-tune", cfg.AutoTune, fmt.Sprintf("Size the worker pool from available CPU and memory (default: %t).", cfg.AutoTune))
	queueSize := flag.Int("queue-size", cfg.QueueSize, "Work queue capacity, 0 for four slots per worker (default: 0).")
	hashes := flag.String("hashes", strings.Join(cfg.HashAlgorithms, ","), fmt.Sprintf("Comma-separated list of hash algorithms: %s (default: sha256).", strings.Join(hasher.Supported(), ", ")))
	fuzzyHash := flag.Bool("fuzzy-hash", cfg.FuzzyHash, fmt.Sprintf("Enable fuzzy hashing (default: %t).", cfg.FuzzyHash))
	fuzzyAlgorithms := flag.String("fuzzy-algorithms", strings.Join(cfg.FuzzyAlgorithms, ","), "Comma-separated list of fuzzy hash algorithms (default: tlsh when fuzzy hashing enabled).")
	fuzzyMinSize := flag.Int64("fuzzy-min-size", cfg.FuzzyMinSize, fmt.Sprintf("Minimum file size in bytes for fuzzy hashing (default: %d).", cfg.FuzzyMinSize))
	fuzzyMaxSize := flag.Int64("fuzzy-max-size", cfg.FuzzyMaxSize, fmt.Sprintf("Maximum file size in bytes for fuzzy hashing (default: %d).", cfg.FuzzyMaxSize))
	resultFormat := flag.String("result-format", cfg.ResultFormat, fmt.Sprintf("Result record encoding: json or cbor (default: %s).", cfg.ResultFormat))
	resultCompression := flag.String("result-compression", cfg.ResultCompression, fmt.Sprintf("Result record compression: none or zstd (default: %s).", cfg.ResultCompression))
	metadataMaxBytes := flag.Int64("metadata-max-bytes", cfg.MetadataMaxBytes, fmt.Sprintf("Maximum bytes metadata decoders may read per file (default: %d, 0 means unlimited).", cfg.MetadataMaxBytes))
	logLevel := flag.String("log-level", cfg.LogLevel, fmt.Sprintf("Log level: debug, info, warn, error, fatal, or panic (default: %s).", cfg.LogLevel))
	maxIO := flag.Int("max-io-per-second", cfg.MaxIOPerSecond, "Maximum work items started per second, 0 for no limit (default: 0).")
	contentReadMode := flag.String("content-read-mode", cfg.ContentReadMode, "Content read mode: auto, stream, or mmap (default: auto).")
	mmapMinSize := flag.Int64("mmap-min-size", cfg.MmapMinSize, "Minimum file size in bytes for the mmap read path in auto mode (default: 131072).")
	knownHashes := flag.String("known-hashes", cfg.KnownHashesFile, "File of sha256 digests whose content is recorded but not unpacked (default: none).")
	includes := flag.String("include", "", "Comma-separated list of include patterns for directory inputs (default: none).")
	excludes := flag.String("exclude", "", "Comma-separated list of exclude patterns for directory inputs (default: none).")
	configFile := flag.String("config", "", "Path to JSON configuration file (default: none).")
	diagSlowScanThreshold := flag.Duration("diag-slow-scan-threshold", cfg.DiagSlowScanThreshold, "If positive, emit diagnostics when unpacking stalls for this duration (default: 0/off).")
	diagDir := flag.String("diag-dir", cfg.DiagDir, "Diagnostics output directory (default: current directory).")
	diagGoroutineLeak := flag.Bool("diag-goroutine-leak", cfg.DiagGoroutineLeak, "Write goroutine leak profile on shutdown (default: false).")
	otelEndpoint := flag.String("otel-endpoint", cfg.OtelEndpoint, "OTLP/HTTP logs endpoint (default: none).")
	otelFromEnv := flag.Bool("otel-from-env", cfg.OtelFromEnv, "Allow OTEL endpoint fallback from OTEL environment variables (default: false).")
	otelHeaders := flag.String("otel-headers", "", "Comma-separated OTEL headers (key=value) for export (default: none).")
	otelServiceName := flag.String("otel-service-name", cfg.OtelServiceName, "OTEL service name for export (default: unravel).")
	otelTimeout := flag.Duration("otel-timeout", cfg.OtelTimeout, "OTEL export timeout (default: 5s).")
	otelExportPaths := flag.Bool("otel-export-paths", cfg.OtelExportPaths, "Include file paths in OTEL payloads (default: false).")
	traceFile := flag.String("trace-file", cfg.TraceFile, "Execution trace output file for builds with the trace tag.")
	traceFlight := flag.Bool("trace-flight", cfg.TraceFlight, fmt.Sprintf("Enable flight recorder tracing (default: %t).", cfg.TraceFlight))
	traceFlightFile := flag.String("trace-flight-file", cfg.TraceFlightFile, fmt.Sprintf("Flight recorder output file (default: %s).", cfg.TraceFlightFile))
	traceFlightMaxBytes := flag.Uint64("trace-flight-max-bytes", cfg.TraceFlightMaxBytes, "Max bytes for flight recorder buffer (default: 0 for runtime default).")
	traceFlightMinAge := flag.Duration("trace-flight-min-age", cfg.TraceFlightMinAge, "Minimum age of trace events to retain (default: 0).")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Usage = displayHelp
	flag.Parse()

	if *showVersion {
		fmt.Printf("unravel version %s\n", version.Version)
		os.Exit(0)
	}

	if *configFile != "" {
		cfg.ConfigFile = *configFile
		if err := cfg.loadFromFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "path":
			cfg.Inputs = parseCommaSeparated(*inputs)
		case "work-dir":
			cfg.WorkDirectory = strings.TrimSpace(*workDir)
		case "unpack-dir":
			cfg.UnpackDirectory = strings.TrimSpace(*unpackDir)
		case "tmp-dir":
			cfg.TemporaryDirectory = strings.TrimSpace(*tmpDir)
		case "results-dir":
			cfg.ResultsDirectory = strings.TrimSpace(*resultsDir)
		case "max-bytes":
			cfg.MaxBytes = *maxBytes
		case "max-file-size":
			cfg.MaxFileSize = *maxFileSize
		case "min-scan-size":
			cfg.MinScanSize = *minScanSize
		case "read-size":
			cfg.ReadSize = *readSize
		case "synthesized-minimum":
			cfg.SynthesizedMinimum = *synthesizedMinimum
		case "padding-name":
			cfg.PaddingName = strings.TrimSpace(*paddingName)
		case "scan-carves":
			cfg.ScanCarves = *scanCarves
		case "concurrency":
			cfg.ConcurrencyLevel = *concurrency
			cfg.ConcurrencySet = true
		case "nice":
			cfg.NiceLevel = *nice
		case "auto-tune":
			cfg.AutoTune = *autoTune
		case "queue-size":
			cfg.QueueSize = *queueSize
		case "hashes":
			cfg.HashAlgorithms = parseCommaSeparated(*hashes)
		case "fuzzy-hash":
			cfg.FuzzyHash = *fuzzyHash
		case "fuzzy-algorithms":
			cfg.FuzzyAlgorithms = parseCommaSeparated(*fuzzyAlgorithms)
		case "fuzzy-min-size":
			cfg.FuzzyMinSize = *fuzzyMinSize
		case "fuzzy-max-size":
			cfg.FuzzyMaxSize = *fuzzyMaxSize
		case "result-format":
			cfg.ResultFormat = *resultFormat
		case "result-compression":
			cfg.ResultCompression = *resultCompression
		case "metadata-max-bytes":
			cfg.MetadataMaxBytes = *metadataMaxBytes
		case "log-level":
			cfg.LogLevel = *logLevel
		case "max-io-per-second":
			cfg.MaxIOPerSecond = *maxIO
		case "content-read-mode":
			cfg.ContentReadMode = *contentReadMode
		case "mmap-min-size":
			cfg.MmapMinSize = *mmapMinSize
		case "known-hashes":
			cfg.KnownHashesFile = strings.TrimSpace(*knownHashes)
		case "include":
			cfg.IncludePatterns = parseCommaSeparated(*includes)
		case "exclude":
			cfg.ExcludePatterns = parseCommaSeparated(*excludes)
		case "diag-slow-scan-threshold":
			cfg.DiagSlowScanThreshold = *diagSlowScanThreshold
		case "diag-dir":
			cfg.DiagDir = strings.TrimSpace(*diagDir)
		case "diag-goroutine-leak":
			cfg.DiagGoroutineLeak = *diagGoroutineLeak
		case "otel-endpoint":
			cfg.OtelEndpoint = strings.TrimSpace(*otelEndpoint)
		case "otel-from-env":
			cfg.OtelFromEnv = *otelFromEnv
		case "otel-headers":
			cfg.OtelHeaders = parseHeaders(*otelHeaders)
		case "otel-service-name":
			cfg.OtelServiceName = strings.TrimSpace(*otelServiceName)
		case "otel-timeout":
			cfg.OtelTimeout = *otelTimeout
		case "otel-export-paths":
			cfg.OtelExportPaths = *otelExportPaths
		case "trace-file":
			cfg.TraceFile = *traceFile
		case "trace-flight":
			cfg.TraceFlight = *traceFlight
		case "trace-flight-file":
			cfg.TraceFlightFile = *traceFlightFile
		case "trace-flight-max-bytes":
			cfg.TraceFlightMaxBytes = *traceFlightMaxBytes
		case "trace-flight-min-age":
			cfg.TraceFlightMinAge = *traceFlightMinAge
		}
	})
	cfg.Inputs = append(cfg.Inputs, flag.Args()...)
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func displayHelp() {
	fmt.Println("unravel - recursive binary unpacker")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  unravel [options] <file|directory>...")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  unravel firmware.bin")
	fmt.Println("  unravel --work-dir out --hashes sha256,md5 --fuzzy-hash images/")
	fmt.Println("  unravel --max-bytes 1073741824 --scan-carves disk.img")
}

func (cfg *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read config file: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid config file format: %v", err)
	}
	if _, ok := raw["concurrency_level"]; ok {
		cfg.ConcurrencySet = true
	}
	err = json.Unmarshal(data, cfg)
	if err != nil {
		return fmt.Errorf("invalid config file format: %v", err)
	}
	return nil
}

// normalize lower-cases enumerations, derives the session directories and
// fills in dependent defaults.
func (cfg *Config) normalize() {
	cfg.NiceLevel = strings.ToLower(strings.TrimSpace(cfg.NiceLevel))
	cfg.ResultFormat = strings.ToLower(strings.TrimSpace(cfg.ResultFormat))
	cfg.ResultCompression = strings.ToLower(strings.TrimSpace(cfg.ResultCompression))
	cfg.ContentReadMode = strings.ToLower(strings.TrimSpace(cfg.ContentReadMode))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.ResultCompression == "" {
		cfg.ResultCompression = "none"
	}
	if cfg.ContentReadMode == "" {
		cfg.ContentReadMode = "auto"
	}
	if cfg.DiagDir == "" {
		cfg.DiagDir = "."
	}
	if cfg.PaddingName == "" {
		cfg.PaddingName = "padding"
	}
	if cfg.UnpackDirectory == "" {
		cfg.UnpackDirectory = filepath.Join(cfg.WorkDirectory, "unpack")
	}
	if cfg.TemporaryDirectory == "" {
		cfg.TemporaryDirectory = filepath.Join(cfg.WorkDirectory, "tmp")
	}
	if cfg.ResultsDirectory == "" {
		cfg.ResultsDirectory = filepath.Join(cfg.WorkDirectory, "results")
	}
	if cfg.QueueSize <= 0 && cfg.ConcurrencyLevel > 0 {
		cfg.QueueSize = cfg.ConcurrencyLevel * 4
	}
	cfg.HashAlgorithms = normalizeAlgorithms(cfg.HashAlgorithms)
	if !containsString(cfg.HashAlgorithms, hasher.Primary) {
		cfg.HashAlgorithms = append(cfg.HashAlgorithms, hasher.Primary)
	}
	cfg.FuzzyAlgorithms = normalizeAlgorithms(cfg.FuzzyAlgorithms)
	if cfg.FuzzyHash && len(cfg.FuzzyAlgorithms) == 0 {
		cfg.FuzzyAlgorithms = []string{"tlsh"}
	}
	if len(cfg.FuzzyAlgorithms) > 0 {
		cfg.FuzzyHash = true
	}
	if cfg.FuzzyMaxSize > 0 && cfg.FuzzyMaxSize < cfg.FuzzyMinSize {
		cfg.FuzzyMaxSize = cfg.FuzzyMinSize
	}
	if cfg.TraceFlight && cfg.TraceFlightFile == "" {
		cfg.TraceFlightFile = "trace-flight.out"
	}
}

func (cfg *Config) validate() error {
	if len(cfg.Inputs) == 0 {
		return fmt.Errorf("at least one input file or directory must be specified")
	}
	if strings.TrimSpace(cfg.WorkDirectory) == "" && (cfg.UnpackDirectory == "" || cfg.ResultsDirectory == "") {
		return fmt.Errorf("work directory must be specified")
	}
	if cfg.MaxBytes < 0 {
		return fmt.Errorf("max-bytes must be zero or positive")
	}
	if cfg.MaxFileSize < 0 {
		return fmt.Errorf("max-file-size must be zero or positive")
	}
	if cfg.MinScanSize < 0 {
		return fmt.Errorf("min-scan-size must be zero or positive")
	}
	if cfg.ReadSize <= 0 {
		return fmt.Errorf("read-size must be positive")
	}
	if cfg.SynthesizedMinimum < 1 {
		return fmt.Errorf("synthesized-minimum must be at least 1")
	}
	if cfg.ConcurrencyLevel <= 0 {
		return fmt.Errorf("concurrency level must be positive")
	}
	if cfg.QueueSize < 0 {
		return fmt.Errorf("queue-size must be zero or positive")
	}
	if cfg.NiceLevel != "high" && cfg.NiceLevel != "medium" && cfg.NiceLevel != "low" {
		return fmt.Errorf("invalid nice level: %s", cfg.NiceLevel)
	}
	for _, algo := range cfg.HashAlgorithms {
		if !hasher.IsSupported(algo) {
			return fmt.Errorf("unsupported hash algorithm: %s", algo)
		}
	}
	if cfg.FuzzyMinSize < 0 || cfg.FuzzyMaxSize < 0 {
		return fmt.Errorf("fuzzy size limits must be zero or positive")
	}
	if cfg.ResultFormat != "json" && cfg.ResultFormat != "cbor" {
		return fmt.Errorf("invalid result format: %s (json or cbor)", cfg.ResultFormat)
	}
	if cfg.ResultCompression != "none" && cfg.ResultCompression != "zstd" {
		return fmt.Errorf("invalid result compression: %s (none or zstd)", cfg.ResultCompression)
	}
	if cfg.MetadataMaxBytes < 0 {
		return fmt.Errorf("metadata-max-bytes must be zero or positive")
	}
	if cfg.ContentReadMode != "stream" && cfg.ContentReadMode != "mmap" && cfg.ContentReadMode != "auto" {
		return fmt.Errorf("invalid content-read-mode value: %s", cfg.ContentReadMode)
	}
	if cfg.MmapMinSize < 0 {
		return fmt.Errorf("mmap-min-size must be zero or positive")
	}
	if cfg.MaxIOPerSecond < 0 {
		return fmt.Errorf("max-io-per-second must be zero or positive")
	}
	if cfg.DiagSlowScanThreshold < 0 {
		return fmt.Errorf("diag-slow-scan-threshold must be zero or positive")
	}
	if cfg.TraceFlightMinAge < 0 {
		return fmt.Errorf("trace-flight-min-age must be zero or positive")
	}
	if cfg.OtelTimeout < 0 {
		return fmt.Errorf("otel-timeout must be zero or positive")
	}
	if cfg.OtelEndpoint != "" {
		if !strings.HasPrefix(cfg.OtelEndpoint, "http://") && !strings.HasPrefix(cfg.OtelEndpoint, "https://") {
			return fmt.Errorf("otel-endpoint must include scheme (http or https)")
		}
	}
	if cfg.LogLevel != "debug" && cfg.LogLevel != "info" && cfg.LogLevel != "warn" &&
		cfg.LogLevel != "error" && cfg.LogLevel != "fatal" && cfg.LogLevel != "panic" {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	return nil
}

func parseCommaSeparated(input string) []string {
	if input == "" {
		return []string{}
	}
	items := strings.Split(input, ",")
	for i, item := range items {
		items[i] = strings.TrimSpace(item)
	}
	return items
}

func parseHeaders(input string) map[string]string {
	headers := make(map[string]string)
	if input == "" {
		return headers
	}
	items := strings.Split(input, ",")
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.SplitN(item, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		headers[key] = value
	}
	return headers
}

func normalizeAlgorithms(items []string) []string {
	normalized := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" || containsString(normalized, item) {
			continue
		}
		normalized = append(normalized, item)
	}
	return normalized
}

func containsString(items []string, value string) bool {
	for _, item := range items {
		if item == value {
			return true
		}
	}
	return false
}
