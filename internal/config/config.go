package config

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wilsonzlin/aero/proxy/ws-file-relay/internal/origin"
)

const (
	envVarConfigFile      = "AERO_WS_FILE_RELAY_CONFIG"
	envVarListenAddr      = "AERO_WS_FILE_RELAY_LISTEN_ADDR"
	envVarPort            = "PORT"
	envVarPublicBaseURL   = "AERO_WS_FILE_RELAY_PUBLIC_BASE_URL"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"
	envVarMode            = "AERO_WS_FILE_RELAY_MODE"
	envVarLogFormat       = "AERO_WS_FILE_RELAY_LOG_FORMAT"
	envVarLogLevel        = "AERO_WS_FILE_RELAY_LOG_LEVEL"
	envVarShutdownTimeout = "AERO_WS_FILE_RELAY_SHUTDOWN_TIMEOUT"

	// Connection knobs.
	envVarPingInterval         = "AERO_WS_FILE_RELAY_PING_INTERVAL"
	envVarIdleTimeout          = "AERO_WS_FILE_RELAY_IDLE_TIMEOUT"
	envVarMaxMessageBytes      = "AERO_WS_FILE_RELAY_MAX_MESSAGE_BYTES"
	envVarConnectionQueueBytes = "AERO_WS_FILE_RELAY_CONNECTION_QUEUE_BYTES"
	envVarOutboundQueueFrames  = "AERO_WS_FILE_RELAY_OUTBOUND_QUEUE_FRAMES"
	envVarMaxMessagesPerSecond = "AERO_WS_FILE_RELAY_MAX_MESSAGES_PER_SECOND"
	envVarMaxBytesPerSecond    = "AERO_WS_FILE_RELAY_MAX_BYTES_PER_SECOND"
	envVarMaxConnections       = "AERO_WS_FILE_RELAY_MAX_CONNECTIONS"

	// LAN advertisement.
	envVarMDNSEnabled  = "AERO_WS_FILE_RELAY_MDNS_ENABLED"
	envVarMDNSInstance = "AERO_WS_FILE_RELAY_MDNS_INSTANCE"
)

const (
	DefaultListenAddr = "0.0.0.0:8000"
	DefaultMode       = ModeDev
	DefaultShutdown   = 15 * time.Second

	DefaultPingInterval         = 30 * time.Second
	DefaultMaxMessageBytes      = int64(4 << 20) // 4MiB
	DefaultConnectionQueueBytes = 8 << 20        // 8MiB
	DefaultOutboundQueueFrames  = 100

	DefaultMDNSInstance = "aero-ws-file-relay"
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	// ConfigFile is the TOML file values were layered from, if any.
	ConfigFile string

	ListenAddr     string
	PublicBaseURL  string
	AllowedOrigins []string

	Mode            Mode
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration

	// PingInterval is the keepalive cadence of every connection.
	PingInterval time.Duration
	// IdleTimeout closes a connection that has sent neither a frame nor a
	// pong for this long. 0 disables it.
	IdleTimeout time.Duration
	// MaxMessageBytes bounds a single inbound frame.
	MaxMessageBytes int64
	// ConnectionQueueBytes is the byte budget of a connection's delivery
	// handle. Frames relayed beyond it are dropped.
	ConnectionQueueBytes int
	OutboundQueueFrames  int
	// MaxMessagesPerSecond limits inbound frames per connection. 0 disables it.
	MaxMessagesPerSecond int
	// MaxBytesPerSecond limits inbound payload bytes per connection. 0 disables
	// it; otherwise it must admit one max-size message.
	MaxBytesPerSecond int
	// MaxConnections caps concurrent connections. 0 means unlimited.
	MaxConnections int

	MDNSEnabled  bool
	MDNSInstance string
}

// settings carries values through the default, file, env and flag layers
// before they are parsed into a Config.
type settings struct {
	listenAddr      string
	publicBaseURL   string
	allowedOrigins  string
	mode            string
	logFormat       string
	logLevel        string
	shutdownTimeout time.Duration

	pingInterval         time.Duration
	idleTimeout          time.Duration
	maxMessageBytes      int64
	connectionQueueBytes int
	outboundQueueFrames  int
	maxMessagesPerSecond int
	maxBytesPerSecond    int
	maxConnections       int

	mdnsEnabled  bool
	mdnsInstance string
}

func defaultSettings() settings {
	return settings{
		listenAddr:           DefaultListenAddr,
		mode:                 string(DefaultMode),
		shutdownTimeout:      DefaultShutdown,
		pingInterval:         DefaultPingInterval,
		maxMessageBytes:      DefaultMaxMessageBytes,
		connectionQueueBytes: DefaultConnectionQueueBytes,
		outboundQueueFrames:  DefaultOutboundQueueFrames,
		mdnsInstance:         DefaultMDNSInstance,
	}
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	s := defaultSettings()

	configFile := envOrDefault(lookup, envVarConfigFile, "")
	if path, ok := scanConfigFlag(args); ok {
		configFile = path
	}
	if configFile != "" {
		if err := applyFile(configFile, &s); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(lookup, &s); err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("aero-ws-file-relay", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	fs.StringVar(&configFile, "config", configFile, "Optional TOML config file (env "+envVarConfigFile+")")
	fs.StringVar(&s.listenAddr, "listen-addr", s.listenAddr, "HTTP listen address (host:port; env "+envVarListenAddr+" or "+envVarPort+")")
	fs.StringVar(&s.publicBaseURL, "public-base-url", s.publicBaseURL, "Public base URL (optional; logged at startup and published in the mDNS TXT record)")
	fs.StringVar(&s.allowedOrigins, "allowed-origins", s.allowedOrigins, "Comma-separated list of allowed browser origins (env "+envVarAllowedOrigins+")")
	fs.StringVar(&s.mode, "mode", s.mode, "Run mode: dev or prod")
	fs.StringVar(&s.logFormat, "log-format", s.logFormat, "Log format: text or json (default depends on mode)")
	fs.StringVar(&s.logLevel, "log-level", s.logLevel, "Log level: debug, info, warn, error (default depends on mode)")
	fs.DurationVar(&s.shutdownTimeout, "shutdown-timeout", s.shutdownTimeout, "Graceful shutdown timeout (e.g. 15s)")

	fs.DurationVar(&s.pingInterval, "ping-interval", s.pingInterval, "WebSocket keepalive ping interval (env "+envVarPingInterval+")")
	fs.DurationVar(&s.idleTimeout, "idle-timeout", s.idleTimeout, "Close connections idle for this long (0 = disabled; env "+envVarIdleTimeout+")")
	fs.Int64Var(&s.maxMessageBytes, "max-message-bytes", s.maxMessageBytes, "Max inbound WebSocket message size in bytes (env "+envVarMaxMessageBytes+")")
	fs.IntVar(&s.connectionQueueBytes, "connection-queue-bytes", s.connectionQueueBytes, "Per-connection relay queue budget in bytes (env "+envVarConnectionQueueBytes+")")
	fs.IntVar(&s.outboundQueueFrames, "outbound-queue-frames", s.outboundQueueFrames, "Per-connection outbound write queue length in frames (env "+envVarOutboundQueueFrames+")")
	fs.IntVar(&s.maxMessagesPerSecond, "max-messages-per-second", s.maxMessagesPerSecond, "Inbound messages/sec per connection (0 = unlimited)")
	fs.IntVar(&s.maxBytesPerSecond, "max-bytes-per-second", s.maxBytesPerSecond, "Inbound payload bytes/sec per connection (0 = unlimited; env "+envVarMaxBytesPerSecond+")")
	fs.IntVar(&s.maxConnections, "max-connections", s.maxConnections, "Maximum concurrent WebSocket connections (0 = unlimited)")

	fs.BoolVar(&s.mdnsEnabled, "mdns", s.mdnsEnabled, "Advertise the HTTP service on the LAN via mDNS (env "+envVarMDNSEnabled+")")
	fs.StringVar(&s.mdnsInstance, "mdns-instance", s.mdnsInstance, "mDNS service instance name (env "+envVarMDNSInstance+")")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg, err := s.finish()
	if err != nil {
		return Config{}, err
	}
	cfg.ConfigFile = configFile
	return cfg, nil
}

func applyEnv(lookup func(string) (string, bool), s *settings) error {
	if raw, ok := lookup(envVarListenAddr); ok && strings.TrimSpace(raw) != "" {
		s.listenAddr = strings.TrimSpace(raw)
	} else if raw, ok := lookup(envVarPort); ok && strings.TrimSpace(raw) != "" {
		port, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 16)
		if err != nil {
			return fmt.Errorf("%w: %s %q: %v", ErrInvalid, envVarPort, raw, err)
		}
		s.listenAddr = net.JoinHostPort("0.0.0.0", strconv.FormatUint(port, 10))
	}

	s.publicBaseURL = envOrDefault(lookup, envVarPublicBaseURL, s.publicBaseURL)
	s.allowedOrigins = envOrDefault(lookup, envVarAllowedOrigins, s.allowedOrigins)
	s.mode = envOrDefault(lookup, envVarMode, s.mode)
	s.logFormat = envOrDefault(lookup, envVarLogFormat, s.logFormat)
	s.logLevel = envOrDefault(lookup, envVarLogLevel, s.logLevel)
	s.mdnsInstance = envOrDefault(lookup, envVarMDNSInstance, s.mdnsInstance)

	var err error
	if s.shutdownTimeout, err = envDurationOrDefault(lookup, envVarShutdownTimeout, s.shutdownTimeout); err != nil {
		return err
	}
	if s.pingInterval, err = envDurationOrDefault(lookup, envVarPingInterval, s.pingInterval); err != nil {
		return err
	}
	if s.idleTimeout, err = envDurationOrDefault(lookup, envVarIdleTimeout, s.idleTimeout); err != nil {
		return err
	}
	if s.connectionQueueBytes, err = envIntOrDefault(lookup, envVarConnectionQueueBytes, s.connectionQueueBytes); err != nil {
		return err
	}
	if s.outboundQueueFrames, err = envIntOrDefault(lookup, envVarOutboundQueueFrames, s.outboundQueueFrames); err != nil {
		return err
	}
	if s.maxMessagesPerSecond, err = envIntOrDefault(lookup, envVarMaxMessagesPerSecond, s.maxMessagesPerSecond); err != nil {
		return err
	}
	if s.maxBytesPerSecond, err = envIntOrDefault(lookup, envVarMaxBytesPerSecond, s.maxBytesPerSecond); err != nil {
		return err
	}
	if s.maxConnections, err = envIntOrDefault(lookup, envVarMaxConnections, s.maxConnections); err != nil {
		return err
	}
	if raw, ok := lookup(envVarMaxMessageBytes); ok && strings.TrimSpace(raw) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s %q: %v", ErrInvalid, envVarMaxMessageBytes, raw, err)
		}
		s.maxMessageBytes = n
	}
	if raw, ok := lookup(envVarMDNSEnabled); ok && strings.TrimSpace(raw) != "" {
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%w: %s %q: %v", ErrInvalid, envVarMDNSEnabled, raw, err)
		}
		s.mdnsEnabled = v
	}
	return nil
}

func (s settings) finish() (Config, error) {
	mode, err := parseMode(s.mode)
	if err != nil {
		return Config{}, err
	}

	logFormatStr := s.logFormat
	if strings.TrimSpace(logFormatStr) == "" {
		logFormatStr = defaultLogFormatForMode(mode)
	}
	logFormat, err := parseLogFormat(logFormatStr)
	if err != nil {
		return Config{}, err
	}

	logLevelStr := s.logLevel
	if strings.TrimSpace(logLevelStr) == "" {
		logLevelStr = defaultLogLevelForMode(mode)
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	allowedOrigins, err := parseAllowedOrigins(s.allowedOrigins)
	if err != nil {
		return Config{}, err
	}

	listenAddr := strings.TrimSpace(s.listenAddr)
	if _, _, err := net.SplitHostPort(listenAddr); err != nil {
		return Config{}, fmt.Errorf("%w: listen address %q: %v", ErrInvalid, listenAddr, err)
	}

	publicBaseURL := strings.TrimRight(strings.TrimSpace(s.publicBaseURL), "/")
	if publicBaseURL != "" {
		u, err := url.Parse(publicBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return Config{}, fmt.Errorf("%w: public base URL %q (expected http(s)://host[:port])", ErrInvalid, s.publicBaseURL)
		}
	}

	switch {
	case s.shutdownTimeout <= 0:
		return Config{}, fmt.Errorf("%w: shutdown timeout must be > 0", ErrInvalid)
	case s.pingInterval <= 0:
		return Config{}, fmt.Errorf("%w: ping interval must be > 0", ErrInvalid)
	case s.idleTimeout < 0:
		return Config{}, fmt.Errorf("%w: idle timeout must be >= 0", ErrInvalid)
	case s.idleTimeout > 0 && s.idleTimeout <= s.pingInterval:
		return Config{}, fmt.Errorf("%w: idle timeout (%s) must exceed ping interval (%s)", ErrInvalid, s.idleTimeout, s.pingInterval)
	case s.maxMessageBytes <= 0:
		return Config{}, fmt.Errorf("%w: max message bytes must be > 0", ErrInvalid)
	case int64(s.connectionQueueBytes) < s.maxMessageBytes:
		return Config{}, fmt.Errorf("%w: connection queue bytes (%d) must be >= max message bytes (%d)", ErrInvalid, s.connectionQueueBytes, s.maxMessageBytes)
	case s.outboundQueueFrames <= 0:
		return Config{}, fmt.Errorf("%w: outbound queue frames must be > 0", ErrInvalid)
	case s.maxMessagesPerSecond < 0:
		return Config{}, fmt.Errorf("%w: max messages per second must be >= 0", ErrInvalid)
	case s.maxBytesPerSecond < 0:
		return Config{}, fmt.Errorf("%w: max bytes per second must be >= 0", ErrInvalid)
	case s.maxBytesPerSecond > 0 && int64(s.maxBytesPerSecond) < s.maxMessageBytes:
		return Config{}, fmt.Errorf("%w: max bytes per second (%d) must be >= max message bytes (%d)", ErrInvalid, s.maxBytesPerSecond, s.maxMessageBytes)
	case s.maxConnections < 0:
		return Config{}, fmt.Errorf("%w: max connections must be >= 0", ErrInvalid)
	}

	mdnsInstance := strings.TrimSpace(s.mdnsInstance)
	if s.mdnsEnabled && mdnsInstance == "" {
		return Config{}, fmt.Errorf("%w: mDNS instance name must not be empty", ErrInvalid)
	}

	return Config{
		ListenAddr:           listenAddr,
		PublicBaseURL:        publicBaseURL,
		AllowedOrigins:       allowedOrigins,
		Mode:                 mode,
		LogFormat:            logFormat,
		LogLevel:             level,
		ShutdownTimeout:      s.shutdownTimeout,
		PingInterval:         s.pingInterval,
		IdleTimeout:          s.idleTimeout,
		MaxMessageBytes:      s.maxMessageBytes,
		ConnectionQueueBytes: s.connectionQueueBytes,
		OutboundQueueFrames:  s.outboundQueueFrames,
		MaxMessagesPerSecond: s.maxMessagesPerSecond,
		MaxBytesPerSecond:    s.maxBytesPerSecond,
		MaxConnections:       s.maxConnections,
		MDNSEnabled:          s.mdnsEnabled,
		MDNSInstance:         mdnsInstance,
	}, nil
}

// scanConfigFlag finds --config ahead of flag parsing so the file layer can
// sit beneath the flag defaults.
func scanConfigFlag(args []string) (string, bool) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return "", false
		}
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value, true
		}
		if i+1 < len(args) {
			return args[i+1], true
		}
		return "", false
	}
	return "", false
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q: %v", ErrInvalid, key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q: %v", ErrInvalid, key, raw, err)
	}
	return d, nil
}

func defaultLogFormatForMode(mode Mode) string {
	if mode == ModeProd {
		return string(LogFormatJSON)
	}
	return string(LogFormatText)
}

func defaultLogLevelForMode(mode Mode) string {
	if mode == ModeProd {
		return "info"
	}
	return "debug"
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("%w: mode %q (expected dev or prod)", ErrInvalid, raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("%w: log format %q (expected text or json)", ErrInvalid, raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: log level %q (expected debug, info, warn, error)", ErrInvalid, raw)
	}
}

func parseAllowedOrigins(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	allowed, invalid := origin.NormalizeAllowList(strings.Split(raw, ","))
	if len(invalid) > 0 {
		return nil, fmt.Errorf("%w: origin %q (expected full origin like https://example.com)", ErrInvalid, invalid[0])
	}
	return allowed, nil
}
