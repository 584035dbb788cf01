package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// fileConfig is the TOML layout. Durations are Go duration strings.
type fileConfig struct {
	ListenAddr      string   `toml:"listen_addr"`
	PublicBaseURL   string   `toml:"public_base_url"`
	AllowedOrigins  []string `toml:"allowed_origins"`
	Mode            string   `toml:"mode"`
	LogFormat       string   `toml:"log_format"`
	LogLevel        string   `toml:"log_level"`
	ShutdownTimeout string   `toml:"shutdown_timeout"`

	Connection struct {
		PingInterval         string `toml:"ping_interval"`
		IdleTimeout          string `toml:"idle_timeout"`
		MaxMessageBytes      int64  `toml:"max_message_bytes"`
		QueueBytes           int    `toml:"queue_bytes"`
		OutboundQueueFrames  int    `toml:"outbound_queue_frames"`
		MaxMessagesPerSecond int    `toml:"max_messages_per_second"`
		MaxBytesPerSecond    int    `toml:"max_bytes_per_second"`
		MaxConnections       int    `toml:"max_connections"`
	} `toml:"connection"`

	MDNS struct {
		Enabled  bool   `toml:"enabled"`
		Instance string `toml:"instance"`
	} `toml:"mdns"`
}

func applyFile(path string, s *settings) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config file: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("%w: unknown key %q in %s", ErrInvalid, undecoded[0].String(), path)
	}

	if meta.IsDefined("listen_addr") {
		s.listenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("public_base_url") {
		s.publicBaseURL = strings.TrimSpace(raw.PublicBaseURL)
	}
	if meta.IsDefined("allowed_origins") {
		s.allowedOrigins = strings.Join(raw.AllowedOrigins, ",")
	}
	if meta.IsDefined("mode") {
		s.mode = raw.Mode
	}
	if meta.IsDefined("log_format") {
		s.logFormat = raw.LogFormat
	}
	if meta.IsDefined("log_level") {
		s.logLevel = raw.LogLevel
	}
	if err := fileDuration(meta.IsDefined("shutdown_timeout"), "shutdown_timeout", raw.ShutdownTimeout, &s.shutdownTimeout); err != nil {
		return err
	}

	conn := raw.Connection
	if err := fileDuration(meta.IsDefined("connection", "ping_interval"), "connection.ping_interval", conn.PingInterval, &s.pingInterval); err != nil {
		return err
	}
	if err := fileDuration(meta.IsDefined("connection", "idle_timeout"), "connection.idle_timeout", conn.IdleTimeout, &s.idleTimeout); err != nil {
		return err
	}
	if meta.IsDefined("connection", "max_message_bytes") {
		s.maxMessageBytes = conn.MaxMessageBytes
	}
	if meta.IsDefined("connection", "queue_bytes") {
		s.connectionQueueBytes = conn.QueueBytes
	}
	if meta.IsDefined("connection", "outbound_queue_frames") {
		s.outboundQueueFrames = conn.OutboundQueueFrames
	}
	if meta.IsDefined("connection", "max_messages_per_second") {
		s.maxMessagesPerSecond = conn.MaxMessagesPerSecond
	}
	if meta.IsDefined("connection", "max_bytes_per_second") {
		s.maxBytesPerSecond = conn.MaxBytesPerSecond
	}
	if meta.IsDefined("connection", "max_connections") {
		s.maxConnections = conn.MaxConnections
	}

	if meta.IsDefined("mdns", "enabled") {
		s.mdnsEnabled = raw.MDNS.Enabled
	}
	if meta.IsDefined("mdns", "instance") {
		s.mdnsInstance = raw.MDNS.Instance
	}
	return nil
}

func fileDuration(defined bool, key, raw string, dst *time.Duration) error {
	if !defined {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: %s %q: %v", ErrInvalid, key, raw, err)
	}
	*dst = d
	return nil
}
