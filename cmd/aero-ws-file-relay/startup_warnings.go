package main

import (
	"log/slog"
	"slices"

	"github.com/wilsonzlin/aero/proxy/ws-file-relay/internal/config"
)

func logStartupSecurityWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if slices.Contains(cfg.AllowedOrigins, "*") {
		logger.Warn("startup security warning: ALLOWED_ORIGINS contains '*' (allows any origin)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.MaxConnections <= 0 {
		logger.Warn("startup security warning: MAX_CONNECTIONS is unset/0 (unlimited) while --mode=prod",
			"warning_code", "max_connections_unlimited_in_prod",
			"max_connections", cfg.MaxConnections,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.IdleTimeout <= 0 {
		logger.Warn("startup security warning: IDLE_TIMEOUT is disabled while --mode=prod (half-open connections hold relay state until TCP gives up)",
			"warning_code", "idle_timeout_disabled_in_prod",
			"mode", cfg.Mode,
		)
	}

	if cfg.MaxMessageBytes > 16<<20 { // 16MiB
		logger.Warn("startup security warning: MAX_MESSAGE_BYTES is very large (increases per-message allocation risk)",
			"warning_code", "max_message_bytes_large",
			"max_message_bytes", cfg.MaxMessageBytes,
			"mode", cfg.Mode,
		)
	}

	if cfg.MDNSEnabled && cfg.Mode == config.ModeProd {
		logger.Warn("startup security warning: mDNS advertisement is enabled while --mode=prod (announces the service to every host on the LAN)",
			"warning_code", "mdns_in_prod",
			"mdns_instance", cfg.MDNSInstance,
			"mode", cfg.Mode,
		)
	}
}
