package logs

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/echohealth/echo_backend/config"
	"github.com/echohealth/echo_backend/pkg/constants"
)

// New builds the process logger. Stdout and the rotating file share one
// encoder, Loki gets its own batching handler, and every record passes
// through contextHandler so request, caller and subject ids are attached.
func New(cfg *config.Config) *slog.Logger {
	level := parseLevel(cfg.Logging.Level)
	dev := strings.EqualFold(cfg.Server.Environment, constants.EnvDevelopment)

	var handlers []slog.Handler
	if w := localWriter(cfg.Logging.Output); w != nil {
		handlers = append(handlers, encoder(w, cfg.Logging.Format, dev, level))
	}
	if cfg.Logging.Output.Loki.Enabled {
		handlers = append(handlers, newLokiHandler(cfg, level))
	}

	return wrap(handlers).With(
		slog.String("service", cfg.Observability.ServiceName),
		slog.String("version", cfg.Observability.ServiceVersion),
		slog.String("env", cfg.Server.Environment),
	)
}

// Default is used before configuration has been read.
func Default() *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	return wrap([]slog.Handler{h}).With(slog.String("service", constants.AppName))
}

func wrap(handlers []slog.Handler) *slog.Logger {
	var h slog.Handler
	switch len(handlers) {
	case 0:
		h = slog.DiscardHandler
	case 1:
		h = handlers[0]
	default:
		h = &multiHandler{handlers: handlers}
	}
	return slog.New(&contextHandler{next: h})
}

// localWriter returns nil only when stdout is off and the file sink is
// disabled while Loki is on. With nothing configured it falls back to stdout.
func localWriter(out config.OutputConfig) io.Writer {
	var ws []io.Writer
	if out.Stdout || (!out.File.Enabled && !out.Loki.Enabled) {
		ws = append(ws, os.Stdout)
	}
	if out.File.Enabled {
		ws = append(ws, &lumberjack.Logger{
			Filename:   out.File.Path,
			MaxSize:    out.File.MaxSizeMB,
			MaxBackups: out.File.MaxBackups,
			MaxAge:     out.File.MaxAgeDays,
			Compress:   out.File.Compress,
		})
	}
	switch len(ws) {
	case 0:
		return nil
	case 1:
		return ws[0]
	default:
		return io.MultiWriter(ws...)
	}
}

// encoder picks text only for development without an explicit json format.
func encoder(w io.Writer, format string, dev bool, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level, AddSource: dev}
	if dev && !strings.EqualFold(format, "json") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// parseLevel accepts slog level names and offsets such as "warn" or
// "info+2". Anything unparseable means info.
func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}
