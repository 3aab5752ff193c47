package logs

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echohealth/echo_backend/config"
	pasetotoken "github.com/echohealth/echo_backend/pkg/paseto"
	"github.com/echohealth/echo_backend/pkg/reqctx"
)

func TestContextHandlerAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(&contextHandler{next: slog.NewJSONHandler(&buf, nil)})

	ctx := reqctx.WithRequestMeta(context.Background(), &reqctx.RequestMeta{RequestID: "req-1"})
	logger.InfoContext(ctx, "hello")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "req-1", rec["request_id"])
	assert.NotContains(t, rec, "trace_id")
}

func TestContextHandlerAddsCallerAndSubject(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(&contextHandler{next: slog.NewJSONHandler(&buf, nil)})

	uid, txID := uuid.New(), uuid.New()
	ctx := reqctx.WithClaims(context.Background(), &pasetotoken.Claims{UserID: uid, Role: "DOCTOR"})
	ctx = reqctx.WithSubject(ctx, reqctx.SubjectWithdrawal, txID)
	logger.InfoContext(ctx, "payout completed")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, uid.String(), rec["user_id"])
	assert.Equal(t, "DOCTOR", rec["role"])
	assert.Equal(t, txID.String(), rec["withdrawal_id"])
}

func TestMultiHandlerRespectsLevels(t *testing.T) {
	var debug, warn bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}}
	logger := slog.New(h).With("k", "v")

	logger.Info("info line")
	logger.Warn("warn line")

	assert.Contains(t, debug.String(), "info line")
	assert.Contains(t, debug.String(), "warn line")
	assert.NotContains(t, warn.String(), "info line")
	assert.Contains(t, warn.String(), "k=v")
}

func TestLokiWriterPushesStream(t *testing.T) {
	var got lokiPush
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/loki/api/v1/push", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := &config.Config{}
	cfg.Logging.Output.Loki.Endpoint = srv.URL + "/"
	cfg.Observability.ServiceName = "echo_backend"
	cfg.Server.Environment = "test"

	logger := slog.New(newLokiHandler(cfg, slog.LevelInfo))
	logger.Info("shipped", "n", 1)

	require.Len(t, got.Streams, 1)
	assert.Equal(t, "echo_backend", got.Streams[0].Stream["service"])
	require.Len(t, got.Streams[0].Values, 1)
	assert.Contains(t, got.Streams[0].Values[0][1], `"msg":"shipped"`)
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		" error ": slog.LevelError,
		"info+2":  slog.LevelInfo + 2,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in), "input %q", in)
	}
}

func TestLocalWriter(t *testing.T) {
	assert.NotNil(t, localWriter(config.OutputConfig{}), "nothing configured falls back to stdout")
	assert.Nil(t, localWriter(config.OutputConfig{Loki: config.LokiConfig{Enabled: true}}))

	path := t.TempDir() + "/echo.log"
	w := localWriter(config.OutputConfig{Stdout: true, File: config.FileLogConfig{Enabled: true, Path: path}})
	_, err := io.WriteString(w, "line\n")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line\n", string(data))
}

func TestEncoderFormat(t *testing.T) {
	var buf bytes.Buffer
	slog.New(encoder(&buf, "text", true, slog.LevelInfo)).Info("hi")
	assert.Contains(t, buf.String(), "msg=hi")

	buf.Reset()
	slog.New(encoder(&buf, "text", false, slog.LevelInfo)).Info("hi")
	assert.True(t, json.Valid(buf.Bytes()), "non-development always logs json")
}
