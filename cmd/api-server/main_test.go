package main

import (
	"bytes"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/hackgods/teleconsult-scheduling/internal/config"
	"github.com/hackgods/teleconsult-scheduling/internal/logging"
)

func TestNewHTTPServer(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, "info", "api-server")
	cfg := config.Config{HTTPPort: "9090", JoinWait: 20 * time.Second}

	srv := newHTTPServer(cfg, http.NotFoundHandler(), logger)

	assert.Equal(t, ":9090", srv.Addr)
	assert.Equal(t, 35*time.Second, srv.WriteTimeout, "long-polling joins must fit in the write deadline")

	ctx := srv.BaseContext(&net.TCPListener{})
	assert.NoError(t, ctx.Err())
	zerolog.Ctx(ctx).Info().Msg("from request context")
	assert.Contains(t, buf.String(), "from request context")
}
