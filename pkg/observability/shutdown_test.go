package observability

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewShutdownManager_DefaultTimeout(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), nil, 0)
	assert.Equal(t, 30*time.Second, sm.shutdownTimeout)

	sm = NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), nil, time.Second)
	assert.Equal(t, time.Second, sm.shutdownTimeout)
}

func TestShutdownManager_ReverseOrder(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), nil, time.Second)

	var order []string
	for _, name := range []string{"database", "redis", "tracing"} {
		name := name
		sm.Register(name, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}
	sm.Register("ignored", nil)

	require.NoError(t, sm.Shutdown(context.Background()))
	assert.Equal(t, []string{"tracing", "redis", "database"}, order)
}

func TestShutdownManager_CollectsErrors(t *testing.T) {
	var buf bytes.Buffer
	sm := NewShutdownManager(NewLogger(InfoLevel, &buf), nil, time.Second)

	ran := false
	sm.Register("database", func(ctx context.Context) error { ran = true; return nil })
	sm.Register("redis", func(ctx context.Context) error { return errors.New("redis gone") })

	err := sm.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: redis gone")
	assert.True(t, ran, "a failure must not stop later shutdown functions")
	assert.True(t, strings.Contains(buf.String(), "Shutdown of redis failed"))
}

func TestShutdownManager_WaitForShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := &http.Server{Handler: http.NotFoundHandler()}
	served := make(chan error, 1)
	go func() { served <- server.Serve(ln) }()

	sm := NewShutdownManager(NewLogger(ErrorLevel, &bytes.Buffer{}), server, time.Second)
	closed := false
	sm.Register("store", func(ctx context.Context) error { closed = true; return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, sm.WaitForShutdown(ctx))
	assert.ErrorIs(t, <-served, http.ErrServerClosed)
	assert.True(t, closed)
}
