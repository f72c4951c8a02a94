package flight

import (
	"context"
	"geosql/pkg/codec"
	"geosql/pkg/function"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartFlightServer(t *testing.T) {
	table := function.NewTable(codec.New())

	t.Run("stops when the context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- StartFlightServer(ctx, table, 0, nil) }()

		// Cancelling may race Serve, so only a prompt return is checked.
		cancel()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Fatal("server did not stop after cancel")
		}
	})

	t.Run("returns when the port is taken", func(t *testing.T) {
		l, err := net.Listen("tcp", ":0")
		require.NoError(t, err)
		defer l.Close()

		err = StartFlightServer(context.Background(), table, l.Addr().(*net.TCPAddr).Port, nil)
		assert.Error(t, err)
	})
}
