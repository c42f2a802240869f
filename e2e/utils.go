package e2e

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	servercmd "github.com/Rin0913/devicewatch/internal/app/server"
	"github.com/Rin0913/devicewatch/internal/config"
)

// requireRedis skips unless REDIS_ADDR points at a disposable redis.
func requireRedis(t *testing.T) {
	t.Helper()

	if os.Getenv("REDIS_ADDR") == "" {
		t.Skip("REDIS_ADDR not set, skipping e2e test")
	}
}

func startServer(t *testing.T, cfg *config.Config) (context.Context, context.CancelFunc, chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)

	go func() {
		errCh <- servercmd.Run(ctx, cfg)
	}()

	return ctx, cancel, errCh
}

func waitForShutdown(t *testing.T, errCh chan error) {
	t.Helper()

	select {
	case <-time.After(5 * time.Second):
		t.Fatalf("run(ctx) did not exit after cancel")
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run(ctx) returned error: %v", err)
		}
	}
}

func waitForHealthReady(t *testing.T, client *http.Client, baseURL string) *http.Response {
	t.Helper()

	var resp *http.Response
	var err error

	for i := 0; i < 10; i++ {
		resp, err = client.Get(baseURL + "/health")
		if err == nil {
			return resp
		}
		time.Sleep(200 * time.Millisecond)
	}

	t.Fatalf("failed to call /health: %v", err)
	return nil
}
