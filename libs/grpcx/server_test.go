package grpcx

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"
)

func TestHealthServing(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	srv := NewServer(slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv.SetServing("scheduling", false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.ServeListener(ctx, lis)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	checkCtx, checkCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer checkCancel()

	if err := CheckHealth(checkCtx, lis.Addr().String(), ""); err != nil {
		t.Fatalf("expected overall server to be serving: %v", err)
	}
	if err := CheckHealth(checkCtx, lis.Addr().String(), "scheduling"); err == nil {
		t.Fatal("expected scheduling to report NOT_SERVING")
	}

	srv.SetServing("scheduling", true)
	if err := CheckHealth(checkCtx, lis.Addr().String(), "scheduling"); err != nil {
		t.Fatalf("expected scheduling to be serving: %v", err)
	}
}
