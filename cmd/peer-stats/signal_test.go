package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/route-beacon/peer-stats/internal/batch"
	"github.com/route-beacon/peer-stats/internal/catalog"
	"github.com/route-beacon/peer-stats/internal/codec"
	"github.com/route-beacon/peer-stats/internal/ribstats"
)

func TestSignalContext_CancelledOnSIGINT(t *testing.T) {
	c := cli.NewContext(newApp(), nil, nil)
	c.Context = context.Background()

	ctx, stop := signalContext(c)
	defer stop()

	if err := syscall.Kill(os.Getpid(), syscall.SIGINT); err != nil {
		t.Fatal(err)
	}
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context not cancelled by SIGINT")
	}
}

func TestIndexPfx2AS_StopsWhenCancelled(t *testing.T) {
	dataDir := t.TempDir()
	gz, err := codec.ByName("gz")
	if err != nil {
		t.Fatal(err)
	}
	d := catalog.Descriptor{Collector: "rrc00", Timestamp: time.Now().UTC()}
	touch(t, batch.OutputPath(dataDir, ribstats.DataTypePfx2AS, d, gz))
	cfg := writeConfig(t, dataDir, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	app := newApp()
	app.ExitErrHandler = func(*cli.Context, error) {}
	err = app.RunContext(ctx, []string{"peer-stats", "--config", cfg, "index-pfx2as"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dataDir, "pfx2as-latest.json.gz")); !os.IsNotExist(err) {
		t.Errorf("cancelled merge must not write the latest file, stat err = %v", err)
	}
}
