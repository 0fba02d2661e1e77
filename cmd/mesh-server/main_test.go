package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"go.nanomsg.org/mangos/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/api"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/bus"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/config"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/logging"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/progress"
)

func listen(t *testing.T) net.Listener {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	return lis
}

func TestMeshServerStartupSmoke(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	cfg := config.Default()
	cfg.Layout = config.Layout{Width: 14, Depth: 10, Height: 4}
	cfg.Nodes.Count = 5
	cfg.Ticks = 2
	cfg.Accelerated = true
	cfg.Export = false
	cfg.Bus.PubURL = fmt.Sprintf("inproc://mesh-server-pub-%d", time.Now().UnixNano())
	cfg.Bus.ReloadURL = fmt.Sprintf("inproc://mesh-server-reload-%d", time.Now().UnixNano())

	lis := listeners{HTTP: listen(t), GRPC: listen(t)}
	log := logging.New(logging.Config{Level: "warn", Format: "text"})

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, cfg, log, lis)
	}()

	conn, err := grpc.NewClient(lis.GRPC.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	defer conn.Close()
	client := api.NewStateServiceClient(conn)

	// The simulation runs two ticks; wait until the last one is visible.
	var tick float64
	for deadline := time.Now().Add(15 * time.Second); time.Now().Before(deadline); time.Sleep(20 * time.Millisecond) {
		resp, err := client.GetControllers(ctx)
		if err != nil {
			continue
		}
		if tick = resp.GetFields()["tick"].GetNumberValue(); tick == 2 {
			break
		}
	}
	if tick != 2 {
		t.Fatalf("last tick = %v, want 2", tick)
	}

	resp, err := http.Get("http://" + lis.HTTP.Addr().String() + "/progress")
	if err != nil {
		t.Fatalf("GET /progress: %v", err)
	}
	var view progress.View
	err = json.NewDecoder(resp.Body).Decode(&view)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode progress: %v", err)
	}
	if view.Lifetime != (progress.Lifetime{Tick: 2, End: 2}) {
		t.Fatalf("lifetime = %+v, want {2 2}", view.Lifetime)
	}

	sub, err := bus.Subscribe(cfg.Bus.PubURL, bus.TopicData)
	if err != nil {
		t.Fatalf("bus.Subscribe: %v", err)
	}
	defer sub.Close()
	reload, err := bus.DialReload(cfg.Bus.ReloadURL, time.Second)
	if err != nil {
		t.Fatalf("bus.DialReload: %v", err)
	}
	defer reload.Close()

	got := false
	for deadline := time.Now().Add(10 * time.Second); !got && time.Now().Before(deadline); {
		if err := reload.Request(); err != nil {
			t.Fatalf("reload request: %v", err)
		}
		topic, _, err := sub.Next(100 * time.Millisecond)
		if errors.Is(err, mangos.ErrRecvTimeout) {
			continue
		}
		if err != nil {
			t.Fatalf("subscriber: %v", err)
		}
		got = topic == bus.TopicData
	}
	if !got {
		t.Fatal("reload did not re-publish the snapshot")
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("server returned error: %v", err)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Nodes.Count = 0
	if err := run(context.Background(), cfg, logging.Noop(), listeners{}); err == nil {
		t.Fatal("expected a validation error")
	}
}
