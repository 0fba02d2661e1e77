// Command meshwatch is a terminal dashboard for a running mesh simulator. It
// subscribes to the simulator's bus and can ask it to re-publish.
package main

import (
	"flag"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/bus"
)

func main() {
	pubURL := flag.String("pub", "tcp://127.0.0.1:5555", "simulator PUB socket")
	reloadURL := flag.String("reload", "tcp://127.0.0.1:5556", "simulator reload socket; empty disables reload")
	flag.Parse()

	sub, err := bus.Subscribe(*pubURL, bus.TopicLoading, bus.TopicData)
	if err != nil {
		log.Fatalf("Failed to subscribe: %v", err)
	}
	defer sub.Close()

	var r reloader
	if *reloadURL != "" {
		client, err := bus.DialReload(*reloadURL, 2*time.Second)
		if err != nil {
			log.Fatalf("Failed to dial reload socket: %v", err)
		}
		defer client.Close()
		r = client
		// Ask for the current state so the dashboard does not wait a tick.
		_ = client.Request()
	}

	p := tea.NewProgram(newDashboard(sub, r), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("Error running program: %v", err)
	}
}
