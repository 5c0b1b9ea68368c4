package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/scoutd/scoutd"
)

// Example: embedding the scoutd supervisor in another program.
//
// This example demonstrates:
//  1. Loading a config TOML file.
//  2. Opening the run store and starting a supervised worker run.
//  3. Polling supervisor status while the run executes.
func main() {
	candidateLocal := filepath.Join("example", "config", "config.toml")
	candidateRel := filepath.Join("config", "config.toml")

	cfgPath := ""
	if _, err := os.Stat(candidateLocal); err == nil {
		cfgPath = candidateLocal
	} else if _, err := os.Stat(candidateRel); err == nil {
		cfgPath = candidateRel
	} else {
		panic("could not locate config.toml for embedded_supervisor example")
	}

	cfg, err := scoutd.LoadConfig(cfgPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	var st scoutd.Store
	if cfg.Store != nil && cfg.Store.DSN != "" {
		st, err = scoutd.OpenStore(cfg.Store.DSN)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = st.Close() }()
	}

	sup := scoutd.New(cfg, st)

	runID, err := sup.Start(cfg.Worker.Defaults)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "start failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("started run %s\n", runID)

	for i := 0; i < 10; i++ {
		time.Sleep(time.Second)
		status := sup.GetStatus()
		if !status.Running {
			fmt.Printf("run finished: %s\n", status.Run.Status)
			break
		}
		fmt.Printf("running: links=%d items=%d breaker=%s\n",
			status.Run.LinksChecked, status.Run.ItemsFound, status.Breaker.State)
	}

	_ = sup.Stop()
}
