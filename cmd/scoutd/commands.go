package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/scoutd/scoutd/internal/launcher"
)

// command bundles the CLI subcommand implementations. Every command
// talks to a running scoutd daemon over its REST API.
type command struct{}

func (command) client(apiURL string, timeout time.Duration) (*APIClient, error) {
	c := NewAPIClient(apiURL, timeout)
	if !c.IsReachable() {
		return nil, fmt.Errorf("daemon not reachable at %s (is 'scoutd serve' running?)", c.baseURL)
	}
	return c, nil
}

// Start launches a collection run with the given parameters.
func (cmd command) Start(flags StartFlags) error {
	c, err := cmd.client(flags.APIUrl, flags.APITimeout)
	if err != nil {
		return err
	}
	params := launcher.Params{
		Industry:  flags.Industry,
		Rate:      flags.Rate,
		Mode:      flags.Mode,
		Verbose:   flags.Verbose,
		Force:     flags.Force,
		SingleRun: flags.SingleRun,
		DryRun:    flags.DryRun,
	}
	runID, err := c.StartRun(params)
	if err != nil {
		return err
	}
	fmt.Printf("started run %s\n", runID)
	return nil
}

// Stop terminates the active run and cancels pending retries.
func (cmd command) Stop(flags APIFlags) error {
	c, err := cmd.client(flags.APIUrl, flags.APITimeout)
	if err != nil {
		return err
	}
	if err := c.StopRun(); err != nil {
		return err
	}
	fmt.Println("stopped")
	return nil
}

// Reset clears retry counters and circuit breaker state.
func (cmd command) Reset(flags APIFlags) error {
	c, err := cmd.client(flags.APIUrl, flags.APITimeout)
	if err != nil {
		return err
	}
	if err := c.ResetSupervisor(); err != nil {
		return err
	}
	fmt.Println("reset")
	return nil
}

// Status prints the supervisor status as indented JSON.
func (cmd command) Status(flags APIFlags) error {
	c, err := cmd.client(flags.APIUrl, flags.APITimeout)
	if err != nil {
		return err
	}
	st, err := c.GetStatus()
	if err != nil {
		return err
	}
	return printJSON(st)
}

// Runs lists persisted runs.
func (cmd command) Runs(flags RunsFlags) error {
	c, err := cmd.client(flags.APIUrl, flags.APITimeout)
	if err != nil {
		return err
	}
	runs, err := c.GetRuns(flags.Limit)
	if err != nil {
		return err
	}
	return printJSON(runs)
}

// Log prints buffered or persisted log lines.
func (cmd command) Log(flags LogFlags) error {
	c, err := cmd.client(flags.APIUrl, flags.APITimeout)
	if err != nil {
		return err
	}
	var (
		out interface{}
	)
	if flags.RunID != "" {
		out, err = c.GetRunLog(flags.RunID, flags.Limit)
	} else {
		out, err = c.GetLog(flags.Limit)
	}
	if err != nil {
		return err
	}
	return printJSON(out)
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
