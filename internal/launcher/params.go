package launcher

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
)

// Worker collection modes accepted on the CLI. Anything else is dropped
// at normalization time, not deep inside command building.
const (
	ModeStandard = "standard"
	ModeDeep     = "deep"
	ModeFast     = "fast"
	ModeAudit    = "audit"
)

const (
	MinRate     = 1
	MaxRate     = 100
	DefaultRate = 10
)

var validModes = map[string]bool{
	ModeStandard: true,
	ModeDeep:     true,
	ModeFast:     true,
	ModeAudit:    true,
}

// Params describes one invocation of the collection worker.
// Industry is required; everything else has a usable default.
type Params struct {
	Industry  string `json:"industry" mapstructure:"industry"`
	Rate      int    `json:"rate" mapstructure:"rate"` // concurrent request budget
	Mode      string `json:"mode" mapstructure:"mode"`
	Verbose   bool   `json:"verbose" mapstructure:"verbose"`
	Force     bool   `json:"force" mapstructure:"force"`
	SingleRun bool   `json:"single_run" mapstructure:"single_run"`
	DryRun    bool   `json:"dry_run" mapstructure:"dry_run"`
}

var ErrIndustryRequired = errors.New("params: industry is required")

// Normalize validates p and applies defaults in place.
// A missing industry is a hard error; an unknown mode is dropped with a
// warning so a bad optional flag never blocks a launch.
func (p *Params) Normalize() error {
	if p.Industry == "" {
		return ErrIndustryRequired
	}
	if p.Rate <= 0 {
		p.Rate = DefaultRate
	}
	if p.Rate < MinRate {
		p.Rate = MinRate
	}
	if p.Rate > MaxRate {
		p.Rate = MaxRate
	}
	if p.Mode != "" && !validModes[p.Mode] {
		slog.Warn("dropping unknown worker mode", "mode", p.Mode)
		p.Mode = ""
	}
	if p.Mode == "" {
		p.Mode = ModeStandard
	}
	return nil
}

// Args renders the normalized params as worker CLI arguments.
// Callers must Normalize first; Args never fails.
func (p Params) Args() []string {
	args := []string{
		"--industry", p.Industry,
		"--rate", strconv.Itoa(p.Rate),
		"--mode", p.Mode,
	}
	if p.Verbose {
		args = append(args, "--verbose")
	}
	if p.Force {
		args = append(args, "--force")
	}
	if p.SingleRun {
		args = append(args, "--single-run")
	}
	if p.DryRun {
		args = append(args, "--dry-run")
	}
	return args
}

func (p Params) String() string {
	return fmt.Sprintf("industry=%s rate=%d mode=%s", p.Industry, p.Rate, p.Mode)
}
