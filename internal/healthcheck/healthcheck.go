package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/l3aro/go-sleuth/internal/config"
	"github.com/l3aro/go-sleuth/internal/log"
	"github.com/l3aro/go-sleuth/pkg/analysis"
	"github.com/l3aro/go-sleuth/pkg/cfg"
	"github.com/l3aro/go-sleuth/pkg/lingo"
	"github.com/l3aro/go-sleuth/pkg/session"
	"github.com/l3aro/go-sleuth/pkg/signal"
)

// sampleProgram is a small program with a branch, a loop and a call, run
// through the configured analysis to check that it reaches a fixpoint.
const sampleProgram = `
functions:
  - name: inc
    params: [x]
    body:
      - assign: y
        value: {op: "+", left: x, right: 1}
      - return: y
program:
  - input: n
  - if: {op: "<", left: 0, right: n}
    then:
      - assign: a
        value: 1
    else:
      - assign: a
        value: 2
  - while: {op: "<", left: a, right: n}
    do:
      - assign: a
        call: inc
        args: [a]
  - assign: r
    value: a
`

// AnalysisStatus represents the health of the configured analysis.
type AnalysisStatus struct {
	Name   string
	Status string // "ready", "incomplete", "error"
	Nodes  int
	Steps  int
	Error  string
}

// HealthCheckResult contains the full health check output for display.
type HealthCheckResult struct {
	SavedPath      string
	SavedScope     string // "global" or "project"
	EffectivePath  string
	EffectiveScope string // "global" or "project"
	Sorting        bool
	Analysis       AnalysisStatus
}

// Check performs a health check against the given config.
// savedPath is where the user saved config (may be empty outside init).
// effectivePath is the config file actually in use (considering priority).
func Check(cfg *config.Config, reg *analysis.Registry, savedPath string, effectivePath string) (*HealthCheckResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if reg == nil {
		return nil, fmt.Errorf("analysis registry is nil")
	}

	result := &HealthCheckResult{
		SavedPath:      savedPath,
		SavedScope:     scopeFromPath(savedPath),
		EffectivePath:  effectivePath,
		EffectiveScope: scopeFromPath(effectivePath),
		Sorting:        cfg.SortWorklist,
	}
	result.Analysis = checkAnalysis(cfg, reg)

	return result, nil
}

// scopeFromPath determines "global" or "project" scope from a config file path.
// Returns empty string if path is empty.
func scopeFromPath(path string) string {
	if path == "" {
		return ""
	}

	home, err := os.UserHomeDir()
	if err == nil {
		globalDir := filepath.Join(home, ".sleuth")
		if strings.HasPrefix(path, globalDir) {
			return "global"
		}
	}

	return "project"
}

// checkAnalysis builds the configured analysis and runs it over the sample
// program.
func checkAnalysis(conf *config.Config, reg *analysis.Registry) AnalysisStatus {
	status := AnalysisStatus{Name: conf.Analysis}

	a, err := reg.New(conf.Analysis)
	if err != nil {
		status.Status = "error"
		status.Error = err.Error()
		return status
	}

	prog, err := lingo.Decode(strings.NewReader(sampleProgram))
	if err != nil {
		status.Status = "error"
		status.Error = fmt.Sprintf("sample program: %v", err)
		return status
	}
	graph, err := cfg.BuildProgram(prog)
	if err != nil {
		status.Status = "error"
		status.Error = fmt.Sprintf("sample program: %v", err)
		return status
	}
	status.Nodes = graph.Len()

	events := signal.NewEvents()
	var failures []error
	events.OnClientException(func(err error) { failures = append(failures, err) })

	s := session.New(events, session.WithLogger(log.Discard()), session.WithSorting(conf.SortWorklist))
	defer s.Close()

	if err := s.Setup(graph, a); err != nil {
		status.Status = "error"
		status.Error = err.Error()
		return status
	}
	steps, err := s.Run(context.Background(), conf.MaxSteps)
	status.Steps = steps

	switch {
	case len(failures) > 0:
		status.Status = "error"
		status.Error = errors.Join(failures...).Error()
	case err != nil:
		status.Status = "incomplete"
		status.Error = err.Error()
	default:
		status.Status = "ready"
	}
	return status
}
