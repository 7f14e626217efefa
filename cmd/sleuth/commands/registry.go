package commands

import (
	"github.com/l3aro/go-sleuth/pkg/analyses/counting"
	"github.com/l3aro/go-sleuth/pkg/analyses/reaching"
	"github.com/l3aro/go-sleuth/pkg/analysis"
)

// analyses holds every analysis the CLI ships
var analyses = newRegistry()

func newRegistry() *analysis.Registry {
	reg := analysis.NewRegistry()
	reg.MustRegister(counting.Name, "Statements that must execute before each node", func() (analysis.Analysis, error) {
		return counting.New(), nil
	})
	reg.MustRegister(reaching.Name, "Definitions that may reach each node", func() (analysis.Analysis, error) {
		return reaching.New(), nil
	})
	return reg
}
