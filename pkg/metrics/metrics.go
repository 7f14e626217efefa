// Package metrics records Prometheus metrics for analysis sessions by
// observing their outbound channels.
package metrics

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"github.com/l3aro/go-sleuth/pkg/analysis"
	"github.com/l3aro/go-sleuth/pkg/cfg"
	"github.com/l3aro/go-sleuth/pkg/signal"
)

const (
	namespace = "sleuth"
	subsystem = "session"
)

// Recorder holds the session metrics registered on one registry.
type Recorder struct {
	gatherer prometheus.Gatherer

	// worklistUpdates counts worklistUpdated notifications.
	worklistUpdates prometheus.Counter
	// worklistLength is the length of the last published worklist.
	worklistLength prometheus.Gauge
	// selections counts nodeSelected notifications from steps and worklist
	// item selection.
	selections prometheus.Counter
	// clientExceptions counts isolated analysis failures.
	// Labels: op (prepare, process, query, unknown)
	clientExceptions *prometheus.CounterVec
	// completions counts sessions reaching their fixpoint.
	completions prometheus.Counter
	// nodeInfos counts query results.
	// Labels: direction (in, out, both)
	nodeInfos *prometheus.CounterVec
}

// NewRecorder creates the session metrics and registers them on reg.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		gatherer: reg,
		worklistUpdates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "worklist_updates_total",
			Help:      "Total worklist updates published",
		}),
		worklistLength: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "worklist_length",
			Help:      "Number of pending worklist items",
		}),
		selections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "node_selections_total",
			Help:      "Total nodes selected by steps or worklist selection",
		}),
		clientExceptions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "client_exceptions_total",
			Help:      "Total client analysis failures by operation",
		}, []string{"op"}),
		completions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "completions_total",
			Help:      "Total analyses that reached a fixpoint",
		}),
		nodeInfos: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "node_infos_total",
			Help:      "Total node information results by direction",
		}, []string{"direction"}),
	}
}

// Attach subscribes the recorder to the outbound channels of events and
// returns a function that detaches it.
func (r *Recorder) Attach(events *signal.Events) (detach func()) {
	subs := []struct {
		ch  *signal.Channel
		sub signal.Subscription
	}{
		{events.WorklistUpdated, events.OnWorklistUpdated(r.RecordWorklist)},
		{events.NodeSelected, events.OnNodeSelected(func(*cfg.CommandNode) { r.selections.Inc() })},
		{events.ClientException, events.OnClientException(r.RecordClientException)},
		{events.AnalysisComplete, events.OnAnalysisComplete(r.completions.Inc)},
		{events.NodeInfoReady, events.OnNodeInfoReady(r.RecordNodeInfo)},
	}
	return func() {
		for _, s := range subs {
			s.ch.Unregister(s.sub)
		}
	}
}

// RecordWorklist records a published worklist.
func (r *Recorder) RecordWorklist(labels []string) {
	r.worklistUpdates.Inc()
	r.worklistLength.Set(float64(len(labels)))
}

// RecordClientException records an analysis failure by the failing operation.
func (r *Recorder) RecordClientException(err error) {
	op := "unknown"
	var cerr *analysis.ClientError
	if errors.As(err, &cerr) {
		op = string(cerr.Op)
	}
	r.clientExceptions.WithLabelValues(op).Inc()
}

// RecordNodeInfo records a query result.
func (r *Recorder) RecordNodeInfo(info analysis.NodeInfo) {
	dir := info.Direction
	if dir == "" {
		dir = analysis.DirectionBoth
	}
	r.nodeInfos.WithLabelValues(string(dir)).Inc()
}

// WriteSummary writes every gathered sample as "name{labels} value", sorted.
func (r *Recorder) WriteSummary(w io.Writer) error {
	families, err := r.gatherer.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}

	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			lines = append(lines, fmt.Sprintf("%s%s %g", mf.GetName(), formatLabels(m.GetLabel()), value(mf.GetType(), m)))
		}
	}
	sort.Strings(lines)

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func formatLabels(pairs []*dto.LabelPair) string {
	if len(pairs) == 0 {
		return ""
	}
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = fmt.Sprintf("%s=%q", p.GetName(), p.GetValue())
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func value(typ dto.MetricType, m *dto.Metric) float64 {
	switch typ {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue()
	default:
		return m.GetUntyped().GetValue()
	}
}
