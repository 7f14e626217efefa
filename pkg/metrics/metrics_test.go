package metrics

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-sleuth/internal/log"
	"github.com/l3aro/go-sleuth/pkg/analyses/counting"
	"github.com/l3aro/go-sleuth/pkg/analysis"
	"github.com/l3aro/go-sleuth/pkg/cfg"
	"github.com/l3aro/go-sleuth/pkg/lingo"
	"github.com/l3aro/go-sleuth/pkg/session"
	"github.com/l3aro/go-sleuth/pkg/signal"
)

func TestRecorder_ObservesSession(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg)
	events := signal.NewEvents()
	detach := rec.Attach(events)
	defer detach()

	g, err := cfg.Build(lingo.Seq(
		lingo.NewAssignment(lingo.Var("a"), lingo.Num(1)),
		lingo.NewAssignment(lingo.Var("b"), lingo.Num(2)),
	))
	require.NoError(t, err)

	s := session.New(events, session.WithLogger(log.Discard()))
	defer s.Close()
	require.NoError(t, s.Setup(g, counting.New()))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.worklistLength))

	_, err = s.Run(context.Background(), 0)
	require.NoError(t, err)
	_, err = s.QueryWith("1", analysis.DirectionOut, analysis.EncodingText)
	require.NoError(t, err)

	assert.Equal(t, 3.0, testutil.ToFloat64(rec.worklistUpdates))
	assert.Equal(t, 0.0, testutil.ToFloat64(rec.worklistLength))
	assert.Equal(t, 2.0, testutil.ToFloat64(rec.selections))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.completions))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.nodeInfos.WithLabelValues("out")))
}

func TestRecorder_ClientExceptionsByOp(t *testing.T) {
	rec := NewRecorder(prometheus.NewRegistry())

	rec.RecordClientException(&analysis.ClientError{Analysis: "x", Op: analysis.OpProcess, Err: errors.New("boom")})
	rec.RecordClientException(&analysis.ClientError{Analysis: "x", Op: analysis.OpProcess, Err: errors.New("boom")})
	rec.RecordClientException(errors.New("plain"))

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.clientExceptions.WithLabelValues("process")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.clientExceptions.WithLabelValues("unknown")))
}

func TestRecorder_DetachStopsRecording(t *testing.T) {
	rec := NewRecorder(prometheus.NewRegistry())
	events := signal.NewEvents()
	detach := rec.Attach(events)

	require.NoError(t, events.WorklistUpdated.Fire([]string{"0: a := 1"}))
	detach()
	require.NoError(t, events.WorklistUpdated.Fire([]string{}))

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.worklistUpdates))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.worklistLength))
	assert.Zero(t, events.WorklistUpdated.Len())
}

func TestRecorder_WriteSummary(t *testing.T) {
	rec := NewRecorder(prometheus.NewRegistry())
	rec.RecordWorklist([]string{"a", "b"})
	rec.RecordNodeInfo(analysis.NodeInfo{})

	var buf bytes.Buffer
	require.NoError(t, rec.WriteSummary(&buf))
	out := buf.String()

	assert.Contains(t, out, "sleuth_session_worklist_length 2\n")
	assert.Contains(t, out, "sleuth_session_worklist_updates_total 1\n")
	assert.Contains(t, out, `sleuth_session_node_infos_total{direction="both"} 1`)
	assert.Contains(t, out, "sleuth_session_completions_total 0\n")
}
