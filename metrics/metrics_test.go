package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// Each test registers on the default registry, so namespaces must be
// unique per test to avoid duplicate registration panics.
var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("signflow_test_%d", seq)
}

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.workflowsCreated)
	assert.NotNil(t, collector.workflowOutcomes)
	assert.NotNil(t, collector.stateTransitions)
	assert.NotNil(t, collector.nodeExecutions)
	assert.NotNil(t, collector.nodeDuration)
	assert.NotNil(t, collector.executionErrors)
	assert.NotNil(t, collector.activeWorkflows)
}

func TestCollector_RecordWorkflowCreated(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordWorkflowCreated("contract-signing")

	count := testutil.CollectAndCount(collector.workflowsCreated)
	assert.Greater(t, count, 0)
}

func TestCollector_RecordStateTransition(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordStateTransition("draft", "active")
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.activeWorkflows))

	collector.RecordStateTransition("active", "paused")
	assert.Equal(t, float64(0), testutil.ToFloat64(collector.activeWorkflows))

	collector.RecordStateTransition("paused", "active")
	collector.RecordStateTransition("active", "completed")
	assert.Equal(t, float64(0), testutil.ToFloat64(collector.activeWorkflows))

	count := testutil.CollectAndCount(collector.stateTransitions)
	assert.Greater(t, count, 0)
}

func TestCollector_RecordNodeExecution(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordNodeExecution("document_analysis", "success", 120*time.Millisecond)
	collector.RecordNodeExecution("compliance_check", "skipped", 0)

	assert.Greater(t, testutil.CollectAndCount(collector.nodeExecutions), 0)
	assert.Greater(t, testutil.CollectAndCount(collector.nodeDuration), 0)
}

func TestCollector_RecordWorkflowOutcome(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordWorkflowOutcome("completed", 3*time.Second)
	collector.RecordWorkflowOutcome("failed", time.Second)

	assert.Greater(t, testutil.CollectAndCount(collector.workflowOutcomes), 0)
	assert.Greater(t, testutil.CollectAndCount(collector.workflowDuration), 0)
}

func TestCollector_RecordError(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordError("DispatchError", true)
	collector.RecordError("MaxIterationsExceeded", false)

	assert.Greater(t, testutil.CollectAndCount(collector.executionErrors), 0)
}
