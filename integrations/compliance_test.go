package integrations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleComplianceChecker(t *testing.T) {
	checker := NewRuleComplianceChecker(map[string]string{
		"esign_act":      `signatures_collected >= signatures_needed`,
		"retention":      `retention_years >= 7`,
		"classification": `document_type == "contract"`,
	})

	documentData := map[string]interface{}{
		"signatures_collected": 2,
		"signatures_needed":    2,
		"retention_years":      3,
		"document_type":        "contract",
	}

	t.Run("AllStandardsPass", func(t *testing.T) {
		result, err := checker.Check(context.Background(), documentData, []string{"esign_act", "classification"})
		require.NoError(t, err)
		assert.True(t, result.Compliant)
		assert.Equal(t, float64(100), result.Score)
		assert.Empty(t, result.Details)
	})

	t.Run("FailedStandardReported", func(t *testing.T) {
		result, err := checker.Check(context.Background(), documentData, []string{"esign_act", "retention"})
		require.NoError(t, err)
		assert.False(t, result.Compliant)
		assert.Equal(t, float64(50), result.Score)
		require.Len(t, result.Details, 1)
		assert.Contains(t, result.Details[0], "retention")
	})

	t.Run("UnknownStandardCountsAsViolation", func(t *testing.T) {
		result, err := checker.Check(context.Background(), documentData, []string{"hipaa"})
		require.NoError(t, err)
		assert.False(t, result.Compliant)
		assert.Contains(t, result.Details[0], "unknown standard")
	})

	t.Run("NoStandardsRequested", func(t *testing.T) {
		result, err := checker.Check(context.Background(), documentData, nil)
		require.NoError(t, err)
		assert.True(t, result.Compliant)
		assert.Equal(t, float64(100), result.Score)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := checker.Check(ctx, documentData, []string{"esign_act"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestSimulatedCollaborators(t *testing.T) {
	ctx := context.Background()

	t.Run("Analyzer", func(t *testing.T) {
		result, err := SimulatedAnalyzer{}.Analyze(ctx, "doc-1", []string{"classification"})
		require.NoError(t, err)
		assert.Equal(t, "contract", result.DocumentType)
		assert.NotEmpty(t, result.SignatureLocations)
	})

	t.Run("SignatureCollector", func(t *testing.T) {
		req, err := SimulatedSignatureCollector{}.Request(ctx, []string{"alice", "bob"}, OrderSequential)
		require.NoError(t, err)
		assert.Equal(t, "pending", req.Status)
		assert.Equal(t, 2, req.SignaturesNeeded)
		assert.Equal(t, 0, req.SignaturesCollected)
	})

	t.Run("Notifier", func(t *testing.T) {
		notifier := &SimulatedNotifier{}
		result, err := notifier.Send(ctx, []string{"legal@example.com"}, "ready for review", "email")
		require.NoError(t, err)
		assert.Equal(t, "sent", result.Status)
		require.Len(t, notifier.Sent(), 1)
		assert.Equal(t, "ready for review", notifier.Sent()[0].Message)
	})
}
