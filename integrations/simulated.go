package integrations

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Simulated collaborators for demos and local development. They stand in
// for real analysis, signature, and notification services; production
// deployments supply their own implementations of the interfaces.

// SimulatedAnalyzer returns a canned contract classification after an
// optional artificial latency.
type SimulatedAnalyzer struct {
	Latency time.Duration
}

// Analyze implements DocumentAnalyzer.
func (a SimulatedAnalyzer) Analyze(ctx context.Context, documentID string, analysisTypes []string) (AnalysisResult, error) {
	start := time.Now()
	if err := simulateLatency(ctx, a.Latency); err != nil {
		return AnalysisResult{}, err
	}
	return AnalysisResult{
		DocumentType:     "contract",
		ComplianceStatus: "passed",
		RiskAssessment:   "low",
		SignatureLocations: []SignatureLocation{
			{Page: 1, X: 72, Y: 640},
		},
		ConfidenceScore: 0.94,
		ProcessingTime:  time.Since(start).Milliseconds(),
	}, nil
}

// SimulatedSignatureCollector opens pending requests without contacting
// any signing provider.
type SimulatedSignatureCollector struct {
	Latency time.Duration
}

// Request implements SignatureCollector.
func (c SimulatedSignatureCollector) Request(ctx context.Context, parties []string, order string) (SignatureRequest, error) {
	if err := simulateLatency(ctx, c.Latency); err != nil {
		return SignatureRequest{}, err
	}
	return SignatureRequest{
		RequestID:           "sig-req-" + uuid.New().String(),
		Status:              "pending",
		SignaturesNeeded:    len(parties),
		SignaturesCollected: 0,
	}, nil
}

// SimulatedNotifier records every send so tests and demos can inspect
// what would have gone out.
type SimulatedNotifier struct {
	mu   sync.Mutex
	sent []SentNotification
}

// SentNotification is one recorded delivery.
type SentNotification struct {
	Recipients []string
	Message    string
	Type       string
}

// Send implements Notifier.
func (n *SimulatedNotifier) Send(ctx context.Context, recipients []string, message, notificationType string) (NotificationResult, error) {
	select {
	case <-ctx.Done():
		return NotificationResult{}, ctx.Err()
	default:
	}
	n.mu.Lock()
	n.sent = append(n.sent, SentNotification{Recipients: recipients, Message: message, Type: notificationType})
	n.mu.Unlock()
	return NotificationResult{
		NotificationID: "notif-" + uuid.New().String(),
		Status:         "sent",
	}, nil
}

// Sent returns a copy of the recorded deliveries.
func (n *SimulatedNotifier) Sent() []SentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]SentNotification, len(n.sent))
	copy(out, n.sent)
	return out
}

func simulateLatency(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
