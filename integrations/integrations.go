// Package integrations defines the collaborator contracts the workflow
// engine dispatches to: document analysis, compliance checking, signature
// collection, notification, audit, and webhooks. The engine core never
// implements these capabilities itself; it calls whatever implementation
// the dispatcher was configured with.
package integrations

import (
	"context"
	"time"
)

// Signature collection ordering modes.
const (
	OrderSequential = "sequential"
	OrderParallel   = "parallel"
)

// DocumentAnalyzer inspects a stored document and classifies it.
type DocumentAnalyzer interface {
	Analyze(ctx context.Context, documentID string, analysisTypes []string) (AnalysisResult, error)
}

// ComplianceChecker evaluates document data against named standards.
type ComplianceChecker interface {
	Check(ctx context.Context, documentData map[string]interface{}, standards []string) (ComplianceResult, error)
}

// SignatureCollector opens a signature request for the given parties.
type SignatureCollector interface {
	Request(ctx context.Context, parties []string, order string) (SignatureRequest, error)
}

// Notifier delivers a message to recipients.
type Notifier interface {
	Send(ctx context.Context, recipients []string, message, notificationType string) (NotificationResult, error)
}

// AuditStore records an audit trail event.
type AuditStore interface {
	Record(ctx context.Context, eventType string, details map[string]interface{}, actorID string) (AuditRecord, error)
}

// WebhookClient triggers an HTTP callback.
type WebhookClient interface {
	Trigger(ctx context.Context, url, method string, payload map[string]interface{}) (WebhookResult, error)
}

// SignatureLocation marks where a signature belongs in a document.
type SignatureLocation struct {
	Page   int     `json:"page"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Signer string  `json:"signer,omitempty"`
}

// AnalysisResult is the analyzer's classification of a document.
type AnalysisResult struct {
	DocumentType       string              `json:"document_type"`
	ComplianceStatus   string              `json:"compliance_status"`
	RiskAssessment     string              `json:"risk_assessment"`
	SignatureLocations []SignatureLocation `json:"signature_locations"`
	ConfidenceScore    float64             `json:"confidence_score"`
	ProcessingTime     int64               `json:"processing_time"`
}

// Map renders the result for the workflow data context.
func (r AnalysisResult) Map() map[string]interface{} {
	locations := make([]interface{}, 0, len(r.SignatureLocations))
	for _, loc := range r.SignatureLocations {
		m := map[string]interface{}{
			"page": loc.Page,
			"x":    loc.X,
			"y":    loc.Y,
		}
		if loc.Signer != "" {
			m["signer"] = loc.Signer
		}
		locations = append(locations, m)
	}
	return map[string]interface{}{
		"document_type":       r.DocumentType,
		"compliance_status":   r.ComplianceStatus,
		"risk_assessment":     r.RiskAssessment,
		"signature_locations": locations,
		"confidence_score":    r.ConfidenceScore,
		"processing_time":     r.ProcessingTime,
	}
}

// ComplianceResult is the checker's verdict over the requested standards.
type ComplianceResult struct {
	Compliant bool     `json:"compliant"`
	Score     float64  `json:"score"`
	Details   []string `json:"details"`
}

// Map renders the result for the workflow data context.
func (r ComplianceResult) Map() map[string]interface{} {
	return map[string]interface{}{
		"compliant": r.Compliant,
		"score":     r.Score,
		"details":   r.Details,
	}
}

// SignatureRequest describes a pending signature collection round.
type SignatureRequest struct {
	RequestID           string `json:"request_id"`
	Status              string `json:"status"`
	SignaturesNeeded    int    `json:"signatures_needed"`
	SignaturesCollected int    `json:"signatures_collected"`
}

// Map renders the request for the workflow data context.
func (r SignatureRequest) Map() map[string]interface{} {
	return map[string]interface{}{
		"request_id":           r.RequestID,
		"status":               r.Status,
		"signatures_needed":    r.SignaturesNeeded,
		"signatures_collected": r.SignaturesCollected,
	}
}

// NotificationResult acknowledges a delivered (or queued) notification.
type NotificationResult struct {
	NotificationID string `json:"notification_id"`
	Status         string `json:"status"`
}

// Map renders the result for the workflow data context.
func (r NotificationResult) Map() map[string]interface{} {
	return map[string]interface{}{
		"notification_id": r.NotificationID,
		"status":          r.Status,
	}
}

// AuditRecord acknowledges a stored audit event.
type AuditRecord struct {
	AuditID   string    `json:"audit_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Map renders the record for the workflow data context.
func (r AuditRecord) Map() map[string]interface{} {
	return map[string]interface{}{
		"audit_id":  r.AuditID,
		"timestamp": r.Timestamp.Format(time.RFC3339),
	}
}

// WebhookResult reports the outcome of a triggered callback.
type WebhookResult struct {
	Status      int       `json:"status"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// Map renders the result for the workflow data context.
func (r WebhookResult) Map() map[string]interface{} {
	return map[string]interface{}{
		"status":       r.Status,
		"triggered_at": r.TriggeredAt.Format(time.RFC3339),
	}
}
