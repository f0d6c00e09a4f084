package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/signflow-io/signflow/integrations"
	"github.com/signflow-io/signflow/types"
)

const defaultReviewDeadlineHours = 24

func updateStatusHandler() Handler {
	return HandlerFunc(func(ctx context.Context, action types.WorkflowAction, data map[string]interface{}) (map[string]interface{}, error) {
		status, ok := stringParam(action.Parameters, "status")
		if !ok {
			return nil, NewDispatchError(action.Type, false, fmt.Errorf("missing required parameter 'status'"))
		}
		return map[string]interface{}{"status": status}, nil
	})
}

func analyzeDocumentHandler(analyzer integrations.DocumentAnalyzer) Handler {
	return HandlerFunc(func(ctx context.Context, action types.WorkflowAction, data map[string]interface{}) (map[string]interface{}, error) {
		if analyzer == nil {
			return nil, fmt.Errorf("%w: %s", ErrCollaboratorMissing, action.Type)
		}
		documentID, ok := stringParam(action.Parameters, "document_id")
		if !ok {
			documentID, ok = stringValue(data["document_id"])
		}
		if !ok || documentID == "" {
			return nil, NewDispatchError(action.Type, false, fmt.Errorf("no document_id in parameters or workflow data"))
		}
		analysisTypes := stringSliceParam(action.Parameters, "analysis_types")

		result, err := analyzer.Analyze(ctx, documentID, analysisTypes)
		if err != nil {
			return nil, NewDispatchError(action.Type, true, err)
		}
		return result.Map(), nil
	})
}

func checkComplianceHandler(checker integrations.ComplianceChecker) Handler {
	return HandlerFunc(func(ctx context.Context, action types.WorkflowAction, data map[string]interface{}) (map[string]interface{}, error) {
		if checker == nil {
			return nil, fmt.Errorf("%w: %s", ErrCollaboratorMissing, action.Type)
		}
		standards := stringSliceParam(action.Parameters, "standards")

		result, err := checker.Check(ctx, data, standards)
		if err != nil {
			return nil, NewDispatchError(action.Type, true, err)
		}
		return result.Map(), nil
	})
}

func collectSignatureHandler(collector integrations.SignatureCollector) Handler {
	return HandlerFunc(func(ctx context.Context, action types.WorkflowAction, data map[string]interface{}) (map[string]interface{}, error) {
		if collector == nil {
			return nil, fmt.Errorf("%w: %s", ErrCollaboratorMissing, action.Type)
		}
		parties := stringSliceParam(action.Parameters, "parties")
		if len(parties) == 0 {
			return nil, NewDispatchError(action.Type, false, fmt.Errorf("missing required parameter 'parties'"))
		}
		order, ok := stringParam(action.Parameters, "order")
		if !ok {
			order = integrations.OrderSequential
		}
		if order != integrations.OrderSequential && order != integrations.OrderParallel {
			return nil, NewDispatchError(action.Type, false, fmt.Errorf("invalid signing order %q", order))
		}

		result, err := collector.Request(ctx, parties, order)
		if err != nil {
			return nil, NewDispatchError(action.Type, true, err)
		}
		return result.Map(), nil
	})
}

func sendNotificationHandler(notifier integrations.Notifier) Handler {
	return HandlerFunc(func(ctx context.Context, action types.WorkflowAction, data map[string]interface{}) (map[string]interface{}, error) {
		if notifier == nil {
			return nil, fmt.Errorf("%w: %s", ErrCollaboratorMissing, action.Type)
		}
		recipients := stringSliceParam(action.Parameters, "recipients")
		if len(recipients) == 0 {
			return nil, NewDispatchError(action.Type, false, fmt.Errorf("missing required parameter 'recipients'"))
		}
		message, _ := stringParam(action.Parameters, "message")
		notifType, ok := stringParam(action.Parameters, "type")
		if !ok {
			notifType = "info"
		}

		result, err := notifier.Send(ctx, recipients, message, notifType)
		if err != nil {
			return nil, NewDispatchError(action.Type, true, err)
		}
		return result.Map(), nil
	})
}

func createAuditLogHandler(store integrations.AuditStore) Handler {
	return HandlerFunc(func(ctx context.Context, action types.WorkflowAction, data map[string]interface{}) (map[string]interface{}, error) {
		if store == nil {
			return nil, fmt.Errorf("%w: %s", ErrCollaboratorMissing, action.Type)
		}
		eventType, ok := stringParam(action.Parameters, "event_type")
		if !ok {
			return nil, NewDispatchError(action.Type, false, fmt.Errorf("missing required parameter 'event_type'"))
		}
		details := mapParam(action.Parameters, "details")
		actorID, ok := stringParam(action.Parameters, "actor_id")
		if !ok {
			actorID = "system"
		}

		result, err := store.Record(ctx, eventType, details, actorID)
		if err != nil {
			return nil, NewDispatchError(action.Type, true, err)
		}
		return result.Map(), nil
	})
}

// waitForHumanHandler records a pending review descriptor. The engine
// pauses the workflow on the node's HumanReviewRequired flag; resolution
// arrives later through SubmitReview.
func waitForHumanHandler() Handler {
	return HandlerFunc(func(ctx context.Context, action types.WorkflowAction, data map[string]interface{}) (map[string]interface{}, error) {
		hours := floatParam(action.Parameters, "deadline_hours", defaultReviewDeadlineHours)
		deadline := time.Now().Add(time.Duration(hours * float64(time.Hour)))
		return map[string]interface{}{
			"review_id": "review-" + uuid.New().String(),
			"status":    "pending",
			"deadline":  deadline.UTC().Format(time.RFC3339),
		}, nil
	})
}

func triggerWebhookHandler(client integrations.WebhookClient) Handler {
	return HandlerFunc(func(ctx context.Context, action types.WorkflowAction, data map[string]interface{}) (map[string]interface{}, error) {
		if client == nil {
			return nil, fmt.Errorf("%w: %s", ErrCollaboratorMissing, action.Type)
		}
		url, ok := stringParam(action.Parameters, "url")
		if !ok || url == "" {
			return nil, NewDispatchError(action.Type, false, fmt.Errorf("missing required parameter 'url'"))
		}
		method, _ := stringParam(action.Parameters, "method")
		payload := mapParam(action.Parameters, "payload")

		result, err := client.Trigger(ctx, url, method, payload)
		if err != nil {
			return nil, NewDispatchError(action.Type, true, err)
		}
		return result.Map(), nil
	})
}

func stringParam(params map[string]interface{}, key string) (string, bool) {
	if params == nil {
		return "", false
	}
	return stringValue(params[key])
}

func stringValue(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// stringSliceParam accepts both []string and the []interface{} form that
// JSON and YAML decoding produce. Non-string elements are skipped.
func stringSliceParam(params map[string]interface{}, key string) []string {
	if params == nil {
		return nil
	}
	switch v := params[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func mapParam(params map[string]interface{}, key string) map[string]interface{} {
	if params == nil {
		return nil
	}
	if m, ok := params[key].(map[string]interface{}); ok {
		return m
	}
	return nil
}

func floatParam(params map[string]interface{}, key string, fallback float64) float64 {
	if params == nil {
		return fallback
	}
	switch v := params[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return fallback
	}
}
