package workflow

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/signflow-io/signflow/integrations"
	"github.com/signflow-io/signflow/types"
)

// Handler executes one action kind against an immutable snapshot of the
// workflow data. Handlers return the structured result to merge into the
// workflow context; they never mutate the snapshot.
type Handler interface {
	// Execute runs the action synchronously.
	Execute(ctx context.Context, action types.WorkflowAction, data map[string]interface{}) (map[string]interface{}, error)

	// ExecuteAsync runs the action in a goroutine, returning channels for
	// result and error. Exactly one of the two channels receives.
	ExecuteAsync(ctx context.Context, action types.WorkflowAction, data map[string]interface{}) (chan map[string]interface{}, chan error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, action types.WorkflowAction, data map[string]interface{}) (map[string]interface{}, error)

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx context.Context, action types.WorkflowAction, data map[string]interface{}) (map[string]interface{}, error) {
	return f(ctx, action, data)
}

// ExecuteAsync implements Handler.
func (f HandlerFunc) ExecuteAsync(ctx context.Context, action types.WorkflowAction, data map[string]interface{}) (chan map[string]interface{}, chan error) {
	resultCh := make(chan map[string]interface{}, 1)
	errCh := make(chan error, 1)
	go func() {
		result, err := f(ctx, action, data)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- result
	}()
	return resultCh, errCh
}

// Collaborators bundles the external services the built-in handlers
// delegate to. Any field may be nil; dispatching an action whose
// collaborator is missing fails fatally.
type Collaborators struct {
	Analyzer   integrations.DocumentAnalyzer
	Compliance integrations.ComplianceChecker
	Signatures integrations.SignatureCollector
	Notifier   integrations.Notifier
	Audit      integrations.AuditStore
	Webhooks   integrations.WebhookClient
}

// Dispatcher maps an action's declared type to its handler.
type Dispatcher struct {
	handlers map[types.ActionType]Handler
	logger   *zap.Logger
	mu       sync.RWMutex
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger attaches a logger for dispatch outcomes.
func WithDispatcherLogger(logger *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger.With(zap.String("component", "dispatcher"))
	}
}

// NewDispatcher creates a dispatcher with the built-in document-signing
// handlers wired to the given collaborators.
func NewDispatcher(collab Collaborators, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[types.ActionType]Handler),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.Register(types.ActionUpdateStatus, updateStatusHandler())
	d.Register(types.ActionAnalyzeDocument, analyzeDocumentHandler(collab.Analyzer))
	d.Register(types.ActionCheckCompliance, checkComplianceHandler(collab.Compliance))
	d.Register(types.ActionCollectSignature, collectSignatureHandler(collab.Signatures))
	d.Register(types.ActionSendNotification, sendNotificationHandler(collab.Notifier))
	d.Register(types.ActionCreateAuditLog, createAuditLogHandler(collab.Audit))
	d.Register(types.ActionWaitForHuman, waitForHumanHandler())
	d.Register(types.ActionTriggerWebhook, triggerWebhookHandler(collab.Webhooks))

	return d
}

// Register installs or replaces the handler for an action type.
func (d *Dispatcher) Register(actionType types.ActionType, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[actionType] = handler
}

// Dispatch routes the action to its handler. Async actions are awaited
// through the handler's channel pair, so the caller still observes the
// result before advancing; there is no fire-and-forget path.
func (d *Dispatcher) Dispatch(ctx context.Context, action types.WorkflowAction, data map[string]interface{}) (map[string]interface{}, error) {
	d.mu.RLock()
	handler, ok := d.handlers[action.Type]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownActionType, action.Type)
	}

	if !action.Async {
		result, err := handler.Execute(ctx, action, data)
		d.logDispatch(action, err)
		return result, err
	}

	resultCh, errCh := handler.ExecuteAsync(ctx, action, data)
	select {
	case <-ctx.Done():
		d.logDispatch(action, ctx.Err())
		return nil, ctx.Err()
	case err := <-errCh:
		d.logDispatch(action, err)
		return nil, err
	case result := <-resultCh:
		d.logDispatch(action, nil)
		return result, nil
	}
}

func (d *Dispatcher) logDispatch(action types.WorkflowAction, err error) {
	if err != nil {
		d.logger.Warn("action dispatch failed",
			zap.String("action", string(action.Type)),
			zap.Bool("async", action.Async),
			zap.Error(err),
		)
		return
	}
	d.logger.Debug("action dispatched",
		zap.String("action", string(action.Type)),
		zap.Bool("async", action.Async),
	)
}

// resultKey names the data key an action's result is merged under. The
// empty string means the result merges into the top level of the data.
func resultKey(actionType types.ActionType) string {
	switch actionType {
	case types.ActionUpdateStatus:
		return ""
	case types.ActionAnalyzeDocument:
		return "analysis"
	case types.ActionCheckCompliance:
		return "compliance"
	case types.ActionCollectSignature:
		return "signature_request"
	case types.ActionSendNotification:
		return "notification"
	case types.ActionCreateAuditLog:
		return "audit"
	case types.ActionWaitForHuman:
		return "human_review"
	case types.ActionTriggerWebhook:
		return "webhook"
	default:
		return "result"
	}
}
