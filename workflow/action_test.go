package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/signflow-io/signflow/types"
)

func TestDispatchUnknownAction(t *testing.T) {
	d := NewDispatcher(Collaborators{})

	_, err := d.Dispatch(context.Background(), types.WorkflowAction{Type: "teleport"}, nil)
	if !errors.Is(err, ErrUnknownActionType) {
		t.Errorf("expected ErrUnknownActionType, got %v", err)
	}
}

func TestDispatcherRegisterOverride(t *testing.T) {
	d := NewDispatcher(Collaborators{})
	d.Register(types.ActionUpdateStatus, stubHandler(map[string]interface{}{"status": "overridden"}, nil))

	result, err := d.Dispatch(context.Background(), types.WorkflowAction{Type: types.ActionUpdateStatus}, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result["status"] != "overridden" {
		t.Errorf("expected overridden handler result, got %v", result)
	}
}

// TestDispatchAsyncAwaitsResult tests that async actions are awaited, not
// fire-and-forget: the dispatcher blocks until the handler delivers.
func TestDispatchAsyncAwaitsResult(t *testing.T) {
	d := NewDispatcher(Collaborators{})
	d.Register(types.ActionCollectSignature, HandlerFunc(func(ctx context.Context, action types.WorkflowAction, data map[string]interface{}) (map[string]interface{}, error) {
		time.Sleep(20 * time.Millisecond)
		return map[string]interface{}{"request_id": "sig-req-1"}, nil
	}))

	action := types.WorkflowAction{Type: types.ActionCollectSignature, Async: true}
	result, err := d.Dispatch(context.Background(), action, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result["request_id"] != "sig-req-1" {
		t.Errorf("expected awaited async result, got %v", result)
	}
}

func TestDispatchAsyncError(t *testing.T) {
	d := NewDispatcher(Collaborators{})
	d.Register(types.ActionCollectSignature, stubHandler(nil, errors.New("signer unreachable")))

	action := types.WorkflowAction{Type: types.ActionCollectSignature, Async: true}
	_, err := d.Dispatch(context.Background(), action, nil)
	if err == nil || err.Error() != "signer unreachable" {
		t.Errorf("expected handler error, got %v", err)
	}
}

func TestDispatchAsyncContextCancelled(t *testing.T) {
	d := NewDispatcher(Collaborators{})
	block := make(chan struct{})
	defer close(block)
	d.Register(types.ActionCollectSignature, HandlerFunc(func(ctx context.Context, action types.WorkflowAction, data map[string]interface{}) (map[string]interface{}, error) {
		<-block
		return nil, nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	action := types.WorkflowAction{Type: types.ActionCollectSignature, Async: true}
	_, err := d.Dispatch(ctx, action, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestHandlerFuncExecuteAsync(t *testing.T) {
	ok := HandlerFunc(func(ctx context.Context, action types.WorkflowAction, data map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"done": true}, nil
	})
	resultCh, errCh := ok.ExecuteAsync(context.Background(), types.WorkflowAction{}, nil)
	select {
	case result := <-resultCh:
		if result["done"] != true {
			t.Errorf("expected done result, got %v", result)
		}
	case err := <-errCh:
		t.Fatalf("expected result, got error %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for async result")
	}

	failing := HandlerFunc(func(ctx context.Context, action types.WorkflowAction, data map[string]interface{}) (map[string]interface{}, error) {
		return nil, errors.New("boom")
	})
	resultCh, errCh = failing.ExecuteAsync(context.Background(), types.WorkflowAction{}, nil)
	select {
	case result := <-resultCh:
		t.Fatalf("expected error, got result %v", result)
	case err := <-errCh:
		if err.Error() != "boom" {
			t.Errorf("expected boom, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for async error")
	}
}

func TestResultKey(t *testing.T) {
	tests := []struct {
		actionType types.ActionType
		want       string
	}{
		{types.ActionUpdateStatus, ""},
		{types.ActionAnalyzeDocument, "analysis"},
		{types.ActionCheckCompliance, "compliance"},
		{types.ActionCollectSignature, "signature_request"},
		{types.ActionSendNotification, "notification"},
		{types.ActionCreateAuditLog, "audit"},
		{types.ActionWaitForHuman, "human_review"},
		{types.ActionTriggerWebhook, "webhook"},
		{"custom_thing", "result"},
	}
	for _, tt := range tests {
		if got := resultKey(tt.actionType); got != tt.want {
			t.Errorf("resultKey(%s): expected %q, got %q", tt.actionType, tt.want, got)
		}
	}
}
