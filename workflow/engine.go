package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/songzhibin97/gkit/generator"
	"github.com/songzhibin97/gkit/timeout"
	"go.uber.org/zap"

	"github.com/signflow-io/signflow/conditions"
	"github.com/signflow-io/signflow/events"
	"github.com/signflow-io/signflow/metrics"
	"github.com/signflow-io/signflow/storage"
	"github.com/signflow-io/signflow/types"
)

const (
	// DefaultMaxIterations bounds how many nodes a single run may visit
	// before the workflow is failed as a runaway graph.
	DefaultMaxIterations = 100

	// DefaultActionTimeout bounds one action dispatch when the node does
	// not declare its own timeout_seconds.
	DefaultActionTimeout = 30 * time.Second
)

// Engine runs document-signing workflows. Each workflow owns its node
// graph: creating a workflow registers the definition and the runtime
// state under the same generated ID.
type Engine struct {
	definitions map[string]types.Definition
	states      map[string]types.WorkflowState
	execLocks   map[string]*sync.Mutex

	dispatcher *Dispatcher
	evaluator  conditions.Evaluator
	storage    storage.Storage
	eventBus   *events.EventBus
	metrics    *metrics.Collector
	logger     *zap.Logger
	generate   generator.Generator

	maxIterations        int
	defaultActionTimeout time.Duration

	mu sync.RWMutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithEvaluator replaces the condition evaluator.
func WithEvaluator(evaluator conditions.Evaluator) Option {
	return func(e *Engine) {
		if evaluator != nil {
			e.evaluator = evaluator
		}
	}
}

// WithDispatcher replaces the action dispatcher.
func WithDispatcher(dispatcher *Dispatcher) Option {
	return func(e *Engine) {
		if dispatcher != nil {
			e.dispatcher = dispatcher
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger.With(zap.String("component", "engine"))
		}
	}
}

// WithEventBus replaces the default event bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(e *Engine) {
		if bus != nil {
			e.eventBus = bus
		}
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(e *Engine) {
		e.metrics = collector
	}
}

// WithMaxIterations overrides the per-run node execution ceiling.
func WithMaxIterations(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxIterations = n
		}
	}
}

// WithDefaultActionTimeout overrides the fallback action timeout. Zero
// disables the fallback entirely.
func WithDefaultActionTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.defaultActionTimeout = d
		}
	}
}

// New creates a workflow engine. The generator is required; a nil store
// falls back to in-memory storage.
func New(generate generator.Generator, store storage.Storage, opts ...Option) (*Engine, error) {
	if generate == nil {
		return nil, errors.New("generator is required")
	}
	if store == nil {
		store = storage.NewMemoryStorage()
	}

	e := &Engine{
		definitions:          make(map[string]types.Definition),
		states:               make(map[string]types.WorkflowState),
		execLocks:            make(map[string]*sync.Mutex),
		storage:              store,
		generate:             generate,
		logger:               zap.NewNop(),
		maxIterations:        DefaultMaxIterations,
		defaultActionTimeout: DefaultActionTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.evaluator == nil {
		e.evaluator = conditions.NewDefaultEvaluator()
	}
	if e.dispatcher == nil {
		e.dispatcher = NewDispatcher(Collaborators{})
	}
	if e.eventBus == nil {
		e.eventBus = events.NewEventBus()
	}
	return e, nil
}

// SubscribeEvent subscribes an event handler to a specific event type.
func (e *Engine) SubscribeEvent(eventType string, handler events.EventHandler) {
	e.eventBus.Subscribe(eventType, handler)
}

// SubscribeEventFunc subscribes a function as an event handler.
func (e *Engine) SubscribeEventFunc(eventType string, fn func(ctx context.Context, event events.Event) error) {
	e.eventBus.SubscribeFunc(eventType, fn)
}

// RegisterHandler installs or replaces the handler for an action type.
func (e *Engine) RegisterHandler(actionType types.ActionType, handler Handler) {
	e.dispatcher.Register(actionType, handler)
}

// ValidateWorkflow runs the structural checks over a node set without
// touching the registry: duplicate node IDs and next_nodes references
// that point outside the set. All problems are collected into the
// result. Creation does not require a clean result, so this is the
// pre-flight check for callers that want one.
func (e *Engine) ValidateWorkflow(nodes []types.WorkflowNode) types.ValidationResult {
	return types.ValidateNodes(nodes)
}

// CreateWorkflow registers a new workflow from its parts and returns the
// generated workflow ID. The workflow starts in draft status; Start
// activates it.
func (e *Engine) CreateWorkflow(ctx context.Context, name string, nodes []types.WorkflowNode, startNode string, initialData map[string]interface{}) (string, error) {
	def := types.Definition{
		Name:      name,
		StartNode: startNode,
		Nodes:     nodes,
	}
	return e.CreateWorkflowFromDefinition(ctx, def, initialData)
}

// CreateWorkflowFromDefinition registers a new workflow from a parsed
// definition. The engine assigns the ID; any ID on the definition is
// replaced. A missing start node is the only structural problem that
// blocks creation; duplicate IDs and dangling next_nodes references are
// reported by ValidateWorkflow and fail the workflow at run time when
// they are actually hit.
func (e *Engine) CreateWorkflowFromDefinition(ctx context.Context, def types.Definition, initialData map[string]interface{}) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	if len(def.Nodes) == 0 {
		return "", fmt.Errorf("%w: workflow has no nodes", ErrInvalidDefinition)
	}
	if _, ok := def.Node(def.StartNode); !ok {
		return "", fmt.Errorf("%w: %q", ErrStartNodeNotFound, def.StartNode)
	}

	id, err := e.nextWorkflowID()
	if err != nil {
		return "", err
	}
	def.ID = id

	if err := e.storage.SaveDefinition(ctx, def); err != nil {
		return "", fmt.Errorf("save definition: %w", err)
	}
	e.mu.Lock()
	e.definitions[def.ID] = def
	e.mu.Unlock()

	now := time.Now()
	st := types.WorkflowState{
		WorkflowID:  def.ID,
		CurrentNode: def.StartNode,
		Status:      types.StatusDraft,
		Data:        cloneData(initialData),
		StartedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.saveState(ctx, &st); err != nil {
		return "", err
	}

	if e.metrics != nil {
		e.metrics.RecordWorkflowCreated(def.Name)
	}
	e.publishEvent(ctx, events.EventWorkflowCreated, def.ID, map[string]interface{}{
		"name":       def.Name,
		"start_node": def.StartNode,
		"nodes":      len(def.Nodes),
	})
	e.logger.Info("workflow created",
		zap.String("workflow_id", def.ID),
		zap.String("name", def.Name),
		zap.Int("nodes", len(def.Nodes)),
	)

	return def.ID, nil
}

// Start activates a draft workflow and executes its start node. Only
// drafts can be started; anything else yields a StateTransitionError.
// After a successful start the workflow is active with one history entry
// and the cursor on the node after the start node, ready for Execute.
// The start node itself may also pause, fail or complete the workflow,
// which the returned state reports.
func (e *Engine) Start(ctx context.Context, workflowID string) (*types.WorkflowState, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	lock := e.execLock(workflowID)
	lock.Lock()
	defer lock.Unlock()

	st, err := e.getState(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	def, err := e.getDefinition(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if st.Status != types.StatusDraft {
		return nil, &StateTransitionError{WorkflowID: workflowID, From: st.Status, To: types.StatusActive}
	}

	var from types.Status
	if err := e.applyState(ctx, &st, func(cur *types.WorkflowState) error {
		from = cur.Status
		if cur.Status != types.StatusDraft {
			return nil
		}
		cur.CurrentNode = def.StartNode
		cur.StartedAt = time.Now()
		cur.Status = types.StatusActive
		return nil
	}); err != nil {
		return nil, err
	}
	if st.Status != types.StatusActive {
		// A concurrent cancel landed during activation.
		return snapshotState(st), nil
	}
	e.announceTransition(ctx, &st, from)
	e.logger.Info("workflow started",
		zap.String("workflow_id", workflowID),
		zap.String("start_node", def.StartNode),
	)

	node, ok := def.Node(st.CurrentNode)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrNodeNotFound, st.CurrentNode)
		if failErr := e.failWorkflow(ctx, &st, st.CurrentNode, err); failErr != nil {
			return nil, failErr
		}
		return snapshotState(st), nil
	}
	if _, err := e.executeNode(ctx, &st, node); err != nil {
		return nil, err
	}
	return snapshotState(st), nil
}

// Execute runs the workflow from its current node until it completes,
// pauses, fails or hits the iteration ceiling. The workflow must be
// active, so Start comes first; executing a draft, paused or terminal
// workflow yields a StateTransitionError. The outcome of the run is
// carried in the returned state; the error reports engine-level problems
// such as an unknown workflow or a storage failure.
func (e *Engine) Execute(ctx context.Context, workflowID string) (*types.WorkflowState, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	// One run per workflow at a time. Distinct workflows run in parallel.
	lock := e.execLock(workflowID)
	lock.Lock()
	defer lock.Unlock()

	st, err := e.getState(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	def, err := e.getDefinition(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if st.Status != types.StatusActive {
		return nil, &StateTransitionError{WorkflowID: workflowID, From: st.Status, To: types.StatusActive}
	}

	return e.run(ctx, def, st)
}

// run is the node execution loop. It re-reads the cached state at every
// node boundary so a pause or cancel from another goroutine lands between
// nodes, never mid-action.
func (e *Engine) run(ctx context.Context, def types.Definition, st types.WorkflowState) (*types.WorkflowState, error) {
	for iterations := 0; ; iterations++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		e.mu.RLock()
		if cached, ok := e.states[st.WorkflowID]; ok {
			st = cached
		}
		e.mu.RUnlock()
		if st.Status != types.StatusActive {
			break
		}

		if iterations >= e.maxIterations {
			err := fmt.Errorf("%w: %d nodes visited in workflow %s", ErrMaxIterationsExceeded, iterations, st.WorkflowID)
			if failErr := e.failWorkflow(ctx, &st, st.CurrentNode, err); failErr != nil {
				return nil, failErr
			}
			break
		}

		node, ok := def.Node(st.CurrentNode)
		if !ok {
			err := fmt.Errorf("%w: %s", ErrNodeNotFound, st.CurrentNode)
			if failErr := e.failWorkflow(ctx, &st, st.CurrentNode, err); failErr != nil {
				return nil, failErr
			}
			break
		}

		done, err := e.executeNode(ctx, &st, node)
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
	}
	return snapshotState(st), nil
}

// executeNode runs one node: condition gate, action dispatch, result
// merge and advancement. The node's outcome is committed as a single
// state update, so a concurrent pause, cancel or review submission lands
// before or after the whole step, never inside it. Reports done when the
// run loop should stop because the workflow left the active status.
func (e *Engine) executeNode(ctx context.Context, st *types.WorkflowState, node types.WorkflowNode) (bool, error) {
	started := time.Now()
	dataView := cloneData(st.Data)

	pass, err := e.evaluator.Evaluate(node.Conditions, dataView)
	if err != nil {
		condErr := &ConditionError{NodeID: node.ID, Cause: err}
		if recordErr := e.recordNodeFailure(ctx, st, node, started, condErr); recordErr != nil {
			return false, recordErr
		}
		return true, nil
	}

	if !pass {
		entry := types.WorkflowHistoryEntry{
			Timestamp:  started,
			NodeID:     node.ID,
			Action:     node.Action.Type,
			DurationMS: time.Since(started).Milliseconds(),
			Status:     types.HistorySkipped,
		}
		done, err := e.advance(ctx, st, node, entry, nil)
		if err != nil {
			return false, err
		}
		if e.metrics != nil {
			e.metrics.RecordNodeExecution(string(node.Type), "skipped", time.Since(started))
		}
		e.publishEvent(ctx, events.EventNodeExecuted, st.WorkflowID, map[string]interface{}{
			"node_id":   node.ID,
			"node_type": string(node.Type),
			"status":    string(types.HistorySkipped),
		})
		e.logger.Debug("node skipped",
			zap.String("workflow_id", st.WorkflowID),
			zap.String("node_id", node.ID),
		)
		return done, nil
	}

	actionCtx := ctx
	cancel := context.CancelFunc(func() {})
	if d := e.actionTimeout(node); d > 0 {
		_, actionCtx, cancel = timeout.Shrink(ctx, d)
	}
	result, dispatchErr := e.dispatcher.Dispatch(actionCtx, node.Action, dataView)
	cancel()

	if dispatchErr != nil {
		if recordErr := e.recordNodeFailure(ctx, st, node, started, dispatchErr); recordErr != nil {
			return false, recordErr
		}
		return true, nil
	}

	duration := time.Since(started)
	entry := types.WorkflowHistoryEntry{
		Timestamp:  started,
		NodeID:     node.ID,
		Action:     node.Action.Type,
		Result:     result,
		DurationMS: duration.Milliseconds(),
		Status:     types.HistorySuccess,
	}

	awaitReview := node.HumanReviewRequired && len(node.NextNodes) > 0
	var done bool
	if awaitReview {
		var from types.Status
		if err := e.applyState(ctx, st, func(cur *types.WorkflowState) error {
			from = cur.Status
			cur.History = append(cur.History, entry)
			cur.Data = mergeResult(cur.Data, node.Action.Type, result)
			cur.CurrentNode = node.NextNodes[0]
			setRunStatus(cur, types.StatusPaused)
			return nil
		}); err != nil {
			return false, err
		}
		e.announceTransition(ctx, st, from)
		done = true
	} else {
		if done, err = e.advance(ctx, st, node, entry, result); err != nil {
			return false, err
		}
	}

	if e.metrics != nil {
		e.metrics.RecordNodeExecution(string(node.Type), "success", duration)
	}
	e.publishEvent(ctx, events.EventNodeExecuted, st.WorkflowID, map[string]interface{}{
		"node_id":     node.ID,
		"node_type":   string(node.Type),
		"status":      string(types.HistorySuccess),
		"duration_ms": duration.Milliseconds(),
	})
	e.logger.Debug("node executed",
		zap.String("workflow_id", st.WorkflowID),
		zap.String("node_id", node.ID),
		zap.String("action", string(node.Action.Type)),
		zap.Duration("duration", duration),
	)

	if awaitReview && st.Status == types.StatusPaused {
		e.publishEvent(ctx, events.EventReviewPending, st.WorkflowID, map[string]interface{}{
			"node_id":      node.ID,
			"current_node": st.CurrentNode,
			"review":       st.Data["human_review"],
		})
	}
	return done, nil
}

// advance commits the node's history entry and result, then moves the
// cursor to the first successor, or completes the workflow when there is
// none.
func (e *Engine) advance(ctx context.Context, st *types.WorkflowState, node types.WorkflowNode, entry types.WorkflowHistoryEntry, result map[string]interface{}) (bool, error) {
	var from types.Status
	if err := e.applyState(ctx, st, func(cur *types.WorkflowState) error {
		from = cur.Status
		cur.History = append(cur.History, entry)
		if result != nil {
			cur.Data = mergeResult(cur.Data, node.Action.Type, result)
		}
		if len(node.NextNodes) == 0 {
			setRunStatus(cur, types.StatusCompleted)
		} else {
			cur.CurrentNode = node.NextNodes[0]
		}
		return nil
	}); err != nil {
		return false, err
	}
	e.announceTransition(ctx, st, from)

	if st.Status == types.StatusCompleted {
		if e.metrics != nil {
			e.metrics.RecordWorkflowOutcome(string(types.StatusCompleted), time.Since(st.StartedAt))
		}
		e.logger.Info("workflow completed",
			zap.String("workflow_id", st.WorkflowID),
			zap.Int("nodes_visited", len(st.History)),
		)
		return true, nil
	}
	return st.Status != types.StatusActive, nil
}

// Pause suspends an active workflow. A run in flight stops at the next
// node boundary; the node currently executing finishes first.
func (e *Engine) Pause(ctx context.Context, workflowID string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	st, err := e.getState(ctx, workflowID)
	if err != nil {
		return err
	}
	if err := e.applyState(ctx, &st, func(cur *types.WorkflowState) error {
		if cur.Status != types.StatusActive {
			return &StateTransitionError{WorkflowID: workflowID, From: cur.Status, To: types.StatusPaused}
		}
		cur.Status = types.StatusPaused
		return nil
	}); err != nil {
		return err
	}
	e.announceTransition(ctx, &st, types.StatusActive)
	return nil
}

// Resume reactivates a paused workflow. It only flips the status; the
// caller continues the run with Execute.
func (e *Engine) Resume(ctx context.Context, workflowID string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	st, err := e.getState(ctx, workflowID)
	if err != nil {
		return err
	}
	if err := e.applyState(ctx, &st, func(cur *types.WorkflowState) error {
		if cur.Status != types.StatusPaused {
			return &StateTransitionError{WorkflowID: workflowID, From: cur.Status, To: types.StatusActive}
		}
		cur.Status = types.StatusActive
		return nil
	}); err != nil {
		return err
	}
	e.announceTransition(ctx, &st, types.StatusPaused)
	return nil
}

// Cancel aborts a workflow in any non-terminal status. Cancelled
// workflows keep their history but never get a completion timestamp.
func (e *Engine) Cancel(ctx context.Context, workflowID string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	st, err := e.getState(ctx, workflowID)
	if err != nil {
		return err
	}
	var from types.Status
	if err := e.applyState(ctx, &st, func(cur *types.WorkflowState) error {
		if cur.Status.Terminal() {
			return &StateTransitionError{WorkflowID: workflowID, From: cur.Status, To: types.StatusCancelled}
		}
		from = cur.Status
		cur.Status = types.StatusCancelled
		return nil
	}); err != nil {
		return err
	}
	e.announceTransition(ctx, &st, from)
	if e.metrics != nil {
		e.metrics.RecordWorkflowOutcome(string(types.StatusCancelled), time.Since(st.StartedAt))
	}
	e.logger.Info("workflow cancelled", zap.String("workflow_id", workflowID))
	return nil
}

// SubmitReview records a human review decision on a paused workflow and
// reactivates it. The decision lands in the workflow data under
// human_review, where downstream node conditions can read it. The caller
// continues the run with Execute.
func (e *Engine) SubmitReview(ctx context.Context, workflowID string, approved bool, comments string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	st, err := e.getState(ctx, workflowID)
	if err != nil {
		return err
	}
	if err := e.applyState(ctx, &st, func(cur *types.WorkflowState) error {
		if cur.Status != types.StatusPaused {
			return &StateTransitionError{WorkflowID: workflowID, From: cur.Status, To: types.StatusActive}
		}
		review := map[string]interface{}{}
		if existing, ok := cur.Data["human_review"].(map[string]interface{}); ok {
			review = cloneData(existing)
		}
		decision := "rejected"
		if approved {
			decision = "approved"
		}
		review["status"] = decision
		review["approved"] = approved
		review["comments"] = comments
		review["reviewed_at"] = time.Now().UTC().Format(time.RFC3339)

		cur.Data = cloneData(cur.Data)
		cur.Data["human_review"] = review
		cur.Status = types.StatusActive
		return nil
	}); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.RecordStateTransition(string(types.StatusPaused), string(st.Status))
	}
	e.publishEvent(ctx, events.EventStateChanged, workflowID, map[string]interface{}{
		"from":         string(types.StatusPaused),
		"status":       string(st.Status),
		"current_node": st.CurrentNode,
		"approved":     approved,
	})
	e.logger.Info("review submitted",
		zap.String("workflow_id", workflowID),
		zap.Bool("approved", approved),
	)
	return nil
}

// GetState returns a copy of the workflow's runtime state.
func (e *Engine) GetState(ctx context.Context, workflowID string) (*types.WorkflowState, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	st, err := e.getState(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return snapshotState(st), nil
}

// GetHistory returns a copy of the workflow's execution history, oldest
// entry first.
func (e *Engine) GetHistory(ctx context.Context, workflowID string) ([]types.WorkflowHistoryEntry, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	st, err := e.getState(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return append([]types.WorkflowHistoryEntry(nil), st.History...), nil
}

// GetDefinition returns the workflow's registered definition.
func (e *Engine) GetDefinition(ctx context.Context, workflowID string) (*types.Definition, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	def, err := e.getDefinition(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return &def, nil
}

// ClearTerminal drops completed, failed and cancelled workflows from the
// engine cache, and from stores that support terminal cleanup.
func (e *Engine) ClearTerminal(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	e.mu.Lock()
	for id, st := range e.states {
		if st.Status.Terminal() {
			delete(e.states, id)
			delete(e.definitions, id)
			delete(e.execLocks, id)
		}
	}
	e.mu.Unlock()

	type terminalClearer interface {
		ClearTerminal(ctx context.Context) error
	}
	if tc, ok := e.storage.(terminalClearer); ok {
		return tc.ClearTerminal(ctx)
	}
	return nil
}

// Stop gracefully stops the engine's event bus, draining queued events.
func (e *Engine) Stop(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		e.eventBus.Stop()
		return nil
	}
}

// setRunStatus moves the status from inside a run commit. A terminal
// status that landed concurrently sticks, so a run outcome never
// resurrects a cancelled workflow. Completion stamps CompletedAt; no
// other terminal status does.
func setRunStatus(cur *types.WorkflowState, to types.Status) {
	if cur.Status.Terminal() {
		return
	}
	cur.Status = to
	if to == types.StatusCompleted {
		now := time.Now()
		cur.CompletedAt = &now
	}
}

// announceTransition records and publishes a status change when a commit
// moved the status. Commits that left it alone announce nothing.
func (e *Engine) announceTransition(ctx context.Context, st *types.WorkflowState, from types.Status) {
	if st.Status == from {
		return
	}
	if e.metrics != nil {
		e.metrics.RecordStateTransition(string(from), string(st.Status))
	}
	e.publishEvent(ctx, events.EventStateChanged, st.WorkflowID, map[string]interface{}{
		"from":         string(from),
		"status":       string(st.Status),
		"current_node": st.CurrentNode,
	})
}

// recordNodeFailure appends the failure to history and errors, then
// routes the workflow to paused or failed by the error's recoverability.
func (e *Engine) recordNodeFailure(ctx context.Context, st *types.WorkflowState, node types.WorkflowNode, started time.Time, execErr error) error {
	recoverable := isRecoverable(execErr)
	errType := errorType(execErr)
	duration := time.Since(started)

	target := types.StatusFailed
	if recoverable {
		target = types.StatusPaused
	}
	entry := types.WorkflowHistoryEntry{
		Timestamp:  started,
		NodeID:     node.ID,
		Action:     node.Action.Type,
		DurationMS: duration.Milliseconds(),
		Status:     types.HistoryFailure,
	}
	werr := types.WorkflowError{
		Timestamp:   time.Now(),
		NodeID:      node.ID,
		ErrorType:   errType,
		Message:     execErr.Error(),
		Recoverable: recoverable,
	}

	var from types.Status
	if err := e.applyState(ctx, st, func(cur *types.WorkflowState) error {
		from = cur.Status
		cur.History = append(cur.History, entry)
		cur.Errors = append(cur.Errors, werr)
		setRunStatus(cur, target)
		return nil
	}); err != nil {
		return err
	}
	e.announceTransition(ctx, st, from)

	if e.metrics != nil {
		e.metrics.RecordError(errType, recoverable)
		e.metrics.RecordNodeExecution(string(node.Type), "failure", duration)
		if st.Status == types.StatusFailed {
			e.metrics.RecordWorkflowOutcome(string(types.StatusFailed), time.Since(st.StartedAt))
		}
	}
	e.publishEvent(ctx, events.EventErrorOccurred, st.WorkflowID, map[string]interface{}{
		"node_id":     node.ID,
		"error":       execErr.Error(),
		"error_type":  errType,
		"recoverable": recoverable,
	})
	e.logger.Warn("node execution failed",
		zap.String("workflow_id", st.WorkflowID),
		zap.String("node_id", node.ID),
		zap.String("error_type", errType),
		zap.Bool("recoverable", recoverable),
		zap.Error(execErr),
	)
	return nil
}

// failWorkflow marks the workflow failed for errors not tied to a single
// action execution, such as a missing node or a runaway graph.
func (e *Engine) failWorkflow(ctx context.Context, st *types.WorkflowState, nodeID string, execErr error) error {
	errType := errorType(execErr)
	werr := types.WorkflowError{
		Timestamp:   time.Now(),
		NodeID:      nodeID,
		ErrorType:   errType,
		Message:     execErr.Error(),
		Recoverable: false,
	}

	var from types.Status
	if err := e.applyState(ctx, st, func(cur *types.WorkflowState) error {
		from = cur.Status
		cur.Errors = append(cur.Errors, werr)
		setRunStatus(cur, types.StatusFailed)
		return nil
	}); err != nil {
		return err
	}
	e.announceTransition(ctx, st, from)

	if e.metrics != nil {
		e.metrics.RecordError(errType, false)
		if st.Status == types.StatusFailed {
			e.metrics.RecordWorkflowOutcome(string(types.StatusFailed), time.Since(st.StartedAt))
		}
	}
	e.publishEvent(ctx, events.EventErrorOccurred, st.WorkflowID, map[string]interface{}{
		"node_id":     nodeID,
		"error":       execErr.Error(),
		"error_type":  errType,
		"recoverable": false,
	})
	e.logger.Error("workflow failed",
		zap.String("workflow_id", st.WorkflowID),
		zap.String("node_id", nodeID),
		zap.Error(execErr),
	)
	return nil
}

// getDefinition retrieves a definition, checking cache first then storage.
func (e *Engine) getDefinition(ctx context.Context, workflowID string) (types.Definition, error) {
	e.mu.RLock()
	def, ok := e.definitions[workflowID]
	e.mu.RUnlock()
	if ok {
		return def, nil
	}

	def, err := e.storage.GetDefinition(ctx, workflowID)
	if err != nil {
		if isNotFound(err) {
			return types.Definition{}, fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
		}
		return types.Definition{}, fmt.Errorf("get definition: %w", err)
	}

	e.mu.Lock()
	e.definitions[def.ID] = def
	e.mu.Unlock()
	return def, nil
}

// getState retrieves runtime state, checking cache first then storage.
func (e *Engine) getState(ctx context.Context, workflowID string) (types.WorkflowState, error) {
	e.mu.RLock()
	st, ok := e.states[workflowID]
	e.mu.RUnlock()
	if ok {
		return st, nil
	}

	st, err := e.storage.GetState(ctx, workflowID)
	if err != nil {
		if isNotFound(err) {
			return types.WorkflowState{}, fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
		}
		return types.WorkflowState{}, fmt.Errorf("get state: %w", err)
	}

	e.mu.Lock()
	e.states[st.WorkflowID] = st
	e.mu.Unlock()
	return st, nil
}

// saveState writes a state to cache and storage as-is. Creation is its
// only caller; all runtime updates go through applyState so concurrent
// writers merge on the cached entry instead of overwriting each other.
func (e *Engine) saveState(ctx context.Context, st *types.WorkflowState) error {
	st.UpdatedAt = time.Now()
	e.mu.Lock()
	e.states[st.WorkflowID] = *st
	e.mu.Unlock()

	if err := e.storage.SaveState(ctx, *st); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// applyState applies fn to the latest cached state under the engine
// lock, then persists the merged result and copies it back into st.
// Guards and updates inside fn run against the current state rather than
// the caller's copy: a pause or cancel that landed while a node was
// running survives the node's commit, and a review submitted mid-node is
// never rolled back by it. When fn returns an error nothing is written.
func (e *Engine) applyState(ctx context.Context, st *types.WorkflowState, fn func(cur *types.WorkflowState) error) error {
	e.mu.Lock()
	cur, ok := e.states[st.WorkflowID]
	if !ok {
		cur = *st
	}
	if err := fn(&cur); err != nil {
		e.mu.Unlock()
		return err
	}
	cur.UpdatedAt = time.Now()
	e.states[cur.WorkflowID] = cur
	e.mu.Unlock()
	*st = cur

	if err := e.storage.SaveState(ctx, cur); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// publishEvent publishes an event asynchronously to the event bus.
func (e *Engine) publishEvent(ctx context.Context, eventType string, workflowID string, data map[string]interface{}) {
	go e.eventBus.Publish(ctx, events.Event{
		Type:       eventType,
		WorkflowID: workflowID,
		Data:       data,
	})
}

// execLock returns the per-workflow run lock, creating it on first use.
func (e *Engine) execLock(workflowID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.execLocks[workflowID]
	if !ok {
		lock = &sync.Mutex{}
		e.execLocks[workflowID] = lock
	}
	return lock
}

func (e *Engine) actionTimeout(node types.WorkflowNode) time.Duration {
	if node.TimeoutSeconds > 0 {
		return time.Duration(node.TimeoutSeconds) * time.Second
	}
	return e.defaultActionTimeout
}

func (e *Engine) nextWorkflowID() (string, error) {
	id, err := e.generate.NextID()
	if err != nil {
		return "", fmt.Errorf("generate workflow id: %w", err)
	}
	return "wf-" + strconv.FormatUint(id, 10), nil
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrStateNotFound) ||
		errors.Is(err, storage.ErrDefinitionNotFound) ||
		errors.Is(err, storage.ErrNotFound)
}

// mergeResult writes an action result into the workflow data under the
// action's result key. Status updates merge at the top level.
func mergeResult(data map[string]interface{}, actionType types.ActionType, result map[string]interface{}) map[string]interface{} {
	merged := cloneData(data)
	if result == nil {
		return merged
	}
	key := resultKey(actionType)
	if key == "" {
		for k, v := range result {
			merged[k] = v
		}
		return merged
	}
	merged[key] = result
	return merged
}

// snapshotState copies a state for hand-off to callers so the cached
// maps and slices are never aliased outside the engine.
func snapshotState(st types.WorkflowState) *types.WorkflowState {
	out := st
	out.Data = cloneData(st.Data)
	out.History = append([]types.WorkflowHistoryEntry(nil), st.History...)
	out.Errors = append([]types.WorkflowError(nil), st.Errors...)
	return &out
}

// cloneData deep-copies workflow data so node executions see a stable
// snapshot and cached state is never aliased.
func cloneData(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch tv := v.(type) {
	case map[string]interface{}:
		return cloneData(tv)
	case []interface{}:
		out := make([]interface{}, len(tv))
		for i, item := range tv {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
