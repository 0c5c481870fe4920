package executor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meywd/benchforge/internal/models"
	"github.com/meywd/benchforge/internal/provider"
	"github.com/meywd/benchforge/pkg/logger"
	"github.com/meywd/benchforge/pkg/ratelimiter"
	"github.com/meywd/benchforge/pkg/retry"
)

// Executor drives one (task, provider, model) invocation against the
// model-invocation capability. It never returns an error past its boundary:
// every failure is captured into the result's error descriptor.
type Executor struct {
	providers      *provider.Registry
	gate           *ratelimiter.ProviderGate
	rates          *ratelimiter.ProviderRates
	tasks          TaskReader
	defaultTimeout time.Duration
	logger         *logger.Logger

	mu       sync.Mutex
	inFlight map[string]*execution
}

// TaskReader resolves task content by ID. Tasks are owned by the test-bank
// collaborator; the executor only needs the prompt.
type TaskReader interface {
	GetTask(ctx context.Context, taskID string) (*models.Task, error)
}

// execution tracks one in-flight request so that Cancel can race cleanly
// with natural completion.
type execution struct {
	req     *models.ExecutionRequest
	started time.Time
	cancel  context.CancelFunc

	mu       sync.Mutex
	terminal *models.ExecutionResult // first terminal write wins
}

// finalize stores the terminal result exactly once. Later calls return the
// already-stored result, so a cancellation signal can never overwrite a
// completed or failed outcome, and vice versa.
func (e *execution) finalize(result *models.ExecutionResult) *models.ExecutionResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.terminal != nil {
		return e.terminal
	}
	e.terminal = result
	return result
}

// New creates an Executor with the given provider registry, concurrency
// gate, request-rate limits, and task reader. rates may be nil to disable
// rate limiting.
func New(providers *provider.Registry, gate *ratelimiter.ProviderGate, rates *ratelimiter.ProviderRates, tasks TaskReader, defaultTimeout time.Duration, log *logger.Logger) *Executor {
	if defaultTimeout <= 0 {
		defaultTimeout = 2 * time.Minute
	}
	return &Executor{
		providers:      providers,
		gate:           gate,
		rates:          rates,
		tasks:          tasks,
		defaultTimeout: defaultTimeout,
		logger:         log,
		inFlight:       make(map[string]*execution),
	}
}

// Execute runs one request to a terminal status. The request's own timeout
// covers both queueing at the provider gate and the invocation attempts.
func (x *Executor) Execute(ctx context.Context, req *models.ExecutionRequest) *models.ExecutionResult {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	started := time.Now()
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = x.defaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	exec := &execution{req: req, started: started, cancel: cancel}
	x.register(req.ID, exec)
	defer x.unregister(req.ID)

	// Queue at the provider concurrency gate. A request that exceeds its
	// own timeout while waiting here ends as timeout, not failed.
	if err := x.gate.Acquire(runCtx, req.ProviderID); err != nil {
		return exec.finalize(x.interruptedResult(req, started, runCtx, err))
	}
	defer x.gate.Release(req.ProviderID)

	inv, err := x.providers.Get(req.ProviderID)
	if err != nil {
		return exec.finalize(x.failedResult(req, started, &models.ErrorDescriptor{
			Code:    provider.ErrCodeInvalidRequest,
			Message: err.Error(),
		}, 0))
	}

	task, err := x.tasks.GetTask(runCtx, req.TaskID)
	if err != nil {
		return exec.finalize(x.failedResult(req, started, &models.ErrorDescriptor{
			Code:    provider.ErrCodeInvalidRequest,
			Message: "task lookup failed: " + err.Error(),
		}, 0))
	}

	chatReq := &provider.ChatRequest{
		ModelID: req.ModelID,
		Messages: []provider.Message{
			{Role: "user", Content: task.Prompt},
		},
		Sampling: req.Config.Sampling,
		Custom:   req.Config.Custom,
	}

	policy := retry.Policy{
		MaxAttempts: req.RetryPolicy.MaxAttempts,
		BaseDelay:   req.RetryPolicy.BaseDelay,
		MaxDelay:    req.RetryPolicy.MaxDelay,
		Multiplier:  req.RetryPolicy.BackoffMultiplier,
	}
	retryable := func(err error) bool {
		return req.RetryPolicy.IsRetryable(provider.AsInvocationError(err).Code)
	}

	var resp *models.ModelResponse
	attempts, err := retry.Do(runCtx, policy, retryable, func(ctx context.Context) error {
		// Local rate denial is surfaced as a retryable rate-limit error so
		// the retry policy backs off instead of hammering the bucket.
		if x.rates != nil && !x.rates.Allow(req.ProviderID) {
			return &provider.InvocationError{
				Code:      provider.ErrCodeRateLimit,
				Message:   "provider request rate exceeded",
				Retryable: true,
			}
		}
		r, invokeErr := inv.Invoke(ctx, chatReq)
		if invokeErr != nil {
			return invokeErr
		}
		resp = r
		return nil
	})
	retries := attempts - 1
	if retries < 0 {
		retries = 0
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return exec.finalize(x.interruptedResult(req, started, runCtx, err))
		}
		ie := provider.AsInvocationError(err)
		return exec.finalize(x.failedResult(req, started, &models.ErrorDescriptor{
			Code:      ie.Code,
			Message:   ie.Message,
			Retryable: ie.Retryable,
		}, retries))
	}

	ended := time.Now()
	duration := ended.Sub(started)
	result := &models.ExecutionResult{
		ID:         req.ID,
		TaskID:     req.TaskID,
		ProviderID: req.ProviderID,
		ModelID:    req.ModelID,
		Context:    req.Context,
		Status:     models.ExecutionStatusCompleted,
		StartedAt:  started,
		EndedAt:    ended,
		Duration:   duration,
		Response:   resp,
		Metrics: models.ExecutionMetrics{
			LatencyMs:       duration.Milliseconds(),
			TokensPerSecond: tokensPerSecond(resp.Usage.CompletionTokens, duration),
			RetryCount:      retries,
		},
	}
	return exec.finalize(result)
}

// ExecuteBatch groups requests by provider and runs the groups in parallel.
// The provider gate bounds concurrency inside each group. A failure in one
// request never blocks or fails its siblings; results are returned in the
// same order as the requests.
func (x *Executor) ExecuteBatch(ctx context.Context, reqs []*models.ExecutionRequest) []*models.ExecutionResult {
	results := make([]*models.ExecutionResult, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req *models.ExecutionRequest) {
			defer wg.Done()
			results[i] = x.Execute(ctx, req)
		}(i, req)
	}
	wg.Wait()
	return results
}

// Cancel transitions a running execution to cancelled. It is safe to call
// concurrently with natural completion: the first terminal status stored
// wins, and cancelled never overwrites completed or failed. The underlying
// invocation is signalled fire-and-forget; a late response is discarded.
func (x *Executor) Cancel(executionID string) bool {
	x.mu.Lock()
	exec, ok := x.inFlight[executionID]
	x.mu.Unlock()
	if !ok {
		return false
	}

	now := time.Now()
	cancelled := &models.ExecutionResult{
		ID:         executionID,
		TaskID:     exec.req.TaskID,
		ProviderID: exec.req.ProviderID,
		ModelID:    exec.req.ModelID,
		Context:    exec.req.Context,
		Status:     models.ExecutionStatusCancelled,
		StartedAt:  exec.started,
		EndedAt:    now,
		Duration:   now.Sub(exec.started),
		Error: &models.ErrorDescriptor{
			Code:    "CANCELLED",
			Message: "execution cancelled",
		},
	}
	stored := exec.finalize(cancelled)
	exec.cancel()
	return stored == cancelled
}

// CancelAll cancels every currently in-flight execution and returns the IDs
// that were actually transitioned to cancelled.
func (x *Executor) CancelAll() []string {
	x.mu.Lock()
	ids := make([]string, 0, len(x.inFlight))
	for id := range x.inFlight {
		ids = append(ids, id)
	}
	x.mu.Unlock()

	var cancelled []string
	for _, id := range ids {
		if x.Cancel(id) {
			cancelled = append(cancelled, id)
		}
	}
	return cancelled
}

func (x *Executor) register(id string, exec *execution) {
	x.mu.Lock()
	x.inFlight[id] = exec
	x.mu.Unlock()
}

func (x *Executor) unregister(id string) {
	x.mu.Lock()
	delete(x.inFlight, id)
	x.mu.Unlock()
}

// interruptedResult maps a context interruption to timeout or cancelled
// depending on which signal fired.
func (x *Executor) interruptedResult(req *models.ExecutionRequest, started time.Time, ctx context.Context, err error) *models.ExecutionResult {
	status := models.ExecutionStatusCancelled
	code := provider.ErrCodeUnknown
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		status = models.ExecutionStatusTimeout
		code = provider.ErrCodeTimeout
	}
	ended := time.Now()
	return &models.ExecutionResult{
		ID:         req.ID,
		TaskID:     req.TaskID,
		ProviderID: req.ProviderID,
		ModelID:    req.ModelID,
		Context:    req.Context,
		Status:     status,
		StartedAt:  started,
		EndedAt:    ended,
		Duration:   ended.Sub(started),
		Error: &models.ErrorDescriptor{
			Code:    code,
			Message: err.Error(),
		},
		Metrics: models.ExecutionMetrics{LatencyMs: ended.Sub(started).Milliseconds()},
	}
}

func (x *Executor) failedResult(req *models.ExecutionRequest, started time.Time, desc *models.ErrorDescriptor, retries int) *models.ExecutionResult {
	ended := time.Now()
	return &models.ExecutionResult{
		ID:         req.ID,
		TaskID:     req.TaskID,
		ProviderID: req.ProviderID,
		ModelID:    req.ModelID,
		Context:    req.Context,
		Status:     models.ExecutionStatusFailed,
		StartedAt:  started,
		EndedAt:    ended,
		Duration:   ended.Sub(started),
		Error:      desc,
		Metrics: models.ExecutionMetrics{
			LatencyMs:  ended.Sub(started).Milliseconds(),
			RetryCount: retries,
		},
	}
}

func tokensPerSecond(tokens int, d time.Duration) float64 {
	if d <= 0 || tokens <= 0 {
		return 0
	}
	return float64(tokens) / d.Seconds()
}
