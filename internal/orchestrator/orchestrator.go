package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meywd/benchforge/internal/config"
	"github.com/meywd/benchforge/internal/executor"
	"github.com/meywd/benchforge/internal/models"
	"github.com/meywd/benchforge/internal/notifier"
	"github.com/meywd/benchforge/internal/resultstore"
	"github.com/meywd/benchforge/internal/scoring"
	"github.com/meywd/benchforge/pkg/logger"
)

// Orchestrator coordinates benchmark runs end to end: it expands a
// definition into the task x model cross product, dispatches batches to the
// executor within the organization's resource budget, scores completed
// executions, persists everything, and emits lifecycle notifications.
type Orchestrator struct {
	store     *resultstore.ResultStore
	executor  *executor.Executor
	scoring   *scoring.Engine
	tasks     executor.TaskReader
	resources *ResourceManager
	notifier  notifier.Notifier
	scheduler *Scheduler
	cfg       config.OrchestratorConfig
	execCfg   config.ExecutorConfig
	pricing   map[string]config.ModelPricing
	logger    *logger.Logger

	mu   sync.Mutex
	runs map[string]*runState // live runs by run ID
}

// runState tracks one live run so pause, resume, and cancel can reach it.
type runState struct {
	run       *models.BenchmarkRun
	def       *models.BenchmarkDefinition
	cancelCtx context.CancelFunc

	mu              sync.Mutex
	pauseRequested  bool
	cancelRequested bool
	resume          chan struct{}
	currentBatch    []string // execution IDs currently in flight
}

// RunStatus is the live view of a run returned by GetStatus.
type RunStatus struct {
	Run                 *models.BenchmarkRun `json:"run"`
	EstimatedCompletion time.Time            `json:"estimatedCompletion,omitempty"`
}

// New creates an Orchestrator. The scheduler is created and owned by the
// orchestrator; call Start to begin its polling loop.
func New(store *resultstore.ResultStore, exec *executor.Executor, eng *scoring.Engine, tasks executor.TaskReader,
	resources *ResourceManager, notify notifier.Notifier, engineCfg config.EngineConfig, log *logger.Logger) *Orchestrator {
	if engineCfg.Orchestrator.BatchSize <= 0 {
		engineCfg.Orchestrator.BatchSize = 16
	}
	if engineCfg.Orchestrator.ProgressInterval <= 0 {
		engineCfg.Orchestrator.ProgressInterval = 5
	}
	o := &Orchestrator{
		store:     store,
		executor:  exec,
		scoring:   eng,
		tasks:     tasks,
		resources: resources,
		notifier:  notify,
		cfg:       engineCfg.Orchestrator,
		execCfg:   engineCfg.Executor,
		pricing:   engineCfg.Pricing,
		logger:    log,
		runs:      make(map[string]*runState),
	}
	o.scheduler = NewScheduler(engineCfg.Orchestrator.SchedulerTick.Std(), o.onScheduleFired, log)
	return o
}

// Start launches the scheduler loop. It returns immediately.
func (o *Orchestrator) Start(ctx context.Context) {
	go o.scheduler.Run(ctx)
}

// CreateBenchmark validates and persists a definition, then either starts
// it immediately or registers it with the scheduler.
func (o *Orchestrator) CreateBenchmark(ctx context.Context, def *models.BenchmarkDefinition) (*models.BenchmarkDefinition, error) {
	if err := validateDefinition(def); err != nil {
		return nil, err
	}
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	def.CreatedAt = time.Now()
	o.applyDefinitionDefaults(def)

	if err := o.store.SaveDefinition(ctx, def); err != nil {
		return nil, err
	}

	o.notifier.Notify(notifier.NewEvent(models.NotifyBenchmarkCreated, def.ID, def.OrganizationID, def.UserID,
		fmt.Sprintf("benchmark %q created with %d executions", def.Name, def.TotalExecutions()), nil))

	if def.Schedule == nil || def.Schedule.Type == models.ScheduleImmediate {
		if _, err := o.StartRun(ctx, def.ID); err != nil {
			return nil, err
		}
	} else {
		o.scheduler.Add(def)
	}
	return def, nil
}

// StartRun creates a new run for a definition and begins executing it in
// the background. It returns the run ID.
func (o *Orchestrator) StartRun(ctx context.Context, definitionID string) (string, error) {
	def, err := o.store.GetDefinition(ctx, definitionID)
	if err != nil {
		return "", fmt.Errorf("load definition %s: %w", definitionID, err)
	}

	total := def.TotalExecutions()
	run := &models.BenchmarkRun{
		ID:           uuid.NewString(),
		DefinitionID: def.ID,
		Status:       models.BenchmarkStatusPending,
		Progress:     models.BenchmarkProgress{Total: total, Pending: total},
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		return "", err
	}

	st := &runState{run: run, def: def, resume: make(chan struct{}, 1)}
	o.mu.Lock()
	o.runs[run.ID] = st
	o.mu.Unlock()

	go o.executeRun(st)
	return run.ID, nil
}

// Pause requests that a running benchmark pauses at the next batch
// boundary. In-flight executions complete normally.
func (o *Orchestrator) Pause(runID string) error {
	st, err := o.liveRun(runID)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.cancelRequested {
		return fmt.Errorf("run %s is being cancelled", runID)
	}
	st.pauseRequested = true
	o.scheduler.Suspend(st.def.ID)
	return nil
}

// Resume continues a paused benchmark from where it left off.
func (o *Orchestrator) Resume(runID string) error {
	st, err := o.liveRun(runID)
	if err != nil {
		return err
	}
	st.mu.Lock()
	if !st.pauseRequested {
		st.mu.Unlock()
		return fmt.Errorf("run %s is not paused", runID)
	}
	st.pauseRequested = false
	st.mu.Unlock()

	o.scheduler.Resume(st.def.ID)
	select {
	case st.resume <- struct{}{}:
	default:
	}
	return nil
}

// CancelRun cancels a live run. In-flight executions are signalled; ones
// that complete before the signal lands keep their natural outcome.
func (o *Orchestrator) CancelRun(runID string) error {
	st, err := o.liveRun(runID)
	if err != nil {
		return err
	}
	st.mu.Lock()
	st.cancelRequested = true
	batch := append([]string(nil), st.currentBatch...)
	paused := st.pauseRequested
	st.pauseRequested = false
	cancelCtx := st.cancelCtx
	st.mu.Unlock()

	for _, id := range batch {
		o.executor.Cancel(id)
	}
	if paused {
		select {
		case st.resume <- struct{}{}:
		default:
		}
	}
	if cancelCtx != nil {
		cancelCtx()
	}
	o.scheduler.Remove(st.def.ID)
	return nil
}

// GetStatus returns the current state of a run, live or historical.
func (o *Orchestrator) GetStatus(ctx context.Context, runID string) (*RunStatus, error) {
	o.mu.Lock()
	st, live := o.runs[runID]
	o.mu.Unlock()
	if live {
		st.mu.Lock()
		snapshot := *st.run
		st.mu.Unlock()
		return &RunStatus{Run: &snapshot, EstimatedCompletion: snapshot.EstimatedCompletion(time.Now())}, nil
	}

	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &RunStatus{Run: run}, nil
}

func (o *Orchestrator) onScheduleFired(definitionID string) {
	if _, err := o.StartRun(context.Background(), definitionID); err != nil {
		o.logger.WithError(models.ErrorInfo{Message: err.Error(), Type: "schedule_error"}).
			WithPayload(map[string]interface{}{"definitionID": definitionID}).
			Error("Failed to start scheduled benchmark run")
	}
}

func (o *Orchestrator) liveRun(runID string) (*runState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s is not live", runID)
	}
	return st, nil
}

// executeRun drives one run to a terminal status. It owns the run's
// resource reservation and always releases it.
func (o *Orchestrator) executeRun(st *runState) {
	def, run := st.def, st.run
	log := o.logger.WithPayload(map[string]interface{}{"runID": run.ID, "definitionID": def.ID})

	defer func() {
		o.mu.Lock()
		delete(o.runs, run.ID)
		o.mu.Unlock()
	}()

	reservation, err := o.resources.Reserve(def.OrganizationID, o.cfg.BatchSize)
	if err != nil {
		o.finishRun(st, models.BenchmarkStatusFailed, err.Error(), nil, nil)
		return
	}
	defer reservation.Release()

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if reservation.MaxDuration > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), reservation.MaxDuration)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	defer cancel()

	st.mu.Lock()
	st.cancelCtx = cancel
	run.Status = models.BenchmarkStatusRunning
	run.StartedAt = time.Now()
	st.mu.Unlock()
	o.persistRun(st)
	log.Info("Benchmark run started")

	requests := o.buildRequests(def, run.ID)
	batchSize := o.cfg.BatchSize
	if batchSize > reservation.Concurrency {
		batchSize = reservation.Concurrency
	}

	var (
		results    []*models.ExecutionResult
		scores     []*models.ExecutionScore
		batchCount int
	)

	for start := 0; start < len(requests); start += batchSize {
		if o.shouldStop(ctx, st) {
			break
		}
		if !o.waitIfPaused(ctx, st) {
			break
		}

		end := start + batchSize
		if end > len(requests) {
			end = len(requests)
		}
		batch := requests[start:end]

		st.mu.Lock()
		st.currentBatch = requestIDs(batch)
		run.Progress.Pending -= len(batch)
		run.Progress.Running = len(batch)
		st.mu.Unlock()

		batchResults := o.executor.ExecuteBatch(ctx, batch)

		st.mu.Lock()
		st.currentBatch = nil
		run.Progress.Running = 0
		for _, r := range batchResults {
			switch r.Status {
			case models.ExecutionStatusCompleted:
				run.Progress.Completed++
			case models.ExecutionStatusCancelled:
				run.Progress.Cancelled++
			default:
				run.Progress.Failed++
			}
		}
		st.mu.Unlock()

		results = append(results, batchResults...)
		scores = append(scores, o.persistBatch(ctx, batchResults)...)

		batchCount++
		o.persistRun(st)
		if batchCount%o.cfg.ProgressInterval == 0 {
			o.notifyProgress(st)
		}
	}

	// Anything never dispatched counts as cancelled.
	st.mu.Lock()
	if run.Progress.Pending > 0 {
		run.Progress.Cancelled += run.Progress.Pending
		run.Progress.Pending = 0
	}
	cancelRequested := st.cancelRequested
	progress := run.Progress
	st.mu.Unlock()

	status, message := terminalStatus(progress, cancelRequested, ctx.Err())
	o.finishRun(st, status, message, results, scores)
}

// shouldStop reports whether the run should stop dispatching new batches.
func (o *Orchestrator) shouldStop(ctx context.Context, st *runState) bool {
	st.mu.Lock()
	cancelled := st.cancelRequested
	st.mu.Unlock()
	return cancelled || ctx.Err() != nil
}

// waitIfPaused blocks at the batch boundary while the run is paused. It
// returns false when the run should stop instead of continuing.
func (o *Orchestrator) waitIfPaused(ctx context.Context, st *runState) bool {
	st.mu.Lock()
	paused := st.pauseRequested
	st.mu.Unlock()
	if !paused {
		return true
	}

	run, def := st.run, st.def
	st.mu.Lock()
	run.Status = models.BenchmarkStatusPaused
	st.mu.Unlock()
	o.persistRun(st)
	o.notifier.Notify(notifier.NewEvent(models.NotifyBenchmarkPaused, run.ID, def.OrganizationID, def.UserID,
		"benchmark run paused", progressData(run)))

	select {
	case <-ctx.Done():
		return false
	case <-st.resume:
	}

	st.mu.Lock()
	stop := st.cancelRequested
	if !stop {
		run.Status = models.BenchmarkStatusRunning
	}
	st.mu.Unlock()
	if stop {
		return false
	}
	o.persistRun(st)
	o.notifier.Notify(notifier.NewEvent(models.NotifyBenchmarkResumed, run.ID, def.OrganizationID, def.UserID,
		"benchmark run resumed", progressData(run)))
	return true
}

// persistBatch saves the batch's results, scores the completed ones, and
// saves the scores. Persistence failures are logged and do not stop the run.
func (o *Orchestrator) persistBatch(ctx context.Context, batchResults []*models.ExecutionResult) []*models.ExecutionScore {
	var completed []*models.ExecutionResult
	for _, r := range batchResults {
		if err := o.store.SaveExecution(ctx, r); err != nil {
			o.logger.WithError(models.ErrorInfo{Message: err.Error(), Type: "persistence_error"}).
				WithPayload(map[string]interface{}{"executionID": r.ID}).
				Error("Failed to persist execution result")
		}
		if r.Status == models.ExecutionStatusCompleted {
			completed = append(completed, r)
		}
	}
	if len(completed) == 0 {
		return nil
	}

	tasks := make(map[string]*models.Task)
	for _, r := range completed {
		if _, ok := tasks[r.TaskID]; ok {
			continue
		}
		task, err := o.tasks.GetTask(ctx, r.TaskID)
		if err != nil {
			o.logger.WithError(models.ErrorInfo{Message: err.Error(), Type: "task_error"}).
				WithPayload(map[string]interface{}{"taskID": r.TaskID}).
				Warn("Task lookup failed, skipping scoring")
			continue
		}
		tasks[r.TaskID] = task
	}

	scores := o.scoring.ScoreBatch(ctx, completed, tasks)
	for _, sc := range scores {
		if err := o.store.SaveScore(ctx, sc); err != nil {
			o.logger.WithError(models.ErrorInfo{Message: err.Error(), Type: "persistence_error"}).
				WithPayload(map[string]interface{}{"scoreID": sc.ID}).
				Error("Failed to persist execution score")
		}
	}
	return scores
}

// finishRun writes the terminal run record with aggregate metrics and the
// full result payload, then emits the terminal notification.
func (o *Orchestrator) finishRun(st *runState, status models.BenchmarkStatus, message string,
	results []*models.ExecutionResult, scores []*models.ExecutionScore) {
	run, def := st.run, st.def

	st.mu.Lock()
	run.Status = status
	run.EndedAt = time.Now()
	run.Error = message
	run.Metrics = aggregateMetrics(results, scores, o.pricing)
	run.ByTask = groupMetrics(results, scores, func(r *models.ExecutionResult) string { return r.TaskID })
	run.ByModel = groupMetrics(results, scores, func(r *models.ExecutionResult) string {
		return r.ProviderID + "/" + r.ModelID
	})
	st.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var payload interface{}
	if len(results) > 0 {
		payload = map[string]interface{}{
			"run":        run,
			"executions": results,
			"scores":     scores,
		}
	}
	if err := o.store.UpdateRun(ctx, run, payload); err != nil {
		o.logger.WithError(models.ErrorInfo{Message: err.Error(), Type: "persistence_error"}).
			WithPayload(map[string]interface{}{"runID": run.ID}).
			Error("Failed to persist terminal run record")
	}

	eventType := models.NotifyBenchmarkCompleted
	switch status {
	case models.BenchmarkStatusFailed:
		eventType = models.NotifyBenchmarkFailed
	case models.BenchmarkStatusCancelled:
		eventType = models.NotifyBenchmarkCancelled
	}
	o.notifier.Notify(notifier.NewEvent(eventType, run.ID, def.OrganizationID, def.UserID,
		fmt.Sprintf("benchmark run finished with status %s", status), progressData(run)))

	o.logger.WithPayload(map[string]interface{}{
		"runID":  run.ID,
		"status": string(status),
	}).Info("Benchmark run finished")
}

func (o *Orchestrator) notifyProgress(st *runState) {
	run, def := st.run, st.def
	st.mu.Lock()
	data := progressData(run)
	eta := run.EstimatedCompletion(time.Now())
	st.mu.Unlock()
	if !eta.IsZero() {
		data["estimatedCompletion"] = eta.Format(time.RFC3339)
	}
	o.notifier.Notify(notifier.NewEvent(models.NotifyBenchmarkProgress, run.ID, def.OrganizationID, def.UserID,
		"benchmark run progress", data))
}

func (o *Orchestrator) persistRun(st *runState) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st.mu.Lock()
	snapshot := *st.run
	st.mu.Unlock()

	if err := o.store.UpdateRun(ctx, &snapshot, nil); err != nil {
		o.logger.WithError(models.ErrorInfo{Message: err.Error(), Type: "persistence_error"}).
			WithPayload(map[string]interface{}{"runID": snapshot.ID}).
			Warn("Failed to persist run progress")
	}
}

// buildRequests expands the definition into the full task x model cross
// product, in task-major order.
func (o *Orchestrator) buildRequests(def *models.BenchmarkDefinition, runID string) []*models.ExecutionRequest {
	reqs := make([]*models.ExecutionRequest, 0, def.TotalExecutions())
	now := time.Now()
	for _, tc := range def.TaskConfigs {
		for _, mc := range def.ModelConfigs {
			reqs = append(reqs, &models.ExecutionRequest{
				ID:         uuid.NewString(),
				TaskID:     tc.TaskID,
				ProviderID: mc.ProviderID,
				ModelID:    mc.ModelID,
				Config:     mc.Config,
				Context: models.ExecutionContext{
					BenchmarkID:    runID,
					OrganizationID: def.OrganizationID,
					UserID:         def.UserID,
					Environment:    def.Environment,
				},
				Priority:    def.Priority,
				Timeout:     def.Timeout,
				RetryPolicy: def.RetryPolicy,
				CreatedAt:   now,
			})
		}
	}
	return reqs
}

func (o *Orchestrator) applyDefinitionDefaults(def *models.BenchmarkDefinition) {
	if def.Timeout <= 0 {
		def.Timeout = o.execCfg.DefaultTimeout.Std()
	}
	rp := &def.RetryPolicy
	if rp.MaxAttempts <= 0 {
		rp.MaxAttempts = o.execCfg.MaxAttempts
	}
	if rp.BaseDelay <= 0 {
		rp.BaseDelay = o.execCfg.BaseDelay.Std()
	}
	if rp.MaxDelay <= 0 {
		rp.MaxDelay = o.execCfg.MaxDelay.Std()
	}
	if rp.BackoffMultiplier <= 0 {
		rp.BackoffMultiplier = o.execCfg.BackoffMultiplier
	}
	if len(rp.RetryableErrors) == 0 {
		rp.RetryableErrors = []string{"RATE_LIMIT", "NETWORK_ERROR", "TIMEOUT"}
	}
}

func validateDefinition(def *models.BenchmarkDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("benchmark name is required")
	}
	if len(def.TaskConfigs) == 0 {
		return fmt.Errorf("benchmark requires at least one task")
	}
	if len(def.ModelConfigs) == 0 {
		return fmt.Errorf("benchmark requires at least one model")
	}
	for i, tc := range def.TaskConfigs {
		if tc.TaskID == "" {
			return fmt.Errorf("task config %d is missing a task ID", i)
		}
	}
	for i, mc := range def.ModelConfigs {
		if mc.ProviderID == "" || mc.ModelID == "" {
			return fmt.Errorf("model config %d requires both provider and model IDs", i)
		}
	}
	if def.Schedule != nil {
		switch def.Schedule.Type {
		case models.ScheduleImmediate:
		case models.ScheduleOnce:
			if def.Schedule.StartAt.IsZero() {
				return fmt.Errorf("scheduled benchmark requires a start time")
			}
		case models.ScheduleRecurring:
			if def.Schedule.Interval <= 0 {
				return fmt.Errorf("recurring benchmark requires a positive interval")
			}
		default:
			return fmt.Errorf("unknown schedule type %q", def.Schedule.Type)
		}
	}
	return nil
}

// terminalStatus picks the run's terminal status from its counters and how
// the loop ended.
func terminalStatus(p models.BenchmarkProgress, cancelRequested bool, ctxErr error) (models.BenchmarkStatus, string) {
	if cancelRequested {
		return models.BenchmarkStatusCancelled, "cancelled by user"
	}
	if ctxErr == context.DeadlineExceeded {
		return models.BenchmarkStatusFailed, "resource budget duration exceeded"
	}
	switch {
	case p.Completed == 0 && p.Failed > 0:
		return models.BenchmarkStatusFailed, "all executions failed"
	case p.Failed > 0 || p.Cancelled > 0:
		return models.BenchmarkStatusCompletedWithErrors, ""
	default:
		return models.BenchmarkStatusCompleted, ""
	}
}

func requestIDs(reqs []*models.ExecutionRequest) []string {
	ids := make([]string, len(reqs))
	for i, r := range reqs {
		ids[i] = r.ID
	}
	return ids
}

func progressData(run *models.BenchmarkRun) map[string]interface{} {
	p := run.Progress
	return map[string]interface{}{
		"total":     p.Total,
		"completed": p.Completed,
		"failed":    p.Failed,
		"cancelled": p.Cancelled,
		"running":   p.Running,
		"pending":   p.Pending,
	}
}

// aggregateMetrics folds per-execution results and scores into run totals.
func aggregateMetrics(results []*models.ExecutionResult, scores []*models.ExecutionScore,
	pricing map[string]config.ModelPricing) models.AggregateMetrics {
	var m models.AggregateMetrics
	if len(results) == 0 {
		return m
	}

	var (
		completed     int
		totalDuration time.Duration
	)
	for _, r := range results {
		totalDuration += r.Duration
		if r.Status != models.ExecutionStatusCompleted {
			continue
		}
		completed++
		if r.Response != nil {
			m.TotalTokens += r.Response.Usage.TotalTokens
			if price, ok := pricing[r.ModelID]; ok {
				m.EstimatedCost += float64(r.Response.Usage.PromptTokens) / 1000 * price.PromptPer1K
				m.EstimatedCost += float64(r.Response.Usage.CompletionTokens) / 1000 * price.CompletionPer1K
			}
		}
	}
	m.SuccessRate = float64(completed) / float64(len(results))
	m.AverageDuration = totalDuration / time.Duration(len(results))

	if len(scores) > 0 {
		var sum float64
		for _, s := range scores {
			sum += s.OverallScore
		}
		m.AverageScore = sum / float64(len(scores))
	}
	return m
}

// groupMetrics aggregates results and scores under a grouping key, sorted
// by key for stable output.
func groupMetrics(results []*models.ExecutionResult, scores []*models.ExecutionScore,
	keyOf func(*models.ExecutionResult) string) []models.GroupMetrics {
	if len(results) == 0 {
		return nil
	}

	scoreByExecution := make(map[string]float64, len(scores))
	for _, s := range scores {
		scoreByExecution[s.ExecutionID] = s.OverallScore
	}

	type acc struct {
		executions    int
		completed     int
		totalDuration time.Duration
		scoreSum      float64
		scoreCount    int
	}
	groups := make(map[string]*acc)
	for _, r := range results {
		key := keyOf(r)
		g, ok := groups[key]
		if !ok {
			g = &acc{}
			groups[key] = g
		}
		g.executions++
		g.totalDuration += r.Duration
		if r.Status == models.ExecutionStatusCompleted {
			g.completed++
		}
		if score, ok := scoreByExecution[r.ID]; ok {
			g.scoreSum += score
			g.scoreCount++
		}
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]models.GroupMetrics, 0, len(keys))
	for _, k := range keys {
		g := groups[k]
		gm := models.GroupMetrics{
			Key:             k,
			Executions:      g.executions,
			SuccessRate:     float64(g.completed) / float64(g.executions),
			AverageDuration: g.totalDuration / time.Duration(g.executions),
		}
		if g.scoreCount > 0 {
			gm.AverageScore = g.scoreSum / float64(g.scoreCount)
		}
		out = append(out, gm)
	}
	return out
}
