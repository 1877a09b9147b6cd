package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"videoverse/video-api/internal/config"
	"videoverse/video-api/internal/domain"
	"videoverse/video-api/internal/media"
	"videoverse/video-api/internal/repository"
	"videoverse/video-api/internal/storage"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// --- Error Definitions ---
var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrAssetNotFound = errors.New("asset not found")
	ErrQueueFull     = errors.New("transform queue is full")
)

// Bound on parallel input downloads while materializing merge inputs.
const materializeParallelism = 3

// TransformService is the task orchestrator: it validates submissions
// synchronously, queues the work onto a bounded worker pool and tracks each
// task through its state machine. Failures after submission are never raised
// to the caller; they are recorded in task state and discovered via Status.
type TransformService interface {
	SubmitTrim(ctx context.Context, assetID string, start, end float64) (string, error)
	SubmitMerge(ctx context.Context, assetIDs []string) (string, error)
	Status(ctx context.Context, taskID string) (*domain.TransformTask, error)

	// Start launches the worker pool, the liveness monitor and the terminal
	// task eviction sweep. They all stop when ctx is cancelled.
	Start(ctx context.Context)
}

// taskEntry pairs a task with its own lock and heartbeat. All mutation goes
// through transition/observe so nothing ever leaves a terminal state.
type taskEntry struct {
	mu        sync.Mutex
	task      domain.TransformTask
	heartbeat time.Time
}

// snapshot returns a copy safe to hand out while the task keeps mutating.
func (e *taskEntry) snapshot() domain.TransformTask {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.task
	if e.task.Progress != nil {
		p := *e.task.Progress
		t.Progress = &p
	}
	if e.task.CompletedAt != nil {
		c := *e.task.CompletedAt
		t.CompletedAt = &c
	}
	return t
}

// transformService implements TransformService.
type transformService struct {
	catalog     repository.AssetRepository
	files       storage.FileStorage
	transformer media.Transformer
	cfg         config.TransformConfig

	mu    sync.RWMutex // Guards the tasks map only; entries carry their own lock
	tasks map[string]*taskEntry
	queue chan string

	now func() time.Time
}

// NewTransformService creates a new instance of transformService.
func NewTransformService(catalog repository.AssetRepository, files storage.FileStorage, transformer media.Transformer, cfg config.TransformConfig) TransformService {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.LivenessTimeout <= 0 {
		cfg.LivenessTimeout = 10 * time.Minute
	}
	if cfg.Retention <= 0 {
		cfg.Retention = time.Hour
	}
	return &transformService{
		catalog:     catalog,
		files:       files,
		transformer: transformer,
		cfg:         cfg,
		tasks:       make(map[string]*taskEntry),
		queue:       make(chan string, 256),
		now:         time.Now,
	}
}

// SubmitTrim validates the trim preconditions and enqueues the task.
// Returns the new task id; the task is in state Queued.
func (s *transformService) SubmitTrim(ctx context.Context, assetID string, start, end float64) (string, error) {
	if assetID == "" {
		return "", domain.ValidationErrorf("asset id is required")
	}
	if start < 0 {
		return "", domain.ValidationErrorf("start_time cannot be negative")
	}
	if start >= end {
		return "", domain.ValidationErrorf("start_time must be before end_time")
	}

	asset, err := s.catalog.GetByID(ctx, assetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrAssetNotFound, assetID)
		}
		return "", err
	}
	// Duration 0 means probing has not finished yet; the upper bound is then
	// enforced by the worker against the materialized input.
	if asset.Duration > 0 && end > asset.Duration {
		return "", domain.ValidationErrorf("end_time %.3f exceeds source duration %.3f", end, asset.Duration)
	}

	return s.enqueue(domain.TransformTask{
		Kind:          domain.TaskKindTrim,
		InputAssetIDs: []string{assetID},
		Trim:          &domain.TrimBounds{Start: start, End: end},
	})
}

// SubmitMerge validates that every referenced asset exists and enqueues the
// merge. Input order is preserved through to concatenation.
func (s *transformService) SubmitMerge(ctx context.Context, assetIDs []string) (string, error) {
	if len(assetIDs) == 0 {
		return "", domain.ValidationErrorf("merge requires at least one input video")
	}
	for _, id := range assetIDs {
		if id == "" {
			return "", domain.ValidationErrorf("merge input ids cannot be empty")
		}
	}

	if _, err := s.catalog.GetByIDs(ctx, assetIDs); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("%w: some videos were not found", ErrAssetNotFound)
		}
		return "", err
	}

	inputs := make([]string, len(assetIDs))
	copy(inputs, assetIDs)
	return s.enqueue(domain.TransformTask{
		Kind:          domain.TaskKindMerge,
		InputAssetIDs: inputs,
	})
}

// Status returns a snapshot of the task. Unknown ids yield ErrTaskNotFound.
func (s *transformService) Status(ctx context.Context, taskID string) (*domain.TransformTask, error) {
	s.mu.RLock()
	entry, ok := s.tasks[taskID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	snap := entry.snapshot()
	return &snap, nil
}

// Start launches workers, the liveness monitor and the eviction sweep.
func (s *transformService) Start(ctx context.Context) {
	for i := 0; i < s.cfg.Workers; i++ {
		go s.worker(ctx)
	}
	go s.monitor(ctx)
	log.Printf("Transform orchestrator started with %d workers", s.cfg.Workers)
}

// --- submission internals ---

func (s *transformService) enqueue(task domain.TransformTask) (string, error) {
	task.ID = uuid.NewString()
	task.State = domain.TaskStateQueued
	task.SubmittedAt = s.now()

	entry := &taskEntry{task: task, heartbeat: s.now()}
	s.mu.Lock()
	s.tasks[task.ID] = entry
	s.mu.Unlock()

	// Submission must not block on worker execution.
	select {
	case s.queue <- task.ID:
		return task.ID, nil
	default:
		s.mu.Lock()
		delete(s.tasks, task.ID)
		s.mu.Unlock()
		return "", ErrQueueFull
	}
}

// --- worker pool ---

func (s *transformService) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case taskID := <-s.queue:
			s.runTask(ctx, taskID)
		}
	}
}

func (s *transformService) runTask(ctx context.Context, taskID string) {
	s.mu.RLock()
	entry, ok := s.tasks[taskID]
	s.mu.RUnlock()
	if !ok {
		return // Evicted before a worker got to it
	}

	if !s.transition(entry, func(t *domain.TransformTask) {
		t.State = domain.TaskStateRunning
	}) {
		return // Liveness monitor beat us to a terminal state
	}

	outputAssetID, err := s.execute(ctx, entry)
	if err != nil {
		detail := err.Error()
		s.transition(entry, func(t *domain.TransformTask) {
			t.State = domain.TaskStateFailed
			t.ErrorDetail = detail
			t.Progress = nil
			now := s.now()
			t.CompletedAt = &now
		})
		log.Printf("Task %s failed: %v", taskID, err)
		return
	}

	s.transition(entry, func(t *domain.TransformTask) {
		t.State = domain.TaskStateSucceeded
		t.OutputAssetID = outputAssetID
		t.Progress = nil
		now := s.now()
		t.CompletedAt = &now
	})
}

// execute runs the transform with bounded retries for transient failures.
// Every materialized input and intermediate output is removed on every exit
// path.
func (s *transformService) execute(ctx context.Context, entry *taskEntry) (string, error) {
	task := entry.snapshot()

	workDir, err := os.MkdirTemp(s.cfg.WorkDir, "task-"+task.ID+"-")
	if err != nil {
		if err := os.MkdirAll(s.cfg.WorkDir, 0o755); err == nil {
			workDir, err = os.MkdirTemp(s.cfg.WorkDir, "task-"+task.ID+"-")
		}
		if err != nil {
			return "", fmt.Errorf("%w: cannot create work dir: %v", domain.ErrTransient, err)
		}
	}
	defer os.RemoveAll(workDir)

	// Progress: one step per materialized input, one for the transform, one
	// for registration.
	totalSteps := len(task.InputAssetIDs) + 2
	s.observe(entry, 0, totalSteps)

	inputs, err := s.materialize(ctx, entry, workDir, task.InputAssetIDs, totalSteps)
	if err != nil {
		return "", err
	}

	// A source uploaded moments before submission may not have a cataloged
	// duration yet, so the trim upper bound is re-checked here against the
	// materialized input. ffmpeg would silently clamp an out-of-range -to.
	if task.Kind == domain.TaskKindTrim {
		if duration, err := s.transformer.Probe(ctx, inputs[0]); err == nil && task.Trim.End > duration {
			return "", fmt.Errorf("%w: end_time %.3f exceeds source duration %.3f", domain.ErrFatal, task.Trim.End, duration)
		}
	}

	outputPath := filepath.Join(workDir, "output.mp4")
	if err := s.runTransform(ctx, entry, task, inputs, outputPath); err != nil {
		return "", err
	}
	s.observe(entry, totalSteps-1, totalSteps)

	return s.register(ctx, task, outputPath)
}

// materialize copies every input asset from storage into the work dir so the
// external transform can address them by path. Downloads run in parallel,
// bounded so one merge cannot monopolize storage bandwidth.
func (s *transformService) materialize(ctx context.Context, entry *taskEntry, workDir string, assetIDs []string, totalSteps int) ([]string, error) {
	assets, err := s.catalog.GetByIDs(ctx, assetIDs)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Asset vanished between validation and execution.
			return nil, fmt.Errorf("%w: input asset disappeared", domain.ErrFatal)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}

	paths := make([]string, len(assets))
	done := 0
	var doneMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(materializeParallelism)
	for i, asset := range assets {
		g.Go(func() error {
			path := filepath.Join(workDir, fmt.Sprintf("input_%03d%s", i, filepath.Ext(asset.FileName)))
			if err := s.download(gctx, asset.StorageKey, path); err != nil {
				return err
			}
			paths[i] = path

			doneMu.Lock()
			done++
			current := done
			doneMu.Unlock()
			s.observe(entry, current, totalSteps)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func (s *transformService) download(ctx context.Context, storageKey, path string) error {
	r, err := s.files.Open(ctx, storageKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return fmt.Errorf("%w: stored object %s missing", domain.ErrFatal, storageKey)
		}
		return fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	defer r.Close()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	_, err = io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	return nil
}

// runTransform invokes the external transform, retrying transient failures a
// bounded number of times before giving up.
func (s *transformService) runTransform(ctx context.Context, entry *taskEntry, task domain.TransformTask, inputs []string, outputPath string) error {
	var err error
	for attempt := 0; ; attempt++ {
		switch task.Kind {
		case domain.TaskKindTrim:
			err = s.transformer.Trim(ctx, inputs[0], outputPath, task.Trim.Start, task.Trim.End)
		case domain.TaskKindMerge:
			err = s.transformer.Merge(ctx, inputs, outputPath)
		default:
			return fmt.Errorf("%w: unknown task kind %q", domain.ErrFatal, task.Kind)
		}
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrTransient) || attempt >= s.cfg.MaxRetries {
			return err
		}
		log.Printf("Task %s attempt %d hit a transient failure, retrying: %v", task.ID, attempt+1, err)
		s.touch(entry)
		os.Remove(outputPath) // A partial output must not leak into the retry
	}
}

// register stores the transform output and records it in the catalog.
func (s *transformService) register(ctx context.Context, task domain.TransformTask, outputPath string) (string, error) {
	duration, err := s.transformer.Probe(ctx, outputPath)
	if err != nil {
		log.Printf("WARN: Could not probe transform output for task %s: %v", task.ID, err)
		duration = 0
	}

	contentType := "video/mp4"
	if mtype, err := mimetype.DetectFile(outputPath); err == nil {
		contentType = mtype.String()
	}

	fileName := "trimmed_video.mp4"
	if task.Kind == domain.TaskKindMerge {
		fileName = "merged_video.mp4"
	}
	storageKey := fmt.Sprintf("videos/derived/%s/%s", uuid.NewString(), fileName)

	out, err := os.Open(outputPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrFatal, err)
	}
	size, err := s.files.Save(ctx, storageKey, out)
	out.Close()
	if err != nil {
		return "", fmt.Errorf("%w: storing output failed: %v", domain.ErrTransient, err)
	}

	asset := &domain.Asset{
		StorageKey:  storageKey,
		FileName:    fileName,
		ContentType: contentType,
		Duration:    duration,
		Size:        size,
	}
	assetID, err := s.catalog.Create(ctx, asset)
	if err != nil {
		_ = s.files.Delete(ctx, storageKey)
		return "", fmt.Errorf("%w: registering output failed: %v", domain.ErrTransient, err)
	}
	return assetID, nil
}

// --- liveness and eviction ---

// monitor fails Running tasks whose worker stopped heartbeating and evicts
// terminal tasks past the retention window.
func (s *transformService) monitor(ctx context.Context) {
	interval := s.cfg.LivenessTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reap()
		}
	}
}

func (s *transformService) reap() {
	now := s.now()

	s.mu.RLock()
	entries := make([]*taskEntry, 0, len(s.tasks))
	for _, entry := range s.tasks {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	var evict []string
	for _, entry := range entries {
		entry.mu.Lock()
		switch {
		case entry.task.State == domain.TaskStateRunning && now.Sub(entry.heartbeat) > s.cfg.LivenessTimeout:
			entry.task.State = domain.TaskStateFailed
			entry.task.ErrorDetail = "worker liveness timeout exceeded"
			entry.task.Progress = nil
			completed := now
			entry.task.CompletedAt = &completed
			log.Printf("Task %s forced to failed: no worker heartbeat for over %s", entry.task.ID, s.cfg.LivenessTimeout)
		case entry.task.State.IsTerminal() && entry.task.CompletedAt != nil && now.Sub(*entry.task.CompletedAt) > s.cfg.Retention:
			evict = append(evict, entry.task.ID)
		}
		entry.mu.Unlock()
	}

	if len(evict) > 0 {
		s.mu.Lock()
		for _, id := range evict {
			delete(s.tasks, id)
		}
		s.mu.Unlock()
	}
}

// --- state helpers ---

// transition applies fn unless the task is already terminal. Returns whether
// the mutation was applied.
func (s *transformService) transition(entry *taskEntry, fn func(*domain.TransformTask)) bool {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.task.State.IsTerminal() {
		return false
	}
	fn(&entry.task)
	entry.heartbeat = s.now()
	return true
}

// observe records a progress observation; informational only.
func (s *transformService) observe(entry *taskEntry, current, total int) {
	s.transition(entry, func(t *domain.TransformTask) {
		if t.State == domain.TaskStateRunning {
			t.Progress = &domain.Progress{Current: current, Total: total}
		}
	})
}

func (s *transformService) touch(entry *taskEntry) {
	entry.mu.Lock()
	entry.heartbeat = s.now()
	entry.mu.Unlock()
}
