package services

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/helixdata/onboard-engine/pkg/apperrors"
	"github.com/helixdata/onboard-engine/pkg/config"
	"github.com/helixdata/onboard-engine/pkg/messaging"
	"github.com/helixdata/onboard-engine/pkg/models"
	"github.com/helixdata/onboard-engine/pkg/repositories"
)

const (
	callTypeOnboard = "Onboarding"
	callTypeUpdate  = "Update"
)

// OnboardingResult is what the client gets back when a request is
// accepted. The background phase continues after this is returned.
type OnboardingResult struct {
	Message     string
	APIKey      string
	AppID       string
	ReferenceID string
}

// OnboardingService runs the onboarding and update pipeline: validate
// and verify synchronously, then persist and notify in the background.
type OnboardingService interface {
	// Onboard processes a request under the given reference id. The
	// caller mints the id so it can name it in error responses even
	// when this returns an error.
	Onboard(ctx context.Context, req *models.OnboardingRequest, isUpdate bool, referenceID string) (*OnboardingResult, error)

	// Recover re-dispatches completion tasks left pending by a previous
	// process, so a crash between accepting a request and finishing the
	// background phase does not strand the application.
	Recover(ctx context.Context) error
}

type onboardingService struct {
	apps         repositories.AppRepository
	refs         repositories.ReferenceRepository
	attempts     repositories.AttemptRepository
	tasks        repositories.CompletionTaskRepository
	connectivity ConnectivityVerifier
	topology     TopologyService
	credentials  CredentialService
	publisher    messaging.TopologyPublisher
	lease        *appLease
	cfg          *config.Config
	logger       *zap.Logger

	// runAsync detaches the background phase; replaced in tests to run
	// it synchronously.
	runAsync func(fn func())
}

// NewOnboardingService creates the onboarding orchestrator.
func NewOnboardingService(
	apps repositories.AppRepository,
	refs repositories.ReferenceRepository,
	attempts repositories.AttemptRepository,
	tasks repositories.CompletionTaskRepository,
	connectivity ConnectivityVerifier,
	topology TopologyService,
	credentials CredentialService,
	publisher messaging.TopologyPublisher,
	cfg *config.Config,
	logger *zap.Logger,
) OnboardingService {
	return &onboardingService{
		apps:         apps,
		refs:         refs,
		attempts:     attempts,
		tasks:        tasks,
		connectivity: connectivity,
		topology:     topology,
		credentials:  credentials,
		publisher:    publisher,
		lease:        newAppLease(),
		cfg:          cfg,
		logger:       logger.Named("onboarding"),
		runAsync:     func(fn func()) { go fn() },
	}
}

// Onboard runs the synchronous phase. When it returns without error the
// request is accepted: credentials exist, the reference record and the
// completion task are stored, and the background phase has been kicked
// off. The app lease is held until the background phase finishes.
func (s *onboardingService) Onboard(ctx context.Context, req *models.OnboardingRequest, isUpdate bool, referenceID string) (*OnboardingResult, error) {
	callType := callTypeOnboard
	if isUpdate {
		callType = callTypeUpdate
	}
	started := time.Now()

	if !s.lease.acquire(req.AppName) {
		return nil, apperrors.ErrOnboardInFlight
	}
	accepted := false
	defer func() {
		if !accepted {
			s.lease.release(req.AppName)
		}
	}()

	exists, err := s.apps.Exists(ctx, req.AppName)
	if err != nil {
		return nil, err
	}
	if !isUpdate && exists {
		return nil, apperrors.ErrAppExists
	}
	if isUpdate && !exists {
		return nil, apperrors.ErrAppMissing
	}

	// The attempt trail covers rejected requests too, so it is written
	// before any verification.
	if err := s.attempts.Record(ctx, req.AppName, callType); err != nil {
		return nil, err
	}
	s.logger.Info("App Onboarding Counter",
		zap.String("app_name", req.AppName),
		zap.String("call_type", callType),
		zap.Int("count", 1))

	if err := s.connectivity.Verify(ctx, req.AppDataSource); err != nil {
		return nil, err
	}

	creds, err := s.credentials.Provision(ctx, req.AppName, isUpdate)
	if err != nil {
		return nil, err
	}

	taskID := newTaskID(req.AppName)
	if err := s.refs.Create(ctx, &models.ReferenceRecord{
		AppName:     req.AppName,
		ReferenceID: referenceID,
		TaskID:      taskID,
	}); err != nil {
		return nil, err
	}

	// The task is the outbox record for the background phase. It is
	// written before the response so a crash after 201 leaves a pending
	// task to recover instead of a stalled application.
	task := &models.CompletionTask{
		TaskID:      taskID,
		AppName:     req.AppName,
		ReferenceID: referenceID,
		IsUpdate:    isUpdate,
		Request:     *req,
		AppID:       creds.AppID,
		APIKey:      creds.APIKey,
		APIKeyID:    creds.APIKeyID,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, err
	}

	s.logger.Info("request accepted",
		zap.String("app_name", req.AppName),
		zap.String("call_type", callType),
		zap.String("task_id", taskID),
		zap.String("reference_id", referenceID),
		zap.Duration("sync_duration", time.Since(started)))

	accepted = true
	s.runAsync(func() {
		defer s.lease.release(req.AppName)
		// The request context dies with the HTTP response; the
		// background phase gets its own.
		s.runCompletion(context.Background(), task)
	})

	return &OnboardingResult{
		Message:     "Datasource validation done. Onboarding in progress.",
		APIKey:      creds.APIKey,
		AppID:       creds.AppID,
		ReferenceID: referenceID,
	}, nil
}

// Recover finds tasks still pending from a previous run and drives them
// to completion. Tasks for apps with an in-flight request are skipped;
// that request's own background phase owns them.
func (s *onboardingService) Recover(ctx context.Context) error {
	pending, err := s.tasks.ListPending(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	s.logger.Info("recovering pending completion tasks", zap.Int("count", len(pending)))

	for i := range pending {
		task := pending[i]
		if !s.lease.acquire(task.AppName) {
			continue
		}
		s.runAsync(func() {
			defer s.lease.release(task.AppName)
			s.runCompletion(context.Background(), &task)
		})
	}
	return nil
}

// runCompletion drives the background phase to completion, retrying
// transient failures with exponential backoff. Exhausting the retries
// marks the task failed; the failure stays queryable by task id.
func (s *onboardingService) runCompletion(ctx context.Context, task *models.CompletionTask) {
	logger := s.logger.With(
		zap.String("app_name", task.AppName),
		zap.String("task_id", task.TaskID))

	backoff := time.Duration(s.cfg.Completion.InitialBackoffSeconds) * time.Second
	maxBackoff := time.Duration(s.cfg.Completion.MaxBackoffSeconds) * time.Second

	for attempt := 1; ; attempt++ {
		err := s.completeOnboarding(ctx, task)
		if err == nil {
			if err := s.tasks.MarkCompleted(ctx, task.TaskID); err != nil {
				logger.Error("failed to mark completion task done", zap.Error(err))
			}
			return
		}

		if attempt > s.cfg.Completion.MaxRetries {
			logger.Error("background phase failed permanently",
				zap.Int("attempts", attempt),
				zap.Error(err))
			if err := s.tasks.MarkFailed(ctx, task.TaskID, attempt, err.Error()); err != nil {
				logger.Error("failed to mark completion task failed", zap.Error(err))
			}
			return
		}

		logger.Warn("background phase failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		time.Sleep(backoff)
		backoff = time.Duration(float64(backoff) * s.cfg.Completion.BackoffFactor)
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// completeOnboarding is one attempt at the background phase: diff the
// topology, persist the application document and notify downstream
// consumers. Every step is idempotent, so a retry after a partial
// failure may republish an unchanged topology but never corrupts state.
func (s *onboardingService) completeOnboarding(ctx context.Context, task *models.CompletionTask) error {
	started := time.Now()
	req := &task.Request

	changed, previous, err := s.topology.Diff(ctx, req.AppName, req.AppDataSource, task.IsUpdate)
	if err != nil {
		return fmt.Errorf("topology diff failed: %w", err)
	}

	status := s.cfg.OnboardInProgressStatus
	if !changed {
		// Nothing for downstream ingestion to do.
		status = s.cfg.OnboardCompleteStatus
	}

	app := s.buildAppDocument(task, status)
	if err := s.apps.Upsert(ctx, app); err != nil {
		return fmt.Errorf("failed to persist application: %w", err)
	}

	if changed {
		if err := s.publisher.PublishTopologyChange(ctx, req.AppName, task.TaskID, req.AppDataSource, previous); err != nil {
			return fmt.Errorf("notification failed: %w", err)
		}
	}

	callType := callTypeOnboard
	if task.IsUpdate {
		callType = callTypeUpdate
	}
	s.logger.Info("App Onboarding Duration",
		zap.String("app_name", req.AppName),
		zap.String("task_id", task.TaskID),
		zap.String("call_type", callType),
		zap.Bool("topology_changed", changed),
		zap.String("onboarding_status", status),
		zap.Duration("duration", time.Since(started)))
	return nil
}

func (s *onboardingService) buildAppDocument(task *models.CompletionTask, status string) *models.App {
	req := &task.Request
	return &models.App{
		AppName:                  req.AppName,
		AppDescription:           req.AppDescription,
		TextEmbeddingModel:       req.TextEmbeddingModel,
		MultimodalEmbeddingModel: req.MultimodalEmbeddingModel,
		CSVAppendSameSchema:      req.CSVAppendSameSchema,
		AllowedModels:            req.AllowedModels,
		AppDataSource:            req.AppDataSource,
		AppID:                    task.AppID,
		APIKey:                   task.APIKey,
		APIKeyID:                 task.APIKeyID,
		SQSKey:                   s.cfg.SQSKeyValue,
		OnboardingStatus:         status,
		// Initial search flags; the ingestion pipeline flips them once
		// indexing finishes.
		SearchEnabled:   false,
		MMSearchEnabled: true,
	}
}

// newTaskID builds a task identifier of the form
// TSK-<5 digits>-<app name>-Onboarding-<timestamp>.
func newTaskID(appName string) string {
	return fmt.Sprintf("TSK-%05d-%s-Onboarding-%s",
		rand.Intn(90000)+10000,
		appName,
		time.Now().UTC().Format("20060102150405"))
}
