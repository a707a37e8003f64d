package services

import (
	"context"
	"errors"

	"github.com/helixdata/onboard-engine/pkg/apperrors"
	"github.com/helixdata/onboard-engine/pkg/models"
)

// mockAppRepository backs app lookups with an in-memory map.
type mockAppRepository struct {
	apps      map[string]*models.App
	existsErr error
	getErr    error
	upsertErr error
	upserted  []*models.App
}

func newMockAppRepository() *mockAppRepository {
	return &mockAppRepository{apps: make(map[string]*models.App)}
}

func (m *mockAppRepository) Exists(ctx context.Context, appName string) (bool, error) {
	if m.existsErr != nil {
		return false, m.existsErr
	}
	_, ok := m.apps[appName]
	return ok, nil
}

func (m *mockAppRepository) Get(ctx context.Context, appName string) (*models.App, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	app, ok := m.apps[appName]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return app, nil
}

func (m *mockAppRepository) Upsert(ctx context.Context, app *models.App) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserted = append(m.upserted, app)
	m.apps[app.AppName] = app
	return nil
}

type mockReferenceRepository struct {
	records []*models.ReferenceRecord
	err     error
}

func (m *mockReferenceRepository) Create(ctx context.Context, record *models.ReferenceRecord) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, record)
	return nil
}

type attemptCall struct {
	appName  string
	callType string
}

type mockAttemptRepository struct {
	calls []attemptCall
	err   error
}

func (m *mockAttemptRepository) Record(ctx context.Context, appName, callType string) error {
	m.calls = append(m.calls, attemptCall{appName: appName, callType: callType})
	return m.err
}

// mockCompletionTaskRepository records outbox transitions in memory.
type mockCompletionTaskRepository struct {
	created   []*models.CompletionTask
	pending   []models.CompletionTask
	completed []string
	failed    map[string]string
	createErr error
	listErr   error
}

func newMockCompletionTaskRepository() *mockCompletionTaskRepository {
	return &mockCompletionTaskRepository{failed: make(map[string]string)}
}

func (m *mockCompletionTaskRepository) Create(ctx context.Context, task *models.CompletionTask) error {
	if m.createErr != nil {
		return m.createErr
	}
	task.Status = models.TaskPending
	m.created = append(m.created, task)
	return nil
}

func (m *mockCompletionTaskRepository) MarkCompleted(ctx context.Context, taskID string) error {
	m.completed = append(m.completed, taskID)
	return nil
}

func (m *mockCompletionTaskRepository) MarkFailed(ctx context.Context, taskID string, attempts int, reason string) error {
	m.failed[taskID] = reason
	return nil
}

func (m *mockCompletionTaskRepository) ListPending(ctx context.Context) ([]models.CompletionTask, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.pending, nil
}

type mockConnectivityVerifier struct {
	err    error
	called int
}

func (m *mockConnectivityVerifier) Verify(ctx context.Context, topology models.AppDataSource) error {
	m.called++
	return m.err
}

type mockTopologyService struct {
	changed  bool
	previous *models.AppDataSource
	err      error
	// transientFailures makes the first N calls fail, then recover.
	transientFailures int
	called            int
}

func (m *mockTopologyService) Diff(ctx context.Context, appName string, next models.AppDataSource, isUpdate bool) (bool, *models.AppDataSource, error) {
	m.called++
	if m.transientFailures > 0 {
		m.transientFailures--
		return false, nil, errors.New("transient store failure")
	}
	if m.err != nil {
		return false, nil, m.err
	}
	if !isUpdate {
		return true, nil, nil
	}
	return m.changed, m.previous, nil
}

type mockCredentialService struct {
	creds  *AppCredentials
	err    error
	called int
}

func (m *mockCredentialService) Provision(ctx context.Context, appName string, isUpdate bool) (*AppCredentials, error) {
	m.called++
	if m.err != nil {
		return nil, m.err
	}
	return m.creds, nil
}

type publishedChange struct {
	appName  string
	taskID   string
	next     models.AppDataSource
	previous *models.AppDataSource
}

type mockPublisher struct {
	published []publishedChange
	err       error
}

func (m *mockPublisher) PublishTopologyChange(ctx context.Context, appName, taskID string, next models.AppDataSource, previous *models.AppDataSource) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, publishedChange{appName: appName, taskID: taskID, next: next, previous: previous})
	return nil
}

func (m *mockPublisher) Close() error { return nil }
