package services

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helixdata/onboard-engine/pkg/apperrors"
	"github.com/helixdata/onboard-engine/pkg/config"
	"github.com/helixdata/onboard-engine/pkg/models"
)

type onboardingTestContext struct {
	apps         *mockAppRepository
	refs         *mockReferenceRepository
	attempts     *mockAttemptRepository
	tasks        *mockCompletionTaskRepository
	connectivity *mockConnectivityVerifier
	topology     *mockTopologyService
	credentials  *mockCredentialService
	publisher    *mockPublisher
	cfg          *config.Config
	service      *onboardingService
}

func setupOnboardingTest(t *testing.T) *onboardingTestContext {
	t.Helper()

	tc := &onboardingTestContext{
		apps:         newMockAppRepository(),
		refs:         &mockReferenceRepository{},
		attempts:     &mockAttemptRepository{},
		tasks:        newMockCompletionTaskRepository(),
		connectivity: &mockConnectivityVerifier{},
		topology:     &mockTopologyService{},
		credentials: &mockCredentialService{
			creds: &AppCredentials{APIKey: "key-value", APIKeyID: "key-id", AppID: "app-id"},
		},
		publisher: &mockPublisher{},
	}

	// Zero backoff keeps retry tests instant.
	tc.cfg = &config.Config{
		OnboardInProgressStatus: "in_progress",
		OnboardCompleteStatus:   "complete",
		SQSKeyValue:             "ingest-queue",
		Completion: config.CompletionConfig{
			MaxRetries:    0,
			BackoffFactor: 2,
		},
	}

	svc := NewOnboardingService(
		tc.apps, tc.refs, tc.attempts, tc.tasks,
		tc.connectivity, tc.topology, tc.credentials, tc.publisher,
		tc.cfg, zap.NewNop()).(*onboardingService)
	// Run the background phase inline so tests can assert on it.
	svc.runAsync = func(fn func()) { fn() }
	tc.service = svc
	return tc
}

func onboardingRequest(appName string) *models.OnboardingRequest {
	return &models.OnboardingRequest{
		AppName:            appName,
		TextEmbeddingModel: models.EmbeddingModel{ModelID: "titan-text", Dimension: 1024},
		AppDataSource: models.AppDataSource{
			Filestore: map[string][]models.FileSource{
				"s3": {{URL: "s3://bucket/data.csv"}},
			},
		},
	}
}

func TestOnboardNewApp(t *testing.T) {
	tc := setupOnboardingTest(t)

	result, err := tc.service.Onboard(context.Background(), onboardingRequest("sales"), false, "ref-1")
	require.NoError(t, err)

	assert.Equal(t, "key-value", result.APIKey)
	assert.Equal(t, "app-id", result.AppID)
	assert.Equal(t, "ref-1", result.ReferenceID)
	assert.Equal(t, "Datasource validation done. Onboarding in progress.", result.Message)

	require.Len(t, tc.refs.records, 1)
	assert.Equal(t, "sales", tc.refs.records[0].AppName)
	assert.Equal(t, "ref-1", tc.refs.records[0].ReferenceID)
	assert.Regexp(t, regexp.MustCompile(`^TSK-\d{5}-sales-Onboarding-\d{14}$`), tc.refs.records[0].TaskID)

	require.Len(t, tc.attempts.calls, 1)
	assert.Equal(t, attemptCall{appName: "sales", callType: "Onboarding"}, tc.attempts.calls[0])

	// The completion task is written before the response and marked
	// done once the background phase succeeds.
	require.Len(t, tc.tasks.created, 1)
	task := tc.tasks.created[0]
	assert.Equal(t, tc.refs.records[0].TaskID, task.TaskID)
	assert.Equal(t, "ref-1", task.ReferenceID)
	assert.Equal(t, []string{task.TaskID}, tc.tasks.completed)

	// Background phase: document persisted and downstream notified.
	require.Len(t, tc.apps.upserted, 1)
	app := tc.apps.upserted[0]
	assert.Equal(t, "in_progress", app.OnboardingStatus)
	assert.Equal(t, "key-value", app.APIKey)
	assert.Equal(t, "ingest-queue", app.SQSKey)
	assert.False(t, app.SearchEnabled)
	assert.True(t, app.MMSearchEnabled)

	require.Len(t, tc.publisher.published, 1)
	assert.Equal(t, "sales", tc.publisher.published[0].appName)
	assert.Nil(t, tc.publisher.published[0].previous, "first onboarding has no previous topology")
}

func TestOnboardExistingAppRejected(t *testing.T) {
	tc := setupOnboardingTest(t)
	tc.apps.apps["sales"] = &models.App{AppName: "sales"}

	_, err := tc.service.Onboard(context.Background(), onboardingRequest("sales"), false, "ref-1")

	assert.ErrorIs(t, err, apperrors.ErrAppExists)
	assert.Zero(t, tc.connectivity.called, "connectivity must not run for a duplicate onboarding")
	assert.Zero(t, tc.credentials.called)
}

func TestUpdateMissingAppRejected(t *testing.T) {
	tc := setupOnboardingTest(t)

	_, err := tc.service.Onboard(context.Background(), onboardingRequest("sales"), true, "ref-1")

	assert.ErrorIs(t, err, apperrors.ErrAppMissing)
	assert.Zero(t, tc.connectivity.called)
}

func TestConnectivityFailureStopsPipeline(t *testing.T) {
	tc := setupOnboardingTest(t)
	tc.connectivity.err = &apperrors.ConnectivityError{Errors: []string{"Error: Path 'x' does not exist in bucket 'b'"}}

	_, err := tc.service.Onboard(context.Background(), onboardingRequest("sales"), false, "ref-1")

	var connErr *apperrors.ConnectivityError
	require.ErrorAs(t, err, &connErr)
	assert.Zero(t, tc.credentials.called, "no credentials are provisioned for an unverifiable topology")
	assert.Empty(t, tc.refs.records)
	assert.Empty(t, tc.apps.upserted)
}

func TestAttemptRecordFailureRejectsRequest(t *testing.T) {
	tc := setupOnboardingTest(t)
	tc.attempts.err = errors.New("collection unavailable")

	_, err := tc.service.Onboard(context.Background(), onboardingRequest("sales"), false, "ref-1")

	assert.ErrorContains(t, err, "collection unavailable")
	assert.Zero(t, tc.connectivity.called, "the audit trail is written before any probing")
}

func TestTaskCreateFailureRejectsRequest(t *testing.T) {
	tc := setupOnboardingTest(t)
	tc.tasks.createErr = errors.New("collection unavailable")

	_, err := tc.service.Onboard(context.Background(), onboardingRequest("sales"), false, "ref-1")

	assert.ErrorContains(t, err, "collection unavailable")
	assert.Empty(t, tc.apps.upserted, "the background phase must not run without its outbox record")
}

func TestUpdateUnchangedTopologyCompletesWithoutNotify(t *testing.T) {
	tc := setupOnboardingTest(t)
	tc.apps.apps["sales"] = &models.App{AppName: "sales", APIKey: "key-value", APIKeyID: "key-id", AppID: "app-id"}
	tc.topology.changed = false

	_, err := tc.service.Onboard(context.Background(), onboardingRequest("sales"), true, "ref-1")
	require.NoError(t, err)

	require.Len(t, tc.apps.upserted, 1)
	assert.Equal(t, "complete", tc.apps.upserted[0].OnboardingStatus)
	assert.Empty(t, tc.publisher.published, "unchanged topology needs no downstream notification")
}

func TestUpdateChangedTopologyCarriesPrevious(t *testing.T) {
	tc := setupOnboardingTest(t)
	previous := models.AppDataSource{
		Filestore: map[string][]models.FileSource{"s3": {{URL: "s3://bucket/old.csv"}}},
	}
	tc.apps.apps["sales"] = &models.App{AppName: "sales"}
	tc.topology.changed = true
	tc.topology.previous = &previous

	_, err := tc.service.Onboard(context.Background(), onboardingRequest("sales"), true, "ref-1")
	require.NoError(t, err)

	require.Len(t, tc.attempts.calls, 1)
	assert.Equal(t, "Update", tc.attempts.calls[0].callType)

	require.Len(t, tc.publisher.published, 1)
	require.NotNil(t, tc.publisher.published[0].previous)
	assert.True(t, tc.publisher.published[0].previous.Equal(previous))
}

func TestBackgroundFailureMarksTaskFailed(t *testing.T) {
	tc := setupOnboardingTest(t)
	tc.topology.err = errors.New("store unavailable")

	_, err := tc.service.Onboard(context.Background(), onboardingRequest("sales"), false, "ref-1")
	require.NoError(t, err, "the client already got its acceptance; background failures stay internal")

	assert.Empty(t, tc.apps.upserted)
	assert.Empty(t, tc.publisher.published)
	require.Len(t, tc.tasks.created, 1)
	assert.Contains(t, tc.tasks.failed[tc.tasks.created[0].TaskID], "store unavailable")
}

func TestBackgroundPersistFailureSkipsNotify(t *testing.T) {
	tc := setupOnboardingTest(t)
	tc.apps.upsertErr = errors.New("write failed")

	_, err := tc.service.Onboard(context.Background(), onboardingRequest("sales"), false, "ref-1")
	require.NoError(t, err)

	assert.Empty(t, tc.publisher.published, "a topology that was never persisted must not be announced")
}

func TestBackgroundRetriesTransientFailure(t *testing.T) {
	tc := setupOnboardingTest(t)
	tc.cfg.Completion.MaxRetries = 3
	tc.topology.transientFailures = 2

	_, err := tc.service.Onboard(context.Background(), onboardingRequest("sales"), false, "ref-1")
	require.NoError(t, err)

	assert.Equal(t, 3, tc.topology.called, "two failing attempts and one successful one")
	require.Len(t, tc.apps.upserted, 1)
	require.Len(t, tc.tasks.created, 1)
	assert.Equal(t, []string{tc.tasks.created[0].TaskID}, tc.tasks.completed)
	assert.Empty(t, tc.tasks.failed)
}

func TestConcurrentOnboardForSameAppRejected(t *testing.T) {
	tc := setupOnboardingTest(t)
	require.True(t, tc.service.lease.acquire("sales"))

	_, err := tc.service.Onboard(context.Background(), onboardingRequest("sales"), false, "ref-1")

	assert.ErrorIs(t, err, apperrors.ErrOnboardInFlight)
	assert.Empty(t, tc.attempts.calls, "a raced request is rejected before any side effect")
}

func TestLeaseReleasedAfterCompletion(t *testing.T) {
	tc := setupOnboardingTest(t)

	_, err := tc.service.Onboard(context.Background(), onboardingRequest("sales"), false, "ref-1")
	require.NoError(t, err)

	assert.True(t, tc.service.lease.acquire("sales"), "the lease must be free once the background phase finished")
}

func TestLeaseReleasedAfterRejection(t *testing.T) {
	tc := setupOnboardingTest(t)
	tc.connectivity.err = &apperrors.ConnectivityError{Errors: []string{"Error: unreachable"}}

	_, err := tc.service.Onboard(context.Background(), onboardingRequest("sales"), false, "ref-1")
	require.Error(t, err)

	assert.True(t, tc.service.lease.acquire("sales"), "a rejected request must not leave the lease held")
}

func TestRecoverDrivesPendingTasks(t *testing.T) {
	tc := setupOnboardingTest(t)
	tc.tasks.pending = []models.CompletionTask{{
		TaskID:  "TSK-12345-sales-Onboarding-20260101000000",
		AppName: "sales",
		Request: *onboardingRequest("sales"),
		AppID:   "app-id",
		APIKey:  "key-value",
		Status:  models.TaskPending,
	}}

	require.NoError(t, tc.service.Recover(context.Background()))

	require.Len(t, tc.apps.upserted, 1)
	assert.Equal(t, "key-value", tc.apps.upserted[0].APIKey)
	assert.Equal(t, []string{"TSK-12345-sales-Onboarding-20260101000000"}, tc.tasks.completed)
}

func TestRecoverSkipsLeasedApps(t *testing.T) {
	tc := setupOnboardingTest(t)
	tc.tasks.pending = []models.CompletionTask{{
		TaskID:  "TSK-12345-sales-Onboarding-20260101000000",
		AppName: "sales",
		Request: *onboardingRequest("sales"),
	}}
	require.True(t, tc.service.lease.acquire("sales"))

	require.NoError(t, tc.service.Recover(context.Background()))

	assert.Empty(t, tc.apps.upserted, "a leased app's task belongs to the in-flight request")
}
