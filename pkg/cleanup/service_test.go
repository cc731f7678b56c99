package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultmaven/faultmaven/ent/faultcase"
	"github.com/faultmaven/faultmaven/pkg/config"
	"github.com/faultmaven/faultmaven/pkg/database"
	"github.com/faultmaven/faultmaven/pkg/models"
	"github.com/faultmaven/faultmaven/pkg/services"
	testdb "github.com/faultmaven/faultmaven/test/database"
)

func setupCleanupServices(t *testing.T) (*database.Client, *services.CaseService, *services.EventService) {
	t.Helper()
	client := testdb.NewTestClient(t)
	return client, services.NewCaseService(client.Client), services.NewEventService(client.Client)
}

func retentionConfig() *config.RetentionConfig {
	return &config.RetentionConfig{
		Enabled:       true,
		PurgeAfter:    config.Duration(90 * 24 * time.Hour),
		SweepInterval: config.Duration(1 * time.Hour),
		EventTTL:      config.Duration(1 * time.Hour),
	}
}

// closeCaseAt force-closes a case with the given closed_at timestamp,
// bypassing the status state machine.
func closeCaseAt(t *testing.T, client *database.Client, caseID string, closedAt time.Time) {
	t.Helper()
	err := client.FaultCase.UpdateOneID(caseID).
		SetStatus(faultcase.StatusClosed).
		SetClosedAt(closedAt).
		Exec(context.Background())
	require.NoError(t, err)
}

func TestService_PurgesOldClosedCases(t *testing.T) {
	client, caseService, eventService := setupCleanupServices(t)
	ctx := context.Background()

	c, err := caseService.CreateCase(ctx, models.CreateCaseRequest{
		Title:       "stale incident",
		Description: "long since resolved",
		Owner:       "sre@example.com",
	})
	require.NoError(t, err)
	closeCaseAt(t, client, c.ID, time.Now().Add(-100*24*time.Hour))

	svc := NewService(retentionConfig(), caseService, eventService)
	svc.sweep(ctx)

	_, err = caseService.GetCase(ctx, c.ID)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestService_PreservesRecentClosedCases(t *testing.T) {
	client, caseService, eventService := setupCleanupServices(t)
	ctx := context.Background()

	c, err := caseService.CreateCase(ctx, models.CreateCaseRequest{
		Title:       "fresh closure",
		Description: "closed this morning",
		Owner:       "sre@example.com",
	})
	require.NoError(t, err)
	closeCaseAt(t, client, c.ID, time.Now())

	svc := NewService(retentionConfig(), caseService, eventService)
	svc.sweep(ctx)

	kept, err := caseService.GetCase(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, faultcase.StatusClosed, kept.Status)
}

func TestService_PreservesOpenCases(t *testing.T) {
	_, caseService, eventService := setupCleanupServices(t)
	ctx := context.Background()

	// Old but never closed: retention must not touch it.
	c, err := caseService.CreateCase(ctx, models.CreateCaseRequest{
		Title:       "lingering investigation",
		Description: "still being worked",
		Owner:       "sre@example.com",
	})
	require.NoError(t, err)

	svc := NewService(retentionConfig(), caseService, eventService)
	svc.sweep(ctx)

	_, err = caseService.GetCase(ctx, c.ID)
	assert.NoError(t, err)
}

func TestService_CleansExpiredEvents(t *testing.T) {
	client, caseService, eventService := setupCleanupServices(t)
	ctx := context.Background()

	c, err := caseService.CreateCase(ctx, models.CreateCaseRequest{
		Title:       "live case",
		Description: "has event history",
		Owner:       "sre@example.com",
	})
	require.NoError(t, err)

	_, err = client.Event.Create().
		SetCaseID(c.ID).
		SetEventType("turn.completed").
		SetPayload(map[string]interface{}{"case_id": c.ID}).
		SetCreatedAt(time.Now().Add(-2 * time.Hour)).
		Save(ctx)
	require.NoError(t, err)

	fresh, err := client.Event.Create().
		SetCaseID(c.ID).
		SetEventType("turn.completed").
		SetPayload(map[string]interface{}{"case_id": c.ID}).
		SetCreatedAt(time.Now()).
		Save(ctx)
	require.NoError(t, err)

	svc := NewService(retentionConfig(), caseService, eventService)
	svc.sweep(ctx)

	remaining, err := client.Event.Query().All(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, fresh.ID, remaining[0].ID)
}

func TestService_StartStop(t *testing.T) {
	_, caseService, eventService := setupCleanupServices(t)

	svc := NewService(retentionConfig(), caseService, eventService)
	svc.Start(context.Background())
	svc.Start(context.Background()) // second Start is a no-op
	svc.Stop()
}

func TestService_DisabledStartIsNoop(t *testing.T) {
	_, caseService, eventService := setupCleanupServices(t)

	cfg := retentionConfig()
	cfg.Enabled = false

	svc := NewService(cfg, caseService, eventService)
	svc.Start(context.Background())
	svc.Stop() // safe without a running loop
}
