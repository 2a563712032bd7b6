package catalog

import (
	"context"
	"testing"
	"time"

	"rental-service/internal/engine"
	"rental-service/internal/ledger"
	"rental-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) (*Catalog, *ledger.Store) {
	t.Helper()
	store := ledger.NewStore(ledger.NewMemoryDriver())
	return NewCatalog(store, nil, Options{RetryBackoff: time.Millisecond}), store
}

func TestAddAndListProperties(t *testing.T) {
	cat, _ := newTestCatalog(t)
	ctx := context.Background()

	first, err := cat.AddProperty(ctx, &PropertyInput{Title: "Bedsitter", Location: "Ruiru", Price: 8000})
	require.NoError(t, err)
	assert.Equal(t, models.AvailabilityAvailable, first.Availability)
	assert.NotEmpty(t, first.ID)

	time.Sleep(2 * time.Millisecond)
	second, err := cat.AddProperty(ctx, &PropertyInput{Title: "Two bedroom", Location: "Thika", Price: 25000})
	require.NoError(t, err)

	props, err := cat.ListProperties(ctx)
	require.NoError(t, err)
	require.Len(t, props, 2)
	assert.Equal(t, second.ID, props[0].ID, "newest first")

	got, err := cat.GetProperty(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bedsitter", got.Title)
}

func TestUpdateProperty(t *testing.T) {
	cat, _ := newTestCatalog(t)
	ctx := context.Background()

	p, err := cat.AddProperty(ctx, &PropertyInput{Title: "Bedsitter", Location: "Ruiru", Price: 8000})
	require.NoError(t, err)

	updated, err := cat.UpdateProperty(ctx, p.ID, &PropertyInput{Title: "Studio", Price: 9000})
	require.NoError(t, err)
	assert.Equal(t, "Studio", updated.Title)
	assert.Equal(t, int64(9000), updated.Price)
	assert.Equal(t, "Ruiru", updated.Location, "unset fields keep old values")

	_, err = cat.UpdateProperty(ctx, "missing", &PropertyInput{Title: "X"})
	assert.Equal(t, engine.ReasonPropertyNotFound, engine.DenialReason(err))
}

func TestRemovePropertyBlockedByActiveBooking(t *testing.T) {
	cat, store := newTestCatalog(t)
	ctx := context.Background()

	p, err := cat.AddProperty(ctx, &PropertyInput{Title: "Bedsitter", Location: "Ruiru", Price: 8000})
	require.NoError(t, err)

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	tx.Doc().Bookings["b1"] = &models.BookingRequest{
		ID: "b1", PropertyID: p.ID, CustomerID: "254700000001",
		Status: models.BookingStatusRequested,
	}
	require.NoError(t, tx.Commit(ctx))

	err = cat.RemoveProperty(ctx, p.ID)
	assert.Equal(t, engine.ReasonPropertyHasBookings, engine.DenialReason(err))

	// Terminal bookings do not block removal.
	tx, err = store.Begin(ctx)
	require.NoError(t, err)
	tx.Doc().Bookings["b1"].Status = models.BookingStatusCancelled
	require.NoError(t, tx.Commit(ctx))

	require.NoError(t, cat.RemoveProperty(ctx, p.ID))
	_, err = cat.GetProperty(ctx, p.ID)
	assert.Equal(t, engine.ReasonPropertyNotFound, engine.DenialReason(err))
}

// conflictDriver always loses the CAS.
type conflictDriver struct {
	saves int
}

func (d *conflictDriver) Load(ctx context.Context) (*models.Ledger, error) {
	return models.NewLedger(), nil
}

func (d *conflictDriver) Save(ctx context.Context, expected int64, doc *models.Ledger) error {
	d.saves++
	return ledger.ErrConflict
}

func TestWriteRetryBudgetConfigurable(t *testing.T) {
	driver := &conflictDriver{}
	cat := NewCatalog(ledger.NewStore(driver), nil, Options{
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	})

	_, err := cat.AddProperty(context.Background(), &PropertyInput{Title: "Bedsitter", Location: "Ruiru", Price: 8000})
	assert.Equal(t, engine.ReasonConflictExhausted, engine.DenialReason(err))
	assert.Equal(t, 2, driver.saves, "attempts follow the configured budget")
}

func TestViewingRequestLifecycle(t *testing.T) {
	cat, _ := newTestCatalog(t)
	ctx := context.Background()

	p, err := cat.AddProperty(ctx, &PropertyInput{Title: "Bedsitter", Location: "Ruiru", Price: 8000})
	require.NoError(t, err)

	_, err = cat.CreateViewingRequest(ctx, &ViewingInput{PropertyID: "missing", CustomerID: "254700000001"})
	assert.Equal(t, engine.ReasonPropertyNotFound, engine.DenialReason(err))

	vr, err := cat.CreateViewingRequest(ctx, &ViewingInput{
		PropertyID: p.ID, CustomerID: "254700000001", CustomerName: "C1", Date: "2026-09-05",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ViewingStatusPending, vr.Status)

	approved, err := cat.ApproveViewingRequest(ctx, vr.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ViewingStatusApproved, approved.Status)

	list, err := cat.ListViewingRequests(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.ViewingStatusApproved, list[0].Status)
}
