package delivery

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-field/internal/ledger"
	"github.com/odyssey-erp/odyssey-field/internal/platform/lock"
	"github.com/odyssey-erp/odyssey-field/internal/shared"
)

func sampleOrder() Order {
	return Order{
		ID:         1,
		Number:     "CMD-2602-014",
		ClientName: "Hydro Nord",
		Status:     OrderStatusDraft,
		Lines: []OrderLine{
			{ID: 11, OrderID: 1, ProductCode: "CBL-10", Description: "Cable 10mm", Unit: "m", Ordered: 10, UnitPrice: 4.5},
			{ID: 12, OrderID: 1, ProductCode: "PMP-1", Description: "Pump", Unit: "pc", Ordered: 2, UnitPrice: 320},
		},
	}
}

func newTestService(repo *memoryRepo, locker Locker) *Service {
	svc := NewService(repo, locker, Config{NumberRetries: 2}, nil, nil)
	svc.now = func() time.Time { return time.Date(2026, time.February, 14, 9, 30, 0, 0, time.UTC) }
	return svc
}

func TestCreateDeliveryPersistsAllocationsAndStatus(t *testing.T) {
	repo := newMemoryRepo(sampleOrder())
	locker := &recordingLocker{}
	svc := newTestService(repo, locker)

	d, err := svc.CreateDelivery(context.Background(), CreateDeliveryRequest{
		OrderID: 1,
		Carrier: Carrier{Company: "TransExpress", TrackingNumber: "TX-1"},
		Lines:   []SelectedLine{{OrderLineID: 11, Quantity: 4}, {OrderLineID: 12, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, "BL-2602-001", d.Number)
	assert.Equal(t, StatusPrepared, d.Status)
	assert.Equal(t, time.Date(2026, time.February, 14, 0, 0, 0, 0, time.UTC), d.DeliveryDate)
	require.Len(t, d.Allocations, 2)
	assert.Equal(t, 4.0, d.Allocations[0].Quantity)
	assert.Equal(t, []string{"delivery:number:BL-2602:lock"}, locker.keys)

	order := repo.order(1)
	assert.Equal(t, OrderStatusPartial, order.Status)
	assert.Equal(t, 4.0, order.Lines[0].Delivered)
	assert.Equal(t, 2.0, order.Lines[1].Delivered)
}

func TestCreateDeliveryNumbersSequentiallyWithinMonth(t *testing.T) {
	repo := newMemoryRepo(sampleOrder())
	repo.seedDelivery("BL-2602-007", 1)
	repo.seedDelivery("BL-2601-030", 1)
	svc := newTestService(repo, nil)
	ctx := context.Background()

	first, err := svc.CreateDelivery(ctx, CreateDeliveryRequest{OrderID: 1, Lines: []SelectedLine{{OrderLineID: 11, Quantity: 1}}})
	require.NoError(t, err)
	second, err := svc.CreateDelivery(ctx, CreateDeliveryRequest{OrderID: 1, Lines: []SelectedLine{{OrderLineID: 11, Quantity: 1}}})
	require.NoError(t, err)

	assert.Equal(t, "BL-2602-008", first.Number)
	assert.Equal(t, "BL-2602-009", second.Number)
}

func TestCreateDeliveryValidation(t *testing.T) {
	cases := []struct {
		name   string
		lines  []SelectedLine
		reason string
	}{
		{"no lines", nil, "no items selected"},
		{"foreign line", []SelectedLine{{OrderLineID: 99, Quantity: 1}}, "does not belong to order 1"},
		{"zero quantity", []SelectedLine{{OrderLineID: 11, Quantity: 0}}, "greater than zero"},
		{"negative quantity", []SelectedLine{{OrderLineID: 11, Quantity: -2}}, "greater than zero"},
		{"rounds to zero", []SelectedLine{{OrderLineID: 11, Quantity: 0.00001}}, "greater than zero"},
		{"exceeds remaining", []SelectedLine{{OrderLineID: 12, Quantity: 3}}, "remaining quantity exceeded: requested 3, remaining 2"},
		{"duplicate line", []SelectedLine{{OrderLineID: 11, Quantity: 1}, {OrderLineID: 11, Quantity: 1}}, "selected more than once"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMemoryRepo(sampleOrder())
			svc := newTestService(repo, nil)

			_, err := svc.CreateDelivery(context.Background(), CreateDeliveryRequest{OrderID: 1, Lines: tc.lines})
			require.ErrorIs(t, err, shared.ErrValidation)
			assert.Contains(t, err.Error(), tc.reason)

			order := repo.order(1)
			assert.Equal(t, OrderStatusDraft, order.Status)
			assert.Zero(t, order.Lines[0].Delivered)
			assert.Zero(t, repo.txCount)
		})
	}
}

func TestCreateDeliveryUnknownOrder(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)
	_, err := svc.CreateDelivery(context.Background(), CreateDeliveryRequest{OrderID: 5, Lines: []SelectedLine{{OrderLineID: 1, Quantity: 1}}})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateDeliveryRollsBackOnPersistenceFailure(t *testing.T) {
	repo := newMemoryRepo(sampleOrder())
	repo.failIncrementOn = 12
	svc := newTestService(repo, nil)

	_, err := svc.CreateDelivery(context.Background(), CreateDeliveryRequest{
		OrderID: 1,
		Lines:   []SelectedLine{{OrderLineID: 11, Quantity: 4}, {OrderLineID: 12, Quantity: 1}},
	})
	require.ErrorIs(t, err, shared.ErrPersistence)

	order := repo.order(1)
	assert.Equal(t, OrderStatusDraft, order.Status)
	assert.Zero(t, order.Lines[0].Delivered)
	deliveries, err := repo.ListDeliveries(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, deliveries)
}

func TestCreateDeliveryRetriesNumberCollision(t *testing.T) {
	repo := newMemoryRepo(sampleOrder())
	repo.collisions = 2
	svc := newTestService(repo, nil)

	d, err := svc.CreateDelivery(context.Background(), CreateDeliveryRequest{OrderID: 1, Lines: []SelectedLine{{OrderLineID: 11, Quantity: 1}}})
	require.NoError(t, err)
	assert.Equal(t, "BL-2602-001", d.Number)
	assert.Equal(t, 3, repo.txCount)
}

func TestCreateDeliveryGivesUpAfterRetries(t *testing.T) {
	repo := newMemoryRepo(sampleOrder())
	repo.collisions = 5
	svc := newTestService(repo, nil)

	_, err := svc.CreateDelivery(context.Background(), CreateDeliveryRequest{OrderID: 1, Lines: []SelectedLine{{OrderLineID: 11, Quantity: 1}}})
	require.ErrorIs(t, err, shared.ErrPersistence)
	assert.True(t, shared.IsUniqueViolation(err))
	assert.Equal(t, 3, repo.txCount)
}

func TestDeliveredNeverExceedsOrdered(t *testing.T) {
	repo := newMemoryRepo(sampleOrder())
	svc := newTestService(repo, nil)
	ctx := context.Background()

	for _, qty := range []float64{3, 3, 4} {
		_, err := svc.CreateDelivery(ctx, CreateDeliveryRequest{OrderID: 1, Lines: []SelectedLine{{OrderLineID: 11, Quantity: qty}}})
		require.NoError(t, err)
	}
	_, err := svc.CreateDelivery(ctx, CreateDeliveryRequest{OrderID: 1, Lines: []SelectedLine{{OrderLineID: 11, Quantity: 0.5}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	order := repo.order(1)
	assert.Equal(t, 10.0, order.Lines[0].Delivered)

	deliveries, err := svc.ListDeliveries(ctx, 1)
	require.NoError(t, err)
	require.Len(t, deliveries, 3)
	var total float64
	for _, d := range deliveries {
		for _, a := range d.Allocations {
			total += a.Quantity
		}
	}
	assert.Equal(t, order.Lines[0].Delivered, total)
}

func TestFullDeliveryDoesNotCompleteOrder(t *testing.T) {
	repo := newMemoryRepo(sampleOrder())
	svc := newTestService(repo, nil)
	ctx := context.Background()

	_, err := svc.CreateDelivery(ctx, CreateDeliveryRequest{
		OrderID: 1,
		Lines:   []SelectedLine{{OrderLineID: 11, Quantity: 10}, {OrderLineID: 12, Quantity: 2}},
	})
	require.NoError(t, err)

	summary, err := svc.OrderStatus(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusComplete, summary.Status)
	assert.Equal(t, 100, summary.Percentage)
	assert.Equal(t, OrderStatusPartial, repo.order(1).Status)

	order, err := svc.CompleteOrder(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusComplete, order.Status)
	assert.Equal(t, OrderStatusComplete, repo.order(1).Status)

	again, err := svc.CompleteOrder(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusComplete, again.Status)
}

func TestGetDeliveryNotFound(t *testing.T) {
	svc := newTestService(newMemoryRepo(sampleOrder()), nil)
	_, err := svc.GetDelivery(context.Background(), 404)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.ListDeliveries(context.Background(), 404)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateDeliveryRoundsQuantitiesToStoredScale(t *testing.T) {
	repo := newMemoryRepo(sampleOrder())
	svc := newTestService(repo, nil)

	d, err := svc.CreateDelivery(context.Background(), CreateDeliveryRequest{
		OrderID: 1,
		Lines:   []SelectedLine{{OrderLineID: 11, Quantity: 0.33333}},
	})
	require.NoError(t, err)
	require.Len(t, d.Allocations, 1)
	assert.Equal(t, 0.3333, d.Allocations[0].Quantity)
	assert.Equal(t, 0.3333, repo.order(1).Lines[0].Delivered)
}

func TestCreateDeliveryAcceptsQuantityRoundingDownToRemaining(t *testing.T) {
	repo := newMemoryRepo(sampleOrder())
	svc := newTestService(repo, nil)

	_, err := svc.CreateDelivery(context.Background(), CreateDeliveryRequest{
		OrderID: 1,
		Lines:   []SelectedLine{{OrderLineID: 12, Quantity: 2.00001}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2.0, repo.order(1).Lines[1].Delivered)
}

func TestCreateDeliveryLostRaceIsLineValidation(t *testing.T) {
	repo := newMemoryRepo(sampleOrder())
	// another writer delivers 8 of line 11 after the service read the order
	repo.beforeTx = func(state *memoryState) {
		o := state.orders[1]
		o.Lines = append([]OrderLine(nil), o.Lines...)
		o.Lines[0].Delivered = 8
		state.orders[1] = o
	}
	svc := newTestService(repo, nil)

	_, err := svc.CreateDelivery(context.Background(), CreateDeliveryRequest{
		OrderID: 1,
		Lines:   []SelectedLine{{OrderLineID: 12, Quantity: 1}, {OrderLineID: 11, Quantity: 5}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	assert.NotErrorIs(t, err, shared.ErrPersistence)
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, int64(11), verr.LineID)

	order := repo.order(1)
	assert.Equal(t, 8.0, order.Lines[0].Delivered)
	assert.Zero(t, order.Lines[1].Delivered)
	assert.Equal(t, OrderStatusDraft, order.Status)
	assert.Empty(t, repo.state.deliveries)
	assert.Empty(t, repo.state.allocations)
}

func TestCreateDeliverySkipsMalformedNumbers(t *testing.T) {
	repo := newMemoryRepo(sampleOrder())
	repo.seedDelivery("BL-2602-001", 1)
	repo.seedDelivery("BL-2602-abc", 1)
	svc := newTestService(repo, nil)

	d, err := svc.CreateDelivery(context.Background(), CreateDeliveryRequest{OrderID: 1, Lines: []SelectedLine{{OrderLineID: 11, Quantity: 1}}})
	require.NoError(t, err)
	assert.Equal(t, "BL-2602-002", d.Number)
	assert.Equal(t, 1, repo.txCount)
}

func newRedisLocker(t *testing.T, opts lock.Options) *lock.Locker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.New(client, opts)
}

func TestConcurrentDeliveriesWaitForNumberLock(t *testing.T) {
	repo := newMemoryRepo(sampleOrder())
	repo.txDelay = 100 * time.Millisecond
	locker := newRedisLocker(t, lock.Options{MaxRetries: 40, RetryInterval: 25 * time.Millisecond})
	svc := newTestService(repo, locker)

	var wg sync.WaitGroup
	numbers := make([]string, 2)
	errs := make([]error, 2)
	for i := range numbers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := svc.CreateDelivery(context.Background(), CreateDeliveryRequest{OrderID: 1, Lines: []SelectedLine{{OrderLineID: 11, Quantity: 4}}})
			errs[i] = err
			if err == nil {
				numbers[i] = d.Number
			}
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.ElementsMatch(t, []string{"BL-2602-001", "BL-2602-002"}, numbers)
	assert.Equal(t, 8.0, repo.order(1).Lines[0].Delivered)
}

func TestCreateDeliveryBusyLockIsRetryable(t *testing.T) {
	repo := newMemoryRepo(sampleOrder())
	locker := newRedisLocker(t, lock.Options{})
	svc := newTestService(repo, locker)
	ctx := context.Background()

	err := locker.Do(ctx, shared.DeliveryNumberLockKey("BL-2602"), time.Second, func(ctx context.Context) error {
		_, err := svc.CreateDelivery(ctx, CreateDeliveryRequest{OrderID: 1, Lines: []SelectedLine{{OrderLineID: 11, Quantity: 1}}})
		return err
	})
	require.ErrorIs(t, err, shared.ErrBusy)
	assert.NotErrorIs(t, err, shared.ErrPersistence)
	assert.Zero(t, repo.txCount)
}
