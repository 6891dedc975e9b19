package lifecycle_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"wheres-my-laundry/internal/lifecycle"
	"wheres-my-laundry/internal/orderservice/memstore"
	"wheres-my-laundry/pkg/logger"
	"wheres-my-laundry/pkg/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	branchID = "branch-1"
	employee = "emp-1"
	service  = "svc-wash"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg models.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, msg := range n.sent {
		out = append(out, msg.Title)
	}
	return out
}

type storeGuard struct{ store *memstore.Store }

func (g storeGuard) Authorize(ctx context.Context, actor, branch string) error {
	ok, err := g.store.IsAssigned(ctx, actor, branch)
	if err != nil {
		return err
	}
	if !ok {
		return lifecycle.ErrUnauthorized
	}
	return nil
}

type countingObserver struct {
	mu       sync.Mutex
	failures []string
}

func (o *countingObserver) Transitioned(models.Method, models.Status) {}
func (o *countingObserver) Notified(string)                           {}
func (o *countingObserver) SideEffectFailed(step string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, step)
}

// failingHistory refuses every archival.
type failingHistory struct{ *memstore.Store }

func (failingHistory) InsertHistory(context.Context, *models.OrderHistory) error {
	return errors.New("disk full")
}

// gatedHistory parks the first InsertHistory until release is closed, then
// fails it with err or lets it through.
type gatedHistory struct {
	*memstore.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	err     error
}

func newGatedHistory(s *memstore.Store, err error) *gatedHistory {
	return &gatedHistory{Store: s, entered: make(chan struct{}), release: make(chan struct{}), err: err}
}

func (g *gatedHistory) InsertHistory(ctx context.Context, h *models.OrderHistory) error {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	if g.err != nil {
		return g.err
	}
	return g.Store.InsertHistory(ctx, h)
}

// stuckCleanup archives normally but cannot delete the item or the order.
type stuckCleanup struct {
	*memstore.Store
	failItem bool
}

func (s stuckCleanup) DeleteItem(ctx context.Context, id string) error {
	if s.failItem {
		return errors.New("connection reset")
	}
	return s.Store.DeleteItem(ctx, id)
}

func (s stuckCleanup) DeleteOrder(context.Context, string) error {
	return errors.New("connection reset")
}

type fixture struct {
	store    *memstore.Store
	notifier *recordingNotifier
	observer *countingObserver
	engine   *lifecycle.Engine
	logs     *bytes.Buffer
}

func newFixture(t *testing.T, wrap func(*memstore.Store) lifecycle.Store) *fixture {
	t.Helper()

	store := memstore.New()
	store.Assign(branchID, employee)
	store.AddService(models.Service{ID: service, BranchID: branchID, Name: "Wash & Fold", PricePerKg: decimal.NewFromInt(30)})
	store.AddService(models.Service{ID: "svc-other", BranchID: "branch-2", Name: "Dry Clean", PricePerKg: decimal.NewFromInt(80)})

	var backend lifecycle.Store = store
	if wrap != nil {
		backend = wrap(store)
	}

	f := &fixture{
		store:    store,
		notifier: &recordingNotifier{},
		observer: &countingObserver{},
		logs:     &bytes.Buffer{},
	}
	clock := base()
	f.engine = lifecycle.NewEngine(backend, f.notifier, storeGuard{store}, logger.New("test", f.logs),
		lifecycle.WithObserver(f.observer),
		lifecycle.WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}),
	)
	return f
}

func base() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) }

func (f *fixture) createOrder(t *testing.T, method models.Method) *models.Order {
	t.Helper()
	customer, svc := "cust-1", service
	req := models.CreateOrderRequest{
		ServiceID:       &svc,
		CustomerID:      &customer,
		CustomerName:    "Maria Santos",
		CustomerContact: "09171234567",
		Method:          method,
	}
	if method.RequiresLocation() {
		req.DeliveryLocation = &models.Location{Address: "12 Rizal St, Quezon City", Latitude: 14.65, Longitude: 121.03}
	}
	o, err := f.engine.CreateManualOrder(context.Background(), employee, branchID, req)
	require.NoError(t, err)
	return o
}

func (f *fixture) weigh(t *testing.T, orderID string, kg, price string) *models.OrderItem {
	t.Helper()
	item, err := f.engine.RecordWeight(context.Background(), employee, orderID,
		decimal.RequireFromString(kg), service, decimal.RequireFromString(price))
	require.NoError(t, err)
	return item
}

func (f *fixture) markCollected(t *testing.T, o *models.Order) {
	t.Helper()
	require.NotNil(t, o.Item)
	ok, err := f.store.UpdateItemStatus(context.Background(), o.Item.ID, models.StatusWaitingForPickup, models.StatusCollected, nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func (f *fixture) queues(t *testing.T) lifecycle.Queues {
	t.Helper()
	q, err := f.engine.ListBranchOrders(context.Background(), employee, branchID)
	require.NoError(t, err)
	return q
}

func TestEngine_DropoffHappyPath(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	o := f.createOrder(t, models.MethodDropoff)
	q := f.queues(t)
	require.Len(t, q.Pending, 1)
	assert.Equal(t, o.ID, q.Pending[0].ID)

	item := f.weigh(t, o.ID, "5", "30")
	assert.Equal(t, models.StatusInProgress, item.Status)
	assert.Equal(t, "150.00", item.Subtotal.StringFixed(2))

	q = f.queues(t)
	assert.Empty(t, q.Pending)
	require.Len(t, q.Ongoing, 1)

	status, err := f.engine.AdvanceStatus(ctx, employee, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status)

	q = f.queues(t)
	assert.Empty(t, q.Pending)
	assert.Empty(t, q.Ongoing)
	require.Len(t, q.History, 1)
	h := q.History[0]
	assert.Equal(t, o.ID, h.OrderID)
	assert.Equal(t, "Wash & Fold", h.ServiceName)
	assert.True(t, h.Price.Equal(decimal.NewFromInt(150)))
	assert.True(t, h.Price.Equal(h.Weight.Mul(h.PricePerUnit).Round(2)))

	orders, items, history := f.store.Counts()
	assert.Equal(t, 0, orders)
	assert.Equal(t, 0, items)
	assert.Equal(t, 1, history)

	assert.Equal(t, []string{"Order Confirmed", "Order Completed"}, f.notifier.titles())
}

func TestEngine_DeliveryPathAndNotifications(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	o := f.createOrder(t, models.MethodDelivery)
	item := f.weigh(t, o.ID, "3.5", "40")

	var seen []models.Status
	for i := 0; i < 3; i++ {
		status, err := f.engine.AdvanceStatus(ctx, employee, item.ID)
		require.NoError(t, err)
		seen = append(seen, status)
	}
	assert.Equal(t, []models.Status{
		models.StatusReadyForDelivery, models.StatusOutForDelivery, models.StatusCompleted,
	}, seen)

	assert.Equal(t, []string{
		"Order Confirmed", "Ready for Delivery", "Order is Being Delivered", "Order Completed",
	}, f.notifier.titles())

	out := f.notifier.sent[2]
	require.NotNil(t, out.Payload.DeliveryLocation)
	assert.InDelta(t, 14.65, out.Payload.DeliveryLocation.Latitude, 1e-9)
}

func TestEngine_PickupRequiresCollection(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	o := f.createOrder(t, models.MethodPickup)
	require.NotNil(t, o.Item)
	assert.Equal(t, models.StatusWaitingForPickup, o.Item.Status)

	q := f.queues(t)
	require.Len(t, q.AwaitingPickup, 1)
	assert.Empty(t, q.Pending)

	_, err := f.engine.RecordWeight(ctx, employee, o.ID, decimal.NewFromInt(4), service, decimal.NewFromInt(30))
	require.ErrorIs(t, err, lifecycle.ErrPrecondition)
	assert.Contains(t, err.Error(), "not yet collected")

	status, err := f.engine.AdvanceStatus(ctx, employee, o.Item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaitingForPickup, status)

	f.markCollected(t, o)
	q = f.queues(t)
	require.Len(t, q.Pending, 1)
	assert.Empty(t, q.AwaitingPickup)

	item := f.weigh(t, o.ID, "4", "30")
	assert.Equal(t, o.Item.ID, item.ID)
	assert.Equal(t, models.StatusInProgress, item.Status)

	status, err = f.engine.AdvanceStatus(ctx, employee, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReadyForDelivery, status)

	status, err = f.engine.AdvanceStatus(ctx, employee, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status)

	assert.Equal(t, []string{"Order Confirmed", "Ready for Return", "Order Completed"}, f.notifier.titles())
}

func TestEngine_RecordWeightTwice(t *testing.T) {
	f := newFixture(t, nil)

	o := f.createOrder(t, models.MethodDropoff)
	f.weigh(t, o.ID, "2", "30")

	_, err := f.engine.RecordWeight(context.Background(), employee, o.ID, decimal.NewFromInt(2), service, decimal.NewFromInt(30))
	assert.ErrorIs(t, err, lifecycle.ErrPrecondition)
}

func TestEngine_RecordWeightValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	o := f.createOrder(t, models.MethodDropoff)

	tests := []struct {
		name    string
		weight  decimal.Decimal
		service string
		price   decimal.Decimal
		want    error
	}{
		{"zero weight", decimal.Zero, service, decimal.NewFromInt(30), lifecycle.ErrPrecondition},
		{"negative price", decimal.NewFromInt(1), service, decimal.NewFromInt(-1), lifecycle.ErrPrecondition},
		{"missing service", decimal.NewFromInt(1), "", decimal.NewFromInt(30), lifecycle.ErrPrecondition},
		{"unknown service", decimal.NewFromInt(1), "svc-nope", decimal.NewFromInt(30), lifecycle.ErrPrecondition},
		{"foreign service", decimal.NewFromInt(1), "svc-other", decimal.NewFromInt(30), lifecycle.ErrPrecondition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.RecordWeight(ctx, employee, o.ID, tt.weight, tt.service, tt.price)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := f.engine.RecordWeight(ctx, employee, "missing", decimal.NewFromInt(1), service, decimal.NewFromInt(30))
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)

	// Free service is allowed.
	item, err := f.engine.RecordWeight(ctx, employee, o.ID, decimal.NewFromInt(1), service, decimal.Zero)
	require.NoError(t, err)
	assert.True(t, item.Subtotal.IsZero())
}

func TestEngine_SubtotalRounding(t *testing.T) {
	f := newFixture(t, nil)
	o := f.createOrder(t, models.MethodDropoff)

	item := f.weigh(t, o.ID, "2.333", "33.33")
	assert.Equal(t, "77.76", item.Subtotal.StringFixed(2))
}

func TestEngine_Unauthorized(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	o := f.createOrder(t, models.MethodDropoff)
	item := f.weigh(t, o.ID, "1", "30")

	_, err := f.engine.ListBranchOrders(ctx, "stranger", branchID)
	assert.ErrorIs(t, err, lifecycle.ErrUnauthorized)

	_, err = f.engine.RecordWeight(ctx, "stranger", o.ID, decimal.NewFromInt(1), service, decimal.NewFromInt(30))
	assert.ErrorIs(t, err, lifecycle.ErrUnauthorized)

	_, err = f.engine.AdvanceStatus(ctx, "stranger", item.ID)
	assert.ErrorIs(t, err, lifecycle.ErrUnauthorized)

	_, err = f.engine.CreateManualOrder(ctx, "stranger", branchID, models.CreateOrderRequest{CustomerName: "X", Method: models.MethodDropoff})
	assert.ErrorIs(t, err, lifecycle.ErrUnauthorized)

	got, err := f.store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, got.Status)
}

func TestEngine_CreateManualOrderValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.engine.CreateManualOrder(ctx, employee, branchID, models.CreateOrderRequest{CustomerName: "Ana", Method: models.MethodDelivery})
	assert.ErrorIs(t, err, lifecycle.ErrPrecondition)

	_, err = f.engine.CreateManualOrder(ctx, employee, branchID, models.CreateOrderRequest{CustomerName: " ", Method: models.MethodDropoff})
	assert.ErrorIs(t, err, lifecycle.ErrPrecondition)

	_, err = f.engine.CreateManualOrder(ctx, employee, branchID, models.CreateOrderRequest{CustomerName: "Ana", Method: "teleport"})
	assert.ErrorIs(t, err, lifecycle.ErrPrecondition)

	foreign := "svc-other"
	_, err = f.engine.CreateManualOrder(ctx, employee, branchID, models.CreateOrderRequest{CustomerName: "Ana", Method: models.MethodDropoff, ServiceID: &foreign})
	assert.ErrorIs(t, err, lifecycle.ErrPrecondition)

	_, err = f.engine.CreateManualOrder(ctx, employee, branchID, models.CreateOrderRequest{CustomerName: "Ana", Method: models.MethodDropoff})
	assert.ErrorIs(t, err, lifecycle.ErrPrecondition, "service is required")

	wash := service
	o, err := f.engine.CreateManualOrder(ctx, employee, branchID, models.CreateOrderRequest{CustomerName: "Ana", Method: models.MethodDropoff, ServiceID: &wash})
	require.NoError(t, err)
	assert.Nil(t, o.Item)
	assert.Empty(t, f.notifier.titles())

	log := f.store.StatusLog(o.ID)
	require.Len(t, log, 1)
	assert.Equal(t, employee, log[0].ChangedBy)
}

func TestEngine_AdvanceUnknownItem(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.engine.AdvanceStatus(context.Background(), employee, "nope")
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)
}

func TestEngine_NotificationFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t, nil)
	f.notifier.err = errors.New("gateway down")

	o := f.createOrder(t, models.MethodDropoff)
	item := f.weigh(t, o.ID, "5", "30")

	status, err := f.engine.AdvanceStatus(context.Background(), employee, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status)
	assert.Contains(t, f.observer.failures, "notify")
	assert.Contains(t, f.logs.String(), "notification_failed")

	q := f.queues(t)
	assert.Len(t, q.History, 1)
}

func TestEngine_HistoryFailureRollsBack(t *testing.T) {
	f := newFixture(t, func(s *memstore.Store) lifecycle.Store { return failingHistory{s} })
	ctx := context.Background()

	o := f.createOrder(t, models.MethodDropoff)
	item := f.weigh(t, o.ID, "5", "30")

	_, err := f.engine.AdvanceStatus(ctx, employee, item.ID)
	require.ErrorIs(t, err, lifecycle.ErrStore)

	got, err := f.store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, got.Status)
	assert.Nil(t, got.CompletedAt)

	_, _, history := f.store.Counts()
	assert.Equal(t, 0, history)
	assert.Equal(t, []string{"Order Confirmed"}, f.notifier.titles())
	assert.Contains(t, f.logs.String(), "history_insert_failed")
}

func TestEngine_ConcurrentCompletion(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	o := f.createOrder(t, models.MethodDropoff)
	item := f.weigh(t, o.ID, "5", "30")

	var wg sync.WaitGroup
	results := make([]error, 2)
	start := make(chan struct{})
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, results[i] = f.engine.AdvanceStatus(ctx, employee, item.ID)
		}(i)
	}
	close(start)
	wg.Wait()

	_, _, history := f.store.Counts()
	assert.Equal(t, 1, history)

	var okCount int
	for _, err := range results {
		if err == nil {
			okCount++
			continue
		}
		assert.ErrorIs(t, err, lifecycle.ErrNotFound)
	}
	assert.Equal(t, 1, okCount)

	completed := 0
	for _, title := range f.notifier.titles() {
		if title == "Order Completed" {
			completed++
		}
	}
	assert.Equal(t, 1, completed)
}

func TestEngine_AdvanceDuringArchivalSeesNotFound(t *testing.T) {
	var gate *gatedHistory
	f := newFixture(t, func(s *memstore.Store) lifecycle.Store {
		gate = newGatedHistory(s, nil)
		return gate
	})
	ctx := context.Background()

	o := f.createOrder(t, models.MethodDropoff)
	item := f.weigh(t, o.ID, "5", "30")

	type result struct {
		status models.Status
		err    error
	}
	winner := make(chan result, 1)
	go func() {
		status, err := f.engine.AdvanceStatus(ctx, employee, item.ID)
		winner <- result{status, err}
	}()
	<-gate.entered

	status, err := f.engine.AdvanceStatus(ctx, employee, item.ID)
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)
	assert.Empty(t, status)

	close(gate.release)
	first := <-winner
	require.NoError(t, first.err)
	assert.Equal(t, models.StatusCompleted, first.status)

	_, _, history := f.store.Counts()
	assert.Equal(t, 1, history)
}

func TestEngine_AdvanceDuringFailedArchivalIsNotSuccess(t *testing.T) {
	var gate *gatedHistory
	f := newFixture(t, func(s *memstore.Store) lifecycle.Store {
		gate = newGatedHistory(s, errors.New("disk full"))
		return gate
	})
	ctx := context.Background()

	o := f.createOrder(t, models.MethodDropoff)
	item := f.weigh(t, o.ID, "5", "30")

	winner := make(chan error, 1)
	go func() {
		_, err := f.engine.AdvanceStatus(ctx, employee, item.ID)
		winner <- err
	}()
	<-gate.entered

	_, err := f.engine.AdvanceStatus(ctx, employee, item.ID)
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)

	close(gate.release)
	assert.ErrorIs(t, <-winner, lifecycle.ErrStore)

	got, err := f.store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, got.Status)
}

func TestEngine_AdvanceLingeringCompletedItem(t *testing.T) {
	f := newFixture(t, func(s *memstore.Store) lifecycle.Store { return stuckCleanup{Store: s, failItem: true} })
	ctx := context.Background()

	o := f.createOrder(t, models.MethodDropoff)
	item := f.weigh(t, o.ID, "5", "30")

	status, err := f.engine.AdvanceStatus(ctx, employee, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status)
	assert.Contains(t, f.observer.failures, "delete_item")

	_, err = f.engine.AdvanceStatus(ctx, employee, item.ID)
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)
}

func TestEngine_RecordWeightRefusesArchivedOrder(t *testing.T) {
	f := newFixture(t, func(s *memstore.Store) lifecycle.Store { return stuckCleanup{Store: s} })
	ctx := context.Background()

	o := f.createOrder(t, models.MethodDropoff)
	item := f.weigh(t, o.ID, "5", "30")
	_, err := f.engine.AdvanceStatus(ctx, employee, item.ID)
	require.NoError(t, err)

	_, err = f.store.GetOrder(ctx, o.ID)
	require.NoError(t, err, "order row survives the failed cleanup")

	_, err = f.engine.RecordWeight(ctx, employee, o.ID, decimal.NewFromInt(3), service, decimal.NewFromInt(30))
	assert.ErrorIs(t, err, lifecycle.ErrPrecondition)
	assert.Contains(t, err.Error(), "already been completed")

	_, items, _ := f.store.Counts()
	assert.Zero(t, items)
}

func TestEngine_SequentialAdvanceAfterArchival(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	o := f.createOrder(t, models.MethodDropoff)
	item := f.weigh(t, o.ID, "5", "30")

	_, err := f.engine.AdvanceStatus(ctx, employee, item.ID)
	require.NoError(t, err)

	_, err = f.engine.AdvanceStatus(ctx, employee, item.ID)
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)
}

func TestEngine_HistoryLimit(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for i := 0; i < 22; i++ {
		o := f.createOrder(t, models.MethodDropoff)
		item := f.weigh(t, o.ID, fmt.Sprintf("%d", i+1), "30")
		_, err := f.engine.AdvanceStatus(ctx, employee, item.ID)
		require.NoError(t, err)
	}

	q := f.queues(t)
	require.Len(t, q.History, lifecycle.DefaultHistoryLimit)
	assert.True(t, q.History[0].Weight.Equal(decimal.NewFromInt(22)))
}

func TestEngine_WalkInWithoutCustomerIsSilent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	wash := service
	o, err := f.engine.CreateManualOrder(ctx, employee, branchID, models.CreateOrderRequest{CustomerName: "Walk In", Method: models.MethodDropoff, ServiceID: &wash})
	require.NoError(t, err)

	item := f.weigh(t, o.ID, "1", "30")
	_, err = f.engine.AdvanceStatus(ctx, employee, item.ID)
	require.NoError(t, err)

	assert.Empty(t, f.notifier.titles())
}
