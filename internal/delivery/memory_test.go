package delivery

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/odyssey-field/internal/shared"
)

type memoryState struct {
	orders      map[int64]Order
	deliveries  []Delivery
	allocations []Allocation
	nextID      int64
}

func (s memoryState) clone() memoryState {
	out := memoryState{orders: make(map[int64]Order, len(s.orders)), nextID: s.nextID}
	for id, o := range s.orders {
		o.Lines = append([]OrderLine(nil), o.Lines...)
		out.orders[id] = o
	}
	out.deliveries = append([]Delivery(nil), s.deliveries...)
	out.allocations = append([]Allocation(nil), s.allocations...)
	return out
}

// memoryRepo commits a transaction's copy of the state only when fn succeeds.
type memoryRepo struct {
	mu    sync.Mutex
	state memoryState

	// collisions makes the next N InsertDelivery calls fail with a unique violation.
	collisions int
	// failIncrementOn fails IncrementDelivered for the given line id.
	failIncrementOn int64
	txCount         int
	// beforeTx mutates the committed state as another writer would between
	// the service's read and its transaction.
	beforeTx func(*memoryState)
	// txDelay holds each transaction open to widen race windows.
	txDelay time.Duration
}

type memoryTx struct {
	repo  *memoryRepo
	state *memoryState
}

func newMemoryRepo(orders ...Order) *memoryRepo {
	repo := &memoryRepo{state: memoryState{orders: make(map[int64]Order), nextID: 1000}}
	for _, o := range orders {
		repo.state.orders[o.ID] = o
	}
	return repo
}

func (r *memoryRepo) order(id int64) Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.orders[id]
}

func (r *memoryRepo) seedDelivery(number string, orderID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.nextID++
	r.state.deliveries = append(r.state.deliveries, Delivery{ID: r.state.nextID, Number: number, OrderID: orderID, Status: StatusPrepared})
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r.txDelay > 0 {
		time.Sleep(r.txDelay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txCount++
	if r.beforeTx != nil {
		r.beforeTx(&r.state)
		r.beforeTx = nil
	}
	working := r.state.clone()
	if err := fn(ctx, &memoryTx{repo: r, state: &working}); err != nil {
		return err
	}
	r.state = working
	return nil
}

func (r *memoryRepo) GetOrder(ctx context.Context, id int64) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.state.orders[id]
	if !ok {
		return nil, shared.NewNotFound("order", id)
	}
	o.Lines = append([]OrderLine(nil), o.Lines...)
	return &o, nil
}

func (r *memoryRepo) GetDelivery(ctx context.Context, id int64) (*Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.state.deliveries {
		if d.ID == id {
			d.Allocations = r.state.allocationsFor(d.ID)
			return &d, nil
		}
	}
	return nil, shared.NewNotFound("delivery", id)
}

func (r *memoryRepo) ListDeliveries(ctx context.Context, orderID int64) ([]Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Delivery
	for _, d := range r.state.deliveries {
		if d.OrderID == orderID {
			d.Allocations = r.state.allocationsFor(d.ID)
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s *memoryState) allocationsFor(deliveryID int64) []Allocation {
	var out []Allocation
	for _, a := range s.allocations {
		if a.DeliveryID == deliveryID {
			out = append(out, a)
		}
	}
	return out
}

func (tx *memoryTx) HighestNumber(ctx context.Context, prefix string) (string, error) {
	re := regexp.MustCompile(NumberPattern(prefix))
	highest, best := "", -1
	for _, d := range tx.state.deliveries {
		if !re.MatchString(d.Number) {
			continue
		}
		if n := sequence(prefix, d.Number); n > best {
			highest, best = d.Number, n
		}
	}
	return highest, nil
}

func (tx *memoryTx) InsertDelivery(ctx context.Context, d Delivery) (Delivery, error) {
	if tx.repo.collisions > 0 {
		tx.repo.collisions--
		return Delivery{}, shared.Persistence("insert delivery", &pgconn.PgError{Code: "23505"})
	}
	for _, existing := range tx.state.deliveries {
		if existing.Number == d.Number {
			return Delivery{}, shared.Persistence("insert delivery", &pgconn.PgError{Code: "23505"})
		}
	}
	tx.state.nextID++
	d.ID = tx.state.nextID
	d.CreatedAt = time.Date(2026, time.February, 14, 10, 0, 0, 0, time.UTC)
	tx.state.deliveries = append(tx.state.deliveries, d)
	return d, nil
}

func (tx *memoryTx) InsertAllocation(ctx context.Context, a Allocation) (Allocation, error) {
	tx.state.nextID++
	a.ID = tx.state.nextID
	tx.state.allocations = append(tx.state.allocations, a)
	return a, nil
}

func (tx *memoryTx) IncrementDelivered(ctx context.Context, lineID int64, qty float64) error {
	if tx.repo.failIncrementOn == lineID {
		return shared.Persistence("increment delivered", errors.New("connection reset by peer"))
	}
	for id, o := range tx.state.orders {
		for i, line := range o.Lines {
			if line.ID != lineID {
				continue
			}
			if line.Delivered+qty > line.Ordered {
				return ErrRemainingExceeded
			}
			o.Lines[i].Delivered += qty
			tx.state.orders[id] = o
			return nil
		}
	}
	return shared.NewNotFound("order line", lineID)
}

func (tx *memoryTx) UpdateOrderStatus(ctx context.Context, orderID int64, status OrderStatus) error {
	o, ok := tx.state.orders[orderID]
	if !ok {
		return shared.NewNotFound("order", orderID)
	}
	o.Status = status
	tx.state.orders[orderID] = o
	return nil
}

type recordingLocker struct {
	mu   sync.Mutex
	keys []string
}

func (l *recordingLocker) Do(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	l.mu.Unlock()
	return fn(ctx)
}
