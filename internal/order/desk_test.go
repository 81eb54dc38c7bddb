package order

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wellywell/orderdesk/internal/sequence"
	"github.com/wellywell/orderdesk/internal/store"
	"github.com/wellywell/orderdesk/internal/store/filestore"
	"github.com/wellywell/orderdesk/internal/store/memstore"
	"github.com/wellywell/orderdesk/internal/types"
	"github.com/wellywell/orderdesk/internal/validate"
	"gotest.tools/v3/fs"
)

// flakyBackend fails record writes while failPuts is set.
type flakyBackend struct {
	*memstore.Store
	mu       sync.Mutex
	failPuts bool
}

func (f *flakyBackend) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPuts = v
}

func (f *flakyBackend) Put(ctx context.Context, id string, record []byte) error {
	f.mu.Lock()
	fail := f.failPuts
	f.mu.Unlock()
	if fail {
		return store.NewStorageError("put", id, errors.New("disk full"))
	}
	return f.Store.Put(ctx, id, record)
}

func newTestDesk(t *testing.T, backend store.Backend) (*Desk, chan types.Decision) {
	t.Helper()
	queue := NewDecisionQueue()
	d := NewDesk(backend, sequence.NewAllocator(backend), queue)
	return d, queue
}

func burgerSubmission() *validate.Submission {
	return &validate.Submission{
		Items: []types.Item{{Name: "Burger", Qty: 2, Price: 3.5}},
		Mode:  types.PickupMode,
	}
}

func backends(t *testing.T) map[string]store.Backend {
	dir := fs.NewDir(t, "desk")
	t.Cleanup(dir.Remove)
	fileBackend, err := filestore.New(dir.Path())
	require.NoError(t, err)

	return map[string]store.Backend{
		"memory": memstore.New(),
		"file":   fileBackend,
	}
}

func TestSubmitAndApprove(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			d, queue := newTestDesk(t, backend)

			o, err := d.Submit(ctx, burgerSubmission())
			require.NoError(t, err)
			assert.Equal(t, "1", o.ID)
			assert.Equal(t, int64(1), o.Number)
			assert.Equal(t, types.PendingStatus, o.Status)

			view, err := d.Check(ctx, "1")
			require.NoError(t, err)
			assert.Equal(t, StatusView{Status: "pending"}, view)

			changed, err := d.Act(ctx, "1", types.ApproveAction)
			require.NoError(t, err)
			assert.True(t, changed)

			view, err = d.Check(ctx, "1")
			require.NoError(t, err)
			assert.Equal(t, StatusView{Status: "approved", OrderNumber: int64(1)}, view)

			select {
			case decision := <-queue:
				assert.Equal(t, "1", decision.OrderID)
				assert.Equal(t, types.ApprovedStatus, decision.Status)
				assert.Equal(t, int64(1), decision.Number)
			default:
				t.Fatal("expected a decision event")
			}
		})
	}
}

func TestSubmitInvalidCreatesNothing(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()
	d, _ := newTestDesk(t, backend)

	_, err := d.Submit(ctx, &validate.Submission{Mode: types.PickupMode})
	assert.ErrorIs(t, err, validate.ErrInvalidInput)

	all, err := backend.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	for _, id := range []string{"0", "1", "2"} {
		view, err := d.Check(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusView{Status: "missing"}, view)
	}

	// no number was consumed
	o, err := d.Submit(ctx, burgerSubmission())
	require.NoError(t, err)
	assert.Equal(t, "1", o.ID)
}

func TestActUnknownOrderIsNoop(t *testing.T) {
	ctx := context.Background()
	d, queue := newTestDesk(t, memstore.New())

	_, err := d.Submit(ctx, burgerSubmission())
	require.NoError(t, err)

	for _, id := range []string{"999", "", "../1"} {
		changed, err := d.Act(ctx, id, types.ApproveAction)
		assert.NoError(t, err)
		assert.False(t, changed)
	}

	list, err := d.AdminList(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, types.PendingStatus, list[0].Status)
	assert.Empty(t, queue)
}

func TestForwardOnlyTransitions(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name  string
		acts  []types.Action
		want  types.Status
		views []bool
	}{
		{"approve twice", []types.Action{types.ApproveAction, types.ApproveAction}, types.ApprovedStatus, []bool{true, false}},
		{"approve then reject", []types.Action{types.ApproveAction, types.RejectAction}, types.ApprovedStatus, []bool{true, false}},
		{"reject then approve", []types.Action{types.RejectAction, types.ApproveAction}, types.RejectedStatus, []bool{true, false}},
		{"reject twice", []types.Action{types.RejectAction, types.RejectAction}, types.RejectedStatus, []bool{true, false}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d, _ := newTestDesk(t, memstore.New())
			submitted, err := d.Submit(ctx, burgerSubmission())
			require.NoError(t, err)

			var before *types.Order
			for i, act := range tc.acts {
				changed, err := d.Act(ctx, submitted.ID, act)
				require.NoError(t, err)
				assert.Equal(t, tc.views[i], changed)
				if i == 0 {
					before, err = d.records.Get(ctx, submitted.ID)
					require.NoError(t, err)
				}
			}

			after, err := d.records.Get(ctx, submitted.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.want, after.Status)
			assert.Equal(t, before, after)
			assert.Equal(t, submitted.Number, after.Number)
			assert.Equal(t, submitted.CreatedAt, after.CreatedAt)
			assert.Equal(t, submitted.Items, after.Items)
		})
	}
}

func TestConcurrentSubmitsGetDistinctNumbers(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			d, _ := newTestDesk(t, backend)

			const n = 50
			ids := make([]string, n)
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					o, err := d.Submit(ctx, burgerSubmission())
					if assert.NoError(t, err) {
						ids[i] = o.ID
					}
				}(i)
			}
			wg.Wait()

			seen := make(map[string]bool, n)
			for _, id := range ids {
				assert.False(t, seen[id], "duplicate id %s", id)
				seen[id] = true
			}

			list, err := d.AdminList(ctx)
			require.NoError(t, err)
			assert.Len(t, list, n)

			numbers := make([]int, 0, n)
			for _, o := range list {
				numbers = append(numbers, int(o.Number))
			}
			sort.Ints(numbers)
			for i, num := range numbers {
				assert.Equal(t, i+1, num)
			}
		})
	}
}

func TestSequentialSubmitsAreMonotonic(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDesk(t, memstore.New())

	var last int64
	for i := 0; i < 10; i++ {
		o, err := d.Submit(ctx, burgerSubmission())
		require.NoError(t, err)
		assert.Greater(t, o.Number, last)
		last = o.Number
	}
}

func TestConcurrentDecisionsApplyOnce(t *testing.T) {
	ctx := context.Background()
	d, queue := newTestDesk(t, memstore.New())

	o, err := d.Submit(ctx, burgerSubmission())
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		changes int
	)
	for i := 0; i < 20; i++ {
		act := types.ApproveAction
		if i%2 == 1 {
			act = types.RejectAction
		}
		wg.Add(1)
		go func(act types.Action) {
			defer wg.Done()
			changed, err := d.Act(ctx, o.ID, act)
			assert.NoError(t, err)
			if changed {
				mu.Lock()
				changes++
				mu.Unlock()
			}
		}(act)
	}
	wg.Wait()

	assert.Equal(t, 1, changes)
	assert.Len(t, queue, 1)
	assert.Equal(t, 0, d.locks.size())

	got, err := d.records.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, got.Status.Terminal())
}

func TestStorageFailurePropagates(t *testing.T) {
	ctx := context.Background()
	backend := &flakyBackend{Store: memstore.New()}
	d, queue := newTestDesk(t, backend)

	o, err := d.Submit(ctx, burgerSubmission())
	require.NoError(t, err)

	backend.setFail(true)

	_, err = d.Submit(ctx, burgerSubmission())
	assert.ErrorIs(t, err, store.ErrStorage)

	changed, err := d.Act(ctx, o.ID, types.ApproveAction)
	assert.ErrorIs(t, err, store.ErrStorage)
	assert.False(t, changed)
	assert.Empty(t, queue)

	backend.setFail(false)
	view, err := d.Check(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "pending", view.Status)
}

func TestSubmitSkipsNumbersInUse(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()
	d, _ := newTestDesk(t, backend)

	for i := 0; i < 3; i++ {
		_, err := d.Submit(ctx, burgerSubmission())
		require.NoError(t, err)
	}
	_, err := d.Act(ctx, "2", types.ApproveAction)
	require.NoError(t, err)

	require.NoError(t, backend.StoreCounter(ctx, "garbage"))

	o, err := d.Submit(ctx, burgerSubmission())
	require.NoError(t, err)
	assert.Equal(t, "4", o.ID)

	view, err := d.Check(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, "approved", view.Status)
}

func TestLegacyRecords(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()
	d, _ := newTestDesk(t, backend)

	legacy := `{"id":"ordlq2x1abc12","status":"pending","created_at":1712345678901,"mode":"pickup",` +
		`"building":"","notes":"","items":[{"name":"Tea","qty":1,"price":0.5}],"items_total":0.5,"delivery_fee":0,"final_total":0.5}`
	require.NoError(t, backend.Put(ctx, "ordlq2x1abc12", []byte(legacy)))

	view, err := d.Check(ctx, "ordlq2x1abc12")
	require.NoError(t, err)
	assert.Equal(t, StatusView{Status: "pending"}, view)

	changed, err := d.Act(ctx, "ordlq2x1abc12", types.ApproveAction)
	require.NoError(t, err)
	assert.True(t, changed)

	view, err = d.Check(ctx, "ordlq2x1abc12")
	require.NoError(t, err)
	assert.Equal(t, StatusView{Status: "approved", OrderNumber: "ordlq2x1abc12"}, view)

	// approving must not hand out a number from the sequence
	o, err := d.Submit(ctx, burgerSubmission())
	require.NoError(t, err)
	assert.Equal(t, "1", o.ID)
}

func TestAdminListOrder(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDesk(t, memstore.New())

	clock := time.UnixMilli(1700000000000)
	d.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		clock = clock.Add(time.Second)
		_, err := d.Submit(ctx, burgerSubmission())
		require.NoError(t, err)
	}
	// same timestamp as order 3
	_, err := d.Submit(ctx, burgerSubmission())
	require.NoError(t, err)

	list, err := d.AdminList(ctx)
	require.NoError(t, err)

	var ids []string
	for _, o := range list {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []string{"4", "3", "2", "1"}, ids)
	assert.Equal(t, "7", list[0].ComputedTotal.String())
	assert.Equal(t, "7", list[0].Lines[0].Total.String())
}

func TestBacklog(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDesk(t, memstore.New())

	count, oldest, err := d.Backlog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.True(t, oldest.IsZero())

	clock := time.UnixMilli(1700000000000)
	d.now = func() time.Time { return clock }
	for i := 0; i < 3; i++ {
		_, err := d.Submit(ctx, burgerSubmission())
		require.NoError(t, err)
		clock = clock.Add(time.Minute)
	}
	_, err = d.Act(ctx, "1", types.RejectAction)
	require.NoError(t, err)

	count, oldest, err = d.Backlog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, time.UnixMilli(1700000000000).Add(time.Minute), oldest)
}

func TestEmitDoesNotBlock(t *testing.T) {
	queue := make(chan types.Decision, 1)
	d := NewDesk(memstore.New(), sequence.NewAllocator(memstore.New()), queue)

	d.emit(types.Decision{OrderID: "1"})
	d.emit(types.Decision{OrderID: "2"})

	assert.Len(t, queue, 1)
	assert.Equal(t, "1", (<-queue).OrderID)

	NewDesk(memstore.New(), sequence.NewAllocator(memstore.New()), nil).emit(types.Decision{OrderID: "3"})
}

func TestLooselyTypedLegacyRecord(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			d, queue := newTestDesk(t, backend)

			legacy := `{"id":"ordlx1abcde","status":"pending","created_at":1712345678901,"mode":"delivery",` +
				`"building":7,"notes":"","items":[{"name":"Burger","qty":"2","price":3.5}],` +
				`"items_total":"7.00","delivery_fee":0,"final_total":"8"}`
			require.NoError(t, backend.Put(ctx, "ordlx1abcde", []byte(legacy)))

			view, err := d.Check(ctx, "ordlx1abcde")
			require.NoError(t, err)
			assert.Equal(t, StatusView{Status: "pending"}, view)

			list, err := d.AdminList(ctx)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, "7", list[0].Building)
			assert.Equal(t, 8.0, list[0].FinalTotal)
			assert.Equal(t, "7", list[0].ComputedTotal.String())
			assert.False(t, list[0].TotalsMismatch())

			changed, err := d.Act(ctx, "ordlx1abcde", types.RejectAction)
			require.NoError(t, err)
			assert.True(t, changed)
			assert.Equal(t, types.RejectedStatus, (<-queue).Status)

			view, err = d.Check(ctx, "ordlx1abcde")
			require.NoError(t, err)
			assert.Equal(t, StatusView{Status: "rejected"}, view)
		})
	}
}

func TestSubmitWithoutTotalsIsNotFlagged(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDesk(t, memstore.New())

	_, err := d.Submit(ctx, burgerSubmission())
	require.NoError(t, err)
	off := 1.0
	sub := burgerSubmission()
	sub.ItemsTotal = &off
	_, err = d.Submit(ctx, sub)
	require.NoError(t, err)

	list, err := d.AdminList(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	flagged := map[string]bool{}
	for _, o := range list {
		flagged[o.ID] = o.TotalsMismatch()
	}
	assert.Equal(t, map[string]bool{"1": false, "2": true}, flagged)
}

func TestActOnUnreadableRecord(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()
	d, _ := newTestDesk(t, backend)
	require.NoError(t, backend.Put(ctx, "broken", []byte("{half")))

	changed, err := d.Act(ctx, "broken", types.ApproveAction)
	assert.False(t, changed)
	assert.ErrorIs(t, err, store.ErrCorrupt)
	assert.NotErrorIs(t, err, store.ErrStorage)
}
