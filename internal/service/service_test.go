package service

import (
	"sync"
	"testing"
	"time"

	"maitred/internal/apperr"
	"maitred/internal/database"
	"maitred/internal/models"
	"maitred/internal/realtime"

	"github.com/jinzhu/gorm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (p *recordingPublisher) Publish(e realtime.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, len(p.events))
	for i, e := range p.events {
		names[i] = e.Name
	}
	return names
}

func (p *recordingPublisher) last() realtime.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

type countingMetrics struct {
	mu          sync.Mutex
	outcomes    map[string]int
	turnarounds []time.Duration
}

func (m *countingMetrics) ObserveOrderTurnaround(elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turnarounds = append(m.turnarounds, elapsed)
}

func (m *countingMetrics) RecordMutation(operation, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[operation+":"+outcome]++
}

// fixture is one open restaurant with two four-seat tables, a two-seat
// table, three dishes (one out of stock) and a user per role.
type fixture struct {
	db      *gorm.DB
	svc     *Service
	events  *recordingPublisher
	metrics *countingMetrics

	restaurant models.Restaurant
	other      models.Restaurant
	t1, t2, t3 models.Table

	paneer, dal, kulfi models.MenuItem

	owner, manager, waiter, kitchen, customer, stranger, rival models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		db:      db,
		events:  &recordingPublisher{},
		metrics: &countingMetrics{outcomes: make(map[string]int)},
	}

	f.owner = models.User{Name: "Owner", Roles: models.StringSlice{"owner"}}
	require.NoError(t, db.Create(&f.owner).Error)

	f.restaurant = models.Restaurant{Name: "Saffron", OwnerID: f.owner.ID, IsOpen: true, BookingSlotMinutes: 60}
	require.NoError(t, db.Create(&f.restaurant).Error)
	f.other = models.Restaurant{Name: "Elsewhere", IsOpen: true}
	require.NoError(t, db.Create(&f.other).Error)

	rid, oid := f.restaurant.ID, f.other.ID
	f.owner.WorkingAt = &rid
	require.NoError(t, db.Save(&f.owner).Error)

	f.manager = models.User{Name: "Manager", Roles: models.StringSlice{"manager"}, WorkingAt: &rid}
	f.waiter = models.User{Name: "Waiter", Roles: models.StringSlice{"waiter"}, WorkingAt: &rid}
	f.kitchen = models.User{Name: "Kitchen", Roles: models.StringSlice{"kitchen"}, WorkingAt: &rid}
	f.customer = models.User{Name: "Customer", Roles: models.StringSlice{"customer"}}
	f.stranger = models.User{Name: "Stranger", Roles: models.StringSlice{"customer"}}
	f.rival = models.User{Name: "Rival", Roles: models.StringSlice{"waiter", "manager"}, WorkingAt: &oid}
	for _, u := range []*models.User{&f.manager, &f.waiter, &f.kitchen, &f.customer, &f.stranger, &f.rival} {
		require.NoError(t, db.Create(u).Error)
	}

	f.t1 = models.Table{RestaurantID: rid, Number: 1, Capacity: 4}
	f.t2 = models.Table{RestaurantID: rid, Number: 2, Capacity: 4}
	f.t3 = models.Table{RestaurantID: rid, Number: 3, Capacity: 2}
	for _, table := range []*models.Table{&f.t1, &f.t2, &f.t3} {
		require.NoError(t, db.Create(table).Error)
	}

	f.paneer = models.MenuItem{RestaurantID: rid, Name: "Paneer Tikka", Category: "starter", Price: 20000, IsAvailable: true}
	f.dal = models.MenuItem{RestaurantID: rid, Name: "Dal Makhani", Category: "main", Price: 15000, IsAvailable: true}
	f.kulfi = models.MenuItem{RestaurantID: rid, Name: "Kulfi", Category: "dessert", Price: 9000, IsAvailable: false}
	for _, item := range []*models.MenuItem{&f.paneer, &f.dal, &f.kulfi} {
		require.NoError(t, db.Create(item).Error)
	}

	f.svc = New(Deps{
		DB:                 db,
		Events:             f.events,
		Metrics:            f.metrics,
		Now:                func() time.Time { return fixedNow },
		DefaultSlotMinutes: 90,
		DefaultPageLimit:   10,
		MaxPageLimit:       100,
	})
	return f
}

func (f *fixture) table(t *testing.T, id uint) models.Table {
	t.Helper()
	var table models.Table
	require.NoError(t, f.db.Where("id = ?", id).First(&table).Error)
	return table
}

func (f *fixture) order(t *testing.T, id uint) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, f.db.Preload("Items").Where("id = ?", id).First(&order).Error)
	return order
}

// assertTableInvariant checks that no free table carries session state.
func (f *fixture) assertTableInvariant(t *testing.T) {
	t.Helper()
	var tables []models.Table
	require.NoError(t, f.db.Find(&tables).Error)
	for _, table := range tables {
		if !table.IsOccupied {
			assert.Nil(t, table.CurrentOrderID, "table %d", table.ID)
			assert.False(t, table.RequestService, "table %d", table.ID)
			assert.False(t, table.RequestBill, "table %d", table.ID)
		}
	}
}

func assertKind(t *testing.T, err error, kind apperr.Kind) *apperr.Error {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, apperr.KindOf(err), "unexpected error: %v", err)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	return appErr
}
