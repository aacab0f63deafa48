package service

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"maitred/internal/apperr"
	"maitred/internal/models"
	"maitred/internal/realtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bookingInput(f *fixture, tableID uint, date, start string) CreateBookingInput {
	return CreateBookingInput{
		RestaurantID: f.restaurant.ID,
		TableID:      tableID,
		Date:         date,
		StartTime:    start,
		GuestCount:   2,
		UserID:       f.customer.ID,
	}
}

func TestCreateBookingRejectsOverlap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Bookings.CreateBooking(ctx, bookingInput(f, f.t1.ID, "2026-01-10", "18:00"))
	require.NoError(t, err)
	assert.Equal(t, "19:00", first.EndTime)
	assert.Equal(t, models.BookingConfirmed, first.Status)

	_, err = f.svc.Bookings.CreateBooking(ctx, bookingInput(f, f.t1.ID, "2026-01-10", "18:30"))
	appErr := assertKind(t, err, apperr.KindConflict)
	assert.Equal(t, first.ID, appErr.Details["conflictingBookingId"])

	_, err = f.svc.Bookings.CreateBooking(ctx, bookingInput(f, f.t1.ID, "2026-01-10", "17:30"))
	assertKind(t, err, apperr.KindConflict)

	// Touching intervals do not overlap.
	_, err = f.svc.Bookings.CreateBooking(ctx, bookingInput(f, f.t1.ID, "2026-01-10", "19:00"))
	require.NoError(t, err)
	_, err = f.svc.Bookings.CreateBooking(ctx, bookingInput(f, f.t1.ID, "2026-01-10", "17:00"))
	require.NoError(t, err)

	// Other tables and other dates are independent.
	_, err = f.svc.Bookings.CreateBooking(ctx, bookingInput(f, f.t2.ID, "2026-01-10", "18:30"))
	require.NoError(t, err)
	_, err = f.svc.Bookings.CreateBooking(ctx, bookingInput(f, f.t1.ID, "2026-01-11", "18:30"))
	require.NoError(t, err)

	created := 0
	for _, name := range f.events.names() {
		if name == realtime.EventBookingCreated {
			created++
		}
	}
	assert.Equal(t, 5, created)
	assert.ElementsMatch(t, []string{realtime.StaffRoom(f.restaurant.ID), realtime.OwnerRoom(f.restaurant.ID)}, f.events.last().Rooms)
	assert.Equal(t, 2, f.metrics.outcomes["create_booking:conflict_error"])
}

func TestCancelledBookingFreesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Bookings.CreateBooking(ctx, bookingInput(f, f.t1.ID, "2026-01-10", "18:00"))
	require.NoError(t, err)
	_, err = f.svc.Bookings.CancelBooking(ctx, first.ID, &f.customer)
	require.NoError(t, err)

	_, err = f.svc.Bookings.CreateBooking(ctx, bookingInput(f, f.t1.ID, "2026-01-10", "18:30"))
	require.NoError(t, err)
}

func TestCreateBookingValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateBookingInput
		kind apperr.Kind
	}{
		{"bad date", bookingInput(f, f.t1.ID, "10/01/2026", "18:00"), apperr.KindValidation},
		{"impossible date", bookingInput(f, f.t1.ID, "2026-02-30", "18:00"), apperr.KindValidation},
		{"past date", bookingInput(f, f.t1.ID, "2025-12-31", "18:00"), apperr.KindValidation},
		{"earlier today", bookingInput(f, f.t1.ID, "2026-01-01", "11:00"), apperr.KindValidation},
		{"bad time", bookingInput(f, f.t1.ID, "2026-01-10", "6pm"), apperr.KindValidation},
		{"short time", bookingInput(f, f.t1.ID, "2026-01-10", "9:00"), apperr.KindValidation},
		{"past midnight", bookingInput(f, f.t1.ID, "2026-01-10", "23:30"), apperr.KindValidation},
		{"unknown table", bookingInput(f, 4242, "2026-01-10", "18:00"), apperr.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Bookings.CreateBooking(ctx, tt.in)
			assertKind(t, err, tt.kind)
		})
	}

	crowd := bookingInput(f, f.t3.ID, "2026-01-10", "18:00")
	crowd.GuestCount = 3
	_, err := f.svc.Bookings.CreateBooking(ctx, crowd)
	appErr := assertKind(t, err, apperr.KindValidation)
	assert.Equal(t, 2, appErr.Details["capacity"])

	nobody := bookingInput(f, f.t1.ID, "2026-01-10", "18:00")
	nobody.GuestCount = 0
	_, err = f.svc.Bookings.CreateBooking(ctx, nobody)
	assertKind(t, err, apperr.KindValidation)

	anonymous := bookingInput(f, f.t1.ID, "2026-01-10", "18:00")
	anonymous.UserID = 0
	_, err = f.svc.Bookings.CreateBooking(ctx, anonymous)
	assertKind(t, err, apperr.KindUnauthenticated)

	// The last slot of the day may end exactly at midnight.
	late, err := f.svc.Bookings.CreateBooking(ctx, bookingInput(f, f.t1.ID, "2026-01-10", "23:00"))
	require.NoError(t, err)
	assert.Equal(t, "00:00", late.EndTime)
	assert.Equal(t, 24*60, late.EndMinute)
}

func TestCreateBookingFallsBackToDefaultSlot(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Model(&f.restaurant).Update("booking_slot_minutes", 0).Error)

	booking, err := f.svc.Bookings.CreateBooking(context.Background(), bookingInput(f, f.t1.ID, "2026-01-10", "18:00"))
	require.NoError(t, err)
	assert.Equal(t, "19:30", booking.EndTime)
}

func TestCancelBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	booking, err := f.svc.Bookings.CreateBooking(ctx, bookingInput(f, f.t1.ID, "2026-01-10", "18:00"))
	require.NoError(t, err)

	for _, intruder := range []*models.User{&f.stranger, &f.kitchen, &f.rival} {
		_, err = f.svc.Bookings.CancelBooking(ctx, booking.ID, intruder)
		assertKind(t, err, apperr.KindAuthorization)
	}
	_, err = f.svc.Bookings.CancelBooking(ctx, booking.ID, nil)
	assertKind(t, err, apperr.KindUnauthenticated)
	_, err = f.svc.Bookings.CancelBooking(ctx, 4242, &f.customer)
	assertKind(t, err, apperr.KindNotFound)

	f.events.reset()
	cancelled, err := f.svc.Bookings.CancelBooking(ctx, booking.ID, &f.waiter)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledBy)
	assert.Equal(t, f.waiter.ID, *cancelled.CancelledBy)
	assert.Equal(t, fixedNow, *cancelled.CancelledAt)

	again, err := f.svc.Bookings.CancelBooking(ctx, booking.ID, &f.customer)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, again.Status)

	assert.Equal(t, []string{realtime.EventBookingCancelled}, f.events.names())

	var stored models.Booking
	require.NoError(t, f.db.Where("id = ?", booking.ID).First(&stored).Error)
	assert.Equal(t, models.BookingCancelled, stored.Status, "bookings are kept, not deleted")
}

func TestCancelBookingByOwnerAndGuest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Bookings.CreateBooking(ctx, bookingInput(f, f.t1.ID, "2026-01-10", "18:00"))
	require.NoError(t, err)
	b, err := f.svc.Bookings.CreateBooking(ctx, bookingInput(f, f.t2.ID, "2026-01-10", "18:00"))
	require.NoError(t, err)

	_, err = f.svc.Bookings.CancelBooking(ctx, a.ID, &f.owner)
	require.NoError(t, err)
	_, err = f.svc.Bookings.CancelBooking(ctx, b.ID, &f.customer)
	require.NoError(t, err)
}

func TestListBookingsPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, in := range []CreateBookingInput{
		bookingInput(f, f.t1.ID, "2026-01-11", "12:00"),
		bookingInput(f, f.t2.ID, "2026-01-10", "20:00"),
		bookingInput(f, f.t1.ID, "2026-01-10", "18:00"),
		bookingInput(f, f.t2.ID, "2026-01-10", "18:00"),
	} {
		_, err := f.svc.Bookings.CreateBooking(ctx, in)
		require.NoError(t, err)
	}

	page, err := f.svc.Bookings.ListBookings(ctx, BookingFilter{RestaurantID: f.restaurant.ID, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, 2, page.Pages)
	assert.Equal(t, 1, page.Page)
	require.Len(t, page.Bookings, 3)

	got := [][2]string{}
	for _, b := range page.Bookings {
		got = append(got, [2]string{b.Date, b.StartTime})
	}
	assert.Equal(t, [][2]string{{"2026-01-10", "18:00"}, {"2026-01-10", "18:00"}, {"2026-01-10", "20:00"}}, got)
	assert.Less(t, page.Bookings[0].ID, page.Bookings[1].ID, "ties break on id")

	page, err = f.svc.Bookings.ListBookings(ctx, BookingFilter{RestaurantID: f.restaurant.ID, Limit: 3, Page: 2})
	require.NoError(t, err)
	require.Len(t, page.Bookings, 1)
	assert.Equal(t, "2026-01-11", page.Bookings[0].Date)

	page, err = f.svc.Bookings.ListBookings(ctx, BookingFilter{RestaurantID: f.restaurant.ID, Date: "2026-01-10", Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 100, page.Limit)

	page, err = f.svc.Bookings.ListBookings(ctx, BookingFilter{RestaurantID: f.restaurant.ID, Page: 9})
	require.NoError(t, err)
	assert.Empty(t, page.Bookings)
	assert.Equal(t, 10, page.Limit)

	page, err = f.svc.Bookings.ListBookings(ctx, BookingFilter{RestaurantID: f.restaurant.ID, Limit: 3, Page: math.MaxInt})
	require.NoError(t, err)
	assert.Empty(t, page.Bookings)
	assert.Equal(t, 3, page.Page)
	assert.Equal(t, 2, page.Pages)

	_, err = f.svc.Bookings.ListBookings(ctx, BookingFilter{})
	assertKind(t, err, apperr.KindValidation)
	_, err = f.svc.Bookings.ListBookings(ctx, BookingFilter{RestaurantID: f.restaurant.ID, Status: "pending"})
	assertKind(t, err, apperr.KindValidation)
	_, err = f.svc.Bookings.ListBookings(ctx, BookingFilter{RestaurantID: f.restaurant.ID, Date: "tomorrow"})
	assertKind(t, err, apperr.KindValidation)
}

func TestConcurrentBookingsForOneSlot(t *testing.T) {
	f := newFixture(t)

	const attempts = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Bookings.CreateBooking(context.Background(), bookingInput(f, f.t1.ID, "2026-01-10", "18:00"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case apperr.Is(err, apperr.KindConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, attempts-1, conflicts)

	var count int
	require.NoError(t, f.db.Model(&models.Booking{}).Where("status = ?", models.BookingConfirmed).Count(&count).Error)
	assert.Equal(t, 1, count)
}

func TestConcurrentBookingsAcrossProcesses(t *testing.T) {
	f := newFixture(t)

	// A second service over the same database with its own lock table
	// stands in for another instance.
	peer := New(Deps{
		DB:                 f.db,
		Events:             &recordingPublisher{},
		Now:                func() time.Time { return fixedNow },
		DefaultSlotMinutes: 90,
		DefaultPageLimit:   10,
		MaxPageLimit:       100,
	})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i, svc := range []*Service{f.svc, peer, f.svc, peer} {
		svc := svc
		wg.Add(1)
		go func(start string) {
			defer wg.Done()
			_, err := svc.Bookings.CreateBooking(context.Background(), bookingInput(f, f.t1.ID, "2026-01-10", start))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case apperr.Is(err, apperr.KindConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}([]string{"18:00", "18:30", "18:15", "18:45"}[i])
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 3, conflicts)
}

func TestRowLockClause(t *testing.T) {
	assert.Equal(t, "FOR UPDATE", rowLockClause("postgres"))
	assert.Empty(t, rowLockClause("sqlite3"))

	f := newFixture(t)
	_, set := forUpdate(f.db).Get("gorm:query_option")
	assert.False(t, set)
}
