package clinic

import (
	"context"
	"errors"
	"testing"
	"time"

	redisclient "github.com/appointix/appointix/internal/redis"
)

func TestBookAppointment(t *testing.T) {
	repo, p, d := newTestRepo(t)
	svc := NewBookingService(repo, redisclient.NewLocalLocker())
	ctx := context.Background()

	appt, err := svc.BookAppointment(ctx, d.ID, p.ID, monday10)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if appt.DoctorID != d.ID || appt.PatientID != p.ID {
		t.Errorf("booked %+v", appt)
	}

	// repository errors pass through unchanged
	if _, err := svc.BookAppointment(ctx, d.ID, p.ID, monday10); !errors.Is(err, ErrSlotTaken) {
		t.Errorf("double booking err = %v, want ErrSlotTaken", err)
	}
}

// heldLocker always reports the slot as locked by someone else.
type heldLocker struct{}

func (heldLocker) WithBookingLock(ctx context.Context, doctorID int, start time.Time, fn func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func TestBookAppointmentContended(t *testing.T) {
	repo, p, d := newTestRepo(t)
	svc := NewBookingService(repo, heldLocker{})

	_, err := svc.BookAppointment(context.Background(), d.ID, p.ID, monday10)
	if !errors.Is(err, ErrSlotBeingBooked) {
		t.Fatalf("err = %v, want ErrSlotBeingBooked", err)
	}

	// the booking must not have reached the repository
	appts, _ := repo.Appointments(context.Background())
	if len(appts) != 0 {
		t.Errorf("appointments = %+v, want none", appts)
	}
}
