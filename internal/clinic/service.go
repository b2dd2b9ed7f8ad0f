package clinic

import (
	"context"
	"errors"
	"time"

	redisclient "github.com/appointix/appointix/internal/redis"
)

// ErrSlotBeingBooked means another request holds the booking lock for the
// same doctor and start time right now.
var ErrSlotBeingBooked = errors.New("slot is currently being booked, please retry")

// BookingService wraps a Repository with a per-slot lock so the server's
// overlap check and insert run as one critical section even across
// instances.
type BookingService struct {
	repo   Repository
	locker redisclient.Locker
}

func NewBookingService(repo Repository, locker redisclient.Locker) *BookingService {
	return &BookingService{repo: repo, locker: locker}
}

func (s *BookingService) BookAppointment(ctx context.Context, doctorID, patientID int, start time.Time) (*Appointment, error) {
	var created *Appointment

	err := s.locker.WithBookingLock(ctx, doctorID, start, func(lockCtx context.Context) error {
		appt, err := s.repo.CreateAppointment(lockCtx, doctorID, patientID, start)
		if err != nil {
			return err
		}
		created = appt
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}
	return created, nil
}
