// Package event is the notification surface of the data-access layer.
// Every repository operation category has a Kind; presentation code
// subscribes to the kinds it cares about and reacts to success or
// failure events, never to returned errors.
package event

import (
	"log"
	"sync"
)

type Kind string

const (
	KindBackendBound Kind = "backend_bound"

	KindPatientsLoaded     Kind = "patients_loaded"
	KindDoctorsLoaded      Kind = "doctors_loaded"
	KindAppointmentsLoaded Kind = "appointments_loaded"

	KindPatientCreated     Kind = "patient_created"
	KindDoctorCreated      Kind = "doctor_created"
	KindAppointmentCreated Kind = "appointment_created"

	KindPatientUpdated Kind = "patient_updated"
	KindDoctorUpdated  Kind = "doctor_updated"

	KindPatientDeleted     Kind = "patient_deleted"
	KindDoctorDeleted      Kind = "doctor_deleted"
	KindAppointmentDeleted Kind = "appointment_deleted"

	KindPatientLoggedIn Kind = "patient_logged_in"
	KindDoctorLoggedIn  Kind = "doctor_logged_in"
	KindLoginFailed     Kind = "login_failed"

	// KindRequestFailed carries the error of any non-login operation
	// that could not complete, replacing the original's silent absence
	// of a success event.
	KindRequestFailed Kind = "request_failed"
)

type Event struct {
	Kind    Kind
	Payload any
}

// Subscription receives matching events on C. The channel is buffered;
// subscribers that stop draining lose events rather than block the bus.
type Subscription struct {
	C     <-chan Event
	ch    chan Event
	kinds map[Kind]struct{}
}

func (s *Subscription) wants(k Kind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	_, ok := s.kinds[k]
	return ok
}

// Bus is a broadcast point for repository results. Subscribe and
// Unsubscribe are safe to call from any goroutine and Unsubscribe is
// idempotent, so recreated consumers cannot end up double-delivered.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers interest in the given kinds. No kinds means every
// event.
func (b *Bus) Subscribe(kinds ...Kind) *Subscription {
	ch := make(chan Event, 32)
	sub := &Subscription{C: ch, ch: ch}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]struct{}, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = struct{}{}
		}
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(kind Kind, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		if !sub.wants(kind) {
			continue
		}
		select {
		case sub.ch <- Event{Kind: kind, Payload: payload}:
		default:
			log.Printf("event: subscriber is slow, dropping %s", kind)
		}
	}
}

// Close drops every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
	}
}
