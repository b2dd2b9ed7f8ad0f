package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/appointix/appointix/internal/clinic"
	"github.com/appointix/appointix/internal/event"
)

// ErrNotReady means an operation arrived before a backend was bound. It
// never reaches a backend; the caller gets an immediate failure event.
var ErrNotReady = errors.New("system not ready")

// LoginFailure is the payload of KindLoginFailed.
type LoginFailure struct {
	Reason string
}

// RequestFailure is the payload of KindRequestFailed.
type RequestFailure struct {
	Op  string
	Err error
}

// Controller is the single stable entry point the presentation layer
// talks to. It forwards calls to whichever backend the selector bound,
// tracks the authenticated identity, and publishes every result on its
// bus. All operations are fire-and-forget: the result arrives as an
// event, success or failure, and each dispatched call runs under the
// controller's request timeout.
type Controller struct {
	bus      *event.Bus
	selector *Selector
	timeout  time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	bindSub *event.Subscription
	wg      sync.WaitGroup

	mu       sync.Mutex
	backend  clinic.Repository
	identity *clinic.Identity
}

func NewController(selector *Selector, bus *event.Bus, timeout time.Duration) *Controller {
	if timeout <= 0 {
		timeout = clinic.DefaultRequestTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		bus:      bus,
		selector: selector,
		timeout:  timeout,
		ctx:      ctx,
		cancel:   cancel,
	}

	// One stable subscription point regardless of which backend wins.
	c.bindSub = bus.Subscribe(event.KindBackendBound)
	c.wg.Add(1)
	go c.watchBinding()

	return c
}

func (c *Controller) watchBinding() {
	defer c.wg.Done()
	for {
		select {
		case ev, ok := <-c.bindSub.C:
			if !ok {
				return
			}
			bound, ok := ev.Payload.(BoundBackend)
			if !ok {
				continue
			}
			c.mu.Lock()
			c.backend = bound.Backend
			c.mu.Unlock()
			log.Printf("session: backend bound remote=%t", bound.Remote)
		case <-c.ctx.Done():
			return
		}
	}
}

// TryConnect kicks off backend selection. The outcome arrives as a
// KindBackendBound event.
func (c *Controller) TryConnect() error {
	return c.selector.TryConnect(c.ctx)
}

// Backend returns the bound repository, if any. Exposed for callers that
// want direct synchronous access instead of the event surface.
func (c *Controller) Backend() (clinic.Repository, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backend, c.backend != nil
}

// Identity returns the currently authenticated identity.
func (c *Controller) Identity() (clinic.Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity == nil {
		return clinic.Identity{}, false
	}
	return *c.identity, true
}

// TryLogin authenticates against the bound backend. Any previous session
// identity is cleared first. Results arrive as KindPatientLoggedIn,
// KindDoctorLoggedIn or KindLoginFailed.
func (c *Controller) TryLogin(email, password string, role clinic.Role) {
	c.mu.Lock()
	c.identity = nil
	backend := c.backend
	c.mu.Unlock()

	if backend == nil {
		c.bus.Publish(event.KindLoginFailed, LoginFailure{Reason: ErrNotReady.Error()})
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
		defer cancel()

		id, err := backend.Login(ctx, email, password, role)
		if err != nil {
			c.bus.Publish(event.KindLoginFailed, LoginFailure{Reason: err.Error()})
			return
		}

		c.mu.Lock()
		c.identity = id
		c.mu.Unlock()

		switch id.Role {
		case clinic.RolePatient:
			c.bus.Publish(event.KindPatientLoggedIn, *id.Patient)
		case clinic.RoleDoctor:
			c.bus.Publish(event.KindDoctorLoggedIn, *id.Doctor)
		}
	}()
}

// Logout drops the stored identity.
func (c *Controller) Logout() {
	c.mu.Lock()
	c.identity = nil
	c.mu.Unlock()
}

// dispatch runs fn against the bound backend on its own goroutine. fn
// returns the event to publish; a zero Kind publishes nothing (used by
// deletes of missing ids). Failures become KindRequestFailed.
func (c *Controller) dispatch(op string, fn func(ctx context.Context, repo clinic.Repository) (event.Kind, any, error)) {
	repo, ok := c.Backend()
	if !ok {
		c.bus.Publish(event.KindRequestFailed, RequestFailure{Op: op, Err: ErrNotReady})
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
		defer cancel()

		kind, payload, err := fn(ctx, repo)
		if err != nil {
			c.bus.Publish(event.KindRequestFailed, RequestFailure{Op: op, Err: fmt.Errorf("%s: %w", op, err)})
			return
		}
		if kind == "" {
			return
		}
		c.bus.Publish(kind, payload)
	}()
}

func (c *Controller) CreatePatient(np clinic.NewPatient) {
	c.dispatch("create patient", func(ctx context.Context, repo clinic.Repository) (event.Kind, any, error) {
		p, err := repo.CreatePatient(ctx, np)
		if err != nil {
			return "", nil, err
		}
		return event.KindPatientCreated, *p, nil
	})
}

func (c *Controller) CreateDoctor(nd clinic.NewDoctor) {
	c.dispatch("create doctor", func(ctx context.Context, repo clinic.Repository) (event.Kind, any, error) {
		d, err := repo.CreateDoctor(ctx, nd)
		if err != nil {
			return "", nil, err
		}
		return event.KindDoctorCreated, *d, nil
	})
}

func (c *Controller) CreateAppointment(doctorID, patientID int, start time.Time) {
	c.dispatch("create appointment", func(ctx context.Context, repo clinic.Repository) (event.Kind, any, error) {
		a, err := repo.CreateAppointment(ctx, doctorID, patientID, start)
		if err != nil {
			return "", nil, err
		}
		return event.KindAppointmentCreated, *a, nil
	})
}

// LoadPatient publishes the found patient as a one-element
// KindPatientsLoaded list, the same shape bulk reads use.
func (c *Controller) LoadPatient(id int) {
	c.dispatch("load patient", func(ctx context.Context, repo clinic.Repository) (event.Kind, any, error) {
		p, err := repo.PatientByID(ctx, id)
		if err != nil {
			return "", nil, err
		}
		return event.KindPatientsLoaded, []clinic.Patient{*p}, nil
	})
}

func (c *Controller) LoadDoctor(id int) {
	c.dispatch("load doctor", func(ctx context.Context, repo clinic.Repository) (event.Kind, any, error) {
		d, err := repo.DoctorByID(ctx, id)
		if err != nil {
			return "", nil, err
		}
		return event.KindDoctorsLoaded, []clinic.Doctor{*d}, nil
	})
}

func (c *Controller) LoadAppointment(id int) {
	c.dispatch("load appointment", func(ctx context.Context, repo clinic.Repository) (event.Kind, any, error) {
		a, err := repo.AppointmentByID(ctx, id)
		if err != nil {
			return "", nil, err
		}
		return event.KindAppointmentsLoaded, []clinic.Appointment{*a}, nil
	})
}

func (c *Controller) LoadPatients() {
	c.dispatch("load patients", func(ctx context.Context, repo clinic.Repository) (event.Kind, any, error) {
		list, err := repo.Patients(ctx)
		if err != nil {
			return "", nil, err
		}
		return event.KindPatientsLoaded, list, nil
	})
}

func (c *Controller) LoadDoctors() {
	c.dispatch("load doctors", func(ctx context.Context, repo clinic.Repository) (event.Kind, any, error) {
		list, err := repo.Doctors(ctx)
		if err != nil {
			return "", nil, err
		}
		return event.KindDoctorsLoaded, list, nil
	})
}

func (c *Controller) LoadAppointmentsByPatient(patientID int) {
	c.dispatch("load appointments by patient", func(ctx context.Context, repo clinic.Repository) (event.Kind, any, error) {
		list, err := repo.AppointmentsByPatient(ctx, patientID)
		if err != nil {
			return "", nil, err
		}
		return event.KindAppointmentsLoaded, list, nil
	})
}

func (c *Controller) LoadAppointmentsByDoctor(doctorID int) {
	c.dispatch("load appointments by doctor", func(ctx context.Context, repo clinic.Repository) (event.Kind, any, error) {
		list, err := repo.AppointmentsByDoctor(ctx, doctorID)
		if err != nil {
			return "", nil, err
		}
		return event.KindAppointmentsLoaded, list, nil
	})
}

func (c *Controller) UpdatePatient(id int, p clinic.Patient) {
	c.dispatch("update patient", func(ctx context.Context, repo clinic.Repository) (event.Kind, any, error) {
		updated, err := repo.UpdatePatient(ctx, id, p)
		if err != nil {
			return "", nil, err
		}
		return event.KindPatientUpdated, *updated, nil
	})
}

func (c *Controller) UpdateDoctor(id int, d clinic.Doctor) {
	c.dispatch("update doctor", func(ctx context.Context, repo clinic.Repository) (event.Kind, any, error) {
		updated, err := repo.UpdateDoctor(ctx, id, d)
		if err != nil {
			return "", nil, err
		}
		return event.KindDoctorUpdated, *updated, nil
	})
}

func (c *Controller) DeletePatient(id int) {
	c.dispatch("delete patient", func(ctx context.Context, repo clinic.Repository) (event.Kind, any, error) {
		err := repo.DeletePatient(ctx, id)
		if errors.Is(err, clinic.ErrPatientNotFound) {
			return "", nil, nil
		}
		if err != nil {
			return "", nil, err
		}
		return event.KindPatientDeleted, id, nil
	})
}

func (c *Controller) DeleteDoctor(id int) {
	c.dispatch("delete doctor", func(ctx context.Context, repo clinic.Repository) (event.Kind, any, error) {
		err := repo.DeleteDoctor(ctx, id)
		if errors.Is(err, clinic.ErrDoctorNotFound) {
			return "", nil, nil
		}
		if err != nil {
			return "", nil, err
		}
		return event.KindDoctorDeleted, id, nil
	})
}

func (c *Controller) DeleteAppointment(id int) {
	c.dispatch("delete appointment", func(ctx context.Context, repo clinic.Repository) (event.Kind, any, error) {
		err := repo.DeleteAppointment(ctx, id)
		if errors.Is(err, clinic.ErrAppointmentNotFound) {
			return "", nil, nil
		}
		if err != nil {
			return "", nil, err
		}
		return event.KindAppointmentDeleted, id, nil
	})
}

// Close cancels in-flight dispatches and detaches from the bus.
func (c *Controller) Close() {
	c.cancel()
	c.bus.Unsubscribe(c.bindSub)
	c.wg.Wait()
}
