package main

import (
	"flag"
	"log"
	"time"

	"github.com/appointix/appointix/internal/clinic"
	"github.com/appointix/appointix/internal/config"
	"github.com/appointix/appointix/internal/event"
	"github.com/appointix/appointix/internal/session"
)

// Headless run of the client flow the UI drives: probe the server, bind
// whichever backend answers, log in and list the account's appointments.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	email := flag.String("email", "fabio@test.com", "login email")
	password := flag.String("password", "password123", "login password")
	roleFlag := flag.String("role", "P", "login role: P patient, D doctor")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	role := clinic.Role(*roleFlag)

	bus := event.NewBus()
	remote := clinic.NewHTTPRepository(cfg.APIBaseURL, cfg.RequestTimeout)
	fallback := clinic.NewDemoRepository()
	selector := session.NewSelector(remote, fallback, bus)
	ctrl := session.NewController(selector, bus, cfg.RequestTimeout)
	defer ctrl.Close()

	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	log.Printf("probing %s", cfg.APIBaseURL)
	if err := ctrl.TryConnect(); err != nil {
		log.Fatalf("try connect: %v", err)
	}

	deadline := time.After(clinic.ProbeTimeout + 2*cfg.RequestTimeout)
	for {
		select {
		case ev := <-sub.C:
			if done := handle(ctrl, ev, *email, *password, role); done {
				return
			}
		case <-deadline:
			log.Fatal("timed out waiting for results")
		}
	}
}

func handle(ctrl *session.Controller, ev event.Event, email, password string, role clinic.Role) bool {
	switch ev.Kind {
	case event.KindBackendBound:
		bound := ev.Payload.(session.BoundBackend)
		if bound.Remote {
			log.Println("remote backend bound")
		} else {
			log.Println("server unreachable, in-memory backend bound (no persistence)")
		}
		ctrl.TryLogin(email, password, role)

	case event.KindPatientLoggedIn:
		p := ev.Payload.(clinic.Patient)
		log.Printf("logged in as patient %s %s (id=%d)", p.FirstName, p.LastName, p.ID)
		ctrl.LoadAppointmentsByPatient(p.ID)

	case event.KindDoctorLoggedIn:
		d := ev.Payload.(clinic.Doctor)
		log.Printf("logged in as doctor %s %s (id=%d, %s)", d.FirstName, d.LastName, d.ID, d.Specialization)
		ctrl.LoadAppointmentsByDoctor(d.ID)

	case event.KindLoginFailed:
		failure := ev.Payload.(session.LoginFailure)
		log.Fatalf("login failed: %s", failure.Reason)

	case event.KindAppointmentsLoaded:
		appts := ev.Payload.([]clinic.Appointment)
		if len(appts) == 0 {
			log.Println("no appointments")
			return true
		}
		for _, a := range appts {
			log.Printf("appointment %d: doctor=%d patient=%d %s -> %s",
				a.ID, a.DoctorID, a.PatientID,
				a.StartTime.Format("2006-01-02 15:04"),
				a.EndTime.Format("15:04"))
		}
		return true

	case event.KindRequestFailed:
		failure := ev.Payload.(session.RequestFailure)
		log.Fatalf("request failed: %v", failure.Err)
	}
	return false
}
