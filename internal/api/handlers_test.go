package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/appointix/appointix/internal/clinic"
	redisclient "github.com/appointix/appointix/internal/redis"
)

func newTestServer(t *testing.T) (*httptest.Server, *clinic.MemoryRepository) {
	t.Helper()
	repo := clinic.NewMemoryRepository()
	router := NewRouter(RouterConfig{
		Repo:    repo,
		Auth:    repo,
		Booking: clinic.NewBookingService(repo, redisclient.NewLocalLocker()),
		Env:     "test",
		Version: "test",
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, repo
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func registerPatient(t *testing.T, srv *httptest.Server, email string) int {
	t.Helper()
	resp := postJSON(t, srv.URL+"/api/register", clinic.RegisterRequest{
		Username:  clinic.Username(email),
		Password:  "segreta",
		Role:      "P",
		FirstName: "Fabio",
		LastName:  "Di Marco",
		Email:     email,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register patient status = %d", resp.StatusCode)
	}
	return decode[clinic.RegisterResponse](t, resp).PatientID
}

func registerDoctor(t *testing.T, srv *httptest.Server, email string) int {
	t.Helper()
	resp := postJSON(t, srv.URL+"/api/register", clinic.RegisterRequest{
		Username:          clinic.Username(email),
		Password:          "segreta",
		Role:              "D",
		FirstName:         "Laura",
		LastName:          "Bianchi",
		Email:             email,
		Specialization:    "Cardiologia",
		WeekdaysAvailable: "Mon,Tue,Wed,Thu,Fri",
		WorkStart:         "09:00",
		WorkEnd:           "17:00",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register doctor status = %d", resp.StatusCode)
	}
	return decode[clinic.RegisterResponse](t, resp).DoctorID
}

func TestRegisterAndLogin(t *testing.T) {
	srv, _ := newTestServer(t)

	patientID := registerPatient(t, srv, "fabio@test.com")
	if patientID == 0 {
		t.Fatal("register returned no patient id")
	}

	resp := postJSON(t, srv.URL+"/api/login", clinic.LoginRequest{
		Username: "fabio@test.com",
		Password: "segreta",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	login := decode[clinic.LoginResponse](t, resp)
	if login.Role != "P" || login.ID != patientID {
		t.Errorf("login = %+v, want role P id %d", login, patientID)
	}

	resp = postJSON(t, srv.URL+"/api/login", clinic.LoginRequest{
		Username: "nessuno@test.com",
		Password: "segreta",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unknown account login status = %d, want 401", resp.StatusCode)
	}
}

func TestRegisterValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("missing fields", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/register", clinic.RegisterRequest{Username: "x"})
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("bad role", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/register", clinic.RegisterRequest{
			Username: "x@test.com", Password: "p", Role: "Z",
			FirstName: "A", LastName: "B", Email: "x@test.com",
		})
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		registerPatient(t, srv, "dup@test.com")
		resp := postJSON(t, srv.URL+"/api/register", clinic.RegisterRequest{
			Username: "dup@test.com", Password: "p", Role: "P",
			FirstName: "A", LastName: "B", Email: "dup@test.com",
		})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("status = %d, want 409", resp.StatusCode)
		}
	})
}

func TestDoctorDefaults(t *testing.T) {
	srv, repo := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/register", clinic.RegisterRequest{
		Username: "doc@test.com", Password: "p", Role: "D",
		FirstName: "Mario", LastName: "Rossi", Email: "doc@test.com",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	out := decode[clinic.RegisterResponse](t, resp)

	d, err := repo.DoctorByID(context.Background(), out.DoctorID)
	if err != nil {
		t.Fatalf("doctor by id: %v", err)
	}
	if d.Specialization != "Generico" {
		t.Errorf("specialization = %q, want the Generico default", d.Specialization)
	}
}

func TestListAndGetPatients(t *testing.T) {
	srv, _ := newTestServer(t)
	id := registerPatient(t, srv, "fabio@test.com")

	resp, err := http.Get(srv.URL + "/api/pazienti")
	if err != nil {
		t.Fatalf("GET pazienti: %v", err)
	}
	list := decode[[]clinic.PatientDTO](t, resp)
	if len(list) != 1 || list[0].ID != id {
		t.Errorf("list = %+v", list)
	}

	resp, err = http.Get(srv.URL + "/api/pazienti/999")
	if err != nil {
		t.Fatalf("GET pazienti/999: %v", err)
	}
	body := decode[ErrorResponse](t, resp)
	if resp.StatusCode != http.StatusNotFound || body.Message != "paziente non trovato" {
		t.Errorf("missing patient = %d %q", resp.StatusCode, body.Message)
	}
}

func TestBookingFlow(t *testing.T) {
	srv, _ := newTestServer(t)
	patientID := registerPatient(t, srv, "fabio@test.com")
	doctorID := registerDoctor(t, srv, "laura@clinica.test")

	start := clinic.WireTime{Time: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)} // a Monday

	resp := postJSON(t, srv.URL+"/api/creaprenotazione", clinic.CreateAppointmentRequest{
		PatientID: patientID,
		DoctorID:  doctorID,
		StartTime: start,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("booking status = %d", resp.StatusCode)
	}
	appt := decode[clinic.AppointmentDTO](t, resp)
	if appt.ID == 0 || appt.DoctorID != doctorID {
		t.Errorf("appointment = %+v", appt)
	}
	if got := appt.EndTime.Sub(appt.StartTime.Time); got != clinic.DefaultAppointmentDuration*time.Minute {
		t.Errorf("slot length = %v", got)
	}

	t.Run("same slot conflicts", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/creaprenotazione", clinic.CreateAppointmentRequest{
			PatientID: patientID, DoctorID: doctorID, StartTime: start,
		})
		resp.Body.Close()
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("status = %d, want 409", resp.StatusCode)
		}
	})

	t.Run("outside working hours", func(t *testing.T) {
		evening := clinic.WireTime{Time: time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC)}
		resp := postJSON(t, srv.URL+"/api/creaprenotazione", clinic.CreateAppointmentRequest{
			PatientID: patientID, DoctorID: doctorID, StartTime: evening,
		})
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", resp.StatusCode)
		}
	})

	t.Run("unknown doctor", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/creaprenotazione", clinic.CreateAppointmentRequest{
			PatientID: patientID, DoctorID: 999,
			StartTime: clinic.WireTime{Time: start.Add(2 * time.Hour)},
		})
		body := decode[ErrorResponse](t, resp)
		if resp.StatusCode != http.StatusNotFound || body.Message != "dottore non trovato" {
			t.Errorf("unknown doctor = %d %q", resp.StatusCode, body.Message)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/creaprenotazione", clinic.CreateAppointmentRequest{DoctorID: doctorID})
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("filter by patient", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/prenotazioni/paziente/" + strconv.Itoa(patientID))
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		list := decode[[]clinic.AppointmentDTO](t, resp)
		if len(list) != 1 || list[0].ID != appt.ID {
			t.Errorf("filtered list = %+v", list)
		}
	})
}

func TestDeleteEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	id := registerPatient(t, srv, "fabio@test.com")

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/pazienti/"+strconv.Itoa(id), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", resp.StatusCode)
	}

	// the wire surface reports a repeat delete as 404; clients that want
	// idempotency treat that as success
	resp, err = http.DefaultClient.Do(req.Clone(req.Context()))
	if err != nil {
		t.Fatalf("repeat DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("repeat delete status = %d, want 404", resp.StatusCode)
	}
}

func TestProbeEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/test")
	if err != nil {
		t.Fatalf("GET /api/test: %v", err)
	}
	body := decode[TestResponse](t, resp)
	if body.Message != "Server is running!" {
		t.Errorf("message = %q", body.Message)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health/live")
	if err != nil {
		t.Fatalf("GET live: %v", err)
	}
	live := decode[LivenessResponse](t, resp)
	if live.Status != "ok" {
		t.Errorf("liveness = %+v", live)
	}

	// no Postgres pool configured: degraded, not failing
	resp, err = http.Get(srv.URL + "/health/ready")
	if err != nil {
		t.Fatalf("GET ready: %v", err)
	}
	ready := decode[ReadinessResponse](t, resp)
	if ready.Status != "degraded" || ready.Dependencies["postgres"] != "fallback" {
		t.Errorf("readiness = %+v", ready)
	}
	if ready.Dependencies["redis"] != "disabled" {
		t.Errorf("redis dependency = %q", ready.Dependencies["redis"])
	}
}

// full round trip: the HTTP repository drives the real router
func TestHTTPRepositoryAgainstRouter(t *testing.T) {
	srv, _ := newTestServer(t)
	remote := clinic.NewHTTPRepository(srv.URL+"/api", 2*time.Second)
	ctx := context.Background()

	if err := remote.Probe(ctx); err != nil {
		t.Fatalf("probe: %v", err)
	}

	p, err := remote.CreatePatient(ctx, clinic.NewPatient{
		FirstName: "Fabio", LastName: "Di Marco",
		Email: "fabio@test.com", Password: "segreta",
	})
	if err != nil {
		t.Fatalf("create patient: %v", err)
	}

	d, err := remote.CreateDoctor(ctx, clinic.NewDoctor{
		FirstName: "Laura", LastName: "Bianchi", Specialization: "Cardiologia",
		Email: "laura@clinica.test", Password: "segreta",
		WeekdaysAvailable: "Mon,Tue,Wed,Thu,Fri",
		WorkStart:         9 * 60, WorkEnd: 17 * 60,
	})
	if err != nil {
		t.Fatalf("create doctor: %v", err)
	}

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	appt, err := remote.CreateAppointment(ctx, d.ID, p.ID, start)
	if err != nil {
		t.Fatalf("create appointment: %v", err)
	}
	if !appt.StartTime.Equal(start) {
		t.Errorf("start = %v, want %v", appt.StartTime, start)
	}

	if _, err := remote.CreateAppointment(ctx, d.ID, p.ID, start); !errors.Is(err, clinic.ErrSlotTaken) {
		t.Errorf("double booking err = %v, want ErrSlotTaken", err)
	}

	id, err := remote.Login(ctx, "fabio@test.com", "segreta", clinic.RolePatient)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if id.Patient == nil || id.Patient.ID != p.ID {
		t.Errorf("identity = %+v", id)
	}

	appts, err := remote.AppointmentsByPatient(ctx, p.ID)
	if err != nil {
		t.Fatalf("appointments by patient: %v", err)
	}
	if len(appts) != 1 || appts[0].ID != appt.ID {
		t.Errorf("appointments = %+v", appts)
	}

	if err := remote.DeleteAppointment(ctx, appt.ID); err != nil {
		t.Fatalf("delete appointment: %v", err)
	}
	if err := remote.DeleteAppointment(ctx, appt.ID); !errors.Is(err, clinic.ErrAppointmentNotFound) {
		t.Errorf("repeat delete err = %v", err)
	}
}
