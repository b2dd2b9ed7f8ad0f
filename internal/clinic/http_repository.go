package clinic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ProbeTimeout bounds the connectivity check used to decide between the
// remote and the in-memory backend.
const ProbeTimeout = 5 * time.Second

// DefaultRequestTimeout bounds every CRUD round-trip. The original client
// could pend forever on a dead server; this port cannot.
const DefaultRequestTimeout = 10 * time.Second

// ErrRemote wraps any transport failure or unexpected status from the
// server so callers can tell "the backend said no" from "the backend is
// unreachable".
var ErrRemote = errors.New("remote backend error")

// HTTPRepository implements Repository against the wire-protocol server
// (base path /api). List bodies are raw JSON arrays, timestamps use the
// server's "YYYY-MM-DD hh:mm:ss" format.
type HTTPRepository struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

func NewHTTPRepository(baseURL string, timeout time.Duration) *HTTPRepository {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &HTTPRepository{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		timeout: timeout,
	}
}

var _ Repository = (*HTTPRepository)(nil)

// Probe checks whether the server answers on its test endpoint within
// ProbeTimeout. Used only by the connection selector, never for CRUD.
func (r *HTTPRepository) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/test", nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: probe: %v", ErrRemote, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: probe status %d", ErrRemote, resp.StatusCode)
	}
	return nil
}

func (r *HTTPRepository) CreatePatient(ctx context.Context, np NewPatient) (*Patient, error) {
	req := RegisterRequest{
		Username:  Username(np.Email),
		Password:  np.Password,
		Role:      string(RolePatient),
		FirstName: np.FirstName,
		LastName:  np.LastName,
		Email:     np.Email,
		Phone:     np.Phone,
	}
	var resp RegisterResponse
	if err := r.do(ctx, http.MethodPost, "/register", req, &resp, registerErrors); err != nil {
		return nil, err
	}
	return &Patient{
		ID:        resp.PatientID,
		FirstName: np.FirstName,
		LastName:  np.LastName,
		Email:     np.Email,
		Phone:     np.Phone,
	}, nil
}

func (r *HTTPRepository) CreateDoctor(ctx context.Context, nd NewDoctor) (*Doctor, error) {
	d := nd.Doctor()
	if err := d.Validate(); err != nil {
		return nil, err
	}

	req := RegisterRequest{
		Username:            Username(nd.Email),
		Password:            nd.Password,
		Role:                string(RoleDoctor),
		FirstName:           nd.FirstName,
		LastName:            nd.LastName,
		Email:               nd.Email,
		Phone:               nd.Phone,
		Specialization:      nd.Specialization,
		City:                nd.City,
		AppointmentDuration: nd.AppointmentDuration,
		WeekdaysAvailable:   nd.WeekdaysAvailable,
	}
	if nd.WorkStart != 0 || nd.WorkEnd != 0 {
		req.WorkStart = nd.WorkStart.String()
		req.WorkEnd = nd.WorkEnd.String()
	}

	var resp RegisterResponse
	if err := r.do(ctx, http.MethodPost, "/register", req, &resp, registerErrors); err != nil {
		return nil, err
	}
	d.ID = resp.DoctorID
	return &d, nil
}

func (r *HTTPRepository) CreateAppointment(ctx context.Context, doctorID, patientID int, start time.Time) (*Appointment, error) {
	req := CreateAppointmentRequest{
		PatientID: patientID,
		DoctorID:  doctorID,
		StartTime: WireTime{start},
	}
	var dto AppointmentDTO
	if err := r.do(ctx, http.MethodPost, "/creaprenotazione", req, &dto, bookingErrors); err != nil {
		return nil, err
	}
	appt := dto.Appointment()
	return &appt, nil
}

func (r *HTTPRepository) PatientByID(ctx context.Context, id int) (*Patient, error) {
	var dto PatientDTO
	if err := r.do(ctx, http.MethodGet, fmt.Sprintf("/pazienti/%d", id), nil, &dto, notFoundAs(ErrPatientNotFound)); err != nil {
		return nil, err
	}
	p := dto.Patient()
	return &p, nil
}

func (r *HTTPRepository) DoctorByID(ctx context.Context, id int) (*Doctor, error) {
	var dto DoctorDTO
	if err := r.do(ctx, http.MethodGet, fmt.Sprintf("/dottori/%d", id), nil, &dto, notFoundAs(ErrDoctorNotFound)); err != nil {
		return nil, err
	}
	d, err := dto.Doctor()
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *HTTPRepository) AppointmentByID(ctx context.Context, id int) (*Appointment, error) {
	var dto AppointmentDTO
	if err := r.do(ctx, http.MethodGet, fmt.Sprintf("/prenotazioni/%d", id), nil, &dto, notFoundAs(ErrAppointmentNotFound)); err != nil {
		return nil, err
	}
	a := dto.Appointment()
	return &a, nil
}

func (r *HTTPRepository) Patients(ctx context.Context) ([]Patient, error) {
	var dtos []PatientDTO
	if err := r.do(ctx, http.MethodGet, "/pazienti", nil, &dtos, nil); err != nil {
		return nil, err
	}
	out := make([]Patient, 0, len(dtos))
	for _, dto := range dtos {
		out = append(out, dto.Patient())
	}
	return out, nil
}

func (r *HTTPRepository) Doctors(ctx context.Context) ([]Doctor, error) {
	var dtos []DoctorDTO
	if err := r.do(ctx, http.MethodGet, "/dottori", nil, &dtos, nil); err != nil {
		return nil, err
	}
	out := make([]Doctor, 0, len(dtos))
	for _, dto := range dtos {
		d, err := dto.Doctor()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *HTTPRepository) Appointments(ctx context.Context) ([]Appointment, error) {
	return r.appointmentList(ctx, "/prenotazioni")
}

func (r *HTTPRepository) AppointmentsByPatient(ctx context.Context, patientID int) ([]Appointment, error) {
	return r.appointmentList(ctx, fmt.Sprintf("/prenotazioni/paziente/%d", patientID))
}

func (r *HTTPRepository) AppointmentsByDoctor(ctx context.Context, doctorID int) ([]Appointment, error) {
	return r.appointmentList(ctx, fmt.Sprintf("/prenotazioni/dottore/%d", doctorID))
}

func (r *HTTPRepository) appointmentList(ctx context.Context, path string) ([]Appointment, error) {
	var dtos []AppointmentDTO
	if err := r.do(ctx, http.MethodGet, path, nil, &dtos, nil); err != nil {
		return nil, err
	}
	out := make([]Appointment, 0, len(dtos))
	for _, dto := range dtos {
		out = append(out, dto.Appointment())
	}
	return out, nil
}

func (r *HTTPRepository) UpdatePatient(ctx context.Context, id int, p Patient) (*Patient, error) {
	var dto PatientDTO
	if err := r.do(ctx, http.MethodPut, fmt.Sprintf("/pazienti/%d", id), ToPatientDTO(p), &dto, notFoundAs(ErrPatientNotFound)); err != nil {
		return nil, err
	}
	updated := dto.Patient()
	return &updated, nil
}

func (r *HTTPRepository) UpdateDoctor(ctx context.Context, id int, d Doctor) (*Doctor, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	var dto DoctorDTO
	if err := r.do(ctx, http.MethodPut, fmt.Sprintf("/dottori/%d", id), ToDoctorDTO(d), &dto, notFoundAs(ErrDoctorNotFound)); err != nil {
		return nil, err
	}
	updated, err := dto.Doctor()
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *HTTPRepository) DeletePatient(ctx context.Context, id int) error {
	return r.do(ctx, http.MethodDelete, fmt.Sprintf("/pazienti/%d", id), nil, nil, notFoundAs(ErrPatientNotFound))
}

func (r *HTTPRepository) DeleteDoctor(ctx context.Context, id int) error {
	return r.do(ctx, http.MethodDelete, fmt.Sprintf("/dottori/%d", id), nil, nil, notFoundAs(ErrDoctorNotFound))
}

func (r *HTTPRepository) DeleteAppointment(ctx context.Context, id int) error {
	return r.do(ctx, http.MethodDelete, fmt.Sprintf("/prenotazioni/%d", id), nil, nil, notFoundAs(ErrAppointmentNotFound))
}

// Login authenticates against the server, then loads the matching record
// so callers get a full identity, not just an id.
func (r *HTTPRepository) Login(ctx context.Context, email, password string, role Role) (*Identity, error) {
	if !role.Valid() {
		return nil, ErrUnknownRole
	}

	req := LoginRequest{Username: Username(email), Password: password}
	var resp LoginResponse
	err := r.do(ctx, http.MethodPost, "/login", req, &resp, nil)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %s", ErrAuthFailed, se.message)
		}
		return nil, err
	}

	if Role(resp.Role) != role {
		return nil, fmt.Errorf("%w: account registered with a different role", ErrAuthFailed)
	}

	switch role {
	case RolePatient:
		p, err := r.PatientByID(ctx, resp.ID)
		if err != nil {
			return nil, fmt.Errorf("load patient after login: %w", err)
		}
		return &Identity{Role: RolePatient, Patient: p}, nil
	default:
		d, err := r.DoctorByID(ctx, resp.ID)
		if err != nil {
			return nil, fmt.Errorf("load doctor after login: %w", err)
		}
		return &Identity{Role: RoleDoctor, Doctor: d}, nil
	}
}

// statusError is a non-2xx response, carrying the server's message body.
type statusError struct {
	code    int
	message string
}

func (e *statusError) Error() string {
	if e.message != "" {
		return fmt.Sprintf("remote backend error: status %d: %s", e.code, e.message)
	}
	return fmt.Sprintf("remote backend error: status %d", e.code)
}

func (e *statusError) Unwrap() error { return ErrRemote }

// errorMapper converts a status error from one endpoint into the domain
// sentinel that endpoint's failures mean.
type errorMapper func(*statusError) error

func notFoundAs(sentinel error) errorMapper {
	return func(se *statusError) error {
		if se.code == http.StatusNotFound {
			return sentinel
		}
		return se
	}
}

func registerErrors(se *statusError) error {
	if se.code == http.StatusConflict {
		return ErrDuplicateEmail
	}
	return se
}

func bookingErrors(se *statusError) error {
	switch se.code {
	case http.StatusConflict:
		return ErrSlotTaken
	case http.StatusNotFound:
		if strings.Contains(se.message, "paziente") {
			return ErrPatientNotFound
		}
		return ErrDoctorNotFound
	case http.StatusUnprocessableEntity:
		return ErrOutsideWorkingHours
	}
	return se
}

func (r *HTTPRepository) do(ctx context.Context, method, path string, body, out any, mapErr errorMapper) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrRemote, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &statusError{code: resp.StatusCode, message: readMessage(resp.Body)}
		if mapErr != nil {
			return mapErr(se)
		}
		return se
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func readMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(data))
}
