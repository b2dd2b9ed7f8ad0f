package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/appointix/appointix/internal/clinic"
)

// Authenticator resolves a username/password pair to the account's role
// and record id, the way the original login table lookup did. The role
// is not part of the login request, so this sits outside the Repository
// contract.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (clinic.Role, int, error)
}

type handlers struct {
	repo    clinic.Repository
	auth    Authenticator
	booking *clinic.BookingService
}

func idParam(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "id"))
}

// Doctors

func (h *handlers) listDoctors(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.repo.Doctors(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]clinic.DoctorDTO, 0, len(doctors))
	for _, d := range doctors {
		out = append(out, clinic.ToDoctorDTO(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) getDoctor(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id non valido")
		return
	}
	d, err := h.repo.DoctorByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clinic.ToDoctorDTO(*d))
}

func (h *handlers) updateDoctor(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id non valido")
		return
	}
	var dto clinic.DoctorDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "body JSON non valido")
		return
	}
	d, err := dto.Doctor()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := h.repo.UpdateDoctor(r.Context(), id, d)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clinic.ToDoctorDTO(*updated))
}

func (h *handlers) deleteDoctor(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id non valido")
		return
	}
	if err := h.repo.DeleteDoctor(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Patients

func (h *handlers) listPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := h.repo.Patients(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]clinic.PatientDTO, 0, len(patients))
	for _, p := range patients {
		out = append(out, clinic.ToPatientDTO(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) getPatient(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id non valido")
		return
	}
	p, err := h.repo.PatientByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clinic.ToPatientDTO(*p))
}

func (h *handlers) updatePatient(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id non valido")
		return
	}
	var dto clinic.PatientDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "body JSON non valido")
		return
	}
	updated, err := h.repo.UpdatePatient(r.Context(), id, dto.Patient())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clinic.ToPatientDTO(*updated))
}

func (h *handlers) deletePatient(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id non valido")
		return
	}
	if err := h.repo.DeletePatient(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Appointments

func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	h.writeAppointments(w, r, func(ctx context.Context) ([]clinic.Appointment, error) {
		return h.repo.Appointments(ctx)
	})
}

func (h *handlers) listAppointmentsByDoctor(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id non valido")
		return
	}
	h.writeAppointments(w, r, func(ctx context.Context) ([]clinic.Appointment, error) {
		return h.repo.AppointmentsByDoctor(ctx, id)
	})
}

func (h *handlers) listAppointmentsByPatient(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id non valido")
		return
	}
	h.writeAppointments(w, r, func(ctx context.Context) ([]clinic.Appointment, error) {
		return h.repo.AppointmentsByPatient(ctx, id)
	})
}

func (h *handlers) writeAppointments(w http.ResponseWriter, r *http.Request, load func(context.Context) ([]clinic.Appointment, error)) {
	appts, err := load(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]clinic.AppointmentDTO, 0, len(appts))
	for _, a := range appts {
		out = append(out, clinic.ToAppointmentDTO(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id non valido")
		return
	}
	a, err := h.repo.AppointmentByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clinic.ToAppointmentDTO(*a))
}

func (h *handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req clinic.CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "body JSON non valido")
		return
	}
	if req.DoctorID == 0 || req.PatientID == 0 || req.StartTime.IsZero() {
		writeError(w, http.StatusBadRequest, "Campi obbligatori mancanti")
		return
	}

	appt, err := h.booking.BookAppointment(r.Context(), req.DoctorID, req.PatientID, req.StartTime.Time)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, clinic.ToAppointmentDTO(*appt))
}

func (h *handlers) deleteAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id non valido")
		return
	}
	if err := h.repo.DeleteAppointment(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Accounts

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req clinic.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "body JSON non valido")
		return
	}
	if req.Username == "" || req.Password == "" || req.Role == "" || req.FirstName == "" || req.LastName == "" {
		writeError(w, http.StatusBadRequest, "Campi obbligatori mancanti")
		return
	}

	switch clinic.Role(req.Role) {
	case clinic.RolePatient:
		p, err := h.repo.CreatePatient(r.Context(), clinic.NewPatient{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     req.Email,
			Password:  req.Password,
			Phone:     req.Phone,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, clinic.RegisterResponse{
			Message:   "Registrazione completata con successo",
			PatientID: p.ID,
		})

	case clinic.RoleDoctor:
		nd := clinic.NewDoctor{
			FirstName:           req.FirstName,
			LastName:            req.LastName,
			Specialization:      req.Specialization,
			Email:               req.Email,
			Password:            req.Password,
			Phone:               req.Phone,
			City:                req.City,
			AppointmentDuration: req.AppointmentDuration,
			WeekdaysAvailable:   req.WeekdaysAvailable,
		}
		if req.Specialization == "" {
			nd.Specialization = "Generico"
		}
		if req.WorkStart != "" {
			start, err := clinic.ParseClockTime(req.WorkStart)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			nd.WorkStart = start
		}
		if req.WorkEnd != "" {
			end, err := clinic.ParseClockTime(req.WorkEnd)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			nd.WorkEnd = end
		}
		d, err := h.repo.CreateDoctor(r.Context(), nd)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, clinic.RegisterResponse{
			Message:  "Registrazione completata con successo",
			DoctorID: d.ID,
		})

	default:
		writeError(w, http.StatusBadRequest, "Ruolo non valido. Usa 'P' o 'D'.")
	}
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req clinic.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "body JSON non valido")
		return
	}

	role, id, err := h.auth.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, clinic.ErrAuthFailed) {
			writeError(w, http.StatusUnauthorized, "Credenziali non valide")
			return
		}
		writeError(w, http.StatusInternalServerError, "Errore nel server")
		return
	}

	writeJSON(w, http.StatusOK, clinic.LoginResponse{
		Message: "Login riuscito",
		Role:    string(role),
		ID:      id,
	})
}

// writeDomainError maps repository sentinels onto the statuses the
// remote backend decodes on the other side.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, clinic.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "paziente non trovato")
	case errors.Is(err, clinic.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "dottore non trovato")
	case errors.Is(err, clinic.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "prenotazione non trovata")
	case errors.Is(err, clinic.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, "email già registrata")
	case errors.Is(err, clinic.ErrSlotTaken):
		writeError(w, http.StatusConflict, "il dottore è già occupato in quell'orario")
	case errors.Is(err, clinic.ErrSlotBeingBooked):
		writeError(w, http.StatusConflict, "prenotazione in corso per quell'orario, riprova")
	case errors.Is(err, clinic.ErrOutsideWorkingHours):
		writeError(w, http.StatusUnprocessableEntity, "orario fuori dalla disponibilità del dottore")
	case errors.Is(err, clinic.ErrUnknownRole):
		writeError(w, http.StatusBadRequest, "Ruolo non valido. Usa 'P' o 'D'.")
	default:
		writeError(w, http.StatusInternalServerError, "Errore nel server")
	}
}
