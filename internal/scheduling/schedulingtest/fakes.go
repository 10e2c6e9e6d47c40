// Package schedulingtest provides in-memory collaborators for scheduling tests.
package schedulingtest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"clinic-booking-server/internal/models"
	"clinic-booking-server/internal/scheduling"
)

// AppointmentStore keeps appointments in memory and enforces the same
// blocking-slot uniqueness as the database index.
type AppointmentStore struct {
	mu    sync.Mutex
	rows  map[string]models.Appointment
	calls map[string]int

	// Err, when set, is returned by every method.
	Err error
}

func NewAppointmentStore(seed ...models.Appointment) *AppointmentStore {
	s := &AppointmentStore{rows: make(map[string]models.Appointment), calls: make(map[string]int)}
	for _, a := range seed {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		s.rows[a.ID] = a
	}
	return s
}

// Calls returns how many times method was invoked.
func (s *AppointmentStore) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// Get returns a stored copy, bypassing call counting.
func (s *AppointmentStore) Get(id string) (models.Appointment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.rows[id]
	return a, ok
}

// All returns every row ordered by start.
func (s *AppointmentStore) All() []models.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(models.Appointment) bool { return true })
}

func (s *AppointmentStore) FindByDoctorAndDateRange(_ context.Context, doctorID string, from, to time.Time) ([]models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["FindByDoctorAndDateRange"]++
	if s.Err != nil {
		return nil, s.Err
	}
	lo, hi := models.DateKey(from), models.DateKey(to)
	return s.sorted(func(a models.Appointment) bool {
		key := models.DateKey(a.Date)
		return a.DoctorID == doctorID && key >= lo && key <= hi
	}), nil
}

func (s *AppointmentStore) FindByID(_ context.Context, id string) (*models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["FindByID"]++
	if s.Err != nil {
		return nil, s.Err
	}
	a, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *AppointmentStore) FindByPatientAndID(_ context.Context, patientID, id string) (*models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["FindByPatientAndID"]++
	if s.Err != nil {
		return nil, s.Err
	}
	a, ok := s.rows[id]
	if !ok || a.PatientID != patientID {
		return nil, nil
	}
	return &a, nil
}

func (s *AppointmentStore) FindByPatient(_ context.Context, patientID string) ([]models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["FindByPatient"]++
	if s.Err != nil {
		return nil, s.Err
	}
	return s.sorted(func(a models.Appointment) bool { return a.PatientID == patientID }), nil
}

func (s *AppointmentStore) FindByDoctorFrom(_ context.Context, doctorID string, from time.Time) ([]models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["FindByDoctorFrom"]++
	if s.Err != nil {
		return nil, s.Err
	}
	lo := models.DateKey(from)
	return s.sorted(func(a models.Appointment) bool {
		return a.DoctorID == doctorID && models.DateKey(a.Date) >= lo
	}), nil
}

func (s *AppointmentStore) Insert(_ context.Context, a *models.Appointment) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["Insert"]++
	if s.Err != nil {
		return "", s.Err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if err := s.guard(a); err != nil {
		return "", err
	}
	a.SlotKey = a.BlockingSlotKey()
	s.rows[a.ID] = *a
	return a.ID, nil
}

func (s *AppointmentStore) Update(_ context.Context, a *models.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["Update"]++
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.rows[a.ID]; !ok {
		return errors.New("record not found")
	}
	if err := s.guard(a); err != nil {
		return err
	}
	a.SlotKey = a.BlockingSlotKey()
	s.rows[a.ID] = *a
	return nil
}

func (s *AppointmentStore) CompleteWithFollowUp(_ context.Context, completed, followUp *models.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["CompleteWithFollowUp"]++
	if s.Err != nil {
		return s.Err
	}
	if followUp != nil {
		if followUp.ID == "" {
			followUp.ID = uuid.NewString()
		}
		if err := s.guard(followUp); err != nil {
			return err
		}
	}
	completed.SlotKey = completed.BlockingSlotKey()
	s.rows[completed.ID] = *completed
	if followUp != nil {
		followUp.SlotKey = followUp.BlockingSlotKey()
		s.rows[followUp.ID] = *followUp
	}
	return nil
}

// guard mirrors the unique index on the blocking slot key.
func (s *AppointmentStore) guard(a *models.Appointment) error {
	key := a.BlockingSlotKey()
	if key == nil {
		return nil
	}
	for id, row := range s.rows {
		if id == a.ID {
			continue
		}
		if other := row.BlockingSlotKey(); other != nil && *other == *key {
			return scheduling.ErrSlotTaken
		}
	}
	return nil
}

func (s *AppointmentStore) sorted(keep func(models.Appointment) bool) []models.Appointment {
	out := make([]models.Appointment, 0, len(s.rows))
	for _, a := range s.rows {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt().Equal(out[j].StartsAt()) {
			return out[i].StartsAt().Before(out[j].StartsAt())
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Directory is an in-memory ProfileDirectory.
type Directory struct {
	Specialties map[string]models.Specialty
	Doctors     map[string]models.Doctor
	Patients    map[string]models.Patient
}

func NewDirectory() *Directory {
	return &Directory{
		Specialties: make(map[string]models.Specialty),
		Doctors:     make(map[string]models.Doctor),
		Patients:    make(map[string]models.Patient),
	}
}

func (d *Directory) AddSpecialty(id, name string) *Directory {
	s := models.Specialty{Name: name, Active: true}
	s.ID = id
	d.Specialties[id] = s
	return d
}

func (d *Directory) AddDoctor(id, specialtyID, firstName, lastName string) *Directory {
	doc := models.Doctor{FirstName: firstName, LastName: lastName, SpecialtyID: specialtyID, License: "LIC-" + id, Active: true}
	doc.ID = id
	d.Doctors[id] = doc
	return d
}

func (d *Directory) AddPatient(id, firstName, lastName string) *Directory {
	p := models.Patient{FirstName: firstName, LastName: lastName, Email: strings.ToLower(firstName) + "@example.com", Active: true}
	p.ID = id
	d.Patients[id] = p
	return d
}

func (d *Directory) GetActiveDoctor(_ context.Context, doctorID string) (*models.Doctor, error) {
	doc, ok := d.Doctors[doctorID]
	if !ok || !doc.Active {
		return nil, nil
	}
	return &doc, nil
}

func (d *Directory) GetDoctorsBySpecialty(_ context.Context, specialtyID string) ([]models.Doctor, error) {
	var out []models.Doctor
	for _, doc := range d.Doctors {
		if doc.SpecialtyID == specialtyID && doc.Active {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName() < out[j].FullName() })
	return out, nil
}

func (d *Directory) GetPatient(_ context.Context, patientID string) (*models.Patient, error) {
	p, ok := d.Patients[patientID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (d *Directory) GetSpecialty(_ context.Context, specialtyID string) (*models.Specialty, error) {
	s, ok := d.Specialties[specialtyID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (d *Directory) ListSpecialties(_ context.Context, search string) ([]scheduling.SpecialtySummary, error) {
	search = strings.ToLower(search)
	var out []scheduling.SpecialtySummary
	for _, s := range d.Specialties {
		text := strings.ToLower(s.Name + " " + s.Description)
		if !s.Active || !strings.Contains(text, search) {
			continue
		}
		count := 0
		for _, doc := range d.Doctors {
			if doc.SpecialtyID == s.ID && doc.Active {
				count++
			}
		}
		out = append(out, scheduling.SpecialtySummary{Specialty: s, ActiveDoctors: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Event is one recorded notification.
type Event struct {
	Kind      models.NotificationEvent
	DoctorID  string
	PatientID string
	When      time.Time
	OldWhen   time.Time
	Reason    string
}

// Notifier records notifications. When Err is set every call fails after recording.
type Notifier struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func (n *Notifier) Events() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Event(nil), n.events...)
}

func (n *Notifier) record(e Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return n.Err
}

func (n *Notifier) NotifyCreated(_ context.Context, doctorID, patientID string, when time.Time, reason string) error {
	return n.record(Event{Kind: models.EventCreated, DoctorID: doctorID, PatientID: patientID, When: when, Reason: reason})
}

func (n *Notifier) NotifyCancelled(_ context.Context, doctorID, patientID string, when time.Time, reason string) error {
	return n.record(Event{Kind: models.EventCancelled, DoctorID: doctorID, PatientID: patientID, When: when, Reason: reason})
}

func (n *Notifier) NotifyRescheduled(_ context.Context, doctorID, patientID string, oldWhen, newWhen time.Time, reason string) error {
	return n.record(Event{Kind: models.EventRescheduled, DoctorID: doctorID, PatientID: patientID, When: newWhen, OldWhen: oldWhen, Reason: reason})
}

func (n *Notifier) NotifyCompleted(_ context.Context, doctorID, patientID string, when time.Time) error {
	return n.record(Event{Kind: models.EventCompleted, DoctorID: doctorID, PatientID: patientID, When: when})
}

// FixedClock returns a Clock frozen at t.
func FixedClock(t time.Time) scheduling.Clock {
	return func() time.Time { return t }
}
