package scheduling_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-booking-server/internal/models"
	"clinic-booking-server/internal/scheduling"
)

func TestComplete_WithFollowUp(t *testing.T) {
	started := appointment("a1", drHouse, alice, "2025-06-09", "09:00", models.StatusStarted)
	started.IsVirtual = true
	started.DurationMinutes = 45
	f := newFixture(t, started)

	res, err := f.machine.Complete(context.Background(), doctorHouse, "a1", scheduling.CompletionRequest{
		Diagnosis: "Seasonal allergy",
		Treatment: "Antihistamines for ten days",
		FollowUp:  &scheduling.FollowUpRequest{Date: day("2025-06-16"), Time: tod("09:00")},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, res.Appointment.Status)
	assert.Equal(t, "Seasonal allergy", res.Appointment.Diagnosis)

	require.NotNil(t, res.FollowUp)
	fu := res.FollowUp
	assert.Equal(t, models.StatusPending, fu.Status)
	assert.True(t, fu.IsFollowUp)
	assert.True(t, fu.IsVirtual)
	assert.Equal(t, 45, fu.DurationMinutes)
	assert.Equal(t, "Follow-up appointment", fu.Reason)
	assert.Equal(t, alice, fu.PatientID)
	assert.Equal(t, drHouse, fu.DoctorID)

	pending := 0
	for _, a := range f.store.All() {
		if a.Status == models.StatusPending {
			pending++
		}
	}
	assert.Equal(t, 1, pending)

	events := f.notifier.Events()
	require.Len(t, events, 2)
	assert.Equal(t, models.EventCompleted, events[0].Kind)
	assert.Equal(t, models.EventCreated, events[1].Kind)
	assert.Equal(t, time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC), events[1].When)
}

func TestComplete_WithoutFollowUp(t *testing.T) {
	f := newFixture(t, appointment("a1", drHouse, alice, "2025-06-09", "09:00", models.StatusStarted))
	res, err := f.machine.Complete(context.Background(), admin, "a1", scheduling.CompletionRequest{
		Diagnosis: "Healthy", Treatment: "None", Notes: "Routine check",
	})
	require.NoError(t, err)
	assert.Nil(t, res.FollowUp)
	assert.Equal(t, "Routine check", res.Appointment.Notes)
	assert.Len(t, f.notifier.Events(), 1)
}

func TestComplete_Rejections(t *testing.T) {
	f := newFixture(t,
		appointment("started", drHouse, alice, "2025-06-09", "09:00", models.StatusStarted),
		appointment("pending", drHouse, alice, "2025-06-10", "09:00", models.StatusPending),
		appointment("done", drHouse, alice, "2025-06-02", "09:00", models.StatusCompleted),
		appointment("busy", drHouse, bob, "2025-06-16", "09:00", models.StatusConfirmed),
		appointment("adams", drAdams, bob, "2025-06-09", "09:30", models.StatusStarted),
	)
	ctx := context.Background()
	valid := scheduling.CompletionRequest{Diagnosis: "d", Treatment: "t"}

	_, err := f.machine.Complete(ctx, doctorHouse, "started", scheduling.CompletionRequest{Diagnosis: " ", Treatment: "t"})
	assertKind(t, scheduling.KindValidation, err)

	_, err = f.machine.Complete(ctx, doctorHouse, "pending", valid)
	assertKind(t, scheduling.KindConflict, err)
	_, err = f.machine.Complete(ctx, doctorHouse, "pending", scheduling.CompletionRequest{})
	assertKind(t, scheduling.KindConflict, err)
	_, err = f.machine.Complete(ctx, doctorHouse, "done", scheduling.CompletionRequest{})
	assertKind(t, scheduling.KindConflict, err)

	_, err = f.machine.Complete(ctx, doctorHouse, "done", valid)
	assertKind(t, scheduling.KindConflict, err)

	_, err = f.machine.Complete(ctx, doctorHouse, "adams", valid)
	assertKind(t, scheduling.KindNotFound, err)

	withFollowUp := func(date, at string) scheduling.CompletionRequest {
		r := valid
		r.FollowUp = &scheduling.FollowUpRequest{Date: day(date), Time: tod(at)}
		return r
	}
	_, err = f.machine.Complete(ctx, doctorHouse, "started", withFollowUp("2025-06-16", "09:00"))
	assertKind(t, scheduling.KindConflict, err)
	_, err = f.machine.Complete(ctx, doctorHouse, "started", withFollowUp("2025-06-16", "09:10"))
	assertKind(t, scheduling.KindValidation, err)
	_, err = f.machine.Complete(ctx, doctorHouse, "started", withFollowUp("2025-06-02", "09:00"))
	assertKind(t, scheduling.KindValidation, err)

	stored, _ := f.store.Get("started")
	assert.Equal(t, models.StatusStarted, stored.Status, "failed completion leaves the appointment untouched")
	assert.Zero(t, f.store.Calls("CompleteWithFollowUp"))
	assert.Empty(t, f.notifier.Events())
}

func TestCancel_IsIdempotent(t *testing.T) {
	f := newFixture(t, appointment("a1", drHouse, alice, "2025-06-10", "10:00", models.StatusConfirmed))
	ctx := context.Background()

	res, err := f.machine.Cancel(ctx, patientAlice, "a1", "")
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, models.StatusCancelled, res.Appointment.Status)
	assert.Equal(t, "Cancelled by the patient", res.Appointment.CancellationReason)

	res, err = f.machine.Cancel(ctx, patientAlice, "a1", "changed my mind")
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, "Cancelled by the patient", res.Appointment.CancellationReason)

	assert.Len(t, f.notifier.Events(), 1)

	free, err := f.workflow.CheckSlot(ctx, patientAlice, drHouse, day("2025-06-10"), tod("10:00"), "")
	require.NoError(t, err)
	assert.True(t, free, "cancelled appointments release their slot")

	_, err = f.workflow.Create(ctx, booking(alice, drHouse, "2025-06-10", "10:00"))
	require.NoError(t, err)
}

func TestCancel_Rules(t *testing.T) {
	f := newFixture(t,
		appointment("started", drHouse, alice, "2025-06-09", "09:00", models.StatusStarted),
		appointment("done", drHouse, alice, "2025-06-02", "09:00", models.StatusCompleted),
		appointment("pending", drHouse, alice, "2025-06-10", "09:00", models.StatusPending),
	)
	ctx := context.Background()

	_, err := f.machine.Cancel(ctx, doctorHouse, "pending", "  ")
	assertKind(t, scheduling.KindValidation, err)

	res, err := f.machine.Cancel(ctx, doctorHouse, "pending", "Doctor unavailable")
	require.NoError(t, err)
	assert.Equal(t, "Doctor unavailable", res.Appointment.CancellationReason)
	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "Doctor unavailable", events[0].Reason)

	_, err = f.machine.Cancel(ctx, patientAlice, "done", "")
	assertKind(t, scheduling.KindConflict, err)

	_, err = f.machine.Cancel(ctx, doctorHouse, "started", "")
	assertKind(t, scheduling.KindValidation, err)
	res, err = f.machine.Cancel(ctx, doctorHouse, "started", "Patient left")
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, models.StatusCancelled, res.Appointment.Status)
	stored, _ := f.store.Get("started")
	assert.Equal(t, "Patient left", stored.CancellationReason)
	assert.Nil(t, stored.BlockingSlotKey(), "a cancelled consultation releases its slot")

	_, err = f.machine.Cancel(ctx, scheduling.Actor{ID: bob, Role: models.RolePatient}, "pending", "")
	assertKind(t, scheduling.KindNotFound, err)
}

func TestConfirmAndStart(t *testing.T) {
	f := newFixture(t,
		appointment("a1", drHouse, alice, "2025-06-10", "10:00", models.StatusPending),
		appointment("gone", drHouse, alice, "2025-06-10", "11:00", models.StatusCancelled),
	)
	ctx := context.Background()

	appt, err := f.machine.Confirm(ctx, patientAlice, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, appt.Status)

	appt, err = f.machine.Confirm(ctx, patientAlice, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, appt.Status)

	appt, err = f.machine.Start(ctx, doctorHouse, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusStarted, appt.Status)

	appt, err = f.machine.Start(ctx, doctorHouse, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusStarted, appt.Status)

	_, err = f.machine.Confirm(ctx, patientAlice, "a1")
	assertKind(t, scheduling.KindConflict, err)

	_, err = f.machine.Start(ctx, admin, "gone")
	assertKind(t, scheduling.KindConflict, err)

	free, err := f.workflow.CheckSlot(ctx, patientAlice, drHouse, day("2025-06-10"), tod("10:00"), "")
	require.NoError(t, err)
	assert.False(t, free, "started appointments keep blocking")

	assert.Empty(t, f.notifier.Events())
}

func TestGet_ScopedToActor(t *testing.T) {
	f := newFixture(t, appointment("a1", drHouse, alice, "2025-06-10", "10:00", models.StatusPending))
	ctx := context.Background()

	for _, actor := range []scheduling.Actor{patientAlice, doctorHouse, admin} {
		appt, err := f.machine.Get(ctx, actor, "a1")
		require.NoError(t, err)
		assert.Equal(t, "a1", appt.ID)
	}
	for _, actor := range []scheduling.Actor{
		{ID: bob, Role: models.RolePatient},
		{ID: drAdams, Role: models.RoleDoctor},
		{ID: "x", Role: "guest"},
	} {
		_, err := f.machine.Get(ctx, actor, "a1")
		assertKind(t, scheduling.KindNotFound, err)
	}
	_, err := f.machine.Get(ctx, admin, "missing")
	assertKind(t, scheduling.KindNotFound, err)
}
