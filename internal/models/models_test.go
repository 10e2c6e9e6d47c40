package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	cases := map[string]TimeOfDay{
		"09:00":    NewTimeOfDay(9, 0),
		"17:30":    NewTimeOfDay(17, 30),
		" 08:15 ":  NewTimeOfDay(8, 15),
		"10:30:45": NewTimeOfDay(10, 30),
	}
	for in, want := range cases {
		got, err := ParseTimeOfDay(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "9", "25:00", "10h30"} {
		_, err := ParseTimeOfDay(in)
		assert.Error(t, err, in)
	}
}

func TestTimeOfDay_DatabaseRoundTrip(t *testing.T) {
	v, err := NewTimeOfDay(14, 5).Value()
	require.NoError(t, err)
	assert.Equal(t, "14:05:00", v)

	var got TimeOfDay
	require.NoError(t, got.Scan([]byte("14:05:00")))
	assert.Equal(t, NewTimeOfDay(14, 5), got)
	require.NoError(t, got.Scan(time.Date(0, 1, 1, 7, 45, 0, 0, time.UTC)))
	assert.Equal(t, NewTimeOfDay(7, 45), got)
	assert.Error(t, got.Scan(3.5))
}

func TestTimeOfDay_JSON(t *testing.T) {
	raw, err := json.Marshal(struct {
		At TimeOfDay `json:"at"`
	}{NewTimeOfDay(9, 30)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"at":"09:30"}`, string(raw))

	var back struct {
		At TimeOfDay `json:"at"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"at":"16:00"}`), &back))
	assert.Equal(t, NewTimeOfDay(16, 0), back.At)
	assert.Error(t, json.Unmarshal([]byte(`{"at":960}`), &back))
}

func TestTimeOfDay_On(t *testing.T) {
	loc := time.FixedZone("facility", -6*3600)
	date := time.Date(2025, 6, 10, 23, 59, 0, 0, loc)
	assert.Equal(t, time.Date(2025, 6, 10, 9, 30, 0, 0, loc), NewTimeOfDay(9, 30).On(date))
	assert.Equal(t, "2025-06-10", DateKey(DateOnly(date)))
}

func TestAppointmentStatus_Transitions(t *testing.T) {
	allowed := map[AppointmentStatus][]AppointmentStatus{
		StatusPending:   {StatusConfirmed, StatusStarted, StatusCancelled},
		StatusConfirmed: {StatusStarted, StatusCancelled},
		StatusStarted:   {StatusCompleted, StatusCancelled},
		StatusCompleted: nil,
		StatusCancelled: nil,
	}
	all := []AppointmentStatus{StatusPending, StatusConfirmed, StatusStarted, StatusCompleted, StatusCancelled}
	for from, targets := range allowed {
		for _, to := range all {
			assert.Equal(t, contains(targets, to), from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}

	assert.True(t, StatusStarted.IsBlocking())
	assert.False(t, StatusCancelled.IsBlocking())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusConfirmed.CanReschedule())
	assert.False(t, StatusStarted.CanReschedule())

	s, ok := ParseAppointmentStatus(" confirmed ")
	assert.True(t, ok)
	assert.Equal(t, StatusConfirmed, s)
	_, ok = ParseAppointmentStatus("RESCHEDULED")
	assert.False(t, ok)
}

func contains(list []AppointmentStatus, s AppointmentStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestBlockingSlotKey(t *testing.T) {
	a := Appointment{
		DoctorID: "doc-1",
		Date:     time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		Time:     NewTimeOfDay(9, 30),
		Status:   StatusPending,
	}
	require.NotNil(t, a.BlockingSlotKey())
	assert.Equal(t, "doc-1|2025-06-10|09:30", *a.BlockingSlotKey())
	assert.Equal(t, time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC), a.EndsAt())

	a.Status = StatusCancelled
	assert.Nil(t, a.BlockingSlotKey())

	var doc Doctor
	doc.FirstName, doc.LastName = "Gregory ", "House"
	assert.Equal(t, "Gregory House", doc.FullName())
}
