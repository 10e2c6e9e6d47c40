package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"clinic-booking-server/internal/models"
	"clinic-booking-server/internal/notify"
	"clinic-booking-server/internal/scheduling"
	"clinic-booking-server/internal/utils"
)

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name     string
		err      error
		status   int
		reselect bool
		logged   bool
	}{
		{"validation", &scheduling.Error{Kind: scheduling.KindValidation, Message: "bad time"}, http.StatusBadRequest, false, false},
		{"not found", &scheduling.Error{Kind: scheduling.KindNotFound, Message: "gone"}, http.StatusNotFound, false, false},
		{"transition", &scheduling.Error{Kind: scheduling.KindConflict, Message: "not started"}, http.StatusConflict, false, false},
		{"slot taken", fmt.Errorf("create: %w", &scheduling.Error{Kind: scheduling.KindConflict, Message: "taken", Reselect: true}), http.StatusConflict, true, false},
		{"persistence", &scheduling.Error{Kind: scheduling.KindPersistence, Message: "insert", Err: errors.New("db down")}, http.StatusInternalServerError, false, true},
		{"inbox miss", notify.ErrNotFound, http.StatusNotFound, false, false},
		{"no inbox", notify.ErrUnsupportedRecipient, http.StatusForbidden, false, false},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.InfoLevel)
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/appointments", nil)

			respondError(c, zap.New(core), tc.err)

			assert.Equal(t, tc.status, rec.Code)
			var body utils.ResponseData
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.reselect, body.Reselect)
			assert.Equal(t, tc.logged, logs.FilterMessage("request failed").Len() == 1)
		})
	}
}

func TestParseSelection(t *testing.T) {
	sel, err := parseSelection("", "09:00")
	require.NoError(t, err)
	assert.Nil(t, sel)

	sel, err = parseSelection("2025-06-10", "09:30")
	require.NoError(t, err)
	require.NotNil(t, sel)
	assert.Equal(t, "2025-06-10", models.DateKey(sel.Date))
	assert.Equal(t, models.NewTimeOfDay(9, 30), sel.Time)

	_, err = parseSelection("10/06/2025", "09:30")
	assert.Error(t, err)
}
