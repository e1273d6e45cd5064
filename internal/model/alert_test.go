package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertSpec_MarshalJSON(t *testing.T) {
	spec := AlertSpec{
		Name:                 "Production Router 500s",
		Metric:               "cloudwatch.application_500s.production.router.500s.sum",
		AlertCriteria:        Above(0),
		NotificationChannels: []string{"Notify DM 2ndline"},
		NotificationType:     Every(time.Minute),
		Info:                 "500s have occured",
	}

	data, err := json.Marshal(spec)
	require.NoError(t, err)

	expected := `{
		"name": "Production Router 500s",
		"metric": "cloudwatch.application_500s.production.router.500s.sum",
		"alert_criteria": {"type": "above", "above_value": 0},
		"notification_channels": ["Notify DM 2ndline"],
		"notification_type": ["every", 60],
		"info": "500s have occured"
	}`
	assert.JSONEq(t, expected, string(data))
}

func TestAlertSpec_CompositeMarshalJSON(t *testing.T) {
	spec := AlertSpec{
		Name:          "preview api missing logs",
		Metric:        "a.metric",
		AlertCriteria: Missing(10),
		AdditionalCriteria: map[string]MetricCriteria{
			"b": {Metric: "b.metric", Criteria: Missing(10)},
		},
		Expression:           "a || b",
		NotificationChannels: []string{"ops"},
		NotificationType:     Every(time.Minute),
	}

	data, err := json.Marshal(spec)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "a || b", decoded["expression"])
	assert.Equal(t, map[string]interface{}{"type": "missing", "time_period": float64(10)}, decoded["alert_criteria"])
	assert.Equal(t, map[string]interface{}{
		"b": map[string]interface{}{
			"metric":      "b.metric",
			"type":        "missing",
			"time_period": float64(10),
		},
	}, decoded["additional_criteria"])

	var roundTrip AlertSpec
	require.NoError(t, json.Unmarshal(data, &roundTrip))
	assert.Equal(t, spec, roundTrip)
}

func TestAlertCriteria_UnsupportedType(t *testing.T) {
	_, err := json.Marshal(AlertSpec{AlertCriteria: AlertCriteria{Type: "below"}})
	require.Error(t, err)
}

func TestNotificationType_UnmarshalJSON(t *testing.T) {
	var n NotificationType
	require.NoError(t, json.Unmarshal([]byte(`["every", 300]`), &n))
	assert.Equal(t, "every", n.Cadence)
	assert.Equal(t, 5*time.Minute, n.Interval)

	err := json.Unmarshal([]byte(`["every"]`), &n)
	require.Error(t, err)
}
