package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// CriteriaType represents the kind of condition an alert evaluates
type CriteriaType string

const (
	CriteriaTypeAbove   CriteriaType = "above"
	CriteriaTypeMissing CriteriaType = "missing"
)

// AlertCriteria is the condition a metric is checked against.
// Above criteria carry AboveValue, missing-data criteria carry TimePeriod in minutes.
type AlertCriteria struct {
	Type       CriteriaType
	AboveValue float64
	TimePeriod int
}

// Above returns criteria that fire when the metric exceeds value
func Above(value float64) AlertCriteria {
	return AlertCriteria{Type: CriteriaTypeAbove, AboveValue: value}
}

// Missing returns criteria that fire when no data arrives for the given minutes
func Missing(minutes int) AlertCriteria {
	return AlertCriteria{Type: CriteriaTypeMissing, TimePeriod: minutes}
}

func (c AlertCriteria) fields() (map[string]interface{}, error) {
	switch c.Type {
	case CriteriaTypeAbove:
		return map[string]interface{}{
			"type":        c.Type,
			"above_value": c.AboveValue,
		}, nil
	case CriteriaTypeMissing:
		return map[string]interface{}{
			"type":        c.Type,
			"time_period": c.TimePeriod,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported criteria type: %q", c.Type)
	}
}

// MarshalJSON implements json.Marshaler
func (c AlertCriteria) MarshalJSON() ([]byte, error) {
	fields, err := c.fields()
	if err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// UnmarshalJSON implements json.Unmarshaler
func (c *AlertCriteria) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type       CriteriaType `json:"type"`
		AboveValue float64      `json:"above_value"`
		TimePeriod int          `json:"time_period"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = AlertCriteria{Type: raw.Type, AboveValue: raw.AboveValue, TimePeriod: raw.TimePeriod}
	return nil
}

// MetricCriteria binds criteria to a further metric inside a composite alert
type MetricCriteria struct {
	Metric   string
	Criteria AlertCriteria
}

// MarshalJSON flattens the metric next to the criteria fields
func (m MetricCriteria) MarshalJSON() ([]byte, error) {
	fields, err := m.Criteria.fields()
	if err != nil {
		return nil, err
	}
	fields["metric"] = m.Metric
	return json.Marshal(fields)
}

// UnmarshalJSON implements json.Unmarshaler
func (m *MetricCriteria) UnmarshalJSON(data []byte) error {
	var metric struct {
		Metric string `json:"metric"`
	}
	if err := json.Unmarshal(data, &metric); err != nil {
		return err
	}
	var criteria AlertCriteria
	if err := json.Unmarshal(data, &criteria); err != nil {
		return err
	}
	*m = MetricCriteria{Metric: metric.Metric, Criteria: criteria}
	return nil
}

// NotificationType controls how often notifications repeat while an alert is firing.
// It is encoded as a [cadence, seconds] pair, e.g. ["every", 60].
type NotificationType struct {
	Cadence  string
	Interval time.Duration
}

// Every returns a notification type repeating at the given interval
func Every(interval time.Duration) NotificationType {
	return NotificationType{Cadence: "every", Interval: interval}
}

// MarshalJSON implements json.Marshaler
func (n NotificationType) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{n.Cadence, int64(n.Interval / time.Second)})
}

// UnmarshalJSON implements json.Unmarshaler
func (n *NotificationType) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("notification type must have 2 elements, got %d", len(pair))
	}
	var seconds int64
	if err := json.Unmarshal(pair[0], &n.Cadence); err != nil {
		return err
	}
	if err := json.Unmarshal(pair[1], &seconds); err != nil {
		return err
	}
	n.Interval = time.Duration(seconds) * time.Second
	return nil
}

// AlertSpec is an alert definition as accepted by the Hosted Graphite alerting API
type AlertSpec struct {
	Name                 string                    `json:"name"`
	Metric               string                    `json:"metric"`
	AlertCriteria        AlertCriteria             `json:"alert_criteria"`
	AdditionalCriteria   map[string]MetricCriteria `json:"additional_criteria,omitempty"`
	Expression           string                    `json:"expression,omitempty"`
	NotificationChannels []string                  `json:"notification_channels"`
	NotificationType     NotificationType          `json:"notification_type"`
	Info                 string                    `json:"info"`
}
