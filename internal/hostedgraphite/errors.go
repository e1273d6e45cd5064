package hostedgraphite

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAlertExists is returned when an alert with the same name already exists.
	// Existing alerts must be deleted by hand before they can be created again.
	ErrAlertExists = errors.New("alert already exists")

	// ErrMissingAPIKey is returned when no API key is configured
	ErrMissingAPIKey = errors.New("missing Hosted Graphite API key")
)

// StatusError is returned when the alerting API answers with a 4xx or 5xx status
type StatusError struct {
	AlertName  string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("creating alert %q failed with status: %s", e.AlertName, e.Status)
}

// Is reports a 409 Conflict as ErrAlertExists
func (e *StatusError) Is(target error) bool {
	return target == ErrAlertExists && e.StatusCode == http.StatusConflict
}
