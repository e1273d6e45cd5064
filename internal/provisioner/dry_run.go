package provisioner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/t77yq/hg-alerts/internal/model"
)

// DryRunCreator writes alert payloads instead of sending them
type DryRunCreator struct {
	out io.Writer
}

// NewDryRunCreator creates a creator that prints indented JSON payloads to out
func NewDryRunCreator(out io.Writer) *DryRunCreator {
	return &DryRunCreator{out: out}
}

// CreateAlert implements AlertCreator
func (d *DryRunCreator) CreateAlert(ctx context.Context, alert *model.AlertSpec) error {
	data, err := json.MarshalIndent(alert, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	if _, err := fmt.Fprintf(d.out, "%s\n", data); err != nil {
		return fmt.Errorf("failed to write alert: %w", err)
	}
	return nil
}
