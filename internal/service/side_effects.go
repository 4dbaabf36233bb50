package service

import (
	"context"
	"time"

	"github.com/Dhoini/entitlement-service/internal/metrics"
	"github.com/Dhoini/entitlement-service/pkg/logger"
)

const sideEffectTimeout = 5 * time.Second

// Names of best-effort steps, used as log fields and metric labels
const (
	effectPublishGranted = "publish_entitlement_granted"
	effectPublishRevoked = "publish_entitlement_revoked"
	effectPublishSync    = "publish_sync_completed"
)

// nonCritical runs steps whose failure must never undo or fail the
// operation that triggered them. Failures are logged and counted.
// Steps run detached from the caller's cancellation with their own timeout.
type nonCritical struct {
	log     *logger.Logger
	metrics metrics.BillingMetrics
}

func (n nonCritical) run(ctx context.Context, name string, step func(ctx context.Context) error) {
	stepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if err := step(stepCtx); err != nil {
		n.log.Warnw("Non-critical step failed", "step", name, "error", err)
		n.metrics.IncSideEffectFailure(name)
	}
}
