package generation

import (
	"context"

	"menu3d/internal/domain"
	"menu3d/internal/infra"
)

// ReconcileOnStartup fails every job a previous process left pending or
// processing. Jobs are not durable across restarts, so nothing would ever
// finish them.
func ReconcileOnStartup(ctx context.Context, jobs domain.JobRepository, logger infra.Logger) (int64, error) {
	n, err := jobs.FailInterrupted(ctx, MsgInterruptedRestart)
	if err != nil {
		logger.Warn().Err(err).Msg("reconcile: failed to mark interrupted jobs failed")
		return 0, err
	}
	logger.Info().Int64("failed", n).Msg("job reconciliation complete")
	return n, nil
}
