package runs

import (
	"context"

	"go.uber.org/zap"

	"github.com/nainovate/Evaluation-UI-sub000/internal/metadata"
	"github.com/nainovate/Evaluation-UI-sub000/internal/storage/models"
	"github.com/nainovate/Evaluation-UI-sub000/pkg/logger"
)

// RecordInStore writes the outcome of a run into the wizard record, as long
// as the wizard is still on the session that launched it.
func RecordInStore(store *metadata.Store) FinishFunc {
	return func(ctx context.Context, run models.EvaluationRun) {
		res, applied := store.UpdateIf(ctx, run.SessionID, metadata.Patch{Execution: ExecutionOf(run)})
		if !applied {
			logger.Debug("Run finished for a previous session",
				zap.String("run_id", run.ID),
				zap.String("session_id", run.SessionID),
			)
			return
		}
		if res.Err != nil {
			logger.Warn("Run outcome kept in memory only", zap.String("run_id", run.ID), zap.Error(res.Err))
		}
	}
}

// ExecutionOf projects a run onto the wizard's execution slice.
func ExecutionOf(run models.EvaluationRun) *metadata.Execution {
	exec := &metadata.Execution{
		StartedAt:             run.StartedAt,
		CompletedAt:           run.CompletedAt,
		Status:                run.Status,
		EvaluationName:        run.Name,
		EvaluationDescription: run.Description,
		RunID:                 run.ID,
		Error:                 run.Error,
	}
	if exec.StartedAt == nil {
		created := run.CreatedAt
		exec.StartedAt = &created
	}
	if len(run.Results) > 0 {
		exec.Results = run.Results
	}
	return exec
}
