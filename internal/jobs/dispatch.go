package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/akshatj2209/calender-assistant-sub001/internal/db"
	"github.com/akshatj2209/calender-assistant-sub001/internal/service"
)

// Dispatch delivers due responses. Each record's delivery commits
// independently; a conflict means someone else (a send-now call or a
// concurrent cancel) already handled the record, which is not an
// error for the cycle.
type Dispatch struct {
	responses *service.ResponseService
	log       *zap.Logger
	batchMax  int
}

func NewDispatch(responses *service.ResponseService, batchMax int, log *zap.Logger) *Dispatch {
	if batchMax <= 0 {
		batchMax = 50
	}
	return &Dispatch{responses: responses, batchMax: batchMax, log: log}
}

// Cycle is one dispatch pass over due, sendable responses.
func (j *Dispatch) Cycle(ctx context.Context) error {
	due, err := j.responses.ListDue(ctx, time.Now(), j.batchMax)
	if err != nil {
		return fmt.Errorf("selecting due responses: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	j.log.Info("dispatch cycle selected due responses", zap.Int("count", len(due)))

	for _, resp := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		_, err := j.responses.Deliver(ctx, resp.ID)
		switch {
		case err == nil:
		case errors.Is(err, db.ErrConflict), errors.Is(err, db.ErrAlreadyTerminal):
			j.log.Debug("response already handled",
				zap.String("response_id", resp.ID),
			)
		default:
			// Deliver has already committed FAILED and counted the
			// failure; nothing more to do for this record.
			j.log.Warn("response delivery failed",
				zap.String("response_id", resp.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}
