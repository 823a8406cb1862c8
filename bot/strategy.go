package bot

import (
	"context"
	"errors"
	"log/slog"
)

// Strategy is one named way of completing a step.
type Strategy struct {
	Name string
	Run  func(ctx context.Context, sess Session) error
}

// runStrategies applies strategies in order until one succeeds. A success
// after the first strategy is counted as a fallback. When every strategy
// fails the error is an ErrStep naming the last strategy tried.
func runStrategies(ctx context.Context, logger *slog.Logger, metrics *Metrics, step string, sess Session, strategies []Strategy) (string, error) {
	if len(strategies) == 0 {
		return "", ErrStep{Step: step, Err: errors.New("no strategies")}
	}

	var errs []error
	for i, s := range strategies {
		if err := ctx.Err(); err != nil {
			return "", ErrStep{Step: step, Strategy: s.Name, Err: err}
		}

		err := s.Run(ctx, sess)
		if err == nil {
			if i > 0 {
				metrics.IncFallback(step, s.Name)
				logger.Info("step completed by fallback", slog.String("step", step), slog.String("strategy", s.Name))
			}
			return s.Name, nil
		}

		logger.Debug("strategy failed",
			slog.String("step", step),
			slog.String("strategy", s.Name),
			slog.Any("error", err),
		)
		errs = append(errs, err)
	}

	metrics.IncStepFailure(step)
	last := strategies[len(strategies)-1].Name
	return "", ErrStep{Step: step, Strategy: last, Err: errors.Join(errs...)}
}
