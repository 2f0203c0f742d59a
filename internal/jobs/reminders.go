package jobs

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Spok95/school-progress/internal/reminders"
)

// ReminderRunner - PaymentJob или SalaryJob.
type ReminderRunner interface {
	Run(ctx context.Context, force bool) (reminders.Result, error)
}

// Reminder оборачивает задачу напоминаний для Runner: плановый запуск идёт
// без force, так что часовой гейт остаётся в силе. Ошибки по отдельным
// записям не валят задачу, только логируются.
func Reminder(j ReminderRunner, log *zap.Logger) Job {
	return func(ctx context.Context) error {
		res, err := j.Run(ctx, false)
		if err != nil {
			return fmt.Errorf("%s: %w", res.Job, err)
		}
		if len(res.Errors) > 0 {
			log.Warn("reminder run finished with errors",
				zap.String("job", res.Job), zap.Strings("errors", res.Errors))
		}
		return nil
	}
}
