package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avolkhin/studentaid-system/internal/model"
	"github.com/avolkhin/studentaid-system/internal/reconcile"
	"github.com/avolkhin/studentaid-system/internal/repository"
)

// AwardValueInput описывает одну выплату, запрошенную расчётом оценки.
type AwardValueInput struct {
	Code        string
	AmountCents int64
}

// DisbursementScheduleInput описывает один запрошенный график выплаты.
type DisbursementScheduleInput struct {
	DisbursementDate     time.Time
	NegotiatedExpiryDate time.Time
	Values               []AwardValueInput
}

// CreateDisbursementSchedules сохраняет графики выплат оценки, сверив их
// с историей выплат по заявлению. Коды выплат проверяются по закрытому
// перечню. Повторная доставка задания безопасна: уже созданные графики
// трактуются как успех, строки не дублируются.
func (s *Service) CreateDisbursementSchedules(ctx context.Context, assessmentID int64, schedules []DisbursementScheduleInput) error {
	inputs := make([]reconcile.ScheduleInput, 0, len(schedules))
	for _, sched := range schedules {
		input := reconcile.ScheduleInput{
			DisbursementDate:     sched.DisbursementDate,
			NegotiatedExpiryDate: sched.NegotiatedExpiryDate,
			Values:               make([]reconcile.AwardInput, 0, len(sched.Values)),
		}

		for _, v := range sched.Values {
			category, ok := model.AwardCategoryForCode(v.Code)
			if !ok {
				return fmt.Errorf("unknown award code %q", v.Code)
			}
			if v.AmountCents < 0 {
				return fmt.Errorf("award %s has negative amount", v.Code)
			}

			input.Values = append(input.Values, reconcile.AwardInput{
				Code:        v.Code,
				Category:    category,
				AmountCents: v.AmountCents,
			})
		}

		inputs = append(inputs, input)
	}

	err := s.repo.CreateDisbursementSchedules(ctx, assessmentID, inputs)
	if errors.Is(err, repository.ErrDisbursementAlreadyCreated) {
		// Повторная доставка уже выполненного задания.
		s.logger.Infow("disbursement schedules already created", "assessmentId", assessmentID)
		return nil
	}
	if err != nil {
		return err
	}

	s.logger.Infow("disbursement schedules created",
		"assessmentId", assessmentID, "schedules", len(schedules))
	return nil
}

// CancelDisbursementSchedules выполняет административную отмену графиков
// выплат оценки, например при прекращении экземпляра процесса. Повторная
// отмена идемпотентна.
func (s *Service) CancelDisbursementSchedules(ctx context.Context, assessmentID int64) error {
	if err := s.repo.CancelDisbursementSchedules(ctx, assessmentID); err != nil {
		return err
	}

	s.logger.Infow("disbursement schedules cancelled", "assessmentId", assessmentID)
	return nil
}
