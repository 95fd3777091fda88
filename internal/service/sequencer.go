package service

import (
	"context"

	"github.com/avolkhin/studentaid-system/internal/repository"
)

// AdmitAssessment решает, допущена ли оценка к расчёту. Для пары
// студент + учебный год одновременно рассчитывается не более одной
// оценки, допуск выдаётся строго в хронологическом порядке дат начала
// обучения. Отказ не меняет состояния: вызывающий процесс ждёт сигнала
// освобождения слота и повторяет запрос.
func (s *Service) AdmitAssessment(ctx context.Context, assessmentID int64) (repository.AdmissionResult, error) {
	res, err := s.repo.AdmitAssessment(ctx, assessmentID)
	if err != nil {
		return repository.AdmissionResult{}, err
	}

	if res.Admitted {
		s.logger.Infow("assessment admitted for calculation", "assessmentId", assessmentID)
	} else if res.BlockingAssessmentID != nil {
		s.logger.Infow("assessment blocked by calculation in progress",
			"assessmentId", assessmentID, "blockingAssessmentId", *res.BlockingAssessmentID)
	} else {
		s.logger.Infow("assessment is not next in sequence", "assessmentId", assessmentID)
	}

	return res, nil
}
