package service

import (
	"context"
	"encoding/json"
	"fmt"
)

// CompleteAssessment сохраняет рассчитанные данные, завершает оценку и
// освобождает слот расчёта. Затем по хронологической очереди пары
// студент + учебный год ищется следующая незавершённая оценка, и ей
// публикуется сигнал готовности к расчёту. Если оценка уже завершена с
// сохранёнными данными, запись не меняется, но сигнал публикуется
// повторно: предыдущая доставка могла завершить транзакцию и упасть до
// публикации, и без повторного сигнала очередь встанет. Сообщение
// коррелируется по идентификатору оценки, лишняя публикация безвредна.
func (s *Service) CompleteAssessment(ctx context.Context, assessmentID int64, calculatedData json.RawMessage) error {
	alreadyCompleted, err := s.repo.CompleteAssessment(ctx, assessmentID, calculatedData)
	if err != nil {
		return err
	}
	if alreadyCompleted {
		s.logger.Infow("assessment already completed", "assessmentId", assessmentID)
	} else {
		s.logger.Infow("assessment completed", "assessmentId", assessmentID)
	}

	nextID, err := s.repo.NextAssessmentInSequence(ctx, assessmentID)
	if err != nil {
		return fmt.Errorf("find next assessment: %w", err)
	}
	if nextID == nil {
		return nil
	}

	if err := s.publisher.PublishAssessmentReady(ctx, *nextID); err != nil {
		return fmt.Errorf("publish release signal: %w", err)
	}

	s.logger.Infow("release signal published",
		"assessmentId", assessmentID, "nextAssessmentId", *nextID)
	return nil
}
