package service

import (
	"context"

	"github.com/avolkhin/studentaid-system/internal/model"
	"github.com/avolkhin/studentaid-system/internal/projection"
)

// LoadConsolidatedData собирает снимок данных заявления и сужает его до
// объявленного вызывающей стороной набора путей. Наружу уходят только
// запрошенные листья: это граница, не допускающая утечки персональных
// данных сверх того, что задание явно объявило нужным.
func (s *Service) LoadConsolidatedData(ctx context.Context, assessmentID int64, declared map[string]string) (map[string]any, error) {
	snapshot, err := s.repo.GetAssessmentConsolidatedData(ctx, assessmentID)
	if err != nil {
		return nil, err
	}

	return projection.Project(snapshot, declared)
}

// GetConsolidatedSnapshot возвращает полный снимок данных заявления.
// Используется внутренними потребителями; внешним заданиям снимок
// отдаётся только через LoadConsolidatedData.
func (s *Service) GetConsolidatedSnapshot(ctx context.Context, assessmentID int64) (*model.ConsolidatedData, error) {
	return s.repo.GetAssessmentConsolidatedData(ctx, assessmentID)
}
