package service

import (
	"context"
	"errors"

	"github.com/avolkhin/studentaid-system/internal/repository"
)

// AssociateMSFAANumber подбирает и привязывает номер генерального
// соглашения о финансировании к графикам выплат оценки. Повторная
// доставка задания безопасна: уже привязанный номер трактуется как успех.
func (s *Service) AssociateMSFAANumber(ctx context.Context, assessmentID int64) error {
	err := s.repo.AssociateMSFAANumber(ctx, assessmentID)
	if errors.Is(err, repository.ErrMSFAAAlreadyAssociated) {
		s.logger.Infow("MSFAA number already associated", "assessmentId", assessmentID)
		return nil
	}
	if err != nil {
		return err
	}

	s.logger.Infow("MSFAA number associated", "assessmentId", assessmentID)
	return nil
}
