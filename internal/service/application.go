package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/avolkhin/studentaid-system/internal/model"
	"github.com/avolkhin/studentaid-system/internal/validation"
)

// ErrSupportingUserFullNameNotResolved возвращается, если полное имя
// сопровождающего лица не удаётся получить из данных заявления.
var ErrSupportingUserFullNameNotResolved = errors.New("supporting user full name not resolved")

// UpdateApplicationStatus выполняет условный перевод статуса заявления.
func (s *Service) UpdateApplicationStatus(ctx context.Context, applicationID int64, from, to model.ApplicationStatus) error {
	if err := s.repo.UpdateApplicationStatus(ctx, applicationID, from, to); err != nil {
		return err
	}

	s.logger.Infow("application status updated",
		"applicationId", applicationID, "from", from, "to", to)
	return nil
}

// ExceptionVerification описывает результат проверки исключений заявления.
type ExceptionVerification struct {
	HasExceptions bool
	Status        string
}

// VerifyApplicationExceptions ищет в данных заявления отмеченные
// исключения — значения с ключами, оканчивающимися на
// ApplicationException. При первом обнаружении создаётся запись об
// исключении; повторная проверка записи не дублирует и возвращает её
// текущий статус рассмотрения.
func (s *Service) VerifyApplicationExceptions(ctx context.Context, applicationID int64) (ExceptionVerification, error) {
	app, err := s.repo.GetApplication(ctx, applicationID)
	if err != nil {
		return ExceptionVerification{}, err
	}

	if !hasExceptionLeaves(app.SubmittedData) {
		return ExceptionVerification{}, nil
	}

	status, err := s.repo.CreateApplicationException(ctx, applicationID)
	if err != nil {
		return ExceptionVerification{}, err
	}

	s.logger.Infow("application exception detected",
		"applicationId", applicationID, "status", status)
	return ExceptionVerification{HasExceptions: true, Status: status}, nil
}

// hasExceptionLeaves рекурсивно обходит данные заявления в поисках
// непустых значений с ключами-исключениями.
func hasExceptionLeaves(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}

	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return false
	}

	return walkForExceptions(tree)
}

func walkForExceptions(node any) bool {
	switch value := node.(type) {
	case map[string]any:
		for key, child := range value {
			if strings.HasSuffix(key, "ApplicationException") && !isEmptyLeaf(child) {
				return true
			}
			if walkForExceptions(child) {
				return true
			}
		}
	case []any:
		for _, child := range value {
			if walkForExceptions(child) {
				return true
			}
		}
	}
	return false
}

func isEmptyLeaf(v any) bool {
	switch value := v.(type) {
	case nil:
		return true
	case string:
		return value == ""
	case bool:
		return !value
	default:
		return false
	}
}

// supportingUserData — форма данных сопровождающих лиц внутри
// отправленного заявления.
type supportingUserData struct {
	FullName string `json:"fullName"`
	SIN      string `json:"sin"`
}

// CreateSupportingUsers создаёт сопровождающих лиц объявленных типов по
// данным заявления. Лицо без разрешимого полного имени — именованная
// бизнес-ошибка. Номера SIN проверяются по алгоритму Луна; некорректный
// номер не сохраняется.
func (s *Service) CreateSupportingUsers(ctx context.Context, applicationID int64, types []model.SupportingUserType) ([]int64, error) {
	app, err := s.repo.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	var submitted struct {
		Parents []supportingUserData `json:"parents"`
		Partner *supportingUserData  `json:"partner"`
	}
	if len(app.SubmittedData) > 0 {
		if err := json.Unmarshal(app.SubmittedData, &submitted); err != nil {
			return nil, fmt.Errorf("decode application data: %w", err)
		}
	}

	var users []model.SupportingUser
	for _, t := range types {
		var candidates []supportingUserData
		switch t {
		case model.SupportingUserParent:
			candidates = submitted.Parents
		case model.SupportingUserPartner:
			if submitted.Partner != nil {
				candidates = []supportingUserData{*submitted.Partner}
			}
		default:
			return nil, fmt.Errorf("unknown supporting user type %q", t)
		}

		if len(candidates) == 0 {
			return nil, fmt.Errorf("%w: no %s declared in application %d",
				ErrSupportingUserFullNameNotResolved, t, applicationID)
		}

		for _, c := range candidates {
			if strings.TrimSpace(c.FullName) == "" {
				return nil, fmt.Errorf("%w: %s of application %d",
					ErrSupportingUserFullNameNotResolved, t, applicationID)
			}

			sin := c.SIN
			if sin != "" && !validation.IsValidSIN(sin) {
				s.logger.Warnw("supporting user SIN failed validation, stored without SIN",
					"applicationId", applicationID, "type", t)
				sin = ""
			}

			users = append(users, model.SupportingUser{
				ApplicationID: applicationID,
				Type:          t,
				FullName:      strings.TrimSpace(c.FullName),
				SIN:           sin,
			})
		}
	}

	ids, err := s.repo.CreateSupportingUsers(ctx, users)
	if err != nil {
		return nil, err
	}

	s.logger.Infow("supporting users created",
		"applicationId", applicationID, "count", len(ids))
	return ids, nil
}
