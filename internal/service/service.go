// Package service реализует бизнес-логику конвейера оценок и выплат
// студенческой финансовой помощи.
package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/avolkhin/studentaid-system/internal/model"
	"github.com/avolkhin/studentaid-system/internal/reconcile"
	"github.com/avolkhin/studentaid-system/internal/repository"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
// Компонентные методы репозитория атомарны: всё координационное состояние
// живёт в хранилище, обработчики между вызовами ничего не разделяют.
type Repository interface {
	Close() error
	Ping(ctx context.Context) error
	AdmitAssessment(ctx context.Context, assessmentID int64) (repository.AdmissionResult, error)
	CompleteAssessment(ctx context.Context, assessmentID int64, calculatedData json.RawMessage) (bool, error)
	NextAssessmentInSequence(ctx context.Context, assessmentID int64) (*int64, error)
	GetAssessmentConsolidatedData(ctx context.Context, assessmentID int64) (*model.ConsolidatedData, error)
	CreateDisbursementSchedules(ctx context.Context, assessmentID int64, schedules []reconcile.ScheduleInput) error
	CancelDisbursementSchedules(ctx context.Context, assessmentID int64) error
	AssociateMSFAANumber(ctx context.Context, assessmentID int64) error
	GetOverawardBalance(ctx context.Context, studentID int64) (map[string]int64, error)
	GetApplication(ctx context.Context, applicationID int64) (*model.Application, error)
	UpdateApplicationStatus(ctx context.Context, applicationID int64, from, to model.ApplicationStatus) error
	CreateApplicationException(ctx context.Context, applicationID int64) (string, error)
	CreateSupportingUsers(ctx context.Context, users []model.SupportingUser) ([]int64, error)
}

// MessagePublisher публикует коррелированные сообщения шлюзу заданий.
type MessagePublisher interface {
	PublishAssessmentReady(ctx context.Context, assessmentID int64) error
}

// Service содержит бизнес-логику конвейера оценок.
type Service struct {
	repo      Repository
	publisher MessagePublisher
	logger    *zap.SugaredLogger
}

// NewService создаёт сервис с указанными репозиторием и издателем
// сообщений шлюза.
func NewService(repo Repository, publisher MessagePublisher, logger *zap.SugaredLogger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// GetOverawardBalance возвращает баланс переплат студента по кодам выплат.
func (s *Service) GetOverawardBalance(ctx context.Context, studentID int64) (map[string]int64, error) {
	return s.repo.GetOverawardBalance(ctx, studentID)
}
