package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/avolkhin/studentaid-system/internal/gateway"
	"github.com/avolkhin/studentaid-system/internal/model"
	"github.com/avolkhin/studentaid-system/internal/repository"
	"github.com/avolkhin/studentaid-system/internal/service"
)

// Топики заданий, обрабатываемые этим процессом.
const (
	TopicAssessmentAdmission        = "assessment-admission"
	TopicLoadConsolidatedData       = "load-assessment-consolidated-data"
	TopicVerifyApplicationException = "verify-application-exceptions"
	TopicUpdateApplicationStatus    = "update-application-status"
	TopicCreateSupportingUsers      = "create-supporting-users"
	TopicCreateDisbursements        = "create-disbursement-schedules"
	TopicCancelDisbursements        = "cancel-disbursement-schedules"
	TopicAssociateMSFAANumber       = "associate-msfaa-number"
	TopicWorkflowWrapUp             = "workflow-wrap-up"
)

// Именованные коды бизнес-ошибок шлюза.
const (
	CodeAssessmentNotFound                = "ASSESSMENT_NOT_FOUND"
	CodeAssessmentInvalidState            = "ASSESSMENT_INVALID_STATE"
	CodeDisbursementNotFound              = "DISBURSEMENT_NOT_FOUND"
	CodeDisbursementInvalidState          = "DISBURSEMENT_INVALID_STATE"
	CodeApplicationNotFound               = "APPLICATION_NOT_FOUND"
	CodeApplicationStatusNotUpdated       = "APPLICATION_STATUS_NOT_UPDATED"
	CodeSupportingUserFullNameNotResolved = "SUPPORTING_USER_FULL_NAME_NOT_RESOLVED"
)

const dateLayout = "2006-01-02"

// Handlers связывает топики заданий с методами сервиса.
type Handlers struct {
	svc    *service.Service
	logger *zap.SugaredLogger
}

// NewHandlers создаёт набор обработчиков заданий.
func NewHandlers(svc *service.Service, logger *zap.SugaredLogger) *Handlers {
	return &Handlers{svc: svc, logger: logger}
}

// RegisterAll регистрирует все обработчики в раннере.
func (h *Handlers) RegisterAll(r *Runner) {
	r.Register(TopicAssessmentAdmission, h.AdmitAssessment)
	r.Register(TopicLoadConsolidatedData, h.LoadConsolidatedData)
	r.Register(TopicVerifyApplicationException, h.VerifyApplicationExceptions)
	r.Register(TopicUpdateApplicationStatus, h.UpdateApplicationStatus)
	r.Register(TopicCreateSupportingUsers, h.CreateSupportingUsers)
	r.Register(TopicCreateDisbursements, h.CreateDisbursementSchedules)
	r.Register(TopicCancelDisbursements, h.CancelDisbursementSchedules)
	r.Register(TopicAssociateMSFAANumber, h.AssociateMSFAANumber)
	r.Register(TopicWorkflowWrapUp, h.WorkflowWrapUp)
}

// AdmitAssessment обрабатывает запрос на допуск оценки к расчёту.
// Отказ — не ошибка: процесс получает admitted=false и ждёт сигнала
// освобождения слота.
func (h *Handlers) AdmitAssessment(ctx context.Context, job gateway.Job) Result {
	assessmentID, err := job.Int64Variable("assessmentId")
	if err != nil {
		return Failure(err.Error())
	}

	res, err := h.svc.AdmitAssessment(ctx, assessmentID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAssessmentNotFound):
			return BusinessError(CodeAssessmentNotFound, err.Error())
		case errors.Is(err, repository.ErrAssessmentInvalidState):
			return BusinessError(CodeAssessmentInvalidState, err.Error())
		}
		return Failure(err.Error())
	}

	vars := gateway.Variables{"admitted": gateway.Bool(res.Admitted)}
	if res.BlockingAssessmentID != nil {
		vars["blockingAssessmentId"] = gateway.Int64(*res.BlockingAssessmentID)
	}
	return Complete(vars)
}

// LoadConsolidatedData собирает снимок данных заявления и отдаёт процессу
// только переменные, объявленные в заголовках задания: имя заголовка —
// имя выходной переменной, значение — путь в снимке.
func (h *Handlers) LoadConsolidatedData(ctx context.Context, job gateway.Job) Result {
	assessmentID, err := job.Int64Variable("assessmentId")
	if err != nil {
		return Failure(err.Error())
	}

	values, err := h.svc.LoadConsolidatedData(ctx, assessmentID, job.CustomHeaders)
	if err != nil {
		if errors.Is(err, repository.ErrAssessmentNotFound) {
			return BusinessError(CodeAssessmentNotFound, err.Error())
		}
		return Failure(err.Error())
	}

	vars := make(gateway.Variables, len(values))
	for name, value := range values {
		vars[name] = gateway.JSON(value)
	}
	return Complete(vars)
}

// VerifyApplicationExceptions проверяет заявление на отмеченные исключения.
func (h *Handlers) VerifyApplicationExceptions(ctx context.Context, job gateway.Job) Result {
	applicationID, err := job.Int64Variable("applicationId")
	if err != nil {
		return Failure(err.Error())
	}

	res, err := h.svc.VerifyApplicationExceptions(ctx, applicationID)
	if err != nil {
		if errors.Is(err, repository.ErrApplicationNotFound) {
			return BusinessError(CodeApplicationNotFound, err.Error())
		}
		return Failure(err.Error())
	}

	vars := gateway.Variables{"hasApplicationExceptions": gateway.Bool(res.HasExceptions)}
	if res.HasExceptions {
		vars["applicationExceptionStatus"] = gateway.String(res.Status)
	}
	return Complete(vars)
}

// UpdateApplicationStatus выполняет условный перевод статуса заявления.
// Исходный и целевой статусы приходят в заголовках задания.
func (h *Handlers) UpdateApplicationStatus(ctx context.Context, job gateway.Job) Result {
	applicationID, err := job.Int64Variable("applicationId")
	if err != nil {
		return Failure(err.Error())
	}

	from := job.CustomHeaders["fromStatus"]
	to := job.CustomHeaders["toStatus"]
	if from == "" || to == "" {
		return Failure("fromStatus and toStatus headers are required")
	}

	err = h.svc.UpdateApplicationStatus(ctx, applicationID,
		model.ApplicationStatus(from), model.ApplicationStatus(to))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrApplicationNotFound):
			return BusinessError(CodeApplicationNotFound, err.Error())
		case errors.Is(err, repository.ErrApplicationStatusNotUpdated):
			return BusinessError(CodeApplicationStatusNotUpdated, err.Error())
		}
		return Failure(err.Error())
	}

	return Complete(nil)
}

// CreateSupportingUsers создаёт сопровождающих лиц типов, объявленных в
// заголовке supportingUserTypes.
func (h *Handlers) CreateSupportingUsers(ctx context.Context, job gateway.Job) Result {
	applicationID, err := job.Int64Variable("applicationId")
	if err != nil {
		return Failure(err.Error())
	}

	var types []model.SupportingUserType
	for _, t := range strings.Split(job.CustomHeaders["supportingUserTypes"], ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, model.SupportingUserType(t))
		}
	}
	if len(types) == 0 {
		return Failure("supportingUserTypes header is required")
	}

	ids, err := h.svc.CreateSupportingUsers(ctx, applicationID, types)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrApplicationNotFound):
			return BusinessError(CodeApplicationNotFound, err.Error())
		case errors.Is(err, service.ErrSupportingUserFullNameNotResolved):
			return BusinessError(CodeSupportingUserFullNameNotResolved, err.Error())
		}
		return Failure(err.Error())
	}

	return Complete(gateway.Variables{"createdSupportingUserIds": gateway.JSON(ids)})
}

// disbursementScheduleDTO — форма графика выплаты в переменной задания.
type disbursementScheduleDTO struct {
	DisbursementDate     string `json:"disbursementDate"`
	NegotiatedExpiryDate string `json:"negotiatedExpiryDate"`
	Disbursements        []struct {
		ValueCode   string `json:"valueCode"`
		ValueAmount int64  `json:"valueAmount"`
	} `json:"disbursements"`
}

// CreateDisbursementSchedules сохраняет графики выплат, рассчитанные для
// оценки. Уже созданные графики — успех: задание могло быть доставлено
// повторно.
func (h *Handlers) CreateDisbursementSchedules(ctx context.Context, job gateway.Job) Result {
	assessmentID, err := job.Int64Variable("assessmentId")
	if err != nil {
		return Failure(err.Error())
	}

	var dtos []disbursementScheduleDTO
	if err := job.JSONVariable("disbursementSchedules", &dtos); err != nil {
		return Failure(err.Error())
	}

	schedules := make([]service.DisbursementScheduleInput, 0, len(dtos))
	for _, dto := range dtos {
		date, err := time.Parse(dateLayout, dto.DisbursementDate)
		if err != nil {
			return Failure("invalid disbursementDate: " + err.Error())
		}
		expiry, err := time.Parse(dateLayout, dto.NegotiatedExpiryDate)
		if err != nil {
			return Failure("invalid negotiatedExpiryDate: " + err.Error())
		}

		input := service.DisbursementScheduleInput{
			DisbursementDate:     date,
			NegotiatedExpiryDate: expiry,
		}
		for _, v := range dto.Disbursements {
			input.Values = append(input.Values, service.AwardValueInput{
				Code:        v.ValueCode,
				AmountCents: v.ValueAmount,
			})
		}
		schedules = append(schedules, input)
	}

	err = h.svc.CreateDisbursementSchedules(ctx, assessmentID, schedules)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAssessmentNotFound):
			return BusinessError(CodeAssessmentNotFound, err.Error())
		case errors.Is(err, repository.ErrAssessmentInvalidState):
			return BusinessError(CodeAssessmentInvalidState, err.Error())
		}
		return Failure(err.Error())
	}

	return Complete(nil)
}

// CancelDisbursementSchedules выполняет административную отмену графиков
// выплат, например при прекращении экземпляра процесса.
func (h *Handlers) CancelDisbursementSchedules(ctx context.Context, job gateway.Job) Result {
	assessmentID, err := job.Int64Variable("assessmentId")
	if err != nil {
		return Failure(err.Error())
	}

	err = h.svc.CancelDisbursementSchedules(ctx, assessmentID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDisbursementNotFound):
			return BusinessError(CodeDisbursementNotFound, err.Error())
		case errors.Is(err, repository.ErrDisbursementInvalidState):
			return BusinessError(CodeDisbursementInvalidState, err.Error())
		}
		return Failure(err.Error())
	}

	return Complete(nil)
}

// AssociateMSFAANumber подбирает и привязывает номер MSFAA к графикам
// выплат оценки.
func (h *Handlers) AssociateMSFAANumber(ctx context.Context, job gateway.Job) Result {
	assessmentID, err := job.Int64Variable("assessmentId")
	if err != nil {
		return Failure(err.Error())
	}

	err = h.svc.AssociateMSFAANumber(ctx, assessmentID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAssessmentNotFound):
			return BusinessError(CodeAssessmentNotFound, err.Error())
		case errors.Is(err, repository.ErrAssessmentInvalidState):
			return BusinessError(CodeAssessmentInvalidState, err.Error())
		case errors.Is(err, repository.ErrDisbursementNotFound):
			return BusinessError(CodeDisbursementNotFound, err.Error())
		}
		return Failure(err.Error())
	}

	return Complete(nil)
}

// WorkflowWrapUp завершает оценку: сохраняет рассчитанные данные,
// освобождает слот расчёта и сигнализирует следующей оценке в очереди.
func (h *Handlers) WorkflowWrapUp(ctx context.Context, job gateway.Job) Result {
	assessmentID, err := job.Int64Variable("assessmentId")
	if err != nil {
		return Failure(err.Error())
	}

	var calculated json.RawMessage
	if err := job.JSONVariable("calculatedData", &calculated); err != nil {
		return Failure(err.Error())
	}

	if err := h.svc.CompleteAssessment(ctx, assessmentID, calculated); err != nil {
		if errors.Is(err, repository.ErrAssessmentNotFound) {
			return BusinessError(CodeAssessmentNotFound, err.Error())
		}
		return Failure(err.Error())
	}

	return Complete(nil)
}
