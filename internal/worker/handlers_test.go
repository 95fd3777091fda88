package worker

import (
	"context"
	"encoding/json"
	"testing"

	"go.uber.org/zap"

	"github.com/avolkhin/studentaid-system/internal/gateway"
	"github.com/avolkhin/studentaid-system/internal/model"
	"github.com/avolkhin/studentaid-system/internal/reconcile"
	"github.com/avolkhin/studentaid-system/internal/repository"
	"github.com/avolkhin/studentaid-system/internal/service"
)

type stubRepo struct {
	admission    repository.AdmissionResult
	admissionErr error

	completeErr error

	consolidated    *model.ConsolidatedData
	consolidatedErr error

	createdScheduleInputs []reconcile.ScheduleInput
	createSchedulesErr    error

	cancelSchedulesErr error
	associateErr       error

	application     *model.Application
	applicationErr  error
	updateStatusErr error
	createUserErr   error
}

func (s *stubRepo) Close() error                   { return nil }
func (s *stubRepo) Ping(ctx context.Context) error { return nil }

func (s *stubRepo) AdmitAssessment(ctx context.Context, assessmentID int64) (repository.AdmissionResult, error) {
	return s.admission, s.admissionErr
}

func (s *stubRepo) CompleteAssessment(ctx context.Context, assessmentID int64, calculatedData json.RawMessage) (bool, error) {
	return false, s.completeErr
}

func (s *stubRepo) NextAssessmentInSequence(ctx context.Context, assessmentID int64) (*int64, error) {
	return nil, nil
}

func (s *stubRepo) GetAssessmentConsolidatedData(ctx context.Context, assessmentID int64) (*model.ConsolidatedData, error) {
	return s.consolidated, s.consolidatedErr
}

func (s *stubRepo) CreateDisbursementSchedules(ctx context.Context, assessmentID int64, schedules []reconcile.ScheduleInput) error {
	s.createdScheduleInputs = schedules
	return s.createSchedulesErr
}

func (s *stubRepo) CancelDisbursementSchedules(ctx context.Context, assessmentID int64) error {
	return s.cancelSchedulesErr
}

func (s *stubRepo) AssociateMSFAANumber(ctx context.Context, assessmentID int64) error {
	return s.associateErr
}

func (s *stubRepo) GetOverawardBalance(ctx context.Context, studentID int64) (map[string]int64, error) {
	return nil, nil
}

func (s *stubRepo) GetApplication(ctx context.Context, applicationID int64) (*model.Application, error) {
	return s.application, s.applicationErr
}

func (s *stubRepo) UpdateApplicationStatus(ctx context.Context, applicationID int64, from, to model.ApplicationStatus) error {
	return s.updateStatusErr
}

func (s *stubRepo) CreateApplicationException(ctx context.Context, applicationID int64) (string, error) {
	return "", nil
}

func (s *stubRepo) CreateSupportingUsers(ctx context.Context, users []model.SupportingUser) ([]int64, error) {
	return nil, s.createUserErr
}

type stubPublisher struct{}

func (stubPublisher) PublishAssessmentReady(ctx context.Context, assessmentID int64) error {
	return nil
}

func newTestHandlers(repo *stubRepo) *Handlers {
	logger := zap.NewNop().Sugar()
	svc := service.NewService(repo, stubPublisher{}, logger)
	return NewHandlers(svc, logger)
}

func jobWith(topic string, vars gateway.Variables, headers map[string]string) gateway.Job {
	return gateway.Job{
		ID:            "job-1",
		TopicName:     topic,
		Variables:     vars,
		CustomHeaders: headers,
	}
}

func TestAdmitAssessment_Admitted(t *testing.T) {
	h := newTestHandlers(&stubRepo{admission: repository.AdmissionResult{Admitted: true}})

	res := h.AdmitAssessment(context.Background(), jobWith(TopicAssessmentAdmission,
		gateway.Variables{"assessmentId": {Value: float64(12)}}, nil))

	if res.kind != resultComplete {
		t.Fatalf("kind = %d, want complete", res.kind)
	}
	if res.variables["admitted"].Value != true {
		t.Fatalf("admitted = %v, want true", res.variables["admitted"].Value)
	}
}

func TestAdmitAssessment_Blocked(t *testing.T) {
	blocker := int64(4)
	h := newTestHandlers(&stubRepo{admission: repository.AdmissionResult{BlockingAssessmentID: &blocker}})

	res := h.AdmitAssessment(context.Background(), jobWith(TopicAssessmentAdmission,
		gateway.Variables{"assessmentId": {Value: float64(12)}}, nil))

	if res.kind != resultComplete {
		t.Fatalf("kind = %d, want complete", res.kind)
	}
	if res.variables["admitted"].Value != false {
		t.Fatalf("admitted = %v, want false", res.variables["admitted"].Value)
	}
	if res.variables["blockingAssessmentId"].Value != int64(4) {
		t.Fatalf("blockingAssessmentId = %v", res.variables["blockingAssessmentId"].Value)
	}
}

func TestAdmitAssessment_NotFound(t *testing.T) {
	h := newTestHandlers(&stubRepo{admissionErr: repository.ErrAssessmentNotFound})

	res := h.AdmitAssessment(context.Background(), jobWith(TopicAssessmentAdmission,
		gateway.Variables{"assessmentId": {Value: float64(12)}}, nil))

	if res.kind != resultBusinessError {
		t.Fatalf("kind = %d, want business error", res.kind)
	}
	if res.errorCode != CodeAssessmentNotFound {
		t.Fatalf("errorCode = %s", res.errorCode)
	}
}

func TestAdmitAssessment_CancelledApplication(t *testing.T) {
	h := newTestHandlers(&stubRepo{admissionErr: repository.ErrAssessmentInvalidState})

	res := h.AdmitAssessment(context.Background(), jobWith(TopicAssessmentAdmission,
		gateway.Variables{"assessmentId": {Value: float64(12)}}, nil))

	if res.kind != resultBusinessError {
		t.Fatalf("kind = %d, want business error", res.kind)
	}
	if res.errorCode != CodeAssessmentInvalidState {
		t.Fatalf("errorCode = %s", res.errorCode)
	}
}

func TestAdmitAssessment_MissingVariable(t *testing.T) {
	h := newTestHandlers(&stubRepo{})

	res := h.AdmitAssessment(context.Background(), jobWith(TopicAssessmentAdmission, nil, nil))

	if res.kind != resultFailure {
		t.Fatalf("kind = %d, want failure", res.kind)
	}
}

func TestLoadConsolidatedData_DeclaredPathsOnly(t *testing.T) {
	h := newTestHandlers(&stubRepo{
		consolidated: &model.ConsolidatedData{
			ApplicationID: 42,
			Student: &model.ConsolidatedStudent{
				GivenName: "Alex",
				SIN:       "046454286",
			},
		},
	})

	headers := map[string]string{
		"applicationId":    "applicationId",
		"studentGivenName": "student.givenName",
	}
	res := h.LoadConsolidatedData(context.Background(), jobWith(TopicLoadConsolidatedData,
		gateway.Variables{"assessmentId": {Value: float64(12)}}, headers))

	if res.kind != resultComplete {
		t.Fatalf("kind = %d, want complete, message %q", res.kind, res.message)
	}
	if res.variables["studentGivenName"].Value != "Alex" {
		t.Fatalf("studentGivenName = %v", res.variables["studentGivenName"].Value)
	}
	if _, ok := res.variables["sin"]; ok {
		t.Fatalf("undeclared variable must not leak")
	}
	if len(res.variables) != 2 {
		t.Fatalf("variables = %v, want exactly the declared pair", res.variables)
	}
}

func TestUpdateApplicationStatus_HeadersRequired(t *testing.T) {
	h := newTestHandlers(&stubRepo{})

	res := h.UpdateApplicationStatus(context.Background(), jobWith(TopicUpdateApplicationStatus,
		gateway.Variables{"applicationId": {Value: float64(7)}},
		map[string]string{"fromStatus": "In Progress"}))

	if res.kind != resultFailure {
		t.Fatalf("kind = %d, want failure", res.kind)
	}
}

func TestUpdateApplicationStatus_NotUpdated(t *testing.T) {
	h := newTestHandlers(&stubRepo{updateStatusErr: repository.ErrApplicationStatusNotUpdated})

	res := h.UpdateApplicationStatus(context.Background(), jobWith(TopicUpdateApplicationStatus,
		gateway.Variables{"applicationId": {Value: float64(7)}},
		map[string]string{"fromStatus": "In Progress", "toStatus": "Assessment"}))

	if res.kind != resultBusinessError || res.errorCode != CodeApplicationStatusNotUpdated {
		t.Fatalf("kind = %d, errorCode = %s", res.kind, res.errorCode)
	}
}

func TestCreateSupportingUsers_TypesHeader(t *testing.T) {
	h := newTestHandlers(&stubRepo{
		application: &model.Application{
			ID:            7,
			SubmittedData: json.RawMessage(`{"parents":[{"fullName":"A Parent"},{"fullName":"B Parent"}],"partner":{"fullName":"C Partner"}}`),
		},
	})

	res := h.CreateSupportingUsers(context.Background(), jobWith(TopicCreateSupportingUsers,
		gateway.Variables{"applicationId": {Value: float64(7)}},
		map[string]string{"supportingUserTypes": "Parent, Partner"}))

	if res.kind != resultComplete {
		t.Fatalf("kind = %d, want complete, message %q", res.kind, res.message)
	}
}

func TestCreateSupportingUsers_MissingHeader(t *testing.T) {
	h := newTestHandlers(&stubRepo{})

	res := h.CreateSupportingUsers(context.Background(), jobWith(TopicCreateSupportingUsers,
		gateway.Variables{"applicationId": {Value: float64(7)}}, nil))

	if res.kind != resultFailure {
		t.Fatalf("kind = %d, want failure", res.kind)
	}
}

func TestCreateSupportingUsers_FullNameNotResolved(t *testing.T) {
	h := newTestHandlers(&stubRepo{
		application: &model.Application{
			ID:            7,
			SubmittedData: json.RawMessage(`{"parents":[{"fullName":" "}]}`),
		},
	})

	res := h.CreateSupportingUsers(context.Background(), jobWith(TopicCreateSupportingUsers,
		gateway.Variables{"applicationId": {Value: float64(7)}},
		map[string]string{"supportingUserTypes": "Parent"}))

	if res.kind != resultBusinessError || res.errorCode != CodeSupportingUserFullNameNotResolved {
		t.Fatalf("kind = %d, errorCode = %s", res.kind, res.errorCode)
	}
}

func TestCreateDisbursementSchedules_ParsesPayload(t *testing.T) {
	repo := &stubRepo{}
	h := newTestHandlers(repo)

	payload := `[{"disbursementDate":"2026-09-01","negotiatedExpiryDate":"2026-09-15","disbursements":[{"valueCode":"CSLF","valueAmount":125000}]}]`
	res := h.CreateDisbursementSchedules(context.Background(), jobWith(TopicCreateDisbursements,
		gateway.Variables{
			"assessmentId":          {Value: float64(12)},
			"disbursementSchedules": {Value: payload},
		}, nil))

	if res.kind != resultComplete {
		t.Fatalf("kind = %d, want complete, message %q", res.kind, res.message)
	}

	if len(repo.createdScheduleInputs) != 1 {
		t.Fatalf("schedules = %d, want 1", len(repo.createdScheduleInputs))
	}
	values := repo.createdScheduleInputs[0].Values
	if len(values) != 1 || values[0].Code != "CSLF" || values[0].AmountCents != 125000 {
		t.Fatalf("unexpected values: %+v", values)
	}
}

func TestCreateDisbursementSchedules_BadDate(t *testing.T) {
	h := newTestHandlers(&stubRepo{})

	payload := `[{"disbursementDate":"01/09/2026","negotiatedExpiryDate":"2026-09-15","disbursements":[]}]`
	res := h.CreateDisbursementSchedules(context.Background(), jobWith(TopicCreateDisbursements,
		gateway.Variables{
			"assessmentId":          {Value: float64(12)},
			"disbursementSchedules": {Value: payload},
		}, nil))

	if res.kind != resultFailure {
		t.Fatalf("kind = %d, want failure", res.kind)
	}
}

func TestCancelDisbursementSchedules_InvalidState(t *testing.T) {
	h := newTestHandlers(&stubRepo{cancelSchedulesErr: repository.ErrDisbursementInvalidState})

	res := h.CancelDisbursementSchedules(context.Background(), jobWith(TopicCancelDisbursements,
		gateway.Variables{"assessmentId": {Value: float64(12)}}, nil))

	if res.kind != resultBusinessError || res.errorCode != CodeDisbursementInvalidState {
		t.Fatalf("kind = %d, errorCode = %s", res.kind, res.errorCode)
	}
}

func TestAssociateMSFAANumber_NoSchedules(t *testing.T) {
	h := newTestHandlers(&stubRepo{associateErr: repository.ErrDisbursementNotFound})

	res := h.AssociateMSFAANumber(context.Background(), jobWith(TopicAssociateMSFAANumber,
		gateway.Variables{"assessmentId": {Value: float64(12)}}, nil))

	if res.kind != resultBusinessError || res.errorCode != CodeDisbursementNotFound {
		t.Fatalf("kind = %d, errorCode = %s", res.kind, res.errorCode)
	}
}

func TestWorkflowWrapUp_Complete(t *testing.T) {
	h := newTestHandlers(&stubRepo{})

	res := h.WorkflowWrapUp(context.Background(), jobWith(TopicWorkflowWrapUp,
		gateway.Variables{
			"assessmentId":   {Value: float64(12)},
			"calculatedData": {Value: `{"totalAssessedNeed":5000}`},
		}, nil))

	if res.kind != resultComplete {
		t.Fatalf("kind = %d, want complete, message %q", res.kind, res.message)
	}
}

func TestRemainingRetries(t *testing.T) {
	intPtr := func(v int) *int { return &v }

	tests := []struct {
		name    string
		retries *int
		want    int
	}{
		{"first delivery", nil, 3},
		{"decrements", intPtr(2), 1},
		{"exhausted", intPtr(0), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := remainingRetries(gateway.Job{Retries: tt.retries})
			if got != tt.want {
				t.Fatalf("remainingRetries = %d, want %d", got, tt.want)
			}
		})
	}
}
