// Package model содержит доменные сущности системы студенческой финансовой помощи.
package model

import (
	"encoding/json"
	"time"
)

// ApplicationStatus описывает статус заявления на финансовую помощь.
type ApplicationStatus string

const (
	ApplicationStatusSubmitted  ApplicationStatus = "Submitted"
	ApplicationStatusInProgress ApplicationStatus = "In Progress"
	ApplicationStatusAssessment ApplicationStatus = "Assessment"
	ApplicationStatusEnrolment  ApplicationStatus = "Enrolment"
	ApplicationStatusCompleted  ApplicationStatus = "Completed"
	ApplicationStatusCancelled  ApplicationStatus = "Cancelled"
)

// ApplicationEditStatus описывает статус редактирования заявления.
type ApplicationEditStatus string

const (
	ApplicationEditStatusOriginal            ApplicationEditStatus = "Original"
	ApplicationEditStatusChangeInProgress    ApplicationEditStatus = "Change in progress"
	ApplicationEditStatusChangedWithApproval ApplicationEditStatus = "Changed with approval"
)

// AssessmentStatus описывает статус расчёта оценки.
type AssessmentStatus string

const (
	AssessmentStatusPending    AssessmentStatus = "Pending"
	AssessmentStatusInProgress AssessmentStatus = "In Progress"
	AssessmentStatusCompleted  AssessmentStatus = "Completed"
)

// AssessmentTriggerType описывает причину создания оценки.
type AssessmentTriggerType string

const (
	TriggerOriginalAssessment        AssessmentTriggerType = "Original assessment"
	TriggerOfferingChange            AssessmentTriggerType = "Offering change"
	TriggerRelatedApplicationChanged AssessmentTriggerType = "Related application changed"
	TriggerStudentAppeal             AssessmentTriggerType = "Student appeal"
	TriggerManualReassessment        AssessmentTriggerType = "Manual reassessment"
)

// OfferingIntensity описывает интенсивность обучения.
type OfferingIntensity string

const (
	OfferingIntensityFullTime OfferingIntensity = "Full Time"
	OfferingIntensityPartTime OfferingIntensity = "Part Time"
)

// DisbursementStatus описывает статус графика выплаты.
type DisbursementStatus string

const (
	DisbursementStatusPending   DisbursementStatus = "Pending"
	DisbursementStatusSent      DisbursementStatus = "Sent"
	DisbursementStatusCancelled DisbursementStatus = "Cancelled"
	DisbursementStatusRejected  DisbursementStatus = "Rejected"
)

// AwardCategory описывает категорию выплаты. Закрытое перечисление:
// отчётность и расчёт переплат зависят от точных значений.
type AwardCategory string

const (
	AwardCategoryCanadaLoan   AwardCategory = "Canada Loan"
	AwardCategoryCanadaGrant  AwardCategory = "Canada Grant"
	AwardCategoryBCLoan       AwardCategory = "BC Loan"
	AwardCategoryBCGrant      AwardCategory = "BC Grant"
	AwardCategoryBCTotalGrant AwardCategory = "BC Total Grant"
)

// IsLoan сообщает, относится ли категория к займам. Только займы
// порождают записи о переплатах при переоценке.
func (c AwardCategory) IsLoan() bool {
	return c == AwardCategoryCanadaLoan || c == AwardCategoryBCLoan
}

// IsTotalGrant сообщает, является ли категория агрегатом провинциальных
// грантов. Такие значения хранятся только для отображения и исключаются
// из всех сумм при сверке выплат.
func (c AwardCategory) IsTotalGrant() bool {
	return c == AwardCategoryBCTotalGrant
}

// OverawardOrigin описывает источник записи о переплате.
type OverawardOrigin string

const (
	OverawardOriginReassessment OverawardOrigin = "Reassessment Overaward"
	OverawardOriginLegacy       OverawardOrigin = "Legacy Overaward"
	OverawardOriginManual       OverawardOrigin = "Manual Record"
)

// SupportingUserType описывает тип сопровождающего лица заявления.
type SupportingUserType string

const (
	SupportingUserParent  SupportingUserType = "Parent"
	SupportingUserPartner SupportingUserType = "Partner"
)

// AppealStatus описывает статус апелляции студента.
type AppealStatus string

const (
	AppealStatusPending  AppealStatus = "Pending"
	AppealStatusApproved AppealStatus = "Approved"
	AppealStatusDeclined AppealStatus = "Declined"
)

// Student представляет студента.
type Student struct {
	ID        int64
	SIN       string
	GivenName string
	LastName  string
	BirthDate time.Time
	CreatedAt time.Time
}

// ProgramYear представляет учебный год программы финансирования.
type ProgramYear struct {
	ID        int64
	Name      string
	StartDate time.Time
	EndDate   time.Time
	Active    bool
}

// Application представляет заявление на финансовую помощь.
type Application struct {
	ID                int64
	ApplicationNumber string
	StudentID         int64
	ProgramYearID     int64
	Status            ApplicationStatus
	EditStatus        ApplicationEditStatus
	SubmittedData     json.RawMessage
	CreatedAt         time.Time
}

// Assessment представляет один проход расчёта суммы помощи по заявлению.
// Ненулевая отметка начала расчёта означает, что оценка удерживает
// единственный слот расчёта для пары студент + учебный год.
type Assessment struct {
	ID                   int64
	ApplicationID        int64
	TriggerType          AssessmentTriggerType
	Status               AssessmentStatus
	OfferingID           *int64
	StudentAppealID      *int64
	CalculatedData       json.RawMessage
	CalculationStartDate *time.Time
	CreatedAt            time.Time
}

// Offering представляет период обучения, предлагаемый учебным заведением.
type Offering struct {
	ID                  int64
	ProgramID           int64
	LocationID          int64
	Name                string
	StudyStartDate      time.Time
	StudyEndDate        time.Time
	Intensity           OfferingIntensity
	ActualTuitionCents  int64
	ProgramRelatedCents int64
	MandatoryFeesCents  int64
	ExceptionalCents    int64
	YearOfStudy         int
}

// DisbursementSchedule представляет запланированное событие выплаты.
type DisbursementSchedule struct {
	ID                   int64
	AssessmentID         int64
	DocumentNumber       int64
	DisbursementDate     time.Time
	NegotiatedExpiryDate time.Time
	Status               DisbursementStatus
	DateSent             *time.Time
	MSFAANumberID        *int64
	Values               []DisbursementValue
}

// DisbursementValue представляет одну выплату в составе графика.
// Суммы хранятся в центах.
type DisbursementValue struct {
	ID                         int64
	ScheduleID                 int64
	Code                       string
	Category                   AwardCategory
	AmountCents                int64
	DisbursedSubtractedCents   int64
	OverawardSubtractedCents   int64
	RestrictionSubtractedCents int64
}

// EffectiveAmountCents возвращает сумму к выплате: валовая сумма за
// вычетом всех трёх удержаний.
func (v DisbursementValue) EffectiveAmountCents() int64 {
	return v.AmountCents - v.DisbursedSubtractedCents - v.OverawardSubtractedCents - v.RestrictionSubtractedCents
}

// Overaward представляет запись о переплате (положительная сумма — долг,
// отрицательная — кредит) студента по конкретному коду выплаты.
// Баланс считается суммой неудалённых записей.
type Overaward struct {
	ID           int64
	StudentID    int64
	AssessmentID *int64
	Code         string
	AmountCents  int64
	Origin       OverawardOrigin
	DeletedAt    *time.Time
	CreatedAt    time.Time
}

// MSFAANumber представляет номер генерального соглашения о финансировании.
// Записи никогда не удаляются, только вытесняются более новыми.
type MSFAANumber struct {
	ID                     int64
	Number                 string
	StudentID              int64
	Intensity              OfferingIntensity
	ReferenceApplicationID *int64
	DateRequested          *time.Time
	DateSigned             *time.Time
	CancelledDate          *time.Time
	CreatedAt              time.Time
}

// SupportingUser представляет сопровождающее лицо заявления.
type SupportingUser struct {
	ID            int64
	ApplicationID int64
	Type          SupportingUserType
	FullName      string
	SIN           string
	SubmittedData json.RawMessage
}

// IncomeVerification представляет проверку дохода. Запись без ссылки на
// сопровождающее лицо относится к самому студенту.
type IncomeVerification struct {
	ID               int64
	ApplicationID    int64
	SupportingUserID *int64
	TaxYear          int
	ReportedIncome   int64
	VerifiedIncome   *int64
	DateReceived     *time.Time
}

// StudentAppeal представляет апелляцию студента по заявлению.
type StudentAppeal struct {
	ID            int64
	ApplicationID int64
	FormName      string
	Status        AppealStatus
	SubmittedData json.RawMessage
}

// LegacyApplication представляет заявление из архива предыдущей системы.
// Архив доступен только для чтения.
type LegacyApplication struct {
	ID           int64
	IndividualID int64
	StartDate    time.Time
	EndDate      time.Time
	MSFAANumber  string
	Intensity    OfferingIntensity
}
