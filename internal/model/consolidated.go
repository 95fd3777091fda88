package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ConsolidatedData содержит полный снимок данных заявления, передаваемый
// на вход расчёта оценки. Тип закрытый и версионируемый: внешние
// потребители получают только явно запрошенные листья через проекцию
// путей, никакие поля не отдаются неявно.
type ConsolidatedData struct {
	ApplicationID         int64                 `json:"applicationId"`
	ApplicationNumber     string                `json:"applicationNumber"`
	ApplicationStatus     ApplicationStatus     `json:"applicationStatus"`
	ApplicationEditStatus ApplicationEditStatus `json:"applicationEditStatus"`
	ApplicationData       json.RawMessage       `json:"applicationData,omitempty"`

	ProgramYear          string     `json:"programYear,omitempty"`
	ProgramYearStartDate *time.Time `json:"programYearStartDate,omitempty"`
	ProgramYearEndDate   *time.Time `json:"programYearEndDate,omitempty"`

	Student *ConsolidatedStudent `json:"student,omitempty"`

	Offering    *ConsolidatedOffering    `json:"offering,omitempty"`
	Program     *ConsolidatedProgram     `json:"program,omitempty"`
	Institution *ConsolidatedInstitution `json:"institution,omitempty"`
	Location    *ConsolidatedLocation    `json:"location,omitempty"`

	// StudentIncome — проверка дохода самого студента: единственная
	// запись без ссылки на сопровождающее лицо.
	StudentIncome *ConsolidatedIncome `json:"studentIncome,omitempty"`

	// SupportingUsers индексируется ключом вида Parent1, Partner1:
	// тип плюс порядковый номер внутри типа (сортировка по типу, затем
	// по идентификатору).
	SupportingUsers map[string]ConsolidatedSupportingUser `json:"supportingUsers,omitempty"`

	// Appeals индексируется именем формы одобренной апелляции.
	Appeals map[string]ConsolidatedAppeal `json:"appeals,omitempty"`
}

// ConsolidatedStudent содержит поля студента, доступные расчёту.
type ConsolidatedStudent struct {
	ID        int64  `json:"id"`
	GivenName string `json:"givenName"`
	LastName  string `json:"lastName"`
	BirthDate string `json:"birthDate"`
	SIN       string `json:"sin"`
}

// ConsolidatedOffering содержит финансовые и академические поля периода обучения.
type ConsolidatedOffering struct {
	ID                  int64             `json:"id"`
	StudyStartDate      string            `json:"studyStartDate"`
	StudyEndDate        string            `json:"studyEndDate"`
	Intensity           OfferingIntensity `json:"offeringIntensity"`
	ActualTuitionCents  int64             `json:"actualTuitionCosts"`
	ProgramRelatedCents int64             `json:"programRelatedCosts"`
	MandatoryFeesCents  int64             `json:"mandatoryFees"`
	ExceptionalCents    int64             `json:"exceptionalExpenses"`
	YearOfStudy         int               `json:"yearOfStudy"`
}

// ConsolidatedProgram содержит поля образовательной программы.
type ConsolidatedProgram struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	CredentialType  string `json:"credentialType"`
	CompletionYears string `json:"completionYears"`
}

// ConsolidatedInstitution содержит поля учебного заведения.
type ConsolidatedInstitution struct {
	ID            int64  `json:"id"`
	OperatingName string `json:"operatingName"`
	Type          string `json:"institutionType"`
}

// ConsolidatedLocation содержит поля площадки учебного заведения.
type ConsolidatedLocation struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Province string `json:"province"`
}

// ConsolidatedIncome содержит результат проверки дохода.
type ConsolidatedIncome struct {
	TaxYear        int    `json:"taxYear"`
	ReportedIncome int64  `json:"reportedIncome"`
	VerifiedIncome *int64 `json:"verifiedIncome,omitempty"`
	Verified       bool   `json:"verified"`
}

// ConsolidatedSupportingUser содержит данные сопровождающего лица вместе
// с его проверкой дохода, если она есть.
type ConsolidatedSupportingUser struct {
	ID            int64               `json:"id"`
	Type          SupportingUserType  `json:"supportingUserType"`
	FullName      string              `json:"fullName"`
	SubmittedData json.RawMessage     `json:"submittedData,omitempty"`
	Income        *ConsolidatedIncome `json:"income,omitempty"`
}

// ConsolidatedAppeal содержит данные одобренной апелляции.
type ConsolidatedAppeal struct {
	ID            int64           `json:"id"`
	FormName      string          `json:"formName"`
	SubmittedData json.RawMessage `json:"submittedData,omitempty"`
}

// SupportingUserKey строит ключ сопровождающего лица по типу и порядковому
// номеру внутри типа, начиная с единицы: Parent1, Parent2, Partner1.
func SupportingUserKey(t SupportingUserType, ordinal int) string {
	return fmt.Sprintf("%s%d", t, ordinal)
}

// SupportingUser возвращает сопровождающее лицо по типу и порядковому номеру.
func (d *ConsolidatedData) SupportingUser(t SupportingUserType, ordinal int) (ConsolidatedSupportingUser, bool) {
	u, ok := d.SupportingUsers[SupportingUserKey(t, ordinal)]
	return u, ok
}
