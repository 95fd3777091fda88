package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/avolkhin/studentaid-system/internal/model"
)

const dateLayout = "2006-01-02"

// GetAssessmentConsolidatedData собирает полный снимок данных заявления
// для расчёта оценки: заявление, учебный год, студента, период обучения,
// программу, площадку заведения, проверку дохода студента,
// сопровождающих лиц с их проверками дохода и одобренные апелляции.
// Отсутствующие необязательные связи остаются пустыми — снимок никогда
// не падает на разыменовании.
func (r *PostgresRepository) GetAssessmentConsolidatedData(ctx context.Context, assessmentID int64) (*model.ConsolidatedData, error) {
	data := &model.ConsolidatedData{}

	var (
		offeringID  *int64
		pyStart     *time.Time
		pyEnd       *time.Time
		student     model.ConsolidatedStudent
		studentBorn time.Time
	)
	err := r.pool.QueryRow(ctx,
		`SELECT app.id, app.application_number, app.application_status, app.application_edit_status,
		        app.submitted_data,
		        py.name, py.start_date, py.end_date,
		        s.id, s.given_name, s.last_name, s.birth_date, s.sin,
		        a.offering_id
		 FROM assessments a
		 JOIN applications app ON app.id = a.application_id
		 JOIN program_years py ON py.id = app.program_year_id
		 JOIN students s ON s.id = app.student_id
		 WHERE a.id = $1`,
		assessmentID,
	).Scan(
		&data.ApplicationID, &data.ApplicationNumber, &data.ApplicationStatus, &data.ApplicationEditStatus,
		&data.ApplicationData,
		&data.ProgramYear, &pyStart, &pyEnd,
		&student.ID, &student.GivenName, &student.LastName, &studentBorn, &student.SIN,
		&offeringID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssessmentNotFound
		}
		return nil, fmt.Errorf("select consolidated data: %w", err)
	}

	data.ProgramYearStartDate = pyStart
	data.ProgramYearEndDate = pyEnd
	student.BirthDate = studentBorn.Format(dateLayout)
	data.Student = &student

	if offeringID != nil {
		if err := r.loadOfferingData(ctx, *offeringID, data); err != nil {
			return nil, err
		}
	}

	if err := r.loadStudentIncome(ctx, data.ApplicationID, data); err != nil {
		return nil, err
	}

	if err := r.loadSupportingUsers(ctx, data.ApplicationID, data); err != nil {
		return nil, err
	}

	if err := r.loadApprovedAppeals(ctx, data.ApplicationID, data); err != nil {
		return nil, err
	}

	return data, nil
}

func (r *PostgresRepository) loadOfferingData(ctx context.Context, offeringID int64, data *model.ConsolidatedData) error {
	var (
		offering    model.ConsolidatedOffering
		start, end  time.Time
		program     model.ConsolidatedProgram
		institution model.ConsolidatedInstitution
		location    model.ConsolidatedLocation
	)
	err := r.pool.QueryRow(ctx,
		`SELECT o.id, o.study_start_date, o.study_end_date, o.offering_intensity,
		        o.actual_tuition, o.program_related_costs, o.mandatory_fees, o.exceptional_expenses,
		        o.year_of_study,
		        p.id, p.name, p.credential_type, p.completion_years,
		        i.id, i.operating_name, i.institution_type,
		        l.id, l.name, l.province
		 FROM education_program_offerings o
		 JOIN education_programs p ON p.id = o.program_id
		 JOIN institutions i ON i.id = p.institution_id
		 JOIN institution_locations l ON l.id = o.location_id
		 WHERE o.id = $1`,
		offeringID,
	).Scan(
		&offering.ID, &start, &end, &offering.Intensity,
		&offering.ActualTuitionCents, &offering.ProgramRelatedCents, &offering.MandatoryFeesCents, &offering.ExceptionalCents,
		&offering.YearOfStudy,
		&program.ID, &program.Name, &program.CredentialType, &program.CompletionYears,
		&institution.ID, &institution.OperatingName, &institution.Type,
		&location.ID, &location.Name, &location.Province,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("select offering data: %w", err)
	}

	offering.StudyStartDate = start.Format(dateLayout)
	offering.StudyEndDate = end.Format(dateLayout)
	data.Offering = &offering
	data.Program = &program
	data.Institution = &institution
	data.Location = &location
	return nil
}

// loadStudentIncome загружает проверку дохода самого студента: запись без
// ссылки на сопровождающее лицо.
func (r *PostgresRepository) loadStudentIncome(ctx context.Context, applicationID int64, data *model.ConsolidatedData) error {
	var income model.ConsolidatedIncome
	var dateReceived *time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT tax_year, reported_income, verified_income, date_received
		 FROM income_verifications
		 WHERE application_id = $1 AND supporting_user_id IS NULL
		 ORDER BY id
		 LIMIT 1`,
		applicationID,
	).Scan(&income.TaxYear, &income.ReportedIncome, &income.VerifiedIncome, &dateReceived)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("select student income: %w", err)
	}

	income.Verified = dateReceived != nil
	data.StudentIncome = &income
	return nil
}

// loadSupportingUsers загружает сопровождающих лиц заявления и их проверки
// дохода. Ключ — тип плюс порядковый номер внутри типа; порядок строк —
// по типу, затем по идентификатору, чтобы ключи были стабильны.
func (r *PostgresRepository) loadSupportingUsers(ctx context.Context, applicationID int64, data *model.ConsolidatedData) error {
	rows, err := r.pool.Query(ctx,
		`SELECT su.id, su.supporting_user_type, su.full_name, su.submitted_data,
		        iv.tax_year, iv.reported_income, iv.verified_income, iv.date_received
		 FROM supporting_users su
		 LEFT JOIN income_verifications iv ON iv.supporting_user_id = su.id
		 WHERE su.application_id = $1
		 ORDER BY su.supporting_user_type, su.id`,
		applicationID,
	)
	if err != nil {
		return fmt.Errorf("select supporting users: %w", err)
	}
	defer rows.Close()

	users := make(map[string]model.ConsolidatedSupportingUser)
	ordinals := make(map[model.SupportingUserType]int)

	for rows.Next() {
		var (
			u            model.ConsolidatedSupportingUser
			taxYear      *int
			reported     *int64
			verified     *int64
			dateReceived *time.Time
		)
		if err := rows.Scan(&u.ID, &u.Type, &u.FullName, &u.SubmittedData,
			&taxYear, &reported, &verified, &dateReceived); err != nil {
			return fmt.Errorf("scan supporting user: %w", err)
		}

		if taxYear != nil && reported != nil {
			u.Income = &model.ConsolidatedIncome{
				TaxYear:        *taxYear,
				ReportedIncome: *reported,
				VerifiedIncome: verified,
				Verified:       dateReceived != nil,
			}
		}

		ordinals[u.Type]++
		users[model.SupportingUserKey(u.Type, ordinals[u.Type])] = u
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	if len(users) > 0 {
		data.SupportingUsers = users
	}
	return nil
}

// loadApprovedAppeals загружает одобренные апелляции заявления с ключом по
// имени формы.
func (r *PostgresRepository) loadApprovedAppeals(ctx context.Context, applicationID int64, data *model.ConsolidatedData) error {
	rows, err := r.pool.Query(ctx,
		`SELECT id, form_name, submitted_data
		 FROM student_appeals
		 WHERE application_id = $1 AND appeal_status = 'Approved'
		 ORDER BY id`,
		applicationID,
	)
	if err != nil {
		return fmt.Errorf("select appeals: %w", err)
	}
	defer rows.Close()

	appeals := make(map[string]model.ConsolidatedAppeal)
	for rows.Next() {
		var a model.ConsolidatedAppeal
		if err := rows.Scan(&a.ID, &a.FormName, &a.SubmittedData); err != nil {
			return fmt.Errorf("scan appeal: %w", err)
		}
		appeals[a.FormName] = a
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	if len(appeals) > 0 {
		data.Appeals = appeals
	}
	return nil
}
