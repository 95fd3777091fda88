package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/avolkhin/studentaid-system/internal/model"
	"github.com/avolkhin/studentaid-system/internal/reconcile"
)

// AssociateMSFAANumber подбирает номер MSFAA для набора выплат оценки и
// привязывает его ко всем графикам в одной транзакции. Выбор номера —
// переиспользование живой записи, принятие номера из архива предыдущей
// системы или выпуск нового — делает reconcile.ChooseMSFAA. Если номер уже
// привязан ко всем графикам, возвращается ErrMSFAAAlreadyAssociated.
func (r *PostgresRepository) AssociateMSFAANumber(ctx context.Context, assessmentID int64) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var (
			applicationID int64
			studentID     int64
			intensity     *string
		)
		err = tx.QueryRow(ctx,
			`SELECT app.id, app.student_id, o.offering_intensity
			 FROM assessments a
			 JOIN applications app ON app.id = a.application_id
			 LEFT JOIN education_program_offerings o ON o.id = a.offering_id
			 WHERE a.id = $1`,
			assessmentID,
		).Scan(&applicationID, &studentID, &intensity)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAssessmentNotFound
			}
			return fmt.Errorf("select assessment: %w", err)
		}

		// Без периода обучения область действия номера не определить.
		if intensity == nil {
			return ErrAssessmentInvalidState
		}

		var dummy int
		if err := tx.QueryRow(ctx, `SELECT 1 FROM students WHERE id = $1 FOR UPDATE`, studentID).Scan(&dummy); err != nil {
			return fmt.Errorf("lock student for update: %w", err)
		}

		var total, unassociated int
		err = tx.QueryRow(ctx,
			`SELECT count(*), count(*) FILTER (WHERE msfaa_number_id IS NULL)
			 FROM disbursement_schedules
			 WHERE assessment_id = $1`,
			assessmentID,
		).Scan(&total, &unassociated)
		if err != nil {
			return fmt.Errorf("count schedules: %w", err)
		}
		if total == 0 {
			return ErrDisbursementNotFound
		}
		if unassociated == 0 {
			return ErrMSFAAAlreadyAssociated
		}

		pending, signed, err := selectLiveMSFAA(ctx, tx, studentID, *intensity)
		if err != nil {
			return err
		}

		legacy, err := selectLegacyMSFAA(ctx, tx, studentID, model.OfferingIntensity(*intensity))
		if err != nil {
			return err
		}

		decision := reconcile.ChooseMSFAA(pending, signed, legacy, time.Now())

		var msfaaID int64
		switch decision.Action {
		case reconcile.MSFAAReuse:
			msfaaID = decision.ReuseID

		case reconcile.MSFAAAdoptLegacy:
			// Номер из архива считается подписанным датой окончания
			// архивного заявления; запрос подписи не инициируется.
			err = tx.QueryRow(ctx,
				`INSERT INTO msfaa_numbers
				 (msfaa_number, student_id, offering_intensity, reference_application_id, date_signed)
				 VALUES ($1, $2, $3, $4, $5)
				 RETURNING id`,
				decision.Legacy.Number, studentID, *intensity, applicationID, decision.Legacy.EndDate,
			).Scan(&msfaaID)
			if err != nil {
				return fmt.Errorf("insert legacy msfaa: %w", err)
			}

		case reconcile.MSFAACreateNew:
			err = tx.QueryRow(ctx,
				`INSERT INTO msfaa_numbers
				 (msfaa_number, student_id, offering_intensity, reference_application_id, date_requested)
				 VALUES (nextval('msfaa_number_seq')::text, $1, $2, $3, now())
				 RETURNING id`,
				studentID, *intensity, applicationID,
			).Scan(&msfaaID)
			if err != nil {
				return fmt.Errorf("insert new msfaa: %w", err)
			}
		}

		_, err = tx.Exec(ctx,
			`UPDATE disbursement_schedules
			 SET msfaa_number_id = $2
			 WHERE assessment_id = $1 AND msfaa_number_id IS NULL`,
			assessmentID, msfaaID,
		)
		if err != nil {
			return fmt.Errorf("associate msfaa: %w", err)
		}

		return tx.Commit(ctx)
	})
}

// selectLiveMSFAA возвращает живые записи MSFAA студента для заданной
// интенсивности: последнюю ожидающую подписи и последнюю подписанную
// вместе с датой окончания периода обучения её заявления.
func selectLiveMSFAA(ctx context.Context, tx pgx.Tx, studentID int64, intensity string) (pending, signed *reconcile.SignedMSFAA, err error) {
	var p reconcile.SignedMSFAA
	err = tx.QueryRow(ctx,
		`SELECT id, msfaa_number
		 FROM msfaa_numbers
		 WHERE student_id = $1
		   AND offering_intensity = $2
		   AND cancelled_date IS NULL
		   AND date_signed IS NULL
		 ORDER BY id DESC
		 LIMIT 1`,
		studentID, intensity,
	).Scan(&p.ID, &p.Number)
	switch {
	case err == nil:
		pending = &p
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return nil, nil, fmt.Errorf("select pending msfaa: %w", err)
	}

	var s reconcile.SignedMSFAA
	err = tx.QueryRow(ctx,
		`SELECT m.id, m.msfaa_number, (
		     SELECT o.study_end_date
		     FROM assessments a
		     LEFT JOIN education_program_offerings o ON o.id = a.offering_id
		     WHERE a.application_id = m.reference_application_id
		     ORDER BY a.id DESC
		     LIMIT 1
		 )
		 FROM msfaa_numbers m
		 WHERE m.student_id = $1
		   AND m.offering_intensity = $2
		   AND m.cancelled_date IS NULL
		   AND m.date_signed IS NOT NULL
		 ORDER BY m.date_signed DESC
		 LIMIT 1`,
		studentID, intensity,
	).Scan(&s.ID, &s.Number, &s.OfferingEndDate)
	switch {
	case err == nil:
		signed = &s
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return nil, nil, fmt.Errorf("select signed msfaa: %w", err)
	}

	return pending, signed, nil
}

// selectLegacyMSFAA возвращает самую позднюю по дате окончания запись
// архива предыдущей системы с номером MSFAA для студента. Для очной
// интенсивности просматриваются архивные заявления, для заочной —
// архивные заявления на неполное обучение.
func selectLegacyMSFAA(ctx context.Context, tx pgx.Tx, studentID int64, intensity model.OfferingIntensity) (*reconcile.LegacyMSFAA, error) {
	table := "sfas_applications"
	if intensity == model.OfferingIntensityPartTime {
		table = "sfas_part_time_applications"
	}

	app := model.LegacyApplication{Intensity: intensity}
	err := tx.QueryRow(ctx,
		`SELECT sa.id, sa.individual_id, sa.start_date, sa.end_date, sa.msfaa_number
		 FROM `+table+` sa
		 JOIN sfas_individuals si ON si.id = sa.individual_id
		 WHERE si.student_id = $1
		   AND sa.msfaa_number IS NOT NULL
		 ORDER BY sa.end_date DESC
		 LIMIT 1`,
		studentID,
	).Scan(&app.ID, &app.IndividualID, &app.StartDate, &app.EndDate, &app.MSFAANumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select legacy msfaa: %w", err)
	}

	return &reconcile.LegacyMSFAA{Number: app.MSFAANumber, EndDate: app.EndDate}, nil
}
