package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/avolkhin/studentaid-system/internal/model"
)

// AdmissionResult описывает результат запроса на допуск оценки к расчёту.
// BlockingAssessmentID заполнен, если слот расчёта удерживает другая оценка.
type AdmissionResult struct {
	Admitted             bool
	BlockingAssessmentID *int64
}

// firstInSequenceSQL находит хронологически первую незавершённую оценку
// для пары студент + учебный год. Порядок: дата начала обучения по
// исходной оценке заявления (NULLS FIRST), при равенстве — идентификатор
// оценки по возрастанию.
const firstInSequenceSQL = `
	SELECT a.id
	FROM assessments a
	JOIN applications app ON app.id = a.application_id
	WHERE app.student_id = $1
	  AND app.program_year_id = $2
	  AND app.application_status <> 'Cancelled'
	  AND a.assessment_status <> 'Completed'
	ORDER BY (
	    SELECT o.study_start_date
	    FROM assessments orig
	    LEFT JOIN education_program_offerings o ON o.id = orig.offering_id
	    WHERE orig.application_id = app.id
	    ORDER BY orig.id
	    LIMIT 1
	) ASC NULLS FIRST, a.id ASC
	LIMIT 1`

// AdmitAssessment решает, допущена ли оценка к расчёту, и при допуске
// атомарно устанавливает отметку начала расчёта. Повторный вызов для
// оценки, уже удерживающей слот или уже завершённой, идемпотентно
// возвращает допуск: шлюз заданий доставляет задания минимум один раз.
func (r *PostgresRepository) AdmitAssessment(ctx context.Context, assessmentID int64) (AdmissionResult, error) {
	var res AdmissionResult

	err := r.withRetry(ctx, func() error {
		res = AdmissionResult{}

		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var (
			studentID     int64
			programYearID int64
			appStatus     string
			status        string
			calcStart     *time.Time
		)
		err = tx.QueryRow(ctx,
			`SELECT app.student_id, app.program_year_id, app.application_status, a.assessment_status, a.calculation_start_date
			 FROM assessments a
			 JOIN applications app ON app.id = a.application_id
			 WHERE a.id = $1`,
			assessmentID,
		).Scan(&studentID, &programYearID, &appStatus, &status, &calcStart)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAssessmentNotFound
			}
			return fmt.Errorf("select assessment: %w", err)
		}

		// Оценка отменённого заявления из очереди исключена и допуска не
		// получит никогда: это именованная ошибка, а не повторяемый сбой.
		if appStatus == string(model.ApplicationStatusCancelled) {
			return fmt.Errorf("%w: application of assessment %d is cancelled", ErrAssessmentInvalidState, assessmentID)
		}

		// Повторная доставка: слот уже за запрашивающей оценкой либо
		// расчёт уже завершён.
		if calcStart != nil || status == string(model.AssessmentStatusCompleted) {
			res.Admitted = true
			return tx.Commit(ctx)
		}

		// Строка студента сериализует конкурентные запросы на допуск.
		var dummy int
		if err := tx.QueryRow(ctx, `SELECT 1 FROM students WHERE id = $1 FOR UPDATE`, studentID).Scan(&dummy); err != nil {
			return fmt.Errorf("lock student for update: %w", err)
		}

		var blockerID int64
		err = tx.QueryRow(ctx,
			`SELECT a.id
			 FROM assessments a
			 JOIN applications app ON app.id = a.application_id
			 WHERE app.student_id = $1
			   AND app.program_year_id = $2
			   AND a.calculation_start_date IS NOT NULL
			   AND a.id <> $3
			 LIMIT 1`,
			studentID, programYearID, assessmentID,
		).Scan(&blockerID)
		if err == nil {
			res.BlockingAssessmentID = &blockerID
			return tx.Commit(ctx)
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("select slot holder: %w", err)
		}

		var firstID int64
		err = tx.QueryRow(ctx, firstInSequenceSQL, studentID, programYearID).Scan(&firstID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// Запрашивающая оценка не завершена, значит хотя бы
				// одна строка должна была найтись.
				return fmt.Errorf("no pending assessment in sequence for assessment %d", assessmentID)
			}
			return fmt.Errorf("select first in sequence: %w", err)
		}

		if firstID != assessmentID {
			// Не первый в очереди: отказ без изменения состояния,
			// идентификатор блокирующей оценки не сообщается.
			return tx.Commit(ctx)
		}

		cmdTag, err := tx.Exec(ctx,
			`UPDATE assessments
			 SET calculation_start_date = now(), assessment_status = $2
			 WHERE id = $1 AND calculation_start_date IS NULL`,
			assessmentID, string(model.AssessmentStatusInProgress),
		)
		if err != nil {
			return fmt.Errorf("set calculation start date: %w", err)
		}
		if cmdTag.RowsAffected() == 1 {
			res.Admitted = true
		}

		return tx.Commit(ctx)
	})

	return res, err
}

// impactedApplication описывает заявление того же студента и учебного
// года, на текущую оценку которого могло повлиять завершение расчёта.
type impactedApplication struct {
	applicationID   int64
	offeringID      *int64
	studentAppealID *int64
}

// CompleteAssessment сохраняет рассчитанные данные, переводит оценку в
// статус завершённой и снимает отметку начала расчёта, освобождая слот.
// Для каждого затронутого заявления того же студента и учебного года
// создаётся новая оценка с причиной «изменилось связанное заявление», с
// переносом ещё открытой апелляции. Если оценка уже завершена с
// сохранёнными данными, возвращается alreadyCompleted без побочных
// эффектов.
func (r *PostgresRepository) CompleteAssessment(ctx context.Context, assessmentID int64, calculatedData json.RawMessage) (alreadyCompleted bool, err error) {
	err = r.withRetry(ctx, func() error {
		alreadyCompleted = false

		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var (
			applicationID int64
			studentID     int64
			programYearID int64
			status        string
			hasData       bool
		)
		err = tx.QueryRow(ctx,
			`SELECT app.id, app.student_id, app.program_year_id, a.assessment_status, a.calculated_data IS NOT NULL
			 FROM assessments a
			 JOIN applications app ON app.id = a.application_id
			 WHERE a.id = $1
			 FOR UPDATE OF a`,
			assessmentID,
		).Scan(&applicationID, &studentID, &programYearID, &status, &hasData)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAssessmentNotFound
			}
			return fmt.Errorf("select assessment: %w", err)
		}

		if status == string(model.AssessmentStatusCompleted) && hasData {
			alreadyCompleted = true
			return tx.Commit(ctx)
		}

		_, err = tx.Exec(ctx,
			`UPDATE assessments
			 SET calculated_data = $2, assessment_status = $3, calculation_start_date = NULL
			 WHERE id = $1`,
			assessmentID, calculatedData, string(model.AssessmentStatusCompleted),
		)
		if err != nil {
			return fmt.Errorf("complete assessment: %w", err)
		}

		impacted, err := selectImpactedApplications(ctx, tx, studentID, programYearID, applicationID)
		if err != nil {
			return err
		}

		for _, imp := range impacted {
			_, err = tx.Exec(ctx,
				`INSERT INTO assessments (application_id, trigger_type, assessment_status, offering_id, student_appeal_id)
				 VALUES ($1, $2, $3, $4, $5)`,
				imp.applicationID,
				string(model.TriggerRelatedApplicationChanged),
				string(model.AssessmentStatusPending),
				imp.offeringID,
				imp.studentAppealID,
			)
			if err != nil {
				return fmt.Errorf("create related assessment: %w", err)
			}
		}

		return tx.Commit(ctx)
	})

	return alreadyCompleted, err
}

// selectImpactedApplications находит другие завершённые заявления той же
// пары студент + учебный год, текущая оценка которых уже рассчитана:
// их результат зависит от только что изменившихся данных и подлежит
// переоценке. Перенос апелляции ограничен ещё одобренными апелляциями.
func selectImpactedApplications(ctx context.Context, tx pgx.Tx, studentID, programYearID, excludeApplicationID int64) ([]impactedApplication, error) {
	rows, err := tx.Query(ctx,
		`SELECT app.id, last.offering_id, appeal.id
		 FROM applications app
		 JOIN LATERAL (
		     SELECT x.id, x.offering_id, x.student_appeal_id, x.assessment_status
		     FROM assessments x
		     WHERE x.application_id = app.id
		     ORDER BY x.id DESC
		     LIMIT 1
		 ) last ON TRUE
		 LEFT JOIN student_appeals appeal
		     ON appeal.id = last.student_appeal_id AND appeal.appeal_status = 'Approved'
		 WHERE app.student_id = $1
		   AND app.program_year_id = $2
		   AND app.id <> $3
		   AND app.application_status = 'Completed'
		   AND last.assessment_status = 'Completed'`,
		studentID, programYearID, excludeApplicationID,
	)
	if err != nil {
		return nil, fmt.Errorf("select impacted applications: %w", err)
	}
	defer rows.Close()

	var impacted []impactedApplication
	for rows.Next() {
		var imp impactedApplication
		if err := rows.Scan(&imp.applicationID, &imp.offeringID, &imp.studentAppealID); err != nil {
			return nil, fmt.Errorf("scan impacted application: %w", err)
		}
		impacted = append(impacted, imp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return impacted, nil
}

// NextAssessmentInSequence возвращает идентификатор следующей
// незавершённой оценки в хронологической очереди пары студент + учебный
// год, к которой относится указанная оценка, либо nil, если очередь пуста.
func (r *PostgresRepository) NextAssessmentInSequence(ctx context.Context, assessmentID int64) (*int64, error) {
	var studentID, programYearID int64
	err := r.pool.QueryRow(ctx,
		`SELECT app.student_id, app.program_year_id
		 FROM assessments a
		 JOIN applications app ON app.id = a.application_id
		 WHERE a.id = $1`,
		assessmentID,
	).Scan(&studentID, &programYearID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssessmentNotFound
		}
		return nil, fmt.Errorf("select assessment: %w", err)
	}

	var nextID int64
	err = r.pool.QueryRow(ctx, firstInSequenceSQL, studentID, programYearID).Scan(&nextID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select next in sequence: %w", err)
	}

	return &nextID, nil
}
