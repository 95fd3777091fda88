package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/avolkhin/studentaid-system/internal/model"
	"github.com/avolkhin/studentaid-system/internal/reconcile"
)

// CreateDisbursementSchedules сохраняет графики выплат оценки, сверяя их с
// историей выплат по тому же заявлению. В одной транзакции: считаются
// ранее эффективно выплаченные суммы по кодам, отменяются ещё не
// отправленные графики прежних оценок заявления, мягко удаляются прежние
// переплаты переоценок, вставляются новые графики, значения и переплаты.
// Если графики уже созданы, возвращается ErrDisbursementAlreadyCreated без
// дублирования строк.
func (r *PostgresRepository) CreateDisbursementSchedules(ctx context.Context, assessmentID int64, schedules []reconcile.ScheduleInput) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var (
			applicationID int64
			studentID     int64
			status        string
		)
		err = tx.QueryRow(ctx,
			`SELECT app.id, app.student_id, a.assessment_status
			 FROM assessments a
			 JOIN applications app ON app.id = a.application_id
			 WHERE a.id = $1
			 FOR UPDATE OF a`,
			assessmentID,
		).Scan(&applicationID, &studentID, &status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAssessmentNotFound
			}
			return fmt.Errorf("select assessment: %w", err)
		}

		var existing int
		err = tx.QueryRow(ctx,
			`SELECT count(*) FROM disbursement_schedules WHERE assessment_id = $1`,
			assessmentID,
		).Scan(&existing)
		if err != nil {
			return fmt.Errorf("count schedules: %w", err)
		}
		if existing > 0 {
			return ErrDisbursementAlreadyCreated
		}

		if status != string(model.AssessmentStatusInProgress) {
			return ErrAssessmentInvalidState
		}

		previous, err := selectPreviousDisbursed(ctx, tx, applicationID, assessmentID)
		if err != nil {
			return err
		}

		plans, overawards := reconcile.PlanSchedules(previous, schedules)

		// Ещё не отправленные графики прежних оценок этого заявления
		// вытесняются новым набором: по устаревшей оценке выплат больше
		// не будет, иначе оба набора остаются подлежащими отправке.
		_, err = tx.Exec(ctx,
			`UPDATE disbursement_schedules
			 SET disbursement_status = $1
			 WHERE disbursement_status = $2
			   AND assessment_id IN (
			       SELECT id FROM assessments WHERE application_id = $3 AND id <> $4
			   )`,
			string(model.DisbursementStatusCancelled), string(model.DisbursementStatusPending),
			applicationID, assessmentID,
		)
		if err != nil {
			return fmt.Errorf("cancel superseded schedules: %w", err)
		}

		// Прежние переплаты переоценок этого заявления вытесняются
		// новыми: строки сохраняются для аудита, но исключаются из
		// текущего баланса.
		_, err = tx.Exec(ctx,
			`UPDATE disbursement_overawards
			 SET deleted_at = now()
			 WHERE student_id = $1
			   AND origin_type = $2
			   AND deleted_at IS NULL
			   AND assessment_id IN (
			       SELECT id FROM assessments WHERE application_id = $3 AND id <> $4
			   )`,
			studentID, string(model.OverawardOriginReassessment), applicationID, assessmentID,
		)
		if err != nil {
			return fmt.Errorf("soft delete prior overawards: %w", err)
		}

		for _, plan := range plans {
			var scheduleID int64
			err = tx.QueryRow(ctx,
				`INSERT INTO disbursement_schedules (assessment_id, disbursement_date, negotiated_expiry_date, disbursement_status)
				 VALUES ($1, $2, $3, $4)
				 RETURNING id`,
				assessmentID, plan.DisbursementDate, plan.NegotiatedExpiryDate, string(model.DisbursementStatusPending),
			).Scan(&scheduleID)
			if err != nil {
				return fmt.Errorf("insert schedule: %w", err)
			}

			for _, v := range plan.Values {
				_, err = tx.Exec(ctx,
					`INSERT INTO disbursement_values
					 (disbursement_schedule_id, value_code, value_type, value_amount, disbursed_amount_subtracted)
					 VALUES ($1, $2, $3, $4, $5)`,
					scheduleID, v.Code, string(v.Category), v.AmountCents, v.DisbursedSubtractedCents,
				)
				if err != nil {
					return fmt.Errorf("insert disbursement value: %w", err)
				}
			}
		}

		for _, o := range overawards {
			_, err = tx.Exec(ctx,
				`INSERT INTO disbursement_overawards
				 (student_id, assessment_id, disbursement_value_code, overaward_value, origin_type)
				 VALUES ($1, $2, $3, $4, $5)`,
				studentID, assessmentID, o.Code, o.AmountCents, string(model.OverawardOriginReassessment),
			)
			if err != nil {
				return fmt.Errorf("insert overaward: %w", err)
			}
		}

		return tx.Commit(ctx)
	})
}

// selectPreviousDisbursed возвращает ранее эффективно выплаченные суммы по
// кодам: сумма валовых значений за вычетом всех удержаний по отправленным
// графикам прежних оценок того же заявления. Отклонённые и отменённые
// графики в сумму не входят, агрегаты провинциальных грантов исключаются.
func selectPreviousDisbursed(ctx context.Context, tx pgx.Tx, applicationID, excludeAssessmentID int64) (map[string]int64, error) {
	rows, err := tx.Query(ctx,
		`SELECT dv.value_code,
		        SUM(dv.value_amount - dv.disbursed_amount_subtracted - dv.overaward_amount_subtracted - dv.restriction_amount_subtracted)
		 FROM disbursement_values dv
		 JOIN disbursement_schedules ds ON ds.id = dv.disbursement_schedule_id
		 JOIN assessments a ON a.id = ds.assessment_id
		 WHERE a.application_id = $1
		   AND a.id <> $2
		   AND ds.disbursement_status = $3
		   AND dv.value_type <> $4
		 GROUP BY dv.value_code`,
		applicationID, excludeAssessmentID,
		string(model.DisbursementStatusSent), string(model.AwardCategoryBCTotalGrant),
	)
	if err != nil {
		return nil, fmt.Errorf("select previous disbursed: %w", err)
	}
	defer rows.Close()

	previous := make(map[string]int64)
	for rows.Next() {
		var (
			code  string
			total int64
		)
		if err := rows.Scan(&code, &total); err != nil {
			return nil, fmt.Errorf("scan previous disbursed: %w", err)
		}
		previous[code] = total
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return previous, nil
}

// CancelDisbursementSchedules выполняет административную отмену графиков
// выплат оценки. Отправленный график после отмены меняться уже не может;
// отмена отклонённого графика недопустима. Повторная отмена полностью
// отменённого набора — успех без изменений.
func (r *PostgresRepository) CancelDisbursementSchedules(ctx context.Context, assessmentID int64) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		rows, err := tx.Query(ctx,
			`SELECT disbursement_status
			 FROM disbursement_schedules
			 WHERE assessment_id = $1
			 FOR UPDATE`,
			assessmentID,
		)
		if err != nil {
			return fmt.Errorf("select schedules: %w", err)
		}

		var total, cancelled, rejected int
		for rows.Next() {
			var status string
			if err := rows.Scan(&status); err != nil {
				rows.Close()
				return fmt.Errorf("scan schedule status: %w", err)
			}
			total++
			switch model.DisbursementStatus(status) {
			case model.DisbursementStatusCancelled:
				cancelled++
			case model.DisbursementStatusRejected:
				rejected++
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}

		if total == 0 {
			return ErrDisbursementNotFound
		}
		if cancelled == total {
			return nil
		}
		if rejected > 0 {
			return ErrDisbursementInvalidState
		}

		_, err = tx.Exec(ctx,
			`UPDATE disbursement_schedules
			 SET disbursement_status = $2
			 WHERE assessment_id = $1 AND disbursement_status <> $2`,
			assessmentID, string(model.DisbursementStatusCancelled),
		)
		if err != nil {
			return fmt.Errorf("cancel schedules: %w", err)
		}

		return tx.Commit(ctx)
	})
}

// GetOverawardBalance возвращает текущий баланс переплат студента по кодам
// выплат: сумму неудалённых записей.
func (r *PostgresRepository) GetOverawardBalance(ctx context.Context, studentID int64) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT disbursement_value_code, SUM(overaward_value)
		 FROM disbursement_overawards
		 WHERE student_id = $1 AND deleted_at IS NULL
		 GROUP BY disbursement_value_code`,
		studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("select overaward balance: %w", err)
	}
	defer rows.Close()

	balance := make(map[string]int64)
	for rows.Next() {
		var (
			code  string
			total int64
		)
		if err := rows.Scan(&code, &total); err != nil {
			return nil, fmt.Errorf("scan overaward balance: %w", err)
		}
		balance[code] = total
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return balance, nil
}
