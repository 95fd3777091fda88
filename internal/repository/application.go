package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/avolkhin/studentaid-system/internal/model"
)

// GetApplication возвращает заявление по идентификатору.
func (r *PostgresRepository) GetApplication(ctx context.Context, applicationID int64) (*model.Application, error) {
	var app model.Application
	err := r.pool.QueryRow(ctx,
		`SELECT id, application_number, student_id, program_year_id,
		        application_status, application_edit_status, submitted_data, created_at
		 FROM applications
		 WHERE id = $1`,
		applicationID,
	).Scan(&app.ID, &app.ApplicationNumber, &app.StudentID, &app.ProgramYearID,
		&app.Status, &app.EditStatus, &app.SubmittedData, &app.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("select application: %w", err)
	}

	return &app, nil
}

// UpdateApplicationStatus выполняет условное обновление статуса заявления:
// статус меняется, только если текущее значение равно ожидаемому. Если
// заявление уже в целевом статусе, обновление считается выполненным —
// задание могло быть доставлено повторно.
func (r *PostgresRepository) UpdateApplicationStatus(ctx context.Context, applicationID int64, from, to model.ApplicationStatus) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE applications
		 SET application_status = $3
		 WHERE id = $1 AND application_status = $2`,
		applicationID, string(from), string(to),
	)
	if err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	if cmdTag.RowsAffected() == 1 {
		return nil
	}

	var current string
	err = r.pool.QueryRow(ctx,
		`SELECT application_status FROM applications WHERE id = $1`,
		applicationID,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrApplicationNotFound
		}
		return fmt.Errorf("select application status: %w", err)
	}

	if current == string(to) {
		return nil
	}

	return ErrApplicationStatusNotUpdated
}

// CreateApplicationException создаёт запись об исключении заявления и
// возвращает её текущий статус. Повторный вызов не создаёт дубликата:
// запись на заявление одна, возвращается статус существующей.
func (r *PostgresRepository) CreateApplicationException(ctx context.Context, applicationID int64) (string, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO application_exceptions (application_id)
		 VALUES ($1)
		 ON CONFLICT (application_id) DO NOTHING`,
		applicationID,
	)
	if err != nil {
		return "", fmt.Errorf("insert application exception: %w", err)
	}

	var status string
	err = r.pool.QueryRow(ctx,
		`SELECT exception_status FROM application_exceptions WHERE application_id = $1`,
		applicationID,
	).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("select application exception: %w", err)
	}

	return status, nil
}

// CreateSupportingUsers сохраняет сопровождающих лиц заявления. Вставка
// идемпотентна: уже существующая запись того же типа и имени не
// дублируется. Возвращаются идентификаторы всех запрошенных записей.
func (r *PostgresRepository) CreateSupportingUsers(ctx context.Context, users []model.SupportingUser) ([]int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	ids := make([]int64, 0, len(users))
	for _, u := range users {
		_, err = tx.Exec(ctx,
			`INSERT INTO supporting_users (application_id, supporting_user_type, full_name, sin, submitted_data)
			 VALUES ($1, $2, $3, NULLIF($4, ''), $5)
			 ON CONFLICT (application_id, supporting_user_type, full_name) DO NOTHING`,
			u.ApplicationID, string(u.Type), u.FullName, u.SIN, u.SubmittedData,
		)
		if err != nil {
			return nil, fmt.Errorf("insert supporting user: %w", err)
		}

		var id int64
		err = tx.QueryRow(ctx,
			`SELECT id FROM supporting_users
			 WHERE application_id = $1 AND supporting_user_type = $2 AND full_name = $3`,
			u.ApplicationID, string(u.Type), u.FullName,
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("select supporting user: %w", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return ids, nil
}
