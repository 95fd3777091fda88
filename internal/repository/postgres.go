// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrAssessmentNotFound возвращается, если оценка не найдена.
var (
	ErrAssessmentNotFound = errors.New("assessment not found")
	// ErrAssessmentInvalidState возвращается, если текущий статус оценки не
	// допускает запрошенную операцию.
	ErrAssessmentInvalidState = errors.New("assessment is not in a valid state for the operation")
	// ErrApplicationNotFound возвращается, если заявление не найдено.
	ErrApplicationNotFound = errors.New("application not found")
	// ErrApplicationStatusNotUpdated возвращается, если условное обновление
	// статуса заявления не изменило ни одной строки.
	ErrApplicationStatusNotUpdated = errors.New("application status not updated")
	// ErrDisbursementNotFound возвращается, если у оценки ещё нет графиков выплат.
	ErrDisbursementNotFound = errors.New("disbursement schedules not found")
	// ErrDisbursementAlreadyCreated возвращается, если графики выплат для оценки
	// уже созданы. Вызывающая сторона трактует это как успех.
	ErrDisbursementAlreadyCreated = errors.New("disbursement schedules already created")
	// ErrMSFAAAlreadyAssociated возвращается, если номер MSFAA уже привязан ко
	// всем графикам оценки. Вызывающая сторона трактует это как успех.
	ErrMSFAAAlreadyAssociated = errors.New("MSFAA number already associated")
	// ErrDisbursementInvalidState возвращается, если текущий статус графиков
	// выплат не допускает запрошенную операцию.
	ErrDisbursementInvalidState = errors.New("disbursement schedules are not in a valid state for the operation")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет транзакционную операцию при сбоях сериализации и
// дедлоках. Обработчики заданий не должны ретраить бесконечно: после
// нескольких попыток ошибка отдаётся наружу, повторную доставку берёт на
// себя шлюз заданий.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 1 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Ping проверяет доступность БД.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
