// Package worker связывает задания шлюза с бизнес-логикой сервиса.
// Обработчики выполняются как независимые, возможно конкурентные
// вызовы: между ними нет общего состояния в памяти, вся координация —
// через хранилище.
package worker

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/avolkhin/studentaid-system/internal/gateway"
)

type resultKind int

const (
	resultComplete resultKind = iota
	resultBusinessError
	resultFailure
)

// Result описывает единственный терминальный исход обработки задания.
type Result struct {
	kind      resultKind
	variables gateway.Variables
	errorCode string
	message   string
}

// Complete завершает задание с необязательными выходными переменными.
func Complete(vars gateway.Variables) Result {
	return Result{kind: resultComplete, variables: vars}
}

// BusinessError завершает задание именованной бизнес-ошибкой: движок
// задание не повторяет, ветвление берёт на себя процесс.
func BusinessError(code, message string) Result {
	return Result{kind: resultBusinessError, errorCode: code, message: message}
}

// Failure завершает задание неожиданным сбоем: движок доставит задание
// повторно.
func Failure(message string) Result {
	return Result{kind: resultFailure, message: message}
}

// HandlerFunc обрабатывает одно задание и возвращает терминальный исход.
type HandlerFunc func(ctx context.Context, job gateway.Job) Result

// Runner опрашивает шлюз заданий и раздаёт задания обработчикам по топикам.
type Runner struct {
	client       *gateway.Client
	logger       *zap.SugaredLogger
	handlers     map[string]HandlerFunc
	topics       []string
	maxJobs      int
	lockDuration time.Duration
	pollInterval time.Duration
	asyncTimeout time.Duration
	retryTimeout time.Duration
}

// NewRunner создаёт раннер с указанным клиентом шлюза. pollInterval —
// пауза перед следующей выборкой, когда шлюз вернул пустой ответ.
func NewRunner(client *gateway.Client, logger *zap.SugaredLogger, lockDuration, pollInterval time.Duration) *Runner {
	if pollInterval <= 0 {
		pollInterval = 1 * time.Second
	}
	return &Runner{
		client:       client,
		logger:       logger,
		handlers:     make(map[string]HandlerFunc),
		maxJobs:      10,
		lockDuration: lockDuration,
		pollInterval: pollInterval,
		asyncTimeout: 20 * time.Second,
		retryTimeout: 30 * time.Second,
	}
}

// Register регистрирует обработчик топика.
func (r *Runner) Register(topic string, h HandlerFunc) {
	r.handlers[topic] = h
	r.topics = append(r.topics, topic)
}

// Run запускает цикл опроса шлюза до отмены контекста. Сбои выборки
// повторяются с нарастающей задержкой; после исчерпания попыток цикл
// продолжается со следующей выборки.
func (r *Runner) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		jobs, err := r.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Errorw("fetch jobs failed", "error", err)
			continue
		}

		if len(jobs) == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(r.pollInterval):
			}
			continue
		}

		for _, job := range jobs {
			r.dispatch(ctx, job)
		}
	}
}

func (r *Runner) fetch(ctx context.Context) ([]gateway.Job, error) {
	var jobs []gateway.Job

	backoff := retry.WithMaxRetries(4, retry.NewFibonacci(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		fetched, err := r.client.FetchAndLock(ctx, r.topics, r.maxJobs, r.lockDuration, r.asyncTimeout)
		if err != nil {
			return retry.RetryableError(err)
		}
		jobs = fetched
		return nil
	})

	return jobs, err
}

// dispatch выполняет обработчик задания и делает ровно один терминальный
// вызов шлюзу.
func (r *Runner) dispatch(ctx context.Context, job gateway.Job) {
	h, ok := r.handlers[job.TopicName]
	if !ok {
		r.logger.Errorw("no handler for topic", "topic", job.TopicName, "jobId", job.ID)
		if err := r.client.Fail(ctx, job.ID, "no handler registered for topic "+job.TopicName, 0, r.retryTimeout); err != nil {
			r.logger.Errorw("fail job", "jobId", job.ID, "error", err)
		}
		return
	}

	res := h(ctx, job)

	var err error
	switch res.kind {
	case resultComplete:
		err = r.client.Complete(ctx, job.ID, res.variables)
	case resultBusinessError:
		r.logger.Infow("job finished with business error",
			"topic", job.TopicName, "jobId", job.ID, "errorCode", res.errorCode)
		err = r.client.BPMNError(ctx, job.ID, res.errorCode, res.message)
	case resultFailure:
		r.logger.Errorw("job failed",
			"topic", job.TopicName, "jobId", job.ID, "message", res.message)
		err = r.client.Fail(ctx, job.ID, res.message, remainingRetries(job), r.retryTimeout)
	}

	if err != nil {
		// Терминальный вызов не прошёл: блокировка задания истечёт, и
		// шлюз доставит его повторно.
		r.logger.Errorw("report job result", "jobId", job.ID, "error", err)
	}
}

func remainingRetries(job gateway.Job) int {
	if job.Retries == nil {
		return 3
	}
	if *job.Retries > 0 {
		return *job.Retries - 1
	}
	return 0
}
