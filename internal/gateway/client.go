// Package gateway предоставляет клиент шлюза заданий — внешнего механизма
// раздачи работы с доставкой минимум один раз. Обработчик обязан
// завершить каждое задание ровно одним терминальным вызовом: Complete,
// BPMNError (именованная бизнес-ошибка) или Fail (неожиданный сбой,
// ведущий к повторной доставке на стороне движка).
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Client инкапсулирует HTTP-взаимодействие со шлюзом заданий.
type Client struct {
	baseURL    string
	workerID   string
	httpClient *http.Client
}

// NewClient создаёт клиент шлюза заданий по указанному адресу. Транспорт
// повторяет запросы при сетевых сбоях и ответах 5xx.
func NewClient(baseURL, workerID string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		workerID:   workerID,
		httpClient: rc.StandardClient(),
	}
}

// Variable представляет типизированную переменную задания.
type Variable struct {
	Value any    `json:"value"`
	Type  string `json:"type,omitempty"`
}

// Variables — набор переменных задания по именам.
type Variables map[string]Variable

// Int64 создаёт целочисленную переменную.
func Int64(v int64) Variable { return Variable{Value: v, Type: "Long"} }

// String создаёт строковую переменную.
func String(v string) Variable { return Variable{Value: v, Type: "String"} }

// Bool создаёт логическую переменную.
func Bool(v bool) Variable { return Variable{Value: v, Type: "Boolean"} }

// JSON создаёт переменную с произвольным JSON-значением.
func JSON(v any) Variable { return Variable{Value: v, Type: "Json"} }

// Job представляет одно задание, полученное из шлюза.
type Job struct {
	ID            string            `json:"id"`
	TopicName     string            `json:"topicName"`
	Variables     Variables         `json:"variables"`
	CustomHeaders map[string]string `json:"customHeaders"`
	Retries       *int              `json:"retries"`
}

// Int64Variable возвращает целочисленную переменную задания.
func (j Job) Int64Variable(name string) (int64, error) {
	v, ok := j.Variables[name]
	if !ok {
		return 0, fmt.Errorf("variable %q is missing", name)
	}

	switch value := v.Value.(type) {
	case float64:
		return int64(value), nil
	case json.Number:
		return value.Int64()
	default:
		return 0, fmt.Errorf("variable %q is not a number", name)
	}
}

// JSONVariable декодирует JSON-переменную задания в dst.
func (j Job) JSONVariable(name string, dst any) error {
	v, ok := j.Variables[name]
	if !ok {
		return fmt.Errorf("variable %q is missing", name)
	}

	var raw []byte
	switch value := v.Value.(type) {
	case string:
		// Некоторые движки передают JSON-переменные строкой.
		raw = []byte(value)
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode variable %q: %w", name, err)
		}
		raw = encoded
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode variable %q: %w", name, err)
	}
	return nil
}

// FetchAndLock запрашивает и блокирует задания по указанным топикам.
// Запрос удерживается шлюзом до появления заданий, но не дольше
// asyncTimeout.
func (c *Client) FetchAndLock(ctx context.Context, topics []string, maxJobs int, lockDuration, asyncTimeout time.Duration) ([]Job, error) {
	type topicReq struct {
		TopicName    string `json:"topicName"`
		LockDuration int64  `json:"lockDuration"`
	}

	reqTopics := make([]topicReq, 0, len(topics))
	for _, t := range topics {
		reqTopics = append(reqTopics, topicReq{TopicName: t, LockDuration: lockDuration.Milliseconds()})
	}

	body := struct {
		WorkerID             string     `json:"workerId"`
		MaxTasks             int        `json:"maxTasks"`
		AsyncResponseTimeout int64      `json:"asyncResponseTimeout"`
		Topics               []topicReq `json:"topics"`
	}{
		WorkerID:             c.workerID,
		MaxTasks:             maxJobs,
		AsyncResponseTimeout: asyncTimeout.Milliseconds(),
		Topics:               reqTopics,
	}

	var jobs []Job
	if err := c.post(ctx, "/external-task/fetchAndLock", body, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Complete завершает задание с необязательными выходными переменными.
func (c *Client) Complete(ctx context.Context, jobID string, vars Variables) error {
	body := struct {
		WorkerID  string    `json:"workerId"`
		Variables Variables `json:"variables,omitempty"`
	}{WorkerID: c.workerID, Variables: vars}

	return c.post(ctx, "/external-task/"+jobID+"/complete", body, nil)
}

// BPMNError завершает задание именованной бизнес-ошибкой: оркестрирующий
// процесс обрабатывает её ветвлением, движок задание не повторяет.
func (c *Client) BPMNError(ctx context.Context, jobID, errorCode, message string) error {
	body := struct {
		WorkerID     string `json:"workerId"`
		ErrorCode    string `json:"errorCode"`
		ErrorMessage string `json:"errorMessage,omitempty"`
	}{WorkerID: c.workerID, ErrorCode: errorCode, ErrorMessage: message}

	return c.post(ctx, "/external-task/"+jobID+"/bpmnError", body, nil)
}

// Fail завершает задание неожиданным сбоем: движок повторит доставку
// после retryTimeout, пока не исчерпаются retries.
func (c *Client) Fail(ctx context.Context, jobID, message string, retries int, retryTimeout time.Duration) error {
	body := struct {
		WorkerID     string `json:"workerId"`
		ErrorMessage string `json:"errorMessage"`
		Retries      int    `json:"retries"`
		RetryTimeout int64  `json:"retryTimeout"`
	}{WorkerID: c.workerID, ErrorMessage: message, Retries: retries, RetryTimeout: retryTimeout.Milliseconds()}

	return c.post(ctx, "/external-task/"+jobID+"/failure", body, nil)
}

// PublishMessage публикует коррелированное сообщение процессу — так
// секвенсор сигнализирует следующей заблокированной оценке повторить
// запрос на допуск.
func (c *Client) PublishMessage(ctx context.Context, messageName, correlationKey string, vars Variables) error {
	body := struct {
		MessageName      string    `json:"messageName"`
		BusinessKey      string    `json:"businessKey"`
		ProcessVariables Variables `json:"processVariables,omitempty"`
	}{MessageName: messageName, BusinessKey: correlationKey, ProcessVariables: vars}

	return c.post(ctx, "/message", body, nil)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("gateway client not configured")
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}
