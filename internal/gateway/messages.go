package gateway

import (
	"context"
	"strconv"
)

// MessageAssessmentReady — имя сообщения, которым секвенсор сигнализирует
// следующей заблокированной оценке повторить запрос на допуск.
const MessageAssessmentReady = "assessment-ready-for-calculation"

// PublishAssessmentReady публикует сигнал готовности оценки к расчёту.
func (c *Client) PublishAssessmentReady(ctx context.Context, assessmentID int64) error {
	return c.PublishMessage(ctx,
		MessageAssessmentReady,
		strconv.FormatInt(assessmentID, 10),
		Variables{"assessmentId": Int64(assessmentID)},
	)
}
