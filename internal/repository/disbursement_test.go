package repository

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/avolkhin/studentaid-system/internal/model"
	"github.com/avolkhin/studentaid-system/internal/reconcile"
)

func loanSchedule(amountCents int64) []reconcile.ScheduleInput {
	return []reconcile.ScheduleInput{{
		DisbursementDate:     time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
		NegotiatedExpiryDate: time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC),
		Values: []reconcile.AwardInput{{
			Code:        "CSLF",
			Category:    model.AwardCategoryCanadaLoan,
			AmountCents: amountCents,
		}},
	}}
}

func scheduleStatuses(t *testing.T, e *testEnv, assessmentID int64) []string {
	t.Helper()

	rows, err := e.repo.pool.Query(e.ctx,
		`SELECT disbursement_status FROM disbursement_schedules WHERE assessment_id = $1 ORDER BY id`,
		assessmentID,
	)
	if err != nil {
		t.Fatalf("select schedule statuses: %v", err)
	}
	defer rows.Close()

	var statuses []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			t.Fatalf("scan schedule status: %v", err)
		}
		statuses = append(statuses, s)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows error: %v", err)
	}
	return statuses
}

func TestCreateDisbursementSchedules_SupersedesPending(t *testing.T) {
	e := newTestEnv(t)

	appID := e.createApplication(model.ApplicationStatusAssessment)
	offeringID := e.createOffering("2026-09-01", "2026-12-20")

	// Original assessment produces a schedule that is never sent.
	a1 := e.createAssessment(appID, offeringID)
	if res, err := e.repo.AdmitAssessment(e.ctx, a1); err != nil || !res.Admitted {
		t.Fatalf("admit a1: res %+v, err %v", res, err)
	}
	if err := e.repo.CreateDisbursementSchedules(e.ctx, a1, loanSchedule(100000)); err != nil {
		t.Fatalf("create schedules for a1: %v", err)
	}
	if _, err := e.repo.CompleteAssessment(e.ctx, a1, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("complete a1: %v", err)
	}

	// Reassessment of the same application replaces the payable set.
	a2 := e.createAssessment(appID, offeringID)
	if res, err := e.repo.AdmitAssessment(e.ctx, a2); err != nil || !res.Admitted {
		t.Fatalf("admit a2: res %+v, err %v", res, err)
	}
	if err := e.repo.CreateDisbursementSchedules(e.ctx, a2, loanSchedule(80000)); err != nil {
		t.Fatalf("create schedules for a2: %v", err)
	}

	// The superseded assessment's pending schedule must no longer be
	// payable; only the new set stays pending.
	for _, status := range scheduleStatuses(t, e, a1) {
		if status != string(model.DisbursementStatusCancelled) {
			t.Fatalf("superseded schedule status = %s, want Cancelled", status)
		}
	}
	for _, status := range scheduleStatuses(t, e, a2) {
		if status != string(model.DisbursementStatusPending) {
			t.Fatalf("new schedule status = %s, want Pending", status)
		}
	}

	// The never-sent schedule contributes nothing to the balance and
	// produces no overaward.
	balance, err := e.repo.GetOverawardBalance(e.ctx, e.studentID)
	if err != nil {
		t.Fatalf("overaward balance: %v", err)
	}
	if len(balance) != 0 {
		t.Fatalf("balance = %v, want empty", balance)
	}
}

func TestCreateDisbursementSchedules_Redelivery(t *testing.T) {
	e := newTestEnv(t)

	a1 := e.createAssessment(
		e.createApplication(model.ApplicationStatusAssessment),
		e.createOffering("2026-09-01", "2026-12-20"))
	if res, err := e.repo.AdmitAssessment(e.ctx, a1); err != nil || !res.Admitted {
		t.Fatalf("admit a1: res %+v, err %v", res, err)
	}

	if err := e.repo.CreateDisbursementSchedules(e.ctx, a1, loanSchedule(100000)); err != nil {
		t.Fatalf("create schedules: %v", err)
	}

	err := e.repo.CreateDisbursementSchedules(e.ctx, a1, loanSchedule(100000))
	if !errors.Is(err, ErrDisbursementAlreadyCreated) {
		t.Fatalf("redelivered create: err = %v, want ErrDisbursementAlreadyCreated", err)
	}

	if got := len(scheduleStatuses(t, e, a1)); got != 1 {
		t.Fatalf("schedules = %d, want 1", got)
	}
}
