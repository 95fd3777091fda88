package repository

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/avolkhin/studentaid-system/internal/model"
)

func TestAdmitAssessment_ChronologicalOrder(t *testing.T) {
	e := newTestEnv(t)

	// Three applications in one program year, study periods in
	// chronological order: d1 < d2 < d3.
	d1 := e.createAssessment(
		e.createApplication(model.ApplicationStatusAssessment),
		e.createOffering("2026-09-01", "2026-12-20"))
	d2 := e.createAssessment(
		e.createApplication(model.ApplicationStatusAssessment),
		e.createOffering("2027-01-05", "2027-04-30"))
	d3 := e.createAssessment(
		e.createApplication(model.ApplicationStatusAssessment),
		e.createOffering("2027-05-03", "2027-07-30"))

	// Out-of-order request: d2 is not first in the sequence.
	res, err := e.repo.AdmitAssessment(e.ctx, d2)
	if err != nil {
		t.Fatalf("admit d2: %v", err)
	}
	if res.Admitted {
		t.Fatalf("d2 admitted before d1")
	}

	res, err = e.repo.AdmitAssessment(e.ctx, d1)
	if err != nil {
		t.Fatalf("admit d1: %v", err)
	}
	if !res.Admitted {
		t.Fatalf("d1 not admitted, result %+v", res)
	}

	// While d1 holds the slot d2 is denied and told who blocks it.
	res, err = e.repo.AdmitAssessment(e.ctx, d2)
	if err != nil {
		t.Fatalf("admit d2 while d1 in progress: %v", err)
	}
	if res.Admitted {
		t.Fatalf("d2 admitted while d1 holds the slot")
	}
	if res.BlockingAssessmentID == nil || *res.BlockingAssessmentID != d1 {
		t.Fatalf("blocker = %v, want %d", res.BlockingAssessmentID, d1)
	}

	// Redelivered admission for the slot holder is still an admit.
	res, err = e.repo.AdmitAssessment(e.ctx, d1)
	if err != nil {
		t.Fatalf("re-admit d1: %v", err)
	}
	if !res.Admitted {
		t.Fatalf("re-admit of slot holder denied, result %+v", res)
	}

	alreadyCompleted, err := e.repo.CompleteAssessment(e.ctx, d1, json.RawMessage(`{"total":1}`))
	if err != nil {
		t.Fatalf("complete d1: %v", err)
	}
	if alreadyCompleted {
		t.Fatalf("first completion of d1 reported as already completed")
	}

	// d1 released the slot: d2 is next, d3 still has to wait.
	res, err = e.repo.AdmitAssessment(e.ctx, d2)
	if err != nil {
		t.Fatalf("admit d2 after d1 released: %v", err)
	}
	if !res.Admitted {
		t.Fatalf("d2 not admitted after d1 released, result %+v", res)
	}

	res, err = e.repo.AdmitAssessment(e.ctx, d3)
	if err != nil {
		t.Fatalf("admit d3: %v", err)
	}
	if res.Admitted {
		t.Fatalf("d3 admitted while d2 holds the slot")
	}
	if res.BlockingAssessmentID == nil || *res.BlockingAssessmentID != d2 {
		t.Fatalf("blocker = %v, want %d", res.BlockingAssessmentID, d2)
	}
}

func TestAdmitAssessment_CompletedIsAdmit(t *testing.T) {
	e := newTestEnv(t)

	d1 := e.createAssessment(
		e.createApplication(model.ApplicationStatusAssessment),
		e.createOffering("2026-09-01", "2026-12-20"))

	if res, err := e.repo.AdmitAssessment(e.ctx, d1); err != nil || !res.Admitted {
		t.Fatalf("admit d1: res %+v, err %v", res, err)
	}
	if _, err := e.repo.CompleteAssessment(e.ctx, d1, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("complete d1: %v", err)
	}

	// Redelivered admission for a completed assessment succeeds without
	// re-claiming the slot.
	res, err := e.repo.AdmitAssessment(e.ctx, d1)
	if err != nil {
		t.Fatalf("re-admit completed d1: %v", err)
	}
	if !res.Admitted {
		t.Fatalf("completed assessment denied, result %+v", res)
	}
}

func TestAdmitAssessment_CancelledApplication(t *testing.T) {
	e := newTestEnv(t)

	d1 := e.createAssessment(
		e.createApplication(model.ApplicationStatusCancelled),
		e.createOffering("2026-09-01", "2026-12-20"))

	_, err := e.repo.AdmitAssessment(e.ctx, d1)
	if !errors.Is(err, ErrAssessmentInvalidState) {
		t.Fatalf("admit for cancelled application: err = %v, want ErrAssessmentInvalidState", err)
	}
}

func TestNextAssessmentInSequence_AfterCompletion(t *testing.T) {
	e := newTestEnv(t)

	d1 := e.createAssessment(
		e.createApplication(model.ApplicationStatusAssessment),
		e.createOffering("2026-09-01", "2026-12-20"))
	d2 := e.createAssessment(
		e.createApplication(model.ApplicationStatusAssessment),
		e.createOffering("2027-01-05", "2027-04-30"))

	if res, err := e.repo.AdmitAssessment(e.ctx, d1); err != nil || !res.Admitted {
		t.Fatalf("admit d1: res %+v, err %v", res, err)
	}
	if _, err := e.repo.CompleteAssessment(e.ctx, d1, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("complete d1: %v", err)
	}

	next, err := e.repo.NextAssessmentInSequence(e.ctx, d1)
	if err != nil {
		t.Fatalf("next in sequence: %v", err)
	}
	if next == nil || *next != d2 {
		t.Fatalf("next = %v, want %d", next, d2)
	}

	if res, err := e.repo.AdmitAssessment(e.ctx, d2); err != nil || !res.Admitted {
		t.Fatalf("admit d2: res %+v, err %v", res, err)
	}
	if _, err := e.repo.CompleteAssessment(e.ctx, d2, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("complete d2: %v", err)
	}

	next, err = e.repo.NextAssessmentInSequence(e.ctx, d2)
	if err != nil {
		t.Fatalf("next in sequence after d2: %v", err)
	}
	if next != nil {
		t.Fatalf("next = %d, want empty queue", *next)
	}
}
