package repository

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/avolkhin/studentaid-system/internal/model"
)

// Repository tests run against a real database: set TEST_DATABASE_URI to a
// PostgreSQL DSN to enable them. Each test seeds its own student, so tests
// do not interfere with each other and the database needs no cleanup.

var seedSeq atomic.Int64

func testRepository(t *testing.T) *PostgresRepository {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URI")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URI is not set")
	}

	repo, err := NewPostgresRepository(dsn)
	if err != nil {
		t.Fatalf("connect to test database: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

type testEnv struct {
	t    *testing.T
	repo *PostgresRepository
	ctx  context.Context

	studentID     int64
	programYearID int64
	programID     int64
	locationID    int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	e := &testEnv{t: t, repo: testRepository(t), ctx: context.Background()}
	unique := fmt.Sprintf("%d%03d", time.Now().UnixNano(), seedSeq.Add(1))

	err := e.repo.pool.QueryRow(e.ctx,
		`INSERT INTO students (sin, given_name, last_name, birth_date)
		 VALUES ($1, 'Test', 'Student', '2000-01-01')
		 RETURNING id`,
		unique[len(unique)-9:],
	).Scan(&e.studentID)
	if err != nil {
		t.Fatalf("seed student: %v", err)
	}

	err = e.repo.pool.QueryRow(e.ctx,
		`INSERT INTO program_years (name, start_date, end_date)
		 VALUES ('PY '||$1, '2026-08-01', '2027-07-31')
		 RETURNING id`,
		unique,
	).Scan(&e.programYearID)
	if err != nil {
		t.Fatalf("seed program year: %v", err)
	}

	var institutionID int64
	err = e.repo.pool.QueryRow(e.ctx,
		`INSERT INTO institutions (operating_name, institution_type)
		 VALUES ('Test Institution', 'BC Public')
		 RETURNING id`,
	).Scan(&institutionID)
	if err != nil {
		t.Fatalf("seed institution: %v", err)
	}

	err = e.repo.pool.QueryRow(e.ctx,
		`INSERT INTO institution_locations (institution_id, name, province)
		 VALUES ($1, 'Test Campus', 'BC')
		 RETURNING id`,
		institutionID,
	).Scan(&e.locationID)
	if err != nil {
		t.Fatalf("seed location: %v", err)
	}

	err = e.repo.pool.QueryRow(e.ctx,
		`INSERT INTO education_programs (institution_id, name, credential_type, completion_years)
		 VALUES ($1, 'Test Program', 'undergraduateDegree', '4')
		 RETURNING id`,
		institutionID,
	).Scan(&e.programID)
	if err != nil {
		t.Fatalf("seed program: %v", err)
	}

	return e
}

func (e *testEnv) createApplication(status model.ApplicationStatus) int64 {
	e.t.Helper()

	var id int64
	err := e.repo.pool.QueryRow(e.ctx,
		`INSERT INTO applications (application_number, student_id, program_year_id, application_status)
		 VALUES ('APP'||nextval('disbursement_document_number_seq'), $1, $2, $3)
		 RETURNING id`,
		e.studentID, e.programYearID, string(status),
	).Scan(&id)
	if err != nil {
		e.t.Fatalf("seed application: %v", err)
	}
	return id
}

func (e *testEnv) createOffering(studyStart, studyEnd string) int64 {
	e.t.Helper()

	var id int64
	err := e.repo.pool.QueryRow(e.ctx,
		`INSERT INTO education_program_offerings
		 (program_id, location_id, name, study_start_date, study_end_date, offering_intensity)
		 VALUES ($1, $2, 'Test Offering', $3, $4, $5)
		 RETURNING id`,
		e.programID, e.locationID, studyStart, studyEnd, string(model.OfferingIntensityFullTime),
	).Scan(&id)
	if err != nil {
		e.t.Fatalf("seed offering: %v", err)
	}
	return id
}

func (e *testEnv) createAssessment(applicationID, offeringID int64) int64 {
	e.t.Helper()

	var id int64
	err := e.repo.pool.QueryRow(e.ctx,
		`INSERT INTO assessments (application_id, trigger_type, assessment_status, offering_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		applicationID, string(model.TriggerOriginalAssessment), string(model.AssessmentStatusPending), offeringID,
	).Scan(&id)
	if err != nil {
		e.t.Fatalf("seed assessment: %v", err)
	}
	return id
}
