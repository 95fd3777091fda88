package projection

import (
	"testing"
)

type testSnapshot struct {
	ApplicationID int64             `json:"applicationId"`
	Offering      *testOffering     `json:"offering,omitempty"`
	Parents       []map[string]any  `json:"parents,omitempty"`
	Users         map[string]any    `json:"supportingUsers,omitempty"`
}

type testOffering struct {
	StudyStartDate string `json:"studyStartDate"`
	TuitionCents   int64  `json:"actualTuitionCosts"`
}

func snapshot() testSnapshot {
	return testSnapshot{
		ApplicationID: 42,
		Offering: &testOffering{
			StudyStartDate: "2026-09-01",
			TuitionCents:   500000,
		},
		Parents: []map[string]any{
			{"fullName": "First Parent", "sin": "046454286"},
			{"fullName": "Second Parent"},
		},
		Users: map[string]any{
			"Parent1": map[string]any{"fullName": "First Parent"},
		},
	}
}

func TestProject_DottedPaths(t *testing.T) {
	got, err := Project(snapshot(), map[string]string{
		"applicationId":  "applicationId",
		"studyStartDate": "offering.studyStartDate",
	})
	if err != nil {
		t.Fatalf("Project error: %v", err)
	}

	if got["applicationId"] != float64(42) {
		t.Fatalf("applicationId = %v, want 42", got["applicationId"])
	}
	if got["studyStartDate"] != "2026-09-01" {
		t.Fatalf("studyStartDate = %v, want 2026-09-01", got["studyStartDate"])
	}
}

func TestProject_IndexedPaths(t *testing.T) {
	got, err := Project(snapshot(), map[string]string{
		"firstParentName": "parents[0].fullName",
		"keyedParentName": "supportingUsers.Parent1.fullName",
	})
	if err != nil {
		t.Fatalf("Project error: %v", err)
	}

	if got["firstParentName"] != "First Parent" {
		t.Fatalf("firstParentName = %v", got["firstParentName"])
	}
	if got["keyedParentName"] != "First Parent" {
		t.Fatalf("keyedParentName = %v", got["keyedParentName"])
	}
}

func TestProject_AbsentLeavesOmitted(t *testing.T) {
	s := snapshot()
	s.Offering = nil

	got, err := Project(s, map[string]string{
		"studyStartDate": "offering.studyStartDate",
		"thirdParent":    "parents[2].fullName",
		"unknownField":   "parents[0].birthDate",
	})
	if err != nil {
		t.Fatalf("Project error: %v", err)
	}

	if len(got) != 0 {
		t.Fatalf("absent leaves must be omitted, got %v", got)
	}
}

func TestProject_OnlyDeclaredLeavesReturned(t *testing.T) {
	got, err := Project(snapshot(), map[string]string{
		"firstParentName": "parents[0].fullName",
	})
	if err != nil {
		t.Fatalf("Project error: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("only declared leaves may be returned, got %v", got)
	}
	if _, leaked := got["sin"]; leaked {
		t.Fatalf("undeclared field leaked: %v", got)
	}
}

func TestProject_InvalidPaths(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"empty path", ""},
		{"empty segment", "offering..studyStartDate"},
		{"unbalanced brackets", "parents[0.fullName"},
		{"negative index", "parents[-1].fullName"},
		{"garbage after index", "parents[0]x.fullName"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Project(snapshot(), map[string]string{"out": tt.path})
			if err == nil {
				t.Fatalf("expected error for path %q", tt.path)
			}
		})
	}
}
