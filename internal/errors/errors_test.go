package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestCrewErrorFormat(t *testing.T) {
	tests := []struct {
		name     string
		err      *CrewError
		wantErr  string
		wantUser string
	}{
		{
			name:     "what only",
			err:      &CrewError{What: "something broke"},
			wantErr:  "something broke",
			wantUser: "Error: something broke",
		},
		{
			name:     "what and why",
			err:      &CrewError{What: "something broke", Why: "bad input"},
			wantErr:  "something broke: bad input",
			wantUser: "Error: something broke\n\nWhy: bad input",
		},
		{
			name: "full error",
			err: &CrewError{
				What: "something broke",
				Why:  "bad input",
				Fix:  "try again",
			},
			wantErr:  "something broke: bad input",
			wantUser: "Error: something broke\n\nWhy: bad input\n\nFix: try again",
		},
		{
			name: "with cause",
			err: &CrewError{
				What:  "something broke",
				Cause: errors.New("underlying error"),
			},
			wantErr:  "something broke: underlying error",
			wantUser: "Error: something broke",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantErr {
				t.Errorf("Error() = %q, want %q", got, tt.wantErr)
			}
			if got := tt.err.UserMessage(); got != tt.wantUser {
				t.Errorf("UserMessage() = %q, want %q", got, tt.wantUser)
			}
		})
	}
}

func TestCrewErrorJSON(t *testing.T) {
	err := &CrewError{
		Code:  CodeEntityNotFound,
		What:  "task TASK-001 not found",
		Why:   "No task document with this ID exists",
		Cause: errors.New("file not found"),
	}

	data, marshalErr := json.Marshal(err)
	if marshalErr != nil {
		t.Fatalf("MarshalJSON failed: %v", marshalErr)
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if result["code"] != string(CodeEntityNotFound) {
		t.Errorf("code = %v, want %v", result["code"], CodeEntityNotFound)
	}
	if result["cause"] != "file not found" {
		t.Errorf("cause = %v, want %v", result["cause"], "file not found")
	}
}

func TestErrorIsMatchesByCode(t *testing.T) {
	err := ErrInvalidTransition("TASK-001", "completed", "pending")
	wrapped := fmt.Errorf("transition failed: %w", err)

	if !errors.Is(wrapped, &CrewError{Code: CodeInvalidTransition}) {
		t.Error("errors.Is should match by code through wrapping")
	}
	if errors.Is(wrapped, &CrewError{Code: CodeLockConflict}) {
		t.Error("errors.Is should not match a different code")
	}
}

func TestConstructorsNameTheOffendingDetail(t *testing.T) {
	tr := ErrInvalidTransition("TASK-007", "completed", "in_progress")
	if tr.Code != CodeInvalidTransition {
		t.Errorf("Code = %v, want %v", tr.Code, CodeInvalidTransition)
	}
	if want := "invalid transition for TASK-007: completed -> in_progress"; tr.What != want {
		t.Errorf("What = %q, want %q", tr.What, want)
	}

	lc := ErrLockConflict("TASK-002", []string{"a.ts", "b.ts"})
	if lc.Why != "Paths held by other tasks: a.ts, b.ts" {
		t.Errorf("Why = %q", lc.Why)
	}

	cy := ErrCycleDetected("TASK-003", []string{"TASK-003", "TASK-004", "TASK-003"})
	if cy.Why != "Cycle path: TASK-003 -> TASK-004 -> TASK-003" {
		t.Errorf("Why = %q", cy.Why)
	}
}

func TestCategoryHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeEntityNotFound, 404},
		{CodeInvalidTransition, 400},
		{CodeLockConflict, 409},
		{CodeNotReady, 409},
		{CodeCycleDetected, 400},
		{CodeCorruptDocument, 500},
		{Code("UNKNOWN"), 500},
	}
	for _, tt := range tests {
		err := &CrewError{Code: tt.code}
		if got := err.HTTPStatus(); got != tt.want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestAsCrewError(t *testing.T) {
	base := ErrEntityNotFound("task", "TASK-001")
	wrapped := fmt.Errorf("load: %w", base)

	got := AsCrewError(wrapped)
	if got == nil {
		t.Fatal("AsCrewError returned nil for wrapped CrewError")
	}
	if got.Code != CodeEntityNotFound {
		t.Errorf("Code = %v, want %v", got.Code, CodeEntityNotFound)
	}

	if AsCrewError(errors.New("plain")) != nil {
		t.Error("AsCrewError should return nil for non-CrewError")
	}
}
