package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid"
)

func TestPriorityValid(t *testing.T) {
	valid := []Priority{PriorityLow, PriorityMedium, PriorityHigh}
	for _, p := range valid {
		if !p.Valid() {
			t.Errorf("Expected %q to be valid", p)
		}
	}

	invalid := []Priority{"", "urgent", "HIGH", "Low"}
	for _, p := range invalid {
		if p.Valid() {
			t.Errorf("Expected %q to be invalid", p)
		}
	}
}

func TestTaskJSONShape(t *testing.T) {
	due := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	task := Task{
		ID:       uuid.Must(uuid.NewV4()),
		UserID:   uuid.Must(uuid.NewV4()),
		Title:    "File taxes",
		DueDate:  due,
		Priority: PriorityHigh,
	}

	data, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	body := string(data)
	for _, field := range []string{`"id"`, `"user_id"`, `"title"`, `"due_date"`, `"priority"`, `"completed"`} {
		if !strings.Contains(body, field) {
			t.Errorf("Expected JSON to contain %s: %s", field, body)
		}
	}

	var decoded Task
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !decoded.DueDate.Equal(due) {
		t.Errorf("Expected due date %v to survive round trip, got %v", due, decoded.DueDate)
	}
}

func TestTaskPatchPartialDecode(t *testing.T) {
	var patch TaskPatch
	if err := json.Unmarshal([]byte(`{"completed": false}`), &patch); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if patch.Completed == nil {
		t.Fatal("Expected completed to be set")
	}
	if *patch.Completed {
		t.Error("Expected explicit false to be preserved")
	}
	if patch.Title != nil || patch.Description != nil || patch.DueDate != nil || patch.Priority != nil {
		t.Error("Expected absent fields to stay nil")
	}
}

func TestTaskPatchIsZero(t *testing.T) {
	if !(TaskPatch{}).IsZero() {
		t.Error("Expected empty patch to be zero")
	}

	title := "New title"
	if (TaskPatch{Title: &title}).IsZero() {
		t.Error("Expected patch with title to not be zero")
	}
}

func TestUserJSONHidesCredentials(t *testing.T) {
	user := User{
		ID:       uuid.Must(uuid.NewV4()),
		Email:    "ada@example.com",
		Password: "$2a$10$hash",
		GoogleID: "google-subject-123",
	}

	data, err := json.Marshal(user)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	body := string(data)
	if strings.Contains(body, "$2a$10$hash") {
		t.Error("Expected password hash to be omitted from JSON")
	}
	if strings.Contains(body, "google-subject-123") {
		t.Error("Expected Google subject to be omitted from JSON")
	}
	if !strings.Contains(body, "ada@example.com") {
		t.Error("Expected email to be present in JSON")
	}
}

func TestSuggestionJSONShape(t *testing.T) {
	s := Suggestion{
		Suggestion: "Focus on completing your overdue task: \"Pay rent\"",
		Reasoning:  "This task is past its due date and needs immediate attention.",
		Source:     SuggestionSourceFallback,
	}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded map[string]string
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded["suggestion"] == "" || decoded["reasoning"] == "" {
		t.Errorf("Expected suggestion and reasoning keys, got %v", decoded)
	}
	if decoded["source"] != "fallback" {
		t.Errorf("Expected source fallback, got %q", decoded["source"])
	}
}
