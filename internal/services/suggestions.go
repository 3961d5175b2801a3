package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"task-planner/backend/internal/models"
)

const (
	allDoneSuggestion = "Great job! All your tasks are complete."
	allDoneReasoning  = "Consider planning new tasks or take a well-deserved break."

	overdueReasoning  = "Overdue tasks should be prioritized to prevent further delays."
	highPrioReasoning = "High-priority tasks have the most impact on your goals."
	momentumReasoning = "Beginning with your next scheduled task maintains good momentum."
)

// CompletionClient is the boundary to the external text-completion
// service. Implemented by ai.Client; tests supply their own.
type CompletionClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type SuggestionService interface {
	GetSuggestion(ctx context.Context, tasks []models.Task) models.Suggestion
}

type SuggestionServiceImpl struct {
	client  CompletionClient
	timeout time.Duration
	now     func() time.Time
}

// NewSuggestionService builds the engine. A nil client disables the
// remote call entirely; every non-empty request then resolves through
// the fallback rules.
func NewSuggestionService(client CompletionClient, timeout time.Duration) *SuggestionServiceImpl {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &SuggestionServiceImpl{
		client:  client,
		timeout: timeout,
		now:     time.Now,
	}
}

// GetSuggestion never fails: a model response that arrives and parses
// wins, anything else degrades to the deterministic local heuristic.
// Incomplete tasks are considered in the order given by the caller,
// which is the due-date-ordered snapshot in normal operation.
func (s *SuggestionServiceImpl) GetSuggestion(ctx context.Context, tasks []models.Task) models.Suggestion {
	incomplete := incompleteTasks(tasks)
	if len(incomplete) == 0 {
		return models.Suggestion{
			Suggestion: allDoneSuggestion,
			Reasoning:  allDoneReasoning,
			Source:     models.SuggestionSourceFallback,
		}
	}

	if s.client != nil {
		if result, ok := s.askModel(ctx, incomplete); ok {
			return result
		}
	}

	return fallbackSuggestion(incomplete, s.now())
}

func (s *SuggestionServiceImpl) askModel(ctx context.Context, incomplete []models.Task) (models.Suggestion, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	content, err := s.client.Complete(ctx, buildPrompt(incomplete))
	if err != nil || content == "" {
		return models.Suggestion{}, false
	}

	var parsed struct {
		Suggestion string `json:"suggestion"`
		Reasoning  string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return models.Suggestion{}, false
	}
	if parsed.Suggestion == "" || parsed.Reasoning == "" {
		return models.Suggestion{}, false
	}

	return models.Suggestion{
		Suggestion: parsed.Suggestion,
		Reasoning:  parsed.Reasoning,
		Source:     models.SuggestionSourceModel,
	}, true
}

func buildPrompt(incomplete []models.Task) string {
	type taskSummary struct {
		Title    string `json:"title"`
		Priority string `json:"priority"`
		DueDate  string `json:"dueDate"`
	}

	summaries := make([]taskSummary, 0, len(incomplete))
	for _, task := range incomplete {
		summaries = append(summaries, taskSummary{
			Title:    task.Title,
			Priority: string(task.Priority),
			DueDate:  task.DueDate.UTC().Format("2006-01-02"),
		})
	}

	data, _ := json.MarshalIndent(summaries, "", "  ")

	var b strings.Builder
	b.WriteString("Based on these tasks, what should I focus on today? ")
	b.WriteString("Please provide a specific recommendation and brief reasoning.\n\n")
	b.WriteString("Tasks:\n")
	b.Write(data)
	b.WriteString("\n\nPlease respond in this exact JSON format:\n")
	b.WriteString("{\n")
	b.WriteString("  \"suggestion\": \"Your specific recommendation here\",\n")
	b.WriteString("  \"reasoning\": \"Brief explanation of why this is the best focus\"\n")
	b.WriteString("}")
	return b.String()
}

// fallbackSuggestion applies the offline rules in fixed order: overdue
// beats high priority beats next scheduled. First match in input order
// wins within each rule.
func fallbackSuggestion(incomplete []models.Task, now time.Time) models.Suggestion {
	for _, task := range incomplete {
		if task.DueDate.Before(now) {
			return models.Suggestion{
				Suggestion: fmt.Sprintf("Focus on completing your overdue task: %q", task.Title),
				Reasoning:  overdueReasoning,
				Source:     models.SuggestionSourceFallback,
			}
		}
	}

	for _, task := range incomplete {
		if task.Priority == models.PriorityHigh {
			return models.Suggestion{
				Suggestion: fmt.Sprintf("Focus on your high-priority task: %q", task.Title),
				Reasoning:  highPrioReasoning,
				Source:     models.SuggestionSourceFallback,
			}
		}
	}

	if len(incomplete) > 0 {
		return models.Suggestion{
			Suggestion: fmt.Sprintf("Start with: %q", incomplete[0].Title),
			Reasoning:  momentumReasoning,
			Source:     models.SuggestionSourceFallback,
		}
	}

	return models.Suggestion{
		Suggestion: allDoneSuggestion,
		Reasoning:  allDoneReasoning,
		Source:     models.SuggestionSourceFallback,
	}
}

func incompleteTasks(tasks []models.Task) []models.Task {
	incomplete := make([]models.Task, 0, len(tasks))
	for _, task := range tasks {
		if !task.Completed {
			incomplete = append(incomplete, task)
		}
	}
	return incomplete
}
