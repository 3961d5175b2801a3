package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(ClientConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 2 * time.Second,
	})
	return server, client
}

func TestComplete_ReturnsFirstChoice(t *testing.T) {
	var captured chatRequest

	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected path /chat/completions, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Expected bearer auth header, got %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": `{"suggestion":"s","reasoning":"r"}`}},
			},
		})
	})

	content, err := client.Complete(context.Background(), "what should I focus on?")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if content != `{"suggestion":"s","reasoning":"r"}` {
		t.Errorf("Unexpected content: %s", content)
	}

	if captured.Model != defaultModel {
		t.Errorf("Expected model %s, got %s", defaultModel, captured.Model)
	}
	if captured.MaxTokens != 300 {
		t.Errorf("Expected max_tokens 300, got %d", captured.MaxTokens)
	}
	if captured.Temperature != 0.7 {
		t.Errorf("Expected temperature 0.7, got %f", captured.Temperature)
	}
	if len(captured.Messages) != 1 || captured.Messages[0].Role != "user" {
		t.Errorf("Expected a single user message, got %+v", captured.Messages)
	}
}

func TestComplete_NonSuccessStatus(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "rate limited", "type": "requests"},
		})
	})

	_, err := client.Complete(context.Background(), "prompt")
	if err == nil {
		t.Fatal("Expected error for non-200 status")
	}
}

func TestComplete_EmptyChoices(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	})

	_, err := client.Complete(context.Background(), "prompt")
	if err == nil {
		t.Fatal("Expected error for empty choices")
	}
}

func TestComplete_MissingAPIKey(t *testing.T) {
	client := NewClient(ClientConfig{})

	_, err := client.Complete(context.Background(), "prompt")
	if err == nil {
		t.Fatal("Expected error when API key is unset")
	}
}

func TestComplete_ContextCancellation(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Complete(ctx, "prompt")
	if err == nil {
		t.Fatal("Expected error when context deadline passes")
	}
}

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(ClientConfig{APIKey: "k"})

	if client.baseURL != defaultBaseURL {
		t.Errorf("Expected base URL %s, got %s", defaultBaseURL, client.baseURL)
	}
	if client.model != defaultModel {
		t.Errorf("Expected model %s, got %s", defaultModel, client.model)
	}
	if client.maxTokens != 300 {
		t.Errorf("Expected max tokens 300, got %d", client.maxTokens)
	}
	if client.temperature != 0.7 {
		t.Errorf("Expected temperature 0.7, got %f", client.temperature)
	}
}
