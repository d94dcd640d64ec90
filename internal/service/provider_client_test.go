package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func TestTemperatureForCreativity(t *testing.T) {
	t.Parallel()

	cases := map[string]float64{
		"conservative": 0.3,
		"balanced":     0.5,
		"creative":     0.8,
		"":             0.7,
		"whatever":     0.7,
	}
	for input, expect := range cases {
		if got := temperatureForCreativity(input); got != expect {
			t.Errorf("temperatureForCreativity(%q) = %v, want %v", input, got, expect)
		}
	}
}

func TestMaxTokensForWords(t *testing.T) {
	t.Parallel()

	if got := maxTokensForWords(0); got != maxCompletionTokens {
		t.Errorf("zero words should use cap, got %d", got)
	}
	if got := maxTokensForWords(50); got != minCompletionTokens {
		t.Errorf("tiny target should use floor, got %d", got)
	}
	if got := maxTokensForWords(500); got != 1500 {
		t.Errorf("500 words should map to 1500 tokens, got %d", got)
	}
	if got := maxTokensForWords(10000); got != maxCompletionTokens {
		t.Errorf("huge target should be capped, got %d", got)
	}
}

func TestNewProviderClientWithRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := newProviderClientWith(Credentials{Provider: ProviderOpenAI}, http.DefaultClient)
	if !errors.Is(err, ErrCredentialsMissing) {
		t.Fatalf("expected ErrCredentialsMissing, got %v", err)
	}
}

func TestNewProviderClientWithRejectsUnknownProvider(t *testing.T) {
	t.Parallel()

	_, err := newProviderClientWith(Credentials{Provider: "azure", APIKey: "key"}, http.DefaultClient)
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestOpenAIClientComplete(t *testing.T) {
	t.Parallel()

	httpClient := &fakeHTTPClient{do: func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", req.URL.Path)
		}
		if got := req.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", got)
		}
		return jsonResponse(http.StatusOK, `{
			"choices":[{"message":{"role":"assistant","content":"生成的正文"}}],
			"usage":{"prompt_tokens":12,"completion_tokens":34}
		}`), nil
	}}

	client := newOpenAIClient("sk-test", "", httpClient)
	result, err := client.Complete(context.Background(), CompletionRequest{UserPrompt: "写一段话"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if result.Content != "生成的正文" {
		t.Errorf("unexpected content %q", result.Content)
	}
	if result.PromptTokens != 12 || result.CompletionTokens != 34 {
		t.Errorf("unexpected usage %+v", result)
	}
}

func TestOpenAIClientCompleteAPIError(t *testing.T) {
	t.Parallel()

	httpClient := &fakeHTTPClient{do: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnauthorized, `{"error":{"message":"invalid api key"}}`), nil
	}}

	client := newOpenAIClient("sk-bad", "", httpClient)
	_, err := client.Complete(context.Background(), CompletionRequest{UserPrompt: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}

	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %T", err)
	}
	if provErr.Provider != ProviderOpenAI {
		t.Errorf("unexpected provider %q", provErr.Provider)
	}
	if provErr.Message != "invalid api key" {
		t.Errorf("unexpected message %q", provErr.Message)
	}
}

func TestAnthropicClientCompleteJoinsContentBlocks(t *testing.T) {
	t.Parallel()

	httpClient := &fakeHTTPClient{do: func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", req.URL.Path)
		}
		if got := req.Header.Get("x-api-key"); got != "ak-test" {
			t.Errorf("unexpected api key header %q", got)
		}
		return jsonResponse(http.StatusOK, `{
			"content":[{"type":"text","text":"第一段"},{"type":"text","text":"第二段"}],
			"usage":{"input_tokens":5,"output_tokens":9}
		}`), nil
	}}

	client := newAnthropicClient("ak-test", "", httpClient)
	result, err := client.Complete(context.Background(), CompletionRequest{UserPrompt: "hi"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if result.Content != "第一段第二段" {
		t.Errorf("unexpected content %q", result.Content)
	}
}

func TestGoogleClientCompleteEmptyCandidates(t *testing.T) {
	t.Parallel()

	httpClient := &fakeHTTPClient{do: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"candidates":[]}`), nil
	}}

	client := newGoogleClient("gk-test", "", httpClient)
	_, err := client.Complete(context.Background(), CompletionRequest{UserPrompt: "hi"})
	if err == nil {
		t.Fatal("expected error for empty candidates")
	}
}
