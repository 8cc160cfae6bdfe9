package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mohammad-safakhou/lessonplanner/config"
	"github.com/mohammad-safakhou/lessonplanner/provider"
	"github.com/mohammad-safakhou/lessonplanner/session/inmemory"
)

func testConfig() *config.Config {
	cfg := &config.Config{
		LLM: config.LLMConfig{
			Provider:  "openai",
			Providers: map[string]config.LLMProvider{"openai": {Type: "openai", APIKey: "sk-test"}},
		},
		Retrieval: config.RetrievalConfig{
			Sources:     map[string]config.SourceConfig{"curriculum_guideline": {Path: "testdata/none.csv"}},
			RefreshCron: "0 3 * * *",
		},
		Search:   config.SearchConfig{Provider: "serper", SerperAPIKey: "key", FetchTop: 1}.Normalize(),
		Workflow: config.WorkflowConfig{}.Normalize(),
		Wizard:   config.WizardConfig{}.Normalize(),
	}
	return cfg
}

func TestBuildWiresMemoryBackend(t *testing.T) {
	a, err := Build(context.Background(), testConfig(), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Close()

	if _, ok := a.Sessions.(*inmemory.Store); !ok {
		t.Fatalf("expected in-memory sessions, got %T", a.Sessions)
	}
	if a.Orchestrator == nil || a.Wizard == nil || a.Refresher == nil {
		t.Fatalf("expected orchestrator, wizard and refresher to be wired")
	}
	if a.Provider.Name() != string(provider.OpenAI) {
		t.Fatalf("unexpected provider %s", a.Provider.Name())
	}

	rec := httptest.NewRecorder()
	a.HTTP().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", rec.Code)
	}
}

func TestWarmReportsMissingSources(t *testing.T) {
	a, err := Build(context.Background(), testConfig(), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Close()
	if err := a.Warm(context.Background()); err == nil {
		t.Fatalf("expected warm to fail for a missing file")
	}
}

func TestBuildRejectsBadBackends(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Backend = "redis"
	if _, err := Build(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error for redis without host")
	}

	cfg = testConfig()
	cfg.LLM.Providers["openai"] = config.LLMProvider{Type: "claude"}
	if _, err := Build(context.Background(), cfg, nil); !errors.Is(err, provider.ErrUnsupportedProvider) {
		t.Fatalf("expected unsupported provider, got %v", err)
	}
}
