package llm

import "testing"

func TestNewProviderRequiresAPIKey(t *testing.T) {
	_, err := NewProvider(Config{Model: "gpt-4o-mini"})
	if err == nil {
		t.Fatal("expected error when api key is empty")
	}
}

func TestNewProviderDefaultsBaseURL(t *testing.T) {
	p, err := NewProvider(Config{Model: "gpt-4o-mini", APIKey: "sk-test"})
	if err != nil {
		t.Fatal(err)
	}
	impl, ok := p.(*openAICompatProvider)
	if !ok {
		t.Fatalf("got %T, want *openAICompatProvider", p)
	}
	if impl.base.cfg.BaseURL != "https://api.openai.com" {
		t.Errorf("base url = %q, want default", impl.base.cfg.BaseURL)
	}
}
