package oracle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/hazyhaar/formfill/connectivity"
)

type fakeOracle struct {
	match  string
	answer string
	err    error
	delay  time.Duration
	calls  atomic.Int32
	last   QuestionRequest
}

func (f *fakeOracle) MatchDropdown(ctx context.Context, req DropdownRequest) (DropdownResult, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return DropdownResult{}, ctx.Err()
		}
	}
	if f.err != nil {
		return DropdownResult{}, f.err
	}
	return DropdownResult{Match: f.match, Confidence: "high"}, nil
}

func (f *fakeOracle) AnswerQuestion(_ context.Context, req QuestionRequest) (AnswerResult, error) {
	f.calls.Add(1)
	f.last = req
	if f.err != nil {
		return AnswerResult{}, f.err
	}
	return AnswerResult{Answer: f.answer, Confidence: "medium"}, nil
}

func TestFixMatch(t *testing.T) {
	opts := []string{"Yes", "No", "Prefer not to say"}
	cases := map[string]string{
		"Yes":               "Yes",
		"yes":               "Yes",
		"PREFER NOT TO SAY": "Prefer not to say",
		"NONE":              "",
		"":                  "",
		"Maybe":             "",
	}
	for in, want := range cases {
		if got := FixMatch(in, opts); got != want {
			t.Errorf("FixMatch(%q) = %q, want %q", in, got, want)
		}
	}
}

func newServer(t *testing.T, o Oracle, token *string) string {
	t.Helper()
	h := NewHandler(o, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != nil {
			*token = r.Header.Get("Authorization")
		}
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestHTTP_RESTMode(t *testing.T) {
	var auth string
	fake := &fakeOracle{match: "united states", answer: "I enjoy building tools."}
	url := newServer(t, fake, &auth)

	o, err := NewHTTP(HTTPConfig{
		BaseURL: url,
		Token:   "secret",
		Factory: connectivity.HTTPFactory(connectivity.WithAllowPrivate(true)),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer o.Close()
	ctx := context.Background()

	res, err := o.MatchDropdown(ctx, DropdownRequest{Question: "Country", Options: []string{"Canada", "United States"}, UserValue: "USA"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Match != "United States" {
		t.Fatalf("match = %q", res.Match)
	}
	if auth != "Bearer secret" {
		t.Fatalf("authorization = %q", auth)
	}

	ans, err := o.AnswerQuestion(ctx, QuestionRequest{Question: "Why us?", FieldType: "textarea"})
	if err != nil {
		t.Fatal(err)
	}
	if ans.Answer != "I enjoy building tools." || fake.last.FieldType != "textarea" {
		t.Fatalf("answer = %+v, request = %+v", ans, fake.last)
	}

	// The server rejects empty options with a 400.
	_, err = o.MatchDropdown(ctx, DropdownRequest{Question: "Country"})
	var status *connectivity.StatusError
	if !errors.As(err, &status) || status.Code != http.StatusBadRequest {
		t.Fatalf("err = %v", err)
	}
}

func TestHTTP_ActionMode(t *testing.T) {
	fake := &fakeOracle{match: "No"}
	url := newServer(t, fake, nil)
	o, err := NewHTTP(HTTPConfig{
		BaseURL: url + "/",
		Mode:    ModeAction,
		Factory: connectivity.HTTPFactory(connectivity.WithAllowPrivate(true)),
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := o.MatchDropdown(context.Background(), DropdownRequest{Question: "Sponsorship?", Options: []string{"Yes", "No"}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Match != "No" {
		t.Fatalf("match = %q", res.Match)
	}

	resp, err := http.Post(url, "application/json", strings.NewReader(`{"action":"generate-response"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestNewHTTP_Errors(t *testing.T) {
	if _, err := NewHTTP(HTTPConfig{}); err == nil {
		t.Fatal("empty base url accepted")
	}
	if _, err := NewHTTP(HTTPConfig{BaseURL: "https://oracle.example.com", Mode: "grpc"}); err == nil {
		t.Fatal("unknown mode accepted")
	}
	if _, err := NewHTTP(HTTPConfig{BaseURL: "http://127.0.0.1:9"}); err == nil {
		t.Fatal("loopback endpoint accepted without opt-in")
	}
}

type fakeGenerator struct {
	text   string
	model  string
	config *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, _ []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model, f.config = model, config
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText(f.text, genai.RoleModel)}},
	}, nil
}

func TestGemini(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{text: `{"match":"bachelor of science","confidence":"high","reasoning":"BS"}`}
	g := NewGeminiWith(gen, "")

	res, err := g.MatchDropdown(ctx, DropdownRequest{Question: "Degree", Options: []string{"Bachelor of Arts", "Bachelor of Science"}, UserValue: "BS"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Match != "Bachelor of Science" || res.Confidence != "high" {
		t.Fatalf("res = %+v", res)
	}
	if gen.model != DefaultGeminiModel || gen.config.ResponseSchema == nil || gen.config.ResponseMIMEType != "application/json" {
		t.Fatalf("model = %q config = %+v", gen.model, gen.config)
	}

	gen.text = `{"match":"NONE","confidence":"low"}`
	res, _ = g.MatchDropdown(ctx, DropdownRequest{Options: []string{"Yes"}})
	if res.Match != "" {
		t.Fatalf("NONE must map to no match, got %q", res.Match)
	}

	gen.text = "  I led the migration of our billing system.  "
	ans, err := g.AnswerQuestion(ctx, QuestionRequest{Question: "Biggest project?", FieldType: "textarea", MaxLength: 20})
	if err != nil {
		t.Fatal(err)
	}
	if ans.Answer != "I led the migration" || ans.Confidence != "medium" {
		t.Fatalf("answer = %+v", ans)
	}
	if gen.config.MaxOutputTokens != 500 {
		t.Fatalf("max tokens = %d", gen.config.MaxOutputTokens)
	}
}

func TestGuarded_Timeout(t *testing.T) {
	fake := &fakeOracle{match: "Yes", delay: time.Second}
	g := NewGuarded(fake, GuardConfig{DropdownTimeout: 20 * time.Millisecond})
	start := time.Now()
	res, err := g.MatchDropdown(context.Background(), DropdownRequest{Options: []string{"Yes"}})
	if err != nil || res.Match != "" {
		t.Fatalf("res = %+v, err = %v", res, err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("timeout not enforced")
	}
}

func TestGuarded_BreakerAndFixUp(t *testing.T) {
	ctx := context.Background()
	fake := &fakeOracle{match: "Blue"}
	g := NewGuarded(fake, GuardConfig{Breaker: connectivity.NewCircuitBreaker(connectivity.WithBreakerThreshold(2))})

	res, _ := g.MatchDropdown(ctx, DropdownRequest{Options: []string{"Yes", "No"}})
	if res.Match != "" {
		t.Fatalf("match outside options kept: %q", res.Match)
	}
	if res, _ := g.MatchDropdown(ctx, DropdownRequest{}); res.Match != "" || fake.calls.Load() != 1 {
		t.Fatal("empty options must not reach the oracle")
	}

	fake.err = errors.New("503")
	for i := 0; i < 2; i++ {
		if ans, err := g.AnswerQuestion(ctx, QuestionRequest{Question: "Why?"}); err != nil || ans.Answer != "" {
			t.Fatalf("ans = %+v err = %v", ans, err)
		}
	}
	if !g.Unavailable() {
		t.Fatal("breaker should be open")
	}
	before := fake.calls.Load()
	g.AnswerQuestion(ctx, QuestionRequest{Question: "Why?"})
	if fake.calls.Load() != before {
		t.Fatal("open breaker must not call the oracle")
	}
}
