package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"text-completion-go/completion"
)

// fakeCompleter records calls and returns a scripted result
type fakeCompleter struct {
	result completion.Result
	err    error
	calls  int
	lastP  string
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string, maxLength int, temperature float64) (completion.Result, error) {
	f.calls++
	f.lastP = prompt
	if f.err != nil {
		return completion.Result{}, f.err
	}
	return f.result, nil
}

func newTestServer(t *testing.T) (*Server, *SessionStore) {
	t.Helper()
	store := NewSessionStore(time.Minute)
	t.Cleanup(store.Stop)

	srv, err := NewServer(store)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return srv, store
}

func readyServer(t *testing.T, svc Completer) *Server {
	t.Helper()
	srv, _ := newTestServer(t)
	srv.SetReady(svc, ModelInfo{ModelID: "test-model", Device: "CPU", ContextWindow: 4096})
	return srv
}

// doRequest plays a request against the handler, carrying the session cookie
// from a previous response if given.
func doRequest(h http.Handler, method, target string, form url.Values, cookies []*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIndexWhileLoading(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.ReportProgress("Downloading tokenizer...")

	rec := doRequest(srv.Handler(), http.MethodGet, "/", nil, nil)
	body := rec.Body.String()

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(body, "Loading model") {
		t.Errorf("Loading page should show the loading panel")
	}
	if !strings.Contains(body, "Downloading tokenizer...") {
		t.Errorf("Loading page should show progress messages")
	}
	if strings.Contains(body, "generate-form") {
		t.Errorf("Loading page must not render the prompt form")
	}
}

func TestIndexAfterLoadFailure(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.SetFailed(fmt.Errorf("simulated network failure"))

	rec := doRequest(srv.Handler(), http.MethodGet, "/", nil, nil)
	body := rec.Body.String()

	if !strings.Contains(body, "Failed to load the model") {
		t.Errorf("Failure page should show the blocking error panel")
	}
	if !strings.Contains(body, "simulated network failure") {
		t.Errorf("Failure page should show the load error")
	}
	if !strings.Contains(body, "Troubleshooting") {
		t.Errorf("Failure page should show troubleshooting hints")
	}
	if strings.Contains(body, "generate-form") || strings.Contains(body, "Output") {
		t.Errorf("Failure page must not render the prompt/output columns")
	}

	if srv.State() != StateFailed {
		t.Errorf("Expected state failed, got %v", srv.State())
	}
}

func TestIndexReady(t *testing.T) {
	srv := readyServer(t, &fakeCompleter{})

	rec := doRequest(srv.Handler(), http.MethodGet, "/", nil, nil)
	body := rec.Body.String()

	if !strings.Contains(body, "generate-form") {
		t.Errorf("Ready page should render the prompt form")
	}
	if !strings.Contains(body, "test-model") {
		t.Errorf("Ready page should show the model info")
	}
	for _, p := range ExamplePrompts {
		if !strings.Contains(body, p) {
			t.Errorf("Ready page should list example prompt %q", p)
		}
	}
}

func TestGenerateRendersResult(t *testing.T) {
	svc := &fakeCompleter{result: completion.Result{
		Completion: "bright and collaborative.",
		FullText:   "The future of artificial intelligence is bright and collaborative.",
		Stats:      completion.Stats{InputWords: 7, GeneratedWords: 3, TotalWords: 10},
	}}
	srv := readyServer(t, svc)

	form := url.Values{
		"prompt":      {"The future of artificial intelligence is"},
		"max_length":  {"512"},
		"temperature": {"0.7"},
	}
	rec := doRequest(srv.Handler(), http.MethodPost, "/generate", form, nil)
	body := rec.Body.String()

	if svc.calls != 1 {
		t.Fatalf("Expected one service call, got %d", svc.calls)
	}
	if !strings.Contains(body, "bright and collaborative.") {
		t.Errorf("Result page should show the completion")
	}
	if !strings.Contains(body, "The future of artificial intelligence is bright and collaborative.") {
		t.Errorf("Result page should show the full text")
	}
	for _, n := range []string{">7<", ">3<", ">10<"} {
		if !strings.Contains(body, n) {
			t.Errorf("Result page should show metric %s", n)
		}
	}
	if srv.State() != StateReady {
		t.Errorf("Server should return to ready after generating, got %v", srv.State())
	}
}

func TestGenerateWhitespacePromptWarns(t *testing.T) {
	svc := &fakeCompleter{}
	srv := readyServer(t, svc)

	form := url.Values{"prompt": {"   "}}
	rec := doRequest(srv.Handler(), http.MethodPost, "/generate", form, nil)
	body := rec.Body.String()

	if svc.calls != 0 {
		t.Errorf("Completion service must not be called for a whitespace prompt")
	}
	if !strings.Contains(body, "Please enter some text") {
		t.Errorf("Expected a warning message, got page without one")
	}
}

func TestGenerateFailureRenderedAsError(t *testing.T) {
	svc := &fakeCompleter{err: fmt.Errorf("error generating completion: backend down")}
	srv := readyServer(t, svc)

	form := url.Values{"prompt": {"a prompt"}}
	rec := doRequest(srv.Handler(), http.MethodPost, "/generate", form, nil)
	body := rec.Body.String()

	if !strings.Contains(body, "backend down") {
		t.Errorf("Generation failure should be shown to the user")
	}
	if !strings.Contains(body, `class="error"`) {
		t.Errorf("Generation failure should render in the error style, not as a completion")
	}
}

func TestGenerateClampsParameters(t *testing.T) {
	var gotLen int
	var gotTemp float64
	svc := &fakeCompleterFunc{fn: func(prompt string, maxLength int, temperature float64) (completion.Result, error) {
		gotLen, gotTemp = maxLength, temperature
		return completion.Result{}, nil
	}}
	srv := readyServer(t, svc)

	form := url.Values{
		"prompt":      {"hello"},
		"max_length":  {"9999"},
		"temperature": {"-3"},
	}
	doRequest(srv.Handler(), http.MethodPost, "/generate", form, nil)

	if gotLen != MaxMaxLength {
		t.Errorf("Expected max length clamped to %d, got %d", MaxMaxLength, gotLen)
	}
	if gotTemp != MinTemperature {
		t.Errorf("Expected temperature clamped to %v, got %v", MinTemperature, gotTemp)
	}
}

type fakeCompleterFunc struct {
	fn func(prompt string, maxLength int, temperature float64) (completion.Result, error)
}

func (f *fakeCompleterFunc) Complete(ctx context.Context, prompt string, maxLength int, temperature float64) (completion.Result, error) {
	return f.fn(prompt, maxLength, temperature)
}

func TestExampleOverwritesPromptWithoutGenerating(t *testing.T) {
	svc := &fakeCompleter{}
	srv := readyServer(t, svc)
	h := srv.Handler()

	form := url.Values{"index": {"1"}}
	rec := doRequest(h, http.MethodPost, "/example", form, nil)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("Expected redirect after example selection, got %d", rec.Code)
	}
	if svc.calls != 0 {
		t.Errorf("Example selection must not trigger generation")
	}

	// Follow up with the session cookie: the prompt box holds the literal
	// example text.
	cookies := rec.Result().Cookies()
	rec = doRequest(h, http.MethodGet, "/", nil, cookies)
	body, _ := io.ReadAll(rec.Body)

	if !strings.Contains(string(body), ">"+ExamplePrompts[1]+"</textarea>") {
		t.Errorf("Prompt box should contain exactly the example prompt")
	}
}

func TestExampleRejectsBadIndex(t *testing.T) {
	srv := readyServer(t, &fakeCompleter{})

	form := url.Values{"index": {"99"}}
	rec := doRequest(srv.Handler(), http.MethodPost, "/example", form, nil)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for out-of-range example index, got %d", rec.Code)
	}
}

func TestGenerateWhileLoadingDoesNotCallService(t *testing.T) {
	srv, _ := newTestServer(t)
	svc := &fakeCompleter{}
	// State stays Loading; the service is never installed.

	form := url.Values{"prompt": {"hello"}}
	rec := doRequest(srv.Handler(), http.MethodPost, "/generate", form, nil)

	if svc.calls != 0 {
		t.Errorf("Service must not be called before the model is ready")
	}
	if !strings.Contains(rec.Body.String(), "still loading") {
		t.Errorf("Rejected generate should explain that the model is loading")
	}
}

func TestGenerateWhileBusyWarnsAndKeepsResult(t *testing.T) {
	svc := &fakeCompleter{result: completion.Result{
		Completion: "first answer",
		FullText:   "p first answer",
	}}
	srv := readyServer(t, svc)
	h := srv.Handler()

	form := url.Values{"prompt": {"p"}}
	rec := doRequest(h, http.MethodPost, "/generate", form, nil)
	cookies := rec.Result().Cookies()

	srv.setState(StateGenerating)
	rec = doRequest(h, http.MethodPost, "/generate", form, cookies)
	body := rec.Body.String()

	if svc.calls != 1 {
		t.Errorf("Busy server must not start a second generation, got %d calls", svc.calls)
	}
	if !strings.Contains(body, "already in progress") {
		t.Errorf("Rejected generate should warn that one is already running")
	}
	if !strings.Contains(body, "first answer") {
		t.Errorf("Previous result should survive a rejected generate")
	}
}

func TestExampleDuringSlowGenerate(t *testing.T) {
	// An example click while a generation blocks its request is a normal
	// interaction; both handlers touch the same session cookie and must not
	// interfere. The store hands out snapshots, so the last Put wins.
	started := make(chan struct{})
	release := make(chan struct{})
	svc := &fakeCompleterFunc{fn: func(prompt string, maxLength int, temperature float64) (completion.Result, error) {
		close(started)
		<-release
		return completion.Result{Completion: "slow answer", FullText: prompt + " slow answer"}, nil
	}}
	srv := readyServer(t, svc)
	h := srv.Handler()

	rec := doRequest(h, http.MethodGet, "/", nil, nil)
	cookies := rec.Result().Cookies()

	done := make(chan struct{})
	go func() {
		defer close(done)
		form := url.Values{"prompt": {"a slow prompt"}}
		doRequest(h, http.MethodPost, "/generate", form, cookies)
	}()

	<-started
	form := url.Values{"index": {"2"}}
	if rec := doRequest(h, http.MethodPost, "/example", form, cookies); rec.Code != http.StatusSeeOther {
		t.Fatalf("Expected redirect from example selection, got %d", rec.Code)
	}
	close(release)
	<-done

	rec = doRequest(h, http.MethodGet, "/", nil, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 after concurrent requests, got %d", rec.Code)
	}
	if srv.State() != StateReady {
		t.Errorf("Server should be ready again, got %v", srv.State())
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateLoading:    "loading",
		StateReady:      "ready",
		StateGenerating: "generating",
		StateFailed:     "failed",
	}
	for state, want := range cases {
		if state.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", state, state.String(), want)
		}
	}
}
