// Package web serves the single-page completion UI. Rendering is driven by an
// explicit state machine so the blocking-call boundary and the terminal load
// failure are testable without a browser.
package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"text-completion-go/completion"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// UI-enforced parameter ranges and defaults.
const (
	MinMaxLength       = 50
	MaxMaxLength       = 1024
	DefaultMaxLength   = 512
	MinTemperature     = 0.1
	MaxTemperature     = 2.0
	DefaultTemperature = 0.7
)

// ExamplePrompts are the fixed prompts offered under the input box. Selecting
// one overwrites the prompt box without generating.
var ExamplePrompts = [5]string{
	"The future of artificial intelligence is",
	"Once upon a time in a distant galaxy,",
	"The benefits of renewable energy include",
	"In the year 2050, technology will",
	"The most important skill for future jobs is",
}

// State is the UI lifecycle state
type State int

const (
	// StateLoading: model load in progress, only the progress panel renders.
	StateLoading State = iota
	// StateReady: waiting for input.
	StateReady
	// StateGenerating: a synchronous completion call is in flight.
	StateGenerating
	// StateFailed: the model load failed; terminal, no retry besides a
	// process restart.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateGenerating:
		return "generating"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Completer is the slice of the completion service the UI needs
type Completer interface {
	Complete(ctx context.Context, prompt string, maxLength int, temperature float64) (completion.Result, error)
}

// ModelInfo is the static sidebar text about the loaded model
type ModelInfo struct {
	ModelID       string
	Device        string
	ContextWindow int
}

// Server renders the page and owns the UI state machine
type Server struct {
	templates *template.Template
	sessions  *SessionStore

	mu       sync.Mutex
	state    State
	progress []string
	loadErr  error
	svc      Completer
	info     ModelInfo
}

// NewServer creates a server in the Loading state
func NewServer(sessions *SessionStore) (*Server, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	return &Server{
		templates: tmpl,
		sessions:  sessions,
		state:     StateLoading,
	}, nil
}

// ReportProgress appends a load progress message. Usable as a model.StatusFunc.
func (s *Server) ReportProgress(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, msg)
	slog.Info("model load progress", "message", msg)
}

// SetReady moves the UI into the Ready state with a working service
func (s *Server) SetReady(svc Completer, info ModelInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateReady
	s.svc = svc
	s.info = info
}

// SetFailed moves the UI into the terminal Failed state
func (s *Server) SetFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateFailed
	s.loadErr = err
	slog.Error("model load failed", "error", err)
}

// State returns the current UI state
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Handler returns the HTTP handler for the UI
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/generate", s.handleGenerate)
	mux.HandleFunc("/example", s.handleExample)
	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	_, sess := s.sessions.FromRequest(w, r)
	s.render(w, sess)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id, sess := s.sessions.FromRequest(w, r)

	if r.ParseForm() != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	sess.Prompt = r.PostFormValue("prompt")
	sess.MaxLength = clampInt(parseIntDefault(r.PostFormValue("max_length"), DefaultMaxLength), MinMaxLength, MaxMaxLength)
	sess.Temperature = clampFloat(parseFloatDefault(r.PostFormValue("temperature"), DefaultTemperature), MinTemperature, MaxTemperature)
	sess.Warning = ""

	svc, state := s.service()
	if state != StateReady {
		// The previous result stays on the page; the warning explains why
		// nothing new was generated.
		switch state {
		case StateGenerating:
			sess.Warning = "A completion is already in progress. Try again when it finishes."
		case StateLoading:
			sess.Warning = "The model is still loading. Try again in a moment."
		}
		s.sessions.Put(id, sess)
		s.render(w, sess)
		return
	}

	sess.Result = nil
	sess.ErrorMsg = ""

	if strings.TrimSpace(sess.Prompt) == "" {
		sess.Warning = "Please enter some text before generating a completion."
		s.sessions.Put(id, sess)
		s.render(w, sess)
		return
	}

	// The call blocks this request until generation finishes; no
	// cancellation beyond the client hanging up.
	s.setState(StateGenerating)
	res, err := svc.Complete(r.Context(), sess.Prompt, sess.MaxLength, sess.Temperature)
	s.setState(StateReady)

	if err != nil {
		sess.ErrorMsg = err.Error()
	} else {
		sess.Result = &res
	}

	s.sessions.Put(id, sess)
	s.render(w, sess)
}

func (s *Server) handleExample(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id, sess := s.sessions.FromRequest(w, r)

	idx, err := strconv.Atoi(r.PostFormValue("index"))
	if err != nil || idx < 0 || idx >= len(ExamplePrompts) {
		http.Error(w, "unknown example", http.StatusBadRequest)
		return
	}

	// Overwrite the prompt box only; no generation happens here.
	sess.Prompt = ExamplePrompts[idx]
	sess.Result = nil
	sess.ErrorMsg = ""
	sess.Warning = ""
	s.sessions.Put(id, sess)

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) service() (Completer, State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.svc, s.state
}

func (s *Server) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

type pageView struct {
	State       string
	Loading     bool
	Failed      bool
	Ready       bool
	Progress    []string
	LoadError   string
	Info        ModelInfo
	Prompt      string
	MaxLength   int
	Temperature float64
	Examples    []string
	Result      *completion.Result
	ErrorMsg    string
	Warning     string
}

func (s *Server) render(w http.ResponseWriter, sess *Session) {
	s.mu.Lock()
	view := pageView{
		State:       s.state.String(),
		Loading:     s.state == StateLoading,
		Failed:      s.state == StateFailed,
		Ready:       s.state == StateReady || s.state == StateGenerating,
		Progress:    append([]string(nil), s.progress...),
		Info:        s.info,
		Prompt:      sess.Prompt,
		MaxLength:   sess.MaxLength,
		Temperature: sess.Temperature,
		Examples:    ExamplePrompts[:],
		Result:      sess.Result,
		ErrorMsg:    sess.ErrorMsg,
		Warning:     sess.Warning,
	}
	if s.loadErr != nil {
		view.LoadError = s.loadErr.Error()
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "page.tmpl", view); err != nil {
		slog.Error("failed to render page", "error", err)
	}
}

func parseIntDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func parseFloatDefault(s string, def float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

func clampInt(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func clampFloat(f, lo, hi float64) float64 {
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}
