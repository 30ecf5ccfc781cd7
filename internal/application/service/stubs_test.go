package service

import (
	"context"
	"encoding/json"
	"regexp"
	"sync"
	"time"

	"github.com/garyjia/expense-validator/internal/domain/entity"
)

type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

// stubLLM answers each Complete call through respond. call starts at 1.
type stubLLM struct {
	mu      sync.Mutex
	calls   int
	systems []string
	users   []string
	respond func(call int, system, user string) (string, error)
}

func (s *stubLLM) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.systems = append(s.systems, systemPrompt)
	s.users = append(s.users, userPrompt)
	s.mu.Unlock()

	return s.respond(call, systemPrompt, userPrompt)
}

func (s *stubLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func fixedLLM(content string) *stubLLM {
	return &stubLLM{respond: func(int, string, string) (string, error) {
		return content, nil
	}}
}

var descriptionPattern = regexp.MustCompile(`"description": "([^"]*)"`)

// echoResults answers a validation prompt with one result per expense found
// in it, using the expense description as the reason.
func echoResults(status entity.ValidationStatus) func(int, string, string) (string, error) {
	return func(_ int, _ string, user string) (string, error) {
		matches := descriptionPattern.FindAllStringSubmatch(user, -1)
		results := make([]map[string]interface{}, 0, len(matches))
		for _, m := range matches {
			results = append(results, map[string]interface{}{
				"expense": map[string]interface{}{"description": m[1]},
				"status":  string(status),
				"reason":  m[1],
			})
		}
		b, err := json.Marshal(map[string]interface{}{"results": results})
		return string(b), err
	}
}

type stageObservation struct {
	stage string
	err   error
}

type recordingObserver struct {
	mu      sync.Mutex
	stages  []stageObservation
	results int
}

func (o *recordingObserver) ObserveStage(stage string, elapsed time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, stageObservation{stage: stage, err: err})
}

func (o *recordingObserver) ObserveResults(results []entity.ValidationResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results += len(results)
}

func (o *recordingObserver) stageNames() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	names := make([]string, 0, len(o.stages))
	for _, s := range o.stages {
		names = append(names, s.stage)
	}
	return names
}
