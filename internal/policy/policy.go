// Package policy provides CEL-based escalation policies over detection results.
package policy

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensurvey/kestrel/internal/domain"
)

// Config defines an escalation policy. The expression is a CEL program over
// detection variables that must return bool. A matching policy escalates the
// detection to the alert topic; policies never change the score itself.
type Config struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
	Action     string `json:"action"`
	Enabled    bool   `json:"enabled"`
}

// Match is one policy that fired for a detection.
type Match struct {
	Name   string `json:"name"`
	Action string `json:"action"`
}

type compiledPolicy struct {
	config  Config
	program cel.Program
}

// Engine compiles policies once and evaluates them against detections.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	policies map[string]*compiledPolicy
}

// NewEngine creates a policy engine with the detection variable environment.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("total_score", cel.DoubleType),
		cel.Variable("severity", cel.StringType),
		cel.Variable("gps_score", cel.DoubleType),
		cel.Variable("speed_score", cel.DoubleType),
		cel.Variable("straightline_score", cel.DoubleType),
		cel.Variable("duplicate_score", cel.DoubleType),
		cel.Variable("timing_score", cel.DoubleType),
		cel.Variable("enumerator_id", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		policies: make(map[string]*compiledPolicy),
	}, nil
}

// LoadPolicy compiles and loads a single policy.
func (e *Engine) LoadPolicy(cfg Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compile(cfg)
	if err != nil {
		return err
	}

	e.policies[cfg.Name] = compiled
	return nil
}

// LoadPolicies compiles and loads all enabled policies.
func (e *Engine) LoadPolicies(configs []Config) error {
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		if err := e.LoadPolicy(cfg); err != nil {
			return err
		}
	}
	return nil
}

// EvaluateAll runs every loaded policy against a detection and returns the
// matches. Evaluation errors skip the policy rather than failing the batch.
func (e *Engine) EvaluateAll(detection *domain.FraudDetection) []Match {
	e.mu.RLock()
	policies := make([]*compiledPolicy, 0, len(e.policies))
	for _, p := range e.policies {
		policies = append(policies, p)
	}
	e.mu.RUnlock()

	if len(policies) == 0 {
		return nil
	}

	activation := map[string]any{
		"total_score":        detection.TotalScore,
		"severity":           string(detection.Severity),
		"gps_score":          detection.Scores.GPS,
		"speed_score":        detection.Scores.Speed,
		"straightline_score": detection.Scores.Straightline,
		"duplicate_score":    detection.Scores.Duplicate,
		"timing_score":       detection.Scores.Timing,
		"enumerator_id":      detection.EnumeratorID,
	}

	var matches []Match
	for _, p := range policies {
		out, _, err := p.program.Eval(activation)
		if err != nil {
			continue
		}
		if matched, ok := out.(types.Bool); ok && bool(matched) {
			matches = append(matches, Match{
				Name:   p.config.Name,
				Action: p.config.Action,
			})
		}
	}

	return matches
}

// PolicyCount returns the number of loaded policies.
func (e *Engine) PolicyCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.policies)
}

// ReloadPolicies replaces all loaded policies atomically.
func (e *Engine) ReloadPolicies(configs []Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*compiledPolicy)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compile(cfg)
		if err != nil {
			return err
		}
		next[cfg.Name] = compiled
	}

	e.policies = next
	return nil
}

func (e *Engine) compile(cfg Config) (*compiledPolicy, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("policy name is required")
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile policy %s: %w", cfg.Name, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("policy %s: expression must return bool, got %s", cfg.Name, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for policy %s: %w", cfg.Name, err)
	}

	return &compiledPolicy{config: cfg, program: program}, nil
}

// DefaultPolicies returns the built-in escalation policies. High severity
// triggers supervisor notification; critical quarantines the submission
// pending review.
func DefaultPolicies() []Config {
	return []Config{
		{
			Name:       "notify_high_severity",
			Expression: `severity == "high" || severity == "critical"`,
			Action:     "notify",
			Enabled:    true,
		},
		{
			Name:       "quarantine_critical",
			Expression: `severity == "critical"`,
			Action:     "quarantine",
			Enabled:    true,
		},
	}
}
