package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const passwordQuery = "data.onego.password_strength.result"

// passwordPolicy scores the features computed by passwordFeatures. The password itself never
// reaches the policy.
const passwordPolicy = `package onego.password_strength

flags := [input.has_lower, input.has_upper, input.has_digit, input.has_symbol]

classes := count([f | some f in flags; f])

default length_points := 0

length_points := 1 if {
	input.length >= 8
	input.length < 12
}

length_points := 2 if input.length >= 12

default variety_points := 0

variety_points := 1 if classes == 3

variety_points := 2 if classes == 4

weak if input.common

weak if input.sequential

default score := 0

score := length_points + variety_points if {
	not weak
	input.length >= 8
}

score := min([length_points + variety_points, 1]) if {
	not weak
	input.length < 8
}

labels := ["very weak", "weak", "fair", "strong", "very strong"]

label := labels[score]

suggestions contains "Use at least 12 characters" if input.length < 12

suggestions contains "Add lowercase letters" if not input.has_lower

suggestions contains "Add uppercase letters" if not input.has_upper

suggestions contains "Add numbers" if not input.has_digit

suggestions contains "Add symbols" if not input.has_symbol

suggestions contains "Avoid common passwords" if input.common

suggestions contains "Avoid repeated or sequential characters" if input.sequential

result := {
	"score": score,
	"label": label,
	"suggestions": sort(suggestions),
}
`

var commonPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "passw0rd": {}, "123456": {}, "12345678": {},
	"123456789": {}, "1234567890": {}, "qwerty": {}, "qwerty123": {}, "111111": {},
	"abc123": {}, "letmein": {}, "iloveyou": {}, "admin": {}, "welcome": {},
	"monkey": {}, "dragon": {}, "football": {}, "sunshine": {}, "princess": {},
}

// Strength is the policy verdict for one password.
type Strength struct {
	Score       int      `json:"score"`
	Label       string   `json:"label"`
	Suggestions []string `json:"suggestions"`
}

// PasswordEvaluator scores passwords with an in-process OPA Rego policy.
type PasswordEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewPasswordEvaluator compiles the password policy.
func NewPasswordEvaluator(ctx context.Context) (*PasswordEvaluator, error) {
	compiler, err := ast.CompileModules(map[string]string{"password_strength.rego": passwordPolicy})
	if err != nil {
		return nil, fmt.Errorf("compile password policy: %w", err)
	}
	q, err := rego.New(
		rego.Query(passwordQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare password policy: %w", err)
	}
	return &PasswordEvaluator{query: q}, nil
}

// HealthCheck evaluates the policy against a fixed input.
func (e *PasswordEvaluator) HealthCheck(ctx context.Context) error {
	if e == nil {
		return ErrNotConfigured
	}
	_, err := e.Evaluate(ctx, "health-Check-1")
	return err
}

// Evaluate scores password from 0 (very weak) to 4 (very strong).
func (e *PasswordEvaluator) Evaluate(ctx context.Context, password string) (*Strength, error) {
	if e == nil {
		return nil, ErrNotConfigured
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(passwordFeatures(password)))
	if err != nil {
		return nil, fmt.Errorf("eval password policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, fmt.Errorf("password policy returned no result")
	}
	obj, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("password policy returned %T", rs[0].Expressions[0].Value)
	}
	out := &Strength{Suggestions: []string{}}
	switch v := obj["score"].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			out.Score = int(n)
		}
	case float64:
		out.Score = int(v)
	case int64:
		out.Score = int(v)
	}
	out.Label, _ = obj["label"].(string)
	if list, ok := obj["suggestions"].([]interface{}); ok {
		for _, s := range list {
			if str, ok := s.(string); ok {
				out.Suggestions = append(out.Suggestions, str)
			}
		}
	}
	return out, nil
}

func passwordFeatures(password string) map[string]interface{} {
	runes := []rune(password)
	var lower, upper, digit, symbol bool
	for _, r := range runes {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case !unicode.IsSpace(r):
			symbol = true
		}
	}
	_, common := commonPasswords[strings.ToLower(password)]
	return map[string]interface{}{
		"length":     len(runes),
		"has_lower":  lower,
		"has_upper":  upper,
		"has_digit":  digit,
		"has_symbol": symbol,
		"common":     common,
		"sequential": isSequential(runes),
	}
}

// isSequential reports whether runes are one repeated character or a strictly ascending or
// descending run such as "abcdef" or "987654".
func isSequential(runes []rune) bool {
	if len(runes) < 3 {
		return false
	}
	step := runes[1] - runes[0]
	if step < -1 || step > 1 {
		return false
	}
	for i := 2; i < len(runes); i++ {
		if runes[i]-runes[i-1] != step {
			return false
		}
	}
	return true
}
