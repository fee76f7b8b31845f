// Package rulespolicy implements the parallel-rules reference policy: a
// configurable set of named rules, each evaluated by a judge LLM call run
// concurrently with the others, whose violations are aggregated into a
// single blocking message.
package rulespolicy

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/luthien/gateway/pkg/judgeclient"
	"github.com/luthien/gateway/pkg/observability"
	"github.com/luthien/gateway/pkg/policy"
	"github.com/luthien/gateway/pkg/stream"
)

// ResponseType selects which content kinds a Rule examines.
type ResponseType string

const (
	ResponseTypeText     ResponseType = "text"
	ResponseTypeToolCall ResponseType = "tool_call"
)

// Rule is one independently judged policy rule.
type Rule struct {
	Name                 string
	RuleText             string
	ResponseTypes        []ResponseType
	ProbabilityThreshold float64

	// StaticMessage, if set, replaces the judge's explanation in the
	// aggregated violation message for this rule.
	StaticMessage string
}

func (r Rule) appliesTo(kind stream.BlockKind) bool {
	for _, rt := range r.ResponseTypes {
		if rt == ResponseTypeToolCall && kind == stream.KindToolUse {
			return true
		}
		if rt == ResponseTypeText && kind == stream.KindText {
			return true
		}
	}
	return false
}

// Config configures a ParallelRulesPolicy.
type Config struct {
	Temperature          float64
	MaxTokens            int
	ProbabilityThreshold float64
	Rules                []Rule
}

// DefaultConfig returns the reference defaults: temperature 0, 256 max
// tokens, 0.5 default per-rule probability threshold.
func DefaultConfig(rules []Rule) Config {
	return Config{
		Temperature:          0.0,
		MaxTokens:            256,
		ProbabilityThreshold: 0.5,
		Rules:                rules,
	}
}

// ParallelRulesPolicy evaluates every configured rule against each
// completed content block concurrently and blocks if any rule fires.
type ParallelRulesPolicy struct {
	policy.BasePolicy

	judge  *judgeclient.Client
	config Config
}

// New builds a ParallelRulesPolicy. Panics if config has no rules, since
// a rules policy with nothing to check is a configuration error the
// admin should fix before the policy is ever bound to a transaction.
func New(judge *judgeclient.Client, config Config) *ParallelRulesPolicy {
	if len(config.Rules) == 0 {
		panic("rulespolicy: at least one rule is required")
	}
	return &ParallelRulesPolicy{judge: judge, config: config}
}

// Name implements policy.Policy.
func (p *ParallelRulesPolicy) Name() string { return "parallel_rules" }

type violation struct {
	rule    Rule
	message string
}

// OnBlockComplete runs every applicable rule for block concurrently and
// aggregates violations into one blocking message. A judge failure on
// any individual rule is treated fail-secure: that rule counts as
// violated rather than being silently skipped.
func (p *ParallelRulesPolicy) OnBlockComplete(ctx context.Context, pc *policy.Context, block stream.Block) (*policy.Block, error) {
	var applicable []Rule
	for _, r := range p.config.Rules {
		if r.appliesTo(block.Kind) {
			applicable = append(applicable, r)
		}
	}
	if len(applicable) == 0 {
		return nil, nil
	}

	pc.Keepalive()

	content := blockContent(block)

	var mu sync.Mutex
	var violations []violation
	var wg sync.WaitGroup

	for _, rule := range applicable {
		wg.Add(1)
		go func(rule Rule) {
			defer wg.Done()

			threshold := rule.ProbabilityThreshold
			if threshold == 0 {
				threshold = p.config.ProbabilityThreshold
			}

			systemPrompt := fmt.Sprintf(
				"You are evaluating whether content violates this rule: %q. "+
					`Respond with JSON: {"probability": <float>, "explanation": <short reason>} `+
					"with probability between 0 and 1.", rule.RuleText)

			verdict, err := p.judge.Ask(ctx, systemPrompt, content, p.config.Temperature, p.config.MaxTokens)

			if err != nil {
				pc.Emit(observability.EventRuleViolated, p.Name(), map[string]interface{}{
					"rule": rule.Name, "error": err.Error(),
				})
				mu.Lock()
				violations = append(violations, violation{rule: rule, message: fmt.Sprintf("%s: judge evaluation failed", rule.Name)})
				mu.Unlock()
				return
			}
			if verdict.Probability >= threshold {
				msg := verdict.Explanation
				if rule.StaticMessage != "" {
					msg = rule.StaticMessage
				}
				pc.Emit(observability.EventRuleViolated, p.Name(), map[string]interface{}{
					"rule": rule.Name, "probability": verdict.Probability, "threshold": threshold, "explanation": verdict.Explanation,
				})
				mu.Lock()
				violations = append(violations, violation{rule: rule, message: fmt.Sprintf("%s: %s", rule.Name, msg)})
				mu.Unlock()
			}
		}(rule)
	}
	wg.Wait()

	if len(violations) == 0 {
		return nil, nil
	}

	messages := make([]string, len(violations))
	for i, v := range violations {
		messages[i] = v.message
	}
	return &policy.Block{Reason: strings.Join(messages, "; ")}, nil
}

func blockContent(block stream.Block) string {
	switch block.Kind {
	case stream.KindText:
		return block.Text
	case stream.KindToolUse:
		return fmt.Sprintf("Tool: %s\nArguments: %s", block.ToolName, block.Arguments)
	default:
		return ""
	}
}
