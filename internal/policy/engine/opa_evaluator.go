package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"

	devicedomain "election-voting/auth/internal/device/domain"
)

const bindingQuery = "data.election.device_binding"

// DefaultRegoPolicy enforces both halves of the binding.
const DefaultRegoPolicy = `package election.device_binding

default enforce_ip := true
default enforce_user_agent := true
`

// OPAEvaluator evaluates the device-binding policy with an in-process OPA Rego engine.
// The policy must define boolean rules enforce_ip and enforce_user_agent in package
// election.device_binding. Input is:
//
//	{"issued": {"ip", "user_agent"}, "presented": {"ip", "user_agent"},
//	 "same_ip": bool, "same_user_agent": bool}
type OPAEvaluator struct {
	query  rego.PreparedEvalQuery
	logger *zap.Logger
}

// NewOPAEvaluator compiles module (DefaultRegoPolicy when empty).
func NewOPAEvaluator(ctx context.Context, module string, logger *zap.Logger) (*OPAEvaluator, error) {
	if module == "" {
		module = DefaultRegoPolicy
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pq, err := rego.New(
		rego.Query(bindingQuery),
		rego.Module("device_binding.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy: compile binding policy: %w", err)
	}
	return &OPAEvaluator{query: pq, logger: logger}, nil
}

// LoadOPAEvaluator reads the policy from path, or uses DefaultRegoPolicy when path is empty.
func LoadOPAEvaluator(ctx context.Context, path string, logger *zap.Logger) (*OPAEvaluator, error) {
	if path == "" {
		return NewOPAEvaluator(ctx, "", logger)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read %s: %w", path, err)
	}
	return NewOPAEvaluator(ctx, string(b), logger)
}

// Evaluate implements BindingPolicy. Missing or non-boolean rules count as enforced.
func (e *OPAEvaluator) Evaluate(ctx context.Context, issued, presented devicedomain.Binding) Decision {
	out, err := e.eval(ctx, issued, presented)
	if err != nil {
		e.logger.Warn("policy: binding evaluation failed, enforcing strict binding", zap.Error(err))
		return StrictDecision
	}
	return out
}

func (e *OPAEvaluator) eval(ctx context.Context, issued, presented devicedomain.Binding) (Decision, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(buildInput(issued, presented)))
	if err != nil {
		return StrictDecision, err
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return StrictDecision, fmt.Errorf("binding policy returned no result")
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return StrictDecision, fmt.Errorf("binding policy returned %T, want object", rs[0].Expressions[0].Value)
	}
	return Decision{
		EnforceIP:        boolOr(doc["enforce_ip"], true),
		EnforceUserAgent: boolOr(doc["enforce_user_agent"], true),
	}, nil
}

// HealthCheck verifies that the compiled policy evaluates against a sample input.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	sample := devicedomain.Binding{IP: "127.0.0.1", UserAgent: "healthcheck"}
	if _, err := e.eval(ctx, sample, sample); err != nil {
		return fmt.Errorf("eval binding policy: %w", err)
	}
	return nil
}

func buildInput(issued, presented devicedomain.Binding) map[string]interface{} {
	issued, presented = issued.Normalize(), presented.Normalize()
	return map[string]interface{}{
		"issued": map[string]interface{}{
			"ip":         issued.IP,
			"user_agent": issued.UserAgent,
		},
		"presented": map[string]interface{}{
			"ip":         presented.IP,
			"user_agent": presented.UserAgent,
		},
		"same_ip":         issued.SameIP(presented),
		"same_user_agent": issued.SameUserAgent(presented),
	}
}

func boolOr(v interface{}, def bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}
