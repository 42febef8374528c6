// Package condition implements the boolean branching node. Expressions
// are evaluated with expr-lang against the variable context only: plain
// comparisons and boolean combinators, no function calls into the host
// and no side effects.
package condition

import (
	"context"
	"errors"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/outflowhq/outflow/pkg/models"
	"github.com/outflowhq/outflow/pkg/protocol"
)

type Node struct {
	id         string
	expression string
}

func NewNode(node *models.FlowNode) (*Node, error) {
	expression, ok := node.Config["expression"].(string)
	if !ok || strings.TrimSpace(expression) == "" {
		return nil, errors.New("missing required field 'expression'")
	}

	return &Node{id: node.ID, expression: expression}, nil
}

func (n *Node) ID() string {
	return n.id
}

func (n *Node) Type() models.NodeType {
	return models.NodeTypeCondition
}

// Execute evaluates the expression and selects the true or false edge.
// Evaluation errors (typically an undefined variable) route to the false
// edge rather than failing the run; one malformed contact record must not
// derail an entire audience.
func (n *Node) Execute(_ context.Context, env *protocol.ExecEnv) (protocol.HandlerResult, error) {
	result, err := n.evaluate(env.Variables)
	if err != nil {
		env.Logger.Warn("Condition evaluation failed, taking false edge",
			"node_id", n.id, "expression", n.expression, "error", err)

		return protocol.HandlerResult{
			Handle:  models.EdgeHandleFalse,
			Message: "condition error, treated as false: " + err.Error(),
			Data:    map[string]any{"result": false},
		}, nil
	}

	handle := models.EdgeHandleFalse
	if result {
		handle = models.EdgeHandleTrue
	}

	return protocol.HandlerResult{
		Handle:  handle,
		Message: "condition evaluated",
		Data:    map[string]any{"result": result, "expression": n.expression},
	}, nil
}

func (n *Node) evaluate(vctx *models.VariableContext) (bool, error) {
	env := nestedEnv(vctx.Snapshot())

	program, err := expr.Compile(n.expression,
		expr.Env(env),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return false, err
	}

	output, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}

	result, ok := output.(bool)
	if !ok {
		return false, errors.New("expression did not evaluate to a boolean")
	}

	return result, nil
}

// nestedEnv expands dotted context keys into nested maps so expressions
// address them as member accesses ("contact.age" -> contact.age).
func nestedEnv(flat map[string]any) map[string]any {
	env := make(map[string]any, len(flat))

	for key, value := range flat {
		parts := strings.Split(key, ".")

		current := env
		for i, part := range parts {
			if i == len(parts)-1 {
				current[part] = value

				break
			}

			next, ok := current[part].(map[string]any)
			if !ok {
				next = make(map[string]any)
				current[part] = next
			}

			current = next
		}
	}

	return env
}
