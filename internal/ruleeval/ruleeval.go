// Package ruleeval interprets a small, depth-limited boolean AST over a
// read-only context. It never evaluates a string as code: rule
// expressions are structured node trees from the moment they are
// compiled, the way the safe-evaluator design notes require.
package ruleeval

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// NodeType tags the kind of AST node.
type NodeType string

const (
	NodeComparison NodeType = "comparison"
	NodeLogical    NodeType = "logical"
	NodeFieldPath  NodeType = "field_path"
	NodeLiteral    NodeType = "literal"
)

// CompareOp names a comparison operator.
type CompareOp string

const (
	OpEq  CompareOp = "eq"
	OpNe  CompareOp = "ne"
	OpGt  CompareOp = "gt"
	OpGte CompareOp = "gte"
	OpLt  CompareOp = "lt"
	OpLte CompareOp = "lte"
	OpIn  CompareOp = "in"
)

// LogicalOp names a logical connective. Only AND/OR exist; both
// short-circuit.
type LogicalOp string

const (
	OpAnd LogicalOp = "and"
	OpOr  LogicalOp = "or"
)

// Node is one AST node. Exactly one of the typed fields is populated,
// selected by Type.
type Node struct {
	Type NodeType

	// NodeComparison
	CompareOp CompareOp
	Left      *Node
	Right     *Node

	// NodeLogical
	LogicalOp LogicalOp
	Operands  []*Node

	// NodeFieldPath
	Path []string

	// NodeLiteral
	LiteralKind string // "string" | "number" | "bool" | "list"
	StringVal   string
	NumberVal   decimal.Decimal
	BoolVal     bool
	ListVal     []*Node
}

// Limits bounds a single rule's structure and a single evaluation's cost.
type Limits struct {
	MaxDepth          int
	MaxNodes          int
	MaxFieldPaths     int
	MaxOperations     int
	AllowedPrefixes   []string
}

// DefaultLimits matches the safety ceilings named for rule compilation and
// evaluation: depth <= 10, node count <= 100, at most 20 distinct field
// paths, and at most 1000 operations per evaluation.
func DefaultLimits() Limits {
	return Limits{
		MaxDepth:      10,
		MaxNodes:      100,
		MaxFieldPaths: 20,
		MaxOperations: 1000,
		AllowedPrefixes: []string{
			"proposal.", "computed.", "customer.", "project.", "running.",
			"evaluationContext.",
		},
	}
}

// CompileError explains why a rule tree failed validation.
type CompileError struct {
	Reason string
}

func (e *CompileError) Error() string { return e.Reason }

// Compile validates a rule tree against Limits, returning it unchanged if
// it passes. Validation is structural only; it never interprets strings
// as expressions.
func Compile(root *Node, limits Limits) (*Node, error) {
	if root == nil {
		return nil, nil
	}
	nodeCount := 0
	fieldPaths := map[string]struct{}{}

	var walk func(n *Node, depth int) error
	walk = func(n *Node, depth int) error {
		if n == nil {
			return nil
		}
		if depth > limits.MaxDepth {
			return &CompileError{Reason: fmt.Sprintf("depth %d exceeds limit %d", depth, limits.MaxDepth)}
		}
		nodeCount++
		if nodeCount > limits.MaxNodes {
			return &CompileError{Reason: fmt.Sprintf("node count exceeds limit %d", limits.MaxNodes)}
		}
		switch n.Type {
		case NodeComparison:
			if err := walk(n.Left, depth+1); err != nil {
				return err
			}
			if err := walk(n.Right, depth+1); err != nil {
				return err
			}
		case NodeLogical:
			for _, op := range n.Operands {
				if err := walk(op, depth+1); err != nil {
					return err
				}
			}
		case NodeFieldPath:
			joined := strings.Join(n.Path, ".")
			fieldPaths[joined] = struct{}{}
			if len(fieldPaths) > limits.MaxFieldPaths {
				return &CompileError{Reason: fmt.Sprintf("distinct field paths exceed limit %d", limits.MaxFieldPaths)}
			}
			if !allowedPath(joined, limits.AllowedPrefixes) {
				return &CompileError{Reason: fmt.Sprintf("field path %q is not allow-listed", joined)}
			}
		case NodeLiteral:
			if n.LiteralKind == "list" {
				for _, item := range n.ListVal {
					if err := walk(item, depth+1); err != nil {
						return err
					}
				}
			}
		default:
			return &CompileError{Reason: fmt.Sprintf("unknown node type %q", n.Type)}
		}
		return nil
	}

	if err := walk(root, 1); err != nil {
		return nil, err
	}
	return root, nil
}

func allowedPath(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Context resolves field paths at evaluation time. Unknown paths resolve
// to the Missing sentinel rather than erroring, per the design notes.
type Context interface {
	Resolve(path []string) Value
}

// ValueKind tags the dynamic type of a resolved Value.
type ValueKind string

const (
	ValueMissing ValueKind = "missing"
	ValueString  ValueKind = "string"
	ValueNumber  ValueKind = "number"
	ValueBool    ValueKind = "bool"
	ValueList    ValueKind = "list"
)

// Value is the tagged-union result of resolving a field path or literal.
type Value struct {
	Kind   ValueKind
	Str    string
	Num    decimal.Decimal
	Bool   bool
	List   []Value
}

var Missing = Value{Kind: ValueMissing}

// EvalError reports a rule evaluation failure scoped to one modifier.
type EvalError struct {
	Reason string
}

func (e *EvalError) Error() string { return e.Reason }

type evalState struct {
	ops   int
	limit int
}

func (s *evalState) tick() error {
	s.ops++
	if s.ops > s.limit {
		return &EvalError{Reason: "operation count exceeds limit"}
	}
	return nil
}

// Eval interprets root against ctx, enforcing the operation-count limit.
// A nil root evaluates to true (an unconditional modifier).
func Eval(root *Node, ctx Context, limits Limits) (bool, error) {
	if root == nil {
		return true, nil
	}
	st := &evalState{limit: limits.MaxOperations}
	v, err := evalNode(root, ctx, st)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

func evalNode(n *Node, ctx Context, st *evalState) (Value, error) {
	if err := st.tick(); err != nil {
		return Value{}, err
	}
	switch n.Type {
	case NodeLiteral:
		return evalLiteral(n, ctx, st)
	case NodeFieldPath:
		return ctx.Resolve(n.Path), nil
	case NodeComparison:
		return evalComparison(n, ctx, st)
	case NodeLogical:
		return evalLogical(n, ctx, st)
	default:
		return Value{}, &EvalError{Reason: fmt.Sprintf("unknown node type %q", n.Type)}
	}
}

func evalLiteral(n *Node, ctx Context, st *evalState) (Value, error) {
	switch n.LiteralKind {
	case "string":
		return Value{Kind: ValueString, Str: n.StringVal}, nil
	case "number":
		return Value{Kind: ValueNumber, Num: n.NumberVal}, nil
	case "bool":
		return Value{Kind: ValueBool, Bool: n.BoolVal}, nil
	case "list":
		items := make([]Value, 0, len(n.ListVal))
		for _, item := range n.ListVal {
			v, err := evalNode(item, ctx, st)
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return Value{Kind: ValueList, List: items}, nil
	default:
		return Value{}, &EvalError{Reason: fmt.Sprintf("unknown literal kind %q", n.LiteralKind)}
	}
}

func evalComparison(n *Node, ctx Context, st *evalState) (Value, error) {
	left, err := evalNode(n.Left, ctx, st)
	if err != nil {
		return Value{}, err
	}
	right, err := evalNode(n.Right, ctx, st)
	if err != nil {
		return Value{}, err
	}
	result, err := compare(n.CompareOp, left, right)
	if err != nil {
		return Value{}, err
	}
	return Value{Kind: ValueBool, Bool: result}, nil
}

func compare(op CompareOp, left, right Value) (bool, error) {
	if op == OpIn {
		if right.Kind != ValueList {
			return false, &EvalError{Reason: "'in' requires a list on the right"}
		}
		for _, item := range right.List {
			eq, err := valuesEqual(left, item)
			if err != nil {
				return false, err
			}
			if eq {
				return true, nil
			}
		}
		return false, nil
	}

	if left.Kind == ValueMissing || right.Kind == ValueMissing {
		// Missing satisfies no comparison except inequality against a
		// present value; missing compared with missing is never unequal.
		if op == OpNe {
			return left.Kind != right.Kind, nil
		}
		return false, nil
	}

	switch op {
	case OpEq:
		return valuesEqual(left, right)
	case OpNe:
		eq, err := valuesEqual(left, right)
		return !eq, err
	case OpGt, OpGte, OpLt, OpLte:
		if left.Kind != ValueNumber || right.Kind != ValueNumber {
			return false, &EvalError{Reason: "ordering comparisons require numeric operands"}
		}
		switch op {
		case OpGt:
			return left.Num.GreaterThan(right.Num), nil
		case OpGte:
			return left.Num.GreaterThanOrEqual(right.Num), nil
		case OpLt:
			return left.Num.LessThan(right.Num), nil
		case OpLte:
			return left.Num.LessThanOrEqual(right.Num), nil
		}
	}
	return false, &EvalError{Reason: fmt.Sprintf("unknown comparison operator %q", op)}
}

func valuesEqual(a, b Value) (bool, error) {
	if a.Kind != b.Kind {
		return false, nil
	}
	switch a.Kind {
	case ValueString:
		return a.Str == b.Str, nil
	case ValueNumber:
		return a.Num.Equal(b.Num), nil
	case ValueBool:
		return a.Bool == b.Bool, nil
	case ValueMissing:
		return true, nil
	default:
		return false, &EvalError{Reason: "unsupported equality operand"}
	}
}

func evalLogical(n *Node, ctx Context, st *evalState) (Value, error) {
	switch n.LogicalOp {
	case OpAnd:
		for _, operand := range n.Operands {
			v, err := evalNode(operand, ctx, st)
			if err != nil {
				return Value{}, err
			}
			if !truthy(v) {
				return Value{Kind: ValueBool, Bool: false}, nil
			}
		}
		return Value{Kind: ValueBool, Bool: true}, nil
	case OpOr:
		for _, operand := range n.Operands {
			v, err := evalNode(operand, ctx, st)
			if err != nil {
				return Value{}, err
			}
			if truthy(v) {
				return Value{Kind: ValueBool, Bool: true}, nil
			}
		}
		return Value{Kind: ValueBool, Bool: false}, nil
	default:
		return Value{}, &EvalError{Reason: fmt.Sprintf("unknown logical operator %q", n.LogicalOp)}
	}
}

func truthy(v Value) bool {
	switch v.Kind {
	case ValueBool:
		return v.Bool
	case ValueMissing:
		return false
	case ValueNumber:
		return !v.Num.IsZero()
	case ValueString:
		return v.Str != ""
	case ValueList:
		return len(v.List) > 0
	default:
		return false
	}
}
