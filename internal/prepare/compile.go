package prepare

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/proposalcore/pricing-engine/internal/apperrors"
	"github.com/proposalcore/pricing-engine/internal/ruleeval"
)

// ruleNodeDTO is the wire shape of a rule tree: a pre-structured AST, never
// a string expression, so compilation never evaluates arbitrary code.
type ruleNodeDTO struct {
	Type        string        `json:"type"`
	CompareOp   string        `json:"compareOp,omitempty"`
	Left        *ruleNodeDTO  `json:"left,omitempty"`
	Right       *ruleNodeDTO  `json:"right,omitempty"`
	LogicalOp   string        `json:"logicalOp,omitempty"`
	Operands    []ruleNodeDTO `json:"operands,omitempty"`
	Path        []string      `json:"path,omitempty"`
	LiteralKind string        `json:"literalKind,omitempty"`
	StringVal   string        `json:"stringVal,omitempty"`
	NumberVal   string        `json:"numberVal,omitempty"`
	BoolVal     bool          `json:"boolVal,omitempty"`
	ListVal     []ruleNodeDTO `json:"listVal,omitempty"`
}

func (d *ruleNodeDTO) toNode() (*ruleeval.Node, error) {
	if d == nil {
		return nil, nil
	}
	n := &ruleeval.Node{
		Type:        ruleeval.NodeType(d.Type),
		CompareOp:   ruleeval.CompareOp(d.CompareOp),
		LogicalOp:   ruleeval.LogicalOp(d.LogicalOp),
		Path:        d.Path,
		LiteralKind: d.LiteralKind,
		StringVal:   d.StringVal,
		BoolVal:     d.BoolVal,
	}
	var err error
	if n.Left, err = d.Left.toNode(); err != nil {
		return nil, err
	}
	if n.Right, err = d.Right.toNode(); err != nil {
		return nil, err
	}
	if d.NumberVal != "" {
		n.NumberVal, err = decimal.NewFromString(d.NumberVal)
		if err != nil {
			return nil, err
		}
	}
	for _, op := range d.Operands {
		child, err := op.toNode()
		if err != nil {
			return nil, err
		}
		n.Operands = append(n.Operands, child)
	}
	for _, item := range d.ListVal {
		child, err := item.toNode()
		if err != nil {
			return nil, err
		}
		n.ListVal = append(n.ListVal, child)
	}
	return n, nil
}

// RuleCompiler compiles raw rule trees into validated ruleeval.Node ASTs,
// caching the result keyed by (tenantId, contentHash, version) so a rule
// seen before across proposals is compiled once.
type RuleCompiler struct {
	cache   *cache.Cache
	limits  ruleeval.Limits
	version string
}

func NewRuleCompiler(limits ruleeval.Limits, version string) *RuleCompiler {
	return &RuleCompiler{
		cache:   cache.New(1*time.Hour, 10*time.Minute),
		limits:  limits,
		version: version,
	}
}

func (c *RuleCompiler) Compile(tenant, modifierID, rawRule string) (*ruleeval.Node, error) {
	if rawRule == "" {
		return nil, nil
	}

	key := c.cacheKey(tenant, rawRule)
	if cached, ok := c.cache.Get(key); ok {
		return cached.(*ruleeval.Node), nil
	}

	var dto ruleNodeDTO
	if err := json.Unmarshal([]byte(rawRule), &dto); err != nil {
		return nil, apperrors.RuleCompileError(modifierID, "malformed rule tree: "+err.Error())
	}

	node, err := dto.toNode()
	if err != nil {
		return nil, apperrors.RuleCompileError(modifierID, "malformed rule tree: "+err.Error())
	}

	compiled, err := ruleeval.Compile(node, c.limits)
	if err != nil {
		return nil, apperrors.RuleCompileError(modifierID, err.Error())
	}

	c.cache.Set(key, compiled, cache.DefaultExpiration)
	return compiled, nil
}

func (c *RuleCompiler) cacheKey(tenant, rawRule string) string {
	h := sha256.Sum256([]byte(rawRule))
	return tenant + ":" + c.version + ":" + hex.EncodeToString(h[:])
}
