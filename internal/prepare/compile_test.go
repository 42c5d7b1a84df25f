package prepare

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/proposalcore/pricing-engine/internal/ruleeval"
)

func TestRuleCompiler_CompilesAndCaches(t *testing.T) {
	c := NewRuleCompiler(ruleeval.DefaultLimits(), "1")
	raw := `{"type":"comparison","compareOp":"gt","left":{"type":"field_path","path":["proposal","quantity"]},"right":{"type":"literal","literalKind":"number","numberVal":"10"}}`

	node, err := c.Compile("acme", "m1", raw)
	assert.NoError(t, err)
	assert.NotNil(t, node)
	assert.Equal(t, ruleeval.NodeComparison, node.Type)

	cached, err := c.Compile("acme", "m1", raw)
	assert.NoError(t, err)
	assert.Same(t, node, cached)
}

func TestRuleCompiler_EmptyRuleReturnsNil(t *testing.T) {
	c := NewRuleCompiler(ruleeval.DefaultLimits(), "1")
	node, err := c.Compile("acme", "m1", "")
	assert.NoError(t, err)
	assert.Nil(t, node)
}

func TestRuleCompiler_MalformedRuleReturnsError(t *testing.T) {
	c := NewRuleCompiler(ruleeval.DefaultLimits(), "1")
	_, err := c.Compile("acme", "m1", "{not json")
	assert.Error(t, err)
}

func TestRuleCompiler_ExceedsDepthLimit(t *testing.T) {
	limits := ruleeval.DefaultLimits()
	limits.MaxDepth = 1
	c := NewRuleCompiler(limits, "1")
	raw := `{"type":"comparison","compareOp":"gt","left":{"type":"field_path","path":["proposal","quantity"]},"right":{"type":"literal","literalKind":"number","numberVal":"10"}}`

	_, err := c.Compile("acme", "m1", raw)
	assert.Error(t, err)
}
