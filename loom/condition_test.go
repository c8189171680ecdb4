package loom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionPrecedenceNotAndOr(t *testing.T) {
	data := NewFollowData()
	data.Variables["a"] = NewBool(false)
	data.Variables["b"] = NewBool(true)
	data.Variables["c"] = NewBool(false)

	// not a and b or c  ==  ((not a) and b) or c  ==  (true and true) or false == true
	cond, err := ParseConditionText("not a and b or c")
	require.NoError(t, err)
	ok, err := cond.Eval(data)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConditionParenthesesOverridePrecedence(t *testing.T) {
	data := NewFollowData()
	data.Variables["a"] = NewBool(false)
	data.Variables["b"] = NewBool(false)
	data.Variables["c"] = NewBool(true)

	// a and (b or c) == false and true == false
	cond, err := ParseConditionText("a and (b or c)")
	require.NoError(t, err)
	ok, err := cond.Eval(data)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBareLeafIsNotEqualZero(t *testing.T) {
	data := NewFollowData()
	data.Variables["count"] = NewInt(0)
	cond, err := ParseConditionText("count")
	require.NoError(t, err)
	ok, err := cond.Eval(data)
	require.NoError(t, err)
	assert.False(t, ok)

	data.Variables["count"] = NewInt(2)
	ok, err = cond.Eval(data)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConditionShortCircuitsAnd(t *testing.T) {
	data := NewFollowData()
	data.Variables["a"] = NewBool(false)
	// b is undeclared; if "and" evaluated the right operand despite a
	// short-circuit, this would fail with an undeclared-variable error.
	cond, err := ParseConditionText("a and b")
	require.NoError(t, err)
	ok, err := cond.Eval(data)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConditionShortCircuitsOr(t *testing.T) {
	data := NewFollowData()
	data.Variables["a"] = NewBool(true)
	cond, err := ParseConditionText("a or b")
	require.NoError(t, err)
	ok, err := cond.Eval(data)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestComparisonLeafWithinCondition(t *testing.T) {
	data := NewFollowData()
	data.Variables["count"] = NewInt(5)
	cond, err := ParseConditionText("count >= 5")
	require.NoError(t, err)
	ok, err := cond.Eval(data)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsProvablyAlwaysFalse(t *testing.T) {
	falseCond, err := ParseConditionText("false")
	require.NoError(t, err)
	assert.True(t, falseCond.IsProvablyAlwaysFalse())

	trueCond, err := ParseConditionText("true")
	require.NoError(t, err)
	assert.False(t, trueCond.IsProvablyAlwaysFalse())

	literalFalseCmp, err := ParseConditionText("1 == 2")
	require.NoError(t, err)
	assert.True(t, literalFalseCmp.IsProvablyAlwaysFalse())

	dynamic, err := ParseConditionText("torch")
	require.NoError(t, err)
	assert.False(t, dynamic.IsProvablyAlwaysFalse())
}
