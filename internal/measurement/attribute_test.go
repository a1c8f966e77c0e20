package measurement

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAttributeValueInterfaceRoundTripsEachKind(t *testing.T) {
	require.Equal(t, "train", StringAttr("train").Interface())
	require.Equal(t, int64(7), IntAttr(7).Interface())
	require.Equal(t, 2.5, FloatAttr(2.5).Interface())
	require.Equal(t, true, BoolAttr(true).Interface())
}

func TestAttributeValueStringFormatsEachKind(t *testing.T) {
	require.Equal(t, "train", StringAttr("train").String())
	require.Equal(t, "7", IntAttr(7).String())
	require.Equal(t, "2.5", FloatAttr(2.5).String())
	require.Equal(t, "true", BoolAttr(true).String())
}

func TestAttributesSetPreservesInsertionOrderAndOverwritesInPlace(t *testing.T) {
	a := NewAttributes()
	a.Set("b", IntAttr(1))
	a.Set("a", IntAttr(2))
	a.Set("b", IntAttr(3))

	var order []string
	a.Range(func(key string, _ AttributeValue) bool {
		order = append(order, key)
		return true
	})
	require.Equal(t, []string{"b", "a"}, order)

	v, ok := a.Get("b")
	require.True(t, ok)
	require.Equal(t, int64(3), v.Interface())
	require.Equal(t, 2, a.Len())
}

func TestAttributesCloneIsIndependent(t *testing.T) {
	a := NewAttributes()
	a.Set("load", FloatAttr(0.5))

	clone := a.Clone()
	clone.Set("load", FloatAttr(0.9))

	orig, _ := a.Get("load")
	cloned, _ := clone.Get("load")
	require.Equal(t, 0.5, orig.Interface())
	require.Equal(t, 0.9, cloned.Interface())
}
