package constraints

import (
	"testing"

	"github.com/cuemby/corral/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestMatchValueEmptyValues(t *testing.T) {
	attrs := []types.Attribute{{Name: "rack", Values: []string{"a"}}}

	require.False(t, MatchValue(attrs, types.ValueConstraint{Name: "rack", Values: nil, Negated: false}))
	require.True(t, MatchValue(attrs, types.ValueConstraint{Name: "rack", Values: nil, Negated: true}))
}

func TestMatchValueBasic(t *testing.T) {
	attrs := []types.Attribute{{Name: "rack", Values: []string{"a"}}}

	require.True(t, MatchValue(attrs, types.ValueConstraint{Name: "rack", Values: []string{"a", "b"}}))
	require.False(t, MatchValue(attrs, types.ValueConstraint{Name: "rack", Values: []string{"b"}}))
	require.True(t, MatchValue(attrs, types.ValueConstraint{Name: "rack", Values: []string{"b"}, Negated: true}))
}

func TestMatchLimitScenario(t *testing.T) {
	// host h1 has rack=a with one active task; host h2 has rack=b with none.
	hostAttrs := func(host string) []types.Attribute {
		switch host {
		case "h1":
			return []types.Attribute{{Name: "rack", Values: []string{"a"}}}
		case "h2":
			return []types.Attribute{{Name: "rack", Values: []string{"b"}}}
		}
		return nil
	}
	activeHosts := []string{"h1"}

	limit := types.LimitConstraint{Name: "rack", Limit: 1}
	require.False(t, MatchLimit(hostAttrs("h1"), limit, hostAttrs, activeHosts), "h1 already has 1 active task sharing rack=a")
	require.True(t, MatchLimit(hostAttrs("h2"), limit, hostAttrs, activeHosts), "h2 shares no attribute value with active hosts")
}
