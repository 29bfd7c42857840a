package scopes_test

import (
	"testing"

	"github.com/jrsteele09/lm-mcp-gateway/scopes"
	"github.com/jrsteele09/lm-mcp-gateway/tools"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	s := scopes.Parse("  mcp:tools   lm:alerts:read mcp:tools ")
	require.Len(t, s, 2)
	require.True(t, s.Has("mcp:tools"))
	require.True(t, s.Has("lm:alerts:read"))
	require.Empty(t, scopes.Parse(""))
}

func TestExpand(t *testing.T) {
	t.Run("category admin implies write and read", func(t *testing.T) {
		expanded := scopes.Expand(scopes.NewSet("cat:admin"))
		require.True(t, expanded.ContainsAll(scopes.NewSet("cat:admin", "cat:write", "cat:read")))

		expanded = scopes.Expand(scopes.NewSet("lm:alerts:admin"))
		require.True(t, expanded.ContainsAll(scopes.NewSet("lm:alerts:admin", "lm:alerts:write", "lm:alerts:read")))
		require.False(t, expanded.Has("lm:devices:read"))
	})

	t.Run("global write subsumes every category write and read", func(t *testing.T) {
		expanded := scopes.Expand(scopes.NewSet(scopes.GlobalWrite))
		for _, c := range scopes.Categories {
			require.True(t, expanded.Has(scopes.Category(c, scopes.ActionWrite)), c)
			require.True(t, expanded.Has(scopes.Category(c, scopes.ActionRead)), c)
			require.False(t, expanded.Has(scopes.Category(c, scopes.ActionAdmin)), c)
		}
		require.True(t, expanded.Has(scopes.GlobalRead))
	})

	t.Run("global admin reaches everything except tool access", func(t *testing.T) {
		expanded := scopes.Expand(scopes.NewSet(scopes.GlobalAdmin))
		for _, scope := range scopes.Supported() {
			if scope == scopes.ToolAccess {
				require.False(t, expanded.Has(scope))
				continue
			}
			require.True(t, expanded.Has(scope), scope)
		}
	})

	t.Run("superset of input", func(t *testing.T) {
		in := scopes.NewSet("custom:thing", "lm:logs:read")
		require.True(t, scopes.Expand(in).ContainsAll(in))
	})
}

func TestMissing(t *testing.T) {
	missing := scopes.Missing(scopes.NewSet("lm:alerts:write"), []string{"mcp:tools", "lm:alerts:read"})
	require.Equal(t, []string{"mcp:tools"}, missing)
	require.Empty(t, scopes.Missing(scopes.NewSet("mcp:tools", "lm:admin"), []string{"mcp:tools", "lm:users:admin"}))
}

func TestManager_Authorize(t *testing.T) {
	m := tools.NewScopeManager()

	t.Run("acknowledge_alert with read scope misses exactly write", func(t *testing.T) {
		d := m.Authorize("acknowledge_alert", "mcp:tools lm:alerts:read")
		require.False(t, d.OK)
		require.Equal(t, []string{"lm:alerts:write"}, d.Missing)
		require.ElementsMatch(t, []string{"mcp:tools", "lm:alerts:write"}, d.Required)
	})

	t.Run("acknowledge_alert with category admin", func(t *testing.T) {
		d := m.Authorize("acknowledge_alert", "mcp:tools lm:alerts:admin")
		require.True(t, d.OK)
		require.Empty(t, d.Missing)
	})

	t.Run("unknown tool needs only baseline", func(t *testing.T) {
		require.Equal(t, []string{scopes.ToolAccess}, m.RequiredFor("no_such_tool"))
		require.True(t, m.Authorize("no_such_tool", "mcp:tools").OK)
		d := m.Authorize("no_such_tool", "")
		require.False(t, d.OK)
		require.Equal(t, []string{scopes.ToolAccess}, d.Missing)
	})

	t.Run("multi category tool", func(t *testing.T) {
		d := m.Authorize("generate_dashboard_for_device", "mcp:tools lm:dashboards:write")
		require.False(t, d.OK)
		require.Equal(t, []string{"lm:devices:read"}, d.Missing)
	})

	t.Run("monotonic in granted scopes", func(t *testing.T) {
		grants := []string{
			"mcp:tools lm:alerts:write",
			"mcp:tools lm:write",
			"mcp:tools lm:devices:read lm:dashboards:admin",
			"mcp:tools lm:admin",
		}
		extra := []string{"lm:read", "lm:users:admin", "other:scope", "lm:admin"}

		for _, tool := range m.Tools() {
			for _, grant := range grants {
				if !m.Authorize(tool, grant).OK {
					continue
				}
				for _, e := range extra {
					require.True(t, m.Authorize(tool, grant+" "+e).OK, "%s with %q + %q", tool, grant, e)
				}
			}
		}
	})
}

func TestDescriptionsCoverSupported(t *testing.T) {
	for _, scope := range scopes.Supported() {
		require.NotEmpty(t, scopes.Descriptions[scope], scope)
	}
}
