package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errorskg "github.com/sehgal-vip/travel-agent/errors"
)

func TestManagerRender(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.RegisterString("planner", "Plan {{.Days}} days in {{.Country}}."))

	out, err := m.Render("planner", map[string]any{"Days": 7, "Country": "Japan"})
	require.NoError(t, err)
	assert.Equal(t, "Plan 7 days in Japan.", out)
}

func TestManagerMissingKey(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.RegisterString("planner", "Plan {{.Days}} days."))

	_, err := m.Render("planner", map[string]any{})
	assert.Error(t, err)
}

func TestManagerErrors(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.RegisterString("a", "x"))

	assert.ErrorIs(t, m.RegisterString("a", "y"), errorskg.ErrAlreadyExists)
	assert.ErrorIs(t, m.Register(&Template{}), errorskg.ErrInvalidInput)

	_, err := m.Get("missing")
	assert.ErrorIs(t, err, errorskg.ErrNotFound)

	_, err = NewTemplate("bad", "{{.Open")
	assert.Error(t, err)
}

func TestManagerList(t *testing.T) {
	m := NewManager()
	for _, name := range []string{"scheduler", "cost", "planner"} {
		require.NoError(t, m.RegisterString(name, name))
	}
	assert.Equal(t, []string{"cost", "planner", "scheduler"}, m.List())
}

func TestBuilder(t *testing.T) {
	b := NewBuilder().
		Add("You are helpful.\n").
		Add("   ").
		AddSection("Empty", "").
		AddSection("Rules", "- be brief").
		AddBlock("CONTEXT", "Country: Japan\n").
		AddBlock("NOTHING", "")

	assert.Equal(t, 3, b.Len())
	assert.Equal(t,
		"You are helpful.\n\n## Rules\n- be brief\n\n--- CONTEXT ---\nCountry: Japan\n--- END CONTEXT ---",
		b.Build())

	assert.Equal(t, "", b.Reset().Build())
}
