package autowire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"
)

type store struct{ *core.BaseComponent }

type consumer struct {
	*core.BaseComponent
	Store    *store         `infra:"dep:store"`
	Optional core.Component `infra:"dep:cache?"`
}

func TestInjectAll(t *testing.T) {
	c := core.NewContainer()
	s := &store{core.NewBaseComponent("store")}
	cons := &consumer{BaseComponent: core.NewBaseComponent("consumer")}
	require.NoError(t, c.Register("store", s))
	require.NoError(t, c.Register("consumer", cons))

	require.NoError(t, InjectAll(c))
	assert.Same(t, s, cons.Store)
	assert.Nil(t, cons.Optional)
	assert.Equal(t, []string{"store"}, cons.Dependencies())
}

func TestInject_MissingRequired(t *testing.T) {
	c := core.NewContainer()
	cons := &consumer{BaseComponent: core.NewBaseComponent("consumer")}
	require.NoError(t, c.Register("consumer", cons))
	assert.ErrorContains(t, InjectAll(c), "resolve store failed")
}

func TestInject_TypeMismatch(t *testing.T) {
	c := core.NewContainer()
	require.NoError(t, c.Register("store", core.NewBaseComponent("store")))
	cons := &consumer{BaseComponent: core.NewBaseComponent("consumer")}
	assert.ErrorContains(t, Inject(c, cons), "incompatible types")
}
