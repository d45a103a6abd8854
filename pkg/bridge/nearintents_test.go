package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"swapd/pkg/resilience"
)

func TestNearIntentsServerOverride(t *testing.T) {
	log := zap.NewNop()

	p := NewNearIntents("jwt", "https://intents.internal.test/", nil, log, resilience.NewBreakers(log))
	servers := p.client.GetConfig().Servers
	require.Len(t, servers, 1)
	assert.Equal(t, "https://intents.internal.test", servers[0].URL)
}

func TestNearIntentsDefaultServer(t *testing.T) {
	log := zap.NewNop()

	p := NewNearIntents("jwt", "", nil, log, resilience.NewBreakers(log))
	assert.NotEmpty(t, p.client.GetConfig().Servers)
}
