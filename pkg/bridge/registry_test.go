package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientRegistry(t *testing.T) {
	r := NewClientRegistry()
	assert.Zero(t, r.Count())

	authed := &Client{ID: "a", Authenticated: true}
	pending := &Client{ID: "b"}
	r.Add(authed)
	r.Add(pending)
	assert.Equal(t, 2, r.Count())

	got, ok := r.Get("a")
	assert.True(t, ok)
	assert.Same(t, authed, got)

	clients := r.GetAuthenticatedClients()
	assert.Len(t, clients, 1)
	assert.Equal(t, "a", clients[0].ID)

	r.Remove("a")
	assert.Equal(t, 1, r.Count())
	_, ok = r.Get("a")
	assert.False(t, ok)
}

func TestClientRegistryUpdateActivity(t *testing.T) {
	r := NewClientRegistry()
	client := &Client{ID: "a"}
	r.Add(client)

	before := client.LastActivity
	r.UpdateActivity("a")
	assert.True(t, client.LastActivity.After(before) || client.LastActivity.Equal(before))

	// Unknown ids are a no-op.
	r.UpdateActivity("nope")
}
