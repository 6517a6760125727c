package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestTopologyFile_ParsesNodesAndEdges(t *testing.T) {
	raw := []byte(`
nodes:
  - id: dc-1
    kind: datacenter
    name: us-east-1
    properties:
      environment: production
  - id: sw-1
    kind: device
    name: core-switch-1
    properties:
      is_core: true
edges:
  - id: e1
    kind: LOCATED_IN
    from: sw-1
    to: dc-1
`)

	var topo topologyFile
	require.NoError(t, yaml.Unmarshal(raw, &topo))

	require.Len(t, topo.Nodes, 2)
	assert.Equal(t, "dc-1", topo.Nodes[0].ID)
	assert.Equal(t, "production", topo.Nodes[0].Properties["environment"])
	assert.Equal(t, true, topo.Nodes[1].Properties["is_core"])

	require.Len(t, topo.Edges, 1)
	assert.Equal(t, "sw-1", topo.Edges[0].From)
	assert.Equal(t, "dc-1", topo.Edges[0].To)
}

func TestTopologyFile_EmptyFile(t *testing.T) {
	var topo topologyFile
	require.NoError(t, yaml.Unmarshal([]byte(""), &topo))
	assert.Empty(t, topo.Nodes)
	assert.Empty(t, topo.Edges)
}
