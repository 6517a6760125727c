package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/opsgrid/changeintel/internal/database/postgres"
	"github.com/opsgrid/changeintel/internal/graph"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load a topology snapshot into the graph store",
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "path to a topology YAML file")
	seedCmd.MarkFlagRequired("file")
}

// topologyFile is the seed YAML shape: a flat list of nodes and edges,
// addressed by id the same way graph.Node and graph.Edge are.
type topologyFile struct {
	Nodes []seedNode `yaml:"nodes"`
	Edges []seedEdge `yaml:"edges"`
}

type seedNode struct {
	ID         string         `yaml:"id"`
	Kind       string         `yaml:"kind"`
	Name       string         `yaml:"name"`
	Properties map[string]any `yaml:"properties"`
}

type seedEdge struct {
	ID         string         `yaml:"id"`
	Kind       string         `yaml:"kind"`
	From       string         `yaml:"from"`
	To         string         `yaml:"to"`
	Properties map[string]any `yaml:"properties"`
}

func runSeed(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(seedFile)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}

	var topo topologyFile
	if err := yaml.Unmarshal(raw, &topo); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := postgres.LoadFromEnv()
	pool := postgres.NewPostgresPool(cfg, logger)

	ctx := context.Background()
	if err := pool.Connect(ctx); err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Disconnect(ctx)

	store := graph.NewPostgresStore(pool)

	for _, n := range topo.Nodes {
		node := graph.Node{
			ID:         n.ID,
			Kind:       graph.NodeKind(n.Kind),
			Name:       n.Name,
			Properties: n.Properties,
		}
		if err := store.UpsertNode(ctx, node); err != nil {
			return fmt.Errorf("upsert node %s: %w", n.ID, err)
		}
	}

	for _, e := range topo.Edges {
		edge := graph.Edge{
			ID:         e.ID,
			Kind:       graph.EdgeKind(e.Kind),
			FromNodeID: e.From,
			ToNodeID:   e.To,
			Properties: e.Properties,
		}
		if err := store.UpsertEdge(ctx, edge); err != nil {
			return fmt.Errorf("upsert edge %s: %w", e.ID, err)
		}
	}

	logger.Info("topology seeded", "nodes", len(topo.Nodes), "edges", len(topo.Edges))
	return nil
}
