package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sanonone/embedreduce/pkg/reduce"
)

type Service struct {
	reducer *reduce.Service
}

func NewService(reducer *reduce.Service) *Service {
	return &Service{reducer: reducer}
}

// --- Tool Handlers ---

// Validation and computation failures are returned as plain errors, which the
// SDK reports to the client as a tool result with IsError set.

func (s *Service) ReduceEmbeddings(ctx context.Context, req *mcp.CallToolRequest, args ReduceEmbeddingsArgs) (*mcp.CallToolResult, ReduceEmbeddingsResult, error) {
	batch, err := s.reducer.Build(reduce.Request{
		Embeddings:  args.Embeddings,
		NComponents: args.NComponents,
	})
	if err != nil {
		reduce.Record("mcp", nil, nil, err)
		return nil, ReduceEmbeddingsResult{}, err
	}

	res, err := s.reducer.Reduce(ctx, batch)
	reduce.Record("mcp", batch, res, err)
	if err != nil {
		slog.Error("MCP reduce_embeddings failed", "error", err)
		return nil, ReduceEmbeddingsResult{}, err
	}

	return nil, ReduceEmbeddingsResult{
		Reduced:                res.Reduced,
		NSamples:               batch.NSamples,
		NComponents:            batch.NComponents,
		ExplainedVarianceRatio: res.Model.ExplainedVarianceRatio,
	}, nil
}

func (s *Service) ExplainVariance(ctx context.Context, req *mcp.CallToolRequest, args ExplainVarianceArgs) (*mcp.CallToolResult, ExplainVarianceResult, error) {
	k := args.NComponents
	if k == nil && len(args.Embeddings) > 0 {
		// Default to every axis the data can have.
		all := min(len(args.Embeddings), len(args.Embeddings[0]))
		k = &all
	}

	batch, err := s.reducer.Build(reduce.Request{Embeddings: args.Embeddings, NComponents: k})
	if err != nil {
		reduce.Record("mcp", nil, nil, err)
		return nil, ExplainVarianceResult{}, err
	}

	res, err := s.reducer.Reduce(ctx, batch)
	reduce.Record("mcp", batch, res, err)
	if err != nil {
		return nil, ExplainVarianceResult{}, err
	}

	m := res.Model
	return nil, ExplainVarianceResult{
		NSamples:               m.NSamples,
		NFeatures:              m.NFeatures,
		SingularValues:         m.SingularValues,
		ExplainedVariance:      m.ExplainedVariance,
		ExplainedVarianceRatio: m.ExplainedVarianceRatio,
		TotalRatio:             m.TotalExplainedVarianceRatio(),
	}, nil
}
