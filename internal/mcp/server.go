package mcp

import (
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sanonone/embedreduce/pkg/reduce"
)

// NewMCPServer exposes the reduction core as MCP tools.
func NewMCPServer(reducer *reduce.Service, version string) *mcp.Server {
	service := NewService(reducer)

	s := mcp.NewServer(&mcp.Implementation{
		Name:    "embedreduce",
		Version: version,
	}, nil)

	// AddTool infers the input and output schemas from the handler's structs.

	mcp.AddTool(s, &mcp.Tool{
		Name: "reduce_embeddings",
		Description: "Reduce the dimensionality of a batch of embedding vectors with PCA. " +
			"Returns one reduced vector per input row, projected onto the top n_components principal axes.",
	}, service.ReduceEmbeddings)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "explain_variance",
		Description: "Fit PCA on a batch of embeddings and report how much variance each principal axis explains, without returning the vectors.",
	}, service.ExplainVariance)

	return s
}

// NewHTTPHandler serves s over the streamable HTTP transport. Sessions are
// stateless: every request is independent, like POST /pca.
func NewHTTPHandler(s *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s
	}, &mcp.StreamableHTTPOptions{Stateless: true})
}
