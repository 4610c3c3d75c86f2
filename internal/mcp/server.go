package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	cocoerrors "github.com/cocodex/cocowatch/internal/errors"
	"github.com/cocodex/cocowatch/internal/scheduler"
	"github.com/cocodex/cocowatch/internal/store"
	"github.com/cocodex/cocowatch/pkg/version"
)

// Options configures the serving endpoint.
type Options struct {
	// CacheSize bounds the query result cache. Default: 256
	CacheSize int

	// CacheTTL bounds how stale a cached result may be. Default: 5s
	CacheTTL time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	if o.CacheSize == 0 {
		o.CacheSize = 256
	}
	if o.CacheTTL == 0 {
		o.CacheTTL = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Server exposes the store over MCP. Queries go through a short-lived
// result cache and a circuit breaker so a struggling store degrades
// requests instead of hammering it.
type Server struct {
	store   store.Store
	sched   *scheduler.Scheduler
	mcp     *mcp.Server
	logger  *slog.Logger
	cache   *expirable.LRU[string, []store.SearchResult]
	breaker *cocoerrors.CircuitBreaker
}

// NewServer creates the serving endpoint. sched may be nil in
// serve-only mode; the index_status tool then reports scheduling as
// unavailable and reindex is rejected.
func NewServer(st store.Store, sched *scheduler.Scheduler, opts Options) (*Server, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	opts = opts.WithDefaults()

	s := &Server{
		store:  st,
		sched:  sched,
		logger: opts.Logger,
		cache:  expirable.NewLRU[string, []store.SearchResult](opts.CacheSize, nil, opts.CacheTTL),
		breaker: cocoerrors.NewCircuitBreaker("store-queries",
			cocoerrors.WithMaxFailures(5),
			cocoerrors.WithResetTimeout(10*time.Second)),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "cocowatch",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// SearchInput is the input for the search tool.
type SearchInput struct {
	// Query is the full-text query.
	Query string `json:"query" jsonschema:"full-text query over indexed documents"`

	// Limit caps the number of results. Default: 10
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of results"`
}

// SearchResultOutput is one search hit.
type SearchResultOutput struct {
	Path    string  `json:"path"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet"`
}

// SearchOutput is the output of the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
}

// ListDocumentsInput is the input for the list_documents tool.
type ListDocumentsInput struct{}

// ListDocumentsOutput lists every indexed path.
type ListDocumentsOutput struct {
	Paths []string `json:"paths"`
	Count int      `json:"count"`
}

// IndexStatusInput is the input for the index_status tool.
type IndexStatusInput struct{}

// RunOutput describes one index run.
type RunOutput struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Full       bool   `json:"full"`
	Paths      int    `json:"paths"`
	Attempts   int    `json:"attempts"`
	Indexed    int    `json:"indexed"`
	Deleted    int    `json:"deleted"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"started_at,omitempty"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// IndexStatusOutput is the output of the index_status tool.
type IndexStatusOutput struct {
	// State is "running", "idle", or "serve-only" when no scheduler
	// is attached.
	State         string     `json:"state"`
	Running       *RunOutput `json:"running,omitempty"`
	LastRun       *RunOutput `json:"last_run,omitempty"`
	PendingPaths  int        `json:"pending_paths"`
	PendingFull   bool       `json:"pending_full"`
	RunsSucceeded int        `json:"runs_succeeded"`
	RunsFailed    int        `json:"runs_failed"`
	Documents     int        `json:"documents"`
	LastIndexedAt string     `json:"last_indexed_at,omitempty"`
}

// ReindexInput is the input for the reindex tool.
type ReindexInput struct{}

// ReindexOutput reports what the scheduler did with the request.
type ReindexOutput struct {
	Outcome string `json:"outcome"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Full-text search over the indexed directory tree. Returns matching paths with relevance scores and highlighted snippets.",
	}, s.searchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_documents",
		Description: "List every path currently present in the index.",
	}, s.listDocumentsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Report index freshness: the in-flight run, the last finished run, pending batch size, and document count.",
	}, s.indexStatusHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "reindex",
		Description: "Request a full re-index of the watched tree. Coalesces with any pending work.",
	}, s.reindexHandler)

	s.logger.Debug("MCP tools registered", slog.Int("count", 4))
}

func (s *Server) searchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if input.Query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	cacheKey := fmt.Sprintf("%s|%d", input.Query, limit)
	results, ok := s.cache.Get(cacheKey)
	if !ok {
		var err error
		results, err = cocoerrors.CircuitDo(s.breaker, func() ([]store.SearchResult, error) {
			return s.store.Search(ctx, input.Query, limit)
		})
		if err != nil {
			s.logger.Warn("search request failed",
				slog.String("query", input.Query),
				slog.String("error", err.Error()))
			return nil, SearchOutput{}, MapError(err)
		}
		s.cache.Add(cacheKey, results)
	}

	output := SearchOutput{Results: make([]SearchResultOutput, 0, len(results))}
	for _, r := range results {
		output.Results = append(output.Results, SearchResultOutput{
			Path:    r.Path,
			Score:   r.Score,
			Snippet: r.Snippet,
		})
	}
	return nil, output, nil
}

func (s *Server) listDocumentsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ ListDocumentsInput) (
	*mcp.CallToolResult,
	ListDocumentsOutput,
	error,
) {
	paths, err := cocoerrors.CircuitDo(s.breaker, func() ([]string, error) {
		return s.store.ListPaths(ctx)
	})
	if err != nil {
		return nil, ListDocumentsOutput{}, MapError(err)
	}
	if paths == nil {
		paths = []string{}
	}
	return nil, ListDocumentsOutput{Paths: paths, Count: len(paths)}, nil
}

func (s *Server) indexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	IndexStatusOutput,
	error,
) {
	output := IndexStatusOutput{State: "serve-only"}

	if s.sched != nil {
		snap := s.sched.Status()
		output.State = "idle"
		if snap.Running != nil {
			output.State = "running"
			output.Running = runOutput(snap.Running)
		}
		if snap.LastRun != nil {
			output.LastRun = runOutput(snap.LastRun)
		}
		output.PendingPaths = snap.PendingPaths
		output.PendingFull = snap.PendingFull
		output.RunsSucceeded = snap.Succeeded
		output.RunsFailed = snap.Failed
	}

	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, IndexStatusOutput{}, MapError(err)
	}
	output.Documents = stats.Documents
	if !stats.LastIndexedAt.IsZero() {
		output.LastIndexedAt = stats.LastIndexedAt.Format(time.RFC3339)
	}

	return nil, output, nil
}

func (s *Server) reindexHandler(_ context.Context, _ *mcp.CallToolRequest, _ ReindexInput) (
	*mcp.CallToolResult,
	ReindexOutput,
	error,
) {
	if s.sched == nil {
		return nil, ReindexOutput{}, NewInvalidParamsError("reindex is not available in serve-only mode")
	}
	outcome := s.sched.SubmitFull()
	return nil, ReindexOutput{Outcome: string(outcome)}, nil
}

func runOutput(run *scheduler.IndexRun) *RunOutput {
	out := &RunOutput{
		ID:       run.ID,
		Status:   string(run.Status),
		Full:     run.Full,
		Paths:    len(run.Paths),
		Attempts: run.Attempts,
		Indexed:  run.Result.Indexed,
		Deleted:  run.Result.Deleted,
		Error:    run.Error,
	}
	if !run.StartedAt.IsZero() {
		out.StartedAt = run.StartedAt.Format(time.RFC3339)
	}
	if !run.FinishedAt.IsZero() {
		out.FinishedAt = run.FinishedAt.Format(time.RFC3339)
	}
	return out
}

// Serve runs the endpoint until the context is cancelled. An empty
// addr selects stdio transport; otherwise a streamable HTTP server
// listens on addr.
func (s *Server) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		s.logger.Info("serving MCP over stdio")
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error",
				slog.String("error", err.Error()))
			return cocoerrors.ServeError("stdio transport failed", err)
		}
		return nil
	}

	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcp
	}, nil)

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("serving MCP over HTTP", slog.String("addr", addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return cocoerrors.ServeError(fmt.Sprintf("listen on %s", addr), err)
		}
		return nil
	}
}
