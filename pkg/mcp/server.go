package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/fieldflow/internal/session"
	"github.com/rendis/fieldflow/internal/store"
	"github.com/rendis/fieldflow/internal/streaming"
	"github.com/rendis/fieldflow/internal/validation"
)

// FieldflowServerDeps holds the dependencies for creating a FieldflowServer.
type FieldflowServerDeps struct {
	Store     store.Store
	Hub       streaming.EventHub
	Validator validation.Validator
	Logger    *slog.Logger
}

// FieldflowServer wraps an MCP server with survey flow tool handlers.
type FieldflowServer struct {
	store     store.Store
	hub       streaming.EventHub
	validator validation.Validator
	persister *session.Persister
	sessions  *sessionRegistry
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewFieldflowServer creates a new FieldflowServer with all tools registered.
func NewFieldflowServer(deps FieldflowServerDeps) *FieldflowServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &FieldflowServer{
		store:     deps.Store,
		hub:       deps.Hub,
		validator: deps.Validator,
		persister: session.NewPersister(deps.Store, logger),
		sessions:  newSessionRegistry(),
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"fieldflow",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Fieldflow is a script-driven survey flow engine. Use survey.define to register a survey, survey.start to open a session, survey.answer to record answers, survey.advance and survey.back to navigate, survey.resume to acknowledge routing decisions, and survey.status to inspect a session."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *FieldflowServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *FieldflowServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Close flushes the background answer writer.
func (s *FieldflowServer) Close() {
	s.persister.Close()
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *FieldflowServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: defineTool(), Handler: s.handleDefine},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: startTool(), Handler: s.handleStart},
		{Tool: answerTool(), Handler: s.handleAnswer},
		{Tool: advanceTool(), Handler: s.handleAdvance},
		{Tool: backTool(), Handler: s.handleBack},
		{Tool: resumeTool(), Handler: s.handleResume},
		{Tool: statusTool(), Handler: s.handleStatus},
	}
}

// --- Tool definitions ---

func defineTool() mcp.Tool {
	return mcp.NewTool("survey.define",
		mcp.WithDescription("Validate and register a survey definition"),
		mcp.WithObject("definition", mcp.Required(), mcp.Description("Survey definition object (sections, questions, scripts)")),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("survey.validate",
		mcp.WithDescription("Validate a survey definition without registering it; returns all errors and warnings"),
		mcp.WithObject("definition", mcp.Required(), mcp.Description("Survey definition object to check")),
	)
}

func startTool() mcp.Tool {
	return mcp.NewTool("survey.start",
		mcp.WithDescription("Open a new session against a registered survey and expose its first question"),
		mcp.WithString("survey_id", mcp.Required(), mcp.Description("ID of the registered survey")),
		mcp.WithString("language", mcp.Description("Language code to filter question variants (default: all language-neutral questions)")),
		mcp.WithString("session_id", mcp.Description("Session ID to assign (default: generated)")),
	)
}

func answerTool() mcp.Tool {
	return mcp.NewTool("survey.answer",
		mcp.WithDescription("Record an answer for the current question. Provide option_index for choice questions (multi-select toggles the option), value for numeric, text for free text"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target session ID")),
		mcp.WithNumber("option_index", mcp.Description("Option index for single_choice or multi_select questions")),
		mcp.WithNumber("value", mcp.Description("Value for numeric questions")),
		mcp.WithString("text", mcp.Description("Text for free_text questions")),
	)
}

func advanceTool() mcp.Tool {
	return mcp.NewTool("survey.advance",
		mcp.WithDescription("Validate the current answer and move to the next question"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target session ID")),
	)
}

func backTool() mcp.Tool {
	return mcp.NewTool("survey.back",
		mcp.WithDescription("Navigate one question backward"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target session ID")),
	)
}

func resumeTool() mcp.Tool {
	return mcp.NewTool("survey.resume",
		mcp.WithDescription("Acknowledge a pending routing decision (consent, sample collection, rejection) and resume the question flow"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target session ID")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("survey.status",
		mcp.WithDescription("Get session status: position, current question, eligibility and pending routing"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target session ID")),
	)
}
