package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/qadesk/internal/conversation"
	"github.com/kalambet/qadesk/internal/workflow"
)

// MCPDeps holds the controllers the MCP tools drive.
type MCPDeps struct {
	URL     *workflow.Controller[string]
	Text    *workflow.Controller[string]
	Chat    *conversation.Controller
	Version string
}

// NewMCPServer creates an MCP server with all qadesk tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"qadesk",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("qadesk: feed website and text content to a Q&A service, then ask questions about it."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("scrape_website",
			mcp.WithDescription("Ask the Q&A service to scrape a web page and store its content."),
			mcp.WithString("url", mcp.Description("Absolute http(s) URL of the page"), mcp.Required()),
		),
		mcpSubmit(deps.URL, "url"),
	)

	s.AddTool(
		mcp.NewTool("add_text",
			mcp.WithDescription("Store a block of text with the Q&A service."),
			mcp.WithString("content", mcp.Description("The text content to store"), mcp.Required()),
		),
		mcpSubmit(deps.Text, "content"),
	)

	s.AddTool(
		mcp.NewTool("chat",
			mcp.WithDescription("Ask a question about the stored content. The whole conversation so far is sent with it."),
			mcp.WithString("message", mcp.Description("The question to ask"), mcp.Required()),
		),
		mcpChat(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"chat://transcript",
			"Chat Transcript",
			mcp.WithResourceDescription("The conversation so far, oldest message first"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceTranscript(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"workflow://status",
			"Ingestion Status",
			mcp.WithResourceDescription("Status and last result of the website and text ingestion workflows"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStatus(deps),
	)

	return s
}

func mcpSubmit(c *workflow.Controller[string], field string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		input, err := req.RequireString(field)
		if err != nil {
			return mcpError(field + " is required"), nil
		}

		st, err := c.Run(ctx, input)
		if err != nil {
			var verr *workflow.ValidationError
			switch {
			case errors.Is(err, workflow.ErrBusy):
				return mcpError(fmt.Sprintf("%s: a request is already in progress", c.Name())), nil
			case errors.As(err, &verr):
				return mcpError(verr.Error()), nil
			default:
				return mcpError(fmt.Sprintf("%s failed: %v", c.Name(), err)), nil
			}
		}

		if st.Status == workflow.StatusFailed {
			return mcpError(st.Result), nil
		}
		return mcpText(st.Result), nil
	}
}

func mcpChat(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}

		reply, err := deps.Chat.Ask(ctx, message)
		if err != nil {
			switch {
			case errors.Is(err, conversation.ErrBusy):
				return mcpError("chat: a question is already being answered"), nil
			case errors.Is(err, conversation.ErrEmpty):
				return mcpError("message is empty"), nil
			default:
				return mcpError(fmt.Sprintf("chat failed: %v", err)), nil
			}
		}

		if reply.Failed {
			return mcpError(reply.Message.Content), nil
		}
		return mcpText(reply.Message.Content), nil
	}
}

func mcpResourceTranscript(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		var buf bytes.Buffer
		if err := deps.Chat.Export(&buf, conversation.FormatJSON); err != nil {
			return nil, fmt.Errorf("failed to export transcript: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     buf.String(),
			},
		}, nil
	}
}

type workflowStatus struct {
	Status string `json:"status"`
	Result string `json:"result,omitempty"`
}

func mcpResourceStatus(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		statuses := make(map[string]workflowStatus, 2)
		for _, c := range []*workflow.Controller[string]{deps.URL, deps.Text} {
			st := c.State()
			statuses[c.Name()] = workflowStatus{Status: st.Status.String(), Result: st.Result}
		}

		b, err := json.Marshal(statuses)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal status: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
