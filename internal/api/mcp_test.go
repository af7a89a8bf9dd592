package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/qadesk/internal/conversation"
	"github.com/kalambet/qadesk/internal/service"
	"github.com/kalambet/qadesk/internal/workflow"
)

// --- mocks ---

type fakeSender struct {
	mu        sync.Mutex
	responses map[string]service.Response
	errs      map[string]error
	payloads  map[string]any
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		responses: make(map[string]service.Response),
		errs:      make(map[string]error),
		payloads:  make(map[string]any),
	}
}

func (f *fakeSender) Send(_ context.Context, endpoint string, payload any) (service.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads[endpoint] = payload
	if err := f.errs[endpoint]; err != nil {
		return service.Response{}, err
	}
	resp, ok := f.responses[endpoint]
	if !ok {
		resp = service.Response{StatusCode: 200, Body: map[string]any{}}
	}
	return resp, nil
}

func okBody(fields map[string]any) service.Response {
	return service.Response{StatusCode: 200, Body: fields}
}

// --- helpers ---

func newTestMCPDeps(sender *fakeSender) MCPDeps {
	return MCPDeps{
		URL:  workflow.NewURLIngestion(sender),
		Text: workflow.NewTextIngestion(sender),
		Chat: conversation.New(sender),
	}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "no content in result")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func refused(endpoint string) error {
	return &service.NetworkError{Endpoint: endpoint, Op: service.OpSend, Err: errors.New("connection refused")}
}

// --- scrape_website / add_text ---

func TestMCPScrapeWebsite_Success(t *testing.T) {
	sender := newFakeSender()
	sender.responses[service.EndpointScrapeWebsite] = okBody(map[string]any{"message": "Scraped 3 chunks"})
	deps := newTestMCPDeps(sender)

	result, err := mcpSubmit(deps.URL, "url")(context.Background(),
		makeCallToolRequest("scrape_website", map[string]interface{}{"url": "https://example.com"}))
	require.NoError(t, err)

	assert.False(t, result.IsError)
	assert.Equal(t, "Scraped 3 chunks", toolText(t, result))
	assert.Equal(t, map[string]string{"url": "https://example.com"}, sender.payloads[service.EndpointScrapeWebsite])
}

func TestMCPScrapeWebsite_InvalidURL(t *testing.T) {
	sender := newFakeSender()
	deps := newTestMCPDeps(sender)

	result, err := mcpSubmit(deps.URL, "url")(context.Background(),
		makeCallToolRequest("scrape_website", map[string]interface{}{"url": "ftp://example.com"}))
	require.NoError(t, err)

	assert.True(t, result.IsError)
	assert.Contains(t, toolText(t, result), "invalid input")
	assert.Empty(t, sender.payloads, "invalid input must not be sent")
	assert.Equal(t, workflow.StatusIdle, deps.URL.State().Status)
}

func TestMCPScrapeWebsite_NetworkError(t *testing.T) {
	sender := newFakeSender()
	sender.errs[service.EndpointScrapeWebsite] = refused(service.EndpointScrapeWebsite)
	deps := newTestMCPDeps(sender)

	result, err := mcpSubmit(deps.URL, "url")(context.Background(),
		makeCallToolRequest("scrape_website", map[string]interface{}{"url": "https://example.com"}))
	require.NoError(t, err)

	assert.True(t, result.IsError)
	assert.Equal(t, workflow.FailurePrefix+"connection refused", toolText(t, result))
}

func TestMCPAddText_DefaultMessage(t *testing.T) {
	sender := newFakeSender()
	deps := newTestMCPDeps(sender)

	result, err := mcpSubmit(deps.Text, "content")(context.Background(),
		makeCallToolRequest("add_text", map[string]interface{}{"content": "We open at nine."}))
	require.NoError(t, err)

	assert.False(t, result.IsError)
	assert.Equal(t, workflow.DefaultTextMessage, toolText(t, result))
}

func TestMCPAddText_MissingArgument(t *testing.T) {
	deps := newTestMCPDeps(newFakeSender())

	result, err := mcpSubmit(deps.Text, "content")(context.Background(),
		makeCallToolRequest("add_text", map[string]interface{}{}))
	require.NoError(t, err)

	assert.True(t, result.IsError)
	assert.Equal(t, "content is required", toolText(t, result))
}

// --- chat ---

func TestMCPChat_Answer(t *testing.T) {
	sender := newFakeSender()
	sender.responses[service.EndpointChat] = okBody(map[string]any{"answer": "We open at nine."})
	deps := newTestMCPDeps(sender)

	result, err := mcpChat(deps)(context.Background(),
		makeCallToolRequest("chat", map[string]interface{}{"message": "When do you open?"}))
	require.NoError(t, err)

	assert.False(t, result.IsError)
	assert.Equal(t, "We open at nine.", toolText(t, result))
	assert.Equal(t, 3, deps.Chat.Len())
}

func TestMCPChat_NetworkError(t *testing.T) {
	sender := newFakeSender()
	sender.errs[service.EndpointChat] = refused(service.EndpointChat)
	deps := newTestMCPDeps(sender)

	result, err := mcpChat(deps)(context.Background(),
		makeCallToolRequest("chat", map[string]interface{}{"message": "Hello?"}))
	require.NoError(t, err)

	assert.True(t, result.IsError)
	assert.True(t, strings.HasPrefix(toolText(t, result), conversation.FailurePrefix))
	assert.Equal(t, 3, deps.Chat.Len(), "a failed turn still records a reply")
}

func TestMCPChat_AnswerWithFailureWording(t *testing.T) {
	sender := newFakeSender()
	sender.responses[service.EndpointChat] = okBody(map[string]any{"answer": conversation.FailurePrefix + "means the card was declined."})
	deps := newTestMCPDeps(sender)

	result, err := mcpChat(deps)(context.Background(),
		makeCallToolRequest("chat", map[string]interface{}{"message": "What does 'Request failed' mean?"}))
	require.NoError(t, err)

	assert.False(t, result.IsError)
	assert.Equal(t, conversation.FailurePrefix+"means the card was declined.", toolText(t, result))
}

// heldChatSender answers each question with "A:" and the question; questions
// in hold block until their channel is closed.
type heldChatSender struct {
	started chan string
	hold    map[string]chan struct{}
}

func (h *heldChatSender) Send(_ context.Context, _ string, payload any) (service.Response, error) {
	b, _ := json.Marshal(payload)
	var req struct {
		Messages []conversation.Message `json:"messages"`
	}
	json.Unmarshal(b, &req)
	q := req.Messages[len(req.Messages)-1].Content
	h.started <- q
	if gate, ok := h.hold[q]; ok {
		<-gate
	}
	return okBody(map[string]any{"answer": "A:" + q}), nil
}

func TestMCPChat_ConcurrentCallersGetOwnAnswer(t *testing.T) {
	sender := &heldChatSender{
		started: make(chan string, 2),
		hold:    map[string]chan struct{}{"q2 from another client": make(chan struct{})},
	}

	var chat *conversation.Controller
	done := make(chan error, 1)
	var once sync.Once
	chat = conversation.New(sender, conversation.WithObserver(func(s conversation.State) {
		if s.Status != workflow.StatusIdle {
			return
		}
		once.Do(func() {
			go func() { done <- chat.Submit(context.Background(), "q2 from another client") }()
			for q := range sender.started {
				if q == "q2 from another client" {
					return
				}
			}
		})
	}))

	result, err := mcpChat(MCPDeps{Chat: chat})(context.Background(),
		makeCallToolRequest("chat", map[string]interface{}{"message": "q1"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "A:q1", toolText(t, result))

	close(sender.hold["q2 from another client"])
	require.NoError(t, <-done)
}

func TestMCPChat_BlankMessage(t *testing.T) {
	sender := newFakeSender()
	deps := newTestMCPDeps(sender)

	result, err := mcpChat(deps)(context.Background(),
		makeCallToolRequest("chat", map[string]interface{}{"message": "   "}))
	require.NoError(t, err)

	assert.True(t, result.IsError)
	assert.Equal(t, 1, deps.Chat.Len())
	assert.Empty(t, sender.payloads)
}

// --- resources ---

func TestMCPResourceTranscript(t *testing.T) {
	sender := newFakeSender()
	sender.responses[service.EndpointChat] = okBody(map[string]any{"answer": "Yes."})
	deps := newTestMCPDeps(sender)
	require.NoError(t, deps.Chat.Submit(context.Background(), "Is parking free?"))

	contents, err := mcpResourceTranscript(deps)(context.Background(), makeReadResourceRequest("chat://transcript"))
	require.NoError(t, err)
	require.Len(t, contents, 1)

	tc, ok := contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, "chat://transcript", tc.URI)

	var doc struct {
		Messages []conversation.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal([]byte(tc.Text), &doc))
	require.Len(t, doc.Messages, 3)
	assert.Equal(t, conversation.Message{Role: conversation.RoleUser, Content: "Is parking free?"}, doc.Messages[1])
	assert.Equal(t, conversation.Message{Role: conversation.RoleAssistant, Content: "Yes."}, doc.Messages[2])
}

func TestMCPResourceStatus(t *testing.T) {
	sender := newFakeSender()
	sender.errs[service.EndpointAddText] = refused(service.EndpointAddText)
	deps := newTestMCPDeps(sender)
	require.NoError(t, deps.Text.Submit(context.Background(), "some text"))

	contents, err := mcpResourceStatus(deps)(context.Background(), makeReadResourceRequest("workflow://status"))
	require.NoError(t, err)
	require.Len(t, contents, 1)

	tc, ok := contents[0].(mcp.TextResourceContents)
	require.True(t, ok)

	var statuses map[string]workflowStatus
	require.NoError(t, json.Unmarshal([]byte(tc.Text), &statuses))
	assert.Equal(t, workflowStatus{Status: workflow.StatusIdle.String()}, statuses[workflow.URLIngestion.Name])
	assert.Equal(t, workflow.StatusFailed.String(), statuses[workflow.TextIngestion.Name].Status)
	assert.Contains(t, statuses[workflow.TextIngestion.Name].Result, "connection refused")
}

func TestNewMCPServer_Registers(t *testing.T) {
	s := NewMCPServer(newTestMCPDeps(newFakeSender()))
	require.NotNil(t, s)
}
