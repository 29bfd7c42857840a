package mcpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/lm-mcp-gateway/authn"
	"github.com/jrsteele09/lm-mcp-gateway/mcpserver"
	"github.com/jrsteele09/lm-mcp-gateway/tools"
	"github.com/jrsteele09/lm-mcp-gateway/users"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"
)

type callResult struct {
	Result struct {
		IsError bool `json:"isError"`
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	} `json:"result"`
}

func setupServer(t *testing.T) *server.MCPServer {
	t.Helper()
	backend := tools.BackendFunc(func(ctx context.Context, inv tools.Invocation) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("called " + inv.Tool), nil
	})
	return mcpserver.New("test", tools.NewGate(nil), tools.NewDispatcher(backend, nil))
}

func callTool(t *testing.T, s *server.MCPServer, ctx context.Context, tool string) callResult {
	t.Helper()
	msg := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"` + tool + `","arguments":{}}}`
	resp := s.HandleMessage(ctx, json.RawMessage(msg))
	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var out callResult
	require.NoError(t, json.Unmarshal(raw, &out))
	require.NotEmpty(t, out.Result.Content, string(raw))
	return out
}

func identityContext(scope string) context.Context {
	return authn.WithIdentity(context.Background(), &authn.Identity{
		Principal: &users.Principal{ID: "user-1"},
		Scope:     scope,
		Method:    authn.MethodJWT,
	})
}

func TestServer_ToolCalls(t *testing.T) {
	s := setupServer(t)

	t.Run("authorized call reaches backend", func(t *testing.T) {
		out := callTool(t, s, identityContext("mcp:tools lm:alerts:write"), "acknowledge_alert")
		require.False(t, out.Result.IsError)
		require.Equal(t, "called acknowledge_alert", out.Result.Content[0].Text)
	})

	t.Run("denied call lists missing scopes", func(t *testing.T) {
		out := callTool(t, s, identityContext("mcp:tools lm:alerts:read"), "acknowledge_alert")
		require.True(t, out.Result.IsError)
		require.Contains(t, out.Result.Content[0].Text, "lm:alerts:write")
	})

	t.Run("whoami", func(t *testing.T) {
		out := callTool(t, s, identityContext("mcp:tools"), tools.WhoAmI)
		require.False(t, out.Result.IsError)
		require.Contains(t, out.Result.Content[0].Text, `"user-1"`)
	})
}

func TestServeStdio(t *testing.T) {
	s := setupServer(t)
	identity := &authn.Identity{Principal: users.Anonymous(), Scope: "mcp:tools", Method: authn.MethodOpen}

	inReader, inWriter := io.Pipe()
	outReader, outWriter := io.Pipe()
	defer inWriter.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- mcpserver.ServeStdio(ctx, s, identity, inReader, outWriter)
	}()
	go func() {
		_, _ = io.WriteString(inWriter, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"t","version":"1"}}}`+"\n")
		_, _ = io.WriteString(inWriter, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"whoami","arguments":{}}}`+"\n")
	}()

	var output bytes.Buffer
	decoder := json.NewDecoder(outReader)
	for i := 0; i < 2; i++ {
		var msg json.RawMessage
		require.NoError(t, decoder.Decode(&msg))
		output.Write(msg)
	}
	cancel()
	_ = outReader.Close()
	<-done

	require.Contains(t, output.String(), `\"anonymous\"`)
}

func TestServeStdio_RequiresIdentity(t *testing.T) {
	err := mcpserver.ServeStdio(context.Background(), setupServer(t), nil, strings.NewReader(""), io.Discard)
	require.Error(t, err)
}

func TestStreamableHTTP_RejectsWithoutAuth(t *testing.T) {
	a := authn.NewAuthenticator(authn.Config{StaticToken: "secret"})
	handler := a.Middleware(mcpserver.StreamableHTTP(setupServer(t)))

	r := httptest.NewRequest(http.MethodPost, mcpserver.StreamableEndpoint, strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
}
