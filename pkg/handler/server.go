package handler

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/gomcpgo/remote_image_ai/pkg/storage"
)

// NewMCPServer creates an MCP server exposing the handler's tools and the
// cached-image resource template
func (h *ImageHandler) NewMCPServer(name, version string) *server.MCPServer {
	s := server.NewMCPServer(name, version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
	)
	h.Register(s)
	return s
}

// Register adds all tools and the resource template to s
func (h *ImageHandler) Register(s *server.MCPServer) {
	for _, def := range h.ListTools() {
		s.AddTool(mcp.NewToolWithRawSchema(def.Name, def.Description, def.InputSchema), h.mcpTool(def.Name))
	}

	template := mcp.NewResourceTemplate(storage.ResourceTemplate, "Saved image",
		mcp.WithTemplateDescription("Cached bytes of an image in the local library"),
		mcp.WithTemplateMIMEType("image/png"),
	)
	s.AddResourceTemplate(template, h.readImageResource)
}

func (h *ImageHandler) mcpTool(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := h.CallTool(ctx, name, req.GetArguments())
		if err != nil {
			return nil, err
		}
		if res.IsError {
			return mcp.NewToolResultError(res.Text), nil
		}
		return mcp.NewToolResultText(res.Text), nil
	}
}

func (h *ImageHandler) readImageResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	payload, mimeType, err := h.ReadImage(uri)
	if err != nil {
		h.logger.Warn("resource read failed", zap.String("uri", uri), zap.Error(err))
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.BlobResourceContents{URI: uri, MIMEType: mimeType, Blob: payload},
	}, nil
}
