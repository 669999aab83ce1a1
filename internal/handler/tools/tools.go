// Package tools exposes the messaging operations as a structured tool-call
// surface for the agent collaborators, speaking MCP over streamable HTTP.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agenthall/agenthall/backend/internal/model/message"
	"github.com/agenthall/agenthall/backend/internal/service/bus"
)

type getLatestMessagesArgs struct {
	Limit   *int    `json:"limit,omitempty"`
	Channel *string `json:"channel,omitempty"`
}

type sendMessageArgs struct {
	Sender     string  `json:"sender"`
	SenderType string  `json:"senderType"`
	Content    string  `json:"content"`
	Channel    *string `json:"channel,omitempty"`
}

// Handler builds the MCP endpoint backed by the message bus. The two tools
// mirror the HTTP message operations exactly; agents simply reach them
// through tool calls instead of REST.
func Handler(b *bus.Service, version string) http.Handler {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "agenthall-messaging",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_latest_messages",
		Description: "Get the latest messages from a channel (default: public)",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args getLatestMessagesArgs) (*mcp.CallToolResult, any, error) {
		limit := 50
		if args.Limit != nil && *args.Limit > 0 {
			limit = *args.Limit
		}
		channel := message.DefaultChannel
		if args.Channel != nil && *args.Channel != "" {
			channel = *args.Channel
		}

		msgs, err := b.Latest(ctx, limit, channel)
		if err != nil {
			return nil, nil, err
		}
		return textResult(msgs)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "send_message",
		Description: "Send a message to a channel (default: public)",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args sendMessageArgs) (*mcp.CallToolResult, any, error) {
		channel := message.DefaultChannel
		if args.Channel != nil && *args.Channel != "" {
			channel = *args.Channel
		}

		msg, err := b.Send(ctx, args.Sender, message.SenderType(args.SenderType), args.Content, channel)
		if err != nil {
			return nil, nil, err
		}
		return textResult(msg)
	})

	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)
}

func textResult(payload any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encode tool result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}
