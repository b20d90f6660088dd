// Package mcpserver exposes the tool table as an MCP server over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	appLog "chatcal/internal/log"
	"chatcal/internal/tools"
)

const Name = "chatcal"

// Caller runs a named tool. *tools.Dispatcher implements it.
type Caller interface {
	Call(ctx context.Context, name string, input map[string]any) tools.Result
}

// New registers every tool on a fresh MCP server.
func New(version string, caller Caller) *server.MCPServer {
	s := server.NewMCPServer(Name, version, server.WithToolCapabilities(true))
	for _, t := range Tools() {
		s.AddTool(t, Handler(caller, t.Name))
	}
	return s
}

// Serve speaks JSON-RPC on in/out until ctx is done or in closes.
func Serve(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	appLog.Info("mcp server listening on stdio")
	return server.NewStdioServer(s).Listen(ctx, in, out)
}

// Handler adapts one tool to the MCP handler signature. Tool failures are
// reported as error results, not protocol errors.
func Handler(caller Caller, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)
		res := caller.Call(ctx, name, args)
		switch res.Kind {
		case tools.KindError:
			return mcp.NewToolResultError(res.Error), nil
		case tools.KindPlan:
			data, err := json.MarshalIndent(res.Plan, "", "  ")
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("failed to marshal plan %v", err)), nil
			}
			return mcp.NewToolResultText(string(data)), nil
		default:
			return mcp.NewToolResultText(res.Text), nil
		}
	}
}

// Tools describes the argument schema of every tool.
func Tools() []mcp.Tool {
	return []mcp.Tool{
		mcp.NewTool(tools.AddEvent,
			mcp.WithDescription("Add a calendar event. Dates are YYYY-MM-DD or YYYY-MM-DD HH:MM."),
			mcp.WithString("title", mcp.Required(), mcp.Description("Event title")),
			mcp.WithString("date", mcp.Required(), mcp.Description("YYYY-MM-DD or YYYY-MM-DD HH:MM")),
			mcp.WithString("description", mcp.Description("Optional description")),
			mcp.WithString("end", mcp.Description("Optional end, YYYY-MM-DD HH:MM or a time such as 5pm")),
		),
		mcp.NewTool(tools.ViewEvents,
			mcp.WithDescription("List all events sorted by date."),
		),
		mcp.NewTool(tools.DeleteEvent,
			mcp.WithDescription("Delete every event with the given title (case-insensitive)."),
			mcp.WithString("title", mcp.Required(), mcp.Description("Event title")),
		),
		mcp.NewTool(tools.SummarizeEvents,
			mcp.WithDescription("Summarize upcoming events."),
		),
		mcp.NewTool(tools.HandleMessage,
			mcp.WithDescription("Send a free-text chat message (add, list, delete, summarize, or describe a goal to plan)."),
			mcp.WithString("message", mcp.Required(), mcp.Description("The user's message")),
			mcp.WithString("session_id", mcp.Description("Conversation id; defaults to \"default\"")),
		),
		mcp.NewTool(tools.SetRecurrence,
			mcp.WithDescription("Make the latest event with a title repeat and compute its next due date."),
			mcp.WithString("title", mcp.Required(), mcp.Description("Event title")),
			mcp.WithString("frequency", mcp.Required(), mcp.Description("none, daily, every_other_day, weekly, biweekly, weekdays, monthly, monthly_on_day or custom")),
			mcp.WithNumber("interval", mcp.Description("Step count; day of month for monthly_on_day (default 1)")),
		),
		mcp.NewTool(tools.ResearchAndBreakdown,
			mcp.WithDescription("Break a goal into dated milestones. Returns a plan as JSON."),
			mcp.WithString("goal", mcp.Required(), mcp.Description("What to achieve")),
			mcp.WithString("deadline", mcp.Description("Optional deadline, YYYY-MM-DD")),
		),
		mcp.NewTool(tools.CreateTasks,
			mcp.WithDescription("Create one event per plan milestone."),
			mcp.WithObject("plan", mcp.Required(), mcp.Description("A plan object as returned by research_and_breakdown")),
		),
		mcp.NewTool(tools.ExportCalendar,
			mcp.WithDescription("Export all events as an iCalendar document."),
		),
		mcp.NewTool(tools.ImportCalendar,
			mcp.WithDescription("Import events from an iCalendar document or URL."),
			mcp.WithString("ics", mcp.Description("iCalendar text")),
			mcp.WithString("url", mcp.Description("http(s) URL of an .ics feed")),
		),
	}
}
