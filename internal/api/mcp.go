package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/staffdesk/internal/portal"
	"github.com/kalambet/staffdesk/internal/survey"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Portal  *portal.Store
	Surveys *survey.Service
}

// NewMCPServer creates an MCP server with the portal tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"staffdesk",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("staffdesk: HR portal with vacation requests, objectives, notifications and surveys."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_vacation_requests",
			mcp.WithDescription("List vacation requests, newest first."),
			mcp.WithString("employee_id", mcp.Description("Only requests by this employee")),
			mcp.WithString("status", mcp.Description("Only requests in this status"), mcp.Enum("pending", "approved", "rejected")),
		),
		mcpListVacations(deps),
	)

	s.AddTool(
		mcp.NewTool("submit_vacation_request",
			mcp.WithDescription("Submit a vacation request on behalf of an employee. HR is notified."),
			mcp.WithString("employee_id", mcp.Required()),
			mcp.WithString("employee_name", mcp.Required()),
			mcp.WithString("type", mcp.Required(), mcp.Enum("paid", "unpaid", "sick", "maternity", "paternity")),
			mcp.WithString("start_date", mcp.Description("YYYY-MM-DD"), mcp.Required()),
			mcp.WithString("end_date", mcp.Description("YYYY-MM-DD"), mcp.Required()),
			mcp.WithString("reason", mcp.Required()),
			mcp.WithNumber("days", mcp.Description("Calendar days; computed from the dates when omitted")),
		),
		mcpSubmitVacation(deps),
	)

	s.AddTool(
		mcp.NewTool("decide_vacation_request",
			mcp.WithDescription("Approve or reject a pending vacation request. The employee is notified."),
			mcp.WithString("id", mcp.Required()),
			mcp.WithString("decision", mcp.Required(), mcp.Enum("approve", "reject")),
			mcp.WithString("approver", mcp.Description("Who made the decision"), mcp.Required()),
			mcp.WithString("comments"),
		),
		mcpDecideVacation(deps),
	)

	s.AddTool(
		mcp.NewTool("list_notifications",
			mcp.WithDescription("List notifications visible to a role and user, newest first."),
			mcp.WithString("role", mcp.Enum("admin", "hr", "manager", "employee")),
			mcp.WithString("user_id"),
			mcp.WithBoolean("unread_only"),
		),
		mcpListNotifications(deps),
	)

	s.AddTool(
		mcp.NewTool("portal_stats",
			mcp.WithDescription("Counts of vacation requests, objectives, unread notifications and surveys."),
		),
		mcpPortalStats(deps),
	)

	s.AddTool(
		mcp.NewTool("survey_stats",
			mcp.WithDescription("Per-question statistics and response rate for a survey."),
			mcp.WithString("survey_id", mcp.Required()),
		),
		mcpSurveyStats(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"portal://stats",
			"Portal Statistics",
			mcp.WithResourceDescription("Current portal counters as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStats(deps),
	)

	return s
}

func mcpListVacations(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		list := deps.Portal.VacationRequests(portal.VacationFilter{
			EmployeeID: req.GetString("employee_id", ""),
			Status:     portal.VacationStatus(req.GetString("status", "")),
		})
		return mcpJSON(nonNil(list)), nil
	}
}

func mcpSubmitVacation(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var in portal.NewVacationRequest
		for _, f := range []struct {
			key string
			dst *string
		}{
			{"employee_id", &in.EmployeeID},
			{"employee_name", &in.EmployeeName},
			{"start_date", &in.StartDate},
			{"end_date", &in.EndDate},
			{"reason", &in.Reason},
		} {
			v, err := req.RequireString(f.key)
			if err != nil {
				return mcpError(fmt.Sprintf("%s is required", f.key)), nil
			}
			*f.dst = v
		}
		typ, err := req.RequireString("type")
		if err != nil {
			return mcpError("type is required"), nil
		}
		in.Type = portal.VacationType(typ)
		in.Days = req.GetInt("days", 0)

		created, err := deps.Portal.AddVacationRequest(ctx, in)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to submit: %v", err)), nil
		}
		return mcpJSON(created), nil
	}
}

func mcpDecideVacation(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		approver, err := req.RequireString("approver")
		if err != nil {
			return mcpError("approver is required"), nil
		}
		comments := req.GetString("comments", "")

		var updated portal.VacationRequest
		switch decision := req.GetString("decision", ""); decision {
		case "approve":
			updated, err = deps.Portal.Approve(ctx, id, approver, comments)
		case "reject":
			updated, err = deps.Portal.Reject(ctx, id, approver, comments)
		default:
			return mcpError(fmt.Sprintf("decision must be approve or reject, got %q", decision)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to decide: %v", err)), nil
		}
		return mcpJSON(updated), nil
	}
}

func mcpListNotifications(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		list := deps.Portal.Notifications(portal.NotificationFilter{
			Role:       portal.Role(req.GetString("role", "")),
			UserID:     req.GetString("user_id", ""),
			UnreadOnly: req.GetBool("unread_only", false),
		})
		return mcpJSON(nonNil(list)), nil
	}
}

func mcpPortalStats(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcpJSON(collectStats(Deps{Portal: deps.Portal, Surveys: deps.Surveys})), nil
	}
}

func mcpSurveyStats(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("survey_id")
		if err != nil {
			return mcpError("survey_id is required"), nil
		}
		stats, err := deps.Surveys.Stats(ctx, id)
		if err != nil {
			return mcpError(fmt.Sprintf("survey stats failed: %v", err)), nil
		}
		return mcpJSON(stats), nil
	}
}

func mcpResourceStats(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(collectStats(Deps{Portal: deps.Portal, Surveys: deps.Surveys}))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal stats: %w", err)
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

func mcpJSON(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcpText(string(b))
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
