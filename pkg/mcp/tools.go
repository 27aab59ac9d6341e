package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/stepwise/internal/diagram"
	"github.com/rendis/stepwise/internal/loader"
	"github.com/rendis/stepwise/internal/logging"
	"github.com/rendis/stepwise/internal/store"
	"github.com/rendis/stepwise/internal/validation"
	"github.com/rendis/stepwise/pkg/schema"
)

// --- Tool definitions ---

func runTool() mcp.Tool {
	return mcp.NewTool("stepwise.run",
		mcp.WithDescription("Run a workflow file to completion and return its execution record"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Workflow file, relative to the workflows directory")),
		mcp.WithObject("vars", mcp.Description("Initial variables for the run")),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("stepwise.validate",
		mcp.WithDescription("Validate a workflow file without running it"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Workflow file, relative to the workflows directory")),
	)
}

func historyTool() mcp.Tool {
	return mcp.NewTool("stepwise.history",
		mcp.WithDescription("List past runs, or show one run's full record"),
		mcp.WithString("run_id", mcp.Description("Show this run instead of listing")),
		mcp.WithString("workflow", mcp.Description("Only runs of this workflow name")),
		mcp.WithString("status", mcp.Enum("running", "completed", "error", "cancelled"), mcp.Description("Only runs with this status")),
		mcp.WithNumber("limit", mcp.Description("Maximum runs to list (default 20)")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("stepwise.diagram",
		mcp.WithDescription("Draw a workflow as Mermaid, ASCII art or a base64 PNG, optionally coloured by a run's step statuses"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Workflow file, relative to the workflows directory")),
		mcp.WithString("run_id", mcp.Description("Overlay the statuses of this run")),
		mcp.WithString("format", mcp.Enum("mermaid", "ascii", "image"), mcp.Description("Output format (default mermaid)")),
	)
}

// --- Handlers ---

func (s *Server) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.runner == nil {
		return mcp.NewToolResultError("runner not configured"), nil
	}
	ref, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("path is required"), nil
	}
	path, err := s.workflows.Path(ref)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	vars := mcp.ParseStringMap(req, "vars", nil)

	runID := uuid.New().String()
	ctx = logging.WithRunID(ctx, runID)
	if s.notifier != nil {
		stop := s.notifier.Follow(ctx, runID)
		defer stop()
	}

	rec, runErr := s.runner.RunFile(ctx, path, vars)
	if rec == nil {
		msg := "run failed"
		if runErr != nil {
			msg = fmt.Sprintf("run failed: %v", runErr)
		}
		return mcp.NewToolResultError(msg), nil
	}
	// a failed or cancelled run is still a result; its error is in the record
	return marshalResult(rec)
}

func (s *Server) handleValidate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("path is required"), nil
	}
	doc, err := s.load(ref)
	if err != nil {
		return marshalResult(map[string]any{
			"valid":  false,
			"errors": []schema.ValidationIssue{{Path: "/", Code: codeOr(err), Message: err.Error(), Severity: schema.SeverityError}},
		})
	}

	var result *schema.ValidationResult
	if s.validator != nil {
		result = s.validator.ValidateDocument(doc.Raw, doc.Workflow)
	} else {
		result = validation.Validate(doc.Workflow)
	}
	return marshalResult(map[string]any{
		"valid":    result.Valid(),
		"workflow": doc.Workflow.Name,
		"errors":   result.Errors,
		"warnings": result.Warnings,
	})
}

func (s *Server) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("history store not configured"), nil
	}
	if runID := req.GetString("run_id", ""); runID != "" {
		rec, err := s.store.GetRecord(ctx, runID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("run lookup failed: %v", err)), nil
		}
		return marshalResult(rec)
	}

	filter := store.RecordFilter{
		WorkflowName: req.GetString("workflow", ""),
		Limit:        req.GetInt("limit", 20),
	}
	if st := req.GetString("status", ""); st != "" {
		status := schema.RunStatus(st)
		filter.Status = &status
	}
	runs, err := s.store.ListRecords(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list runs failed: %v", err)), nil
	}
	if runs == nil {
		runs = []*store.RecordSummary{}
	}
	return marshalResult(map[string]any{"runs": runs})
}

func (s *Server) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("path is required"), nil
	}
	format := req.GetString("format", "mermaid")
	if format != "ascii" && format != "mermaid" && format != "image" {
		return mcp.NewToolResultError("format must be mermaid, ascii, or image"), nil
	}

	doc, err := s.load(ref)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var rec *schema.ExecutionRecord
	if runID := req.GetString("run_id", ""); runID != "" {
		if s.store == nil {
			return mcp.NewToolResultError("history store not configured"), nil
		}
		rec, err = s.store.GetRecord(ctx, runID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("run lookup failed: %v", err)), nil
		}
	}

	model, err := diagram.Build(doc.Workflow, rec)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram build failed: %v", err)), nil
	}

	switch format {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "image":
		png, imgErr := diagram.RenderImage(ctx, model)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		return mcp.NewToolResultImage("workflow diagram", base64.StdEncoding.EncodeToString(png), "image/png"), nil
	default:
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	}
}

// --- Helpers ---

func (s *Server) load(ref string) (*loader.Document, error) {
	path, err := s.workflows.Path(ref)
	if err != nil {
		return nil, err
	}
	return loader.LoadFile(path)
}

func codeOr(err error) string {
	if code := schema.CodeOf(err); code != "" {
		return code
	}
	return schema.ErrCodeValidation
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
