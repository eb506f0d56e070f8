package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// statsResponse mirrors the adminserver /stats envelope.
type statsResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Browsers  int            `json:"browsers"`
		TabCounts map[string]int `json:"tab_counts"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// controlResponse mirrors the adminserver /control/:reqid envelope.
type controlResponse struct {
	Success bool `json:"success"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	adminURL := os.Getenv("DRIVER_ADMIN_URL")
	if adminURL == "" {
		adminURL = "http://127.0.0.1:9021"
	}

	s := server.NewMCPServer(
		"driverctl",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	statusTool := mcp.NewTool("driver_status",
		mcp.WithDescription("Report the number of browsers owned by a running driver process and their tab counts, keyed by request id."),
	)
	s.AddTool(statusTool, handleStatus(adminURL))

	pauseTool := mcp.NewTool("driver_pause",
		mcp.WithDescription("Send the stop command for reqid. A single-browser driver pauses its behavior tabs (crawler tabs are unaffected); a multi-browser driver gracefully shuts that browser down."),
		mcp.WithString("reqid",
			mcp.Required(),
			mcp.Description("The request id of the browser to pause"),
		),
	)
	s.AddTool(pauseTool, handleControl(adminURL, "stop"))

	resumeTool := mcp.NewTool("driver_resume",
		mcp.WithDescription("Send the start command for reqid. A single-browser driver resumes its behavior tabs, restarting from the current page if the URL changed while paused; a multi-browser driver adds a browser for reqid."),
		mcp.WithString("reqid",
			mcp.Required(),
			mcp.Description("The request id of the browser to resume"),
		),
	)
	s.AddTool(resumeTool, handleControl(adminURL, "start"))

	shutdownTool := mcp.NewTool("driver_shutdown",
		mcp.WithDescription("Send the shutdown command for reqid, which initiates a graceful shutdown of the whole driver process listening for it."),
		mcp.WithString("reqid",
			mcp.Required(),
			mcp.Description("The request id of the browser to shut down"),
		),
	)
	s.AddTool(shutdownTool, handleControl(adminURL, "shutdown"))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleStatus(adminURL string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 10 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, adminURL+"/stats", nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to create request: %v", err)), nil
		}

		resp, err := client.Do(req)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("status request failed: %v", err)), nil
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read response: %v", err)), nil
		}

		var out statsResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if !out.Success {
			errMsg := "status request failed"
			if out.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", out.Error.Code, out.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		result := fmt.Sprintf("Browsers: %d\n", out.Data.Browsers)
		for reqID, tabs := range out.Data.TabCounts {
			result += fmt.Sprintf("  %s: %d tabs\n", reqID, tabs)
		}
		return mcp.NewToolResultText(result), nil
	}
}

func handleControl(adminURL, cmd string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 10 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		reqID, err := request.RequireString("reqid")
		if err != nil {
			return mcp.NewToolResultError("reqid is required"), nil
		}

		payload, err := json.Marshal(map[string]string{"cmd": cmd})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal request: %v", err)), nil
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, adminURL+"/control/"+reqID, bytes.NewReader(payload))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to create request: %v", err)), nil
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(httpReq)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("control request failed: %v", err)), nil
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read response: %v", err)), nil
		}

		var out controlResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if !out.Success {
			errMsg := fmt.Sprintf("%s command failed", cmd)
			if out.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", out.Error.Code, out.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("%s command sent to %s", cmd, reqID)), nil
	}
}
