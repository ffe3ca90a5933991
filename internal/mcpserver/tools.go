// Package mcpserver registers MCP tools that expose hangar queries.
// It adapts the credential store, the asset engine, and the static data
// lookups to the MCP SDK's tool handler interface. All tools are read-only
// over the API; get_assets may trigger a synchronization.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/alexjbarnes/hangar-sync/internal/assets"
	"github.com/alexjbarnes/hangar-sync/internal/credstore"
	"github.com/alexjbarnes/hangar-sync/internal/models"
	"github.com/alexjbarnes/hangar-sync/internal/sde"
)

// RegisterTools adds all hangar tools to the given MCP server.
func RegisterTools(server *mcp.Server, creds *credstore.Store, svc *assets.Service, data *sde.Data) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_characters",
		Description: "List every authenticated character with scopes and token expiry. No secrets. Use this first to find character IDs for the other tools.",
	}, listCharactersHandler(creds))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_assets",
		Description: "Get a character's assets as a location-grouped containment hierarchy (station/system/structure, security band, items nested inside ships and containers). Serves the local cache when fresh; set force_refresh to resynchronize from the API.",
	}, getAssetsHandler(creds, svc))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_types",
		Description: "Search item types by name, case-insensitive. Returns type ID, name, description, volume, and mass from the static data extracts.",
	}, searchTypesHandler(data))
}

// --- Input types ---
// The MCP SDK infers JSON schema from these struct types via jsonschema tags.

// ListCharactersInput has no parameters.
type ListCharactersInput struct{}

// GetAssetsInput holds parameters for get_assets.
type GetAssetsInput struct {
	CharacterID  int64 `json:"character_id,omitempty" jsonschema:"character to query, defaults to the selected character"`
	ForceRefresh bool  `json:"force_refresh,omitempty" jsonschema:"bypass the cache freshness window and resynchronize"`
}

// SearchTypesInput holds parameters for search_types.
type SearchTypesInput struct {
	Query      string `json:"query" jsonschema:"required,name fragment to search for"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"maximum number of results, defaults to 20"`
}

// --- Result types ---

// ListCharactersResult wraps the character summaries.
type ListCharactersResult struct {
	Characters []models.CredentialSummary `json:"characters"`
	Selected   int64                      `json:"selected,omitempty"`
}

// GetAssetsResult wraps the resolved hierarchy.
type GetAssetsResult struct {
	CharacterID int64                  `json:"character_id"`
	Locations   []models.LocationGroup `json:"locations"`
}

// SearchTypesResult wraps the type matches.
type SearchTypesResult struct {
	Types []sde.TypeInfo `json:"types"`
}

// --- Handlers ---

func listCharactersHandler(creds *credstore.Store) mcp.ToolHandlerFor[ListCharactersInput, *ListCharactersResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ ListCharactersInput) (*mcp.CallToolResult, *ListCharactersResult, error) {
		summaries, err := creds.List()
		if err != nil {
			return nil, nil, err
		}

		selected, err := creds.Selected()
		if err != nil {
			return nil, nil, err
		}

		result := &ListCharactersResult{Characters: summaries, Selected: selected}

		return textResult(result), result, nil
	}
}

func getAssetsHandler(creds *credstore.Store, svc *assets.Service) mcp.ToolHandlerFor[GetAssetsInput, *GetAssetsResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input GetAssetsInput) (*mcp.CallToolResult, *GetAssetsResult, error) {
		characterID := input.CharacterID
		if characterID == 0 {
			selected, err := creds.Selected()
			if err != nil {
				return nil, nil, err
			}

			if selected == 0 {
				return nil, nil, fmt.Errorf("no character selected; pass character_id or log in first")
			}

			characterID = selected
		}

		locations, err := svc.Hangar(ctx, characterID, input.ForceRefresh)
		if err != nil {
			return nil, nil, err
		}

		result := &GetAssetsResult{CharacterID: characterID, Locations: locations}

		return textResult(result), result, nil
	}
}

func searchTypesHandler(data *sde.Data) mcp.ToolHandlerFor[SearchTypesInput, *SearchTypesResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input SearchTypesInput) (*mcp.CallToolResult, *SearchTypesResult, error) {
		if input.Query == "" {
			return nil, nil, fmt.Errorf("query is required")
		}

		result := &SearchTypesResult{Types: data.SearchTypes(input.Query, input.MaxResults)}

		return textResult(result), result, nil
	}
}

// textResult builds a CallToolResult with JSON text content from any value.
// This provides the unstructured content alongside the structured output
// that the SDK populates automatically.
func textResult(v interface{}) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("error marshaling result: %v", err)}},
			IsError: true,
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
