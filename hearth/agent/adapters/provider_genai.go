package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/embervale/hearth-agent/hearth/agent/fault"
	ports "github.com/embervale/hearth-agent/hearth/agent/ports"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// GeminiProvider implements the Provider port on the Gemini API. It owns
// the request/response mapping and the classification of API failures into
// the engine's error taxonomy.
type GeminiProvider struct {
	client *genai.Client
	logger zerolog.Logger
}

var _ ports.Provider = (*GeminiProvider)(nil)

// NewGeminiProvider dials the Gemini API with the given key.
func NewGeminiProvider(ctx context.Context, apiKey string, logger zerolog.Logger) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key not configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiProvider{
		client: client,
		logger: logger.With().Str("component", "gemini").Logger(),
	}, nil
}

// Generate issues one model call and classifies the outcome.
func (p *GeminiProvider) Generate(ctx context.Context, req ports.ModelRequest) (*ports.ModelResponse, error) {
	config := &genai.GenerateContentConfig{}
	if req.Temperature != nil {
		config.Temperature = req.Temperature
	}
	if req.CacheName != "" {
		config.CachedContent = req.CacheName
	} else {
		if req.Instruction != "" {
			config.SystemInstruction = genai.NewContentFromText(req.Instruction, genai.RoleUser)
		}
		if len(req.Tools) > 0 {
			decls, err := declarationsFromSpecs(req.Tools)
			if err != nil {
				return nil, fault.Wrap(fault.Internal, err, "invalid tool declaration")
			}
			config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
		}
	}
	if req.ToolMode == ports.ToolModeNone {
		config.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeNone},
		}
	}

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, turnsToContents(req.Turns), config)
	if err != nil {
		return nil, classifyError(err)
	}
	return mapResponse(resp)
}

// CreateCachedContext uploads the static instruction and tool declarations
// as a provider-side cached payload.
func (p *GeminiProvider) CreateCachedContext(ctx context.Context, req ports.CacheRequest) (ports.CacheHandle, error) {
	config := &genai.CreateCachedContentConfig{TTL: req.TTL}
	if req.Instruction != "" {
		config.SystemInstruction = genai.NewContentFromText(req.Instruction, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		decls, err := declarationsFromSpecs(req.Tools)
		if err != nil {
			return ports.CacheHandle{}, fault.Wrap(fault.Internal, err, "invalid tool declaration")
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	cached, err := p.client.Caches.Create(ctx, req.Model, config)
	if err != nil {
		return ports.CacheHandle{}, classifyError(err)
	}
	p.logger.Debug().Str("name", cached.Name).Time("expires", cached.ExpireTime).Msg("cached context created")
	return ports.CacheHandle{Name: cached.Name, Model: req.Model, ExpiresAt: cached.ExpireTime}, nil
}

// turnsToContents converts engine turns to the wire format. Tool-result
// turns ride under the user role, and model-internal reasoning parts are
// never sent back.
func turnsToContents(turns []ports.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		role := "user"
		if turn.Role == ports.RoleModel {
			role = "model"
		}
		parts := partsToGenAI(turn.Parts)
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents
}

func partsToGenAI(parts []ports.Part) []*genai.Part {
	out := make([]*genai.Part, 0, len(parts))
	for _, p := range parts {
		switch {
		case p.Thought:
			continue
		case p.Call != nil:
			out = append(out, &genai.Part{FunctionCall: &genai.FunctionCall{
				ID:   p.Call.ID,
				Name: p.Call.Name,
				Args: p.Call.Args,
			}})
		case p.Result != nil:
			out = append(out, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       p.Result.ID,
				Name:     p.Result.Name,
				Response: resultPayload(p.Result),
			}})
		case p.Binary != nil:
			out = append(out, &genai.Part{InlineData: &genai.Blob{
				MIMEType: p.Binary.MIMEType,
				Data:     p.Binary.Data,
			}})
		case p.Text != "":
			out = append(out, &genai.Part{Text: p.Text})
		}
	}
	return out
}

// resultPayload flattens a tool result into the function-response map the
// model reads.
func resultPayload(r *ports.ToolResult) map[string]any {
	payload := make(map[string]any, len(r.Payload)+3)
	for k, v := range r.Payload {
		payload[k] = v
	}
	payload["success"] = r.Success
	if r.Error != "" {
		payload["error"] = r.Error
	}
	if r.Diagnostic != "" {
		payload["diagnostic"] = r.Diagnostic
	}
	return payload
}

func mapResponse(resp *genai.GenerateContentResponse) (*ports.ModelResponse, error) {
	out := &ports.ModelResponse{Finish: ports.FinishStop}
	if resp.UsageMetadata != nil {
		out.Usage = ports.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			CachedTokens:     int(resp.UsageMetadata.CachedContentTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	if len(resp.Candidates) == 0 {
		// Prompt-level safety blocks arrive without any candidate.
		if resp.PromptFeedback != nil {
			out.Finish = ports.FinishFiltered
			out.Turn = ports.Turn{Role: ports.RoleModel, CreatedAt: time.Now()}
			return out, nil
		}
		return nil, fault.New(fault.Provider, "response carried no candidates")
	}

	candidate := resp.Candidates[0]
	out.Finish = mapFinishReason(candidate.FinishReason)
	out.Turn = contentToTurn(candidate.Content)
	out.Turn.CreatedAt = time.Now()
	return out, nil
}

func mapFinishReason(reason genai.FinishReason) ports.FinishReason {
	switch reason {
	case genai.FinishReasonMaxTokens:
		return ports.FinishTruncated
	case genai.FinishReasonSafety, genai.FinishReasonRecitation, genai.FinishReasonBlocklist,
		genai.FinishReasonProhibitedContent, genai.FinishReasonSPII, genai.FinishReasonImageSafety:
		return ports.FinishFiltered
	case genai.FinishReasonMalformedFunctionCall:
		return ports.FinishMalformed
	default:
		return ports.FinishStop
	}
}

func contentToTurn(content *genai.Content) ports.Turn {
	turn := ports.Turn{Role: ports.RoleModel}
	if content == nil {
		return turn
	}
	for _, part := range content.Parts {
		if part == nil {
			continue
		}
		switch {
		case part.FunctionCall != nil:
			turn.Parts = append(turn.Parts, ports.CallPart(ports.ToolCall{
				ID:   part.FunctionCall.ID,
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			}))
		case part.Text != "":
			turn.Parts = append(turn.Parts, ports.Part{Text: part.Text, Thought: part.Thought})
		}
	}
	return turn
}

// classifyError maps API failures onto the engine taxonomy. 429 responses
// become retryable rate-limit faults carrying the server-suggested wait.
func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests {
			f := fault.Wrap(fault.RateLimited, err, "quota exhausted")
			if wait, ok := retryDelayOf(apiErr); ok {
				f.SuggestedWait = wait
			}
			return f
		}
		return fault.Wrap(fault.Provider, err, "model call rejected")
	}
	return fault.Wrap(fault.Provider, err, "model call failed")
}

// retryDelayOf extracts the RetryInfo detail from a quota error, when the
// server attached one.
func retryDelayOf(apiErr genai.APIError) (time.Duration, bool) {
	for _, detail := range apiErr.Details {
		kind, _ := detail["@type"].(string)
		if !strings.HasSuffix(kind, "RetryInfo") {
			continue
		}
		raw, _ := detail["retryDelay"].(string)
		if raw == "" {
			continue
		}
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d, true
		}
	}
	return 0, false
}

func declarationsFromSpecs(specs []ports.ToolSpec) ([]*genai.FunctionDeclaration, error) {
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		decl := &genai.FunctionDeclaration{Name: spec.Name, Description: spec.Description}
		if len(spec.InputSchema) > 0 {
			schema, err := schemaFromJSON(spec.InputSchema)
			if err != nil {
				return nil, fmt.Errorf("tool %s: %w", spec.Name, err)
			}
			decl.Parameters = schema
		}
		decls = append(decls, decl)
	}
	return decls, nil
}

type jsonSchema struct {
	Type        string                     `json:"type"`
	Format      string                     `json:"format"`
	Description string                     `json:"description"`
	Enum        []string                   `json:"enum"`
	Properties  map[string]json.RawMessage `json:"properties"`
	Required    []string                   `json:"required"`
	Items       json.RawMessage            `json:"items"`
}

// schemaFromJSON converts the subset of JSON schema used by tool
// declarations into the wire schema type.
func schemaFromJSON(raw []byte) (*genai.Schema, error) {
	var s jsonSchema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("unmarshaling schema: %w", err)
	}

	out := &genai.Schema{
		Format:      s.Format,
		Description: s.Description,
		Enum:        s.Enum,
		Required:    s.Required,
	}
	switch s.Type {
	case "object":
		out.Type = genai.TypeObject
	case "string":
		out.Type = genai.TypeString
	case "number":
		out.Type = genai.TypeNumber
	case "integer":
		out.Type = genai.TypeInteger
	case "boolean":
		out.Type = genai.TypeBoolean
	case "array":
		out.Type = genai.TypeArray
	default:
		return nil, fmt.Errorf("unsupported schema type %q", s.Type)
	}

	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, rawProp := range s.Properties {
			prop, err := schemaFromJSON(rawProp)
			if err != nil {
				return nil, fmt.Errorf("property %s: %w", name, err)
			}
			out.Properties[name] = prop
		}
	}
	if len(s.Items) > 0 {
		items, err := schemaFromJSON(s.Items)
		if err != nil {
			return nil, fmt.Errorf("items: %w", err)
		}
		out.Items = items
	}
	return out, nil
}
