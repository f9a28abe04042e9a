package assist

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"

	"google.golang.org/genai"

	"odin/internal/metrics"
)

const (
	DefaultVisionModel    = "gemini-3-flash-preview"
	DefaultAssistantModel = "gemini-2.5-flash"
)

const visionPrompt = "Act as a navigation assistant for a blind person. " +
	"Identify all immediate physical obstacles, terrain changes (stairs, curbs), or people. " +
	"For each, give a clear label, approximate distance in meters, and direction as a clock number " +
	"(1-12 where 12 is straight, 3 is right, etc.). Also assign a severity: 'high' for immediate collision, " +
	"'medium' for nearby objects, 'low' for distant path clearers. Output valid JSON array only."

var obstacleSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"label":     {Type: genai.TypeString},
			"distance":  {Type: genai.TypeNumber},
			"direction": {Type: genai.TypeString},
			"severity":  {Type: genai.TypeString, Enum: []string{"low", "medium", "high"}},
		},
		Required: []string{"label", "distance", "direction", "severity"},
	},
}

type GeminiConfig struct {
	APIKey         string
	VisionModel    string
	AssistantModel string
	// HTTPClient carries the proxy transport, nil for the default.
	HTTPClient *http.Client
}

// Gemini implements both Vision and Assistant.
type Gemini struct {
	client         *genai.Client
	visionModel    string
	assistantModel string
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: missing api key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}

	g := &Gemini{
		client:         client,
		visionModel:    cfg.VisionModel,
		assistantModel: cfg.AssistantModel,
	}
	if g.visionModel == "" {
		g.visionModel = DefaultVisionModel
	}
	if g.assistantModel == "" {
		g.assistantModel = DefaultAssistantModel
	}

	return g, nil
}

func (g *Gemini) Analyze(ctx context.Context, jpeg []byte) ([]Obstacle, error) {
	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			genai.NewPartFromBytes(jpeg, "image/jpeg"),
			genai.NewPartFromText(visionPrompt),
		},
	}}

	resp, err := g.client.Models.GenerateContent(ctx, g.visionModel, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   obstacleSchema,
	})
	if err != nil {
		if rateLimited(err) {
			metrics.Collaborator.WithLabelValues("vision", "quota").Inc()
			return nil, quota(err)
		}
		metrics.Collaborator.WithLabelValues("vision", "error").Inc()
		log.Error("Vision analysis failed", "err", err)
		return nil, nil
	}

	obstacles, err := decodeObstacles(resp.Text())
	if err != nil {
		metrics.Collaborator.WithLabelValues("vision", "error").Inc()
		log.Warn("Vision response unreadable", "err", err)
		return nil, nil
	}

	metrics.Collaborator.WithLabelValues("vision", "ok").Inc()
	return obstacles, nil
}

func (g *Gemini) Ask(ctx context.Context, query string, loc *Location) (Answer, error) {
	cfg := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleMaps: &genai.GoogleMaps{}}},
	}
	if loc != nil {
		cfg.ToolConfig = &genai.ToolConfig{
			RetrievalConfig: &genai.RetrievalConfig{
				LatLng: &genai.LatLng{
					Latitude:  genai.Ptr(loc.Lat),
					Longitude: genai.Ptr(loc.Lng),
				},
			},
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.assistantModel, genai.Text(query), cfg)
	if err != nil {
		if rateLimited(err) {
			metrics.Collaborator.WithLabelValues("assistant", "quota").Inc()
			return Answer{}, quota(err)
		}
		metrics.Collaborator.WithLabelValues("assistant", "error").Inc()
		return Answer{}, fmt.Errorf("location query: %w", err)
	}

	metrics.Collaborator.WithLabelValues("assistant", "ok").Inc()
	return Answer{Text: resp.Text(), Grounding: groundingSources(resp)}, nil
}

func groundingSources(resp *genai.GenerateContentResponse) []Source {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	meta := resp.Candidates[0].GroundingMetadata
	if meta == nil {
		return nil
	}

	var out []Source
	for _, chunk := range meta.GroundingChunks {
		switch {
		case chunk == nil:
		case chunk.Maps != nil:
			out = append(out, Source{Title: chunk.Maps.Title, URI: chunk.Maps.URI})
		case chunk.Web != nil:
			out = append(out, Source{Title: chunk.Web.Title, URI: chunk.Web.URI})
		}
	}
	return out
}

// rateLimited prefers the API status over matching the message text.
func rateLimited(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED"
	}
	return IsQuota(err)
}
