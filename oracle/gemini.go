package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when GeminiConfig.Model is empty.
const DefaultGeminiModel = "gemini-2.5-flash"

// ContentGenerator is the part of the genai client the Gemini oracle uses.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiConfig selects the Gemini API (APIKey) or Vertex AI (Project,
// Location).
type GeminiConfig struct {
	APIKey   string
	Project  string
	Location string
	Model    string
}

// Gemini answers with a Gemini model.
type Gemini struct {
	gen   ContentGenerator
	model string
}

// NewGemini creates a genai client for cfg.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.APIKey == "" {
		if cfg.Project == "" {
			return nil, errors.New("oracle/gemini: api key or project required")
		}
		cc = &genai.ClientConfig{Project: cfg.Project, Location: cfg.Location, Backend: genai.BackendVertexAI}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("oracle/gemini: client: %w", err)
	}
	return NewGeminiWith(client.Models, cfg.Model), nil
}

// NewGeminiWith uses gen directly.
func NewGeminiWith(gen ContentGenerator, model string) *Gemini {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{gen: gen, model: model}
}

const dropdownInstruction = `You are a form-filling assistant. Given a dropdown question, a list of available options, and the user's intended value, pick the best matching option from the list.
Pick from the provided options exactly as written, or return "NONE".
Consider semantic equivalence (for example "Citizen" means "Yes" for work authorization) and alternate phrasings.`

var dropdownSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"match":      {Type: genai.TypeString, Description: "exact option text or NONE"},
		"confidence": {Type: genai.TypeString, Enum: []string{"high", "medium", "low"}},
		"reasoning":  {Type: genai.TypeString},
	},
	Required: []string{"match", "confidence"},
}

func (g *Gemini) MatchDropdown(ctx context.Context, req DropdownRequest) (DropdownResult, error) {
	if len(req.Options) == 0 {
		return DropdownResult{}, errors.New("oracle/gemini: options required")
	}
	question := req.Question
	if question == "" {
		question = "Select an option"
	}
	opts, _ := json.Marshal(req.Options)
	prompt := fmt.Sprintf("Question: %q\nAvailable options: %s\nUser's value: %q", question, opts, req.UserValue)
	if req.Context != "" {
		prompt += "\nAdditional context: " + req.Context
	}

	resp, err := g.gen.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(dropdownInstruction, ""),
		Temperature:       genai.Ptr[float32](0.1),
		MaxOutputTokens:   256,
		ResponseMIMEType:  "application/json",
		ResponseSchema:    dropdownSchema,
	})
	if err != nil {
		return DropdownResult{}, fmt.Errorf("oracle/gemini: match dropdown: %w", err)
	}
	var res DropdownResult
	if err := json.Unmarshal([]byte(resp.Text()), &res); err != nil {
		return DropdownResult{}, fmt.Errorf("oracle/gemini: decode: %w", err)
	}
	res.Match = FixMatch(res.Match, req.Options)
	return res, nil
}

func (g *Gemini) AnswerQuestion(ctx context.Context, req QuestionRequest) (AnswerResult, error) {
	if req.Question == "" {
		return AnswerResult{}, errors.New("oracle/gemini: question required")
	}
	profile, _ := json.Marshal(req.UserProfile)
	var sys strings.Builder
	sys.WriteString("You are a professional job applicant answering application questions.\n")
	fmt.Fprintf(&sys, "User profile: %s\n", profile)
	if req.JobDescription != "" {
		fmt.Fprintf(&sys, "Job description (excerpt): %s\n", truncateRunes(req.JobDescription, 2000))
	}
	fmt.Fprintf(&sys, "Answer in %s, concise and professional, in the first person.\n", lengthGuide(req.FieldType))
	if req.MaxLength > 0 {
		fmt.Fprintf(&sys, "Keep the answer under %d characters.\n", req.MaxLength)
	}
	sys.WriteString("Reply with the answer text only, no preamble.")

	tokens := int32(100)
	if req.FieldType == "textarea" {
		tokens = 500
	}
	resp, err := g.gen.GenerateContent(ctx, g.model,
		genai.Text(fmt.Sprintf("Answer this application question: %q", req.Question)),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(sys.String(), ""),
			Temperature:       genai.Ptr[float32](0.7),
			MaxOutputTokens:   tokens,
		})
	if err != nil {
		return AnswerResult{}, fmt.Errorf("oracle/gemini: answer question: %w", err)
	}
	answer := strings.TrimSpace(resp.Text())
	if req.MaxLength > 0 {
		answer = strings.TrimSpace(truncateRunes(answer, req.MaxLength))
	}
	return AnswerResult{Answer: answer, Confidence: "medium"}, nil
}
