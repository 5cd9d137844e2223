package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// nerSystemPrompt instructs the model to emit nothing but entity JSON.
// The label set follows the usual NER conventions so any instruction-tuned
// model can be dropped in.
const nerSystemPrompt = `You are a named-entity recognizer. Extract named entities from the user's text and respond with a JSON object of the form {"entities":[{"text":"...","label":"..."}]}. Labels: PERSON, ORG, GPE, LOC, DATE, PRODUCT, WORK_OF_ART. Copy entity text verbatim from the input. Respond with JSON only.`

// nerLabelMap translates model labels to PII types with the confidence the
// statistical layer has earned for each: person and organization spans are
// reliable, locations and dates much less so (most dates are not birthdays).
var nerLabelMap = map[string]struct {
	typ  PIIType
	conf float64
}{
	"PERSON":      {TypePerson, 0.90},
	"ORG":         {TypeOrganization, 0.85},
	"GPE":         {TypeAddress, 0.60},
	"LOC":         {TypeAddress, 0.60},
	"DATE":        {TypeDateOfBirth, 0.50},
	"PRODUCT":     {TypeProject, 0.80},
	"WORK_OF_ART": {TypeProject, 0.75},
}

// nerFalsePositives are short generic words models regularly mislabel as
// entities in business documents.
var nerFalsePositives = toSet([]string{
	"ip", "ssn", "api", "url", "email", "phone", "address", "client",
	"contact", "team", "project", "internal", "slack", "channel",
	"employee", "corporate", "card", "best", "regards", "from", "to",
	"cc", "date", "summary", "executive", "technical", "details",
	"confidential", "notes", "information", "members",
})

// NERDetector is the optional statistical named-entity detector. It calls
// an OpenAI-compatible chat endpoint (a local Ollama instance by default),
// so inference is CPU/GPU-bound on the serving side and the call blocks
// until the model answers or ctx is cancelled. Failures are isolated by
// the engine: the layer's contribution is dropped for the current call.
type NERDetector struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
}

// NewNERDetector creates a detector against an OpenAI-compatible endpoint.
// baseURL may be empty to use the platform default; apiKey may be empty
// for local serving. Calls are rate-limited to keep a shared inference
// box responsive.
func NewNERDetector(baseURL, apiKey, model string) *NERDetector {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &NERDetector{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(2), 2),
	}
}

func (d *NERDetector) Name() string { return "ner" }

type nerResponse struct {
	Entities []nerEntity `json:"entities"`
}

type nerEntity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

func (d *NERDetector) Detect(ctx context.Context, text string) ([]Match, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("ner: rate limiter: %w", err)
	}

	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       d.model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: nerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ner: inference: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("ner: empty completion")
	}

	var parsed nerResponse
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return nil, fmt.Errorf("ner: parsing entities: %w", err)
	}

	var matches []Match
	for _, ent := range parsed.Entities {
		mapping, ok := nerLabelMap[strings.ToUpper(ent.Label)]
		if !ok {
			continue
		}
		value := strings.TrimSpace(ent.Text)
		if len(value) < 2 || nerFalsePositives[strings.ToLower(value)] {
			continue
		}

		// The model reports values, not offsets; every literal occurrence
		// in the text becomes a span.
		for _, start := range allOccurrences(text, value) {
			matches = append(matches, Match{
				Text:       value,
				Type:       mapping.typ,
				Start:      start,
				End:        start + len(value),
				Confidence: mapping.conf,
				Source:     d.Name(),
				Context:    extractContext(text, start, start+len(value)),
			})
		}
	}

	return matches, nil
}

// allOccurrences returns the start offset of every non-overlapping
// occurrence of value in text.
func allOccurrences(text, value string) []int {
	var offsets []int
	for from := 0; ; {
		i := strings.Index(text[from:], value)
		if i < 0 {
			break
		}
		offsets = append(offsets, from+i)
		from += i + len(value)
	}
	return offsets
}
