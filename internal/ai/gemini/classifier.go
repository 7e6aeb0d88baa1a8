package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	_ "embed"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/jobrater/internal/ai"
	"github.com/spigell/jobrater/internal/logger"
	"github.com/spigell/jobrater/internal/model"
	"github.com/spigell/jobrater/internal/ratelimit"
	"github.com/spigell/jobrater/internal/utils"
)

const (
	providerName = "gemini"

	DefaultTokenLimit   = 550
	DefaultTemperature  = 0.5
	defaultMaxLogLength = 200
)

//go:embed prompt.md
var systemPrompt string

type contentGenerator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Model() string
}

// Settings controls the generation parameters recorded with every rating.
type Settings struct {
	TokenLimit   int
	Temperature  float64
	MaxLogLength int
}

// Classifier rates a resume against a posting with Gemini. Calls are spaced by
// the shared limiter.
type Classifier struct {
	generator contentGenerator
	limiter   *ratelimit.Limiter
	settings  Settings
	logger    *zap.Logger
}

func NewClassifier(generator contentGenerator, limiter *ratelimit.Limiter, settings Settings, log *zap.Logger) (*Classifier, error) {
	if generator == nil {
		return nil, errors.New("gemini classifier requires a generator")
	}
	if limiter == nil {
		return nil, errors.New("gemini classifier requires a rate limiter")
	}
	if settings.TokenLimit <= 0 {
		settings.TokenLimit = DefaultTokenLimit
	}
	if settings.Temperature < 0 {
		settings.Temperature = DefaultTemperature
	}
	if settings.MaxLogLength <= 0 {
		settings.MaxLogLength = defaultMaxLogLength
	}

	log = logger.WithFields(log, logger.CommonFields(providerName, generator.Model())...)
	log.Debug("gemini classifier configured",
		zap.Int("token_limit", settings.TokenLimit),
		zap.Float64("temperature", settings.Temperature),
		zap.Duration("min_interval", limiter.Interval()),
	)

	return &Classifier{
		generator: generator,
		limiter:   limiter,
		settings:  settings,
		logger:    log,
	}, nil
}

func (c *Classifier) Classify(ctx context.Context, candidate ai.Candidate) (*ai.Classification, error) {
	if candidate.Posting == nil {
		return nil, errors.New("posting is required")
	}
	if candidate.Resume == nil {
		return nil, errors.New("resume is required")
	}

	userPrompt := candidate.Text()
	pairFields := logger.PairFields(candidate.JobID, candidate.ResumeID)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	c.logger.Debug("gemini generate content request", append(pairFields,
		zap.Int("prompt_length", utf8.RuneCountInString(userPrompt)),
		zap.String("prompt_preview", utils.TruncateForLog(userPrompt, c.settings.MaxLogLength)),
	)...)

	raw, err := c.generator.Generate(ctx, Request{
		System:          systemPrompt,
		User:            userPrompt,
		MaxOutputTokens: c.settings.TokenLimit,
		Temperature:     c.settings.Temperature,
		JSON:            true,
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("gemini generate content response", append(pairFields,
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, c.settings.MaxLogLength)),
	)...)

	classification, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}

	classification.Rating.JobID = candidate.JobID
	classification.Rating.ResumeID = candidate.ResumeID
	classification.Rating.Model = c.generator.Model()
	classification.Rating.TokenLimit = c.settings.TokenLimit
	classification.Rating.Temperature = c.settings.Temperature
	classification.Rating.SystemPrompt = turns("system", systemPrompt)
	classification.Rating.UserPrompt = turns("user", userPrompt)

	return classification, nil
}

type turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// turns renders a prompt the way it was sent: a list of role/content messages.
func turns(role, content string) string {
	bytes, err := json.Marshal([]turn{{Role: role, Content: content}})
	if err != nil {
		return content
	}
	return string(bytes)
}

type verdict struct {
	Justification *string `mapstructure:"justification"`
}

// score accepts a JSON number or a non-empty numeric string.
func score(v any) (float64, error) {
	var f float64
	switch val := v.(type) {
	case nil:
		return 0, errors.New("rating is missing")
	case float64:
		f = val
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, fmt.Errorf("rating %q is not a number", val)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("rating has unsupported type %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("rating is not finite")
	}
	return f, nil
}

func parseResponse(raw string) (*ai.Classification, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("%w: parse gemini response: %w", ai.ErrInvalidResponse, err)
	}

	rating, err := score(data["rating"])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrInvalidResponse, err)
	}

	var v verdict
	if err := weakDecode(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrInvalidResponse, err)
	}
	if v.Justification == nil {
		return nil, fmt.Errorf("%w: justification is missing", ai.ErrInvalidResponse)
	}

	return &ai.Classification{
		Enrichment: model.Enrichment{
			Interval:  coerceString(data["interval"]),
			MinAmount: coerceAmount(data["min_amount"]),
			MaxAmount: coerceAmount(data["max_amount"]),
			Currency:  coerceString(data["currency"]),
			IsRemote:  coerceBool(data["is_remote"]),
		},
		Rating: model.Rating{
			Score:         rating,
			Justification: strings.TrimSpace(*v.Justification),
			Display:       highlights(data["display_data"]),
		},
	}, nil
}

func weakDecode(input, output any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           output,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// highlights keeps display items that carry any text. Malformed input yields nil.
func highlights(v any) []model.Highlight {
	if v == nil {
		return nil
	}

	var items []model.Highlight
	if err := weakDecode(v, &items); err != nil {
		return nil
	}

	result := make([]model.Highlight, 0, len(items))
	for _, item := range items {
		item.Label = strings.TrimSpace(item.Label)
		item.Content = strings.TrimSpace(item.Content)
		if item.Label == "" && item.Content == "" {
			continue
		}
		result = append(result, item)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func coerceBool(v any) *bool {
	switch val := v.(type) {
	case bool:
		return &val
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "yes":
			return utils.Ptr(true)
		case "false", "no":
			return utils.Ptr(false)
		}
	}
	return nil
}

// coerceAmount treats zero as "not stated".
func coerceAmount(v any) *float64 {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case int:
		f = float64(val)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f == 0 {
		return nil
	}
	return &f
}

func coerceString(v any) *string {
	val, ok := v.(string)
	if !ok {
		return nil
	}
	val = strings.TrimSpace(val)
	if val == "" || strings.EqualFold(val, "null") {
		return nil
	}
	return &val
}
