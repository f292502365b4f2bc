package naming

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	perrors "github.com/logflow/processlens/pkg/errors"
	"github.com/logflow/processlens/pkg/resilience"
)

const (
	// DefaultModel is the Gemini model asked for names.
	DefaultModel = "gemini-2.5-flash"
	// DefaultEndpoint is the Gemini API base URL.
	DefaultEndpoint = "https://generativelanguage.googleapis.com/"
	// APIVersion is the Gemini API version requested.
	APIVersion = "v1beta"
)

// GeminiConfig configures GeminiNamer.
type GeminiConfig struct {
	APIKey   string        `yaml:"-"`
	Model    string        `yaml:"model"`
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DefaultGeminiConfig returns defaults without an API key.
func DefaultGeminiConfig() GeminiConfig {
	return GeminiConfig{
		Model:    DefaultModel,
		Endpoint: DefaultEndpoint,
		Timeout:  30 * time.Second,
	}
}

// GeminiNamer asks Gemini to name a cluster of activities. Repeated failures
// open a circuit breaker so a dead API is not called for every community.
type GeminiNamer struct {
	cfg     GeminiConfig
	client  *genai.Client
	breaker *resilience.CircuitBreaker
}

// NewGeminiNamer creates a namer. An empty API key is an error.
func NewGeminiNamer(cfg GeminiConfig) (*GeminiNamer, error) {
	if cfg.APIKey == "" {
		return nil, perrors.New(perrors.CodeNamingFailed, "Gemini API key is not set")
	}
	def := DefaultGeminiConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    cfg.Endpoint,
			APIVersion: APIVersion,
		},
	})
	if err != nil {
		return nil, perrors.Wrap(err, perrors.CodeNamingFailed, "cannot create Gemini client")
	}
	return &GeminiNamer{
		cfg:     cfg,
		client:  client,
		breaker: resilience.NewCircuitBreaker().WithMaxFailures(3),
	}, nil
}

// Prompt builds the naming request for a set of activities.
func Prompt(activities []string) string {
	return "You are a Business Process Analyst. " +
		"I have a cluster of process activities: " + strings.Join(activities, ", ") + ". " +
		"Based on these activities, suggest a SHORT, professional name (max 4 words) " +
		"that describes this specific phase of the process. " +
		"Return ONLY the name, nothing else."
}

// Name implements Namer.
func (n *GeminiNamer) Name(ctx context.Context, id int, activities []string) (string, error) {
	var name string
	err := n.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		name, err = n.generate(ctx, Prompt(activities))
		return err
	})
	if err != nil {
		return "", perrors.Wrap(err, perrors.CodeNamingFailed, "Gemini request failed").
			WithContext("community", id)
	}
	return name, nil
}

func (n *GeminiNamer) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := n.client.Models.GenerateContent(ctx, n.cfg.Model, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("empty response")
	}
	return text, nil
}
