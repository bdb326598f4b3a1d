package rtclient

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

const (
	ApiKeyEnvVarNameShort = "OPENAI_KEY"
	ApiKeyEnvVarNameLong  = "OPENAI_API_KEY"
	AzureKeyEnvVarName    = "AZURE_OPENAI_API_KEY"
)

const defaultAzureAPIVersion = "2024-10-01-preview"

type clientConfig struct {
	model           string
	apiKey          string
	endpoint        string // non-empty selects Azure OpenAI
	azureDeployment string
	azureAPIVersion string
	sampleRate      int
	latencyMS       int
	dialTimeout     time.Duration
	logger          *slog.Logger
}

func (c *clientConfig) latency() time.Duration {
	return time.Duration(c.latencyMS) * time.Millisecond
}

func (c *clientConfig) isAzure() bool {
	return c.endpoint != ""
}

func (c *clientConfig) validate() error {
	if c.apiKey == "" {
		return fmt.Errorf("missing api key")
	}
	if c.isAzure() {
		if c.azureDeployment == "" {
			return fmt.Errorf("missing azure deployment")
		}
		return nil
	}
	if c.model == "" {
		return fmt.Errorf("missing model")
	}
	return nil
}

type ClientOption func(*clientConfig)

func WithLogger(logger *slog.Logger) ClientOption {
	return func(o *clientConfig) {
		o.logger = logger
	}
}

func WithDefaultLogger() ClientOption {
	return WithLogger(slog.Default())
}

func WithModel(model string) ClientOption {
	return func(o *clientConfig) {
		o.model = model
	}
}

func WithKey(apiKey string) ClientOption {
	return func(o *clientConfig) {
		o.apiKey = apiKey
	}
}

func WithEnvKey(vars ...string) ClientOption {
	return func(o *clientConfig) {
		for _, envVarName := range vars {
			if k := os.Getenv(envVarName); k != "" {
				o.apiKey = k
				return
			}
		}
	}
}

// WithEndpoint points the client at an Azure OpenAI resource instead of the
// public OpenAI endpoint. Requires WithAzureDeployment.
func WithEndpoint(url string) ClientOption {
	return func(o *clientConfig) {
		o.endpoint = url
	}
}

func WithAzureDeployment(deployment string) ClientOption {
	return func(o *clientConfig) {
		o.azureDeployment = deployment
	}
}

func WithAzureAPIVersion(version string) ClientOption {
	return func(o *clientConfig) {
		o.azureAPIVersion = version
	}
}

func WithSampleRate(sr int) ClientOption {
	return func(o *clientConfig) {
		o.sampleRate = sr
	}
}

// WithLatency sets the audio pump chunk latency in milliseconds.
func WithLatency(latencyMS int) ClientOption {
	return func(o *clientConfig) {
		o.latencyMS = latencyMS
	}
}

func WithDialTimeout(d time.Duration) ClientOption {
	return func(o *clientConfig) {
		o.dialTimeout = d
	}
}

func WithOptions(opts ...ClientOption) ClientOption {
	return func(o *clientConfig) {
		for _, opt := range opts {
			opt(o)
		}
	}
}

func withDefaults() ClientOption {
	return WithOptions(
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithSampleRate(24_000),
		WithLatency(200),
		WithDialTimeout(10*time.Second),
		WithAzureAPIVersion(defaultAzureAPIVersion),
		WithModel("gpt-4o-realtime-preview-2025-06-03"),
		WithEnvKey(ApiKeyEnvVarNameShort, ApiKeyEnvVarNameLong, AzureKeyEnvVarName),
	)
}
