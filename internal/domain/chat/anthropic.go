package chat

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// Backends.
const (
	BackendAnthropic = "anthropic"
	BackendBedrock   = "bedrock"
)

// DefaultBedrockRegion is used when the AWS chain names no region.
const DefaultBedrockRegion = "us-east-1"

// Request is one completion call.
type Request struct {
	Model     string
	System    string
	Prompt    string
	MaxTokens int
}

// Streamer produces a reply as a sequence of text deltas.
type Streamer interface {
	Stream(ctx context.Context, req Request, onDelta func(string) error) error
}

// AnthropicStreamer streams replies from the Anthropic Messages API,
// directly or through Amazon Bedrock.
type AnthropicStreamer struct {
	client  anthropic.Client
	backend string
}

var _ Streamer = (*AnthropicStreamer)(nil)

// NewAnthropicStreamer returns a streamer. apiKey may be empty when
// baseURL points at a gateway that authenticates on its own.
func NewAnthropicStreamer(apiKey, baseURL string) *AnthropicStreamer {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicStreamer{client: anthropic.NewClient(opts...), backend: BackendAnthropic}
}

// NewBedrockStreamer returns a streamer that signs requests for Amazon
// Bedrock with the default AWS credential chain. region overrides the
// chain's region; baseURL overrides the Bedrock runtime endpoint.
func NewBedrockStreamer(ctx context.Context, region, baseURL string) (*AnthropicStreamer, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBedrockConfig, err)
	}
	return NewBedrockStreamerWithConfig(cfg, baseURL), nil
}

// NewBedrockStreamerWithConfig is NewBedrockStreamer with a loaded AWS config.
func NewBedrockStreamerWithConfig(cfg aws.Config, baseURL string) *AnthropicStreamer {
	if cfg.Region == "" {
		cfg.Region = DefaultBedrockRegion
	}
	opts := []option.RequestOption{bedrock.WithConfig(cfg)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicStreamer{client: anthropic.NewClient(opts...), backend: BackendBedrock}
}

// Backend names the API the streamer talks to.
func (s *AnthropicStreamer) Backend() string { return s.backend }

// Stream sends req and calls onDelta for every text delta. An error from
// onDelta stops the stream.
func (s *AnthropicStreamer) Stream(ctx context.Context, req Request, onDelta func(string) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	stream := s.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()
	for stream.Next() {
		ev, ok := stream.Current().AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		delta, ok := ev.Delta.AsAny().(anthropic.TextDelta)
		if !ok || delta.Text == "" {
			continue
		}
		if err := onDelta(delta.Text); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("anthropic stream: %w", err)
	}
	return nil
}
