package chat

import "errors"

var (
	// ErrNoCredentials is returned when neither an API key nor Bedrock is configured.
	ErrNoCredentials = errors.New("no LLM credentials configured")
	// ErrEmptyMessage is returned for blank user input.
	ErrEmptyMessage = errors.New("message must not be empty")
	// ErrBedrockConfig is returned when the AWS configuration cannot be loaded.
	ErrBedrockConfig = errors.New("load AWS config for Bedrock")
)
