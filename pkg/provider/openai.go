package provider

import (
	"context"

	"github.com/go-kratos/blades"
	"github.com/go-kratos/blades/contrib/openai"
	"github.com/pkg/errors"
)

const OpenAIProvider = "openai"

// NewOpenAI builds a blades-backed model using the OpenAI chat provider.
// Credentials come from OPENAI_API_KEY.
func NewOpenAI(_ context.Context, modelID string) (Model, error) {
	if modelID == "" {
		return nil, errors.New("openai model id is required")
	}
	chat := openai.NewChatProvider()
	return ModelFunc(func(ctx context.Context, req Request) (string, error) {
		agent := blades.NewAgent(
			"blogflow",
			blades.WithModel(modelID),
			blades.WithProvider(chat),
			blades.WithInstructions(req.SystemPrompt),
		)
		msg, err := agent.Run(ctx, blades.NewPrompt(blades.UserMessage(req.Prompt)))
		if err != nil {
			return "", errors.Wrap(err, "openai chat")
		}
		return msg.Text(), nil
	}), nil
}
