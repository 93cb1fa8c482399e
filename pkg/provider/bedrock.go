package provider

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/pkg/errors"
)

const BedrockProvider = "bedrock"

// ConverseAPI is the subset of the Bedrock runtime client used here.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

type bedrockModel struct {
	client  ConverseAPI
	modelID string
}

// NewBedrockFactory returns a factory whose models share one runtime client.
func NewBedrockFactory(cfg aws.Config) Factory {
	client := bedrockruntime.NewFromConfig(cfg)
	return func(_ context.Context, modelID string) (Model, error) {
		return NewBedrockModel(client, modelID)
	}
}

func NewBedrockModel(client ConverseAPI, modelID string) (Model, error) {
	if modelID == "" {
		return nil, errors.New("bedrock model id is required")
	}
	return &bedrockModel{client: client, modelID: modelID}, nil
}

func (m *bedrockModel) Generate(ctx context.Context, req Request) (string, error) {
	out, err := m.client.Converse(ctx, converseInput(m.modelID, req))
	if err != nil {
		return "", errors.Wrap(err, "bedrock converse")
	}
	return converseText(out)
}

func converseInput(modelID string, req Request) *bedrockruntime.ConverseInput {
	in := &bedrockruntime.ConverseInput{
		ModelId: aws.String(modelID),
		Messages: []types.Message{{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: req.Prompt}},
		}},
	}
	if req.SystemPrompt != "" {
		in.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.SystemPrompt}}
	}
	if req.Settings.Temperature != nil || req.Settings.MaxTokens > 0 {
		in.InferenceConfig = &types.InferenceConfiguration{}
		if req.Settings.Temperature != nil {
			in.InferenceConfig.Temperature = aws.Float32(float32(*req.Settings.Temperature))
		}
		if req.Settings.MaxTokens > 0 {
			in.InferenceConfig.MaxTokens = aws.Int32(int32(req.Settings.MaxTokens))
		}
	}
	return in
}

func converseText(out *bedrockruntime.ConverseOutput) (string, error) {
	if out == nil {
		return "", errors.New("bedrock returned no output")
	}
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", errors.Errorf("unexpected bedrock output %T", out.Output)
	}
	var parts []string
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			parts = append(parts, text.Value)
		}
	}
	if len(parts) == 0 {
		return "", errors.Errorf("bedrock returned no text (stop reason %s)", out.StopReason)
	}
	return strings.Join(parts, "\n"), nil
}
