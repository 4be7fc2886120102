// Package bedrock adapts the AWS Bedrock Runtime Converse API into the
// llm.Call contract.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go/document"

	"github.com/acmrt/acm/llm"
)

// New constructs an llm.Call backed by the AWS Bedrock Converse API.
func New(client *bedrockruntime.Client) llm.Call {
	return func(ctx context.Context, prompt string, tools []llm.ToolSpec, cfg llm.Config) (llm.Result, error) {
		input := &bedrockruntime.ConverseInput{
			ModelId: aws.String(cfg.Model),
			Messages: []types.Message{
				{
					Role:    types.ConversationRoleUser,
					Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: prompt}},
				},
			},
		}
		if cfg.MaxTokens > 0 || cfg.Temperature != nil {
			input.InferenceConfig = &types.InferenceConfiguration{}
			if cfg.MaxTokens > 0 {
				v := int32(cfg.MaxTokens)
				input.InferenceConfig.MaxTokens = &v
			}
			if cfg.Temperature != nil {
				v := float32(*cfg.Temperature)
				input.InferenceConfig.Temperature = &v
			}
		}
		if len(tools) > 0 {
			toolConfig := &types.ToolConfiguration{}
			for _, t := range tools {
				doc, err := document.NewLazyDocument(t.InputSchema).MarshalSmithyDocument()
				if err != nil {
					return llm.Result{}, fmt.Errorf("bedrock: marshaling tool schema: %w", err)
				}
				toolConfig.Tools = append(toolConfig.Tools, &types.ToolMemberToolSpec{
					Value: types.ToolSpecification{
						Name:        aws.String(t.Name),
						Description: aws.String(t.Description),
						InputSchema: &types.ToolInputSchemaMemberJson{Value: doc},
					},
				})
			}
			input.ToolConfig = toolConfig
		}

		resp, err := client.Converse(ctx, input)
		if err != nil {
			return llm.Result{}, fmt.Errorf("bedrock: %w", err)
		}

		out := llm.Result{Raw: resp}
		msgOutput, ok := resp.Output.(*types.ConverseOutputMemberMessage)
		if !ok {
			return out, nil
		}
		for _, block := range msgOutput.Value.Content {
			switch b := block.(type) {
			case *types.ContentBlockMemberText:
				out.Reasoning += b.Value
			case *types.ContentBlockMemberToolUse:
				raw, err := json.Marshal(b.Value.Input)
				if err != nil {
					return llm.Result{}, fmt.Errorf("bedrock: marshaling tool input: %w", err)
				}
				var input map[string]any
				if err := json.Unmarshal(raw, &input); err != nil {
					return llm.Result{}, fmt.Errorf("bedrock: decoding tool input: %w", err)
				}
				out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
					ID:    aws.ToString(b.Value.ToolUseId),
					Name:  aws.ToString(b.Value.Name),
					Input: input,
				})
			}
		}
		return out, nil
	}
}
