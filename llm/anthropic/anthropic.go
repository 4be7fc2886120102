// Package anthropic adapts github.com/anthropics/anthropic-sdk-go into the
// llm.Call contract.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/acmrt/acm/llm"
)

// New constructs an llm.Call backed by the Anthropic Messages API.
func New(apiKey string) llm.Call {
	client := anthropicsdk.NewClient(option.WithAPIKey(apiKey))
	return func(ctx context.Context, prompt string, tools []llm.ToolSpec, cfg llm.Config) (llm.Result, error) {
		maxTokens := int64(cfg.MaxTokens)
		if maxTokens <= 0 {
			maxTokens = 4096
		}
		params := anthropicsdk.MessageNewParams{
			Model:     anthropicsdk.Model(cfg.Model),
			MaxTokens: maxTokens,
			Messages: []anthropicsdk.MessageParam{
				anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(prompt)),
			},
		}
		if cfg.Temperature != nil {
			params.Temperature = anthropicsdk.Float(*cfg.Temperature)
		}
		for _, t := range tools {
			params.Tools = append(params.Tools, anthropicsdk.ToolUnionParam{
				OfTool: &anthropicsdk.ToolParam{
					Name:        t.Name,
					Description: anthropicsdk.String(t.Description),
					InputSchema: anthropicsdk.ToolInputSchemaParam{
						Properties: t.InputSchema,
					},
				},
			})
		}

		msg, err := client.Messages.New(ctx, params)
		if err != nil {
			return llm.Result{}, fmt.Errorf("anthropic: %w", err)
		}

		var out llm.Result
		for _, block := range msg.Content {
			switch b := block.AsAny().(type) {
			case anthropicsdk.TextBlock:
				out.Reasoning += b.Text
			case anthropicsdk.ToolUseBlock:
				var input map[string]any
				if err := json.Unmarshal(b.Input, &input); err != nil {
					return llm.Result{}, fmt.Errorf("anthropic: decoding tool input: %w", err)
				}
				out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
					ID:    b.ID,
					Name:  b.Name,
					Input: input,
				})
			}
		}
		out.Raw = msg
		return out, nil
	}
}
