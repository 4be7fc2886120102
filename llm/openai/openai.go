// Package openai adapts github.com/openai/openai-go into the llm.Call contract.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/acmrt/acm/llm"
)

// New constructs an llm.Call backed by the OpenAI Chat Completions API.
func New(apiKey string) llm.Call {
	client := openaisdk.NewClient(option.WithAPIKey(apiKey))
	return func(ctx context.Context, prompt string, tools []llm.ToolSpec, cfg llm.Config) (llm.Result, error) {
		params := openaisdk.ChatCompletionNewParams{
			Model: openaisdk.ChatModel(cfg.Model),
			Messages: []openaisdk.ChatCompletionMessageParamUnion{
				openaisdk.UserMessage(prompt),
			},
		}
		if cfg.Temperature != nil {
			params.Temperature = openaisdk.Float(*cfg.Temperature)
		}
		if cfg.MaxTokens > 0 {
			params.MaxTokens = openaisdk.Int(int64(cfg.MaxTokens))
		}
		for _, t := range tools {
			params.Tools = append(params.Tools, openaisdk.ChatCompletionToolParam{
				Function: openaisdk.FunctionDefinitionParam{
					Name:        t.Name,
					Description: openaisdk.String(t.Description),
					Parameters:  openaisdk.FunctionParameters(t.InputSchema),
				},
			})
		}

		resp, err := client.Chat.Completions.New(ctx, params)
		if err != nil {
			return llm.Result{}, fmt.Errorf("openai: %w", err)
		}
		if len(resp.Choices) == 0 {
			return llm.Result{}, fmt.Errorf("openai: empty response")
		}

		choice := resp.Choices[0]
		out := llm.Result{Reasoning: choice.Message.Content, Raw: resp}
		for _, call := range choice.Message.ToolCalls {
			var input map[string]any
			if err := json.Unmarshal([]byte(call.Function.Arguments), &input); err != nil {
				return llm.Result{}, fmt.Errorf("openai: decoding tool arguments: %w", err)
			}
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				ID:    call.ID,
				Name:  call.Function.Name,
				Input: input,
			})
		}
		return out, nil
	}
}
