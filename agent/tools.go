package agent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/danupratama/lunasin/errors"
	"github.com/danupratama/lunasin/llm"
)

const toolSystemPrompt = `You are Lunasin, an assistant for an Indonesian
small-business owner. You are given a catalog of remote tools. Pick the single
tool that best answers the user's question and fill in its arguments as a JSON
object string. Use {} when the tool takes no arguments.`

const summarySystemPrompt = `You are Lunasin, an assistant for an Indonesian
small-business owner. You are given a user's question and the raw output of a
tool that was run to answer it. Reply to the user in their language, in one or
two short sentences, using only the tool output.`

// AnswerWithTools answers a free-form question by letting the completion
// provider pick one remote tool, invoking it, and summarizing its output.
// This path is independent of the ledger dispatch in HandlePrompt.
func (a *Agent) AnswerWithTools(ctx context.Context, prompt string) (string, error) {
	if a.llm == nil {
		return "", errors.WithKind(errors.KindConfig, "no completion provider configured")
	}
	if a.tools == nil {
		return "", errors.WithKind(errors.KindConfig, "no tool endpoint configured")
	}

	tools, err := a.tools.ListTools(ctx)
	if err != nil {
		return "", err
	}
	if len(tools) == 0 {
		return "", errors.WithKind(errors.KindConfig, "tool endpoint exposes no tools")
	}

	names := make([]string, 0, len(tools))
	var catalog strings.Builder
	for _, t := range tools {
		names = append(names, t.Name)
		catalog.WriteString(t.Name)
		catalog.WriteString(": ")
		catalog.WriteString(t.Description)
		if len(t.InputSchema) > 0 {
			catalog.WriteString("\n  arguments schema: ")
			catalog.Write(t.InputSchema)
		}
		catalog.WriteString("\n")
	}

	choiceSchema := &llm.Schema{
		Name:        "tool_choice",
		Description: "The tool to invoke and its arguments.",
		Properties: map[string]llm.Property{
			"tool": {Type: llm.TypeString, Enum: names},
			"arguments": {
				Type:        llm.TypeString,
				Description: "Arguments for the tool, encoded as a JSON object string.",
			},
		},
		Required: []string{"tool", "arguments"},
	}

	raw, err := a.llm.Complete(ctx, llm.CompletionRequest{
		System:      toolSystemPrompt + "\n\nAvailable tools:\n" + catalog.String(),
		User:        prompt,
		Schema:      choiceSchema,
		Temperature: 0,
	})
	if err != nil {
		return "", errors.Wrapf(err, "selecting tool")
	}

	var choice struct {
		Tool      string `json:"tool"`
		Arguments string `json:"arguments"`
	}
	if err := json.Unmarshal(raw, &choice); err != nil {
		return "", errors.WrapKind(err, errors.KindValidation, "tool choice is not valid JSON")
	}
	args := map[string]interface{}{}
	if strings.TrimSpace(choice.Arguments) != "" {
		if err := json.Unmarshal([]byte(choice.Arguments), &args); err != nil {
			return "", errors.WrapKind(err, errors.KindValidation, "tool arguments are not a JSON object")
		}
	}
	a.log.Info("invoking tool", "tool", choice.Tool)

	output, err := a.tools.CallTool(ctx, choice.Tool, args)
	if err != nil {
		return "", err
	}

	answerSchema := &llm.Schema{
		Name:        "tool_answer",
		Description: "The final reply to the user.",
		Properties: map[string]llm.Property{
			"answer": {Type: llm.TypeString},
		},
		Required: []string{"answer"},
	}
	raw, err = a.llm.Complete(ctx, llm.CompletionRequest{
		System:      summarySystemPrompt,
		User:        "Question: " + prompt + "\n\nTool output:\n" + output,
		Schema:      answerSchema,
		Temperature: 0.2,
	})
	if err != nil {
		return "", errors.Wrapf(err, "summarizing tool output")
	}

	var answer struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(raw, &answer); err != nil {
		return "", errors.WrapKind(err, errors.KindValidation, "tool answer is not valid JSON")
	}
	return answer.Answer, nil
}
