// Package registry implements the pluggable `name -> ActPackageFn` lookup
// the core consumes for `code` acts, plus the built-in packages ported from
// the chat-model adapters: llm.anthropic, llm.openai, llm.google, llm.mock,
// and http.request.
package registry

import "context"

// ActPackageFn is the shape every registered package implements: take the
// act's resolved inputs, return outputs merged back per the Next semantics,
// or an error (a BusinessError candidate once wrapped by the caller).
type ActPackageFn func(ctx context.Context, inputs map[string]any) (map[string]any, error)

// ChatModel is the common interface every LLM act package adapts to,
// ported from the teacher's graph/model.ChatModel.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

// Message is one turn in an LLM conversation.
type Message struct {
	Role    string
	Content string
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolSpec describes a tool an LLM may call.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// ChatOut is an LLM response: text and/or tool calls.
type ChatOut struct {
	Text      string
	ToolCalls []ToolCall
}

// ToolCall is one LLM-requested tool invocation.
type ToolCall struct {
	Name  string
	Input map[string]any
}

// chatInputs/chatOutputs adapt the act's generic map[string]any in/out to
// the ChatModel interface: `messages` (array of {role,content}), optional
// `tools`; returns `text` and `tool_calls`.
func chatInputs(inputs map[string]any) ([]Message, []ToolSpec) {
	var msgs []Message
	if raw, ok := inputs["messages"].([]any); ok {
		for _, m := range raw {
			mm, ok := m.(map[string]any)
			if !ok {
				continue
			}
			role, _ := mm["role"].(string)
			content, _ := mm["content"].(string)
			msgs = append(msgs, Message{Role: role, Content: content})
		}
	} else if prompt, ok := inputs["prompt"].(string); ok {
		msgs = []Message{{Role: RoleUser, Content: prompt}}
	}
	var tools []ToolSpec
	if raw, ok := inputs["tools"].([]any); ok {
		for _, t := range raw {
			tm, ok := t.(map[string]any)
			if !ok {
				continue
			}
			name, _ := tm["name"].(string)
			desc, _ := tm["description"].(string)
			schema, _ := tm["schema"].(map[string]any)
			tools = append(tools, ToolSpec{Name: name, Description: desc, Schema: schema})
		}
	}
	return msgs, tools
}

func chatOutputs(out ChatOut) map[string]any {
	calls := make([]any, 0, len(out.ToolCalls))
	for _, c := range out.ToolCalls {
		calls = append(calls, map[string]any{"name": c.Name, "input": c.Input})
	}
	return map[string]any{"text": out.Text, "tool_calls": calls}
}

func runChat(m ChatModel) ActPackageFn {
	return func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
		msgs, tools := chatInputs(inputs)
		out, err := m.Chat(ctx, msgs, tools)
		if err != nil {
			return nil, err
		}
		return chatOutputs(out), nil
	}
}
