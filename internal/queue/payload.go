package queue

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType 待处理消息的类型，决定 payload 的结构
type MessageType string

const (
	TypeToolUse        MessageType = "tool_use"
	TypePrompt         MessageType = "prompt"
	TypeSummaryRequest MessageType = "summary_request"
)

// ErrUnknownMessageType 无法识别的消息类型
var ErrUnknownMessageType = errors.New("unknown message type")

// Payload 是各消息类型的载荷；只有本包内的类型实现了它
type Payload interface {
	Type() MessageType
	isPayload()
}

// ToolUsePayload 一次工具调用
type ToolUsePayload struct {
	ToolName   string `json:"tool_name"`
	ToolInput  string `json:"tool_input"`
	ToolOutput string `json:"tool_output"`
	ToolUseID  int64  `json:"tool_use_id,omitempty"`
}

// PromptPayload 一条用户提示词
type PromptPayload struct {
	PromptNumber int64  `json:"prompt_number"`
	PromptText   string `json:"prompt_text"`
}

// SummaryRequestPayload 会话结束时请求生成摘要
type SummaryRequestPayload struct {
	LastAssistantMessage string `json:"last_assistant_message,omitempty"`
	Reason               string `json:"reason,omitempty"`
}

func (ToolUsePayload) Type() MessageType        { return TypeToolUse }
func (PromptPayload) Type() MessageType         { return TypePrompt }
func (SummaryRequestPayload) Type() MessageType { return TypeSummaryRequest }

func (ToolUsePayload) isPayload()        {}
func (PromptPayload) isPayload()         {}
func (SummaryRequestPayload) isPayload() {}

func encodePayload(p Payload) (string, error) {
	if p == nil {
		return "", errors.New("payload 不能为空")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("序列化 %s 载荷失败: %w", p.Type(), err)
	}
	return string(data), nil
}

// DecodePayload 按消息类型解析载荷
func DecodePayload(t MessageType, raw string) (Payload, error) {
	switch t {
	case TypeToolUse:
		return decodeInto[ToolUsePayload](t, raw)
	case TypePrompt:
		return decodeInto[PromptPayload](t, raw)
	case TypeSummaryRequest:
		return decodeInto[SummaryRequestPayload](t, raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, t)
	}
}

func decodeInto[T Payload](t MessageType, raw string) (Payload, error) {
	var p T
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("解析 %s 载荷失败: %w", t, err)
	}
	return p, nil
}
