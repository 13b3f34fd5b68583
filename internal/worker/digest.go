package worker

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/purpose168/mnemo/internal/queue"
	"github.com/purpose168/mnemo/internal/session"
)

const maxObservationContent = 2048

// DigestProcessor 是内置的处理器：不调用外部模型，只把队列内容整理成
// 观察记录，并在收到 summary_request 时写入一条活动统计摘要。
type DigestProcessor struct {
	Sessions session.Service
	Logger   *slog.Logger
}

var _ Processor = DigestProcessor{}

func (p DigestProcessor) Process(ctx context.Context, sessionID string, msgs []queue.Message) (Result, error) {
	for _, msg := range msgs {
		payload, err := msg.Decode()
		if err != nil {
			// 无法解析的消息重试也不会成功，跳过后随本批一起删除
			p.logger().Warn("Skipping undecodable message", "session_id", sessionID, "id", msg.ID, "error", err)
			continue
		}
		switch pl := payload.(type) {
		case queue.ToolUsePayload:
			if _, err := p.Sessions.AddObservation(ctx, session.Observation{
				SessionID: sessionID,
				Type:      "tool_use",
				Title:     pl.ToolName,
				Content:   clip(pl.ToolInput, maxObservationContent),
			}); err != nil {
				return Result{}, err
			}
		case queue.PromptPayload:
			// 提示词已经在 user_prompts 中
		case queue.SummaryRequestPayload:
			if err := p.summarize(ctx, sessionID, pl); err != nil {
				return Result{}, err
			}
		}
	}
	return Result{}, nil
}

func (p DigestProcessor) summarize(ctx context.Context, sessionID string, req queue.SummaryRequestPayload) error {
	act, err := p.Sessions.Activity(ctx, sessionID)
	if err != nil {
		return err
	}
	prompts, err := p.Sessions.ListPrompts(ctx, sessionID)
	if err != nil {
		return err
	}
	tools, err := p.Sessions.ListToolUses(ctx, sessionID)
	if err != nil {
		return err
	}
	reads, err := p.Sessions.ListFileReads(ctx, sessionID)
	if err != nil {
		return err
	}

	sum := session.Summary{
		SessionID:    sessionID,
		Investigated: strings.Join(distinct(reads, func(r session.FileRead) string { return r.Path }), "\n"),
		Completed:    clip(req.LastAssistantMessage, maxObservationContent),
		Notes: fmt.Sprintf("prompts: %d, tool uses: %d (%s), file reads: %d",
			act.Prompts, act.ToolUses,
			strings.Join(distinct(tools, func(t session.ToolUse) string { return t.ToolName }), ", "),
			act.FileReads),
	}
	if len(prompts) > 0 {
		sum.Request = clip(prompts[0].Text, maxObservationContent)
	}
	_, err = p.Sessions.AddSummary(ctx, sum)
	return err
}

func (p DigestProcessor) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// distinct 返回排序去重后的键
func distinct[T any](items []T, key func(T) string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, key(it))
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func clip(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
