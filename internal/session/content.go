package session

import (
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/zeebo/xxh3"
)

const redactedMarker = "[REDACTED]"

// 常见密钥格式，匹配到的内容在落盘前会被替换
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`),
	regexp.MustCompile(`\bsk-(?:ant-)?[A-Za-z0-9_\-]{20,}`),
	regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}`),
	regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
	regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9\-]{10,}`),
	regexp.MustCompile(`(?i)\b((?:api[_-]?key|secret|token|password|passwd)["']?\s*[:=]\s*)["']?[^\s"',;]{6,}["']?`),
}

// redact 替换文本中的密钥
func redact(s string) string {
	out, _ := redactReport(s)
	return out
}

// redactReport 替换文本中的密钥，并报告是否发生了替换
func redactReport(s string) (string, bool) {
	changed := false
	for i, re := range secretPatterns {
		if !re.MatchString(s) {
			continue
		}
		changed = true
		if i == len(secretPatterns)-1 {
			// 保留键名，只替换值
			s = re.ReplaceAllString(s, "${1}"+redactedMarker)
			continue
		}
		s = re.ReplaceAllString(s, redactedMarker)
	}
	return s, changed
}

// truncate 将 s 截断到最多 limit 字节，不会切开多字节字符
func truncate(s string, limit int) (string, bool) {
	if limit <= 0 || len(s) <= limit {
		return s, false
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut], true
}

// contentHash 返回内容的 xxh3 哈希（16 位十六进制）
func contentHash(s string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(s))
}

type preparedOutput struct {
	text      string
	hash      string
	truncated bool
	redacted  bool
}

// prepareOutput 对原始输出计算哈希，然后脱敏并截断
func prepareOutput(raw string, limit int) preparedOutput {
	p := preparedOutput{hash: contentHash(raw)}
	text, redacted := redactReport(raw)
	text, truncated := truncate(text, limit)
	if truncated {
		text += fmt.Sprintf("\n... [truncated, %d bytes total]", len(raw))
	}
	p.text = text
	p.truncated = truncated
	p.redacted = redacted
	return p
}

// Redact 替换文本中的密钥，供不经过数据库的存储使用
func Redact(s string) string {
	return redact(s)
}

// PrepareToolUse 按与数据库相同的规则（哈希原始输出、脱敏、截断）构造工具调用记录
func PrepareToolUse(p ToolUseParams, limit int, now time.Time) ToolUse {
	out := prepareOutput(p.Output, limit)
	input, _ := truncate(redact(p.Input), limit)
	return ToolUse{
		SessionID:       p.SessionID,
		ToolName:        p.ToolName,
		Input:           input,
		Output:          out.text,
		OutputTruncated: out.truncated,
		OutputRedacted:  out.redacted,
		OutputHash:      out.hash,
		CreatedAt:       now,
	}
}
