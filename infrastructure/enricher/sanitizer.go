package enricher

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// minDedupRunes is the shortest trimmed line subject to de-duplication.
	// Shorter lines are usually structure (blank, "---", list markers).
	minDedupRunes = 10

	// fallbackLines is how much raw text Clean returns when no message is found.
	fallbackLines = 10

	// maxBlankRun is the longest run of blank lines kept in the output.
	maxBlankRun = 2
)

var (
	reasoningBlock  = regexp.MustCompile(`(?is)<think(?:ing)?>.*?</think(?:ing)?>`)
	reasoningMarker = regexp.MustCompile(`(?i)</?think(?:ing)?>`)

	preamblePattern = regexp.MustCompile(`(?i)^(?:let me\b|let's\b|i'll\b|i will\b|i'm going to\b|i am going to\b|i need to\b|looking at\b|analyzing\b|after analyzing\b|first,|okay\b|ok[,.]|alright\b|sure[,.!]|based on\b|here is\b|here's\b|the following\b|让我|我来|我将|我需要|首先|好的|根据|分析一下|通过分析|下面是|以下是)`)

	bulletPrefix       = regexp.MustCompile(`^(?:[-*•+]|\d+[.)])\s+`)
	conventionalHeader = regexp.MustCompile(`(?i)^(?:feat|fix|docs|style|refactor|perf|test|tests|build|ci|chore|revert|release)(?:\([^)]*\))?!?\s*[:：]\s*`)
)

// messageVerbs open a commit message line. Inflected forms (adds, added,
// adding) are matched by suffix.
var messageVerbs = []string{
	"add", "fix", "update", "remove", "delete", "refactor", "implement",
	"improve", "introduce", "change", "rename", "move", "create", "support",
	"enable", "disable", "bump", "upgrade", "downgrade", "merge", "revert",
	"release", "clean", "simplify", "optimize", "optimise", "document",
	"replace", "use", "allow", "make", "set", "handle", "extract", "convert",
	"prevent", "ensure", "drop", "deprecate", "correct", "adjust", "tweak",
	"reorganize", "restructure", "migrate", "integrate", "configure", "extend",
	"expose", "initial", "polish", "reduce", "increase", "split", "unify",
}

var messageVerbsCJK = []string{
	"添加", "新增", "增加", "修复", "更新", "删除", "移除", "重构", "优化",
	"实现", "改进", "调整", "修改", "完善", "支持", "引入", "升级", "替换",
	"合并", "初始化", "提取", "清理", "重命名", "迁移", "配置", "文档",
}

var verbSuffixes = []string{"", "s", "es", "ed", "d", "ing"}

// Clean turns raw model output into a commit message. It removes reasoning
// blocks and leading analysis preambles, drops repeated lines, keeps the
// trailing run of message lines, and collapses blank lines. When no message
// line is found it returns the first lines of raw instead of nothing.
func Clean(raw string) string {
	text := stripReasoning(raw)
	lines := splitLines(text)
	lines = stripPreamble(lines)
	lines = dedupLines(lines)
	lines = trailingMessage(lines)

	if len(lines) == 0 {
		return firstLines(raw, fallbackLines)
	}

	return strings.TrimSpace(strings.Join(collapseBlankLines(lines), "\n"))
}

func stripReasoning(text string) string {
	text = reasoningBlock.ReplaceAllString(text, "")
	return reasoningMarker.ReplaceAllString(text, "")
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}

func stripPreamble(lines []string) []string {
	i := 0
	for i < len(lines) {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed != "" && !preamblePattern.MatchString(trimmed) {
			break
		}
		i++
	}
	return lines[i:]
}

func dedupLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if utf8.RuneCountInString(trimmed) >= minDedupRunes {
			if _, ok := seen[trimmed]; ok {
				continue
			}
			seen[trimmed] = struct{}{}
		}
		result = append(result, line)
	}
	return result
}

// trailingMessage scans from the end and returns the last contiguous run of
// message lines, allowing blank lines inside the run.
func trailingMessage(lines []string) []string {
	end := len(lines)
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}

	start := end
	for start > 0 {
		trimmed := strings.TrimSpace(lines[start-1])
		if trimmed != "" && !isMessageLine(trimmed) {
			break
		}
		start--
	}

	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}

	return lines[start:end]
}

func isMessageLine(line string) bool {
	line = bulletPrefix.ReplaceAllString(line, "")
	if conventionalHeader.MatchString(line) {
		return true
	}

	for _, verb := range messageVerbsCJK {
		if strings.HasPrefix(line, verb) {
			return true
		}
	}

	word := strings.ToLower(firstWord(line))
	for _, verb := range messageVerbs {
		if strings.HasSuffix(verb, "e") && word == verb[:len(verb)-1]+"ing" {
			return true
		}
		if !strings.HasPrefix(word, verb) {
			continue
		}
		rest := word[len(verb):]
		for _, suffix := range verbSuffixes {
			if rest == suffix {
				return true
			}
		}
	}
	return false
}

func firstWord(line string) string {
	end := strings.IndexFunc(line, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if end == -1 {
		return line
	}
	return line[:end]
}

func collapseBlankLines(lines []string) []string {
	result := make([]string, 0, len(lines))
	blanks := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blanks++
			if blanks > maxBlankRun {
				continue
			}
			result = append(result, "")
			continue
		}
		blanks = 0
		result = append(result, strings.TrimRight(line, " \t"))
	}
	return result
}

func firstLines(text string, n int) string {
	lines := splitLines(strings.TrimSpace(text))
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
