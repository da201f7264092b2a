package matcher

import (
	"strings"
	"unicode"
)

// 标题分词时过滤的通用词，保留技术词汇
var titleStopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "of": {}, "for": {},
	"in": {}, "at": {}, "to": {}, "with": {}, "on": {}, "by": {},
	"senior": {}, "junior": {}, "lead": {}, "staff": {}, "principal": {},
	"engineer": {}, "developer": {}, "remote": {}, "hybrid": {}, "onsite": {},
}

// NormalizeTerm 对单个技能或关键词做规范化：小写、去首尾空白、压缩内部空白
// 规范化是所有技能比较的唯一口径，指纹计算与技能差集都依赖它
func NormalizeTerm(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeTerms 规范化一组词并去重，保持首次出现顺序
func NormalizeTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		n := NormalizeTerm(t)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// TermSet 将一组词规范化后转为集合
func TermSet(terms []string) map[string]struct{} {
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		n := NormalizeTerm(t)
		if n == "" {
			continue
		}
		set[n] = struct{}{}
	}
	return set
}

// TokenizeTitle 将岗位标题切分为关键词
// 保留 c++ / c# / node.js 这类带符号的技术词，过滤停用词和单字符噪音
func TokenizeTitle(title string) []string {
	title = strings.ToLower(title)
	fields := strings.FieldsFunc(title, func(r rune) bool {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
		switch r {
		case '+', '#', '.', '-':
			return false
		}
		return true
	})

	out := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".-")
		if len(f) < 2 && f != "c" && f != "r" {
			continue
		}
		if _, stop := titleStopwords[f]; stop {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
