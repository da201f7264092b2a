package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTerm(t *testing.T) {
	assert.Equal(t, "python", NormalizeTerm("  Python  "), "应当小写并去除首尾空白")
	assert.Equal(t, "machine learning", NormalizeTerm("Machine   Learning"), "内部空白应压缩为单个空格")
	assert.Equal(t, "", NormalizeTerm("   "), "纯空白应返回空字符串")
	assert.Equal(t, "c++", NormalizeTerm("C++"), "符号应保留")
}

func TestNormalizeTerms(t *testing.T) {
	got := NormalizeTerms([]string{"Python", "python", "  SQL ", "", "AWS"})
	assert.Equal(t, []string{"python", "sql", "aws"}, got, "应去重并保持首次出现顺序")
}

func TestTokenizeTitle(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  []string
	}{
		{
			name:  "保留技术词汇",
			title: "Senior C++ Developer (Remote)",
			want:  []string{"c++"},
		},
		{
			name:  "过滤停用词",
			title: "Lead Engineer of Data and ML",
			want:  []string{"data", "ml"},
		},
		{
			name:  "保留node.js类词",
			title: "Node.js Backend Engineer",
			want:  []string{"node.js", "backend"},
		},
		{
			name:  "空标题",
			title: "",
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TokenizeTitle(tt.title), "分词结果不符合预期")
		})
	}
}
