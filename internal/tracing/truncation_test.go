package tracing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPII(t *testing.T) {
	assert.Equal(t, "*", MaskPII("a"), "单字符应完全掩码")
	assert.Equal(t, "张*", MaskPII("张三"), "两字符保留首字符")
	assert.Equal(t, "王*明", MaskPII("王小明"), "短字符串保留首尾")
	assert.Equal(t, "13*******78", MaskPII("13812345678"), "长字符串保留首尾各2字符")
	assert.Equal(t, "", MaskPII(""), "空字符串应原样返回")
}

func TestSafeAttributeValue(t *testing.T) {
	assert.Equal(t, "13*******78", SafeAttributeValue("user_phone", "13812345678", DefaultMaxLength), "phone属性应被掩码")
	assert.Equal(t, "plain value", SafeAttributeValue("job_title", "plain value", DefaultMaxLength), "非敏感属性应原样保留")

	long := strings.Repeat("x", 300)
	got := SafeAttributeValue("job_description", long, DefaultMaxLength)
	assert.LessOrEqual(t, len([]rune(got)), DefaultMaxLength, "过长属性应被截断")
	assert.Contains(t, got, "...", "截断应带省略号")
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10), "不超长时应原样返回")
	assert.Equal(t, "ab", TruncateString("abcdef", 2), "maxLength过小时直接截断")

	got := TruncateString("abcdefghijklmn", 9)
	assert.Equal(t, "abc...lmn", got, "应保留首尾并用省略号连接")
}
