package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitSkills(t *testing.T) {
	assert.Equal(t, []string{"Go", "MySQL", "Redis"}, splitSkills("Go, MySQL ,Redis"), "应按逗号切分并去除空白")
	assert.Equal(t, []string{"c++"}, splitSkills("c++,,  ,"), "空片段应被丢弃")
	assert.Nil(t, splitSkills("   "), "空输入应返回nil")
}
