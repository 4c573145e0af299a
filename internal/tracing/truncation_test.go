package tracing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeAttributeValueMasksSensitiveNames(t *testing.T) {
	// 文件名属性含"name"关键字，值应整体掩码而非截断
	masked := SafeAttributeValue("resume.original_filename", "zhangsan_resume.pdf", DefaultMaxLength)
	assert.NotEqual(t, "zhangsan_resume.pdf", masked)
	assert.Contains(t, masked, "*")

	plain := SafeAttributeValue("db.statement", "SELECT 1", DefaultMaxLength)
	assert.Equal(t, "SELECT 1", plain, "非敏感属性名不做掩码")
}

func TestMaskPII(t *testing.T) {
	assert.Equal(t, "张*", MaskPII("张三"))
	assert.Equal(t, "王*明", MaskPII("王小明"))
	assert.Equal(t, "13*******78", MaskPII("13812345678"))
	assert.Equal(t, "*", MaskPII("a"))
	assert.Equal(t, "", MaskPII(""))
}

func TestTruncateStringKeepsHeadAndTail(t *testing.T) {
	long := strings.Repeat("a", 50) + strings.Repeat("b", 50)
	got := TruncateString(long, 23)

	assert.Contains(t, got, "...")
	assert.True(t, strings.HasPrefix(got, "aaaa"), "应保留开头片段")
	assert.True(t, strings.HasSuffix(got, "bbbb"), "应保留结尾片段")
	assert.LessOrEqual(t, len([]rune(got)), 23)

	assert.Equal(t, "short", TruncateString("short", 23), "未超长不截断")
}

func TestSafeHelpersBoundLength(t *testing.T) {
	sql := strings.Repeat("SELECT * FROM resumes; ", 100)
	assert.LessOrEqual(t, len([]rune(SafeSQL(sql))), MaxSQLLength)

	key := strings.Repeat("k", 500)
	assert.LessOrEqual(t, len([]rune(SafeRedisKey(key))), MaxRedisLength)

	content := strings.Repeat("简历内容", 200)
	assert.LessOrEqual(t, len([]rune(SafeResumeContent(content))), MaxResumeLength)
}
