package parser

import (
	"strings"
	"unicode/utf8"
)

// 本文件收集 LLM 返回内容的清洗与 JSON 提取工具。
// 各提取器/评估器共用，保证对模型输出缺陷（BOM、代码围栏、
// 拼接对象、字符串内裸引号）的修复行为一致。

// cleanLLMContent 去除 BOM、markdown 代码围栏与首尾空白
func cleanLLMContent(text string) string {
	text = strings.TrimPrefix(text, "\uFEFF")
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx != -1 {
			text = text[idx+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	return strings.TrimSpace(text)
}

// extractJSONObject 用括号配对从文本中提取第一个完整的JSON对象
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}
	level := 0
	inStr := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inStr {
				escaped = true
			}
		case '"':
			inStr = !inStr
		case '{':
			if !inStr {
				level++
			}
		case '}':
			if !inStr {
				level--
				if level == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}

// extractJSONArray 提取第一个完整的JSON数组
func extractJSONArray(text string) string {
	start := strings.Index(text, "[")
	if start == -1 {
		return ""
	}
	level := 0
	inStr := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inStr {
				escaped = true
			}
		case '"':
			inStr = !inStr
		case '[':
			if !inStr {
				level++
			}
		case ']':
			if !inStr {
				level--
				if level == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}

// repairConcatenatedObjects 修复 "}{"/"}\n{" 形式的对象拼接：
// 模型偶尔把多个对象直接连在一起输出，这里把它们合并成一个对象
// （后出现的键覆盖先出现的键由调用方的反序列化语义决定，这里只做
// 语法层面的拼接修复）。
func repairConcatenatedObjects(jsonStr string) string {
	trimmed := strings.TrimSpace(jsonStr)
	if !strings.HasPrefix(trimmed, "{") {
		return jsonStr
	}
	var b strings.Builder
	inStr := false
	escaped := false
	level := 0
	for i := 0; i < len(trimmed); i++ {
		c := trimmed[i]
		if escaped {
			b.WriteByte(c)
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inStr {
				escaped = true
			}
			b.WriteByte(c)
		case '"':
			inStr = !inStr
			b.WriteByte(c)
		case '{':
			if !inStr {
				level++
				if level == 1 && b.Len() > 0 {
					// 上一个对象刚闭合又开始了新对象，改写为成员分隔
					continue
				}
			}
			b.WriteByte(c)
		case '}':
			if !inStr {
				level--
				if level == 0 {
					// 先不写闭括号，看后面是否还跟着新对象
					rest := strings.TrimSpace(trimmed[i+1:])
					if strings.HasPrefix(rest, "{") {
						b.WriteByte(',')
						continue
					}
				}
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// sanitizeJSON 会遍历 src，将任何位于字符串字面量内部但并非"真正结束"的双引号写成 \"，
// 以保证整个 JSON 在 Go 端能够正常反序列化。
// 它通过检查下一个非空白字符是否为 :, ], }, 或 , 来判断该 " 是否为字符串的结束。
// 反斜杠转义逻辑则正常处理 \\ 和 \"。
func sanitizeJSON(src string) string {
	var b strings.Builder
	inStr := false
	escaped := false

	for i := 0; i < len(src); i++ {
		c := src[i]

		if c == '"' && !escaped {
			if !inStr {
				inStr = true
				b.WriteByte(c)
			} else {
				j := i + 1
				for j < len(src) && (src[j] == ' ' || src[j] == '\t' || src[j] == '\n' || src[j] == '\r') {
					j++
				}
				if j < len(src) && (src[j] == ':' || src[j] == ',' || src[j] == ']' || src[j] == '}') {
					inStr = false
					b.WriteByte(c)
				} else {
					b.WriteString("\\\"")
				}
			}
			escaped = false

		} else if c == '\\' && !escaped {
			escaped = true
			b.WriteByte(c)

		} else {
			b.WriteByte(c)
			escaped = false
		}
	}

	return b.String()
}
