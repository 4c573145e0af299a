package skill

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizer_Normalize(t *testing.T) {
	n := NewNormalizer()

	t.Run("变体归一到技能族", func(t *testing.T) {
		assert.Equal(t, ".NET", n.Normalize(".NET Core"), ".NET Core 应归一到 .NET")
		assert.Equal(t, ".NET", n.Normalize("asp.net"), "asp.net 应归一到 .NET")
		assert.Equal(t, "EC2", n.Normalize("AWS EC2"), "AWS EC2 应归一到 EC2")
		assert.Equal(t, "React", n.Normalize("react.js"), "react.js 应归一到 React")
		assert.Equal(t, "Kubernetes", n.Normalize("k8s"), "k8s 应归一到 Kubernetes")
	})

	t.Run("大小写不敏感", func(t *testing.T) {
		assert.Equal(t, "Go", n.Normalize("GOLANG"))
		assert.Equal(t, "PostgreSQL", n.Normalize("Postgres"))
	})

	t.Run("未知技能原样返回", func(t *testing.T) {
		assert.Equal(t, "COBOL", n.Normalize("COBOL"))
		assert.Equal(t, "某内部框架", n.Normalize("  某内部框架  "), "应去除首尾空白")
	})

	t.Run("空输入", func(t *testing.T) {
		assert.Equal(t, "", n.Normalize(""))
		assert.Equal(t, "", n.Normalize("   "))
	})
}

func TestNormalizer_Family(t *testing.T) {
	n := NewNormalizer()

	variants := n.Family(".net")
	assert.NotEmpty(t, variants, "已知技能族应返回变体列表")
	assert.Equal(t, ".NET", variants[0], "首个元素应为规范族名")
	assert.Contains(t, variants, "asp.net core")

	assert.Nil(t, n.Family("COBOL"), "未知技能族应返回 nil")
}

func TestNormalizer_Generic(t *testing.T) {
	n := NewNormalizer()

	t.Run("泛指写法", func(t *testing.T) {
		assert.True(t, n.Generic(".NET"), "族名本身是泛指")
		assert.True(t, n.Generic("dotnet"), "无版本号别名是泛指")
		assert.True(t, n.Generic("Java"))
	})

	t.Run("带版本号视为特指", func(t *testing.T) {
		assert.False(t, n.Generic(".NET 6"), "带版本号应视为特指")
		assert.False(t, n.Generic("Java 8"))
		assert.False(t, n.Generic("MySQL 5.7"))
	})

	t.Run("表外名字不是泛指", func(t *testing.T) {
		assert.False(t, n.Generic("COBOL"))
	})
}

func TestNormalizer_SameFamily(t *testing.T) {
	n := NewNormalizer()
	assert.True(t, n.SameFamily(".NET Core", "asp.net"), "同族变体应判定为同族")
	assert.True(t, n.SameFamily("k8s", "Kubernetes"))
	assert.False(t, n.SameFamily("Java", "Go"))
	assert.False(t, n.SameFamily("", ""))
}
