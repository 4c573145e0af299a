package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleMatchValidatesRequest(t *testing.T) {
	h := &MatchHandler{}

	_, err := h.HandleMatch(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidMatchRequest)

	_, err = h.HandleMatch(context.Background(), &MatchRequest{ResumeID: "", JDText: "some jd"})
	assert.ErrorIs(t, err, ErrInvalidMatchRequest)

	_, err = h.HandleMatch(context.Background(), &MatchRequest{ResumeID: "r-1", JDText: "   "})
	assert.ErrorIs(t, err, ErrInvalidMatchRequest)
}

func TestHandleGetMatchRunEmptyID(t *testing.T) {
	h := &MatchHandler{}

	_, err := h.HandleGetMatchRun(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestHashJDIgnoresSurroundingWhitespace(t *testing.T) {
	a := hashJD("高级Go工程师 要求5年经验")
	b := hashJD("  高级Go工程师 要求5年经验\n\n")
	c := hashJD("高级Go工程师 要求3年经验")

	require.Len(t, a, 40, "SHA1十六进制摘要应为40字符")
	assert.Equal(t, a, b, "首尾空白不应影响JD散列")
	assert.NotEqual(t, a, c)
}
