package htmltext

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	s := NewSanitizer()
	out := s.Sanitize(`<h2 class="lead">見出し</h2><script>alert(1)</script><p onclick="x()">本文 <a href="https://example.jp">link</a></p>`)

	assert.NotContains(t, out, "<script")
	assert.NotContains(t, out, "onclick")
	assert.Contains(t, out, `<h2 class="lead">見出し</h2>`)
	assert.Contains(t, out, `rel="nofollow`)
	assert.Equal(t, "", s.Sanitize(""))
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "", PlainText("   "))
	assert.Equal(t, "just text", PlainText("just \n text"))
	assert.Equal(t, "白馬 村 の 朝", PlainText("<h2>白馬</h2><p>村<br>の</p><style>p{}</style><p>朝</p>"))
	assert.Equal(t, "Go fmt tips", PlainText("<p><strong>Go</strong> fmt <em>tips</em></p><script>var a</script>"))
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "あいう…", Excerpt("<p>あいうえお</p>", 3))
	assert.Equal(t, "あいうえお", Excerpt("<p>あいうえお</p>", 10))
	assert.Equal(t, "あいうえお", Excerpt("<p>あいうえお</p>", 0))
}

func TestTruncateDescription(t *testing.T) {
	t.Run("short text unchanged", func(t *testing.T) {
		assert.Equal(t, "短い", TruncateDescription("短い", 155))
	})

	t.Run("cuts at late break", func(t *testing.T) {
		text := strings.Repeat("あ", 8) + "。" + strings.Repeat("い", 5)
		assert.Equal(t, strings.Repeat("あ", 8)+"。", TruncateDescription(text, 10))
	})

	t.Run("early break gets ellipsis", func(t *testing.T) {
		text := "あ、" + strings.Repeat("い", 20)
		assert.Equal(t, "あ、"+strings.Repeat("い", 7)+"…", TruncateDescription(text, 10))
	})

	t.Run("default length", func(t *testing.T) {
		text := strings.Repeat("字", 200)
		got := []rune(TruncateDescription(text, 0))
		assert.Len(t, got, DefaultDescriptionLength)
		assert.Equal(t, '…', got[len(got)-1])
	})
}

func TestFontSize(t *testing.T) {
	assert.Equal(t, 1.4375, FontSize(5, 5, 5))
	assert.Equal(t, 0.875, FontSize(1, 1, 9))
	assert.Equal(t, 2.0, FontSize(9, 1, 9))
	assert.Equal(t, 1.438, FontSize(5, 1, 9))
}

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "0", FormatCount(0))
	assert.Equal(t, "9,999", FormatCount(9999))
	assert.Equal(t, "10k+", FormatCount(10000))
	assert.Equal(t, "123k+", FormatCount(123456))
}
