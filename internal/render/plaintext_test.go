package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlainText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"![logo](ipfs://QmLogo) Hello", "Hello"},
		{`<img src="x.png"> Hello`, "Hello"},
		{"[our site](https://a.example) rocks", "our site rocks"},
		{"# Title\n\nSome *emphasis* and __bold__ and **more**", "Title Some emphasis and bold and more"},
		{"<p>Hi<br/>there</p><p>friend</p>", "Hi there friend"},
		{"- one\n- two\n1. three", "one two three"},
		{"> quoted\n\n---\n\nafter", "quoted after"},
		{"snake_case_name stays", "snake_case_name stays"},
		{"2 * 3 * 4", "2 * 3 * 4"},
		{"a &amp; b", "a & b"},
		{"`code` here ~~gone~~", "code here gone"},
		{"```\nfenced\n```", "fenced"},
		{"  lots \n\n\t of   space  ", "lots of space"},
		{"Fees < 5% and rewards > 2x for holders", "Fees < 5% and rewards > 2x for holders"},
		{"[wiki](https://en.wikipedia.org/wiki/DAO_(organization)) now", "wiki now"},
		{"`a*b*c`", "a*b*c"},
		{`Hello <b>bold</b> world`, "Hello bold world"},
		{"<div>\n<script>alert(1)</script>\nkept\n</div>", "kept"},
		{`\*not emphasis\*`, "*not emphasis*"},
		{"<https://juicebox.money>", "https://juicebox.money"},
		{"line one\nline two", "line one line two"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PlainText(tt.in), "input %q", tt.in)
	}
}
