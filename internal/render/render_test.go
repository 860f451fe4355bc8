package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filipviz/juicebox-tweeter/internal/config"
	"github.com/filipviz/juicebox-tweeter/internal/model"
)

func newRenderer() *Renderer {
	return New(config.Render{BaseURL: "https://juicebox.money", Noun: "project"})
}

var v2Event = model.RawEvent{ID: "7", Version: "2", Creator: "0xabc", Position: 1700000000}

func TestRenderHeaderOnly(t *testing.T) {
	a := newRenderer().Render(v2Event, model.Metadata{Name: "Alpha"}, "0xabc")
	assert.Equal(t, "Alpha launched by 0xabc\n\nhttps://juicebox.money/v2/p/7", a.Text)
	assert.Equal(t, 48, a.Width)
	assert.False(t, a.Truncated)
	assert.Equal(t, "7", a.EventID)
	assert.Equal(t, model.Position(1700000000), a.Position)
}

func TestRenderFallbackName(t *testing.T) {
	a := newRenderer().Render(v2Event, model.Metadata{}, "0xabc")
	assert.Equal(t, "v2 project 7 launched by 0xabc\n\nhttps://juicebox.money/v2/p/7", a.Text)

	a = newRenderer().Render(v2Event, model.Metadata{Name: "   "}, "0xabc")
	assert.True(t, strings.HasPrefix(a.Text, "v2 project 7 "))
}

func TestRenderLinks(t *testing.T) {
	r := newRenderer()
	tests := []struct {
		name string
		ev   model.RawEvent
		want string
	}{
		{"v2", model.RawEvent{ID: "12", Version: "2"}, "https://juicebox.money/v2/p/12"},
		{"v1 handle", model.RawEvent{ID: "3", Version: "1", Handle: "juicebox"}, "https://juicebox.money/p/juicebox"},
		{"v1 without handle", model.RawEvent{ID: "3", Version: "1"}, "https://juicebox.money/v1/p/3"},
		{"other version", model.RawEvent{ID: "5", Version: "v3"}, "https://juicebox.money/v3/p/5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Link(tt.ev))
		})
	}
}

func TestRenderHandleLine(t *testing.T) {
	r := newRenderer()
	a := r.Render(v2Event, model.Metadata{Name: "Alpha", Twitter: "@alphadao"}, "0xabc")
	assert.Equal(t, "Alpha launched by 0xabc\n@alphadao\n\nhttps://juicebox.money/v2/p/7", a.Text)

	a = r.Render(v2Event, model.Metadata{Name: "Alpha", Twitter: "not a handle!"}, "0xabc")
	assert.NotContains(t, a.Text, "@")
}

func TestRenderShortDescriptionVerbatim(t *testing.T) {
	a := newRenderer().Render(v2Event, model.Metadata{Name: "Alpha", Description: "Hello **world**"}, "0xabc")
	assert.Equal(t, "Alpha launched by 0xabc\n\nhttps://juicebox.money/v2/p/7\n\nHello world", a.Text)
	assert.False(t, a.Truncated)
	assert.False(t, strings.HasSuffix(a.Text, Ellipsis))
}

func TestRenderTruncatesLongDescription(t *testing.T) {
	r := newRenderer()
	header := "Alpha launched by 0xabc\n\nhttps://juicebox.money/v2/p/7"
	b := budget(header)
	require.Equal(t, 280-50, b)

	desc := strings.Repeat("word ", 100)
	a := r.Render(v2Event, model.Metadata{Name: "Alpha", Description: desc}, "0xabc")

	assert.True(t, a.Truncated)
	assert.True(t, strings.HasSuffix(a.Text, Ellipsis))
	assert.LessOrEqual(t, a.Width, MaxWeightedLength)
	assert.Equal(t, WeightedLength(a.Text), a.Width)

	body := strings.TrimPrefix(a.Text, header+descriptionSeparator)
	assert.LessOrEqual(t, WeightedLength(body), b)
	assert.LessOrEqual(t, WeightedLength(strings.TrimSuffix(body, Ellipsis)), b-EllipsisReserve)
	assert.True(t, strings.HasPrefix(body, "word word"))
}

func TestRenderWidthInvariant(t *testing.T) {
	r := newRenderer()
	descs := []string{
		strings.Repeat("漢", 400),
		strings.Repeat("👨‍👩‍👧 ", 200),
		strings.Repeat("see https://example.com/x ", 40),
		strings.Repeat("x.co", 100),
		strings.Repeat("![img](ipfs://a) [link](https://b.c) *e* ", 50),
		strings.Repeat("a", 1000),
		"官网https://juicebox.money/about" + strings.Repeat("漢", 200),
		"https://" + strings.Repeat("a", 500),
	}
	names := []string{"Alpha", strings.Repeat("Ω", 200), ""}
	for _, name := range names {
		for _, desc := range descs {
			a := r.Render(v2Event, model.Metadata{Name: name, Description: desc, Twitter: "handle_15chars_"}, "jango.eth")
			assert.LessOrEqual(t, a.Width, MaxWeightedLength, "name %q", name)
			assert.LessOrEqual(t, WeightedLength(a.Text), MaxWeightedLength)
			assert.Contains(t, a.Text, "https://juicebox.money/v2/p/7")
		}
	}
}

func TestRenderOversizedHeaderOmitsDescription(t *testing.T) {
	a := newRenderer().Render(v2Event, model.Metadata{
		Name:        strings.Repeat("a", 300),
		Description: "never shown",
	}, "0xabc")

	assert.True(t, a.Truncated)
	assert.NotContains(t, a.Text, "never shown")
	assert.Contains(t, a.Text, Ellipsis+" launched by 0xabc")
	assert.LessOrEqual(t, a.Width, MaxWeightedLength)
}

func TestRenderImagesOnlyDescription(t *testing.T) {
	a := newRenderer().Render(v2Event, model.Metadata{Name: "Alpha", Description: "![banner](ipfs://Qm)"}, "0xabc")
	assert.Equal(t, "Alpha launched by 0xabc\n\nhttps://juicebox.money/v2/p/7", a.Text)
}

func TestRenderTextGluedToURL(t *testing.T) {
	desc := "官网https://juicebox.money/about" + strings.Repeat("漢", 200)
	a := newRenderer().Render(v2Event, model.Metadata{Name: "Alpha", Description: desc}, "0xabc")

	assert.True(t, a.Truncated)
	assert.True(t, strings.HasSuffix(a.Text, Ellipsis))
	assert.LessOrEqual(t, a.Width, MaxWeightedLength)
	assert.Less(t, strings.Count(a.Text, "漢"), 200)
}
