// Package render builds launch announcements that fit the broadcast
// channel's weighted length limit.
package render

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/filipviz/juicebox-tweeter/internal/config"
	"github.com/filipviz/juicebox-tweeter/internal/model"
)

const descriptionSeparator = "\n\n"

var validHandle = regexp.MustCompile(fmt.Sprintf(`^[A-Za-z0-9_]{1,%d}$`, maxHandleLength))

type Renderer struct {
	baseURL string
	noun    string
}

func New(cfg config.Render) *Renderer {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://juicebox.money"
	}
	noun := cfg.Noun
	if noun == "" {
		noun = "project"
	}
	return &Renderer{baseURL: base, noun: noun}
}

// DisplayName is the metadata name, or "v<version> <noun> <id>" when the
// metadata has none.
func (r *Renderer) DisplayName(ev model.RawEvent, md model.Metadata) string {
	if name := strings.Join(strings.Fields(md.Name), " "); name != "" {
		return name
	}
	return fmt.Sprintf("v%s %s %s", strings.TrimPrefix(ev.Version, "v"), r.noun, ev.ID)
}

// Link is the canonical project page.
func (r *Renderer) Link(ev model.RawEvent) string {
	version := strings.TrimPrefix(ev.Version, "v")
	switch {
	case version == "2":
		return r.baseURL + "/v2/p/" + ev.ID
	case version == "1" && ev.Handle != "":
		return r.baseURL + "/p/" + ev.Handle
	default:
		return r.baseURL + "/v" + version + "/p/" + ev.ID
	}
}

func (r *Renderer) header(name, creator, handle, link string) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteString(" launched by ")
	b.WriteString(creator)
	if handle != "" {
		b.WriteString("\n@")
		b.WriteString(handle)
	}
	b.WriteString("\n\n")
	b.WriteString(link)
	return b.String()
}

// Render builds the announcement for ev. creator is the display form of the
// creator address. The result never exceeds MaxWeightedLength.
func (r *Renderer) Render(ev model.RawEvent, md model.Metadata, creator string) model.Announcement {
	name := norm.NFC.String(r.DisplayName(ev, md))
	creator = norm.NFC.String(strings.TrimSpace(creator))
	if creator == "" {
		creator = "unknown"
	}
	handle := strings.TrimPrefix(strings.TrimSpace(md.Twitter), "@")
	if !validHandle.MatchString(handle) {
		handle = ""
	}
	link := r.Link(ev)

	a := model.Announcement{EventID: ev.ID, Position: ev.Position}
	header := r.header(name, creator, handle, link)
	if !Fits(header) {
		header = r.shrinkHeader(name, creator, handle, link)
		a.Truncated = true
	}

	text := header
	if desc := norm.NFC.String(PlainText(md.Description)); desc != "" {
		body, cut := fitDescription(header, desc)
		if body != "" {
			text = header + descriptionSeparator + body
		}
		a.Truncated = a.Truncated || cut
	}
	a.Text = text
	a.Width = WeightedLength(text)
	return a
}

// budget is what remains for the description after header and separator,
// never negative.
func budget(header string) int {
	b := MaxWeightedLength - WeightedLength(header+descriptionSeparator)
	if b < 0 {
		return 0
	}
	return b
}

// fitDescription returns desc unchanged when it fits, otherwise a prefix
// ending in Ellipsis. An empty result means the description is omitted.
func fitDescription(header, desc string) (string, bool) {
	b := budget(header)
	if WeightedLength(desc) <= b {
		return desc, false
	}
	// Cutting text can change how URLs are detected in what remains, so the
	// full text is measured again and the limit tightened until it fits.
	for limit := b - EllipsisReserve; limit > 0; limit-- {
		cut := truncate(desc, limit)
		if cut == "" {
			break
		}
		body := cut + Ellipsis
		if Fits(header + descriptionSeparator + body) {
			return body, true
		}
	}
	return "", true
}

// shrinkHeader shortens the display name until the header fits.
func (r *Renderer) shrinkHeader(name, creator, handle, link string) string {
	fixed := WeightedLength(r.header("", creator, handle, link))
	for limit := MaxWeightedLength - fixed - EllipsisReserve; limit > 0; limit-- {
		h := r.header(truncate(name, limit)+Ellipsis, creator, handle, link)
		if Fits(h) {
			return h
		}
	}
	// Name cannot be kept at all; drop the handle line and the creator.
	return r.header(Ellipsis, Ellipsis, "", link)
}
