// Package feed renders a show and its episodes as an RSS 2.0 podcast feed
// with iTunes extensions, the dialect podcast apps expect.
package feed

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"soundsproxy/internal/bbc"
	"soundsproxy/internal/urlutil"
)

const (
	itunesNamespace = "http://www.itunes.com/dtds/podcast-1.0.dtd"

	// imageRecipe is substituted into the upstream image URL template. 400
	// square is the size podcast directories ask for.
	imageRecipe = "400x400"

	// estimatedBytesPerSecond sizes enclosures with no known file size.
	// Matches a 400kbit/s stream, deliberately generous so clients that
	// preallocate do not truncate.
	estimatedBytesPerSecond = 50000
)

type rssDoc struct {
	XMLName  xml.Name `xml:"rss"`
	Version  string   `xml:"version,attr"`
	ItunesNS string   `xml:"xmlns:itunes,attr"`
	Channel  channel  `xml:"channel"`
}

type channel struct {
	Title       string       `xml:"title"`
	Link        string       `xml:"link"`
	Description string       `xml:"description"`
	Language    string       `xml:"language"`
	PubDate     string       `xml:"pubDate,omitempty"`
	Image       *rssImage    `xml:"image,omitempty"`
	Author      string       `xml:"itunes:author,omitempty"`
	Subtitle    string       `xml:"itunes:subtitle,omitempty"`
	Block       string       `xml:"itunes:block,omitempty"`
	ItunesImage *itunesImage `xml:"itunes:image,omitempty"`
	Items       []item       `xml:"item"`
}

type rssImage struct {
	URL    string `xml:"url"`
	Title  string `xml:"title"`
	Link   string `xml:"link"`
	Width  int    `xml:"width"`
	Height int    `xml:"height"`
}

type itunesImage struct {
	Href string `xml:"href,attr"`
}

type item struct {
	Title       string       `xml:"title"`
	Description string       `xml:"description"`
	GUID        guid         `xml:"guid"`
	PubDate     string       `xml:"pubDate,omitempty"`
	Enclosure   enclosure    `xml:"enclosure"`
	Author      string       `xml:"itunes:author,omitempty"`
	Subtitle    string       `xml:"itunes:subtitle,omitempty"`
	Summary     string       `xml:"itunes:summary,omitempty"`
	Duration    string       `xml:"itunes:duration,omitempty"`
	Image       *itunesImage `xml:"itunes:image,omitempty"`
}

type guid struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type enclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

// Builder renders podcast feeds. baseURL is the public URL of this service,
// used for episodes that can only be served through the stream proxy.
type Builder struct {
	baseURL string
}

// NewBuilder creates a feed builder.
func NewBuilder(baseURL string) *Builder {
	return &Builder{baseURL: urlutil.NormalizeBaseURL(baseURL)}
}

// Build renders the show as an RSS document.
func (b *Builder) Build(show *bbc.Show) ([]byte, error) {
	ch := channel{
		Title:       showTitle(show.Info.Titles),
		Link:        urlutil.JoinPath(b.baseURL, "/show/"+show.Info.ID),
		Description: show.Info.Synopses.Best(),
		Language:    "en",
		Author:      show.Info.Network.ShortTitle,
		Subtitle:    show.Info.Synopses.Shortest(),
		// Feeds are personal re-publications; keep them out of directories.
		Block: "Yes",
	}
	if img := imageURL(show.Info.ImageURL); img != "" {
		ch.Image = &rssImage{URL: img, Title: ch.Title, Link: ch.Link, Width: 400, Height: 400}
		ch.ItunesImage = &itunesImage{Href: img}
	}

	var latest time.Time
	for _, ep := range show.Episodes {
		it := b.buildItem(ep, show.Info.Network.ShortTitle)
		ch.Items = append(ch.Items, it)
		if t, err := time.Parse(time.RFC3339, ep.Release.Date); err == nil && t.After(latest) {
			latest = t
		}
	}
	if !latest.IsZero() {
		ch.PubDate = latest.Format(time.RFC1123Z)
	}

	doc := rssDoc{
		Version:  "2.0",
		ItunesNS: itunesNamespace,
		Channel:  ch,
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("rendering feed: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

func (b *Builder) buildItem(ep bbc.Episode, author string) item {
	it := item{
		Title:       episodeTitle(ep.Titles),
		Description: ep.Synopses.Best(),
		GUID:        guid{IsPermaLink: false, Value: ep.ID},
		Enclosure:   b.enclosureFor(ep),
		Author:      author,
		Subtitle:    ep.Titles.Secondary,
		Summary:     ep.Synopses.Best(),
		Duration:    formatDuration(ep.Duration.Value),
	}
	if t, err := time.Parse(time.RFC3339, ep.Release.Date); err == nil {
		it.PubDate = t.Format(time.RFC1123Z)
	}
	if img := imageURL(ep.ImageURL); img != "" {
		it.Image = &itunesImage{Href: img}
	}
	return it
}

// enclosureFor prefers a publicly downloadable rendition; app-only episodes
// point at the stream proxy instead.
func (b *Builder) enclosureFor(ep bbc.Episode) enclosure {
	if v := ep.Download.QualityVariants.Best(); v != nil && v.FileURL != "" {
		length := v.FileSize
		if length <= 0 {
			length = ep.Duration.Value * estimatedBytesPerSecond
		}
		return enclosure{URL: v.FileURL, Length: length, Type: enclosureType(v.FileURL)}
	}
	return enclosure{
		URL:    urlutil.JoinPath(b.baseURL, "/episode/"+ep.ID+".aac"),
		Length: ep.Duration.Value * estimatedBytesPerSecond,
		Type:   "audio/aac",
	}
}

// enclosureType maps a download URL's extension to a MIME type.
func enclosureType(fileURL string) string {
	switch {
	case strings.HasSuffix(fileURL, ".m4a"), strings.HasSuffix(fileURL, ".mp4"):
		return "audio/mp4"
	default:
		return "audio/mpeg"
	}
}

func showTitle(t bbc.Titles) string {
	if t.Secondary != "" {
		return t.Primary + ": " + t.Secondary
	}
	return t.Primary
}

func episodeTitle(t bbc.Titles) string {
	if t.Secondary != "" {
		return t.Secondary
	}
	return t.Primary
}

// imageURL fills in the size placeholder of an upstream image template.
func imageURL(template string) string {
	return strings.ReplaceAll(template, "{recipe}", imageRecipe)
}

// formatDuration renders seconds as H:MM:SS.
func formatDuration(seconds int64) string {
	if seconds <= 0 {
		return ""
	}
	return fmt.Sprintf("%d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}
