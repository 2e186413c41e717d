package bbc

// Types mirroring the subset of the Sounds API payloads this service reads.

// Synopses holds the show or episode descriptions at various lengths.
type Synopses struct {
	Short  string `json:"short"`
	Medium string `json:"medium"`
	Long   string `json:"long"`
}

// Best returns the longest available synopsis, preferring long over medium
// over short.
func (s Synopses) Best() string {
	switch {
	case s.Long != "":
		return s.Long
	case s.Medium != "":
		return s.Medium
	default:
		return s.Short
	}
}

// Shortest returns the shortest available synopsis.
func (s Synopses) Shortest() string {
	switch {
	case s.Short != "":
		return s.Short
	case s.Medium != "":
		return s.Medium
	default:
		return s.Long
	}
}

// Titles holds the primary and secondary titles of a show or episode.
type Titles struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
}

// Duration holds an episode duration in seconds.
type Duration struct {
	Value int64 `json:"value"`
}

// Release holds an episode release date as an RFC3339 string.
type Release struct {
	Date string `json:"date"`
}

// QualityVariant describes one downloadable rendition of an episode.
type QualityVariant struct {
	FileURL  string `json:"file_url"`
	FileSize int64  `json:"file_size"`
}

// QualityVariants groups the download renditions by quality.
type QualityVariants struct {
	Low    *QualityVariant `json:"low"`
	Medium *QualityVariant `json:"medium"`
	High   *QualityVariant `json:"high"`
}

// Best returns the highest-quality variant that is present, or nil.
func (q QualityVariants) Best() *QualityVariant {
	switch {
	case q.High != nil:
		return q.High
	case q.Medium != nil:
		return q.Medium
	default:
		return q.Low
	}
}

// Download describes the download availability for an episode.
type Download struct {
	Type            string          `json:"type"`
	QualityVariants QualityVariants `json:"quality_variants"`
}

// Network identifies the broadcasting network of a show.
type Network struct {
	ShortTitle string `json:"short_title"`
}

// ShowInfo holds the show-level metadata from a container response.
type ShowInfo struct {
	ID       string   `json:"id"`
	Titles   Titles   `json:"titles"`
	Synopses Synopses `json:"synopses"`
	Network  Network  `json:"network"`
	ImageURL string   `json:"image_url"`
}

// Episode holds the per-episode metadata from a container list.
type Episode struct {
	ID       string   `json:"id"`
	Titles   Titles   `json:"titles"`
	Synopses Synopses `json:"synopses"`
	Duration Duration `json:"duration"`
	Release  Release  `json:"release"`
	Download Download `json:"download"`
	ImageURL string   `json:"image_url"`
}

// Show is the combined result of a container lookup: the show metadata and
// its episode list.
type Show struct {
	Info     ShowInfo
	Episodes []Episode
}

// Connection is one way of reaching a media asset.
type Connection struct {
	Protocol       string `json:"protocol"`
	Href           string `json:"href"`
	TransferFormat string `json:"transferFormat"`
}

// Media is one rendition of an episode's media.
type Media struct {
	Kind       string       `json:"kind"`
	Type       string       `json:"type"`
	Bitrate    string       `json:"bitrate"`
	Encoding   string       `json:"encoding"`
	Connection []Connection `json:"connection"`
}

// MediaList is the media selector response.
type MediaList struct {
	Media []Media `json:"media"`
}
