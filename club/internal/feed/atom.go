package feed

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"github.com/Alturino/fitclub/club/pkg/response"
)

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	VideoID   string     `xml:"videoId"`
	Title     string     `xml:"title"`
	Published string     `xml:"published"`
	Links     []atomLink `xml:"link"`
	Group     struct {
		Description string `xml:"description"`
		Thumbnail   struct {
			URL string `xml:"url,attr"`
		} `xml:"thumbnail"`
	} `xml:"group"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

func parseFeed(r io.Reader) ([]response.Video, error) {
	feed := atomFeed{}
	if err := xml.NewDecoder(r).Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed decoding atom feed with error=%w", err)
	}

	videos := make([]response.Video, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		if entry.VideoID == "" {
			continue
		}
		video := response.Video{
			ID:          entry.VideoID,
			Title:       entry.Title,
			URL:         "https://www.youtube.com/watch?v=" + entry.VideoID,
			Thumbnail:   entry.Group.Thumbnail.URL,
			Description: entry.Group.Description,
		}
		for _, link := range entry.Links {
			if link.Rel == "alternate" && link.Href != "" {
				video.URL = link.Href
			}
		}
		if published, err := time.Parse(time.RFC3339, entry.Published); err == nil {
			video.PublishedAt = published
		}
		videos = append(videos, video)
	}
	return videos, nil
}
