package extract

import (
	"strings"
	"testing"

	"github.com/mmcdole/gofeed"
)

const imageFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"
  xmlns:media="http://search.yahoo.com/mrss/"
  xmlns:content="http://purl.org/rss/1.0/modules/content/">
<channel>
<title>Newsroom</title>
<item>
  <title>Enclosure item</title>
  <link>https://news.example.com/enclosure</link>
  <enclosure url="https://cdn.example.com/podcast.mp3" type="audio/mpeg" length="999"/>
  <enclosure url="https://cdn.example.com/enclosure.jpg" type="image/jpeg" length="12345"/>
</item>
<item>
  <title>Media content item</title>
  <link>https://news.example.com/media</link>
  <media:content url="https://cdn.example.com/media.jpg" medium="image"/>
  <media:thumbnail url="https://cdn.example.com/thumb.jpg"/>
</item>
<item>
  <title>Thumbnail only</title>
  <link>https://news.example.com/thumb</link>
  <media:thumbnail url="https://cdn.example.com/thumb-only.jpg"/>
</item>
<item>
  <title>Body image only</title>
  <link>https://news.example.com/body</link>
  <content:encoded><![CDATA[<p>Lead paragraph.</p><img src="https://cdn.example.com/body.jpg">]]></content:encoded>
</item>
<item>
  <title>Bare item</title>
  <link>https://news.example.com/bare</link>
  <description>No imagery at all.</description>
</item>
</channel>
</rss>`

func TestHintsFromFeedItem(t *testing.T) {
	feed, err := gofeed.NewParser().ParseString(imageFeedXML)
	if err != nil {
		t.Fatalf("ParseString failed: %v", err)
	}
	if len(feed.Items) != 5 {
		t.Fatalf("expected 5 items, got %d", len(feed.Items))
	}

	tests := []struct {
		name          string
		item          *gofeed.Item
		wantEnclosure string
		wantMedia     string
		wantBodyImg   string
		wantNil       bool
	}{
		{
			name:          "image enclosure skips the audio sibling",
			item:          feed.Items[0],
			wantEnclosure: "https://cdn.example.com/enclosure.jpg",
		},
		{
			name:      "media content beats media thumbnail",
			item:      feed.Items[1],
			wantMedia: "https://cdn.example.com/media.jpg",
		},
		{
			name:      "thumbnail stands in when no content element",
			item:      feed.Items[2],
			wantMedia: "https://cdn.example.com/thumb-only.jpg",
		},
		{
			name:        "item body carries the lead image",
			item:        feed.Items[3],
			wantBodyImg: "body.jpg",
		},
		{name: "no imagery yields no hints", item: feed.Items[4], wantNil: true},
		{name: "nil item", item: nil, wantNil: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hints := HintsFromFeedItem(tt.item)
			if tt.wantNil {
				if hints != nil {
					t.Fatalf("expected nil hints, got %+v", hints)
				}
				return
			}
			if hints == nil {
				t.Fatal("expected hints, got nil")
			}
			if hints.EnclosureURL != tt.wantEnclosure {
				t.Errorf("enclosure = %q, want %q", hints.EnclosureURL, tt.wantEnclosure)
			}
			if hints.MediaContentURL != tt.wantMedia {
				t.Errorf("media = %q, want %q", hints.MediaContentURL, tt.wantMedia)
			}
			if tt.wantBodyImg != "" && !strings.Contains(hints.RawContentHTML, tt.wantBodyImg) {
				t.Errorf("body html %q should carry %q", hints.RawContentHTML, tt.wantBodyImg)
			}
		})
	}
}

func TestHintsFromFeedItemPrefersItemImage(t *testing.T) {
	item := &gofeed.Item{
		Image:      &gofeed.Image{URL: "https://cdn.example.com/item-image.jpg"},
		Enclosures: []*gofeed.Enclosure{{URL: "https://cdn.example.com/enclosure.jpg", Type: "image/jpeg"}},
	}

	hints := HintsFromFeedItem(item)
	if hints == nil || hints.EnclosureURL != "https://cdn.example.com/item-image.jpg" {
		t.Fatalf("item image should win over enclosures: %+v", hints)
	}
}
