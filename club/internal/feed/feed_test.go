package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alturino/fitclub/internal/config"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns:media="http://search.yahoo.com/mrss/" xmlns="http://www.w3.org/2005/Atom">
 <title>Fit Club</title>
 <entry>
  <id>yt:video:abc123</id>
  <yt:videoId>abc123</yt:videoId>
  <title>Rutina de piernas</title>
  <link rel="alternate" href="https://www.youtube.com/watch?v=abc123"/>
  <published>2025-02-10T12:00:00+00:00</published>
  <media:group>
   <media:title>Rutina de piernas</media:title>
   <media:thumbnail url="https://i.ytimg.com/vi/abc123/hqdefault.jpg" width="480" height="360"/>
   <media:description>Veinte minutos</media:description>
  </media:group>
 </entry>
 <entry>
  <id>yt:video:def456</id>
  <yt:videoId>def456</yt:videoId>
  <title>Movilidad</title>
  <published>not a date</published>
 </entry>
</feed>`

func TestParseFeed(t *testing.T) {
	videos, err := parseFeed(strings.NewReader(sampleFeed))

	require.NoError(t, err)
	require.Len(t, videos, 2)
	assert.Equal(t, "abc123", videos[0].ID)
	assert.Equal(t, "Rutina de piernas", videos[0].Title)
	assert.Equal(t, "https://i.ytimg.com/vi/abc123/hqdefault.jpg", videos[0].Thumbnail)
	assert.Equal(t, "Veinte minutos", videos[0].Description)
	assert.Equal(t, time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC), videos[0].PublishedAt.UTC())
	assert.Equal(t, "https://www.youtube.com/watch?v=def456", videos[1].URL)
	assert.True(t, videos[1].PublishedAt.IsZero())

	_, err = parseFeed(strings.NewReader("<feed><entry>"))
	assert.Error(t, err)
}

type feedStub struct {
	server *httptest.Server
	hits   atomic.Int32
	status atomic.Int32
	gate   chan struct{}
}

func newFeedStub(t *testing.T) *feedStub {
	t.Helper()
	stub := &feedStub{}
	stub.status.Store(http.StatusOK)
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.hits.Add(1)
		if stub.gate != nil {
			<-stub.gate
		}
		if r.URL.Query().Get("channel_id") != "UC-fitclub" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(int(stub.status.Load()))
		w.Write([]byte(sampleFeed))
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func newTestService(t *testing.T, stub *feedStub) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	cfg := config.Youtube{ChannelID: "UC-fitclub", FeedURL: stub.server.URL, Timeout: time.Second}
	return newService(cfg, NewRedisCache(client, 10*time.Minute), http.DefaultTransport), mr
}

func TestVideosCachesFeed(t *testing.T) {
	c := context.Background()
	stub := newFeedStub(t)
	s, mr := newTestService(t, stub)

	first, err := s.Videos(c)
	require.NoError(t, err)
	second, err := s.Videos(c)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, stub.hits.Load())
	assert.Equal(t, 10*time.Minute, mr.TTL("club:videos:UC-fitclub"))

	mr.FastForward(11 * time.Minute)
	_, err = s.Videos(c)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stub.hits.Load())
}

func TestVideosSharesConcurrentMisses(t *testing.T) {
	stub := newFeedStub(t)
	stub.gate = make(chan struct{})
	s, _ := newTestService(t, stub)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			videos, err := s.Videos(context.Background())
			if assert.NoError(t, err) {
				assert.Len(t, videos, 2)
			}
		}()
	}
	assert.Eventually(t, func() bool { return stub.hits.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(stub.gate)
	wg.Wait()

	assert.EqualValues(t, 1, stub.hits.Load())
}

func TestVideosUpstreamFailure(t *testing.T) {
	stub := newFeedStub(t)
	stub.status.Store(http.StatusInternalServerError)
	s, mr := newTestService(t, stub)

	_, err := s.Videos(context.Background())

	assert.ErrorIs(t, err, ErrFeedUnavailable)
	assert.False(t, mr.Exists("club:videos:UC-fitclub"))
}
