package transcript

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeIngester_ReturnsRegisteredVideo(t *testing.T) {
	v := Video{
		Metadata: Metadata{VideoID: "abc123", Title: "Test Video"},
		Segments: []Segment{{Start: 0, End: 5, Text: "hello world"}},
	}
	ing := NewFakeIngester(map[string]Video{"https://example.com/abc123": v})

	got, err := ing.Ingest(context.Background(), "https://example.com/abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.Metadata.VideoID)
}

func TestFakeIngester_UnknownURLReturnsIngestError(t *testing.T) {
	ing := NewFakeIngester(nil)
	_, err := ing.Ingest(context.Background(), "https://example.com/missing")
	require.Error(t, err)
	var target *ErrIngestFailed
	assert.ErrorAs(t, err, &target)
}

func TestCache_PutGetAndGetAll(t *testing.T) {
	c := NewCache()
	v1 := Video{Metadata: Metadata{VideoID: "v1"}}
	v2 := Video{Metadata: Metadata{VideoID: "v2"}}
	c.Put(v1)
	c.Put(v2)

	got, ok := c.Get("v1")
	require.True(t, ok)
	assert.Equal(t, "v1", got.Metadata.VideoID)

	all := c.GetAll([]string{"v1", "v2", "missing"})
	assert.Len(t, all, 2)
	assert.Equal(t, 2, c.Len())
}

func TestCache_IngestStoresResultUnderVideoID(t *testing.T) {
	c := NewCache()
	v := Video{Metadata: Metadata{VideoID: "xyz"}, Segments: []Segment{{Text: "a"}}}
	ing := NewFakeIngester(map[string]Video{"u": v})

	got, err := c.Ingest(context.Background(), ing, "u")
	require.NoError(t, err)
	assert.Equal(t, "xyz", got.Metadata.VideoID)

	cached, ok := c.Get("xyz")
	require.True(t, ok)
	assert.Equal(t, v.Segments, cached.Segments)
}

func TestVideo_TranscriptCharsAndPreview(t *testing.T) {
	v := Video{Segments: []Segment{{Text: "hello"}, {Text: "world"}}}
	assert.Equal(t, 10, v.TranscriptChars())
	assert.Equal(t, "hello world", v.Preview(100))
	assert.Equal(t, "hello", v.Preview(5))
}
