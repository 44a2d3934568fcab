package transcript

import (
	"context"
	"fmt"
)

// FakeIngester is the only Ingester implementation this module ships: a
// fixed URL->Video lookup table, for tests and offline demos. A real
// deployment supplies its own Ingester backed by subtitle parsing and
// audio transcription.
type FakeIngester struct {
	Videos map[string]Video
}

// NewFakeIngester builds a FakeIngester from a URL->Video table.
func NewFakeIngester(videos map[string]Video) *FakeIngester {
	return &FakeIngester{Videos: videos}
}

func (f *FakeIngester) Ingest(ctx context.Context, url string) (Video, error) {
	if err := ctx.Err(); err != nil {
		return Video{}, err
	}
	v, ok := f.Videos[url]
	if !ok {
		return Video{}, &ErrIngestFailed{URL: url, Err: fmt.Errorf("no fixture registered for url")}
	}
	return v, nil
}
