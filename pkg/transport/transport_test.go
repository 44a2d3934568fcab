package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/oraculum/pkg/config"
	"github.com/kadirpekel/oraculum/pkg/llm"
	"github.com/kadirpekel/oraculum/pkg/orchestrator"
	"github.com/kadirpekel/oraculum/pkg/transcript"
)

// scriptedClient answers every Chat call with a fixed response, enough
// for exercising the transport layer without a real model.
type scriptedClient struct {
	response string
}

func (c *scriptedClient) Chat(ctx context.Context, req llm.Request) (string, error) {
	return c.response, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *transcript.Cache) {
	t.Helper()
	cache := transcript.NewCache()
	cache.Put(transcript.Video{
		Metadata: transcript.Metadata{VideoID: "v1", Title: "intro"},
		Segments: []transcript.Segment{{Start: 0, End: 2, Text: "hello world"}},
	})

	cfg := config.Config{}
	cfg.SetDefaults()
	cfg.Search.MaxIterations = 1
	cfg.Sandbox.Timeout = 2 * time.Second

	client := &scriptedClient{response: "the answer is 42"}
	orch := orchestrator.New(cache, client, nil, cfg)

	ing := transcript.NewFakeIngester(map[string]transcript.Video{
		"https://video/v2": {
			Metadata: transcript.Metadata{VideoID: "v2", Title: "second", Duration: 10},
			Segments: []transcript.Segment{{Start: 0, End: 1, Text: "more words"}},
		},
	})

	srv := New(orch, cache, ing, nil)
	return httptest.NewServer(srv.Router()), cache
}

func TestHandleHealth_ReturnsOK(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleTranscribe_MixesSuccessAndPerURLError(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()

	body, _ := json.Marshal(map[string]any{"urls": []string{"https://video/v2", "https://video/missing"}})
	resp, err := http.Post(ts.URL+"/transcribe", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Videos []videoResult `json:"videos"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Videos, 2)
	assert.Equal(t, "v2", out.Videos[0].VideoID)
	assert.Empty(t, out.Videos[0].Error)
	assert.NotEmpty(t, out.Videos[1].Error)
}

func TestHandleAsk_UnknownVideoIDsReturns400(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()

	body, _ := json.Marshal(askRequest{Question: "what happened?", VideoIDs: []string{"nope"}})
	resp, err := http.Post(ts.URL+"/ask", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleAsk_HappyPathReturnsAnswerAndTree(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()

	body, _ := json.Marshal(askRequest{Question: "what is said?", VideoIDs: []string{"v1"}, MaxIterations: 1})
	resp, err := http.Post(ts.URL+"/ask", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Contains(t, out, "answer")
	assert.Contains(t, out, "tree")
}

func TestHandleLoadDatasetAndDatasetInfo_RoundTrip(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()

	records := `[
		{"input":"a","response":"b","actual_score":0.5,"spec":{}},
		{"input":"c","response":"d","actual_score":0.8,"spec":{}},
		{"input":"e","response":"f","actual_score":0.2,"spec":{}}
	]`
	resp, err := http.Post(ts.URL+"/load-dataset", "application/json", strings.NewReader(records))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	infoResp, err := http.Get(ts.URL + "/dataset-info")
	require.NoError(t, err)
	defer infoResp.Body.Close()
	assert.Equal(t, http.StatusOK, infoResp.StatusCode)
}

func TestHandleDatasetInfo_NotFoundBeforeLoad(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/dataset-info")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleDebugTraces_EmptyWithoutObservability(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/debug/traces")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Runs []any `json:"runs"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Empty(t, out.Runs)
}

func TestWebSocket_PingReturnsPong(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(clientFrame{Type: "ping"}))

	var evt orchestrator.Event
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, orchestrator.EventPong, evt.Type)
}

func TestWebSocket_AskStreamsSearchEventsEndingInComplete(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(clientFrame{
		Type: "ask", Question: "what is said?", VideoIDs: []string{"v1"}, MaxIterations: 1,
	}))

	var last orchestrator.Event
	for i := 0; i < 20; i++ {
		var evt orchestrator.Event
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&evt); err != nil {
			break
		}
		last = evt
		if evt.Type == orchestrator.EventSearchComplete {
			break
		}
	}
	assert.Equal(t, orchestrator.EventSearchComplete, last.Type)
}
