package tool

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const officialFeed = `{"data": [
  {"target": {"id": 12345, "title": "第一条热榜"}, "detail_text": "1000 万热度"},
  {"target": {"id": "67890", "title": "第二条热榜"}, "detail_text": "500 万热度"},
  {"target": {"id": 1, "title": ""}, "detail_text": "无标题，跳过"}
]}`

const tophubFeed = `{"Data": {"data": [
  {"Title": "镜像条目", "Url": "https://example.com/1", "hotValue": "300万"}
]}}`

const tenapiFeed = `{"list": [
  {"name": "备用条目", "url": "https://example.com/2"}
]}`

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (m *memCache) Get(ctx context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data[key]
	return p, ok
}

func (m *memCache) Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = payload
	return nil
}

func newZhihuTool(t *testing.T, cache ResponseCache, official, tophub, tenapi http.HandlerFunc) *ZhihuHotTool {
	t.Helper()
	zt := NewZhihuHotTool(slog.Default(), cache, time.Minute)

	serve := func(h http.HandlerFunc) string {
		if h == nil {
			h = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
		}
		srv := httptest.NewServer(h)
		t.Cleanup(srv.Close)
		return srv.URL
	}
	zt.official = serve(official)
	zt.tophub = serve(tophub)
	zt.tenapi = serve(tenapi)
	return zt
}

func TestZhihuHot_OfficialFeed(t *testing.T) {
	zt := newZhihuTool(t, nil, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, officialFeed)
	}, nil, nil)

	out, err := zt.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)

	items := out["items"].([]map[string]any)
	require.Len(t, items, 2, "untitled entries must be skipped")
	assert.Equal(t, "第一条热榜", items[0]["title"])
	assert.Equal(t, "https://www.zhihu.com/question/12345", items[0]["url"])
	assert.Equal(t, "1000 万热度", items[0]["hot_value"])
	assert.Equal(t, "https://www.zhihu.com/question/67890", items[1]["url"])
}

func TestZhihuHot_LimitApplied(t *testing.T) {
	zt := newZhihuTool(t, nil, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, officialFeed)
	}, nil, nil)

	out, err := zt.Execute(context.Background(), map[string]any{"limit": 1})
	require.NoError(t, err)
	assert.Len(t, out["items"].([]map[string]any), 1)
}

func TestZhihuHot_FallbackToTophub(t *testing.T) {
	zt := newZhihuTool(t, nil, nil, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, tophubFeed)
	}, nil)

	out, err := zt.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)

	items := out["items"].([]map[string]any)
	require.Len(t, items, 1)
	assert.Equal(t, "镜像条目", items[0]["title"])
	assert.Equal(t, "300万", items[0]["hot_value"])
}

func TestZhihuHot_FallbackToTenapi(t *testing.T) {
	zt := newZhihuTool(t, nil, nil, nil, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, tenapiFeed)
	})

	out, err := zt.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)

	items := out["items"].([]map[string]any)
	require.Len(t, items, 1)
	assert.Equal(t, "备用条目", items[0]["title"])
}

func TestZhihuHot_AllSourcesDown(t *testing.T) {
	zt := newZhihuTool(t, nil, nil, nil, nil)

	out, err := zt.Execute(context.Background(), map[string]any{})
	require.NoError(t, err, "unreachable sources must not fail the tool")

	items := out["items"].([]map[string]any)
	require.Len(t, items, 1)
	assert.Contains(t, items[0]["title"], "无法获取知乎热榜")
	assert.Equal(t, "https://www.zhihu.com/hot", items[0]["url"])
}

func TestZhihuHot_CacheHitSkipsUpstream(t *testing.T) {
	var hits int
	cache := newMemCache()
	zt := newZhihuTool(t, cache, func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, officialFeed)
	}, nil, nil)

	_, err := zt.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)
	_, err = zt.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)

	assert.Equal(t, 1, hits, "second call must be served from cache")
	_, cached := cache.Get(context.Background(), zhihuCacheKey)
	assert.True(t, cached)
}
