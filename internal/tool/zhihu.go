package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	zhihuTimeout  = 15 * time.Second
	zhihuMaxBytes = 1 << 20
	zhihuCacheKey = "zhihu_hot"
	zhihuMaxLimit = 50

	zhihuHotEndpoint  = "https://www.zhihu.com/api/v3/feed/topstory/hot-lists/total?limit=50"
	tophubEndpoint    = "https://api.tophub.fun/v2/GetAllInfoGzip?id=1&page=0"
	tenapiEndpoint    = "https://tenapi.cn/zhihuresou/"
	zhihuQuestionBase = "https://www.zhihu.com/question/"
)

// ResponseCache caches upstream payloads so repeated hot-list requests
// don't hammer the source endpoints. Satisfied by store.Cache.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error
}

// ZhihuHotTool fetches the current Zhihu hot list, trying the official
// feed API first and falling back to third-party mirrors.
type ZhihuHotTool struct {
	client   *http.Client
	cache    ResponseCache // optional
	cacheTTL time.Duration
	logger   *slog.Logger

	// Endpoint fields exist so tests can point the tool at a local server.
	official string
	tophub   string
	tenapi   string
}

type zhihuHotInput struct {
	Limit int `mapstructure:"limit"`
}

type hotItem struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	HotValue string `json:"hot_value,omitempty"`
}

func NewZhihuHotTool(logger *slog.Logger, cache ResponseCache, cacheTTL time.Duration) *ZhihuHotTool {
	return &ZhihuHotTool{
		client:   &http.Client{Timeout: zhihuTimeout},
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
		official: zhihuHotEndpoint,
		tophub:   tophubEndpoint,
		tenapi:   tenapiEndpoint,
	}
}

func (t *ZhihuHotTool) Name() string { return "zhihu_hot" }

func (t *ZhihuHotTool) Description() string {
	return "获取知乎当前热榜信息"
}

func (t *ZhihuHotTool) Parameters() map[string]any {
	return Schema(
		map[string]Param{
			"limit": {Type: "integer", Description: "返回热榜条目数量，默认为10", Default: 10},
		},
		nil,
	)
}

func (t *ZhihuHotTool) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	var in zhihuHotInput
	if err := DecodeInput(t.Name(), input, &in); err != nil {
		return nil, err
	}
	if in.Limit <= 0 {
		in.Limit = 10
	}
	if in.Limit > zhihuMaxLimit {
		in.Limit = zhihuMaxLimit
	}

	items := t.fetchItems(ctx)
	if len(items) > in.Limit {
		items = items[:in.Limit]
	}

	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		m := map[string]any{"title": item.Title, "url": item.URL}
		if item.HotValue != "" {
			m["hot_value"] = item.HotValue
		}
		out = append(out, m)
	}
	return map[string]any{"items": out}, nil
}

// fetchItems returns the full hot list, consulting the cache first and
// walking the source chain on a miss. Sources never fail the tool: when
// every source is unreachable a single explanatory item is returned.
func (t *ZhihuHotTool) fetchItems(ctx context.Context) []hotItem {
	if t.cache != nil {
		if payload, ok := t.cache.Get(ctx, zhihuCacheKey); ok {
			var items []hotItem
			if err := json.Unmarshal(payload, &items); err == nil && len(items) > 0 {
				return items
			}
		}
	}

	items, err := t.fetchOfficial(ctx)
	if err != nil {
		t.logger.Warn("zhihu feed API failed, trying tophub mirror", "error", err)
		items, err = t.fetchTophub(ctx)
	}
	if err != nil {
		t.logger.Warn("tophub mirror failed, trying tenapi mirror", "error", err)
		items, err = t.fetchTenapi(ctx)
	}
	if err != nil {
		t.logger.Warn("all hot list sources failed", "error", err)
		return []hotItem{{
			Title: "无法获取知乎热榜，可能是API限制或网络问题",
			URL:   "https://www.zhihu.com/hot",
		}}
	}

	if t.cache != nil && len(items) > 0 {
		if payload, err := json.Marshal(items); err == nil {
			if err := t.cache.Put(ctx, zhihuCacheKey, payload, t.cacheTTL); err != nil {
				t.logger.Warn("failed to cache hot list", "error", err)
			}
		}
	}
	return items
}

func (t *ZhihuHotTool) fetchOfficial(ctx context.Context) ([]hotItem, error) {
	var feed struct {
		Data []struct {
			Target struct {
				ID    json.Number `json:"id"`
				Title string      `json:"title"`
			} `json:"target"`
			DetailText string `json:"detail_text"`
		} `json:"data"`
	}
	if err := t.getJSON(ctx, t.official, &feed); err != nil {
		return nil, err
	}

	items := make([]hotItem, 0, len(feed.Data))
	for _, entry := range feed.Data {
		if entry.Target.Title == "" {
			continue
		}
		items = append(items, hotItem{
			Title:    entry.Target.Title,
			URL:      zhihuQuestionBase + entry.Target.ID.String(),
			HotValue: entry.DetailText,
		})
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("feed API returned no items")
	}
	return items, nil
}

func (t *ZhihuHotTool) fetchTophub(ctx context.Context) ([]hotItem, error) {
	var mirror struct {
		Data struct {
			Data []struct {
				Title    string `json:"Title"`
				URL      string `json:"Url"`
				HotValue string `json:"hotValue"`
			} `json:"data"`
		} `json:"Data"`
	}
	if err := t.getJSON(ctx, t.tophub, &mirror); err != nil {
		return nil, err
	}

	items := make([]hotItem, 0, len(mirror.Data.Data))
	for _, entry := range mirror.Data.Data {
		if entry.Title == "" {
			continue
		}
		items = append(items, hotItem{Title: entry.Title, URL: entry.URL, HotValue: entry.HotValue})
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("tophub mirror returned no items")
	}
	return items, nil
}

func (t *ZhihuHotTool) fetchTenapi(ctx context.Context) ([]hotItem, error) {
	var mirror struct {
		List []struct {
			Name string `json:"name"`
			URL  string `json:"url"`
		} `json:"list"`
	}
	if err := t.getJSON(ctx, t.tenapi, &mirror); err != nil {
		return nil, err
	}

	items := make([]hotItem, 0, len(mirror.List))
	for _, entry := range mirror.List {
		if entry.Name == "" {
			continue
		}
		items = append(items, hotItem{Title: entry.Name, URL: entry.URL})
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("tenapi mirror returned no items")
	}
	return items, nil
}

func (t *ZhihuHotTool) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgentString)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, endpoint)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, zhihuMaxBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
