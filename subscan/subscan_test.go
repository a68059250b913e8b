package subscan

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctcbalance/accounts"
	"ctcbalance/util"
)

var testRetry = util.RetryPolicy{Attempts: 2, BaseDelay: time.Millisecond}

func day(s string) time.Time {
	t, _ := time.Parse(util.DATE_FORMAT, s)
	return t
}

func ts(s string) int64 {
	t, _ := time.Parse(time.RFC3339, s)
	return t.Unix()
}

type fakeExplorer struct {
	lock    sync.Mutex
	pages   map[int][]rewardItem
	stash   string
	keys    []string
	queried []int
}

func (f *fakeExplorer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		f.lock.Lock()
		defer f.lock.Unlock()

		f.keys = append(f.keys, r.Header.Get("X-API-Key"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		switch r.URL.Path {
		case SEARCH_PATH:
			var req struct {
				Key string `json:"key"`
			}
			require.NoError(t, fasterJson.Unmarshal(body, &req))

			if f.stash == "" {
				_, _ = w.Write([]byte(`{"code":10004,"message":"Record Not Found"}`))
				return
			}
			_ = fasterJson.NewEncoder(w).Encode(map[string]any{
				"code": 0,
				"data": map[string]any{"account": map[string]string{"address": req.Key, "stash": f.stash}},
			})

		case REWARD_SLASH_PATH:
			var req struct {
				Address string `json:"address"`
				Page    int    `json:"page"`
				Row     int    `json:"row"`
			}
			require.NoError(t, fasterJson.Unmarshal(body, &req))
			assert.Equal(t, PAGE_ROWS, req.Row)

			f.queried = append(f.queried, req.Page)
			_ = fasterJson.NewEncoder(w).Encode(map[string]any{
				"code": 0,
				"data": rewardPage{Count: 0, List: f.pages[req.Page]},
			})

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func reward(when string, planck string) rewardItem {
	return rewardItem{Amount: planck, BlockTimestamp: ts(when), EventID: REWARDED_EVENT}
}

func fullPage(when string) []rewardItem {
	items := make([]rewardItem, PAGE_ROWS)
	for i := range items {
		items[i] = reward(when, "1000000000000000000")
	}
	return items
}

func TestResolveStash(t *testing.T) {

	f := &fakeExplorer{stash: "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty"}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	c := New(srv.URL, "secret", 18, testRetry)

	stash, err := c.ResolveStash(context.Background(), "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY")
	require.NoError(t, err)
	assert.Equal(t, f.stash, stash)
	assert.Equal(t, []string{"secret"}, f.keys)
}

func TestResolveStashUnknownReturnsInput(t *testing.T) {

	f := &fakeExplorer{}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	c := New(srv.URL, "", 18, testRetry)

	stash, err := c.ResolveStash(context.Background(), "addr")
	require.NoError(t, err)
	assert.Equal(t, "addr", stash)
	assert.Equal(t, []string{""}, f.keys)
}

func TestDailyRewardsBucketsByUTCDate(t *testing.T) {

	f := &fakeExplorer{pages: map[int][]rewardItem{
		0: {
			reward("2024-09-03T01:00:00Z", "10000000000000000000"), // after end
			reward("2024-09-02T23:59:00Z", "1500000000000000000"),
			reward("2024-09-02T00:00:10Z", "500000000000000000"),
			{Amount: "7000000000000000000", BlockTimestamp: ts("2024-09-02T12:00:00Z"), EventID: "Slashed"},
			reward("2024-09-01T06:00:00Z", "250000000000000000"),
		},
	}}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	c := New(srv.URL, "", 18, testRetry)

	daily, err := c.DailyRewards(context.Background(), "stash", day("2024-09-01"), day("2024-09-02"))
	require.NoError(t, err)

	require.Len(t, daily, 2)
	assert.Equal(t, "2", daily["2024-09-02"].String())
	assert.Equal(t, "0.25", daily["2024-09-01"].String())

	// short page ends paging
	assert.Equal(t, []int{0}, f.queried)
}

func TestDailyRewardsStopsAtOlderItems(t *testing.T) {

	older := fullPage("2024-09-05T10:00:00Z")
	older[PAGE_ROWS-1] = reward("2024-08-30T10:00:00Z", "1000000000000000000")

	f := &fakeExplorer{pages: map[int][]rewardItem{
		0: fullPage("2024-09-06T10:00:00Z"),
		1: older,
		2: fullPage("2024-08-29T10:00:00Z"),
	}}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	c := New(srv.URL, "", 18, testRetry)

	daily, err := c.DailyRewards(context.Background(), "stash", day("2024-09-01"), day("2024-09-10"))
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, f.queried)
	assert.Equal(t, "100", daily["2024-09-06"].String())
	assert.Equal(t, "99", daily["2024-09-05"].String())
	assert.NotContains(t, daily, "2024-08-30")
}

func TestDailyRewardsStopsOnEmptyPage(t *testing.T) {

	f := &fakeExplorer{pages: map[int][]rewardItem{
		0: fullPage("2024-09-06T10:00:00Z"),
	}}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	c := New(srv.URL, "", 18, testRetry)

	daily, err := c.DailyRewards(context.Background(), "stash", day("2024-09-01"), day("2024-09-10"))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, f.queried)
	assert.Equal(t, "100", daily["2024-09-06"].String())
}

func TestDailyRewardsAPIError(t *testing.T) {

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":20008,"message":"API rate limit exceeded"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "", 18, testRetry)

	_, err := c.DailyRewards(context.Background(), "stash", day("2024-09-01"), day("2024-09-02"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}

func TestServerErrorsAreRetried(t *testing.T) {

	var lock sync.Mutex
	hits := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lock.Lock()
		defer lock.Unlock()

		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"code":0,"data":{"count":0,"list":[]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "", 18, testRetry)

	daily, err := c.DailyRewards(context.Background(), "stash", day("2024-09-01"), day("2024-09-02"))
	require.NoError(t, err)
	assert.Empty(t, daily)
	assert.Equal(t, 2, hits)
}

func TestAllDailyRewardsReportsFailures(t *testing.T) {

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		var req struct {
			Address string `json:"address"`
		}
		body, _ := io.ReadAll(r.Body)
		_ = fasterJson.Unmarshal(body, &req)

		switch {
		case r.URL.Path == SEARCH_PATH:
			_, _ = w.Write([]byte(`{"code":10004,"message":"Record Not Found"}`))
		case req.Address == "b":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			_ = fasterJson.NewEncoder(w).Encode(map[string]any{
				"code": 0,
				"data": rewardPage{Count: 1, List: []rewardItem{
					{EventID: REWARDED_EVENT, Amount: "1000000000000000000", BlockTimestamp: ts("2024-09-01T10:00:00Z")},
				}},
			})
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "", 18, testRetry)

	tracked := []accounts.TrackedAccount{{Name: "alice", Address: "a"}, {Name: "bob", Address: "b"}}
	all, failed := c.AllDailyRewards(context.Background(), tracked, day("2024-09-01"), day("2024-09-02"))

	require.Len(t, all, 1)
	assert.Equal(t, "1", all["alice"]["2024-09-01"].String())

	require.Len(t, failed, 1)
	assert.Error(t, failed["bob"])
	_, ok := all["bob"]
	assert.False(t, ok)
}
