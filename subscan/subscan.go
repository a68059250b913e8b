package subscan

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"ctcbalance/accounts"
	"ctcbalance/metrics"
	"ctcbalance/util"
)

const (
	SEARCH_PATH       = "/api/v2/scan/search"
	REWARD_SLASH_PATH = "/api/v2/scan/account/reward_slash"

	PAGE_ROWS = 100
	MAX_PAGES = 1000

	REWARDED_EVENT = "Rewarded"

	HTTP_TIMEOUT = 30 * time.Second
)

var fasterJson = jsoniter.ConfigCompatibleWithStandardLibrary

// DailyRewards maps a UTC date (YYYY-MM-DD) to the reward received that day
type DailyRewards map[string]decimal.Decimal

type Client struct {
	baseURL  string
	apiKey   string
	decimals int32

	http  *http.Client
	retry util.RetryPolicy
}

func New(baseURL, apiKey string, decimals int32, retry util.RetryPolicy) *Client {
	return &Client{
		baseURL:  baseURL,
		apiKey:   apiKey,
		decimals: decimals,
		http: &http.Client{
			Timeout: HTTP_TIMEOUT,
		},
		retry: retry,
	}
}

type response struct {
	Code    int                 `json:"code"`
	Message string              `json:"message"`
	Data    jsoniter.RawMessage `json:"data"`
}

type searchData struct {
	Account struct {
		Address string `json:"address"`
		Stash   string `json:"stash"`
	} `json:"account"`
}

type rewardItem struct {
	Stash          string `json:"stash"`
	Amount         string `json:"amount"`
	BlockTimestamp int64  `json:"block_timestamp"`
	EventID        string `json:"event_id"`
	ExtrinsicIndex string `json:"extrinsic_index"`
}

type rewardPage struct {
	Count int          `json:"count"`
	List  []rewardItem `json:"list"`
}

// post sends body as JSON to path and returns the response envelope. Transport
// errors and non-200 statuses are retried, API level codes are not.
func (c *Client) post(ctx context.Context, path string, body any) (*response, error) {

	payload, err := fasterJson.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to marshal request")
	}

	return util.RetryValue(ctx, c.retry, path, func() (*response, error) {

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, errors.Wrap(err, "Unable to make request")
		}

		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("X-API-Key", c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			metrics.ExplorerRequests.WithLabelValues(path, "error").Inc()
			return nil, errors.Wrap(err, "Unable to execute request")
		}
		defer resp.Body.Close()

		metrics.ExplorerRequests.WithLabelValues(path, strconv.Itoa(resp.StatusCode)).Inc()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.Wrap(err, "Unable to read response")
		}

		if resp.StatusCode != http.StatusOK {
			return nil, errors.Errorf("Unexpected status %d from %s", resp.StatusCode, path)
		}

		r := &response{}
		if err := fasterJson.Unmarshal(raw, r); err != nil {
			return nil, errors.Wrap(err, "Unable to unmarshal response")
		}

		return r, nil
	})
}

// ResolveStash returns the stash the explorer associates with address, or
// address itself when none is known
func (c *Client) ResolveStash(ctx context.Context, address string) (string, error) {

	r, err := c.post(ctx, SEARCH_PATH, map[string]string{"key": address})
	if err != nil {
		return address, errors.Wrap(err, "Unable to search account")
	}

	if r.Code != 0 || len(r.Data) == 0 {
		return address, nil
	}

	var d searchData
	if err := fasterJson.Unmarshal(r.Data, &d); err != nil {
		return address, errors.Wrap(err, "Unable to unmarshal search result")
	}

	if d.Account.Stash == "" {
		return address, nil
	}

	return d.Account.Stash, nil
}

// DailyRewards pages through the stash's reward history, newest first, summing
// Rewarded entries between start 00:00:00 and end 23:59:59 UTC per day
func (c *Client) DailyRewards(ctx context.Context, stash string, start, end time.Time) (DailyRewards, error) {

	startTS, endTS := dayBounds(start, end)
	out := make(DailyRewards)

	for page := 0; page < MAX_PAGES; page++ {

		r, err := c.post(ctx, REWARD_SLASH_PATH, map[string]any{
			"address": stash,
			"page":    page,
			"row":     PAGE_ROWS,
		})
		if err != nil {
			return out, errors.Wrapf(err, "Unable to fetch rewards page %d", page)
		}

		if r.Code != 0 {
			return out, errors.Errorf("Explorer error %d: %s", r.Code, r.Message)
		}

		var p rewardPage
		if len(r.Data) > 0 {
			if err := fasterJson.Unmarshal(r.Data, &p); err != nil {
				return out, errors.Wrap(err, "Unable to unmarshal rewards page")
			}
		}

		if len(p.List) == 0 {
			break
		}

		older := addPage(out, p.List, startTS, endTS, c.decimals)

		log.WithFields(log.Fields{
			"Stash": stash, "Page": page, "Items": len(p.List),
		}).Trace("Fetched rewards page")

		if older || len(p.List) < PAGE_ROWS {
			break
		}
	}

	return out, nil
}

// addPage buckets the page's rewards into out and reports whether any item
// predates startTS
func addPage(out DailyRewards, items []rewardItem, startTS, endTS int64, decimals int32) bool {

	older := false

	for _, item := range items {

		if item.BlockTimestamp < startTS {
			older = true
			continue
		}

		if item.EventID != REWARDED_EVENT || item.BlockTimestamp > endTS {
			continue
		}

		amount, err := decimal.NewFromString(item.Amount)
		if err != nil {
			log.WithError(err).WithField("Amount", item.Amount).Debug("Skipping unparsable reward amount")
			continue
		}

		date := time.Unix(item.BlockTimestamp, 0).UTC().Format(util.DATE_FORMAT)
		out[date] = out[date].Add(amount.Shift(-decimals))
	}

	return older
}

func dayBounds(start, end time.Time) (int64, int64) {

	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, time.UTC)

	return s.Unix(), e.Unix()
}

// AllDailyRewards resolves each account's stash and fetches its daily rewards.
// Accounts whose rewards cannot be fetched are left out of the result and
// reported in the failed map instead.
func (c *Client) AllDailyRewards(ctx context.Context, tracked []accounts.TrackedAccount, start, end time.Time) (map[string]DailyRewards, map[string]error) {

	out := make(map[string]DailyRewards, len(tracked))
	failed := make(map[string]error)

	for _, a := range tracked {

		logger := log.WithField("Account", a.Name)

		stash, err := c.ResolveStash(ctx, a.Address)
		if err != nil {
			logger.WithError(err).Warn("Unable to resolve stash, using address")
		}

		daily, err := c.DailyRewards(ctx, stash, start, end)
		if err != nil {
			logger.WithError(err).Warn("Unable to fetch explorer rewards")
			failed[a.Name] = err
			continue
		}

		logger.WithField("Days", len(daily)).Info(fmt.Sprintf("Fetched explorer rewards for %s", stash))
		out[a.Name] = daily
	}

	return out, failed
}
