package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// JitaStationID is Jita IV - Moon 4 - Caldari Navy Assembly Plant.
const JitaStationID int64 = 60003760

// Quote is the best Jita bid (Buy) and ask (Sell) for one type.
type Quote struct {
	Buy  decimal.Decimal `json:"buy"`
	Sell decimal.Decimal `json:"sell"`
}

// PriceSource resolves quotes for a set of type ids. Types the market has never seen
// come back as a zero Quote.
type PriceSource interface {
	Prices(ctx context.Context, typeIDs []int) (map[int]Quote, error)
}

// FuzzworkClient reads station aggregates from the Fuzzwork market API.
type FuzzworkClient struct {
	baseURL   string
	stationID int64
	http      *http.Client
	limiter   *rate.Limiter
}

func NewFuzzworkClient() *FuzzworkClient {
	baseURL := strings.TrimSpace(os.Getenv("FUZZWORK_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://market.fuzzwork.co.uk"
	}
	perMin := 60
	if v := strings.TrimSpace(os.Getenv("FUZZWORK_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			perMin = n
		}
	}
	return NewFuzzworkClientWithConfig(baseURL, perMin, nil)
}

// NewFuzzworkClientWithConfig builds a client against baseURL; a nil httpClient gets a 30s timeout.
func NewFuzzworkClientWithConfig(baseURL string, perMinute int, httpClient *http.Client) *FuzzworkClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	return &FuzzworkClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		stationID: JitaStationID,
		http:      httpClient,
		limiter:   rate.NewLimiter(limit, 1),
	}
}

type fuzzworkSide struct {
	Max decimal.Decimal `json:"max"`
	Min decimal.Decimal `json:"min"`
}

type fuzzworkAggregate struct {
	Buy  fuzzworkSide `json:"buy"`
	Sell fuzzworkSide `json:"sell"`
}

func (c *FuzzworkClient) Prices(ctx context.Context, typeIDs []int) (map[int]Quote, error) {
	ids := uniqueTypeIDs(typeIDs)
	out := make(map[int]Quote, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	endpoint := fmt.Sprintf("%s/aggregates/?station=%d&types=%s", c.baseURL, c.stationID, strings.Join(parts, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fuzzwork api error %d: %s", resp.StatusCode, excerpt(body))
	}

	var parsed map[string]fuzzworkAggregate
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode fuzzwork aggregates: %w", err)
	}
	for _, id := range ids {
		agg := parsed[strconv.Itoa(id)]
		out[id] = Quote{Buy: agg.Buy.Max, Sell: agg.Sell.Min}
	}
	return out, nil
}

func uniqueTypeIDs(typeIDs []int) []int {
	seen := make(map[int]bool, len(typeIDs))
	out := make([]int, 0, len(typeIDs))
	for _, id := range typeIDs {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
