package signals

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Default news source parameters.
const (
	newsBucket    = 30 * time.Minute
	newsThreshold = 0.3

	// Recency decay: article i (newest first) weighs decay^i.
	newsDecay = 0.7
)

// Headline polarity lexicon. Coarse on purpose: headlines are short and the
// recency-weighted average washes out individual misreads.
var (
	bullishWords = []string{
		"surge", "rally", "soar", "gain", "bullish", "breakout", "adoption",
		"approval", "approve", "partnership", "upgrade", "record", "high",
		"inflow", "accumulate", "buy", "launch", "integration", "growth",
	}
	bearishWords = []string{
		"crash", "plunge", "dump", "bearish", "hack", "exploit", "ban",
		"lawsuit", "sec", "fraud", "selloff", "sell-off", "liquidation",
		"outflow", "fear", "delist", "bankruptcy", "scam", "low", "drop",
	}
)

type newsArticle struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	PublishedAt time.Time `json:"publishedAt"`
}

type newsResponse struct {
	Articles []newsArticle `json:"articles"`
}

// NewsSentimentSource scores an asset from recent headlines: per-article
// lexicon polarity in [-1,1], combined with exponential recency weights.
// No articles means no signal, not an error.
type NewsSentimentSource struct {
	endpoint string
	apiKey   string
	client   *http.Client

	// maxArticles caps how many of the newest articles enter the average;
	// beyond ~15 the 0.7^i weight is noise.
	maxArticles int
}

// NewNewsSentimentSource creates the news sentiment source.
func NewNewsSentimentSource(endpoint, apiKey string) *NewsSentimentSource {
	return &NewsSentimentSource{
		endpoint:    endpoint,
		apiKey:      apiKey,
		client:      &http.Client{Timeout: 10 * time.Second},
		maxArticles: 15,
	}
}

func (s *NewsSentimentSource) ID() string            { return "news" }
func (s *NewsSentimentSource) Bucket() time.Duration { return newsBucket }
func (s *NewsSentimentSource) Threshold() float64    { return newsThreshold }

func (s *NewsSentimentSource) Fetch(ctx context.Context, asset string) (float64, error) {
	u := fmt.Sprintf("%s/v2/everything?q=%s&sortBy=publishedAt&apiKey=%s",
		s.endpoint, url.QueryEscape(asset), url.QueryEscape(s.apiKey))

	var resp newsResponse
	if err := getJSON(ctx, s.client, u, nil, &resp); err != nil {
		return 0, fmt.Errorf("news: %w", err)
	}
	return scoreArticles(resp.Articles, s.maxArticles), nil
}

// scoreArticles computes the recency-weighted polarity of a headline set.
func scoreArticles(articles []newsArticle, max int) float64 {
	if len(articles) == 0 {
		return 0
	}
	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].PublishedAt.After(articles[j].PublishedAt)
	})
	if len(articles) > max {
		articles = articles[:max]
	}

	var weighted, total float64
	weight := 1.0
	for _, a := range articles {
		weighted += weight * polarity(a.Title+" "+a.Description)
		total += weight
		weight *= newsDecay
	}
	if total == 0 {
		return 0
	}
	return clamp(weighted / total)
}

// polarity scores one text: (bullish hits - bearish hits) / total hits,
// 0 when no lexicon word matches. Whole-word matches only, so "below" does
// not read as "low".
func polarity(text string) float64 {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-'
	})
	var pos, neg float64
	for _, tok := range tokens {
		for _, w := range bullishWords {
			if tok == w {
				pos++
				break
			}
		}
		for _, w := range bearishWords {
			if tok == w {
				neg++
				break
			}
		}
	}
	if pos+neg == 0 {
		return 0
	}
	return (pos - neg) / (pos + neg)
}
