package analyzer

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/onurcolak/followup-engine/environments"
	"github.com/onurcolak/followup-engine/internal/domain"
	"github.com/onurcolak/followup-engine/pkg/logger"
)

// Client asks a remote classification service whether a reply answers a
// follow-up and whether the recipient wants to stop receiving messages.
type Client struct {
	httpClient *resty.Client
	url        string
}

func NewClient(cfg environments.AnalyzerConfig) *Client {
	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if cfg.APIKey != "" {
		httpClient.SetAuthToken(cfg.APIKey)
	}

	return &Client{httpClient: httpClient, url: cfg.URL}
}

func (c *Client) Analyze(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisResult, error) {
	var out domain.AnalysisResult

	start := time.Now()

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post(c.url)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("failed to call analyzer: %w", err)
	}

	logger.Debugf("Analyzer request for follow-up %d completed in %v (status: %d)",
		req.FollowUpID, time.Since(start), resp.StatusCode())

	if resp.StatusCode() != http.StatusOK {
		return domain.AnalysisResult{}, fmt.Errorf("unexpected analyzer status code: %d", resp.StatusCode())
	}

	return out, nil
}

// KeywordAnalyzer is the local fallback used when no analyzer service is
// configured. Every reply counts as a response; stop keywords opt out.
type KeywordAnalyzer struct {
	stopKeywords []string
}

func NewKeywordAnalyzer(stopKeywords []string) *KeywordAnalyzer {
	normalized := make([]string, 0, len(stopKeywords))
	for _, k := range stopKeywords {
		if k = normalize(k); k != "" {
			normalized = append(normalized, k)
		}
	}
	return &KeywordAnalyzer{stopKeywords: normalized}
}

func (k *KeywordAnalyzer) Analyze(_ context.Context, req domain.AnalysisRequest) (domain.AnalysisResult, error) {
	text := normalize(req.Text)
	result := domain.AnalysisResult{IsResponse: text != "", Label: "reply"}

	padded := " " + text + " "
	for _, kw := range k.stopKeywords {
		if strings.Contains(padded, " "+kw+" ") {
			result.WantsStop = true
			result.Label = "stop"
			break
		}
	}

	return result, nil
}

var accentReplacer = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a",
	"é", "e", "ê", "e",
	"í", "i",
	"ó", "o", "ô", "o", "õ", "o",
	"ú", "u", "ü", "u",
	"ç", "c",
)

// normalize lowercases, strips common Portuguese accents and collapses
// punctuation into single spaces.
func normalize(s string) string {
	s = accentReplacer.Replace(strings.ToLower(s))
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}), " ")
}
