package webhook

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/onurcolak/followup-engine/pkg/logger"
)

// Alert is posted when the dispatcher keeps failing every send.
type Alert struct {
	Alert               string `json:"alert"`
	RunNumber           int64  `json:"runNumber"`
	ConsecutiveFailures int    `json:"consecutiveFailures"`
	FollowUpsInBatch    int    `json:"followUpsInBatch"`
	Timestamp           string `json:"timestamp"`
	Message             string `json:"message"`
}

// Client posts operational alerts to an incoming webhook (Slack, Discord, a
// pager bridge, ...). It is unrelated to the WhatsApp gateway.
type Client struct {
	httpClient *resty.Client
	webhookURL string
}

func NewAlertClient(webhookURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		webhookURL: webhookURL,
	}
}

func (c *Client) SendAlert(ctx context.Context, alert Alert) error {
	startTime := time.Now()

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(alert).
		Post(c.webhookURL)

	duration := time.Since(startTime)

	if err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}

	logger.Debugf("Alert webhook request completed in %v (status: %d)", duration, resp.StatusCode())

	switch resp.StatusCode() {
	case http.StatusOK, http.StatusAccepted, http.StatusNoContent:
		return nil
	default:
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode())
	}
}

func (c *Client) GetURL() string {
	return c.webhookURL
}
