package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Daskott/haven/shared"
)

const (
	FAST2SMS_URL       = "https://www.fast2sms.com/dev/bulkV2"
	FAST2SMS_SENDER_ID = "FSTSMS"
)

// Fast2SMS sends through the Fast2SMS bulk gateway. The gateway expects
// 10 digit indian numbers, so only the last 10 digits of each number are sent.
type Fast2SMS struct {
	apiKey   string
	url      string
	senderID string
	client   *http.Client
}

func NewFast2SMS(config shared.Fast2SMSConfig, timeout time.Duration) *Fast2SMS {
	gatewayURL := config.Url
	if gatewayURL == "" {
		gatewayURL = FAST2SMS_URL
	}

	senderID := config.SenderID
	if senderID == "" {
		senderID = FAST2SMS_SENDER_ID
	}

	return &Fast2SMS{
		apiKey:   config.ApiKey,
		url:      gatewayURL,
		senderID: senderID,
		client:   &http.Client{Timeout: timeout},
	}
}

func (f *Fast2SMS) Enabled() bool {
	return f.apiKey != "" && f.apiKey != shared.Fast2SMSPlaceholderKey
}

func (f *Fast2SMS) Send(ctx context.Context, message string, numbers []string) (SmsResult, error) {
	payload := url.Values{}
	payload.Set("authorization", f.apiKey)
	payload.Set("sender_id", f.senderID)
	payload.Set("message", message)
	payload.Set("language", "english")
	payload.Set("route", "q")
	payload.Set("numbers", JoinLastTenDigits(numbers))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, strings.NewReader(payload.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fast2sms: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fast2sms: %v", err)
	}

	result := SmsResult{}
	if err := json.Unmarshal(body, &result); err != nil {
		// Not json, hand back what the gateway said
		return SmsResult{"status_code": resp.StatusCode, "body": string(body)}, nil
	}

	return result, nil
}

// JoinLastTenDigits returns the last 10 characters of every number, comma separated.
func JoinLastTenDigits(numbers []string) string {
	trimmed := make([]string, 0, len(numbers))
	for _, number := range numbers {
		if len(number) > 10 {
			number = number[len(number)-10:]
		}
		trimmed = append(trimmed, number)
	}
	return strings.Join(trimmed, ",")
}
