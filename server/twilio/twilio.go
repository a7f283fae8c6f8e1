package twilio

import (
	"context"
	"fmt"

	"github.com/Daskott/haven/server/logger"
	"github.com/Daskott/haven/server/notify"
	"github.com/Daskott/haven/shared"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

var logg = logger.NewLogger()

type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// ClientWrapper sends SMS alerts through a twilio messaging service, one
// message per number.
type ClientWrapper struct {
	messages messageCreator
	config   shared.TwilioConfig
}

func NewClient(config shared.TwilioConfig) *ClientWrapper {
	client := twilio.NewRestClientWithParams(twilio.RestClientParams{
		Username: config.AccountSid,
		Password: config.AuthToken,
	})

	return &ClientWrapper{
		messages: client.ApiV2010,
		config:   config,
	}
}

func (cw *ClientWrapper) Enabled() bool {
	return cw.config.TwilioEnabled()
}

func (cw *ClientWrapper) SendMessage(to, msg string) (*openapi.ApiV2010Message, error) {
	params := &openapi.CreateMessageParams{}
	params.SetMessagingServiceSid(cw.config.MessagingServiceSid)
	params.SetTo(to)
	params.SetBody(msg)

	return cw.messages.CreateMessage(params)
}

// Send implements notify.SmsSender. A failed number doesn't stop the others;
// it is reported under 'errors' in the result.
func (cw *ClientWrapper) Send(ctx context.Context, message string, numbers []string) (notify.SmsResult, error) {
	sent := []map[string]interface{}{}
	failed := map[string]string{}

	for _, number := range numbers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := cw.SendMessage(number, message)
		if err != nil {
			logg.Errorf("twilio: unable to message %v: %v", number, err)
			failed[number] = err.Error()
			continue
		}

		sent = append(sent, map[string]interface{}{
			"to":     number,
			"sid":    stringValue(resp.Sid),
			"status": stringValue(resp.Status),
		})
	}

	if len(sent) == 0 && len(failed) > 0 {
		return nil, fmt.Errorf("twilio: all %v messages failed", len(failed))
	}

	result := notify.SmsResult{"return": len(failed) == 0, "messages": sent}
	if len(failed) > 0 {
		result["errors"] = failed
	}

	return result, nil
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
