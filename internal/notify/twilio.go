package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/nurpe/aquaroute/internal/config"
)

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioSender delivers SMS reminders through the Twilio messages API.
type TwilioSender struct {
	api  messageCreator
	from string
	log  zerolog.Logger
}

func NewTwilioSender(cfg config.ReminderConfig, log zerolog.Logger) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.TwilioAccountSID,
		Password: cfg.TwilioAuthToken,
	})
	return &TwilioSender{
		api:  client.Api,
		from: cfg.TwilioFromNumber,
		log:  log.With().Str("component", "twilio").Logger(),
	}
}

func (s *TwilioSender) Send(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return errors.New("empty recipient")
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	resp, err := s.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("send sms to %s: %w", to, err)
	}
	if resp != nil && resp.Sid != nil {
		s.log.Debug().Str("sid", *resp.Sid).Str("to", to).Msg("sms queued")
	}
	return nil
}
