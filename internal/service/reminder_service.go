package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nurpe/aquaroute/internal/config"
	"github.com/nurpe/aquaroute/internal/model"
)

type Sender interface {
	Send(ctx context.Context, to, body string) error
}

type ReminderResult struct {
	Targets int `json:"targets"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

// ReminderService texts active customers whose balance reached the configured threshold.
type ReminderService struct {
	reports    ReportStore
	sender     Sender
	minBalance decimal.Decimal
	log        zerolog.Logger
}

func NewReminderService(reports ReportStore, sender Sender, cfg *config.Config, log zerolog.Logger) *ReminderService {
	return &ReminderService{
		reports:    reports,
		sender:     sender,
		minBalance: cfg.Reminders.MinBalance,
		log:        log,
	}
}

// Run sends one reminder per target. A failed send is logged and does not stop the run.
func (s *ReminderService) Run(ctx context.Context) (*ReminderResult, error) {
	customers, err := s.reports.ListReminderTargets(ctx, s.minBalance)
	if err != nil {
		return nil, err
	}

	result := &ReminderResult{Targets: len(customers)}
	for _, c := range customers {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := s.sender.Send(ctx, c.Phone, reminderBody(model.Summarize(c))); err != nil {
			result.Failed++
			s.log.Error().Err(err).Str("customer_id", c.ID.String()).Msg("send debt reminder failed")
			continue
		}
		result.Sent++
	}

	s.log.Info().
		Int("targets", result.Targets).
		Int("sent", result.Sent).
		Int("failed", result.Failed).
		Msg("debt reminders finished")
	return result, nil
}

func reminderBody(c model.CustomerSummary) string {
	body := fmt.Sprintf("Hola %s, su saldo pendiente es de $%s", c.FullName(), c.Balance.StringFixed(2))
	if c.BottlesOwed > 0 {
		body += fmt.Sprintf(" (%d botellones)", c.BottlesOwed)
	}
	return body + ". Gracias por su pago."
}
