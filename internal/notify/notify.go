// Package notify delivers the run summary to a webhook. Delivery is
// best-effort: on any failure the payload lands on disk instead, so
// the outcome of a run is always observable somewhere.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hmuraoka/kabuto/internal/contracts"
	"github.com/hmuraoka/kabuto/pkg/httputil"
	"github.com/hmuraoka/kabuto/pkg/logger"
)

// Payload is the webhook message body (Slack-compatible).
type Payload struct {
	Text string `json:"text"`
}

// Notifier posts run summaries to a webhook URL.
type Notifier struct {
	log     *logger.Logger
	http    *httputil.Client
	webhook string
}

// New builds a notifier. An empty webhook URL is valid and routes
// every payload straight to the disk fallback.
func New(log *logger.Logger, client *httputil.Client, webhookURL string) *Notifier {
	return &Notifier{
		log:     log.WithComponent("notify"),
		http:    client,
		webhook: webhookURL,
	}
}

// BuildPayload renders the card as one compact text message.
func BuildPayload(card *contracts.DecisionCard) *Payload {
	icon := ":no_entry:"
	if card.Action == contracts.ActionTrade {
		icon = ":white_check_mark:"
	}

	var top3 []string
	for _, e := range card.Top3 {
		name := ""
		if e.Name != "" && e.Name != e.Code {
			name = " " + e.Name
		}
		top3 = append(top3, fmt.Sprintf("  %d. %s%s  score=%.4f  %s", e.Rank, e.Code, name, e.Score, e.ReasonShort))
	}
	top3Text := strings.Join(top3, "\n")
	if top3Text == "" {
		top3Text = "  なし"
	}

	var reasons []string
	for _, r := range card.NoTradeReasons {
		reasons = append(reasons, "  • "+r)
	}
	reasonsText := strings.Join(reasons, "\n")
	if reasonsText == "" {
		reasonsText = "  なし"
	}

	text := fmt.Sprintf(
		"%s *kabuto 日次レポート - %s*\nアクション: *%s*\nWF IC: %.4f  |  対象: %d\nトップ3:\n%s\nNO_TRADE 理由:\n%s",
		icon, card.TradeDate, card.Action, card.KeyMetrics.WFIC, card.KeyMetrics.NEligible, top3Text, reasonsText,
	)
	return &Payload{Text: text}
}

// Send posts the payload, writing it to fallbackDir on failure. The
// returned bool reports delivery; Send never fails the run.
func (n *Notifier) Send(ctx context.Context, card *contracts.DecisionCard, fallbackDir string) bool {
	payload := BuildPayload(card)

	if n.webhook != "" {
		resp, err := n.http.PostJSON(ctx, n.webhook, payload)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode < 300 {
				n.log.WithField("status", resp.StatusCode).Info("Notification delivered")
				return true
			}
			err = fmt.Errorf("webhook status %d", resp.StatusCode)
		}
		n.log.WithError(err).Warn("Webhook delivery failed, writing fallback")
	}

	n.writeFallback(card.TradeDate, payload, fallbackDir)
	return false
}

func (n *Notifier) writeFallback(tradeDate string, payload *Payload, dir string) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		n.log.WithError(err).Error("Could not marshal fallback payload")
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		n.log.WithError(err).Error("Could not create fallback dir")
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("notify_payload_%s.json", tradeDate))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		n.log.WithError(err).Error("Could not write fallback payload")
		return
	}
	n.log.WithField("path", path).Info("Notification payload written to fallback")
}
