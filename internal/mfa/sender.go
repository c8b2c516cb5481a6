package mfa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/gatekeeper/internal/observability/logger"
	"github.com/dropDatabas3/gatekeeper/internal/util"
)

// WebhookSMSSender entrega códigos vía un gateway SMS HTTP (POST JSON).
// Es la única implementación de SMSSender que trae el core; no existe un
// sender no-op: si el gateway no está configurado, SMS MFA no está disponible.
type WebhookSMSSender struct {
	url    string
	token  string
	client *http.Client
}

// NewWebhookSMSSender crea el sender. url es obligatoria.
func NewWebhookSMSSender(url, bearerToken string) (*WebhookSMSSender, error) {
	if url == "" {
		return nil, errors.New("mfa: sms webhook url no configurada")
	}
	return &WebhookSMSSender{
		url:    url,
		token:  bearerToken,
		client: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type smsPayload struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// Send entrega el código. El código se serializa solo hacia el gateway;
// en logs el teléfono va enmascarado y el código nunca aparece.
func (w *WebhookSMSSender) Send(ctx context.Context, phone, code string) error {
	body, err := json.Marshal(smsPayload{
		Phone:   phone,
		Message: fmt.Sprintf("Tu código de verificación es: %s", code),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("mfa: sms gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("mfa: sms gateway status %d", resp.StatusCode)
	}

	logger.From(ctx).Info("sms code delivered",
		logger.Component("mfa"),
		zap.String("phone", util.MaskPhone(phone)),
	)
	return nil
}
