package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTelegramAPI = "https://api.telegram.org"

// TelegramSender отправляет сообщения через Telegram Bot API
type TelegramSender struct {
	token   string
	baseURL string
	client  *http.Client
}

// NewTelegramSender создает отправителя для бота с указанным токеном
func NewTelegramSender(token string) *TelegramSender {
	return &TelegramSender{
		token:   token,
		baseURL: defaultTelegramAPI,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// WithBaseURL подменяет адрес Bot API
func (s *TelegramSender) WithBaseURL(url string) *TelegramSender {
	s.baseURL = strings.TrimRight(url, "/")
	return s
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type botResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendMessage отправляет текстовое сообщение в чат
func (s *TelegramSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var out botResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("telegram response decode failed (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || !out.OK {
		return fmt.Errorf("telegram error (status %d): %s", resp.StatusCode, out.Description)
	}
	return nil
}
