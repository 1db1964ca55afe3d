// Package delivery sends finished clips to Telegram chats.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"roundify/logger"
)

// DefaultAPIBase is the public Bot API endpoint.
const DefaultAPIBase = "https://api.telegram.org"

// Telegram posts video notes through the Bot API.
type Telegram struct {
	APIBase string
	Client  *http.Client
}

// NewTelegram returns a sender with the given API base and request timeout.
func NewTelegram(apiBase string, timeout time.Duration) *Telegram {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	return &Telegram{
		APIBase: strings.TrimRight(apiBase, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendVideoNote uploads the file at path as a round video note of the given
// side length to chat using the bot token.
func (t *Telegram) SendVideoNote(ctx context.Context, token, chat, path string, length int) error {
	if token == "" || chat == "" {
		return fmt.Errorf("telegram token and chat are required")
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open clip: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(form, file, chat, filepath.Base(path), length))
	}()

	url := fmt.Sprintf("%s/bot%s/sendVideoNote", t.APIBase, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		pr.Close()
		return fmt.Errorf("failed to create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("User-Agent", "Roundify/1.0")

	resp, err := t.Client.Do(req)
	if err != nil {
		// the token is part of the URL; keep it out of logs
		return fmt.Errorf("telegram request failed: %s", redact(err.Error(), token))
	}
	defer resp.Body.Close()

	var body apiResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !body.OK {
		return fmt.Errorf("telegram returned %d: %s", resp.StatusCode, body.Description)
	}

	logger.Infof("Delivered %s to telegram chat %s", filepath.Base(path), chat)
	return nil
}

func writeForm(form *multipart.Writer, file io.Reader, chat, filename string, length int) error {
	if err := form.WriteField("chat_id", chat); err != nil {
		return err
	}
	if length > 0 {
		if err := form.WriteField("length", strconv.Itoa(length)); err != nil {
			return err
		}
	}
	part, err := form.CreateFormFile("video_note", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	return form.Close()
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "<token>")
}
