package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"eventsync/internal/config"
	"eventsync/internal/domain/apilog"
	"eventsync/internal/domain/sync"

	"golang.org/x/exp/slog"
)

const (
	healthPath = "/api/v1/health"

	// maxErrorBody сколько байт тела ошибки сохраняется в TransportError
	maxErrorBody = 4096
)

// Recorder сохраняет запись журнала обмена
type Recorder interface {
	Record(ctx context.Context, e apilog.Entry)
}

// PeerConfig параметры подключения к удаленному узлу
type PeerConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	// FullSyncPath маршрут обмена на удаленном узле; пусто значит config.DefaultFullSyncPath
	FullSyncPath string
}

// HTTPPeer реализует sync.Peer поверх HTTP
type HTTPPeer struct {
	client    *http.Client
	config    PeerConfig
	log       *slog.Logger
	recorder  Recorder
	userAgent string
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewHTTPPeer создает клиента удаленного узла; recorder может быть nil
func NewHTTPPeer(cfg PeerConfig, recorder Recorder, log *slog.Logger) (*HTTPPeer, error) {
	if cfg.BaseURL == "" {
		return nil, sync.ErrNoPeer
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.FullSyncPath == "" {
		cfg.FullSyncPath = config.DefaultFullSyncPath
	}

	client := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			MaxIdleConnsPerHost: 2,
		},
	}

	return &HTTPPeer{
		client:    client,
		config:    cfg,
		log:       log.With(slog.String("component", "peer"), slog.String("peer", cfg.BaseURL)),
		recorder:  recorder,
		userAgent: "Eventsync-Node/1.0",
		sleep:     sleepCtx,
	}, nil
}

// Exchange отправляет снимок и возвращает снимок удаленного узла после слияния.
// Сетевые ошибки и статусы 409/429/502/503/504 повторяются с экспоненциальной задержкой.
func (p *HTTPPeer) Exchange(ctx context.Context, req sync.FullSyncRequest) (*sync.FullSyncResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.config.RetryDelay << (attempt - 1)
			p.log.Warn("Retrying exchange",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()))
			if err := p.sleep(ctx, delay); err != nil {
				return nil, errors.Join(lastErr, err)
			}
		}

		resp, err := p.exchangeOnce(ctx, payload)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var te *sync.TransportError
		if !errors.As(err, &te) || !te.Retryable() || ctx.Err() != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

func (p *HTTPPeer) exchangeOnce(ctx context.Context, payload []byte) (*sync.FullSyncResponse, error) {
	start := time.Now()
	entry := apilog.Entry{
		Direction: apilog.DirectionOut,
		Service:   "sync",
		Method:    http.MethodPost,
		Path:      p.config.FullSyncPath,
	}
	defer func() {
		entry.DurationMS = time.Since(start).Milliseconds()
		p.record(ctx, entry)
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+p.config.FullSyncPath, bytes.NewReader(payload))
	if err != nil {
		entry.Error = err.Error()
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", p.userAgent)
	httpReq.Header.Set("X-API-Key", p.config.APIKey)

	p.log.Debug("Sending snapshot", slog.Int("bytes", len(payload)))

	resp, err := p.client.Do(httpReq)
	if err != nil {
		entry.Error = err.Error()
		return nil, &sync.TransportError{Err: err}
	}
	defer resp.Body.Close()
	entry.StatusCode = resp.StatusCode

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		entry.Error = err.Error()
		return nil, &sync.TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		te := &sync.TransportError{StatusCode: resp.StatusCode, Body: truncate(body, maxErrorBody)}
		if msg := errorMessage(body); msg != "" {
			te.Err = errors.New(msg)
		}
		entry.Error = te.Error()
		return nil, te
	}

	var out sync.FullSyncResponse
	if err := json.Unmarshal(body, &out); err != nil {
		entry.Error = err.Error()
		return nil, &sync.TransportError{StatusCode: resp.StatusCode, Body: truncate(body, maxErrorBody), Err: fmt.Errorf("decode response: %w", err)}
	}

	return &out, nil
}

// HealthCheck проверяет доступность удаленного узла
func (p *HTTPPeer) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.BaseURL+healthPath, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return &sync.TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &sync.TransportError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}

func (p *HTTPPeer) record(ctx context.Context, e apilog.Entry) {
	if p.recorder == nil {
		return
	}
	p.recorder.Record(context.WithoutCancel(ctx), e)
}

// errorMessage достает "message: error" из тела {message, error}
func errorMessage(body []byte) string {
	var resp struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	switch {
	case resp.Message != "" && resp.Error != "":
		return resp.Message + ": " + resp.Error
	case resp.Error != "":
		return resp.Error
	default:
		return resp.Message
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	for n > 0 && !utf8.RuneStart(b[n]) {
		n--
	}
	return string(b[:n])
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
