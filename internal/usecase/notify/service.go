package notify

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"readflow/internal/domain/entity"
	"readflow/internal/resilience/circuitbreaker"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const requestIDKey contextKey = "request_id"

// notificationTimeout bounds a single channel delivery, retries included.
const notificationTimeout = 30 * time.Second

// Service dispatches new-article notifications to all enabled channels.
//
// Dispatch is synchronous: NotifyNewArticle sends to every enabled channel
// in parallel and waits for all of them, so the caller knows whether the
// notification actually went out before recording it on the article.
type Service interface {
	// NotifyNewArticle sends a notification about a newly saved article to
	// all enabled channels.
	//
	// Channel failures are logged and absorbed. The returned bool reports
	// whether at least one channel delivered the notification.
	NotifyNewArticle(ctx context.Context, userID int64, article *entity.Article) bool

	// GetChannelHealth returns the health status of all notification channels.
	//
	// This provides visibility into circuit breaker states for monitoring
	// and health check endpoints. Safe for concurrent use.
	GetChannelHealth() []ChannelHealthStatus
}

// ChannelHealthStatus represents the health status of a notification channel.
type ChannelHealthStatus struct {
	Name               string `json:"name"`
	Enabled            bool   `json:"enabled"`
	CircuitBreakerOpen bool   `json:"circuit_breaker_open"`
}

// service is the concrete implementation of Service interface.
type service struct {
	channels []Channel
	breakers map[string]*circuitbreaker.CircuitBreaker
}

// NewService creates a new notification service with the given channels.
// Each channel gets its own circuit breaker so one failing webhook does
// not disable the others.
func NewService(channels []Channel) Service {
	svc := &service{
		channels: channels,
		breakers: make(map[string]*circuitbreaker.CircuitBreaker),
	}

	enabled := 0
	for _, ch := range channels {
		svc.breakers[ch.Name()] = circuitbreaker.New(circuitbreaker.WebhookConfig("notify-" + ch.Name()))
		if ch.IsEnabled() {
			enabled++
		}
	}
	SetChannelsEnabled(float64(enabled))

	return svc
}

// NotifyNewArticle implements Service.NotifyNewArticle.
func (s *service) NotifyNewArticle(ctx context.Context, userID int64, article *entity.Article) bool {
	if article == nil {
		slog.Warn("notification skipped: nil article", slog.Int64("user_id", userID))
		return false
	}

	// Inherit the request ID from the caller when present
	requestID, ok := ctx.Value(requestIDKey).(string)
	if !ok || requestID == "" {
		requestID = uuid.New().String()
	}

	enabled := make([]Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		if ch.IsEnabled() {
			enabled = append(enabled, ch)
		}
	}
	if len(enabled) == 0 {
		slog.Debug("no notification channels enabled",
			slog.String("request_id", requestID),
			slog.Int64("article_id", article.ID))
		return false
	}

	slog.Info("dispatching article notification",
		slog.String("request_id", requestID),
		slog.Int64("user_id", userID),
		slog.Int64("article_id", article.ID),
		slog.String("url", article.URL),
		slog.Int("enabled_channels", len(enabled)))

	var delivered atomic.Int64
	var wg sync.WaitGroup
	for _, ch := range enabled {
		wg.Add(1)
		go func(channel Channel) {
			defer wg.Done()
			if s.notifyChannel(ctx, requestID, channel, article) {
				delivered.Add(1)
			}
		}(ch)
	}
	wg.Wait()

	return delivered.Load() > 0
}

// notifyChannel sends one notification through one channel's circuit
// breaker. Returns true on delivery.
func (s *service) notifyChannel(ctx context.Context, requestID string, channel Channel, article *entity.Article) (delivered bool) {
	IncrementActiveGoroutines()
	defer DecrementActiveGoroutines()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in notification channel",
				slog.String("request_id", requestID),
				slog.String("channel", channel.Name()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			delivered = false
		}
	}()

	sendCtx, cancel := context.WithTimeout(ctx, notificationTimeout)
	defer cancel()
	sendCtx = context.WithValue(sendCtx, requestIDKey, requestID)

	startTime := time.Now()
	RecordDispatch(channel.Name())

	breaker := s.breakers[channel.Name()]
	_, err := breaker.Execute(func() (interface{}, error) {
		return nil, channel.Send(sendCtx, article)
	})
	duration := time.Since(startTime)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			slog.Warn("channel temporarily disabled by circuit breaker",
				slog.String("request_id", requestID),
				slog.String("channel", channel.Name()),
				slog.Int64("article_id", article.ID))
			RecordDropped(channel.Name(), "circuit_open")
			return false
		}

		RecordFailure(channel.Name(), duration)
		slog.Warn("channel notification failed",
			slog.String("request_id", requestID),
			slog.String("channel", channel.Name()),
			slog.Int64("article_id", article.ID),
			slog.String("url", article.URL),
			slog.Duration("send_duration", duration),
			slog.Any("error", err))
		return false
	}

	RecordSuccess(channel.Name(), duration)
	slog.Info("channel notification sent",
		slog.String("request_id", requestID),
		slog.String("channel", channel.Name()),
		slog.Int64("article_id", article.ID),
		slog.String("title", article.Title),
		slog.Duration("send_duration", duration))
	return true
}

// GetChannelHealth implements Service.GetChannelHealth.
func (s *service) GetChannelHealth() []ChannelHealthStatus {
	statuses := make([]ChannelHealthStatus, 0, len(s.channels))
	for _, ch := range s.channels {
		statuses = append(statuses, ChannelHealthStatus{
			Name:               ch.Name(),
			Enabled:            ch.IsEnabled(),
			CircuitBreakerOpen: s.breakers[ch.Name()].IsOpen(),
		})
	}
	return statuses
}
