package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"vending-panel-backend/internal/model"
	"vending-panel-backend/internal/status"
	"vending-panel-backend/internal/store"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender sends through the webpush library.
type WebPushSender struct{}

func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Alert reports that a machine changed between online and offline.
type Alert struct {
	MachineID string        `json:"machine_id"`
	Status    status.Status `json:"status"`
	Location  string        `json:"location,omitempty"`
}

// Message is the notification text shown to the subscriber.
func (a Alert) Message() string {
	label := a.MachineID
	if a.Location != "" {
		label = fmt.Sprintf("%s (%s)", a.MachineID, a.Location)
	}
	if a.Status == status.Online {
		return fmt.Sprintf("%s tekrar çevrimiçi.", label)
	}
	return fmt.Sprintf("%s çevrimdışı!", label)
}

type payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Alert
}

// WorkerPool delivers alerts to every subscription covering the machine.
type WorkerPool struct {
	size    int
	jobs    chan Alert
	store   store.Store
	webpush *webpush.Options
	sender  NotificationSender
	log     *zap.Logger
}

// NewWorkerPool creates a pool of size workers.
func NewWorkerPool(size int, st store.Store, webpushOptions *webpush.Options, log *zap.Logger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Alert, size*4),
		store:   st,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		log:     log,
	}
}

// Start launches the worker goroutines; they stop when ctx ends.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log := wp.log.With(zap.Int("worker", id))
	log.Debug("worker started")
	for {
		select {
		case alert := <-wp.jobs:
			log.Debug("processing alert", zap.String("machine_id", alert.MachineID), zap.String("status", string(alert.Status)))
			wp.notifySubscribers(ctx, alert)
		case <-ctx.Done():
			log.Debug("worker shutting down")
			return
		}
	}
}

// Dispatch queues an alert, waiting while the queue is full.
func (wp *WorkerPool) Dispatch(ctx context.Context, alert Alert) error {
	select {
	case wp.jobs <- alert:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (wp *WorkerPool) notifySubscribers(ctx context.Context, alert Alert) {
	subs, err := wp.store.ListSubscriptions(ctx)
	if err != nil {
		wp.log.Error("failed to fetch subscriptions", zap.String("machine_id", alert.MachineID), zap.Error(err))
		return
	}

	body, err := json.Marshal(payload{Title: "Makine durumu", Body: alert.Message(), Alert: alert})
	if err != nil {
		wp.log.Error("failed to encode alert", zap.Error(err))
		return
	}

	sent := 0
	for _, sub := range subs {
		if !sub.Covers(alert.MachineID) {
			continue
		}
		wp.sendNotification(ctx, sub, body)
		sent++
	}
	wp.log.Info("machine alert delivered",
		zap.String("machine_id", alert.MachineID), zap.String("status", string(alert.Status)), zap.Int("subscriptions", sent))
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, body []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(body, wpSub, wp.webpush)
	if err != nil {
		wp.log.Warn("failed to send notification", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		wp.log.Info("subscription expired, deleting", zap.String("endpoint", sub.Endpoint))
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			wp.log.Error("failed to delete expired subscription", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
	}
}
