package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/opensource-finance/moim/internal/bus"
	"github.com/opensource-finance/moim/internal/domain"
	"github.com/opensource-finance/moim/internal/metrics"
	"github.com/opensource-finance/moim/internal/repository"
)

// flakySender fails the first n sends.
type flakySender struct {
	channel string
	fails   int32
	calls   atomic.Int32
}

func (s *flakySender) Channel() string { return s.channel }

func (s *flakySender) Send(ctx context.Context, n *domain.Notification) error {
	if s.calls.Add(1) <= s.fails {
		return errors.New("smtp unavailable")
	}
	return nil
}

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "notify.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestResolveDeliveryPolicy(t *testing.T) {
	tests := []struct {
		msgType  string
		hasEmail bool
		want     []string
	}{
		{domain.MessageRefundCalculated, true, []string{domain.ChannelInApp, domain.ChannelEmail}},
		{domain.MessageRefundCalculated, false, []string{domain.ChannelInApp}},
		{domain.MessageSurveyReminder, true, []string{domain.ChannelInApp, domain.ChannelEmail}},
		{domain.MessageContentRolledBack, true, []string{domain.ChannelInApp}},
		{"unknown.type", true, []string{domain.ChannelInApp}},
	}

	for _, tt := range tests {
		got := ResolveDeliveryPolicy(tt.msgType, tt.hasEmail)
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("ResolveDeliveryPolicy(%s, %v) = %v, want %v", tt.msgType, tt.hasEmail, got, tt.want)
		}
	}
}

func TestRender(t *testing.T) {
	t.Run("EligibleRefund", func(t *testing.T) {
		req := RefundRequest(domain.RefundCalculatedEvent{
			ProgramID: "prog-001", ProgramName: "북클럽", MemberID: "m1", MemberName: "김모임",
			Refund: domain.RefundCalculation{Eligible: true, DepositAmount: 100000, RefundAmount: 50000, RefundRate: 50},
		})
		if req.Title != "[북클럽] 보증금 환급 안내" {
			t.Errorf("unexpected title: %s", req.Title)
		}
		if !strings.Contains(req.Body, "100,000원 중 50,000원(50%)") {
			t.Errorf("unexpected body: %s", req.Body)
		}
	})

	t.Run("IneligibleRefund", func(t *testing.T) {
		req := RefundRequest(domain.RefundCalculatedEvent{
			ProgramName: "북클럽", MemberID: "m1", MemberName: "김모임",
			Refund: domain.RefundCalculation{IneligibleReason: "환급 기준을 충족하지 못했습니다"},
		})
		if !strings.Contains(req.Body, "사유: 환급 기준을 충족하지 못했습니다") {
			t.Errorf("unexpected body: %s", req.Body)
		}
	})

	t.Run("SurveyReminder", func(t *testing.T) {
		req := Render(domain.NotificationRequest{
			Recipient: "m1",
			Type:      domain.MessageSurveyReminder,
			Data:      map[string]string{"programName": "북클럽", "deadline": "2026-05-03"},
		})
		if req.Title != "만족도 조사 제출 안내" || !strings.Contains(req.Body, "2026-05-03까지") {
			t.Errorf("unexpected rendering: %+v", req)
		}
	})

	t.Run("DefaultsToGeneric", func(t *testing.T) {
		req := Render(domain.NotificationRequest{Recipient: "m1", Body: "hello"})
		if req.Type != domain.MessageGeneric || req.Title == "" {
			t.Errorf("unexpected rendering: %+v", req)
		}
	})
}

func TestDispatcher(t *testing.T) {
	repo := newTestRepo(t)
	m := metrics.New()
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("RetriesUntilSent", func(t *testing.T) {
		email := &flakySender{channel: domain.ChannelEmail, fails: 2}
		d := NewDispatcher(repo, m, DispatcherConfig{MaxAttempts: 3}, LogSender{}, email)

		sent, err := d.Dispatch(ctx, tenantID, domain.NotificationRequest{
			Recipient: "m1", RecipientEmail: "m1@example.com",
			Type: domain.MessageGeneric, Title: "제목", Body: "본문",
		})
		if err != nil {
			t.Fatalf("Dispatch failed: %v", err)
		}
		if len(sent) != 2 {
			t.Fatalf("expected 2 deliveries, got %d", len(sent))
		}
		if sent[1].Recipient != "m1@example.com" || sent[1].Status != domain.NotificationSent || sent[1].Attempts != 3 {
			t.Errorf("unexpected email delivery: %+v", sent[1])
		}

		stored, err := repo.GetNotification(ctx, tenantID, sent[1].ID)
		if err != nil {
			t.Fatalf("GetNotification failed: %v", err)
		}
		if stored.Status != domain.NotificationSent || stored.SentAt == nil {
			t.Errorf("unexpected stored notification: %+v", stored)
		}
	})

	t.Run("FailsAfterMaxAttempts", func(t *testing.T) {
		email := &flakySender{channel: domain.ChannelEmail, fails: 10}
		d := NewDispatcher(repo, m, DispatcherConfig{MaxAttempts: 2}, LogSender{}, email)

		sent, err := d.Dispatch(ctx, tenantID, domain.NotificationRequest{
			Recipient: "m2", RecipientEmail: "m2@example.com", Type: domain.MessageRefundCalculated,
			Title: "환급", Body: "본문",
		})
		if err != nil {
			t.Fatalf("Dispatch failed: %v", err)
		}
		failed := sent[1]
		if failed.Status != domain.NotificationFailed || failed.Attempts != 2 || failed.Error == "" {
			t.Errorf("unexpected failed delivery: %+v", failed)
		}

		t.Run("Resend", func(t *testing.T) {
			email.fails = 0
			n, err := d.Resend(ctx, tenantID, failed.ID)
			if err != nil {
				t.Fatalf("Resend failed: %v", err)
			}
			if n.Status != domain.NotificationSent || n.Attempts != 3 {
				t.Errorf("unexpected resend result: %+v", n)
			}
		})
	})

	t.Run("WaitsRetryDelayBetweenAttempts", func(t *testing.T) {
		email := &flakySender{channel: domain.ChannelEmail, fails: 1}
		d := NewDispatcher(repo, m, DispatcherConfig{MaxAttempts: 2, RetryDelay: 20 * time.Millisecond}, LogSender{}, email)

		start := time.Now()
		sent, err := d.Dispatch(ctx, tenantID, domain.NotificationRequest{
			Recipient: "m3", RecipientEmail: "m3@example.com", Type: domain.MessageGeneric, Body: "본문",
		})
		if err != nil {
			t.Fatalf("Dispatch failed: %v", err)
		}
		if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
			t.Errorf("expected retry delay to elapse, took %v", elapsed)
		}
		if sent[1].Status != domain.NotificationSent || sent[1].Attempts != 2 {
			t.Errorf("unexpected email delivery: %+v", sent[1])
		}
	})

	t.Run("SkippedWithoutSender", func(t *testing.T) {
		d := NewDispatcher(repo, m, DispatcherConfig{}, LogSender{})

		sent, err := d.Dispatch(ctx, tenantID, domain.NotificationRequest{
			Recipient: "m3", RecipientEmail: "m3@example.com", Type: domain.MessageGeneric, Title: "t", Body: "b",
		})
		if err != nil {
			t.Fatalf("Dispatch failed: %v", err)
		}
		if sent[1].Status != domain.NotificationSkipped {
			t.Errorf("expected SKIPPED email, got %s", sent[1].Status)
		}
	})

	t.Run("RequiresRecipient", func(t *testing.T) {
		d := NewDispatcher(repo, m, DispatcherConfig{}, LogSender{})
		if _, err := d.Dispatch(ctx, tenantID, domain.NotificationRequest{Body: "b"}); !errors.Is(err, ErrNoRecipient) {
			t.Errorf("expected ErrNoRecipient, got %v", err)
		}
	})

	t.Run("FilterFailed", func(t *testing.T) {
		list, err := repo.ListNotifications(ctx, tenantID, domain.NotificationFilter{Status: string(domain.NotificationSkipped)})
		if err != nil {
			t.Fatalf("ListNotifications failed: %v", err)
		}
		if len(list) != 1 {
			t.Errorf("expected 1 skipped notification, got %d", len(list))
		}
	})

	n, err := testutil.GatherAndCount(m.Registry(), "moim_notifications_total")
	if err != nil {
		t.Fatalf("GatherAndCount failed: %v", err)
	}
	if n < 4 {
		t.Errorf("expected in-app and email series for each status, got %d", n)
	}
}

func TestSendGridSender(t *testing.T) {
	var body atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/mail/send" || r.Header.Get("Authorization") != "Bearer sg-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		b, _ := io.ReadAll(r.Body)
		body.Store(string(b))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewSendGridSender("sg-key", "moim", "noreply@example.com")
	s.Host = srv.URL

	err := s.Send(context.Background(), &domain.Notification{
		Recipient: "member@example.com",
		Title:     "환급 안내",
		Body:      "본문",
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	var payload struct {
		Personalizations []struct {
			Subject string `json:"subject"`
			To      []struct {
				Email string `json:"email"`
			} `json:"to"`
		} `json:"personalizations"`
	}
	if err := json.Unmarshal([]byte(body.Load().(string)), &payload); err != nil {
		t.Fatalf("invalid request body: %v", err)
	}
	if len(payload.Personalizations) != 1 || payload.Personalizations[0].Subject != "[moim] 환급 안내" {
		t.Errorf("unexpected payload: %+v", payload)
	}

	bad := NewSendGridSender("wrong-key", "moim", "noreply@example.com")
	bad.Host = srv.URL
	if err := bad.Send(context.Background(), &domain.Notification{Recipient: "x@example.com"}); err == nil {
		t.Error("expected error for rejected request")
	}
}

func TestWorker(t *testing.T) {
	repo := newTestRepo(t)
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	d := NewDispatcher(repo, nil, DispatcherConfig{MaxAttempts: 1}, LogSender{})
	w := NewWorker(eventBus, d)

	if err := w.Start(Config{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if got := w.GetStats().SubscriptionCount; got != len(Topics) {
		t.Errorf("expected %d subscriptions, got %d", len(Topics), got)
	}

	ctx := context.Background()
	payload, _ := json.Marshal(domain.RefundCalculatedEvent{
		ProgramID: "prog-001", ProgramName: "북클럽", MemberID: "m1", MemberName: "김모임",
		Refund: domain.RefundCalculation{Eligible: true, DepositAmount: 100000, RefundAmount: 100000, RefundRate: 100},
	})
	if err := eventBus.Publish(ctx, "tenant-001", domain.TopicRefundCalculated, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	rollback, _ := json.Marshal(domain.ContentRolledBackEvent{ChangeID: "c1", EntityType: domain.EntityPopup, EntityID: "p1", Actor: "owner"})
	if err := eventBus.Publish(ctx, "tenant-002", domain.TopicContentRolledBack, rollback); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	waitFor := func(tenantID string, msgType string) *domain.Notification {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			list, err := repo.ListNotifications(ctx, tenantID, domain.NotificationFilter{Type: msgType})
			if err == nil && len(list) > 0 {
				return list[0]
			}
			time.Sleep(20 * time.Millisecond)
		}
		t.Fatalf("no %s notification for %s", msgType, tenantID)
		return nil
	}

	refundNote := waitFor("tenant-001", domain.MessageRefundCalculated)
	if refundNote.Recipient != "m1" || refundNote.Status != domain.NotificationSent {
		t.Errorf("unexpected refund notification: %+v", refundNote)
	}

	rollbackNote := waitFor("tenant-002", domain.MessageContentRolledBack)
	if rollbackNote.Recipient != AdminRecipient {
		t.Errorf("expected admin recipient, got %s", rollbackNote.Recipient)
	}

	if err := w.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if got := w.GetStats().SubscriptionCount; got != 0 {
		t.Errorf("expected 0 subscriptions after stop, got %d", got)
	}
}
