package notify

import (
	"fmt"

	"github.com/opensource-finance/moim/internal/domain"
	"github.com/opensource-finance/moim/internal/format"
)

// AdminRecipient addresses in-app notifications to the tenant's admins.
const AdminRecipient = "admin"

// ResolveDeliveryPolicy returns the channels a message type is delivered on.
// In-app is always included; email is added for member-facing types when an
// address is known.
func ResolveDeliveryPolicy(messageType string, hasEmail bool) []string {
	switch messageType {
	case domain.MessageContentRolledBack:
		return []string{domain.ChannelInApp}
	case domain.MessageRefundCalculated, domain.MessageSurveyReminder, domain.MessageGeneric:
		if hasEmail {
			return []string{domain.ChannelInApp, domain.ChannelEmail}
		}
	}
	return []string{domain.ChannelInApp}
}

// RefundRequest builds the member notification for a refund calculation.
func RefundRequest(ev domain.RefundCalculatedEvent) domain.NotificationRequest {
	title := fmt.Sprintf("[%s] 보증금 환급 안내", ev.ProgramName)

	var body string
	if ev.Refund.Eligible {
		body = fmt.Sprintf("%s님, %s 보증금 %s 중 %s(%s)이 환급될 예정입니다.",
			ev.MemberName, ev.ProgramName,
			format.Won(ev.Refund.DepositAmount),
			format.Won(ev.Refund.RefundAmount),
			format.Percent(ev.Refund.RefundRate),
		)
	} else {
		body = fmt.Sprintf("%s님, %s 보증금 환급 대상이 아닙니다. 사유: %s",
			ev.MemberName, ev.ProgramName, ev.Refund.IneligibleReason)
	}

	return domain.NotificationRequest{
		Recipient:      ev.MemberID,
		RecipientEmail: ev.MemberEmail,
		Type:           domain.MessageRefundCalculated,
		Title:          title,
		Body:           body,
		Data: map[string]string{
			"programId": ev.ProgramID,
		},
	}
}

// RollbackRequest builds the admin notification for a content rollback.
func RollbackRequest(ev domain.ContentRolledBackEvent) domain.NotificationRequest {
	return domain.NotificationRequest{
		Recipient: AdminRecipient,
		Type:      domain.MessageContentRolledBack,
		Title:     "콘텐츠 변경이 되돌려졌습니다",
		Body:      fmt.Sprintf("%s님이 %s(%s) 변경을 되돌렸습니다.", ev.Actor, ev.EntityType, ev.EntityID),
		Data: map[string]string{
			"changeId": ev.ChangeID,
		},
	}
}

// Render fills in the title and body of requests that only carry data.
func Render(req domain.NotificationRequest) domain.NotificationRequest {
	if req.Type == "" {
		req.Type = domain.MessageGeneric
	}
	if req.Title != "" && req.Body != "" {
		return req
	}

	switch req.Type {
	case domain.MessageSurveyReminder:
		if req.Title == "" {
			req.Title = "만족도 조사 제출 안내"
		}
		if req.Body == "" {
			req.Body = fmt.Sprintf("%s 만족도 조사를 %s까지 제출해 주세요. 제출해야 보증금을 환급받을 수 있습니다.",
				req.Data["programName"], req.Data["deadline"])
		}
	default:
		if req.Title == "" {
			req.Title = "알림"
		}
	}
	return req
}
