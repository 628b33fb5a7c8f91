package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v74/webhook"
	"gorm.io/gorm"

	"github.com/yungbote/coursebuilder-backend/internal/data/repos"
	"github.com/yungbote/coursebuilder-backend/internal/domain/user"
	"github.com/yungbote/coursebuilder-backend/internal/platform/apierr"
	"github.com/yungbote/coursebuilder-backend/internal/platform/dbctx"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
)

const (
	eventInvoicePaid          = "invoice.payment_succeeded"
	eventInvoiceFailed        = "invoice.payment_failed"
	eventSubscriptionDeleted  = "customer.subscription.deleted"
	cancellationReasonRequest = "cancellation_requested"
)

// WebhookResult reports what a webhook did; Action is empty when the event was ignored.
type WebhookResult struct {
	EventType string `json:"event_type"`
	Action    string `json:"action,omitempty"`
}

type MembershipService interface {
	HandleStripeWebhook(dbc dbctx.Context, payload []byte, signature string) (*WebhookResult, error)
}

type membershipService struct {
	db     *gorm.DB
	log    *logger.Logger
	users  repos.UserRepo
	secret string
	now    func() time.Time
}

func NewMembershipService(db *gorm.DB, baseLog *logger.Logger, users repos.UserRepo, webhookSecret string) MembershipService {
	return &membershipService{
		db:     db,
		log:    baseLog.With("service", "MembershipService"),
		users:  users,
		secret: webhookSecret,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// stripeObject holds the fields read from invoices and subscriptions alike.
type stripeObject struct {
	Customer            json.RawMessage `json:"customer"`
	CancelAt            int64           `json:"cancel_at"`
	CancellationDetails *struct {
		Reason string `json:"reason"`
	} `json:"cancellation_details"`
}

func (o stripeObject) customerID() string {
	if len(o.Customer) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(o.Customer, &id); err == nil {
		return id
	}
	var expanded struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(o.Customer, &expanded); err == nil {
		return expanded.ID
	}
	return ""
}

func (s *membershipService) HandleStripeWebhook(dbc dbctx.Context, payload []byte, signature string) (*WebhookResult, error) {
	if s.secret == "" {
		return nil, apierr.New(http.StatusServiceUnavailable, "webhook_disabled", errors.New("stripe webhook secret is not configured"))
	}
	event, err := webhook.ConstructEvent(payload, signature, s.secret)
	if err != nil {
		return nil, apierr.BadRequest("invalid_signature", fmt.Errorf("stripe signature invalid: %w", err))
	}
	res := &WebhookResult{EventType: string(event.Type)}

	var obj stripeObject
	if len(event.Data.Raw) > 0 {
		if err := json.Unmarshal(event.Data.Raw, &obj); err != nil {
			s.log.Warn("Unreadable stripe object", "event_type", res.EventType, "error", err)
			return res, nil
		}
	}

	var (
		action string
		fields map[string]interface{}
	)
	switch res.EventType {
	case eventInvoicePaid:
		action = "activated"
		fields = map[string]interface{}{
			"membership_plan":   user.PlanPremium,
			"membership_status": user.MembershipActive,
		}
	case eventSubscriptionDeleted, eventInvoiceFailed:
		action = "deactivated"
		fields = map[string]interface{}{
			"membership_plan":         user.PlanFree,
			"membership_status":       user.MembershipInactive,
			"membership_active_until": s.now(),
		}
	default:
		if obj.CancelAt == 0 || obj.CancellationDetails == nil || obj.CancellationDetails.Reason != cancellationReasonRequest {
			return res, nil
		}
		action = "canceled"
		fields = map[string]interface{}{
			"membership_status":       user.MembershipCanceled,
			"membership_active_until": time.Unix(obj.CancelAt, 0).UTC(),
		}
	}

	customerID := obj.customerID()
	if customerID == "" {
		s.log.Warn("Stripe event without customer", "event_type", res.EventType)
		return res, nil
	}
	u, err := s.users.GetByStripeCustomerID(dbc, customerID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		s.log.Info("Stripe event for unknown customer", "event_type", res.EventType)
		return res, nil
	}
	if err := s.users.UpdateFields(dbc, u.ID, fields); err != nil {
		return nil, fmt.Errorf("update membership: %w", err)
	}
	s.log.Info("Membership updated", "user_id", u.ID, "event_type", res.EventType, "action", action)
	res.Action = action
	return res, nil
}
