package enums

import "fmt"

// NotificationKind identifies the template a downstream mailer renders.
type NotificationKind string

const (
	NotificationPaymentSuccess             NotificationKind = "payment_success"
	NotificationPaymentFailed              NotificationKind = "payment_failed"
	NotificationWelcome                    NotificationKind = "welcome"
	NotificationEmailVerification          NotificationKind = "email_verification"
	NotificationSubscriptionCancelled      NotificationKind = "subscription_cancelled"
	NotificationStorageOverQuota           NotificationKind = "storage_over_quota"
	NotificationStaffPaymentFailed         NotificationKind = "staff_payment_failed"
	NotificationStaffSubscriptionCancelled NotificationKind = "staff_subscription_cancelled"
)

var validNotificationKinds = []NotificationKind{
	NotificationPaymentSuccess,
	NotificationPaymentFailed,
	NotificationWelcome,
	NotificationEmailVerification,
	NotificationSubscriptionCancelled,
	NotificationStorageOverQuota,
	NotificationStaffPaymentFailed,
	NotificationStaffSubscriptionCancelled,
}

// IsValid checks whether the kind is one the mailer knows how to render.
func (k NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// String implements fmt.Stringer.
func (k NotificationKind) String() string {
	return string(k)
}

// ParseNotificationKind converts raw input into a NotificationKind.
func ParseNotificationKind(value string) (NotificationKind, error) {
	for _, candidate := range validNotificationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification kind %q", value)
}

type NotificationPriority string

const (
	NotificationPriorityNormal NotificationPriority = "normal"
	NotificationPriorityHigh   NotificationPriority = "high"
)
