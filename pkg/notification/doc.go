// Package notification sends best-effort notices to users, currently the
// "account blocked" email carrying a device management link.
//
//	nm, err := notification.NewNotificationManager(
//		notification.WithSMTP(emailCfg.ToSMTPConfig()),
//		notification.WithAccountBlockedTemplate(),
//	)
//	alerter := notification.NewBlockAlerter(nm, resolver, managementURL, maxDevices)
package notification
