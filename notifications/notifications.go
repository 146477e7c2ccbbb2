// Package notifications provides functionality for sending email
// notifications, with support for pluggable delivery services behind a
// single interface.
package notifications

import "context"

// Notification represents an email to be sent: the recipient's name and
// address, the subject, and both an HTML and a plain-text body.
type Notification struct {
	ToName    string `json:"toName"`
	ToAddress string `json:"toAddress"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	PlainBody string `json:"plainBody"`
	ReplyTo   string `json:"replyTo"`
}

// NotificationService is the interface that must be implemented by any
// notification service. It contains the methods New and SendNotification.
// New is used to initialize the service with the configuration, and
// SendNotification is used to send a notification.
type NotificationService interface {
	// New initializes the notification service with the configuration. Each
	// service implementation can have its own configuration type, which is
	// passed as an argument to this method and must be casted to the correct
	// type inside the method.
	New(conf any) error
	// SendNotification sends a notification to the recipient. This method
	// cannot be blocking, so it must return an error if the notification
	// could not be sent or if the context is done.
	SendNotification(context.Context, *Notification) error
}
