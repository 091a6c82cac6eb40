package session

import (
	"fmt"
	"strconv"

	"locaty/internal/heading"
)

// ActionStop is the only action the controller acts on.
const ActionStop = "stop"

// NoNotificationID marks a stop action that did not carry a notification id.
const NoNotificationID = -1

// Action is an out-of-band request, typically raised by the user from a
// notification.
type Action struct {
	Name           string `json:"action"`
	NotificationID int    `json:"notification_id"`
}

// StopAction returns the action attached to notification id.
func StopAction(id int) Action {
	return Action{Name: ActionStop, NotificationID: id}
}

// Notification is the persistent message shown while no surface is visible.
type Notification struct {
	ID      int     `json:"id"`
	Title   string  `json:"title"`
	Body    string  `json:"body"`
	Angle   float64 `json:"angle_deg"`
	Dir     string  `json:"direction"`
	Stop    Action  `json:"stop_action"`
	Session string  `json:"session,omitempty"`
}

// Notifier displays and removes notifications by id.
// Show both creates and updates.
type Notifier interface {
	Show(n Notification) error
	Cancel(id int) error
}

// NotificationBody is the text shown for a result.
func NotificationBody(res heading.Result) string {
	if !res.Available {
		return "Heading not available"
	}
	return fmt.Sprintf("You're currently facing %s at an angle of %s°", res.Direction, strconv.FormatFloat(res.Angle, 'f', -1, 64))
}

type nopNotifier struct{}

func (nopNotifier) Show(Notification) error { return nil }
func (nopNotifier) Cancel(int) error        { return nil }
