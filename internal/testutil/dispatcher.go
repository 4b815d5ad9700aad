package testutil

import (
	"context"
	"sync"

	"github.com/flexprice/deprovisioner/internal/domain/notification"
	"github.com/flexprice/deprovisioner/internal/types"
	"github.com/samber/lo"
)

// RecordingDispatcher implements notification.Dispatcher and keeps every
// message it was asked to send. Recipients listed in FailFor get an error.
type RecordingDispatcher struct {
	mu       sync.Mutex
	messages []*notification.Message
	FailFor  map[string]error
}

var _ notification.Dispatcher = (*RecordingDispatcher)(nil)

func NewRecordingDispatcher() *RecordingDispatcher {
	return &RecordingDispatcher{FailFor: map[string]error{}}
}

func (d *RecordingDispatcher) Send(_ context.Context, msg *notification.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err, ok := d.FailFor[msg.AdminEmail]; ok {
		return err
	}
	c := *msg
	d.messages = append(d.messages, &c)
	return nil
}

func (d *RecordingDispatcher) Messages() []*notification.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*notification.Message(nil), d.messages...)
}

// ByTemplate returns the messages sent with template.
func (d *RecordingDispatcher) ByTemplate(template types.NotificationTemplate) []*notification.Message {
	return lo.Filter(d.Messages(), func(m *notification.Message, _ int) bool {
		return m.Template == template
	})
}

func (d *RecordingDispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = nil
}
