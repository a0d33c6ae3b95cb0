package notify

import "botkit/internal/logger"

// LogNotifier writes notifications to the application log. It is the
// default when no outbound transport is configured, so notify actions
// still leave a trace.
type LogNotifier struct{}

func (LogNotifier) SendText(text string) error {
	logger.Infof("notify: %s", text)
	return nil
}
