package notify

import (
	"fmt"
	"strings"
)

// MediaAlertSubject is the subject of media request alerts.
const MediaAlertSubject = "Media Request Detected"

// DefaultMediaKeywords are the substrings that mark a media request.
var DefaultMediaKeywords = []string{"video", "photo", "voice"}

// AlertSink accepts subject/body alerts. *Dispatcher satisfies it.
type AlertSink interface {
	Alert(subject, body string)
}

// MediaWatcher raises an alert when a message asks for media. Observe has
// the signature of the relay's admission hook.
type MediaWatcher struct {
	Sink     AlertSink
	Keywords []string
}

// NewMediaWatcher returns a watcher using DefaultMediaKeywords.
func NewMediaWatcher(sink AlertSink) *MediaWatcher {
	return &MediaWatcher{Sink: sink, Keywords: DefaultMediaKeywords}
}

// Observe alerts when message mentions a media keyword.
func (w *MediaWatcher) Observe(userID, message string) {
	if w == nil || w.Sink == nil || !w.Matches(message) {
		return
	}
	w.Sink.Alert(MediaAlertSubject, fmt.Sprintf("User %s requested media with message: %s", userID, message))
}

// Matches reports whether message contains a keyword, ignoring case.
func (w *MediaWatcher) Matches(message string) bool {
	keywords := DefaultMediaKeywords
	if w != nil && len(w.Keywords) > 0 {
		keywords = w.Keywords
	}
	lower := strings.ToLower(message)
	for _, keyword := range keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword != "" && strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
