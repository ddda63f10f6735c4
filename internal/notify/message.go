package notify

import (
	"fmt"
	"time"

	"github.com/rightsguard/incident-core/internal/model"
)

const (
	alertTitle = "RightsGuard Incident Alert"

	// ClipboardAcknowledgment is shown when sharing fell back to the clipboard.
	ClipboardAcknowledgment = "Incident details copied to clipboard. Share with your trusted contacts."
)

// Message is what every channel delivers.
type Message struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	URL   string `json:"url,omitempty"`
}

// Compose renders the alert for inc. at is the time stated in the text.
func Compose(inc model.Incident, origin string, at time.Time) Message {
	return Message{
		Title: alertTitle,
		Text: fmt.Sprintf("Emergency: I am currently in a police interaction. Location: %.6f, %.6f. Time: %s",
			inc.Location.Latitude, inc.Location.Longitude, at.UTC().Format(time.RFC1123)),
		URL: origin,
	}
}
