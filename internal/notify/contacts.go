package notify

import (
	"strings"

	"github.com/go-openapi/strfmt"

	"github.com/rightsguard/incident-core/internal/model"
)

// ContactsFromAddresses maps trusted-contact strings to contacts in order.
// Email addresses go to the email channel, everything else to SMS. Blank
// entries are skipped.
func ContactsFromAddresses(addrs []string) []model.Contact {
	out := make([]model.Contact, 0, len(addrs))
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		ch := model.ChannelSMS
		if strfmt.IsEmail(a) {
			ch = model.ChannelEmail
		}
		out = append(out, model.Contact{Channel: ch, Address: a})
	}
	return out
}
