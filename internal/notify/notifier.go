// Package notify fans an incident alert out to trusted contacts. Each contact
// walks the same fallback chain: share sheet, then the contact's direct
// channel, then the clipboard. The first channel that succeeds wins and a
// failing contact never affects the others.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/rightsguard/incident-core/internal/model"
)

// Summarizer produces a short shareable incident summary.
type Summarizer interface {
	Summarize(ctx context.Context, inc model.Incident, rights string) (string, error)
}

// Config wires the channels. Any sender may be nil.
type Config struct {
	Share     Sender
	Direct    []Sender
	Clipboard Sender
	Summary   Summarizer
	// Timeout bounds each channel call.
	Timeout time.Duration
	Origin  string
}

// Attempt records one channel try for one contact.
type Attempt struct {
	Contact int           `json:"contact"`
	Channel model.Channel `json:"channel"`
	OK      bool          `json:"ok"`
	Error   string        `json:"error,omitempty"`
}

// Failure is a contact for which every channel failed.
type Failure struct {
	Contact int           `json:"contact"`
	To      model.Contact `json:"to"`
	Reason  string        `json:"reason"`
}

// Result aggregates one fan-out.
type Result struct {
	Attempted int       `json:"attempted"`
	Succeeded int       `json:"succeeded"`
	Failures  []Failure `json:"failures"`
	Attempts  []Attempt `json:"attempts"`
}

// ShareResult is the outcome of ShareSummary. Text is always set.
type ShareResult struct {
	Text           string        `json:"text"`
	Summarized     bool          `json:"summarized"`
	Channel        model.Channel `json:"channel,omitempty"`
	Acknowledgment string        `json:"acknowledgment,omitempty"`
	Error          string        `json:"error,omitempty"`
}

// Notifier runs fan-outs.
type Notifier struct {
	share     Sender
	direct    map[model.Channel]Sender
	clipboard Sender
	summary   Summarizer
	timeout   time.Duration
	origin    string
	log       zerolog.Logger
	now       func() time.Time
}

func New(cfg Config, log zerolog.Logger) *Notifier {
	if cfg.Timeout <= 0 || cfg.Timeout > 10*time.Second {
		cfg.Timeout = 10 * time.Second
	}
	direct := make(map[model.Channel]Sender, len(cfg.Direct))
	for _, s := range cfg.Direct {
		if s != nil {
			direct[s.Channel()] = s
		}
	}
	return &Notifier{
		share:     cfg.Share,
		direct:    direct,
		clipboard: cfg.Clipboard,
		summary:   cfg.Summary,
		timeout:   cfg.Timeout,
		origin:    cfg.Origin,
		log:       log.With().Str("component", "notify").Logger(),
		now:       time.Now,
	}
}

// chain returns the ordered senders for to.
func (n *Notifier) chain(to model.Contact) []Sender {
	out := make([]Sender, 0, 3)
	if n.share != nil {
		out = append(out, n.share)
	}
	if s, ok := n.direct[to.Channel]; ok {
		out = append(out, s)
	}
	if n.clipboard != nil {
		out = append(out, n.clipboard)
	}
	return out
}

// Notify delivers the alert for inc to every contact in order.
func (n *Notifier) Notify(ctx context.Context, inc model.Incident, contacts []model.Contact) Result {
	msg := Compose(inc, n.origin, n.now())
	res := Result{Failures: []Failure{}, Attempts: []Attempt{}}
	for i, to := range contacts {
		res.Attempted++
		err := n.deliver(ctx, i, to, msg, &res)
		if err == nil {
			res.Succeeded++
			continue
		}
		undeliveredTotal.Inc()
		res.Failures = append(res.Failures, Failure{Contact: i, To: to, Reason: err.Error()})
		n.log.Warn().Err(err).Str("incident_id", inc.ID).Int("contact", i).Msg("contact not notified")
	}
	n.log.Info().
		Str("incident_id", inc.ID).
		Int("attempted", res.Attempted).
		Int("succeeded", res.Succeeded).
		Msg("fan-out complete")
	return res
}

func (n *Notifier) deliver(ctx context.Context, idx int, to model.Contact, msg Message, res *Result) error {
	chain := n.chain(to)
	if len(chain) == 0 {
		return channelErr(to.Channel, errors.New("no channel available"))
	}
	var errs []error
	for _, s := range chain {
		err := n.send(ctx, s, to, msg)
		a := Attempt{Contact: idx, Channel: s.Channel(), OK: err == nil}
		if err != nil {
			a.Error = err.Error()
			errs = append(errs, err)
		}
		res.Attempts = append(res.Attempts, a)
		if err == nil {
			return nil
		}
	}
	return errors.Join(errs...)
}

// send runs one channel call under the per-call timeout.
func (n *Notifier) send(ctx context.Context, s Sender, to model.Contact, msg Message) (err error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("channel panicked")
		}
		outcome := "ok"
		if err != nil {
			outcome = "failed"
			err = channelErr(s.Channel(), err)
		}
		attemptsTotal.WithLabelValues(string(s.Channel()), outcome).Inc()
	}()
	return s.Send(ctx, to, msg)
}

// ShareSummary shares a summary of inc with no particular recipient. The
// text comes from the summarizer when it answers in time and from the alert
// template otherwise. When the share sheet fails the text is copied to the
// clipboard and the acknowledgment says so.
func (n *Notifier) ShareSummary(ctx context.Context, inc model.Incident, rights string) ShareResult {
	msg := Compose(inc, n.origin, n.now())
	res := ShareResult{Text: msg.Text}
	if n.summary != nil {
		sctx, cancel := context.WithTimeout(ctx, n.timeout)
		text, err := n.summary.Summarize(sctx, inc, rights)
		cancel()
		if err != nil {
			n.log.Warn().Err(err).Str("incident_id", inc.ID).Msg("summary unavailable; using template")
		} else if text != "" {
			msg.Text = text
			res.Text = text
			res.Summarized = true
		}
	}

	var errs []error
	if n.share != nil {
		err := n.send(ctx, n.share, model.Contact{Channel: model.ChannelShare}, msg)
		if err == nil {
			res.Channel = model.ChannelShare
			return res
		}
		errs = append(errs, err)
	}
	if n.clipboard != nil {
		err := n.send(ctx, n.clipboard, model.Contact{Channel: model.ChannelClipboard}, msg)
		if err == nil {
			res.Channel = model.ChannelClipboard
			res.Acknowledgment = ClipboardAcknowledgment
			return res
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		errs = append(errs, channelErr(model.ChannelClipboard, errors.New("no channel available")))
	}
	err := errors.Join(errs...)
	res.Error = err.Error()
	n.log.Error().Err(err).Str("incident_id", inc.ID).Msg("summary not shared")
	return res
}
