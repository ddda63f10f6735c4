package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rightsguard/incident-core/internal/model"
)

// Sender delivers a message to one contact over one channel.
type Sender interface {
	Channel() model.Channel
	Send(ctx context.Context, to model.Contact, msg Message) error
}

func newRestClient(baseURL string, timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
}

func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return nil
}

// ShareRelay forwards the platform share sheet request to a relay endpoint
// that presents it on the user's handset.
type ShareRelay struct {
	client *resty.Client
}

func NewShareRelay(url string, timeout time.Duration) *ShareRelay {
	return &ShareRelay{client: newRestClient(url, timeout)}
}

func (s *ShareRelay) Channel() model.Channel { return model.ChannelShare }

type shareRequest struct {
	Message
	Recipient string `json:"recipient,omitempty"`
}

func (s *ShareRelay) Send(ctx context.Context, to model.Contact, msg Message) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(shareRequest{Message: msg, Recipient: to.Address}).
		Post("/share")
	return checkResponse(resp, err)
}

// SMSGateway posts text messages to an HTTP SMS gateway.
type SMSGateway struct {
	client *resty.Client
	from   string
}

func NewSMSGateway(url, from string, timeout time.Duration) *SMSGateway {
	return &SMSGateway{client: newRestClient(url, timeout), from: from}
}

func (s *SMSGateway) Channel() model.Channel { return model.ChannelSMS }

type smsRequest struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
	Body string `json:"body"`
}

func (s *SMSGateway) Send(ctx context.Context, to model.Contact, msg Message) error {
	body := msg.Text
	if msg.URL != "" {
		body += " " + msg.URL
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(smsRequest{From: s.from, To: to.Address, Body: body}).
		Post("/messages")
	return checkResponse(resp, err)
}

// EmailGateway sends mail through a SendGrid v3 compatible API.
type EmailGateway struct {
	client *resty.Client
	from   string
}

func NewEmailGateway(url, apiKey, from string, timeout time.Duration) *EmailGateway {
	c := newRestClient(url, timeout)
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return &EmailGateway{client: c, from: from}
}

func (e *EmailGateway) Channel() model.Channel { return model.ChannelEmail }

type emailAddress struct {
	Email string `json:"email"`
}

type emailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type emailRequest struct {
	Personalizations []struct {
		To []emailAddress `json:"to"`
	} `json:"personalizations"`
	From    emailAddress   `json:"from"`
	Subject string         `json:"subject"`
	Content []emailContent `json:"content"`
}

func (e *EmailGateway) Send(ctx context.Context, to model.Contact, msg Message) error {
	var req emailRequest
	req.Personalizations = make([]struct {
		To []emailAddress `json:"to"`
	}, 1)
	req.Personalizations[0].To = []emailAddress{{Email: to.Address}}
	req.From = emailAddress{Email: e.from}
	req.Subject = msg.Title
	body := msg.Text
	if msg.URL != "" {
		body += "\n\n" + msg.URL
	}
	req.Content = []emailContent{{Type: "text/plain", Value: body}}

	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(&req).
		Post("/v3/mail/send")
	return checkResponse(resp, err)
}

// MemoryClipboard holds the last copied text for the user to retrieve.
type MemoryClipboard struct {
	mu       sync.Mutex
	text     string
	copiedAt time.Time
}

func NewMemoryClipboard() *MemoryClipboard { return &MemoryClipboard{} }

func (c *MemoryClipboard) Channel() model.Channel { return model.ChannelClipboard }

func (c *MemoryClipboard) Send(_ context.Context, _ model.Contact, msg Message) error {
	c.Copy(msg.Text)
	return nil
}

// Copy replaces the clipboard contents.
func (c *MemoryClipboard) Copy(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = text
	c.copiedAt = time.Now().UTC()
}

// Read returns the clipboard contents and when they were copied.
func (c *MemoryClipboard) Read() (string, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text, c.copiedAt
}
