// Package mailer talks to Listmonk for subscriber management and transactional email.
package mailer

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/imrishuroy/orderflow-reconciler/internal/remote"
)

const serviceListmonk = "listmonk"

// Config holds the Listmonk API location and credentials.
type Config struct {
	BaseURL  string
	Username string
	Password string
}

// Subscriber is a mailing-list identity keyed by email.
type Subscriber struct {
	Email  string `json:"email"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Lists  []int  `json:"lists"`
}

// SubscriberEnabled is the status given to customers added after a purchase.
const SubscriberEnabled = "enabled"

// TransactionalEmail is a templated message sent to one subscriber.
type TransactionalEmail struct {
	SubscriberEmail string                 `json:"subscriber_email"`
	TemplateID      int                    `json:"template_id"`
	Data            map[string]interface{} `json:"data"`
	ContentType     string                 `json:"content_type"`
}

// UpsertResult tells a fresh subscriber from one that already existed. Both are success.
type UpsertResult int

const (
	Created UpsertResult = iota + 1
	AlreadyExists
)

func (r UpsertResult) String() string {
	if r == AlreadyExists {
		return "already_exists"
	}
	return "created"
}

// Client is a Listmonk API client using basic auth.
type Client struct {
	http remote.Doer
	cfg  Config
}

// NewClient returns a Listmonk client.
func NewClient(httpClient remote.Doer, cfg Config) *Client {
	return &Client{http: httpClient, cfg: cfg}
}

// UpsertSubscriber creates s. A 409 conflict means the email is already subscribed and is
// reported as AlreadyExists rather than an error.
func (c *Client) UpsertSubscriber(ctx context.Context, s Subscriber) (UpsertResult, error) {
	err := remote.Call(ctx, c.http, remote.Request{
		Service: serviceListmonk,
		Op:      "create_subscriber",
		Method:  http.MethodPost,
		URL:     c.url("/subscribers"),
		Header:  c.header(),
		Body:    s,
	}, nil)
	if remote.IsStatus(err, http.StatusConflict) {
		return AlreadyExists, nil
	}
	if err != nil {
		return 0, err
	}
	return Created, nil
}

// SendTransactional sends a templated email through POST /tx.
func (c *Client) SendTransactional(ctx context.Context, m TransactionalEmail) error {
	return remote.Call(ctx, c.http, remote.Request{
		Service: serviceListmonk,
		Op:      "send_email",
		Method:  http.MethodPost,
		URL:     c.url("/tx"),
		Header:  c.header(),
		Body:    m,
	}, nil)
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

func (c *Client) header() http.Header {
	token := base64.StdEncoding.EncodeToString([]byte(c.cfg.Username + ":" + c.cfg.Password))
	h := http.Header{}
	h.Set("Authorization", "Basic "+token)
	return h
}
