package pinning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tezoscommons/rpin/internal/remotepin/config"
)

const userAgent = "rpin"

// Client talks to a remote service implementing the IPFS Pinning Service API.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
	log      *logrus.Entry
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

func WithLogger(l *logrus.Entry) Option {
	return func(c *Client) {
		c.log = l.WithField("source", "pinning-client")
	}
}

func New(endpoint, token string, opts ...Option) *Client {
	c := &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		token:    token,
		http:     &http.Client{Timeout: 30 * time.Second},
		log:      logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func NewClient(c *config.Config, l *logrus.Entry) *Client {
	if c.PinService.Endpoint == "" {
		l.Fatal("PinService.Endpoint is not configured")
	}
	return New(c.PinService.Endpoint, c.PinService.AccessToken,
		WithHTTPClient(&http.Client{Timeout: c.PinService.Timeout}),
		WithLogger(l),
	)
}

// Add asks the service to pin a new object.
func (c *Client) Add(ctx context.Context, pin Pin) (*PinStatus, error) {
	res := &PinStatus{}
	if err := c.do(ctx, http.MethodPost, "/pins", nil, pin, res); err != nil {
		return nil, err
	}
	return res, nil
}

// Replace removes the pin identified by requestID and pins pin instead.
func (c *Client) Replace(ctx context.Context, requestID string, pin Pin) (*PinStatus, error) {
	res := &PinStatus{}
	if err := c.do(ctx, http.MethodPost, "/pins/"+url.PathEscape(requestID), nil, pin, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) Get(ctx context.Context, requestID string) (*PinStatus, error) {
	res := &PinStatus{}
	if err := c.do(ctx, http.MethodGet, "/pins/"+url.PathEscape(requestID), nil, nil, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) Remove(ctx context.Context, requestID string) error {
	return c.do(ctx, http.MethodDelete, "/pins/"+url.PathEscape(requestID), nil, nil, nil)
}

func (c *Client) List(ctx context.Context, opts ListOptions) (*PinResults, error) {
	q := url.Values{}
	if len(opts.Cids) > 0 {
		q.Set("cid", strings.Join(opts.Cids, ","))
	}
	if opts.Name != "" {
		q.Set("name", opts.Name)
	}
	if opts.Match != "" {
		q.Set("match", string(opts.Match))
	}
	if len(opts.Status) > 0 {
		s := make([]string, 0, len(opts.Status))
		for _, st := range opts.Status {
			s = append(s, string(st))
		}
		q.Set("status", strings.Join(s, ","))
	}
	if !opts.Before.IsZero() {
		q.Set("before", opts.Before.UTC().Format(time.RFC3339))
	}
	if !opts.After.IsZero() {
		q.Set("after", opts.After.UTC().Format(time.RFC3339))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if len(opts.Meta) > 0 {
		b, err := json.Marshal(opts.Meta)
		if err != nil {
			return nil, err
		}
		q.Set("meta", string(b))
	}
	res := &PinResults{}
	if err := c.do(ctx, http.MethodGet, "/pins", q, nil, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	u := c.endpoint + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.log.WithField("method", method).WithField("path", path).Trace("pinning service request")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		io.Copy(ioutil.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	b, _ := ioutil.ReadAll(io.LimitReader(resp.Body, 64<<10))
	f := failure{}
	if err := json.Unmarshal(b, &f); err != nil || f.Error == nil {
		return &Error{StatusCode: resp.StatusCode, Reason: http.StatusText(resp.StatusCode), Details: strings.TrimSpace(string(b))}
	}
	f.Error.StatusCode = resp.StatusCode
	return f.Error
}
