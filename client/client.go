// Package client implements pipegraph.Backend against a remote pipe backend
// over HTTP.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	fiberclient "github.com/gofiber/fiber/v3/client"
	"golang.org/x/oauth2"

	"github.com/meikuraledutech/pipegraph"
)

const defaultTimeout = 10 * time.Second

// Client talks to the pipe backend REST surface.
type Client struct {
	http    *fiberclient.Client
	tokens  oauth2.TokenSource
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTokenSource attaches "Authorization: <type> <token>" to every request.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithStaticToken is WithTokenSource for a fixed token. tokenType defaults
// to "Bearer".
func WithStaticToken(token, tokenType string) Option {
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   tokenType,
	}))
}

// WithTimeout bounds every request. Zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New returns a Client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{timeout: defaultTimeout}
	for _, o := range opts {
		o(c)
	}
	c.http = fiberclient.New().SetBaseURL(baseURL).SetTimeout(c.timeout)
	return c
}

// ListPipes fetches every pipe.
func (c *Client) ListPipes(ctx context.Context) ([]pipegraph.PipeConfig, error) {
	body, err := c.do(ctx, "GET", "/pipe", nil)
	if err != nil {
		return nil, err
	}
	var list pipegraph.PipeList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("%w: pipe list: %v", pipegraph.ErrInvalidFormat, err)
	}
	return list.Configs, nil
}

// CreatePipe posts a single config and returns the allocated id.
func (c *Client) CreatePipe(ctx context.Context, p *pipegraph.PipeConfig) (int64, error) {
	body, err := c.do(ctx, "POST", "/pipe", pipegraph.PipeList{Configs: []pipegraph.PipeConfig{*p}})
	if err != nil {
		return 0, err
	}
	return decodeCreated(body)
}

// UpdatePipe puts a single config.
func (c *Client) UpdatePipe(ctx context.Context, p *pipegraph.PipeConfig) error {
	_, err := c.do(ctx, "PUT", "/pipe", pipegraph.PipeList{Configs: []pipegraph.PipeConfig{*p}})
	return err
}

// DeletePipe deletes the pipe with the given id.
func (c *Client) DeletePipe(ctx context.Context, id int64) error {
	_, err := c.do(ctx, "DELETE", "/pipe/"+strconv.FormatInt(id, 10), nil)
	return err
}

// ListDaemons fetches the registered daemons.
func (c *Client) ListDaemons(ctx context.Context) ([]pipegraph.Daemon, error) {
	body, err := c.do(ctx, "GET", "/clients", nil)
	if err != nil {
		return nil, err
	}
	var list pipegraph.DaemonList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("%w: daemon list: %v", pipegraph.ErrInvalidFormat, err)
	}
	return list.Clients, nil
}

// RegisterDaemon posts a daemon registration.
func (c *Client) RegisterDaemon(ctx context.Context, d *pipegraph.Daemon) error {
	_, err := c.do(ctx, "POST", "/clients", d)
	return err
}

// do sends one request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	req := c.http.R().SetContext(ctx)
	if c.tokens != nil {
		tok, err := c.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: token: %v", pipegraph.ErrUnauthorized, err)
		}
		req.SetHeader("Authorization", tok.Type()+" "+tok.AccessToken)
	}
	if payload != nil {
		req.SetJSON(payload)
	}

	var (
		resp *fiberclient.Response
		err  error
	)
	switch method {
	case "GET":
		resp, err = req.Get(path)
	case "POST":
		resp, err = req.Post(path)
	case "PUT":
		resp, err = req.Put(path)
	case "DELETE":
		resp, err = req.Delete(path)
	default:
		return nil, fmt.Errorf("pipegraph: unsupported method %s", method)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", pipegraph.ErrNetworkFailure, method, path, err)
	}
	defer resp.Close()

	status := resp.StatusCode()
	body := append([]byte(nil), resp.Body()...)
	switch {
	case status >= 200 && status < 300:
		return body, nil
	case status == 401 || status == 403:
		return nil, fmt.Errorf("%w: %s %s", pipegraph.ErrUnauthorized, method, path)
	case status == 404:
		return nil, fmt.Errorf("%w: %s %s", pipegraph.ErrPipeNotFound, method, path)
	case status == 400 || status == 422:
		return nil, fmt.Errorf("%w: %s %s: %s", pipegraph.ErrInvalidFormat, method, path, errorMessage(body))
	}
	return nil, fmt.Errorf("%w: %s %s: status %d: %s", pipegraph.ErrNetworkFailure, method, path, status, errorMessage(body))
}

// decodeCreated accepts [{"id":N}] as well as a bare {"id":N}.
func decodeCreated(body []byte) (int64, error) {
	var list []pipegraph.CreatedPipe
	if err := json.Unmarshal(body, &list); err == nil {
		if len(list) == 0 || list[0].ID == 0 {
			return 0, fmt.Errorf("%w: create response has no id", pipegraph.ErrInvalidFormat)
		}
		return list[0].ID, nil
	}
	var one pipegraph.CreatedPipe
	if err := json.Unmarshal(body, &one); err != nil || one.ID == 0 {
		return 0, fmt.Errorf("%w: create response %q", pipegraph.ErrInvalidFormat, body)
	}
	return one.ID, nil
}

func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return string(body)
}
