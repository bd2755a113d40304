// Package client is an HTTP client for the ticketvote node API.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/vocdoni/ticketvote/api"
	"github.com/vocdoni/ticketvote/log"
	"github.com/vocdoni/ticketvote/types"
)

const (
	// DefaultRetries applies to idempotent requests only.
	DefaultRetries = 3
	// DefaultTimeout is the default timeout for the HTTP client
	DefaultTimeout = 60 * time.Second
)

// HTTPclient is the node API HTTP client.
type HTTPclient struct {
	c       *http.Client
	host    *url.URL
	retries int
	token   string
}

// New returns a client for host after checking that it answers /ping.
func New(host string) (*HTTPclient, error) {
	hostURL, err := url.Parse(host)
	if err != nil {
		return nil, err
	}
	c := &HTTPclient{
		c:       &http.Client{Timeout: DefaultTimeout},
		host:    hostURL,
		retries: DefaultRetries,
	}
	log.Debugw("http client created", "host", hostURL.String())
	if _, err := c.expectOK(c.Request(http.MethodGet, nil, api.PingEndpoint)); err != nil {
		return nil, err
	}
	return c, nil
}

// SetRetries configures the number of attempts of GET requests.
func (c *HTTPclient) SetRetries(n int) {
	c.retries = max(n, 1)
}

// SetTimeout configures the timeout for the HTTP client.
func (c *HTTPclient) SetTimeout(d time.Duration) {
	c.c.Timeout = d
}

// SetAdminToken sets the bearer token sent to admin endpoints.
func (c *HTTPclient) SetAdminToken(token string) {
	c.token = token
}

// StatusError is returned for non 200 responses.
type StatusError struct {
	Status int
	Code   int    `json:"code"`
	Msg    string `json:"error"`
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error %d (code %d): %s", e.Status, e.Code, e.Msg)
}

// Request performs a raw request to urlPath. GET requests are retried on
// connection failures, POST requests are sent once.
func (c *HTTPclient) Request(method string, jsonBody any, urlPath ...string) ([]byte, int, error) {
	var body []byte
	if jsonBody != nil {
		var err error
		if body, err = json.Marshal(jsonBody); err != nil {
			return nil, 0, fmt.Errorf("failed to marshal JSON: %w", err)
		}
	}
	u := *c.host
	u.Path = path.Join(u.Path, path.Join(urlPath...))
	log.Debugw("http client request", "type", method, "url", u.String(), "bytes", len(body))

	attempts := 1
	if method == http.MethodGet {
		attempts = c.retries
	}
	var (
		resp *http.Response
		err  error
	)
	for i := 1; i <= attempts; i++ {
		var req *http.Request
		req, err = http.NewRequest(method, u.String(), bytes.NewReader(body))
		if err != nil {
			return nil, 0, fmt.Errorf("failed to create request: %w", err)
		}
		if jsonBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		if resp, err = c.c.Do(req); err == nil {
			break
		}
		log.Warnw("http request failed", "error", err.Error(), "attempt", i, "retries", attempts)
		if i < attempts {
			time.Sleep(500 * time.Millisecond)
		}
	}
	if err != nil {
		return nil, 0, fmt.Errorf("http request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warnw("failed to close response body", "error", err)
		}
	}()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, resp.StatusCode, nil
}

// expectOK turns non 200 responses into a *StatusError.
func (*HTTPclient) expectOK(data []byte, status int, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		se := &StatusError{Status: status}
		if json.Unmarshal(data, se) != nil {
			se.Msg = string(bytes.TrimSpace(data))
		}
		return nil, se
	}
	return data, nil
}

func (c *HTTPclient) getJSON(out any, urlPath ...string) error {
	data, err := c.expectOK(c.Request(http.MethodGet, nil, urlPath...))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (c *HTTPclient) postJSON(in, out any, urlPath ...string) error {
	data, err := c.expectOK(c.Request(http.MethodPost, in, urlPath...))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// Verify asks the node whether pcd would be admitted for address.
func (c *HTTPclient) Verify(pcd []byte, address string) (*api.MessageResponse, error) {
	resp := &api.MessageResponse{}
	return resp, c.postJSON(&api.VoteRequest{PCD: pcd, Address: address}, resp, api.VerifyEndpoint)
}

// Vote casts an encrypted ballot with its validity proof.
func (c *HTTPclient) Vote(pcd []byte, address string, votes [][]byte, proof []byte) (*api.MessageResponse, error) {
	req := &api.VoteRequest{PCD: pcd, Address: address, Proof: proof}
	for _, v := range votes {
		req.Votes = append(req.Votes, types.HexBytes(v))
	}
	resp := &api.MessageResponse{}
	return resp, c.postJSON(req, resp, api.VoteEndpoint)
}

// PublicKey fetches the raw encryption public key.
func (c *HTTPclient) PublicKey() ([]byte, error) {
	return c.expectOK(c.Request(http.MethodGet, nil, api.PublicKeyEndpoint))
}

// PublicParams fetches what a ballot must satisfy to be accepted.
func (c *HTTPclient) PublicParams() (*api.PublicParams, error) {
	resp := &api.PublicParams{}
	return resp, c.getJSON(resp, api.PublicKeyParamsEndpoint)
}

// Info fetches the epoch information.
func (c *HTTPclient) Info() (*api.InfoResponse, error) {
	resp := &api.InfoResponse{}
	return resp, c.getJSON(resp, api.InfoEndpoint)
}

// Tally fetches the encrypted tallies.
func (c *HTTPclient) Tally() (*api.TallyResponse, error) {
	resp := &api.TallyResponse{}
	return resp, c.getJSON(resp, api.TallyEndpoint)
}

// CloseEpoch closes voting. Requires SetAdminToken.
func (c *HTTPclient) CloseEpoch() (*api.TallyResponse, error) {
	resp := &api.TallyResponse{}
	return resp, c.postJSON(struct{}{}, resp, api.CloseEpochEndpoint)
}
