package discharge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	cleanhttp "github.com/hashicorp/go-cleanhttp"

	"github.com/macaroonkit/macaroon"
)

// ClientOption configures a Client via the functional-options pattern.
type ClientOption func(*Client)

// WithHTTP overrides the HTTP client used for requests to third parties.
func WithHTTP(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithBearerAuthentication sends `Authorization: Bearer <token>` on every
// request this Client makes.
func WithBearerAuthentication(token string) ClientOption {
	return WithAuthentication("Authorization", "Bearer "+token)
}

// WithAuthentication sends an arbitrary header on every request this
// Client makes.
func WithAuthentication(header, value string) ClientOption {
	return func(c *Client) {
		if c.headers == nil {
			c.headers = map[string]string{}
		}
		c.headers[header] = value
	}
}

// WithPollingBackoff overrides the backoff schedule used while polling a
// third party for a not-yet-ready discharge. Called with a zero duration
// the first time.
func WithPollingBackoff(next func(last time.Duration) time.Duration) ClientOption {
	return func(c *Client) { c.pollBackoffNext = next }
}

// Client fetches discharge tokens for a primary token's third-party
// caveats over HTTP.
type Client struct {
	http            *http.Client
	headers         map[string]string
	pollBackoffNext func(last time.Duration) time.Duration
}

// NewClient builds a Client with cleanhttp's hardened default transport
// unless overridden via WithHTTP.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{http: cleanhttp.DefaultClient()}
	for _, opt := range opts {
		opt(c)
	}
	if c.pollBackoffNext == nil {
		c.pollBackoffNext = defaultBackoff
	}
	return c
}

func defaultBackoff(last time.Duration) time.Duration {
	switch {
	case last == 0:
		return 250 * time.Millisecond
	case last < 4*time.Second:
		return last * 2
	default:
		return 4 * time.Second
	}
}

// FetchDischarge requests a discharge for caveatID from location, polling
// if the third party responds with a poll URL instead of an immediate
// discharge.
func (c *Client) FetchDischarge(ctx context.Context, location string, caveatID []byte) (*macaroon.Token, error) {
	resp, err := c.postDischargeRequest(ctx, location, caveatID)
	if err != nil {
		return nil, err
	}

	if resp.Error != "" {
		return nil, macaroon.CaveatViolation(resp.Error)
	}

	if resp.Discharge != "" {
		return decodeDischargeBundle(resp.Discharge)
	}

	return c.poll(ctx, resp.PollURL)
}

// FetchDischarges fetches a discharge for every third-party caveat on
// primary, in insertion order, and returns them already bound to primary
// (the shape primary.Verify takes as boundDischarges; passing them to
// PrepareForRequest would bind them a second time).
func (c *Client) FetchDischarges(ctx context.Context, primary *macaroon.Token) ([]*macaroon.Token, error) {
	var bound []*macaroon.Token
	for _, cav := range primary.Caveats {
		if cav.IsFirstParty() {
			continue
		}
		if cav.Location == nil {
			return nil, macaroon.InvalidFormat("third-party caveat missing location")
		}

		d, err := c.FetchDischarge(ctx, *cav.Location, cav.CaveatID)
		if err != nil {
			return nil, err
		}
		bound = append(bound, primary.BindDischarge(d))
	}
	return bound, nil
}

func (c *Client) postDischargeRequest(ctx context.Context, location string, caveatID []byte) (*dischargeResponse, error) {
	reqBody, err := json.Marshal(&dischargeRequest{CaveatID: base64.StdEncoding.EncodeToString(caveatID)})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, location, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	return decodeResponse(httpResp)
}

func (c *Client) poll(ctx context.Context, pollURL string) (*macaroon.Token, error) {
	if pollURL == "" {
		return nil, macaroon.InvalidFormat("discharge response missing poll_url")
	}

	if _, err := url.Parse(pollURL); err != nil {
		return nil, macaroon.InvalidFormat("malformed poll_url")
	}

	var backoff time.Duration
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pollURL, nil)
		if err != nil {
			return nil, err
		}
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}

		httpResp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}

		if httpResp.StatusCode == http.StatusAccepted {
			httpResp.Body.Close()

			backoff = c.pollBackoffNext(backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			continue
		}

		resp, err := decodeResponse(httpResp)
		httpResp.Body.Close()
		if err != nil {
			return nil, err
		}

		if resp.Error != "" {
			return nil, macaroon.CaveatViolation(resp.Error)
		}
		return decodeDischargeBundle(resp.Discharge)
	}
}

func decodeResponse(httpResp *http.Response) (*dischargeResponse, error) {
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	var resp dischargeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, macaroon.DeserializationError("malformed discharge response", err)
	}
	return &resp, nil
}

func decodeDischargeBundle(bundle string) (*macaroon.Token, error) {
	tokens, err := macaroon.DecodeBundle(bundle)
	if err != nil {
		return nil, err
	}
	if len(tokens) != 1 {
		return nil, macaroon.InvalidFormat(fmt.Sprintf("expected exactly one discharge token, got %d", len(tokens)))
	}
	return tokens[0], nil
}
