// Package registrar provides a client for a Namecheap-style registrar XML
// API: domain availability checks with premium detection and TLD
// registration pricing.
package registrar

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// CheckResult is the registrar's verdict for one domain.
type CheckResult struct {
	Domain       string
	Available    bool
	IsPremium    bool
	PremiumPrice *float64
	IcannFee     *float64
}

// APIError is an error element returned inside an otherwise valid
// response envelope.
type APIError struct {
	Number  string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("registrar: api error %s: %s", e.Number, e.Message)
}

// StatusError reports a failing HTTP status from the registrar endpoint.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("registrar: status %d", e.Code)
}

// Client defines the registrar operations used by the pricing stage.
type Client interface {
	// Check queries availability and premium pricing for up to 50
	// domains in one call.
	Check(ctx context.Context, domains []string) ([]CheckResult, error)
	// TLDPrice returns the standard first-year registration price for a
	// TLD.
	TLDPrice(ctx context.Context, tld string) (float64, error)
}

// Credentials identify the API account.
type Credentials struct {
	APIUser  string
	APIKey   string
	UserName string
	ClientIP string
}

// Option configures the registrar client.
type Option func(*httpClient)

// WithBaseURL sets a custom API endpoint (for testing or sandbox use).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	creds   Credentials
	baseURL string
	http    *http.Client
}

// NewClient creates a registrar client.
func NewClient(creds Credentials, opts ...Option) Client {
	c := &httpClient{
		creds:   creds,
		baseURL: "https://api.namecheap.com/xml.response",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiResponse is the common envelope. Element names are matched by local
// name, so the registrar's response namespace does not matter.
type apiResponse struct {
	Status string     `xml:"Status,attr"`
	Errors []apiError `xml:"Errors>Error"`

	CheckResults []checkResult `xml:"CommandResponse>DomainCheckResult"`
	Pricing      []productType `xml:"CommandResponse>UserGetPricingResult>ProductType"`
}

type apiError struct {
	Number  string `xml:"Number,attr"`
	Message string `xml:",chardata"`
}

type checkResult struct {
	Domain                   string `xml:"Domain,attr"`
	Available                string `xml:"Available,attr"`
	IsPremiumName            string `xml:"IsPremiumName,attr"`
	PremiumRegistrationPrice string `xml:"PremiumRegistrationPrice,attr"`
	IcannFee                 string `xml:"IcannFee,attr"`
}

type productType struct {
	Name       string            `xml:"Name,attr"`
	Categories []productCategory `xml:"ProductCategory"`
}

type productCategory struct {
	Name     string    `xml:"Name,attr"`
	Products []product `xml:"Product"`
}

type product struct {
	Name   string         `xml:"Name,attr"`
	Prices []productPrice `xml:"Price"`
}

type productPrice struct {
	Duration string `xml:"Duration,attr"`
	Price    string `xml:"Price,attr"`
}

func (c *httpClient) Check(ctx context.Context, domains []string) ([]CheckResult, error) {
	if len(domains) == 0 {
		return nil, nil
	}
	resp, err := c.call(ctx, "namecheap.domains.check", url.Values{
		"DomainList": {strings.Join(domains, ",")},
	})
	if err != nil {
		return nil, err
	}

	out := make([]CheckResult, 0, len(resp.CheckResults))
	for _, r := range resp.CheckResults {
		cr := CheckResult{
			Domain:    r.Domain,
			Available: strings.EqualFold(r.Available, "true"),
			IsPremium: strings.EqualFold(r.IsPremiumName, "true"),
		}
		if p, err := strconv.ParseFloat(r.PremiumRegistrationPrice, 64); err == nil && p > 0 {
			cr.PremiumPrice = &p
		}
		if f, err := strconv.ParseFloat(r.IcannFee, 64); err == nil && f > 0 {
			cr.IcannFee = &f
		}
		out = append(out, cr)
	}
	return out, nil
}

func (c *httpClient) TLDPrice(ctx context.Context, tld string) (float64, error) {
	resp, err := c.call(ctx, "namecheap.users.getPricing", url.Values{
		"ProductType":     {"DOMAIN"},
		"ProductCategory": {"DOMAINS"},
		"ActionName":      {"REGISTER"},
		"ProductName":     {tld},
	})
	if err != nil {
		return 0, err
	}

	for _, pt := range resp.Pricing {
		for _, cat := range pt.Categories {
			if !strings.EqualFold(cat.Name, "register") {
				continue
			}
			for _, prod := range cat.Products {
				if !strings.EqualFold(prod.Name, tld) {
					continue
				}
				for _, pr := range prod.Prices {
					if pr.Duration != "" && pr.Duration != "1" {
						continue
					}
					if p, err := strconv.ParseFloat(pr.Price, 64); err == nil && p > 0 {
						return p, nil
					}
				}
			}
		}
	}
	return 0, eris.Errorf("registrar: no registration price for tld %q", tld)
}

// call issues one API command and decodes the envelope.
func (c *httpClient) call(ctx context.Context, command string, params url.Values) (*apiResponse, error) {
	q := url.Values{
		"ApiUser":  {c.creds.APIUser},
		"ApiKey":   {c.creds.APIKey},
		"UserName": {c.creds.UserName},
		"ClientIp": {c.creds.ClientIP},
		"Command":  {command},
	}
	for k, vs := range params {
		q[k] = vs
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrapf(err, "registrar: create %s request", command)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "registrar: %s", command)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	decoder := xml.NewDecoder(io.LimitReader(resp.Body, 4<<20))
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "registrar: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}

	var envelope apiResponse
	if err := decoder.Decode(&envelope); err != nil {
		return nil, eris.Wrapf(err, "registrar: decode %s response", command)
	}

	if !strings.EqualFold(envelope.Status, "OK") {
		if len(envelope.Errors) > 0 {
			e := envelope.Errors[0]
			return nil, &APIError{Number: e.Number, Message: strings.TrimSpace(e.Message)}
		}
		return nil, eris.Errorf("registrar: %s returned status %q", command, envelope.Status)
	}
	return &envelope, nil
}
