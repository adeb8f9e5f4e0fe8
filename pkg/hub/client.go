package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/cirocosta/docker-hub-exporter/pkg/target"
)

const (
	// DefaultBaseURL is the root under which both repositories
	// (`{namespace}/{name}`) and organization listings (`{namespace}`)
	// live.
	//
	DefaultBaseURL = "https://hub.docker.com/v2/repositories/"

	DefaultTimeout  = 10 * time.Second
	DefaultMaxPages = 1000
	DefaultPageSize = 100

	maxBodySize = 16 << 20
)

// Page is a single page of an organization's repository listing.
//
type Page struct {
	// Results holds the raw repository documents of this page, to be
	// decoded by `Map`.
	//
	Results []json.RawMessage

	// Next is the absolute URL of the following page, empty when the
	// listing is exhausted.
	//
	Next string
}

// pageDocument is the wire representation of a listing page. `next` may be
// absent, null or an empty string, all meaning "no more pages".
//
type pageDocument struct {
	Count   int               `json:"count"`
	Next    *string           `json:"next"`
	Results []json.RawMessage `json:"results"`
}

// Client is a minimal Docker Hub API client, only covering the endpoints
// needed to gather repository statistics.
//
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	maxPages   int
	pageSize   int
	userAgent  string

	log logr.Logger
}

// Option is a functional argument used to override the client's defaults.
//
type Option func(c *Client)

// WithHTTPClient replaces the http client (and thus its timeout and
// transport) used for every request.
//
func WithHTTPClient(v *http.Client) Option {
	return func(c *Client) {
		c.httpClient = v
	}
}

// WithTimeout sets the timeout of every single request made to the
// registry.
//
func WithTimeout(v time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = v
	}
}

// WithMaxPages bounds how many listing pages are followed for a single
// organization before giving up on it.
//
func WithMaxPages(v int) Option {
	return func(c *Client) {
		c.maxPages = v
	}
}

// WithPageSize sets the `page_size` requested for organization listings.
//
func WithPageSize(v int) Option {
	return func(c *Client) {
		c.pageSize = v
	}
}

func WithUserAgent(v string) Option {
	return func(c *Client) {
		c.userAgent = v
	}
}

func WithLogger(v logr.Logger) Option {
	return func(c *Client) {
		c.log = v
	}
}

// NewClient instantiates a client targeting `baseURL` (typically
// DefaultBaseURL).
//
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url '%s': %w", baseURL, err)
	}

	if !parsed.IsAbs() {
		return nil, fmt.Errorf("base url '%s' is not absolute", baseURL)
	}

	c := &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		maxPages:   DefaultMaxPages,
		pageSize:   DefaultPageSize,
		userAgent:  "docker-hub-exporter",
		log:        logr.Discard(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// RepositoryURL is the metadata endpoint of a single repository.
//
func (c *Client) RepositoryURL(repo target.Repository) string {
	return c.baseURL.ResolveReference(&url.URL{
		Path: repo.Namespace + "/" + repo.Name,
	}).String()
}

// OrganizationURL is the first page of an organization's listing.
//
func (c *Client) OrganizationURL(org target.Organization) string {
	ref := &url.URL{Path: org.Namespace + "/"}

	if c.pageSize > 0 {
		ref.RawQuery = url.Values{
			"page_size": []string{strconv.Itoa(c.pageSize)},
		}.Encode()
	}

	return c.baseURL.ResolveReference(ref).String()
}

// FetchRepository retrieves the raw metadata document of a repository.
//
func (c *Client) FetchRepository(
	ctx context.Context, repo target.Repository,
) (json.RawMessage, error) {
	var doc json.RawMessage

	if err := c.get(ctx, c.RepositoryURL(repo), &doc); err != nil {
		return nil, fmt.Errorf("fetch repository '%s': %w", repo, err)
	}

	if !isObject(doc) {
		return nil, fmt.Errorf("fetch repository '%s': %w: "+
			"document is not an object", repo, ErrUpstreamMalformed)
	}

	return doc, nil
}

// FetchOrganizationPage retrieves a single listing page, be it the first one
// (see OrganizationURL) or one pointed at by a previous page's `next`.
//
func (c *Client) FetchOrganizationPage(
	ctx context.Context, pageURL string,
) (*Page, error) {
	var doc pageDocument

	if err := c.get(ctx, pageURL, &doc); err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}

	if doc.Results == nil {
		return nil, fmt.Errorf("fetch page '%s': %w: no results",
			pageURL, ErrUpstreamMalformed)
	}

	page := &Page{Results: doc.Results}

	if doc.Next != nil && strings.TrimSpace(*doc.Next) != "" {
		next, err := c.resolveNext(pageURL, *doc.Next)
		if err != nil {
			return nil, fmt.Errorf("fetch page '%s': %w: next: %v",
				pageURL, ErrUpstreamMalformed, err)
		}

		page.Next = next
	}

	return page, nil
}

// FetchAllOrganizationRepositories walks every page of an organization's
// listing, concatenating the results in the order they were received.
//
// Entries repeated across pages are kept as-is. The walk is bounded by the
// configured maximum number of pages and by the first `next` that points at
// an already visited page, both surfacing as ErrUpstreamMalformed.
//
func (c *Client) FetchAllOrganizationRepositories(
	ctx context.Context, org target.Organization,
) ([]json.RawMessage, error) {
	var (
		results []json.RawMessage
		visited = map[string]struct{}{}
		next    = c.OrganizationURL(org)
	)

	for pages := 0; next != ""; pages++ {
		if pages >= c.maxPages {
			return nil, fmt.Errorf("list '%s': %w: more than %d pages",
				org, ErrUpstreamMalformed, c.maxPages)
		}

		if _, found := visited[next]; found {
			return nil, fmt.Errorf("list '%s': %w: page '%s' seen twice",
				org, ErrUpstreamMalformed, next)
		}
		visited[next] = struct{}{}

		page, err := c.FetchOrganizationPage(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("list '%s': %w", org, err)
		}

		results = append(results, page.Results...)
		next = page.Next
	}

	return results, nil
}

func (c *Client) resolveNext(current, next string) (string, error) {
	base, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("parse '%s': %w", current, err)
	}

	ref, err := url.Parse(strings.TrimSpace(next))
	if err != nil {
		return "", fmt.Errorf("parse '%s': %w", next, err)
	}

	return base.ResolveReference(ref).String(), nil
}

func (c *Client) get(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("new request '%s': %w: %v",
			endpoint, ErrUpstreamMalformed, err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	c.log.V(1).Info("fetching", "url", endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("get '%s': %w: %w",
			endpoint, ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		return fmt.Errorf("get '%s': %w: status %s",
			endpoint, ErrUpstreamUnavailable, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("read body '%s': %w: %w",
			endpoint, ErrUpstreamUnavailable, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode '%s': %w: %v",
			endpoint, ErrUpstreamMalformed, err)
	}

	return nil
}

func isObject(doc json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(doc))
	return strings.HasPrefix(trimmed, "{")
}
