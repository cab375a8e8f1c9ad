// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dtcheck/dtcheck/pkg/bundle"
	"github.com/dtcheck/dtcheck/pkg/semver"
	"github.com/dtcheck/dtcheck/pkg/types"
)

const (
	// DefaultBaseURL is the public npm registry.
	DefaultBaseURL = "https://registry.npmjs.org"

	// DefaultTimeout bounds a single registry request.
	DefaultTimeout = 30 * time.Second

	// abbreviatedMetadata is the media type of install-only package documents.
	abbreviatedMetadata = "application/vnd.npm.install-v1+json; q=1.0, application/json; q=0.8"

	// maxMetadataBytes caps a package document. Popular packages publish
	// thousands of versions, so this is generous.
	maxMetadataBytes = 64 << 20

	// maxTarballBytes caps a downloaded implementation tarball.
	maxTarballBytes = 128 << 20
)

var _ Resolver = (*Client)(nil)

type (
	// Client talks to an npm-compatible registry.
	Client struct {
		httpClient *http.Client
		baseURL    string
		userAgent  string

		group singleflight.Group
		mu    sync.Mutex
		cache map[string]*packument
	}

	// ClientOption configures a Client during construction.
	ClientOption func(*Client)

	packument struct {
		Name     string                      `json:"name"`
		DistTags map[string]string           `json:"dist-tags"`
		Versions map[string]packumentVersion `json:"versions"`
	}

	packumentVersion struct {
		Version    string `json:"version"`
		Deprecated any    `json:"deprecated,omitempty"`
		Dist       struct {
			Tarball   string `json:"tarball"`
			Integrity string `json:"integrity"`
			Shasum    string `json:"shasum"`
		} `json:"dist"`
	}
)

// WithHTTPClient sets a custom HTTP client, useful for tests or proxies.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(r *Client) {
		r.httpClient = c
	}
}

// WithBaseURL overrides the registry URL.
func WithBaseURL(base string) ClientOption {
	return func(r *Client) {
		r.baseURL = strings.TrimRight(base, "/")
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(r *Client) {
		r.userAgent = ua
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(r *Client) {
		if d > 0 {
			r.httpClient = &http.Client{Timeout: d}
		}
	}
}

// NewClient creates a Client for the public npm registry unless options
// say otherwise.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    DefaultBaseURL,
		userAgent:  "dtcheck/dev",
		cache:      make(map[string]*packument),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResolveImplementation finds the npm package a declaration package
// describes. versionRange is normally a ceiling such as "2.1.9999"; any
// other npm range selects the highest satisfying release instead.
func (c *Client) ResolveImplementation(ctx context.Context, typesPackageName, versionRange string) (*Match, error) {
	implName := types.PackageName(typesPackageName).ImplementationPackage()
	doc, err := c.metadata(ctx, implName.String())
	if err != nil {
		return nil, err
	}

	versions := make([]semver.Version, 0, len(doc.Versions))
	for raw := range doc.Versions {
		v, parseErr := semver.Parse(raw)
		if parseErr != nil {
			slog.Debug("skipping unparsable registry version", "package", implName, "version", raw)
			continue
		}
		versions = append(versions, v)
	}

	chosen, ok := pick(versions, versionRange)
	if !ok {
		return nil, fmt.Errorf("%s matching %q: %w", implName, versionRange, ErrNotFound)
	}
	entry := doc.Versions[chosen.String()]
	if entry.Dist.Tarball == "" {
		// Keys can carry build metadata or a "v" prefix; look the entry up
		// by its original spelling.
		for raw, e := range doc.Versions {
			if v, err := semver.Parse(raw); err == nil && v.Compare(chosen) == 0 {
				entry = e
				break
			}
		}
	}
	if entry.Dist.Tarball == "" {
		return nil, fmt.Errorf("%s@%s has no tarball: %w", implName, chosen, ErrNotFound)
	}

	return &Match{
		PackageName:    implName.String(),
		PackageVersion: chosen.String(),
		TarballURL:     entry.Dist.Tarball,
		Integrity:      entry.Dist.Integrity,
	}, nil
}

// FetchPackage downloads and unpacks the implementation tarball of m,
// verifying the published integrity when there is one.
func (c *Client) FetchPackage(ctx context.Context, m *Match) (*bundle.Package, error) {
	resp, err := c.doRequest(ctx, m.TarballURL, "application/octet-stream")
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", m.ID(), err)
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading %s: %w", m.ID(), &HTTPError{URL: m.TarballURL, StatusCode: resp.StatusCode})
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTarballBytes+1))
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", m.ID(), err)
	}
	if len(data) > maxTarballBytes {
		return nil, fmt.Errorf("downloading %s: %w", m.ID(), bundle.ErrTooLarge)
	}

	if m.Integrity != "" {
		if err := bundle.VerifyIntegrity(data, m.Integrity); err != nil {
			return nil, fmt.Errorf("verifying %s: %w", m.ID(), err)
		}
	}

	pkg, err := bundle.FromTarball(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unpacking %s: %w", m.ID(), err)
	}
	if pkg.Name == "" {
		pkg.Name, pkg.Version = m.PackageName, m.PackageVersion
	}
	return pkg, nil
}

func (c *Client) metadata(ctx context.Context, name string) (*packument, error) {
	c.mu.Lock()
	doc, ok := c.cache[name]
	c.mu.Unlock()
	if ok {
		return doc, nil
	}

	// The shared fetch outlives any single caller; each caller still
	// returns as soon as its own context is done.
	ch := c.group.DoChan(name, func() (any, error) {
		c.mu.Lock()
		cached, ok := c.cache[name]
		c.mu.Unlock()
		if ok {
			return cached, nil
		}
		doc, err := c.fetchMetadata(context.WithoutCancel(ctx), name)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[name] = doc
		c.mu.Unlock()
		return doc, nil
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fetching metadata for %s: %w", name, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*packument), nil
	}
}

func (c *Client) fetchMetadata(ctx context.Context, name string) (*packument, error) {
	reqURL := c.baseURL + "/" + escapeName(name)
	resp, err := c.doRequest(ctx, reqURL, abbreviatedMetadata)
	if err != nil {
		return nil, fmt.Errorf("fetching metadata for %s: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	default:
		return nil, fmt.Errorf("fetching metadata for %s: %w", name, &HTTPError{URL: reqURL, StatusCode: resp.StatusCode})
	}

	var doc packument
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxMetadataBytes)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("fetching metadata for %s: decoding response: %w", name, err)
	}
	return &doc, nil
}

func (c *Client) doRequest(ctx context.Context, reqURL, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	return resp, nil
}

// pick chooses the version for a ceiling such as "2.1.9999" or, when
// versionRange is not a plain version, the highest satisfying release.
func pick(versions []semver.Version, versionRange string) (semver.Version, bool) {
	if ceiling, err := semver.Parse(versionRange); err == nil {
		return semver.Closest(versions, ceiling)
	}
	r, err := semver.ParseRange(versionRange)
	if err != nil {
		return semver.Version{}, false
	}
	return semver.MaxSatisfying(versions, r)
}

// escapeName encodes the scope separator the way the registry expects:
// "@babel/core" becomes "@babel%2fcore".
func escapeName(name string) string {
	if strings.HasPrefix(name, "@") {
		scope, rest, _ := strings.Cut(name, "/")
		return scope + "%2f" + url.PathEscape(rest)
	}
	return url.PathEscape(name)
}
