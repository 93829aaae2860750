/*
 * gwpump - Copyright (C) 2026 gwpump contributors.
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 2, and only
 * version 2 as published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program; if not, write to the Free Software
 * Foundation, Inc., 59 Temple Place, Suite 330, Boston, MA  02111-1307  USA
 */

package dav

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	nsDAV     = "DAV:"
	nsCalDAV  = "urn:ietf:params:xml:ns:caldav"
	nsCardDAV = "urn:ietf:params:xml:ns:carddav"
)

// MultiStatus is the 207 response body shared by PROPFIND and REPORT.
type MultiStatus struct {
	XMLName   xml.Name   `xml:"DAV: multistatus"`
	Responses []Response `xml:"response"`
}

type Response struct {
	Href      string     `xml:"href"`
	Propstats []Propstat `xml:"propstat"`
}

type Propstat struct {
	Status string `xml:"status"`
	Prop   Prop   `xml:"prop"`
}

type Prop struct {
	DisplayName  string       `xml:"displayname"`
	ResourceType ResourceType `xml:"resourcetype"`
	ETag         string       `xml:"getetag"`
	Components   CompSet      `xml:"supported-calendar-component-set"`
	CalendarData string       `xml:"calendar-data"`
	AddressData  string       `xml:"address-data"`
}

type ResourceType struct {
	Collection  *struct{} `xml:"collection"`
	Calendar    *struct{} `xml:"calendar"`
	AddressBook *struct{} `xml:"addressbook"`
}

type CompSet struct {
	Comps []Comp `xml:"comp"`
}

type Comp struct {
	Name string `xml:"name,attr"`
}

// Ok reports whether the propstat carries a 2xx status.
func (p *Propstat) Ok() bool {
	return strings.Contains(p.Status, " 200 ") || strings.HasSuffix(p.Status, " 200 OK")
}

// OkProp returns the first successful propstat of the response, if any.
func (r *Response) OkProp() *Prop {
	for i := range r.Propstats {
		if r.Propstats[i].Ok() {
			return &r.Propstats[i].Prop
		}
	}
	return nil
}

// Client is a minimal WebDAV/CalDAV/CardDAV HTTP client speaking the
// handful of methods the migration drivers need.
type Client struct {
	base     *url.URL
	username string
	password string
	hc       *http.Client
}

func NewClient(rawURL, username, password string) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported dav url scheme %q", u.Scheme)
	}

	return &Client{
		base:     u,
		username: username,
		password: password,
		hc:       &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

// Options issues OPTIONS against the server root and returns the DAV
// compliance classes it advertises.
func (c *Client) Options(ctx context.Context) ([]string, error) {
	resp, err := c.do(ctx, "OPTIONS", c.base.Path, nil, nil)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	if err := checkStatus(resp, http.StatusOK, http.StatusNoContent); err != nil {
		return nil, err
	}

	var classes []string
	for _, hdr := range resp.Header.Values("Dav") {
		for _, part := range strings.Split(hdr, ",") {
			if part = strings.TrimSpace(part); part != "" {
				classes = append(classes, part)
			}
		}
	}

	return classes, nil
}

func (c *Client) PropFind(ctx context.Context, path, depth string, body string) (*MultiStatus, error) {
	hdr := http.Header{}
	hdr.Set("Depth", depth)
	hdr.Set("Content-Type", "application/xml; charset=utf-8")

	resp, err := c.do(ctx, "PROPFIND", path, hdr, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	if err := checkStatus(resp, http.StatusMultiStatus); err != nil {
		return nil, err
	}

	return decodeMultiStatus(resp.Body)
}

func (c *Client) Report(ctx context.Context, path, body string) (*MultiStatus, error) {
	hdr := http.Header{}
	hdr.Set("Depth", "1")
	hdr.Set("Content-Type", "application/xml; charset=utf-8")

	resp, err := c.do(ctx, "REPORT", path, hdr, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	if err := checkStatus(resp, http.StatusMultiStatus); err != nil {
		return nil, err
	}

	return decodeMultiStatus(resp.Body)
}

func (c *Client) MkCol(ctx context.Context, path, body string) error {
	hdr := http.Header{}
	hdr.Set("Content-Type", "application/xml; charset=utf-8")

	resp, err := c.do(ctx, "MKCOL", path, hdr, strings.NewReader(body))
	if err != nil {
		return err
	}
	defer drain(resp)

	return checkStatus(resp, http.StatusCreated)
}

func (c *Client) Put(ctx context.Context, path, contentType string, data io.Reader) error {
	hdr := http.Header{}
	hdr.Set("Content-Type", contentType)

	resp, err := c.do(ctx, "PUT", path, hdr, data)
	if err != nil {
		return err
	}
	defer drain(resp)

	return checkStatus(resp, http.StatusCreated, http.StatusNoContent, http.StatusOK)
}

func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.do(ctx, "GET", path, nil, nil)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}

	return io.ReadAll(resp.Body)
}

func (c *Client) do(ctx context.Context, method, path string, hdr http.Header, body io.Reader) (*http.Response, error) {
	// Hrefs arrive percent-escaped, both the ones servers report in
	// multistatus responses and the ones built with PathEscape. Resolving
	// against the base keeps the escaped form verbatim instead of escaping
	// the escapes again.
	u, err := c.base.Parse(path)
	if err != nil {
		return nil, err
	}
	u.RawQuery = ""
	u.Fragment = ""

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}

	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.SetBasicAuth(c.username, c.password)

	log.WithFields(log.Fields{
		"method": method,
		"path":   path,
	}).Trace("dav_request")

	return c.hc.Do(req)
}

// HTTPError carries a non-success DAV response status.
type HTTPError struct {
	Method string
	Path   string
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("dav: %s %s returned %d", e.Method, e.Path, e.Status)
}

func (e *HTTPError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

func checkStatus(resp *http.Response, want ...int) error {
	for _, w := range want {
		if resp.StatusCode == w {
			return nil
		}
	}
	return &HTTPError{
		Method: resp.Request.Method,
		Path:   resp.Request.URL.Path,
		Status: resp.StatusCode,
	}
}

func decodeMultiStatus(r io.Reader) (*MultiStatus, error) {
	var ms MultiStatus
	if err := xml.NewDecoder(r).Decode(&ms); err != nil {
		return nil, fmt.Errorf("dav: malformed multistatus: %w", err)
	}
	return &ms, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
}
