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

package ews

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

const serverVersion = "Exchange2013_SP1"

// SOAPClient posts EWS operations to one endpoint with HTTP basic auth.
// When Impersonate is set, requests carry an ExchangeImpersonation header
// so an admin account can export another user's mailbox.
type SOAPClient struct {
	URL         string
	Username    string
	Password    string
	Impersonate string

	HTTP *http.Client
}

type soapEnvelope struct {
	XMLName   xml.Name `xml:"soap:Envelope"`
	XmlnsSoap string   `xml:"xmlns:soap,attr"`
	XmlnsM    string   `xml:"xmlns:m,attr"`
	XmlnsT    string   `xml:"xmlns:t,attr"`
	Header    soapHeader
	Body      soapBody
}

type soapHeader struct {
	XMLName     xml.Name `xml:"soap:Header"`
	Version     requestServerVersion
	Impersonate *exchangeImpersonation
}

type requestServerVersion struct {
	XMLName xml.Name `xml:"t:RequestServerVersion"`
	Version string   `xml:"Version,attr"`
}

type exchangeImpersonation struct {
	XMLName xml.Name `xml:"t:ExchangeImpersonation"`
	SID     struct {
		XMLName     xml.Name `xml:"t:ConnectingSID"`
		PrimarySMTP string   `xml:"t:PrimarySmtpAddress"`
	}
}

type soapBody struct {
	XMLName xml.Name `xml:"soap:Body"`
	Payload interface{}
}

type soapResponseEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Inner []byte `xml:",innerxml"`
		Fault *soapFault
	} `xml:"Body"`
}

type soapFault struct {
	XMLName xml.Name `xml:"Fault"`
	Code    string   `xml:"faultcode"`
	String  string   `xml:"faultstring"`
}

// FaultError is a SOAP-level failure returned by the server.
type FaultError struct {
	Code   string
	Detail string
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("ews: soap fault %s: %s", e.Code, e.Detail)
}

// StatusError is a non-200 HTTP response from the EWS endpoint.
type StatusError struct {
	Op     string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ews: %s returned http %d", e.Op, e.Status)
}

func (e *StatusError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

func (c *SOAPClient) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 5 * time.Minute}
}

// Call marshals req into a SOAP envelope, posts it and decodes the body
// into resp.
func (c *SOAPClient) Call(ctx context.Context, op string, req, resp interface{}) error {
	env := soapEnvelope{
		XmlnsSoap: "http://schemas.xmlsoap.org/soap/envelope/",
		XmlnsM:    "http://schemas.microsoft.com/exchange/services/2006/messages",
		XmlnsT:    "http://schemas.microsoft.com/exchange/services/2006/types",
		Header: soapHeader{
			Version: requestServerVersion{Version: serverVersion},
		},
		Body: soapBody{Payload: req},
	}

	if c.Impersonate != "" {
		imp := &exchangeImpersonation{}
		imp.SID.PrimarySMTP = c.Impersonate
		env.Header.Impersonate = imp
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(&env); err != nil {
		return fmt.Errorf("ews: encoding %s request: %w", op, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, &buf)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "text/xml; charset=utf-8")
	httpReq.SetBasicAuth(c.Username, c.Password)

	log.WithFields(log.Fields{
		"op":  op,
		"url": c.URL,
	}).Trace("ews_request")

	httpResp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 64<<20))
	if err != nil {
		return err
	}

	// EWS reports SOAP faults with status 500; decode those before
	// failing on the status code.
	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusInternalServerError {
		return &StatusError{Op: op, Status: httpResp.StatusCode}
	}

	var respEnv soapResponseEnvelope
	if err := xml.Unmarshal(body, &respEnv); err != nil {
		return fmt.Errorf("ews: decoding %s response: %w", op, err)
	}

	if respEnv.Body.Fault != nil {
		return &FaultError{Code: respEnv.Body.Fault.Code, Detail: respEnv.Body.Fault.String}
	}
	if httpResp.StatusCode != http.StatusOK {
		return &StatusError{Op: op, Status: httpResp.StatusCode}
	}

	if err := xml.Unmarshal(respEnv.Body.Inner, resp); err != nil {
		return fmt.Errorf("ews: decoding %s response body: %w", op, err)
	}

	return nil
}
