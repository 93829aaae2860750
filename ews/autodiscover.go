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
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const autodiscoverNS = "http://schemas.microsoft.com/exchange/autodiscover/outlook/requestschema/2006"

type autodiscoverResponse struct {
	Response struct {
		Account struct {
			Protocols []struct {
				Type   string `xml:"Type"`
				EwsURL string `xml:"EwsUrl"`
				ASURL  string `xml:"ASUrl"`
			} `xml:"Protocol"`
		} `xml:"Account"`
	} `xml:"Response"`
}

// Autodiscover resolves the EWS endpoint for email by trying the standard
// POX autodiscover locations for its domain.
func Autodiscover(ctx context.Context, email, username, password string) (string, error) {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return "", fmt.Errorf("ews: cannot autodiscover without an email address")
	}
	domain := email[at+1:]

	body := fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<Autodiscover xmlns="%s">
 <Request>
  <EMailAddress>%s</EMailAddress>
  <AcceptableResponseSchema>http://schemas.microsoft.com/exchange/autodiscover/outlook/responseschema/2006a</AcceptableResponseSchema>
 </Request>
</Autodiscover>`, autodiscoverNS, email)

	candidates := []string{
		"https://autodiscover." + domain + "/autodiscover/autodiscover.xml",
		"https://" + domain + "/autodiscover/autodiscover.xml",
	}

	hc := &http.Client{Timeout: time.Minute}

	var lastErr error
	for _, u := range candidates {
		ewsURL, err := tryAutodiscover(ctx, hc, u, body, username, password)
		if err != nil {
			log.WithError(err).WithField("url", u).Debug("ews_autodiscover_miss")
			lastErr = err
			continue
		}

		log.WithFields(log.Fields{
			"email": email,
			"url":   ewsURL,
		}).Info("ews_autodiscover_resolved")
		return ewsURL, nil
	}

	return "", fmt.Errorf("ews: autodiscover failed for %s: %w", domain, lastErr)
}

func tryAutodiscover(ctx context.Context, hc *http.Client, u, body, username, password string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.SetBasicAuth(username, password)

	resp, err := hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Op: "autodiscover", Status: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	var ad autodiscoverResponse
	if err := xml.Unmarshal(data, &ad); err != nil {
		return "", fmt.Errorf("ews: malformed autodiscover response: %w", err)
	}

	for _, proto := range ad.Response.Account.Protocols {
		if proto.Type == "EXPR" || proto.Type == "EXCH" {
			if proto.EwsURL != "" {
				return proto.EwsURL, nil
			}
			if proto.ASURL != "" {
				return proto.ASURL, nil
			}
		}
	}

	return "", fmt.Errorf("ews: autodiscover response carries no ews endpoint")
}
