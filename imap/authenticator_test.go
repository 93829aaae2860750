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

package imap

import (
	"net"
	"testing"

	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/server"
	"github.com/stretchr/testify/assert"
)

func buildTestServer(t *testing.T) string {
	be := memory.New()
	s := server.New(be)
	t.Cleanup(func() { _ = s.Close() })

	s.AllowInsecureAuth = true

	l, err := net.Listen("tcp", "localhost:0")
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	go func() { _ = s.Serve(l) }()

	return l.Addr().String()
}

func TestNormal(t *testing.T) {
	address := buildTestServer(t)

	c, err := client.Dial(address)
	if !assert.NoError(t, err) {
		t.FailNow()
	}

	t.Cleanup(func() { _ = c.Logout() })

	a := NewNormalAuthenticator("username", "password")

	err = a.Authenticate(c)
	if !assert.NoError(t, err) {
		t.FailNow()
	}
}

func TestNormalBadPassword(t *testing.T) {
	address := buildTestServer(t)

	c, err := client.Dial(address)
	if !assert.NoError(t, err) {
		t.FailNow()
	}

	t.Cleanup(func() { _ = c.Logout() })

	a := NewNormalAuthenticator("username", "hunter2")

	err = a.Authenticate(c)
	assert.Error(t, err)
}
