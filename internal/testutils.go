package internal

import (
	"net"
	"testing"
	"time"

	"github.com/emersion/go-imap/backend"
	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/server"
	"github.com/stretchr/testify/assert"
)

func BuildTestIMAPServer(t *testing.T) (*server.Server, string, backend.User) {
	be := memory.New()
	user, err := be.Login(nil, "username", "password")
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	mb, err := user.GetMailbox("INBOX")
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	mailbox := mb.(*memory.Mailbox)
	mailbox.Messages = nil

	s := server.New(be)
	t.Cleanup(func() { _ = s.Close() })

	s.AllowInsecureAuth = true

	l, err := net.Listen("tcp", "localhost:0")
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	go func() { err = s.Serve(l) }()

	return s, l.Addr().String(), user
}

// SeedMessage appends a raw message to a mailbox of the test server,
// bypassing IMAP.
func SeedMessage(t *testing.T, user backend.User, mailboxName string, uid uint32, date time.Time, flags []string, body string) {
	mb, err := user.GetMailbox(mailboxName)
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	mailbox := mb.(*memory.Mailbox)
	mailbox.Messages = append(mailbox.Messages, &memory.Message{
		Uid:   uid,
		Date:  date,
		Size:  uint32(len(body)),
		Flags: flags,
		Body:  []byte(body),
	})
}
