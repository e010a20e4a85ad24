package gmail

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
)

// ErrMalformedMessage is returned when the message header cannot be parsed.
var ErrMalformedMessage = errors.New("malformed message header")

var recipientHeaders = []string{"To", "Cc", "Bcc"}

// Rewrite prepares a message submitted by identity for delivery.
//
// The From header is set to identity, keeping any display name, unless it
// already names identity. Envelope recipients that appear in none of To, Cc
// or Bcc are appended to Bcc so Gmail delivers to them. The body is copied
// unchanged.
func Rewrite(r io.Reader, identity string, envelopeRcpts []string) ([]byte, error) {
	br := bufio.NewReader(r)
	th, err := textproto.ReadHeader(br)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	h := gomail.Header{Header: message.Header{Header: th}}

	rewriteFrom(&h, identity)
	if err := addMissingRecipients(&h, envelopeRcpts); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := textproto.WriteHeader(&buf, h.Header.Header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := io.Copy(&buf, br); err != nil {
		return nil, fmt.Errorf("failed to read message body: %w", err)
	}
	return buf.Bytes(), nil
}

func rewriteFrom(h *gomail.Header, identity string) {
	from, err := h.AddressList("From")
	if err != nil || len(from) == 0 {
		// Unparseable or absent: replace outright.
		h.SetAddressList("From", []*gomail.Address{{Address: identity}})
		return
	}
	if len(from) == 1 && strings.EqualFold(from[0].Address, identity) {
		return
	}
	h.SetAddressList("From", []*gomail.Address{{Name: from[0].Name, Address: identity}})
}

func addMissingRecipients(h *gomail.Header, rcpts []string) error {
	present := make(map[string]struct{})
	for _, key := range recipientHeaders {
		addrs, err := h.AddressList(key)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformedMessage, key, err)
		}
		for _, a := range addrs {
			present[strings.ToLower(a.Address)] = struct{}{}
		}
	}

	var missing []*gomail.Address
	for _, rcpt := range rcpts {
		key := strings.ToLower(rcpt)
		if _, ok := present[key]; ok {
			continue
		}
		present[key] = struct{}{}
		missing = append(missing, &gomail.Address{Address: rcpt})
	}
	if len(missing) == 0 {
		return nil
	}

	bcc, _ := h.AddressList("Bcc")
	h.SetAddressList("Bcc", append(bcc, missing...))
	return nil
}
