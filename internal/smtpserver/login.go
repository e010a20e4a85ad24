package smtpserver

import (
	"errors"

	"github.com/emersion/go-sasl"
)

// loginServer implements the server side of the non-standard LOGIN
// mechanism, which go-sasl no longer ships.
type loginServer struct {
	authenticate func(username, password string) error
	username     string
	step         int
}

var _ sasl.Server = (*loginServer)(nil)

func newLoginServer(authenticate func(username, password string) error) *loginServer {
	return &loginServer{authenticate: authenticate}
}

func (s *loginServer) Next(response []byte) ([]byte, bool, error) {
	switch s.step {
	case 0:
		s.step++
		if response == nil {
			return []byte("Username:"), false, nil
		}
		// Initial response carries the username.
		s.username = string(response)
		s.step++
		return []byte("Password:"), false, nil
	case 1:
		s.username = string(response)
		s.step++
		return []byte("Password:"), false, nil
	case 2:
		s.step++
		return nil, true, s.authenticate(s.username, string(response))
	default:
		return nil, false, errors.New("unexpected client response")
	}
}
