package memory

import (
	"errors"
	"strings"
)

var ErrInvalidAddress = errors.New("invalid conversation address")

// Scheme says which identifier a buffer is keyed by. Buffers addressed by
// session id and by user id are distinct even for the same person.
type Scheme string

const (
	SchemeSession Scheme = "session"
	SchemeUser    Scheme = "user"
)

// Address names one conversation buffer.
type Address struct {
	Scheme Scheme
	ID     string
}

func BySession(sessionID string) Address { return Address{Scheme: SchemeSession, ID: sessionID} }

func ByUser(userID string) Address { return Address{Scheme: SchemeUser, ID: userID} }

func (a Address) Validate() error {
	switch a.Scheme {
	case SchemeSession, SchemeUser:
	default:
		return ErrInvalidAddress
	}
	if strings.TrimSpace(a.ID) == "" {
		return ErrInvalidAddress
	}
	return nil
}

func (a Address) String() string { return string(a.Scheme) + ":" + a.ID }

// Both schemes share the chat:{id}: prefix; the scheme only documents intent
// at the call site.
func (a Address) HistoryKey() string  { return "chat:" + a.ID + ":history" }
func (a Address) MetadataKey() string { return "chat:" + a.ID + ":metadata" }
func (a Address) SessionKey() string  { return "chat:" + a.ID + ":session" }
