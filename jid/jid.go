package jid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// server for phone-number user identifiers
	ServerPN = "s.whatsapp.net"
	// server for linked (privacy-preserving) user identifiers
	ServerLID = "lid"
)

// Represents a parsed identifier.
//
// The zero value is not a valid identifier. Use [Parse] when working with input, and [NewDeviceJID] when constructing identifiers.
type JID struct {
	User   string
	Agent  string
	Device uint16
	// whether the identifier had an explicit device segment; a zero Device with HasDevice false encodes without a device
	HasDevice bool
	Server    string
}

var ErrInvalidJID = errors.New("invalid JID")

// Parses a raw identifier string.
//
// The server is everything after the first '@'. The part before it is split into user, optional agent (after '_'), and optional numeric device (after ':').
func Parse(raw string) (JID, error) {
	if raw == "" {
		return JID{}, fmt.Errorf("%w: expected JID, got empty string", ErrInvalidJID)
	}
	combined, server, ok := strings.Cut(raw, "@")
	if !ok {
		return JID{}, fmt.Errorf("%w: missing server separator: %s", ErrInvalidJID, raw)
	}
	if combined == "" {
		return JID{}, fmt.Errorf("%w: empty user segment: %s", ErrInvalidJID, raw)
	}
	if server == "" {
		return JID{}, fmt.Errorf("%w: empty server: %s", ErrInvalidJID, raw)
	}

	out := JID{Server: server}
	userAgent, device, hasDevice := strings.Cut(combined, ":")
	if hasDevice {
		d, err := strconv.ParseUint(device, 10, 16)
		if err != nil {
			return JID{}, fmt.Errorf("%w: device segment not a small integer: %s", ErrInvalidJID, raw)
		}
		out.Device = uint16(d)
		out.HasDevice = true
	}
	out.User, out.Agent, _ = strings.Cut(userAgent, "_")
	if out.User == "" {
		return JID{}, fmt.Errorf("%w: empty user: %s", ErrInvalidJID, raw)
	}
	return out, nil
}

// Creates an identifier with an explicit device segment (which may be zero).
func NewDeviceJID(user string, device uint16, server string) JID {
	return JID{User: user, Device: device, HasDevice: true, Server: server}
}

// Encodes the identifier. Returns empty string if user or server is missing.
func (j JID) String() string {
	if j.User == "" || j.Server == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(j.User)
	if j.Agent != "" {
		b.WriteByte('_')
		b.WriteString(j.Agent)
	}
	if j.HasDevice {
		b.WriteByte(':')
		b.WriteString(strconv.FormatUint(uint64(j.Device), 10))
	}
	b.WriteByte('@')
	b.WriteString(j.Server)
	return b.String()
}

func (j JID) IsPN() bool {
	return j.Server == ServerPN
}

func (j JID) IsLID() bool {
	return j.Server == ServerLID
}
