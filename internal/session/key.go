// ABOUTME: Session-key policy for the chat-completion surface
// ABOUTME: Derives namespaced keys so adapter sessions never collide with other channels

package session

import (
	"net"
	"strings"
)

// keyNamespace prefixes every session key minted by this adapter. Sessions
// created through other channels (bridges, TUI) use their own namespaces, so
// a collision across channels is impossible by construction.
const keyNamespace = "openwire:"

// KeyForRequest derives the session key binding an external conversation to
// the gateway's session model. The protocol's optional user field wins when
// present; otherwise the connection's remote host is used so that anonymous
// clients on one machine share a session.
func KeyForRequest(user, remoteAddr string) string {
	user = strings.TrimSpace(user)
	if user != "" {
		return keyNamespace + "user:" + user
	}

	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	if host == "" {
		host = "unknown"
	}
	return keyNamespace + "addr:" + host
}
