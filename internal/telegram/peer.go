package telegram

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// channelOffset separates marked channel ids from basic group ids:
// channel 1234 is written -1000000001234, basic group 1234 is -1234 and
// user 1234 is 1234. This is the Bot API convention and the only one the
// rest of the code base uses.
const channelOffset int64 = 1_000_000_000_000

// MarkedID converts a raw MTProto id of the given type to the canonical id.
func MarkedID(raw int64, t EntityType) int64 {
	switch t {
	case EntityChannel:
		return -(channelOffset + raw)
	case EntityChat:
		return -raw
	default:
		return raw
	}
}

// SplitMarkedID is the inverse of MarkedID.
func SplitMarkedID(marked int64) (int64, EntityType) {
	switch {
	case marked >= 0:
		return marked, EntityUser
	case -marked > channelOffset:
		return -marked - channelOffset, EntityChannel
	default:
		return -marked, EntityChat
	}
}

// PeerRef is a parsed user-supplied reference to a chat or user. Exactly one
// of ID, Username or Self is set.
type PeerRef struct {
	ID       int64
	Username string
	Self     bool
}

// ParsePeerRef accepts a canonical numeric id, "@username", a bare username,
// "me"/"self", or a t.me link to a public username.
func ParsePeerRef(ref string) (PeerRef, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return PeerRef{}, fmt.Errorf("empty peer reference")
	}
	switch strings.ToLower(ref) {
	case "me", "self":
		return PeerRef{Self: true}, nil
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		if id == 0 {
			return PeerRef{}, fmt.Errorf("invalid peer id 0")
		}
		return PeerRef{ID: id}, nil
	}
	if strings.Contains(ref, "t.me/") {
		chat, _, err := ParseMessageLink(ref)
		if err != nil {
			return PeerRef{}, err
		}
		return ParsePeerRef(chat)
	}
	name := strings.TrimPrefix(ref, "@")
	if !validUsername(name) {
		return PeerRef{}, fmt.Errorf("invalid peer reference %q", ref)
	}
	return PeerRef{Username: name}, nil
}

// NormalizeChatID parses a numeric reference and returns its canonical id.
func NormalizeChatID(ref string) (int64, error) {
	p, err := ParsePeerRef(ref)
	if err != nil {
		return 0, err
	}
	if p.ID == 0 {
		return 0, fmt.Errorf("%q is not a numeric id", ref)
	}
	return p.ID, nil
}

// ParseMessageLink parses https://t.me/<user>/<id> and the private form
// https://t.me/c/<channel>/<id>. The message id is 0 when the link only
// names a chat. The returned chat is either "@user" or a canonical id.
func ParseMessageLink(link string) (string, int, error) {
	if !strings.Contains(link, "://") {
		link = "https://" + link
	}
	u, err := url.Parse(link)
	if err != nil {
		return "", 0, fmt.Errorf("invalid link %q: %w", link, err)
	}
	host := strings.TrimPrefix(u.Host, "www.")
	if host != "t.me" && host != "telegram.me" {
		return "", 0, fmt.Errorf("not a telegram link: %q", link)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return "", 0, fmt.Errorf("link %q has no chat", link)
	}

	var chat string
	var rest []string
	if parts[0] == "c" {
		if len(parts) < 2 {
			return "", 0, fmt.Errorf("link %q has no channel id", link)
		}
		raw, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || raw <= 0 {
			return "", 0, fmt.Errorf("invalid channel id in %q", link)
		}
		chat = strconv.FormatInt(MarkedID(raw, EntityChannel), 10)
		rest = parts[2:]
	} else {
		if !validUsername(parts[0]) {
			return "", 0, fmt.Errorf("invalid username in %q", link)
		}
		chat = "@" + parts[0]
		rest = parts[1:]
	}

	if len(rest) == 0 {
		return chat, 0, nil
	}
	// topic links carry the message id last: t.me/c/<chan>/<topic>/<id>
	id, err := strconv.Atoi(rest[len(rest)-1])
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("invalid message id in %q", link)
	}
	return chat, id, nil
}

func validUsername(s string) bool {
	if len(s) < 4 || len(s) > 32 {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
