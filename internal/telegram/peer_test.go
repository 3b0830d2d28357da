package telegram

import "testing"

func TestMarkedIDRoundTrip(t *testing.T) {
	cases := []struct {
		raw    int64
		typ    EntityType
		marked int64
	}{
		{777, EntityUser, 777},
		{123, EntityChat, -123},
		{1234567890, EntityChannel, -1001234567890},
	}
	for _, c := range cases {
		if got := MarkedID(c.raw, c.typ); got != c.marked {
			t.Errorf("MarkedID(%d, %s) = %d, want %d", c.raw, c.typ, got, c.marked)
		}
		raw, typ := SplitMarkedID(c.marked)
		if raw != c.raw || typ != c.typ {
			t.Errorf("SplitMarkedID(%d) = (%d, %s), want (%d, %s)", c.marked, raw, typ, c.raw, c.typ)
		}
	}
}

func TestParsePeerRef(t *testing.T) {
	cases := []struct {
		in   string
		want PeerRef
	}{
		{"me", PeerRef{Self: true}},
		{"SELF", PeerRef{Self: true}},
		{"-1001234567890", PeerRef{ID: -1001234567890}},
		{"  42 ", PeerRef{ID: 42}},
		{"@durov", PeerRef{Username: "durov"}},
		{"telegram", PeerRef{Username: "telegram"}},
		{"https://t.me/durov", PeerRef{Username: "durov"}},
		{"t.me/c/1234567890/5", PeerRef{ID: -1001234567890}},
	}
	for _, c := range cases {
		got, err := ParsePeerRef(c.in)
		if err != nil {
			t.Errorf("ParsePeerRef(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParsePeerRef(%q) = %+v, want %+v", c.in, got, c.want)
		}
	}
}

func TestParsePeerRefInvalid(t *testing.T) {
	for _, in := range []string{"", "0", "@ab", "9lives", "has space", "https://example.com/x"} {
		if _, err := ParsePeerRef(in); err == nil {
			t.Errorf("ParsePeerRef(%q): expected error", in)
		}
	}
}

func TestNormalizeChatID(t *testing.T) {
	id, err := NormalizeChatID("-100123")
	if err != nil {
		t.Fatalf("NormalizeChatID: %v", err)
	}
	if id != -100123 {
		t.Errorf("got %d, want -100123", id)
	}
	if _, err := NormalizeChatID("@durov"); err == nil {
		t.Error("expected error for username")
	}
}

func TestParseMessageLink(t *testing.T) {
	cases := []struct {
		link string
		chat string
		id   int
	}{
		{"https://t.me/durov/15", "@durov", 15},
		{"t.me/c/1234567890/99", "-1001234567890", 99},
		{"https://t.me/c/1234567890/7/123", "-1001234567890", 123},
		{"https://telegram.me/durov", "@durov", 0},
	}
	for _, c := range cases {
		chat, id, err := ParseMessageLink(c.link)
		if err != nil {
			t.Errorf("ParseMessageLink(%q): %v", c.link, err)
			continue
		}
		if chat != c.chat || id != c.id {
			t.Errorf("ParseMessageLink(%q) = (%q, %d), want (%q, %d)", c.link, chat, id, c.chat, c.id)
		}
	}

	for _, bad := range []string{"https://t.me/c/abc/1", "https://t.me/durov/x", "https://example.org/durov/1", "https://t.me/"} {
		if _, _, err := ParseMessageLink(bad); err == nil {
			t.Errorf("ParseMessageLink(%q): expected error", bad)
		}
	}
}
