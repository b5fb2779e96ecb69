package domain

import "testing"

func TestBinding_Compare(t *testing.T) {
	a := Binding{IP: "10.0.0.1", UserAgent: "Mozilla/5.0"}
	if !a.SameIP(Binding{IP: " 10.0.0.1 "}) {
		t.Error("SameIP should ignore surrounding whitespace")
	}
	if a.SameIP(Binding{IP: "10.0.0.2"}) {
		t.Error("different IPs compared equal")
	}
	if !a.SameUserAgent(Binding{UserAgent: "Mozilla/5.0"}) {
		t.Error("identical user agents compared unequal")
	}
	if a.SameUserAgent(Binding{UserAgent: "mozilla/5.0"}) {
		t.Error("user-agent comparison must be case sensitive")
	}
}
