package security

import "testing"

func TestHashRefreshToken(t *testing.T) {
	a := HashRefreshToken("refresh-a")
	if a != HashRefreshToken("refresh-a") {
		t.Error("hash is not deterministic")
	}
	if a == HashRefreshToken("refresh-b") {
		t.Error("distinct tokens share a hash")
	}
	for _, tok := range []string{"refresh-a", ""} {
		if n := len(HashRefreshToken(tok)); n != 64 {
			t.Errorf("len(HashRefreshToken(%q)) = %d, want 64", tok, n)
		}
	}
}

func TestRefreshTokenHashEqual(t *testing.T) {
	const token = "eyJ.refresh.sig"
	stored := HashRefreshToken(token)
	tests := []struct {
		name   string
		token  string
		stored string
		want   bool
	}{
		{"match", token, stored, true},
		{"other token", "eyJ.other.sig", stored, false},
		{"longer stored hash", token, "a" + stored, false},
		{"one char differs", token, "0" + stored[1:], false},
		{"empty token", "", stored, false},
		{"both empty", "", "", false},
		{"pending placeholder", PendingTokenHash, PendingTokenHash, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// "one char differs" is only meaningful if the digest did not already start with 0.
			if tt.name == "one char differs" && stored[0] == '0' {
				tt.stored = "1" + stored[1:]
			}
			if got := RefreshTokenHashEqual(tt.token, tt.stored); got != tt.want {
				t.Errorf("RefreshTokenHashEqual = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetiredTokenHash(t *testing.T) {
	retired := RetiredTokenHash()
	if !IsRetiredTokenHash(retired) {
		t.Fatalf("IsRetiredTokenHash(%q) = false", retired)
	}
	if RetiredTokenHash() == retired {
		t.Error("markers must be unique per rotation")
	}
	if RefreshTokenHashEqual(retired, retired) {
		t.Error("a retired marker must not verify against itself")
	}
	if IsRetiredTokenHash(HashRefreshToken("x")) || IsRetiredTokenHash(PendingTokenHash) {
		t.Error("digests and the pending marker are not retired")
	}
}
