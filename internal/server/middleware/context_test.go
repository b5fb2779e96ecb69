package middleware

import (
	"context"
	"testing"
)

func TestWithIdentity(t *testing.T) {
	ctx := WithIdentity(context.Background(), Identity{VoterID: "v1", Email: "a@b.co", IsAdmin: true})

	id, ok := IdentityFrom(ctx)
	if !ok {
		t.Fatal("IdentityFrom should return true")
	}
	if id.VoterID != "v1" || id.Email != "a@b.co" || !id.IsAdmin {
		t.Errorf("identity = %+v", id)
	}
	if voterID, ok := VoterID(ctx); !ok || voterID != "v1" {
		t.Errorf("VoterID = %q, %v", voterID, ok)
	}
}

func TestIdentityFrom_Missing(t *testing.T) {
	if _, ok := IdentityFrom(context.Background()); ok {
		t.Error("empty context should have no identity")
	}
	ctx := WithIdentity(context.Background(), Identity{})
	if _, ok := VoterID(ctx); ok {
		t.Error("identity without voter id should not count")
	}
}
