package identity_test

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-io/custodia/internal/hashchain"
	"github.com/custodia-io/custodia/internal/identity"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func TestIssueVerify_roundTrip(t *testing.T) {
	iss := identity.NewActorTokenIssuer(testKey(t), "https://custodia.test", time.Hour)
	actorID := uuid.New()

	tok, err := iss.Issue(actorID, "Dana Reyes", "examiner")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := iss.Verify(tok)
	if err != nil {
		t.Fatal(err)
	}
	if claims.ActorID != actorID.String() {
		t.Errorf("actor_id: got %s, want %s", claims.ActorID, actorID)
	}
	if claims.Role != "examiner" || claims.Type != "actor" {
		t.Errorf("claims: %+v", claims)
	}
	got, err := claims.UUID()
	if err != nil || got != actorID {
		t.Errorf("UUID(): %v %v", got, err)
	}
}

func TestVerify_rejectsForeignKey(t *testing.T) {
	iss := identity.NewActorTokenIssuer(testKey(t), "https://custodia.test", time.Hour)
	other := identity.NewActorTokenIssuer(testKey(t), "https://custodia.test", time.Hour)

	tok, err := other.Issue(uuid.New(), "", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := iss.Verify(tok); err == nil {
		t.Error("token signed by a different key verified")
	}
}

func TestVerify_rejectsExpired(t *testing.T) {
	iss := identity.NewActorTokenIssuer(testKey(t), "https://custodia.test", -time.Minute)
	tok, err := iss.Issue(uuid.New(), "", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := iss.Verify(tok); err == nil {
		t.Error("expired token verified")
	}
}

func TestSystemToken_carriesSystemActor(t *testing.T) {
	iss := identity.NewActorTokenIssuer(testKey(t), "https://custodia.test", 0)
	tok, err := iss.IssueSystemToken(0)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := iss.Verify(tok)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Type != "system" || claims.ActorID != hashchain.SystemActor {
		t.Errorf("system claims: %+v", claims)
	}
}

func TestKeyManager_persistsAcrossLoads(t *testing.T) {
	dir := t.TempDir()

	first := identity.NewKeyManager(dir)
	if err := first.LoadOrCreate(); err != nil {
		t.Fatal(err)
	}
	second := identity.NewKeyManager(dir)
	if err := second.LoadOrCreate(); err != nil {
		t.Fatal(err)
	}
	if first.Key().N.Cmp(second.Key().N) != 0 {
		t.Error("reloaded key differs from created key")
	}
}
