package session

import "testing"

func TestGetOrCreateMintsUUIDWhenAbsent(t *testing.T) {
	r := New()
	s := r.GetOrCreate("", "key-1")
	if s.ID == "" {
		t.Fatal("expected a minted session id")
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
}

func TestGetOrCreateReturnsExistingForSameKey(t *testing.T) {
	r := New()
	first := r.GetOrCreate("", "key-1")
	second := r.GetOrCreate(first.ID, "key-1")
	if second != first {
		t.Fatal("expected the same session instance")
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (no duplicate created)", r.Len())
	}
}

func TestGetOrCreateRotatesFingerprintOnKeyChange(t *testing.T) {
	r := New()
	first := r.GetOrCreate("", "key-1")
	before := first.apiKeyFingerprint

	again := r.GetOrCreate(first.ID, "key-2")
	if again != first {
		t.Fatal("session identity must be preserved across a key rotation")
	}
	if again.apiKeyFingerprint == before {
		t.Error("fingerprint should rotate when the api key changes")
	}
}

func TestFingerprintNeverStoresRawKey(t *testing.T) {
	r := New()
	s := r.GetOrCreate("", "super-secret-key")
	if s.apiKeyFingerprint == "super-secret-key" {
		t.Fatal("fingerprint must not equal the raw api key")
	}
}

func TestDeleteRemovesSession(t *testing.T) {
	r := New()
	s := r.GetOrCreate("", "key-1")
	if !r.Delete(s.ID) {
		t.Fatal("Delete() = false, want true")
	}
	if _, ok := r.Get(s.ID); ok {
		t.Fatal("session should no longer be retrievable")
	}
}

func TestDeleteUnknownReturnsFalse(t *testing.T) {
	r := New()
	if r.Delete("does-not-exist") {
		t.Fatal("Delete() = true for unknown session, want false")
	}
}

func TestRecordUploadTracksFilenames(t *testing.T) {
	r := New()
	s := r.GetOrCreate("", "key-1")
	r.RecordUpload(s.ID, "a.pdf")
	r.RecordUpload(s.ID, "b.pdf")

	got := s.Filenames()
	if len(got) != 2 || got[0] != "a.pdf" || got[1] != "b.pdf" {
		t.Fatalf("Filenames() = %v, want [a.pdf b.pdf]", got)
	}
}
