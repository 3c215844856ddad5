package credential

import "testing"

func TestSHA256(t *testing.T) {
	// Well-known digest of "abc".
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := SHA256("abc"); got != want {
		t.Errorf("SHA256(abc) = %q, want %q", got, want)
	}
}

func TestAppKey(t *testing.T) {
	if got, want := AppKey("FA123", "secret"), SHA256("FA123|secret"); got != want {
		t.Errorf("AppKey = %q, want %q", got, want)
	}
}
