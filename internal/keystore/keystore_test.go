package keystore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tectonicboy/rosetta/internal/group"
)

func TestGenerateAndLoadRoundTrip(t *testing.T) {
	p := group.TestParams()
	path := filepath.Join(t.TempDir(), "saved.dat")
	password := []byte("correct horse")

	created, err := Generate(p, password, path)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	loaded, err := Load(password, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if created.Priv.Cmp(loaded.Priv) != 0 {
		t.Error("private key did not survive the round trip")
	}
	if created.Pub.Cmp(loaded.Pub) != 0 {
		t.Error("public key did not survive the round trip")
	}
}

func TestLoadWithWrongPasswordProducesWrongKey(t *testing.T) {
	p := group.TestParams()
	path := filepath.Join(t.TempDir(), "saved.dat")

	created, err := Generate(p, []byte("the real password"), path)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	loaded, err := Load([]byte("wrong password"), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if created.Priv.Cmp(loaded.Priv) == 0 {
		t.Error("decrypting with the wrong password recovered the correct private key")
	}
}

func TestGenerateRejectsOverlongPassword(t *testing.T) {
	p := group.TestParams()
	path := filepath.Join(t.TempDir(), "saved.dat")

	_, err := Generate(p, []byte("this password is far too long to fit"), path)
	if err != ErrPasswordTooLong {
		t.Errorf("expected ErrPasswordTooLong, got %v", err)
	}
}

func TestLoadRejectsCorruptSaveFile(t *testing.T) {
	p := group.TestParams()
	path := filepath.Join(t.TempDir(), "saved.dat")
	if _, err := Generate(p, []byte("pw"), path); err != nil {
		t.Fatalf("generate: %v", err)
	}

	if err := os.Truncate(path, saveFileLen-1); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	if _, err := Load([]byte("pw"), path); err != ErrCorruptSaveFile {
		t.Errorf("expected ErrCorruptSaveFile, got %v", err)
	}
}
