package nvmstore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStore_LoadMissing(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "nvm.cbor"), "WM0001")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	nvm, ok, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ok || nvm != nil {
		t.Errorf("Load() = %v, %v, want nil, false", nvm, ok)
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "nvm.cbor")
	s, err := New(path, "WM0001")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	image := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0xFF, 0xFF, 0xFF, 0xFF}
	if err := s.Save(image); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind after Save()")
	}

	reopened, _ := New(path, "WM0001")
	nvm, ok, err := reopened.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !ok {
		t.Fatal("Load() ok = false after Save()")
	}
	if !bytes.Equal(nvm, image) {
		t.Errorf("Load() = % x, want % x", nvm, image)
	}
}

func TestStore_SerialMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nvm.cbor")

	a, _ := New(path, "WM0001")
	if err := a.Save([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	b, _ := New(path, "WM0002")
	if _, _, err := b.Load(); !errors.Is(err, ErrSerialMismatch) {
		t.Errorf("Load() error = %v, want ErrSerialMismatch", err)
	}
}

func TestStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nvm.cbor")
	if err := os.WriteFile(path, []byte{0xFF, 0x00, 0x12}, 0600); err != nil {
		t.Fatal(err)
	}

	s, _ := New(path, "WM0001")
	if _, _, err := s.Load(); err == nil {
		t.Error("Load() error = nil for corrupt snapshot")
	}
}
