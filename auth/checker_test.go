package auth

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeUsersFile(t *testing.T, users map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.json")
	data, err := json.Marshal(users)
	if err != nil {
		t.Fatalf("marshaling users: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("writing users file: %v", err)
	}
	return path
}

func TestStaticChecker_CorrectPasswordSucceeds(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	path := writeUsersFile(t, map[string]string{"alice": hash})

	checker, err := NewStaticChecker(path)
	if err != nil {
		t.Fatalf("NewStaticChecker: %v", err)
	}

	ok, err := checker.Check(context.Background(), "alice", "hunter2")
	if err != nil || !ok {
		t.Fatalf("Check(correct password) = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestStaticChecker_WrongPasswordFails(t *testing.T) {
	hash, _ := HashPassword("hunter2")
	path := writeUsersFile(t, map[string]string{"alice": hash})

	checker, err := NewStaticChecker(path)
	if err != nil {
		t.Fatalf("NewStaticChecker: %v", err)
	}

	ok, err := checker.Check(context.Background(), "alice", "wrong")
	if err != nil || ok {
		t.Fatalf("Check(wrong password) = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestStaticChecker_UnknownUserFails(t *testing.T) {
	path := writeUsersFile(t, map[string]string{})

	checker, err := NewStaticChecker(path)
	if err != nil {
		t.Fatalf("NewStaticChecker: %v", err)
	}

	ok, err := checker.Check(context.Background(), "ghost", "anything")
	if err != nil || ok {
		t.Fatalf("Check(unknown user) = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestNewStaticChecker_MissingFileFails(t *testing.T) {
	if _, err := NewStaticChecker(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("NewStaticChecker with a missing file returned nil error")
	}
}
