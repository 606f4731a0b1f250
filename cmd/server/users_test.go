package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/vovakirdan/lanchat-server/internal/auth"
)

type fakeAccounts struct {
	existing  map[string]bool
	passwords map[string]string
}

func newFakeAccounts(existing ...string) *fakeAccounts {
	f := &fakeAccounts{existing: map[string]bool{}, passwords: map[string]string{}}
	for _, name := range existing {
		f.existing[name] = true
	}
	return f
}

func (f *fakeAccounts) Provision(_ context.Context, username, password string) (bool, error) {
	if len(password) < 6 {
		return false, auth.ErrInvalidPassword
	}
	if f.existing[username] {
		return false, nil
	}
	f.existing[username] = true
	f.passwords[username] = password
	return true, nil
}

func (f *fakeAccounts) SetPassword(_ context.Context, username, password string) error {
	f.passwords[username] = password
	return nil
}

func TestSeedNames(t *testing.T) {
	names := seedNames("student_", 70)
	if len(names) != 70 || names[0] != "student_1" || names[69] != "student_70" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestSeedUsersSkipsExisting(t *testing.T) {
	svc := newFakeAccounts("student_2")
	var out bytes.Buffer

	if err := seedUsers(context.Background(), svc, seedNames("student_", 3), "password", &out); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if !strings.Contains(out.String(), "Added 2 new users (1 skipped)") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestAddUser(t *testing.T) {
	svc := newFakeAccounts("alice")
	var out bytes.Buffer

	if err := addUser(context.Background(), svc, "bob", "secret1", &out); err != nil {
		t.Fatalf("add bob: %v", err)
	}
	if err := addUser(context.Background(), svc, "alice", "secret1", &out); err == nil {
		t.Fatalf("expected error for existing user")
	}
	err := addUser(context.Background(), svc, "carol", "123", &out)
	if err == nil || !strings.Contains(err.Error(), "at least 6") {
		t.Fatalf("expected short password error, got %v", err)
	}
}

func TestPasswordOrPrompt(t *testing.T) {
	orig := readPassword
	t.Cleanup(func() { readPassword = orig })

	if pw, err := passwordOrPrompt("fromflag", &bytes.Buffer{}); err != nil || pw != "fromflag" {
		t.Fatalf("flag value should win: %q %v", pw, err)
	}

	answers := [][]byte{[]byte("secret1"), []byte("secret1")}
	readPassword = func(int) ([]byte, error) {
		a := answers[0]
		answers = answers[1:]
		return a, nil
	}
	pw, err := passwordOrPrompt("", &bytes.Buffer{})
	if err != nil || pw != "secret1" {
		t.Fatalf("unexpected prompt result: %q %v", pw, err)
	}

	answers = [][]byte{[]byte("secret1"), []byte("other")}
	if _, err := passwordOrPrompt("", &bytes.Buffer{}); err == nil {
		t.Fatalf("expected mismatch error")
	}

	readPassword = func(int) ([]byte, error) { return nil, errors.New("not a terminal") }
	if _, err := passwordOrPrompt("", &bytes.Buffer{}); err == nil {
		t.Fatalf("expected read error")
	}
}
