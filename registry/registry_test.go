package registry

import "testing"

type fakeClient struct{ name string }

type fakeConstructor func(config map[string]any) (*fakeClient, error)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := New[fakeConstructor]()
	ctor := func(config map[string]any) (*fakeClient, error) {
		return &fakeClient{name: "git"}, nil
	}
	if err := r.Register("git", ctor); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, ok := r.Get("GIT")
	if !ok {
		t.Fatal("Get(GIT) = false, want true (case-insensitive)")
	}
	client, err := got(nil)
	if err != nil || client.name != "git" {
		t.Fatalf("constructor returned (%v, %v)", client, err)
	}
}

func TestRegistry_DuplicateRegisterFails(t *testing.T) {
	r := New[fakeConstructor]()
	ctor := func(config map[string]any) (*fakeClient, error) { return nil, nil }
	if err := r.Register("git", ctor); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register("git", ctor); err == nil {
		t.Fatal("second Register(git) = nil error, want error")
	}
}

func TestRegistry_EmptyNameRejected(t *testing.T) {
	r := New[fakeConstructor]()
	ctor := func(config map[string]any) (*fakeClient, error) { return nil, nil }
	if err := r.Register("", ctor); err == nil {
		t.Fatal("Register(\"\") = nil error, want error")
	}
}

func TestRegistry_MustGetPanicsWhenMissing(t *testing.T) {
	r := New[fakeConstructor]()
	defer func() {
		if recover() == nil {
			t.Fatal("MustGet did not panic for unregistered name")
		}
	}()
	r.MustGet("missing")
}

func TestRegistry_Names(t *testing.T) {
	r := New[fakeConstructor]()
	ctor := func(config map[string]any) (*fakeClient, error) { return nil, nil }
	_ = r.Register("jenkins", ctor)
	_ = r.Register("git", ctor)

	names := r.Names()
	if len(names) != 2 || names[0] != "git" || names[1] != "jenkins" {
		t.Errorf("Names() = %v, want sorted [git jenkins]", names)
	}
}
