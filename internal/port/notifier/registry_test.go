package notifier

import (
	"context"
	"errors"
	"slices"
	"testing"
)

type stubNotifier struct{ name string }

func (s stubNotifier) Name() string {
	return s.name
}

func (s stubNotifier) Send(context.Context, Notification) error {
	return nil
}

func init() {
	Register("stub-ok", func(settings map[string]string) (Notifier, error) {
		return stubNotifier{name: "stub-ok:" + settings["channel"]}, nil
	})
	Register("stub-broken", func(map[string]string) (Notifier, error) {
		return nil, ErrNotConfigured
	})
}

func TestBuild(t *testing.T) {
	settings := func(name string) map[string]string {
		return map[string]string{"channel": name}
	}
	got, err := Build([]string{"stub-ok", "stub-broken", "stub-ok", "missing"}, settings)

	if len(got) != 1 || got[0].Name() != "stub-ok:stub-ok" {
		t.Fatalf("unexpected notifiers %+v", got)
	}
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected joined ErrNotConfigured, got %v", err)
	}
}

func TestBuildEmpty(t *testing.T) {
	got, err := Build(nil, func(string) map[string]string { return nil })
	if err != nil || len(got) != 0 {
		t.Fatalf("expected nothing, got %v %v", got, err)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	Register("stub-ok", nil)
}

func TestAvailableSorted(t *testing.T) {
	names := Available()
	if !slices.IsSorted(names) || !slices.Contains(names, "stub-ok") {
		t.Fatalf("unexpected names %v", names)
	}
}
