package cf

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestCachingFactory_ReusesClientPerSpaceAndCorrelation(t *testing.T) {
	dials := 0
	factory := NewCachingFactory(func(ctx context.Context, target Target) (Client, error) {
		dials++
		return NewFakeClient(), nil
	})

	a1, err := factory.ForTarget(context.Background(), Target{SpaceID: "space-a", CorrelationID: "op-1"})
	if err != nil {
		t.Fatalf("for target: %v", err)
	}
	a2, err := factory.ForTarget(context.Background(), Target{SpaceID: "space-a", CorrelationID: "op-1"})
	if err != nil {
		t.Fatalf("for target: %v", err)
	}
	if a1 != a2 {
		t.Error("same space and correlation must share a client")
	}
	if dials != 1 {
		t.Fatalf("expected one dial, got %d", dials)
	}

	// Другая операция над тем же space — отдельный клиент.
	if _, err := factory.ForTarget(context.Background(), Target{SpaceID: "space-a", CorrelationID: "op-2"}); err != nil {
		t.Fatalf("for target: %v", err)
	}
	if dials != 2 {
		t.Fatalf("expected a dial per correlation, got %d", dials)
	}

	// ForSpace попадает в тот же кэш.
	b, err := factory.ForSpace(context.Background(), "space-a", "op-1")
	if err != nil {
		t.Fatalf("for space: %v", err)
	}
	if b != a1 {
		t.Error("ForSpace must hit the same cache entry")
	}
	if dials != 2 {
		t.Fatalf("unexpected extra dial, got %d", dials)
	}
}

func TestCachingFactory_RequiresSpaceID(t *testing.T) {
	factory := NewCachingFactory(FakeDialer(NewFakeClient()))
	if _, err := factory.ForTarget(context.Background(), Target{CorrelationID: "op-1"}); err == nil {
		t.Fatal("expected an error for an empty space id")
	}
}

func TestCachingFactory_DialErrorNotCached(t *testing.T) {
	attempts := 0
	factory := NewCachingFactory(func(ctx context.Context, target Target) (Client, error) {
		attempts++
		if attempts == 1 {
			return nil, fmt.Errorf("uaa unavailable")
		}
		return NewFakeClient(), nil
	})

	target := Target{SpaceID: "space-a", CorrelationID: "op-1"}
	if _, err := factory.ForTarget(context.Background(), target); err == nil {
		t.Fatal("expected the first dial to fail")
	}
	if _, err := factory.ForTarget(context.Background(), target); err != nil {
		t.Fatalf("second dial must succeed: %v", err)
	}
}

func TestControllerError_StatusHelpers(t *testing.T) {
	wrapped := fmt.Errorf("delete service %q: %w", "db",
		&ControllerError{Status: 404, Title: "CF-ResourceNotFound"})

	if !IsNotFound(wrapped) {
		t.Error("IsNotFound must see through wrapping")
	}
	if IsConflict(wrapped) || IsForbidden(wrapped) {
		t.Error("unrelated helpers must not match")
	}

	if status, ok := StatusOf(wrapped); !ok || status != 404 {
		t.Errorf("StatusOf = %d, %v", status, ok)
	}
	if _, ok := StatusOf(errors.New("plain")); ok {
		t.Error("plain errors have no status")
	}

	if !IsServerError(&ControllerError{Status: 503}) {
		t.Error("503 is a server error")
	}
	if IsServerError(&ControllerError{Status: 422}) {
		t.Error("422 is not a server error")
	}
}
