package steps

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/shaiso/Convoy/internal/cf"
)

func TestTranslate_ControllerErrors(t *testing.T) {
	cases := []struct {
		status       int
		wantGuidance string
	}{
		{http.StatusBadGateway, "broker"},
		{http.StatusForbidden, "permissions"},
		{http.StatusConflict, "conflict"},
		{http.StatusNotFound, ""},
	}

	for _, c := range cases {
		err := fmt.Errorf("wrapped: %w", &cf.ControllerError{Status: c.status, Detail: "boom"})
		se := Translate("step failed", err)

		if se.Type != ErrorTypePlatform {
			t.Errorf("status %d: expected PLATFORM, got %s", c.status, se.Type)
		}
		if c.wantGuidance == "" && se.Guidance != "" {
			t.Errorf("status %d: unexpected guidance %q", c.status, se.Guidance)
		}
		if c.wantGuidance != "" && !strings.Contains(strings.ToLower(se.Guidance), c.wantGuidance) {
			t.Errorf("status %d: guidance %q should mention %q", c.status, se.Guidance, c.wantGuidance)
		}
	}
}

func TestTranslate_PassesClassifiedErrorsThrough(t *testing.T) {
	content := ContentError("bad descriptor value")
	if got := Translate("outer", content); got != content {
		t.Error("classified errors must pass through unchanged")
	}

	aborted := AbortedError()
	if got := Translate("outer", aborted); got.Type != ErrorTypeAborted {
		t.Errorf("expected ABORTED, got %s", got.Type)
	}
}

func TestTranslate_DeadlineBecomesTimeout(t *testing.T) {
	se := Translate("slow step", fmt.Errorf("poll: %w", context.DeadlineExceeded))
	if se.Type != ErrorTypeTimeout {
		t.Errorf("expected TIMEOUT, got %s", se.Type)
	}
}

func TestStepError_Unwrap(t *testing.T) {
	inner := &cf.ControllerError{Status: http.StatusUnprocessableEntity}
	se := Translate("create binding", inner)

	if !cf.IsUnprocessableEntity(se) {
		t.Error("status classification must see through StepError")
	}
	var ce *cf.ControllerError
	if !errors.As(se, &ce) {
		t.Error("errors.As must reach the controller error")
	}
}
