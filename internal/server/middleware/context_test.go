package middleware

import (
	"context"
	"testing"
)

func TestWithIdentity_SetsAllValues(t *testing.T) {
	ctx := WithIdentity(context.Background(), "user-1", "session-1")

	userID, ok := GetUserID(ctx)
	if !ok {
		t.Fatal("GetUserID should return true")
	}
	if userID != "user-1" {
		t.Errorf("user_id = %q, want %q", userID, "user-1")
	}
	sessionID, ok := GetSessionID(ctx)
	if !ok {
		t.Fatal("GetSessionID should return true")
	}
	if sessionID != "session-1" {
		t.Errorf("session_id = %q, want %q", sessionID, "session-1")
	}
}

func TestGetUserID_ReturnsFalseWhenNotSet(t *testing.T) {
	if _, ok := GetUserID(context.Background()); ok {
		t.Error("GetUserID should return false for empty context")
	}
	if _, ok := GetSessionID(context.Background()); ok {
		t.Error("GetSessionID should return false for empty context")
	}
}

func TestGetUserID_EmptyValue(t *testing.T) {
	ctx := WithIdentity(context.Background(), "", "")
	if _, ok := GetUserID(ctx); ok {
		t.Error("GetUserID should return false for empty user id")
	}
}

func TestClientIPFromContext(t *testing.T) {
	if got := ClientIPFromContext(context.Background()); got != "unknown" {
		t.Errorf("ClientIPFromContext = %q, want unknown", got)
	}
	ctx := WithClientIP(context.Background(), "203.0.113.7")
	if got := ClientIPFromContext(ctx); got != "203.0.113.7" {
		t.Errorf("ClientIPFromContext = %q, want 203.0.113.7", got)
	}
}

func TestRequestInfo_VisibleToOuterContext(t *testing.T) {
	outer := withRequestInfo(context.Background())
	_ = WithIdentity(outer, "user-9", "session-9")

	if got, ok := GetUserID(outer); !ok || got != "user-9" {
		t.Errorf("GetUserID(outer) = %q, %v; want user-9, true", got, ok)
	}
	if got, ok := GetSessionID(outer); !ok || got != "session-9" {
		t.Errorf("GetSessionID(outer) = %q, %v; want session-9, true", got, ok)
	}
}
