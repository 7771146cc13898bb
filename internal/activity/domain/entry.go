package domain

import (
	"encoding/json"
	"time"
)

// Entry is one activity log row shown to the user on their activity page.
type Entry struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Action    string          `json:"action"`
	Resource  string          `json:"resource"`
	IP        string          `json:"ip"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Actions written by the services.
const (
	ActionRegister             = "register"
	ActionLogin                = "login"
	ActionLogout               = "logout"
	ActionPasswordResetRequest = "password_reset_request"
	ActionPasswordReset        = "password_reset"
	ActionProfileUpdate        = "profile_update"
	ActionAccountDelete        = "account_delete"
	ActionScanURL              = "scan_url"
	ActionScanFile             = "scan_file"
	ActionScanPage             = "scan_page"
	ActionSpeedTest            = "speed_test"
	ActionPasswordStrength     = "password_strength"
	ActionAdBlockToggle        = "adblock_toggle"
	ActionSessionRevoke        = "session_revoke"
)
