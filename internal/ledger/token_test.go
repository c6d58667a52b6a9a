package ledger

import (
	"strings"
	"testing"
)

func TestNewOfflineToken(t *testing.T) {
	token := NewOfflineToken()
	if !strings.HasPrefix(token, OfflineTokenPrefix) {
		t.Errorf("offline token %q should carry prefix %q", token, OfflineTokenPrefix)
	}
	if token == NewOfflineToken() {
		t.Error("offline tokens should be unique")
	}
}

func TestIsOfflineToken(t *testing.T) {
	if !IsOfflineToken(NewOfflineToken()) {
		t.Error("generated offline token not recognized")
	}
	if IsOfflineToken("txn-000001") {
		t.Error("ledger token misclassified as offline")
	}
	if IsOfflineToken("") {
		t.Error("empty token misclassified as offline")
	}
}
