package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
)

func TestDecodeFact(t *testing.T) {
	payload, err := cbor.Marshal(ConsentRevokedFact{Index: 9})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	frame, err := cbor.Marshal(Fact{
		Kind:    FactConsentRevoked,
		Token:   "txn-000009",
		TimeUS:  1700000000000000,
		Payload: payload,
	})
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}

	fact, err := DecodeFact(frame)
	if err != nil {
		t.Fatalf("DecodeFact: %v", err)
	}
	if fact.Kind != FactConsentRevoked || fact.Token != "txn-000009" {
		t.Errorf("fact = %+v", fact)
	}

	revoked, err := DecodeConsentRevoked(fact)
	if err != nil {
		t.Fatalf("DecodeConsentRevoked: %v", err)
	}
	if revoked.Index != 9 {
		t.Errorf("index = %d, want 9", revoked.Index)
	}
}

func TestDecodeFactRejectsMalformedFrames(t *testing.T) {
	if _, err := DecodeFact(nil); !errors.Is(err, ErrInvalidFact) {
		t.Errorf("empty frame error = %v, want ErrInvalidFact", err)
	}
	if _, err := DecodeFact([]byte{0xff, 0x00}); !errors.Is(err, ErrInvalidFact) {
		t.Errorf("garbage frame error = %v, want ErrInvalidFact", err)
	}

	frame, _ := cbor.Marshal(Fact{Token: "txn-000001"})
	if _, err := DecodeFact(frame); !errors.Is(err, ErrMissingFactKind) {
		t.Errorf("kindless frame error = %v, want ErrMissingFactKind", err)
	}
}

func TestDecodeProposalResolved(t *testing.T) {
	payload, _ := cbor.Marshal(ProposalResolvedFact{ProposalID: "prop-0002", Status: "approved"})
	fact := &Fact{Kind: FactProposalResolved, Payload: payload}

	resolved, err := DecodeProposalResolved(fact)
	if err != nil {
		t.Fatalf("DecodeProposalResolved: %v", err)
	}
	if resolved.ProposalID != "prop-0002" || resolved.Status != "approved" {
		t.Errorf("resolved = %+v", resolved)
	}

	// Wrong kind is refused.
	if _, err := DecodeConsentRevoked(fact); !errors.Is(err, ErrInvalidFact) {
		t.Errorf("cross-kind decode error = %v, want ErrInvalidFact", err)
	}
}

func TestComputeBackoffGrowsAndCaps(t *testing.T) {
	sub, err := NewSubscriber(StreamConfig{
		URL:       "ws://ledger.example/facts",
		BaseDelay: time.Second,
		MaxDelay:  30 * time.Second,
	}, nil, nil)
	if err != nil {
		t.Fatalf("NewSubscriber: %v", err)
	}

	sub.reconnectCount = 1
	first := sub.computeBackoff()
	// 2s base plus up to 25% jitter.
	if first < 2*time.Second || first > 2*time.Second+500*time.Millisecond {
		t.Errorf("attempt 1 backoff = %v", first)
	}

	sub.reconnectCount = 40 // far past the shift cap
	capped := sub.computeBackoff()
	if capped > 30*time.Second+8*time.Second {
		t.Errorf("capped backoff = %v exceeds max plus jitter", capped)
	}
}

func TestStreamConfigValidate(t *testing.T) {
	cfg := StreamConfig{}
	if err := cfg.Validate(); err == nil {
		t.Error("empty URL should fail validation")
	}
}
