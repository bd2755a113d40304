package admission

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"github.com/vocdoni/ticketvote/credential"
	"github.com/vocdoni/ticketvote/db/metadb"
	"github.com/vocdoni/ticketvote/storage"
	"github.com/vocdoni/ticketvote/types"
	"go.uber.org/goleak"
)

var (
	testEvent    = uuid.MustParse("5074edf5-f079-4099-b036-22223c0c6995")
	testScope    = big.NewInt(7)
	testAddress  = big.NewInt(0xcafe)
	trustedKey   = credential.Signer{types.NewInt(1), types.NewInt(2)}
	untrustedKey = credential.Signer{types.NewInt(3), types.NewInt(4)}
)

// fakeVerifier returns the claim registered for a raw proof.
type fakeVerifier struct {
	claims map[string]*credential.VerifiedClaim
	delay  time.Duration
	// uninterruptible makes the delay ignore ctx, like a pairing check
	uninterruptible bool

	running atomic.Int32
	peak    atomic.Int32
}

func (f *fakeVerifier) Verify(ctx context.Context, raw []byte) (*credential.VerifiedClaim, error) {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if f.delay > 0 && f.uninterruptible {
		time.Sleep(f.delay)
	} else if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if string(raw) == "garbage" {
		return nil, ErrMalformedProof
	}
	claim, ok := f.claims[string(raw)]
	if !ok {
		return nil, errors.New("pairing check failed")
	}
	cp := *claim
	return &cp, nil
}

func validClaim(nullifier string) *credential.VerifiedClaim {
	return &credential.VerifiedClaim{
		Signer:            trustedKey,
		NullifierHash:     types.HexBytes(nullifier),
		ExternalNullifier: testScope,
		Watermark:         testAddress,
		Claims:            credential.Claims{EventID: testEvent, ProductID: uuid.New()},
	}
}

// countingRegistry counts Record calls on top of a real storage.
type countingRegistry struct {
	*storage.Storage
	mu      sync.Mutex
	records int
}

func (r *countingRegistry) Record(n []byte) error {
	r.mu.Lock()
	r.records++
	r.mu.Unlock()
	return r.Storage.Record(n)
}

func newTestController(t *testing.T, verifier *fakeVerifier) (*Controller, *countingRegistry) {
	registry := &countingRegistry{Storage: storage.New(metadb.NewTest(t))}
	c, err := New(Config{
		Verifier:          verifier,
		Issuers:           credential.NewTrustedIssuers(trustedKey),
		Registry:          registry,
		ExternalNullifier: testScope,
		Workers:           4,
		TicketTTL:         time.Minute,
	})
	qt.Assert(t, err, qt.IsNil)
	return c, registry
}

func TestAdmit(t *testing.T) {
	c := qt.New(t)
	verifier := &fakeVerifier{claims: map[string]*credential.VerifiedClaim{
		"valid": validClaim("abc123"),
	}}
	ctrl, _ := newTestController(t, verifier)

	ticket, err := ctrl.Admit(context.Background(), []byte("valid"), testAddress, testEvent)
	c.Assert(err, qt.IsNil)
	c.Assert(ticket.Nullifier(), qt.DeepEquals, types.HexBytes("abc123"))
	c.Assert(ticket.ID(), qt.Not(qt.Equals), uuid.Nil)

	_, err = ctrl.Admit(context.Background(), []byte("valid"), testAddress, testEvent)
	c.Assert(err, qt.ErrorIs, ErrAlreadyUsed)
	c.Assert(Code(err), qt.Equals, CodeAlreadyUsed)

	admitted, rejected := ctrl.Stats()
	c.Assert(admitted, qt.Equals, uint64(1))
	c.Assert(rejected, qt.Equals, uint64(1))
}

func TestAdmitRejections(t *testing.T) {
	untrusted := validClaim("n-untrusted")
	untrusted.Signer = untrustedKey
	otherEvent := validClaim("n-event")
	otherEvent.Claims.EventID = uuid.New()
	otherScope := validClaim("n-scope")
	otherScope.ExternalNullifier = big.NewInt(8)

	verifier := &fakeVerifier{claims: map[string]*credential.VerifiedClaim{
		"valid":       validClaim("n-valid"),
		"untrusted":   untrusted,
		"other-event": otherEvent,
		"other-scope": otherScope,
	}}

	tests := []struct {
		name      string
		raw       string
		watermark *big.Int
		err       error
		code      int
	}{
		{"malformed", "garbage", testAddress, ErrMalformedProof, CodeMalformedProof},
		{"invalid", "forged", testAddress, ErrInvalidProof, CodeInvalidProof},
		{"untrusted issuer", "untrusted", testAddress, ErrUntrustedIssuer, CodeUntrustedIssuer},
		{"watermark", "valid", big.NewInt(0xbeef), ErrWatermarkMismatch, CodeWatermarkMismatch},
		{"nil watermark", "valid", nil, ErrWatermarkMismatch, CodeWatermarkMismatch},
		{"wrong event", "other-event", testAddress, ErrWrongEvent, CodeWrongEvent},
		{"wrong scope", "other-scope", testAddress, ErrWrongEvent, CodeWrongEvent},
	}

	c := qt.New(t)
	ctrl, registry := newTestController(t, verifier)
	for _, tc := range tests {
		c.Run(tc.name, func(c *qt.C) {
			_, err := ctrl.Admit(context.Background(), []byte(tc.raw), tc.watermark, testEvent)
			c.Assert(err, qt.ErrorIs, tc.err)
			c.Assert(Code(err), qt.Equals, tc.code)
			c.Assert(IsRejection(err), qt.IsTrue)
		})
	}
	// no rejection consumed a nullifier, so the valid proof still works
	c.Assert(registry.records, qt.Equals, 0)
	_, err := ctrl.Admit(context.Background(), []byte("valid"), testAddress, testEvent)
	c.Assert(err, qt.IsNil)
}

func TestCheckHasNoSideEffects(t *testing.T) {
	c := qt.New(t)
	verifier := &fakeVerifier{claims: map[string]*credential.VerifiedClaim{
		"valid": validClaim("n-check"),
	}}
	ctrl, registry := newTestController(t, verifier)

	for range 3 {
		claim, err := ctrl.Check(context.Background(), []byte("valid"), testAddress, testEvent)
		c.Assert(err, qt.IsNil)
		c.Assert(claim.NullifierHash, qt.DeepEquals, types.HexBytes("n-check"))
	}
	c.Assert(registry.records, qt.Equals, 0)

	_, err := ctrl.Admit(context.Background(), []byte("valid"), testAddress, testEvent)
	c.Assert(err, qt.IsNil)
	_, err = ctrl.Check(context.Background(), []byte("valid"), testAddress, testEvent)
	c.Assert(err, qt.ErrorIs, ErrAlreadyUsed)
}

func TestAdmitConcurrentSameNullifier(t *testing.T) {
	c := qt.New(t)
	verifier := &fakeVerifier{claims: map[string]*credential.VerifiedClaim{
		"valid": validClaim("double-vote"),
	}}
	ctrl, _ := newTestController(t, verifier)

	const n = 50
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = ctrl.Admit(context.Background(), []byte("valid"), testAddress, testEvent)
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		c.Assert(err, qt.ErrorIs, ErrAlreadyUsed)
	}
	c.Assert(ok, qt.Equals, 1)
}

func TestAdmitCancelledLeavesNoTrace(t *testing.T) {
	c := qt.New(t)
	verifier := &fakeVerifier{
		claims: map[string]*credential.VerifiedClaim{"valid": validClaim("slow")},
		delay:  time.Second,
	}
	ctrl, registry := newTestController(t, verifier)
	// an abandoned verification must not outlive the request
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := ctrl.Admit(ctx, []byte("valid"), testAddress, testEvent)
	c.Assert(err, qt.ErrorIs, context.DeadlineExceeded)
	c.Assert(IsRejection(err), qt.IsFalse)
	c.Assert(registry.records, qt.Equals, 0)
	has, err := registry.Has([]byte("slow"))
	c.Assert(err, qt.IsNil)
	c.Assert(has, qt.IsFalse)
}

func TestRedeem(t *testing.T) {
	c := qt.New(t)
	verifier := &fakeVerifier{claims: map[string]*credential.VerifiedClaim{
		"a": validClaim("n-a"),
		"b": validClaim("n-b"),
	}}
	ctrl, _ := newTestController(t, verifier)
	other, _ := newTestController(t, verifier)

	ticket, err := ctrl.Admit(context.Background(), []byte("a"), testAddress, testEvent)
	c.Assert(err, qt.IsNil)

	_, err = other.Redeem(ticket)
	c.Assert(err, qt.ErrorIs, ErrInvalidTicket)
	_, err = ctrl.Redeem(nil)
	c.Assert(err, qt.ErrorIs, ErrInvalidTicket)

	nullifier, err := ctrl.Redeem(ticket)
	c.Assert(err, qt.IsNil)
	c.Assert(nullifier, qt.DeepEquals, types.HexBytes("n-a"))
	_, err = ctrl.Redeem(ticket)
	c.Assert(err, qt.ErrorIs, ErrInvalidTicket)

	expired, err := ctrl.Admit(context.Background(), []byte("b"), testAddress, testEvent)
	c.Assert(err, qt.IsNil)
	ctrl.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = ctrl.Redeem(expired)
	c.Assert(err, qt.ErrorIs, ErrInvalidTicket)
}

func TestRelease(t *testing.T) {
	c := qt.New(t)
	verifier := &fakeVerifier{claims: map[string]*credential.VerifiedClaim{
		"a": validClaim("n-a"),
	}}
	ctrl, registry := newTestController(t, verifier)
	other, _ := newTestController(t, verifier)

	ticket, err := ctrl.Admit(context.Background(), []byte("a"), testAddress, testEvent)
	c.Assert(err, qt.IsNil)
	c.Assert(other.Release(ticket), qt.ErrorIs, ErrInvalidTicket)
	c.Assert(ctrl.Release(ticket), qt.IsNil)

	has, err := registry.Has([]byte("n-a"))
	c.Assert(err, qt.IsNil)
	c.Assert(has, qt.IsFalse)
	_, err = ctrl.Redeem(ticket)
	c.Assert(err, qt.ErrorIs, ErrInvalidTicket)

	// the credential is admitted again, and the old ticket cannot drop the
	// new reservation
	again, err := ctrl.Admit(context.Background(), []byte("a"), testAddress, testEvent)
	c.Assert(err, qt.IsNil)
	c.Assert(ctrl.Release(ticket), qt.IsNil)
	_, err = ctrl.Admit(context.Background(), []byte("a"), testAddress, testEvent)
	c.Assert(err, qt.ErrorIs, ErrAlreadyUsed)
	_, err = ctrl.Redeem(again)
	c.Assert(err, qt.IsNil)
}

func TestVerificationsBoundedByWorkers(t *testing.T) {
	c := qt.New(t)
	verifier := &fakeVerifier{
		claims:          map[string]*credential.VerifiedClaim{"valid": validClaim("bounded")},
		delay:           20 * time.Millisecond,
		uninterruptible: true,
	}
	ctrl, _ := newTestController(t, verifier)

	// callers give up long before the verifications end, the slots stay
	// taken until they do
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
			defer cancel()
			_, _ = ctrl.Check(ctx, []byte("valid"), testAddress, testEvent)
		}()
	}
	wg.Wait()
	c.Assert(verifier.peak.Load() <= 4, qt.IsTrue, qt.Commentf("peak %d", verifier.peak.Load()))
}

func TestNewRequiresDependencies(t *testing.T) {
	c := qt.New(t)
	_, err := New(Config{})
	c.Assert(err, qt.IsNotNil)
	_, err = New(Config{
		Verifier: &fakeVerifier{},
		Issuers:  credential.NewTrustedIssuers(),
		Registry: &countingRegistry{},
	})
	c.Assert(err, qt.IsNotNil)
}
