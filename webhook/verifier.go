package webhook

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/makeit-app/render-orchestrator/utils"
)

// Required delivery headers.
const (
	HeaderID        = "webhook-id"
	HeaderTimestamp = "webhook-timestamp"
	HeaderSignature = "webhook-signature"
)

// ReplayTolerance is the accepted clock skew between the provider's timestamp
// and our clock. Deliveries outside it are rejected as replays.
const ReplayTolerance = 300 * time.Second

var (
	ErrMissingHeaders   = errors.New("webhook: missing required headers")
	ErrStaleTimestamp   = errors.New("webhook: timestamp outside tolerance window")
	ErrInvalidSignature = errors.New("webhook: no signature matched")
)

// Verifier authenticates inbound provider callbacks. Verification runs before
// any side effect; a failed delivery never touches cache or store.
type Verifier struct {
	key []byte
	now func() time.Time
}

// NewVerifier derives the signing key from the shared secret
// ("prefix_base64key" format).
func NewVerifier(secret string) (*Verifier, error) {
	key, err := utils.ParseSigningKey(secret)
	if err != nil {
		return nil, err
	}
	return &Verifier{
		key: key,
		now: time.Now,
	}, nil
}

// Verify checks headers and signature against the raw body and returns the
// parsed payload. The signature is computed over the raw bytes; the body must
// not be re-serialized before calling this.
func (v *Verifier) Verify(headers http.Header, body []byte) (*PredictionEvent, error) {
	deliveryID := headers.Get(HeaderID)
	timestampStr := headers.Get(HeaderTimestamp)
	signatureHeader := headers.Get(HeaderSignature)

	if deliveryID == "" || timestampStr == "" || signatureHeader == "" {
		return nil, ErrMissingHeaders
	}

	timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
	if err != nil {
		return nil, ErrStaleTimestamp
	}

	skew := utils.Abs(v.now().Unix() - timestamp)
	if skew > int64(ReplayTolerance/time.Second) {
		return nil, ErrStaleTimestamp
	}

	signedContent := utils.BuildSignedContent(deliveryID, timestamp, body)
	expected := utils.ComputeHMACSHA256Base64(v.key, signedContent)

	// The header carries one or more space-separated "version,signature" tokens.
	// Accept if any token's signature half matches.
	matched := false
	for _, token := range strings.Fields(signatureHeader) {
		_, signature, found := strings.Cut(token, ",")
		if !found {
			continue
		}
		if utils.SecureCompare(signature, expected) {
			matched = true
		}
	}
	if !matched {
		return nil, ErrInvalidSignature
	}

	return ParseEvent(body)
}
