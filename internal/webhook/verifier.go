package webhook

import (
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v78/webhook"
)

// MinSignatureLength минимальная длина заголовка Stripe-Signature для HeaderPresenceVerifier
const MinSignatureLength = 50

var (
	// ErrMissingSignature заголовок подписи отсутствует или слишком короткий
	ErrMissingSignature = errors.New("missing stripe signature")
	// ErrInvalidSignature подпись не прошла проверку
	ErrInvalidSignature = errors.New("invalid stripe signature")
)

// Verifier проверяет подлинность доставки webhook
type Verifier interface {
	Verify(payload []byte, signature string) error
}

// StripeSignatureVerifier проверяет подпись секретом whsec_...
type StripeSignatureVerifier struct {
	secret string
}

// NewStripeSignatureVerifier создает проверку подписи
func NewStripeSignatureVerifier(secret string) *StripeSignatureVerifier {
	return &StripeSignatureVerifier{secret: secret}
}

// Verify проверяет подпись и метку времени. Расхождение версии API игнорируется.
func (v *StripeSignatureVerifier) Verify(payload []byte, signature string) error {
	if signature == "" {
		return ErrMissingSignature
	}
	_, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

// HeaderPresenceVerifier только проверяет наличие заголовка подписи достаточной длины
type HeaderPresenceVerifier struct{}

// Verify проверяет длину заголовка
func (HeaderPresenceVerifier) Verify(_ []byte, signature string) error {
	if len(signature) < MinSignatureLength {
		return ErrMissingSignature
	}
	return nil
}

// NoopVerifier принимает любую доставку
type NoopVerifier struct{}

// Verify всегда успешен
func (NoopVerifier) Verify([]byte, string) error { return nil }

// NewVerifier выбирает проверку: с секретом - подпись Stripe, без - наличие заголовка
func NewVerifier(verify bool, secret string) Verifier {
	switch {
	case !verify:
		return NoopVerifier{}
	case secret != "":
		return NewStripeSignatureVerifier(secret)
	default:
		return HeaderPresenceVerifier{}
	}
}
