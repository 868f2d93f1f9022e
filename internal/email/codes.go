package email

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/mercatto/authd/internal/cache"
	"github.com/mercatto/authd/internal/observability/logger"
)

var (
	// ErrCodeMismatch indica que el código no coincide o ya expiró.
	ErrCodeMismatch = errors.New("email: verification code mismatch or expired")
)

// CodeService emite y verifica códigos de verificación por email.
// Los códigos viven en cache con TTL; no se persisten.
type CodeService struct {
	cache  cache.Cache
	sender Sender
	ttl    time.Duration
}

// NewCodeService crea un CodeService.
func NewCodeService(c cache.Cache, sender Sender, ttl time.Duration) *CodeService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CodeService{cache: c, sender: sender, ttl: ttl}
}

func codeKey(email string) string { return "emailcode:" + email }

// Issue genera un código de 6 dígitos, lo guarda en cache y lo envía por
// email. Un Issue posterior reemplaza el código anterior.
func (s *CodeService) Issue(ctx context.Context, to string) error {
	code, err := randomCode()
	if err != nil {
		return fmt.Errorf("generating code: %w", err)
	}

	s.cache.Set(codeKey(to), []byte(code), s.ttl)

	subject := "Your verification code"
	text := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.",
		code, int(s.ttl.Minutes()))
	html := fmt.Sprintf("<p>Your verification code is <strong>%s</strong>.</p><p>It expires in %d minutes.</p>",
		code, int(s.ttl.Minutes()))

	if err := s.sender.Send(to, subject, html, text); err != nil {
		// Si el envío falla el código no debe quedar vivo.
		s.cache.Delete(codeKey(to))
		return err
	}

	logger.From(ctx).Debug("verification code issued", logger.Email(to))
	return nil
}

// Verify compara el código recibido con el almacenado. Consume el código
// en caso de éxito; los intentos fallidos no lo invalidan.
func (s *CodeService) Verify(ctx context.Context, to, code string) error {
	stored, ok := s.cache.Get(codeKey(to))
	if !ok {
		return ErrCodeMismatch
	}
	if subtle.ConstantTimeCompare(stored, []byte(code)) != 1 {
		return ErrCodeMismatch
	}
	s.cache.Delete(codeKey(to))
	return nil
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
