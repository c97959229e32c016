package services

import (
	"errors"

	"tillsync/internal/domain"
	"tillsync/internal/repos"

	"golang.org/x/crypto/bcrypt"
)

var ErrBadTerminalKey = errors.New("invalid terminal id or key")

// TerminalAuthService resolves a terminal id/key pair to the acting
// principal recorded on every adjustment.
type TerminalAuthService struct {
	Terminals *repos.TerminalRepo
}

func (s *TerminalAuthService) Authenticate(id, key string) (*domain.Terminal, error) {
	t, err := s.Terminals.ByID(id)
	if err != nil {
		return nil, ErrBadTerminalKey
	}
	if bcrypt.CompareHashAndPassword([]byte(t.KeyHash), []byte(key)) != nil {
		return nil, ErrBadTerminalKey
	}
	return t, nil
}
