// Package referral draws franchise referral codes.
package referral

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"taxingsolutions-backend/internal/models"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// maxDraws bounds the redraw loop. Reaching it means the entropy source is broken, not that the space is full.
const maxDraws = 32

var ErrExhausted = errors.New("referral: no free code found")

// ExistsFunc reports whether a code is already held by a franchise.
type ExistsFunc func(ctx context.Context, code string) (bool, error)

type Generator struct {
	source io.Reader
	// OnRedraw, when set, is called each time a drawn code was already taken.
	OnRedraw func()
}

func NewGenerator() *Generator {
	return &Generator{source: rand.Reader}
}

// NewGeneratorFrom uses source instead of crypto/rand.
func NewGeneratorFrom(source io.Reader) *Generator {
	return &Generator{source: source}
}

// Draw returns one random code of models.ReferralCodeLength uppercase alphanumerics.
func (g *Generator) Draw() (string, error) {
	buf := make([]byte, models.ReferralCodeLength)
	out := make([]byte, 0, models.ReferralCodeLength)
	// Rejection sampling keeps every symbol equally likely: 252 is the largest multiple of 36 below 256.
	for len(out) < models.ReferralCodeLength {
		if _, err := io.ReadFull(g.source, buf); err != nil {
			return "", fmt.Errorf("referral: read entropy: %w", err)
		}
		for _, b := range buf {
			if b >= 252 {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == models.ReferralCodeLength {
				break
			}
		}
	}
	return string(out), nil
}

// Unique draws until exists reports a free code. The store's unique index stays the final arbiter:
// callers insert the code and retry on a constraint violation.
func (g *Generator) Unique(ctx context.Context, exists ExistsFunc) (string, error) {
	for i := 0; i < maxDraws; i++ {
		code, err := g.Draw()
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
		if g.OnRedraw != nil {
			g.OnRedraw()
		}
	}
	return "", ErrExhausted
}

// Valid reports whether code has the shape of a referral code.
func Valid(code string) bool {
	if len(code) != models.ReferralCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
