// Package pairing shows pairing codes to the operator as terminal QR codes.
package pairing

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"

	"github.com/hay-kot/wasend/internal/styles"
)

const (
	title = "Link wasend to WhatsApp"
	hint  = "Phone: Settings > Linked devices > Link a device"
)

// Render returns code as a framed, scannable terminal QR code.
func Render(code string) (string, error) {
	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("encode pairing code: %w", err)
	}

	body := lipgloss.JoinVertical(lipgloss.Left,
		styles.TitleStyle.Render(title),
		strings.TrimRight(qr.ToSmallString(false), "\n"),
		styles.HintStyle.Render(hint),
	)

	return styles.PairingBoxStyle.Render(body), nil
}

// Renderer writes pairing codes to a terminal. It is safe for concurrent
// use.
type Renderer struct {
	mu  sync.Mutex
	w   io.Writer
	log zerolog.Logger
}

// NewRenderer returns a Renderer writing to w.
func NewRenderer(w io.Writer, logger zerolog.Logger) *Renderer {
	return &Renderer{w: w, log: logger}
}

// ShowPairingCode renders code. When the code cannot be encoded the raw
// payload is printed instead so pairing is still possible by other means.
func (r *Renderer) ShowPairingCode(code string) {
	out, err := Render(code)
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to render pairing QR code")
		out = "pairing code: " + code
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintln(r.w, out)
}
