package webmonitor

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"net/http"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/yuyu-tech02/Blink-counter/internal/session"
)

const (
	badgeWidth  = 168
	badgeHeight = 44
)

var (
	badgeRunning = color.RGBA{R: 22, G: 120, B: 72, A: 255}
	badgeIdle    = color.RGBA{R: 80, G: 80, B: 88, A: 255}
)

// renderBadge draws the session stats as a small PNG.
func renderBadge(st session.Status) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, badgeWidth, badgeHeight))
	bg := badgeIdle
	if st.Running {
		bg = badgeRunning
	}
	draw.Draw(img, img.Bounds(), &image.Uniform{C: bg}, image.Point{}, draw.Src)

	elapsed := st.Stats.ElapsedSeconds
	lines := []string{
		fmt.Sprintf("blinks %d  %d/min", st.Stats.BlinkCount, st.Stats.BlinksPerMinute),
		fmt.Sprintf("%02d:%02d", elapsed/60, elapsed%60),
	}
	if st.Running && st.DurationSeconds > 0 {
		lines[1] += fmt.Sprintf("  (%ds left)", st.RemainingSeconds)
	} else if !st.Running {
		lines[1] += "  idle"
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.White,
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		d.Dot = fixed.P(8, 18+i*16)
		d.DrawString(line)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Server) handleBadge(w http.ResponseWriter, r *http.Request) {
	data, err := renderBadge(s.controller.Status())
	if err != nil {
		http.Error(w, "Failed to render badge", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(data)
}
