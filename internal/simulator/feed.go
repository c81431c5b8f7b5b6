package simulator

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"net/http"

	"payagent/internal/txn/domain"
)

var feedColors = map[domain.Stage]color.RGBA{
	domain.StageUnknown:  {R: 0x44, G: 0x44, B: 0x44, A: 0xff},
	domain.StageReview:   {R: 0x8a, G: 0x8a, B: 0x8a, A: 0xff},
	domain.StageInFlight: {R: 0x1e, G: 0x6f, B: 0xd9, A: 0xff},
	domain.StageTerminal: {R: 0x2e, G: 0xa0, B: 0x43, A: 0xff},
}

var pinColor = color.RGBA{R: 0xe0, G: 0xa1, B: 0x1b, A: 0xff}

// handleFeed renders the agent's "screen": a frame colored by the status of
// the most recent transaction the agent touched.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	s.state.mu.Lock()
	status := domain.Status("")
	latest := -1
	for _, rec := range s.state.records {
		if rec.tx.Status.Stage() >= domain.StageInFlight && rec.seq > latest {
			latest = rec.seq
			status = rec.tx.Status
		}
	}
	s.state.mu.Unlock()

	fill := feedColors[status.Stage()]
	if status == domain.StatusWaitingForPIN {
		fill = pinColor
	}

	img := image.NewRGBA(image.Rect(0, 0, 160, 90))
	for y := 0; y < 90; y++ {
		for x := 0; x < 160; x++ {
			if x < 4 || y < 4 || x >= 156 || y >= 86 {
				img.Set(x, y, color.White)
				continue
			}
			img.Set(x, y, fill)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}
