package handlers

import (
	"errors"
	"net/http"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/mpmeasure/internal/modules/measurement"
)

const (
	defaultStreamBatch = 1000
	maxCloseReason     = 120
)

// streamRequest is the first message a stream client sends.
type streamRequest struct {
	measurement.SampleRequest
	Batch int `json:"batch"`
}

// HandleSampleStream handles GET /api/measurement/sample/stream. The client
// sends one sample request over the websocket and receives the samples as
// a sequence of SampleBatch messages. The server closes the connection
// normally after the last batch.
func (h *Handler) HandleSampleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	ctx := r.Context()
	var req streamRequest
	if err := wsjson.Read(ctx, conn, &req); err != nil {
		conn.Close(websocket.StatusUnsupportedData, "invalid sample request")
		return
	}
	if req.Batch <= 0 {
		req.Batch = defaultStreamBatch
	}

	batches := 0
	err = h.service.SampleStream(ctx, req.SampleRequest, req.Batch, func(b measurement.SampleBatch) error {
		batches++
		return wsjson.Write(ctx, conn, b)
	})
	if err != nil {
		status := websocket.StatusInternalError
		if statusFor(err) == http.StatusBadRequest || statusFor(err) == http.StatusUnprocessableEntity {
			status = websocket.StatusPolicyViolation
		}
		var closeErr websocket.CloseError
		if !errors.As(err, &closeErr) {
			h.log.Warn().Err(err).Int("batches", batches).Msg("Sample stream failed")
		}
		conn.Close(status, truncate(err.Error(), maxCloseReason))
		return
	}

	h.log.Debug().Int("batches", batches).Msg("Sample stream completed")
	conn.Close(websocket.StatusNormalClosure, "done")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
