package gateway

import (
	"errors"

	"github.com/rs/zerolog/log"
)

// EchoHandler sends every received message back to its connection.
type EchoHandler struct{}

func (EchoHandler) OnOpen(c Conn) {
	log.Info().Str("client", c.ID()).Str("transport", c.Transport()).Msg("client connected")
}

func (EchoHandler) OnMessage(c Conn, data []byte) {
	if err := c.Send(data); err != nil && !errors.Is(err, ErrConnClosed) {
		log.Error().Err(err).Str("client", c.ID()).Msg("error sending echo message")
	}
}

func (EchoHandler) OnClose(c Conn) {
	log.Info().Str("client", c.ID()).Str("transport", c.Transport()).Msg("client disconnected")
}
