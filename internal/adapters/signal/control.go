package signal

import (
	"github.com/dkeye/roomview/internal/domain"
	"github.com/dkeye/roomview/internal/proto"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, proto.Message{Type: proto.TypePong})
}

func (ctl *SignalWSController) handleList(sid domain.ParticipantID, conn *WsSignalConn) {
	msg, err := ctl.Hub.Roster(sid)
	if err != nil {
		ctl.sendError(conn, err)
		return
	}
	ctl.sendJSON(conn, msg)
}

// handleLeave ends the session; the read pump closes the socket.
func (ctl *SignalWSController) handleLeave(sid domain.ParticipantID) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	ctl.Hub.Leave(sid)
}
