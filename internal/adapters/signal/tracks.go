package signal

import (
	"github.com/dkeye/roomview/internal/domain"
	"github.com/dkeye/roomview/internal/proto"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handlePublish(sid domain.ParticipantID, conn *WsSignalConn, msg proto.Message) {
	if msg.SID == "" {
		ctl.sendJSON(conn, proto.ErrorMessage("missing track sid"))
		return
	}
	if err := ctl.Hub.Publish(sid, msg.Kind, msg.SID); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("kind", string(msg.Kind)).Msg("publish")
		ctl.sendError(conn, err)
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("kind", string(msg.Kind)).Str("track", string(msg.SID)).Msg("published")
}

func (ctl *SignalWSController) handleUnpublish(sid domain.ParticipantID, conn *WsSignalConn, msg proto.Message) {
	if err := ctl.Hub.Unpublish(sid, msg.SID); err != nil {
		ctl.sendError(conn, err)
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("track", string(msg.SID)).Msg("unpublished")
}

func (ctl *SignalWSController) handleMute(sid domain.ParticipantID, conn *WsSignalConn, msg proto.Message) {
	if err := ctl.Hub.SetMuted(sid, msg.SID, msg.Type == proto.TypeMute); err != nil {
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleSpeaking(sid domain.ParticipantID, conn *WsSignalConn, msg proto.Message) {
	if err := ctl.Hub.SetSpeaking(sid, msg.Active); err != nil {
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleQuality(sid domain.ParticipantID, conn *WsSignalConn, msg proto.Message) {
	q := domain.ParseQuality(msg.Quality)
	if err := ctl.Hub.ReportQuality(sid, q); err != nil {
		ctl.sendError(conn, err)
	}
}
