package domain

type TrackKind string

const (
	TrackAudio       TrackKind = "audio"
	TrackVideo       TrackKind = "video"
	TrackScreenShare TrackKind = "screen_share"
)

func (k TrackKind) Valid() bool {
	switch k {
	case TrackAudio, TrackVideo, TrackScreenShare:
		return true
	}
	return false
}

// TrackSID references a published track. Empty means absent.
type TrackSID string

// ConnectionQuality as reported by the media server.
type ConnectionQuality string

const (
	QualityUnknown   ConnectionQuality = "unknown"
	QualityExcellent ConnectionQuality = "excellent"
	QualityGood      ConnectionQuality = "good"
	QualityPoor      ConnectionQuality = "poor"
)

func ParseQuality(s string) ConnectionQuality {
	switch ConnectionQuality(s) {
	case QualityExcellent, QualityGood, QualityPoor:
		return ConnectionQuality(s)
	}
	return QualityUnknown
}
