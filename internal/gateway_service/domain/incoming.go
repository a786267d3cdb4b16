package domain

// MessageKind classifies the media type of an inbound message.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindAudio MessageKind = "audio"
	KindOther MessageKind = "other"
)

// Placeholder texts substituted for media messages without a caption.
// Audio transcription is handled by an external collaborator; until it
// runs, the placeholder keeps the conversation history coherent.
const (
	ImagePlaceholder = "[image received]"
	AudioPlaceholder = "[audio received - transcription pending]"
)

// IncomingEvent is one normalized webhook occurrence. CustomerID is the
// canonical digits-only id ("" when no payload shape yielded a phone).
type IncomingEvent struct {
	CustomerID        string
	Text              string
	Kind              MessageKind
	ProviderMessageID string
	SelfSent          bool
}

func kindFromType(t string) MessageKind {
	switch t {
	case "text", "textMessage", "txt", "":
		return KindText
	case "image", "imageMessage":
		return KindImage
	case "audio", "audioMessage":
		return KindAudio
	default:
		return KindOther
	}
}
