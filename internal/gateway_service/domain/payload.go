package domain

import (
	"strconv"
)

// payloadParser attempts to read one provider webhook shape.
// Returns nil when the payload does not match the shape; parsers never
// error out on malformed input.
type payloadParser func(p map[string]any, agentNumber string) *IncomingEvent

// NormalizeIncoming converts a raw provider webhook payload into an
// IncomingEvent. Parsers are tried in a fixed priority order: the
// list-of-messages shape, the nested body/message/chat shape, the official
// Cloud API entry/changes/value shape, and finally a flat fallback that
// always produces a best-effort event (CustomerID may be "").
func NormalizeIncoming(p map[string]any, agentNumber string) IncomingEvent {
	parsers := []payloadParser{
		parseMessagesList,
		parseNestedBody,
		parseCloudAPI,
	}
	agentNum := NormalizePhone(agentNumber)
	for _, parse := range parsers {
		if ev := parse(p, agentNumber); ev != nil {
			finalize(ev, agentNum)
			return *ev
		}
	}
	ev := parseFlat(p)
	finalize(ev, agentNum)
	return *ev
}

// finalize applies media placeholders and the own-number self-sent rule.
func finalize(ev *IncomingEvent, agentNum string) {
	if ev.Text == "" {
		switch ev.Kind {
		case KindImage:
			ev.Text = ImagePlaceholder
		case KindAudio:
			ev.Text = AudioPlaceholder
		}
	}
	if !ev.SelfSent && agentNum != "" && ev.CustomerID == agentNum {
		ev.SelfSent = true
	}
}

// Shape 0: {"messages":[{"sender":..,"content":{"type":..,"text":..},..}]}
func parseMessagesList(p map[string]any, _ string) *IncomingEvent {
	list := asSlice(p["messages"])
	if len(list) == 0 {
		return nil
	}
	m0 := asMap(list[0])
	if m0 == nil {
		return nil
	}
	content := asMap(m0["content"])

	phone := firstNonEmpty(asString(m0["sender"]), asString(m0["chatid"]), asString(m0["from"]))
	customerID := NormalizePhone(phone)
	if customerID == "" {
		return nil
	}

	msgType := firstNonEmpty(asString(content["type"]), asString(m0["type"]), "text")
	text := firstNonEmpty(asString(content["text"]), asString(m0["text"]))

	return &IncomingEvent{
		CustomerID:        customerID,
		Text:              text,
		Kind:              kindFromType(msgType),
		ProviderMessageID: firstNonEmpty(asString(m0["messageid"]), asString(m0["id"])),
		SelfSent:          asBool(m0["fromMe"]) || asBool(m0["wasSentByApi"]),
	}
}

// Shape 1: {"body":{"message":{...},"chat":{...},"data":{...}}}
func parseNestedBody(p map[string]any, _ string) *IncomingEvent {
	body := asMap(p["body"])
	if body == nil {
		return nil
	}
	message := asMap(body["message"])
	chat := asMap(body["chat"])
	data := asMap(body["data"])

	phone := firstNonEmpty(asString(chat["wa_id"]), asString(message["from"]))
	customerID := NormalizePhone(phone)
	if customerID == "" {
		return nil
	}

	msgType := firstNonEmpty(asString(data["messageType"]), asString(message["type"]), "textMessage")
	kind := kindFromType(msgType)

	var text string
	switch kind {
	case KindText:
		text = firstNonEmpty(asString(asMap(message["text"])["body"]), asString(message["body"]))
	case KindImage:
		text = asString(asMap(message["image"])["caption"])
	}

	return &IncomingEvent{
		CustomerID:        customerID,
		Text:              text,
		Kind:              kind,
		ProviderMessageID: firstNonEmpty(asString(message["messageid"]), asString(message["id"])),
		SelfSent:          asBool(message["fromMe"]) || asBool(message["wasSentByApi"]),
	}
}

// Shape 2: official Cloud API {"entry":[{"changes":[{"value":{...}}]}]}
func parseCloudAPI(p map[string]any, _ string) *IncomingEvent {
	entry := asSlice(p["entry"])
	if len(entry) == 0 {
		return nil
	}
	changes := asSlice(asMap(entry[0])["changes"])
	if len(changes) == 0 {
		return nil
	}
	value := asMap(asMap(changes[0])["value"])
	messages := asSlice(value["messages"])
	contacts := asSlice(value["contacts"])

	var msg map[string]any
	if len(messages) > 0 {
		msg = asMap(messages[0])
	}

	var phone string
	if len(contacts) > 0 {
		phone = asString(asMap(contacts[0])["wa_id"])
	}
	phone = firstNonEmpty(phone, asString(msg["from"]))
	customerID := NormalizePhone(phone)
	if customerID == "" {
		return nil
	}

	msgType := firstNonEmpty(asString(msg["type"]), "text")
	kind := kindFromType(msgType)

	var text string
	switch kind {
	case KindText:
		text = asString(asMap(msg["text"])["body"])
	case KindImage:
		text = asString(asMap(msg["image"])["caption"])
	}

	return &IncomingEvent{
		CustomerID:        customerID,
		Text:              text,
		Kind:              kind,
		ProviderMessageID: asString(msg["id"]),
	}
}

// Shape 3: flat fallback with top-level message/chat/text fields. Always
// produces an event; CustomerID may be empty when no candidate matched.
func parseFlat(p map[string]any) *IncomingEvent {
	chat := asMap(p["chat"])
	message := asMap(p["message"])

	text := asString(p["text"])
	msgType := firstNonEmpty(asString(p["messageType"]), "text")
	messageID := firstNonEmpty(asString(p["id"]), asString(p["messageid"]))
	selfSent := false

	if message != nil {
		msgType = firstNonEmpty(asString(message["type"]), msgType)

		// content is either the text itself or a nested {type,text} object.
		switch content := message["content"].(type) {
		case string:
			if text == "" {
				text = content
			}
		case map[string]any:
			text = firstNonEmpty(asString(content["text"]), text)
			msgType = firstNonEmpty(asString(content["type"]), msgType)
		}

		if text == "" {
			if txt := asMap(message["text"]); txt != nil {
				text = asString(txt["body"])
			} else {
				text = firstNonEmpty(asString(message["text"]), asString(message["body"]))
			}
		}

		messageID = firstNonEmpty(asString(message["messageid"]), asString(message["id"]), messageID)
		selfSent = asBool(message["fromMe"]) || asBool(message["wasSentByApi"])
	}

	// When the event is the agent's own outbound message, prefer the
	// customer's number so the session key stays on the customer side.
	var candidates []string
	if selfSent {
		candidates = []string{
			asString(chat["wa_id"]),
			asString(chat["phone"]),
			asString(chat["wa_chatid"]),
			asString(chat["wa_fastid"]),
			asString(p["wa_id"]),
			asString(p["sender"]),
			asString(p["chatid"]),
			asString(p["from"]), // last resort: the agent's own number
		}
	} else {
		candidates = []string{
			asString(p["from"]),
			asString(p["wa_id"]),
			asString(p["sender"]),
			asString(p["chatid"]),
			asString(chat["phone"]),
			asString(chat["wa_chatid"]),
			asString(chat["wa_fastid"]),
		}
	}
	if message != nil {
		candidates = append(candidates,
			asString(message["sender"]),
			asString(message["sender_pn"]),
			asString(message["chatid"]),
			asString(message["from"]),
		)
	}

	var customerID string
	for _, cand := range candidates {
		if digits := NormalizePhone(cand); digits != "" {
			customerID = digits
			break
		}
	}

	kind := kindFromType(msgType)
	if text == "" && kind == KindImage && message != nil {
		if img := asMap(message["image"]); img != nil {
			text = asString(img["caption"])
		}
	}

	return &IncomingEvent{
		CustomerID:        customerID,
		Text:              text,
		Kind:              kind,
		ProviderMessageID: messageID,
		SelfSent:          selfSent,
	}
}

// --- tolerant accessors ---------------------------------------------------

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

// asString accepts strings and JSON numbers (phones sometimes arrive as
// numbers in provider payloads).
func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
