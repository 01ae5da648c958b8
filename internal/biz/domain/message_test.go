package domain

import "testing"

func TestNewNormalizedMessage_Command(t *testing.T) {
	raw := &RawMessage{
		ID:       "om_1",
		ChatID:   "oc_1",
		ChatType: ChatTypeGroup,
		SenderID: " ou_alice ",
		MsgType:  "text",
		Text:     "  !Audio eita  ",
	}

	msg := NewNormalizedMessage(raw, MessageContext{Prefix: "!", OwnerID: "ou_owner", Admins: []string{"ou_alice"}})

	if !msg.IsCommand {
		t.Fatal("expected command")
	}
	if msg.Command != "audio" {
		t.Errorf("Command = %q, want audio", msg.Command)
	}
	if msg.Args != "eita" {
		t.Errorf("Args = %q, want eita", msg.Args)
	}
	if msg.SenderID != "ou_alice" {
		t.Errorf("SenderID = %q", msg.SenderID)
	}
	if !msg.IsGroup || !msg.IsGroupAdmin || msg.IsBotOwner {
		t.Errorf("unexpected flags: group=%v admin=%v owner=%v", msg.IsGroup, msg.IsGroupAdmin, msg.IsBotOwner)
	}
}

func TestNewNormalizedMessage_BarePrefixIsNotCommand(t *testing.T) {
	msg := NewNormalizedMessage(&RawMessage{Text: "! hello", ChatType: ChatTypeP2P}, MessageContext{Prefix: "!"})

	if msg.IsCommand {
		t.Error("bare prefix should not be a command")
	}
	if msg.IsGroup {
		t.Error("p2p message flagged as group")
	}
}

func TestNewNormalizedMessage_OwnerAndBot(t *testing.T) {
	mc := MessageContext{Prefix: "!", BotID: "ou_bot", OwnerID: "ou_owner"}

	owner := NewNormalizedMessage(&RawMessage{SenderID: "ou_owner", Text: "hi"}, mc)
	if !owner.IsBotOwner {
		t.Error("expected IsBotOwner")
	}

	bot := NewNormalizedMessage(&RawMessage{SenderID: "ou_bot", Text: "hi"}, mc)
	if !bot.IsBotMessage {
		t.Error("expected IsBotMessage")
	}
}

func TestNewNormalizedMessage_Media(t *testing.T) {
	msg := NewNormalizedMessage(&RawMessage{MsgType: "image", ImageKeys: []string{"img_1"}}, MessageContext{Prefix: "!"})

	if msg.Media == nil || msg.Media.Type != "image" || len(msg.Media.Keys) != 1 {
		t.Errorf("unexpected media: %+v", msg.Media)
	}
	if msg.ActivityType() != "image" {
		t.Errorf("ActivityType = %q", msg.ActivityType())
	}
}
