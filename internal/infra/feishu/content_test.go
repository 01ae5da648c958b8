package feishu

import (
	"testing"
)

func TestParseTextContent_ReplacesMentions(t *testing.T) {
	got := parseTextContent(`{"text":"@_user_1 please read the rules"}`, map[string]string{"@_user_1": "Alice"})
	if got != "@Alice please read the rules" {
		t.Errorf("unexpected text: %q", got)
	}

	if got := parseTextContent(`not json`, nil); got != "" {
		t.Errorf("expected empty text for invalid content, got %q", got)
	}
}

func TestParsePostContent(t *testing.T) {
	content := `{"title":"Notice","content":[
		[{"tag":"text","text":"see "},{"tag":"a","text":"docs","href":"https://example.com/x"}],
		[{"tag":"at","user_id":"@_user_1"},{"tag":"img","image_key":"img_1"}]
	]}`

	text, images := parsePostContent(content, map[string]string{"@_user_1": "Bob"})
	want := "Notice\nsee docs https://example.com/x\n@Bob"
	if text != want {
		t.Errorf("expected %q, got %q", want, text)
	}
	if len(images) != 1 || images[0] != "img_1" {
		t.Errorf("unexpected image keys: %v", images)
	}
}

func TestParseImageContent(t *testing.T) {
	if keys := parseImageContent(`{"image_key":"img_9"}`); len(keys) != 1 || keys[0] != "img_9" {
		t.Errorf("unexpected keys: %v", keys)
	}
	if keys := parseImageContent(`{}`); keys != nil {
		t.Errorf("expected nil keys, got %v", keys)
	}
}

func TestTruncate_RuneSafe(t *testing.T) {
	if got := truncate("你好世界", 2); got != "你好..." {
		t.Errorf("unexpected truncation: %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Errorf("unexpected truncation: %q", got)
	}
}
