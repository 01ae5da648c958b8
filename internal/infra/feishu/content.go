package feishu

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseTextContent extracts text from a text message, replacing mention placeholders (@_user_1) with real names
func parseTextContent(content string, mentionMap map[string]string) string {
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return ""
	}
	return replaceMentions(parsed.Text, mentionMap)
}

// parseImageContent extracts the image key from an image message
func parseImageContent(content string) []string {
	var parsed struct {
		ImageKey string `json:"image_key"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil || parsed.ImageKey == "" {
		return nil
	}
	return []string{parsed.ImageKey}
}

// parsePostContent flattens a rich text message into lines of text and its image keys
func parsePostContent(content string, mentionMap map[string]string) (string, []string) {
	var parsed struct {
		Title   string `json:"title"`
		Content [][]struct {
			Tag      string `json:"tag"`
			Text     string `json:"text,omitempty"`
			Href     string `json:"href,omitempty"`
			ImageKey string `json:"image_key,omitempty"`
			UserID   string `json:"user_id,omitempty"`
		} `json:"content"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return "", nil
	}

	var lines []string
	var imageKeys []string
	if parsed.Title != "" {
		lines = append(lines, parsed.Title)
	}

	for _, line := range parsed.Content {
		var b strings.Builder
		for _, elem := range line {
			switch elem.Tag {
			case "text":
				b.WriteString(elem.Text)
			case "a":
				// Keep the target so link detection sees it even when the label hides it
				b.WriteString(elem.Text)
				if elem.Href != "" && elem.Href != elem.Text {
					b.WriteString(" " + elem.Href)
				}
			case "at":
				if name, ok := mentionMap[elem.UserID]; ok {
					b.WriteString("@" + name)
				} else if elem.UserID != "" {
					b.WriteString("@" + elem.UserID)
				}
			case "img":
				if elem.ImageKey != "" {
					imageKeys = append(imageKeys, elem.ImageKey)
				}
			}
		}
		if b.Len() > 0 {
			lines = append(lines, b.String())
		}
	}

	return replaceMentions(strings.Join(lines, "\n"), mentionMap), imageKeys
}

// replaceMentions replaces mention placeholders (@_user_1, @_user_2, ...) with real names
func replaceMentions(text string, mentionMap map[string]string) string {
	for key, name := range mentionMap {
		text = strings.ReplaceAll(text, key, "@"+name)
	}
	return text
}

// mentionTag renders an @ mention in text message content
func mentionTag(openID, name string) string {
	return fmt.Sprintf("<at user_id=\"%s\">%s</at>", openID, name)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
