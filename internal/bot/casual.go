package bot

import (
	"regexp"
)

const helpText = "Sorry, I didn't quite understand that. You can try:\n" +
	"• send email to ali (hello)\n" +
	"• save ali=ali@example.com\n" +
	"• remove ali\n" +
	"• list emails"

type casualEntry struct {
	pattern *regexp.Regexp
	reply   string
}

func casual(phrase, reply string) casualEntry {
	return casualEntry{
		pattern: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(phrase) + `\b`),
		reply:   reply,
	}
}

// casualReplies are checked in order; the first phrase found wins.
var casualReplies = []casualEntry{
	casual("hello", "Hey there! How can I help with your emails today?"),
	casual("hi", "Hi! Ready to send or save an email?"),
	casual("hey", "Hey! What email task would you like to do?"),
	casual("thanks", "You're very welcome!"),
	casual("thankyou", "You're very welcome!"),
	casual("thank you", "You're very welcome!"),
	casual("how are you", "I'm great and ready to handle your emails! How about you?"),
	casual("who are you", "I'm your friendly email assistant bot."),
	casual("what can you do", "I can help you send, save, or remove emails. Just tell me what you'd like!"),
	casual("help", "Sure! You can try:\n• send email to ali (hello)\n• save ali=ali@example.com\n• remove ali\n• list emails"),
}

// casualReply answers small talk and anything no command understood.
func casualReply(text string) string {
	for _, entry := range casualReplies {
		if entry.pattern.MatchString(text) {
			return entry.reply
		}
	}
	return helpText
}
