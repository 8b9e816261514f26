package telegram

import (
	"log"

	"uniqsocial/client/internal/chat"
	"uniqsocial/client/internal/engine"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// push turns a chat event of the chat's engine into a bot message.
func (s *BotService) push(chatID int64, sess *session, ev chat.Event) {
	switch ev.Kind {
	case chat.MessageReceived:
		s.send(chatID, s.Localizer.Format(sess.lang, "partner_message", partnerName(sess.engine), ev.Message.Content))
	case chat.TypingChanged:
		if !ev.Typing {
			return
		}
		if _, err := s.Bot.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
			log.Printf("WARNING: typing action to chat %d: %v", chatID, err)
		}
	case chat.SessionEnded:
		s.reply(chatID, sess.lang, "chat_ended")
	case chat.ConnectionLost:
		s.reply(chatID, sess.lang, "connection_lost")
	}
}

func (s *BotService) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := s.Bot.Send(msg); err != nil {
		log.Printf("ERROR: Failed to send Telegram message to %d: %v", chatID, err)
	}
}

func partnerName(e *engine.Engine) string {
	if m := e.Match.Snapshot().Match; m != nil && m.PartnerUsername != "" {
		return m.PartnerUsername
	}
	return "?"
}
