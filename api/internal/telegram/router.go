// Package telegram: второй фронтенд калькулятора: фото с выражениями в чат,
// ответы текстом, словарь переменных живёт между сообщениями чата.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"math-canvas/api/internal/calc/types"
	"math-canvas/api/internal/store"
)

// Bot: то, что роутеру нужно от *tgbotapi.BotAPI.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Calculator: бэкенд /calculate (calcclient.Client).
type Calculator interface {
	Calculate(ctx context.Context, image string, vars types.Variables) ([]types.Answer, error)
}

// CalculatorFor возвращает бэкенд с нужным llm_name; "": движок по умолчанию.
type CalculatorFor func(llmName string) Calculator

type Router struct {
	Bot     Bot
	Calc    CalculatorFor
	Vars    store.VarStore
	Timeout time.Duration // дедлайн на один расчёт; 0: без дедлайна
	// Debounce: тишина, после которой альбом уходит в расчёт; 0: значение по умолчанию.
	Debounce time.Duration
	Log      zerolog.Logger

	engines sync.Map // chatID -> llm name
	batches sync.Map // key -> *photoBatch
}

func NewRouter(bot Bot, calc CalculatorFor, vars store.VarStore) *Router {
	return &Router{Bot: bot, Calc: calc, Vars: vars, Log: log.Logger}
}

const helpText = "Пришли фото с выражением, уравнением или задачей, верну ответы.\n" +
	"Присваивания (x = 5) запоминаются и подставляются в следующие фото.\n" +
	"Команды: /vars, /reset, /engine {gemini|gpt}, /help"

func (r *Router) HandleUpdate(upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	if upd.Message.IsCommand() {
		r.HandleCommand(*upd.Message)
		return
	}
	if len(upd.Message.Photo) > 0 {
		r.acceptPhoto(*upd.Message)
		return
	}
	if upd.Message.Text != "" {
		r.send(upd.Message.Chat.ID, "Нужна картинка. "+helpText)
	}
}

func (r *Router) HandleCommand(msg tgbotapi.Message) {
	cid := msg.Chat.ID
	ctx := context.Background()
	switch msg.Command() {
	case "start", "help":
		r.send(cid, helpText)
	case "vars":
		vars, err := store.LoadOrEmpty(ctx, r.Vars, sessionKey(cid))
		if err != nil {
			r.SendError(cid, err)
			return
		}
		r.sendMarkdown(cid, formatVars(vars))
	case "reset":
		if err := r.Vars.Delete(ctx, sessionKey(cid)); err != nil {
			r.SendError(cid, err)
			return
		}
		r.send(cid, "Переменные очищены.")
	case "engine":
		r.handleEngineCommand(cid, msg.CommandArguments())
	default:
		r.send(cid, "Неизвестная команда")
	}
}

// handleEngineCommand переключает движок для чата.
//
//	/engine
//	/engine gemini
//	/engine gpt
func (r *Router) handleEngineCommand(chatID int64, args string) {
	name := strings.ToLower(strings.TrimSpace(args))
	switch name {
	case "":
		r.send(chatID, "Текущий движок: "+r.engine(chatID)+"\nИспользование: /engine {gemini|gpt}")
	case "gemini", "gpt", "openai":
		if name == "openai" {
			name = "gpt"
		}
		r.engines.Store(chatID, name)
		r.send(chatID, "✅ Движок: "+name)
	default:
		r.send(chatID, "Неизвестный движок. Доступны: gemini | gpt")
	}
}

func (r *Router) engine(chatID int64) string {
	if v, ok := r.engines.Load(chatID); ok {
		return v.(string)
	}
	return "gemini"
}

func (r *Router) debounce() time.Duration {
	if r.Debounce > 0 {
		return r.Debounce
	}
	return debounce
}

func sessionKey(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

func (r *Router) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := r.Bot.Send(msg); err != nil {
		r.Log.Warn().Err(err).Int64("chat_id", chatID).Msg("telegram send failed")
	}
}

func (r *Router) sendMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := r.Bot.Send(msg); err != nil {
		r.Log.Warn().Err(err).Int64("chat_id", chatID).Msg("telegram send failed")
	}
}

func (r *Router) SendError(chatID int64, err error) {
	r.Log.Error().Err(err).Int64("chat_id", chatID).Msg("request failed")
	r.send(chatID, fmt.Sprintf("Ошибка: %v", err))
}
