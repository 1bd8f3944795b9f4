package telegram

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"math-canvas/api/internal/calc/types"
	"math-canvas/api/internal/store"
)

type fakeBot struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		b.sent = append(b.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func (b *fakeBot) GetFileDirectURL(string) (string, error) { return "", errors.New("offline") }

func (b *fakeBot) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sent)
}

func (b *fakeBot) last() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sent) == 0 {
		return ""
	}
	return b.sent[len(b.sent)-1].Text
}

type fakeCalc struct {
	vars    []types.Variables
	answers []types.Answer
	err     error
}

func (f *fakeCalc) Calculate(_ context.Context, image string, vars types.Variables) ([]types.Answer, error) {
	f.vars = append(f.vars, vars)
	return f.answers, f.err
}

func newTestRouter(calc *fakeCalc) (*Router, *fakeBot, *store.MemoryStore, *[]string) {
	bot := &fakeBot{}
	vars := store.NewMemoryStore()
	var engines []string
	r := NewRouter(bot, func(name string) Calculator {
		engines = append(engines, name)
		return calc
	}, vars)
	r.Log = zerolog.Nop()
	return r, bot, vars, &engines
}

func command(chatID int64, text string) tgbotapi.Update {
	cmdLen := len(text)
	if i := strings.IndexByte(text, ' '); i > 0 {
		cmdLen = i
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
	}}
}

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSolve_MergesAssignmentsAcrossPhotos(t *testing.T) {
	calc := &fakeCalc{answers: []types.Answer{{Expr: "x", Result: types.Int(5), Assign: true}}}
	r, bot, vars, engines := newTestRouter(calc)
	ctx := context.Background()

	r.solve(ctx, 7, pngBytes(t, 4, 4, color.Black))
	assert.Equal(t, "x = 5 📌", bot.last())

	calc.answers = []types.Answer{{Expr: "x + 1", Result: types.Int(6)}}
	r.solve(ctx, 7, pngBytes(t, 4, 4, color.Black))
	assert.Equal(t, "x + 1 = 6", bot.last())

	require.Len(t, calc.vars, 2)
	assert.Empty(t, calc.vars[0])
	assert.True(t, types.Int(5).Equal(calc.vars[1]["x"]))

	saved, err := vars.Load(ctx, "7")
	require.NoError(t, err)
	assert.Len(t, saved, 1)
	assert.Equal(t, []string{"gemini", "gemini"}, *engines)
}

func TestSolve_ErrorKeepsVariables(t *testing.T) {
	calc := &fakeCalc{err: errors.New("backend down")}
	r, bot, vars, _ := newTestRouter(calc)
	ctx := context.Background()
	require.NoError(t, vars.Save(ctx, "7", types.Variables{"y": types.Int(2)}))

	r.solve(ctx, 7, pngBytes(t, 2, 2, color.White))
	assert.Contains(t, bot.last(), "backend down")

	saved, err := vars.Load(ctx, "7")
	require.NoError(t, err)
	assert.True(t, types.Int(2).Equal(saved["y"]))
}

func TestCommands_VarsAndReset(t *testing.T) {
	r, bot, vars, _ := newTestRouter(&fakeCalc{})
	ctx := context.Background()
	require.NoError(t, vars.Save(ctx, "9", types.Variables{"b": types.String("side_b"), "a": types.Int(1)}))

	r.HandleUpdate(command(9, "/vars"))
	assert.Equal(t, "Переменные:\na = 1\nb = \"side\\_b\"", bot.last())

	r.HandleUpdate(command(9, "/reset"))
	assert.Equal(t, "Переменные очищены.", bot.last())
	_, err := vars.Load(ctx, "9")
	assert.ErrorIs(t, err, store.ErrNotFound)

	r.HandleUpdate(command(9, "/vars"))
	assert.Equal(t, "Переменных нет.", bot.last())
}

func TestCommands_Engine(t *testing.T) {
	calc := &fakeCalc{}
	r, bot, _, engines := newTestRouter(calc)

	r.HandleUpdate(command(3, "/engine openai"))
	assert.Equal(t, "✅ Движок: gpt", bot.last())
	r.HandleUpdate(command(3, "/engine yandex"))
	assert.Contains(t, bot.last(), "Неизвестный движок")

	r.solve(context.Background(), 3, pngBytes(t, 2, 2, color.White))
	r.solve(context.Background(), 4, pngBytes(t, 2, 2, color.White))
	assert.Equal(t, []string{"gpt", "gemini"}, *engines)
}

func TestHandleUpdate_TextAndUnknown(t *testing.T) {
	r, bot, _, _ := newTestRouter(&fakeCalc{})
	r.HandleUpdate(tgbotapi.Update{})
	assert.Empty(t, bot.sent)

	r.HandleUpdate(tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}, Text: "2+2"}})
	assert.Contains(t, bot.last(), "Нужна картинка")

	r.HandleUpdate(command(1, "/nope"))
	assert.Equal(t, "Неизвестная команда", bot.last())
}

func TestProcessBatch_StitchesAndSolves(t *testing.T) {
	calc := &fakeCalc{answers: []types.Answer{{Expr: "1+1", Result: types.Int(2)}}}
	r, bot, _, _ := newTestRouter(calc)
	r.batches.Store("grp:1", &photoBatch{
		ChatID: 5, Key: "grp:1",
		images: [][]byte{pngBytes(t, 10, 5, color.Black), pngBytes(t, 6, 7, color.Black)},
	})

	r.processBatch("grp:1")
	assert.Equal(t, "1+1 = 2", bot.last())
	_, ok := r.batches.Load("grp:1")
	assert.False(t, ok)
}

func TestEnqueue_DetachedBatchIsNotReused(t *testing.T) {
	r, _, _, _ := newTestRouter(&fakeCalc{})
	r.Debounce = time.Hour

	old := r.enqueue("grp:1", 5, "1", []byte("page-1"))
	defer old.timer.Stop()

	// processBatch держит b.mu и снимает ключ из карты
	old.mu.Lock()
	done := make(chan *photoBatch)
	go func() { done <- r.enqueue("grp:1", 5, "1", []byte("page-2")) }()
	r.batches.Delete("grp:1")
	old.mu.Unlock()

	got := <-done
	defer got.timer.Stop()
	assert.NotSame(t, old, got)
	assert.Equal(t, [][]byte{[]byte("page-1")}, old.images)
	assert.Equal(t, [][]byte{[]byte("page-2")}, got.images)

	cur, ok := r.batches.Load("grp:1")
	require.True(t, ok)
	assert.Same(t, got, cur)
}

func TestEnqueue_DebounceFlushesAlbumOnce(t *testing.T) {
	calc := &fakeCalc{answers: []types.Answer{{Expr: "1+1", Result: types.Int(2)}}}
	r, bot, _, _ := newTestRouter(calc)
	r.Debounce = 20 * time.Millisecond

	first := r.enqueue("grp:7", 5, "7", pngBytes(t, 4, 4, color.Black))
	second := r.enqueue("grp:7", 5, "7", pngBytes(t, 4, 4, color.White))
	assert.Same(t, first, second)

	assert.Eventually(t, func() bool { return bot.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "1+1 = 2", bot.last())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, bot.count())
}

func TestCombineAsOne(t *testing.T) {
	out, err := combineAsOne([][]byte{pngBytes(t, 10, 5, color.Black), pngBytes(t, 6, 7, color.Black)})
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 10, 12), img.Bounds())

	// поля вокруг узкой страницы остаются белыми
	r, g, b, _ := img.At(0, 8).RGBA()
	assert.Equal(t, []uint32{0xffff, 0xffff, 0xffff}, []uint32{r, g, b})

	_, err = combineAsOne([][]byte{[]byte("nope")})
	assert.Error(t, err)
}

func TestFormatAnswers(t *testing.T) {
	assert.Contains(t, formatAnswers(nil), "Ничего не распознал")
	got := formatAnswers([]types.Answer{
		{Expr: "a*b", Result: types.String("x_1")},
		{Expr: "y", Result: types.Float(2.5), Assign: true},
	})
	assert.Equal(t, "a\\*b = x\\_1\ny = 2.5 📌", got)

	assert.Equal(t, "n = ?", formatAnswers([]types.Answer{{Expr: "n", Result: types.String("")}}))
}

func TestTruncate(t *testing.T) {
	s := strings.Repeat("я", maxMessageLen)
	out := truncate(s)
	assert.True(t, strings.HasSuffix(out, "…"))
	assert.LessOrEqual(t, len(out), maxMessageLen+len("…"))
	assert.Equal(t, "short", truncate("short"))
}
