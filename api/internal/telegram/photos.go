package telegram

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"math-canvas/api/internal/imaging"
	"math-canvas/api/internal/store"
)

func (r *Router) acceptPhoto(msg tgbotapi.Message) {
	cid := msg.Chat.ID
	ph := msg.Photo[len(msg.Photo)-1]
	url, err := r.Bot.GetFileDirectURL(ph.FileID)
	if err != nil {
		r.SendError(cid, err)
		return
	}
	imgBytes, err := download(context.Background(), url)
	if err != nil {
		r.SendError(cid, err)
		return
	}

	key := "chat:" + fmt.Sprint(cid)
	if msg.MediaGroupID != "" {
		key = "grp:" + msg.MediaGroupID
	}
	r.enqueue(key, cid, msg.MediaGroupID, imgBytes)
}

// enqueue добавляет страницу в живой батч и перезапускает debounce.
// processBatch удаляет ключ под b.mu, поэтому после Lock проверяем, что батч ещё в карте.
func (r *Router) enqueue(key string, chatID int64, mediaGroupID string, img []byte) *photoBatch {
	for {
		bi, _ := r.batches.LoadOrStore(key, &photoBatch{
			ChatID: chatID, Key: key, MediaGroupID: mediaGroupID, images: make([][]byte, 0, 4),
		})
		b := bi.(*photoBatch)

		b.mu.Lock()
		if cur, ok := r.batches.Load(key); !ok || cur != b {
			b.mu.Unlock()
			continue
		}
		b.images = append(b.images, img)
		if b.timer != nil {
			b.timer.Stop()
		}
		b.timer = time.AfterFunc(r.debounce(), func() { r.processBatch(key) })
		b.mu.Unlock()
		return b
	}
}

func (r *Router) processBatch(key string) {
	bi, ok := r.batches.Load(key)
	if !ok {
		return
	}
	b := bi.(*photoBatch)

	b.mu.Lock()
	images := append([][]byte(nil), b.images...)
	chatID := b.ChatID
	r.batches.Delete(key)
	b.mu.Unlock()

	if len(images) == 0 {
		return
	}
	merged, err := combineAsOne(images)
	if err != nil {
		r.SendError(chatID, fmt.Errorf("склейка: %w", err))
		return
	}
	r.solve(context.Background(), chatID, merged)
}

// solve: один вызов бэкенда со словарём чата; присваивания сохраняются в store.
func (r *Router) solve(ctx context.Context, chatID int64, pngBytes []byte) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	key := sessionKey(chatID)
	vars, err := store.LoadOrEmpty(ctx, r.Vars, key)
	if err != nil {
		r.SendError(chatID, err)
		return
	}

	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
	answers, err := r.Calc(r.engine(chatID)).Calculate(ctx, dataURL, vars.Clone())
	if err != nil {
		r.SendError(chatID, err)
		return
	}

	if n := vars.Merge(answers); n > 0 {
		if err := r.Vars.Save(ctx, key, vars); err != nil {
			r.Log.Error().Err(err).Int64("chat_id", chatID).Msg("save variables failed")
		}
	}
	r.Log.Info().Int64("chat_id", chatID).Int("answers", len(answers)).Msg("solved")
	r.sendMarkdown(chatID, formatAnswers(answers))
}

// combineAsOne склеивает страницы альбома вертикально на белом фоне и отдаёт PNG.
func combineAsOne(images [][]byte) ([]byte, error) {
	decoded := make([]image.Image, 0, len(images))
	maxW, sumH := 0, 0
	for _, b := range images {
		img, _, err := image.Decode(bytes.NewReader(b))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", imaging.ErrBadImage, err)
		}
		decoded = append(decoded, img)
		maxW = max(maxW, img.Bounds().Dx())
		sumH += img.Bounds().Dy()
	}
	if maxW == 0 || sumH == 0 {
		return nil, fmt.Errorf("пустые изображения")
	}

	dst := image.NewRGBA(image.Rect(0, 0, maxW, sumH))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	y := 0
	for _, img := range decoded {
		w, h := img.Bounds().Dx(), img.Bounds().Dy()
		x := (maxW - w) / 2
		draw.Draw(dst, image.Rect(x, y, x+w, y+h), img, img.Bounds().Min, draw.Over)
		y += h
	}

	var out bytes.Buffer
	if err := png.Encode(&out, imaging.Fit(dst, maxPixels)); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	return io.ReadAll(resp.Body)
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}
