package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/PlantDoctor/internal/catalog"
	"github.com/digkill/PlantDoctor/internal/config"
	"github.com/digkill/PlantDoctor/internal/diagnosis"
	"github.com/digkill/PlantDoctor/internal/entitlement"
	"github.com/digkill/PlantDoctor/internal/repository"
	"github.com/digkill/PlantDoctor/internal/service"
	"github.com/digkill/PlantDoctor/internal/storage"
	"github.com/digkill/PlantDoctor/internal/watering"
)

const maxPhotoBytes = 10 << 20

// botAPI is the part of *tgbotapi.BotAPI the bot uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Bot struct {
	api        botAPI
	log        *slog.Logger
	sessions   *service.SessionService
	diagnoses  *service.DiagnosisService
	plants     *service.PlantService
	home       *service.HomeService
	catalog    catalog.Catalog
	state      *StateManager
	httpClient *http.Client
	now        func() time.Time
}

func NewBot(cfg config.Config, api botAPI, log *slog.Logger, sessions *service.SessionService, diagnoses *service.DiagnosisService, plants *service.PlantService, home *service.HomeService, cat catalog.Catalog) *Bot {
	return &Bot{
		api:        api,
		log:        log,
		sessions:   sessions,
		diagnoses:  diagnoses,
		plants:     plants,
		home:       home,
		catalog:    cat,
		state:      NewStateManager(),
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		now:        time.Now,
	}
}

func scopeFor(chatID int64) string {
	return fmt.Sprintf("tg:%d", chatID)
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started")

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	if fileID, ok := imageFileID(msg); ok {
		chat := b.state.Get(chatID)
		if chat.State == StateAwaitingPhoto {
			b.handleProgressPhoto(ctx, chatID, fileID, chat)
			return
		}
		b.startDiagnosis(ctx, chatID, fileID, msg.Caption)
		return
	}
	if msg.Document != nil {
		b.sendText(chatID, "That file is not an image. Send a photo of your plant.")
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	chat := b.state.Get(chatID)
	switch chat.State {
	case StateAwaitingChanges:
		chat.Questionnaire.RecentChanges = strings.TrimSpace(msg.Text)
		b.runDiagnosis(ctx, chatID, chat)
	case StateAwaitingPhoto:
		b.sendText(chatID, "Send the new photo of the plant, or /start to cancel.")
	case StateIdle:
		b.sendText(chatID, "Send a photo of your plant to start a diagnosis. The caption becomes its name.")
	default:
		b.sendText(chatID, "Please pick one of the options above.")
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	args := strings.Fields(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		b.state.Reset(chatID)
		b.sendText(chatID, helpText)
	case "signup", "login":
		b.handleCredentials(ctx, msg, args)
	case "logout":
		b.state.Reset(chatID)
		if err := b.sessions.LogOut(ctx, scopeFor(chatID)); err != nil {
			b.replyError(chatID, err)
			return
		}
		b.sendText(chatID, "Signed out.")
	case "plants":
		b.withSession(ctx, chatID, func(sess service.Session) error {
			plants, err := b.plants.List(ctx, sess)
			if err != nil {
				return err
			}
			b.sendText(chatID, formatPlants(plants, b.now()))
			return nil
		})
	case "usage":
		b.withSession(ctx, chatID, func(sess service.Session) error {
			home, err := b.home.Load(ctx, sess)
			if err != nil {
				return err
			}
			b.sendText(chatID, formatUsage(home))
			return nil
		})
	case "upgrade":
		b.withSession(ctx, chatID, func(sess service.Session) error {
			if _, err := b.sessions.Upgrade(ctx, sess); err != nil {
				return err
			}
			b.sendText(chatID, "You are now on premium. Plants, diagnoses and photos are unlimited.")
			return nil
		})
	case "water":
		b.withPlant(ctx, chatID, args, func(sess service.Session, id int64) error {
			plant, err := b.plants.MarkWatered(ctx, sess, id, 0)
			if err != nil {
				return err
			}
			b.sendText(chatID, fmt.Sprintf("Watered %s. Next watering: %s.", plant.Name,
				watering.Status(plant.WateringSchedule.NextWatering, b.now())))
			return nil
		})
	case "delete":
		b.withPlant(ctx, chatID, args, func(sess service.Session, id int64) error {
			if err := b.plants.Delete(ctx, sess, id); err != nil {
				return err
			}
			b.sendText(chatID, fmt.Sprintf("Plant #%d deleted.", id))
			return nil
		})
	case "photo":
		b.withPlant(ctx, chatID, args, func(sess service.Session, id int64) error {
			plant, err := b.plants.Get(ctx, sess, id)
			if err != nil {
				return err
			}
			b.state.Set(chatID, Chat{
				State:        StateAwaitingPhoto,
				PhotoPlantID: plant.ID,
				PhotoNotes:   strings.Join(args[1:], " "),
			})
			b.sendText(chatID, fmt.Sprintf("Send the new photo of %s.", plant.Name))
			return nil
		})
	default:
		b.sendText(chatID, "Unknown command. Send /start to see what I can do.")
	}
}

const helpText = `I diagnose sick houseplants and remind you when to water them.

/signup <email> <password> - create an account
/login <email> <password> - sign in
/logout - sign out
Send a photo (caption = plant name) - start a diagnosis
/plants - your plants and watering status
/water <id> - mark a plant as watered
/photo <id> [notes] - add a progress photo
/delete <id> - remove a plant
/usage - plan and monthly usage
/upgrade - switch to premium`

func (b *Bot) handleCredentials(ctx context.Context, msg *tgbotapi.Message, args []string) {
	chatID := msg.Chat.ID
	command := msg.Command()

	// The message carries a password; drop it from the chat history.
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, msg.MessageID)); err != nil {
		b.log.Warn("delete credentials message", "err", err)
	}

	if len(args) != 2 {
		b.sendText(chatID, fmt.Sprintf("Usage: /%s <email> <password>", command))
		return
	}

	scope := scopeFor(chatID)
	var (
		sess service.Session
		err  error
	)
	if command == "signup" {
		sess, err = b.sessions.SignUp(ctx, scope, args[0], args[1])
	} else {
		sess, err = b.sessions.LogIn(ctx, scope, args[0], args[1])
	}
	switch {
	case errors.Is(err, service.ErrAlreadyExists):
		b.sendText(chatID, "An account with that email already exists. Use /login instead.")
		return
	case errors.Is(err, service.ErrNotFound):
		b.sendText(chatID, "No account with that email. Use /signup to create one.")
		return
	case errors.Is(err, service.ErrInvalidCredential):
		b.sendText(chatID, "Wrong email or password.")
		return
	case err != nil:
		b.replyError(chatID, err)
		return
	}
	b.state.Reset(chatID)
	b.sendText(chatID, fmt.Sprintf("Signed in as %s. Send a photo of a plant to get started.", sess.User.Email))
}

func (b *Bot) startDiagnosis(ctx context.Context, chatID int64, fileID, caption string) {
	b.withSession(ctx, chatID, func(sess service.Session) error {
		if err := b.diagnoses.Precheck(ctx, sess); err != nil {
			return err
		}
		data, contentType, err := b.downloadFile(ctx, fileID)
		if err != nil {
			return err
		}

		name := strings.TrimSpace(caption)
		if name == "" {
			name = "My Plant"
		}
		b.state.Set(chatID, Chat{
			State:     StateAwaitingLight,
			PlantName: name,
			Image:     data,
			MediaType: contentType,
		})
		b.sendKeyboard(chatID, "How much light does it get?", optionKeyboard(callbackLight, b.catalog.Light))
		return nil
	})
}

func (b *Bot) runDiagnosis(ctx context.Context, chatID int64, chat Chat) {
	b.withSession(ctx, chatID, func(sess service.Session) error {
		b.sendText(chatID, "Analyzing your plant...")

		out, err := b.diagnoses.Diagnose(ctx, sess, diagnosis.Request{
			Image:         chat.Image,
			MediaType:     chat.MediaType,
			PlantName:     chat.PlantName,
			Questionnaire: chat.Questionnaire,
		})
		if err != nil {
			b.state.Reset(chatID)
			return err
		}

		chat.State = StateAwaitingSave
		d := out.Diagnosis
		chat.Diagnosis = &d
		b.state.Set(chatID, chat)

		text := formatDiagnosis(out.Diagnosis)
		if !out.Succeeded() {
			text += "\n\nThis attempt was not counted against your monthly diagnoses."
		}
		b.sendKeyboard(chatID, text, saveKeyboard())
		return nil
	})
}

func (b *Bot) savePlant(ctx context.Context, chatID int64, chat Chat) {
	b.withSession(ctx, chatID, func(sess service.Session) error {
		if chat.Diagnosis == nil {
			b.state.Reset(chatID)
			b.sendText(chatID, "Nothing to save. Send a photo to start a new diagnosis.")
			return nil
		}
		plant, err := b.plants.Create(ctx, sess, service.NewPlant{
			Name:          chat.PlantName,
			Questionnaire: chat.Questionnaire,
			Diagnosis:     *chat.Diagnosis,
			Image:         chat.Image,
			ContentType:   chat.MediaType,
		})
		if err != nil {
			return err
		}
		b.state.Reset(chatID)
		b.sendText(chatID, fmt.Sprintf("Saved %s as #%d. Next watering: %s.", plant.Name, plant.ID,
			watering.Status(plant.WateringSchedule.NextWatering, b.now())))
		return nil
	})
}

func (b *Bot) handleProgressPhoto(ctx context.Context, chatID int64, fileID string, chat Chat) {
	b.withSession(ctx, chatID, func(sess service.Session) error {
		data, contentType, err := b.downloadFile(ctx, fileID)
		if err != nil {
			return err
		}
		plant, err := b.plants.AddPhoto(ctx, sess, chat.PhotoPlantID, service.Photo{
			Image:       data,
			ContentType: contentType,
			Notes:       chat.PhotoNotes,
		}, 0)
		b.state.Reset(chatID)
		if err != nil {
			return err
		}
		b.sendText(chatID, fmt.Sprintf("Photo added to %s (%d in total).", plant.Name, len(plant.ProgressPhotos)))
		return nil
	})
}

// withSession runs fn for the signed-in user of the chat and reports any
// error back to the chat.
func (b *Bot) withSession(ctx context.Context, chatID int64, fn func(service.Session) error) {
	sess, err := b.sessions.Current(ctx, scopeFor(chatID))
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	if sess == nil {
		b.state.Reset(chatID)
		b.sendText(chatID, "Please /signup or /login first.")
		return
	}
	if err := fn(*sess); err != nil {
		b.replyError(chatID, err)
	}
}

func (b *Bot) withPlant(ctx context.Context, chatID int64, args []string, fn func(service.Session, int64) error) {
	if len(args) == 0 {
		b.sendText(chatID, "Which plant? Add its number, for example /water 1712345678901. See /plants.")
		return
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil {
		b.sendText(chatID, fmt.Sprintf("%q is not a plant number. See /plants.", args[0]))
		return
	}
	b.withSession(ctx, chatID, func(sess service.Session) error {
		return fn(sess, id)
	})
}

func (b *Bot) replyError(chatID int64, err error) {
	var quota *entitlement.QuotaExceededError
	switch {
	case errors.As(err, &quota):
		b.state.Reset(chatID)
		b.sendText(chatID, formatQuota(quota))
	case errors.Is(err, service.ErrValidation):
		b.sendText(chatID, err.Error())
	case errors.Is(err, service.ErrNotFound):
		b.sendText(chatID, "Plant not found. See /plants.")
	case errors.Is(err, service.ErrVersionConflict):
		b.sendText(chatID, "The plant changed meanwhile. Please try again.")
	case errors.Is(err, repository.ErrStorageWrite):
		b.log.Error("storage write failed", "chat_id", chatID, "err", err)
		b.sendText(chatID, "Could not save your changes. Please try again in a moment.")
	default:
		b.log.Error("telegram handler error", "chat_id", chatID, "err", err)
		b.sendText(chatID, "Something went wrong, please try again.")
	}
}

func imageFileID(msg *tgbotapi.Message) (string, bool) {
	if n := len(msg.Photo); n > 0 {
		// Sizes are ordered smallest first.
		return msg.Photo[n-1].FileID, true
	}
	if msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/") {
		return msg.Document.FileID, true
	}
	return "", false
}

func (b *Bot) downloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, "", fmt.Errorf("get file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("telegram file status: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read file body: %w", err)
	}
	if len(body) > maxPhotoBytes {
		return nil, "", fmt.Errorf("%w: photo is larger than %d MB", service.ErrValidation, maxPhotoBytes>>20)
	}
	return body, storage.ContentType(body, resp.Header.Get("Content-Type")), nil
}

func (b *Bot) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send text", "err", err)
	}
}

func (b *Bot) sendKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send keyboard", "err", err)
	}
}
