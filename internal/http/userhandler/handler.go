package userhandler

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"sync"

	"chatrelay/internal/services/chatstore"
	"chatrelay/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const anonymousSender = "Anonymous"

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)
	registerOnce    sync.Once
)

// PresenceSource yields the live presence snapshot.
type PresenceSource interface {
	Snapshot(ctx context.Context) (ws.UsersPayload, error)
}

type Handler struct {
	store    chatstore.IChatStore
	presence PresenceSource
}

func New(store chatstore.IChatStore, presence PresenceSource) *Handler {
	registerOnce.Do(registerValidators)
	return &Handler{store: store, presence: presence}
}

func registerValidators() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		zap.L().Warn("userhandler.validator_engine", zap.String("reason", "not go-playground"))
		return
	}
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
}

func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/set_username", h.setUsername)
	r.POST("/send_message", h.sendMessage)
	r.GET("/users", h.users)
}

// @Summary		Bind a display name to a device
// @Description	Stores the name used by every future connection that authenticates with this device id.
// @Tags			Users
// @Accept			json
// @Produce		json
// @Param			body	body		SetUsernameBody	true	"Device and name"
// @Success		200		{object}	SuccessResponse
// @Failure		400		{object}	ErrorResponse
// @Failure		500		{object}	ErrorResponse
// @Router			/set_username [post]
func (h *Handler) setUsername(ginCtx *gin.Context) {
	var body SetUsernameBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: bindError(err)})
		return
	}

	if err := h.store.SetUsername(ginCtx.Request.Context(), body.Device, body.Name); err != nil {
		zap.L().Error("userhandler.set_username", zap.Error(err))
		ginCtx.JSON(http.StatusInternalServerError, &ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.JSON(http.StatusOK, &SuccessResponse{Success: "True"})
}

// @Summary		Append a message without broadcasting it
// @Description	Persists a message to a room under the device's name, or Anonymous when the device has none. Live members are not notified.
// @Tags			Messages
// @Accept			json
// @Produce		json
// @Param			body	body		SendMessageBody	true	"Message payload"
// @Success		200		{object}	OkResponse
// @Failure		400		{object}	ErrorResponse
// @Failure		500		{object}	ErrorResponse
// @Router			/send_message [post]
func (h *Handler) sendMessage(ginCtx *gin.Context) {
	var body SendMessageBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: bindError(err)})
		return
	}
	ctx := ginCtx.Request.Context()

	name, ok, err := h.store.GetUsername(ctx, body.Device)
	if err != nil {
		zap.L().Error("userhandler.get_username", zap.Error(err))
		ginCtx.JSON(http.StatusInternalServerError, &ErrorResponse{Error: err.Error()})
		return
	}
	if !ok || name == "" {
		name = anonymousSender
	}

	if err := h.store.AppendMessage(ctx, body.Room, name, body.Message); err != nil {
		zap.L().Error("userhandler.append_message", zap.Error(err))
		ginCtx.JSON(http.StatusInternalServerError, &ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.JSON(http.StatusOK, &OkResponse{Ok: true})
}

// @Summary		Presence snapshot
// @Description	Names with a live connection plus every name ever bound to a device.
// @Tags			Users
// @Produce		json
// @Success		200	{object}	ws.UsersPayload
// @Failure		500	{object}	ErrorResponse
// @Router			/users [get]
func (h *Handler) users(ginCtx *gin.Context) {
	snap, err := h.presence.Snapshot(ginCtx.Request.Context())
	if err != nil {
		ginCtx.JSON(http.StatusInternalServerError, &ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.JSON(http.StatusOK, snap)
}

func bindError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Invalid JSON"
	}
	for _, fe := range verrs {
		if fe.Tag() == "username" {
			return "Username must be 3 - 20 characters"
		}
	}
	return "Missing fields"
}
