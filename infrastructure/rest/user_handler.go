package rest

import (
	"dm-lab/auth"
	"dm-lab/domain"
	"dm-lab/errors"
	"dm-lab/infrastructure/storage"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

type ProfileRequest struct {
	Username  string `json:"username" validate:"required,max=64"`
	FullName  string `json:"fullName" validate:"max=128"`
	AvatarURL string `json:"avatarUrl" validate:"omitempty,url"`
}

// UserHandler lets an identified caller publish its profile to the
// directory and look up the profiles of others.
type UserHandler struct {
	log   *slog.Logger
	users storage.IUserRepository
}

func NewUserHandler(log *slog.Logger, users storage.IUserRepository) *UserHandler {
	return &UserHandler{log: log, users: users}
}

func (h *UserHandler) Register(group *gin.RouterGroup) {
	group.PUT("/me", h.SaveProfile)
	group.GET("/:userId", h.Get)
}

func (h *UserHandler) SaveProfile(c *gin.Context) {
	var body ProfileRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, errors.Validation("malformed body"))
		return
	}
	if err := auth.ValidatePayload(body); err != nil {
		h.fail(c, err)
		return
	}
	user := domain.User{
		ID:        auth.UserID(c),
		Username:  body.Username,
		FullName:  body.FullName,
		AvatarURL: body.AvatarURL,
		IsActive:  true,
	}
	if err := h.users.Save(user); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toUserView(user)})
}

func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.users.GetUser(c.Param("userId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if !user.IsActive {
		h.fail(c, errors.NotFound("user %s", user.ID))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toUserView(user)})
}

func (h *UserHandler) fail(c *gin.Context, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error":   errors.Code(err),
		"message": errors.Message(err),
	})
}
