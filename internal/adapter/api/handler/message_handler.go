package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"pairchat/internal/usecase"
	"pairchat/pkg/errors"
	"pairchat/pkg/response"
)

type MessageHandler struct {
	messageUseCase *usecase.MessageUseCase
	mediaUseCase   *usecase.MediaUseCase
}

func NewMessageHandler(messageUseCase *usecase.MessageUseCase, mediaUseCase *usecase.MediaUseCase) *MessageHandler {
	return &MessageHandler{
		messageUseCase: messageUseCase,
		mediaUseCase:   mediaUseCase,
	}
}

type createMessageRequest struct {
	ReceiverID string `json:"receiver_id" validate:"required"`
	Text       string `json:"text" validate:"max=4000"`
	Image      string `json:"image" validate:"omitempty,url"`
}

// Create persists a message and pushes it to the receiver when online.
func (h *MessageHandler) Create(c echo.Context) error {
	var req createMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	message, err := h.messageUseCase.Send(c.Request().Context(), userID, usecase.SendMessageInput{
		ReceiverID: req.ReceiverID,
		Text:       req.Text,
		Image:      req.Image,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, message)
}

// Get returns the conversation with a contact as the caller sees it.
func (h *MessageHandler) Get(c echo.Context) error {
	userID := c.Get("uid").(string)

	messages, err := h.messageUseCase.GetConversation(c.Request().Context(), userID, c.Param("contactId"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, messages)
}

func (h *MessageHandler) MarkRead(c echo.Context) error {
	userID := c.Get("uid").(string)

	n, err := h.messageUseCase.MarkRead(c.Request().Context(), userID, c.Param("contactId"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]int64{"updated": n})
}

// Delete tombstones one of the caller's own messages.
func (h *MessageHandler) Delete(c echo.Context) error {
	userID := c.Get("uid").(string)

	message, err := h.messageUseCase.DeleteOwn(c.Request().Context(), userID, c.Param("messageId"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, message)
}

func (h *MessageHandler) Star(c echo.Context) error {
	userID := c.Get("uid").(string)

	message, err := h.messageUseCase.ToggleStar(c.Request().Context(), userID, c.Param("messageId"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, message)
}

func (h *MessageHandler) Hide(c echo.Context) error {
	userID := c.Get("uid").(string)

	if err := h.messageUseCase.HideForMe(c.Request().Context(), userID, c.Param("messageId")); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"message": "Message hidden"})
}

func (h *MessageHandler) Clear(c echo.Context) error {
	userID := c.Get("uid").(string)

	result, err := h.messageUseCase.ClearConversation(c.Request().Context(), userID, c.Param("contactId"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, result)
}

// Upload stores the multipart "image" field and returns its public URL.
func (h *MessageHandler) Upload(c echo.Context) error {
	if h.mediaUseCase == nil {
		return response.Error(c, errors.New("MEDIA_DISABLED", "Media uploads are not configured", http.StatusServiceUnavailable, nil))
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		return response.Error(c, errors.BadRequest("Image file is required", err))
	}

	file, err := fileHeader.Open()
	if err != nil {
		return response.Error(c, errors.BadRequest("Failed to open uploaded file", err))
	}
	defer file.Close()

	userID := c.Get("uid").(string)

	result, err := h.mediaUseCase.UploadImage(c.Request().Context(), userID, file)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, result)
}
