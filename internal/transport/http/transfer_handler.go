package httptransport

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fileoff/backend/internal/monitoring"
	"fileoff/backend/internal/service"
	"fileoff/backend/internal/storage"
)

// TransferHandler 处理文件传输相关的 HTTP 请求
type TransferHandler struct {
	transfers *service.TransferService
	metrics   *monitoring.Metrics // 可以为 nil
	log       *zap.Logger
}

// NewTransferHandler 创建传输处理器
func NewTransferHandler(transfers *service.TransferService, metrics *monitoring.Metrics, log *zap.Logger) *TransferHandler {
	return &TransferHandler{
		transfers: transfers,
		metrics:   metrics,
		log:       log.With(zap.String("component", "transfer_handler")),
	}
}

type transferResponse struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType,omitempty"`
	Receiver  string `json:"receiver"`
	CreatedAt string `json:"createdAt"`
	ExpireAt  string `json:"expireAt"`
}

// Upload 处理文件上传
//
// multipart 表单：file 为文件内容，receiver 为接收者登录名，
// expires_in 为可选的过期时长（如 "72h"），非法值回落到默认值。
func (h *TransferHandler) Upload(c *gin.Context) {
	senderID := c.GetString("userID")
	receiver := c.PostForm("receiver")
	expiresIn := c.PostForm("expires_in")

	fileHeader, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, T(c, msgFileRequired))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.log.Error("failed to open multipart file", zap.Error(err))
		InternalError(c, T(c, msgUploadFailed))
		return
	}
	defer file.Close()

	transfer, err := h.transfers.Upload(c.Request.Context(), service.UploadInput{
		SenderID:      senderID,
		ReceiverLogin: receiver,
		Filename:      fileHeader.Filename,
		MimeType:      fileHeader.Header.Get("Content-Type"),
		ExpiresIn:     expiresIn,
		Content:       file,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordUpload(transfer.Size)
	}

	Created(c, T(c, msgUploadOK), transferResponse{
		Filename:  transfer.Filename,
		Size:      transfer.Size,
		MimeType:  transfer.MimeType,
		Receiver:  receiver,
		CreatedAt: transfer.CreatedAt.Format(timeLayout),
		ExpireAt:  transfer.ExpireAt.Format(timeLayout),
	})
}

// Download 处理文件下载
//
// 接收者按文件名取文件，流式返回；传输完整结束后删除记录和内容。
// 客户端中途断开时记录保留，可以重新下载。
func (h *TransferHandler) Download(c *gin.Context) {
	receiverID := c.GetString("userID")
	filename := c.Query("filename")
	if filename == "" {
		BadRequest(c, T(c, msgFilenameRequired))
		return
	}

	transfer, content, err := h.transfers.BeginDownload(receiverID, filename)
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer content.Close()

	contentType := transfer.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": filepath.Base(transfer.Filename),
	}))
	c.Header("Content-Type", contentType)
	c.Header("Content-Length", strconv.FormatInt(transfer.Size, 10))

	written, err := io.Copy(c.Writer, content)
	if err != nil || written != transfer.Size {
		// 传输不完整，保留记录让接收者重试
		h.log.Warn("download interrupted",
			zap.String("transfer_id", transfer.ID),
			zap.Int64("written", written),
			zap.Int64("size", transfer.Size),
			zap.Error(err),
		)
		return
	}

	if err := h.transfers.CompleteDownload(transfer); err != nil {
		h.log.Error("failed to complete download",
			zap.String("transfer_id", transfer.ID),
			zap.Error(err),
		)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordDownload()
	}
}

type deleteRequest struct {
	Receiver string `form:"receiver" binding:"required"`
	Filename string `form:"filename" binding:"required"`
}

// Delete 发送者撤回一条未被下载的传输
func (h *TransferHandler) Delete(c *gin.Context) {
	senderID := c.GetString("userID")

	var req deleteRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		BadRequest(c, T(c, msgInvalidRequest))
		return
	}

	if err := h.transfers.Delete(senderID, req.Receiver, req.Filename); err != nil {
		h.writeError(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordDelete()
	}

	SuccessWithMsg(c, T(c, msgDeleteOK), nil)
}

// ListSent 已发送且未被取走的文件
//
// 空结果返回 404，客户端把它当作"没有待取文件"的正常状态。
func (h *TransferHandler) ListSent(c *gin.Context) {
	userID := c.GetString("userID")

	entries, err := h.transfers.ListSent(userID)
	if err != nil {
		h.log.Error("failed to list sent files", zap.Error(err))
		InternalError(c, T(c, msgInternalError))
		return
	}

	if len(entries) == 0 {
		NotFound(c, T(c, msgNoSentFiles))
		return
	}

	Success(c, entries)
}

// ListReceived 等待当前用户下载的文件
func (h *TransferHandler) ListReceived(c *gin.Context) {
	userID := c.GetString("userID")

	entries, err := h.transfers.ListReceived(userID)
	if err != nil {
		h.log.Error("failed to list received files", zap.Error(err))
		InternalError(c, T(c, msgInternalError))
		return
	}

	if len(entries) == 0 {
		NotFound(c, T(c, msgNoReceivedFiles))
		return
	}

	Success(c, entries)
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

// writeError 把业务错误翻译成 HTTP 响应
func (h *TransferHandler) writeError(c *gin.Context, err error) {
	key, known := errKey(err)
	if !known {
		h.log.Error("unexpected error", zap.Error(err))
		InternalError(c, T(c, msgInternalError))
		return
	}

	switch {
	case errors.Is(err, storage.ErrTransferNotFound):
		NotFound(c, T(c, key))
	case errors.Is(err, storage.ErrTransferExists):
		Conflict(c, T(c, key))
	case errors.Is(err, service.ErrReceiverNotFound):
		NotFound(c, T(c, key))
	case errors.Is(err, service.ErrSelfTransfer),
		errors.Is(err, service.ErrFilenameRequired):
		BadRequest(c, T(c, key))
	case errors.Is(err, service.ErrFileTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, Response{
			Code: http.StatusRequestEntityTooLarge,
			Msg:  T(c, key),
		})
	default:
		InternalError(c, T(c, key))
	}
}
