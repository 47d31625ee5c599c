package httptransport

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"fileoff/backend/internal/auth"
	"fileoff/backend/internal/service"
	"fileoff/backend/internal/storage"
)

// 消息键，所有面向客户端的文案都走本地化表
type msgKey string

const (
	msgInvalidRequest     msgKey = "invalid_request"
	msgFilenameRequired   msgKey = "filename_required"
	msgFileRequired       msgKey = "file_required"
	msgFileTooLarge       msgKey = "file_too_large"
	msgFileNotFound       msgKey = "file_not_found"
	msgFileExists         msgKey = "file_exists"
	msgReceiverNotFound   msgKey = "receiver_not_found"
	msgSelfTransfer       msgKey = "self_transfer"
	msgUploadFailed       msgKey = "upload_failed"
	msgDeleteFailed       msgKey = "delete_failed"
	msgUploadOK           msgKey = "upload_ok"
	msgDeleteOK           msgKey = "delete_ok"
	msgNoSentFiles        msgKey = "no_sent_files"
	msgNoReceivedFiles    msgKey = "no_received_files"
	msgInvalidLogin       msgKey = "invalid_login"
	msgInvalidPassword    msgKey = "invalid_password"
	msgLoginExists        msgKey = "login_exists"
	msgInvalidCredentials msgKey = "invalid_credentials"
	msgAuthRequired       msgKey = "auth_required"
	msgTokenExpired       msgKey = "token_expired"
	msgTokenInvalid       msgKey = "token_invalid"
	msgRegisterFailed     msgKey = "register_failed"
	msgLoginFailed        msgKey = "login_failed"
	msgLoggedOut          msgKey = "logged_out"
	msgInternalError      msgKey = "internal_error"
)

// 本地化消息表，语言由 Accept-Language 决定，缺省英文
var messages = map[string]map[msgKey]string{
	"en": {
		msgInvalidRequest:     "invalid request parameters",
		msgFilenameRequired:   "filename is required",
		msgFileRequired:       "file is required",
		msgFileTooLarge:       "file exceeds the maximum allowed size",
		msgFileNotFound:       "file not found",
		msgFileExists:         "this file is already awaiting that receiver",
		msgReceiverNotFound:   "receiver does not exist",
		msgSelfTransfer:       "you cannot send a file to yourself",
		msgUploadFailed:       "failed to store the file, please retry",
		msgDeleteFailed:       "failed to delete the file, please retry",
		msgUploadOK:           "file uploaded",
		msgDeleteOK:           "file deleted",
		msgNoSentFiles:        "you have no pending sent files",
		msgNoReceivedFiles:    "you have no files waiting for download",
		msgInvalidLogin:       "invalid login format",
		msgInvalidPassword:    "password does not meet the requirements",
		msgLoginExists:        "this login is already taken",
		msgInvalidCredentials: "wrong login or password",
		msgAuthRequired:       "authentication required",
		msgTokenExpired:       "session expired, please sign in again",
		msgTokenInvalid:       "invalid access token",
		msgRegisterFailed:     "registration failed, please retry",
		msgLoginFailed:        "sign in failed, please retry",
		msgLoggedOut:          "signed out",
		msgInternalError:      "internal server error, please retry later",
	},
	"ru": {
		msgInvalidRequest:     "неверные параметры запроса",
		msgFilenameRequired:   "не указано имя файла",
		msgFileRequired:       "файл не приложен",
		msgFileTooLarge:       "файл превышает допустимый размер",
		msgFileNotFound:       "файл не найден",
		msgFileExists:         "этот файл уже ожидает этого получателя",
		msgReceiverNotFound:   "получатель не существует",
		msgSelfTransfer:       "нельзя отправить файл самому себе",
		msgUploadFailed:       "не удалось сохранить файл, попробуйте ещё раз",
		msgDeleteFailed:       "не удалось удалить файл, попробуйте ещё раз",
		msgUploadOK:           "файл загружен",
		msgDeleteOK:           "файл удалён",
		msgNoSentFiles:        "у вас нет отправленных файлов",
		msgNoReceivedFiles:    "у вас нет файлов, ожидающих скачивания",
		msgInvalidLogin:       "неверный формат логина",
		msgInvalidPassword:    "пароль не отвечает требованиям",
		msgLoginExists:        "этот логин уже занят",
		msgInvalidCredentials: "неверный логин или пароль",
		msgAuthRequired:       "требуется авторизация",
		msgTokenExpired:       "сессия истекла, войдите заново",
		msgTokenInvalid:       "недействительный токен доступа",
		msgRegisterFailed:     "не удалось зарегистрироваться, попробуйте ещё раз",
		msgLoginFailed:        "не удалось войти, попробуйте ещё раз",
		msgLoggedOut:          "вы вышли из системы",
		msgInternalError:      "внутренняя ошибка сервера, попробуйте позже",
	},
}

// T 按请求语言解析消息
func T(c *gin.Context, key msgKey) string {
	lang := requestLang(c)
	if msg, ok := messages[lang][key]; ok {
		return msg
	}
	return messages["en"][key]
}

// requestLang 从 Accept-Language 取第一个受支持的语言
func requestLang(c *gin.Context) string {
	header := c.GetHeader("Accept-Language")
	for _, part := range strings.Split(header, ",") {
		tag := strings.ToLower(strings.TrimSpace(part))
		if i := strings.IndexAny(tag, ";-"); i > 0 {
			tag = tag[:i]
		}
		if _, ok := messages[tag]; ok {
			return tag
		}
	}
	return "en"
}

// errKey 把业务错误解析成消息键，匹配包装链中的哨兵错误
func errKey(err error) (msgKey, bool) {
	for target, key := range errorKeys {
		if errors.Is(err, target) {
			return key, true
		}
	}
	return "", false
}

// 业务错误到消息键的映射
var errorKeys = map[error]msgKey{
	service.ErrFilenameRequired: msgFilenameRequired,
	service.ErrFileTooLarge:     msgFileTooLarge,
	storage.ErrTransferNotFound: msgFileNotFound,
	storage.ErrTransferExists:   msgFileExists,
	service.ErrReceiverNotFound: msgReceiverNotFound,
	service.ErrSelfTransfer:     msgSelfTransfer,
	service.ErrUploadFailed:     msgUploadFailed,
	service.ErrDeleteFailed:     msgDeleteFailed,

	auth.ErrInvalidLogin:       msgInvalidLogin,
	auth.ErrInvalidPassword:    msgInvalidPassword,
	auth.ErrLoginExists:        msgLoginExists,
	auth.ErrInvalidCredentials: msgInvalidCredentials,
}
