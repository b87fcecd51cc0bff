// Package sl содержит вспомогательные функции для формирования полей логгера slog.
package sl

import "log/slog"

// Err возвращает атрибут "error" с текстом ошибки. Для nil пишет пустую строку.
//
// Пример:
//
//	log.Error("failed to save user", sl.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// Op возвращает атрибут "op" с именем операции.
func Op(op string) slog.Attr {
	return slog.String("op", op)
}

// LineUser возвращает атрибут с LINE user id.
func LineUser(id string) slog.Attr {
	return slog.String("line_user_id", id)
}
