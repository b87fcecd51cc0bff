package models

import "time"

// FileType тип собранного сообщения.
type FileType string

const (
	FileTypeImage FileType = "image"
	FileTypeAudio FileType = "audio"
	FileTypeFile  FileType = "file"
	FileTypeVideo FileType = "video"
	FileTypeSlip  FileType = "slip"
	FileTypeLink  FileType = "link"
	FileTypeChat  FileType = "chat"
)

// NGebByFileType счётчики по типам сообщений.
type NGebByFileType struct {
	Image int `json:"image"`
	Audio int `json:"audio"`
	File  int `json:"file"`
	Video int `json:"video"`
	Slip  int `json:"slip"`
	Link  int `json:"link"`
	Chat  int `json:"chat"`
}

// MonthlyStats статистика за текущий месяц, обнуляется 1 числа в 00:00 GMT+7.
type MonthlyStats struct {
	NGebAll        int            `json:"n_geb_all"`
	NProcessSlip   int            `json:"n_process_slip"`
	NGebByFileType NGebByFileType `json:"n_geb_by_file_type"`
	Updated        time.Time      `json:"updated"`
}

// Record увеличивает счётчики для типа файла.
func (s *MonthlyStats) Record(fileType FileType, now time.Time) {
	switch fileType {
	case FileTypeImage:
		s.NGebByFileType.Image++
	case FileTypeAudio:
		s.NGebByFileType.Audio++
	case FileTypeFile:
		s.NGebByFileType.File++
	case FileTypeVideo:
		s.NGebByFileType.Video++
	case FileTypeSlip:
		s.NGebByFileType.Slip++
		s.NProcessSlip++
	case FileTypeLink:
		s.NGebByFileType.Link++
	case FileTypeChat:
		s.NGebByFileType.Chat++
	default:
		return
	}
	s.NGebAll++
	s.Updated = now
}
