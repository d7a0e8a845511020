package telegram

// Update is the subset of a Bot API update the interview channel consumes
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message is an inbound chat message
type Message struct {
	MessageID int64  `json:"message_id"`
	Date      int64  `json:"date"`
	Chat      Chat   `json:"chat"`
	From      *User  `json:"from,omitempty"`
	Text      string `json:"text,omitempty"`
	Voice     *Voice `json:"voice,omitempty"`
	Audio     *Voice `json:"audio,omitempty"`
}

// Chat identifies the conversation on Telegram's side
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// User is the sender
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
}

// Voice is a voice note or audio attachment
type Voice struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	Duration     int    `json:"duration"`
	MimeType     string `json:"mime_type,omitempty"`
	FileSize     int64  `json:"file_size,omitempty"`
}

// File is the result of getFile
type File struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
	FileSize int64  `json:"file_size,omitempty"`
}

// response is the Bot API envelope
type response[T any] struct {
	OK          bool   `json:"ok"`
	Result      T      `json:"result"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

type sendMessage struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type getFile struct {
	FileID string `json:"file_id"`
}
