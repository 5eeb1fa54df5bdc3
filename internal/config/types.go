package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Catalog   CatalogConfig   `json:"catalog"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	GroupLog     string  `json:"group_log,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// TargetChat is the fixed broadcast destination. When 0, the daily
	// message goes to every group chat the bot has seen traffic from.
	TargetChat int64 `json:"target_chat,omitempty"`
}

// BroadcastConfig controls the daily announcement and the cache reset.
//
// Times of day are "HH:MM" in Timezone (IANA name; empty means the
// process-local zone).
type BroadcastConfig struct {
	// Time is when the daily pick is announced. Weekends are skipped.
	Time string `json:"time"`
	// ResetTime is when the per-day pick cache is cleared. Keep it strictly
	// before Time so "when today's answer may change" stays decoupled from
	// "when it is announced".
	ResetTime string `json:"reset_time,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
	// RetryBackoff is a Go duration string; how long the broadcast loop waits
	// after a failed cycle before trying again.
	RetryBackoff string `json:"retry_backoff,omitempty"`
}

type CatalogConfig struct {
	// Path of the sqlite database file.
	Path string `json:"path"`
	// SeedFile is a newline-separated name list, loaded once when the
	// catalog table is empty. /export rewrites it.
	SeedFile string `json:"seed_file,omitempty"`
	// SelfName is the designated "self" entry (catalog id 1). It seeds the
	// catalog when the seed file is missing or empty and drives the
	// special-cased announcement wording.
	SelfName string `json:"self_name"`
	// BusyTimeout is a Go duration string (sqlite busy_timeout pragma).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}
