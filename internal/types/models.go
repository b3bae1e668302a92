package types

import (
	"time"

	"gorm.io/gorm"
)

// StagePhase tracks the lifecycle of a single pipeline stage within a batch.
type StagePhase struct {
	Status    string     `json:"status"` // Pending, InProgress, Complete
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

// Batch is one calendar day's unit of call intake and processing.
// Exactly one batch carries CurrentBatch=true at any time.
type Batch struct {
	gorm.Model   `json:"-"`
	BatchDate    time.Time  `gorm:"index" json:"batch_date"`
	CurrentBatch bool       `json:"current_batch"`
	BatchStatus  string     `json:"batch_status"` // Pending, InProgress, Complete
	DBInsertion  StagePhase `gorm:"embedded;embeddedPrefix:db_insertion_" json:"db_insertion"`
	Denoise      StagePhase `gorm:"embedded;embeddedPrefix:denoise_" json:"denoise"`
	IVR          StagePhase `gorm:"embedded;embeddedPrefix:ivr_" json:"ivr"`
	LID          StagePhase `gorm:"embedded;embeddedPrefix:lid_" json:"lid"`
	STT          StagePhase `gorm:"embedded;embeddedPrefix:stt_" json:"stt"`
	Audit        StagePhase `gorm:"embedded;embeddedPrefix:audit_" json:"audit"`
	Triaging     StagePhase `gorm:"embedded;embeddedPrefix:triaging_" json:"triaging"`
}

// Call is one recorded audio file within a batch. Once claimed it is owned
// exclusively by a single drain loop instance until released.
type Call struct {
	gorm.Model         `json:"-"`
	AudioName          string     `gorm:"index:idx_call_audio,unique,composite:batch" json:"audio_name"`
	BatchID            uint       `gorm:"index:idx_call_audio,unique,composite:batch" json:"batch_id"`
	Status             string     `gorm:"index" json:"status"` // Pending, InProgress, TranscriptDone, Auditing, AuditDone, Complete, ShortCall, UnsupportedLanguage
	LanguageID         string     `json:"language_id"`
	AudioDuration      float64    `json:"audio_duration"` // seconds
	IP                 string     `json:"ip"`
	ClientMobileNumber string     `gorm:"index" json:"client_mobile_number"`
	ClientCode         string     `gorm:"index" json:"client_code"`
	CallStartTime      *time.Time `json:"call_start_time,omitempty"`
	CallEndTime        *time.Time `json:"call_end_time,omitempty"`
	ClaimedBy          string     `json:"claimed_by"`
	ClaimedAt          *time.Time `json:"claimed_at,omitempty"`
	MetaData           string     `json:"meta_data"` // raw JSON carrying correlation ids
}

// TradeMetadata is one raw trade leg. Immutable after ingestion except for
// the voice confirmation annotation written by the matching engine.
type TradeMetadata struct {
	gorm.Model                  `json:"-"`
	OrderID                     string    `gorm:"index" json:"order_id"`
	ClientCode                  string    `gorm:"index" json:"client_code"`
	ALNumber                    string    `json:"al_number"`
	RegNumber                   string    `json:"reg_number"`
	TradeDate                   time.Time `json:"trade_date"`
	OrderPlacedTime             time.Time `json:"order_placed_time"`
	Symbol                      string    `json:"symbol"`
	ScripName                   string    `json:"scrip_name"`
	StrikePrice                 float64   `json:"strike_price"`
	TradeQuantity               float64   `json:"trade_quantity"`
	TradePrice                  float64   `json:"trade_price"`
	BatchID                     uint      `gorm:"index" json:"batch_id"`
	AudioFileName               string    `json:"audio_file_name"`
	VoiceRecordingConfirmations string    `json:"voice_recording_confirmations"`
}

// TradeAudioMapping links a trade to one candidate call and records which
// dimensions of the verbal confirmation agreed. Rows are annotated, never
// deleted; the best row per trade is the one reflected on TradeMetadata.
type TradeAudioMapping struct {
	gorm.Model                  `json:"-"`
	MappingID                   string `gorm:"uniqueIndex" json:"mapping_id"`
	TradeMetadataID             uint   `gorm:"index" json:"trade_metadata_id"`
	AudioFileName               string `json:"audio_file_name"`
	IsScript                    bool   `json:"is_script"`
	IsPrice                     bool   `json:"is_price"`
	IsQuantity                  bool   `json:"is_quantity"`
	VoiceRecordingConfirmations string `json:"voice_recording_confirmations"`
	BatchID                     uint   `gorm:"index" json:"batch_id"`
}

// CallConversation is one stock mention extracted from a call transcript by
// the LLM extraction step. Read-only for the matching engine.
type CallConversation struct {
	gorm.Model         `json:"-"`
	CallID             uint    `gorm:"index" json:"call_id"`
	ScriptName         string  `json:"script_name"`
	LotQuantity        float64 `json:"lot_quantity"`
	TradePrice         float64 `json:"trade_price"`
	StrikePrice        float64 `json:"strike_price"`
	CurrentMarketPrice float64 `json:"current_market_price"`
	Side               string  `json:"side"` // buy or sell
	BatchID            uint    `gorm:"index" json:"batch_id"`
}

// LotQuantityMapping is static reference data: lot multiplier and known name
// variants per trading symbol.
type LotQuantityMapping struct {
	gorm.Model `json:"-"`
	Symbol     string  `gorm:"uniqueIndex" json:"symbol"`
	ScripName  string  `json:"scrip_name"`
	Variation1 string  `json:"variation1"`
	Variation2 string  `json:"variation2"`
	Variation3 string  `json:"variation3"`
	Quantity   float64 `json:"quantity"` // lot multiplier
}

// StageResult is a per-stage idempotency marker: the presence of a row means
// the file has already been processed by that stage. Failed attempts are also
// recorded so a bad file is not retried forever.
type StageResult struct {
	gorm.Model `json:"-"`
	Stage      string `gorm:"index:idx_stage_audio,unique,composite:stage" json:"stage"`
	AudioName  string `gorm:"index:idx_stage_audio,unique,composite:stage" json:"audio_name"`
	BatchID    uint   `gorm:"index:idx_stage_audio,unique,composite:stage" json:"batch_id"`
	IP         string `json:"ip"`     // host of the endpoint that served the file
	Result     string `json:"result"` // raw JSON response
	Succeeded  bool   `json:"succeeded"`
}

// TranscriptSegment is one STT output segment for a call.
type TranscriptSegment struct {
	gorm.Model `json:"-"`
	CallID     uint    `gorm:"index" json:"call_id"`
	Seq        int     `json:"seq"`
	StartSec   float64 `json:"start_sec"`
	EndSec     float64 `json:"end_sec"`
	Speaker    string  `json:"speaker"`
	Text       string  `json:"text"`
	Language   string  `json:"language"`
}

// AuditAnswer is one answered compliance question for a call.
type AuditAnswer struct {
	gorm.Model `json:"-"`
	CallID     uint   `gorm:"index" json:"call_id"`
	QuestionID string `json:"question_id"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
}
