package jobs

import (
	"errors"
	"strconv"
	"time"
)

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"

	// StatusDefault は作成直後のジョブ状態です。
	StatusDefault = StatusRunning
)

// Terminal は終端状態かどうかを返します。
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Valid は既知の状態かどうかを返します。
func (s Status) Valid() bool {
	switch s {
	case StatusRunning, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}

var (
	// ErrJobNotFound は更新対象のジョブが存在しないことを表します。
	ErrJobNotFound = errors.New("job not found")
	// ErrJobExists は同じIDのジョブがすでに存在することを表します。
	ErrJobExists = errors.New("job already exists")
)

// Record はジョブの永続化される状態を表します。TotalValue は SUCCEEDED のときだけ設定されます。
type Record struct {
	JobID        string    `json:"job_id"`
	FileLocation string    `json:"file_location"`
	Status       Status    `json:"job_status"`
	TotalValue   *float64  `json:"total_value"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const nullValue = "null"

// encodeTotal は総額を保存用のテキストに変換します。値がない場合は "null" です。
func encodeTotal(v *float64) string {
	if v == nil {
		return nullValue
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

func decodeTotal(s string) (*float64, error) {
	if s == "" || s == nullValue {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
