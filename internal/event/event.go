// Package event は Submit / Compute / CheckStatus に渡す JSON イベントを検証して読み込みます。
package event

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/yourusername/inventory-calculator/internal/apperror"
)

const (
	submitSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "file_url": {"type": "string"}
  },
  "required": ["file_url"]
}`

	jobSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "job_id": {"type": "string"}
  },
  "required": ["job_id"]
}`
)

var (
	submitSchema = jsonschema.MustCompileString("submit.json", submitSchemaJSON)
	jobSchema    = jsonschema.MustCompileString("job.json", jobSchemaJSON)
)

// Submit は在庫ファイル受付のイベントです。
type Submit struct {
	FileURL string `json:"file_url"`
}

// Job はジョブIDで対象を指定するイベントです（Compute / CheckStatus）。
type Job struct {
	JobID string `json:"job_id"`
}

// DecodeSubmit は受付イベントを検証して読み込みます。検証に失敗した場合はクライアントエラーです。
func DecodeSubmit(data []byte) (*Submit, error) {
	var ev Submit
	if err := decode(submitSchema, "file_url", data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// DecodeJob はジョブ指定イベントを検証して読み込みます。検証に失敗した場合はクライアントエラーです。
func DecodeJob(data []byte) (*Job, error) {
	var ev Job
	if err := decode(jobSchema, "job_id", data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// EncodeJob はジョブ指定イベントを作成します。
func EncodeJob(jobID string) ([]byte, error) {
	return json.Marshal(Job{JobID: jobID})
}

func decode(schema *jsonschema.Schema, field string, data []byte, v any) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return apperror.Client("Wrong input - event must be a JSON object.", err)
	}
	if err := schema.Validate(doc); err != nil {
		return apperror.Client(fmt.Sprintf("Wrong input - `%s` parameter must be set explicitly.", field), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperror.Client("Wrong input - event must be a JSON object.", err)
	}
	return nil
}
