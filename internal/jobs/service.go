package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourusername/inventory-calculator/internal/apperror"
)

// SubmitMessage は受付成功時に返すメッセージです。
const SubmitMessage = "New process inventory job was successfully created."

// SourceStorage は在庫ファイルの取得・保存・再読込を提供します。
type SourceStorage interface {
	Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error)
	Store(ctx context.Context, name string, r io.Reader) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

// Calculator は在庫ファイルの内容から総額を計算します。
type Calculator interface {
	Calculate(r io.Reader) (float64, error)
}

// Dispatcher は計算処理を呼び出し元とは別の実行コンテキストへ引き渡します。
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string) error
}

// SubmitResult は Submit の応答です。
type SubmitResult struct {
	JobStatus Status `json:"job_status"`
	Message   string `json:"message"`
	JobID     string `json:"job_id"`
}

// StatusResult は CheckStatus の応答です。
type StatusResult struct {
	JobStatus  Status   `json:"job_status"`
	TotalValue *float64 `json:"total_value"`
}

// Service はジョブの受付・計算・状態確認をまとめます。
type Service struct {
	store      Store
	sources    SourceStorage
	calculator Calculator
	dispatcher Dispatcher
	logger     *zap.Logger
	newID      func() string
}

// NewService は Service を初期化します。
func NewService(store Store, sources SourceStorage, calculator Calculator, dispatcher Dispatcher, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if sources == nil {
		return nil, errors.New("sources is nil")
	}
	if calculator == nil {
		return nil, errors.New("calculator is nil")
	}
	if dispatcher == nil {
		return nil, errors.New("dispatcher is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:      store,
		sources:    sources,
		calculator: calculator,
		dispatcher: dispatcher,
		logger:     logger,
		newID:      uuid.NewString,
	}, nil
}

// Submit は在庫ファイルを保存してジョブを作成し、計算を非同期に依頼します。計算の完了は待ちません。
func (s *Service) Submit(ctx context.Context, fileURL string) (*SubmitResult, error) {
	fileURL = strings.TrimSpace(fileURL)
	if fileURL == "" {
		return nil, apperror.Client("Wrong input - `file_url` value cannot be empty.", nil)
	}

	location, err := s.copySource(ctx, fileURL)
	if err != nil {
		return nil, apperror.Service(fmt.Sprintf("File transfer to storage : %v", err), err)
	}

	record := &Record{
		JobID:        s.newID(),
		FileLocation: location,
		Status:       StatusDefault,
	}
	if err := s.store.Create(ctx, record); err != nil {
		return nil, apperror.Service(fmt.Sprintf("Initialize and put new job to DB : %v", err), err)
	}
	s.logger.Info("job created",
		zap.String("job_id", record.JobID),
		zap.String("file_location", record.FileLocation))

	// ジョブの作成が確定してから計算を依頼する
	if err := s.dispatcher.Dispatch(ctx, record.JobID); err != nil {
		s.logger.Warn("compute dispatch failed, job stays RUNNING", zap.String("job_id", record.JobID), zap.Error(err))
		return nil, apperror.Service(fmt.Sprintf("Failed to create new job: %v", err), err)
	}

	return &SubmitResult{
		JobStatus: StatusDefault,
		Message:   SubmitMessage,
		JobID:     record.JobID,
	}, nil
}

func (s *Service) copySource(ctx context.Context, fileURL string) (string, error) {
	body, err := s.sources.Fetch(ctx, fileURL)
	if err != nil {
		return "", err
	}
	defer body.Close()
	return s.sources.Store(ctx, fileURL, body)
}

// Compute はジョブの在庫総額を計算し、結果を終端状態として保存します。
// 計算に失敗した場合も FAILED を保存してからサービスエラーを返します。
// 終端状態のジョブは再計算せず、クライアントエラーを返します。
func (s *Service) Compute(ctx context.Context, jobID string) error {
	record, err := s.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if record.Status.Terminal() {
		return apperror.Client(fmt.Sprintf("Wrong input - Job %s is already finished with status %s.", record.JobID, record.Status), nil)
	}

	total, calcErr := s.calculate(ctx, record.FileLocation)

	status, value := StatusSucceeded, &total
	if calcErr != nil {
		status, value = StatusFailed, nil
	}
	// 呼び出し元がキャンセルされても終端状態は書き込む
	if err := s.store.Update(context.WithoutCancel(ctx), record.JobID, status, value); err != nil {
		return apperror.Service(fmt.Sprintf("Unable to save job %s with status %s : %v", record.JobID, status, err), errors.Join(err, calcErr))
	}

	if calcErr != nil {
		return apperror.Service(fmt.Sprintf("Exception on inventory calculations with status %s: %v", StatusFailed, calcErr), calcErr)
	}
	s.logger.Info("job finished",
		zap.String("job_id", record.JobID),
		zap.String("job_status", string(status)),
		zap.Float64("total_value", total))
	return nil
}

func (s *Service) calculate(ctx context.Context, location string) (float64, error) {
	rc, err := s.sources.Open(ctx, location)
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	return s.calculator.Calculate(rc)
}

// CheckStatus はジョブの現在の状態と総額を返します。副作用はありません。
func (s *Service) CheckStatus(ctx context.Context, jobID string) (*StatusResult, error) {
	record, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &StatusResult{
		JobStatus:  record.Status,
		TotalValue: record.TotalValue,
	}, nil
}

func (s *Service) loadJob(ctx context.Context, jobID string) (*Record, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, apperror.Client("Wrong input - `job_id` parameter must be set explicitly.", nil)
	}
	record, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, apperror.Service(fmt.Sprintf("Unable to get job details : %v", err), err)
	}
	if record == nil {
		return nil, apperror.Client("Wrong input - Job with given `job_id` does not exists.", ErrJobNotFound)
	}
	return record, nil
}
